package answer

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/edgard/memberqa/internal/resolver"
	"github.com/edgard/memberqa/internal/source"
)

// minOverlap is the minimum keyword overlap a message needs to count as
// evidence. Below it the engine answers with the sentinel.
const minOverlap = 1

// leadingImperatives are trimmed from a matched message before returning it,
// longest prefix first.
var leadingImperatives = []string{
	"please remember that ",
	"please remember ",
	"please note that ",
	"please note ",
	"please book ",
	"remember that ",
	"note that ",
}

// fallbackAnswer scores each candidate message by token overlap with the
// question's intent keywords and returns the highest-scoring message's text,
// ties broken by most recent timestamp.
func fallbackAnswer(resolved *resolver.ResolvedQuery) Answer {
	var best *source.Message
	bestScore := 0

	for _, m := range resolved.CandidateMessages {
		score := overlapScore(m.Text, resolved.IntentKeywords)
		if score < minOverlap {
			continue
		}
		if best == nil || score > bestScore || (score == bestScore && m.Timestamp.After(best.Timestamp)) {
			best = m
			bestScore = score
		}
	}

	if best == nil {
		return Answer{Text: Sentinel}
	}

	return Answer{Text: trimImperative(best.Text)}
}

func overlapScore(text string, keywords map[string]struct{}) int {
	score := 0
	seen := make(map[string]struct{})
	for _, t := range resolver.Tokenize(text) {
		if _, dup := seen[t]; dup {
			continue
		}
		seen[t] = struct{}{}
		if _, ok := keywords[t]; ok {
			score++
		}
	}
	return score
}

// trimImperative strips a leading imperative phrase ("Please remember …")
// from the message text so the returned answer reads as a statement.
func trimImperative(text string) string {
	trimmed := strings.TrimSpace(text)
	lower := strings.ToLower(trimmed)

	for _, prefix := range leadingImperatives {
		if strings.HasPrefix(lower, prefix) {
			rest := strings.TrimSpace(trimmed[len(prefix):])
			if rest == "" {
				return trimmed
			}
			// Restore sentence casing on what remains.
			r, size := utf8.DecodeRuneInString(rest)
			return string(unicode.ToUpper(r)) + rest[size:]
		}
	}

	return trimmed
}
