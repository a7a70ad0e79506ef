// Package resolver maps free-text mentions in a question to a canonical
// member identity among the cached messages.
package resolver

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"unicode"

	"github.com/edgard/memberqa/internal/source"
)

// Resolution failures. Both are expected outcomes surfaced to the user as
// answers rather than errors by the service layer.
var (
	ErrNoMatch   = errors.New("no member matched the question")
	ErrAmbiguous = errors.New("multiple members matched the question")
)

// AmbiguousError reports the equally-plausible candidate names so callers can
// ask the user to clarify.
type AmbiguousError struct {
	Candidates []string
}

func (e *AmbiguousError) Error() string {
	return fmt.Sprintf("%v: %s", ErrAmbiguous, strings.Join(e.Candidates, ", "))
}

func (e *AmbiguousError) Unwrap() error {
	return ErrAmbiguous
}

// ResolvedQuery is the resolver's output: the matched member, their messages
// in chronological order, and coarse intent hints for the extraction engine.
type ResolvedQuery struct {
	UserName          string
	CandidateMessages []*source.Message
	IntentKeywords    map[string]struct{}
}

// interrogative stems kept as intent hints for the extraction engine.
var interrogatives = map[string]struct{}{
	"where": {}, "when": {}, "what": {}, "who": {}, "why": {}, "how": {},
	"many": {}, "much": {}, "which": {}, "prefer": {}, "favorite": {},
	"like": {}, "often": {},
}

// stopwords excluded from intent keywords.
var stopwords = map[string]struct{}{
	"a": {}, "an": {}, "the": {}, "is": {}, "are": {}, "was": {}, "were": {},
	"do": {}, "does": {}, "did": {}, "has": {}, "have": {}, "had": {},
	"of": {}, "in": {}, "on": {}, "at": {}, "to": {}, "for": {}, "with": {},
	"and": {}, "or": {}, "it": {}, "its": {}, "their": {}, "his": {},
	"her": {}, "my": {}, "your": {}, "about": {}, "that": {}, "this": {},
	"be": {}, "been": {}, "will": {}, "would": {}, "can": {}, "could": {},
	"should": {}, "i": {}, "you": {}, "they": {}, "we": {}, "he": {},
	"she": {},
}

// Resolve finds the member the question refers to. Matching is
// case-insensitive against each candidate's full name, first name, and last
// name; the longest matching name span wins, and distinct equally-long
// matches are reported as ambiguous rather than silently picking one.
func Resolve(question string, set *source.MessageSet) (*ResolvedQuery, error) {
	qTokens := Tokenize(question)
	qLower := " " + strings.Join(qTokens, " ") + " "

	type match struct {
		userName string
		span     string
	}

	bestLen := 0
	var best []match

	for _, userName := range set.UserNames() {
		span := longestNameSpan(userName, qLower)
		if span == "" {
			continue
		}
		switch {
		case len(span) > bestLen:
			bestLen = len(span)
			best = []match{{userName: userName, span: span}}
		case len(span) == bestLen:
			best = append(best, match{userName: userName, span: span})
		}
	}

	if len(best) == 0 {
		return nil, ErrNoMatch
	}
	if len(best) > 1 {
		names := make([]string, 0, len(best))
		for _, m := range best {
			names = append(names, m.userName)
		}
		sort.Strings(names)
		return nil, &AmbiguousError{Candidates: names}
	}

	winner := best[0].userName
	return &ResolvedQuery{
		UserName:          winner,
		CandidateMessages: set.MessagesFor(winner),
		IntentKeywords:    intentKeywords(qTokens, winner),
	}, nil
}

// longestNameSpan returns the longest of the candidate's name variants
// (full, first, last) present as a whole-token span in the question, or ""
// when none match.
func longestNameSpan(userName, qLower string) string {
	full := strings.ToLower(strings.TrimSpace(userName))
	if full == "" {
		return ""
	}

	variants := []string{full}
	parts := strings.Fields(full)
	if len(parts) > 1 {
		variants = append(variants, parts[0], parts[len(parts)-1])
	}

	best := ""
	for _, v := range variants {
		if len(v) <= len(best) {
			continue
		}
		if strings.Contains(qLower, " "+v+" ") {
			best = v
		}
	}
	return best
}

// intentKeywords extracts interrogative stems and content tokens from the
// question, minus stopwords and the matched member's own name. The result is
// a hint set for the extraction engine, never a hard filter.
func intentKeywords(qTokens []string, userName string) map[string]struct{} {
	nameTokens := make(map[string]struct{})
	for _, t := range strings.Fields(strings.ToLower(userName)) {
		nameTokens[t] = struct{}{}
	}

	keywords := make(map[string]struct{})
	for _, t := range qTokens {
		if _, isName := nameTokens[t]; isName {
			continue
		}
		if _, isStop := stopwords[t]; isStop {
			continue
		}
		if _, isIntent := interrogatives[t]; isIntent {
			keywords[t] = struct{}{}
			continue
		}
		if len(t) >= 3 {
			keywords[t] = struct{}{}
		}
	}
	return keywords
}

// Tokenize lowercases and splits on anything that is not a letter, digit, or
// intra-name punctuation (so "Al-Farsi" and "O'Brien" stay whole tokens).
// Possessive suffixes and surrounding quotes are stripped, so "Layla's"
// yields the token "layla".
func Tokenize(s string) []string {
	raw := strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '-' && r != '\''
	})

	tokens := raw[:0]
	for _, t := range raw {
		t = strings.TrimSuffix(t, "'s")
		t = strings.Trim(t, "'")
		if t != "" {
			tokens = append(tokens, t)
		}
	}
	return tokens
}
