// Package answer derives an answer from a resolved member's messages using a
// two-tier strategy: an LLM-backed extraction with a deterministic
// pattern-matching fallback.
package answer

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/edgard/memberqa/internal/resolver"
)

// Sentinel is the explicit "no evidence found" answer. It distinguishes
// absence of data from an extraction failure and is never an empty string.
const Sentinel = "I don't have enough information to answer that question."

// Answer is the only artifact returned to callers.
type Answer struct {
	Text string `json:"answer"`
}

// Extractor is the narrow capability seam over the external LLM: given a
// labeled message transcript and a question, return an answer string or fail.
// Implementations may time out or be rate limited; the engine treats any
// failure as a signal to fall back.
type Extractor interface {
	ExtractWithContext(ctx context.Context, transcript, question string) (string, error)
}

// Engine answers questions over a resolved candidate message set. It never
// fails outright: when neither tier produces evidence it returns Sentinel.
type Engine struct {
	extractor Extractor // nil disables the LLM tier
	timeout   time.Duration
	log       *slog.Logger
}

// NewEngine creates an engine. Pass a nil extractor to run fallback-only.
func NewEngine(extractor Extractor, timeout time.Duration, log *slog.Logger) *Engine {
	return &Engine{
		extractor: extractor,
		timeout:   timeout,
		log:       log.With("component", "answer_engine"),
	}
}

// Answer runs the LLM tier and falls back to deterministic matching on
// failure, timeout, or empty output. Both tiers see the same candidate set.
func (e *Engine) Answer(ctx context.Context, question string, resolved *resolver.ResolvedQuery) Answer {
	if e.extractor != nil {
		transcript := FormatTranscript(resolved)

		extractCtx, cancel := context.WithTimeout(ctx, e.timeout)
		text, err := e.extractor.ExtractWithContext(extractCtx, transcript, question)
		cancel()

		if err == nil && strings.TrimSpace(text) != "" {
			return Answer{Text: strings.TrimSpace(text)}
		}
		e.log.WarnContext(ctx, "LLM extraction failed, falling back to rule-based answer",
			"user", resolved.UserName, "error", err)
	}

	return fallbackAnswer(resolved)
}

// FormatTranscript renders the candidate messages as an ordered, labeled
// transcript so the LLM can ground its answer to a single message.
func FormatTranscript(resolved *resolver.ResolvedQuery) string {
	var sb strings.Builder
	sb.WriteString("# Member Messages\n\n")
	sb.WriteString("## " + resolved.UserName + "\n")
	for _, m := range resolved.CandidateMessages {
		sb.WriteString("- [" + m.Timestamp.Format(time.RFC3339) + "] " + m.Text + "\n")
	}
	return sb.String()
}
