// Package qa wires the message cache, user resolver, and answer engine into
// the upward contract consumed by the serving surfaces: Ask and Health.
package qa

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/edgard/memberqa/internal/answer"
	"github.com/edgard/memberqa/internal/cache"
	"github.com/edgard/memberqa/internal/resolver"
)

// Messages returned for resolver outcomes. These are answers, not errors:
// a question about an unknown or ambiguous member is an expected result.
const (
	msgNoMatch   = "I couldn't identify which member you mean."
	msgAmbiguous = "That could refer to more than one member (%s). Please use their full name."
	msgEmpty     = "Please provide a question."
)

// Health reports liveness information for the HTTP layer.
type Health struct {
	CacheState    cache.State `json:"cache_state"`
	LastFetchTime time.Time   `json:"last_successful_fetch_time"`
}

// Service answers natural-language questions about members.
type Service struct {
	cache  *cache.Cache
	engine *answer.Engine
	log    *slog.Logger
}

// NewService creates the question-answering service.
func NewService(c *cache.Cache, engine *answer.Engine, log *slog.Logger) *Service {
	return &Service{
		cache:  c,
		engine: engine,
		log:    log.With("component", "qa_service"),
	}
}

// Ask answers a question about a member. It fails only when no message data
// is available at all (cold start with the upstream down); every other
// outcome, including an unresolvable member or absent evidence, is an Answer.
func (s *Service) Ask(ctx context.Context, question string) (answer.Answer, error) {
	if strings.TrimSpace(question) == "" {
		return answer.Answer{Text: msgEmpty}, nil
	}

	set, err := s.cache.Get(ctx)
	if err != nil {
		s.log.ErrorContext(ctx, "No message data available", "error", err)
		return answer.Answer{}, fmt.Errorf("message data unavailable: %w", err)
	}

	resolved, err := resolver.Resolve(question, set)
	if err != nil {
		var ambiguous *resolver.AmbiguousError
		switch {
		case errors.As(err, &ambiguous):
			s.log.InfoContext(ctx, "Ambiguous member reference", "candidates", ambiguous.Candidates)
			return answer.Answer{Text: fmt.Sprintf(msgAmbiguous, strings.Join(ambiguous.Candidates, ", "))}, nil
		case errors.Is(err, resolver.ErrNoMatch):
			s.log.InfoContext(ctx, "No member matched question")
			return answer.Answer{Text: msgNoMatch}, nil
		default:
			return answer.Answer{}, fmt.Errorf("failed to resolve member: %w", err)
		}
	}

	s.log.DebugContext(ctx, "Resolved member", "user", resolved.UserName, "candidate_messages", len(resolved.CandidateMessages))
	return s.engine.Answer(ctx, question, resolved), nil
}

// Health reports the cache state and last successful fetch time.
func (s *Service) Health(_ context.Context) Health {
	state, lastFetch := s.cache.State()
	return Health{
		CacheState:    state,
		LastFetchTime: lastFetch,
	}
}
