package qa

import (
	"context"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/edgard/memberqa/internal/answer"
	"github.com/edgard/memberqa/internal/cache"
	"github.com/edgard/memberqa/internal/config"
	"github.com/edgard/memberqa/internal/source"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fixedClient serves a constant message set.
type fixedClient struct {
	messages []source.Message
	err      error
}

func (f *fixedClient) FetchAll(_ context.Context) ([]source.Message, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.messages, nil
}

func newTestService(t *testing.T, client source.Client) *Service {
	t.Helper()

	log := discardLogger()
	c := cache.New(client, nil, config.CacheConfig{
		TTL:             time.Hour,
		FailureCooldown: time.Second,
		RefreshTimeout:  5 * time.Second,
	}, log)
	engine := answer.NewEngine(nil, time.Second, log)
	return NewService(c, engine, log)
}

func memberMessages() []source.Message {
	base := time.Date(2025, 1, 1, 10, 0, 0, 0, time.UTC)
	return []source.Message{
		{ID: "1", UserID: "u1", UserName: "Layla Haddad", Timestamp: base,
			Text: "Please remember I prefer aisle seats during my flights."},
		{ID: "2", UserID: "u2", UserName: "Vikram Desai", Timestamp: base.Add(time.Hour),
			Text: "I have two cars."},
		{ID: "3", UserID: "u3", UserName: "Vikram Singh", Timestamp: base.Add(2 * time.Hour),
			Text: "I prefer tea over coffee."},
	}
}

func TestAsk(t *testing.T) {
	t.Parallel()

	svc := newTestService(t, &fixedClient{messages: memberMessages()})

	tests := []struct {
		name     string
		question string
		contains string
	}{
		{
			name:     "answer from fallback tier",
			question: "What does Layla prefer during flights?",
			contains: "aisle seats",
		},
		{
			name:     "ambiguous member is an answer not an error",
			question: "What does Vikram prefer?",
			contains: "more than one member",
		},
		{
			name:     "unknown member is an answer not an error",
			question: "What does Amina prefer?",
			contains: "couldn't identify",
		},
		{
			name:     "no evidence yields sentinel",
			question: "What does Layla think of skiing?",
			contains: answer.Sentinel,
		},
		{
			name:     "empty question",
			question: "   ",
			contains: "provide a question",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			got, err := svc.Ask(context.Background(), tc.question)
			if err != nil {
				t.Fatalf("Ask returned error: %v", err)
			}
			if !strings.Contains(got.Text, tc.contains) {
				t.Errorf("expected answer containing %q, got %q", tc.contains, got.Text)
			}
		})
	}
}

func TestAskColdStartFailure(t *testing.T) {
	t.Parallel()

	svc := newTestService(t, &fixedClient{err: source.ErrUnavailable})

	_, err := svc.Ask(context.Background(), "What does Layla prefer?")
	if err == nil {
		t.Fatal("expected error when no message data exists at all")
	}
}

func TestHealth(t *testing.T) {
	t.Parallel()

	svc := newTestService(t, &fixedClient{messages: memberMessages()})

	h := svc.Health(context.Background())
	if h.CacheState != cache.StateEmpty {
		t.Errorf("expected empty cache before first ask, got %s", h.CacheState)
	}

	if _, err := svc.Ask(context.Background(), "What does Layla prefer during flights?"); err != nil {
		t.Fatalf("Ask returned error: %v", err)
	}

	h = svc.Health(context.Background())
	if h.CacheState != cache.StateFresh {
		t.Errorf("expected fresh cache after ask, got %s", h.CacheState)
	}
	if h.LastFetchTime.IsZero() {
		t.Error("expected non-zero last fetch time after ask")
	}
}
