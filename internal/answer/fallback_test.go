package answer

import (
	"testing"
	"time"

	"github.com/edgard/memberqa/internal/resolver"
	"github.com/edgard/memberqa/internal/source"
)

func TestFallbackTieBrokenByRecency(t *testing.T) {
	t.Parallel()

	messages := []*source.Message{
		{ID: "1", UserID: "u1", UserName: "Omar", Timestamp: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
			Text: "I visited the museum last year."},
		{ID: "2", UserID: "u1", UserName: "Omar", Timestamp: time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC),
			Text: "I visited the museum again."},
	}
	resolved := &resolver.ResolvedQuery{
		UserName:          "Omar",
		CandidateMessages: messages,
		IntentKeywords:    map[string]struct{}{"visited": {}, "museum": {}},
	}

	got := fallbackAnswer(resolved)
	if got.Text != "I visited the museum again." {
		t.Errorf("expected most recent message on tie, got %q", got.Text)
	}
}

func TestFallbackNoCandidates(t *testing.T) {
	t.Parallel()

	resolved := &resolver.ResolvedQuery{
		UserName:       "Omar",
		IntentKeywords: map[string]struct{}{"museum": {}},
	}

	got := fallbackAnswer(resolved)
	if got.Text != Sentinel {
		t.Errorf("expected sentinel for user with no messages, got %q", got.Text)
	}
}

func TestTrimImperative(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		input string
		want  string
	}{
		{
			name:  "please remember",
			input: "Please remember I prefer aisle seats.",
			want:  "I prefer aisle seats.",
		},
		{
			name:  "please remember that",
			input: "Please remember that my anniversary is in June.",
			want:  "My anniversary is in June.",
		},
		{
			name:  "please book",
			input: "Please book a table for two.",
			want:  "A table for two.",
		},
		{
			name:  "no imperative",
			input: "I have two cars.",
			want:  "I have two cars.",
		},
		{
			name:  "imperative only",
			input: "Please remember ",
			want:  "Please remember",
		},
		{
			name:  "case insensitive prefix",
			input: "please NOTE the gate closes at nine.",
			want:  "The gate closes at nine.",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			if got := trimImperative(tc.input); got != tc.want {
				t.Errorf("trimImperative(%q) = %q, want %q", tc.input, got, tc.want)
			}
		})
	}
}
