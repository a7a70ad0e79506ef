package source

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync/atomic"
	"testing"
	"time"

	"github.com/edgard/memberqa/internal/config"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testConfig(baseURL string) config.SourceConfig {
	return config.SourceConfig{
		BaseURL:        baseURL,
		PageSize:       2,
		RequestTimeout: 5 * time.Second,
		MaxRetries:     3,
		RetryBaseDelay: time.Millisecond,
	}
}

// pageHandler serves a fixed dataset through skip/limit pagination.
func pageHandler(t *testing.T, records []string) http.HandlerFunc {
	t.Helper()
	return func(w http.ResponseWriter, r *http.Request) {
		skip, _ := strconv.Atoi(r.URL.Query().Get("skip"))
		limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))

		end := skip + limit
		if end > len(records) {
			end = len(records)
		}
		items := "[]"
		if skip < len(records) {
			items = "["
			for i := skip; i < end; i++ {
				if i > skip {
					items += ","
				}
				items += records[i]
			}
			items += "]"
		}
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"items": %s, "total": %d}`, items, len(records))
	}
}

func record(id int, userID, userName, ts, text string) string {
	return fmt.Sprintf(`{"id": %d, "user_id": %q, "user_name": %q, "timestamp": %q, "message": %q}`,
		id, userID, userName, ts, text)
}

func TestFetchAllPagination(t *testing.T) {
	t.Parallel()

	records := []string{
		record(1, "u1", "Layla Haddad", "2025-01-01T10:00:00Z", "Please remember I prefer aisle seats during my flights."),
		record(2, "u2", "Vikram Desai", "2025-01-02T10:00:00Z", "I have two cars."),
		record(3, "u2", "Vikram Desai", "2025-01-03T10:00:00Z", "My trip to Goa is in May."),
		record(4, "u3", "Vikram Singh", "2025-01-04T10:00:00Z", "I prefer window seats."),
		record(5, "u1", "Layla Haddad", "2025-01-05T10:00:00Z", "My favorite restaurant is Zuma."),
	}

	srv := httptest.NewServer(pageHandler(t, records))
	defer srv.Close()

	client := NewHTTPClient(testConfig(srv.URL), discardLogger())
	messages, err := client.FetchAll(context.Background())
	if err != nil {
		t.Fatalf("FetchAll returned error: %v", err)
	}

	if len(messages) != len(records) {
		t.Fatalf("expected %d messages, got %d", len(records), len(messages))
	}

	seen := make(map[string]int)
	for _, m := range messages {
		seen[m.ID]++
	}
	for id, count := range seen {
		if count != 1 {
			t.Errorf("message %s fetched %d times, want exactly once", id, count)
		}
	}
}

func TestFetchAllEmptySource(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(pageHandler(t, nil))
	defer srv.Close()

	client := NewHTTPClient(testConfig(srv.URL), discardLogger())
	messages, err := client.FetchAll(context.Background())
	if err != nil {
		t.Fatalf("FetchAll returned error: %v", err)
	}
	if len(messages) != 0 {
		t.Fatalf("expected no messages, got %d", len(messages))
	}
}

func TestFetchAllRateLimitRecovery(t *testing.T) {
	t.Parallel()

	records := []string{
		record(1, "u1", "Layla Haddad", "2025-01-01T10:00:00Z", "hello"),
	}
	var calls atomic.Int32
	inner := pageHandler(t, records)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) <= 2 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		inner(w, r)
	}))
	defer srv.Close()

	client := NewHTTPClient(testConfig(srv.URL), discardLogger())
	messages, err := client.FetchAll(context.Background())
	if err != nil {
		t.Fatalf("FetchAll returned error after rate-limit recovery: %v", err)
	}
	if len(messages) != 1 {
		t.Fatalf("expected 1 message, got %d", len(messages))
	}
}

func TestFetchAllErrorKinds(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		handler http.HandlerFunc
		wantErr error
	}{
		{
			name: "persistent rate limit",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusTooManyRequests)
			},
			wantErr: ErrRateLimited,
		},
		{
			name: "server error",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusInternalServerError)
			},
			wantErr: ErrUnavailable,
		},
		{
			name: "malformed page",
			handler: func(w http.ResponseWriter, r *http.Request) {
				fmt.Fprint(w, `{"items": not json`)
			},
			wantErr: ErrMalformed,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			srv := httptest.NewServer(tc.handler)
			defer srv.Close()

			client := NewHTTPClient(testConfig(srv.URL), discardLogger())
			messages, err := client.FetchAll(context.Background())
			if !errors.Is(err, tc.wantErr) {
				t.Fatalf("expected error %v, got %v", tc.wantErr, err)
			}
			if messages != nil {
				t.Fatalf("expected no partial results on failure, got %d messages", len(messages))
			}
		})
	}
}

func TestFetchAllSkipsMalformedRecords(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		skip, _ := strconv.Atoi(r.URL.Query().Get("skip"))
		if skip > 0 {
			fmt.Fprint(w, `{"items": [], "total": 3}`)
			return
		}
		fmt.Fprint(w, `{"items": [
			{"id": 1, "user_id": "u1", "user_name": "Layla", "timestamp": "2025-01-01T10:00:00Z", "message": "hello"},
			{"id": 2, "user_name": "NoID", "timestamp": "2025-01-01T10:00:00Z", "message": "missing user id"},
			{"id": 3, "user_id": "u3", "user_name": "BadTime", "timestamp": "not-a-time", "message": "bad timestamp"}
		], "total": 3}`)
	}))
	defer srv.Close()

	cfg := testConfig(srv.URL)
	cfg.PageSize = 10
	client := NewHTTPClient(cfg, discardLogger())
	messages, err := client.FetchAll(context.Background())
	if err != nil {
		t.Fatalf("FetchAll returned error: %v", err)
	}
	if len(messages) != 1 {
		t.Fatalf("expected 1 valid message, got %d", len(messages))
	}
	if messages[0].ID != "1" {
		t.Errorf("expected message id 1, got %s", messages[0].ID)
	}
}

func TestValidateRecord(t *testing.T) {
	t.Parallel()

	null := (*string)(nil)
	text := "hi"

	tests := []struct {
		name   string
		input  apiMessage
		wantOK bool
		check  func(t *testing.T, m Message)
	}{
		{
			name:   "numeric id",
			input:  apiMessage{ID: float64(42), UserID: "u1", UserName: "A", Timestamp: "2025-01-01T10:00:00Z", Message: &text},
			wantOK: true,
			check: func(t *testing.T, m Message) {
				if m.ID != "42" {
					t.Errorf("expected id 42, got %s", m.ID)
				}
			},
		},
		{
			name:   "null message text",
			input:  apiMessage{ID: "a", UserID: "u1", UserName: "A", Timestamp: "2025-01-01T10:00:00Z", Message: null},
			wantOK: true,
			check: func(t *testing.T, m Message) {
				if m.Text != "" {
					t.Errorf("expected empty text, got %q", m.Text)
				}
			},
		},
		{
			name:   "missing user name falls back",
			input:  apiMessage{ID: "a", UserID: "u1", Timestamp: "2025-01-01T10:00:00Z", Message: &text},
			wantOK: true,
			check: func(t *testing.T, m Message) {
				if m.UserName != "Unknown" {
					t.Errorf("expected Unknown user name, got %q", m.UserName)
				}
			},
		},
		{
			name:   "timestamp without zone",
			input:  apiMessage{ID: "a", UserID: "u1", UserName: "A", Timestamp: "2025-01-01T10:00:00", Message: &text},
			wantOK: true,
		},
		{
			name:   "missing id",
			input:  apiMessage{UserID: "u1", UserName: "A", Timestamp: "2025-01-01T10:00:00Z", Message: &text},
			wantOK: false,
		},
		{
			name:   "missing timestamp",
			input:  apiMessage{ID: "a", UserID: "u1", UserName: "A", Message: &text},
			wantOK: false,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			m, ok := tc.input.validate()
			if ok != tc.wantOK {
				t.Fatalf("validate() ok = %v, want %v", ok, tc.wantOK)
			}
			if ok && tc.check != nil {
				tc.check(t, m)
			}
		})
	}
}
