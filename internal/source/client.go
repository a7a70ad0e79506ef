// Package source fetches member messages from the upstream paginated API and
// validates them at the boundary.
package source

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/edgard/memberqa/internal/config"
)

// Failure kinds surfaced by the adapter. Callers distinguish them with
// errors.Is; rate limiting is recoverable and retried internally before
// being surfaced.
var (
	ErrUnavailable = errors.New("message source unavailable")
	ErrRateLimited = errors.New("message source rate limited")
	ErrMalformed   = errors.New("message source returned malformed page")
)

// Client fetches the complete upstream message listing. Implementations must
// never return partial results as success.
type Client interface {
	FetchAll(ctx context.Context) ([]Message, error)
}

// HTTPClient pages through the upstream listing endpoint using skip/limit
// query parameters until an empty page or the reported total is reached.
type HTTPClient struct {
	baseURL        string
	pageSize       int
	maxRetries     int
	retryBaseDelay time.Duration
	httpClient     *http.Client
	log            *slog.Logger
}

// NewHTTPClient creates an adapter for the configured listing endpoint.
func NewHTTPClient(cfg config.SourceConfig, log *slog.Logger) *HTTPClient {
	return &HTTPClient{
		baseURL:        cfg.BaseURL,
		pageSize:       cfg.PageSize,
		maxRetries:     cfg.MaxRetries,
		retryBaseDelay: cfg.RetryBaseDelay,
		httpClient:     &http.Client{Timeout: cfg.RequestTimeout},
		log:            log.With("component", "source"),
	}
}

// page mirrors the upstream listing response shape.
type page struct {
	Items []apiMessage `json:"items"`
	Total int          `json:"total"`
}

// apiMessage tolerates the loosely-typed upstream record shape: identifiers
// may arrive as strings or numbers and the message text may be null.
type apiMessage struct {
	ID        any     `json:"id"`
	UserID    any     `json:"user_id"`
	UserName  string  `json:"user_name"`
	Timestamp string  `json:"timestamp"`
	Message   *string `json:"message"`
}

// FetchAll retrieves every message from the upstream listing. On any page
// failure the whole fetch fails; callers decide whether stale data is an
// acceptable substitute. Malformed records are counted and skipped.
func (c *HTTPClient) FetchAll(ctx context.Context) ([]Message, error) {
	var all []Message
	skip := 0
	seen := 0
	skipped := 0

	for {
		p, err := c.fetchPage(ctx, skip)
		if err != nil {
			return nil, err
		}

		if len(p.Items) == 0 {
			break
		}

		for _, item := range p.Items {
			msg, ok := item.validate()
			if !ok {
				skipped++
				continue
			}
			all = append(all, msg)
		}

		seen += len(p.Items)
		if p.Total > 0 && seen >= p.Total {
			break
		}
		skip += c.pageSize
	}

	if skipped > 0 {
		c.log.WarnContext(ctx, "Skipped malformed message records", "skipped", skipped, "fetched", len(all))
	}
	c.log.DebugContext(ctx, "Fetched all messages", "count", len(all), "pages_scanned", seen)

	return all, nil
}

func (c *HTTPClient) fetchPage(ctx context.Context, skip int) (*page, error) {
	u, err := url.Parse(c.baseURL)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid base URL %q: %v", ErrUnavailable, c.baseURL, err)
	}
	q := u.Query()
	q.Set("skip", strconv.Itoa(skip))
	q.Set("limit", strconv.Itoa(c.pageSize))
	u.RawQuery = q.Encode()

	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			delay := c.retryBaseDelay << (attempt - 1)
			c.log.InfoContext(ctx, "Retrying page fetch after rate limit", "skip", skip, "attempt", attempt, "delay", delay)
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return nil, fmt.Errorf("%w: %v", ErrUnavailable, ctx.Err())
			}
		}

		p, err := c.doRequest(ctx, u.String())
		if err == nil {
			return p, nil
		}
		lastErr = err

		// Only rate limiting is worth retrying here; everything else is
		// either permanent or already retried at a higher level.
		if !errors.Is(err, ErrRateLimited) {
			return nil, err
		}
	}

	c.log.ErrorContext(ctx, "Page fetch exhausted rate-limit retries", "skip", skip, "retries", c.maxRetries, "error", lastErr)
	return nil, lastErr
}

func (c *HTTPClient) doRequest(ctx context.Context, pageURL string) (*page, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to create request: %v", ErrUnavailable, err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer func() {
		if closeErr := resp.Body.Close(); closeErr != nil {
			c.log.WarnContext(ctx, "Failed to close response body", "error", closeErr)
		}
	}()

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 1024))
		return nil, fmt.Errorf("%w: status %d from %s", ErrRateLimited, resp.StatusCode, pageURL)
	case resp.StatusCode != http.StatusOK:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, fmt.Errorf("%w: unexpected status %d from %s: %s", ErrUnavailable, resp.StatusCode, pageURL, string(body))
	}

	var p page
	if err := json.NewDecoder(resp.Body).Decode(&p); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	return &p, nil
}

// timestampFormats lists the layouts the upstream has been observed to emit.
var timestampFormats = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05.999999",
	"2006-01-02T15:04:05",
}

// validate converts a raw upstream record into a Message. Records missing an
// identity or a parseable timestamp are rejected rather than propagated.
func (m apiMessage) validate() (Message, bool) {
	id := normalizeID(m.ID)
	userID := normalizeID(m.UserID)
	if id == "" || userID == "" {
		return Message{}, false
	}

	ts, ok := parseTimestamp(m.Timestamp)
	if !ok {
		return Message{}, false
	}

	userName := m.UserName
	if userName == "" {
		userName = "Unknown"
	}

	text := ""
	if m.Message != nil {
		text = *m.Message
	}

	return Message{
		ID:        id,
		UserID:    userID,
		UserName:  userName,
		Timestamp: ts.UTC(),
		Text:      text,
	}, true
}

func normalizeID(v any) string {
	switch id := v.(type) {
	case string:
		return id
	case float64:
		return strconv.FormatInt(int64(id), 10)
	case json.Number:
		return id.String()
	default:
		return ""
	}
}

func parseTimestamp(s string) (time.Time, bool) {
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range timestampFormats {
		if ts, err := time.Parse(layout, s); err == nil {
			return ts, true
		}
	}
	return time.Time{}, false
}
