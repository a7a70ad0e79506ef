// Package cache holds the full deduplicated message set in memory with a TTL,
// coordinating single-flight refreshes against the upstream source.
package cache

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/edgard/memberqa/internal/config"
	"github.com/edgard/memberqa/internal/source"
)

// State describes the cache lifecycle for health reporting.
type State string

const (
	StateEmpty      State = "empty"
	StateRefreshing State = "refreshing"
	StateFresh      State = "fresh"
	StateStale      State = "stale"
)

// Snapshotter persists the last good message set so a restart can serve
// stale data when the upstream is down at startup.
type Snapshotter interface {
	ReplaceMessages(ctx context.Context, messages []source.Message) error
	LoadMessages(ctx context.Context) ([]source.Message, error)
}

// Cache is the only mutable shared resource between concurrent questions.
// Readers never observe a half-updated message set: refreshes build a new
// set and swap it wholesale under the mutex.
type Cache struct {
	src             source.Client
	snapshot        Snapshotter // optional
	ttl             time.Duration
	failureCooldown time.Duration
	refreshTimeout  time.Duration
	log             *slog.Logger

	group singleflight.Group

	mu          sync.Mutex
	set         *source.MessageSet
	fetchedAt   time.Time
	refreshing  bool
	lastFailure time.Time
}

// New creates a cache over the given source. snapshot may be nil to disable
// the warm-start fallback.
func New(src source.Client, snapshot Snapshotter, cfg config.CacheConfig, log *slog.Logger) *Cache {
	return &Cache{
		src:             src,
		snapshot:        snapshot,
		ttl:             cfg.TTL,
		failureCooldown: cfg.FailureCooldown,
		refreshTimeout:  cfg.RefreshTimeout,
		log:             log.With("component", "cache"),
	}
}

// Get returns the cached message set, fetching it when empty. Fresh data is
// returned without touching the network. Stale data is served immediately
// while at most one background refresh runs (stale-while-revalidate); a
// failed refresh keeps the old data and is not retried until the cool-down
// elapses. Only a first-ever fetch with no snapshot to fall back on
// propagates source errors.
func (c *Cache) Get(ctx context.Context) (*source.MessageSet, error) {
	now := time.Now()

	c.mu.Lock()
	if c.set != nil {
		set := c.set
		age := now.Sub(c.fetchedAt)
		if age < c.ttl {
			c.mu.Unlock()
			return set, nil
		}

		// The cool-down gates retries after a failure only; a refresh after a
		// successful fetch is governed by the TTL alone.
		if !c.refreshing && now.Sub(c.lastFailure) >= c.failureCooldown {
			c.refreshing = true
			go func() {
				// Detached from the caller: the refresh populates the shared
				// cache even if the asking request is abandoned.
				if _, err, _ := c.group.Do("refresh", c.refresh); err != nil {
					c.log.Warn("Background refresh failed, serving stale data", "error", err)
				}
			}()
		}
		c.mu.Unlock()
		return set, nil
	}
	c.mu.Unlock()

	// Empty cache: block on the (shared) initial fetch.
	v, err, _ := c.group.Do("refresh", c.refresh)
	if err == nil {
		return v.(*source.MessageSet), nil
	}

	if set := c.loadSnapshot(ctx); set != nil {
		return set, nil
	}

	return nil, fmt.Errorf("initial message fetch failed: %w", err)
}

// refresh performs one full fetch and swaps the message set in wholesale.
// It runs under singleflight so at most one adapter call is in flight.
func (c *Cache) refresh() (any, error) {
	c.mu.Lock()
	c.refreshing = true
	c.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), c.refreshTimeout)
	defer cancel()

	messages, err := c.src.FetchAll(ctx)

	c.mu.Lock()
	c.refreshing = false
	if err != nil {
		c.lastFailure = time.Now()
		c.mu.Unlock()
		return nil, err
	}

	deduped := Deduplicate(messages)
	set := source.NewMessageSet(deduped)
	c.set = set
	c.fetchedAt = time.Now()
	c.mu.Unlock()

	c.log.Info("Message cache refreshed", "messages", set.Len(), "dropped_duplicates", len(messages)-len(deduped))

	c.persistSnapshot(deduped)
	return set, nil
}

// loadSnapshot installs the last persisted message set as already-stale data,
// so the next Get still attempts a refresh.
func (c *Cache) loadSnapshot(ctx context.Context) *source.MessageSet {
	if c.snapshot == nil {
		return nil
	}

	messages, err := c.snapshot.LoadMessages(ctx)
	if err != nil {
		c.log.Warn("Failed to load message snapshot", "error", err)
		return nil
	}
	if len(messages) == 0 {
		return nil
	}

	set := source.NewMessageSet(Deduplicate(messages))

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.set == nil {
		c.set = set
		c.fetchedAt = time.Now().Add(-c.ttl)
	}
	c.log.Warn("Serving persisted message snapshot, upstream unavailable", "messages", set.Len())
	return c.set
}

func (c *Cache) persistSnapshot(messages []source.Message) {
	if c.snapshot == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := c.snapshot.ReplaceMessages(ctx, messages); err != nil {
		c.log.Warn("Failed to persist message snapshot", "error", err)
	}
}

// State reports the cache state and the last successful fetch time for
// liveness probing.
func (c *Cache) State() (State, time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch {
	case c.set == nil && c.refreshing:
		return StateRefreshing, time.Time{}
	case c.set == nil:
		return StateEmpty, time.Time{}
	case c.refreshing:
		return StateRefreshing, c.fetchedAt
	case time.Since(c.fetchedAt) < c.ttl:
		return StateFresh, c.fetchedAt
	default:
		return StateStale, c.fetchedAt
	}
}

// Deduplicate drops messages repeating an already-seen
// (user_id, text, timestamp) triple, keeping the first occurrence.
func Deduplicate(messages []source.Message) []source.Message {
	if len(messages) <= 1 {
		return messages
	}

	type key struct {
		userID string
		text   string
		ts     time.Time
	}

	seen := make(map[key]struct{}, len(messages))
	result := make([]source.Message, 0, len(messages))
	for _, m := range messages {
		k := key{userID: m.UserID, text: m.Text, ts: m.Timestamp}
		if _, dup := seen[k]; dup {
			continue
		}
		seen[k] = struct{}{}
		result = append(result, m)
	}

	return result
}
