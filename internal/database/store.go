package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/edgard/memberqa/internal/source"
)

// Store defines the snapshot persistence operations. Methods accept
// context.Context for cancellation and timeouts.
type Store interface {
	// Ping checks the database connection.
	Ping(ctx context.Context) error

	// ReplaceMessages replaces the persisted snapshot wholesale in a single
	// transaction, matching the cache's copy-on-refresh semantics.
	ReplaceMessages(ctx context.Context, messages []source.Message) error

	// LoadMessages returns the persisted snapshot ordered by timestamp.
	LoadMessages(ctx context.Context) ([]source.Message, error)

	// RunMaintenance performs database maintenance tasks like VACUUM.
	RunMaintenance(ctx context.Context) error
}

// sqlxStore implements Store using sqlx.
type sqlxStore struct {
	db     *sqlx.DB
	logger *slog.Logger
}

// NewStore creates a Store backed by sqlx. It requires a connected sqlx.DB
// instance and a logger.
func NewStore(db *sqlx.DB, logger *slog.Logger) Store {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &sqlxStore{
		db:     db,
		logger: logger.With("component", "store"),
	}
}

func (s *sqlxStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *sqlxStore) ReplaceMessages(ctx context.Context, messages []source.Message) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin snapshot transaction: %w", err)
	}
	defer func() {
		if rollbackErr := tx.Rollback(); rollbackErr != nil && !errors.Is(rollbackErr, sql.ErrTxDone) {
			s.logger.WarnContext(ctx, "Error rolling back snapshot transaction", "error", rollbackErr)
		}
	}()

	if _, err := tx.ExecContext(ctx, `DELETE FROM messages`); err != nil {
		return fmt.Errorf("failed to clear previous snapshot: %w", err)
	}

	now := time.Now().UTC()
	query := `
        INSERT INTO messages (id, user_id, user_name, timestamp, text, created_at)
        VALUES (:id, :user_id, :user_name, :timestamp, :text, :created_at);
    `
	for _, m := range messages {
		row := MessageRow{
			ID:        m.ID,
			UserID:    m.UserID,
			UserName:  m.UserName,
			Timestamp: m.Timestamp,
			Text:      m.Text,
			CreatedAt: now,
		}
		if _, err := tx.NamedExecContext(ctx, query, row); err != nil {
			return fmt.Errorf("failed to insert snapshot message %s: %w", m.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit snapshot: %w", err)
	}

	s.logger.DebugContext(ctx, "Snapshot replaced", "messages", len(messages))
	return nil
}

func (s *sqlxStore) LoadMessages(ctx context.Context) ([]source.Message, error) {
	var rows []MessageRow
	query := `SELECT id, user_id, user_name, timestamp, text, created_at FROM messages ORDER BY timestamp ASC`
	if err := s.db.SelectContext(ctx, &rows, query); err != nil {
		return nil, fmt.Errorf("failed to load snapshot messages: %w", err)
	}

	messages := make([]source.Message, 0, len(rows))
	for _, r := range rows {
		messages = append(messages, source.Message{
			ID:        r.ID,
			UserID:    r.UserID,
			UserName:  r.UserName,
			Timestamp: r.Timestamp.UTC(),
			Text:      r.Text,
		})
	}

	s.logger.DebugContext(ctx, "Snapshot loaded", "messages", len(messages))
	return messages, nil
}

func (s *sqlxStore) RunMaintenance(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `VACUUM`); err != nil {
		return fmt.Errorf("failed to vacuum database: %w", err)
	}
	s.logger.InfoContext(ctx, "Database maintenance completed")
	return nil
}
