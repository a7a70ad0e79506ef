package database

import "time"

// MessageRow is the persisted form of a fetched member message. The snapshot
// table mirrors the upstream record identity so a reload reproduces the same
// logical message set.
type MessageRow struct {
	ID        string    `db:"id"`
	UserID    string    `db:"user_id"`
	UserName  string    `db:"user_name"`
	Timestamp time.Time `db:"timestamp"`
	Text      string    `db:"text"`
	CreatedAt time.Time `db:"created_at"`
}
