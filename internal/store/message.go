package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// DuplicateWindow is how long an identical (sender, message) pair is treated
// as a repeat of the most recent one.
const DuplicateWindow = 5 * time.Second

// AddMessage stores a message unless the same sender sent the same text within
// DuplicateWindow of the most recent identical row, in which case that row's ID
// is returned with Duplicate set.
func (db *DB) AddMessage(ctx context.Context, m NewMessage) (MessageInsert, error) {
	now := db.now()

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return MessageInsert{}, fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var lastID, lastAt int64
	err = tx.QueryRowContext(ctx, `
		SELECT id, created_at FROM messages
		WHERE sender = ? AND message = ?
		ORDER BY created_at DESC, id DESC LIMIT 1`, m.Sender, m.Message).Scan(&lastID, &lastAt)
	switch {
	case errors.Is(err, sql.ErrNoRows):
	case err != nil:
		return MessageInsert{}, fmt.Errorf("find duplicate: %w", err)
	default:
		if now.Sub(time.UnixMilli(lastAt)) < DuplicateWindow {
			return MessageInsert{ID: lastID, Duplicate: true}, nil
		}
	}

	res, err := tx.ExecContext(ctx, `
		INSERT INTO messages (sender, message, created_at) VALUES (?, ?, ?)`,
		m.Sender, m.Message, now.UnixMilli())
	if err != nil {
		return MessageInsert{}, fmt.Errorf("insert message: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return MessageInsert{}, err
	}
	if err := tx.Commit(); err != nil {
		return MessageInsert{}, fmt.Errorf("commit message: %w", err)
	}
	return MessageInsert{ID: id}, nil
}

// ListMessages returns the most recent messages, oldest first.
func (db *DB) ListMessages(ctx context.Context, limit int) ([]Message, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := db.QueryContext(ctx, `
		SELECT id, sender, message, created_at FROM (
			SELECT id, sender, message, created_at FROM messages
			ORDER BY created_at DESC, id DESC LIMIT ?
		) ORDER BY created_at ASC, id ASC`, limit)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var msgs []Message
	for rows.Next() {
		var m Message
		if err := rows.Scan(&m.ID, &m.Sender, &m.Message, &m.Timestamp); err != nil {
			return nil, err
		}
		msgs = append(msgs, m)
	}
	return msgs, rows.Err()
}
