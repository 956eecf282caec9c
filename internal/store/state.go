package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// SetState upserts a checkpoint value.
func (db *DB) SetState(ctx context.Context, key, value string) error {
	_, err := db.ExecContext(ctx, `
		INSERT INTO sync_state (key, value, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		key, value, db.now().UnixMilli())
	if err != nil {
		return fmt.Errorf("set state %q: %w", key, err)
	}
	return nil
}

// GetState returns a checkpoint value, or "" with ok=false when unset.
func (db *DB) GetState(ctx context.Context, key string) (value string, ok bool, err error) {
	err = db.QueryRowContext(ctx, `SELECT value FROM sync_state WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("get state %q: %w", key, err)
	}
	return value, true, nil
}

// ImportRecords upserts patients and appointments by ID in one transaction.
func (db *DB) ImportRecords(ctx context.Context, patients []Patient, appointments []Appointment) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	for i := range patients {
		if err := upsertPatient(ctx, tx, &patients[i]); err != nil {
			return fmt.Errorf("import patient %d: %w", patients[i].ID, err)
		}
	}
	for i := range appointments {
		if err := upsertAppointment(ctx, tx, &appointments[i]); err != nil {
			return fmt.Errorf("import appointment %d: %w", appointments[i].ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit import: %w", err)
	}
	return nil
}
