package sync

import (
	"context"
	"fmt"
	"time"
)

// LastPushKey records when the dashboard was last delivered to the doctor.
const LastPushKey = "dashboard.last_push"

// StateStore is the sync_state table.
type StateStore interface {
	SetState(ctx context.Context, key, value string) error
	GetState(ctx context.Context, key string) (string, bool, error)
}

// Checkpoints stores named timestamps in the state table.
type Checkpoints struct {
	db StateStore
}

// NewCheckpoints creates a checkpoint store.
func NewCheckpoints(db StateStore) *Checkpoints {
	return &Checkpoints{db: db}
}

// Mark stores t under key.
func (c *Checkpoints) Mark(ctx context.Context, key string, t time.Time) error {
	if err := c.db.SetState(ctx, key, t.UTC().Format(time.RFC3339Nano)); err != nil {
		return fmt.Errorf("mark %s: %w", key, err)
	}
	return nil
}

// Last returns the time stored under key, with ok=false if it was never marked.
func (c *Checkpoints) Last(ctx context.Context, key string) (t time.Time, ok bool, err error) {
	v, ok, err := c.db.GetState(ctx, key)
	if err != nil || !ok {
		return time.Time{}, false, err
	}
	t, err = time.Parse(time.RFC3339Nano, v)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("parse %s: %w", key, err)
	}
	return t, true, nil
}
