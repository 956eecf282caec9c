package store

import (
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// DB wraps the SQLite connection for the workspace's frontdesk.db.
type DB struct {
	*sql.DB

	// Now is the clock used for timestamps and the message duplicate window.
	Now func() time.Time
}

// Open creates a new SQLite connection with WAL mode and recommended pragmas.
// Write transactions take the database lock up front so concurrent inserts serialize.
func Open(path string) (*DB, error) {
	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on&_txlock=immediate")
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping db: %w", err)
	}
	return Wrap(db), nil
}

// Wrap adapts an existing *sql.DB, using the wall clock.
func Wrap(db *sql.DB) *DB {
	return &DB{DB: db, Now: time.Now}
}

func (db *DB) now() time.Time {
	if db.Now == nil {
		return time.Now()
	}
	return db.Now()
}
