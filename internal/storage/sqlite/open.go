// Package sqlite implements catalog.Store on an embedded SQLite database using the
// pure-Go modernc driver.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite" // registers the "sqlite" driver
)

// MemoryPath opens a private in-memory database.
const MemoryPath = ":memory:"

const (
	defaultBusyTimeout = 10 * time.Second
	maxBusyRetries     = 3
)

const schema = `
CREATE TABLE IF NOT EXISTS catalog_items (
	id           INTEGER PRIMARY KEY,
	name         TEXT    NOT NULL DEFAULT '',
	status       TEXT    NOT NULL DEFAULT 'pending',
	last_checked TEXT,
	filtered     INTEGER NOT NULL DEFAULT 0,
	CHECK (status IN ('pending', 'checked', 'game', 'failed', 'not_game'))
);

CREATE TABLE IF NOT EXISTS enriched_records (
	id     INTEGER PRIMARY KEY REFERENCES catalog_items(id),
	name   TEXT NOT NULL DEFAULT '',
	type   TEXT NOT NULL,
	detail TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS crawl_state (
	key        TEXT PRIMARY KEY,
	value      TEXT NOT NULL,
	updated_at TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_catalog_items_status ON catalog_items(status);
CREATE INDEX IF NOT EXISTS idx_catalog_items_last_checked ON catalog_items(last_checked);
`

// Config controls how the database file is opened.
type Config struct {
	Path        string
	BusyTimeout time.Duration
}

// Open opens (creating if needed) the database at cfg.Path and migrates the
// schema.
func Open(ctx context.Context, cfg Config) (*Store, error) {
	path := cfg.Path
	if path == "" {
		return nil, fmt.Errorf("database.path is required")
	}
	busy := cfg.BusyTimeout
	if busy <= 0 {
		busy = defaultBusyTimeout
	}
	if path != MemoryPath {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("create database dir: %w", err)
		}
	}
	db, err := sql.Open("sqlite", dsn(path, busy))
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if path == MemoryPath {
		// Each connection to :memory: is a separate database.
		db.SetMaxOpenConns(1)
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrate schema: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}
	return &Store{db: db}, nil
}

// dsn carries the pragmas in the connection string so the driver applies them
// to every pooled connection, not only the first one.
func dsn(path string, busy time.Duration) string {
	return fmt.Sprintf("file:%s?_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)"+
		"&_pragma=busy_timeout(%d)&_pragma=synchronous(NORMAL)", path, busy.Milliseconds())
}

func isBusy(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "SQLITE_BUSY") ||
		strings.Contains(msg, "database is locked") ||
		strings.Contains(msg, "database table is locked")
}

// runTx executes fn inside a transaction, retrying when SQLite reports BUSY.
func (s *Store) runTx(ctx context.Context, fn func(*sql.Tx) error) error {
	var err error
	for i := range maxBusyRetries {
		err = s.runTxOnce(ctx, fn)
		if !isBusy(err) {
			return err
		}
		timer := time.NewTimer(time.Duration(100*(i+1)) * time.Millisecond)
		select {
		case <-ctx.Done():
			timer.Stop()
			return fmt.Errorf("retry transaction: %w", ctx.Err())
		case <-timer.C:
		}
	}
	return err
}

func (s *Store) runTxOnce(ctx context.Context, fn func(*sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}
