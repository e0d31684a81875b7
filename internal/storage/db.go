package storage

import (
	"database/sql"
	"fmt"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// DSN builds a sqlite DSN for path with write-ahead journaling,
// synchronous=NORMAL and the given busy timeout, matching the engine's
// single-writer-per-store concurrency model (§5): one connection pool per
// durable file, readers non-blocking, writers retrying against brief locks.
func DSN(path string, busyTimeout time.Duration) string {
	return fmt.Sprintf("%s?_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)&_pragma=busy_timeout(%d)&_pragma=foreign_keys(ON)",
		path, busyTimeout.Milliseconds())
}

// Open opens (creating if absent) the sqlite file at path with the engine's
// standard pragmas and pool limits.
func Open(path string, busyTimeout time.Duration, maxOpenConns, maxIdleConns int) (*sql.DB, error) {
	db, err := sql.Open("sqlite", DSN(path, busyTimeout))
	if err != nil {
		return nil, fmt.Errorf("storage: open %s: %w", path, err)
	}
	db.SetMaxOpenConns(maxOpenConns)
	db.SetMaxIdleConns(maxIdleConns)
	db.SetConnMaxLifetime(2 * time.Hour)
	return db, nil
}

// MemoryStorePath returns the durable file path for a thread's memory store.
func MemoryStorePath(dataDir string, threadID string) string {
	return filepath.Join(dataDir, threadID+".memories.db")
}

// LedgerStorePath returns the durable file path for a thread's ledger store.
func LedgerStorePath(dataDir string, threadID string) string {
	return filepath.Join(dataDir, threadID+".ledger.db")
}
