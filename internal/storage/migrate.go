package storage

import (
	"context"
	"database/sql"
	"fmt"
)

const memorySchema = `
CREATE TABLE IF NOT EXISTS memories (
	id TEXT PRIMARY KEY,
	thread_id TEXT NOT NULL,
	text TEXT NOT NULL,
	embedding BLOB,
	created_at TIMESTAMP NOT NULL,
	confidence REAL NOT NULL,
	trust REAL NOT NULL,
	source TEXT NOT NULL,
	sse_mode TEXT NOT NULL,
	context_json TEXT,
	deprecated INTEGER NOT NULL DEFAULT 0,
	deprecated_reason TEXT,
	tags TEXT,
	temporal_status TEXT NOT NULL,
	domains TEXT
);

CREATE INDEX IF NOT EXISTS idx_memories_thread ON memories(thread_id);
CREATE INDEX IF NOT EXISTS idx_memories_source ON memories(thread_id, source, deprecated);

CREATE TABLE IF NOT EXISTS trust_log (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	memory_id TEXT NOT NULL,
	old_trust REAL NOT NULL,
	new_trust REAL NOT NULL,
	reason TEXT NOT NULL,
	timestamp TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_trust_log_memory ON trust_log(memory_id);

CREATE TABLE IF NOT EXISTS belief_speech (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	kind TEXT NOT NULL,
	query TEXT NOT NULL,
	response TEXT NOT NULL,
	memory_ids TEXT,
	avg_trust REAL,
	source TEXT,
	created_at TIMESTAMP NOT NULL
);
`

const ledgerSchema = `
CREATE TABLE IF NOT EXISTS contradictions (
	ledger_id TEXT PRIMARY KEY,
	thread_id TEXT NOT NULL,
	detected_at TIMESTAMP NOT NULL,
	old_memory_id TEXT NOT NULL,
	new_memory_id TEXT NOT NULL,
	drift_mean REAL NOT NULL,
	confidence_delta REAL NOT NULL,
	status TEXT NOT NULL,
	contradiction_type TEXT NOT NULL,
	affects_slots TEXT,
	query TEXT,
	summary TEXT,
	resolution_timestamp TIMESTAMP,
	resolution_method TEXT,
	merged_memory_id TEXT,
	lifecycle_state TEXT NOT NULL,
	confirmation_count INTEGER NOT NULL DEFAULT 0,
	disclosure_count INTEGER NOT NULL DEFAULT 0,
	settled_at TIMESTAMP,
	archived_at TIMESTAMP,
	metadata_json TEXT
);

CREATE INDEX IF NOT EXISTS idx_contradictions_thread_status ON contradictions(thread_id, status);
CREATE INDEX IF NOT EXISTS idx_contradictions_old_mem ON contradictions(old_memory_id);
CREATE INDEX IF NOT EXISTS idx_contradictions_new_mem ON contradictions(new_memory_id);

CREATE TABLE IF NOT EXISTS reflection_queue (
	queue_id TEXT PRIMARY KEY,
	ledger_id TEXT NOT NULL,
	volatility REAL NOT NULL,
	priority TEXT NOT NULL,
	context_json TEXT,
	enqueued_at TIMESTAMP NOT NULL,
	processed INTEGER NOT NULL DEFAULT 0
);

CREATE INDEX IF NOT EXISTS idx_reflection_queue_processed ON reflection_queue(processed, priority, volatility);

CREATE TABLE IF NOT EXISTS contradiction_worklog (
	ledger_id TEXT PRIMARY KEY,
	first_asked_at TIMESTAMP,
	last_asked_at TIMESTAMP,
	ask_count INTEGER NOT NULL DEFAULT 0,
	last_user_answer TEXT,
	last_user_answer_at TIMESTAMP
);

CREATE TABLE IF NOT EXISTS conflict_resolutions (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	ledger_id TEXT NOT NULL,
	method TEXT NOT NULL,
	merged_memory_id TEXT,
	new_status TEXT NOT NULL,
	resolved_at TIMESTAMP NOT NULL
);

CREATE TABLE IF NOT EXISTS contradiction_lifecycle (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	ledger_id TEXT NOT NULL,
	from_state TEXT NOT NULL,
	to_state TEXT NOT NULL,
	transitioned_at TIMESTAMP NOT NULL
);
`

// MigrateMemoryStore creates the memory-store tables if they do not already exist.
func MigrateMemoryStore(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, memorySchema); err != nil {
		return fmt.Errorf("storage: migrate memory store: %w", err)
	}
	return nil
}

// MigrateLedgerStore creates the ledger-store tables if they do not already exist.
func MigrateLedgerStore(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, ledgerSchema); err != nil {
		return fmt.Errorf("storage: migrate ledger store: %w", err)
	}
	return nil
}
