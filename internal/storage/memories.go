package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/coherent-ai/crt/internal/model"
)

// MemoryRepo is the durable backing for one thread's MemoryStore: the
// memories, trust_log and belief_speech tables. It owns its data
// exclusively — callers go through these methods, never raw SQL.
type MemoryRepo struct {
	db *sql.DB
}

// NewMemoryRepo wraps an already-open, already-migrated sqlite handle.
func NewMemoryRepo(db *sql.DB) *MemoryRepo {
	return &MemoryRepo{db: db}
}

// Insert persists a new MemoryItem. memory_id must not already exist.
func (r *MemoryRepo) Insert(ctx context.Context, m model.MemoryItem) error {
	if strings.TrimSpace(m.Text) == "" {
		return fmt.Errorf("storage: insert memory: %w", ErrValidation)
	}
	if m.Confidence < 0 || m.Confidence > 1 || m.Trust < 0 || m.Trust > 1 {
		return fmt.Errorf("storage: insert memory: confidence/trust out of range: %w", ErrValidation)
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO memories (id, thread_id, text, embedding, created_at, confidence, trust, source, sse_mode,
			context_json, deprecated, deprecated_reason, tags, temporal_status, domains)
		VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		string(m.ID), string(m.ThreadID), m.Text, EncodeFloat32s(m.Embedding), m.CreatedAt,
		m.Confidence, m.Trust, string(m.Source), string(m.SSEMode),
		encodeJSON(m.Context), boolToInt(m.Deprecated), m.DeprecatedReason,
		strings.Join(m.Tags, ","), string(m.TemporalStatus), strings.Join(m.Domains, ","))
	if err != nil {
		return fmt.Errorf("storage: insert memory: %w", err)
	}
	return nil
}

// GetByID loads a single memory. Returns ErrNotFound if absent.
func (r *MemoryRepo) GetByID(ctx context.Context, id model.MemoryID) (model.MemoryItem, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, thread_id, text, embedding, created_at, confidence, trust, source, sse_mode,
			context_json, deprecated, deprecated_reason, tags, temporal_status, domains
		FROM memories WHERE id = ?`, string(id))
	m, err := scanMemory(row.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return model.MemoryItem{}, fmt.Errorf("storage: get memory %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return model.MemoryItem{}, fmt.Errorf("storage: get memory %s: %w", id, err)
	}
	return m, nil
}

// Exists reports whether id is present, without materializing the row.
func (r *MemoryRepo) Exists(ctx context.Context, id model.MemoryID) (bool, error) {
	var n int
	err := r.db.QueryRowContext(ctx, `SELECT 1 FROM memories WHERE id = ?`, string(id)).Scan(&n)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("storage: exists memory %s: %w", id, err)
	}
	return true, nil
}

// ListByThread returns every memory for a thread (including deprecated),
// ordered by creation time — the scan base retrieval ranks over.
func (r *MemoryRepo) ListByThread(ctx context.Context, threadID model.ThreadID) ([]model.MemoryItem, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, thread_id, text, embedding, created_at, confidence, trust, source, sse_mode,
			context_json, deprecated, deprecated_reason, tags, temporal_status, domains
		FROM memories WHERE thread_id = ? ORDER BY created_at ASC`, string(threadID))
	if err != nil {
		return nil, fmt.Errorf("storage: list memories: %w", err)
	}
	defer rows.Close()

	var out []model.MemoryItem
	for rows.Next() {
		m, err := scanMemory(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("storage: list memories: scan: %w", err)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// SetTrust updates trust for id and appends a TrustLogEntry in the same
// transaction. The memory's text/vector/source/timestamp are untouched.
func (r *MemoryRepo) SetTrust(ctx context.Context, id model.MemoryID, newTrust float32, reason string) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("storage: set trust: begin: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	var oldTrust float32
	if err := tx.QueryRowContext(ctx, `SELECT trust FROM memories WHERE id = ?`, string(id)).Scan(&oldTrust); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("storage: set trust %s: %w", id, ErrNotFound)
		}
		return fmt.Errorf("storage: set trust %s: %w", id, err)
	}

	if _, err := tx.ExecContext(ctx, `UPDATE memories SET trust = ? WHERE id = ?`, newTrust, string(id)); err != nil {
		return fmt.Errorf("storage: set trust %s: %w", id, err)
	}
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO trust_log (memory_id, old_trust, new_trust, reason, timestamp) VALUES (?,?,?,?,?)`,
		string(id), oldTrust, newTrust, reason, time.Now()); err != nil {
		return fmt.Errorf("storage: set trust %s: log: %w", id, err)
	}
	return tx.Commit()
}

// Deprecate marks a memory deprecated with a reason. It is retained, never deleted.
func (r *MemoryRepo) Deprecate(ctx context.Context, id model.MemoryID, reason string) error {
	res, err := r.db.ExecContext(ctx, `UPDATE memories SET deprecated = 1, deprecated_reason = ? WHERE id = ?`, reason, string(id))
	if err != nil {
		return fmt.Errorf("storage: deprecate %s: %w", id, err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return fmt.Errorf("storage: deprecate %s: %w", id, ErrNotFound)
	}
	return nil
}

// SetTags replaces the tag set for a memory (e.g. to add resolved_both_valid).
func (r *MemoryRepo) SetTags(ctx context.Context, id model.MemoryID, tags []string) error {
	res, err := r.db.ExecContext(ctx, `UPDATE memories SET tags = ? WHERE id = ?`, strings.Join(tags, ","), string(id))
	if err != nil {
		return fmt.Errorf("storage: set tags %s: %w", id, err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return fmt.Errorf("storage: set tags %s: %w", id, ErrNotFound)
	}
	return nil
}

// TrustHistory returns every TrustLogEntry for a memory, oldest first.
func (r *MemoryRepo) TrustHistory(ctx context.Context, id model.MemoryID) ([]model.TrustLogEntry, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT memory_id, old_trust, new_trust, reason, timestamp FROM trust_log
		WHERE memory_id = ? ORDER BY timestamp ASC`, string(id))
	if err != nil {
		return nil, fmt.Errorf("storage: trust history %s: %w", id, err)
	}
	defer rows.Close()

	var out []model.TrustLogEntry
	for rows.Next() {
		var e model.TrustLogEntry
		var memID string
		if err := rows.Scan(&memID, &e.OldTrust, &e.NewTrust, &e.Reason, &e.Timestamp); err != nil {
			return nil, fmt.Errorf("storage: trust history %s: scan: %w", id, err)
		}
		e.MemoryID = model.MemoryID(memID)
		out = append(out, e)
	}
	return out, rows.Err()
}

// RecordBeliefSpeech appends one belief/speech audit row. It never affects
// retrievable memories — it exists purely for the belief-to-speech ratio.
func (r *MemoryRepo) RecordBeliefSpeech(ctx context.Context, kind, query, response string, memoryIDs []model.MemoryID, avgTrust float32, source string) error {
	ids := make([]string, len(memoryIDs))
	for i, id := range memoryIDs {
		ids[i] = string(id)
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO belief_speech (kind, query, response, memory_ids, avg_trust, source, created_at)
		VALUES (?,?,?,?,?,?,?)`,
		kind, query, response, strings.Join(ids, ","), avgTrust, source, time.Now())
	if err != nil {
		return fmt.Errorf("storage: record %s: %w", kind, err)
	}
	return nil
}

// BeliefSpeechCounts returns the number of belief and speech rows recorded,
// the raw material for the belief-to-speech ratio reported by get_crt_status.
func (r *MemoryRepo) BeliefSpeechCounts(ctx context.Context) (beliefs, speeches int, err error) {
	err = r.db.QueryRowContext(ctx, `SELECT
		(SELECT COUNT(*) FROM belief_speech WHERE kind = 'belief'),
		(SELECT COUNT(*) FROM belief_speech WHERE kind = 'speech')`).Scan(&beliefs, &speeches)
	if err != nil {
		err = fmt.Errorf("storage: belief/speech counts: %w", err)
	}
	return
}

type scanFunc func(dest ...any) error

func scanMemory(scan scanFunc) (model.MemoryItem, error) {
	var m model.MemoryItem
	var id, threadID, source, sseMode, temporalStatus string
	var embedding []byte
	var contextJSON sql.NullString
	var deprecatedInt int
	var deprecatedReason sql.NullString
	var tags, domains sql.NullString

	err := scan(&id, &threadID, &m.Text, &embedding, &m.CreatedAt, &m.Confidence, &m.Trust,
		&source, &sseMode, &contextJSON, &deprecatedInt, &deprecatedReason, &tags, &temporalStatus, &domains)
	if err != nil {
		return model.MemoryItem{}, err
	}

	m.ID = model.MemoryID(id)
	m.ThreadID = model.ThreadID(threadID)
	m.Source = model.MemorySource(source)
	m.SSEMode = model.SSEMode(sseMode)
	m.TemporalStatus = model.TemporalStatus(temporalStatus)
	m.Deprecated = deprecatedInt != 0
	m.DeprecatedReason = deprecatedReason.String
	if tags.Valid && tags.String != "" {
		m.Tags = strings.Split(tags.String, ",")
	}
	if domains.Valid && domains.String != "" {
		m.Domains = strings.Split(domains.String, ",")
	}
	if contextJSON.Valid {
		m.Context = decodeJSON(contextJSON.String)
	}
	if len(embedding) > 0 {
		vec, err := DecodeFloat32s(embedding)
		if err != nil {
			return model.MemoryItem{}, err
		}
		m.Embedding = vec
	}
	return m, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
