package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/coherent-ai/crt/internal/model"
)

// LedgerRepo is the durable backing for one thread's ContradictionLedger:
// contradictions, reflection_queue, contradiction_worklog,
// conflict_resolutions and contradiction_lifecycle. Entries are append-only;
// only status, resolution_*, lifecycle_* and metadata ever mutate.
type LedgerRepo struct {
	db          *sql.DB
	memories    *MemoryRepo // for DanglingReference checks against the sibling memory store
}

// NewLedgerRepo wraps an already-open, already-migrated ledger sqlite handle.
// memories is the sibling thread's MemoryRepo, used only to validate that
// referenced memory ids exist before recording a contradiction.
func NewLedgerRepo(db *sql.DB, memories *MemoryRepo) *LedgerRepo {
	return &LedgerRepo{db: db, memories: memories}
}

// Insert records a brand-new contradiction. Aborts with ErrDanglingReference
// if either referenced memory id is missing.
func (r *LedgerRepo) Insert(ctx context.Context, e model.ContradictionEntry) error {
	if r.memories != nil {
		for _, id := range []model.MemoryID{e.OldMemoryID, e.NewMemoryID} {
			ok, err := r.memories.Exists(ctx, id)
			if err != nil {
				return fmt.Errorf("storage: record contradiction: %w", err)
			}
			if !ok {
				return fmt.Errorf("storage: record contradiction: memory %s: %w", id, ErrDanglingReference)
			}
		}
	}

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO contradictions (ledger_id, thread_id, detected_at, old_memory_id, new_memory_id,
			drift_mean, confidence_delta, status, contradiction_type, affects_slots, query, summary,
			resolution_timestamp, resolution_method, merged_memory_id, lifecycle_state,
			confirmation_count, disclosure_count, settled_at, archived_at, metadata_json)
		VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		string(e.LedgerID), string(e.ThreadID), e.DetectedAt, string(e.OldMemoryID), string(e.NewMemoryID),
		e.DriftMean, e.ConfidenceDelta, string(e.Status), string(e.ContradictionType), e.AffectsSlots,
		e.Query, e.Summary, nullTime(e.ResolutionTimestamp), string(e.ResolutionMethod), string(e.MergedMemoryID),
		string(e.LifecycleState), e.ConfirmationCount, e.DisclosureCount, nullTime(e.SettledAt), nullTime(e.ArchivedAt),
		encodeJSON(e.Metadata))
	if err != nil {
		return fmt.Errorf("storage: record contradiction: %w", err)
	}
	return nil
}

// GetByID loads one ledger entry. Returns ErrNotFound if absent.
func (r *LedgerRepo) GetByID(ctx context.Context, id model.LedgerID) (model.ContradictionEntry, error) {
	row := r.db.QueryRowContext(ctx, selectContradictionSQL+` WHERE ledger_id = ?`, string(id))
	e, err := scanContradiction(row.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return model.ContradictionEntry{}, fmt.Errorf("storage: get contradiction %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return model.ContradictionEntry{}, fmt.Errorf("storage: get contradiction %s: %w", id, err)
	}
	return e, nil
}

// ListOpen returns up to limit open (status open or reflecting) entries,
// most recently detected first. limit <= 0 means unbounded.
func (r *LedgerRepo) ListOpen(ctx context.Context, limit int) ([]model.ContradictionEntry, error) {
	q := selectContradictionSQL + ` WHERE status IN ('open','reflecting') ORDER BY detected_at DESC`
	var rows *sql.Rows
	var err error
	if limit > 0 {
		rows, err = r.db.QueryContext(ctx, q+` LIMIT ?`, limit)
	} else {
		rows, err = r.db.QueryContext(ctx, q)
	}
	if err != nil {
		return nil, fmt.Errorf("storage: list open contradictions: %w", err)
	}
	defer rows.Close()
	return scanContradictions(rows)
}

// ByMemory returns every entry (any status) referencing id as either side.
func (r *LedgerRepo) ByMemory(ctx context.Context, id model.MemoryID) ([]model.ContradictionEntry, error) {
	rows, err := r.db.QueryContext(ctx, selectContradictionSQL+` WHERE old_memory_id = ? OR new_memory_id = ? ORDER BY detected_at ASC`,
		string(id), string(id))
	if err != nil {
		return nil, fmt.Errorf("storage: contradictions by memory %s: %w", id, err)
	}
	defer rows.Close()
	return scanContradictions(rows)
}

// HasOpen reports whether id is referenced by any open entry.
func (r *LedgerRepo) HasOpen(ctx context.Context, id model.MemoryID) (bool, error) {
	var n int
	err := r.db.QueryRowContext(ctx, `
		SELECT 1 FROM contradictions
		WHERE (old_memory_id = ? OR new_memory_id = ?) AND status IN ('open','reflecting') LIMIT 1`,
		string(id), string(id)).Scan(&n)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("storage: has open contradiction %s: %w", id, err)
	}
	return true, nil
}

// Resolve closes an entry with a resolution method and timestamp, and logs
// the resolution to conflict_resolutions. Returns ErrNotFound /
// ErrAlreadyResolved as appropriate.
func (r *LedgerRepo) Resolve(ctx context.Context, id model.LedgerID, method model.ResolutionMethod, mergedID model.MemoryID, newStatus model.ContradictionStatus) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("storage: resolve %s: begin: %w", id, err)
	}
	defer tx.Rollback() //nolint:errcheck

	var status string
	if err := tx.QueryRowContext(ctx, `SELECT status FROM contradictions WHERE ledger_id = ?`, string(id)).Scan(&status); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("storage: resolve %s: %w", id, ErrNotFound)
		}
		return fmt.Errorf("storage: resolve %s: %w", id, err)
	}
	if status == string(model.StatusResolved) || status == string(model.StatusAccepted) {
		return fmt.Errorf("storage: resolve %s: %w", id, ErrAlreadyResolved)
	}

	now := time.Now()
	if _, err := tx.ExecContext(ctx, `
		UPDATE contradictions SET status = ?, resolution_method = ?, merged_memory_id = ?, resolution_timestamp = ?
		WHERE ledger_id = ?`, string(newStatus), string(method), string(mergedID), now, string(id)); err != nil {
		return fmt.Errorf("storage: resolve %s: %w", id, err)
	}
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO conflict_resolutions (ledger_id, method, merged_memory_id, new_status, resolved_at)
		VALUES (?,?,?,?,?)`, string(id), string(method), string(mergedID), string(newStatus), now); err != nil {
		return fmt.Errorf("storage: resolve %s: log: %w", id, err)
	}
	return tx.Commit()
}

// UpdateLifecycle moves an entry to a new lifecycle state, recording the
// transition for audit. Rejects non-monotonic transitions.
func (r *LedgerRepo) UpdateLifecycle(ctx context.Context, id model.LedgerID, next model.LifecycleState) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("storage: lifecycle %s: begin: %w", id, err)
	}
	defer tx.Rollback() //nolint:errcheck

	var current string
	if err := tx.QueryRowContext(ctx, `SELECT lifecycle_state FROM contradictions WHERE ledger_id = ?`, string(id)).Scan(&current); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("storage: lifecycle %s: %w", id, ErrNotFound)
		}
		return fmt.Errorf("storage: lifecycle %s: %w", id, err)
	}
	if !model.LifecycleState(current).CanTransition(next) {
		return fmt.Errorf("storage: lifecycle %s: %s -> %s is not a forward transition", id, current, next)
	}

	now := time.Now()
	switch next {
	case model.LifecycleSettled:
		if _, err := tx.ExecContext(ctx, `UPDATE contradictions SET lifecycle_state = ?, settled_at = ? WHERE ledger_id = ?`, string(next), now, string(id)); err != nil {
			return fmt.Errorf("storage: lifecycle %s: %w", id, err)
		}
	case model.LifecycleArchived:
		if _, err := tx.ExecContext(ctx, `UPDATE contradictions SET lifecycle_state = ?, archived_at = ? WHERE ledger_id = ?`, string(next), now, string(id)); err != nil {
			return fmt.Errorf("storage: lifecycle %s: %w", id, err)
		}
	default:
		if _, err := tx.ExecContext(ctx, `UPDATE contradictions SET lifecycle_state = ? WHERE ledger_id = ?`, string(next), string(id)); err != nil {
			return fmt.Errorf("storage: lifecycle %s: %w", id, err)
		}
	}
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO contradiction_lifecycle (ledger_id, from_state, to_state, transitioned_at) VALUES (?,?,?,?)`,
		string(id), current, string(next), now); err != nil {
		return fmt.Errorf("storage: lifecycle %s: log: %w", id, err)
	}
	return tx.Commit()
}

// IncrementConfirmation bumps confirmation_count by one and returns the new value.
func (r *LedgerRepo) IncrementConfirmation(ctx context.Context, id model.LedgerID) (int, error) {
	res, err := r.db.ExecContext(ctx, `UPDATE contradictions SET confirmation_count = confirmation_count + 1 WHERE ledger_id = ?`, string(id))
	if err != nil {
		return 0, fmt.Errorf("storage: increment confirmation %s: %w", id, err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return 0, fmt.Errorf("storage: increment confirmation %s: %w", id, ErrNotFound)
	}
	var count int
	if err := r.db.QueryRowContext(ctx, `SELECT confirmation_count FROM contradictions WHERE ledger_id = ?`, string(id)).Scan(&count); err != nil {
		return 0, fmt.Errorf("storage: increment confirmation %s: reread: %w", id, err)
	}
	return count, nil
}

// IncrementDisclosure bumps disclosure_count by one (a caveat was shown for this entry).
func (r *LedgerRepo) IncrementDisclosure(ctx context.Context, id model.LedgerID) error {
	res, err := r.db.ExecContext(ctx, `UPDATE contradictions SET disclosure_count = disclosure_count + 1 WHERE ledger_id = ?`, string(id))
	if err != nil {
		return fmt.Errorf("storage: increment disclosure %s: %w", id, err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return fmt.Errorf("storage: increment disclosure %s: %w", id, ErrNotFound)
	}
	return nil
}

// AllForLifecycleSweep returns every non-archived entry, for
// process_lifecycle_transitions to evaluate against age/confirmation thresholds.
func (r *LedgerRepo) AllForLifecycleSweep(ctx context.Context) ([]model.ContradictionEntry, error) {
	rows, err := r.db.QueryContext(ctx, selectContradictionSQL+` WHERE lifecycle_state != 'archived'`)
	if err != nil {
		return nil, fmt.Errorf("storage: lifecycle sweep scan: %w", err)
	}
	defer rows.Close()
	return scanContradictions(rows)
}

// QueueReflection enqueues a ledger id for the reflection pass.
func (r *LedgerRepo) QueueReflection(ctx context.Context, item model.ReflectionQueueItem) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO reflection_queue (queue_id, ledger_id, volatility, priority, context_json, enqueued_at, processed)
		VALUES (?,?,?,?,?,?,0)`,
		string(item.QueueID), string(item.LedgerID), item.Volatility, string(item.Priority), item.ContextJSON, item.EnqueuedAt)
	if err != nil {
		return fmt.Errorf("storage: queue reflection: %w", err)
	}
	return nil
}

// NextReflections returns up to limit unprocessed items ordered by priority
// (high first) then volatility descending then enqueue time ascending.
func (r *LedgerRepo) NextReflections(ctx context.Context, limit int) ([]model.ReflectionQueueItem, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT queue_id, ledger_id, volatility, priority, context_json, enqueued_at, processed
		FROM reflection_queue WHERE processed = 0
		ORDER BY CASE priority WHEN 'high' THEN 0 WHEN 'medium' THEN 1 ELSE 2 END, volatility DESC, enqueued_at ASC
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("storage: next reflections: %w", err)
	}
	defer rows.Close()

	var out []model.ReflectionQueueItem
	for rows.Next() {
		var it model.ReflectionQueueItem
		var queueID, ledgerID, priority string
		var processed int
		if err := rows.Scan(&queueID, &ledgerID, &it.Volatility, &priority, &it.ContextJSON, &it.EnqueuedAt, &processed); err != nil {
			return nil, fmt.Errorf("storage: next reflections: scan: %w", err)
		}
		it.QueueID = model.QueueID(queueID)
		it.LedgerID = model.LedgerID(ledgerID)
		it.Priority = model.ReflectionPriority(priority)
		it.Processed = processed != 0
		out = append(out, it)
	}
	return out, rows.Err()
}

// MarkReflectionProcessed flags a reflection-queue item as handled.
func (r *LedgerRepo) MarkReflectionProcessed(ctx context.Context, id model.QueueID) error {
	_, err := r.db.ExecContext(ctx, `UPDATE reflection_queue SET processed = 1 WHERE queue_id = ?`, string(id))
	if err != nil {
		return fmt.Errorf("storage: mark reflection processed %s: %w", id, err)
	}
	return nil
}

// MarkAsked upserts the worklog's ask bookkeeping for a ledger entry.
func (r *LedgerRepo) MarkAsked(ctx context.Context, id model.LedgerID) error {
	now := time.Now()
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO contradiction_worklog (ledger_id, first_asked_at, last_asked_at, ask_count)
		VALUES (?, ?, ?, 1)
		ON CONFLICT(ledger_id) DO UPDATE SET last_asked_at = excluded.last_asked_at, ask_count = ask_count + 1`,
		string(id), now, now)
	if err != nil {
		return fmt.Errorf("storage: mark asked %s: %w", id, err)
	}
	return nil
}

// RecordUserAnswer upserts the worklog's last-answer bookkeeping.
func (r *LedgerRepo) RecordUserAnswer(ctx context.Context, id model.LedgerID, answer string) error {
	now := time.Now()
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO contradiction_worklog (ledger_id, last_user_answer, last_user_answer_at, ask_count)
		VALUES (?, ?, ?, 0)
		ON CONFLICT(ledger_id) DO UPDATE SET last_user_answer = excluded.last_user_answer, last_user_answer_at = excluded.last_user_answer_at`,
		string(id), answer, now)
	if err != nil {
		return fmt.Errorf("storage: record user answer %s: %w", id, err)
	}
	return nil
}

// Worklog loads the worklog row for id, zero-valued if none exists yet.
func (r *LedgerRepo) Worklog(ctx context.Context, id model.LedgerID) (model.WorklogEntry, error) {
	w := model.WorklogEntry{LedgerID: id}
	var firstAsked, lastAsked, lastAnswerAt sql.NullTime
	var lastAnswer sql.NullString
	err := r.db.QueryRowContext(ctx, `
		SELECT first_asked_at, last_asked_at, ask_count, last_user_answer, last_user_answer_at
		FROM contradiction_worklog WHERE ledger_id = ?`, string(id)).
		Scan(&firstAsked, &lastAsked, &w.AskCount, &lastAnswer, &lastAnswerAt)
	if errors.Is(err, sql.ErrNoRows) {
		return w, nil
	}
	if err != nil {
		return model.WorklogEntry{}, fmt.Errorf("storage: worklog %s: %w", id, err)
	}
	if firstAsked.Valid {
		w.FirstAskedAt = &firstAsked.Time
	}
	if lastAsked.Valid {
		w.LastAskedAt = &lastAsked.Time
	}
	w.LastUserAnswer = lastAnswer.String
	if lastAnswerAt.Valid {
		w.LastUserAnswerAt = &lastAnswerAt.Time
	}
	return w, nil
}

const selectContradictionSQL = `
	SELECT ledger_id, thread_id, detected_at, old_memory_id, new_memory_id, drift_mean, confidence_delta,
		status, contradiction_type, affects_slots, query, summary, resolution_timestamp, resolution_method,
		merged_memory_id, lifecycle_state, confirmation_count, disclosure_count, settled_at, archived_at, metadata_json
	FROM contradictions`

func scanContradictions(rows *sql.Rows) ([]model.ContradictionEntry, error) {
	var out []model.ContradictionEntry
	for rows.Next() {
		e, err := scanContradiction(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("scan: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func scanContradiction(scan scanFunc) (model.ContradictionEntry, error) {
	var e model.ContradictionEntry
	var ledgerID, threadID, oldMem, newMem, status, ctype, lifecycle string
	var resolutionMethod, mergedMem sql.NullString
	var query, summary sql.NullString
	var resolutionTS, settledAt, archivedAt sql.NullTime
	var metadataJSON sql.NullString

	err := scan(&ledgerID, &threadID, &e.DetectedAt, &oldMem, &newMem, &e.DriftMean, &e.ConfidenceDelta,
		&status, &ctype, &e.AffectsSlots, &query, &summary, &resolutionTS, &resolutionMethod, &mergedMem,
		&lifecycle, &e.ConfirmationCount, &e.DisclosureCount, &settledAt, &archivedAt, &metadataJSON)
	if err != nil {
		return model.ContradictionEntry{}, err
	}

	e.LedgerID = model.LedgerID(ledgerID)
	e.ThreadID = model.ThreadID(threadID)
	e.OldMemoryID = model.MemoryID(oldMem)
	e.NewMemoryID = model.MemoryID(newMem)
	e.Status = model.ContradictionStatus(status)
	e.ContradictionType = model.ContradictionType(ctype)
	e.LifecycleState = model.LifecycleState(lifecycle)
	e.Query = query.String
	e.Summary = summary.String
	e.ResolutionMethod = model.ResolutionMethod(resolutionMethod.String)
	e.MergedMemoryID = model.MemoryID(mergedMem.String)
	if resolutionTS.Valid {
		e.ResolutionTimestamp = &resolutionTS.Time
	}
	if settledAt.Valid {
		e.SettledAt = &settledAt.Time
	}
	if archivedAt.Valid {
		e.ArchivedAt = &archivedAt.Time
	}
	if metadataJSON.Valid {
		e.Metadata = decodeJSON(metadataJSON.String)
	}
	return e, nil
}

func nullTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return *t
}
