package storage

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coherent-ai/crt/internal/model"
)

func newTestMemoryRepo(t *testing.T) *MemoryRepo {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "mem.db"), 5*time.Second, 4, 2)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, MigrateMemoryStore(context.Background(), db))
	return NewMemoryRepo(db)
}

func newTestLedgerRepo(t *testing.T, memories *MemoryRepo) *LedgerRepo {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "ledger.db"), 5*time.Second, 4, 2)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, MigrateLedgerStore(context.Background(), db))
	return NewLedgerRepo(db, memories)
}

func sampleMemory(id model.MemoryID) model.MemoryItem {
	return model.MemoryItem{
		ID:             id,
		ThreadID:       "thread-1",
		Text:           "I work at Microsoft.",
		Embedding:      []float32{0.1, 0.2, 0.3},
		CreatedAt:      time.Now(),
		Confidence:     0.95,
		Trust:          0.7,
		Source:         model.SourceUser,
		SSEMode:        model.SSELossless,
		TemporalStatus: model.TemporalActive,
	}
}

func TestMemoryRepo_InsertAndGet(t *testing.T) {
	repo := newTestMemoryRepo(t)
	ctx := context.Background()
	m := sampleMemory(model.NewMemoryID())

	require.NoError(t, repo.Insert(ctx, m))

	got, err := repo.GetByID(ctx, m.ID)
	require.NoError(t, err)
	assert.Equal(t, m.Text, got.Text)
	assert.Equal(t, m.Source, got.Source)
	assert.InDeltaSlice(t, []float64{0.1, 0.2, 0.3}, toFloat64(got.Embedding), 1e-6)
}

func TestMemoryRepo_GetByID_NotFound(t *testing.T) {
	repo := newTestMemoryRepo(t)
	_, err := repo.GetByID(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryRepo_InsertRejectsEmptyText(t *testing.T) {
	repo := newTestMemoryRepo(t)
	m := sampleMemory(model.NewMemoryID())
	m.Text = ""
	err := repo.Insert(context.Background(), m)
	assert.ErrorIs(t, err, ErrValidation)
}

func TestMemoryRepo_SetTrustAppendsLog(t *testing.T) {
	repo := newTestMemoryRepo(t)
	ctx := context.Background()
	m := sampleMemory(model.NewMemoryID())
	require.NoError(t, repo.Insert(ctx, m))

	require.NoError(t, repo.SetTrust(ctx, m.ID, 0.85, "alignment"))

	got, err := repo.GetByID(ctx, m.ID)
	require.NoError(t, err)
	assert.Equal(t, float32(0.85), got.Trust)

	history, err := repo.TrustHistory(ctx, m.ID)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, float32(0.7), history[0].OldTrust)
	assert.Equal(t, float32(0.85), history[0].NewTrust)
}

func TestMemoryRepo_DeprecateRetainsRow(t *testing.T) {
	repo := newTestMemoryRepo(t)
	ctx := context.Background()
	m := sampleMemory(model.NewMemoryID())
	require.NoError(t, repo.Insert(ctx, m))

	require.NoError(t, repo.Deprecate(ctx, m.ID, "superseded by Amazon"))

	got, err := repo.GetByID(ctx, m.ID)
	require.NoError(t, err)
	assert.True(t, got.Deprecated)
	assert.Equal(t, "superseded by Amazon", got.DeprecatedReason)
	assert.Equal(t, m.Text, got.Text, "text must remain immutable")
}

func TestLedgerRepo_InsertRejectsDanglingReference(t *testing.T) {
	memories := newTestMemoryRepo(t)
	ledger := newTestLedgerRepo(t, memories)

	entry := model.ContradictionEntry{
		LedgerID:          model.NewLedgerID(),
		ThreadID:          "thread-1",
		DetectedAt:        time.Now(),
		OldMemoryID:       "missing-old",
		NewMemoryID:       "missing-new",
		Status:            model.StatusOpen,
		ContradictionType: model.ContradictionConflict,
		LifecycleState:    model.LifecycleActive,
	}
	err := ledger.Insert(context.Background(), entry)
	assert.ErrorIs(t, err, ErrDanglingReference)
}

func TestLedgerRepo_RecordAndResolve(t *testing.T) {
	memories := newTestMemoryRepo(t)
	ledger := newTestLedgerRepo(t, memories)
	ctx := context.Background()

	oldMem := sampleMemory(model.NewMemoryID())
	newMem := sampleMemory(model.NewMemoryID())
	newMem.Text = "I work at Amazon."
	require.NoError(t, memories.Insert(ctx, oldMem))
	require.NoError(t, memories.Insert(ctx, newMem))

	entry := model.ContradictionEntry{
		LedgerID:          model.NewLedgerID(),
		ThreadID:          "thread-1",
		DetectedAt:        time.Now(),
		OldMemoryID:       oldMem.ID,
		NewMemoryID:       newMem.ID,
		AffectsSlots:      "employer",
		Status:            model.StatusOpen,
		ContradictionType: model.ContradictionRevision,
		LifecycleState:    model.LifecycleActive,
	}
	require.NoError(t, ledger.Insert(ctx, entry))

	open, err := ledger.ListOpen(ctx, 0)
	require.NoError(t, err)
	require.Len(t, open, 1)
	assert.True(t, open[0].AffectsSlot("employer"))

	require.NoError(t, ledger.Resolve(ctx, entry.LedgerID, model.ResolutionUserChoseNew, newMem.ID, model.StatusResolved))

	got, err := ledger.GetByID(ctx, entry.LedgerID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusResolved, got.Status)
	assert.Equal(t, newMem.ID, got.MergedMemoryID)
	assert.False(t, got.IsOpen())

	err = ledger.Resolve(ctx, entry.LedgerID, model.ResolutionUserChoseNew, newMem.ID, model.StatusResolved)
	assert.ErrorIs(t, err, ErrAlreadyResolved)
}

func TestLedgerRepo_LifecycleMonotonic(t *testing.T) {
	memories := newTestMemoryRepo(t)
	ledger := newTestLedgerRepo(t, memories)
	ctx := context.Background()

	oldMem := sampleMemory(model.NewMemoryID())
	newMem := sampleMemory(model.NewMemoryID())
	require.NoError(t, memories.Insert(ctx, oldMem))
	require.NoError(t, memories.Insert(ctx, newMem))

	entry := model.ContradictionEntry{
		LedgerID:          model.NewLedgerID(),
		ThreadID:          "thread-1",
		DetectedAt:        time.Now(),
		OldMemoryID:       oldMem.ID,
		NewMemoryID:       newMem.ID,
		Status:            model.StatusOpen,
		ContradictionType: model.ContradictionConflict,
		LifecycleState:    model.LifecycleActive,
	}
	require.NoError(t, ledger.Insert(ctx, entry))

	require.NoError(t, ledger.UpdateLifecycle(ctx, entry.LedgerID, model.LifecycleSettling))
	require.NoError(t, ledger.UpdateLifecycle(ctx, entry.LedgerID, model.LifecycleSettled))

	err := ledger.UpdateLifecycle(ctx, entry.LedgerID, model.LifecycleActive)
	assert.Error(t, err, "backward transition must be rejected")

	require.NoError(t, ledger.UpdateLifecycle(ctx, entry.LedgerID, model.LifecycleArchived))
	got, err := ledger.GetByID(ctx, entry.LedgerID)
	require.NoError(t, err)
	assert.Equal(t, model.LifecycleArchived, got.LifecycleState)
	assert.NotNil(t, got.ArchivedAt)
}

func toFloat64(v []float32) []float64 {
	out := make([]float64, len(v))
	for i, f := range v {
		out[i] = float64(f)
	}
	return out
}
