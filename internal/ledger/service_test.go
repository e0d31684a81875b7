package ledger

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coherent-ai/crt/internal/config"
	"github.com/coherent-ai/crt/internal/model"
	"github.com/coherent-ai/crt/internal/storage"
)

func newTestService(t *testing.T) (*Service, *storage.MemoryRepo) {
	t.Helper()
	memDB, err := storage.Open(filepath.Join(t.TempDir(), "mem.db"), 5*time.Second, 4, 2)
	require.NoError(t, err)
	t.Cleanup(func() { memDB.Close() })
	require.NoError(t, storage.MigrateMemoryStore(context.Background(), memDB))
	memories := storage.NewMemoryRepo(memDB)

	ledgerDB, err := storage.Open(filepath.Join(t.TempDir(), "ledger.db"), 5*time.Second, 4, 2)
	require.NoError(t, err)
	t.Cleanup(func() { ledgerDB.Close() })
	require.NoError(t, storage.MigrateLedgerStore(context.Background(), ledgerDB))
	repo := storage.NewLedgerRepo(ledgerDB, memories)

	cfg := &config.Config{
		FreshnessWindow:         24 * time.Hour,
		ArchiveDays:             30 * 24 * time.Hour,
		ConfirmationsToSettling: 2,
		ConfirmationsToSettled:  4,
	}
	return New(repo, cfg, model.ThreadID("thread-1"), nil), memories
}

func seedMemory(t *testing.T, memories *storage.MemoryRepo, text string) model.MemoryID {
	t.Helper()
	id := model.NewMemoryID()
	err := memories.Insert(context.Background(), model.MemoryItem{
		ID:         id,
		ThreadID:   "thread-1",
		Text:       text,
		Embedding:  []float32{0.1, 0.2},
		CreatedAt:  time.Now(),
		Confidence: 0.9,
		Trust:      0.5,
		Source:     model.SourceUser,
		SSEMode:    model.SSELossy,
	})
	require.NoError(t, err)
	return id
}

func TestRecordContradiction_ComputesAffectsSlotsIntersection(t *testing.T) {
	s, memories := newTestService(t)
	ctx := context.Background()
	oldID := seedMemory(t, memories, "I work at Microsoft.")
	newID := seedMemory(t, memories, "I work at Google.")

	entry, err := s.RecordContradiction(ctx, RecordInput{
		OldMemoryID:       oldID,
		NewMemoryID:       newID,
		DriftMean:         0.5,
		ContradictionType: model.ContradictionConflict,
		OldSlots:          []string{"employer", "title"},
		NewSlots:          []string{"employer", "location"},
	})
	require.NoError(t, err)
	assert.Equal(t, model.StatusOpen, entry.Status)
	assert.Equal(t, model.LifecycleActive, entry.LifecycleState)
	assert.True(t, entry.AffectsSlot("employer"))
	assert.False(t, entry.AffectsSlot("title"))
	assert.False(t, entry.AffectsSlot("location"))
}

func TestRecordContradiction_RejectsDanglingReference(t *testing.T) {
	s, _ := newTestService(t)
	_, err := s.RecordContradiction(context.Background(), RecordInput{
		OldMemoryID: model.NewMemoryID(),
		NewMemoryID: model.NewMemoryID(),
	})
	require.Error(t, err)
}

func TestResolveContradiction_RejectsIllegalMethod(t *testing.T) {
	s, memories := newTestService(t)
	ctx := context.Background()
	oldID := seedMemory(t, memories, "a")
	newID := seedMemory(t, memories, "b")
	entry, err := s.RecordContradiction(ctx, RecordInput{OldMemoryID: oldID, NewMemoryID: newID})
	require.NoError(t, err)

	err = s.ResolveContradiction(ctx, entry.LedgerID, model.ResolutionMethod("bogus"), "", model.StatusResolved)
	require.Error(t, err)
}

func TestResolveContradiction_GroundsUserChoseOld(t *testing.T) {
	s, memories := newTestService(t)
	ctx := context.Background()
	oldID := seedMemory(t, memories, "a")
	newID := seedMemory(t, memories, "b")
	entry, err := s.RecordContradiction(ctx, RecordInput{OldMemoryID: oldID, NewMemoryID: newID})
	require.NoError(t, err)

	err = s.ResolveContradiction(ctx, entry.LedgerID, model.ResolutionUserChoseOld, newID, model.StatusResolved)
	require.Error(t, err, "merged_memory_id must equal old_memory_id for user_chose_old")

	err = s.ResolveContradiction(ctx, entry.LedgerID, model.ResolutionUserChoseOld, oldID, model.StatusResolved)
	require.NoError(t, err)
}

func TestQueueReflection_BucketsByVolatility(t *testing.T) {
	s, memories := newTestService(t)
	ctx := context.Background()
	oldID := seedMemory(t, memories, "a")
	newID := seedMemory(t, memories, "b")
	entry, err := s.RecordContradiction(ctx, RecordInput{OldMemoryID: oldID, NewMemoryID: newID})
	require.NoError(t, err)

	require.NoError(t, s.QueueReflection(ctx, entry.LedgerID, 0.8, ""))
	items, err := s.NextReflections(ctx, 10)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, model.PriorityHigh, items[0].Priority)
}

func TestWorklog_TracksAskAndAnswer(t *testing.T) {
	s, memories := newTestService(t)
	ctx := context.Background()
	oldID := seedMemory(t, memories, "a")
	newID := seedMemory(t, memories, "b")
	entry, err := s.RecordContradiction(ctx, RecordInput{OldMemoryID: oldID, NewMemoryID: newID})
	require.NoError(t, err)

	require.NoError(t, s.MarkContradictionAsked(ctx, entry.LedgerID))
	require.NoError(t, s.RecordContradictionUserAnswer(ctx, entry.LedgerID, "the old one"))

	wl, err := s.Worklog(ctx, entry.LedgerID)
	require.NoError(t, err)
	assert.Equal(t, 1, wl.AskCount)
	assert.Equal(t, "the old one", wl.LastUserAnswer)
}

func TestProcessLifecycleTransitions_AdvancesOnAgeAndConfirmations(t *testing.T) {
	s, memories := newTestService(t)
	ctx := context.Background()
	oldID := seedMemory(t, memories, "a")
	newID := seedMemory(t, memories, "b")
	entry, err := s.RecordContradiction(ctx, RecordInput{OldMemoryID: oldID, NewMemoryID: newID})
	require.NoError(t, err)

	s.now = func() time.Time { return entry.DetectedAt.Add(2 * time.Hour) }

	n, err := s.ProcessLifecycleTransitions(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, n, "confirmation count below threshold should not transition yet")

	_, err = s.IncrementConfirmation(ctx, entry.LedgerID)
	require.NoError(t, err)
	_, err = s.IncrementConfirmation(ctx, entry.LedgerID)
	require.NoError(t, err)

	s.now = func() time.Time { return entry.DetectedAt.Add(25 * time.Hour) }
	n, err = s.ProcessLifecycleTransitions(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	got, err := s.repo.GetByID(ctx, entry.LedgerID)
	require.NoError(t, err)
	assert.Equal(t, model.LifecycleSettling, got.LifecycleState)
}
