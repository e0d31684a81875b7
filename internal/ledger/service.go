// Package ledger implements the ContradictionLedger service: the component
// that exclusively owns one thread's contradiction entries, worklog,
// reflection queue and lifecycle state.
package ledger

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"context"

	"github.com/coherent-ai/crt/internal/config"
	"github.com/coherent-ai/crt/internal/model"
	"github.com/coherent-ai/crt/internal/storage"
)

// Service is the ContradictionLedger for a single thread_id.
type Service struct {
	repo     *storage.LedgerRepo
	cfg      *config.Config
	threadID model.ThreadID
	logger   *slog.Logger
	now      func() time.Time
}

// New builds a Service bound to one thread's LedgerRepo. Every detect,
// resolve and lifecycle-transition event is traced through logger at Info
// level with before/after state, so contradiction handling can be audited
// from logs alone without reading the ledger store directly.
func New(repo *storage.LedgerRepo, cfg *config.Config, threadID model.ThreadID, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, cfg: cfg, threadID: threadID, logger: logger, now: time.Now}
}

// RecordInput bundles the fields needed to record a new contradiction.
type RecordInput struct {
	OldMemoryID       model.MemoryID
	NewMemoryID       model.MemoryID
	DriftMean         float32
	ConfidenceDelta   float32
	Query             string
	Summary           string
	ContradictionType model.ContradictionType
	OldSlots          []string
	NewSlots          []string
	SuggestedPolicy   string
}

// RecordContradiction appends a new ledger entry in the ACTIVE lifecycle
// state. affects_slots is the intersection of the slots named in OldSlots
// and NewSlots. The entry is never deleted once written.
func (s *Service) RecordContradiction(ctx context.Context, in RecordInput) (model.ContradictionEntry, error) {
	entry := model.ContradictionEntry{
		LedgerID:          model.NewLedgerID(),
		ThreadID:          s.threadID,
		DetectedAt:        s.now(),
		OldMemoryID:       in.OldMemoryID,
		NewMemoryID:       in.NewMemoryID,
		DriftMean:         in.DriftMean,
		ConfidenceDelta:   in.ConfidenceDelta,
		Status:            model.StatusOpen,
		ContradictionType: in.ContradictionType,
		AffectsSlots:      strings.Join(intersectSlots(in.OldSlots, in.NewSlots), ","),
		Query:             in.Query,
		Summary:           in.Summary,
		LifecycleState:    model.LifecycleActive,
	}
	if in.SuggestedPolicy != "" {
		entry.Metadata = map[string]any{"suggested_policy": in.SuggestedPolicy}
	}

	if err := s.repo.Insert(ctx, entry); err != nil {
		return model.ContradictionEntry{}, fmt.Errorf("ledger: record contradiction: %w", err)
	}
	s.logger.Info("ledger: contradiction detected",
		"thread_id", s.threadID, "ledger_id", entry.LedgerID, "contradiction_type", entry.ContradictionType,
		"affects_slots", entry.AffectsSlots, "old_memory_id", entry.OldMemoryID, "new_memory_id", entry.NewMemoryID,
		"lifecycle_state", entry.LifecycleState)
	return entry, nil
}

func intersectSlots(a, b []string) []string {
	inB := make(map[string]bool, len(b))
	for _, s := range b {
		inB[s] = true
	}
	seen := make(map[string]bool, len(a))
	var out []string
	for _, s := range a {
		if inB[s] && !seen[s] {
			out = append(out, s)
			seen[s] = true
		}
	}
	return out
}

// GetOpenContradictions returns up to limit open ledger entries.
func (s *Service) GetOpenContradictions(ctx context.Context, limit int) ([]model.ContradictionEntry, error) {
	return s.repo.ListOpen(ctx, limit)
}

// GetContradictionByMemory returns every ledger entry referencing id.
func (s *Service) GetContradictionByMemory(ctx context.Context, id model.MemoryID) ([]model.ContradictionEntry, error) {
	return s.repo.ByMemory(ctx, id)
}

// HasOpenContradiction reports whether id is referenced by any open entry.
func (s *Service) HasOpenContradiction(ctx context.Context, id model.MemoryID) (bool, error) {
	return s.repo.HasOpen(ctx, id)
}

// legalResolutionMethods enumerates every method resolve_contradiction accepts.
var legalResolutionMethods = map[model.ResolutionMethod]bool{
	model.ResolutionReflectionMerge:  true,
	model.ResolutionAcceptBoth:       true,
	model.ResolutionDeprecateOld:     true,
	model.ResolutionDeprecateNew:     true,
	model.ResolutionUserClarified:    true,
	model.ResolutionNLResolution:     true,
	model.ResolutionUserChoseOld:     true,
	model.ResolutionUserChoseNew:     true,
	model.ResolutionBothTrueTemporal: true,
	model.ResolutionBothWrong:        true,
}

// ResolveContradiction closes a ledger entry with method, validating both
// the method is legal and — for user_chose_old/user_chose_new — that
// mergedMemoryID is grounded in the entry it is resolving (invariant 8).
func (s *Service) ResolveContradiction(ctx context.Context, ledgerID model.LedgerID, method model.ResolutionMethod, mergedMemoryID model.MemoryID, newStatus model.ContradictionStatus) error {
	if !legalResolutionMethods[method] {
		return fmt.Errorf("ledger: resolve contradiction: illegal resolution method %q", method)
	}

	if method == model.ResolutionUserChoseOld || method == model.ResolutionUserChoseNew {
		entry, err := s.repo.GetByID(ctx, ledgerID)
		if err != nil {
			return fmt.Errorf("ledger: resolve contradiction: %w", err)
		}
		expected := entry.NewMemoryID
		if method == model.ResolutionUserChoseOld {
			expected = entry.OldMemoryID
		}
		if mergedMemoryID != expected {
			return fmt.Errorf("ledger: resolve contradiction: merged_memory_id %s does not match %s for method %s", mergedMemoryID, expected, method)
		}
	}

	if err := s.repo.Resolve(ctx, ledgerID, method, mergedMemoryID, newStatus); err != nil {
		return fmt.Errorf("ledger: resolve contradiction: %w", err)
	}
	s.logger.Info("ledger: contradiction resolved",
		"thread_id", s.threadID, "ledger_id", ledgerID, "resolution_method", method,
		"merged_memory_id", mergedMemoryID, "old_status", model.StatusOpen, "new_status", newStatus)
	return nil
}

func priorityFor(volatility float64) model.ReflectionPriority {
	switch {
	case volatility >= 0.7:
		return model.PriorityHigh
	case volatility >= 0.4:
		return model.PriorityMedium
	default:
		return model.PriorityLow
	}
}

// QueueReflection enqueues ledgerID for the reflection pass, bucketed by
// volatility into a priority.
func (s *Service) QueueReflection(ctx context.Context, ledgerID model.LedgerID, volatility float64, contextJSON string) error {
	item := model.ReflectionQueueItem{
		QueueID:     model.NewQueueID(),
		LedgerID:    ledgerID,
		Volatility:  float32(volatility),
		Priority:    priorityFor(volatility),
		ContextJSON: contextJSON,
		EnqueuedAt:  s.now(),
	}
	if err := s.repo.QueueReflection(ctx, item); err != nil {
		return fmt.Errorf("ledger: queue reflection: %w", err)
	}
	return nil
}

// NextReflections returns up to limit pending reflection candidates,
// ordered by priority, then volatility, then enqueue time.
func (s *Service) NextReflections(ctx context.Context, limit int) ([]model.ReflectionQueueItem, error) {
	return s.repo.NextReflections(ctx, limit)
}

// MarkReflectionProcessed marks a reflection queue item handled.
func (s *Service) MarkReflectionProcessed(ctx context.Context, id model.QueueID) error {
	return s.repo.MarkReflectionProcessed(ctx, id)
}

// MarkContradictionAsked records that the user was asked about ledgerID.
func (s *Service) MarkContradictionAsked(ctx context.Context, ledgerID model.LedgerID) error {
	return s.repo.MarkAsked(ctx, ledgerID)
}

// RecordContradictionUserAnswer records the user's free-text answer in the worklog.
func (s *Service) RecordContradictionUserAnswer(ctx context.Context, ledgerID model.LedgerID, answer string) error {
	return s.repo.RecordUserAnswer(ctx, ledgerID, answer)
}

// Worklog returns the ask/answer history for a ledger entry.
func (s *Service) Worklog(ctx context.Context, ledgerID model.LedgerID) (model.WorklogEntry, error) {
	return s.repo.Worklog(ctx, ledgerID)
}

// CreateSemanticAnchor binds a clarification question to the contradiction
// context that produced it, so a later user answer can be parsed back to a
// grounded resolution decision. The anchor itself is not persisted by the
// ledger store — callers (the orchestrator) hold it in-session and pass it
// back on the next turn.
func (s *Service) CreateSemanticAnchor(entry model.ContradictionEntry, oldText, newText string, turnNumber int, slotName, oldValue, newValue string, driftVector []float32, prompt string, expected model.ExpectedAnswerType) model.SemanticAnchor {
	return model.SemanticAnchor{
		ContradictionID:      entry.LedgerID,
		TurnNumber:           turnNumber,
		ContradictionType:    entry.ContradictionType,
		OldMemoryID:          entry.OldMemoryID,
		NewMemoryID:          entry.NewMemoryID,
		OldText:              oldText,
		NewText:              newText,
		SlotName:             slotName,
		OldValue:             oldValue,
		NewValue:             newValue,
		DriftVector:          driftVector,
		ClarificationPrompt:  prompt,
		ExpectedAnswerType:   expected,
	}
}

// UpdateLifecycleState advances a ledger entry's lifecycle. Backward or
// repeated transitions are rejected by the repo's monotonic check.
func (s *Service) UpdateLifecycleState(ctx context.Context, ledgerID model.LedgerID, next model.LifecycleState) error {
	prev, err := s.repo.GetByID(ctx, ledgerID)
	if err != nil {
		return fmt.Errorf("ledger: update lifecycle state: %w", err)
	}
	if err := s.repo.UpdateLifecycle(ctx, ledgerID, next); err != nil {
		return fmt.Errorf("ledger: update lifecycle state: %w", err)
	}
	s.logger.Info("ledger: lifecycle transition",
		"thread_id", s.threadID, "ledger_id", ledgerID, "old_state", prev.LifecycleState, "new_state", next)
	return nil
}

// IncrementConfirmation bumps the confirmation counter used by the
// lifecycle sweep to decide ACTIVE->SETTLING and SETTLING->SETTLED timing.
func (s *Service) IncrementConfirmation(ctx context.Context, ledgerID model.LedgerID) (int, error) {
	return s.repo.IncrementConfirmation(ctx, ledgerID)
}

// ProcessLifecycleTransitions sweeps every entry and advances lifecycle
// state where an age or confirmation-count threshold is met:
//   ACTIVE -> SETTLING once confirmations >= ConfirmationsToSettling or age > FreshnessWindow
//   SETTLING -> SETTLED once confirmations >= ConfirmationsToSettled or age > 2*FreshnessWindow
//   SETTLED -> ARCHIVED once time since settled_at > ArchiveDays
// It never moves an entry backward and is cooperative: a sweep that races
// with a write simply misses that entry until the next sweep.
func (s *Service) ProcessLifecycleTransitions(ctx context.Context) (int, error) {
	entries, err := s.repo.AllForLifecycleSweep(ctx)
	if err != nil {
		return 0, fmt.Errorf("ledger: process lifecycle transitions: %w", err)
	}

	now := s.now()
	transitioned := 0
	for _, e := range entries {
		next, ok := s.nextLifecycleState(e, now)
		if !ok {
			continue
		}
		if err := s.repo.UpdateLifecycle(ctx, e.LedgerID, next); err != nil {
			return transitioned, fmt.Errorf("ledger: process lifecycle transitions: %s: %w", e.LedgerID, err)
		}
		s.logger.Info("ledger: lifecycle transition",
			"thread_id", s.threadID, "ledger_id", e.LedgerID, "old_state", e.LifecycleState, "new_state", next)
		transitioned++
	}
	return transitioned, nil
}

func (s *Service) nextLifecycleState(e model.ContradictionEntry, now time.Time) (model.LifecycleState, bool) {
	age := now.Sub(e.DetectedAt)
	switch e.LifecycleState {
	case model.LifecycleActive:
		if e.ConfirmationCount >= s.cfg.ConfirmationsToSettling || age > s.cfg.FreshnessWindow {
			return model.LifecycleSettling, true
		}
	case model.LifecycleSettling:
		if e.ConfirmationCount >= s.cfg.ConfirmationsToSettled || age > 2*s.cfg.FreshnessWindow {
			return model.LifecycleSettled, true
		}
	case model.LifecycleSettled:
		if e.SettledAt != nil && now.Sub(*e.SettledAt) > s.cfg.ArchiveDays {
			return model.LifecycleArchived, true
		}
	}
	return "", false
}
