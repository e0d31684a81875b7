package orchestrator

import (
	"context"
	"fmt"

	"github.com/coherent-ai/crt/internal/classifier"
	"github.com/coherent-ai/crt/internal/crtmath"
	"github.com/coherent-ai/crt/internal/disclosure"
	"github.com/coherent-ai/crt/internal/ledger"
	"github.com/coherent-ai/crt/internal/model"
)

// storeAssertion implements step 5: store the new memory, then for every
// extracted slot check against the profile's current active value and run
// the full detect -> classify -> disclosure -> ledger pipeline (§4.2-4.6)
// when the values genuinely differ.
func (e *Engine) storeAssertion(ctx context.Context, sess *sessionState, text string, extracted []model.ExtractedFact, important bool) (model.MemoryItem, []model.ContradictionEntry, error) {
	newMem, err := e.mem.StoreMemory(ctx, text, 0.95, model.SourceUser, nil, important)
	if err != nil {
		return model.MemoryItem{}, nil, fmt.Errorf("orchestrator: store assertion: %w", err)
	}

	var recorded []model.ContradictionEntry

	e.profileMu.Lock()
	defer e.profileMu.Unlock()

	for _, fact := range extracted {
		prior, hasPrior := e.profile.ActiveValue(fact.SlotName)
		if hasPrior && prior.NormalizedValue != fact.NormalizedValue {
			entry, err := e.detectAndRecordContradiction(ctx, sess, fact, prior, newMem)
			if err != nil {
				e.logger.Warn("orchestrator: contradiction detection failed", "slot", fact.SlotName, "error", err)
			} else if entry != nil {
				recorded = append(recorded, *entry)
			}
		}
		e.profile.Observe(fact.SlotName, model.ProfileValue{
			Value:           fact.RawValue,
			NormalizedValue: fact.NormalizedValue,
			ObservedAt:      e.now(),
			ThreadID:        e.threadID,
			MemoryID:        newMem.ID,
		})
	}
	e.saveProfileLocked()

	return newMem, recorded, nil
}

// detectAndRecordContradiction runs the full pre-check -> contextual gate ->
// classify -> trust-evolution -> disclosure -> ledger chain for one slot
// whose asserted value just changed. A nil, nil return means the pair was
// gated out before it ever became a ledger entry (paraphrase, identical
// text, or a contextually-excused temporal/domain split).
func (e *Engine) detectAndRecordContradiction(ctx context.Context, sess *sessionState, fact model.ExtractedFact, prior model.ProfileValue, newMem model.MemoryItem) (*model.ContradictionEntry, error) {
	isReal, _ := crtmath.DetectContradiction(crtmath.DetectInput{
		SlotName:      fact.SlotName,
		OldNormalized: prior.NormalizedValue,
		NewNormalized: fact.NormalizedValue,
		OldText:       prior.Value,
		NewText:       fact.RawValue,
	})
	if !isReal {
		return nil, nil
	}

	priorMem, err := e.mem.GetMemoryByID(ctx, prior.MemoryID)
	if err != nil {
		return nil, fmt.Errorf("load prior memory for slot %q: %w", fact.SlotName, err)
	}

	drift := crtmath.DriftMeaning(newMem.Embedding, priorMem.Embedding)
	if !crtmath.IsTrueContradictionContextual(crtmath.ContextualInput{
		SlotName:    fact.SlotName,
		NewValue:    fact.RawValue,
		OldValue:    prior.Value,
		NewTemporal: newMem.TemporalStatus,
		OldTemporal: priorMem.TemporalStatus,
		NewDomains:  newMem.Domains,
		OldDomains:  priorMem.Domains,
		Drift:       drift,
	}) {
		return nil, nil
	}

	cType := e.classifier.ClassifyClaims(classifier.Input{
		OldText:    priorMem.Text,
		NewText:    newMem.Text,
		Drift:      drift,
		HasVectors: true,
		SlotName:   fact.SlotName,
		OldValue:   prior.Value,
		NewValue:   fact.RawValue,
	})

	if classifier.TrustImpact(cType) {
		if _, err := e.mem.EvolveTrustForContradiction(ctx, priorMem); err != nil {
			e.logger.Warn("orchestrator: trust evolution on contradiction failed", "error", err)
		}
	}

	anchor := model.SemanticAnchor{
		TurnNumber:        sess.turn,
		ContradictionType: cType,
		OldMemoryID:       prior.MemoryID,
		NewMemoryID:       newMem.ID,
		OldText:           priorMem.Text,
		NewText:           newMem.Text,
		SlotName:          fact.SlotName,
		OldValue:          prior.Value,
		NewValue:          fact.RawValue,
	}

	decision := sess.policy.Decide(disclosure.Input{
		PValid:              clamp01(1 - drift),
		Slot:                fact.SlotName,
		OldValue:            prior.Value,
		NewValue:            fact.RawValue,
		ClarificationPrompt: "",
	})

	entry, err := e.ledgerSvc.RecordContradiction(ctx, ledger.RecordInput{
		OldMemoryID:       prior.MemoryID,
		NewMemoryID:       newMem.ID,
		DriftMean:         float32(drift),
		ConfidenceDelta:   newMem.Confidence - priorMem.Confidence,
		Query:             newMem.Text,
		Summary:           fmt.Sprintf("%s: %q -> %q", fact.SlotName, prior.Value, fact.RawValue),
		ContradictionType: cType,
		OldSlots:          []string{fact.SlotName},
		NewSlots:          []string{fact.SlotName},
		SuggestedPolicy:   string(decision.Action),
	})
	if err != nil {
		return nil, fmt.Errorf("record contradiction: %w", err)
	}

	if decision.Action == model.DisclosureClarify {
		sess.pendingAnchor = &anchor
		sess.pendingAnchor.ContradictionID = entry.LedgerID
	}

	return &entry, nil
}
