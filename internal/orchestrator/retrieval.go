package orchestrator

import (
	"context"
	"fmt"
	"strings"

	"github.com/coherent-ai/crt/internal/anchor"
	"github.com/coherent-ai/crt/internal/memstore"
	"github.com/coherent-ai/crt/internal/model"
)

// retrieveWithOpenLedger implements step 8's ledger-aware retrieval: a
// memory referenced by an open contradiction that is NOT relevant to this
// turn's slots is excluded outright; one that IS relevant stays retrievable
// but is flagged ReintroducedClaim so the caveat-enforcement step (§4.9)
// can catch it later.
func (e *Engine) retrieveWithOpenLedger(ctx context.Context, q string, k int, relevantSlots []string) ([]model.ScoredMemory, error) {
	open, err := e.ledgerSvc.GetOpenContradictions(ctx, 200)
	if err != nil {
		return nil, fmt.Errorf("orchestrator: load open contradictions: %w", err)
	}

	excluded := make(map[model.MemoryID]bool)
	reintroduced := make(map[model.MemoryID]bool)
	for _, entry := range open {
		ids := [2]model.MemoryID{entry.OldMemoryID, entry.NewMemoryID}
		if slotsIntersect(entry.AffectsSlots, relevantSlots) {
			reintroduced[ids[0]] = true
			reintroduced[ids[1]] = true
		} else {
			excluded[ids[0]] = true
			excluded[ids[1]] = true
		}
	}

	return e.mem.RetrieveMemories(ctx, q, k, memstore.RetrieveOptions{
		ExcludeDeprecated: true,
		ExcludedIDs:       excluded,
		OpenLedgerIDs:     reintroduced,
	})
}

// augmentWithProfile prepends a synthetic, trust-1.0 memory for every
// relevant slot whose canonical profile value wasn't already surfaced by
// retrieval — the per-slot value history is the source of truth, and a
// stale embedding-similarity miss should never hide it.
func (e *Engine) augmentWithProfile(scored []model.ScoredMemory, relevantSlots []string) []model.ScoredMemory {
	if len(relevantSlots) == 0 {
		return scored
	}

	e.profileMu.Lock()
	defer e.profileMu.Unlock()

	seen := make(map[model.MemoryID]bool, len(scored))
	for _, s := range scored {
		seen[s.Memory.ID] = true
	}

	var synthetic []model.ScoredMemory
	for _, slot := range relevantSlots {
		v, ok := e.profile.ActiveValue(slot)
		if !ok || seen[v.MemoryID] {
			continue
		}
		synthetic = append(synthetic, model.ScoredMemory{
			Memory: model.MemoryItem{
				ID:         v.MemoryID,
				ThreadID:   e.threadID,
				Text:       fmt.Sprintf("%s: %s", slot, v.Value),
				CreatedAt:  v.ObservedAt,
				Confidence: 1.0,
				Trust:      1.0,
				Source:     model.SourceUser,
				SSEMode:    model.SSELossless,
			},
			Score: 1.0,
		})
	}
	return append(synthetic, scored...)
}

// fastPath implements step 9's special-cased turns: they're fully
// answerable from what retrieval + the profile already surfaced, without a
// reasoner call.
func (e *Engine) fastPath(cls Classification, scored []model.ScoredMemory, relevantSlots []string, sessionID model.SessionID) (model.QueryResult, bool) {
	switch cls.Special {
	case specialSingleSlot:
		return e.singleSlotFastPath(cls.SingleSlot, sessionID), true
	case specialSynthesis, specialSummary, specialMemoryInventory:
		return e.synthesisFastPath(scored, sessionID), true
	}
	return model.QueryResult{}, false
}

func (e *Engine) singleSlotFastPath(slot string, sessionID model.SessionID) model.QueryResult {
	e.profileMu.Lock()
	v, ok := e.profile.ActiveValue(slot)
	e.profileMu.Unlock()
	if !ok {
		return e.deterministicResult(fmt.Sprintf("You haven't told me your %s yet.", slot), model.ResponseSpeech, sessionID)
	}
	result := e.deterministicResult(fmt.Sprintf("Your %s is %s.", slot, v.Value), model.ResponseBelief, sessionID)
	result.Confidence = 0.95
	return result
}

func (e *Engine) synthesisFastPath(scored []model.ScoredMemory, sessionID model.SessionID) model.QueryResult {
	if len(scored) == 0 {
		return e.deterministicResult("I don't have anything stored about you yet.", model.ResponseSpeech, sessionID)
	}

	lines := make([]string, 0, len(scored))
	mems := make([]model.MemoryItem, 0, len(scored))
	for _, s := range scored {
		lines = append(lines, s.Memory.Text)
		mems = append(mems, s.Memory)
	}

	result := e.deterministicResult("Here's what I know: "+strings.Join(lines, "; ")+".", model.ResponseBelief, sessionID)
	result.Confidence = 0.9
	result.RetrievedMemories = mems
	result.PromptMemories = mems
	return result
}

// checkAssertiveResolution implements step 7 for REVISION-type open
// contradictions only: a "most recent wins" policy applies cleanly there,
// so the pipeline resolves it on the spot rather than asking the user.
// TEMPORAL/REFINEMENT entries are left open (both sides may be true);
// CONFLICT entries are left to the later uncertainty early-exit, since
// "most recent wins" is exactly the wrong call for a genuine conflict.
func (e *Engine) checkAssertiveResolution(ctx context.Context, cls Classification, relevantSlots []string, sessionID model.SessionID) (model.QueryResult, bool, error) {
	_ = cls
	if len(relevantSlots) == 0 {
		return model.QueryResult{}, false, nil
	}
	open, err := e.ledgerSvc.GetOpenContradictions(ctx, 200)
	if err != nil {
		return model.QueryResult{}, false, err
	}

	for _, entry := range open {
		if entry.ContradictionType != model.ContradictionRevision || entry.LifecycleState == model.LifecycleArchived {
			continue
		}
		if !slotsIntersect(entry.AffectsSlots, relevantSlots) {
			continue
		}

		oldMem, err := e.mem.GetMemoryByID(ctx, entry.OldMemoryID)
		if err != nil {
			continue
		}
		newMem, err := e.mem.GetMemoryByID(ctx, entry.NewMemoryID)
		if err != nil {
			continue
		}

		winner := pickWinner(oldMem, newMem)
		loser := oldMem
		if winner.ID == oldMem.ID {
			loser = newMem
		}

		if err := e.mem.DeprecateMemory(ctx, loser.ID, "superseded_by_assertive_revision"); err != nil {
			e.logger.Warn("orchestrator: deprecate superseded revision failed", "error", err)
		}
		method := model.ResolutionDeprecateOld
		if loser.ID == newMem.ID {
			method = model.ResolutionDeprecateNew
		}
		if err := e.ledgerSvc.ResolveContradiction(ctx, entry.LedgerID, method, winner.ID, model.StatusResolved); err != nil {
			e.logger.Warn("orchestrator: resolve revision failed", "error", err)
		}

		winnerValue := e.valueForMemory(winner.ID)
		loserValue := e.valueForMemory(loser.ID)
		answer := winner.Text
		if winnerValue != "" {
			answer = fmt.Sprintf("%s is %s%s", entry.AffectsSlots, winnerValue, assertionCaveat(loserValue, winnerValue))
		}

		result := e.deterministicResult(answer, model.ResponseBelief, sessionID)
		result.ContradictionDetected = true
		result.ContradictionResolved = true
		result.Confidence = 0.85
		return result, true, nil
	}
	return model.QueryResult{}, false, nil
}

// checkHardConflict is the uncertainty early-exit: an unresolved CONFLICT
// touching a relevant slot blocks the generative path outright rather than
// letting the reasoner paper over two contradictory beliefs.
func (e *Engine) checkHardConflict(ctx context.Context, relevantSlots []string, scored []model.ScoredMemory, sessionID model.SessionID) (model.QueryResult, bool, error) {
	_ = scored
	if len(relevantSlots) == 0 {
		return model.QueryResult{}, false, nil
	}
	open, err := e.ledgerSvc.GetOpenContradictions(ctx, 200)
	if err != nil {
		return model.QueryResult{}, false, err
	}

	for _, entry := range open {
		if entry.ContradictionType != model.ContradictionConflict || entry.LifecycleState == model.LifecycleArchived {
			continue
		}
		if !slotsIntersect(entry.AffectsSlots, relevantSlots) {
			continue
		}

		oldMem, errOld := e.mem.GetMemoryByID(ctx, entry.OldMemoryID)
		newMem, errNew := e.mem.GetMemoryByID(ctx, entry.NewMemoryID)
		if errOld != nil || errNew != nil {
			continue
		}

		a := e.ledgerSvc.CreateSemanticAnchor(entry, oldMem.Text, newMem.Text, 0, entry.AffectsSlots,
			e.valueForMemory(oldMem.ID), e.valueForMemory(newMem.ID), nil, "", model.AnswerChooseOne)
		prompt := anchor.GenerateClarificationPrompt(a)

		answer := fmt.Sprintf("I have conflicting information here: you told me %q, then %q. %s", oldMem.Text, newMem.Text, prompt)
		result := e.deterministicResult(answer, model.ResponseUncertainty, sessionID)
		result.GatesPassed = false
		result.GateReason = "unresolved_conflict"
		result.ContradictionDetected = true
		result.Confidence = 0.3
		result.UnresolvedHardConflicts = 1
		return result, true, nil
	}
	return model.QueryResult{}, false, nil
}

// pickWinner resolves a revision in favor of higher trust, then more recent.
func pickWinner(a, b model.MemoryItem) model.MemoryItem {
	if a.Trust != b.Trust {
		if a.Trust > b.Trust {
			return a
		}
		return b
	}
	if a.CreatedAt.After(b.CreatedAt) {
		return a
	}
	return b
}
