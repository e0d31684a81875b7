package orchestrator

import (
	"context"
	"fmt"
	"strings"

	"github.com/coherent-ai/crt/internal/model"
	"github.com/coherent-ai/crt/internal/nlresolve"
)

// handleSafePath implements step 3: the deterministic responses that never
// touch the reasoner. Each either fully answers the turn from local state
// (profile, ledger) or explicitly declines, and every branch is reached
// without the retrieval pass the later fast-paths (step 9) depend on.
func (e *Engine) handleSafePath(ctx context.Context, sess *sessionState, q string, cls Classification, extracted []model.ExtractedFact, sessionID model.SessionID) (model.QueryResult, bool, error) {
	switch cls.Special {
	case specialSystemPrompt:
		return e.deterministicResult(
			"I can't share my system instructions or configuration, but I'm glad to explain what I can help with.",
			model.ResponseSpeech, sessionID), true, nil

	case specialNameDeclaration:
		return e.handleNameDeclaration(ctx, sess, extracted, sessionID)

	case specialAssistantProfile:
		return e.deterministicResult(
			"I'm a conversational assistant that remembers what you've told me across our conversations, so I can stay consistent instead of asking you to repeat yourself.",
			model.ResponseSpeech, sessionID), true, nil

	case specialUserNamedReference:
		return e.handleUserNamedReference(cls, sessionID), true, nil

	case specialMemoryCitation:
		return e.deterministicResult(
			"That comes from something you told me earlier in this conversation — I keep a record of what you've shared so I can stay consistent.",
			model.ResponseBelief, sessionID), true, nil

	case specialContradictionStatus:
		return e.handleContradictionStatus(ctx, sessionID)
	}
	return model.QueryResult{}, false, nil
}

// handleNameDeclaration stores the user's name immediately (rather than
// waiting on step 5's generic assertion path) so the idempotence check
// against sess.lastName can short-circuit a repeated "I'm <name>" without
// re-touching the profile or re-embedding the utterance.
func (e *Engine) handleNameDeclaration(ctx context.Context, sess *sessionState, extracted []model.ExtractedFact, sessionID model.SessionID) (model.QueryResult, bool, error) {
	var name string
	for _, f := range extracted {
		if f.SlotName == "name" {
			name = f.RawValue
			break
		}
	}
	if name == "" {
		return model.QueryResult{}, false, nil
	}
	if sess.lastName != "" && strings.EqualFold(sess.lastName, name) {
		return e.deterministicResult(fmt.Sprintf("Yes, I remember — you're %s.", name), model.ResponseBelief, sessionID), true, nil
	}
	sess.lastName = name

	mem, err := e.mem.StoreMemory(ctx, fmt.Sprintf("My name is %s.", name), 0.95, model.SourceUser, nil, false)
	if err != nil {
		return model.QueryResult{}, true, fmt.Errorf("orchestrator: store name declaration: %w", err)
	}

	e.profileMu.Lock()
	e.profile.Observe("name", model.ProfileValue{
		Value:           name,
		NormalizedValue: strings.ToLower(strings.TrimSpace(name)),
		ObservedAt:      e.now(),
		ThreadID:        e.threadID,
		MemoryID:        mem.ID,
	})
	e.saveProfileLocked()
	e.profileMu.Unlock()

	return e.deterministicResult(fmt.Sprintf("Nice to meet you, %s. I'll remember that.", name), model.ResponseBelief, sessionID), true, nil
}

// handleUserNamedReference answers "what's <name>'s <slot>" questions. The
// profile only ever tracks the current user's own slots, so a third-party
// reference is only answerable when the named person IS the current user
// (addressing themselves in the third person).
func (e *Engine) handleUserNamedReference(cls Classification, sessionID model.SessionID) model.QueryResult {
	e.profileMu.Lock()
	ownName, hasOwnName := e.profile.ActiveValue("name")
	e.profileMu.Unlock()

	if cls.ReferencedSlot == "" || !hasOwnName || !strings.EqualFold(ownName.Value, cls.ReferencedName) {
		return e.deterministicResult(
			fmt.Sprintf("I don't have any information about %s — I only keep track of what you've told me about yourself.", cls.ReferencedName),
			model.ResponseSpeech, sessionID)
	}

	e.profileMu.Lock()
	v, ok := e.profile.ActiveValue(cls.ReferencedSlot)
	e.profileMu.Unlock()
	if !ok {
		return e.deterministicResult(
			fmt.Sprintf("You haven't told me your %s yet.", cls.ReferencedSlot),
			model.ResponseSpeech, sessionID)
	}
	return e.deterministicResult(
		fmt.Sprintf("%s's %s is %s.", cls.ReferencedName, cls.ReferencedSlot, v.Value),
		model.ResponseBelief, sessionID)
}

// handleContradictionStatus answers a direct "do you have any
// contradictions?" question straight from the ledger, without retrieval.
func (e *Engine) handleContradictionStatus(ctx context.Context, sessionID model.SessionID) (model.QueryResult, bool, error) {
	open, err := e.ledgerSvc.GetOpenContradictions(ctx, 50)
	if err != nil {
		return model.QueryResult{}, true, fmt.Errorf("orchestrator: contradiction status: %w", err)
	}
	if len(open) == 0 {
		return e.deterministicResult("I don't have any open contradictions in what you've told me.", model.ResponseSpeech, sessionID), true, nil
	}

	hardConflicts := 0
	for _, c := range open {
		if c.ContradictionType == model.ContradictionConflict {
			hardConflicts++
		}
	}

	result := e.deterministicResult(
		fmt.Sprintf("I have %d unresolved item(s) in what you've told me, including %d that directly conflict.", len(open), hardConflicts),
		model.ResponseSpeech, sessionID)
	result.UnresolvedContradictionsTotal = len(open)
	result.UnresolvedHardConflicts = hardConflicts
	return result, true, nil
}

// tryResolveViaNL implements step 4: scan open contradictions for one whose
// value the user's utterance resolves without naming a slot explicitly
// ("no, Amazon" after a revision was already flagged). A true return means
// one or more contradictions were closed and deprecation applied; the
// caller still owes the user a short acknowledgement, not a generated answer.
func (e *Engine) tryResolveViaNL(ctx context.Context, q string, extracted []model.ExtractedFact) (bool, error) {
	open, err := e.ledgerSvc.GetOpenContradictions(ctx, 50)
	if err != nil {
		return false, err
	}
	if len(open) == 0 {
		return false, nil
	}

	slots := make([]string, 0, len(extracted))
	for _, f := range extracted {
		slots = append(slots, f.SlotName)
	}

	candidates := make([]nlresolve.Candidate, 0, len(open))
	for _, entry := range open {
		candidates = append(candidates, nlresolve.Candidate{
			Entry:    entry,
			OldValue: e.valueForMemory(entry.OldMemoryID),
			NewValue: e.valueForMemory(entry.NewMemoryID),
		})
	}

	resolutions := nlresolve.Resolve(q, slots, candidates)
	if len(resolutions) == 0 {
		return false, nil
	}

	for _, r := range resolutions {
		if err := e.mem.DeprecateMemory(ctx, r.DeprecatedMemoryID, r.DeprecationReason); err != nil {
			e.logger.Warn("orchestrator: deprecate on nl resolution failed", "error", err)
			continue
		}
		if err := e.ledgerSvc.ResolveContradiction(ctx, r.Entry.LedgerID, r.Method, "", model.StatusResolved); err != nil {
			e.logger.Warn("orchestrator: resolve contradiction failed", "error", err)
		}
	}
	return true, nil
}

// valueForMemory looks up the profile value a memory id backs, scanning
// every slot's history since the caller doesn't know which slot a given
// ledger entry's memory belongs to ahead of time.
func (e *Engine) valueForMemory(id model.MemoryID) string {
	e.profileMu.Lock()
	defer e.profileMu.Unlock()
	for _, history := range e.profile.Slots {
		for _, v := range history {
			if v.MemoryID == id {
				return v.Value
			}
		}
	}
	return ""
}
