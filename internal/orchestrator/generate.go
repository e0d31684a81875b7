package orchestrator

import (
	"context"
	"fmt"

	"github.com/coherent-ai/crt/internal/crtmath"
	"github.com/coherent-ai/crt/internal/gate"
	"github.com/coherent-ai/crt/internal/model"
)

// generate implements steps 10-14: call the pluggable Reasoner, evaluate the
// reconstruction gate, enforce caveats on reintroduced claims, store the
// response and evolve trust, and assemble the final QueryResult.
func (e *Engine) generate(ctx context.Context, cls Classification, q string, scored []model.ScoredMemory, relevantSlots []string, sessionID model.SessionID, mode string) (model.QueryResult, error) {
	if mode == "" {
		mode = ModeDefault
	}

	docs := make([]RetrievedDoc, 0, len(scored))
	mems := make([]model.MemoryItem, 0, len(scored))
	for _, s := range scored {
		docs = append(docs, RetrievedDoc{
			Text:              s.Memory.Text,
			Trust:             s.Memory.Trust,
			Confidence:        s.Memory.Confidence,
			Source:            s.Memory.Source,
			MemoryID:          s.Memory.ID,
			Embedding:         s.Memory.Embedding,
			ReintroducedClaim: s.Memory.ReintroducedClaim,
		})
		mems = append(mems, s.Memory)
	}

	factLines := e.factLinesForSlots(relevantSlots)

	rctx := ReasonContext{
		RetrievedDocs: docs,
		MemoryContext: factLines,
	}

	reasonCtx, cancel := context.WithTimeout(ctx, e.cfg.ReasonerTimeout)
	defer cancel()

	out, err := e.reasoner.Reason(reasonCtx, q, rctx, mode)
	if err != nil {
		if e.instr != nil && reasonCtx.Err() == context.DeadlineExceeded {
			e.instr.ReasonerTimeouts.Add(ctx, 1)
		}
		e.logger.Warn("orchestrator: reasoner call failed", "error", err)
		if recErr := e.mem.RecordSpeech(ctx, q, "", "reasoner_error"); recErr != nil {
			e.logger.Warn("orchestrator: record fallback speech failed", "error", recErr)
		}
		result := e.deterministicResult(
			"I'm having trouble putting together an answer right now — could you try again?",
			model.ResponseUncertainty, sessionID)
		result.GatesPassed = false
		result.GateReason = "reasoner_error"
		result.Confidence = 0.1
		return result, nil
	}

	answer := sanitizeMemoryClaims(out.Answer, factLines, len(docs) > 0)

	var intentAlign, memoryAlign float64 = 1, 1
	if e.embedder != nil && answer != "" {
		answerVec, embedErr := e.embedder.Embed(ctx, answer)
		if embedErr == nil {
			queryVec, qErr := e.embedder.Embed(ctx, q)
			if qErr == nil {
				intentAlign = crtmath.Similarity(queryVec, answerVec)
			}
			memoryAlign = 0
			for _, d := range docs {
				if len(d.Embedding) == 0 {
					continue
				}
				if sim := crtmath.Similarity(answerVec, d.Embedding); sim > memoryAlign {
					memoryAlign = sim
				}
			}
			if len(docs) == 0 {
				memoryAlign = 1
			}
		}
	}

	grounding := groundingScore(answer, docs, factLines)
	responseType := predictResponseType(q)
	severity := severityFromDocs(docs)

	passed, reason := gate.Evaluate(e.cfg, gate.Input{
		IntentAlign:           intentAlign,
		MemoryAlign:           memoryAlign,
		ResponseType:          responseType,
		GroundingScore:        grounding,
		ContradictionSeverity: severity,
	})
	confidence := gate.CalibrateConfidence(out.Confidence, passed, reason)

	anyReintroduced := false
	for _, d := range docs {
		if d.ReintroducedClaim {
			anyReintroduced = true
			break
		}
	}
	if anyReintroduced && !hasCaveatLanguage(answer) {
		if cls.Class == model.ClassAssertion {
			answer += assertionCaveat("", "")
		} else {
			answer += questionCaveat()
		}
	}

	source := model.SourceFallback
	if passed && isPersonalQuery(cls) {
		source = model.SourceSystem
	}

	if source == model.SourceSystem {
		topIDs := topUserMemoryIDs(scored, 3)
		if err := e.mem.RecordBelief(ctx, q, answer, topIDs, avgTrust(scored)); err != nil {
			e.logger.Warn("orchestrator: record belief failed", "error", err)
		}
		for _, id := range topIDs {
			mem, err := e.mem.GetMemoryByID(ctx, id)
			if err != nil {
				continue
			}
			if _, err := e.mem.EvolveTrustForAlignment(ctx, mem); err != nil {
				e.logger.Warn("orchestrator: evolve trust for alignment failed", "error", err)
			}
		}
	} else {
		if err := e.mem.RecordSpeech(ctx, q, answer, "gate_fallback"); err != nil {
			e.logger.Warn("orchestrator: record speech failed", "error", err)
		}
	}

	result := model.QueryResult{
		Answer:          answer,
		ResponseType:    toQueryResponseType(responseType, passed),
		GatesPassed:     passed,
		GateReason:      reason,
		IntentAlignment: float32(intentAlign),
		MemoryAlignment: float32(memoryAlign),
		Confidence:      confidence,
		RetrievedMemories: mems,
		PromptMemories:    mems,
		SessionID:         sessionID,
	}
	for _, d := range docs {
		if d.ReintroducedClaim {
			result.ReintroducedClaimsCount++
		}
	}
	return result, nil
}

// factLinesForSlots renders each relevant slot's current profile value as a
// "slot: value" fact line, the structured context the grounding/sanitization
// checks compare a candidate answer against.
func (e *Engine) factLinesForSlots(slots []string) []string {
	if len(slots) == 0 {
		return nil
	}
	e.profileMu.Lock()
	defer e.profileMu.Unlock()

	lines := make([]string, 0, len(slots))
	for _, slot := range slots {
		if v, ok := e.profile.ActiveValue(slot); ok {
			lines = append(lines, fmt.Sprintf("%s: %s", slot, v.Value))
		}
	}
	return lines
}

func severityFromDocs(docs []RetrievedDoc) model.ContradictionSeverity {
	for _, d := range docs {
		if d.ReintroducedClaim {
			return model.SeverityNote
		}
	}
	return model.SeverityNone
}

// toQueryResponseType maps the gate's response-type axis back onto the
// final answer shape: a passed explanatory answer is an explanation, any
// other passed answer is a belief, a failed one degrades to speech, and
// uncertainty is reserved for the dedicated early-exit path.
func toQueryResponseType(rt model.PredictedResponseType, passed bool) model.ResponseType {
	if !passed {
		return model.ResponseSpeech
	}
	switch rt {
	case model.PredictedExplanatory:
		return model.ResponseExplanation
	default:
		return model.ResponseBelief
	}
}
