// Package anchor implements the semantic anchor: the bundle of context
// carried alongside a clarification question so the user's answer can be
// parsed back into a grounded resolution decision.
package anchor

import (
	"strings"

	"github.com/coherent-ai/crt/internal/model"
)

// GenerateClarificationPrompt produces a type-aware prompt for anchor's
// contradiction type. It never names the internal classification labels in
// the returned text — the prompt is user-facing.
func GenerateClarificationPrompt(a model.SemanticAnchor) string {
	switch a.ContradictionType {
	case model.ContradictionRefinement:
		return "Did you mean to be more specific, or are both correct?"
	case model.ContradictionRevision:
		return "Which is correct?"
	case model.ContradictionTemporal:
		return "Did the situation change over time, or which is current?"
	default:
		return "These can't both be true — which is correct?"
	}
}

var (
	oldSideWords   = []string{"first", "old", "earlier", "previously"}
	newSideWords   = []string{"new", "second", "later", "now", "actually"}
	bothTrueWords  = []string{"both", "different times", "changed", "evolved"}
	bothWrongWords = []string{"neither", "wrong", "incorrect"}
	ordinalOld     = []string{"1)", "option 1"}
	ordinalNew     = []string{"2)", "option 2"}
)

// ParsedAnswer is the structured outcome of parsing a user's reply to a
// clarification prompt.
type ParsedAnswer struct {
	ResolutionMethod model.ResolutionMethod
	ChosenMemoryID   model.MemoryID
	NewStatus        model.ContradictionStatus
	Confidence       float32
	ParsedValue      string
}

// ParseUserAnswer runs the ordered keyword-family cascade against answer
// and returns the resulting resolution decision. Order: both-wrong, then
// both-true, then old/new side (ordinal markers such as "option 1" count
// toward their side). When both sides match, the side whose marker appears
// first in the answer wins.
func ParseUserAnswer(a model.SemanticAnchor, answer string) ParsedAnswer {
	lower := strings.ToLower(answer)

	if containsAny(lower, bothWrongWords) {
		return ParsedAnswer{ResolutionMethod: model.ResolutionBothWrong, NewStatus: model.StatusResolved, Confidence: 0.8}
	}
	if containsAny(lower, bothTrueWords) {
		return ParsedAnswer{ResolutionMethod: model.ResolutionBothTrueTemporal, NewStatus: model.StatusResolved, Confidence: 0.8}
	}

	oldHit := containsAny(lower, oldSideWords) || containsAny(lower, ordinalOld)
	newHit := containsAny(lower, newSideWords) || containsAny(lower, ordinalNew)

	var parsed ParsedAnswer
	switch {
	case oldHit && !newHit:
		parsed = ParsedAnswer{ResolutionMethod: model.ResolutionUserChoseOld, ChosenMemoryID: a.OldMemoryID, NewStatus: model.StatusResolved, Confidence: 0.85}
	case newHit && !oldHit:
		parsed = ParsedAnswer{ResolutionMethod: model.ResolutionUserChoseNew, ChosenMemoryID: a.NewMemoryID, NewStatus: model.StatusResolved, Confidence: 0.85}
	case oldHit && newHit:
		parsed = pickByEarliestPosition(a, lower)
	default:
		parsed = ParsedAnswer{ResolutionMethod: model.ResolutionUserClarified, NewStatus: model.StatusResolved, Confidence: 0.5}
	}

	if a.SlotName != "" {
		if v := extractVerbatimValue(answer, a.OldValue, a.NewValue); v != "" {
			parsed.ParsedValue = v
		}
	}
	return parsed
}

func pickByEarliestPosition(a model.SemanticAnchor, lower string) ParsedAnswer {
	oldPos := earliestIndex(lower, oldSideWords, ordinalOld)
	newPos := earliestIndex(lower, newSideWords, ordinalNew)
	if oldPos <= newPos {
		return ParsedAnswer{ResolutionMethod: model.ResolutionUserChoseOld, ChosenMemoryID: a.OldMemoryID, NewStatus: model.StatusResolved, Confidence: 0.6}
	}
	return ParsedAnswer{ResolutionMethod: model.ResolutionUserChoseNew, ChosenMemoryID: a.NewMemoryID, NewStatus: model.StatusResolved, Confidence: 0.6}
}

func earliestIndex(text string, families ...[]string) int {
	best := len(text) + 1
	for _, family := range families {
		for _, w := range family {
			if i := strings.Index(text, w); i >= 0 && i < best {
				best = i
			}
		}
	}
	return best
}

func containsAny(text string, words []string) bool {
	for _, w := range words {
		if strings.Contains(text, w) {
			return true
		}
	}
	return false
}

// extractVerbatimValue returns oldValue or newValue verbatim if it appears
// as a word-boundary-free substring of answer, preferring whichever appears.
func extractVerbatimValue(answer, oldValue, newValue string) string {
	lower := strings.ToLower(answer)
	if newValue != "" && strings.Contains(lower, strings.ToLower(newValue)) {
		return newValue
	}
	if oldValue != "" && strings.Contains(lower, strings.ToLower(oldValue)) {
		return oldValue
	}
	return ""
}

// IsResolutionGrounded validates a parsed resolution decision against the
// anchor it was parsed from (§4.8's grounding invariant).
func IsResolutionGrounded(a model.SemanticAnchor, p ParsedAnswer) bool {
	if p.Confidence < 0.3 {
		return false
	}
	switch p.ResolutionMethod {
	case model.ResolutionUserChoseOld:
		if p.ChosenMemoryID != a.OldMemoryID {
			return false
		}
	case model.ResolutionUserChoseNew:
		if p.ChosenMemoryID != a.NewMemoryID {
			return false
		}
	}

	if p.ParsedValue != "" {
		matchesOld := strings.EqualFold(p.ParsedValue, a.OldValue)
		matchesNew := strings.EqualFold(p.ParsedValue, a.NewValue)
		if !matchesOld && !matchesNew {
			if p.ResolutionMethod != model.ResolutionUserClarified && p.ResolutionMethod != model.ResolutionBothWrong {
				return false
			}
		}
	}
	return true
}
