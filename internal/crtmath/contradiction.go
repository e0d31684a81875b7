package crtmath

import "github.com/coherent-ai/crt/internal/model"

// DetectInput bundles everything the pre-check needs to decide whether a
// candidate pair is worth classifying at all.
type DetectInput struct {
	Drift          float64
	OldConfidence  float32
	NewConfidence  float32
	OldText        string
	NewText        string
	SlotName       string
	OldNormalized  string
	NewNormalized  string
}

// DetectContradiction is the cheap pre-check run before the full classifier.
// It returns (false, "paraphrase") when the two normalized slot values are
// equal — the paraphrase gate — and (false, "identical_text") when both
// texts are non-empty and identical; otherwise it returns true. The reason
// string is always populated so callers can log or surface it.
func DetectContradiction(in DetectInput) (isReal bool, reason string) {
	if in.SlotName != "" && in.OldNormalized != "" && in.NewNormalized != "" && in.OldNormalized == in.NewNormalized {
		return false, "paraphrase"
	}
	if in.OldText != "" && in.OldText == in.NewText {
		return false, "identical_text"
	}
	return true, "candidate"
}

// ContextualInput carries the temporal/domain context is_true_contradiction_contextual gates on.
type ContextualInput struct {
	SlotName       string
	NewValue       string
	OldValue       string
	NewTemporal    model.TemporalStatus
	OldTemporal    model.TemporalStatus
	NewDomains     []string
	OldDomains     []string
	Drift          float64
}

// temporalDisjointPairs lists temporal-status pairs that can never conflict:
// a claim that was true in the past and one asserted as currently active
// describe different points in time, not competing facts about "now".
var temporalDisjointPairs = map[[2]model.TemporalStatus]bool{
	{model.TemporalActive, model.TemporalPast}:   true,
	{model.TemporalPast, model.TemporalActive}:   true,
	{model.TemporalActive, model.TemporalFuture}: true,
	{model.TemporalFuture, model.TemporalActive}: true,
}

// IsTrueContradictionContextual applies the temporal/domain gate on top of
// DetectContradiction: a drift-flagged pair is downgraded to "not a
// contradiction" if the two claims occupy disjoint temporal statuses or
// disjoint domain sets.
func IsTrueContradictionContextual(in ContextualInput) bool {
	if in.NewTemporal != "" && in.OldTemporal != "" {
		if temporalDisjointPairs[[2]model.TemporalStatus{in.NewTemporal, in.OldTemporal}] {
			return false
		}
	}
	if len(in.NewDomains) > 0 && len(in.OldDomains) > 0 && !domainsOverlap(in.NewDomains, in.OldDomains) {
		return false
	}
	return true
}

func domainsOverlap(a, b []string) bool {
	set := make(map[string]struct{}, len(a))
	for _, d := range a {
		set[d] = struct{}{}
	}
	for _, d := range b {
		if _, ok := set[d]; ok {
			return true
		}
	}
	return false
}
