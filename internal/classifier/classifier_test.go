package classifier

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/coherent-ai/crt/internal/model"
)

func newClassifier(t *testing.T) *Classifier {
	t.Helper()
	c, err := New()
	require.NoError(t, err)
	return c
}

func TestClassify_RevisionOnCorrectionMarker(t *testing.T) {
	c := newClassifier(t)
	got := c.Classify(Input{
		OldText: "I live in Seattle.",
		NewText: "Actually, I live in Portland now.",
	})
	require.Equal(t, model.ContradictionRevision, got)
}

func TestClassify_RefinementOnSubstring(t *testing.T) {
	c := newClassifier(t)
	got := c.Classify(Input{
		OldText: "I work at Microsoft.",
		NewText: "I work at Microsoft as a senior engineer on the Azure team.",
	})
	require.Equal(t, model.ContradictionRefinement, got)
}

func TestClassify_RefinementOnLocationHierarchy(t *testing.T) {
	c := newClassifier(t)
	got := c.Classify(Input{
		OldText:  "I live in Seattle.",
		NewText:  "I live in Bellevue.",
		SlotName: "location",
		OldValue: "seattle",
		NewValue: "bellevue",
	})
	require.Equal(t, model.ContradictionRefinement, got)
}

func TestClassify_RefinementOnQualifier(t *testing.T) {
	c := newClassifier(t)
	got := c.Classify(Input{
		OldText: "I enjoy hiking.",
		NewText: "More precisely, I enjoy long-distance trail hiking.",
	})
	require.Equal(t, model.ContradictionRefinement, got)
}

func TestClassify_TemporalOnMarker(t *testing.T) {
	c := newClassifier(t)
	got := c.Classify(Input{
		OldText: "I work at Initech.",
		NewText: "I currently work at Globex.",
	})
	require.Equal(t, model.ContradictionTemporal, got)
}

func TestClassify_TemporalOnSeniorityPair(t *testing.T) {
	c := newClassifier(t)
	got := c.Classify(Input{
		OldText: "I'm an engineer at Acme.",
		NewText: "I'm a senior engineer at Acme.",
	})
	require.Equal(t, model.ContradictionTemporal, got)
}

func TestClassify_RefinementOnSimilarityBand(t *testing.T) {
	c := newClassifier(t)
	got := c.Classify(Input{
		OldText:    "My favorite food is pizza.",
		NewText:    "My favorite food is calzone.",
		HasVectors: true,
		Drift:      0.2, // similarity 0.8, inside [0.7, 0.9)
	})
	require.Equal(t, model.ContradictionRefinement, got)
}

func TestClassify_ConflictFallthrough(t *testing.T) {
	c := newClassifier(t)
	got := c.Classify(Input{
		OldText: "My favorite color is blue.",
		NewText: "My favorite color is red.",
	})
	require.Equal(t, model.ContradictionConflict, got)
}

func TestClassify_ConflictWhenSimilarityOutsideBand(t *testing.T) {
	c := newClassifier(t)
	got := c.Classify(Input{
		OldText:    "I love cats.",
		NewText:    "I love motorcycles.",
		HasVectors: true,
		Drift:      0.8, // similarity 0.2, well outside the refinement band
	})
	require.Equal(t, model.ContradictionConflict, got)
}

func TestClassifyClaims_ShortTextFallsBackToClassify(t *testing.T) {
	c := newClassifier(t)
	got := c.ClassifyClaims(Input{OldText: "I live in Seattle.", NewText: "I live in Bellevue.", SlotName: "location", OldValue: "seattle", NewValue: "bellevue"})
	require.Equal(t, model.ContradictionRefinement, got)
}

func TestClassifyClaims_CorrectionMarkerBelowSplitThreshold(t *testing.T) {
	c := newClassifier(t)
	longNew := "I still enjoy hiking on weekends. Actually, I no longer work at Microsoft, I work at Google now. The weather has been lovely lately."
	got := c.ClassifyClaims(Input{OldText: "I work at Microsoft.", NewText: longNew})
	require.Equal(t, model.ContradictionRevision, got)
}

func TestSplitClaims_SentenceBoundaries(t *testing.T) {
	input := "I work at Globex now. My title is senior engineer. I moved to Denver last spring."
	claims := splitClaims(input)
	require.Equal(t, []string{
		"I work at Globex now.",
		"My title is senior engineer.",
		"I moved to Denver last spring.",
	}, claims)
}

func TestSplitClaims_NumberedList(t *testing.T) {
	input := "Three things changed: (1) I work at Globex now, (2) I live in Denver, (3) I go by Alex these days."
	claims := splitClaims(input)
	require.Contains(t, claims, "(1) I work at Globex now")
	require.Contains(t, claims, "(2) I live in Denver")
	require.Contains(t, claims, "(3) I go by Alex these days.")
}

func TestSplitClaims_ShortFragmentsDropped(t *testing.T) {
	input := "Yes. OK. I'm a senior engineer at Globex now, not a junior developer."
	claims := splitClaims(input)
	require.Equal(t, []string{
		"I'm a senior engineer at Globex now, not a junior developer.",
	}, claims)
}

func TestSplitClaims_AbbreviationsPreserved(t *testing.T) {
	input := "I work in e.g. the Seattle office most days. I moved there last year."
	claims := splitClaims(input)
	require.Len(t, claims, 2)
	require.Contains(t, claims[0], "e.g.")
}

func TestSplitClaims_Empty(t *testing.T) {
	require.Nil(t, splitClaims(""))
}

func TestTrustImpact(t *testing.T) {
	require.True(t, TrustImpact(model.ContradictionConflict))
	require.True(t, TrustImpact(model.ContradictionRevision))
	require.False(t, TrustImpact(model.ContradictionRefinement))
	require.False(t, TrustImpact(model.ContradictionTemporal))
}
