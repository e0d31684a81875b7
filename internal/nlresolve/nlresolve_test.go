package nlresolve

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coherent-ai/crt/internal/model"
)

func TestHasResolutionIntent_MatchesMarkerFamilies(t *testing.T) {
	d, err := New()
	require.NoError(t, err)

	assert.True(t, d.HasResolutionIntent("Actually, I work at Google."))
	assert.True(t, d.HasResolutionIntent("Go with the second one."))
	assert.True(t, d.HasResolutionIntent("Please ignore that, it was wrong."))
	assert.False(t, d.HasResolutionIntent("The weather is nice today."))
}

func sampleEntry(affectsSlots string) model.ContradictionEntry {
	return model.ContradictionEntry{
		LedgerID:     "ledger-1",
		OldMemoryID:  "mem-old",
		NewMemoryID:  "mem-new",
		Status:       model.StatusOpen,
		AffectsSlots: affectsSlots,
	}
}

func TestResolve_SlotOverlapWithOldValueMatch(t *testing.T) {
	candidates := []Candidate{
		{Entry: sampleEntry("employer"), OldValue: "microsoft", NewValue: "google"},
	}
	out := Resolve("Let's keep the old one, Microsoft.", []string{"employer"}, candidates)
	require.Len(t, out, 1)
	assert.Equal(t, model.ResolutionUserChoseOld, out[0].Method)
	assert.Equal(t, model.MemoryID("mem-old"), out[0].ChosenMemoryID)
	assert.Equal(t, model.MemoryID("mem-new"), out[0].DeprecatedMemoryID)
}

func TestResolve_FreeTextValueMatchWithoutSlotOverlap(t *testing.T) {
	candidates := []Candidate{
		{Entry: sampleEntry(""), OldValue: "seattle", NewValue: "portland"},
	}
	out := Resolve("I actually meant Portland.", nil, candidates)
	require.Len(t, out, 1)
	assert.Equal(t, model.ResolutionUserChoseNew, out[0].Method)
}

func TestResolve_BothValuesPresentPicksEarliest(t *testing.T) {
	candidates := []Candidate{
		{Entry: sampleEntry("employer"), OldValue: "microsoft", NewValue: "google"},
	}
	out := Resolve("Microsoft, not Google.", []string{"employer"}, candidates)
	require.Len(t, out, 1)
	assert.Equal(t, model.ResolutionUserChoseOld, out[0].Method)
}

func TestResolve_SkipsClosedEntries(t *testing.T) {
	entry := sampleEntry("employer")
	entry.Status = model.StatusResolved
	candidates := []Candidate{{Entry: entry, OldValue: "microsoft", NewValue: "google"}}
	out := Resolve("Microsoft is right.", []string{"employer"}, candidates)
	assert.Empty(t, out)
}

func TestResolve_SlotOverlapWithoutVerbatimValueIsSkipped(t *testing.T) {
	candidates := []Candidate{
		{Entry: sampleEntry("employer"), OldValue: "microsoft", NewValue: "google"},
	}
	out := Resolve("Let's go with the second one.", []string{"employer"}, candidates)
	assert.Empty(t, out, "slot overlap alone without a verbatim value match should not guess a side")
}

func TestWordBoundaryIndex_RejectsSubstringWithinLargerWord(t *testing.T) {
	assert.Equal(t, -1, wordBoundaryIndex("i work at microsoftware inc", "microsoft"))
	assert.True(t, wordBoundaryIndex("i work at microsoft now", "microsoft") >= 0)
}
