package facts

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractTierA_Employer(t *testing.T) {
	facts := ExtractTierA("I work at Microsoft as a senior developer.")
	var employer, title bool
	for _, f := range facts {
		if f.SlotName == "employer" {
			employer = true
			assert.Equal(t, "microsoft", f.NormalizedValue)
		}
		if f.SlotName == "title" {
			title = true
		}
	}
	assert.True(t, employer, "expected employer slot to be extracted")
	assert.True(t, title, "expected title slot to be extracted")
}

func TestExtractTierA_LocationAlias(t *testing.T) {
	a := ExtractTierA("I live in San Francisco.")
	b := ExtractTierA("I live in SF.")
	require.Len(t, a, 1)
	require.Len(t, b, 1)
	assert.Equal(t, a[0].NormalizedValue, b[0].NormalizedValue)
}

func TestExtractTierA_NameDeclaration(t *testing.T) {
	facts := ExtractTierA("My name is Sarah.")
	require.Len(t, facts, 1)
	assert.Equal(t, "name", facts[0].SlotName)
	assert.Equal(t, "sarah", facts[0].NormalizedValue)
}

func TestExtractTierA_UnknownSlotYieldsEmpty(t *testing.T) {
	facts := ExtractTierA("The weather is nice today.")
	assert.Empty(t, facts)
}

func TestExtractTierA_Purity(t *testing.T) {
	text := "I work at Amazon as an engineer."
	assert.Equal(t, ExtractTierA(text), ExtractTierA(text))
}

func TestExtractTierB_FavoritePattern(t *testing.T) {
	facts := ExtractTierB("My favorite color is blue.")
	require.Len(t, facts, 1)
	assert.Equal(t, "color", facts[0].SlotName)
	assert.Equal(t, "blue", facts[0].NormalizedValue)
}

func TestExtractor_CachesByExactText(t *testing.T) {
	e := NewExtractor(true, 10, 10000)
	text := "I work at Google as a staff engineer."
	first := e.Extract(text)
	second := e.Extract(text)
	assert.Equal(t, first, second)
}

func TestExtractor_SkipsOverlongText(t *testing.T) {
	e := NewExtractor(false, 10, 5)
	longText := "I work at " + strings.Repeat("Megacorp ", 5)
	facts := e.Extract(longText)
	assert.NotNil(t, facts)
}

func TestExtractor_EvictsOldestOnOverflow(t *testing.T) {
	e := NewExtractor(false, 2, 10000)
	e.Extract("I work at Alpha.")
	e.Extract("I work at Beta.")
	e.Extract("I work at Gamma.")
	e.mu.Lock()
	_, hasAlpha := e.index["I work at Alpha."]
	e.mu.Unlock()
	assert.False(t, hasAlpha, "oldest entry should have been evicted")
}
