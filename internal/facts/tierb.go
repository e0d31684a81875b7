package facts

import (
	"regexp"
	"strings"

	"github.com/orsinium-labs/stopwords"

	"github.com/coherent-ai/crt/internal/model"
)

var english = stopwords.MustGet("en")

// openTuplePatterns capture loose (attribute, value) phrasing that doesn't
// fit a Tier A hard slot — preferences, possessions, relationships. Each
// group 1 is the attribute phrase, group 2 the value phrase.
var openTuplePatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\bmy favorite (\w[\w\s]*?) is ([\w\s'-]+?)(?:\.|$)`),
	regexp.MustCompile(`(?i)\bi (enjoy|love|like|prefer) ([\w\s'-]+?)(?:\.|$)`),
	regexp.MustCompile(`(?i)\bmy (\w[\w\s]*?) is ([\w\s'-]+?)(?:\.|$)`),
}

// ExtractTierB produces open (attribute, value) tuples from free text,
// stopword-filtering the attribute phrase down to its content words.
// Confidence is lower than Tier A's anchored matches since the pattern set
// is looser. Patterns are tried in order; a value span already captured by
// an earlier pattern is not emitted again by a later, broader one.
func ExtractTierB(text string) []model.ExtractedFact {
	var out []model.ExtractedFact
	seenValueStart := make(map[int]bool)
	for _, re := range openTuplePatterns {
		for _, m := range re.FindAllStringSubmatchIndex(text, -1) {
			if len(m) < 6 || m[2] < 0 || m[4] < 0 || seenValueStart[m[4]] {
				continue
			}
			attr := contentWords(text[m[2]:m[3]])
			value := strings.TrimSpace(text[m[4]:m[5]])
			if attr == "" || value == "" {
				continue
			}
			seenValueStart[m[4]] = true
			out = append(out, model.ExtractedFact{
				SlotName:        attr,
				RawValue:        value,
				NormalizedValue: Normalize(attr, value),
				TemporalStatus:  model.TemporalActive,
				Confidence:      0.55,
			})
		}
	}
	return out
}

// contentWords strips stopwords from phrase and rejoins what remains with
// underscores, giving a stable slot-like name for an open attribute phrase
// ("favorite color" -> "favorite_color", "the" dropped from "the city" -> "city").
func contentWords(phrase string) string {
	fields := strings.Fields(strings.ToLower(phrase))
	var kept []string
	for _, f := range fields {
		f = strings.Trim(f, ".,!?;:'\"")
		if f == "" {
			continue
		}
		if english.Contains(f) {
			continue
		}
		kept = append(kept, f)
	}
	return strings.Join(kept, "_")
}
