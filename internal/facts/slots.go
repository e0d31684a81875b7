// Package facts implements the two-tier fact-slot extractor: a closed set
// of hard slots pulled via anchored regular expressions, plus an optional
// open-tuple tier for free-text (attribute, value) pairs.
package facts

import (
	"regexp"
	"strings"

	"github.com/coherent-ai/crt/internal/model"
)

// slotPattern binds a canonical slot name to the anchored patterns that
// extract it. Patterns are tried in order; the first match wins.
type slotPattern struct {
	slot     string
	patterns []*regexp.Regexp
}

// tierA is the closed set of hard slots. Anchoring favors precision over
// recall: a miss falls through to Tier B (if enabled) rather than guessing.
var tierA = []slotPattern{
	{
		slot: "name",
		patterns: []*regexp.Regexp{
			regexp.MustCompile(`(?i)\bmy name is ([A-Z][\w'-]*(?:\s[A-Z][\w'-]*){0,2})`),
			regexp.MustCompile(`(?i)\bi'?m ([A-Z][\w'-]*(?:\s[A-Z][\w'-]*){0,2})\b(?:,|\.|$| and)`),
			regexp.MustCompile(`(?i)\bcall me ([A-Z][\w'-]*)\b`),
		},
	},
	{
		slot: "employer",
		patterns: []*regexp.Regexp{
			regexp.MustCompile(`(?i:\bi work (?:at|for)) ([A-Z][\w&.'-]*(?:\s[A-Z][\w&.'-]*){0,3})`),
			regexp.MustCompile(`(?i:\bemployed (?:at|by)) ([A-Z][\w&.'-]*(?:\s[A-Z][\w&.'-]*){0,3})`),
		},
	},
	{
		slot: "location",
		patterns: []*regexp.Regexp{
			regexp.MustCompile(`(?i)\bi live in ([A-Z][\w\s,'-]*?)(?:\.|,\s*(?:specifically|which)|$)`),
			regexp.MustCompile(`(?i)\bi'?m (?:based|located) in ([A-Z][\w\s,'-]*?)(?:\.|$)`),
			regexp.MustCompile(`(?i)\bi'?m from ([A-Z][\w\s,'-]*?)(?:\.|$)`),
		},
	},
	{
		slot: "title",
		patterns: []*regexp.Regexp{
			regexp.MustCompile(`(?i)\bas an? ([a-z][\w\s-]*?(?:developer|engineer|manager|designer|scientist|analyst|director|lead|architect))\b`),
			regexp.MustCompile(`(?i)\bi'?m an? ([a-z][\w\s-]*?(?:developer|engineer|manager|designer|scientist|analyst|director|lead|architect))\b`),
		},
	},
	{
		slot: "programming_years",
		patterns: []*regexp.Regexp{
			regexp.MustCompile(`(?i)\b(\d+)\s*\+?\s*years?\s+(?:of\s+)?(?:programming|coding|software)`),
			regexp.MustCompile(`(?i)\bprogramming\s+for\s+(\d+)\s*\+?\s*years?`),
		},
	},
}

// locationAliases normalizes common abbreviations to a single canonical
// form, so "SF" and "San Francisco" produce the same normalized value.
var locationAliases = map[string]string{
	"sf":  "san francisco",
	"nyc": "new york",
	"la":  "los angeles",
}

// Normalize collapses whitespace/case and applies known aliases so that
// "San Francisco", "SF" and "san francisco" all normalize identically.
func Normalize(slot, raw string) string {
	v := strings.ToLower(strings.TrimSpace(raw))
	v = strings.Join(strings.Fields(v), " ")
	v = strings.TrimRight(v, ".,;:")
	if slot == "location" {
		if alias, ok := locationAliases[v]; ok {
			return alias
		}
	}
	return v
}

// ExtractTierA runs the closed hard-slot patterns against text and returns
// one ExtractedFact per matched slot, first-match-wins per slot.
func ExtractTierA(text string) []model.ExtractedFact {
	var out []model.ExtractedFact
	for _, sp := range tierA {
		for _, re := range sp.patterns {
			m := re.FindStringSubmatch(text)
			if m == nil || len(m) < 2 {
				continue
			}
			raw := strings.TrimSpace(m[1])
			if raw == "" {
				continue
			}
			out = append(out, model.ExtractedFact{
				SlotName:        sp.slot,
				RawValue:        raw,
				NormalizedValue: Normalize(sp.slot, raw),
				TemporalStatus:  model.TemporalActive,
				Confidence:      0.9,
			})
			break
		}
	}
	return out
}
