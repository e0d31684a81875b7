// Package classifier implements the contradiction classifier (§4.4): an
// ordered rule cascade that labels a detected claim pair as REFINEMENT,
// REVISION, TEMPORAL or CONFLICT. It never resolves contradictions — only labels them.
package classifier

import (
	"strings"
	"unicode"

	"github.com/coregx/ahocorasick"

	"github.com/coherent-ai/crt/internal/model"
)

// claimSplitThreshold is the character length above which NewText is split
// into individual claims before classification, so a single multi-fact
// utterance doesn't collapse to one coarse classification.
const claimSplitThreshold = 160

// severityRank orders contradiction types from least to most consequential
// for trust purposes, used to pick the most severe claim-level result.
var severityRank = map[model.ContradictionType]int{
	model.ContradictionRefinement: 0,
	model.ContradictionTemporal:   1,
	model.ContradictionRevision:   2,
	model.ContradictionConflict:   3,
}

var (
	correctionMarkers = []string{"actually", "correction", "i meant", "not ", "wrong", "mistake"}
	refinementQualifiers = []string{"specifically", "more precisely"}
	temporalMarkers = []string{"now", "currently", "used to", "switched", "changed", "since then", "promoted"}
)

// seniorityLexicon maps a junior-side term to senior-side terms it is
// commonly superseded by, e.g. "engineer" -> "senior engineer". A match in
// either direction across old/new text counts as a seniority pair.
var seniorityLexicon = map[string][]string{
	"engineer":  {"senior engineer", "staff engineer", "principal engineer", "lead engineer"},
	"developer": {"senior developer", "lead developer", "staff developer"},
	"manager":   {"senior manager", "director", "vp"},
	"analyst":   {"senior analyst", "lead analyst"},
}

// locationHierarchy maps a broader place name to specific places nested
// within it (metro -> city). A match lets the classifier recognize
// "Seattle" -> "Bellevue" as a refinement, not a conflict.
var locationHierarchy = map[string][]string{
	"seattle":       {"bellevue", "redmond", "kirkland", "tacoma", "everett"},
	"san francisco": {"oakland", "berkeley", "daly city"},
	"new york":      {"brooklyn", "queens", "manhattan", "the bronx", "staten island"},
}

// Classifier runs the ordered rule cascade. It is stateless aside from the
// pre-built Aho-Corasick automatons for each marker family, so one instance
// may be shared across threads.
type Classifier struct {
	correction *ahocorasick.Automaton
	refinement *ahocorasick.Automaton
	temporal   *ahocorasick.Automaton
}

// New builds the marker automatons once; reuse the returned Classifier for
// every classification call.
func New() (*Classifier, error) {
	correction, err := ahocorasick.NewBuilder().AddStrings(correctionMarkers).SetMatchKind(ahocorasick.LeftmostLongest).SetPrefilter(true).Build()
	if err != nil {
		return nil, err
	}
	refinement, err := ahocorasick.NewBuilder().AddStrings(refinementQualifiers).SetMatchKind(ahocorasick.LeftmostLongest).SetPrefilter(true).Build()
	if err != nil {
		return nil, err
	}
	temporal, err := ahocorasick.NewBuilder().AddStrings(temporalMarkers).SetMatchKind(ahocorasick.LeftmostLongest).SetPrefilter(true).Build()
	if err != nil {
		return nil, err
	}
	return &Classifier{correction: correction, refinement: refinement, temporal: temporal}, nil
}

// Input bundles everything the cascade needs to classify one claim pair.
type Input struct {
	OldText   string
	NewText   string
	Drift     float64 // 1 - similarity; only consulted when HasVectors is set
	HasVectors bool
	SlotName  string
	OldValue  string
	NewValue  string
}

// Classify runs the five-rule cascade in order and returns the first match.
func (c *Classifier) Classify(in Input) model.ContradictionType {
	lowerNew := strings.ToLower(in.NewText)
	lowerOld := strings.ToLower(in.OldText)

	// 1. Revision: explicit correction markers in the new text.
	if len(c.correction.FindAllOverlapping([]byte(lowerNew))) > 0 {
		return model.ContradictionRevision
	}

	// 2. Refinement: substring relationship (ignoring trailing sentence
	// punctuation), location hierarchy, or qualifiers.
	trimmedOld := strings.TrimRight(lowerOld, ".!? ")
	trimmedNew := strings.TrimRight(lowerNew, ".!? ")
	if strings.Contains(trimmedOld, trimmedNew) || strings.Contains(trimmedNew, trimmedOld) {
		return model.ContradictionRefinement
	}
	if in.SlotName == "location" && isLocationRefinement(in.OldValue, in.NewValue) {
		return model.ContradictionRefinement
	}
	if len(c.refinement.FindAllOverlapping([]byte(lowerNew))) > 0 {
		return model.ContradictionRefinement
	}

	// 3. Temporal: temporal markers in either text, or a seniority-pair match.
	if len(c.temporal.FindAllOverlapping([]byte(lowerNew))) > 0 || len(c.temporal.FindAllOverlapping([]byte(lowerOld))) > 0 {
		return model.ContradictionTemporal
	}
	if isSeniorityPair(lowerOld, lowerNew) {
		return model.ContradictionTemporal
	}

	// 4. Refinement: vector similarity in [0.7, 0.9) band.
	if in.HasVectors {
		similarity := 1 - in.Drift
		if similarity >= 0.7 && similarity < 0.9 {
			return model.ContradictionRefinement
		}
	}

	// 5. Otherwise conflict.
	return model.ContradictionConflict
}

// ClassifyClaims classifies in, splitting NewText into individual claims
// when it's long enough to plausibly bundle several assertions. Each claim
// is classified against OldText independently and the most severe result
// wins, so one contradicting claim inside a multi-fact utterance isn't
// diluted by the rest agreeing.
func (c *Classifier) ClassifyClaims(in Input) model.ContradictionType {
	if len(in.NewText) < claimSplitThreshold {
		return c.Classify(in)
	}

	claims := splitClaims(in.NewText)
	if len(claims) <= 1 {
		return c.Classify(in)
	}

	worst := model.ContradictionRefinement
	for _, claim := range claims {
		claimIn := in
		claimIn.NewText = claim
		result := c.Classify(claimIn)
		if severityRank[result] > severityRank[worst] {
			worst = result
		}
	}
	return worst
}

// minClaimChars is the shortest fragment treated as a standalone claim.
// Shorter fragments ("My name is." / "Yes.") don't carry enough content to
// classify independently and are dropped before the per-claim cascade runs.
const minClaimChars = 20

// splitClaims breaks a multi-fact utterance into individual claims so
// ClassifyClaims can classify each one against OldText on its own, instead
// of running the cascade once over the whole bundle. It splits on sentence
// boundaries and parenthesized list markers ("(1) ... (2) ..."), then drops
// fragments under minClaimChars.
func splitClaims(utterance string) []string {
	if len(utterance) == 0 {
		return nil
	}

	var expanded []string
	for _, s := range splitSentences(utterance) {
		expanded = append(expanded, splitNumberedItems(s)...)
	}

	var claims []string
	for _, s := range expanded {
		s = strings.TrimSpace(s)
		if len(s) >= minClaimChars {
			claims = append(claims, s)
		}
	}
	return claims
}

// splitSentences splits text on ./!/? followed by whitespace, requiring the
// next non-space rune to be uppercase, a digit, or an opening quote/paren —
// this keeps abbreviations like "e.g." and decimals like "6/10.5" intact.
func splitSentences(text string) []string {
	var sentences []string
	runes := []rune(text)
	start := 0

	for i := 0; i < len(runes); i++ {
		if runes[i] != '.' && runes[i] != '!' && runes[i] != '?' {
			continue
		}
		j := i + 1
		for j < len(runes) && runes[j] == ' ' {
			j++
		}
		if j >= len(runes) {
			if s := strings.TrimSpace(string(runes[start : i+1])); s != "" {
				sentences = append(sentences, s)
			}
			start = j
			continue
		}
		if j == i+1 {
			continue
		}
		next := runes[j]
		if unicode.IsUpper(next) || unicode.IsDigit(next) || next == '(' || next == '"' || next == '\'' {
			if s := strings.TrimSpace(string(runes[start : i+1])); s != "" {
				sentences = append(sentences, s)
			}
			start = j
		}
	}
	if start < len(runes) {
		if s := strings.TrimSpace(string(runes[start:])); s != "" {
			sentences = append(sentences, s)
		}
	}
	return sentences
}

// splitNumberedItems splits a sentence containing "(1) ... (2) ..." claim
// markers into individual items, returning the original string unchanged
// when no such marker is present.
func splitNumberedItems(s string) []string {
	var parts []string
	var current strings.Builder
	runes := []rune(s)

	for i := 0; i < len(runes); i++ {
		if runes[i] == '(' && i+2 < len(runes) && unicode.IsDigit(runes[i+1]) {
			j := i + 1
			for j < len(runes) && unicode.IsDigit(runes[j]) {
				j++
			}
			if j < len(runes) && runes[j] == ')' {
				if before := strings.TrimRight(strings.TrimSpace(current.String()), ", "); before != "" {
					parts = append(parts, before)
				}
				current.Reset()
				current.WriteString(string(runes[i : j+1]))
				i = j
				continue
			}
		}
		current.WriteRune(runes[i])
	}
	if remainder := strings.TrimSpace(current.String()); remainder != "" {
		parts = append(parts, remainder)
	}
	if len(parts) <= 1 {
		return []string{s}
	}
	return parts
}

func isLocationRefinement(oldValue, newValue string) bool {
	oldValue, newValue = strings.ToLower(oldValue), strings.ToLower(newValue)
	for metro, cities := range locationHierarchy {
		if oldValue == metro {
			for _, city := range cities {
				if newValue == city || strings.Contains(newValue, city) {
					return true
				}
			}
		}
	}
	return false
}

func isSeniorityPair(oldText, newText string) bool {
	for junior, seniors := range seniorityLexicon {
		if !strings.Contains(oldText, junior) {
			continue
		}
		for _, senior := range seniors {
			if strings.Contains(newText, senior) {
				return true
			}
		}
	}
	return false
}

// TrustImpact reports whether a classification should reduce the older
// memory's trust: only CONFLICT and REVISION may; REFINEMENT and TEMPORAL
// are recorded without penalizing the older side.
func TrustImpact(t model.ContradictionType) bool {
	return t == model.ContradictionConflict || t == model.ContradictionRevision
}
