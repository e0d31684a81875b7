package orchestrator

import (
	"regexp"
	"strings"

	"github.com/orsinium-labs/stopwords"
)

var english = stopwords.MustGet("en")

// caveatPattern matches the caveat language the orchestrator must attach
// whenever a reintroduced (open-contradicted) claim backs an answer.
var caveatPattern = regexp.MustCompile(`(?i)changed from|most recent update|previously|used to be|as of now|no longer`)

// hasCaveatLanguage reports whether answer already carries caveat language.
func hasCaveatLanguage(answer string) bool {
	return caveatPattern.MatchString(answer)
}

// assertionCaveat builds the caveat appended to an assertion-turn answer.
func assertionCaveat(oldValue, newValue string) string {
	if oldValue == "" {
		return " (most recent update)"
	}
	return " (changed from " + oldValue + " to " + newValue + ")"
}

// questionCaveat builds the caveat appended to a question-turn answer.
func questionCaveat() string {
	return " (most recent update)"
}

// groundingScore implements §4.7's grounding measure: an answer whose
// normalized text equals, contains, or is contained in any retrieved
// memory's text scores 1.0; a structured "slot: value" answer matching a
// resolved fact line also scores 1.0; otherwise the best share of the
// answer's content words found in one memory, plus 0.1 when both carry
// quotes and 0.1 for answers of six words or fewer, clamped to 1.
func groundingScore(answer string, docs []RetrievedDoc, factLines []string) float64 {
	norm := normalizeForMatch(answer)
	if norm == "" {
		return 0
	}

	for _, line := range factLines {
		if norm == normalizeForMatch(line) {
			return 1.0
		}
	}
	for _, d := range docs {
		dn := normalizeForMatch(d.Text)
		if norm == dn || strings.Contains(dn, norm) || strings.Contains(norm, dn) {
			return 1.0
		}
	}

	best := 0.0
	answerWords := contentWordSet(answer)
	if len(answerWords) == 0 {
		return 0
	}
	for _, d := range docs {
		docWords := contentWordSet(d.Text)
		overlap := 0
		for w := range answerWords {
			if docWords[w] {
				overlap++
			}
		}
		score := float64(overlap) / float64(len(answerWords))
		if strings.Contains(d.Text, "\"") && strings.Contains(answer, "\"") {
			score += 0.1
		}
		if len(strings.Fields(answer)) <= 6 {
			score += 0.1
		}
		if score > best {
			best = score
		}
	}
	return clamp01(best)
}

func normalizeForMatch(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	s = strings.Trim(s, ".,!?;:\"'")
	return strings.Join(strings.Fields(s), " ")
}

func contentWordSet(s string) map[string]bool {
	out := make(map[string]bool)
	for _, w := range strings.Fields(normalizeForMatch(s)) {
		if english.Contains(w) || len(w) == 0 {
			continue
		}
		out[w] = true
	}
	return out
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// sanitizeMemoryClaims strips "I remember ..." claims that share no content
// word with any resolved FACT line — the orchestrator never lets the
// reasoner assert grounding it doesn't have. It only removes such claims;
// it never adds a denial of memory.
var rememberClaimPattern = regexp.MustCompile(`(?i)\bi remember[^.!?]*[.!?]`)

func sanitizeMemoryClaims(answer string, factLines []string, _ bool) string {
	return rememberClaimPattern.ReplaceAllStringFunc(answer, func(claim string) string {
		for _, line := range factLines {
			if wordOverlap(claim, line) {
				return claim
			}
		}
		return ""
	})
}

func wordOverlap(a, b string) bool {
	bWords := contentWordSet(b)
	for w := range contentWordSet(a) {
		if bWords[w] {
			return true
		}
	}
	return false
}
