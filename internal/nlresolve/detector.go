// Package nlresolve implements the natural-language resolution detector
// (§4.9): recognizing when a user utterance is resolving an open
// contradiction rather than asserting a new fact, and picking the side the
// user's phrasing points to.
package nlresolve

import (
	"strings"

	"github.com/coregx/ahocorasick"
)

// resolutionMarkers is the closed library of phrase families from §4.9,
// flattened into one pattern set. Family membership doesn't matter for
// has_resolution_intent — any match is sufficient — so they're compiled
// into a single automaton.
var resolutionMarkers = []string{
	// revision markers
	"actually", "correction", "i meant", "my mistake", "i misspoke",
	// correctness confirmations
	"that's right", "that's correct", "yes exactly", "correct",
	// switched/changed/moved/now-working
	"switched to", "changed to", "moved to", "now working",
	// ignore/keep old
	"ignore that", "keep the old", "disregard that", "nevermind that",
	// go-with/prefer/use-instead
	"go with", "i prefer", "use instead",
	// replace/override/update
	"replace that", "override", "update that",
	// choose/select/pick
	"choose", "select", "pick",
}

// Detector recognizes resolution intent in free text.
type Detector struct {
	automaton *ahocorasick.Automaton
}

// New builds a Detector from the closed marker library.
func New() (*Detector, error) {
	automaton, err := ahocorasick.NewBuilder().
		AddStrings(resolutionMarkers).
		SetMatchKind(ahocorasick.LeftmostLongest).
		SetPrefilter(true).
		Build()
	if err != nil {
		return nil, err
	}
	return &Detector{automaton: automaton}, nil
}

// HasResolutionIntent reports whether text matches any marker in the
// closed library.
func (d *Detector) HasResolutionIntent(text string) bool {
	return len(d.automaton.FindAllOverlapping([]byte(strings.ToLower(text)))) > 0
}
