package nlresolve

import (
	"strings"

	"github.com/coherent-ai/crt/internal/model"
)

// Candidate is an open contradiction plus the two values the orchestrator
// has already resolved from its referenced memories, used to decide which
// side a resolving utterance points to.
type Candidate struct {
	Entry    model.ContradictionEntry
	OldValue string
	NewValue string
}

// Resolution is the picked outcome for one candidate: which side the user's
// phrasing chose, and the reason to attach when deprecating the other side.
type Resolution struct {
	Entry            model.ContradictionEntry
	Method           model.ResolutionMethod
	ChosenMemoryID   model.MemoryID
	DeprecatedMemoryID model.MemoryID
	DeprecationReason  string
}

// slotsOverlap reports whether any extracted slot name appears in entry's
// affects_slots set.
func slotsOverlap(entry model.ContradictionEntry, extractedSlots []string) bool {
	for _, slot := range extractedSlots {
		if entry.AffectsSlot(slot) {
			return true
		}
	}
	return false
}

// Resolve scans candidates for open contradictions whose affected slots
// overlap extractedSlots, or whose old/new values appear as free-text
// word-boundary matches in utterance, and picks the side the utterance
// points to. Candidates with no match in either mode are skipped.
func Resolve(utterance string, extractedSlots []string, candidates []Candidate) []Resolution {
	lower := strings.ToLower(utterance)
	var out []Resolution

	for _, c := range candidates {
		if !c.Entry.IsOpen() {
			continue
		}
		slotMatch := slotsOverlap(c.Entry, extractedSlots)
		oldPos := wordBoundaryIndex(lower, c.OldValue)
		newPos := wordBoundaryIndex(lower, c.NewValue)
		if !slotMatch && oldPos < 0 && newPos < 0 {
			continue
		}

		res, ok := pickSide(c, oldPos, newPos)
		if !ok {
			continue
		}
		out = append(out, res)
	}
	return out
}

func pickSide(c Candidate, oldPos, newPos int) (Resolution, bool) {
	switch {
	case oldPos >= 0 && newPos < 0:
		return resolution(c, model.ResolutionUserChoseOld, c.Entry.OldMemoryID, c.Entry.NewMemoryID), true
	case newPos >= 0 && oldPos < 0:
		return resolution(c, model.ResolutionUserChoseNew, c.Entry.NewMemoryID, c.Entry.OldMemoryID), true
	case oldPos >= 0 && newPos >= 0:
		if oldPos <= newPos {
			return resolution(c, model.ResolutionUserChoseOld, c.Entry.OldMemoryID, c.Entry.NewMemoryID), true
		}
		return resolution(c, model.ResolutionUserChoseNew, c.Entry.NewMemoryID, c.Entry.OldMemoryID), true
	default:
		// Slot overlap matched but neither value appears verbatim: the
		// caller must fall back to asking for clarification rather than
		// guessing a side.
		return Resolution{}, false
	}
}

func resolution(c Candidate, method model.ResolutionMethod, chosen, deprecated model.MemoryID) Resolution {
	return Resolution{
		Entry:              c.Entry,
		Method:             method,
		ChosenMemoryID:     chosen,
		DeprecatedMemoryID: deprecated,
		DeprecationReason:  "nl_resolution: superseded per user utterance",
	}
}

// wordBoundaryIndex returns the byte index of value in text as a
// word-boundary match, or -1 if absent or value is empty.
func wordBoundaryIndex(text, value string) int {
	value = strings.ToLower(strings.TrimSpace(value))
	if value == "" {
		return -1
	}
	idx := strings.Index(text, value)
	for idx >= 0 {
		start := idx
		end := idx + len(value)
		beforeOK := start == 0 || !isWordByte(text[start-1])
		afterOK := end == len(text) || !isWordByte(text[end])
		if beforeOK && afterOK {
			return idx
		}
		next := strings.Index(text[idx+1:], value)
		if next < 0 {
			return -1
		}
		idx = idx + 1 + next
	}
	return -1
}

func isWordByte(b byte) bool {
	return b == '_' ||
		(b >= 'a' && b <= 'z') ||
		(b >= 'A' && b <= 'Z') ||
		(b >= '0' && b <= '9')
}
