package model

import "time"

// ProfileValue is one observed value for a slot in the GlobalUserProfile,
// with the bookkeeping needed to tell the current value from superseded ones.
type ProfileValue struct {
	Value       string
	NormalizedValue string
	ObservedAt  time.Time
	Active      bool
	ThreadID    ThreadID
	MemoryID    MemoryID
}

// GlobalUserProfile is the cross-thread registry of canonical per-slot
// values, with full temporal history. Exactly one process-wide instance is
// expected to exist, passed by reference; it is serialized to disk, never
// hidden behind a package-level global.
type GlobalUserProfile struct {
	Slots map[string][]ProfileValue
}

// NewGlobalUserProfile returns an empty profile ready to accumulate observations.
func NewGlobalUserProfile() *GlobalUserProfile {
	return &GlobalUserProfile{Slots: make(map[string][]ProfileValue)}
}

// ActiveValue returns the current active value for slot, if any.
func (p *GlobalUserProfile) ActiveValue(slot string) (ProfileValue, bool) {
	for _, v := range p.Slots[slot] {
		if v.Active {
			return v, true
		}
	}
	return ProfileValue{}, false
}

// History returns every observed value (active and past) for slot, oldest first.
func (p *GlobalUserProfile) History(slot string) []ProfileValue {
	return p.Slots[slot]
}

// Observe records a new value for slot, deactivating any prior active value.
// Returns false without mutating if an active value with the same normalized
// value already exists (idempotent re-assertion).
func (p *GlobalUserProfile) Observe(slot string, v ProfileValue) bool {
	existing := p.Slots[slot]
	for i, cur := range existing {
		if cur.Active && cur.NormalizedValue == v.NormalizedValue {
			return false
		}
		if cur.Active {
			existing[i].Active = false
		}
	}
	v.Active = true
	p.Slots[slot] = append(existing, v)
	return true
}
