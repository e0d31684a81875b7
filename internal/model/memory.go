package model

import "time"

// MemoryItem is a durable claim in a thread's memory store.
//
// Once created, Text, Embedding, Source and CreatedAt are immutable; only
// Trust, Deprecated/DeprecatedReason, Tags and derived flags may change.
// A deprecated memory is retained and stays auditable — it is never deleted.
type MemoryItem struct {
	ID         MemoryID
	ThreadID   ThreadID
	Embedding  []float32
	Text       string
	CreatedAt  time.Time
	Confidence float32
	Trust      float32
	Source     MemorySource
	SSEMode    SSEMode

	// Context carries free-form provenance, e.g. provenance.tool, provenance.citations.
	Context map[string]any

	Deprecated       bool
	DeprecatedReason string

	Tags           []string
	TemporalStatus TemporalStatus
	Domains        []string

	// ReintroducedClaim is a derived, non-persistent flag set by retrieve/query
	// when this memory is referenced by an open ContradictionEntry.
	ReintroducedClaim bool `json:"-"`
}

// HasTag reports whether the memory carries the given tag.
func (m *MemoryItem) HasTag(tag string) bool {
	for _, t := range m.Tags {
		if t == tag {
			return true
		}
	}
	return false
}

// HasDomain reports whether the memory is tagged with the given domain.
func (m *MemoryItem) HasDomain(domain string) bool {
	for _, d := range m.Domains {
		if d == domain {
			return true
		}
	}
	return false
}

// TrustLogEntry is an append-only record of a single trust mutation.
type TrustLogEntry struct {
	MemoryID  MemoryID
	OldTrust  float32
	NewTrust  float32
	Reason    string
	Timestamp time.Time
}

// ExtractedFact is a single (slot, value) observation pulled from an utterance.
type ExtractedFact struct {
	SlotName       string
	RawValue       string
	NormalizedValue string
	TemporalStatus TemporalStatus
	Domains        []string
	Confidence     float32
}

// ScoredMemory pairs a MemoryItem with its retrieval score.
type ScoredMemory struct {
	Memory MemoryItem
	Score  float32
}
