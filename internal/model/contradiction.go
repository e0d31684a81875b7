package model

import "time"

// ContradictionEntry is an append-only ledger record of a detected conflict
// between two memories. Only Status, the Resolution* fields, the Lifecycle*
// fields and Metadata may change after creation.
type ContradictionEntry struct {
	LedgerID    LedgerID
	ThreadID    ThreadID
	DetectedAt  time.Time

	// OldMemoryID/NewMemoryID record discovery order, not which claim is true.
	OldMemoryID MemoryID
	NewMemoryID MemoryID

	DriftMean       float32
	ConfidenceDelta float32

	Status            ContradictionStatus
	ContradictionType ContradictionType

	// AffectsSlots is the comma-joined intersection of slots extracted from
	// both texts.
	AffectsSlots string

	Query   string
	Summary string

	ResolutionTimestamp *time.Time
	ResolutionMethod    ResolutionMethod
	MergedMemoryID      MemoryID

	LifecycleState    LifecycleState
	ConfirmationCount int
	DisclosureCount   int
	SettledAt         *time.Time
	ArchivedAt        *time.Time

	Metadata map[string]any
}

// AffectsSlot reports whether slot is present in the comma-joined AffectsSlots set.
func (c *ContradictionEntry) AffectsSlot(slot string) bool {
	for _, s := range splitSlots(c.AffectsSlots) {
		if s == slot {
			return true
		}
	}
	return false
}

// IsOpen reports whether the entry has not yet been resolved.
func (c *ContradictionEntry) IsOpen() bool {
	return c.Status == StatusOpen || c.Status == StatusReflecting
}

func splitSlots(joined string) []string {
	if joined == "" {
		return nil
	}
	var out []string
	start := 0
	for i := 0; i <= len(joined); i++ {
		if i == len(joined) || joined[i] == ',' {
			if i > start {
				out = append(out, joined[start:i])
			}
			start = i + 1
		}
	}
	return out
}

// SemanticAnchor binds a clarification question to the contradiction context
// that produced it, so a later user answer can be parsed back to a grounded
// resolution decision.
type SemanticAnchor struct {
	ContradictionID   LedgerID
	TurnNumber        int
	ContradictionType ContradictionType

	OldMemoryID MemoryID
	NewMemoryID MemoryID
	OldText     string
	NewText     string

	SlotName string
	OldValue string
	NewValue string

	// DriftVector is (new - old), present only when both embeddings were available.
	DriftVector []float32

	ClarificationPrompt string
	ExpectedAnswerType   ExpectedAnswerType

	UserAnswer       string
	ResolutionMethod ResolutionMethod
	ResolvedAt       *time.Time
}

// ReflectionQueueItem is a pending candidate for the reflection pass,
// ordered by Priority, then Volatility, then enqueue time.
type ReflectionQueueItem struct {
	QueueID    QueueID
	LedgerID   LedgerID
	Volatility float32
	Priority   ReflectionPriority
	ContextJSON string
	EnqueuedAt time.Time
	Processed  bool
}

// WorklogEntry tracks how many times, and how, a ledger entry has been asked about.
type WorklogEntry struct {
	LedgerID        LedgerID
	FirstAskedAt    *time.Time
	LastAskedAt     *time.Time
	AskCount        int
	LastUserAnswer  string
	LastUserAnswerAt *time.Time
}
