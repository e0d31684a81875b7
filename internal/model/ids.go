package model

import "github.com/google/uuid"

// MemoryID identifies a MemoryItem within a single store. Opaque outside the store.
type MemoryID string

// LedgerID identifies a ContradictionEntry within a single ledger.
type LedgerID string

// ThreadID identifies one logical conversation. Each thread owns its own
// memory store and ledger, backed by its own durable file.
type ThreadID string

// SessionID groups turns for disclosure-budget accounting.
type SessionID string

// QueueID identifies a ReflectionQueueItem.
type QueueID string

// NewMemoryID generates a fresh memory id.
func NewMemoryID() MemoryID { return MemoryID(uuid.NewString()) }

// NewLedgerID generates a fresh ledger id.
func NewLedgerID() LedgerID { return LedgerID(uuid.NewString()) }

// NewQueueID generates a fresh reflection-queue id.
func NewQueueID() QueueID { return QueueID(uuid.NewString()) }

// NewSessionID generates a fresh session id.
func NewSessionID() SessionID { return SessionID(uuid.NewString()) }
