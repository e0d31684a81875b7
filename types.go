package crt

import (
	"github.com/coherent-ai/crt/internal/model"
)

// QueryResult is the structured outcome of one Query call: the answer
// text plus every gate/contradiction signal a caller needs to decide how
// much to trust it.
type QueryResult = model.QueryResult

// MemoryItem is one stored memory, as surfaced in QueryResult.RetrievedMemories
// and QueryResult.PromptMemories.
type MemoryItem = model.MemoryItem

// ContradictionStatusView is a curated, read-only view of one ledger entry.
type ContradictionStatusView = model.ContradictionStatusView

// DisclosureDecision is the outcome of the disclosure policy for one
// detected contradiction: whether to accept, ask for clarification, or reject.
type DisclosureDecision = model.DisclosureDecision

// EvidencePacket is a research result (a summary plus supporting
// citations) in the shape that is stored as an EXTERNAL memory.
type EvidencePacket = model.EvidencePacket

// ResponseType classifies a QueryResult's answer shape.
type ResponseType = model.ResponseType

// Response type values.
const (
	ResponseBelief      = model.ResponseBelief
	ResponseSpeech      = model.ResponseSpeech
	ResponseExplanation = model.ResponseExplanation
	ResponseUncertainty = model.ResponseUncertainty
)

// MemorySource identifies who or what produced a memory.
type MemorySource = model.MemorySource

// Memory source values.
const (
	SourceUser     = model.SourceUser
	SourceSystem   = model.SourceSystem
	SourceFallback = model.SourceFallback
)

// ThreadID identifies one independent memory space (one conversational
// agent's durable memory, isolated from every other thread).
type ThreadID = model.ThreadID

// SessionID scopes the disclosure budget and idempotence checks to one
// continuous conversation within a thread.
type SessionID = model.SessionID
