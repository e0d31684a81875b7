// Package crt is the public entry point for the coherence-preserving
// memory engine: construct an Engine per thread_id and call Query for
// every user turn.
package crt

import (
	"github.com/coherent-ai/crt/internal/memstore"
	"github.com/coherent-ai/crt/internal/orchestrator"
)

// Reasoner generates natural language from a resolved memory context.
// The core never generates text itself — every generative turn goes
// through this pluggable boundary. Implementations must respect ctx
// cancellation; the engine enforces its reasoner timeout by canceling ctx.
type Reasoner = orchestrator.Reasoner

// Embedder turns text into a fixed-width, unit-normalized embedding. An
// Embedder is required both for memory persistence (memstore.Service
// embeds everything it stores) and for the orchestrator's intent/memory
// alignment scoring at query time, so one implementation serves both.
type Embedder interface {
	memstore.Embedder
	orchestrator.Embedder
}

// ReasonContext is the prompt context assembled for one reasoner call.
type ReasonContext = orchestrator.ReasonContext

// ReasonOutput is a reasoner's answer to one query.
type ReasonOutput = orchestrator.ReasonOutput

// RetrievedDoc is one memory surfaced to the reasoner.
type RetrievedDoc = orchestrator.RetrievedDoc

// QueryOptions narrows one Query call: which session it belongs to,
// whether the user flagged the turn as important, and which reasoner mode
// to request.
type QueryOptions = orchestrator.QueryOptions

// Reasoner call modes, passed through QueryOptions.Mode.
const (
	ModeDefault     = orchestrator.ModeDefault
	ModeSynthesis   = orchestrator.ModeSynthesis
	ModeUncertainty = orchestrator.ModeUncertainty
)
