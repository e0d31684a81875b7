// Package orchestrator implements the query orchestrator (§4.10): the
// deterministic per-turn pipeline that classifies input, routes to safe
// paths or a pluggable reasoner, detects and resolves contradictions, and
// attaches mandatory caveats before a response leaves the engine.
package orchestrator

import (
	"context"

	"github.com/coherent-ai/crt/internal/model"
)

// RetrievedDoc is one memory surfaced to the reasoner, curated down to the
// fields a reasoner needs — it never sees internal storage details.
type RetrievedDoc struct {
	Text       string
	Trust      float32
	Confidence float32
	Source     model.MemorySource
	MemoryID   model.MemoryID
	Embedding  []float32

	// ReintroducedClaim mirrors model.MemoryItem.ReintroducedClaim: this
	// doc is referenced by a still-open contradiction relevant to the turn.
	ReintroducedClaim bool
}

// ReasonContext is the prompt context assembled for one reasoner call.
type ReasonContext struct {
	RetrievedDocs  []RetrievedDoc
	Contradictions []model.ContradictionStatusView
	MemoryContext  []string
}

// ReasonOutput is a reasoner's answer to one query.
type ReasonOutput struct {
	Answer     string
	Thinking   string
	Mode       string
	Confidence float32
}

// Reasoner generates natural language from a resolved memory context. The
// core never generates text itself; every generative turn goes through
// this pluggable boundary. Implementations must respect ctx cancellation —
// the orchestrator enforces the reasoner timeout by canceling ctx.
type Reasoner interface {
	Reason(ctx context.Context, query string, rctx ReasonContext, mode string) (ReasonOutput, error)
}

// Embedder turns text into a fixed-width, unit-normalized embedding. The
// orchestrator uses it only to score memory_align between a candidate
// answer and the memories it was grounded on; memstore.Service embeds
// everything it persists on its own.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Reasoner call modes.
const (
	ModeDefault     = "default"
	ModeSynthesis   = "synthesis"
	ModeUncertainty = "uncertainty"
)
