package orchestrator

import (
	"sync"

	"github.com/coherent-ai/crt/internal/config"
	"github.com/coherent-ai/crt/internal/disclosure"
	"github.com/coherent-ai/crt/internal/model"
)

// sessionState is the per-session bookkeeping the pipeline needs across
// turns: the disclosure CLARIFY budget, a turn counter for semantic
// anchors, and the last parsed name (for the idempotence check on repeated
// name declarations).
type sessionState struct {
	policy        *disclosure.Policy
	turn          int
	lastName      string
	pendingAnchor *model.SemanticAnchor
}

// sessionRegistry holds one sessionState per active SessionID. A thread may
// be addressed by several concurrent sessions (e.g. multiple UI tabs); each
// gets its own CLARIFY budget.
type sessionRegistry struct {
	mu    sync.Mutex
	cfg   *config.Config
	items map[model.SessionID]*sessionState
}

func newSessionRegistry(cfg *config.Config) *sessionRegistry {
	return &sessionRegistry{cfg: cfg, items: make(map[model.SessionID]*sessionState)}
}

func (r *sessionRegistry) get(id model.SessionID) *sessionState {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.items[id]
	if !ok {
		s = &sessionState{policy: disclosure.New(r.cfg)}
		r.items[id] = s
	}
	return s
}
