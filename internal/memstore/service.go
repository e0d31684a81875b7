// Package memstore implements the MemoryStore service: the component that
// exclusively owns one thread's memories and trust log. The orchestrator
// holds a reference to a Service but never mutates storage.MemoryRepo directly.
package memstore

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/coherent-ai/crt/internal/config"
	"github.com/coherent-ai/crt/internal/crtmath"
	"github.com/coherent-ai/crt/internal/model"
	"github.com/coherent-ai/crt/internal/storage"
)

// Embedder turns text into a fixed-width embedding vector. Service embeds
// every memory it stores; callers never pass embeddings in directly.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Service is the MemoryStore for a single thread_id. It is safe for
// concurrent read use; the single-writer-per-thread rule is enforced by the
// caller serializing writes per thread, not by this type.
type Service struct {
	repo     *storage.MemoryRepo
	embedder Embedder
	cfg      *config.Config
	threadID model.ThreadID

	// now is overridable in tests; production callers leave it nil and get time.Now.
	now func() time.Time
}

// New builds a Service bound to one thread's MemoryRepo.
func New(repo *storage.MemoryRepo, embedder Embedder, cfg *config.Config, threadID model.ThreadID) *Service {
	return &Service{repo: repo, embedder: embedder, cfg: cfg, threadID: threadID, now: time.Now}
}

// StoreMemory embeds and persists text as a new MemoryItem. The embedding
// is stored exactly as the Embedder returns it; it is not re-normalized here.
func (s *Service) StoreMemory(ctx context.Context, text string, confidence float32, source model.MemorySource, memCtx map[string]any, userMarkedImportant bool) (model.MemoryItem, error) {
	vec, err := s.embedder.Embed(ctx, text)
	if err != nil {
		return model.MemoryItem{}, fmt.Errorf("memstore: embed: %w", err)
	}

	trust := float32(0.5)
	if userMarkedImportant {
		trust = 0.7
	}
	if source == model.SourceExternal {
		trust = 0.4
	}

	m := model.MemoryItem{
		ID:             model.NewMemoryID(),
		ThreadID:       s.threadID,
		Embedding:      vec,
		Text:           text,
		CreatedAt:      s.now(),
		Confidence:     confidence,
		Trust:          trust,
		Source:         source,
		SSEMode:        model.SSELossy,
		Context:        memCtx,
		TemporalStatus: model.TemporalActive,
	}
	if userMarkedImportant {
		m.Tags = []string{"user_marked_important"}
	}

	if err := s.repo.Insert(ctx, m); err != nil {
		return model.MemoryItem{}, fmt.Errorf("memstore: store memory: %w", err)
	}
	return m, nil
}

// RetrieveOptions narrows a RetrieveMemories call.
type RetrieveOptions struct {
	MinTrust          float32
	ExcludeDeprecated bool
	ExcludedIDs       map[model.MemoryID]bool
	AllowedSources    map[model.MemorySource]bool // nil means the default USER ∪ EXTERNAL allow-set.
	OpenLedgerIDs     map[model.MemoryID]bool     // memories referenced by an open contradiction; sets ReintroducedClaim.
}

var defaultAllowedSources = map[model.MemorySource]bool{
	model.SourceUser:     true,
	model.SourceExternal: true,
}

// RetrieveMemories ranks a thread's memories against query by retrieval_score
// and returns the top k, excluding deprecated memories, caller-supplied ids,
// and sources outside the allow-set.
func (s *Service) RetrieveMemories(ctx context.Context, query string, k int, opts RetrieveOptions) ([]model.ScoredMemory, error) {
	queryVec, err := s.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("memstore: embed query: %w", err)
	}

	all, err := s.repo.ListByThread(ctx, s.threadID)
	if err != nil {
		return nil, fmt.Errorf("memstore: retrieve memories: %w", err)
	}

	allowed := opts.AllowedSources
	if allowed == nil {
		allowed = defaultAllowedSources
	}

	now := s.now()
	var scored []model.ScoredMemory
	for _, m := range all {
		if opts.ExcludeDeprecated && m.Deprecated {
			continue
		}
		if opts.ExcludedIDs[m.ID] {
			continue
		}
		if !allowed[m.Source] {
			continue
		}
		if m.Trust < opts.MinTrust {
			continue
		}

		similarity := crtmath.Similarity(queryVec, m.Embedding)
		recency := crtmath.RecencyWeight(m.CreatedAt, now, s.cfg.RecencyHalfLife)
		score := crtmath.RetrievalScore(similarity, recency, m.Trust, m.Confidence, s.cfg.TrustAlpha)

		if opts.OpenLedgerIDs[m.ID] {
			m.ReintroducedClaim = true
		}
		scored = append(scored, model.ScoredMemory{Memory: m, Score: float32(score)})
	}

	sort.SliceStable(scored, func(i, j int) bool { return scored[i].Score > scored[j].Score })
	if k > 0 && len(scored) > k {
		scored = scored[:k]
	}
	return scored, nil
}

// GetMemoryByID loads a single memory.
func (s *Service) GetMemoryByID(ctx context.Context, id model.MemoryID) (model.MemoryItem, error) {
	return s.repo.GetByID(ctx, id)
}

// GetTrustHistory returns the append-only trust log for a memory.
func (s *Service) GetTrustHistory(ctx context.Context, id model.MemoryID) ([]model.TrustLogEntry, error) {
	return s.repo.TrustHistory(ctx, id)
}

// EvolveTrustForAlignment increases a memory's trust when it was retrieved
// into a response that passed the reconstruction gate. The update saturates
// toward 1 rather than adding unboundedly: trust' = trust + (1-trust)*gain.
func (s *Service) EvolveTrustForAlignment(ctx context.Context, mem model.MemoryItem) (float32, error) {
	gain := float32(s.cfg.TrustGainOnAlign)
	newTrust := mem.Trust + (1-mem.Trust)*gain
	if newTrust > 1 {
		newTrust = 1
	}
	if err := s.repo.SetTrust(ctx, mem.ID, newTrust, "aligned_with_passed_response"); err != nil {
		return mem.Trust, fmt.Errorf("memstore: evolve trust for alignment: %w", err)
	}
	return newTrust, nil
}

// EvolveTrustForContradiction decreases the older side of a hard conflict.
// The update saturates toward the configured floor: trust' = trust*(1-loss),
// clamped so it never drops below TrustFloor.
func (s *Service) EvolveTrustForContradiction(ctx context.Context, oldMem model.MemoryItem) (float32, error) {
	loss := float32(s.cfg.TrustLossOnContradict)
	newTrust := oldMem.Trust * (1 - loss)
	floor := float32(s.cfg.TrustFloor)
	if newTrust < floor {
		newTrust = floor
	}
	if err := s.repo.SetTrust(ctx, oldMem.ID, newTrust, "superseded_by_contradiction"); err != nil {
		return oldMem.Trust, fmt.Errorf("memstore: evolve trust for contradiction: %w", err)
	}
	return newTrust, nil
}

// DeprecateMemory marks a memory deprecated with reason. The memory is
// retained and stays auditable; it is never deleted.
func (s *Service) DeprecateMemory(ctx context.Context, id model.MemoryID, reason string) error {
	if err := s.repo.Deprecate(ctx, id, reason); err != nil {
		return fmt.Errorf("memstore: deprecate memory %s: %w", id, err)
	}
	return nil
}

// RecordBelief tracks that a response drew on stored memory — part of the
// belief-to-speech ratio, never affecting retrievable memories.
func (s *Service) RecordBelief(ctx context.Context, query, response string, memoryIDs []model.MemoryID, avgTrust float32) error {
	return s.repo.RecordBeliefSpeech(ctx, "belief", query, response, memoryIDs, avgTrust, "")
}

// RecordSpeech tracks that a response was produced without grounding memory.
func (s *Service) RecordSpeech(ctx context.Context, query, response, source string) error {
	return s.repo.RecordBeliefSpeech(ctx, "speech", query, response, nil, 0, source)
}

// StoreResearchResult persists an EvidencePacket as an EXTERNAL memory in
// the "notes" lane, with citations threaded through context.provenance.
func (s *Service) StoreResearchResult(ctx context.Context, query string, packet model.EvidencePacket) (model.MemoryItem, error) {
	vec, err := s.embedder.Embed(ctx, packet.Summary)
	if err != nil {
		return model.MemoryItem{}, fmt.Errorf("memstore: embed research result: %w", err)
	}

	provenance := make([]map[string]any, len(packet.Citations))
	for i, c := range packet.Citations {
		provenance[i] = map[string]any{
			"quote_text": c.QuoteText,
			"source_url": c.SourceURL,
			"char_start": c.CharStart,
			"char_end":   c.CharEnd,
			"fetched_at": c.FetchedAt,
			"confidence": c.Confidence,
		}
	}

	m := model.MemoryItem{
		ID:         model.NewMemoryID(),
		ThreadID:   s.threadID,
		Embedding:  vec,
		Text:       packet.Summary,
		CreatedAt:  s.now(),
		Confidence: 0.6,
		Trust:      0.4,
		Source:     model.SourceExternal,
		SSEMode:    model.SSELossy,
		Context: map[string]any{
			"provenance":      provenance,
			"packet_id":       packet.PacketID,
			"research_query":  query,
		},
		Tags:           []string{"lane:notes"},
		TemporalStatus: model.TemporalActive,
	}

	if err := s.repo.Insert(ctx, m); err != nil {
		return model.MemoryItem{}, fmt.Errorf("memstore: store research result: %w", err)
	}
	return m, nil
}

// PromoteToBelief raises an EXTERNAL research memory's trust from 0.4 to
// 0.8. It only applies with explicit user confirmation.
func (s *Service) PromoteToBelief(ctx context.Context, id model.MemoryID, userConfirmed bool) error {
	if !userConfirmed {
		return fmt.Errorf("memstore: promote to belief %s: user confirmation required", id)
	}
	if err := s.repo.SetTrust(ctx, id, 0.8, "promoted_to_belief"); err != nil {
		return fmt.Errorf("memstore: promote to belief %s: %w", id, err)
	}
	return nil
}
