package memstore

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coherent-ai/crt/internal/config"
	"github.com/coherent-ai/crt/internal/model"
	"github.com/coherent-ai/crt/internal/storage"
)

// fakeEmbedder returns the same fixed vector for every text (vec if set,
// otherwise {1, 0, 0}) so tests can control similarity without a real
// embedding model.
type fakeEmbedder struct {
	vec []float32
}

func (f *fakeEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if f.vec != nil {
		return f.vec, nil
	}
	return []float32{1, 0, 0}, nil
}

func newTestService(t *testing.T, embedder Embedder) (*Service, *storage.MemoryRepo) {
	t.Helper()
	db, err := storage.Open(filepath.Join(t.TempDir(), "mem.db"), 5*time.Second, 4, 2)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, storage.MigrateMemoryStore(context.Background(), db))
	repo := storage.NewMemoryRepo(db)
	cfg := &config.Config{
		TrustAlpha:            0.6,
		RecencyHalfLife:       14 * 24 * time.Hour,
		TrustGainOnAlign:      0.15,
		TrustLossOnContradict: 0.25,
		TrustFloor:            0.05,
	}
	return New(repo, embedder, cfg, model.ThreadID("thread-1")), repo
}

func TestStoreMemory_PersistsAndReturns(t *testing.T) {
	s, repo := newTestService(t, &fakeEmbedder{})
	m, err := s.StoreMemory(context.Background(), "I work at Microsoft.", 0.9, model.SourceUser, nil, false)
	require.NoError(t, err)
	assert.Equal(t, float32(0.5), m.Trust)

	loaded, err := repo.GetByID(context.Background(), m.ID)
	require.NoError(t, err)
	assert.Equal(t, "I work at Microsoft.", loaded.Text)
}

func TestStoreMemory_UserMarkedImportantBoostsTrust(t *testing.T) {
	s, _ := newTestService(t, &fakeEmbedder{})
	m, err := s.StoreMemory(context.Background(), "My name is Sarah.", 0.9, model.SourceUser, nil, true)
	require.NoError(t, err)
	assert.Equal(t, float32(0.7), m.Trust)
	assert.Contains(t, m.Tags, "user_marked_important")
}

func TestStoreMemory_ExternalSourceGetsLowTrust(t *testing.T) {
	s, _ := newTestService(t, &fakeEmbedder{})
	m, err := s.StoreMemory(context.Background(), "Some research note.", 0.5, model.SourceExternal, nil, false)
	require.NoError(t, err)
	assert.Equal(t, float32(0.4), m.Trust)
}

func TestRetrieveMemories_ExcludesDeprecatedAndDisallowedSources(t *testing.T) {
	s, repo := newTestService(t, &fakeEmbedder{vec: []float32{1, 0, 0}})
	ctx := context.Background()

	kept, err := s.StoreMemory(ctx, "I live in Seattle.", 0.9, model.SourceUser, nil, false)
	require.NoError(t, err)

	deprecated, err := s.StoreMemory(ctx, "I live in Tacoma.", 0.9, model.SourceUser, nil, false)
	require.NoError(t, err)
	require.NoError(t, repo.Deprecate(ctx, deprecated.ID, "superseded"))

	systemMem, err := s.StoreMemory(ctx, "System note.", 0.9, model.SourceSystem, nil, false)
	require.NoError(t, err)

	results, err := s.RetrieveMemories(ctx, "Where do I live?", 10, RetrieveOptions{ExcludeDeprecated: true})
	require.NoError(t, err)

	var ids []model.MemoryID
	for _, r := range results {
		ids = append(ids, r.Memory.ID)
	}
	assert.Contains(t, ids, kept.ID)
	assert.NotContains(t, ids, deprecated.ID)
	assert.NotContains(t, ids, systemMem.ID)
}

func TestRetrieveMemories_RespectsMinTrustAndK(t *testing.T) {
	s, _ := newTestService(t, &fakeEmbedder{})
	ctx := context.Background()
	for i := 0; i < 5; i++ {
		_, err := s.StoreMemory(ctx, "fact", 0.9, model.SourceUser, nil, false)
		require.NoError(t, err)
	}
	results, err := s.RetrieveMemories(ctx, "fact", 2, RetrieveOptions{MinTrust: 0})
	require.NoError(t, err)
	assert.Len(t, results, 2)
}

func TestEvolveTrustForAlignment_SaturatesTowardOne(t *testing.T) {
	s, _ := newTestService(t, &fakeEmbedder{})
	ctx := context.Background()
	m, err := s.StoreMemory(ctx, "I work at Acme.", 0.9, model.SourceUser, nil, false)
	require.NoError(t, err)

	newTrust, err := s.EvolveTrustForAlignment(ctx, m)
	require.NoError(t, err)
	assert.InDelta(t, 0.5+(1-0.5)*0.15, newTrust, 1e-6)
	assert.LessOrEqual(t, newTrust, float32(1))
}

func TestEvolveTrustForContradiction_ClampsToFloor(t *testing.T) {
	s, _ := newTestService(t, &fakeEmbedder{})
	ctx := context.Background()
	m, err := s.StoreMemory(ctx, "I work at Acme.", 0.9, model.SourceUser, nil, false)
	require.NoError(t, err)
	m.Trust = 0.06

	newTrust, err := s.EvolveTrustForContradiction(ctx, m)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, newTrust, float32(0.05))
}

func TestStoreResearchResult_SetsExternalTrustAndProvenance(t *testing.T) {
	s, repo := newTestService(t, &fakeEmbedder{})
	ctx := context.Background()
	packet := model.EvidencePacket{
		PacketID: model.NewEvidencePacketID("weather today", time.Now()),
		Query:    "weather today",
		Summary:  "It is sunny.",
		Citations: []model.Citation{
			{QuoteText: "sunny skies expected", SourceURL: "https://example.com/weather"},
		},
	}
	m, err := s.StoreResearchResult(ctx, "weather today", packet)
	require.NoError(t, err)
	assert.Equal(t, float32(0.4), m.Trust)
	assert.Equal(t, model.SourceExternal, m.Source)
	assert.Contains(t, m.Tags, "lane:notes")

	loaded, err := repo.GetByID(ctx, m.ID)
	require.NoError(t, err)
	assert.NotNil(t, loaded.Context["provenance"])
}

func TestPromoteToBelief_RequiresConfirmation(t *testing.T) {
	s, repo := newTestService(t, &fakeEmbedder{})
	ctx := context.Background()
	packet := model.EvidencePacket{PacketID: "ep_1", Summary: "note"}
	m, err := s.StoreResearchResult(ctx, "q", packet)
	require.NoError(t, err)

	err = s.PromoteToBelief(ctx, m.ID, false)
	require.Error(t, err)

	err = s.PromoteToBelief(ctx, m.ID, true)
	require.NoError(t, err)

	loaded, err := repo.GetByID(ctx, m.ID)
	require.NoError(t, err)
	assert.Equal(t, float32(0.8), loaded.Trust)
}

func TestRecordBeliefAndSpeech(t *testing.T) {
	s, repo := newTestService(t, &fakeEmbedder{})
	ctx := context.Background()
	m, err := s.StoreMemory(ctx, "fact", 0.9, model.SourceUser, nil, false)
	require.NoError(t, err)

	require.NoError(t, s.RecordBelief(ctx, "q", "a", []model.MemoryID{m.ID}, 0.8))
	require.NoError(t, s.RecordSpeech(ctx, "q2", "a2", "fallback"))

	beliefs, speeches, err := repo.BeliefSpeechCounts(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, beliefs)
	assert.Equal(t, 1, speeches)
}
