package crt

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/coherent-ai/crt/internal/classifier"
	"github.com/coherent-ai/crt/internal/config"
	"github.com/coherent-ai/crt/internal/facts"
	"github.com/coherent-ai/crt/internal/ledger"
	"github.com/coherent-ai/crt/internal/memstore"
	"github.com/coherent-ai/crt/internal/model"
	"github.com/coherent-ai/crt/internal/nlresolve"
	"github.com/coherent-ai/crt/internal/orchestrator"
	"github.com/coherent-ai/crt/internal/storage"
	"github.com/coherent-ai/crt/internal/telemetry"
)

// Engine runs the per-turn query pipeline for a single thread_id: classify
// the turn, detect and resolve contradictions against what's already known,
// retrieve grounded memory, and gate the generated answer before it leaves
// the engine. Construct one per thread_id with New; an Engine is safe for
// concurrent Query calls as long as writes to the same thread are not
// issued concurrently (see internal/memstore for the single-writer rule).
type Engine struct {
	*orchestrator.Engine

	memDB    closer
	ledgerDB closer
}

type closer interface{ Close() error }

// Close releases the thread's durable storage handles. The global user
// profile is written on each turn that records a profile value, not on
// Close, so a missed Close only
// risks the current turn's in-flight SQLite connections, not data loss.
func (e *Engine) Close() error {
	if err := e.memDB.Close(); err != nil {
		return err
	}
	return e.ledgerDB.Close()
}

// New builds an Engine bound to one thread_id, opening (and migrating, if
// new) its SQLite-backed memory store and contradiction ledger under
// cfg.DataDir. WithReasoner and WithEmbedder are required — the core never
// generates text or embeddings on its own.
func New(ctx context.Context, threadID ThreadID, opts ...Option) (*Engine, error) {
	o := &resolvedOptions{persistProfile: true}
	for _, opt := range opts {
		opt(o)
	}
	if o.reasoner == nil {
		return nil, fmt.Errorf("crt: WithReasoner is required")
	}
	if o.embedder == nil {
		return nil, fmt.Errorf("crt: WithEmbedder is required")
	}

	cfg := o.config
	if cfg == nil {
		loaded, err := config.Load()
		if err != nil {
			return nil, fmt.Errorf("crt: load config: %w", err)
		}
		cfg = &loaded
	}

	logger := o.logger
	if logger == nil {
		logger = slog.Default()
	}

	instr := o.instruments
	if instr == nil {
		built, err := telemetry.NewInstruments()
		if err != nil {
			return nil, fmt.Errorf("crt: build instruments: %w", err)
		}
		instr = built
	}

	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return nil, fmt.Errorf("crt: create data dir: %w", err)
	}

	memDB, err := storage.Open(storage.MemoryStorePath(cfg.DataDir, string(threadID)), cfg.BusyTimeout, cfg.MaxOpenConns, cfg.MaxIdleConns)
	if err != nil {
		return nil, fmt.Errorf("crt: open memory store: %w", err)
	}
	if err := storage.MigrateMemoryStore(ctx, memDB); err != nil {
		memDB.Close()
		return nil, fmt.Errorf("crt: migrate memory store: %w", err)
	}

	ledgerDB, err := storage.Open(storage.LedgerStorePath(cfg.DataDir, string(threadID)), cfg.BusyTimeout, cfg.MaxOpenConns, cfg.MaxIdleConns)
	if err != nil {
		memDB.Close()
		return nil, fmt.Errorf("crt: open ledger store: %w", err)
	}
	if err := storage.MigrateLedgerStore(ctx, ledgerDB); err != nil {
		memDB.Close()
		ledgerDB.Close()
		return nil, fmt.Errorf("crt: migrate ledger store: %w", err)
	}

	memRepo := storage.NewMemoryRepo(memDB)
	ledgerRepo := storage.NewLedgerRepo(ledgerDB, memRepo)

	cls, err := classifier.New()
	if err != nil {
		closeAll(memDB, ledgerDB)
		return nil, fmt.Errorf("crt: build classifier: %w", err)
	}
	nlDet, err := nlresolve.New()
	if err != nil {
		closeAll(memDB, ledgerDB)
		return nil, fmt.Errorf("crt: build nl resolver: %w", err)
	}

	profilePath := ""
	profile := model.NewGlobalUserProfile()
	if o.persistProfile {
		profilePath = storage.ProfilePath(cfg.DataDir)
		loaded, err := storage.LoadProfile(profilePath)
		if err != nil {
			closeAll(memDB, ledgerDB)
			return nil, fmt.Errorf("crt: load global profile: %w", err)
		}
		profile = loaded
	}

	eng := orchestrator.New(orchestrator.Deps{
		Config:      cfg,
		ThreadID:    threadID,
		Memory:      memstore.New(memRepo, o.embedder, cfg, threadID),
		Ledger:      ledger.New(ledgerRepo, cfg, threadID, logger),
		Classifier:  cls,
		Extractor:   facts.NewExtractor(cfg.LearnedModelPath != "", cfg.FactCacheSize, cfg.FactCacheMaxChars),
		NLDetector:  nlDet,
		Reasoner:    o.reasoner,
		Embedder:    o.embedder,
		Profile:     profile,
		ProfilePath: profilePath,
		Logger:      logger,
		Instruments: instr,
	})

	return &Engine{Engine: eng, memDB: memDB, ledgerDB: ledgerDB}, nil
}

func closeAll(closers ...closer) {
	for _, c := range closers {
		_ = c.Close()
	}
}
