package orchestrator

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/coherent-ai/crt/internal/classifier"
	"github.com/coherent-ai/crt/internal/config"
	"github.com/coherent-ai/crt/internal/facts"
	"github.com/coherent-ai/crt/internal/ledger"
	"github.com/coherent-ai/crt/internal/memstore"
	"github.com/coherent-ai/crt/internal/model"
	"github.com/coherent-ai/crt/internal/nlresolve"
	"github.com/coherent-ai/crt/internal/storage"
	"github.com/coherent-ai/crt/internal/telemetry"
	"go.opentelemetry.io/otel/trace"
)

// Engine runs the per-turn query pipeline (§4.10) for a single thread_id.
// It owns no durable state directly — the thread's MemoryStore and
// ContradictionLedger services do — but holds the process-wide
// GlobalUserProfile by reference, per the ownership note in §3.
type Engine struct {
	cfg        *config.Config
	threadID   model.ThreadID
	mem        *memstore.Service
	ledgerSvc  *ledger.Service
	classifier *classifier.Classifier
	extractor  *facts.Extractor
	nlDet      *nlresolve.Detector
	reasoner   Reasoner
	embedder   Embedder

	profileMu   sync.Mutex
	profile     *model.GlobalUserProfile
	profilePath string // empty disables persistence

	sessions *sessionRegistry
	logger   *slog.Logger
	instr    *telemetry.Instruments

	now func() time.Time
}

// Deps bundles everything an Engine needs. Every field is required except
// Logger, Instruments, ProfilePath, Profile and Embedder: a nil Profile is
// replaced by a fresh empty one, and a nil Embedder skips alignment scoring
// (both alignments are then 1).
type Deps struct {
	Config      *config.Config
	ThreadID    model.ThreadID
	Memory      *memstore.Service
	Ledger      *ledger.Service
	Classifier  *classifier.Classifier
	Extractor   *facts.Extractor
	NLDetector  *nlresolve.Detector
	Reasoner    Reasoner
	Embedder    Embedder
	Profile     *model.GlobalUserProfile
	ProfilePath string
	Logger      *slog.Logger
	Instruments *telemetry.Instruments
}

// New builds an Engine bound to one thread_id.
func New(d Deps) *Engine {
	logger := d.Logger
	if logger == nil {
		logger = slog.Default()
	}
	profile := d.Profile
	if profile == nil {
		profile = model.NewGlobalUserProfile()
	}
	return &Engine{
		cfg:         d.Config,
		threadID:    d.ThreadID,
		mem:         d.Memory,
		ledgerSvc:   d.Ledger,
		classifier:  d.Classifier,
		extractor:   d.Extractor,
		nlDet:       d.NLDetector,
		reasoner:    d.Reasoner,
		embedder:    d.Embedder,
		profile:     profile,
		profilePath: d.ProfilePath,
		sessions:    newSessionRegistry(d.Config),
		logger:      logger,
		instr:       d.Instruments,
		now:         time.Now,
	}
}

// QueryOptions narrows one Query call.
type QueryOptions struct {
	SessionID           model.SessionID
	UserMarkedImportant bool
	Mode                string
}

// Query runs the full §4.10 pipeline for one user turn.
func (e *Engine) Query(ctx context.Context, q string, opts QueryOptions) (model.QueryResult, error) {
	var span trace.Span
	ctx, span = telemetry.StartSpan(ctx, "orchestrator.query")
	defer span.End()

	start := e.now()
	sessionID := opts.SessionID
	if sessionID == "" {
		sessionID = model.NewSessionID()
	}
	sess := e.sessions.get(sessionID)
	sess.turn++

	if e.instr != nil {
		e.instr.TurnsProcessed.Add(ctx, 1)
	}

	// step 2: lifecycle sweep, visible to step 7 of this same turn.
	if _, err := e.ledgerSvc.ProcessLifecycleTransitions(ctx); err != nil {
		e.logger.Warn("lifecycle sweep failed", "error", err)
	}

	extracted := e.extractor.Extract(q)

	// step 1: classify.
	cls := classify(q, extracted)

	// step 3: deterministic safe paths.
	if result, handled, err := e.handleSafePath(ctx, sess, q, cls, extracted, sessionID); handled {
		return e.finish(ctx, start, result), err
	}

	// step 4: NL resolution.
	if e.nlDet.HasResolutionIntent(q) {
		resolved, err := e.tryResolveViaNL(ctx, q, extracted)
		if err != nil {
			e.logger.Warn("nl resolution failed", "error", err)
		}
		if resolved {
			cls.Class = model.ClassInstruction
			return e.finish(ctx, start, e.deterministicResult("Got it — I've updated that.", model.ResponseBelief, sessionID)), nil
		}
	}

	// step 5: store assertion, detect contradictions.
	if cls.Class == model.ClassAssertion {
		if _, _, err := e.storeAssertion(ctx, sess, q, extracted, opts.UserMarkedImportant); err != nil {
			return model.QueryResult{}, err
		}
	}

	// step 6: infer relevant slots.
	relevantSlots := e.inferRelevantSlots(cls, extracted)

	// step 7: contradiction gate check — assertive resolution for
	// revision entries (temporal/refinement entries stay open; hard
	// conflicts are handled separately, below, as the uncertainty early-exit).
	if result, handled, err := e.checkAssertiveResolution(ctx, cls, relevantSlots, sessionID); handled {
		return e.finish(ctx, start, result), err
	}

	// step 8: retrieve, augmented with canonical per-slot profile values.
	k := e.cfg.RetrievalK
	if cls.Special == specialSynthesis || cls.Special == specialSummary || cls.Special == specialMemoryInventory {
		k = e.cfg.SynthesisRetrievalK
	}
	scored, err := e.retrieveWithOpenLedger(ctx, q, k, relevantSlots)
	if err != nil {
		return model.QueryResult{}, err
	}
	scored = e.augmentWithProfile(scored, relevantSlots)

	// step 9: special fast-paths.
	if result, handled := e.fastPath(cls, scored, relevantSlots, sessionID); handled {
		return e.finish(ctx, start, result), nil
	}

	// Uncertainty early-exit: an unresolved hard CONFLICT in a relevant slot.
	if result, handled, err := e.checkHardConflict(ctx, relevantSlots, scored, sessionID); handled {
		return e.finish(ctx, start, result), err
	}

	// steps 10-14: generative path, gate, caveats, response storage.
	result, err := e.generate(ctx, cls, q, scored, relevantSlots, sessionID, opts.Mode)
	if err != nil {
		return model.QueryResult{}, err
	}
	return e.finish(ctx, start, result), nil
}

func (e *Engine) finish(ctx context.Context, start time.Time, result model.QueryResult) model.QueryResult {
	if e.instr != nil {
		e.instr.TurnDuration.Record(ctx, e.now().Sub(start).Seconds())
		if result.ContradictionDetected {
			e.instr.ContradictionsDetected.Add(ctx, 1)
		}
		if result.GatesPassed {
			e.instr.GatePasses.Add(ctx, 1)
		} else {
			e.instr.GateFailures.Add(ctx, 1)
		}
	}
	return result
}

// deterministicResult builds a trivially-passing QueryResult for answers
// the pipeline produces without calling the reasoner.
func (e *Engine) deterministicResult(answer string, rt model.ResponseType, sessionID model.SessionID) model.QueryResult {
	return model.QueryResult{
		Answer:       answer,
		ResponseType: rt,
		GatesPassed:  true,
		GateReason:   "deterministic_safe_path",
		Confidence:   1.0,
		SessionID:    sessionID,
	}
}

// inferRelevantSlots computes step 6's relevant-slot set: slots asserted
// this turn, union slots the question/instruction names.
func (e *Engine) inferRelevantSlots(cls Classification, extracted []model.ExtractedFact) []string {
	seen := make(map[string]bool)
	var out []string
	add := func(slot string) {
		if slot == "" || seen[slot] {
			return
		}
		seen[slot] = true
		out = append(out, slot)
	}
	for _, f := range extracted {
		add(f.SlotName)
	}
	if cls.SingleSlot != "" {
		add(cls.SingleSlot)
	}
	if cls.ReferencedSlot != "" {
		add(cls.ReferencedSlot)
	}
	if cls.Special == specialSynthesis || cls.Special == specialSummary || cls.Special == specialMemoryInventory {
		e.profileMu.Lock()
		for slot := range e.profile.Slots {
			add(slot)
		}
		e.profileMu.Unlock()
	}
	return out
}

func slotsIntersect(affects string, relevant []string) bool {
	entry := model.ContradictionEntry{AffectsSlots: affects}
	for _, s := range relevant {
		if entry.AffectsSlot(s) {
			return true
		}
	}
	return false
}

func (e *Engine) saveProfileLocked() {
	if e.profilePath == "" {
		return
	}
	if err := storage.SaveProfile(e.profilePath, e.profile); err != nil {
		e.logger.Warn("profile persistence failed", "error", err)
	}
}

func isPersonalQuery(cls Classification) bool {
	return cls.Class != model.ClassOther
}

func topUserMemoryIDs(scored []model.ScoredMemory, n int) []model.MemoryID {
	var out []model.MemoryID
	for _, s := range scored {
		if s.Memory.Source != model.SourceUser {
			continue
		}
		out = append(out, s.Memory.ID)
		if len(out) >= n {
			break
		}
	}
	return out
}

func avgTrust(scored []model.ScoredMemory) float32 {
	if len(scored) == 0 {
		return 0
	}
	var sum float32
	for _, s := range scored {
		sum += s.Memory.Trust
	}
	return sum / float32(len(scored))
}
