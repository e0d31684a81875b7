// Package config loads and validates application configuration from environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds every tunable of the memory engine. All fields have safe
// defaults; Load never fails on a missing variable, only a malformed one.
type Config struct {
	// Storage settings.
	DataDir           string // directory holding one SQLite file pair per thread_id.
	BusyTimeout       time.Duration
	MaxOpenConns      int
	MaxIdleConns      int

	// CRT math.
	TrustAlpha       float64 // weight of trust vs confidence in retrieval_score.
	RecencyHalfLife  time.Duration

	// Trust evolution (F.4 open-question decision: saturating update).
	TrustGainOnAlign        float64
	TrustLossOnContradict   float64
	TrustFloor              float64

	// Volatility / reflection.
	ReflectThreshold float64

	// Contradiction lifecycle windows.
	FreshnessWindow time.Duration // ACTIVE -> SETTLING threshold (also x2 for SETTLING -> SETTLED).
	ArchiveDays     time.Duration // SETTLED -> ARCHIVED threshold.
	ConfirmationsToSettling int
	ConfirmationsToSettled  int

	// Disclosure policy thresholds.
	DisclosureRejectBelow  float64 // p_valid < this -> REJECT.
	DisclosureAcceptAbove  float64 // p_valid >= this -> ACCEPT.
	DisclosureSessionBudget int
	HighStakesSlots         []string

	// Reconstruction gate thresholds, per predicted response type.
	GateIntentThreshold       float64
	GateGroundingFactual      float64
	GateGroundingExplanatory  float64
	GateGroundingConversational float64
	GateMemoryFactual         float64
	GateMemoryExplanatory     float64
	GateMemoryConversational  float64

	// Retrieval defaults.
	RetrievalK         int
	SynthesisRetrievalK int

	// Fact extraction cache.
	FactCacheSize     int
	FactCacheMaxChars int

	// Reasoner call budget.
	ReasonerTimeout time.Duration

	// Optional learned suggestion model; absent means the engine falls back
	// to the paraphrase gate + classifier + slot-equality path only.
	LearnedModelPath string

	// Embedding dimensionality (fixed-width blobs in storage).
	EmbeddingDimensions int

	// Operational settings.
	LogLevel string
}

// Load reads configuration from environment variables with sensible defaults.
// Returns an error if any environment variable contains an unparseable value.
func Load() (Config, error) {
	var errs []error
	cfg := Config{
		DataDir:          envStr("CRT_DATA_DIR", "./data"),
		LogLevel:         envStr("CRT_LOG_LEVEL", "info"),
		LearnedModelPath: envStr("CRT_LEARNED_MODEL_PATH", ""),
		HighStakesSlots:  envStrSlice("CRT_HIGH_STAKES_SLOTS", []string{"medical", "financial", "legal", "safety", "credentials"}),
	}

	cfg.MaxOpenConns, errs = collectInt(errs, "CRT_MAX_OPEN_CONNS", 25)
	cfg.MaxIdleConns, errs = collectInt(errs, "CRT_MAX_IDLE_CONNS", 10)
	cfg.ConfirmationsToSettling, errs = collectInt(errs, "CRT_CONFIRMATIONS_TO_SETTLING", 2)
	cfg.ConfirmationsToSettled, errs = collectInt(errs, "CRT_CONFIRMATIONS_TO_SETTLED", 5)
	cfg.DisclosureSessionBudget, errs = collectInt(errs, "CRT_DISCLOSURE_SESSION_BUDGET", 3)
	cfg.RetrievalK, errs = collectInt(errs, "CRT_RETRIEVAL_K", 8)
	cfg.SynthesisRetrievalK, errs = collectInt(errs, "CRT_SYNTHESIS_RETRIEVAL_K", 24)
	cfg.FactCacheSize, errs = collectInt(errs, "CRT_FACT_CACHE_SIZE", 1000)
	cfg.FactCacheMaxChars, errs = collectInt(errs, "CRT_FACT_CACHE_MAX_CHARS", 10000)
	cfg.EmbeddingDimensions, errs = collectInt(errs, "CRT_EMBEDDING_DIMENSIONS", 384)

	cfg.TrustAlpha, errs = collectFloat(errs, "CRT_TRUST_ALPHA", 0.6)
	cfg.TrustGainOnAlign, errs = collectFloat(errs, "CRT_TRUST_GAIN_ON_ALIGN", 0.15)
	cfg.TrustLossOnContradict, errs = collectFloat(errs, "CRT_TRUST_LOSS_ON_CONTRADICT", 0.25)
	cfg.TrustFloor, errs = collectFloat(errs, "CRT_TRUST_FLOOR", 0.05)
	cfg.ReflectThreshold, errs = collectFloat(errs, "CRT_REFLECT_THRESHOLD", 0.55)
	cfg.DisclosureRejectBelow, errs = collectFloat(errs, "CRT_DISCLOSURE_REJECT_BELOW", 0.33)
	cfg.DisclosureAcceptAbove, errs = collectFloat(errs, "CRT_DISCLOSURE_ACCEPT_ABOVE", 0.67)
	cfg.GateIntentThreshold, errs = collectFloat(errs, "CRT_GATE_INTENT_THRESHOLD", 0.5)
	cfg.GateGroundingFactual, errs = collectFloat(errs, "CRT_GATE_GROUNDING_FACTUAL", 0.8)
	cfg.GateGroundingExplanatory, errs = collectFloat(errs, "CRT_GATE_GROUNDING_EXPLANATORY", 0.6)
	cfg.GateGroundingConversational, errs = collectFloat(errs, "CRT_GATE_GROUNDING_CONVERSATIONAL", 0.3)
	cfg.GateMemoryFactual, errs = collectFloat(errs, "CRT_GATE_MEMORY_FACTUAL", 0.7)
	cfg.GateMemoryExplanatory, errs = collectFloat(errs, "CRT_GATE_MEMORY_EXPLANATORY", 0.5)
	cfg.GateMemoryConversational, errs = collectFloat(errs, "CRT_GATE_MEMORY_CONVERSATIONAL", 0.2)

	cfg.BusyTimeout, errs = collectDuration(errs, "CRT_BUSY_TIMEOUT", 30*time.Second)
	cfg.RecencyHalfLife, errs = collectDuration(errs, "CRT_RECENCY_HALF_LIFE", 14*24*time.Hour)
	cfg.FreshnessWindow, errs = collectDuration(errs, "CRT_FRESHNESS_WINDOW", 7*24*time.Hour)
	cfg.ArchiveDays, errs = collectDuration(errs, "CRT_ARCHIVE_DAYS", 30*24*time.Hour)
	cfg.ReasonerTimeout, errs = collectDuration(errs, "CRT_REASONER_TIMEOUT", 8*time.Second)

	if len(errs) > 0 {
		msgs := make([]string, len(errs))
		for i, e := range errs {
			msgs[i] = e.Error()
		}
		return Config{}, fmt.Errorf("config: invalid environment variables:\n  %s", strings.Join(msgs, "\n  "))
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// collectInt parses an int env var, appending any error to the accumulator.
func collectInt(errs []error, key string, fallback int) (int, []error) {
	v, err := envInt(key, fallback)
	if err != nil {
		errs = append(errs, err)
	}
	return v, errs
}

// collectFloat parses a float64 env var, appending any error to the accumulator.
func collectFloat(errs []error, key string, fallback float64) (float64, []error) {
	v, err := envFloat(key, fallback)
	if err != nil {
		errs = append(errs, err)
	}
	return v, errs
}

// collectDuration parses a duration env var, appending any error to the accumulator.
func collectDuration(errs []error, key string, fallback time.Duration) (time.Duration, []error) {
	v, err := envDuration(key, fallback)
	if err != nil {
		errs = append(errs, err)
	}
	return v, errs
}

// Validate checks that configuration values are internally sane.
func (c Config) Validate() error {
	var errs []error

	if c.DataDir == "" {
		errs = append(errs, errors.New("config: CRT_DATA_DIR is required"))
	}
	if c.EmbeddingDimensions <= 0 {
		errs = append(errs, errors.New("config: CRT_EMBEDDING_DIMENSIONS must be positive"))
	}
	if c.TrustAlpha < 0 || c.TrustAlpha > 1 {
		errs = append(errs, errors.New("config: CRT_TRUST_ALPHA must be in [0,1]"))
	}
	if c.TrustFloor < 0 || c.TrustFloor > 1 {
		errs = append(errs, errors.New("config: CRT_TRUST_FLOOR must be in [0,1]"))
	}
	if c.DisclosureRejectBelow >= c.DisclosureAcceptAbove {
		errs = append(errs, errors.New("config: CRT_DISCLOSURE_REJECT_BELOW must be less than CRT_DISCLOSURE_ACCEPT_ABOVE"))
	}
	if c.BusyTimeout <= 0 {
		errs = append(errs, errors.New("config: CRT_BUSY_TIMEOUT must be positive"))
	}
	if c.ReasonerTimeout <= 0 {
		errs = append(errs, errors.New("config: CRT_REASONER_TIMEOUT must be positive"))
	}
	if c.FreshnessWindow <= 0 {
		errs = append(errs, errors.New("config: CRT_FRESHNESS_WINDOW must be positive"))
	}
	if c.ArchiveDays <= c.FreshnessWindow {
		errs = append(errs, errors.New("config: CRT_ARCHIVE_DAYS must exceed CRT_FRESHNESS_WINDOW"))
	}
	if c.RetrievalK <= 0 || c.SynthesisRetrievalK < c.RetrievalK {
		errs = append(errs, errors.New("config: CRT_RETRIEVAL_K/CRT_SYNTHESIS_RETRIEVAL_K misconfigured"))
	}
	if c.FactCacheSize <= 0 {
		errs = append(errs, errors.New("config: CRT_FACT_CACHE_SIZE must be positive"))
	}
	if c.LearnedModelPath != "" {
		if err := validateModelFile(c.LearnedModelPath); err != nil {
			errs = append(errs, err)
		}
	}

	return errors.Join(errs...)
}

// validateModelFile checks that an optional learned-model file, if
// configured, actually exists and is readable. Absence of the variable
// itself is not an error (see Load); this only fires when the path is set
// but points nowhere.
func validateModelFile(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("config: CRT_LEARNED_MODEL_PATH %q: %w", path, err)
	}
	if info.IsDir() {
		return fmt.Errorf("config: CRT_LEARNED_MODEL_PATH %q is a directory, expected a file", path)
	}
	return nil
}

func envStr(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func envInt(key string, fallback int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s=%q is not a valid integer", key, v)
	}
	return n, nil
}

func envFloat(key string, fallback float64) (float64, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, fmt.Errorf("%s=%q is not a valid float", key, v)
	}
	return f, nil
}

func envDuration(key string, fallback time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s=%q is not a valid duration", key, v)
	}
	return d, nil
}

// envStrSlice reads a comma-separated env var into a string slice.
// Returns fallback if the env var is empty or unset.
func envStrSlice(key string, fallback []string) []string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		return fallback
	}
	return out
}
