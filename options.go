package crt

import (
	"log/slog"

	"github.com/coherent-ai/crt/internal/config"
	"github.com/coherent-ai/crt/internal/telemetry"
)

// Option configures an Engine at New time.
type Option func(*resolvedOptions)

// resolvedOptions holds all extension points after applying defaults.
// Unexported — callers use the With* functions.
type resolvedOptions struct {
	config         *config.Config
	logger         *slog.Logger
	instruments    *telemetry.Instruments
	reasoner       Reasoner
	embedder       Embedder
	persistProfile bool
}

// WithConfig overrides the configuration loaded from environment variables.
func WithConfig(cfg config.Config) Option {
	return func(o *resolvedOptions) { o.config = &cfg }
}

// WithLogger sets the structured logger for the Engine.
// If not set, the default slog logger is used.
func WithLogger(logger *slog.Logger) Option {
	return func(o *resolvedOptions) { o.logger = logger }
}

// WithInstruments sets the OpenTelemetry instrument set the Engine records
// turn counts, latencies and gate outcomes to. If not set, New builds its
// own from the global MeterProvider.
func WithInstruments(instr *telemetry.Instruments) Option {
	return func(o *resolvedOptions) { o.instruments = instr }
}

// WithReasoner sets the pluggable generative collaborator. Required —
// New returns an error if no reasoner is configured.
func WithReasoner(r Reasoner) Option {
	return func(o *resolvedOptions) { o.reasoner = r }
}

// WithEmbedder sets the pluggable embedding collaborator. Required —
// New returns an error if no embedder is configured.
func WithEmbedder(e Embedder) Option {
	return func(o *resolvedOptions) { o.embedder = e }
}

// WithoutProfilePersistence keeps the global user profile in memory only:
// it is neither loaded from disk at New nor written back when a turn
// records a profile value. Useful for short-lived or test engines.
func WithoutProfilePersistence() Option {
	return func(o *resolvedOptions) { o.persistProfile = false }
}
