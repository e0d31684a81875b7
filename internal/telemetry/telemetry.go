// Package telemetry exposes the engine's OpenTelemetry instrumentation
// points. It never configures an SDK or exporter — as a library, the engine
// only calls the otel API against whatever TracerProvider/MeterProvider the
// embedding application has registered globally (or the no-op default if
// none has).
package telemetry

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

const instrumentationName = "github.com/coherent-ai/crt"

// Tracer returns the engine's tracer, bound to whatever TracerProvider is
// globally registered.
func Tracer() trace.Tracer {
	return otel.Tracer(instrumentationName)
}

// Meter returns the engine's meter, bound to whatever MeterProvider is
// globally registered.
func Meter() metric.Meter {
	return otel.Meter(instrumentationName)
}

// Instruments bundles the counters and histograms the orchestrator emits
// per turn. Built once per engine instance; safe for concurrent use.
type Instruments struct {
	TurnsProcessed         metric.Int64Counter
	ContradictionsDetected metric.Int64Counter
	GatePasses             metric.Int64Counter
	GateFailures           metric.Int64Counter
	ReasonerTimeouts       metric.Int64Counter
	TurnDuration           metric.Float64Histogram
}

// NewInstruments registers the engine's metric instruments against Meter().
func NewInstruments() (*Instruments, error) {
	m := Meter()

	turnsProcessed, err := m.Int64Counter("crt.turns_processed",
		metric.WithDescription("Number of orchestrator turns processed."))
	if err != nil {
		return nil, err
	}
	contradictionsDetected, err := m.Int64Counter("crt.contradictions_detected",
		metric.WithDescription("Number of turns whose result reports a detected contradiction."))
	if err != nil {
		return nil, err
	}
	gatePasses, err := m.Int64Counter("crt.gate_passes",
		metric.WithDescription("Number of candidate responses that passed the reconstruction gate."))
	if err != nil {
		return nil, err
	}
	gateFailures, err := m.Int64Counter("crt.gate_failures",
		metric.WithDescription("Number of candidate responses rejected by the reconstruction gate."))
	if err != nil {
		return nil, err
	}
	reasonerTimeouts, err := m.Int64Counter("crt.reasoner_timeouts",
		metric.WithDescription("Number of reasoner calls that exceeded their deadline."))
	if err != nil {
		return nil, err
	}
	turnDuration, err := m.Float64Histogram("crt.turn_duration_seconds",
		metric.WithDescription("Wall-clock duration of a single orchestrator turn."),
		metric.WithUnit("s"))
	if err != nil {
		return nil, err
	}

	return &Instruments{
		TurnsProcessed:         turnsProcessed,
		ContradictionsDetected: contradictionsDetected,
		GatePasses:             gatePasses,
		GateFailures:           gateFailures,
		ReasonerTimeouts:       reasonerTimeouts,
		TurnDuration:           turnDuration,
	}, nil
}

// StartSpan starts a span for one named orchestrator step.
func StartSpan(ctx context.Context, name string) (context.Context, trace.Span) {
	return Tracer().Start(ctx, name)
}
