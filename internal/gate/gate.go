// Package gate implements the reconstruction gate (§4.7): the final check a
// candidate response must pass before it may be returned to the user.
package gate

import (
	"github.com/coherent-ai/crt/internal/config"
	"github.com/coherent-ai/crt/internal/model"
)

// Failure reasons, in the vocabulary the gate reports.
const (
	ReasonContradictionBlocking = "contradiction_blocking"
	ReasonGroundingFail         = "grounding_fail"
	ReasonMemoryFail            = "memory_fail"
	ReasonIntentFail            = "intent_fail"
)

// hardFailReasons cap confidence at 0.49: a blocking contradiction or an
// ungrounded answer are outright unsafe to present with any confidence.
var hardFailReasons = map[string]bool{
	ReasonContradictionBlocking: true,
	ReasonGroundingFail:         true,
}

// softFailReasons cap confidence at 0.69: a weak intent or memory alignment
// is a quality problem, not a safety one.
var softFailReasons = map[string]bool{
	ReasonMemoryFail: true,
	ReasonIntentFail: true,
}

// Input bundles everything the gate needs to evaluate one candidate response.
type Input struct {
	IntentAlign           float64
	MemoryAlign           float64
	ResponseType          model.PredictedResponseType
	GroundingScore        float64
	ContradictionSeverity model.ContradictionSeverity
	AlreadyResolvedAssertively bool
}

// thresholds resolves the response-type-specific grounding/memory-alignment
// thresholds from config. Factual is strictest, conversational loosest.
type thresholds struct {
	grounding float64
	memory    float64
}

func thresholdsFor(cfg *config.Config, rt model.PredictedResponseType) thresholds {
	switch rt {
	case model.PredictedFactual:
		return thresholds{grounding: cfg.GateGroundingFactual, memory: cfg.GateMemoryFactual}
	case model.PredictedExplanatory:
		return thresholds{grounding: cfg.GateGroundingExplanatory, memory: cfg.GateMemoryExplanatory}
	default:
		return thresholds{grounding: cfg.GateGroundingConversational, memory: cfg.GateMemoryConversational}
	}
}

// Evaluate runs the gate's ordered checks and returns whether the response
// passed, and if not, why.
func Evaluate(cfg *config.Config, in Input) (passed bool, reason string) {
	if in.ContradictionSeverity == model.SeverityBlocking && !in.AlreadyResolvedAssertively {
		return false, ReasonContradictionBlocking
	}

	th := thresholdsFor(cfg, in.ResponseType)
	if in.GroundingScore < th.grounding {
		return false, ReasonGroundingFail
	}
	if in.MemoryAlign < th.memory {
		return false, ReasonMemoryFail
	}
	if in.IntentAlign < cfg.GateIntentThreshold {
		return false, ReasonIntentFail
	}
	return true, ""
}

// CalibrateConfidence adjusts a reasoner's raw confidence after a gate
// evaluation: on pass, the confidence is unchanged; on failure, hard-fail
// reasons cap at 0.49, soft-fail reasons cap at 0.69, and any other
// failure reason is simply scaled down by 0.7.
func CalibrateConfidence(rawConfidence float32, passed bool, reason string) float32 {
	if passed {
		return rawConfidence
	}
	switch {
	case hardFailReasons[reason]:
		return min32(rawConfidence, 0.49)
	case softFailReasons[reason]:
		return min32(rawConfidence, 0.69)
	default:
		return rawConfidence * 0.7
	}
}

func min32(a, b float32) float32 {
	if a < b {
		return a
	}
	return b
}
