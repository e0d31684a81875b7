package gate

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/coherent-ai/crt/internal/config"
	"github.com/coherent-ai/crt/internal/model"
)

func testConfig() *config.Config {
	return &config.Config{
		GateIntentThreshold:         0.5,
		GateGroundingFactual:        0.8,
		GateGroundingExplanatory:    0.6,
		GateGroundingConversational: 0.3,
		GateMemoryFactual:           0.7,
		GateMemoryExplanatory:       0.5,
		GateMemoryConversational:    0.2,
	}
}

func TestEvaluate_PassesWhenAllThresholdsMet(t *testing.T) {
	passed, reason := Evaluate(testConfig(), Input{
		IntentAlign:    0.9,
		MemoryAlign:    0.9,
		GroundingScore: 0.9,
		ResponseType:   model.PredictedFactual,
	})
	assert.True(t, passed)
	assert.Empty(t, reason)
}

func TestEvaluate_BlockingContradictionFails(t *testing.T) {
	passed, reason := Evaluate(testConfig(), Input{
		IntentAlign:           0.9,
		MemoryAlign:           0.9,
		GroundingScore:        0.9,
		ResponseType:          model.PredictedFactual,
		ContradictionSeverity: model.SeverityBlocking,
	})
	assert.False(t, passed)
	assert.Equal(t, ReasonContradictionBlocking, reason)
}

func TestEvaluate_BlockingContradictionPassesWhenAlreadyResolved(t *testing.T) {
	passed, _ := Evaluate(testConfig(), Input{
		IntentAlign:                0.9,
		MemoryAlign:                0.9,
		GroundingScore:             0.9,
		ResponseType:               model.PredictedFactual,
		ContradictionSeverity:      model.SeverityBlocking,
		AlreadyResolvedAssertively: true,
	})
	assert.True(t, passed)
}

func TestEvaluate_GroundingFailForFactualIsStrict(t *testing.T) {
	passed, reason := Evaluate(testConfig(), Input{
		IntentAlign:    0.9,
		MemoryAlign:    0.9,
		GroundingScore: 0.75, // below factual's 0.8 but above conversational's 0.3
		ResponseType:   model.PredictedFactual,
	})
	assert.False(t, passed)
	assert.Equal(t, ReasonGroundingFail, reason)
}

func TestEvaluate_SameGroundingScorePassesConversational(t *testing.T) {
	passed, _ := Evaluate(testConfig(), Input{
		IntentAlign:    0.9,
		MemoryAlign:    0.9,
		GroundingScore: 0.75,
		ResponseType:   model.PredictedConversational,
	})
	assert.True(t, passed)
}

func TestEvaluate_MemoryFail(t *testing.T) {
	passed, reason := Evaluate(testConfig(), Input{
		IntentAlign:    0.9,
		MemoryAlign:    0.3,
		GroundingScore: 0.9,
		ResponseType:   model.PredictedFactual,
	})
	assert.False(t, passed)
	assert.Equal(t, ReasonMemoryFail, reason)
}

func TestEvaluate_IntentFail(t *testing.T) {
	passed, reason := Evaluate(testConfig(), Input{
		IntentAlign:    0.1,
		MemoryAlign:    0.9,
		GroundingScore: 0.9,
		ResponseType:   model.PredictedFactual,
	})
	assert.False(t, passed)
	assert.Equal(t, ReasonIntentFail, reason)
}

func TestCalibrateConfidence_PassUnchanged(t *testing.T) {
	assert.Equal(t, float32(0.95), CalibrateConfidence(0.95, true, ""))
}

func TestCalibrateConfidence_HardFailCapsAt049(t *testing.T) {
	assert.Equal(t, float32(0.49), CalibrateConfidence(0.95, false, ReasonGroundingFail))
	assert.Equal(t, float32(0.3), CalibrateConfidence(0.3, false, ReasonContradictionBlocking))
}

func TestCalibrateConfidence_SoftFailCapsAt069(t *testing.T) {
	assert.Equal(t, float32(0.69), CalibrateConfidence(0.95, false, ReasonMemoryFail))
	assert.Equal(t, float32(0.5), CalibrateConfidence(0.5, false, ReasonIntentFail))
}

func TestCalibrateConfidence_OtherwiseScaledBy07(t *testing.T) {
	assert.InDelta(t, float32(0.7), CalibrateConfidence(1.0, false, "some_other_reason"), 1e-6)
}
