package disclosure

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/coherent-ai/crt/internal/config"
	"github.com/coherent-ai/crt/internal/model"
)

func testConfig() *config.Config {
	return &config.Config{
		DisclosureRejectBelow:   0.33,
		DisclosureAcceptAbove:   0.67,
		DisclosureSessionBudget: 2,
		HighStakesSlots:         []string{"medical", "financial"},
	}
}

func TestDecide_RedZoneRejects(t *testing.T) {
	p := New(testConfig())
	d := p.Decide(Input{PValid: 0.1, Slot: "hobby"})
	assert.Equal(t, model.DisclosureReject, d.Action)
	assert.Equal(t, model.ZoneRed, d.Zone)
}

func TestDecide_GreenZoneAccepts(t *testing.T) {
	p := New(testConfig())
	d := p.Decide(Input{PValid: 0.9, Slot: "hobby"})
	assert.Equal(t, model.DisclosureAccept, d.Action)
	assert.Equal(t, model.ZoneGreen, d.Zone)
}

func TestDecide_YellowZoneClarifies(t *testing.T) {
	p := New(testConfig())
	d := p.Decide(Input{PValid: 0.5, Slot: "hobby", ClarificationPrompt: "Which is right?"})
	assert.Equal(t, model.DisclosureClarify, d.Action)
	assert.Equal(t, "Which is right?", d.ClarificationPrompt)
}

func TestDecide_HighStakesNeverAcceptsWithoutConfirmation(t *testing.T) {
	p := New(testConfig())
	d := p.Decide(Input{PValid: 0.95, Slot: "medical"})
	assert.Equal(t, model.DisclosureClarify, d.Action)
}

func TestDecide_HighStakesAcceptsWithExplicitConfirmation(t *testing.T) {
	p := New(testConfig())
	d := p.Decide(Input{PValid: 0.95, Slot: "medical", ExplicitConfirmation: true})
	assert.Equal(t, model.DisclosureAccept, d.Action)
}

func TestDecide_HighStakesBypassesClarifyBudget(t *testing.T) {
	cfg := testConfig()
	cfg.DisclosureSessionBudget = 0
	p := New(cfg)
	d := p.Decide(Input{PValid: 0.5, Slot: "medical"})
	assert.Equal(t, model.DisclosureClarify, d.Action)
}

func TestDecide_ClarifyBudgetExhaustedFallsBack(t *testing.T) {
	cfg := testConfig()
	cfg.DisclosureSessionBudget = 1
	p := New(cfg)

	first := p.Decide(Input{PValid: 0.5, Slot: "hobby"})
	assert.Equal(t, model.DisclosureClarify, first.Action)

	second := p.Decide(Input{PValid: 0.6, Slot: "hobby"})
	assert.NotEqual(t, model.DisclosureClarify, second.Action)
}

func TestRemainingClarifyBudget(t *testing.T) {
	cfg := testConfig()
	cfg.DisclosureSessionBudget = 2
	p := New(cfg)
	assert.Equal(t, 2, p.RemainingClarifyBudget())
	p.Decide(Input{PValid: 0.5, Slot: "hobby"})
	assert.Equal(t, 1, p.RemainingClarifyBudget())
}
