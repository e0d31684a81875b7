// Package disclosure implements the disclosure policy (§4.6): deciding
// whether a candidate claim should be accepted silently, surfaced for
// clarification, or rejected, based on a calibrated validity probability.
package disclosure

import (
	"strings"

	"github.com/coherent-ai/crt/internal/config"
	"github.com/coherent-ai/crt/internal/model"
)

// Input bundles what the policy needs to decide on one candidate claim.
type Input struct {
	PValid              float64
	Slot                string
	OldValue            string
	NewValue            string
	ClarificationPrompt string
	ExplicitConfirmation bool // true when the caller already has a confirmed path for this claim.
}

// Policy evaluates disclosure decisions against configured thresholds and
// enforces the per-session CLARIFY budget. It is not safe for concurrent
// use across goroutines without external synchronization — it belongs to
// one session.
type Policy struct {
	cfg           *config.Config
	clarifyBudget int
	clarifyUsed   int
}

// New builds a Policy with a fresh per-session CLARIFY budget from cfg.
func New(cfg *config.Config) *Policy {
	return &Policy{cfg: cfg, clarifyBudget: cfg.DisclosureSessionBudget}
}

func (p *Policy) isHighStakes(slot string) bool {
	for _, s := range p.cfg.HighStakesSlots {
		if strings.EqualFold(s, slot) {
			return true
		}
	}
	return false
}

// Decide evaluates in and returns the disclosure decision. High-stakes
// slots bypass the CLARIFY budget and may never ACCEPT without
// ExplicitConfirmation.
func (p *Policy) Decide(in Input) model.DisclosureDecision {
	highStakes := p.isHighStakes(in.Slot)

	var zone model.DisclosureZone
	var action model.DisclosureAction
	switch {
	case in.PValid < p.cfg.DisclosureRejectBelow:
		zone, action = model.ZoneRed, model.DisclosureReject
	case in.PValid < p.cfg.DisclosureAcceptAbove:
		zone, action = model.ZoneYellow, model.DisclosureClarify
	default:
		zone, action = model.ZoneGreen, model.DisclosureAccept
	}

	if highStakes && action == model.DisclosureAccept && !in.ExplicitConfirmation {
		zone, action = model.ZoneYellow, model.DisclosureClarify
	}

	if action == model.DisclosureClarify && !highStakes {
		if p.clarifyUsed >= p.clarifyBudget {
			// Budget exhausted: fall back to the safer of accept/reject by zone proximity.
			if in.PValid >= (p.cfg.DisclosureRejectBelow+p.cfg.DisclosureAcceptAbove)/2 {
				action = model.DisclosureAccept
			} else {
				action = model.DisclosureReject
			}
		} else {
			p.clarifyUsed++
		}
	}

	decision := model.DisclosureDecision{Action: action, Zone: zone}
	if action == model.DisclosureClarify {
		decision.ClarificationPrompt = in.ClarificationPrompt
	}
	return decision
}

// RemainingClarifyBudget reports how many CLARIFY actions remain this session.
func (p *Policy) RemainingClarifyBudget() int {
	remaining := p.clarifyBudget - p.clarifyUsed
	if remaining < 0 {
		return 0
	}
	return remaining
}
