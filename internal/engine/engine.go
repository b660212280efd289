// Package engine turns (agent state, market snapshot) into exactly one
// decision per cycle. Two interchangeable implementations exist: the rule
// ladder and the LLM-assisted variant. The orchestrator depends only on the
// DecisionEngine interface.
package engine

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/agentfi/agentd/internal/domain"
)

// DecisionEngine is the capability both strategy variants implement.
type DecisionEngine interface {
	// Evaluate returns exactly one decision for the cycle. Implementations
	// must be safe to call repeatedly and must honor the position-monitor
	// priority before any other logic.
	Evaluate(ctx context.Context, state domain.AgentState, market domain.MarketSnapshot, now time.Time) (domain.Decision, error)
	Name() string
}

// TokenSelector chooses the asset for a BORROW_AND_INVEST decision. Injected
// so the selection policy stays explicit and testable.
type TokenSelector interface {
	Select(state domain.AgentState, market domain.MarketSnapshot, opps []domain.Opportunity) string
}

// OpportunitySelector picks the asset of the highest-ranked opportunity,
// restricted to the allowed token list when one is configured, falling back
// to the first allowed token.
type OpportunitySelector struct {
	Allowed []string
}

var _ TokenSelector = OpportunitySelector{}

// Select implements TokenSelector.
func (s OpportunitySelector) Select(_ domain.AgentState, _ domain.MarketSnapshot, opps []domain.Opportunity) string {
	for _, opp := range opps {
		if opp.Asset == "" {
			continue
		}
		if len(s.Allowed) == 0 || s.allowed(opp.Asset) {
			return opp.Asset
		}
	}
	if len(s.Allowed) > 0 {
		return s.Allowed[0]
	}
	return ""
}

func (s OpportunitySelector) allowed(asset string) bool {
	for _, a := range s.Allowed {
		if a == asset {
			return true
		}
	}
	return false
}

// StaticSelector always returns the same token. Used in tests and as a
// degenerate policy when no market data is available.
type StaticSelector string

var _ TokenSelector = StaticSelector("")

// Select implements TokenSelector.
func (s StaticSelector) Select(domain.AgentState, domain.MarketSnapshot, []domain.Opportunity) string {
	return string(s)
}

func newDecision(agentID, engineName string, action domain.Action, params map[string]any, riskScore, expectedReturn float64, reasoning string, now time.Time) domain.Decision {
	if params == nil {
		params = map[string]any{}
	}
	return domain.Decision{
		ID:             uuid.NewString(),
		AgentID:        agentID,
		Action:         action,
		Params:         params,
		RiskScore:      riskScore,
		ExpectedReturn: expectedReturn,
		Reasoning:      reasoning,
		Engine:         engineName,
		Timestamp:      now.UTC(),
	}
}
