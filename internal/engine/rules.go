package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/agentfi/agentd/internal/domain"
	"github.com/agentfi/agentd/internal/opportunity"
	"github.com/agentfi/agentd/internal/risk"
)

// Rule ladder thresholds. The ladder is a heuristic policy; the scores on
// each branch are constants, not computed.
const (
	minOpenCredit      = 100.0
	firstSliceFraction = 0.3
	firstSliceCap      = 500.0
	addOnCredit        = 200.0
	addOnSliceFraction = 0.2
	addOnSliceCap      = 300.0
	maturationWindow   = time.Hour
)

// RulesEngine is the deterministic decision ladder. Each rule short-circuits
// the rest, in strict priority order.
type RulesEngine struct {
	assessor *risk.Assessor
	finder   *opportunity.Finder
	selector TokenSelector
	monitor  *Monitor
}

var _ DecisionEngine = (*RulesEngine)(nil)

// NewRulesEngine builds the rule-based engine. selector must not be nil.
func NewRulesEngine(assessor *risk.Assessor, finder *opportunity.Finder, selector TokenSelector) *RulesEngine {
	return &RulesEngine{
		assessor: assessor,
		finder:   finder,
		selector: selector,
		monitor:  NewMonitor(),
	}
}

// Name implements DecisionEngine.
func (e *RulesEngine) Name() string { return "rules" }

// Evaluate implements DecisionEngine. Pure given its inputs; the only policy
// freedom is the injected token selector.
func (e *RulesEngine) Evaluate(_ context.Context, state domain.AgentState, market domain.MarketSnapshot, now time.Time) (domain.Decision, error) {
	agentID := state.Config.AgentID

	// Priority 1: exit triggers beat everything else.
	if d := e.monitor.Check(agentID, e.Name(), state.Positions, SnapshotLookup(market), now); d != nil {
		return *d, nil
	}

	opps := e.finder.Find(market)

	// Priority 2: nothing open and credit available.
	if len(state.Positions) == 0 && state.AvailableCredit > minOpenCredit {
		amount := minf(state.AvailableCredit*firstSliceFraction, firstSliceCap)
		token := e.selector.Select(state, market, opps)
		return newDecision(agentID, e.Name(), domain.ActionBorrowAndInvest,
			investParams(token, amount, opps, market),
			0.4, expectedReturnFor(opps),
			fmt.Sprintf("no open positions and %.2f credit available; opening initial position in %s", state.AvailableCredit, token),
			now), nil
	}

	// Priority 3: overextended, do nothing.
	utilization := state.UtilizationRate()
	if utilization > e.assessor.MaxUtilization() {
		return newDecision(agentID, e.Name(), domain.ActionHold, nil,
			0.7, 0,
			fmt.Sprintf("utilization %.2f above %.2f; holding to avoid overextension", utilization, e.assessor.MaxUtilization()),
			now), nil
	}

	// Priority 4: thin safety margin, do nothing. Nothing borrowed means the
	// ratio is infinitely safe and the rule cannot fire.
	if state.BorrowedUSDC > 0 {
		ratio := (state.CollateralUSDC + state.TotalAssets) / state.BorrowedUSDC
		if ratio < e.assessor.MinCollateralRatio() {
			return newDecision(agentID, e.Name(), domain.ActionHold, nil,
				0.6, 0,
				fmt.Sprintf("collateral ratio %.2f below %.2f; holding to preserve safety margin", ratio, e.assessor.MinCollateralRatio()),
				now), nil
		}
	}

	// Priority 5: let young positions mature before touching the portfolio.
	if newest := state.NewestPosition(); newest != nil {
		if age := newest.Age(now); age < maturationWindow {
			return newDecision(agentID, e.Name(), domain.ActionHold, nil,
				0.3, 0,
				fmt.Sprintf("newest position is %.0fs old; holding through the %.0fs maturation window", age.Seconds(), maturationWindow.Seconds()),
				now), nil
		}

		// Priority 6: mature portfolio with spare credit takes a smaller slice.
		if state.AvailableCredit > addOnCredit {
			amount := minf(state.AvailableCredit*addOnSliceFraction, addOnSliceCap)
			token := e.selector.Select(state, market, opps)
			return newDecision(agentID, e.Name(), domain.ActionBorrowAndInvest,
				investParams(token, amount, opps, market),
				0.5, expectedReturnFor(opps),
				fmt.Sprintf("positions mature and %.2f credit available; adding %.2f to %s", state.AvailableCredit, amount, token),
				now), nil
		}
	}

	// Default: nothing to do.
	return newDecision(agentID, e.Name(), domain.ActionHold, nil,
		0.2, 0, "no action criteria met; holding", now), nil
}

func investParams(token string, amount float64, opps []domain.Opportunity, market domain.MarketSnapshot) map[string]any {
	params := map[string]any{
		"token":         token,
		"borrow_amount": amount,
	}
	// The executor seeds the position's exit thresholds from the entry price.
	if price, ok := market.Price(token); ok && price > 0 {
		params["entry_price"] = price
	}
	if len(opps) > 0 {
		params["venue"] = opps[0].Venue
	}
	return params
}

func expectedReturnFor(opps []domain.Opportunity) float64 {
	if len(opps) > 0 {
		return opps[0].ExpectedReturn
	}
	return 0.05
}

func minf(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}
