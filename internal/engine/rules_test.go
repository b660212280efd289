package engine

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentfi/agentd/internal/domain"
	"github.com/agentfi/agentd/internal/opportunity"
	"github.com/agentfi/agentd/internal/risk"
)

func newTestRulesEngine(selector TokenSelector) *RulesEngine {
	if selector == nil {
		selector = StaticSelector("ETH")
	}
	return NewRulesEngine(risk.NewAssessor(nil), opportunity.NewFinder(), selector)
}

func marketWithOpps() domain.MarketSnapshot {
	return domain.MarketSnapshot{
		Timestamp: time.Now(),
		Prices:    map[string]float64{"ETH": 2500, "BTC": 45000},
		YieldOpportunities: map[string]domain.YieldOpportunity{
			"ETH-USDC Pool": {Asset: "ETH", APY: 0.08, Volatility: 0.02, TVL: 5_000_000},
			"BTC-USDC Pool": {Asset: "BTC", APY: 0.075, Volatility: 0.015, TVL: 3_000_000},
		},
		Volatility: map[string]float64{"ETH": 0.6, "BTC": 0.5},
		Liquidity:  map[string]float64{"ETH": 0.9, "BTC": 0.95},
	}
}

func TestFirstOpenBorrowsThirtyPercent(t *testing.T) {
	e := newTestRulesEngine(nil)
	state := domain.AgentState{
		Config:          domain.AgentConfig{AgentID: "0xagent"},
		AvailableCredit: 500,
	}

	d, err := e.Evaluate(context.Background(), state, marketWithOpps(), time.Now())

	require.NoError(t, err)
	assert.Equal(t, domain.ActionBorrowAndInvest, d.Action)
	assert.InDelta(t, 150.0, d.Params["borrow_amount"].(float64), 1e-9)
	assert.Equal(t, "ETH", d.Params["token"])
	assert.InDelta(t, 2500.0, d.Params["entry_price"].(float64), 1e-9)
}

func TestFirstOpenRespectsCap(t *testing.T) {
	e := newTestRulesEngine(nil)
	state := domain.AgentState{
		Config:          domain.AgentConfig{AgentID: "0xagent"},
		AvailableCredit: 10_000,
	}

	d, err := e.Evaluate(context.Background(), state, marketWithOpps(), time.Now())

	require.NoError(t, err)
	assert.Equal(t, domain.ActionBorrowAndInvest, d.Action)
	assert.InDelta(t, 500.0, d.Params["borrow_amount"].(float64), 1e-9)
}

func TestStopLossBeatsFavorableConditions(t *testing.T) {
	e := newTestRulesEngine(nil)
	now := time.Now()
	state := domain.AgentState{
		Config:          domain.AgentConfig{AgentID: "0xagent"},
		AvailableCredit: 50_000, // plenty of credit, still must exit first
		CollateralUSDC:  100_000,
		Positions: []domain.Position{
			{Asset: "ETH", EntryPrice: 2000, StopLoss: 1800, TakeProfit: 2600, OpenedAt: now.Add(-2 * time.Hour)},
		},
	}
	market := marketWithOpps()
	market.Prices["ETH"] = 1750

	d, err := e.Evaluate(context.Background(), state, market, now)

	require.NoError(t, err)
	assert.Equal(t, domain.ActionStopLoss, d.Action)
	assert.Equal(t, 0, d.Params["position_index"])
}

func TestHighUtilizationHolds(t *testing.T) {
	e := newTestRulesEngine(nil)
	now := time.Now()
	state := domain.AgentState{
		Config:          domain.AgentConfig{AgentID: "0xagent"},
		CollateralUSDC:  500_000,
		BorrowedUSDC:    85_000,
		AvailableCredit: 15_000, // utilization 0.85
		TotalAssets:     90_000,
		Positions: []domain.Position{
			{Asset: "ETH", OpenedAt: now.Add(-2 * time.Hour)},
		},
	}

	d, err := e.Evaluate(context.Background(), state, marketWithOpps(), now)

	require.NoError(t, err)
	assert.Equal(t, domain.ActionHold, d.Action)
	assert.Contains(t, d.Reasoning, "utilization")
}

func TestLowCollateralHolds(t *testing.T) {
	e := newTestRulesEngine(nil)
	now := time.Now()
	state := domain.AgentState{
		Config:          domain.AgentConfig{AgentID: "0xagent"},
		CollateralUSDC:  10_000,
		BorrowedUSDC:    50_000,
		AvailableCredit: 40_000,
		TotalAssets:     5_000,
		Positions: []domain.Position{
			{Asset: "ETH", OpenedAt: now.Add(-2 * time.Hour)},
		},
	}

	d, err := e.Evaluate(context.Background(), state, marketWithOpps(), now)

	require.NoError(t, err)
	assert.Equal(t, domain.ActionHold, d.Action)
	assert.Contains(t, d.Reasoning, "collateral ratio")
}

func TestMaturationWindowHolds(t *testing.T) {
	e := newTestRulesEngine(nil)
	now := time.Now()
	state := domain.AgentState{
		Config:          domain.AgentConfig{AgentID: "0xagent"},
		CollateralUSDC:  100_000,
		BorrowedUSDC:    10_000,
		AvailableCredit: 1_000,
		TotalAssets:     50_000,
		Positions: []domain.Position{
			{Asset: "ETH", OpenedAt: now.Add(-300 * time.Second)},
		},
	}

	d, err := e.Evaluate(context.Background(), state, marketWithOpps(), now)

	require.NoError(t, err)
	assert.Equal(t, domain.ActionHold, d.Action)
	assert.Contains(t, d.Reasoning, "maturation")
}

func TestMatureAddOnBorrowsTwentyPercent(t *testing.T) {
	e := newTestRulesEngine(nil)
	now := time.Now()
	state := domain.AgentState{
		Config:          domain.AgentConfig{AgentID: "0xagent"},
		CollateralUSDC:  100_000,
		BorrowedUSDC:    10_000,
		AvailableCredit: 1_000,
		TotalAssets:     50_000,
		Positions: []domain.Position{
			{Asset: "ETH", OpenedAt: now.Add(-2 * time.Hour)},
		},
	}

	d, err := e.Evaluate(context.Background(), state, marketWithOpps(), now)

	require.NoError(t, err)
	assert.Equal(t, domain.ActionBorrowAndInvest, d.Action)
	assert.InDelta(t, 200.0, d.Params["borrow_amount"].(float64), 1e-9) // 20% of 1000, under cap
}

func TestDefaultHold(t *testing.T) {
	e := newTestRulesEngine(nil)
	now := time.Now()
	state := domain.AgentState{
		Config:          domain.AgentConfig{AgentID: "0xagent"},
		CollateralUSDC:  100_000,
		BorrowedUSDC:    10_000,
		AvailableCredit: 150, // below both borrow thresholds once positions exist
		TotalAssets:     50_000,
		Positions: []domain.Position{
			{Asset: "ETH", OpenedAt: now.Add(-2 * time.Hour)},
		},
	}

	d, err := e.Evaluate(context.Background(), state, marketWithOpps(), now)

	require.NoError(t, err)
	assert.Equal(t, domain.ActionHold, d.Action)
	assert.Contains(t, d.Reasoning, "no action criteria")
}

func TestOpportunitySelectorPicksTopRanked(t *testing.T) {
	e := newTestRulesEngine(OpportunitySelector{Allowed: []string{"ETH", "BTC"}})
	state := domain.AgentState{
		Config:          domain.AgentConfig{AgentID: "0xagent"},
		AvailableCredit: 500,
	}

	d, err := e.Evaluate(context.Background(), state, marketWithOpps(), time.Now())

	require.NoError(t, err)
	// ETH pool has the higher APY of the two venues.
	assert.Equal(t, "ETH", d.Params["token"])
}

func TestOpportunitySelectorFallsBack(t *testing.T) {
	sel := OpportunitySelector{Allowed: []string{"BTC"}}
	got := sel.Select(domain.AgentState{}, domain.MarketSnapshot{}, nil)
	assert.Equal(t, "BTC", got)
}
