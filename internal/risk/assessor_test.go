package risk

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentfi/agentd/internal/domain"
)

func testState() domain.AgentState {
	return domain.AgentState{
		Config:          domain.AgentConfig{AgentID: "0xagent"},
		CollateralUSDC:  100000,
		BorrowedUSDC:    50000,
		AvailableCredit: 30000,
		TotalAssets:     55000,
	}
}

func testMarket() domain.MarketSnapshot {
	return domain.MarketSnapshot{
		Timestamp:  time.Now(),
		Prices:     map[string]float64{"ETH": 2500, "BTC": 45000},
		Volatility: map[string]float64{"ETH": 0.6, "BTC": 0.5},
		Liquidity:  map[string]float64{"ETH": 0.9, "BTC": 0.95},
	}
}

func TestAssessHealthyState(t *testing.T) {
	a := NewAssessor(nil)
	report := a.Assess(testState(), testMarket())

	assert.InDelta(t, 3.1, report.CollateralRatio, 1e-9)
	assert.InDelta(t, 0.625, report.UtilizationRate, 1e-9)
	assert.InDelta(t, 0.55, report.VolatilityScore, 1e-9)
	assert.InDelta(t, 0.925, report.LiquidityScore, 1e-9)
	assert.Empty(t, report.Warnings)
	assert.Zero(t, report.OverallRisk)
}

func TestAssessZeroBorrowSentinel(t *testing.T) {
	state := testState()
	state.BorrowedUSDC = 0
	state.AvailableCredit = 80000

	report := NewAssessor(nil).Assess(state, testMarket())

	// Infinite-safe ratio is reported as the 0 sentinel, not a division error,
	// and must not trip the low-collateral warning.
	assert.Zero(t, report.CollateralRatio)
	assert.Empty(t, report.Warnings)
	assert.Zero(t, report.OverallRisk)
}

func TestAssessLowCollateralWarns(t *testing.T) {
	state := testState()
	state.CollateralUSDC = 10000
	state.TotalAssets = 5000
	state.BorrowedUSDC = 50000

	report := NewAssessor(nil).Assess(state, testMarket())

	require.Len(t, report.Warnings, 1)
	assert.Contains(t, report.Warnings[0], "collateral ratio")
	// Low collateral flag plus the any-warning flag.
	assert.InDelta(t, 0.6, report.OverallRisk, 1e-9)
}

func TestAssessHighUtilizationWarns(t *testing.T) {
	state := testState()
	state.BorrowedUSDC = 85000
	state.AvailableCredit = 15000
	state.CollateralUSDC = 200000

	report := NewAssessor(nil).Assess(state, testMarket())

	assert.InDelta(t, 0.85, report.UtilizationRate, 1e-9)
	require.NotEmpty(t, report.Warnings)
	assert.Contains(t, report.Warnings[0], "utilization")
	assert.InDelta(t, 0.5, report.OverallRisk, 1e-9)
}

func TestAssessConcentration(t *testing.T) {
	state := testState()
	state.Positions = []domain.Position{
		{Asset: "ETH"}, {Asset: "ETH"}, {Asset: "ETH"}, {Asset: "BTC"},
	}

	report := NewAssessor(nil).Assess(state, testMarket())

	assert.InDelta(t, 0.75, report.ConcentrationRisk, 1e-9)
	require.Len(t, report.Warnings, 1)
	assert.Contains(t, report.Warnings[0], "concentration")
}

func TestAssessEmptyMarketDefaults(t *testing.T) {
	report := NewAssessor(nil).Assess(testState(), domain.MarketSnapshot{})

	assert.InDelta(t, 0.5, report.VolatilityScore, 1e-9)
	assert.InDelta(t, 0.8, report.LiquidityScore, 1e-9)
}

func TestAssessIdempotent(t *testing.T) {
	a := NewAssessor(nil)
	state, market := testState(), testMarket()

	r1 := a.Assess(state, market)
	r2 := a.Assess(state, market)

	r1.Timestamp, r2.Timestamp = time.Time{}, time.Time{}
	assert.Equal(t, r1, r2)
}
