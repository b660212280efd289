package opportunity

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentfi/agentd/internal/domain"
)

func snapshotWith(venues map[string]domain.YieldOpportunity) domain.MarketSnapshot {
	return domain.MarketSnapshot{YieldOpportunities: venues}
}

func TestFindFiltersLowRiskAdjustedReturn(t *testing.T) {
	f := NewFinder()
	opps := f.Find(snapshotWith(map[string]domain.YieldOpportunity{
		"good":     {Asset: "ETH", APY: 0.09, Volatility: 0.03, TVL: 5_000_000},
		"marginal": {Asset: "BTC", APY: 0.08, Volatility: 0.04, TVL: 3_000_000}, // rar exactly 2.0
		"bad":      {Asset: "SOL", APY: 0.05, Volatility: 0.50, TVL: 1_000_000},
		"zerovol":  {Asset: "USDC", APY: 0.10, Volatility: 0, TVL: 9_000_000},
	}))

	require.Len(t, opps, 1)
	assert.Equal(t, "good", opps[0].Venue)
	assert.Equal(t, "ETH", opps[0].Asset)
}

func TestFindScores(t *testing.T) {
	opps := NewFinder().Find(snapshotWith(map[string]domain.YieldOpportunity{
		"pool": {Asset: "ETH", APY: 0.09, Volatility: 0.03, TVL: 500_000},
	}))

	require.Len(t, opps, 1)
	got := opps[0]
	assert.InDelta(t, 0.09, got.ExpectedReturn, 1e-9)
	assert.InDelta(t, 0.03, got.RiskScore, 1e-9)
	assert.InDelta(t, 0.5, got.LiquidityScore, 1e-9)
	// rar = 3.0 so confidence saturates at 1.
	assert.InDelta(t, 1.0, got.Confidence, 1e-9)
}

func TestFindSortedByExpectedReturn(t *testing.T) {
	opps := NewFinder().Find(snapshotWith(map[string]domain.YieldOpportunity{
		"a": {Asset: "A", APY: 0.07, Volatility: 0.01, TVL: 1},
		"b": {Asset: "B", APY: 0.12, Volatility: 0.01, TVL: 1},
		"c": {Asset: "C", APY: 0.09, Volatility: 0.01, TVL: 1},
	}))

	require.Len(t, opps, 3)
	for i := 1; i < len(opps); i++ {
		assert.GreaterOrEqual(t, opps[i-1].ExpectedReturn, opps[i].ExpectedReturn)
	}
}

func TestFindStableTieOrder(t *testing.T) {
	snap := snapshotWith(map[string]domain.YieldOpportunity{
		"alpha": {Asset: "A", APY: 0.10, Volatility: 0.01, TVL: 1},
		"beta":  {Asset: "B", APY: 0.10, Volatility: 0.01, TVL: 1},
	})

	opps := NewFinder().Find(snap)
	require.Len(t, opps, 2)
	assert.Equal(t, "alpha", opps[0].Venue)
	assert.Equal(t, "beta", opps[1].Venue)
}

func TestFindIdempotent(t *testing.T) {
	snap := snapshotWith(map[string]domain.YieldOpportunity{
		"x": {Asset: "ETH", APY: 0.08, Volatility: 0.02, TVL: 5_000_000},
		"y": {Asset: "BTC", APY: 0.075, Volatility: 0.015, TVL: 3_000_000},
	})
	f := NewFinder()

	assert.Equal(t, f.Find(snap), f.Find(snap))
}

func TestFindEmptySnapshot(t *testing.T) {
	assert.Empty(t, NewFinder().Find(domain.MarketSnapshot{}))
}
