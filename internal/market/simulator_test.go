package market

import (
	"context"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSimulatorSnapshotShape(t *testing.T) {
	sim := NewSimulator(nil, nil, rand.New(rand.NewSource(1)))

	snap, err := sim.Fetch(context.Background())

	require.NoError(t, err)
	assert.Len(t, snap.Prices, 3)
	assert.Contains(t, snap.Prices, "ETH")
	assert.Contains(t, snap.Prices, "BTC")
	assert.Contains(t, snap.Prices, "USDC")
	assert.Len(t, snap.YieldOpportunities, 2)
	assert.InDelta(t, 0.045, snap.RiskFreeRate, 1e-9)
	assert.False(t, snap.Timestamp.IsZero())
}

func TestSimulatorPricesStayBounded(t *testing.T) {
	// High volatility and many ticks to push against the clamps.
	tokens := []SimToken{
		{Symbol: "ETH", BasePrice: 2500, Volatility: 5.0, Liquidity: 0.9},
		{Symbol: "BTC", BasePrice: 45000, Volatility: 4.0, Liquidity: 0.95},
	}
	sim := NewSimulator(tokens, DefaultVenues(), rand.New(rand.NewSource(42)))

	for i := 0; i < 5000; i++ {
		snap, err := sim.Fetch(context.Background())
		require.NoError(t, err)
		for _, tok := range tokens {
			p := snap.Prices[tok.Symbol]
			assert.GreaterOrEqual(t, p, tok.BasePrice*0.3, "tick %d %s", i, tok.Symbol)
			assert.LessOrEqual(t, p, tok.BasePrice*3.0, "tick %d %s", i, tok.Symbol)
		}
	}
}

func TestSimulatorVenueAPYWithinJitter(t *testing.T) {
	sim := NewSimulator(DefaultTokens(), DefaultVenues(), rand.New(rand.NewSource(7)))

	for i := 0; i < 200; i++ {
		snap, err := sim.Fetch(context.Background())
		require.NoError(t, err)
		eth := snap.YieldOpportunities["ETH-USDC Pool"]
		assert.GreaterOrEqual(t, eth.APY, 0.06-1e-9)
		assert.LessOrEqual(t, eth.APY, 0.10+1e-9)
		assert.Equal(t, "ETH", eth.Asset)
	}
}

func TestSimulatorHonorsCancelledContext(t *testing.T) {
	sim := NewSimulator(nil, nil, rand.New(rand.NewSource(1)))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := sim.Fetch(ctx)

	assert.ErrorIs(t, err, context.Canceled)
}
