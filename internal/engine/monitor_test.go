package engine

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentfi/agentd/internal/domain"
)

func staticLookup(prices map[string]float64) PriceLookup {
	return func(asset string) (float64, bool) {
		p, ok := prices[asset]
		return p, ok
	}
}

func TestMonitorStopLossTriggers(t *testing.T) {
	m := NewMonitor()
	positions := []domain.Position{
		{Asset: "ETH", Amount: 500, EntryPrice: 2000, StopLoss: 1800, TakeProfit: 2600},
	}

	d := m.Check("0xagent", "rules", positions, staticLookup(map[string]float64{"ETH": 1750}), time.Now())

	require.NotNil(t, d)
	assert.Equal(t, domain.ActionStopLoss, d.Action)
	assert.Equal(t, 0, d.Params["position_index"])
	assert.Equal(t, "ETH", d.Params["asset"])
	assert.Equal(t, 1750.0, d.Params["current_price"])
}

func TestMonitorTakeProfitTriggers(t *testing.T) {
	m := NewMonitor()
	positions := []domain.Position{
		{Asset: "ETH", Amount: 500, EntryPrice: 2000, StopLoss: 1800, TakeProfit: 2600},
	}

	d := m.Check("0xagent", "rules", positions, staticLookup(map[string]float64{"ETH": 2700}), time.Now())

	require.NotNil(t, d)
	assert.Equal(t, domain.ActionTakeProfit, d.Action)
}

func TestMonitorStopLossBeatsTakeProfit(t *testing.T) {
	// Degenerate thresholds where both would match: stop-loss is checked
	// first per position.
	m := NewMonitor()
	positions := []domain.Position{
		{Asset: "ETH", StopLoss: 2000, TakeProfit: 1500},
	}

	d := m.Check("0xagent", "rules", positions, staticLookup(map[string]float64{"ETH": 1800}), time.Now())

	require.NotNil(t, d)
	assert.Equal(t, domain.ActionStopLoss, d.Action)
}

func TestMonitorFirstMatchWins(t *testing.T) {
	inspected := map[string]int{}
	lookup := func(asset string) (float64, bool) {
		inspected[asset]++
		prices := map[string]float64{"ETH": 1700, "BTC": 30000}
		p, ok := prices[asset]
		return p, ok
	}
	positions := []domain.Position{
		{Asset: "ETH", StopLoss: 1800},
		{Asset: "BTC", StopLoss: 40000}, // would also trigger
	}

	d := NewMonitor().Check("0xagent", "rules", positions, lookup, time.Now())

	require.NotNil(t, d)
	assert.Equal(t, domain.ActionStopLoss, d.Action)
	assert.Equal(t, 0, d.Params["position_index"])
	assert.Zero(t, inspected["BTC"], "later positions must not be inspected after a trigger")
}

func TestMonitorSkipsUnavailableAndZeroPrices(t *testing.T) {
	positions := []domain.Position{
		{Asset: "MISSING", StopLoss: 100},
		{Asset: "ZERO", StopLoss: 100},
		{Asset: "ETH", StopLoss: 1800},
	}

	d := NewMonitor().Check("0xagent", "rules", positions,
		staticLookup(map[string]float64{"ZERO": 0, "ETH": 1700}), time.Now())

	require.NotNil(t, d)
	assert.Equal(t, 2, d.Params["position_index"])
}

func TestMonitorNoTrigger(t *testing.T) {
	positions := []domain.Position{
		{Asset: "ETH", StopLoss: 1800, TakeProfit: 2600},
	}

	d := NewMonitor().Check("0xagent", "rules", positions, staticLookup(map[string]float64{"ETH": 2100}), time.Now())

	assert.Nil(t, d)
}

func TestMonitorIgnoresUnsetThresholds(t *testing.T) {
	positions := []domain.Position{
		{Asset: "ETH"}, // no thresholds set
	}

	d := NewMonitor().Check("0xagent", "rules", positions, staticLookup(map[string]float64{"ETH": 0.0001}), time.Now())

	assert.Nil(t, d)
}
