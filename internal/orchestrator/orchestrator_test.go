package orchestrator

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentfi/agentd/internal/chain"
	"github.com/agentfi/agentd/internal/domain"
	"github.com/agentfi/agentd/internal/engine"
	"github.com/agentfi/agentd/internal/opportunity"
	"github.com/agentfi/agentd/internal/risk"
)

type failingReader struct {
	calls atomic.Int64
}

func (f *failingReader) Fetch(context.Context, string) (domain.AgentState, error) {
	f.calls.Add(1)
	return domain.AgentState{}, domain.ErrStateUnavailable
}

type staticSource struct {
	snap domain.MarketSnapshot
}

func (s staticSource) Fetch(context.Context) (domain.MarketSnapshot, error) {
	return s.snap, nil
}

func discardLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

func newRulesOrchestrator(t *testing.T, reader chain.StateReader, executor chain.Executor, cfg Config) *Orchestrator {
	t.Helper()
	eng := engine.NewRulesEngine(risk.NewAssessor(nil), opportunity.NewFinder(), engine.StaticSelector("ETH"))
	o, err := New(cfg, reader, staticSource{snap: domain.MarketSnapshot{
		Prices: map[string]float64{"ETH": 2500},
		YieldOpportunities: map[string]domain.YieldOpportunity{
			"ETH-USDC Pool": {Asset: "ETH", APY: 0.08, Volatility: 0.02, TVL: 5_000_000},
		},
	}}, eng, risk.NewAssessor(nil), executor, Collaborators{}, discardLogger())
	require.NoError(t, err)
	return o
}

func TestRunStopsOnCancel(t *testing.T) {
	ledger := chain.NewMockLedger(chain.DefaultMockState(domain.AgentConfig{AgentID: "0xagent"}))
	o := newRulesOrchestrator(t, ledger, ledger, Config{
		AgentID:          "0xagent",
		DecisionInterval: 10 * time.Millisecond,
		RiskInterval:     10 * time.Millisecond,
		ErrorBackoff:     10 * time.Millisecond,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	err := o.Run(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestLoopSurvivesFetchErrors(t *testing.T) {
	reader := &failingReader{}
	ledger := chain.NewMockLedger(domain.AgentState{})
	o := newRulesOrchestrator(t, reader, ledger, Config{
		AgentID:          "0xagent",
		DecisionInterval: 5 * time.Millisecond,
		RiskInterval:     5 * time.Millisecond,
		ErrorBackoff:     5 * time.Millisecond,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 80*time.Millisecond)
	defer cancel()

	err := o.Run(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	// Both loops kept retrying through errors instead of dying.
	assert.Greater(t, reader.calls.Load(), int64(4))
}

func TestDecisionIterationExecutesNonHold(t *testing.T) {
	// Empty portfolio with credit: the rules ladder opens a position, the
	// mock ledger applies it, and the next read reflects it.
	ledger := chain.NewMockLedger(domain.AgentState{
		Config:          domain.AgentConfig{AgentID: "0xagent"},
		AvailableCredit: 500,
	})
	o := newRulesOrchestrator(t, ledger, ledger, Config{AgentID: "0xagent"})

	require.NoError(t, o.decisionIteration(context.Background()))

	state, err := ledger.Fetch(context.Background(), "0xagent")
	require.NoError(t, err)
	require.Len(t, state.Positions, 1)
	assert.InDelta(t, 150.0, state.Positions[0].Amount, 1e-9)
	assert.InDelta(t, 350.0, state.AvailableCredit, 1e-9)
}

func TestDecisionIterationHoldSkipsExecutor(t *testing.T) {
	// Positions young, no credit headroom: ladder holds, executor untouched.
	ledger := chain.NewMockLedger(domain.AgentState{
		Config:         domain.AgentConfig{AgentID: "0xagent"},
		CollateralUSDC: 10_000,
		Positions:      []domain.Position{{Asset: "ETH", OpenedAt: time.Now()}},
	})
	o := newRulesOrchestrator(t, ledger, ledger, Config{AgentID: "0xagent"})

	require.NoError(t, o.decisionIteration(context.Background()))

	state, err := ledger.Fetch(context.Background(), "0xagent")
	require.NoError(t, err)
	assert.Len(t, state.Positions, 1)
}

func TestDecisionIterationPropagatesStateError(t *testing.T) {
	reader := &failingReader{}
	ledger := chain.NewMockLedger(domain.AgentState{})
	o := newRulesOrchestrator(t, reader, ledger, Config{AgentID: "0xagent"})

	err := o.decisionIteration(context.Background())
	assert.ErrorIs(t, err, domain.ErrStateUnavailable)
}

func TestRiskIterationRecordsReport(t *testing.T) {
	ledger := chain.NewMockLedger(chain.DefaultMockState(domain.AgentConfig{AgentID: "0xagent"}))
	o := newRulesOrchestrator(t, ledger, ledger, Config{AgentID: "0xagent"})

	assert.NoError(t, o.riskIteration(context.Background()))
}

func TestNewValidatesInputs(t *testing.T) {
	_, err := New(Config{}, nil, nil, nil, nil, nil, Collaborators{}, discardLogger())
	assert.Error(t, err)

	ledger := chain.NewMockLedger(domain.AgentState{})
	_, err = New(Config{AgentID: "0xagent"}, ledger, nil, nil, nil, nil, Collaborators{}, discardLogger())
	assert.ErrorContains(t, err, "missing required")
}

var errBoom = errors.New("boom")

type failingExecutor struct{}

func (failingExecutor) Execute(context.Context, string, domain.Decision) (domain.Receipt, error) {
	return domain.Receipt{}, errBoom
}

func TestDecisionIterationSurfacesExecutionError(t *testing.T) {
	ledger := chain.NewMockLedger(domain.AgentState{
		Config:          domain.AgentConfig{AgentID: "0xagent"},
		AvailableCredit: 500,
	})
	o := newRulesOrchestrator(t, ledger, failingExecutor{}, Config{AgentID: "0xagent"})

	err := o.decisionIteration(context.Background())
	assert.ErrorIs(t, err, errBoom)
}
