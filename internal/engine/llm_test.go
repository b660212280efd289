package engine

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentfi/agentd/internal/domain"
	"github.com/agentfi/agentd/internal/opportunity"
	"github.com/agentfi/agentd/internal/risk"
)

type fakeCompleter struct {
	response string
	err      error
	calls    int
}

func (f *fakeCompleter) Complete(context.Context, string, string) (string, error) {
	f.calls++
	return f.response, f.err
}

func newTestLLMEngine(c ChatCompleter) *LLMEngine {
	return NewLLMEngine(c, risk.NewAssessor(nil), opportunity.NewFinder())
}

func llmState() domain.AgentState {
	return domain.AgentState{
		Config:          domain.AgentConfig{AgentID: "0xagent"},
		CollateralUSDC:  100_000,
		AvailableCredit: 1_000,
	}
}

func TestLLMParsesWellFormedResponse(t *testing.T) {
	c := &fakeCompleter{response: `{"action":"BORROW_AND_INVEST","reasoning":"yield looks good","token":"ETH","amount_usdc":300,"risk_assessment":"MEDIUM","expected_return":0.08}`}
	e := newTestLLMEngine(c)

	d, err := e.Evaluate(context.Background(), llmState(), marketWithOpps(), time.Now())

	require.NoError(t, err)
	assert.Equal(t, domain.ActionBorrowAndInvest, d.Action)
	assert.Equal(t, "ETH", d.Params["token"])
	assert.InDelta(t, 300.0, d.Params["borrow_amount"].(float64), 1e-9)
	assert.InDelta(t, 0.5, d.RiskScore, 1e-9)
	assert.InDelta(t, 0.08, d.ExpectedReturn, 1e-9)
	assert.Equal(t, "llm", d.Engine)
}

func TestLLMStripsCodeFences(t *testing.T) {
	c := &fakeCompleter{response: "```json\n{\"action\":\"HOLD\",\"reasoning\":\"nothing to do\",\"risk_assessment\":\"LOW\"}\n```"}
	e := newTestLLMEngine(c)

	d, err := e.Evaluate(context.Background(), llmState(), marketWithOpps(), time.Now())

	require.NoError(t, err)
	assert.Equal(t, domain.ActionHold, d.Action)
	assert.Equal(t, "nothing to do", d.Reasoning)
}

func TestLLMMalformedResponseFallsBackToHold(t *testing.T) {
	c := &fakeCompleter{response: "I think you should probably buy ETH."}
	e := newTestLLMEngine(c)

	d, err := e.Evaluate(context.Background(), llmState(), marketWithOpps(), time.Now())

	require.NoError(t, err)
	assert.Equal(t, domain.ActionHold, d.Action)
	assert.Contains(t, d.Reasoning, "unparseable")
}

func TestLLMUnknownActionFallsBackToHold(t *testing.T) {
	c := &fakeCompleter{response: `{"action":"YOLO","reasoning":"moon"}`}
	e := newTestLLMEngine(c)

	d, err := e.Evaluate(context.Background(), llmState(), marketWithOpps(), time.Now())

	require.NoError(t, err)
	assert.Equal(t, domain.ActionHold, d.Action)
	assert.Contains(t, d.Reasoning, "unknown action")
}

func TestLLMTransportErrorPropagates(t *testing.T) {
	c := &fakeCompleter{err: errors.New("connection refused")}
	e := newTestLLMEngine(c)

	_, err := e.Evaluate(context.Background(), llmState(), marketWithOpps(), time.Now())

	assert.Error(t, err)
}

func TestLLMClampsBorrowToHalfCredit(t *testing.T) {
	c := &fakeCompleter{response: `{"action":"BORROW_AND_INVEST","reasoning":"aggressive","token":"ETH","amount_usdc":5000,"risk_assessment":"HIGH"}`}
	e := newTestLLMEngine(c)

	d, err := e.Evaluate(context.Background(), llmState(), marketWithOpps(), time.Now())

	require.NoError(t, err)
	assert.InDelta(t, 500.0, d.Params["borrow_amount"].(float64), 1e-9)
	assert.Contains(t, d.Reasoning, "clamped")
	assert.InDelta(t, 0.8, d.RiskScore, 1e-9)
}

func TestLLMBorrowCarriesEntryPrice(t *testing.T) {
	c := &fakeCompleter{response: `{"action":"BORROW_AND_INVEST","reasoning":"yield looks good","token":"ETH","amount_usdc":300,"risk_assessment":"MEDIUM"}`}
	e := newTestLLMEngine(c)

	d, err := e.Evaluate(context.Background(), llmState(), marketWithOpps(), time.Now())

	require.NoError(t, err)
	assert.InDelta(t, 2500.0, d.Params["entry_price"].(float64), 1e-9)
}

func TestLLMExitWithoutPositionIndexFallsBackToHold(t *testing.T) {
	c := &fakeCompleter{response: `{"action":"STOP_LOSS","reasoning":"bail out","risk_assessment":"HIGH"}`}
	e := newTestLLMEngine(c)

	state := llmState()
	state.Positions = []domain.Position{{Asset: "ETH", Amount: 300}}

	d, err := e.Evaluate(context.Background(), state, marketWithOpps(), time.Now())

	require.NoError(t, err)
	assert.Equal(t, domain.ActionHold, d.Action)
	assert.Contains(t, d.Reasoning, "position_index")
}

func TestLLMExitCarriesPositionIndex(t *testing.T) {
	c := &fakeCompleter{response: `{"action":"TAKE_PROFIT","reasoning":"target reached","position_index":1,"risk_assessment":"LOW"}`}
	e := newTestLLMEngine(c)

	state := llmState()
	state.Positions = []domain.Position{
		{Asset: "ETH", Amount: 300},
		{Asset: "BTC", Amount: 200},
	}

	d, err := e.Evaluate(context.Background(), state, marketWithOpps(), time.Now())

	require.NoError(t, err)
	assert.Equal(t, domain.ActionTakeProfit, d.Action)
	assert.Equal(t, 1, d.Params["position_index"])
	assert.Equal(t, "BTC", d.Params["asset"])
}

func TestLLMExitIndexOutOfRangeHolds(t *testing.T) {
	c := &fakeCompleter{response: `{"action":"STOP_LOSS","reasoning":"bail out","position_index":4,"risk_assessment":"HIGH"}`}
	e := newTestLLMEngine(c)

	state := llmState()
	state.Positions = []domain.Position{{Asset: "ETH", Amount: 300}}

	d, err := e.Evaluate(context.Background(), state, marketWithOpps(), time.Now())

	require.NoError(t, err)
	assert.Equal(t, domain.ActionHold, d.Action)
	assert.Contains(t, d.Reasoning, "1 are open")
}

func TestLLMStopLossSkipsModelCall(t *testing.T) {
	c := &fakeCompleter{response: `{"action":"HOLD","reasoning":"irrelevant"}`}
	e := newTestLLMEngine(c)

	now := time.Now()
	state := llmState()
	state.Positions = []domain.Position{
		{Asset: "ETH", EntryPrice: 2000, StopLoss: 1800, OpenedAt: now.Add(-time.Hour)},
	}
	market := marketWithOpps()
	market.Prices["ETH"] = 1750

	d, err := e.Evaluate(context.Background(), state, market, now)

	require.NoError(t, err)
	assert.Equal(t, domain.ActionStopLoss, d.Action)
	assert.Zero(t, c.calls, "exit discipline must not depend on the model")
}
