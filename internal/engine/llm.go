package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/agentfi/agentd/internal/domain"
	"github.com/agentfi/agentd/internal/opportunity"
	"github.com/agentfi/agentd/internal/risk"
)

// ChatCompleter is the slice of the LLM client the engine needs.
type ChatCompleter interface {
	Complete(ctx context.Context, system, user string) (string, error)
}

// Cap on model-proposed borrow amounts relative to available credit.
const llmBorrowFraction = 0.5

const systemPrompt = `You are the decision module of an autonomous DeFi portfolio agent.
You manage collateral, borrowing, and yield positions for a single on-chain agent.
Respond with a single JSON object and nothing else. No markdown, no prose outside the JSON.

Schema:
{
  "action": "HOLD" | "BORROW_AND_INVEST" | "REBALANCE" | "TAKE_PROFIT" | "STOP_LOSS",
  "reasoning": "<one or two sentences>",
  "token": "<asset symbol, required for BORROW_AND_INVEST>",
  "amount_usdc": <number, required for BORROW_AND_INVEST>,
  "position_index": <integer index of the open position to exit, required for TAKE_PROFIT and STOP_LOSS>,
  "risk_assessment": "LOW" | "MEDIUM" | "HIGH",
  "expected_return": <number, annualized fraction>
}

Rules, in priority order:
1. If any open position has breached its stop-loss or take-profit threshold, you MUST exit it. This overrides everything else.
2. Never borrow more than half of the available credit.
3. Prefer HOLD when collateral ratio or utilization look strained.`

// LLMEngine derives decisions from a chat model while keeping exit
// discipline deterministic: the position monitor runs before the model is
// consulted, so a triggered stop-loss never depends on sampled output.
type LLMEngine struct {
	client   ChatCompleter
	assessor *risk.Assessor
	finder   *opportunity.Finder
	monitor  *Monitor
}

var _ DecisionEngine = (*LLMEngine)(nil)

// NewLLMEngine builds the LLM-assisted engine.
func NewLLMEngine(client ChatCompleter, assessor *risk.Assessor, finder *opportunity.Finder) *LLMEngine {
	return &LLMEngine{
		client:   client,
		assessor: assessor,
		finder:   finder,
		monitor:  NewMonitor(),
	}
}

// Name implements DecisionEngine.
func (e *LLMEngine) Name() string { return "llm" }

// Evaluate implements DecisionEngine. Transport failures are returned as
// errors so the loop's backoff applies; malformed model output degrades to a
// HOLD with the parse error recorded in the reasoning.
func (e *LLMEngine) Evaluate(ctx context.Context, state domain.AgentState, market domain.MarketSnapshot, now time.Time) (domain.Decision, error) {
	agentID := state.Config.AgentID

	if d := e.monitor.Check(agentID, e.Name(), state.Positions, SnapshotLookup(market), now); d != nil {
		return *d, nil
	}

	report := e.assessor.Assess(state, market)
	opps := e.finder.Find(market)

	raw, err := e.client.Complete(ctx, systemPrompt, buildUserPrompt(state, market, report, opps, now))
	if err != nil {
		return domain.Decision{}, fmt.Errorf("llm engine: %w", err)
	}

	parsed, err := parseModelDecision(raw)
	if err != nil {
		return newDecision(agentID, e.Name(), domain.ActionHold, nil,
			0.2, 0,
			fmt.Sprintf("model response unparseable, holding: %v", err),
			now), nil
	}

	return e.finalize(agentID, state, market, parsed, now), nil
}

func buildUserPrompt(state domain.AgentState, market domain.MarketSnapshot, report domain.RiskReport, opps []domain.Opportunity, now time.Time) string {
	var b strings.Builder

	fmt.Fprintf(&b, "Time: %s\n\n", now.UTC().Format(time.RFC3339))

	fmt.Fprintf(&b, "Portfolio:\n")
	fmt.Fprintf(&b, "- collateral: %.2f USDC\n", state.CollateralUSDC)
	fmt.Fprintf(&b, "- borrowed: %.2f USDC\n", state.BorrowedUSDC)
	fmt.Fprintf(&b, "- available credit: %.2f USDC\n", state.AvailableCredit)
	fmt.Fprintf(&b, "- total assets: %.2f USDC\n", state.TotalAssets)
	fmt.Fprintf(&b, "- open positions: %d\n", len(state.Positions))
	for i, p := range state.Positions {
		fmt.Fprintf(&b, "  [%d] %s amount=%.2f entry=%.2f stop_loss=%.2f take_profit=%.2f age=%.0fs\n",
			i, p.Asset, p.Amount, p.EntryPrice, p.StopLoss, p.TakeProfit, p.Age(now).Seconds())
	}

	fmt.Fprintf(&b, "\nRisk:\n")
	fmt.Fprintf(&b, "- collateral ratio: %.2f (0 means nothing borrowed)\n", report.CollateralRatio)
	fmt.Fprintf(&b, "- utilization: %.2f\n", report.UtilizationRate)
	fmt.Fprintf(&b, "- overall risk: %.2f\n", report.OverallRisk)
	for _, w := range report.Warnings {
		fmt.Fprintf(&b, "- warning: %s\n", w)
	}

	fmt.Fprintf(&b, "\nMarket prices:\n")
	for _, sym := range sortedKeys(market.Prices) {
		fmt.Fprintf(&b, "- %s: %.2f\n", sym, market.Prices[sym])
	}

	fmt.Fprintf(&b, "\nRanked opportunities (risk-adjusted return > 2.0):\n")
	if len(opps) == 0 {
		fmt.Fprintf(&b, "- none\n")
	}
	for _, o := range opps {
		fmt.Fprintf(&b, "- %s: asset=%s apy=%.4f volatility=%.4f confidence=%.2f\n",
			o.Venue, o.Asset, o.ExpectedReturn, o.RiskScore, o.Confidence)
	}

	fmt.Fprintf(&b, "\nDecide the single best action now.")
	return b.String()
}

func sortedKeys(m map[string]float64) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

type modelDecision struct {
	Action         string  `json:"action"`
	Reasoning      string  `json:"reasoning"`
	Token          string  `json:"token"`
	AmountUSDC     float64 `json:"amount_usdc"`
	PositionIndex  *int    `json:"position_index"`
	RiskAssessment string  `json:"risk_assessment"`
	ExpectedReturn float64 `json:"expected_return"`
}

// parseModelDecision validates the strict-JSON contract, tolerating the one
// deviation models make constantly: wrapping the object in a code fence.
func parseModelDecision(raw string) (modelDecision, error) {
	var out modelDecision

	cleaned := strings.TrimSpace(raw)
	cleaned = strings.TrimPrefix(cleaned, "```json")
	cleaned = strings.TrimPrefix(cleaned, "```")
	cleaned = strings.TrimSuffix(cleaned, "```")
	cleaned = strings.TrimSpace(cleaned)

	if err := json.Unmarshal([]byte(cleaned), &out); err != nil {
		return out, fmt.Errorf("decode: %w", err)
	}
	if !domain.Action(out.Action).Valid() {
		return out, fmt.Errorf("unknown action %q", out.Action)
	}
	if domain.Action(out.Action) == domain.ActionBorrowAndInvest {
		if out.Token == "" {
			return out, fmt.Errorf("borrow decision missing token")
		}
		if out.AmountUSDC <= 0 {
			return out, fmt.Errorf("borrow decision has non-positive amount %.2f", out.AmountUSDC)
		}
	}
	switch domain.Action(out.Action) {
	case domain.ActionStopLoss, domain.ActionTakeProfit:
		if out.PositionIndex == nil {
			return out, fmt.Errorf("exit decision missing position_index")
		}
	}
	return out, nil
}

func (e *LLMEngine) finalize(agentID string, state domain.AgentState, market domain.MarketSnapshot, md modelDecision, now time.Time) domain.Decision {
	action := domain.Action(md.Action)

	riskScore := 0.5
	switch strings.ToUpper(md.RiskAssessment) {
	case "LOW":
		riskScore = 0.2
	case "MEDIUM":
		riskScore = 0.5
	case "HIGH":
		riskScore = 0.8
	}

	params := map[string]any{}
	reasoning := md.Reasoning
	switch action {
	case domain.ActionBorrowAndInvest:
		amount := md.AmountUSDC
		if limit := state.AvailableCredit * llmBorrowFraction; amount > limit {
			amount = limit
			reasoning = fmt.Sprintf("%s (amount clamped to %.2f, half of available credit)", reasoning, limit)
		}
		params["token"] = md.Token
		params["borrow_amount"] = amount
		if price, ok := market.Price(md.Token); ok && price > 0 {
			params["entry_price"] = price
		}
	case domain.ActionStopLoss, domain.ActionTakeProfit:
		idx := *md.PositionIndex
		if idx < 0 || idx >= len(state.Positions) {
			return newDecision(agentID, e.Name(), domain.ActionHold, nil,
				riskScore, 0,
				fmt.Sprintf("model proposed exiting position %d but %d are open; holding", idx, len(state.Positions)),
				now)
		}
		params["position_index"] = idx
		params["asset"] = state.Positions[idx].Asset
	}

	return newDecision(agentID, e.Name(), action, params, riskScore, md.ExpectedReturn, reasoning, now)
}
