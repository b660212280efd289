package domain

import "time"

// Action is the fixed set of moves the engine can emit.
type Action string

const (
	ActionHold            Action = "HOLD"
	ActionBorrowAndInvest Action = "BORROW_AND_INVEST"
	ActionRebalance       Action = "REBALANCE"
	ActionTakeProfit      Action = "TAKE_PROFIT"
	ActionStopLoss        Action = "STOP_LOSS"
)

// ValidActions lists every action the ledger understands, in encoding order.
var ValidActions = []Action{
	ActionHold,
	ActionBorrowAndInvest,
	ActionRebalance,
	ActionTakeProfit,
	ActionStopLoss,
}

// Valid reports whether a is one of the known actions.
func (a Action) Valid() bool {
	for _, v := range ValidActions {
		if a == v {
			return true
		}
	}
	return false
}

// Code returns the ledger's numeric encoding for the action.
func (a Action) Code() uint8 {
	for i, v := range ValidActions {
		if a == v {
			return uint8(i)
		}
	}
	return 0
}

// Decision is the single output artifact of one engine evaluation. It is
// immutable once returned and consumed exactly once by the execution adapter.
type Decision struct {
	ID             string         `json:"id"`
	AgentID        string         `json:"agent_id"`
	Action         Action         `json:"action"`
	Params         map[string]any `json:"params"`
	RiskScore      float64        `json:"risk_score"`
	ExpectedReturn float64        `json:"expected_return"`
	Reasoning      string         `json:"reasoning"`
	Engine         string         `json:"engine"` // "rules" or "llm"
	Timestamp      time.Time      `json:"timestamp"`
}

// Receipt is what the execution adapter hands back after submitting a
// decision to the ledger.
type Receipt struct {
	AgentID     string    `json:"agent_id"`
	DecisionID  string    `json:"decision_id"`
	TxHash      string    `json:"tx_hash"`
	Proof       []byte    `json:"proof"` // placeholder bytes, never a real proof
	Signature   []byte    `json:"signature"`
	SubmittedAt time.Time `json:"submitted_at"`
}
