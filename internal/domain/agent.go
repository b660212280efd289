package domain

import "time"

// AgentConfig carries the per-agent policy knobs set at onboarding.
type AgentConfig struct {
	AgentID       string   `json:"agent_id"`
	RiskTolerance int      `json:"risk_tolerance"` // 1..10
	TargetROI     float64  `json:"target_roi"`
	MaxDrawdown   float64  `json:"max_drawdown"`
	Strategies    []string `json:"strategies"`
}

// Position is a single open allocation. Immutable once created; closing a
// position removes it from the state's list rather than mutating it.
// StopLoss and TakeProfit are absolute price thresholds in the same unit as
// EntryPrice; zero means unset.
type Position struct {
	Protocol   string    `json:"protocol"`
	Asset      string    `json:"asset"`
	Amount     float64   `json:"amount"`
	EntryPrice float64   `json:"entry_price"`
	OpenedAt   time.Time `json:"opened_at"`
	StopLoss   float64   `json:"stop_loss"`
	TakeProfit float64   `json:"take_profit"`
}

// Age returns how long the position has been open as of now.
func (p Position) Age(now time.Time) time.Duration {
	return now.Sub(p.OpenedAt)
}

// AgentState is a point-in-time snapshot of the agent's portfolio as read
// from the external ledger. Produced fresh on every read, never cached or
// shared between loops.
type AgentState struct {
	Config          AgentConfig `json:"config"`
	CollateralUSDC  float64     `json:"collateral_amount"`
	BorrowedUSDC    float64     `json:"borrowed_amount"`
	AvailableCredit float64     `json:"available_credit"`
	TotalAssets     float64     `json:"total_assets"`
	Positions       []Position  `json:"positions"`
	FetchedAt       time.Time   `json:"fetched_at"`
}

// UtilizationRate is borrowed over total credit line, 0 when nothing is
// extended.
func (s AgentState) UtilizationRate() float64 {
	total := s.BorrowedUSDC + s.AvailableCredit
	if total <= 0 {
		return 0
	}
	return s.BorrowedUSDC / total
}

// NewestPosition returns the most recently opened position, or nil when the
// agent holds none.
func (s AgentState) NewestPosition() *Position {
	if len(s.Positions) == 0 {
		return nil
	}
	newest := &s.Positions[0]
	for i := range s.Positions[1:] {
		p := &s.Positions[i+1]
		if p.OpenedAt.After(newest.OpenedAt) {
			newest = p
		}
	}
	return newest
}
