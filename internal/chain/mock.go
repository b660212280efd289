package chain

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/agentfi/agentd/internal/domain"
)

// Exit thresholds seeded on simulated opens, relative to the entry price.
// Without them a simulated portfolio could never trigger a stop or take.
const (
	mockStopLossFraction   = 0.90
	mockTakeProfitFraction = 1.20
)

// MockLedger is an in-memory stand-in for the vault contract. It implements
// both StateReader and Executor so a full decision loop can run without an
// RPC endpoint, with executed decisions compounding into later reads.
type MockLedger struct {
	mu    sync.Mutex
	state domain.AgentState
}

var (
	_ StateReader = (*MockLedger)(nil)
	_ Executor    = (*MockLedger)(nil)
)

// DefaultMockState is the canonical development portfolio.
func DefaultMockState(cfg domain.AgentConfig) domain.AgentState {
	return domain.AgentState{
		Config:          cfg,
		CollateralUSDC:  100_000,
		BorrowedUSDC:    50_000,
		AvailableCredit: 30_000,
		TotalAssets:     55_000,
	}
}

// NewMockLedger seeds the ledger with an initial state.
func NewMockLedger(initial domain.AgentState) *MockLedger {
	return &MockLedger{state: initial}
}

// Fetch implements StateReader. Returns a deep copy so callers never share
// the ledger's internal slice.
func (m *MockLedger) Fetch(ctx context.Context, agentID string) (domain.AgentState, error) {
	if err := ctx.Err(); err != nil {
		return domain.AgentState{}, err
	}
	if err := checkAgentID(agentID); err != nil {
		return domain.AgentState{}, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	out := m.state
	out.Positions = append([]domain.Position(nil), m.state.Positions...)
	out.FetchedAt = time.Now().UTC()
	return out, nil
}

// Execute implements Executor, applying the decision to the ledger.
func (m *MockLedger) Execute(ctx context.Context, agentID string, d domain.Decision) (domain.Receipt, error) {
	if err := ctx.Err(); err != nil {
		return domain.Receipt{}, err
	}
	if err := checkAgentID(agentID); err != nil {
		return domain.Receipt{}, err
	}
	if !d.Action.Valid() || d.Action == domain.ActionHold {
		return domain.Receipt{}, fmt.Errorf("chain: action %q: %w", d.Action, domain.ErrInvalidDecision)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	switch d.Action {
	case domain.ActionBorrowAndInvest:
		if err := m.applyBorrow(d); err != nil {
			return domain.Receipt{}, err
		}
	case domain.ActionStopLoss, domain.ActionTakeProfit:
		if err := m.applyExit(d); err != nil {
			return domain.Receipt{}, err
		}
	case domain.ActionRebalance:
		// Rebalancing moves value between venues without changing totals.
	}

	return domain.Receipt{
		AgentID:     agentID,
		DecisionID:  d.ID,
		TxHash:      "0xmock" + uuid.NewString()[:8],
		Proof:       PlaceholderProof(),
		SubmittedAt: time.Now().UTC(),
	}, nil
}

func (m *MockLedger) applyBorrow(d domain.Decision) error {
	amount, _ := d.Params["borrow_amount"].(float64)
	if amount <= 0 {
		return fmt.Errorf("chain: borrow amount missing: %w", domain.ErrInvalidDecision)
	}
	if amount > m.state.AvailableCredit {
		return fmt.Errorf("chain: borrow %.2f exceeds credit %.2f: %w",
			amount, m.state.AvailableCredit, domain.ErrExecutionFailed)
	}
	token, _ := d.Params["token"].(string)
	venue, _ := d.Params["venue"].(string)

	m.state.BorrowedUSDC += amount
	m.state.AvailableCredit -= amount
	m.state.TotalAssets += amount

	pos := domain.Position{
		Protocol: venue,
		Asset:    token,
		Amount:   amount,
		OpenedAt: time.Now().UTC(),
	}
	if entry, _ := d.Params["entry_price"].(float64); entry > 0 {
		pos.EntryPrice = entry
		pos.StopLoss = entry * mockStopLossFraction
		pos.TakeProfit = entry * mockTakeProfitFraction
	}
	m.state.Positions = append(m.state.Positions, pos)
	return nil
}

func (m *MockLedger) applyExit(d domain.Decision) error {
	idx, ok := positionIndex(d.Params)
	if !ok || idx < 0 || idx >= len(m.state.Positions) {
		return fmt.Errorf("chain: bad position index: %w", domain.ErrInvalidDecision)
	}
	pos := m.state.Positions[idx]
	m.state.Positions = append(m.state.Positions[:idx], m.state.Positions[idx+1:]...)

	// Exits repay debt first; any excess frees credit.
	repaid := pos.Amount
	if repaid > m.state.BorrowedUSDC {
		repaid = m.state.BorrowedUSDC
	}
	m.state.BorrowedUSDC -= repaid
	m.state.AvailableCredit += pos.Amount
	if m.state.TotalAssets >= pos.Amount {
		m.state.TotalAssets -= pos.Amount
	} else {
		m.state.TotalAssets = 0
	}
	return nil
}

// positionIndex tolerates the two encodings the index arrives in: int from
// in-process decisions, float64 after a JSON round trip.
func positionIndex(params map[string]any) (int, bool) {
	switch v := params["position_index"].(type) {
	case int:
		return v, true
	case float64:
		return int(v), true
	default:
		return 0, false
	}
}
