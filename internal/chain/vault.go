// Package chain reads agent state from the vault contract and submits signed
// decision transactions. A mock in-memory ledger backs development and tests.
package chain

import (
	"context"
	"fmt"
	"math/big"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/accounts/abi"

	"github.com/agentfi/agentd/internal/domain"
)

// Fixed-point scale for USDC-denominated amounts and prices on the wire.
const amountScale = 1e6

// vaultABIJSON is the slice of the agent-vault interface this service uses.
const vaultABIJSON = `[
  {"type":"function","name":"getAgentState","stateMutability":"view",
   "inputs":[{"name":"agent","type":"address"}],
   "outputs":[
     {"name":"collateral","type":"uint256"},
     {"name":"borrowed","type":"uint256"},
     {"name":"availableCredit","type":"uint256"},
     {"name":"totalAssets","type":"uint256"},
     {"name":"positionCount","type":"uint256"}]},
  {"type":"function","name":"getPosition","stateMutability":"view",
   "inputs":[{"name":"agent","type":"address"},{"name":"index","type":"uint256"}],
   "outputs":[
     {"name":"protocol","type":"string"},
     {"name":"asset","type":"string"},
     {"name":"amount","type":"uint256"},
     {"name":"entryPrice","type":"uint256"},
     {"name":"openedAt","type":"uint256"},
     {"name":"stopLoss","type":"uint256"},
     {"name":"takeProfit","type":"uint256"}]},
  {"type":"function","name":"executeDecision","stateMutability":"nonpayable",
   "inputs":[
     {"name":"agent","type":"address"},
     {"name":"action","type":"uint8"},
     {"name":"params","type":"bytes"},
     {"name":"proof","type":"bytes"},
     {"name":"signature","type":"bytes"}],
   "outputs":[]}
]`

var (
	vaultABIOnce sync.Once
	vaultABI     abi.ABI
	vaultABIErr  error
)

func loadVaultABI() (abi.ABI, error) {
	vaultABIOnce.Do(func() {
		vaultABI, vaultABIErr = abi.JSON(strings.NewReader(vaultABIJSON))
	})
	return vaultABI, vaultABIErr
}

// StateReader produces a fresh point-in-time agent state. Fetch failures are
// propagated as errors wrapping domain.ErrStateUnavailable; the caller must
// never see a silently zeroed state.
type StateReader interface {
	Fetch(ctx context.Context, agentID string) (domain.AgentState, error)
}

// Executor submits a decision to the ledger and surfaces submission failures
// as errors, never swallowing them.
type Executor interface {
	Execute(ctx context.Context, agentID string, d domain.Decision) (domain.Receipt, error)
}

// PlaceholderProof is the fixed stand-in emitted instead of a real
// zero-knowledge proof.
func PlaceholderProof() []byte {
	return []byte(strings.Repeat("proof", 16))
}

func toMicro(v float64) *big.Int {
	return big.NewInt(int64(v * amountScale))
}

func fromMicro(v *big.Int) float64 {
	if v == nil {
		return 0
	}
	f, _ := new(big.Float).Quo(new(big.Float).SetInt(v), big.NewFloat(amountScale)).Float64()
	return f
}

func checkAgentID(agentID string) error {
	if agentID == "" {
		return fmt.Errorf("chain: empty agent id")
	}
	return nil
}
