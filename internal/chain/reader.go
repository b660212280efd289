package chain

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"

	"github.com/agentfi/agentd/internal/domain"
)

const callTimeout = 15 * time.Second

// RPCReader reads agent state from the vault contract over JSON-RPC.
type RPCReader struct {
	client *ethclient.Client
	vault  common.Address
	agent  domain.AgentConfig
	log    *slog.Logger
}

var _ StateReader = (*RPCReader)(nil)

// NewRPCReader dials the RPC endpoint and binds the vault address. Dial
// failures are fatal construction errors, not deferred into the loops.
func NewRPCReader(ctx context.Context, rpcURL, vaultAddr string, agent domain.AgentConfig, log *slog.Logger) (*RPCReader, error) {
	client, err := ethclient.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, fmt.Errorf("chain: dial %s: %w", rpcURL, err)
	}
	if !common.IsHexAddress(vaultAddr) {
		return nil, fmt.Errorf("chain: invalid vault address %q", vaultAddr)
	}
	return &RPCReader{
		client: client,
		vault:  common.HexToAddress(vaultAddr),
		agent:  agent,
		log:    log.With(slog.String("component", "state_reader")),
	}, nil
}

// Close releases the RPC connection.
func (r *RPCReader) Close() error {
	r.client.Close()
	return nil
}

// Client exposes the underlying connection for the executor.
func (r *RPCReader) Client() *ethclient.Client {
	return r.client
}

// Fetch implements StateReader.
func (r *RPCReader) Fetch(ctx context.Context, agentID string) (domain.AgentState, error) {
	if err := checkAgentID(agentID); err != nil {
		return domain.AgentState{}, err
	}
	ctx, cancel := context.WithTimeout(ctx, callTimeout)
	defer cancel()

	parsed, err := loadVaultABI()
	if err != nil {
		return domain.AgentState{}, fmt.Errorf("chain: vault abi: %w", err)
	}

	agent := common.HexToAddress(agentID)
	raw, err := r.call(ctx, parsed, "getAgentState", agent)
	if err != nil {
		return domain.AgentState{}, fmt.Errorf("chain: getAgentState: %w: %v", domain.ErrStateUnavailable, err)
	}

	var head struct {
		Collateral      *big.Int
		Borrowed        *big.Int
		AvailableCredit *big.Int
		TotalAssets     *big.Int
		PositionCount   *big.Int
	}
	if err := parsed.UnpackIntoInterface(&head, "getAgentState", raw); err != nil {
		return domain.AgentState{}, fmt.Errorf("chain: decode state: %w: %v", domain.ErrStateUnavailable, err)
	}

	state := domain.AgentState{
		Config:          r.agent,
		CollateralUSDC:  fromMicro(head.Collateral),
		BorrowedUSDC:    fromMicro(head.Borrowed),
		AvailableCredit: fromMicro(head.AvailableCredit),
		TotalAssets:     fromMicro(head.TotalAssets),
		FetchedAt:       time.Now().UTC(),
	}

	count := int(head.PositionCount.Int64())
	for i := 0; i < count; i++ {
		pos, err := r.fetchPosition(ctx, parsed, agent, i)
		if err != nil {
			return domain.AgentState{}, fmt.Errorf("chain: position %d: %w: %v", i, domain.ErrStateUnavailable, err)
		}
		state.Positions = append(state.Positions, pos)
	}

	return state, nil
}

func (r *RPCReader) fetchPosition(ctx context.Context, parsed abi.ABI, agent common.Address, index int) (domain.Position, error) {
	raw, err := r.call(ctx, parsed, "getPosition", agent, big.NewInt(int64(index)))
	if err != nil {
		return domain.Position{}, err
	}

	var row struct {
		Protocol   string
		Asset      string
		Amount     *big.Int
		EntryPrice *big.Int
		OpenedAt   *big.Int
		StopLoss   *big.Int
		TakeProfit *big.Int
	}
	if err := parsed.UnpackIntoInterface(&row, "getPosition", raw); err != nil {
		return domain.Position{}, err
	}

	return domain.Position{
		Protocol:   row.Protocol,
		Asset:      row.Asset,
		Amount:     fromMicro(row.Amount),
		EntryPrice: fromMicro(row.EntryPrice),
		OpenedAt:   time.Unix(row.OpenedAt.Int64(), 0).UTC(),
		StopLoss:   fromMicro(row.StopLoss),
		TakeProfit: fromMicro(row.TakeProfit),
	}, nil
}

func (r *RPCReader) call(ctx context.Context, parsed abi.ABI, method string, args ...any) ([]byte, error) {
	input, err := parsed.Pack(method, args...)
	if err != nil {
		return nil, fmt.Errorf("pack %s: %w", method, err)
	}
	return r.client.CallContract(ctx, ethereum.CallMsg{To: &r.vault, Data: input}, nil)
}
