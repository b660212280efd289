package chain

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"

	"github.com/agentfi/agentd/internal/crypto"
	"github.com/agentfi/agentd/internal/domain"
)

const (
	submitTimeout   = 30 * time.Second
	defaultGasLimit = 500_000
)

// RPCExecutor translates decisions into signed executeDecision transactions.
type RPCExecutor struct {
	client *ethclient.Client
	vault  common.Address
	signer *crypto.Signer
	log    *slog.Logger
}

var _ Executor = (*RPCExecutor)(nil)

// NewRPCExecutor builds the executor on an existing RPC connection.
func NewRPCExecutor(client *ethclient.Client, vaultAddr string, signer *crypto.Signer, log *slog.Logger) (*RPCExecutor, error) {
	if !common.IsHexAddress(vaultAddr) {
		return nil, fmt.Errorf("chain: invalid vault address %q", vaultAddr)
	}
	return &RPCExecutor{
		client: client,
		vault:  common.HexToAddress(vaultAddr),
		signer: signer,
		log:    log.With(slog.String("component", "executor")),
	}, nil
}

// Execute implements Executor. The decision params travel as canonical JSON
// bytes; the vault decodes them per action code. HOLD decisions are rejected
// so the caller cannot burn gas on a no-op.
func (e *RPCExecutor) Execute(ctx context.Context, agentID string, d domain.Decision) (domain.Receipt, error) {
	if err := checkAgentID(agentID); err != nil {
		return domain.Receipt{}, err
	}
	if !d.Action.Valid() || d.Action == domain.ActionHold {
		return domain.Receipt{}, fmt.Errorf("chain: action %q: %w", d.Action, domain.ErrInvalidDecision)
	}

	ctx, cancel := context.WithTimeout(ctx, submitTimeout)
	defer cancel()

	parsed, err := loadVaultABI()
	if err != nil {
		return domain.Receipt{}, fmt.Errorf("chain: vault abi: %w", err)
	}

	sig, err := e.signer.SignDecision(d)
	if err != nil {
		return domain.Receipt{}, fmt.Errorf("chain: %w", err)
	}

	paramBytes, err := json.Marshal(d.Params)
	if err != nil {
		return domain.Receipt{}, fmt.Errorf("chain: encode params: %w", err)
	}
	proof := PlaceholderProof()

	input, err := parsed.Pack("executeDecision",
		common.HexToAddress(agentID), d.Action.Code(), paramBytes, proof, sig)
	if err != nil {
		return domain.Receipt{}, fmt.Errorf("chain: pack executeDecision: %w", err)
	}

	from := e.signer.Address()
	nonce, err := e.client.PendingNonceAt(ctx, from)
	if err != nil {
		return domain.Receipt{}, fmt.Errorf("chain: nonce: %w: %v", domain.ErrExecutionFailed, err)
	}
	gasPrice, err := e.client.SuggestGasPrice(ctx)
	if err != nil {
		return domain.Receipt{}, fmt.Errorf("chain: gas price: %w: %v", domain.ErrExecutionFailed, err)
	}

	tx := types.NewTransaction(nonce, e.vault, big.NewInt(0), defaultGasLimit, gasPrice, input)
	signedTx, err := types.SignTx(tx, types.NewEIP155Signer(big.NewInt(e.signer.ChainID())), e.signer.PrivateKey())
	if err != nil {
		return domain.Receipt{}, fmt.Errorf("chain: sign tx: %w: %v", domain.ErrSigningFailed, err)
	}

	if err := e.client.SendTransaction(ctx, signedTx); err != nil {
		return domain.Receipt{}, fmt.Errorf("chain: submit: %w: %v", domain.ErrExecutionFailed, err)
	}

	e.log.InfoContext(ctx, "decision submitted",
		slog.String("agent_id", agentID),
		slog.String("action", string(d.Action)),
		slog.String("tx_hash", signedTx.Hash().Hex()))

	return domain.Receipt{
		AgentID:     agentID,
		DecisionID:  d.ID,
		TxHash:      signedTx.Hash().Hex(),
		Proof:       proof,
		Signature:   sig,
		SubmittedAt: time.Now().UTC(),
	}, nil
}
