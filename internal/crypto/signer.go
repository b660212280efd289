package crypto

import (
	"crypto/ecdsa"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"

	"github.com/agentfi/agentd/internal/domain"
)

// Signer holds the agent wallet key and signs decision payloads the vault
// contract verifies on-chain.
type Signer struct {
	privateKey *ecdsa.PrivateKey
	address    common.Address
	chainID    int64
}

// NewSigner creates a Signer from a hex-encoded secp256k1 private key.
func NewSigner(privateKeyHex string, chainID int64) (*Signer, error) {
	keyHex := strings.TrimPrefix(privateKeyHex, "0x")
	pk, err := ethcrypto.HexToECDSA(keyHex)
	if err != nil {
		return nil, fmt.Errorf("crypto/signer: invalid private key: %w", err)
	}
	return &Signer{
		privateKey: pk,
		address:    ethcrypto.PubkeyToAddress(pk.PublicKey),
		chainID:    chainID,
	}, nil
}

// Address returns the wallet address derived from the private key.
func (s *Signer) Address() common.Address {
	return s.address
}

// ChainID returns the chain the signer targets.
func (s *Signer) ChainID() int64 {
	return s.chainID
}

// PrivateKey exposes the key for transaction signing. Callers must not
// retain it beyond building a transaction.
func (s *Signer) PrivateKey() *ecdsa.PrivateKey {
	return s.privateKey
}

// decisionPayload is the canonical subset of a decision that gets signed.
// Field order is fixed by the struct, keeping the digest reproducible.
type decisionPayload struct {
	AgentID        string         `json:"agent_id"`
	Action         string         `json:"action"`
	Params         map[string]any `json:"params"`
	RiskScore      float64        `json:"risk_score"`
	ExpectedReturn float64        `json:"expected_return"`
	Timestamp      int64          `json:"timestamp"`
}

// SignDecision signs the canonical JSON encoding of a decision with the
// EIP-191 personal-message prefix and returns the 65-byte r||s||v signature.
func (s *Signer) SignDecision(d domain.Decision) ([]byte, error) {
	payload, err := json.Marshal(decisionPayload{
		AgentID:        d.AgentID,
		Action:         string(d.Action),
		Params:         d.Params,
		RiskScore:      d.RiskScore,
		ExpectedReturn: d.ExpectedReturn,
		Timestamp:      d.Timestamp.Unix(),
	})
	if err != nil {
		return nil, fmt.Errorf("crypto/signer: encode decision: %w", err)
	}

	digest := personalHash(payload)
	sig, err := ethcrypto.Sign(digest, s.privateKey)
	if err != nil {
		return nil, fmt.Errorf("crypto/signer: %w: %v", domain.ErrSigningFailed, err)
	}

	// go-ethereum returns v in {0,1}; on-chain ecrecover expects {27,28}.
	if sig[64] < 27 {
		sig[64] += 27
	}
	return sig, nil
}

// personalHash is keccak256("\x19Ethereum Signed Message:\n" || len || msg).
func personalHash(msg []byte) []byte {
	prefixed := fmt.Appendf(nil, "\x19Ethereum Signed Message:\n%d", len(msg))
	prefixed = append(prefixed, msg...)
	return ethcrypto.Keccak256(prefixed)
}
