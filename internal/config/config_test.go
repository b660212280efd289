package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultsValidate(t *testing.T) {
	cfg := Defaults()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, "rules", cfg.Agent.Engine)
	assert.Equal(t, 5*time.Minute, cfg.Agent.DecisionInterval.Duration)
	assert.True(t, cfg.Chain.UseMock)
}

func TestLoadMergesFileAndEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
mode = "agent"

[agent]
agent_id = "vault-7"
engine = "llm"
decision_interval = "30s"

[llm]
model = "gpt-4o"
`), 0o600))

	t.Setenv("AGENTD_LLM_API_KEY", "sk-test")
	t.Setenv("AGENTD_AGENT_RISK_TOLERANCE", "8")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "agent", cfg.Mode)
	assert.Equal(t, "vault-7", cfg.Agent.AgentID)
	assert.Equal(t, "llm", cfg.Agent.Engine)
	assert.Equal(t, 30*time.Second, cfg.Agent.DecisionInterval.Duration)
	assert.Equal(t, "gpt-4o", cfg.LLM.Model)
	assert.Equal(t, "sk-test", cfg.LLM.APIKey)
	assert.Equal(t, 8, cfg.Agent.RiskTolerance)
	// Untouched fields keep their defaults.
	assert.Equal(t, "localhost:6379", cfg.Redis.Addr)

	require.NoError(t, cfg.Validate())
}

func TestValidateCollectsErrors(t *testing.T) {
	cfg := Defaults()
	cfg.Mode = "banana"
	cfg.Agent.AgentID = ""
	cfg.Agent.Engine = "oracle"
	cfg.Market.Source = "tarot"

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown mode")
	assert.Contains(t, err.Error(), "agent_id")
	assert.Contains(t, err.Error(), "unknown engine")
	assert.Contains(t, err.Error(), "unknown source")
}

func TestValidateRealChainNeedsWalletAndVault(t *testing.T) {
	cfg := Defaults()
	cfg.Chain.UseMock = false
	cfg.Chain.VaultAddress = ""

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "vault_address")
	assert.Contains(t, err.Error(), "wallet")
}

func TestValidateRateLimitNeedsRedis(t *testing.T) {
	cfg := Defaults()
	cfg.Server.RateLimit = 100
	cfg.Redis.Enabled = false

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "rate_limit requires redis")
}

func TestRedactedConfig(t *testing.T) {
	cfg := Defaults()
	cfg.Wallet.PrivateKey = "0xdeadbeef"
	cfg.LLM.APIKey = "sk-secret"
	cfg.Redis.Password = "hunter2"
	cfg.Server.APIKey = "api-token"

	red := RedactedConfig(&cfg)
	assert.Equal(t, "***", red.Wallet.PrivateKey)
	assert.Equal(t, "***", red.LLM.APIKey)
	assert.Equal(t, "***", red.Redis.Password)
	assert.Equal(t, "***", red.Server.APIKey)

	// Original untouched.
	assert.Equal(t, "0xdeadbeef", cfg.Wallet.PrivateKey)

	// Mutating the copy's slices must not touch the original.
	red.Agent.Tokens[0] = "XRP"
	assert.Equal(t, "ETH", cfg.Agent.Tokens[0])
}
