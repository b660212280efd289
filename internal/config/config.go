// Package config defines the top-level configuration for the agent daemon
// and provides validation helpers.
package config

import (
	"fmt"
	"strings"
	"time"
)

// Config is the root configuration structure. Fields are populated from a TOML
// file and then optionally overridden by AGENTD_* environment variables.
type Config struct {
	Agent    AgentConfig    `toml:"agent"`
	Risk     RiskConfig     `toml:"risk"`
	Wallet   WalletConfig   `toml:"wallet"`
	Chain    ChainConfig    `toml:"chain"`
	LLM      LLMConfig      `toml:"llm"`
	Market   MarketConfig   `toml:"market"`
	Postgres PostgresConfig `toml:"postgres"`
	Redis    RedisConfig    `toml:"redis"`
	Server   ServerConfig   `toml:"server"`
	Notify   NotifyConfig   `toml:"notify"`
	Mode     string         `toml:"mode"`
	LogLevel string         `toml:"log_level"`
}

// AgentConfig describes the managed agent and its decision loop cadence.
type AgentConfig struct {
	AgentID       string   `toml:"agent_id"`
	RiskTolerance int      `toml:"risk_tolerance"` // 1..10
	TargetROI     float64  `toml:"target_roi"`
	MaxDrawdown   float64  `toml:"max_drawdown"`
	Strategies    []string `toml:"strategies"`

	// Engine selects the decision engine: "rules" or "llm".
	Engine string `toml:"engine"`

	// Tokens the engine may invest in when no opportunity stands out.
	Tokens []string `toml:"tokens"`

	DecisionInterval duration `toml:"decision_interval"`
	RiskInterval     duration `toml:"risk_interval"`
}

// RiskConfig tunes the risk assessor thresholds. Zero values take the
// assessor defaults.
type RiskConfig struct {
	MinCollateralRatio float64 `toml:"min_collateral_ratio"`
	MaxUtilization     float64 `toml:"max_utilization"`
	MaxConcentration   float64 `toml:"max_concentration"`
}

// WalletConfig holds Ethereum wallet credentials.
type WalletConfig struct {
	PrivateKey       string `toml:"private_key"`
	EncryptedKeyPath string `toml:"encrypted_key_path"`
	KeyPassword      string `toml:"key_password"`
}

// ChainConfig holds RPC endpoint and vault contract parameters.
type ChainConfig struct {
	RPCURL       string `toml:"rpc_url"`
	VaultAddress string `toml:"vault_address"`
	ChainID      int64  `toml:"chain_id"`

	// UseMock swaps the RPC reader/executor for the in-memory ledger.
	UseMock bool `toml:"use_mock"`
}

// LLMConfig holds the OpenAI-compatible chat completion endpoint used by the
// "llm" engine.
type LLMConfig struct {
	BaseURL string   `toml:"base_url"`
	APIKey  string   `toml:"api_key"`
	Model   string   `toml:"model"`
	Timeout duration `toml:"timeout"`
}

// MarketVenue is a statically configured yield venue for the live market
// source.
type MarketVenue struct {
	Name       string  `toml:"name"`
	Asset      string  `toml:"asset"`
	APY        float64 `toml:"apy"`
	Volatility float64 `toml:"volatility"`
	TVL        float64 `toml:"tvl"`
}

// MarketConfig selects and configures the market data source.
type MarketConfig struct {
	// Source is "simulator" or "live".
	Source string `toml:"source"`

	CoinGeckoBaseURL string   `toml:"coingecko_base_url"`
	CoinGeckoAPIKey  string   `toml:"coingecko_api_key"`
	PriceTTL         duration `toml:"price_ttl"`

	Symbols []string      `toml:"symbols"`
	Venues  []MarketVenue `toml:"venues"`
}

// PostgresConfig holds PostgreSQL connection parameters.
type PostgresConfig struct {
	Enabled       bool   `toml:"enabled"`
	DSN           string `toml:"dsn"`
	Host          string `toml:"host"`
	Port          int    `toml:"port"`
	Database      string `toml:"database"`
	User          string `toml:"user"`
	Password      string `toml:"password"`
	SSLMode       string `toml:"ssl_mode"`
	PoolMaxConns  int    `toml:"pool_max_conns"`
	PoolMinConns  int    `toml:"pool_min_conns"`
	RunMigrations bool   `toml:"run_migrations"`
}

// RedisConfig holds Redis connection parameters.
type RedisConfig struct {
	Enabled    bool   `toml:"enabled"`
	Addr       string `toml:"addr"`
	Password   string `toml:"password"`
	DB         int    `toml:"db"`
	PoolSize   int    `toml:"pool_size"`
	MaxRetries int    `toml:"max_retries"`
	TLSEnabled bool   `toml:"tls_enabled"`
}

// ServerConfig holds HTTP server parameters.
type ServerConfig struct {
	Enabled     bool     `toml:"enabled"`
	Port        int      `toml:"port"`
	CORSOrigins []string `toml:"cors_origins"`
	APIKey      string   `toml:"api_key"`

	// RateLimit requests per window per client IP. Zero disables limiting.
	RateLimit       int      `toml:"rate_limit"`
	RateLimitWindow duration `toml:"rate_limit_window"`
}

// NotifyConfig holds notification channel credentials.
type NotifyConfig struct {
	TelegramToken     string   `toml:"telegram_token"`
	TelegramChatID    string   `toml:"telegram_chat_id"`
	DiscordWebhookURL string   `toml:"discord_webhook_url"`
	Events            []string `toml:"events"`
}

// duration is a wrapper around time.Duration that supports TOML string decoding
// (e.g. "5m", "30s").
type duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler so the TOML decoder can
// parse duration strings like "5m" or "30s".
func (d *duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

// MarshalText implements encoding.TextMarshaler for round-trip encoding.
func (d duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Defaults returns a Config populated with reasonable default values.
// These match the values in config.example.toml.
func Defaults() Config {
	return Config{
		Agent: AgentConfig{
			AgentID:          "agent-1",
			RiskTolerance:    5,
			TargetROI:        0.10,
			MaxDrawdown:      0.20,
			Strategies:       []string{"yield"},
			Engine:           "rules",
			Tokens:           []string{"ETH", "BTC"},
			DecisionInterval: duration{5 * time.Minute},
			RiskInterval:     duration{time.Minute},
		},
		Chain: ChainConfig{
			RPCURL:  "http://localhost:8545",
			ChainID: 31337,
			UseMock: true,
		},
		LLM: LLMConfig{
			BaseURL: "https://api.openai.com/v1",
			Model:   "gpt-4o-mini",
			Timeout: duration{45 * time.Second},
		},
		Market: MarketConfig{
			Source:   "simulator",
			PriceTTL: duration{time.Minute},
		},
		Postgres: PostgresConfig{
			Enabled:       false,
			Host:          "localhost",
			Port:          5432,
			Database:      "agentd",
			User:          "postgres",
			SSLMode:       "disable",
			PoolMaxConns:  10,
			PoolMinConns:  2,
			RunMigrations: true,
		},
		Redis: RedisConfig{
			Enabled:    false,
			Addr:       "localhost:6379",
			DB:         0,
			PoolSize:   20,
			MaxRetries: 3,
			TLSEnabled: false,
		},
		Server: ServerConfig{
			Enabled:         true,
			Port:            8000,
			CORSOrigins:     []string{"http://localhost:3000", "http://localhost:5173"},
			RateLimit:       0,
			RateLimitWindow: duration{time.Minute},
		},
		Notify: NotifyConfig{
			Events: []string{"risk_warning", "decision_executed", "loop_error"},
		},
		Mode:     "full",
		LogLevel: "info",
	}
}

// validModes enumerates the accepted values for Config.Mode.
var validModes = map[string]bool{
	"agent":   true,
	"monitor": true,
	"server":  true,
	"full":    true,
}

// validLogLevels enumerates the accepted values for Config.LogLevel.
var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// validEngines enumerates the accepted values for AgentConfig.Engine.
var validEngines = map[string]bool{
	"rules": true,
	"llm":   true,
}

// validSources enumerates the accepted values for MarketConfig.Source.
var validSources = map[string]bool{
	"simulator": true,
	"live":      true,
}

// Validate checks Config for obviously invalid or missing values and returns a
// combined error describing every problem found.
func (c *Config) Validate() error {
	var errs []string

	// Mode
	if !validModes[strings.ToLower(c.Mode)] {
		errs = append(errs, fmt.Sprintf("unknown mode %q (valid: agent, monitor, server, full)", c.Mode))
	}

	// LogLevel
	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Sprintf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel))
	}

	// Agent
	if strings.TrimSpace(c.Agent.AgentID) == "" {
		errs = append(errs, "agent: agent_id must not be empty")
	}
	if c.Agent.RiskTolerance < 1 || c.Agent.RiskTolerance > 10 {
		errs = append(errs, fmt.Sprintf("agent: risk_tolerance must be 1-10, got %d", c.Agent.RiskTolerance))
	}
	if !validEngines[strings.ToLower(c.Agent.Engine)] {
		errs = append(errs, fmt.Sprintf("agent: unknown engine %q (valid: rules, llm)", c.Agent.Engine))
	}
	if c.Agent.DecisionInterval.Duration < 0 || c.Agent.RiskInterval.Duration < 0 {
		errs = append(errs, "agent: intervals must not be negative")
	}

	// Risk thresholds, when set, must be positive and ordered sensibly.
	if c.Risk.MinCollateralRatio < 0 {
		errs = append(errs, "risk: min_collateral_ratio must not be negative")
	}
	if c.Risk.MaxUtilization < 0 || c.Risk.MaxUtilization > 1 {
		errs = append(errs, "risk: max_utilization must be in [0, 1]")
	}
	if c.Risk.MaxConcentration < 0 || c.Risk.MaxConcentration > 1 {
		errs = append(errs, "risk: max_concentration must be in [0, 1]")
	}

	// Wallet is required whenever the decision loop runs and can execute.
	needsWallet := (c.Mode == "agent" || c.Mode == "full") && !c.Chain.UseMock
	if needsWallet {
		if c.Wallet.PrivateKey == "" && c.Wallet.EncryptedKeyPath == "" {
			errs = append(errs, "wallet: either private_key or encrypted_key_path must be set for mode "+c.Mode)
		}
		if c.Wallet.EncryptedKeyPath != "" && c.Wallet.KeyPassword == "" {
			errs = append(errs, "wallet: key_password is required when encrypted_key_path is set")
		}
	}

	// Chain
	if !c.Chain.UseMock {
		if c.Chain.RPCURL == "" {
			errs = append(errs, "chain: rpc_url must not be empty")
		}
		if c.Chain.VaultAddress == "" {
			errs = append(errs, "chain: vault_address must not be empty")
		}
		if c.Chain.ChainID <= 0 {
			errs = append(errs, "chain: chain_id must be positive")
		}
	}

	// LLM settings are needed only when the llm engine is selected.
	if strings.ToLower(c.Agent.Engine) == "llm" {
		if c.LLM.BaseURL == "" {
			errs = append(errs, "llm: base_url must not be empty")
		}
		if c.LLM.Model == "" {
			errs = append(errs, "llm: model must not be empty")
		}
	}

	// Market
	if !validSources[strings.ToLower(c.Market.Source)] {
		errs = append(errs, fmt.Sprintf("market: unknown source %q (valid: simulator, live)", c.Market.Source))
	}
	for i, v := range c.Market.Venues {
		if v.Name == "" || v.Asset == "" {
			errs = append(errs, fmt.Sprintf("market: venue %d must set name and asset", i))
		}
	}

	// Postgres
	if c.Postgres.Enabled {
		if strings.TrimSpace(c.Postgres.DSN) == "" {
			if c.Postgres.Host == "" {
				errs = append(errs, "postgres: host must not be empty (or set postgres.dsn)")
			}
			if c.Postgres.Port <= 0 || c.Postgres.Port > 65535 {
				errs = append(errs, fmt.Sprintf("postgres: port must be 1-65535, got %d", c.Postgres.Port))
			}
			if c.Postgres.Database == "" {
				errs = append(errs, "postgres: database must not be empty")
			}
		}
		if c.Postgres.PoolMaxConns < 1 {
			errs = append(errs, "postgres: pool_max_conns must be >= 1")
		}
		if c.Postgres.PoolMinConns < 0 {
			errs = append(errs, "postgres: pool_min_conns must be >= 0")
		}
		if c.Postgres.PoolMinConns > c.Postgres.PoolMaxConns {
			errs = append(errs, "postgres: pool_min_conns must not exceed pool_max_conns")
		}
	}

	// Redis
	if c.Redis.Enabled {
		if c.Redis.Addr == "" {
			errs = append(errs, "redis: addr must not be empty")
		}
		if c.Redis.PoolSize < 1 {
			errs = append(errs, "redis: pool_size must be >= 1")
		}
	}

	// Server
	if c.Server.Enabled {
		if c.Server.Port <= 0 || c.Server.Port > 65535 {
			errs = append(errs, fmt.Sprintf("server: port must be 1-65535, got %d", c.Server.Port))
		}
		if c.Server.RateLimit > 0 && !c.Redis.Enabled {
			errs = append(errs, "server: rate_limit requires redis to be enabled")
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}
