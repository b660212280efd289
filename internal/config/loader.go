package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Load reads a TOML configuration file at path, merges it on top of the
// built-in defaults, applies AGENTD_* environment variable overrides, and
// returns the final Config. The returned Config has NOT been validated; the
// caller should invoke Config.Validate() after Load.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return nil, err
	}

	// Load .env file if present (silently ignore if missing).
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

// applyEnvOverrides reads well-known AGENTD_* environment variables and
// overwrites the corresponding Config fields when a variable is set (i.e. not
// empty). This lets operators inject secrets at deploy time without touching
// the TOML file.
func applyEnvOverrides(cfg *Config) {
	// ── Agent ──
	setStr(&cfg.Agent.AgentID, "AGENTD_AGENT_ID")
	setInt(&cfg.Agent.RiskTolerance, "AGENTD_AGENT_RISK_TOLERANCE")
	setFloat64(&cfg.Agent.TargetROI, "AGENTD_AGENT_TARGET_ROI")
	setFloat64(&cfg.Agent.MaxDrawdown, "AGENTD_AGENT_MAX_DRAWDOWN")
	setStringSlice(&cfg.Agent.Strategies, "AGENTD_AGENT_STRATEGIES")
	setStr(&cfg.Agent.Engine, "AGENTD_AGENT_ENGINE")
	setStringSlice(&cfg.Agent.Tokens, "AGENTD_AGENT_TOKENS")
	setDuration(&cfg.Agent.DecisionInterval, "AGENTD_AGENT_DECISION_INTERVAL")
	setDuration(&cfg.Agent.RiskInterval, "AGENTD_AGENT_RISK_INTERVAL")

	// ── Risk ──
	setFloat64(&cfg.Risk.MinCollateralRatio, "AGENTD_RISK_MIN_COLLATERAL_RATIO")
	setFloat64(&cfg.Risk.MaxUtilization, "AGENTD_RISK_MAX_UTILIZATION")
	setFloat64(&cfg.Risk.MaxConcentration, "AGENTD_RISK_MAX_CONCENTRATION")

	// ── Wallet ──
	setStr(&cfg.Wallet.PrivateKey, "AGENTD_WALLET_PRIVATE_KEY")
	setStr(&cfg.Wallet.EncryptedKeyPath, "AGENTD_WALLET_ENCRYPTED_KEY_PATH")
	setStr(&cfg.Wallet.KeyPassword, "AGENTD_WALLET_KEY_PASSWORD")

	// ── Chain ──
	setStr(&cfg.Chain.RPCURL, "AGENTD_CHAIN_RPC_URL")
	setStr(&cfg.Chain.VaultAddress, "AGENTD_CHAIN_VAULT_ADDRESS")
	setInt64(&cfg.Chain.ChainID, "AGENTD_CHAIN_CHAIN_ID")
	setBool(&cfg.Chain.UseMock, "AGENTD_CHAIN_USE_MOCK")

	// ── LLM ──
	setStr(&cfg.LLM.BaseURL, "AGENTD_LLM_BASE_URL")
	setStr(&cfg.LLM.APIKey, "AGENTD_LLM_API_KEY")
	setStr(&cfg.LLM.Model, "AGENTD_LLM_MODEL")
	setDuration(&cfg.LLM.Timeout, "AGENTD_LLM_TIMEOUT")

	// ── Market ──
	setStr(&cfg.Market.Source, "AGENTD_MARKET_SOURCE")
	setStr(&cfg.Market.CoinGeckoBaseURL, "AGENTD_MARKET_COINGECKO_BASE_URL")
	setStr(&cfg.Market.CoinGeckoAPIKey, "AGENTD_MARKET_COINGECKO_API_KEY")
	setDuration(&cfg.Market.PriceTTL, "AGENTD_MARKET_PRICE_TTL")
	setStringSlice(&cfg.Market.Symbols, "AGENTD_MARKET_SYMBOLS")

	// ── Postgres ──
	setBool(&cfg.Postgres.Enabled, "AGENTD_POSTGRES_ENABLED")
	setStr(&cfg.Postgres.DSN, "AGENTD_POSTGRES_DSN")
	setStr(&cfg.Postgres.Host, "AGENTD_POSTGRES_HOST")
	setInt(&cfg.Postgres.Port, "AGENTD_POSTGRES_PORT")
	setStr(&cfg.Postgres.Database, "AGENTD_POSTGRES_DATABASE")
	setStr(&cfg.Postgres.User, "AGENTD_POSTGRES_USER")
	setStr(&cfg.Postgres.Password, "AGENTD_POSTGRES_PASSWORD")
	setStr(&cfg.Postgres.SSLMode, "AGENTD_POSTGRES_SSL_MODE")
	setInt(&cfg.Postgres.PoolMaxConns, "AGENTD_POSTGRES_POOL_MAX_CONNS")
	setInt(&cfg.Postgres.PoolMinConns, "AGENTD_POSTGRES_POOL_MIN_CONNS")
	setBool(&cfg.Postgres.RunMigrations, "AGENTD_POSTGRES_RUN_MIGRATIONS")

	// ── Redis ──
	setBool(&cfg.Redis.Enabled, "AGENTD_REDIS_ENABLED")
	setStr(&cfg.Redis.Addr, "AGENTD_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "AGENTD_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "AGENTD_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "AGENTD_REDIS_POOL_SIZE")
	setInt(&cfg.Redis.MaxRetries, "AGENTD_REDIS_MAX_RETRIES")
	setBool(&cfg.Redis.TLSEnabled, "AGENTD_REDIS_TLS_ENABLED")

	// ── Server ──
	setBool(&cfg.Server.Enabled, "AGENTD_SERVER_ENABLED")
	setInt(&cfg.Server.Port, "AGENTD_SERVER_PORT")
	setStringSlice(&cfg.Server.CORSOrigins, "AGENTD_SERVER_CORS_ORIGINS")
	setStr(&cfg.Server.APIKey, "AGENTD_SERVER_API_KEY")
	setInt(&cfg.Server.RateLimit, "AGENTD_SERVER_RATE_LIMIT")
	setDuration(&cfg.Server.RateLimitWindow, "AGENTD_SERVER_RATE_LIMIT_WINDOW")

	// ── Notify ──
	setStr(&cfg.Notify.TelegramToken, "AGENTD_NOTIFY_TELEGRAM_TOKEN")
	setStr(&cfg.Notify.TelegramChatID, "AGENTD_NOTIFY_TELEGRAM_CHAT_ID")
	setStr(&cfg.Notify.DiscordWebhookURL, "AGENTD_NOTIFY_DISCORD_WEBHOOK_URL")
	setStringSlice(&cfg.Notify.Events, "AGENTD_NOTIFY_EVENTS")

	// ── Top-level ──
	setStr(&cfg.Mode, "AGENTD_MODE")
	setStr(&cfg.LogLevel, "AGENTD_LOG_LEVEL")
}

// ---------------------------------------------------------------------------
// Typed env-var helpers. Each only mutates the target when the environment
// variable is present and non-empty.
// ---------------------------------------------------------------------------

func setStr(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setInt64(dst *int64, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			*dst = n
		}
	}
}

func setFloat64(dst *float64, key string) {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			dst.Duration = d
		}
	}
}

func setStringSlice(dst *[]string, key string) {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		cleaned := make([]string, 0, len(parts))
		for _, p := range parts {
			p = strings.TrimSpace(p)
			if p != "" {
				cleaned = append(cleaned, p)
			}
		}
		if len(cleaned) > 0 {
			*dst = cleaned
		}
	}
}
