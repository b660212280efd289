package app

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/agentfi/agentd/internal/cache/redis"
	"github.com/agentfi/agentd/internal/chain"
	"github.com/agentfi/agentd/internal/config"
	"github.com/agentfi/agentd/internal/crypto"
	"github.com/agentfi/agentd/internal/domain"
	"github.com/agentfi/agentd/internal/engine"
	"github.com/agentfi/agentd/internal/llm"
	"github.com/agentfi/agentd/internal/market"
	"github.com/agentfi/agentd/internal/notify"
	"github.com/agentfi/agentd/internal/opportunity"
	"github.com/agentfi/agentd/internal/price"
	"github.com/agentfi/agentd/internal/risk"
	"github.com/agentfi/agentd/internal/store/postgres"
)

// Dependencies bundles every domain-level dependency that the application
// modes need to operate. It is constructed by Wire and torn down by the
// returned cleanup function.
type Dependencies struct {
	// Ledger access.
	Reader   chain.StateReader
	Executor chain.Executor
	Signer   *crypto.Signer // nil when the mock ledger is active

	// Decision machinery.
	Assessor *risk.Assessor
	Finder   *opportunity.Finder
	Engine   engine.DecisionEngine

	// Market data.
	PriceService *price.Service
	MarketSource market.Source

	// Stores (nil unless Postgres is enabled).
	DecisionStore domain.DecisionStore
	RiskStore     domain.RiskReportStore
	StateStore    domain.AgentStateStore

	// Caches (nil unless Redis is enabled).
	PriceCache    domain.PriceCache
	DecisionCache domain.DecisionCache
	SnapshotCache domain.SnapshotCache
	RateLimiter   domain.RateLimiter
	LockManager   domain.LockManager
	SignalBus     domain.SignalBus

	// Notifications.
	Notifier *notify.Notifier
}

// Wire constructs all concrete dependency implementations from the given
// configuration and returns them together with a cleanup function that should
// be called on shutdown to release resources.
func Wire(ctx context.Context, cfg *config.Config) (*Dependencies, func(), error) {
	logger := slog.Default()

	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	deps := &Dependencies{}

	// --- PostgreSQL ---
	if cfg.Postgres.Enabled {
		pgClient, err := postgres.New(ctx, postgres.ClientConfig{
			DSN:      cfg.Postgres.DSN,
			Host:     cfg.Postgres.Host,
			Port:     cfg.Postgres.Port,
			Database: cfg.Postgres.Database,
			User:     cfg.Postgres.User,
			Password: cfg.Postgres.Password,
			SSLMode:  cfg.Postgres.SSLMode,
			MaxConns: cfg.Postgres.PoolMaxConns,
			MinConns: cfg.Postgres.PoolMinConns,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: postgres: %w", err)
		}
		closers = append(closers, pgClient.Close)

		if cfg.Postgres.RunMigrations {
			if err := pgClient.RunMigrations(ctx); err != nil {
				cleanup()
				return nil, nil, fmt.Errorf("wire: postgres migrations: %w", err)
			}
		}

		pool := pgClient.Pool()
		deps.DecisionStore = postgres.NewDecisionStore(pool)
		deps.RiskStore = postgres.NewRiskReportStore(pool)
		deps.StateStore = postgres.NewAgentStateStore(pool)
	}

	// --- Redis ---
	if cfg.Redis.Enabled {
		redisClient, err := redis.New(ctx, redis.ClientConfig{
			Addr:       cfg.Redis.Addr,
			Password:   cfg.Redis.Password,
			DB:         cfg.Redis.DB,
			PoolSize:   cfg.Redis.PoolSize,
			MaxRetries: cfg.Redis.MaxRetries,
			TLSEnabled: cfg.Redis.TLSEnabled,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: redis: %w", err)
		}
		closers = append(closers, func() { _ = redisClient.Close() })

		deps.PriceCache = redis.NewPriceCache(redisClient)
		deps.DecisionCache = redis.NewDecisionCache(redisClient)
		deps.SnapshotCache = redis.NewSnapshotCache(redisClient)
		deps.RateLimiter = redis.NewRateLimiter(redisClient)
		deps.LockManager = redis.NewLockManager(redisClient)
		deps.SignalBus = redis.NewSignalBus(redisClient)
	}

	// --- Price service ---
	deps.PriceService = price.NewService(price.Options{
		BaseURL: cfg.Market.CoinGeckoBaseURL,
		APIKey:  cfg.Market.CoinGeckoAPIKey,
		TTL:     cfg.Market.PriceTTL.Duration,
		Shared:  deps.PriceCache,
	}, logger)

	// --- Market source ---
	switch strings.ToLower(cfg.Market.Source) {
	case "live":
		venues := make([]market.Venue, 0, len(cfg.Market.Venues))
		for _, v := range cfg.Market.Venues {
			venues = append(venues, market.Venue{
				Name:       v.Name,
				Asset:      v.Asset,
				APY:        v.APY,
				Volatility: v.Volatility,
				TVL:        v.TVL,
			})
		}
		deps.MarketSource = market.NewLiveSource(market.LiveConfig{
			Symbols: cfg.Market.Symbols,
			Venues:  venues,
		}, deps.PriceService, deps.SnapshotCache, logger)
	default:
		deps.MarketSource = market.NewSimulator(nil, nil, nil)
	}

	// --- Ledger reader/executor ---
	agentCfg := domain.AgentConfig{
		AgentID:       cfg.Agent.AgentID,
		RiskTolerance: cfg.Agent.RiskTolerance,
		TargetROI:     cfg.Agent.TargetROI,
		MaxDrawdown:   cfg.Agent.MaxDrawdown,
		Strategies:    cfg.Agent.Strategies,
	}
	if cfg.Chain.UseMock {
		ledger := chain.NewMockLedger(chain.DefaultMockState(agentCfg))
		deps.Reader = ledger
		deps.Executor = ledger
	} else {
		key, err := crypto.LoadKey(crypto.KeyConfig{
			RawPrivateKey:    cfg.Wallet.PrivateKey,
			EncryptedKeyPath: cfg.Wallet.EncryptedKeyPath,
			KeyPassword:      cfg.Wallet.KeyPassword,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: wallet key: %w", err)
		}
		signer, err := crypto.NewSigner(key, cfg.Chain.ChainID)
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: signer: %w", err)
		}
		deps.Signer = signer

		reader, err := chain.NewRPCReader(ctx, cfg.Chain.RPCURL, cfg.Chain.VaultAddress, agentCfg, logger)
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: chain reader: %w", err)
		}
		closers = append(closers, func() { _ = reader.Close() })
		deps.Reader = reader

		executor, err := chain.NewRPCExecutor(reader.Client(), cfg.Chain.VaultAddress, signer, logger)
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: chain executor: %w", err)
		}
		deps.Executor = executor
	}

	// --- Decision machinery ---
	deps.Assessor = risk.NewAssessor(&risk.Options{
		MinCollateralRatio: cfg.Risk.MinCollateralRatio,
		MaxUtilization:     cfg.Risk.MaxUtilization,
		MaxConcentration:   cfg.Risk.MaxConcentration,
	})
	deps.Finder = opportunity.NewFinder()

	selector := engine.OpportunitySelector{Allowed: cfg.Agent.Tokens}
	switch strings.ToLower(cfg.Agent.Engine) {
	case "llm":
		client, err := llm.New(llm.Config{
			BaseURL: cfg.LLM.BaseURL,
			APIKey:  cfg.LLM.APIKey,
			Model:   cfg.LLM.Model,
			Timeout: cfg.LLM.Timeout.Duration,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: llm client: %w", err)
		}
		deps.Engine = engine.NewLLMEngine(client, deps.Assessor, deps.Finder)
	default:
		deps.Engine = engine.NewRulesEngine(deps.Assessor, deps.Finder, selector)
	}

	// --- Notifications ---
	var senders []notify.Sender
	if cfg.Notify.TelegramToken != "" && cfg.Notify.TelegramChatID != "" {
		senders = append(senders, notify.NewTelegramSender(
			cfg.Notify.TelegramToken,
			cfg.Notify.TelegramChatID,
		))
	}
	if cfg.Notify.DiscordWebhookURL != "" {
		senders = append(senders, notify.NewDiscordSender(cfg.Notify.DiscordWebhookURL))
	}
	deps.Notifier = notify.NewNotifier(senders, cfg.Notify.Events, logger)

	return deps, cleanup, nil
}
