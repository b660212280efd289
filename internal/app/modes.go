package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/agentfi/agentd/internal/domain"
	"github.com/agentfi/agentd/internal/orchestrator"
	"github.com/agentfi/agentd/internal/server"
	"github.com/agentfi/agentd/internal/server/handler"
	"github.com/agentfi/agentd/internal/server/ws"
)

// leaderLockTTL bounds how long a crashed process keeps other replicas out.
const leaderLockTTL = 2 * time.Minute

// AgentMode runs the decision and risk loops without the HTTP surface.
func (a *App) AgentMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting agent mode")

	unlock, err := a.acquireLeaderLock(ctx, deps)
	if err != nil {
		return err
	}
	defer unlock()

	orch, err := a.buildOrchestrator(deps)
	if err != nil {
		return fmt.Errorf("agent mode: %w", err)
	}
	return orch.Run(ctx)
}

// MonitorMode runs the risk loop only, plus the HTTP server when enabled.
// Nothing is ever executed on the ledger.
func (a *App) MonitorMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting monitor mode")

	orch, err := a.buildOrchestrator(deps)
	if err != nil {
		return fmt.Errorf("monitor mode: %w", err)
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return orch.RunMonitor(ctx) })
	if a.cfg.Server.Enabled {
		a.startHTTPServer(ctx, g, deps)
	}
	return g.Wait()
}

// ServerMode serves the HTTP + WebSocket API over whatever stores and caches
// are wired, without running any loops. Useful as a read replica next to a
// separate agent process.
func (a *App) ServerMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting server mode")

	if !a.cfg.Server.Enabled {
		return errors.New("server mode requires server.enabled = true")
	}

	g, ctx := errgroup.WithContext(ctx)
	a.startHTTPServer(ctx, g, deps)
	return g.Wait()
}

// FullMode runs both loops and the HTTP server in one process.
func (a *App) FullMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting full mode")

	unlock, err := a.acquireLeaderLock(ctx, deps)
	if err != nil {
		return err
	}
	defer unlock()

	orch, err := a.buildOrchestrator(deps)
	if err != nil {
		return fmt.Errorf("full mode: %w", err)
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return orch.Run(ctx) })
	if a.cfg.Server.Enabled {
		a.startHTTPServer(ctx, g, deps)
	}
	return g.Wait()
}

// acquireLeaderLock takes the per-agent distributed lock when Redis is wired,
// so at most one replica drives the ledger. Without Redis it is a no-op.
func (a *App) acquireLeaderLock(ctx context.Context, deps *Dependencies) (func(), error) {
	if deps.LockManager == nil {
		return func() {}, nil
	}
	unlock, err := deps.LockManager.Acquire(ctx, "agent:"+a.cfg.Agent.AgentID, leaderLockTTL)
	if err != nil {
		if errors.Is(err, domain.ErrLockHeld) {
			return nil, fmt.Errorf("app: another replica is already driving agent %s: %w", a.cfg.Agent.AgentID, err)
		}
		return nil, fmt.Errorf("app: leader lock: %w", err)
	}
	a.logger.InfoContext(ctx, "leader lock acquired", slog.String("agent_id", a.cfg.Agent.AgentID))
	return unlock, nil
}

func (a *App) buildOrchestrator(deps *Dependencies) (*orchestrator.Orchestrator, error) {
	return orchestrator.New(
		orchestrator.Config{
			AgentID:          a.cfg.Agent.AgentID,
			DecisionInterval: a.cfg.Agent.DecisionInterval.Duration,
			RiskInterval:     a.cfg.Agent.RiskInterval.Duration,
		},
		deps.Reader,
		deps.MarketSource,
		deps.Engine,
		deps.Assessor,
		deps.Executor,
		orchestrator.Collaborators{
			DecisionStore: deps.DecisionStore,
			RiskStore:     deps.RiskStore,
			StateStore:    deps.StateStore,
			DecisionCache: deps.DecisionCache,
			Bus:           deps.SignalBus,
			Notifier:      deps.Notifier,
		},
		a.logger,
	)
}

// startHTTPServer adds the HTTP server (and, when Redis is wired, the
// WebSocket hub) to the given errgroup. The server is shut down gracefully
// when the context is cancelled.
func (a *App) startHTTPServer(ctx context.Context, g *errgroup.Group, deps *Dependencies) {
	agentID := a.cfg.Agent.AgentID

	handlers := server.Handlers{
		Health: handler.NewHealthHandler(a.logger),
		Prices: handler.NewPriceHandler(deps.PriceService, a.logger),
	}
	if deps.DecisionStore != nil || deps.DecisionCache != nil {
		handlers.Decisions = handler.NewDecisionHandler(agentID, deps.DecisionStore, deps.DecisionCache, a.logger)
	}
	if deps.RiskStore != nil {
		handlers.Risk = handler.NewRiskHandler(agentID, deps.RiskStore, a.logger)
	}
	if deps.StateStore != nil {
		handlers.State = handler.NewStateHandler(agentID, deps.StateStore, a.logger)
	}

	// WebSocket hub requires the Redis signal bus.
	var hub *ws.Hub
	if deps.SignalBus != nil {
		hub = ws.NewHub(deps.SignalBus, a.logger, ws.Config{
			AgentID:    agentID,
			Mode:       a.cfg.Mode,
			EngineName: deps.Engine.Name(),
			StartedAt:  time.Now().UTC(),
		})
		g.Go(func() error {
			err := hub.Run(ctx)
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		})
	}

	srv := server.NewServer(server.Config{
		Port:            a.cfg.Server.Port,
		CORSOrigins:     a.cfg.Server.CORSOrigins,
		APIKey:          a.cfg.Server.APIKey,
		RateLimit:       a.cfg.Server.RateLimit,
		RateLimitWindow: a.cfg.Server.RateLimitWindow.Duration,
	}, handlers, hub, deps.RateLimiter, a.logger)

	g.Go(func() error {
		return srv.Start()
	})

	g.Go(func() error {
		<-ctx.Done()
		shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutCtx)
	})
}
