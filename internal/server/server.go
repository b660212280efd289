package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/agentfi/agentd/internal/domain"
	"github.com/agentfi/agentd/internal/server/handler"
	"github.com/agentfi/agentd/internal/server/middleware"
	"github.com/agentfi/agentd/internal/server/ws"
)

// Config holds the HTTP server configuration.
type Config struct {
	Port        int
	CORSOrigins []string
	APIKey      string // if empty, authentication is disabled

	// RateLimit enables per-client request limiting when a limiter is
	// available. Zero disables it.
	RateLimit       int
	RateLimitWindow time.Duration
}

// Handlers aggregates all HTTP handlers that the server needs to register.
// Nil handlers simply leave their routes unregistered.
type Handlers struct {
	Health    *handler.HealthHandler
	Prices    *handler.PriceHandler
	Decisions *handler.DecisionHandler
	Risk      *handler.RiskHandler
	State     *handler.StateHandler
}

// Server is the headless HTTP + WebSocket API server for the agent daemon.
type Server struct {
	httpServer *http.Server
	mux        *http.ServeMux
	logger     *slog.Logger
}

// NewServer creates a new Server with all routes registered on the ServeMux.
// It wires up middleware (logging, CORS, auth, rate limiting) and attaches
// the WebSocket hub. limiter may be nil.
func NewServer(cfg Config, handlers Handlers, wsHub *ws.Hub, limiter domain.RateLimiter, logger *slog.Logger) *Server {
	mux := http.NewServeMux()

	// Health check (no auth required; see middleware.Auth skip list).
	mux.HandleFunc("GET /api/health", handlers.Health.HealthCheck)

	// Price endpoints.
	if handlers.Prices != nil {
		mux.HandleFunc("GET /api/prices/current", handlers.Prices.Current)
		mux.HandleFunc("GET /api/prices/history", handlers.Prices.History)
		mux.HandleFunc("GET /api/prices/cache", handlers.Prices.CacheInfo)
		mux.HandleFunc("DELETE /api/prices/cache", handlers.Prices.ClearCache)
	}

	// Decision log endpoints.
	if handlers.Decisions != nil {
		mux.HandleFunc("GET /api/decisions/recent", handlers.Decisions.ListRecent)
		mux.HandleFunc("GET /api/decisions/latest", handlers.Decisions.Latest)
	}

	// Risk report endpoints.
	if handlers.Risk != nil {
		mux.HandleFunc("GET /api/risk/latest", handlers.Risk.Latest)
		mux.HandleFunc("GET /api/risk/recent", handlers.Risk.ListRecent)
	}

	// Vault state snapshot.
	if handlers.State != nil {
		mux.HandleFunc("GET /api/state/latest", handlers.State.Latest)
	}

	// WebSocket endpoint.
	if wsHub != nil {
		mux.HandleFunc("GET /ws", wsHub.HandleWS)
	}

	// Everything else gets an enveloped 404 instead of the mux default.
	mux.HandleFunc("/", handler.NotFound)

	// Build the middleware chain.
	var h http.Handler = mux

	// Innermost, so the logging middleware still records the 500.
	h = middleware.Recover(logger)(h)

	if limiter != nil && cfg.RateLimit > 0 {
		h = middleware.RateLimit(limiter, cfg.RateLimit, cfg.RateLimitWindow)(h)
	}

	// Apply auth middleware (skips if APIKey is empty).
	h = middleware.Auth(cfg.APIKey)(h)

	// Apply request logging middleware.
	h = middleware.Logging(logger)(h)

	// Apply CORS middleware.
	h = middleware.CORS(cfg.CORSOrigins)(h)

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      h,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return &Server{
		httpServer: srv,
		mux:        mux,
		logger:     logger,
	}
}

// Start begins listening for HTTP requests. It blocks until the server
// encounters an error or is shut down.
func (s *Server) Start() error {
	s.logger.Info("server: starting",
		slog.String("addr", s.httpServer.Addr),
	)
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server: listen: %w", err)
	}
	return nil
}

// Shutdown gracefully shuts down the server, waiting for in-flight requests
// to complete within the given context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("server: shutting down")
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("server: shutdown: %w", err)
	}
	return nil
}
