package domain

import (
	"context"
	"time"
)

// PriceCache provides fast shared access to the latest prices.
type PriceCache interface {
	SetPrice(ctx context.Context, symbol string, price float64, ts time.Time) error
	GetPrice(ctx context.Context, symbol string) (float64, time.Time, error)
	GetPrices(ctx context.Context, symbols []string) (map[string]float64, error)
}

// DecisionCache holds the latest decision per agent for quick frontend reads.
type DecisionCache interface {
	SetLatest(ctx context.Context, d Decision) error
	GetLatest(ctx context.Context, agentID string) (Decision, error)
}

// SnapshotCache holds the most recent market snapshot.
type SnapshotCache interface {
	Set(ctx context.Context, snap MarketSnapshot) error
	Get(ctx context.Context) (MarketSnapshot, error)
}

// SignalBus fans events (decisions, risk reports, price updates) out to
// subscribers such as the websocket hub.
type SignalBus interface {
	Publish(ctx context.Context, channel string, payload []byte) error
	Subscribe(ctx context.Context, channel string) (<-chan []byte, error)
}

// RateLimiter provides distributed rate limiting for the HTTP surface.
type RateLimiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
	Wait(ctx context.Context, key string) error
}

// LockManager provides distributed locking, used to keep a single live
// orchestrator per agent.
type LockManager interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (unlock func(), err error)
}

// Bus channels.
const (
	ChannelDecisions = "agentd:decisions"
	ChannelRisk      = "agentd:risk"
	ChannelPrices    = "agentd:prices"
)
