package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/agentfi/agentd/internal/domain"
)

// Cache TTLs for the latest-value keys the frontend polls.
const (
	decisionTTL = time.Hour
	snapshotTTL = 5 * time.Minute
)

// DecisionCache implements domain.DecisionCache. The latest decision per
// agent lives at "agentd:agent:{id}:decision:latest" as JSON with a 1h TTL.
type DecisionCache struct {
	rdb *redis.Client
}

// NewDecisionCache creates a DecisionCache backed by the given Client.
func NewDecisionCache(c *Client) *DecisionCache {
	return &DecisionCache{rdb: c.Underlying()}
}

var _ domain.DecisionCache = (*DecisionCache)(nil)

func decisionKey(agentID string) string {
	return "agentd:agent:" + agentID + ":decision:latest"
}

// SetLatest stores the agent's most recent decision.
func (dc *DecisionCache) SetLatest(ctx context.Context, d domain.Decision) error {
	payload, err := json.Marshal(d)
	if err != nil {
		return fmt.Errorf("redis: encode decision: %w", err)
	}
	if err := dc.rdb.Set(ctx, decisionKey(d.AgentID), payload, decisionTTL).Err(); err != nil {
		return fmt.Errorf("redis: set decision %s: %w", d.AgentID, err)
	}
	return nil
}

// GetLatest returns the agent's most recent decision, or domain.ErrNotFound
// when none is cached.
func (dc *DecisionCache) GetLatest(ctx context.Context, agentID string) (domain.Decision, error) {
	raw, err := dc.rdb.Get(ctx, decisionKey(agentID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return domain.Decision{}, domain.ErrNotFound
		}
		return domain.Decision{}, fmt.Errorf("redis: get decision %s: %w", agentID, err)
	}
	var d domain.Decision
	if err := json.Unmarshal(raw, &d); err != nil {
		return domain.Decision{}, fmt.Errorf("redis: decode decision %s: %w", agentID, err)
	}
	return d, nil
}

// SnapshotCache implements domain.SnapshotCache. The most recent market
// snapshot lives at "agentd:market:latest" with a 5m TTL.
type SnapshotCache struct {
	rdb *redis.Client
}

// NewSnapshotCache creates a SnapshotCache backed by the given Client.
func NewSnapshotCache(c *Client) *SnapshotCache {
	return &SnapshotCache{rdb: c.Underlying()}
}

var _ domain.SnapshotCache = (*SnapshotCache)(nil)

const snapshotKey = "agentd:market:latest"

// Set stores the latest snapshot.
func (sc *SnapshotCache) Set(ctx context.Context, snap domain.MarketSnapshot) error {
	payload, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("redis: encode snapshot: %w", err)
	}
	if err := sc.rdb.Set(ctx, snapshotKey, payload, snapshotTTL).Err(); err != nil {
		return fmt.Errorf("redis: set snapshot: %w", err)
	}
	return nil
}

// Get returns the latest snapshot, or domain.ErrNotFound when absent.
func (sc *SnapshotCache) Get(ctx context.Context) (domain.MarketSnapshot, error) {
	raw, err := sc.rdb.Get(ctx, snapshotKey).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return domain.MarketSnapshot{}, domain.ErrNotFound
		}
		return domain.MarketSnapshot{}, fmt.Errorf("redis: get snapshot: %w", err)
	}
	var snap domain.MarketSnapshot
	if err := json.Unmarshal(raw, &snap); err != nil {
		return domain.MarketSnapshot{}, fmt.Errorf("redis: decode snapshot: %w", err)
	}
	return snap, nil
}
