package domain

import (
	"context"
	"time"
)

// ListOpts provides pagination and filtering for list queries.
type ListOpts struct {
	Limit  int
	Offset int
	Since  *time.Time
	Until  *time.Time
}

// DecisionStore persists the decision log.
type DecisionStore interface {
	Insert(ctx context.Context, d Decision, receipt *Receipt) error
	ListRecent(ctx context.Context, agentID string, opts ListOpts) ([]Decision, error)
}

// RiskReportStore persists risk reports for later inspection.
type RiskReportStore interface {
	Insert(ctx context.Context, r RiskReport) error
	Latest(ctx context.Context, agentID string) (RiskReport, error)
	ListRecent(ctx context.Context, agentID string, opts ListOpts) ([]RiskReport, error)
}

// AgentStateStore persists point-in-time state snapshots.
type AgentStateStore interface {
	Insert(ctx context.Context, s AgentState) error
	Latest(ctx context.Context, agentID string) (AgentState, error)
}
