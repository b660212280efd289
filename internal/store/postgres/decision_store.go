package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/agentfi/agentd/internal/domain"
)

// DecisionStore implements domain.DecisionStore using PostgreSQL.
type DecisionStore struct {
	pool *pgxpool.Pool
}

// NewDecisionStore creates a DecisionStore backed by the given pool.
func NewDecisionStore(pool *pgxpool.Pool) *DecisionStore {
	return &DecisionStore{pool: pool}
}

var _ domain.DecisionStore = (*DecisionStore)(nil)

// Insert appends one decision to the log. receipt may be nil for decisions
// that were not (or could not be) submitted.
func (s *DecisionStore) Insert(ctx context.Context, d domain.Decision, receipt *domain.Receipt) error {
	params, err := json.Marshal(d.Params)
	if err != nil {
		return fmt.Errorf("postgres: encode params: %w", err)
	}

	var txHash *string
	if receipt != nil {
		txHash = &receipt.TxHash
	}

	_, err = s.pool.Exec(ctx, `
		INSERT INTO agent_decisions
			(id, agent_id, action, params, risk_score, expected_return, reasoning, engine, tx_hash, decided_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		d.ID, d.AgentID, string(d.Action), params,
		d.RiskScore, d.ExpectedReturn, d.Reasoning, d.Engine, txHash, d.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("postgres: insert decision: %w", err)
	}
	return nil
}

// ListRecent returns the newest decisions for an agent, newest first.
func (s *DecisionStore) ListRecent(ctx context.Context, agentID string, opts domain.ListOpts) ([]domain.Decision, error) {
	limit := opts.Limit
	if limit <= 0 {
		limit = 50
	}

	rows, err := s.pool.Query(ctx, `
		SELECT id, agent_id, action, params, risk_score, expected_return, reasoning, engine, decided_at
		FROM agent_decisions
		WHERE agent_id = $1
		ORDER BY decided_at DESC
		LIMIT $2 OFFSET $3`,
		agentID, limit, opts.Offset,
	)
	if err != nil {
		return nil, fmt.Errorf("postgres: list decisions: %w", err)
	}
	defer rows.Close()

	return scanDecisions(rows)
}

func scanDecisions(rows pgx.Rows) ([]domain.Decision, error) {
	var out []domain.Decision
	for rows.Next() {
		var (
			d      domain.Decision
			action string
			params []byte
		)
		if err := rows.Scan(&d.ID, &d.AgentID, &action, &params,
			&d.RiskScore, &d.ExpectedReturn, &d.Reasoning, &d.Engine, &d.Timestamp); err != nil {
			return nil, fmt.Errorf("postgres: scan decision: %w", err)
		}
		d.Action = domain.Action(action)
		if err := json.Unmarshal(params, &d.Params); err != nil {
			return nil, fmt.Errorf("postgres: decode params: %w", err)
		}
		out = append(out, d)
	}
	return out, rows.Err()
}
