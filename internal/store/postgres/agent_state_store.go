package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/agentfi/agentd/internal/domain"
)

// AgentStateStore implements domain.AgentStateStore using PostgreSQL.
type AgentStateStore struct {
	pool *pgxpool.Pool
}

// NewAgentStateStore creates an AgentStateStore backed by the given pool.
func NewAgentStateStore(pool *pgxpool.Pool) *AgentStateStore {
	return &AgentStateStore{pool: pool}
}

var _ domain.AgentStateStore = (*AgentStateStore)(nil)

// Insert appends one state snapshot.
func (s *AgentStateStore) Insert(ctx context.Context, state domain.AgentState) error {
	positions, err := json.Marshal(state.Positions)
	if err != nil {
		return fmt.Errorf("postgres: encode positions: %w", err)
	}

	_, err = s.pool.Exec(ctx, `
		INSERT INTO agent_states
			(agent_id, collateral, borrowed, available_credit, total_assets, positions, fetched_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		state.Config.AgentID, state.CollateralUSDC, state.BorrowedUSDC,
		state.AvailableCredit, state.TotalAssets, positions, state.FetchedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: insert agent state: %w", err)
	}
	return nil
}

// Latest returns the most recent snapshot for an agent.
func (s *AgentStateStore) Latest(ctx context.Context, agentID string) (domain.AgentState, error) {
	var (
		state     domain.AgentState
		positions []byte
	)
	err := s.pool.QueryRow(ctx, `
		SELECT agent_id, collateral, borrowed, available_credit, total_assets, positions, fetched_at
		FROM agent_states
		WHERE agent_id = $1
		ORDER BY fetched_at DESC
		LIMIT 1`,
		agentID,
	).Scan(&state.Config.AgentID, &state.CollateralUSDC, &state.BorrowedUSDC,
		&state.AvailableCredit, &state.TotalAssets, &positions, &state.FetchedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.AgentState{}, domain.ErrNotFound
		}
		return domain.AgentState{}, fmt.Errorf("postgres: latest agent state: %w", err)
	}
	if err := json.Unmarshal(positions, &state.Positions); err != nil {
		return domain.AgentState{}, fmt.Errorf("postgres: decode positions: %w", err)
	}
	return state, nil
}
