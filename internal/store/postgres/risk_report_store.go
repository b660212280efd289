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

// RiskReportStore implements domain.RiskReportStore using PostgreSQL.
type RiskReportStore struct {
	pool *pgxpool.Pool
}

// NewRiskReportStore creates a RiskReportStore backed by the given pool.
func NewRiskReportStore(pool *pgxpool.Pool) *RiskReportStore {
	return &RiskReportStore{pool: pool}
}

var _ domain.RiskReportStore = (*RiskReportStore)(nil)

// Insert appends one risk report.
func (s *RiskReportStore) Insert(ctx context.Context, r domain.RiskReport) error {
	warnings, err := json.Marshal(r.Warnings)
	if err != nil {
		return fmt.Errorf("postgres: encode warnings: %w", err)
	}

	_, err = s.pool.Exec(ctx, `
		INSERT INTO risk_reports
			(agent_id, collateral_ratio, utilization_rate, volatility_score,
			 liquidity_score, concentration_risk, overall_risk, warnings, assessed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		r.AgentID, r.CollateralRatio, r.UtilizationRate, r.VolatilityScore,
		r.LiquidityScore, r.ConcentrationRisk, r.OverallRisk, warnings, r.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("postgres: insert risk report: %w", err)
	}
	return nil
}

const riskSelectCols = `agent_id, collateral_ratio, utilization_rate, volatility_score,
	liquidity_score, concentration_risk, overall_risk, warnings, assessed_at`

// Latest returns the most recent report for an agent.
func (s *RiskReportStore) Latest(ctx context.Context, agentID string) (domain.RiskReport, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT `+riskSelectCols+`
		FROM risk_reports
		WHERE agent_id = $1
		ORDER BY assessed_at DESC
		LIMIT 1`,
		agentID,
	)
	r, err := scanRiskReport(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.RiskReport{}, domain.ErrNotFound
	}
	return r, err
}

// ListRecent returns recent reports, newest first.
func (s *RiskReportStore) ListRecent(ctx context.Context, agentID string, opts domain.ListOpts) ([]domain.RiskReport, error) {
	limit := opts.Limit
	if limit <= 0 {
		limit = 50
	}

	rows, err := s.pool.Query(ctx, `
		SELECT `+riskSelectCols+`
		FROM risk_reports
		WHERE agent_id = $1
		ORDER BY assessed_at DESC
		LIMIT $2 OFFSET $3`,
		agentID, limit, opts.Offset,
	)
	if err != nil {
		return nil, fmt.Errorf("postgres: list risk reports: %w", err)
	}
	defer rows.Close()

	var out []domain.RiskReport
	for rows.Next() {
		r, err := scanRiskReport(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func scanRiskReport(row pgx.Row) (domain.RiskReport, error) {
	var (
		r        domain.RiskReport
		warnings []byte
	)
	err := row.Scan(&r.AgentID, &r.CollateralRatio, &r.UtilizationRate, &r.VolatilityScore,
		&r.LiquidityScore, &r.ConcentrationRisk, &r.OverallRisk, &warnings, &r.Timestamp)
	if err != nil {
		return domain.RiskReport{}, err
	}
	if err := json.Unmarshal(warnings, &r.Warnings); err != nil {
		return domain.RiskReport{}, fmt.Errorf("postgres: decode warnings: %w", err)
	}
	return r, nil
}
