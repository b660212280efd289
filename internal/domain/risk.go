package domain

import "time"

// RiskReport is the derived risk view of one (state, market) pair. The core
// never persists it; the store collaborator logs it for observability.
//
// CollateralRatio carries 0 as the "infinite-safe" sentinel when nothing is
// borrowed, so the report stays comparable and serializable.
type RiskReport struct {
	AgentID           string    `json:"agent_id"`
	CollateralRatio   float64   `json:"collateral_ratio"`
	UtilizationRate   float64   `json:"utilization_rate"`
	VolatilityScore   float64   `json:"volatility_score"`
	LiquidityScore    float64   `json:"liquidity_score"`
	ConcentrationRisk float64   `json:"concentration_risk"`
	OverallRisk       float64   `json:"overall_risk"`
	Warnings          []string  `json:"warnings"`
	Timestamp         time.Time `json:"timestamp"`
}

// HasWarnings reports whether any threshold fired.
func (r RiskReport) HasWarnings() bool {
	return len(r.Warnings) > 0
}
