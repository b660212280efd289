// Package risk derives a RiskReport from an agent state and a market
// snapshot. Assessment is a pure function: no I/O, no failure modes, a
// best-effort report even on degenerate inputs.
package risk

import (
	"fmt"
	"time"

	"github.com/agentfi/agentd/internal/domain"
)

// Default thresholds. Tunable per deployment through Options.
const (
	DefaultMinCollateralRatio = 1.5
	DefaultMaxUtilization     = 0.8
	DefaultMaxConcentration   = 0.7
)

// Weighted contributions to the overall risk score.
const (
	weightLowCollateral   = 0.4
	weightHighUtilization = 0.3
	weightWarnings        = 0.2
)

// Fallback scores when the market snapshot carries no per-symbol maps.
const (
	defaultVolatilityScore = 0.5
	defaultLiquidityScore  = 0.8
)

// Options tune the assessor thresholds.
type Options struct {
	MinCollateralRatio float64
	MaxUtilization     float64
	MaxConcentration   float64
}

func (o *Options) withDefaults() Options {
	out := Options{
		MinCollateralRatio: DefaultMinCollateralRatio,
		MaxUtilization:     DefaultMaxUtilization,
		MaxConcentration:   DefaultMaxConcentration,
	}
	if o == nil {
		return out
	}
	if o.MinCollateralRatio > 0 {
		out.MinCollateralRatio = o.MinCollateralRatio
	}
	if o.MaxUtilization > 0 {
		out.MaxUtilization = o.MaxUtilization
	}
	if o.MaxConcentration > 0 {
		out.MaxConcentration = o.MaxConcentration
	}
	return out
}

// Assessor computes risk reports.
type Assessor struct {
	opts Options
}

// NewAssessor builds an assessor; opts may be nil for defaults.
func NewAssessor(opts *Options) *Assessor {
	return &Assessor{opts: opts.withDefaults()}
}

// MinCollateralRatio exposes the configured safety threshold so the decision
// engine applies the same bar the assessor warns on.
func (a *Assessor) MinCollateralRatio() float64 { return a.opts.MinCollateralRatio }

// MaxUtilization exposes the configured utilization ceiling.
func (a *Assessor) MaxUtilization() float64 { return a.opts.MaxUtilization }

// Assess derives a RiskReport from one (state, market) pair.
func (a *Assessor) Assess(state domain.AgentState, market domain.MarketSnapshot) domain.RiskReport {
	report := domain.RiskReport{
		AgentID:   state.Config.AgentID,
		Timestamp: time.Now().UTC(),
	}

	ratio := collateralRatio(state)
	lowCollateral := ratio >= 0 && ratio < a.opts.MinCollateralRatio
	if ratio < 0 {
		// Nothing borrowed: infinitely safe, serialized as the 0 sentinel.
		report.CollateralRatio = 0
	} else {
		report.CollateralRatio = ratio
	}

	report.UtilizationRate = state.UtilizationRate()
	report.ConcentrationRisk = concentration(state.Positions)
	report.VolatilityScore = meanOr(market.Volatility, defaultVolatilityScore)
	report.LiquidityScore = meanOr(market.Liquidity, defaultLiquidityScore)

	if lowCollateral {
		report.Warnings = append(report.Warnings,
			fmt.Sprintf("collateral ratio %.2f below minimum %.2f", ratio, a.opts.MinCollateralRatio))
	}
	if report.UtilizationRate > a.opts.MaxUtilization {
		report.Warnings = append(report.Warnings,
			fmt.Sprintf("utilization rate %.2f exceeds %.2f", report.UtilizationRate, a.opts.MaxUtilization))
	}
	if report.ConcentrationRisk > a.opts.MaxConcentration {
		report.Warnings = append(report.Warnings,
			fmt.Sprintf("position concentration %.2f exceeds %.2f", report.ConcentrationRisk, a.opts.MaxConcentration))
	}

	score := 0.0
	if lowCollateral {
		score += weightLowCollateral
	}
	if report.UtilizationRate > a.opts.MaxUtilization {
		score += weightHighUtilization
	}
	if len(report.Warnings) > 0 {
		score += weightWarnings
	}
	report.OverallRisk = clamp01(score)

	return report
}

// collateralRatio returns (collateral + assets) / borrowed, or -1 when
// nothing is borrowed.
func collateralRatio(state domain.AgentState) float64 {
	if state.BorrowedUSDC <= 0 {
		return -1
	}
	return (state.CollateralUSDC + state.TotalAssets) / state.BorrowedUSDC
}

// concentration is the fraction of positions sharing the most common asset,
// count-based rather than value-weighted.
func concentration(positions []domain.Position) float64 {
	if len(positions) == 0 {
		return 0
	}
	counts := make(map[string]int, len(positions))
	maxCount := 0
	for _, p := range positions {
		counts[p.Asset]++
		if counts[p.Asset] > maxCount {
			maxCount = counts[p.Asset]
		}
	}
	return float64(maxCount) / float64(len(positions))
}

func meanOr(m map[string]float64, fallback float64) float64 {
	if len(m) == 0 {
		return fallback
	}
	sum := 0.0
	for _, v := range m {
		sum += v
	}
	return sum / float64(len(m))
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
