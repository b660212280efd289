// Package opportunity ranks yield venues from a market snapshot. Pure,
// recomputed every decision cycle.
package opportunity

import (
	"sort"

	"github.com/agentfi/agentd/internal/domain"
)

const (
	// Venues below this risk-adjusted return are not worth the borrow cost.
	minRiskAdjustedReturn = 2.0

	// liquidity_score saturates at this much TVL.
	tvlSaturation = 1_000_000

	// confidence saturates at this risk-adjusted return.
	confidenceSaturation = 3.0
)

// Finder ranks yield opportunities.
type Finder struct{}

// NewFinder builds a finder.
func NewFinder() *Finder { return &Finder{} }

// Find returns the venues worth entering, best expected return first. Ties
// keep the snapshot's iteration order. Stable across calls with identical
// input.
func (f *Finder) Find(market domain.MarketSnapshot) []domain.Opportunity {
	// Map iteration order is randomized, so rank venues by sorted name first
	// to keep the "original order" tie rule deterministic.
	venues := make([]string, 0, len(market.YieldOpportunities))
	for venue := range market.YieldOpportunities {
		venues = append(venues, venue)
	}
	sort.Strings(venues)

	out := make([]domain.Opportunity, 0, len(venues))
	for _, venue := range venues {
		y := market.YieldOpportunities[venue]
		rar := 0.0
		if y.Volatility > 0 {
			rar = y.APY / y.Volatility
		}
		if rar <= minRiskAdjustedReturn {
			continue
		}
		out = append(out, domain.Opportunity{
			Venue:          venue,
			Asset:          y.Asset,
			ExpectedReturn: y.APY,
			RiskScore:      y.Volatility,
			LiquidityScore: min1(y.TVL / tvlSaturation),
			Confidence:     min1(rar / confidenceSaturation),
		})
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].ExpectedReturn > out[j].ExpectedReturn
	})
	return out
}

func min1(v float64) float64 {
	if v > 1 {
		return 1
	}
	return v
}
