package domain

import "time"

// YieldOpportunity describes one venue's current offering as observed in a
// market snapshot.
type YieldOpportunity struct {
	Asset      string  `json:"asset"`
	APY        float64 `json:"apy"`
	Volatility float64 `json:"volatility"`
	TVL        float64 `json:"tvl"`
}

// MarketSnapshot is a point-in-time view of the market. Produced fresh each
// tick; both loops read independent snapshots and never share one.
type MarketSnapshot struct {
	Timestamp          time.Time                   `json:"timestamp"`
	Prices             map[string]float64          `json:"prices"`
	YieldOpportunities map[string]YieldOpportunity `json:"yield_opportunities"`
	Volatility         map[string]float64          `json:"volatility"`
	Liquidity          map[string]float64          `json:"liquidity"`
	RiskFreeRate       float64                     `json:"risk_free_rate"`
}

// Price returns the snapshot price for symbol and whether one is present.
func (m MarketSnapshot) Price(symbol string) (float64, bool) {
	p, ok := m.Prices[symbol]
	return p, ok
}

// Opportunity is a ranked candidate produced by the opportunity finder.
// Ephemeral, recomputed every decision cycle.
type Opportunity struct {
	Venue          string  `json:"venue"`
	Asset          string  `json:"asset"`
	ExpectedReturn float64 `json:"expected_return"`
	RiskScore      float64 `json:"risk_score"`
	LiquidityScore float64 `json:"liquidity_score"`
	Confidence     float64 `json:"confidence"`
}

// PricePoint is one spot observation served by the price API.
type PricePoint struct {
	Symbol    string    `json:"symbol"`
	PriceUSD  float64   `json:"price_usd"`
	Change24h float64   `json:"change_24h"`
	FetchedAt time.Time `json:"fetched_at"`
}

// OHLC is one historical candle.
type OHLC struct {
	Timestamp time.Time `json:"timestamp"`
	Open      float64   `json:"open"`
	High      float64   `json:"high"`
	Low       float64   `json:"low"`
	Close     float64   `json:"close"`
}

// HistoryDays lists the lookback windows the history endpoint accepts.
var HistoryDays = []int{1, 7, 14, 30, 90, 180, 365}

// DefaultHistoryDays is the lookback used when a caller does not pick one.
const DefaultHistoryDays = 30

// ValidHistoryDays reports whether days is an accepted lookback window.
func ValidHistoryDays(days int) bool {
	for _, d := range HistoryDays {
		if d == days {
			return true
		}
	}
	return false
}
