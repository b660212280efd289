// Package market produces point-in-time market snapshots. Two backends
// expose the same Source contract: a stochastic simulator and a live source
// assembling snapshots from the cached price service.
package market

import (
	"context"
	"math"
	"math/rand"
	"sync"
	"time"

	"github.com/agentfi/agentd/internal/domain"
)

// Source produces a fresh snapshot each call. Implementations must return
// within a bounded time and never block the caller indefinitely.
type Source interface {
	Fetch(ctx context.Context) (domain.MarketSnapshot, error)
}

// Price evolution bounds relative to each token's initial base price.
const (
	lowerBoundFactor = 0.3
	upperBoundFactor = 3.0
)

// Chance per update that a token's trend direction flips.
const trendFlipProbability = 0.1

// Per-tick GBM parameters. One tick is treated as one simulated day.
const (
	tickDT        = 1.0 / 365
	annualDrift   = 0.5
	riskFreeYield = 0.045
)

// SimToken seeds one simulated token.
type SimToken struct {
	Symbol     string
	BasePrice  float64
	Volatility float64
	Liquidity  float64
}

// SimVenue seeds one simulated yield venue.
type SimVenue struct {
	Name      string
	Asset     string
	BaseAPY   float64
	APYJitter float64
	BaseTVL   float64
	TVLJitter float64
}

// DefaultTokens mirrors the standard simulated universe.
func DefaultTokens() []SimToken {
	return []SimToken{
		{Symbol: "USDC", BasePrice: 1.0, Volatility: 0.01, Liquidity: 0.99},
		{Symbol: "ETH", BasePrice: 2500, Volatility: 0.6, Liquidity: 0.9},
		{Symbol: "BTC", BasePrice: 45000, Volatility: 0.5, Liquidity: 0.95},
	}
}

// DefaultVenues mirrors the standard simulated venues.
func DefaultVenues() []SimVenue {
	return []SimVenue{
		{Name: "ETH-USDC Pool", Asset: "ETH", BaseAPY: 0.08, APYJitter: 0.02, BaseTVL: 5_000_000, TVLJitter: 500_000},
		{Name: "BTC-USDC Pool", Asset: "BTC", BaseAPY: 0.075, APYJitter: 0.015, BaseTVL: 3_000_000, TVLJitter: 300_000},
	}
}

type simToken struct {
	SimToken
	price float64
	trend float64 // +1 or -1
}

// Simulator evolves token prices with a GBM-like per-tick walk, clamped to
// [0.3x, 3.0x] of each token's base price, with a 10%-per-update chance of
// trend flip. Safe for concurrent Fetch calls from both loops.
type Simulator struct {
	mu     sync.Mutex
	rng    *rand.Rand
	tokens []simToken
	venues []SimVenue
}

var _ Source = (*Simulator)(nil)

// NewSimulator builds a simulator. rng may be nil for a time-seeded source;
// tests inject a fixed seed.
func NewSimulator(tokens []SimToken, venues []SimVenue, rng *rand.Rand) *Simulator {
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	if len(tokens) == 0 {
		tokens = DefaultTokens()
	}
	if len(venues) == 0 {
		venues = DefaultVenues()
	}
	s := &Simulator{rng: rng, venues: venues}
	for _, t := range tokens {
		trend := 1.0
		if rng.Float64() < 0.5 {
			trend = -1.0
		}
		s.tokens = append(s.tokens, simToken{SimToken: t, price: t.BasePrice, trend: trend})
	}
	return s
}

// Fetch advances the walk one tick and returns the resulting snapshot.
func (s *Simulator) Fetch(ctx context.Context) (domain.MarketSnapshot, error) {
	if err := ctx.Err(); err != nil {
		return domain.MarketSnapshot{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	snap := domain.MarketSnapshot{
		Timestamp:          time.Now().UTC(),
		Prices:             make(map[string]float64, len(s.tokens)),
		Volatility:         make(map[string]float64, len(s.tokens)),
		Liquidity:          make(map[string]float64, len(s.tokens)),
		YieldOpportunities: make(map[string]domain.YieldOpportunity, len(s.venues)),
		RiskFreeRate:       riskFreeYield,
	}

	for i := range s.tokens {
		t := &s.tokens[i]
		if s.rng.Float64() < trendFlipProbability {
			t.trend = -t.trend
		}
		t.price = clampPrice(t.step(s.rng), t.BasePrice)

		snap.Prices[t.Symbol] = t.price
		snap.Volatility[t.Symbol] = t.Volatility
		snap.Liquidity[t.Symbol] = t.Liquidity
	}

	for _, v := range s.venues {
		apy := v.BaseAPY + (s.rng.Float64()*2-1)*v.APYJitter
		if apy < 0 {
			apy = 0
		}
		tvl := v.BaseTVL + (s.rng.Float64()*2-1)*v.TVLJitter
		vol := 0.02
		for _, t := range s.tokens {
			if t.Symbol == v.Asset {
				vol = t.Volatility * 0.05
			}
		}
		snap.YieldOpportunities[v.Name] = domain.YieldOpportunity{
			Asset:      v.Asset,
			APY:        apy,
			Volatility: vol,
			TVL:        tvl,
		}
	}

	return snap, nil
}

// step applies one GBM tick in the current trend direction.
func (t *simToken) step(rng *rand.Rand) float64 {
	mu := t.trend * annualDrift
	sigma := t.Volatility
	z := rng.NormFloat64()
	return t.price * math.Exp((mu-0.5*sigma*sigma)*tickDT+sigma*math.Sqrt(tickDT)*z)
}

func clampPrice(price, base float64) float64 {
	if lo := base * lowerBoundFactor; price < lo {
		return lo
	}
	if hi := base * upperBoundFactor; price > hi {
		return hi
	}
	return price
}
