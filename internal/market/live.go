package market

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/agentfi/agentd/internal/domain"
	"github.com/agentfi/agentd/internal/price"
)

// Venue is a statically configured yield venue for the live source. Live
// venue discovery is out of scope; operators describe the venues they track.
type Venue struct {
	Name       string
	Asset      string
	APY        float64
	Volatility float64
	TVL        float64
}

// LiveConfig configures the live source.
type LiveConfig struct {
	Symbols      []string
	Venues       []Venue
	Volatility   map[string]float64
	Liquidity    map[string]float64
	RiskFreeRate float64
}

// LiveSource builds snapshots from the TTL-cached price service plus the
// configured venue table. The price service owns all caching; every Fetch
// here assembles a fresh snapshot.
type LiveSource struct {
	cfg    LiveConfig
	prices *price.Service
	cache  domain.SnapshotCache // optional write-through
	log    *slog.Logger
}

var _ Source = (*LiveSource)(nil)

// NewLiveSource builds the live source. cache may be nil.
func NewLiveSource(cfg LiveConfig, prices *price.Service, cache domain.SnapshotCache, log *slog.Logger) *LiveSource {
	if len(cfg.Symbols) == 0 {
		cfg.Symbols = prices.Symbols()
	}
	if cfg.RiskFreeRate == 0 {
		cfg.RiskFreeRate = riskFreeYield
	}
	return &LiveSource{
		cfg:    cfg,
		prices: prices,
		cache:  cache,
		log:    log.With(slog.String("component", "live_market")),
	}
}

// Fetch implements Source.
func (s *LiveSource) Fetch(ctx context.Context) (domain.MarketSnapshot, error) {
	points, err := s.prices.GetPrices(ctx, s.cfg.Symbols)
	if err != nil {
		return domain.MarketSnapshot{}, fmt.Errorf("live market: %w", err)
	}

	snap := domain.MarketSnapshot{
		Timestamp:          time.Now().UTC(),
		Prices:             make(map[string]float64, len(points)),
		Volatility:         make(map[string]float64, len(points)),
		Liquidity:          make(map[string]float64, len(points)),
		YieldOpportunities: make(map[string]domain.YieldOpportunity, len(s.cfg.Venues)),
		RiskFreeRate:       s.cfg.RiskFreeRate,
	}

	for sym, p := range points {
		snap.Prices[sym] = p.PriceUSD
		if v, ok := s.cfg.Volatility[sym]; ok {
			snap.Volatility[sym] = v
		}
		if l, ok := s.cfg.Liquidity[sym]; ok {
			snap.Liquidity[sym] = l
		}
	}

	for _, v := range s.cfg.Venues {
		snap.YieldOpportunities[v.Name] = domain.YieldOpportunity{
			Asset:      v.Asset,
			APY:        v.APY,
			Volatility: v.Volatility,
			TVL:        v.TVL,
		}
	}

	if s.cache != nil {
		if err := s.cache.Set(ctx, snap); err != nil {
			s.log.WarnContext(ctx, "snapshot cache write failed", slog.Any("error", err))
		}
	}

	return snap, nil
}
