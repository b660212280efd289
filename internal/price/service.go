// Package price serves spot and historical token prices from CoinGecko with
// a request-level TTL cache. The cache is an explicitly constructed service
// instance passed to whoever needs it; refreshes are deduplicated per symbol
// so there is a single writer per key while readers tolerate staleness.
package price

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/agentfi/agentd/internal/domain"
)

const (
	defaultBaseURL = "https://api.coingecko.com/api/v3"
	defaultTTL     = 60 * time.Second
	fetchTimeout   = 10 * time.Second
	historyTimeout = 15 * time.Second
)

// coinIDs maps ticker symbols to CoinGecko coin ids.
var coinIDs = map[string]string{
	"BTC":  "bitcoin",
	"ETH":  "ethereum",
	"USDC": "usd-coin",
	"USDT": "tether",
}

type cachedPrice struct {
	point     domain.PricePoint
	expiresAt time.Time
}

// Service is the TTL-cached price source.
type Service struct {
	baseURL string
	apiKey  string
	ttl     time.Duration
	http    *http.Client
	log     *slog.Logger

	mu    sync.RWMutex
	cache map[string]cachedPrice
	group singleflight.Group

	// Optional write-through so other processes see fresh prices.
	shared domain.PriceCache
}

// Options configure the service; zero values take defaults.
type Options struct {
	BaseURL string
	APIKey  string
	TTL     time.Duration
	Shared  domain.PriceCache
}

// NewService builds the price service.
func NewService(opts Options, log *slog.Logger) *Service {
	if opts.BaseURL == "" {
		opts.BaseURL = defaultBaseURL
	}
	if opts.TTL <= 0 {
		opts.TTL = defaultTTL
	}
	return &Service{
		baseURL: strings.TrimRight(opts.BaseURL, "/"),
		apiKey:  opts.APIKey,
		ttl:     opts.TTL,
		http:    &http.Client{Timeout: fetchTimeout},
		log:     log.With(slog.String("component", "price_service")),
		cache:   make(map[string]cachedPrice),
		shared:  opts.Shared,
	}
}

// GetPrice returns the spot price for one symbol, served from cache within
// the TTL. A failed refresh returns ErrPriceUnavailable rather than blocking
// or retrying.
func (s *Service) GetPrice(ctx context.Context, symbol string) (domain.PricePoint, error) {
	points, err := s.GetPrices(ctx, []string{symbol})
	if err != nil {
		return domain.PricePoint{}, err
	}
	p, ok := points[symbol]
	if !ok {
		return domain.PricePoint{}, fmt.Errorf("price: %s: %w", symbol, domain.ErrPriceUnavailable)
	}
	return p, nil
}

// GetPrices returns spot prices for the given symbols. Cached entries are
// served as-is; the uncached remainder is fetched in one batched request
// deduplicated across concurrent callers.
func (s *Service) GetPrices(ctx context.Context, symbols []string) (map[string]domain.PricePoint, error) {
	out := make(map[string]domain.PricePoint, len(symbols))
	var missing []string

	now := time.Now()
	s.mu.RLock()
	for _, sym := range symbols {
		sym = strings.ToUpper(sym)
		if c, ok := s.cache[sym]; ok && now.Before(c.expiresAt) {
			out[sym] = c.point
		} else if _, known := coinIDs[sym]; known {
			missing = append(missing, sym)
		}
	}
	s.mu.RUnlock()

	if len(missing) == 0 {
		return out, nil
	}

	sort.Strings(missing)
	key := strings.Join(missing, ",")
	fetched, err, _ := s.group.Do(key, func() (any, error) {
		return s.fetchBatch(ctx, missing)
	})
	if err != nil {
		if len(out) > 0 {
			// Partial answer beats none; the missing symbols stay absent.
			s.log.WarnContext(ctx, "price refresh failed, serving cached subset", slog.Any("error", err))
			return out, nil
		}
		return nil, fmt.Errorf("price: refresh: %w: %v", domain.ErrPriceUnavailable, err)
	}

	for sym, p := range fetched.(map[string]domain.PricePoint) {
		out[sym] = p
	}
	return out, nil
}

func (s *Service) fetchBatch(ctx context.Context, symbols []string) (map[string]domain.PricePoint, error) {
	ids := make([]string, 0, len(symbols))
	for _, sym := range symbols {
		ids = append(ids, coinIDs[sym])
	}

	q := url.Values{}
	q.Set("ids", strings.Join(ids, ","))
	q.Set("vs_currencies", "usd")
	q.Set("include_24hr_change", "true")

	ctx, cancel := context.WithTimeout(ctx, fetchTimeout)
	defer cancel()

	raw, err := s.doGet(ctx, "/simple/price", q)
	if err != nil {
		return nil, err
	}

	var parsed map[string]struct {
		USD          float64 `json:"usd"`
		USD24hChange float64 `json:"usd_24h_change"`
	}
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, fmt.Errorf("decode: %w", err)
	}

	now := time.Now().UTC()
	points := make(map[string]domain.PricePoint, len(symbols))
	s.mu.Lock()
	for _, sym := range symbols {
		entry, ok := parsed[coinIDs[sym]]
		if !ok {
			continue
		}
		p := domain.PricePoint{
			Symbol:    sym,
			PriceUSD:  entry.USD,
			Change24h: entry.USD24hChange,
			FetchedAt: now,
		}
		points[sym] = p
		s.cache[sym] = cachedPrice{point: p, expiresAt: now.Add(s.ttl)}
	}
	s.mu.Unlock()

	if s.shared != nil {
		for sym, p := range points {
			if err := s.shared.SetPrice(ctx, sym, p.PriceUSD, p.FetchedAt); err != nil {
				s.log.WarnContext(ctx, "shared price write failed",
					slog.String("symbol", sym), slog.Any("error", err))
			}
		}
	}

	return points, nil
}

// GetHistory returns OHLC candles for a symbol. days must be one of the
// accepted lookback windows; 0 means the default of 30.
func (s *Service) GetHistory(ctx context.Context, symbol string, days int) ([]domain.OHLC, error) {
	symbol = strings.ToUpper(symbol)
	id, ok := coinIDs[symbol]
	if !ok {
		return nil, fmt.Errorf("price: unknown symbol %q: %w", symbol, domain.ErrNotFound)
	}
	if days == 0 {
		days = 30
	}
	if !domain.ValidHistoryDays(days) {
		return nil, fmt.Errorf("price: unsupported days %d", days)
	}

	q := url.Values{}
	q.Set("vs_currency", "usd")
	q.Set("days", fmt.Sprintf("%d", days))

	ctx, cancel := context.WithTimeout(ctx, historyTimeout)
	defer cancel()

	raw, err := s.doGet(ctx, "/coins/"+id+"/ohlc", q)
	if err != nil {
		return nil, err
	}

	var rows [][]float64
	if err := json.Unmarshal(raw, &rows); err != nil {
		return nil, fmt.Errorf("decode ohlc: %w", err)
	}

	out := make([]domain.OHLC, 0, len(rows))
	for _, r := range rows {
		if len(r) < 5 {
			continue
		}
		out = append(out, domain.OHLC{
			Timestamp: time.UnixMilli(int64(r[0])).UTC(),
			Open:      r[1],
			High:      r[2],
			Low:       r[3],
			Close:     r[4],
		})
	}
	return out, nil
}

func (s *Service) doGet(ctx context.Context, path string, q url.Values) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.baseURL+path+"?"+q.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if s.apiKey != "" {
		req.Header.Set("x-cg-demo-api-key", s.apiKey)
	}

	resp, err := s.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request %s: %w", path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%s: status %d", path, resp.StatusCode)
	}
	return data, nil
}

// CacheEntry is one row of the cache inspection endpoint.
type CacheEntry struct {
	Symbol    string    `json:"symbol"`
	PriceUSD  float64   `json:"price_usd"`
	FetchedAt time.Time `json:"fetched_at"`
	ExpiresAt time.Time `json:"expires_at"`
	Stale     bool      `json:"stale"`
}

// CacheInfo reports the current cache contents.
func (s *Service) CacheInfo() []CacheEntry {
	now := time.Now()
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]CacheEntry, 0, len(s.cache))
	for sym, c := range s.cache {
		out = append(out, CacheEntry{
			Symbol:    sym,
			PriceUSD:  c.point.PriceUSD,
			FetchedAt: c.point.FetchedAt,
			ExpiresAt: c.expiresAt,
			Stale:     now.After(c.expiresAt),
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Symbol < out[j].Symbol })
	return out
}

// ClearCache drops every cached entry.
func (s *Service) ClearCache() {
	s.mu.Lock()
	s.cache = make(map[string]cachedPrice)
	s.mu.Unlock()
}

// Symbols lists the tickers this service can resolve.
func (s *Service) Symbols() []string {
	out := make([]string, 0, len(coinIDs))
	for sym := range coinIDs {
		out = append(out, sym)
	}
	sort.Strings(out)
	return out
}
