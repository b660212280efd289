package handler

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/agentfi/agentd/internal/domain"
	"github.com/agentfi/agentd/internal/price"
)

// PriceHandler serves token price endpoints backed by the price service.
type PriceHandler struct {
	svc    *price.Service
	logger *slog.Logger
}

// NewPriceHandler creates a PriceHandler.
func NewPriceHandler(svc *price.Service, logger *slog.Logger) *PriceHandler {
	return &PriceHandler{svc: svc, logger: logHandler(logger, "prices")}
}

// Current returns spot prices for the requested symbols. Without a symbols
// parameter it returns every supported token.
// GET /api/prices/current?symbols=BTC,ETH
func (h *PriceHandler) Current(w http.ResponseWriter, r *http.Request) {
	symbols := h.svc.Symbols()
	if raw := r.URL.Query().Get("symbols"); raw != "" {
		symbols = symbols[:0]
		for _, s := range strings.Split(raw, ",") {
			if s = strings.ToUpper(strings.TrimSpace(s)); s != "" {
				symbols = append(symbols, s)
			}
		}
	}
	if len(symbols) == 0 {
		writeError(w, http.StatusBadRequest, "no symbols requested")
		return
	}

	points, err := h.svc.GetPrices(r.Context(), symbols)
	if err != nil {
		if errors.Is(err, domain.ErrPriceUnavailable) {
			writeError(w, http.StatusBadGateway, "price feed unavailable")
			return
		}
		h.logger.ErrorContext(r.Context(), "fetch prices", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "failed to fetch prices")
		return
	}
	writeSuccess(w, http.StatusOK, points)
}

// History returns OHLC candles for one symbol.
// GET /api/prices/history?symbol=BTC&days=30
func (h *PriceHandler) History(w http.ResponseWriter, r *http.Request) {
	symbol := strings.ToUpper(strings.TrimSpace(r.URL.Query().Get("symbol")))
	if symbol == "" {
		writeError(w, http.StatusBadRequest, "symbol is required")
		return
	}

	days := domain.DefaultHistoryDays
	if v := r.URL.Query().Get("days"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || !domain.ValidHistoryDays(n) {
			writeError(w, http.StatusBadRequest, "unsupported days value")
			return
		}
		days = n
	}

	candles, err := h.svc.GetHistory(r.Context(), symbol, days)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "fetch history",
			slog.String("symbol", symbol),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusBadGateway, "failed to fetch price history")
		return
	}
	writeSuccess(w, http.StatusOK, map[string]any{
		"symbol":  symbol,
		"days":    days,
		"candles": candles,
	})
}

// CacheInfo reports the in-memory price cache contents and ages.
// GET /api/prices/cache
func (h *PriceHandler) CacheInfo(w http.ResponseWriter, r *http.Request) {
	writeSuccess(w, http.StatusOK, h.svc.CacheInfo())
}

// ClearCache drops all cached prices, forcing the next read to refetch.
// DELETE /api/prices/cache
func (h *PriceHandler) ClearCache(w http.ResponseWriter, r *http.Request) {
	h.svc.ClearCache()
	writeSuccess(w, http.StatusOK, map[string]string{"status": "cleared"})
}
