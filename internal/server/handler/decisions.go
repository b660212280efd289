package handler

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/agentfi/agentd/internal/domain"
)

// DecisionHandler serves the decision log for one agent.
type DecisionHandler struct {
	agentID string
	store   domain.DecisionStore
	cache   domain.DecisionCache // optional
	logger  *slog.Logger
}

// NewDecisionHandler creates a DecisionHandler. cache may be nil.
func NewDecisionHandler(agentID string, store domain.DecisionStore, cache domain.DecisionCache, logger *slog.Logger) *DecisionHandler {
	return &DecisionHandler{
		agentID: agentID,
		store:   store,
		cache:   cache,
		logger:  logHandler(logger, "decisions"),
	}
}

// ListRecent returns the newest decisions, newest first.
// GET /api/decisions/recent?limit=50&offset=0
func (h *DecisionHandler) ListRecent(w http.ResponseWriter, r *http.Request) {
	if h.store == nil {
		writeError(w, http.StatusServiceUnavailable, "decision log not configured")
		return
	}
	decisions, err := h.store.ListRecent(r.Context(), h.agentID, parseListOpts(r))
	if err != nil {
		h.logger.ErrorContext(r.Context(), "list decisions", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "failed to list decisions")
		return
	}
	writeSuccess(w, http.StatusOK, decisions)
}

// Latest returns the most recent decision, preferring the cache over the log.
// GET /api/decisions/latest
func (h *DecisionHandler) Latest(w http.ResponseWriter, r *http.Request) {
	if h.cache != nil {
		d, err := h.cache.GetLatest(r.Context(), h.agentID)
		if err == nil {
			writeSuccess(w, http.StatusOK, d)
			return
		}
		if !errors.Is(err, domain.ErrNotFound) {
			h.logger.WarnContext(r.Context(), "decision cache read", slog.String("error", err.Error()))
		}
	}

	if h.store == nil {
		writeError(w, http.StatusNotFound, "no decisions recorded")
		return
	}
	decisions, err := h.store.ListRecent(r.Context(), h.agentID, domain.ListOpts{Limit: 1})
	if err != nil {
		h.logger.ErrorContext(r.Context(), "latest decision", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "failed to load latest decision")
		return
	}
	if len(decisions) == 0 {
		writeError(w, http.StatusNotFound, "no decisions recorded")
		return
	}
	writeSuccess(w, http.StatusOK, decisions[0])
}

// RiskHandler serves risk reports for one agent.
type RiskHandler struct {
	agentID string
	store   domain.RiskReportStore
	logger  *slog.Logger
}

// NewRiskHandler creates a RiskHandler.
func NewRiskHandler(agentID string, store domain.RiskReportStore, logger *slog.Logger) *RiskHandler {
	return &RiskHandler{agentID: agentID, store: store, logger: logHandler(logger, "risk")}
}

// Latest returns the most recent risk report.
// GET /api/risk/latest
func (h *RiskHandler) Latest(w http.ResponseWriter, r *http.Request) {
	if h.store == nil {
		writeError(w, http.StatusServiceUnavailable, "risk log not configured")
		return
	}
	report, err := h.store.Latest(r.Context(), h.agentID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			writeError(w, http.StatusNotFound, "no risk reports recorded")
			return
		}
		h.logger.ErrorContext(r.Context(), "latest risk report", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "failed to load risk report")
		return
	}
	writeSuccess(w, http.StatusOK, report)
}

// ListRecent returns recent risk reports, newest first.
// GET /api/risk/recent?limit=50&offset=0
func (h *RiskHandler) ListRecent(w http.ResponseWriter, r *http.Request) {
	if h.store == nil {
		writeError(w, http.StatusServiceUnavailable, "risk log not configured")
		return
	}
	reports, err := h.store.ListRecent(r.Context(), h.agentID, parseListOpts(r))
	if err != nil {
		h.logger.ErrorContext(r.Context(), "list risk reports", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "failed to list risk reports")
		return
	}
	writeSuccess(w, http.StatusOK, reports)
}
