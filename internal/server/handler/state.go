package handler

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/agentfi/agentd/internal/domain"
)

// StateHandler serves the latest persisted vault state snapshot.
type StateHandler struct {
	agentID string
	store   domain.AgentStateStore
	logger  *slog.Logger
}

// NewStateHandler creates a StateHandler.
func NewStateHandler(agentID string, store domain.AgentStateStore, logger *slog.Logger) *StateHandler {
	return &StateHandler{agentID: agentID, store: store, logger: logHandler(logger, "state")}
}

// Latest returns the newest state snapshot recorded by the decision loop.
// GET /api/state/latest
func (h *StateHandler) Latest(w http.ResponseWriter, r *http.Request) {
	if h.store == nil {
		writeError(w, http.StatusServiceUnavailable, "state log not configured")
		return
	}
	state, err := h.store.Latest(r.Context(), h.agentID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			writeError(w, http.StatusNotFound, "no state snapshots recorded")
			return
		}
		h.logger.ErrorContext(r.Context(), "latest state", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "failed to load state snapshot")
		return
	}
	writeSuccess(w, http.StatusOK, state)
}
