package handler

import (
	"log/slog"
	"net/http"

	"cadence/internal/httputil"
	"cadence/internal/service/turn"
)

// HistoryHandler exposes the snapshot stack and cursor movement.
type HistoryHandler struct {
	manager *turn.Manager
	logger  *slog.Logger
}

// NewHistoryHandler creates a new history handler
func NewHistoryHandler(manager *turn.Manager, logger *slog.Logger) *HistoryHandler {
	return &HistoryHandler{manager: manager, logger: logger}
}

// ListSnapshots returns the full snapshot stack in sequence order.
// GET /api/sessions/{id}/snapshots
func (h *HistoryHandler) ListSnapshots(w http.ResponseWriter, r *http.Request) {
	rt, ok := h.runtime(w, r)
	if !ok {
		return
	}

	httputil.RespondJSON(w, http.StatusOK, rt.Snapshots())
}

// Undo steps the history cursor back one snapshot. At the oldest snapshot
// the cursor stays put and the unchanged buffer is returned.
// POST /api/sessions/{id}/undo
func (h *HistoryHandler) Undo(w http.ResponseWriter, r *http.Request) {
	rt, ok := h.runtime(w, r)
	if !ok {
		return
	}

	result, err := rt.Undo()
	if err != nil {
		handleError(w, err)
		return
	}

	httputil.RespondJSON(w, http.StatusOK, result)
}

// Redo steps the history cursor forward one snapshot.
// POST /api/sessions/{id}/redo
func (h *HistoryHandler) Redo(w http.ResponseWriter, r *http.Request) {
	rt, ok := h.runtime(w, r)
	if !ok {
		return
	}

	result, err := rt.Redo()
	if err != nil {
		handleError(w, err)
		return
	}

	httputil.RespondJSON(w, http.StatusOK, result)
}

func (h *HistoryHandler) runtime(w http.ResponseWriter, r *http.Request) (*turn.Runtime, bool) {
	sessionID, ok := PathParam(w, r, "id", "Session ID")
	if !ok {
		return nil, false
	}

	userID := httputil.GetUserID(r)
	rt, err := h.manager.Get(r.Context(), sessionID, userID)
	if err != nil {
		handleError(w, err)
		return nil, false
	}
	return rt, true
}
