package handler

import (
	"log/slog"
	"net/http"

	"cadence/internal/httputil"
	"cadence/internal/service/render"
	"cadence/internal/service/turn"
)

// RenderHandler submits the current buffer to the render backend and
// proxies job polling.
type RenderHandler struct {
	client  *render.Client
	manager *turn.Manager
	logger  *slog.Logger
}

// NewRenderHandler creates a new render handler
func NewRenderHandler(client *render.Client, manager *turn.Manager, logger *slog.Logger) *RenderHandler {
	return &RenderHandler{client: client, manager: manager, logger: logger}
}

// SubmitRender queues a video render of the current working buffer.
// POST /api/sessions/{id}/renders
func (h *RenderHandler) SubmitRender(w http.ResponseWriter, r *http.Request) {
	sessionID, ok := PathParam(w, r, "id", "Session ID")
	if !ok {
		return
	}

	userID := httputil.GetUserID(r)
	rt, err := h.manager.Get(r.Context(), sessionID, userID)
	if err != nil {
		handleError(w, err)
		return
	}

	code := rt.Code()
	if code == "" {
		httputil.RespondError(w, http.StatusBadRequest, "session has no code to render")
		return
	}

	job, err := h.client.Submit(r.Context(), &render.SubmitRequest{
		SessionID: sessionID,
		Code:      code,
		Aspect:    rt.Session().Aspect,
	})
	if err != nil {
		handleError(w, err)
		return
	}

	h.logger.Info("render submitted", "session_id", sessionID, "job_id", job.ID)
	httputil.RespondJSON(w, http.StatusAccepted, job)
}

// GetRender polls a render job.
// GET /api/renders/{id}
func (h *RenderHandler) GetRender(w http.ResponseWriter, r *http.Request) {
	jobID, ok := PathParam(w, r, "id", "Render job ID")
	if !ok {
		return
	}

	job, err := h.client.Job(r.Context(), jobID)
	if err != nil {
		handleError(w, err)
		return
	}

	httputil.RespondJSON(w, http.StatusOK, job)
}
