package handler

import (
	"log/slog"
	"net/http"

	"cadence/internal/domain/models"
	"cadence/internal/handler/sse"
	"cadence/internal/httputil"
	"cadence/internal/service/turn"
)

// SubmitTurnRequest is the body of a turn submission.
type SubmitTurnRequest struct {
	Prompt      string              `json:"prompt"`
	Attachments []models.Attachment `json:"attachments,omitempty"`
}

// PreviewRequest is the preview collaborator's feedback for the current
// buffer.
type PreviewRequest struct {
	Status string `json:"status"` // ok, compile_error or runtime_error
	Error  string `json:"error,omitempty"`
}

// UpdateCodeRequest replaces the working buffer with a manual edit.
type UpdateCodeRequest struct {
	Code string `json:"code"`
}

// TurnHandler handles turn submission, preview feedback, and the working
// code buffer.
type TurnHandler struct {
	manager *turn.Manager
	logger  *slog.Logger
}

// NewTurnHandler creates a new turn handler
func NewTurnHandler(manager *turn.Manager, logger *slog.Logger) *TurnHandler {
	return &TurnHandler{manager: manager, logger: logger}
}

// SubmitTurn runs one user turn. The first turn of a session streams the
// generated code as server-sent events; follow-up turns respond with the
// settled result as JSON.
// POST /api/sessions/{id}/turns
func (h *TurnHandler) SubmitTurn(w http.ResponseWriter, r *http.Request) {
	sessionID, ok := PathParam(w, r, "id", "Session ID")
	if !ok {
		return
	}

	var req SubmitTurnRequest
	if err := httputil.ParseJSON(w, r, &req); err != nil {
		httputil.RespondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	userID := httputil.GetUserID(r)
	rt, err := h.manager.Get(r.Context(), sessionID, userID)
	if err != nil {
		handleError(w, err)
		return
	}

	if len(rt.Snapshots()) == 0 {
		h.streamFirstTurn(w, r, rt, &req)
		return
	}

	result, err := rt.Submit(r.Context(), req.Prompt, req.Attachments, nil)
	if err != nil {
		handleError(w, err)
		return
	}

	httputil.RespondJSON(w, http.StatusOK, result)
}

func (h *TurnHandler) streamFirstTurn(w http.ResponseWriter, r *http.Request, rt *turn.Runtime, req *SubmitTurnRequest) {
	writer, err := sse.NewWriter(w)
	if err != nil {
		httputil.RespondError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	streaming := false
	result, err := rt.Submit(r.Context(), req.Prompt, req.Attachments, func(delta string) error {
		streaming = true
		return writer.WriteEvent("code_delta", map[string]string{"delta": delta})
	})
	if err != nil {
		// Before the first delta the response is still untouched and a
		// plain error response works; afterwards only an event can
		// reach the client.
		if !streaming {
			handleError(w, err)
			return
		}
		h.logger.Error("streamed turn failed", "session_id", rt.Session().ID, "error", err)
		_ = writer.WriteEvent("error", map[string]string{"detail": err.Error()})
		return
	}

	if err := writer.WriteEvent("metadata", map[string]interface{}{
		"skills":  result.Skills,
		"summary": result.Summary,
	}); err != nil {
		return
	}
	_ = writer.WriteEvent("done", result)
}

// Preview consumes compile/run feedback for the current buffer. A failure
// report may trigger a corrective turn whose result is returned; ok
// feedback clears correction state and returns 204.
// POST /api/sessions/{id}/preview
func (h *TurnHandler) Preview(w http.ResponseWriter, r *http.Request) {
	sessionID, ok := PathParam(w, r, "id", "Session ID")
	if !ok {
		return
	}

	var req PreviewRequest
	if err := httputil.ParseJSON(w, r, &req); err != nil {
		httputil.RespondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	report := turn.PreviewReport{Message: req.Error}
	switch req.Status {
	case "ok":
		report.OK = true
	case "compile_error":
		report.Kind = turn.FailureCompile
	case "runtime_error":
		report.Kind = turn.FailureRuntime
	default:
		httputil.RespondError(w, http.StatusBadRequest, "status must be ok, compile_error or runtime_error")
		return
	}

	userID := httputil.GetUserID(r)
	rt, err := h.manager.Get(r.Context(), sessionID, userID)
	if err != nil {
		handleError(w, err)
		return
	}

	result, err := rt.Preview(r.Context(), report)
	if err != nil {
		handleError(w, err)
		return
	}
	if result == nil {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	httputil.RespondJSON(w, http.StatusOK, result)
}

// GetCode returns the current working buffer.
// GET /api/sessions/{id}/code
func (h *TurnHandler) GetCode(w http.ResponseWriter, r *http.Request) {
	rt, ok := h.runtime(w, r)
	if !ok {
		return
	}

	httputil.RespondJSON(w, http.StatusOK, map[string]string{"code": rt.Code()})
}

// UpdateCode records a manual edit to the working buffer.
// PUT /api/sessions/{id}/code
func (h *TurnHandler) UpdateCode(w http.ResponseWriter, r *http.Request) {
	rt, ok := h.runtime(w, r)
	if !ok {
		return
	}

	var req UpdateCodeRequest
	if err := httputil.ParseJSON(w, r, &req); err != nil {
		httputil.RespondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	if err := rt.UpdateCode(req.Code); err != nil {
		handleError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// GetMessages returns the session transcript, error turns included.
// GET /api/sessions/{id}/messages
func (h *TurnHandler) GetMessages(w http.ResponseWriter, r *http.Request) {
	rt, ok := h.runtime(w, r)
	if !ok {
		return
	}

	httputil.RespondJSON(w, http.StatusOK, rt.Messages())
}

func (h *TurnHandler) runtime(w http.ResponseWriter, r *http.Request) (*turn.Runtime, bool) {
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
