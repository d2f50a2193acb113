package handler

import (
	"errors"
	"net/http"

	"cadence/internal/domain"
	"cadence/internal/httputil"
	"cadence/internal/service/generation"
	"cadence/internal/service/patch"
)

// handleError converts domain errors to HTTP responses
func handleError(w http.ResponseWriter, err error) {
	var patchErr *patch.Error
	var conflictErr *domain.ConflictError

	switch {
	case errors.As(err, &patchErr):
		// The failing edit travels with the problem document so the
		// client can show exactly what could not be applied.
		httputil.RespondErrorWithExtras(w, http.StatusUnprocessableEntity, patchErr.Error(), map[string]interface{}{
			"kind":       patchErr.Kind,
			"edit_index": patchErr.EditIndex,
			"old_string": patchErr.Edit.OldString,
		})
	case errors.Is(err, domain.ErrAttemptsExhausted):
		httputil.RespondError(w, http.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, domain.ErrValidation):
		httputil.RespondError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, generation.ErrInvalidResponse):
		httputil.RespondError(w, http.StatusBadGateway, err.Error())
	case errors.Is(err, domain.ErrTransport):
		httputil.RespondError(w, http.StatusBadGateway, err.Error())
	case errors.Is(err, domain.ErrBusy):
		httputil.RespondError(w, http.StatusConflict, err.Error())
	case errors.Is(err, domain.ErrNotFound):
		httputil.RespondError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, domain.ErrUnauthorized):
		httputil.RespondError(w, http.StatusUnauthorized, err.Error())
	case errors.Is(err, domain.ErrForbidden):
		httputil.RespondError(w, http.StatusForbidden, err.Error())
	case errors.As(err, &conflictErr):
		httputil.RespondError(w, http.StatusConflict, conflictErr.Error())
	default:
		httputil.RespondError(w, http.StatusInternalServerError, "internal server error")
	}
}

// PathParam extracts a path parameter, responding 400 when it is empty.
func PathParam(w http.ResponseWriter, r *http.Request, name, label string) (string, bool) {
	value := r.PathValue(name)
	if value == "" {
		httputil.RespondError(w, http.StatusBadRequest, label+" is required")
		return "", false
	}
	return value, true
}
