package handler

import (
	"errors"
	"net/http"

	"inkwell/internal/domain"
	"inkwell/internal/httputil"
)

// handleError converts domain errors to HTTP responses
func handleError(w http.ResponseWriter, err error) {
	var httpErr domain.HTTPError

	switch {
	case errors.Is(err, domain.ErrValidation):
		httputil.RespondError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, domain.ErrNotFound):
		httputil.RespondError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, domain.ErrUnauthorized):
		httputil.RespondError(w, http.StatusUnauthorized, err.Error())
	case errors.Is(err, domain.ErrForbidden):
		httputil.RespondError(w, http.StatusForbidden, err.Error())
	case errors.Is(err, domain.ErrTransient):
		httputil.RespondError(w, http.StatusServiceUnavailable, err.Error())
	case errors.As(err, &httpErr):
		httputil.RespondError(w, httpErr.StatusCode(), httpErr.Error())
	default:
		httputil.RespondError(w, http.StatusInternalServerError, "internal server error")
	}
}

// requireActor extracts the authenticated actor from the request context,
// writing a 401 if it is missing.
func requireActor(w http.ResponseWriter, r *http.Request) (string, bool) {
	actorID := httputil.GetActorID(r)
	if actorID == "" {
		httputil.RespondError(w, http.StatusUnauthorized, "not authenticated")
		return "", false
	}
	return actorID, true
}
