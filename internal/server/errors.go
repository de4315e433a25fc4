package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/desertthunder/melophiliacs/internal/session"
	"github.com/desertthunder/melophiliacs/internal/shared"
	"github.com/go-chi/chi/v5/middleware"
)

type errorBody struct {
	Error string `json:"error"`
}

// statusFor maps an error onto a response status and a message safe to show clients.
func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, shared.ErrProviderDenied):
		return http.StatusBadRequest, "authorization was denied"
	case errors.Is(err, shared.ErrMissingParameters):
		return http.StatusBadRequest, "missing code or state"
	case errors.Is(err, shared.ErrUnauthenticated):
		return http.StatusUnauthorized, "not authenticated"
	case errors.Is(err, shared.ErrInvalidSession):
		return http.StatusUnauthorized, "invalid or expired session"
	case errors.Is(err, shared.ErrRefreshDenied):
		return http.StatusUnauthorized, "session expired, please log in again"
	case errors.Is(err, shared.ErrCSRFStateMissing),
		errors.Is(err, shared.ErrCSRFStateMalformed),
		errors.Is(err, shared.ErrCSRFMismatch):
		return http.StatusForbidden, "invalid login state"
	case errors.Is(err, shared.ErrUpstream),
		errors.Is(err, shared.ErrUpstreamUnreachable),
		errors.Is(err, shared.ErrIncompleteTokenResponse):
		return http.StatusBadGateway, "spotify request failed"
	default:
		return http.StatusInternalServerError, "internal server error"
	}
}

// writeError logs err and writes its mapped status with a generic message.
//
// A rejected refresh or unknown session also expires the session cookie.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status, msg := statusFor(err)

	if errors.Is(err, shared.ErrRefreshDenied) || errors.Is(err, shared.ErrInvalidSession) {
		session.ClearCookie(w, session.CookieName, s.cookies)
	}

	kv := []any{
		"status", status,
		"path", r.URL.Path,
		"request_id", middleware.GetReqID(r.Context()),
		"session", session.Mask(session.TokenFromRequest(r)),
		"error", err,
	}
	if status >= http.StatusInternalServerError {
		s.logger.Error("request failed", kv...)
	} else {
		s.logger.Debug("request rejected", kv...)
	}

	writeJSON(w, status, errorBody{Error: msg})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
