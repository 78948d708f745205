package httpx

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/firi193/lucid/internal/repository"
	"github.com/firi193/lucid/internal/service/auth"
	"github.com/firi193/lucid/internal/service/post"
)

// writeJSON writes JSON response with status code.
func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

// writeError sends an error message.
func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// statusFor maps service errors onto HTTP status codes and client-safe messages.
func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, auth.ErrDuplicateIdentity):
		return http.StatusConflict, "email already registered"
	case errors.Is(err, auth.ErrInvalidInput):
		return http.StatusBadRequest, "invalid email or password format"
	case errors.Is(err, auth.ErrInvalidCredentials):
		return http.StatusUnauthorized, "invalid credentials"
	case errors.Is(err, auth.ErrInvalidCredential):
		return http.StatusUnauthorized, "authentication failed"
	case errors.Is(err, post.ErrInvalidContent):
		return http.StatusBadRequest, "content must be non-empty UTF-8 text within the size limit"
	case errors.Is(err, post.ErrNotFound):
		return http.StatusNotFound, "post not found"
	case errors.Is(err, repository.ErrUnavailable):
		return http.StatusServiceUnavailable, "storage unavailable"
	default:
		return http.StatusInternalServerError, "internal error"
	}
}

func (r *Router) writeServiceError(w http.ResponseWriter, req *http.Request, err error) {
	code, msg := statusFor(err)
	if code >= http.StatusInternalServerError {
		r.logger.Error("request failed", "path", req.URL.Path, "error", err)
	}
	writeError(w, code, msg)
}

