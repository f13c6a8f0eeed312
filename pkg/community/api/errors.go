package api

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/render"
	"github.com/tendant/community-admin/pkg/community"
)

// ErrorResponse is the body of every failed request
type ErrorResponse struct {
	Error string `json:"error"`
}

// statusFor maps an error from the community package onto an HTTP status
// and the message safe to show the caller.
func statusFor(err error) (int, string) {
	var nf *community.NotFoundError
	switch {
	case errors.As(err, &nf):
		if nf.Message != "" {
			return http.StatusNotFound, nf.Message
		}
		return http.StatusNotFound, "not found"
	case errors.Is(err, community.ErrInvalidInput),
		errors.Is(err, community.ErrInvalidExpiry),
		errors.Is(err, community.ErrInvalidQuery):
		return http.StatusBadRequest, err.Error()
	case errors.Is(err, community.ErrDuplicateID), errors.Is(err, community.ErrDuplicateMedia):
		return http.StatusConflict, err.Error()
	default:
		return http.StatusInternalServerError, "internal server error"
	}
}

// writeError renders err as JSON. Only 5xx causes are logged; their detail
// never reaches the caller.
func writeError(w http.ResponseWriter, r *http.Request, logger *slog.Logger, err error) {
	status, message := statusFor(err)
	if status >= http.StatusInternalServerError {
		logger.ErrorContext(r.Context(), "Request failed", "method", r.Method, "path", r.URL.Path, "error", err)
	}
	writeJSONError(w, r, status, message)
}

func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	writeError(w, r, h.logger, err)
}

func writeJSONError(w http.ResponseWriter, r *http.Request, status int, message string) {
	render.Status(r, status)
	render.JSON(w, r, ErrorResponse{Error: message})
}
