package api

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/render"
	"github.com/tendant/object-gate/pkg/objectgate"
)

// ErrorResponse is the JSON error envelope
type ErrorResponse struct {
	Error ErrorBody `json:"error"`
}

// ErrorBody names the failure with a stable code and a readable message
type ErrorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// statusFromError maps service errors to an HTTP status and error code
func statusFromError(err error) (int, string) {
	var storageErr *objectgate.StorageError
	switch {
	case errors.Is(err, objectgate.ErrObjectNotFound):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, objectgate.ErrAuthenticationRequired):
		return http.StatusUnauthorized, "authentication_required"
	case errors.Is(err, objectgate.ErrAccessDenied):
		return http.StatusForbidden, "access_denied"
	case errors.Is(err, objectgate.ErrInvalidPolicy):
		return http.StatusBadRequest, "invalid_policy"
	case errors.Is(err, objectgate.ErrUnrecognizedPath):
		return http.StatusBadRequest, "unrecognized_path"
	case errors.Is(err, objectgate.ErrInvalidVisibility):
		return http.StatusBadRequest, "invalid_visibility"
	case errors.Is(err, objectgate.ErrOwnerImmutable):
		return http.StatusConflict, "owner_immutable"
	case errors.Is(err, objectgate.ErrNotConfigured):
		return http.StatusInternalServerError, "not_configured"
	case errors.Is(err, objectgate.ErrUnknownGroupType):
		// a stored policy names a group type this build cannot resolve
		return http.StatusInternalServerError, "unknown_group_type"
	case errors.As(err, &storageErr):
		return http.StatusInternalServerError, "storage_error"
	default:
		return http.StatusInternalServerError, "internal_error"
	}
}

// writeError sends the error envelope for err. Once a guarded response has
// started nothing more is written and the error is only logged.
func writeError(w http.ResponseWriter, r *http.Request, logger *slog.Logger, err error) {
	status, code := statusFromError(err)

	if g, ok := w.(*objectgate.GuardedResponseWriter); ok && g.HeadersSent() {
		logger.Error("Error after response started", "path", r.URL.Path, "status", g.Status(), "error", err)
		return
	}

	message := err.Error()
	switch code {
	case "storage_error", "internal_error":
		// storage details stay in the log
		message = http.StatusText(status)
	}

	if status >= http.StatusInternalServerError {
		logger.Error("Request failed", "method", r.Method, "path", r.URL.Path, "status", status, "error", err)
	} else {
		logger.Debug("Request rejected", "method", r.Method, "path", r.URL.Path, "status", status, "error", err)
	}

	render.Status(r, status)
	render.JSON(w, r, ErrorResponse{Error: ErrorBody{Code: code, Message: message}})
}

func badRequest(w http.ResponseWriter, r *http.Request, code, message string) {
	render.Status(r, http.StatusBadRequest)
	render.JSON(w, r, ErrorResponse{Error: ErrorBody{Code: code, Message: message}})
}
