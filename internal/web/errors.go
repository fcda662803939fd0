package web

// errors.go provides unified error response handling for the web layer.
//
// Every error is logged with its technical detail and the request ID, and
// returned to the client as a core.ErrorInfo: a stable code, a user-facing
// message, the suggested action and, for validation failures, the
// offending rows.

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/JonMunkholm/listing-import/internal/core"
	"github.com/JonMunkholm/listing-import/internal/jobs"
	"github.com/JonMunkholm/listing-import/internal/logging"
)

// ErrorResponse is the JSON body of every error reply.
type ErrorResponse struct {
	Error     core.ErrorInfo `json:"error"`
	RequestID string         `json:"requestId,omitempty"`
}

// respondError maps err to a status and an ErrorInfo and writes it.
func respondError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	info := core.Describe(err, "", 0)
	if status == http.StatusInternalServerError {
		// Driver messages stay in the server log.
		info.Detail = ""
	}

	logging.FromContext(r.Context()).Warn("request error",
		"path", r.URL.Path,
		"method", r.Method,
		"status", status,
		"code", info.Code,
		"error", err.Error(),
	)

	writeJSONStatus(w, status, ErrorResponse{Error: info, RequestID: middleware.GetReqID(r.Context())})
}

// writeError writes a plain coded error that did not come from core.
func writeError(w http.ResponseWriter, r *http.Request, status int, code, message string) {
	writeJSONStatus(w, status, ErrorResponse{
		Error:     core.ErrorInfo{Code: code, Message: message},
		RequestID: middleware.GetReqID(r.Context()),
	})
}

// statusFor picks the HTTP status of an error.
func statusFor(err error) int {
	var (
		verr *core.ValidationError
		cerr *core.ConfigurationError
	)
	switch {
	case errors.As(err, &cerr):
		return http.StatusBadRequest
	case errors.As(err, &verr):
		return http.StatusUnprocessableEntity
	case errors.Is(err, core.ErrTooManyImports):
		return http.StatusTooManyRequests
	case errors.Is(err, jobs.ErrNotFound):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

// writeJSON encodes v as JSON with status 200.
func writeJSON(w http.ResponseWriter, v any) {
	writeJSONStatus(w, http.StatusOK, v)
}

// writeJSONStatus encodes v as JSON and writes it to w.
// Encoding errors are only logged since headers are already sent.
func writeJSONStatus(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("json encode error", "error", err)
	}
}
