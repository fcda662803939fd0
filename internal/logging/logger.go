// Package logging provides structured logging configuration using log/slog.
//
// This package integrates with chi's RequestID middleware to propagate
// request IDs through structured log entries. Imports run after the request
// that started them has returned, so the import id and originating request
// id are carried on the import's own context via [WithImport].
package logging

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/go-chi/chi/v5/middleware"
)

type ctxKey int

const (
	importIDKey ctxKey = iota
	requestIDKey
)

// Setup configures the global slog logger based on level and format.
//
// Level values: "debug", "info", "warn", "error" (default: "info")
// Format values: "text", "json" (default: "text")
func Setup(level, format string) {
	slog.SetDefault(New(os.Stdout, level, format))
}

// New builds a logger writing to w.
func New(w io.Writer, level, format string) *slog.Logger {
	opts := &slog.HandlerOptions{
		Level: parseLevel(level),
	}

	var handler slog.Handler
	if strings.ToLower(format) == "json" {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}
	return slog.New(handler)
}

// parseLevel converts a string log level to slog.Level.
func parseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// WithImport returns a context that tags every log entry made through
// FromContext with importID. The chi request id of ctx, if any, is kept so
// that a detached import context still correlates with its request.
func WithImport(ctx context.Context, importID string) context.Context {
	if reqID := middleware.GetReqID(ctx); reqID != "" {
		ctx = context.WithValue(ctx, requestIDKey, reqID)
	}
	return context.WithValue(ctx, importIDKey, importID)
}

// ImportID returns the import id stored by WithImport.
func ImportID(ctx context.Context) string {
	id, _ := ctx.Value(importIDKey).(string)
	return id
}

// FromContext returns a logger enriched with request context.
//
// When called with a request context that contains a chi RequestID,
// the returned logger automatically includes request_id in all log entries.
//
//	logger := logging.FromContext(r.Context())
//	logger.Info("import accepted", "kind", kind)
func FromContext(ctx context.Context) *slog.Logger {
	logger := slog.Default()

	reqID := middleware.GetReqID(ctx)
	if reqID == "" {
		reqID, _ = ctx.Value(requestIDKey).(string)
	}
	if reqID != "" {
		logger = logger.With("request_id", reqID)
	}
	if id := ImportID(ctx); id != "" {
		logger = logger.With("import_id", id)
	}

	return logger
}

// WithFields returns a logger with additional structured fields.
//
//	l := logging.WithFields(ctx, "listing_row", row, "phase", "persisting")
//	l.Info("listing committed", "listing_id", id)
func WithFields(ctx context.Context, args ...any) *slog.Logger {
	return FromContext(ctx).With(args...)
}
