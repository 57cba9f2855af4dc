// Package logging provides structured logging configuration using log/slog.
//
// Logs go to stderr so that commands streaming data to stdout (CSV export)
// stay pipeable. Request-scoped loggers pick up chi's request id.
package logging

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/go-chi/chi/v5/middleware"
)

// Setup configures the global slog logger based on level and format.
//
// Level values: "debug", "info", "warn", "error" (default: "info")
// Format values: "text", "json" (default: "text")
func Setup(level, format string) {
	slog.SetDefault(New(os.Stderr, level, format))
}

// New builds a logger writing to w. Tests use it with a bytes.Buffer.
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

// FromContext returns a logger enriched with request context.
//
// When called with a request context that contains a chi RequestID,
// the returned logger includes request_id in all log entries.
func FromContext(ctx context.Context) *slog.Logger {
	logger := slog.Default()

	if reqID := middleware.GetReqID(ctx); reqID != "" {
		logger = logger.With("request_id", reqID)
	}

	return logger
}

// WithFields returns a logger with additional structured fields.
//
// Usage:
//
//	buildLogger := logging.WithFields(ctx,
//	    "backend", backend.Name(),
//	    "fast", opts.UseFastBackend,
//	)
//	buildLogger.Info("build started")
func WithFields(ctx context.Context, args ...any) *slog.Logger {
	return FromContext(ctx).With(args...)
}

// Stage logs the start of a pipeline stage and returns a function that logs
// its completion with the elapsed time. Extra attributes passed to the
// returned function are appended to the completion entry.
//
//	done := logging.Stage(logger, "decode")
//	...
//	done("rows", t.Len())
func Stage(logger *slog.Logger, name string) func(args ...any) {
	start := time.Now()
	logger.Debug("stage started", "stage", name)
	return func(args ...any) {
		attrs := append([]any{"stage", name, "duration_ms", time.Since(start).Milliseconds()}, args...)
		logger.Info("stage completed", attrs...)
	}
}
