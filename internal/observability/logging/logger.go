package logging

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"
)

// Options configures New.
type Options struct {
	Level slog.Level
	// Format is "json" (default) or "text".
	Format string
	// Writer defaults to os.Stdout.
	Writer io.Writer
	// Service, when set, is attached to every record.
	Service string
}

// OptionsFromEnv reads LOG_LEVEL (debug, info, warn, error) and LOG_FORMAT
// (json, text). Unknown values fall back to info and json.
func OptionsFromEnv() Options {
	return Options{
		Level:  parseLevel(os.Getenv("LOG_LEVEL")),
		Format: strings.ToLower(os.Getenv("LOG_FORMAT")),
	}
}

func parseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
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

// NewLogger creates the worker logger from the environment.
func NewLogger() *slog.Logger {
	opts := OptionsFromEnv()
	opts.Service = "daily-briefing-worker"
	return New(opts)
}

// New creates a logger. Error attributes are passed through SanitizeError so
// transport credentials embedded in error strings never reach the output.
func New(opts Options) *slog.Logger {
	w := opts.Writer
	if w == nil {
		w = os.Stdout
	}

	handlerOpts := &slog.HandlerOptions{
		Level: opts.Level,
		// Source location is only useful when debugging.
		AddSource:   opts.Level <= slog.LevelDebug,
		ReplaceAttr: sanitizeErrorAttr,
	}

	var handler slog.Handler
	if opts.Format == "text" {
		handler = slog.NewTextHandler(w, handlerOpts)
	} else {
		handler = slog.NewJSONHandler(w, handlerOpts)
	}

	logger := slog.New(handler)
	if opts.Service != "" {
		logger = logger.With(slog.String("service", opts.Service))
	}
	return logger
}

func sanitizeErrorAttr(_ []string, a slog.Attr) slog.Attr {
	if a.Value.Kind() != slog.KindAny {
		return a
	}
	if err, ok := a.Value.Any().(error); ok {
		return slog.String(a.Key, SanitizeError(err))
	}
	return a
}

// WithRequestID returns a logger carrying the request id from ctx, or logger
// unchanged when there is none.
func WithRequestID(ctx context.Context, logger *slog.Logger) *slog.Logger {
	reqID := RequestIDFromContext(ctx)
	if reqID == "" {
		return logger
	}
	return logger.With(slog.String("request_id", reqID))
}

// ContextWithRequestID stores a request or job id in the context.
func ContextWithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDContextKey, id)
}

// RequestIDFromContext returns the id stored by ContextWithRequestID, or "".
func RequestIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(requestIDContextKey).(string)
	return id
}

// MaskSecret hides all but the last four characters of a credential.
func MaskSecret(secret string) string {
	if len(secret) <= 4 {
		return strings.Repeat("*", len(secret))
	}
	return strings.Repeat("*", 8) + secret[len(secret)-4:]
}

type contextKey string

const requestIDContextKey contextKey = "request_id"
