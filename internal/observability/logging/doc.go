// Package logging builds the worker's slog logger and carries request ids
// through contexts.
//
// LOG_LEVEL selects the level (debug, info, warn, error) and LOG_FORMAT the
// handler (json or text). Error attributes are masked with SanitizeError, so
//
//	logger.Warn("send failed", slog.Any("error", err))
//
// never prints a bot token or a URL password. Consumers key their log lines
// by delivery with
//
//	ctx = logging.ContextWithRequestID(ctx, delivery.DedupKey())
//	logger := logging.WithRequestID(ctx, base)
package logging
