// Package observability groups the worker's logging, metrics and tracing.
//
// Subpackages:
//   - logging: slog JSON logger, request and job ids on the context, secret masking
//   - metrics: HTTP and database metrics shared by the worker
//   - tracing: OpenTelemetry provider setup and HTTP middleware
//
//	logger := logging.NewLogger()
//	shutdown := tracing.Init(tracing.ConfigFromEnv())
//	defer shutdown(context.Background())
package observability
