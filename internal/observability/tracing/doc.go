// Package tracing wires OpenTelemetry into the briefing worker.
//
// Init installs the global tracer provider and the W3C trace-context
// propagator. Pipeline code starts spans through GetTracer, and Middleware
// traces the worker's HTTP endpoints.
//
//	shutdown := tracing.Init(tracing.ConfigFromEnv())
//	defer shutdown(context.Background())
package tracing
