package tracing

import (
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
)

// TracerName identifies spans created by the daily briefing pipeline.
const TracerName = "daily-briefing"

// GetTracer returns the pipeline tracer from the currently registered provider.
//
//	ctx, span := tracing.GetTracer().Start(ctx, "schedule.Scan")
//	defer span.End()
func GetTracer() trace.Tracer {
	return otel.Tracer(TracerName)
}
