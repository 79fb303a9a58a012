package tracing

import (
	"context"
	"os"
	"strconv"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

// Config controls span sampling.
type Config struct {
	// SampleRatio is the fraction of root spans recorded, in [0, 1].
	SampleRatio float64
	// Processors receive finished spans. Exporters are attached here.
	Processors []sdktrace.SpanProcessor
}

// ConfigFromEnv reads TRACE_SAMPLE_RATIO (default 1). Out of range values
// are clamped.
func ConfigFromEnv() Config {
	ratio := 1.0
	if v, err := strconv.ParseFloat(os.Getenv("TRACE_SAMPLE_RATIO"), 64); err == nil {
		ratio = min(max(v, 0), 1)
	}
	return Config{SampleRatio: ratio}
}

// Init registers a global tracer provider and returns its shutdown func.
func Init(cfg Config) func(context.Context) error {
	opts := []sdktrace.TracerProviderOption{
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(cfg.SampleRatio))),
	}
	for _, p := range cfg.Processors {
		opts = append(opts, sdktrace.WithSpanProcessor(p))
	}
	tp := sdktrace.NewTracerProvider(opts...)

	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))
	return tp.Shutdown
}
