package tracing

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

// recordSpans installs a provider that keeps every span in memory.
func recordSpans(t *testing.T) *tracetest.InMemoryExporter {
	t.Helper()
	prevTP, prevProp := otel.GetTracerProvider(), otel.GetTextMapPropagator()
	exporter := tracetest.NewInMemoryExporter()
	shutdown := Init(Config{
		SampleRatio: 1,
		Processors:  []sdktrace.SpanProcessor{sdktrace.NewSimpleSpanProcessor(exporter)},
	})
	t.Cleanup(func() {
		_ = shutdown(context.Background())
		otel.SetTracerProvider(prevTP)
		otel.SetTextMapPropagator(prevProp)
	})
	return exporter
}

func serve(status int, path string, header http.Header) *httptest.ResponseRecorder {
	h := Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(status)
	}))
	req := httptest.NewRequest(http.MethodGet, path, nil)
	for k, v := range header {
		req.Header[k] = v
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func attr(attrs []attribute.KeyValue, key string) (attribute.Value, bool) {
	for _, a := range attrs {
		if string(a.Key) == key {
			return a.Value, true
		}
	}
	return attribute.Value{}, false
}

func TestMiddleware_CreatesSpan(t *testing.T) {
	exporter := recordSpans(t)

	rec := serve(http.StatusOK, "/health/ready", nil)

	spans := exporter.GetSpans()
	if len(spans) != 1 {
		t.Fatalf("expected 1 span, got %d", len(spans))
	}
	span := spans[0]
	if span.Name != "GET /health/ready" {
		t.Errorf("expected span name 'GET /health/ready', got %q", span.Name)
	}
	if v, ok := attr(span.Attributes, "http.status_code"); !ok || v.AsInt64() != 200 {
		t.Errorf("expected http.status_code=200, got %v", v)
	}
	if v, ok := attr(span.Attributes, "http.path"); !ok || v.AsString() != "/health/ready" {
		t.Errorf("expected http.path=/health/ready, got %v", v)
	}
	if got := rec.Header().Get("X-Trace-Id"); got != span.SpanContext.TraceID().String() {
		t.Errorf("X-Trace-Id = %q, want %q", got, span.SpanContext.TraceID())
	}
}

func TestMiddleware_PropagatesTraceContext(t *testing.T) {
	exporter := recordSpans(t)

	serve(http.StatusOK, "/metrics", http.Header{
		"Traceparent": {"00-4bf92f3577b34da6a3ce929d0e0e4736-00f067aa0ba902b7-01"},
	})

	spans := exporter.GetSpans()
	if len(spans) != 1 {
		t.Fatalf("expected 1 span, got %d", len(spans))
	}
	if got := spans[0].SpanContext.TraceID().String(); got != "4bf92f3577b34da6a3ce929d0e0e4736" {
		t.Errorf("expected propagated trace id, got %s", got)
	}
}

func TestMiddleware_ErrorStatus(t *testing.T) {
	tests := []struct {
		status    int
		wantError bool
	}{
		{http.StatusServiceUnavailable, true},
		{http.StatusNotFound, false},
	}
	for _, tt := range tests {
		t.Run(http.StatusText(tt.status), func(t *testing.T) {
			exporter := recordSpans(t)

			serve(tt.status, "/health/channels", nil)

			spans := exporter.GetSpans()
			if len(spans) != 1 {
				t.Fatalf("expected 1 span, got %d", len(spans))
			}
			_, hasError := attr(spans[0].Attributes, "error")
			if hasError != tt.wantError {
				t.Errorf("error attribute present = %v, want %v", hasError, tt.wantError)
			}
			if tt.wantError && spans[0].Status.Code != codes.Error {
				t.Errorf("expected span status Error, got %v", spans[0].Status.Code)
			}
		})
	}
}
