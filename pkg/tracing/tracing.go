// Package tracing provides otel span helpers used across the service.
package tracing

import (
	"context"

	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

var tracer trace.Tracer

// SetTracer sets the tracer used by StartSpan. Called once from Init.
func SetTracer(t trace.Tracer) {
	tracer = t
}

// StartSpan starts a span named after the operation. When no tracer is
// configured the context passes through untouched.
func StartSpan(ctx context.Context, spanName string) (context.Context, trace.Span) {
	if tracer == nil {
		return ctx, trace.SpanFromContext(ctx)
	}
	return tracer.Start(ctx, spanName)
}

// GetTraceID returns the active trace ID, or "" when no span is recording.
func GetTraceID(ctx context.Context) string {
	sc := trace.SpanFromContext(ctx).SpanContext()
	if !sc.IsValid() {
		return ""
	}
	return sc.TraceID().String()
}

// GetTraceParent returns the W3C traceparent value for the active span
// so downstream consumers can join the trace.
func GetTraceParent(ctx context.Context) string {
	if !trace.SpanFromContext(ctx).SpanContext().IsValid() {
		return ""
	}
	carrier := propagation.MapCarrier{}
	propagation.TraceContext{}.Inject(ctx, carrier)
	return carrier.Get("traceparent")
}
