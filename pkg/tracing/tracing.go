// Package tracing is a thin layer over OpenTelemetry. The process installs a
// real exporter out-of-band (or keeps the default no-op provider); components
// only ever ask for spans through this package so span naming stays uniform.
package tracing

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/contentlens/contentlens"

// StartStage opens a span for a pipeline stage, pre-tagged with tenant labels.
func StartStage(ctx context.Context, stage, tenant, workspace string) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, "pipeline."+stage,
		trace.WithAttributes(
			attribute.String("stage", stage),
			attribute.String("tenant", tenant),
			attribute.String("workspace", workspace),
		))
}

// StartSpan opens a generic span.
func StartSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, name, trace.WithAttributes(attrs...))
}

// AddEvent records an event on the span carried by ctx, if any.
func AddEvent(ctx context.Context, name string, attrs ...attribute.KeyValue) {
	trace.SpanFromContext(ctx).AddEvent(name, trace.WithAttributes(attrs...))
}

// SetRetryAttempt annotates the current span with a retry attempt number.
func SetRetryAttempt(ctx context.Context, attempt int) {
	trace.SpanFromContext(ctx).SetAttributes(attribute.Int("retry.attempt", attempt))
}

// SetRetryGiveUp marks the current span as having exhausted its retry budget.
func SetRetryGiveUp(ctx context.Context) {
	trace.SpanFromContext(ctx).SetAttributes(attribute.Bool("retry.give_up", true))
}
