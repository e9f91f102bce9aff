package subst

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

// SpanManager handles trace span lifecycle for template processing.
// Use NewSpanManager for OTel tracing or NoopSpanManager when disabled.
type SpanManager interface {
	// StartProcessSpan starts a span around Template.Process.
	StartProcessSpan(ctx context.Context, name string, version int) (context.Context, trace.Span)

	// EndSpanWithError completes a span, optionally recording an error.
	EndSpanWithError(span trace.Span, err error)
}

// otelSpanManager implements SpanManager using OpenTelemetry.
type otelSpanManager struct {
	tracer trace.Tracer
}

// NewSpanManager returns a SpanManager backed by provider. A nil provider
// uses the global OTel tracer provider.
func NewSpanManager(provider trace.TracerProvider) SpanManager {
	if provider == nil {
		provider = otel.GetTracerProvider()
	}
	return &otelSpanManager{tracer: provider.Tracer(TracerName)}
}

// StartProcessSpan starts a span around Template.Process.
func (m *otelSpanManager) StartProcessSpan(ctx context.Context, name string, version int) (context.Context, trace.Span) {
	return m.tracer.Start(ctx, SpanNameTemplateProcess,
		trace.WithAttributes(
			attribute.String(AttrKeyTemplateName, name),
			attribute.Int(AttrKeyTemplateVersion, version),
		),
		trace.WithSpanKind(trace.SpanKindInternal),
	)
}

// EndSpanWithError completes a span, optionally recording an error.
func (m *otelSpanManager) EndSpanWithError(span trace.Span, err error) {
	if span == nil {
		return
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End()
}

// NoopSpanManager is a SpanManager that does nothing.
type NoopSpanManager struct{}

// Compile-time interface check.
var _ SpanManager = NoopSpanManager{}

var noopSpan = noop.Span{}

// StartProcessSpan returns the context unchanged and a no-op span.
func (NoopSpanManager) StartProcessSpan(ctx context.Context, _ string, _ int) (context.Context, trace.Span) {
	return ctx, noopSpan
}

// EndSpanWithError does nothing.
func (NoopSpanManager) EndSpanWithError(_ trace.Span, _ error) {}
