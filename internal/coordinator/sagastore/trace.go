package sagastore

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/trace"
)

// TraceInfo holds the OTel identifiers extracted from a context.
type TraceInfo struct {
	// TraceID is the W3C trace ID (32 lowercase hex chars).
	// Empty string if no active span is found in the context.
	TraceID string

	// SpanID is the W3C span ID (16 lowercase hex chars).
	SpanID string
}

// ExtractTraceInfo reads the active OpenTelemetry span from ctx and returns
// its trace_id and span_id as hex strings. Both are empty when the context
// carries no valid span, as in unit tests.
func ExtractTraceInfo(ctx context.Context) TraceInfo {
	sc := trace.SpanFromContext(ctx).SpanContext()
	if !sc.IsValid() {
		return TraceInfo{}
	}
	return TraceInfo{
		TraceID: sc.TraceID().String(),
		SpanID:  sc.SpanID().String(),
	}
}

// NewStep builds a history entry stamped with the current time and the
// trace id found in ctx. Backends call it so every step is traceable.
func NewStep(ctx context.Context, name StepName, status StepStatus, opts ...StepOption) Step {
	s := Step{
		Step:      name,
		Status:    status,
		Timestamp: time.Now().UTC(),
		TraceID:   ExtractTraceInfo(ctx).TraceID,
	}
	for _, opt := range opts {
		opt(&s)
	}
	return s
}
