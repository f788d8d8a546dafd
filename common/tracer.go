package common

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

type TracerSpanContext interface {
	GetTraceID() string
	GetSpanID() string
	GetParentSpanID() string
}

// TracerSpan is owned by the code that started it. All mutators are no-ops once
// the span is finished.
type TracerSpan interface {
	GetContext() TracerSpanContext
	SetCarrier(object interface{}) TracerSpan
	SetTag(key string, value interface{}) TracerSpan
	SetAttributes(kv ...attribute.KeyValue) TracerSpan
	AddEvent(name string, kv ...attribute.KeyValue) TracerSpan
	RecordException(err error) TracerSpan
	SetStatus(code codes.Code, message string) TracerSpan
	Error(err error) TracerSpan
	IsRecording() bool
	Finish()
}

type Tracer interface {
	StartSpan(ctx context.Context, name string, opts ...SpanOption) (context.Context, TracerSpan)
	CurrentSpan(ctx context.Context) TracerSpan
	Stop()
}

// SpanExporter is a sink for finished spans. ExportSpans may fail independently of
// other sinks; the fan-out never lets that failure reach the span owner.
type SpanExporter interface {
	Name() string
	ExportSpans(ctx context.Context, spans []*SpanData) error
	Stop()
}
