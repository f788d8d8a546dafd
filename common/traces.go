package common

import (
	"context"
	"math/rand"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/uber/jaeger-client-go/utils"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/propagation"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
)

type TracesOptions struct {
	ServiceName   string
	Version       string
	Environment   string
	Attributes    string
	QueueSize     int
	BatchSize     int
	FlushInterval time.Duration
	ExportTimeout time.Duration
}

type spanConfig struct {
	parent     TracerSpan
	carrier    interface{}
	attributes []attribute.KeyValue
	newRoot    bool
}

type SpanOption func(*spanConfig)

type Traces struct {
	options      TracesOptions
	logger       Logger
	exporters    *Exporters
	resource     []attribute.KeyValue
	randomNumber func() uint64
	newTraceID   func() (trace.TraceID, error)
}

// WithParent makes span the parent, ignoring any ambient span.
func WithParent(span TracerSpan) SpanOption {
	return func(c *spanConfig) {
		c.parent = span
	}
}

// WithCarrier continues a remote trace from http.Header or map[string]string.
func WithCarrier(carrier interface{}) SpanOption {
	return func(c *spanConfig) {
		c.carrier = carrier
	}
}

func WithAttributes(kv ...attribute.KeyValue) SpanOption {
	return func(c *spanConfig) {
		c.attributes = append(c.attributes, kv...)
	}
}

func WithNewRoot() SpanOption {
	return func(c *spanConfig) {
		c.newRoot = true
	}
}

func (ts *Traces) Register(e SpanExporter) {

	if ts == nil || e == nil {
		return
	}
	ts.exporters.Register(e)
}

func (ts *Traces) CurrentSpan(ctx context.Context) TracerSpan {
	return SpanFromContext(ctx)
}

func (ts *Traces) StartSpan(ctx context.Context, name string, opts ...SpanOption) (context.Context, TracerSpan) {

	if ctx == nil {
		ctx = context.Background()
	}
	if ts == nil {
		return ctx, NoopSpan{}
	}

	cfg := spanConfig{}
	for _, o := range opts {
		if o != nil {
			o(&cfg)
		}
	}

	if IsEmpty(name) {
		name, _, _ = GetCallerInfo(3)
	}

	traceID, parentID, ok := ts.parentOf(ctx, cfg)
	var spanID trace.SpanID
	if ok {
		spanID = ts.newSpanID()
	} else {
		id, err := ts.newTraceID()
		if err != nil {
			ts.logger.Error("Traces couldn't generate trace id: %v", err)
			return ctx, NoopSpan{}
		}
		traceID = id
		spanID = rootSpanID(id)
	}

	span := &TracesSpan{
		traces:     ts,
		name:       name,
		traceID:    traceID,
		spanID:     spanID,
		parentID:   parentID,
		startTime:  time.Now(),
		attributes: make(map[attribute.Key]attribute.Value),
	}
	span.SetAttributes(cfg.attributes...)

	return ContextWithSpan(ctx, span), span
}

// parentOf resolves the parent in order: explicit parent, remote carrier, ambient span.
func (ts *Traces) parentOf(ctx context.Context, cfg spanConfig) (trace.TraceID, trace.SpanID, bool) {

	if cfg.parent != nil {
		if traceID, spanID, ok := spanIDs(cfg.parent); ok {
			return traceID, spanID, true
		}
	}

	if cfg.carrier != nil {
		if sc := extractCarrier(cfg.carrier); sc.IsValid() {
			return sc.TraceID(), sc.SpanID(), true
		}
	}

	if !cfg.newRoot {
		if span := SpanFromContext(ctx); span != nil {
			if traceID, spanID, ok := spanIDs(span); ok {
				return traceID, spanID, true
			}
		}
	}
	return trace.TraceID{}, trace.SpanID{}, false
}

func spanIDs(span TracerSpan) (trace.TraceID, trace.SpanID, bool) {

	if span == nil || !span.IsRecording() {
		return trace.TraceID{}, trace.SpanID{}, false
	}

	if tss, ok := span.(*TracesSpan); ok {
		return tss.traceID, tss.spanID, true
	}

	sc := span.GetContext()
	if sc == nil {
		return trace.TraceID{}, trace.SpanID{}, false
	}
	traceID, err := trace.TraceIDFromHex(sc.GetTraceID())
	if err != nil {
		return trace.TraceID{}, trace.SpanID{}, false
	}
	spanID, err := trace.SpanIDFromHex(sc.GetSpanID())
	if err != nil {
		return trace.TraceID{}, trace.SpanID{}, false
	}
	return traceID, spanID, true
}

func extractCarrier(carrier interface{}) trace.SpanContext {

	var tc propagation.TextMapCarrier
	switch c := carrier.(type) {
	case http.Header:
		tc = propagation.HeaderCarrier(c)
	case map[string]string:
		tc = propagation.MapCarrier(c)
	case propagation.TextMapCarrier:
		tc = c
	default:
		return trace.SpanContext{}
	}

	ctx := propagation.TraceContext{}.Extract(context.Background(), tc)
	return trace.SpanContextFromContext(ctx)
}

func (ts *Traces) newSpanID() trace.SpanID {

	for {
		if n := ts.randomNumber(); n != 0 {
			return SpanIDFromUint64(n)
		}
	}
}

func (ts *Traces) Stop() {

	if ts == nil {
		return
	}
	ts.exporters.Stop()
}

func randomTraceID() (trace.TraceID, error) {

	u, err := uuid.NewRandom()
	if err != nil {
		return trace.TraceID{}, err
	}
	return trace.TraceID(u), nil
}

func tracesResource(options TracesOptions) []attribute.KeyValue {

	var kv []attribute.KeyValue
	if !IsEmpty(options.ServiceName) {
		kv = append(kv, semconv.ServiceNameKey.String(options.ServiceName))
	}
	if !IsEmpty(options.Version) {
		kv = append(kv, semconv.ServiceVersionKey.String(options.Version))
	}
	if !IsEmpty(options.Environment) {
		kv = append(kv, semconv.DeploymentEnvironmentKey.String(options.Environment))
	}

	attributes := GetKeyValues(options.Attributes)
	keys := make([]string, 0, len(attributes))
	for k := range attributes {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		kv = append(kv, attribute.String(k, attributes[k]))
	}
	return kv
}

func NewTraces(options TracesOptions, logger Logger, metrics *Metrics) *Traces {

	if logger == nil {
		logger = NewLogs()
	}
	if metrics == nil {
		metrics = NewMetrics()
	}

	seedGenerator := utils.NewRand(time.Now().UnixNano())
	pool := sync.Pool{
		New: func() interface{} {
			return rand.NewSource(seedGenerator.Int63())
		},
	}

	ts := &Traces{
		options:    options,
		logger:     logger,
		resource:   tracesResource(options),
		newTraceID: randomTraceID,
	}
	ts.exporters = NewExporters(options, logger, metrics)

	ts.randomNumber = func() uint64 {
		generator := pool.Get().(rand.Source)
		number := uint64(generator.Int63())
		pool.Put(generator)
		return number
	}
	return ts
}
