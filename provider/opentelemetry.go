package provider

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/devopsext/weightapi/common"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/sdk/instrumentation"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
)

const opentelemetryScope = "github.com/devopsext/weightapi"

type OpentelemetryOptions struct {
	ServiceName string
	Version     string
	Environment string
	Attributes  string
}

type OpentelemetryTracerOptions struct {
	OpentelemetryOptions
	AgentHost string
	AgentPort int
	Protocol  string
}

type OpentelemetryMeterOptions struct {
	OpentelemetryOptions
	AgentHost     string
	AgentPort     int
	Prefix        string
	CollectPeriod int64
}

type OpentelemetryTracer struct {
	options  OpentelemetryTracerOptions
	logger   common.Logger
	exporter sdktrace.SpanExporter
	resource *resource.Resource
	scope    instrumentation.Scope
}

type OpentelemetryCounter struct {
	counter    metric.Int64Counter
	attributes metric.MeasurementOption
}

type OpentelemetryGauge struct {
	gauge      metric.Float64Gauge
	attributes metric.MeasurementOption
}

type OpentelemetryMeter struct {
	options  OpentelemetryMeterOptions
	logger   common.Logger
	provider *sdkmetric.MeterProvider
	meter    metric.Meter
	mu       sync.Mutex
	counters map[string]metric.Int64Counter
	gauges   map[string]metric.Float64Gauge
}

func (ott *OpentelemetryTracer) Name() string {
	return "opentelemetry"
}

func opentelemetryEvents(s *common.SpanData) []sdktrace.Event {

	var events []sdktrace.Event
	for _, e := range s.Events {
		events = append(events, sdktrace.Event{
			Name:       e.Name,
			Time:       e.Time,
			Attributes: e.Attributes,
		})
	}
	for _, e := range s.Exceptions {
		events = append(events, sdktrace.Event{
			Name: semconv.ExceptionEventName,
			Time: e.Time,
			Attributes: []attribute.KeyValue{
				semconv.ExceptionTypeKey.String(e.Type),
				semconv.ExceptionMessageKey.String(e.Message),
				semconv.ExceptionStacktraceKey.String(e.Stacktrace),
			},
		})
	}
	return events
}

func opentelemetryStatus(s *common.SpanData) sdktrace.Status {

	status := sdktrace.Status{Code: s.Status}
	if s.Status == codes.Error {
		status.Description = s.StatusMessage
	}
	return status
}

func (ott *OpentelemetryTracer) spanStub(s *common.SpanData) tracetest.SpanStub {

	stub := tracetest.SpanStub{
		Name: s.Name,
		SpanContext: trace.NewSpanContext(trace.SpanContextConfig{
			TraceID:    s.TraceID,
			SpanID:     s.SpanID,
			TraceFlags: trace.FlagsSampled,
		}),
		SpanKind:             trace.SpanKindInternal,
		StartTime:            s.StartTime,
		EndTime:              s.EndTime,
		Attributes:           s.Attributes,
		Events:               opentelemetryEvents(s),
		Status:               opentelemetryStatus(s),
		Resource:             ott.resource,
		InstrumentationScope: ott.scope,
	}

	if s.IsRoot() {
		stub.SpanKind = trace.SpanKindServer
	} else {
		stub.Parent = trace.NewSpanContext(trace.SpanContextConfig{
			TraceID:    s.TraceID,
			SpanID:     s.ParentSpanID,
			TraceFlags: trace.FlagsSampled,
		})
	}
	return stub
}

func (ott *OpentelemetryTracer) ExportSpans(ctx context.Context, spans []*common.SpanData) error {

	stubs := make(tracetest.SpanStubs, 0, len(spans))
	for _, s := range spans {
		stubs = append(stubs, ott.spanStub(s))
	}
	return ott.exporter.ExportSpans(ctx, stubs.Snapshots())
}

func (ott *OpentelemetryTracer) Stop() {

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := ott.exporter.Shutdown(ctx); err != nil {
		ott.logger.Error(err)
	}
}

func opentelemetryResource(options OpentelemetryOptions) (*resource.Resource, error) {

	kv := []attribute.KeyValue{
		semconv.ServiceNameKey.String(options.ServiceName),
	}
	if !common.IsEmpty(options.Version) {
		kv = append(kv, semconv.ServiceVersionKey.String(options.Version))
	}
	if !common.IsEmpty(options.Environment) {
		kv = append(kv, semconv.DeploymentEnvironmentKey.String(options.Environment))
	}

	attributes := common.GetKeyValues(options.Attributes)
	keys := make([]string, 0, len(attributes))
	for k := range attributes {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		kv = append(kv, attribute.String(k, attributes[k]))
	}

	return resource.New(context.Background(),
		resource.WithSchemaURL(semconv.SchemaURL),
		resource.WithAttributes(kv...),
	)
}

func newOpentelemetryTraceExporter(options OpentelemetryTracerOptions) (sdktrace.SpanExporter, error) {

	ctx := context.Background()
	endpoint := fmt.Sprintf("%s:%d", options.AgentHost, options.AgentPort)

	switch strings.ToLower(options.Protocol) {
	case "http":
		return otlptracehttp.New(ctx,
			otlptracehttp.WithInsecure(),
			otlptracehttp.WithEndpoint(endpoint),
		)
	default:
		return otlptracegrpc.New(ctx,
			otlptracegrpc.WithInsecure(),
			otlptracegrpc.WithEndpoint(endpoint),
		)
	}
}

func newOpentelemetryTracer(options OpentelemetryTracerOptions, logger common.Logger, exporter sdktrace.SpanExporter) (*OpentelemetryTracer, error) {

	res, err := opentelemetryResource(options.OpentelemetryOptions)
	if err != nil {
		return nil, err
	}

	return &OpentelemetryTracer{
		options:  options,
		logger:   logger,
		exporter: exporter,
		resource: res,
		scope: instrumentation.Scope{
			Name:      opentelemetryScope,
			Version:   options.Version,
			SchemaURL: semconv.SchemaURL,
		},
	}, nil
}

func NewOpentelemetryTracer(options OpentelemetryTracerOptions, logger common.Logger, stdout *Stdout) *OpentelemetryTracer {

	if logger == nil {
		logger = stdout
	}

	if common.IsEmpty(options.AgentHost) {
		stdout.Debug("Opentelemetry tracer is disabled.")
		return nil
	}

	exporter, err := newOpentelemetryTraceExporter(options)
	if err != nil {
		stdout.Error(err)
		return nil
	}

	ott, err := newOpentelemetryTracer(options, logger, exporter)
	if err != nil {
		stdout.Error(err)
		return nil
	}

	logger.Info("Opentelemetry tracer is up...")
	return ott
}

func (otc *OpentelemetryCounter) Inc() common.Counter {
	return otc.Add(1)
}

func (otc *OpentelemetryCounter) Add(value int) common.Counter {

	otc.counter.Add(context.Background(), int64(value), otc.attributes)
	return otc
}

func (otg *OpentelemetryGauge) Set(value float64) common.Gauge {

	otg.gauge.Record(context.Background(), value, otg.attributes)
	return otg
}

func opentelemetryAttributes(labels common.Labels) metric.MeasurementOption {

	keys := make([]string, 0, len(labels))
	for k := range labels {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	kv := make([]attribute.KeyValue, 0, len(keys))
	for _, k := range keys {
		kv = append(kv, attribute.String(k, labels[k]))
	}
	return metric.WithAttributes(kv...)
}

func (otm *OpentelemetryMeter) metricName(name string, prefixes ...string) string {

	var names []string
	if !common.IsEmpty(otm.options.Prefix) {
		names = append(names, otm.options.Prefix)
	}
	for _, p := range prefixes {
		if !common.IsEmpty(p) {
			names = append(names, p)
		}
	}
	names = append(names, name)
	return strings.Join(names, ".")
}

func (otm *OpentelemetryMeter) Counter(name, description string, labels common.Labels, prefixes ...string) common.Counter {

	name = otm.metricName(name, prefixes...)

	otm.mu.Lock()
	defer otm.mu.Unlock()

	counter, ok := otm.counters[name]
	if !ok {
		c, err := otm.meter.Int64Counter(name, metric.WithDescription(description))
		if err != nil {
			otm.logger.Error(err)
			return nil
		}
		counter = c
		otm.counters[name] = counter
	}

	return &OpentelemetryCounter{
		counter:    counter,
		attributes: opentelemetryAttributes(labels),
	}
}

func (otm *OpentelemetryMeter) Gauge(name, description string, labels common.Labels, prefixes ...string) common.Gauge {

	name = otm.metricName(name, prefixes...)

	otm.mu.Lock()
	defer otm.mu.Unlock()

	gauge, ok := otm.gauges[name]
	if !ok {
		g, err := otm.meter.Float64Gauge(name, metric.WithDescription(description))
		if err != nil {
			otm.logger.Error(err)
			return nil
		}
		gauge = g
		otm.gauges[name] = gauge
	}

	return &OpentelemetryGauge{
		gauge:      gauge,
		attributes: opentelemetryAttributes(labels),
	}
}

func (otm *OpentelemetryMeter) Stop() {

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := otm.provider.Shutdown(ctx); err != nil {
		otm.logger.Error(err)
	}
}

func newOpentelemetryMeter(options OpentelemetryMeterOptions, logger common.Logger, reader sdkmetric.Reader) (*OpentelemetryMeter, error) {

	res, err := opentelemetryResource(options.OpentelemetryOptions)
	if err != nil {
		return nil, err
	}

	provider := sdkmetric.NewMeterProvider(
		sdkmetric.WithResource(res),
		sdkmetric.WithReader(reader),
	)

	return &OpentelemetryMeter{
		options:  options,
		logger:   logger,
		provider: provider,
		meter:    provider.Meter(opentelemetryScope, metric.WithInstrumentationVersion(options.Version)),
		counters: make(map[string]metric.Int64Counter),
		gauges:   make(map[string]metric.Float64Gauge),
	}, nil
}

func NewOpentelemetryMeter(options OpentelemetryMeterOptions, logger common.Logger, stdout *Stdout) *OpentelemetryMeter {

	if logger == nil {
		logger = stdout
	}

	if common.IsEmpty(options.AgentHost) {
		stdout.Debug("Opentelemetry meter is disabled.")
		return nil
	}

	exporter, err := otlpmetricgrpc.New(context.Background(),
		otlpmetricgrpc.WithInsecure(),
		otlpmetricgrpc.WithEndpoint(fmt.Sprintf("%s:%d", options.AgentHost, options.AgentPort)),
	)
	if err != nil {
		stdout.Error(err)
		return nil
	}

	collectPeriod := options.CollectPeriod
	if collectPeriod <= 0 {
		collectPeriod = 1000
	}
	reader := sdkmetric.NewPeriodicReader(exporter,
		sdkmetric.WithInterval(time.Duration(collectPeriod)*time.Millisecond),
	)

	otm, err := newOpentelemetryMeter(options, logger, reader)
	if err != nil {
		stdout.Error(err)
		return nil
	}

	logger.Info("Opentelemetry meter is up...")
	return otm
}
