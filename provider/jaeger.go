package provider

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/devopsext/weightapi/common"
	"github.com/opentracing/opentracing-go"
	"github.com/opentracing/opentracing-go/ext"
	opentracingLog "github.com/opentracing/opentracing-go/log"
	"github.com/uber/jaeger-client-go"
	jaegerConfig "github.com/uber/jaeger-client-go/config"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

type JaegerOptions struct {
	ServiceName         string
	AgentHost           string
	AgentPort           int
	Endpoint            string
	User                string
	Password            string
	BufferFlushInterval int
	QueueSize           int
	Tags                string
	Version             string
}

// JaegerTracer replays finished spans through a jaeger tracer, keeping their ids.
type JaegerTracer struct {
	options JaegerOptions
	tracer  opentracing.Tracer
	closer  io.Closer
	logger  common.Logger
}

type JaegerLogger struct {
	logger common.Logger
}

func (j *JaegerTracer) Name() string {
	return "jaeger"
}

func jaegerLogField(kv attribute.KeyValue) opentracingLog.Field {

	k := string(kv.Key)
	switch kv.Value.Type() {
	case attribute.BOOL:
		return opentracingLog.Bool(k, kv.Value.AsBool())
	case attribute.INT64:
		return opentracingLog.Int64(k, kv.Value.AsInt64())
	case attribute.FLOAT64:
		return opentracingLog.Float64(k, kv.Value.AsFloat64())
	default:
		return opentracingLog.String(k, kv.Value.Emit())
	}
}

func jaegerTags(s *common.SpanData) opentracing.Tags {

	tags := opentracing.Tags{}
	for _, kv := range s.Attributes {
		tags[string(kv.Key)] = kv.Value.AsInterface()
	}

	switch s.Status {
	case codes.Error:
		tags[string(ext.Error)] = true
		tags["otel.status_code"] = "ERROR"
		if !common.IsEmpty(s.StatusMessage) {
			tags["otel.status_description"] = s.StatusMessage
		}
	case codes.Ok:
		tags["otel.status_code"] = "OK"
	}
	return tags
}

func jaegerLogs(s *common.SpanData) []opentracing.LogRecord {

	var records []opentracing.LogRecord

	for _, e := range s.Events {
		fields := []opentracingLog.Field{opentracingLog.String("event", e.Name)}
		for _, kv := range e.Attributes {
			fields = append(fields, jaegerLogField(kv))
		}
		records = append(records, opentracing.LogRecord{Timestamp: e.Time, Fields: fields})
	}

	for _, e := range s.Exceptions {
		records = append(records, opentracing.LogRecord{
			Timestamp: e.Time,
			Fields: []opentracingLog.Field{
				opentracingLog.String("event", "error"),
				opentracingLog.String("error.kind", e.Type),
				opentracingLog.String("message", e.Message),
				opentracingLog.String("stack", e.Stacktrace),
			},
		})
	}
	return records
}

func (j *JaegerTracer) exportSpan(s *common.SpanData) {

	traceID := jaeger.TraceID{
		High: common.TraceIDHigh(s.TraceID),
		Low:  common.TraceIDLow(s.TraceID),
	}
	spanID := jaeger.SpanID(common.SpanIDToUint64(s.SpanID))
	parentID := jaeger.SpanID(common.SpanIDToUint64(s.ParentSpanID))

	spanCtx := jaeger.NewSpanContext(traceID, spanID, parentID, true, nil)

	span := j.tracer.StartSpan(s.Name,
		jaeger.SelfRef(spanCtx),
		opentracing.StartTime(s.StartTime),
		jaegerTags(s),
	)
	span.FinishWithOptions(opentracing.FinishOptions{
		FinishTime: s.EndTime,
		LogRecords: jaegerLogs(s),
	})
}

func (j *JaegerTracer) ExportSpans(ctx context.Context, spans []*common.SpanData) error {

	for _, s := range spans {
		if err := ctx.Err(); err != nil {
			return err
		}
		j.exportSpan(s)
	}
	return nil
}

func (j *JaegerTracer) Stop() {

	if j.closer == nil {
		return
	}
	if err := j.closer.Close(); err != nil {
		j.logger.Error(err)
	}
}

func (j *JaegerLogger) Error(msg string) {
	j.logger.Stack(-2).Error(msg).Stack(2)
}

func (j *JaegerLogger) Infof(msg string, args ...interface{}) {

	if common.IsEmpty(msg) {
		return
	}

	msg = strings.TrimSpace(msg)
	if args != nil {
		j.logger.Stack(-2).Debug(msg, args...).Stack(2)
	} else {
		j.logger.Stack(-2).Debug(msg).Stack(2)
	}
}

func parseJaegerTags(sTags string) []opentracing.Tag {

	tags := make([]opentracing.Tag, 0)
	for k, v := range common.GetKeyValues(sTags) {
		tags = append(tags, opentracing.Tag{Key: k, Value: v})
	}
	return tags
}

func newJaegerTracer(options JaegerOptions, logger common.Logger, stdout *Stdout) (opentracing.Tracer, io.Closer) {

	disabled := common.IsEmpty(options.AgentHost) && common.IsEmpty(options.Endpoint)
	if disabled {
		return nil, nil
	}

	tags := parseJaegerTags(options.Tags)
	tags = append(tags, opentracing.Tag{
		Key:   "version",
		Value: options.Version,
	})

	cfg := &jaegerConfig.Configuration{

		ServiceName: options.ServiceName,
		Disabled:    disabled,
		Tags:        tags,

		// spans are sampled before they reach the sink
		Sampler: &jaegerConfig.SamplerConfig{
			Type:  jaeger.SamplerTypeConst,
			Param: 1,
		},

		Reporter: &jaegerConfig.ReporterConfig{
			User:                options.User,
			Password:            options.Password,
			LocalAgentHostPort:  fmt.Sprintf("%s:%d", options.AgentHost, options.AgentPort),
			CollectorEndpoint:   options.Endpoint,
			BufferFlushInterval: time.Duration(options.BufferFlushInterval) * time.Second,
			QueueSize:           options.QueueSize,
		},
	}

	tracer, closer, err := cfg.NewTracer(jaegerConfig.Logger(&JaegerLogger{logger: logger}), jaegerConfig.Gen128Bit(true))
	if err != nil {
		stdout.Error(err)
		return nil, nil
	}
	return tracer, closer
}

func NewJaegerTracer(options JaegerOptions, logger common.Logger, stdout *Stdout) *JaegerTracer {

	if logger == nil {
		logger = stdout
	}

	tracer, closer := newJaegerTracer(options, logger, stdout)
	if tracer == nil {
		stdout.Debug("Jaeger exporter is disabled.")
		return nil
	}

	logger.Info("Jaeger exporter is up...")

	return &JaegerTracer{
		options: options,
		tracer:  tracer,
		closer:  closer,
		logger:  logger,
	}
}
