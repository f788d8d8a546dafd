package provider

import (
	"context"
	"fmt"
	"net"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/DataDog/datadog-go/statsd"
	"github.com/devopsext/weightapi/common"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/codes"
	"gopkg.in/DataDog/dd-trace-go.v1/ddtrace/ext"
	"gopkg.in/DataDog/dd-trace-go.v1/ddtrace/tracer"
)

type DataDogOptions struct {
	ServiceName string
	Environment string
	Version     string
	Tags        string
	Debug       bool
}

type DataDogTracerOptions struct {
	DataDogOptions
	AgentHost string
	AgentPort int
}

type DataDogLoggerOptions struct {
	DataDogOptions
	AgentHost string
	AgentPort int
	Level     string
}

type DataDogMeterOptions struct {
	DataDogOptions
	AgentHost string
	AgentPort int
	Prefix    string
}

type DataDogInternalLogger struct {
	logger common.Logger
}

// DataDogTracer replays finished spans into the agent. DataDog ids are 64 bit, so
// the low half of the trace id is used.
type DataDogTracer struct {
	options DataDogTracerOptions
	logger  common.Logger
}

type DataDogLogger struct {
	connection   *net.UDPConn
	stdout       *Stdout
	log          *logrus.Logger
	options      DataDogLoggerOptions
	callerOffset int
}

type DataDogCounter struct {
	meter *DataDogMeter
	name  string
	tags  []string
}

type DataDogGauge struct {
	meter *DataDogMeter
	name  string
	tags  []string
}

type DataDogMeter struct {
	options DataDogMeterOptions
	logger  common.Logger
	client  *statsd.Client
}

func (ddtl *DataDogInternalLogger) Log(msg string) {
	ddtl.logger.Debug(msg)
}

func (dd *DataDogTracer) Name() string {
	return "datadog"
}

// datadogCarrier describes the parent in DataDog propagation headers; nil for roots.
func datadogCarrier(s *common.SpanData) tracer.TextMapCarrier {

	if s.IsRoot() {
		return nil
	}
	return tracer.TextMapCarrier{
		tracer.DefaultTraceIDHeader:  strconv.FormatUint(common.TraceIDLow(s.TraceID), 10),
		tracer.DefaultParentIDHeader: strconv.FormatUint(common.SpanIDToUint64(s.ParentSpanID), 10),
		tracer.DefaultPriorityHeader: "1",
	}
}

func datadogStartOptions(s *common.SpanData) []tracer.StartSpanOption {

	opts := []tracer.StartSpanOption{
		tracer.WithSpanID(common.SpanIDToUint64(s.SpanID)),
		tracer.StartTime(s.StartTime),
		tracer.ResourceName(s.Name),
	}
	for _, kv := range s.Attributes {
		opts = append(opts, tracer.Tag(string(kv.Key), kv.Value.AsInterface()))
	}
	return opts
}

func (dd *DataDogTracer) exportSpan(s *common.SpanData) error {

	opts := datadogStartOptions(s)

	if carrier := datadogCarrier(s); carrier != nil {
		parent, err := tracer.Extract(carrier)
		if err != nil {
			return err
		}
		opts = append(opts, tracer.ChildOf(parent))
	}

	span := tracer.StartSpan(s.Name, opts...)

	if s.Status == codes.Error {
		span.SetTag(ext.Error, true)
		span.SetTag(ext.ErrorMsg, s.StatusMessage)
	}
	if len(s.Exceptions) > 0 {
		e := s.Exceptions[0]
		span.SetTag(ext.ErrorType, e.Type)
		span.SetTag(ext.ErrorStack, e.Stacktrace)
		if s.Status != codes.Error {
			span.SetTag(ext.ErrorMsg, e.Message)
		}
	}

	span.Finish(tracer.FinishTime(s.EndTime))
	return nil
}

func (dd *DataDogTracer) ExportSpans(ctx context.Context, spans []*common.SpanData) error {

	for _, s := range spans {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := dd.exportSpan(s); err != nil {
			return err
		}
	}
	return nil
}

func (dd *DataDogTracer) Stop() {
	tracer.Stop()
}

func dataDogTags(sTags string) map[string]string {
	return common.GetKeyValues(sTags)
}

func startDataDogTracer(options DataDogTracerOptions, logger common.Logger) bool {

	if common.IsEmpty(options.AgentHost) {
		return false
	}

	addr := net.JoinHostPort(
		options.AgentHost,
		strconv.Itoa(options.AgentPort),
	)

	var opts []tracer.StartOption
	opts = append(opts, tracer.WithAgentAddr(addr))
	opts = append(opts, tracer.WithServiceName(options.ServiceName))
	opts = append(opts, tracer.WithServiceVersion(options.Version))
	opts = append(opts, tracer.WithEnv(options.Environment))

	if options.Debug {
		opts = append(opts, tracer.WithLogger(&DataDogInternalLogger{logger: logger}))
	}

	for k, v := range dataDogTags(options.Tags) {
		opts = append(opts, tracer.WithGlobalTag(k, v))
	}

	tracer.Start(opts...)
	return true
}

func NewDataDogTracer(options DataDogTracerOptions, logger common.Logger, stdout *Stdout) *DataDogTracer {

	if logger == nil {
		logger = stdout
	}

	enabled := startDataDogTracer(options, logger)
	if !enabled {
		stdout.Debug("DataDog tracer is disabled.")
		return nil
	}

	logger.Info("DataDog tracer is up...")

	return &DataDogTracer{
		options: options,
		logger:  logger,
	}
}

func (dd *DataDogLogger) addSpanFields(span common.TracerSpan, fields logrus.Fields) logrus.Fields {

	if span == nil {
		return fields
	}

	ctx := span.GetContext()
	if ctx == nil || common.IsEmpty(ctx.GetTraceID()) {
		return fields
	}

	_, low := common.TraceIDHexToUint64(ctx.GetTraceID())
	fields["dd.trace_id"] = strconv.FormatUint(low, 10)
	fields["dd.span_id"] = strconv.FormatUint(common.SpanIDHexToUint64(ctx.GetSpanID()), 10)
	return fields
}

func (dd *DataDogLogger) Info(obj interface{}, args ...interface{}) common.Logger {

	if exists, fields, message := dd.exists(logrus.InfoLevel, obj, args...); exists {
		dd.log.WithFields(fields).Infoln(message)
	}
	return dd
}

func (dd *DataDogLogger) SpanInfo(span common.TracerSpan, obj interface{}, args ...interface{}) common.Logger {

	if exists, fields, message := dd.exists(logrus.InfoLevel, obj, args...); exists {
		fields = dd.addSpanFields(span, fields)
		dd.log.WithFields(fields).Infoln(message)
	}
	return dd
}

func (dd *DataDogLogger) Warn(obj interface{}, args ...interface{}) common.Logger {

	if exists, fields, message := dd.exists(logrus.WarnLevel, obj, args...); exists {
		dd.log.WithFields(fields).Warnln(message)
	}
	return dd
}

func (dd *DataDogLogger) SpanWarn(span common.TracerSpan, obj interface{}, args ...interface{}) common.Logger {

	if exists, fields, message := dd.exists(logrus.WarnLevel, obj, args...); exists {
		fields = dd.addSpanFields(span, fields)
		dd.log.WithFields(fields).Warnln(message)
	}
	return dd
}

func (dd *DataDogLogger) Error(obj interface{}, args ...interface{}) common.Logger {

	if exists, fields, message := dd.exists(logrus.ErrorLevel, obj, args...); exists {
		dd.log.WithFields(fields).Errorln(message)
	}
	return dd
}

func (dd *DataDogLogger) SpanError(span common.TracerSpan, obj interface{}, args ...interface{}) common.Logger {

	if exists, fields, message := dd.exists(logrus.ErrorLevel, obj, args...); exists {
		fields = dd.addSpanFields(span, fields)
		dd.log.WithFields(fields).Errorln(message)
	}
	return dd
}

func (dd *DataDogLogger) Debug(obj interface{}, args ...interface{}) common.Logger {

	if exists, fields, message := dd.exists(logrus.DebugLevel, obj, args...); exists {
		dd.log.WithFields(fields).Debugln(message)
	}
	return dd
}

func (dd *DataDogLogger) SpanDebug(span common.TracerSpan, obj interface{}, args ...interface{}) common.Logger {

	if exists, fields, message := dd.exists(logrus.DebugLevel, obj, args...); exists {
		fields = dd.addSpanFields(span, fields)
		dd.log.WithFields(fields).Debugln(message)
	}
	return dd
}

func (dd *DataDogLogger) Panic(obj interface{}, args ...interface{}) common.Logger {

	if exists, fields, message := dd.exists(logrus.PanicLevel, obj, args...); exists {
		dd.log.WithFields(fields).Panicln(message)
	}
	return dd
}

func (dd *DataDogLogger) SpanPanic(span common.TracerSpan, obj interface{}, args ...interface{}) common.Logger {

	if exists, fields, message := dd.exists(logrus.PanicLevel, obj, args...); exists {
		fields = dd.addSpanFields(span, fields)
		dd.log.WithFields(fields).Panicln(message)
	}
	return dd
}

func (dd *DataDogLogger) Stack(offset int) common.Logger {
	dd.callerOffset = dd.callerOffset - offset
	return dd
}

func (dd *DataDogLogger) exists(level logrus.Level, obj interface{}, args ...interface{}) (bool, logrus.Fields, string) {

	message := objMessage(obj)
	if _, ok := obj.(string); ok && len(args) > 0 {
		message = fmt.Sprintf(message, args...)
	}

	if common.IsEmpty(message) || !dd.log.IsLevelEnabled(level) {
		return false, nil, ""
	}

	function, file, line := common.GetCallerInfo(dd.callerOffset + 3)
	fields := logrus.Fields{
		"file":    fmt.Sprintf("%s:%d", file, line),
		"func":    function,
		"service": dd.options.ServiceName,
		"version": dd.options.Version,
		"env":     dd.options.Environment,
	}
	return true, fields, message
}

func NewDataDogLogger(options DataDogLoggerOptions, logger common.Logger, stdout *Stdout) *DataDogLogger {

	if logger == nil {
		logger = stdout
	}

	if common.IsEmpty(options.AgentHost) {
		stdout.Debug("DataDog logger is disabled.")
		return nil
	}

	address := net.JoinHostPort(options.AgentHost, strconv.Itoa(options.AgentPort))
	serverAddr, err := net.ResolveUDPAddr("udp", address)
	if err != nil {
		stdout.Error(err)
		return nil
	}

	connection, err := net.DialUDP("udp", nil, serverAddr)
	if err != nil {
		stdout.Error(err)
		return nil
	}

	formatter := &logrus.JSONFormatter{}
	formatter.TimestampFormat = time.RFC3339Nano

	log := logrus.New()
	log.SetFormatter(formatter)

	level, err := logrus.ParseLevel(options.Level)
	if err != nil {
		level = logrus.InfoLevel
	}
	log.SetLevel(level)
	log.SetOutput(connection)

	logger.Info("DataDog logger is up...")

	return &DataDogLogger{
		connection:   connection,
		stdout:       stdout,
		log:          log,
		options:      options,
		callerOffset: 1,
	}
}

func (ddmc *DataDogCounter) Inc() common.Counter {
	return ddmc.Add(1)
}

func (ddmc *DataDogCounter) Add(value int) common.Counter {

	err := ddmc.meter.client.Count(ddmc.name, int64(value), ddmc.tags, 1)
	if err != nil {
		ddmc.meter.logger.Error(err)
	}
	return ddmc
}

func (ddmg *DataDogGauge) Set(value float64) common.Gauge {

	err := ddmg.meter.client.Gauge(ddmg.name, value, ddmg.tags, 1)
	if err != nil {
		ddmg.meter.logger.Error(err)
	}
	return ddmg
}

func (ddm *DataDogMeter) metricName(name string, prefixes ...string) string {

	var names []string
	for _, p := range append([]string{ddm.options.Prefix}, prefixes...) {
		if !common.IsEmpty(p) {
			names = append(names, p)
		}
	}
	return strings.Join(append(names, name), ".")
}

// metricTags renders global and label tags as sorted "key:value" pairs.
func (ddm *DataDogMeter) metricTags(labels common.Labels) []string {

	var tags []string
	for k, v := range dataDogTags(ddm.options.Tags) {
		tags = append(tags, fmt.Sprintf("%s:%s", k, v))
	}
	for k, v := range labels {
		tags = append(tags, fmt.Sprintf("%s:%s", k, v))
	}
	sort.Strings(tags)

	tags = append(tags, fmt.Sprintf("service:%s", ddm.options.ServiceName))
	tags = append(tags, fmt.Sprintf("version:%s", ddm.options.Version))
	tags = append(tags, fmt.Sprintf("env:%s", ddm.options.Environment))
	return tags
}

func (ddm *DataDogMeter) Counter(name, description string, labels common.Labels, prefixes ...string) common.Counter {

	return &DataDogCounter{
		meter: ddm,
		name:  ddm.metricName(name, prefixes...),
		tags:  ddm.metricTags(labels),
	}
}

func (ddm *DataDogMeter) Gauge(name, description string, labels common.Labels, prefixes ...string) common.Gauge {

	return &DataDogGauge{
		meter: ddm,
		name:  ddm.metricName(name, prefixes...),
		tags:  ddm.metricTags(labels),
	}
}

func (ddm *DataDogMeter) Stop() {

	if err := ddm.client.Close(); err != nil {
		ddm.logger.Error(err)
	}
}

func NewDataDogMeter(options DataDogMeterOptions, logger common.Logger, stdout *Stdout) *DataDogMeter {

	if logger == nil {
		logger = stdout
	}

	if common.IsEmpty(options.AgentHost) {
		stdout.Debug("DataDog meter is disabled.")
		return nil
	}

	client, err := statsd.New(net.JoinHostPort(options.AgentHost, strconv.Itoa(options.AgentPort)))
	if err != nil {
		logger.Error(err)
		return nil
	}

	logger.Info("DataDog meter is up...")

	return &DataDogMeter{
		options: options,
		logger:  logger,
		client:  client,
	}
}
