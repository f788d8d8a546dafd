package provider

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/devopsext/weightapi/common"
	telemetry "github.com/newrelic/newrelic-telemetry-sdk-go/telemetry"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/codes"
)

type NewRelicOptions struct {
	ApiKey      string
	ServiceName string
	Environment string
	Version     string
	Attributes  string
	Debug       bool
}

type NewRelicTracerOptions struct {
	NewRelicOptions
	Endpoint string
}

type NewRelicLoggerOptions struct {
	NewRelicOptions
	Endpoint  string
	AgentHost string
	AgentPort int
	Level     string
}

type NewRelicMeterOptions struct {
	NewRelicOptions
	Endpoint string
	Prefix   string
}

type NewRelicTracer struct {
	harvester *telemetry.Harvester
	options   NewRelicTracerOptions
	logger    common.Logger
}

type NewRelicLogger struct {
	harvester    *telemetry.Harvester
	connection   *net.TCPConn
	stdout       *Stdout
	log          *logrus.Logger
	options      NewRelicLoggerOptions
	callerOffset int
}

type NewRelicCounter struct {
	meter      *NewRelicMeter
	name       string
	attributes map[string]interface{}
}

type NewRelicGauge struct {
	meter      *NewRelicMeter
	name       string
	attributes map[string]interface{}
}

type NewRelicMeter struct {
	harvester *telemetry.Harvester
	options   NewRelicMeterOptions
	logger    common.Logger
}

func newRelicAttributes(s string) map[string]interface{} {

	attributes := make(map[string]interface{})
	for k, v := range common.GetKeyValues(s) {
		attributes[k] = v
	}
	return attributes
}

func newRelicHarvester(options NewRelicOptions, stdout *Stdout, cfgs ...func(*telemetry.Config)) (*telemetry.Harvester, error) {

	attributes := newRelicAttributes(options.Attributes)
	if !common.IsEmpty(options.Environment) {
		attributes["environment"] = options.Environment
	}
	if !common.IsEmpty(options.Version) {
		attributes["service.version"] = options.Version
	}

	cfgs = append(cfgs,
		telemetry.ConfigAPIKey(options.ApiKey),
		telemetry.ConfigCommonAttributes(attributes),
	)

	if options.Debug {
		cfgs = append(cfgs,
			telemetry.ConfigBasicErrorLogger(stdout.log.Writer()),
			telemetry.ConfigBasicDebugLogger(stdout.log.Writer()),
		)
	}
	return telemetry.NewHarvester(cfgs...)
}

func (nr *NewRelicTracer) Name() string {
	return "newrelic"
}

func newRelicSpan(s *common.SpanData, serviceName string) telemetry.Span {

	attributes := make(map[string]interface{})
	for _, kv := range s.Attributes {
		attributes[string(kv.Key)] = kv.Value.AsInterface()
	}

	switch s.Status {
	case codes.Error:
		attributes["otel.status_code"] = "ERROR"
		attributes["error.message"] = s.StatusMessage
	case codes.Ok:
		attributes["otel.status_code"] = "OK"
	}
	if len(s.Exceptions) > 0 {
		e := s.Exceptions[0]
		attributes["error.class"] = e.Type
		if _, ok := attributes["error.message"]; !ok {
			attributes["error.message"] = e.Message
		}
		attributes["error.stack"] = e.Stacktrace
	}
	for _, e := range s.Events {
		attributes[fmt.Sprintf("event.%s", e.Name)] = e.Time.Format(time.RFC3339Nano)
	}

	span := telemetry.Span{
		ID:          s.SpanID.String(),
		TraceID:     s.TraceID.String(),
		Timestamp:   s.StartTime,
		Name:        s.Name,
		Duration:    s.Duration(),
		ServiceName: serviceName,
		Attributes:  attributes,
	}
	if !s.IsRoot() {
		span.ParentID = s.ParentSpanID.String()
	}
	return span
}

func (nr *NewRelicTracer) ExportSpans(ctx context.Context, spans []*common.SpanData) error {

	for _, s := range spans {

		serviceName := nr.options.ServiceName
		if common.IsEmpty(serviceName) {
			serviceName = s.Service
		}
		if err := nr.harvester.RecordSpan(newRelicSpan(s, serviceName)); err != nil {
			return err
		}
	}
	nr.harvester.HarvestNow(ctx)
	return nil
}

func (nr *NewRelicTracer) Stop() {
	nr.harvester.HarvestNow(context.Background())
}

func NewNewRelicTracer(options NewRelicTracerOptions, logger common.Logger, stdout *Stdout) *NewRelicTracer {

	if logger == nil {
		logger = stdout
	}

	if common.IsEmpty(options.Endpoint) {
		stdout.Debug("NewRelic tracer is disabled.")
		return nil
	}

	harvester, err := newRelicHarvester(options.NewRelicOptions, stdout,
		telemetry.ConfigSpansURLOverride(options.Endpoint),
	)
	if err != nil {
		stdout.Error(err)
		return nil
	}

	logger.Info("NewRelic tracer is up...")

	return &NewRelicTracer{
		harvester: harvester,
		options:   options,
		logger:    logger,
	}
}

func (nr *NewRelicLogger) addSpanFields(span common.TracerSpan, fields logrus.Fields) logrus.Fields {

	if span == nil {
		return fields
	}

	ctx := span.GetContext()
	if ctx == nil || common.IsEmpty(ctx.GetTraceID()) {
		return fields
	}

	fields["trace.id"] = ctx.GetTraceID()
	fields["span.id"] = ctx.GetSpanID()

	return fields
}

func (nr *NewRelicLogger) logToApi(level, message string, fields logrus.Fields) bool {

	if nr.harvester != nil {

		attributes := make(map[string]interface{})
		for k, v := range fields {
			attributes[k] = v
		}
		attributes["level"] = level

		err := nr.harvester.RecordLog(telemetry.Log{
			Timestamp:  time.Now(),
			Message:    message,
			Attributes: attributes,
		})
		if err != nil {
			nr.stdout.Error(err)
			return false
		}
		return true
	}
	return false
}

func (nr *NewRelicLogger) write(level logrus.Level, span common.TracerSpan, obj interface{}, args ...interface{}) {

	exists, fields, message := nr.exists(level, obj, args...)
	if !exists {
		return
	}
	fields = nr.addSpanFields(span, fields)

	if nr.log != nil {
		nr.log.WithFields(fields).Logln(level, message)
		return
	}
	nr.logToApi(level.String(), message, fields)
}

func (nr *NewRelicLogger) Info(obj interface{}, args ...interface{}) common.Logger {
	nr.write(logrus.InfoLevel, nil, obj, args...)
	return nr
}

func (nr *NewRelicLogger) SpanInfo(span common.TracerSpan, obj interface{}, args ...interface{}) common.Logger {
	nr.write(logrus.InfoLevel, span, obj, args...)
	return nr
}

func (nr *NewRelicLogger) Warn(obj interface{}, args ...interface{}) common.Logger {
	nr.write(logrus.WarnLevel, nil, obj, args...)
	return nr
}

func (nr *NewRelicLogger) SpanWarn(span common.TracerSpan, obj interface{}, args ...interface{}) common.Logger {
	nr.write(logrus.WarnLevel, span, obj, args...)
	return nr
}

func (nr *NewRelicLogger) Error(obj interface{}, args ...interface{}) common.Logger {
	nr.write(logrus.ErrorLevel, nil, obj, args...)
	return nr
}

func (nr *NewRelicLogger) SpanError(span common.TracerSpan, obj interface{}, args ...interface{}) common.Logger {
	nr.write(logrus.ErrorLevel, span, obj, args...)
	return nr
}

func (nr *NewRelicLogger) Debug(obj interface{}, args ...interface{}) common.Logger {
	nr.write(logrus.DebugLevel, nil, obj, args...)
	return nr
}

func (nr *NewRelicLogger) SpanDebug(span common.TracerSpan, obj interface{}, args ...interface{}) common.Logger {
	nr.write(logrus.DebugLevel, span, obj, args...)
	return nr
}

func (nr *NewRelicLogger) Panic(obj interface{}, args ...interface{}) common.Logger {

	nr.write(logrus.PanicLevel, nil, obj, args...)
	if nr.log == nil {
		nr.stdout.Panic(obj, args...)
	}
	return nr
}

func (nr *NewRelicLogger) SpanPanic(span common.TracerSpan, obj interface{}, args ...interface{}) common.Logger {

	nr.write(logrus.PanicLevel, span, obj, args...)
	if nr.log == nil {
		nr.stdout.SpanPanic(span, obj, args...)
	}
	return nr
}

func (nr *NewRelicLogger) Stack(offset int) common.Logger {
	nr.callerOffset = nr.callerOffset - offset
	return nr
}

func (nr *NewRelicLogger) exists(level logrus.Level, obj interface{}, args ...interface{}) (bool, logrus.Fields, string) {

	message := objMessage(obj)
	if _, ok := obj.(string); ok && len(args) > 0 {
		message = fmt.Sprintf(message, args...)
	}

	if common.IsEmpty(message) || level > nr.level() {
		return false, nil, ""
	}

	function, file, line := common.GetCallerInfo(nr.callerOffset + 4)
	fields := logrus.Fields{
		"file":    fmt.Sprintf("%s:%d", file, line),
		"func":    function,
		"service": nr.options.ServiceName,
		"version": nr.options.Version,
		"env":     nr.options.Environment,
	}

	for k, v := range common.GetKeyValues(nr.options.Attributes) {
		fields[k] = v
	}
	return true, fields, message
}

func (nr *NewRelicLogger) level() logrus.Level {

	if nr.log != nil {
		return nr.log.GetLevel()
	}
	level, err := logrus.ParseLevel(nr.options.Level)
	if err != nil {
		return logrus.InfoLevel
	}
	return level
}

func (nr *NewRelicLogger) Stop() {
	if nr.connection != nil {
		nr.connection.Close()
	}
	if nr.harvester != nil {
		nr.harvester.HarvestNow(context.Background())
	}
}

func NewNewRelicLogger(options NewRelicLoggerOptions, logger common.Logger, stdout *Stdout) *NewRelicLogger {

	if logger == nil {
		logger = stdout
	}

	if common.IsEmpty(options.Endpoint) && common.IsEmpty(options.AgentHost) {
		stdout.Debug("NewRelic logger is disabled.")
		return nil
	}

	var connection *net.TCPConn
	var log *logrus.Logger

	if common.IsEmpty(options.Endpoint) {

		address := net.JoinHostPort(options.AgentHost, strconv.Itoa(options.AgentPort))
		serverAddr, err := net.ResolveTCPAddr("tcp", address)
		if err != nil {
			stdout.Error(err)
			return nil
		}

		connection, err = net.DialTCP("tcp", nil, serverAddr)
		if err != nil {
			stdout.Error(err)
			return nil
		}

		formatter := &logrus.JSONFormatter{
			FieldMap: logrus.FieldMap{
				logrus.FieldKeyTime:  "timestamp",
				logrus.FieldKeyLevel: "level",
				logrus.FieldKeyMsg:   "message",
			},
		}
		formatter.TimestampFormat = time.RFC3339Nano

		log = logrus.New()
		log.SetFormatter(formatter)

		level, err := logrus.ParseLevel(options.Level)
		if err != nil {
			level = logrus.InfoLevel
		}
		log.SetLevel(level)
		log.SetOutput(connection)
	}

	var harvester *telemetry.Harvester

	if !common.IsEmpty(options.Endpoint) {

		h, err := newRelicHarvester(options.NewRelicOptions, stdout,
			telemetry.ConfigLogsURLOverride(options.Endpoint),
		)
		if err != nil {
			stdout.Error(err)
			return nil
		}
		harvester = h
	}

	logger.Info("NewRelic logger is up...")

	return &NewRelicLogger{
		harvester:    harvester,
		connection:   connection,
		stdout:       stdout,
		log:          log,
		options:      options,
		callerOffset: 1,
	}
}

func (nrc *NewRelicCounter) Inc() common.Counter {
	return nrc.Add(1)
}

func (nrc *NewRelicCounter) Add(value int) common.Counter {

	nrc.meter.harvester.RecordMetric(telemetry.Count{
		Timestamp:  time.Now(),
		Name:       nrc.name,
		Value:      float64(value),
		Attributes: nrc.attributes,
	})
	return nrc
}

func (nrg *NewRelicGauge) Set(value float64) common.Gauge {

	nrg.meter.harvester.RecordMetric(telemetry.Gauge{
		Timestamp:  time.Now(),
		Name:       nrg.name,
		Value:      value,
		Attributes: nrg.attributes,
	})
	return nrg
}

func (nrm *NewRelicMeter) metricName(name string, prefixes ...string) string {

	var names []string
	for _, p := range append([]string{nrm.options.Prefix}, prefixes...) {
		if !common.IsEmpty(p) {
			names = append(names, p)
		}
	}
	return strings.Join(append(names, name), ".")
}

func (nrm *NewRelicMeter) metricAttributes(labels common.Labels) map[string]interface{} {

	attributes := make(map[string]interface{})
	for k, v := range labels {
		attributes[k] = v
	}
	return attributes
}

func (nrm *NewRelicMeter) Counter(name, description string, labels common.Labels, prefixes ...string) common.Counter {

	return &NewRelicCounter{
		meter:      nrm,
		name:       nrm.metricName(name, prefixes...),
		attributes: nrm.metricAttributes(labels),
	}
}

func (nrm *NewRelicMeter) Gauge(name, description string, labels common.Labels, prefixes ...string) common.Gauge {

	return &NewRelicGauge{
		meter:      nrm,
		name:       nrm.metricName(name, prefixes...),
		attributes: nrm.metricAttributes(labels),
	}
}

func (nrm *NewRelicMeter) Stop() {
	if nrm.harvester != nil {
		nrm.harvester.HarvestNow(context.Background())
	}
}

func NewNewRelicMeter(options NewRelicMeterOptions, logger common.Logger, stdout *Stdout) *NewRelicMeter {

	if logger == nil {
		logger = stdout
	}

	if common.IsEmpty(options.Endpoint) {
		stdout.Debug("NewRelic meter is disabled.")
		return nil
	}

	harvester, err := newRelicHarvester(options.NewRelicOptions, stdout,
		telemetry.ConfigMetricsURLOverride(options.Endpoint),
	)
	if err != nil {
		stdout.Error(err)
		return nil
	}

	logger.Info("NewRelic meter is up...")

	return &NewRelicMeter{
		harvester: harvester,
		options:   options,
		logger:    logger,
	}
}
