package provider

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"text/template"

	"github.com/devopsext/weightapi/common"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/codes"
)

type StdoutOptions struct {
	Format          string
	Level           string
	Template        string
	TimestampFormat string
	Version         string
	TextColors      bool
}

type Stdout struct {
	log          *logrus.Logger
	options      StdoutOptions
	callerOffset int
}

type StdoutExporter struct {
	stdout *Stdout
}

type templateFormatter struct {
	template        *template.Template
	timestampFormat string
}

func (f *templateFormatter) Format(entry *logrus.Entry) ([]byte, error) {

	r := entry.Message
	m := make(map[string]interface{})

	for k, v := range entry.Data {
		switch v := v.(type) {
		case error:
			m[k] = v.Error()
		default:
			m[k] = v
		}
	}

	m["msg"] = entry.Message
	m["time"] = entry.Time.Format(f.timestampFormat)
	m["level"] = entry.Level.String()

	var err error

	if f.template != nil {

		var b bytes.Buffer
		err = f.template.Execute(&b, m)
		if err == nil {

			r = fmt.Sprintf("%s\n", b.String())
		}
	}

	return []byte(r), err
}

func addSpanFields(span common.TracerSpan, fields logrus.Fields) logrus.Fields {

	if span == nil {
		return fields
	}

	ctx := span.GetContext()
	if ctx == nil {
		return fields
	}

	if traceID := ctx.GetTraceID(); !common.IsEmpty(traceID) {
		fields["trace_id"] = traceID
	}
	if spanID := ctx.GetSpanID(); !common.IsEmpty(spanID) {
		fields["span_id"] = spanID
	}
	return fields
}

func (so *Stdout) addCallerFields(offset int) logrus.Fields {

	function, file, line := common.GetCallerInfo(so.callerOffset + offset)
	return logrus.Fields{
		"file": fmt.Sprintf("%s:%d", file, line),
		"func": function,
	}
}

func prepare(message string, args ...interface{}) string {

	if len(args) > 0 {
		return fmt.Sprintf(message, args...)
	} else {
		return message
	}
}

func objMessage(obj interface{}) string {

	switch v := obj.(type) {
	case nil:
		return ""
	case error:
		return v.Error()
	case string:
		return v
	case fmt.Stringer:
		return v.String()
	default:
		return fmt.Sprintf("%v", v)
	}
}

func (so *Stdout) exists(level logrus.Level, obj interface{}, args ...interface{}) (bool, string) {

	message := objMessage(obj)

	flag := message != "" && so.log.IsLevelEnabled(level)
	if flag {
		if _, ok := obj.(string); ok {
			message = prepare(message, args...)
		}
	}
	return flag, message
}

func (so *Stdout) Info(obj interface{}, args ...interface{}) common.Logger {

	if exists, message := so.exists(logrus.InfoLevel, obj, args...); exists {
		so.log.WithFields(so.addCallerFields(3)).Infoln(message)
	}
	return so
}

func (so *Stdout) SpanInfo(span common.TracerSpan, obj interface{}, args ...interface{}) common.Logger {

	if exists, message := so.exists(logrus.InfoLevel, obj, args...); exists {
		fields := addSpanFields(span, so.addCallerFields(3))
		so.log.WithFields(fields).Infoln(message)
	}
	return so
}

func (so *Stdout) Warn(obj interface{}, args ...interface{}) common.Logger {

	if exists, message := so.exists(logrus.WarnLevel, obj, args...); exists {
		so.log.WithFields(so.addCallerFields(3)).Warnln(message)
	}
	return so
}

func (so *Stdout) SpanWarn(span common.TracerSpan, obj interface{}, args ...interface{}) common.Logger {

	if exists, message := so.exists(logrus.WarnLevel, obj, args...); exists {
		fields := addSpanFields(span, so.addCallerFields(3))
		so.log.WithFields(fields).Warnln(message)
	}
	return so
}

func (so *Stdout) Error(obj interface{}, args ...interface{}) common.Logger {

	if exists, message := so.exists(logrus.ErrorLevel, obj, args...); exists {
		so.log.WithFields(so.addCallerFields(3)).Errorln(message)
	}
	return so
}

func (so *Stdout) SpanError(span common.TracerSpan, obj interface{}, args ...interface{}) common.Logger {

	if exists, message := so.exists(logrus.ErrorLevel, obj, args...); exists {
		fields := addSpanFields(span, so.addCallerFields(3))
		so.log.WithFields(fields).Errorln(message)
	}
	return so
}

func (so *Stdout) Debug(obj interface{}, args ...interface{}) common.Logger {

	if exists, message := so.exists(logrus.DebugLevel, obj, args...); exists {
		so.log.WithFields(so.addCallerFields(3)).Debugln(message)
	}
	return so
}

func (so *Stdout) SpanDebug(span common.TracerSpan, obj interface{}, args ...interface{}) common.Logger {

	if exists, message := so.exists(logrus.DebugLevel, obj, args...); exists {
		fields := addSpanFields(span, so.addCallerFields(3))
		so.log.WithFields(fields).Debugln(message)
	}
	return so
}

func (so *Stdout) Panic(obj interface{}, args ...interface{}) common.Logger {

	if exists, message := so.exists(logrus.PanicLevel, obj, args...); exists {
		so.log.WithFields(so.addCallerFields(3)).Panicln(message)
	}
	return so
}

func (so *Stdout) SpanPanic(span common.TracerSpan, obj interface{}, args ...interface{}) common.Logger {

	if exists, message := so.exists(logrus.PanicLevel, obj, args...); exists {
		fields := addSpanFields(span, so.addCallerFields(3))
		so.log.WithFields(fields).Panicln(message)
	}
	return so
}

func (so *Stdout) Stack(offset int) common.Logger {
	so.callerOffset = so.callerOffset - offset
	return so
}

func (so *Stdout) SetCallerOffset(offset int) {
	so.callerOffset = offset
}

func (so *Stdout) SetOutput(w io.Writer) {
	so.log.SetOutput(w)
}

func (se *StdoutExporter) Name() string {
	return "stdout"
}

func (se *StdoutExporter) ExportSpans(ctx context.Context, spans []*common.SpanData) error {

	for _, s := range spans {

		fields := logrus.Fields{
			"trace_id": s.TraceID.String(),
			"span_id":  s.SpanID.String(),
			"name":     s.Name,
			"duration": s.Duration().String(),
			"status":   s.Status.String(),
		}
		if !s.IsRoot() {
			fields["parent_id"] = s.ParentSpanID.String()
		}
		for _, kv := range s.Attributes {
			fields[fmt.Sprintf("attr.%s", kv.Key)] = kv.Value.Emit()
		}
		for i, e := range s.Exceptions {
			fields[fmt.Sprintf("exception.%d", i)] = fmt.Sprintf("%s: %s", e.Type, e.Message)
		}

		entry := se.stdout.log.WithFields(fields)
		if s.Status == codes.Error {
			entry.Warnln(s.StatusMessage)
		} else {
			entry.Debugln("span finished")
		}
	}
	return nil
}

func (se *StdoutExporter) Stop() {
}

func newLog(options StdoutOptions) *logrus.Logger {

	log := logrus.New()

	switch options.Format {
	case "json":
		formatter := &logrus.JSONFormatter{}
		formatter.TimestampFormat = options.TimestampFormat
		log.SetFormatter(formatter)
	case "template":
		t, err := template.New("").Parse(options.Template)
		if err != nil {
			log.Panic(err)
		}
		log.SetFormatter(&templateFormatter{template: t, timestampFormat: options.TimestampFormat})
	default:
		formatter := &logrus.TextFormatter{}
		formatter.TimestampFormat = options.TimestampFormat
		formatter.ForceColors = options.TextColors
		formatter.FullTimestamp = true
		log.SetFormatter(formatter)
	}

	level, err := logrus.ParseLevel(options.Level)
	if err != nil {
		level = logrus.InfoLevel
	}
	log.SetLevel(level)

	log.SetOutput(os.Stdout)
	return log
}

func NewStdoutExporter(stdout *Stdout) *StdoutExporter {

	if stdout == nil {
		return nil
	}
	stdout.Debug("Stdout exporter is up...")

	return &StdoutExporter{
		stdout: stdout,
	}
}

func NewStdout(options StdoutOptions) *Stdout {

	log := newLog(options)

	return &Stdout{
		log:          log,
		options:      options,
		callerOffset: 1,
	}
}
