package common

import (
	"context"
	stderrors "errors"
	"fmt"
	"math"
	"net/http"
	"path"
	"reflect"
	"runtime"
	"sort"
	"strings"
	"sync"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/pkg/errors"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

const headerTraceID string = "X-Trace-ID"
const headerSpanID string = "X-Span-ID"

type ExceptionRecord struct {
	Type       string
	Message    string
	Stacktrace string
	Time       time.Time
}

type Event struct {
	Name       string
	Time       time.Time
	Attributes []attribute.KeyValue
}

// SpanData is the immutable snapshot of a finished span handed to every sink.
type SpanData struct {
	TraceID       trace.TraceID
	SpanID        trace.SpanID
	ParentSpanID  trace.SpanID
	Name          string
	StartTime     time.Time
	EndTime       time.Time
	Attributes    []attribute.KeyValue
	Status        codes.Code
	StatusMessage string
	Exceptions    []ExceptionRecord
	Events        []Event
	Service       string
	Resource      []attribute.KeyValue
}

func (sd *SpanData) IsRoot() bool {
	return !sd.ParentSpanID.IsValid()
}

func (sd *SpanData) Duration() time.Duration {
	return sd.EndTime.Sub(sd.StartTime)
}

func (sd *SpanData) Attribute(key string) (attribute.Value, bool) {

	for _, kv := range sd.Attributes {
		if string(kv.Key) == key {
			return kv.Value, true
		}
	}
	return attribute.Value{}, false
}

type TracesSpanContext struct {
	traceID  trace.TraceID
	spanID   trace.SpanID
	parentID trace.SpanID
}

type TracesSpan struct {
	mu            sync.Mutex
	traces        *Traces
	name          string
	traceID       trace.TraceID
	spanID        trace.SpanID
	parentID      trace.SpanID
	startTime     time.Time
	attributes    map[attribute.Key]attribute.Value
	events        []Event
	exceptions    []ExceptionRecord
	status        codes.Code
	statusMessage string
	finished      bool
}

// NoopSpan silently discards everything; returned when a span cannot be created.
type NoopSpan struct{}

func (tssc TracesSpanContext) GetTraceID() string {

	if !tssc.traceID.IsValid() {
		return ""
	}
	return tssc.traceID.String()
}

func (tssc TracesSpanContext) GetSpanID() string {

	if !tssc.spanID.IsValid() {
		return ""
	}
	return tssc.spanID.String()
}

func (tssc TracesSpanContext) GetParentSpanID() string {

	if !tssc.parentID.IsValid() {
		return ""
	}
	return tssc.parentID.String()
}

func (tssc TracesSpanContext) otelSpanContext() trace.SpanContext {

	return trace.NewSpanContext(trace.SpanContextConfig{
		TraceID:    tssc.traceID,
		SpanID:     tssc.spanID,
		TraceFlags: trace.FlagsSampled,
	})
}

func (tss *TracesSpan) GetContext() TracerSpanContext {

	return TracesSpanContext{
		traceID:  tss.traceID,
		spanID:   tss.spanID,
		parentID: tss.parentID,
	}
}

func (tss *TracesSpan) SetCarrier(object interface{}) TracerSpan {

	spanCtx := TracesSpanContext{traceID: tss.traceID, spanID: tss.spanID}
	ctx := trace.ContextWithSpanContext(context.Background(), spanCtx.otelSpanContext())

	switch h := object.(type) {
	case http.Header:
		propagation.TraceContext{}.Inject(ctx, propagation.HeaderCarrier(h))

		name := http.CanonicalHeaderKey(headerTraceID)
		if len(h[name]) == 0 {
			h[name] = append(h[name], spanCtx.GetTraceID())
		}
		name = http.CanonicalHeaderKey(headerSpanID)
		if len(h[name]) == 0 {
			h[name] = append(h[name], spanCtx.GetSpanID())
		}
	case map[string]string:
		propagation.TraceContext{}.Inject(ctx, propagation.MapCarrier(h))
	}
	return tss
}

func (tss *TracesSpan) SetTag(key string, value interface{}) TracerSpan {

	if IsEmpty(key) {
		return tss
	}
	v, ok := attributeValue(value)
	if !ok {
		return tss
	}
	return tss.SetAttributes(attribute.KeyValue{Key: attribute.Key(key), Value: v})
}

func (tss *TracesSpan) SetAttributes(kv ...attribute.KeyValue) TracerSpan {

	tss.mu.Lock()
	defer tss.mu.Unlock()

	if tss.finished {
		return tss
	}
	for _, a := range kv {
		if !isScalar(a) {
			continue
		}
		tss.attributes[a.Key] = a.Value
	}
	return tss
}

func (tss *TracesSpan) AddEvent(name string, kv ...attribute.KeyValue) TracerSpan {

	tss.mu.Lock()
	defer tss.mu.Unlock()

	if tss.finished {
		return tss
	}
	var attributes []attribute.KeyValue
	for _, a := range kv {
		if isScalar(a) {
			attributes = append(attributes, a)
		}
	}
	tss.events = append(tss.events, Event{
		Name:       name,
		Time:       time.Now(),
		Attributes: attributes,
	})
	return tss
}

func (tss *TracesSpan) RecordException(err error) TracerSpan {

	if err == nil {
		return tss
	}

	record := ExceptionRecord{
		Type:       exceptionType(err),
		Message:    err.Error(),
		Stacktrace: exceptionStacktrace(err),
		Time:       time.Now(),
	}

	tss.mu.Lock()
	defer tss.mu.Unlock()

	if tss.finished {
		return tss
	}
	tss.exceptions = append(tss.exceptions, record)
	return tss
}

// SetStatus keeps the first terminal status; cleanup code cannot overwrite an
// error set deeper in the call.
func (tss *TracesSpan) SetStatus(code codes.Code, message string) TracerSpan {

	if code == codes.Unset {
		return tss
	}

	tss.mu.Lock()
	defer tss.mu.Unlock()

	if tss.finished || tss.status != codes.Unset {
		return tss
	}
	tss.status = code
	tss.statusMessage = message
	return tss
}

func (tss *TracesSpan) Error(err error) TracerSpan {

	if err == nil {
		return tss
	}
	tss.SetStatus(codes.Error, err.Error())
	tss.RecordException(err)
	return tss
}

func (tss *TracesSpan) IsRecording() bool {
	return true
}

func (tss *TracesSpan) Finish() {

	tss.mu.Lock()
	if tss.finished {
		tss.mu.Unlock()
		return
	}
	tss.finished = true
	data := tss.snapshot(time.Now())
	tss.mu.Unlock()

	if tss.traces != nil {
		tss.traces.exporters.Export(data)
	}
}

func (tss *TracesSpan) snapshot(end time.Time) *SpanData {

	if end.Before(tss.startTime) {
		end = tss.startTime
	}

	attributes := make([]attribute.KeyValue, 0, len(tss.attributes))
	for k, v := range tss.attributes {
		attributes = append(attributes, attribute.KeyValue{Key: k, Value: v})
	}
	sort.Slice(attributes, func(i, j int) bool {
		return attributes[i].Key < attributes[j].Key
	})

	data := &SpanData{
		TraceID:       tss.traceID,
		SpanID:        tss.spanID,
		ParentSpanID:  tss.parentID,
		Name:          tss.name,
		StartTime:     tss.startTime,
		EndTime:       end,
		Attributes:    attributes,
		Status:        tss.status,
		StatusMessage: tss.statusMessage,
		Exceptions:    append([]ExceptionRecord(nil), tss.exceptions...),
		Events:        append([]Event(nil), tss.events...),
	}
	if tss.traces != nil {
		data.Service = tss.traces.options.ServiceName
		data.Resource = tss.traces.resource
	}
	return data
}

func (ns NoopSpan) GetContext() TracerSpanContext {
	return TracesSpanContext{}
}

func (ns NoopSpan) SetCarrier(object interface{}) TracerSpan {
	return ns
}

func (ns NoopSpan) SetTag(key string, value interface{}) TracerSpan {
	return ns
}

func (ns NoopSpan) SetAttributes(kv ...attribute.KeyValue) TracerSpan {
	return ns
}

func (ns NoopSpan) AddEvent(name string, kv ...attribute.KeyValue) TracerSpan {
	return ns
}

func (ns NoopSpan) RecordException(err error) TracerSpan {
	return ns
}

func (ns NoopSpan) SetStatus(code codes.Code, message string) TracerSpan {
	return ns
}

func (ns NoopSpan) Error(err error) TracerSpan {
	return ns
}

func (ns NoopSpan) IsRecording() bool {
	return false
}

func (ns NoopSpan) Finish() {
}

// isScalar keeps attributes to string, int64, float64 and bool values.
func isScalar(kv attribute.KeyValue) bool {

	if !kv.Valid() {
		return false
	}
	switch kv.Value.Type() {
	case attribute.BOOL, attribute.INT64, attribute.FLOAT64, attribute.STRING:
		return true
	}
	return false
}

func unsignedValue(v uint64) attribute.Value {

	if v > math.MaxInt64 {
		return attribute.Float64Value(float64(v))
	}
	return attribute.Int64Value(int64(v))
}

// attributeValue narrows arbitrary values to the scalar kinds sinks understand.
func attributeValue(value interface{}) (attribute.Value, bool) {

	switch v := value.(type) {
	case nil:
		return attribute.Value{}, false
	case bool:
		return attribute.BoolValue(v), true
	case string:
		return attribute.StringValue(v), true
	case int:
		return attribute.IntValue(v), true
	case int8:
		return attribute.Int64Value(int64(v)), true
	case int16:
		return attribute.Int64Value(int64(v)), true
	case int32:
		return attribute.Int64Value(int64(v)), true
	case int64:
		return attribute.Int64Value(v), true
	case uint8:
		return attribute.Int64Value(int64(v)), true
	case uint16:
		return attribute.Int64Value(int64(v)), true
	case uint32:
		return attribute.Int64Value(int64(v)), true
	case uint:
		return unsignedValue(uint64(v)), true
	case uint64:
		return unsignedValue(v), true
	case uintptr:
		return unsignedValue(uint64(v)), true
	case float32:
		return attribute.Float64Value(float64(v)), true
	case float64:
		return attribute.Float64Value(v), true
	case attribute.Value:
		return v, isScalar(attribute.KeyValue{Key: "value", Value: v})
	case error:
		return attribute.StringValue(v.Error()), true
	case fmt.Stringer:
		return attribute.StringValue(v.String()), true
	default:
		return attribute.StringValue(fmt.Sprintf("%v", v)), true
	}
}

func rootCause(err error) error {

	for err != nil {
		if c, ok := err.(interface{ Cause() error }); ok && c.Cause() != nil {
			err = c.Cause()
			continue
		}
		next := stderrors.Unwrap(err)
		if next == nil {
			break
		}
		err = next
	}
	return err
}

func exceptionType(err error) string {

	t := reflect.TypeOf(rootCause(err))
	if t == nil {
		return ""
	}
	for t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	if t.Name() == "" {
		return t.String()
	}
	if t.PkgPath() == "" {
		return t.Name()
	}
	// unexported roots such as errors.New values say nothing about the failure
	if r, _ := utf8.DecodeRuneInString(t.Name()); !unicode.IsUpper(r) {
		return "error"
	}
	return fmt.Sprintf("%s.%s", path.Base(t.PkgPath()), t.Name())
}

type stackTracer interface {
	StackTrace() errors.StackTrace
}

// exceptionStacktrace prefers the deepest stack attached to the error chain and
// falls back to the stack of the recording caller.
func exceptionStacktrace(err error) string {

	var st errors.StackTrace
	for e := err; e != nil; {
		if s, ok := e.(stackTracer); ok {
			st = s.StackTrace()
		}
		if c, ok := e.(interface{ Cause() error }); ok && c.Cause() != nil {
			e = c.Cause()
			continue
		}
		e = stderrors.Unwrap(e)
	}
	if st != nil {
		return strings.TrimPrefix(fmt.Sprintf("%+v", st), "\n")
	}
	return callerStack(4)
}

func callerStack(offset int) string {

	pc := make([]uintptr, 32)
	n := runtime.Callers(offset, pc)
	frames := runtime.CallersFrames(pc[:n])

	var sb strings.Builder
	for {
		frame, more := frames.Next()
		fmt.Fprintf(&sb, "%s\n\t%s:%d\n", frame.Function, frame.File, frame.Line)
		if !more {
			break
		}
	}
	return sb.String()
}
