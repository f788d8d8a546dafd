package common

import (
	"context"
	"math"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/pkg/errors"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

type InvalidOperation struct {
	msg string
}

func (io InvalidOperation) Error() string {
	return io.msg
}

type point struct {
	X, Y int
}

func TestSpanStatusFirstWriteWins(t *testing.T) {

	memory := NewMemoryExporter("memory", 0)
	ts := testTraces(memory)
	defer ts.Stop()

	_, span := ts.StartSpan(context.Background(), "op")
	span.SetStatus(codes.Unset, "ignored")
	span.SetStatus(codes.Error, "first")
	span.SetStatus(codes.Ok, "")
	span.SetStatus(codes.Error, "second")
	span.Finish()

	spans := memory.WaitFor(1, time.Second)
	if len(spans) != 1 {
		t.Fatal("Invalid spans count")
	}
	if spans[0].Status != codes.Error || spans[0].StatusMessage != "first" {
		t.Fatalf("Invalid status %v %s", spans[0].Status, spans[0].StatusMessage)
	}
}

func TestSpanStatusUnsetIsTerminal(t *testing.T) {

	memory := NewMemoryExporter("memory", 0)
	ts := testTraces(memory)
	defer ts.Stop()

	_, span := ts.StartSpan(context.Background(), "op")
	span.Finish()

	spans := memory.WaitFor(1, time.Second)
	if len(spans) != 1 || spans[0].Status != codes.Unset {
		t.Fatal("Invalid unset status")
	}
}

func TestSpanFinishTwice(t *testing.T) {

	memory := NewMemoryExporter("memory", 0)
	ts := testTraces(memory)

	_, span := ts.StartSpan(context.Background(), "op")
	span.Finish()
	span.Finish()
	ts.Stop()

	if len(memory.Spans()) != 1 {
		t.Fatalf("Invalid export count %d", len(memory.Spans()))
	}
}

func TestSpanClosedIsNoop(t *testing.T) {

	memory := NewMemoryExporter("memory", 0)
	ts := testTraces(memory)

	_, span := ts.StartSpan(context.Background(), "op")
	span.SetTag("before", "yes")
	span.Finish()

	span.SetTag("after", "yes")
	span.AddEvent("late")
	span.RecordException(errors.New("late"))
	span.SetStatus(codes.Error, "late")
	ts.Stop()

	spans := memory.Spans()
	if len(spans) != 1 {
		t.Fatal("Invalid spans count")
	}
	data := spans[0]

	if _, ok := data.Attribute("after"); ok {
		t.Fatal("Invalid attribute after finish")
	}
	if _, ok := data.Attribute("before"); !ok {
		t.Fatal("Invalid attribute before finish")
	}
	if len(data.Events) != 0 || len(data.Exceptions) != 0 || data.Status != codes.Unset {
		t.Fatal("Invalid closed span mutation")
	}
	if data.EndTime.Before(data.StartTime) {
		t.Fatal("Invalid end time")
	}
}

func TestSpanAttributes(t *testing.T) {

	memory := NewMemoryExporter("memory", 0)
	ts := testTraces(memory)

	_, span := ts.StartSpan(context.Background(), "op")
	span.SetTag("city", "Paris")
	span.SetTag("city", "London")
	span.SetTag("count", 3)
	span.SetTag("ratio", 0.5)
	span.SetTag("cached", true)
	span.SetTag("point", point{X: 1, Y: 2})
	span.SetTag("nothing", nil)
	span.SetTag("", "empty")
	span.SetAttributes(attribute.Int64("kilograms", 80))
	span.Finish()
	ts.Stop()

	data := memory.Spans()[0]

	if v, _ := data.Attribute("city"); v.AsString() != "London" {
		t.Fatal("Invalid last write")
	}
	if v, _ := data.Attribute("count"); v.Type() != attribute.INT64 || v.AsInt64() != 3 {
		t.Fatal("Invalid int attribute")
	}
	if v, _ := data.Attribute("ratio"); v.AsFloat64() != 0.5 {
		t.Fatal("Invalid float attribute")
	}
	if v, _ := data.Attribute("cached"); !v.AsBool() {
		t.Fatal("Invalid bool attribute")
	}
	if v, _ := data.Attribute("point"); v.AsString() != "{1 2}" {
		t.Fatal("Invalid stringified attribute")
	}
	if _, ok := data.Attribute("nothing"); ok {
		t.Fatal("Invalid nil attribute")
	}
	if v, _ := data.Attribute("kilograms"); v.AsInt64() != 80 {
		t.Fatal("Invalid attribute")
	}

	for i := 1; i < len(data.Attributes); i++ {
		if data.Attributes[i-1].Key >= data.Attributes[i].Key {
			t.Fatal("Invalid attributes order")
		}
	}
}

func TestSpanAttributesScalarOnly(t *testing.T) {

	memory := NewMemoryExporter("memory", 0)
	ts := testTraces(memory)

	_, span := ts.StartSpan(context.Background(), "op")
	span.SetTag("u64", uint64(5))
	span.SetTag("uint", uint(7))
	span.SetTag("huge", uint64(math.MaxUint64))
	span.SetTag("list", attribute.StringSliceValue([]string{"a", "b"}))
	span.SetAttributes(attribute.StringSlice("slice", []string{"a", "b"}), attribute.Int64Slice("ints", []int64{1}))
	span.AddEvent("lookup", attribute.String("city", "Oslo"), attribute.BoolSlice("flags", []bool{true}))
	span.Finish()
	ts.Stop()

	data := memory.Spans()[0]

	if v, _ := data.Attribute("u64"); v.Type() != attribute.INT64 || v.AsInt64() != 5 {
		t.Fatal("Invalid uint64 attribute")
	}
	if v, _ := data.Attribute("uint"); v.Type() != attribute.INT64 || v.AsInt64() != 7 {
		t.Fatal("Invalid uint attribute")
	}
	if v, _ := data.Attribute("huge"); v.Type() != attribute.FLOAT64 {
		t.Fatal("Invalid huge uint64 attribute")
	}
	for _, key := range []string{"list", "slice", "ints"} {
		if _, ok := data.Attribute(key); ok {
			t.Fatalf("Invalid slice attribute %s", key)
		}
	}

	if len(data.Events) != 1 || len(data.Events[0].Attributes) != 1 {
		t.Fatal("Invalid event attributes")
	}
	if data.Events[0].Attributes[0].Key != "city" {
		t.Fatal("Invalid event attribute")
	}
}

func TestSpanRecordException(t *testing.T) {

	memory := NewMemoryExporter("memory", 0)
	ts := testTraces(memory)

	_, span := ts.StartSpan(context.Background(), "op")
	err := errors.Wrap(errors.WithStack(InvalidOperation{msg: "Bad Town"}), "lookup")
	span.RecordException(err)
	span.RecordException(nil)
	span.AddEvent("retry", attribute.Int("attempt", 1))
	span.Finish()
	ts.Stop()

	data := memory.Spans()[0]
	if len(data.Exceptions) != 1 {
		t.Fatal("Invalid exceptions count")
	}
	e := data.Exceptions[0]
	if e.Type != "common.InvalidOperation" {
		t.Fatalf("Invalid exception type %s", e.Type)
	}
	if e.Message != "lookup: Bad Town" {
		t.Fatalf("Invalid exception message %s", e.Message)
	}
	if !strings.Contains(e.Stacktrace, "TestSpanRecordException") {
		t.Fatal("Invalid exception stacktrace")
	}
	if data.Status != codes.Unset {
		t.Fatal("Invalid status after record exception")
	}
	if len(data.Events) != 1 || data.Events[0].Name != "retry" {
		t.Fatal("Invalid events")
	}
}

func TestSpanRecordExceptionPlainType(t *testing.T) {

	_, span := testTraces().StartSpan(context.Background(), "op")
	span.RecordException(errors.New("city is required"))
	span.RecordException(errors.Wrap(errors.Errorf("timeout"), "lookup"))

	tss := span.(*TracesSpan)
	if len(tss.exceptions) != 2 {
		t.Fatal("Invalid exceptions count")
	}
	for _, e := range tss.exceptions {
		if e.Type != "error" {
			t.Fatalf("Invalid exception type %s", e.Type)
		}
	}
	if tss.exceptions[0].Message != "city is required" {
		t.Fatalf("Invalid exception message %s", tss.exceptions[0].Message)
	}
}

func TestSpanRecordExceptionWithoutStack(t *testing.T) {

	_, span := testTraces().StartSpan(context.Background(), "op")
	span.RecordException(InvalidOperation{msg: "plain"})

	tss := span.(*TracesSpan)
	if len(tss.exceptions) != 1 {
		t.Fatal("Invalid exceptions count")
	}
	if !strings.Contains(tss.exceptions[0].Stacktrace, "TestSpanRecordExceptionWithoutStack") {
		t.Fatal("Invalid caller stacktrace")
	}
}

func TestSpanError(t *testing.T) {

	_, span := testTraces().StartSpan(context.Background(), "op")
	span.Error(errors.New("failed"))
	span.Error(nil)

	tss := span.(*TracesSpan)
	if tss.status != codes.Error || tss.statusMessage != "failed" || len(tss.exceptions) != 1 {
		t.Fatal("Invalid span error")
	}
}

func TestSpanCarrier(t *testing.T) {

	_, span := testTraces().StartSpan(context.Background(), "op")
	ctx := span.GetContext()

	h := http.Header{}
	span.SetCarrier(h)

	tp := h.Get("traceparent")
	if !strings.Contains(tp, ctx.GetTraceID()) || !strings.Contains(tp, ctx.GetSpanID()) {
		t.Fatalf("Invalid traceparent %s", tp)
	}
	if h.Get("X-Trace-ID") != ctx.GetTraceID() || h.Get("X-Span-ID") != ctx.GetSpanID() {
		t.Fatal("Invalid trace headers")
	}

	m := make(map[string]string)
	span.SetCarrier(m)
	if m["traceparent"] != tp {
		t.Fatal("Invalid map carrier")
	}
}

func TestSpanWrongNoop(t *testing.T) {

	var span TracerSpan = NoopSpan{}

	span.SetTag("k", "v").SetStatus(codes.Error, "x").RecordException(errors.New("x")).AddEvent("e")
	span.Error(errors.New("x")).SetCarrier(http.Header{}).SetAttributes(attribute.String("k", "v"))
	span.Finish()

	if span.IsRecording() {
		t.Fatal("Invalid noop recording")
	}
	if span.GetContext().GetTraceID() != "" || span.GetContext().GetSpanID() != "" {
		t.Fatal("Invalid noop context")
	}
}
