package common

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/pkg/errors"
	"go.opentelemetry.io/otel/codes"
)

func testInterceptor(exporters ...SpanExporter) (*Interceptor, *Traces, *testLogger) {

	logger := &testLogger{}
	ts := NewTraces(testTracesOptions(), logger, nil)
	for _, e := range exporters {
		ts.Register(e)
	}
	return NewInterceptor(ts, logger), ts, logger
}

func TestInterceptorCapturesError(t *testing.T) {

	memory := NewMemoryExporter("memory", 0)
	interceptor, ts, logger := testInterceptor(memory)

	original := errors.WithStack(InvalidOperation{msg: "Bad Town"})
	err := interceptor.Intercept(context.Background(), "op", nil, func(ctx context.Context) error {
		SpanFromContext(ctx).SetTag("city", "London")
		return original
	})
	ts.Stop()

	if err != original {
		t.Fatal("Invalid re-raised error")
	}

	spans := memory.Spans()
	if len(spans) != 1 {
		t.Fatal("Invalid spans count")
	}
	data := spans[0]
	if data.Status != codes.Error || data.StatusMessage != "Bad Town" {
		t.Fatal("Invalid error status")
	}
	if v, _ := data.Attribute("city"); v.AsString() != "London" {
		t.Fatal("Invalid attributes")
	}
	if len(data.Exceptions) != 1 {
		t.Fatal("Invalid exceptions count")
	}
	if data.Exceptions[0].Type != "common.InvalidOperation" || data.Exceptions[0].Message != "Bad Town" {
		t.Fatal("Invalid exception record")
	}
	if len(logger.Errors()) != 1 {
		t.Fatal("Invalid error log")
	}
}

func TestInterceptorSuccess(t *testing.T) {

	memory := NewMemoryExporter("memory", 0)
	interceptor, ts, logger := testInterceptor(memory)

	err := interceptor.Intercept(context.Background(), "op", nil, func(ctx context.Context) error {

		_, child := ts.StartSpan(ctx, "db-call")
		child.SetStatus(codes.Ok, "")
		child.Finish()

		SpanFromContext(ctx).SetStatus(codes.Ok, "")
		return nil
	})
	ts.Stop()

	if err != nil {
		t.Fatal(err)
	}

	root := memory.Find("op")
	child := memory.Find("db-call")
	if root == nil || child == nil || len(memory.Spans()) != 2 {
		t.Fatal("Invalid exported spans")
	}
	if root.TraceID != child.TraceID || child.ParentSpanID != root.SpanID {
		t.Fatal("Invalid span hierarchy")
	}
	if root.Status != codes.Ok || child.Status != codes.Ok {
		t.Fatal("Invalid status")
	}
	if len(root.Exceptions) != 0 || len(logger.Errors()) != 0 {
		t.Fatal("Invalid capture on success")
	}
}

func TestInterceptorHandlerStatusWins(t *testing.T) {

	memory := NewMemoryExporter("memory", 0)
	interceptor, ts, _ := testInterceptor(memory)

	interceptor.Intercept(context.Background(), "op", nil, func(ctx context.Context) error {
		SpanFromContext(ctx).SetStatus(codes.Error, "weather service is down")
		return errors.New("lookup failed")
	})
	ts.Stop()

	data := memory.Spans()[0]
	if data.StatusMessage != "weather service is down" {
		t.Fatal("Invalid overwritten status")
	}
	if len(data.Exceptions) != 1 || data.Exceptions[0].Message != "lookup failed" {
		t.Fatal("Invalid exception record")
	}
}

func TestInterceptorPanic(t *testing.T) {

	memory := NewMemoryExporter("memory", 0)
	interceptor, ts, _ := testInterceptor(memory)

	func() {
		defer func() {
			r := recover()
			if r != "boom" {
				t.Fatalf("Invalid re-panic value %v", r)
			}
		}()
		interceptor.Intercept(context.Background(), "op", nil, func(ctx context.Context) error {
			panic("boom")
		})
	}()
	ts.Stop()

	spans := memory.Spans()
	if len(spans) != 1 {
		t.Fatal("Invalid spans count")
	}
	data := spans[0]
	if data.Status != codes.Error || data.StatusMessage != "panic: boom" {
		t.Fatal("Invalid panic status")
	}
	if len(data.Exceptions) != 1 || data.Exceptions[0].Type != "common.PanicError" {
		t.Fatal("Invalid panic exception")
	}
}

func TestInterceptorPanicError(t *testing.T) {

	memory := NewMemoryExporter("memory", 0)
	interceptor, ts, _ := testInterceptor(memory)

	original := InvalidOperation{msg: "Bad Town"}
	func() {
		defer func() {
			if r := recover(); r != original {
				t.Fatalf("Invalid re-panic value %v", r)
			}
		}()
		interceptor.Intercept(context.Background(), "op", nil, func(ctx context.Context) error {
			panic(original)
		})
	}()
	ts.Stop()

	data := memory.Spans()[0]
	if data.Exceptions[0].Type != "common.InvalidOperation" || data.Exceptions[0].Message != "Bad Town" {
		t.Fatal("Invalid panic exception")
	}
}

func TestInterceptorAmbientSpan(t *testing.T) {

	memory := NewMemoryExporter("memory", 0)
	interceptor, ts, _ := testInterceptor(memory)

	ctx, outer := ts.StartSpan(context.Background(), "framework")
	interceptor.Intercept(ctx, "op", nil, func(ctx context.Context) error {
		return errors.New("failed")
	})

	time.Sleep(50 * time.Millisecond)
	if len(memory.Spans()) != 0 {
		t.Fatal("Invalid finish of foreign span")
	}

	outer.Finish()
	ts.Stop()

	spans := memory.Spans()
	if len(spans) != 1 || spans[0].Name != "framework" || spans[0].Status != codes.Error {
		t.Fatal("Invalid capture on ambient span")
	}
}

func TestInterceptorCancelled(t *testing.T) {

	memory := NewMemoryExporter("memory", 0)
	interceptor, ts, _ := testInterceptor(memory)

	ctx, cancel := context.WithCancel(context.Background())
	err := interceptor.Intercept(ctx, "op", nil, func(ctx context.Context) error {
		cancel()
		return nil
	})
	ts.Stop()

	if err != nil {
		t.Fatal(err)
	}
	data := memory.Spans()[0]
	if data.Status != codes.Error || data.StatusMessage != context.Canceled.Error() {
		t.Fatal("Invalid cancelled status")
	}
}

func TestInterceptorCarrier(t *testing.T) {

	memory := NewMemoryExporter("memory", 0)
	interceptor, ts, _ := testInterceptor(memory)

	h := http.Header{}
	h.Set("traceparent", "00-4bf92f3577b34da6a3ce929d0e0e4736-00f067aa0ba902b7-01")

	interceptor.Intercept(context.Background(), "op", h, func(ctx context.Context) error {
		return nil
	})
	ts.Stop()

	data := memory.Spans()[0]
	if data.TraceID.String() != "4bf92f3577b34da6a3ce929d0e0e4736" || data.ParentSpanID.String() != "00f067aa0ba902b7" {
		t.Fatal("Invalid remote parent")
	}
}

func TestInterceptorFailingSink(t *testing.T) {

	collector := NewMemoryExporter("collector", 0)
	collector.SetError(errors.New("unreachable"))
	cloud := NewMemoryExporter("cloud", 0)
	interceptor, ts, _ := testInterceptor(collector, cloud)

	err := interceptor.Intercept(context.Background(), "op", nil, func(ctx context.Context) error {
		return nil
	})
	ts.Stop()

	if err != nil {
		t.Fatal("Invalid sink error on request path")
	}
	if len(cloud.Spans()) != 1 || len(collector.Spans()) != 0 {
		t.Fatal("Invalid fan-out")
	}
}

func TestInterceptorWrongNil(t *testing.T) {

	var interceptor *Interceptor
	called := false

	err := interceptor.Intercept(context.Background(), "op", nil, func(ctx context.Context) error {
		called = true
		return nil
	})
	if err != nil || !called {
		t.Fatal("Invalid nil interceptor")
	}
}
