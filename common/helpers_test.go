package common

import (
	"context"
	"fmt"
	"sync"
	"time"
)

type testCounter struct {
	mu    sync.Mutex
	value int
}

type testMeter struct {
	mu       sync.Mutex
	counters map[string]*testCounter
}

type testLogger struct {
	mu     sync.Mutex
	errors []string
}

type blockingExporter struct {
	name    string
	release chan struct{}
}

type panicExporter struct{}

func (tc *testCounter) Inc() Counter {
	return tc.Add(1)
}

func (tc *testCounter) Add(value int) Counter {

	tc.mu.Lock()
	defer tc.mu.Unlock()
	tc.value += value
	return tc
}

func (tc *testCounter) Value() int {

	tc.mu.Lock()
	defer tc.mu.Unlock()
	return tc.value
}

func (tm *testMeter) Counter(name, description string, labels Labels, prefixes ...string) Counter {
	return tm.counter(fmt.Sprintf("%s{%s}", MetricName(name, prefixes...), labels["sink"]))
}

func (tm *testMeter) counter(key string) *testCounter {

	tm.mu.Lock()
	defer tm.mu.Unlock()

	c, ok := tm.counters[key]
	if !ok {
		c = &testCounter{}
		tm.counters[key] = c
	}
	return c
}

func (tm *testMeter) Gauge(name, description string, labels Labels, prefixes ...string) Gauge {
	return nil
}

func (tm *testMeter) Stop() {
}

func (tl *testLogger) add(obj interface{}, args ...interface{}) Logger {

	tl.mu.Lock()
	defer tl.mu.Unlock()

	switch v := obj.(type) {
	case error:
		tl.errors = append(tl.errors, v.Error())
	case string:
		tl.errors = append(tl.errors, fmt.Sprintf(v, args...))
	}
	return tl
}

func (tl *testLogger) Errors() []string {

	tl.mu.Lock()
	defer tl.mu.Unlock()
	return append([]string(nil), tl.errors...)
}

func (tl *testLogger) Info(obj interface{}, args ...interface{}) Logger { return tl }
func (tl *testLogger) SpanInfo(span TracerSpan, obj interface{}, args ...interface{}) Logger {
	return tl
}
func (tl *testLogger) Warn(obj interface{}, args ...interface{}) Logger { return tl }
func (tl *testLogger) SpanWarn(span TracerSpan, obj interface{}, args ...interface{}) Logger {
	return tl
}
func (tl *testLogger) Error(obj interface{}, args ...interface{}) Logger {
	return tl.add(obj, args...)
}
func (tl *testLogger) SpanError(span TracerSpan, obj interface{}, args ...interface{}) Logger {
	return tl.add(obj, args...)
}
func (tl *testLogger) Debug(obj interface{}, args ...interface{}) Logger { return tl }
func (tl *testLogger) SpanDebug(span TracerSpan, obj interface{}, args ...interface{}) Logger {
	return tl
}
func (tl *testLogger) Panic(obj interface{}, args ...interface{}) Logger { return tl }
func (tl *testLogger) SpanPanic(span TracerSpan, obj interface{}, args ...interface{}) Logger {
	return tl
}
func (tl *testLogger) Stack(offset int) Logger { return tl }

func (be *blockingExporter) Name() string {
	return be.name
}

func (be *blockingExporter) ExportSpans(ctx context.Context, spans []*SpanData) error {

	select {
	case <-be.release:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (be *blockingExporter) Stop() {
}

func (pe *panicExporter) Name() string {
	return "panic"
}

func (pe *panicExporter) ExportSpans(ctx context.Context, spans []*SpanData) error {
	panic("sink is broken")
}

func (pe *panicExporter) Stop() {
	panic("sink is broken on stop")
}

func newTestMeter() *testMeter {
	return &testMeter{counters: make(map[string]*testCounter)}
}

func testTracesOptions() TracesOptions {

	return TracesOptions{
		ServiceName:   "weightapi-test",
		Version:       "0.0.1",
		Environment:   "test",
		BatchSize:     1,
		FlushInterval: 10 * time.Millisecond,
		ExportTimeout: time.Second,
	}
}

func testTraces(exporters ...SpanExporter) *Traces {

	ts := NewTraces(testTracesOptions(), nil, nil)
	for _, e := range exporters {
		ts.Register(e)
	}
	return ts
}
