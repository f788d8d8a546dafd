package common

import (
	"context"
	"sync"
	"time"
)

// MemoryExporter keeps the last finished spans in memory. It backs /debug/spans
// and is the recording sink in tests.
type MemoryExporter struct {
	name  string
	limit int
	mu    sync.Mutex
	spans []*SpanData
	err   error
}

func (me *MemoryExporter) Name() string {
	return me.name
}

func (me *MemoryExporter) ExportSpans(ctx context.Context, spans []*SpanData) error {

	me.mu.Lock()
	defer me.mu.Unlock()

	if me.err != nil {
		return me.err
	}

	me.spans = append(me.spans, spans...)
	if me.limit > 0 && len(me.spans) > me.limit {
		me.spans = append([]*SpanData(nil), me.spans[len(me.spans)-me.limit:]...)
	}
	return nil
}

func (me *MemoryExporter) Stop() {
}

// SetError makes every following export fail with err; nil restores delivery.
func (me *MemoryExporter) SetError(err error) {

	me.mu.Lock()
	defer me.mu.Unlock()
	me.err = err
}

func (me *MemoryExporter) Spans() []*SpanData {

	me.mu.Lock()
	defer me.mu.Unlock()
	return append([]*SpanData(nil), me.spans...)
}

func (me *MemoryExporter) Find(name string) *SpanData {

	for _, s := range me.Spans() {
		if s.Name == name {
			return s
		}
	}
	return nil
}

func (me *MemoryExporter) Reset() {

	me.mu.Lock()
	defer me.mu.Unlock()
	me.spans = nil
}

// WaitFor polls until at least count spans were exported or timeout elapses.
func (me *MemoryExporter) WaitFor(count int, timeout time.Duration) []*SpanData {

	deadline := time.Now().Add(timeout)
	for {
		spans := me.Spans()
		if len(spans) >= count || time.Now().After(deadline) {
			return spans
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func NewMemoryExporter(name string, limit int) *MemoryExporter {

	if IsEmpty(name) {
		name = "memory"
	}
	return &MemoryExporter{
		name:  name,
		limit: limit,
	}
}
