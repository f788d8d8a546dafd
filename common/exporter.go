package common

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
)

const (
	defaultQueueSize     = 2048
	defaultBatchSize     = 128
	defaultFlushInterval = time.Second
	defaultExportTimeout = 10 * time.Second
)

type exportWorker struct {
	exporter  SpanExporter
	options   TracesOptions
	logger    Logger
	queue     chan *SpanData
	done      chan struct{}
	finished  chan struct{}
	sometimes rate.Sometimes
	exported  Counter
	failed    Counter
	dropped   Counter
}

// Exporters fans finished spans out to every registered sink. Each sink has its own
// queue and goroutine, so a slow or failing sink never affects the others or the caller.
type Exporters struct {
	options TracesOptions
	logger  Logger
	metrics *Metrics
	workers []*exportWorker
	stopped atomic.Bool
}

func (w *exportWorker) run() {

	defer close(w.finished)

	ticker := time.NewTicker(w.options.FlushInterval)
	defer ticker.Stop()

	batch := make([]*SpanData, 0, w.options.BatchSize)
	flush := func() {
		if len(batch) == 0 {
			return
		}
		w.export(batch)
		batch = make([]*SpanData, 0, w.options.BatchSize)
	}

	for {
		select {
		case data := <-w.queue:
			batch = append(batch, data)
			if len(batch) >= w.options.BatchSize {
				flush()
			}
		case <-ticker.C:
			flush()
		case <-w.done:
		drain:
			for {
				select {
				case data := <-w.queue:
					batch = append(batch, data)
					if len(batch) >= w.options.BatchSize {
						flush()
					}
				default:
					break drain
				}
			}
			flush()
			return
		}
	}
}

func (w *exportWorker) export(spans []*SpanData) {

	ctx, cancel := context.WithTimeout(context.Background(), w.options.ExportTimeout)
	defer cancel()

	errCh := make(chan error, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				errCh <- errors.Errorf("%s exporter panic: %v", w.exporter.Name(), r)
			}
		}()
		errCh <- w.exporter.ExportSpans(ctx, spans)
	}()

	var err error
	select {
	case err = <-errCh:
	case <-ctx.Done():
		err = errors.Wrapf(ctx.Err(), "%s exporter timed out", w.exporter.Name())
	}

	if err != nil {
		w.failed.Add(len(spans))
		w.sometimes.Do(func() {
			w.logger.Error("%s exporter couldn't export %d spans: %v", w.exporter.Name(), len(spans), err)
		})
		return
	}
	w.exported.Add(len(spans))
}

func (w *exportWorker) enqueue(data *SpanData) {

	select {
	case w.queue <- data:
	default:
		w.dropped.Inc()
		w.sometimes.Do(func() {
			w.logger.Warn("%s exporter queue is full, dropping spans", w.exporter.Name())
		})
	}
}

func (w *exportWorker) stop() (err error) {

	close(w.done)

	select {
	case <-w.finished:
	case <-time.After(w.options.ExportTimeout + w.options.FlushInterval):
		err = errors.Errorf("%s exporter didn't flush in time", w.exporter.Name())
	}

	defer func() {
		if r := recover(); r != nil {
			err = errors.Errorf("%s exporter panic on stop: %v", w.exporter.Name(), r)
		}
	}()
	w.exporter.Stop()
	return err
}

// Register must be called during startup only; the sink list is read-only afterwards.
func (es *Exporters) Register(e SpanExporter) {

	if e == nil || es.stopped.Load() {
		return
	}

	labels := Labels{"sink": e.Name()}
	w := &exportWorker{
		exporter:  e,
		options:   es.options,
		logger:    es.logger,
		queue:     make(chan *SpanData, es.options.QueueSize),
		done:      make(chan struct{}),
		finished:  make(chan struct{}),
		sometimes: rate.Sometimes{First: 1, Interval: 10 * time.Second},
		exported:  es.metrics.Counter("spans_exported", "Spans delivered to a sink", labels, "traces"),
		failed:    es.metrics.Counter("spans_failed", "Spans a sink failed to accept", labels, "traces"),
		dropped:   es.metrics.Counter("spans_dropped", "Spans dropped on a full sink queue", labels, "traces"),
	}
	es.workers = append(es.workers, w)
	go w.run()

	es.logger.Debug("%s exporter is registered", e.Name())
}

// Export never blocks and never fails; it is a no-op after Stop.
func (es *Exporters) Export(data *SpanData) {

	if es == nil || data == nil || es.stopped.Load() {
		return
	}
	for _, w := range es.workers {
		w.enqueue(data)
	}
}

func (es *Exporters) Names() []string {

	var names []string
	for _, w := range es.workers {
		names = append(names, w.exporter.Name())
	}
	return names
}

func (es *Exporters) Stop() {

	if es == nil || !es.stopped.CompareAndSwap(false, true) {
		return
	}

	var g errgroup.Group
	for _, w := range es.workers {
		w := w
		g.Go(w.stop)
	}
	if err := g.Wait(); err != nil {
		es.logger.Error(err)
	}
}

func NewExporters(options TracesOptions, logger Logger, metrics *Metrics) *Exporters {

	if options.QueueSize <= 0 {
		options.QueueSize = defaultQueueSize
	}
	if options.BatchSize <= 0 {
		options.BatchSize = defaultBatchSize
	}
	if options.FlushInterval <= 0 {
		options.FlushInterval = defaultFlushInterval
	}
	if options.ExportTimeout <= 0 {
		options.ExportTimeout = defaultExportTimeout
	}
	if logger == nil {
		logger = NewLogs()
	}
	if metrics == nil {
		metrics = NewMetrics()
	}

	return &Exporters{
		options: options,
		logger:  logger,
		metrics: metrics,
	}
}
