package provider

import (
	"errors"
	"fmt"
	"math"
	"net"
	"net/http"
	"sort"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/VictoriaMetrics/metrics"
	"github.com/devopsext/weightapi/common"
)

type PrometheusOptions struct {
	URL     string
	Listen  string
	Version string
	Prefix  string
}

type PrometheusCounter struct {
	counter *metrics.Counter
}

type PrometheusGauge struct {
	value atomic.Uint64
}

type PrometheusMeter struct {
	options  PrometheusOptions
	logger   common.Logger
	set      *metrics.Set
	gauges   *sync.Map
	listener net.Listener
	mu       sync.Mutex
}

func (p *PrometheusMeter) buildIdent(name string, labels common.Labels, prefixes ...string) string {

	name = common.MetricName(name, append([]string{p.options.Prefix}, prefixes...)...)

	lbs := ""
	if len(labels) > 0 {
		arr := []string{}
		for k, v := range labels {
			arr = append(arr, fmt.Sprintf(`%s=%q`, k, v))
		}
		sort.Strings(arr)
		lbs = fmt.Sprintf("{%s}", strings.Join(arr, ","))
	}
	return fmt.Sprintf(`%s%s`, name, lbs)
}

func (pc *PrometheusCounter) Inc() common.Counter {

	pc.counter.Inc()
	return pc
}

func (pc *PrometheusCounter) Add(value int) common.Counter {

	pc.counter.Add(value)
	return pc
}

func (p *PrometheusMeter) Counter(name, description string, labels common.Labels, prefixes ...string) common.Counter {

	ident := p.buildIdent(name, labels, prefixes...)
	return &PrometheusCounter{
		counter: p.set.GetOrCreateCounter(ident),
	}
}

func (pg *PrometheusGauge) Set(value float64) common.Gauge {

	pg.value.Store(math.Float64bits(value))
	return pg
}

func (pg *PrometheusGauge) get() float64 {
	return math.Float64frombits(pg.value.Load())
}

func (p *PrometheusMeter) Gauge(name, description string, labels common.Labels, prefixes ...string) common.Gauge {

	ident := p.buildIdent(name, labels, prefixes...)

	// one callback per ident, the set keeps the first one it was given
	g, loaded := p.gauges.LoadOrStore(ident, &PrometheusGauge{})
	gauge := g.(*PrometheusGauge)
	if !loaded {
		p.set.GetOrCreateGauge(ident, gauge.get)
	}
	return gauge
}

func (p *PrometheusMeter) ServeHTTP(w http.ResponseWriter, req *http.Request) {

	w.Header().Set("Content-Type", "text/plain; version=0.0.4")
	p.set.WritePrometheus(w)
}

// Start serves the metrics URL on its own listener and blocks until Stop.
func (p *PrometheusMeter) Start() bool {

	p.logger.Info("Start prometheus endpoint...")

	mux := http.NewServeMux()
	mux.Handle(p.options.URL, p)

	listener, err := net.Listen("tcp", p.options.Listen)
	if err != nil {
		p.logger.Error(err)
		return false
	}

	p.mu.Lock()
	p.listener = listener
	p.mu.Unlock()

	p.logger.Info("Prometheus is up. Listening...")
	err = http.Serve(listener, mux)
	if err != nil && !errors.Is(err, net.ErrClosed) {
		p.logger.Error(err)
		return false
	}
	return true
}

func (p *PrometheusMeter) StartInWaitGroup(wg *sync.WaitGroup) {

	wg.Add(1)

	go func(wg *sync.WaitGroup) {

		defer wg.Done()
		p.Start()
	}(wg)
}

func (p *PrometheusMeter) Stop() {

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.listener != nil {
		p.listener.Close()
		p.listener = nil
	}
}

func NewPrometheusMeter(options PrometheusOptions, logger common.Logger, stdout *Stdout) *PrometheusMeter {

	if logger == nil {
		logger = stdout
	}

	if common.IsEmpty(options.URL) {
		stdout.Debug("Prometheus meter is disabled.")
		return nil
	}

	return &PrometheusMeter{
		options: options,
		logger:  logger,
		set:     metrics.NewSet(),
		gauges:  &sync.Map{},
	}
}
