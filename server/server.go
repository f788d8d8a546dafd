package server

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/devopsext/weightapi/common"
	"github.com/devopsext/weightapi/weather"
	"github.com/devopsext/weightapi/weight"
	"github.com/gin-gonic/gin"
	"github.com/pkg/errors"
)

type ServerOptions struct {
	Listen     string
	Mode       string
	DebugSpans int
}

type Server struct {
	options     ServerOptions
	engine      *gin.Engine
	server      *http.Server
	traces      *common.Traces
	interceptor *common.Interceptor
	metrics     *common.Metrics
	logger      common.Logger
	weather     *weather.Client
	weights     weight.Store
	spans       *common.MemoryExporter
}

func (s *Server) routes() {

	s.engine.GET("/health", s.health)
	s.engine.GET("/weather/:city", handle(s.getWeather))

	weights := s.engine.Group("/weights")
	weights.GET("", handle(s.listWeights))
	weights.POST("", handle(s.createWeight))
	weights.GET("/:id", handle(s.getWeight))
	weights.PUT("/:id", handle(s.updateWeight))
	weights.DELETE("/:id", handle(s.deleteWeight))

	if s.spans != nil {
		s.engine.GET("/debug/spans", s.debugSpans)
	}
}

func (s *Server) Handler() http.Handler {
	return s.engine
}

// Handle mounts a plain http.Handler, e.g. the metrics endpoint, on the server.
func (s *Server) Handle(path string, handler http.Handler) {

	if handler == nil || common.IsEmpty(path) {
		return
	}
	s.engine.GET(path, gin.WrapH(handler))
}

func (s *Server) Start(wg *sync.WaitGroup) {

	wg.Add(1)

	go func(wg *sync.WaitGroup) {

		defer wg.Done()

		s.logger.Info("Start http server...")
		s.logger.Info("Http server is up. Listening on %s...", s.options.Listen)

		err := s.server.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error(err)
		}
	}(wg)
}

func (s *Server) Stop(ctx context.Context) error {

	if ctx == nil {
		ctx = context.Background()
	}
	return s.server.Shutdown(ctx)
}

func NewServer(options ServerOptions, traces *common.Traces, metrics *common.Metrics, logger common.Logger,
	forecasts *weather.Client, weights weight.Store) *Server {

	if logger == nil {
		logger = common.NewLogs()
	}
	if metrics == nil {
		metrics = common.NewMetrics()
	}
	if common.IsEmpty(options.Mode) {
		options.Mode = gin.ReleaseMode
	}
	gin.SetMode(options.Mode)

	engine := gin.New()
	engine.ContextWithFallback = true

	s := &Server{
		options:     options,
		engine:      engine,
		traces:      traces,
		interceptor: common.NewInterceptor(traces, logger),
		metrics:     metrics,
		logger:      logger,
		weather:     forecasts,
		weights:     weights,
	}

	if options.DebugSpans > 0 {
		s.spans = common.NewMemoryExporter("debug", options.DebugSpans)
		traces.Register(s.spans)
	}

	engine.Use(gin.Recovery(), RequestID(), Tracing(s.interceptor, metrics), errorResponder())
	s.routes()

	s.server = &http.Server{
		Addr:              options.Listen,
		Handler:           engine,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}
