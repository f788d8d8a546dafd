package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/devopsext/utils"
	"github.com/devopsext/weightapi/common"
	"github.com/devopsext/weightapi/provider"
	"github.com/devopsext/weightapi/server"
	"github.com/devopsext/weightapi/weather"
	"github.com/devopsext/weightapi/weight"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

var VERSION = "unknown"
var APPNAME = "WEIGHTAPI"

var logs = common.NewLogs()
var metrics = common.NewMetrics()
var traces *common.Traces
var stdout *provider.Stdout
var prometheus *provider.PrometheusMeter
var mainWG sync.WaitGroup

type RootOptions struct {
	Logs    []string
	Metrics []string
	Traces  []string
}

type StoreOptions struct {
	Store string
	Cache string
}

func envGet(s string, d interface{}) interface{} {
	return utils.EnvGet(fmt.Sprintf("%s_%s", APPNAME, s), d)
}

func envList(s string, d string) []string {

	var list []string
	for _, v := range strings.Split(envGet(s, d).(string), ",") {
		if v = strings.TrimSpace(v); v != "" {
			list = append(list, v)
		}
	}
	return list
}

func envDuration(s string, d time.Duration) time.Duration {

	v, err := time.ParseDuration(envGet(s, d.String()).(string))
	if err != nil {
		return d
	}
	return v
}

var rootOptions = RootOptions{
	Logs:    envList("LOGS", "stdout"),
	Metrics: envList("METRICS", "prometheus"),
	Traces:  envList("TRACES", "stdout"),
}

var stdoutOptions = provider.StdoutOptions{
	Format:          envGet("STDOUT_FORMAT", "text").(string),
	Level:           envGet("STDOUT_LEVEL", "info").(string),
	Template:        envGet("STDOUT_TEMPLATE", "{{.file}} {{.msg}}").(string),
	TimestampFormat: envGet("STDOUT_TIMESTAMP_FORMAT", time.RFC3339Nano).(string),
	TextColors:      envGet("STDOUT_TEXT_COLORS", true).(bool),
}

var tracesOptions = common.TracesOptions{
	ServiceName:   envGet("SERVICE_NAME", "weightapi").(string),
	Environment:   envGet("ENVIRONMENT", "none").(string),
	Attributes:    envGet("ATTRIBUTES", "").(string),
	QueueSize:     envGet("TRACES_QUEUE_SIZE", 2048).(int),
	BatchSize:     envGet("TRACES_BATCH_SIZE", 128).(int),
	FlushInterval: envDuration("TRACES_FLUSH_INTERVAL", time.Second),
	ExportTimeout: envDuration("TRACES_EXPORT_TIMEOUT", 10*time.Second),
}

var serverOptions = server.ServerOptions{
	Listen:     envGet("SERVER_LISTEN", ":8080").(string),
	Mode:       envGet("SERVER_MODE", "release").(string),
	DebugSpans: envGet("SERVER_DEBUG_SPANS", 0).(int),
}

var storeOptions = StoreOptions{
	Store: envGet("STORE", "memory").(string),
	Cache: envGet("CACHE", "memory").(string),
}

var postgresOptions = weight.PostgresOptions{
	DSN:      envGet("POSTGRES_DSN", "").(string),
	MaxConns: int32(envGet("POSTGRES_MAX_CONNS", 10).(int)),
}

var redisOptions = weather.RedisOptions{
	Addr:     envGet("REDIS_ADDR", "127.0.0.1:6379").(string),
	Password: envGet("REDIS_PASSWORD", "").(string),
	DB:       envGet("REDIS_DB", 0).(int),
	Prefix:   envGet("REDIS_PREFIX", "weightapi:weather:").(string),
}

var weatherOptions = weather.ClientOptions{
	URL:      envGet("WEATHER_URL", "").(string),
	Timeout:  envGet("WEATHER_TIMEOUT", 5).(int),
	Insecure: envGet("WEATHER_INSECURE", false).(bool),
	CacheTTL: envDuration("WEATHER_CACHE_TTL", 10*time.Minute),
}

var prometheusOptions = provider.PrometheusOptions{
	URL:    envGet("PROMETHEUS_URL", "/metrics").(string),
	Listen: envGet("PROMETHEUS_LISTEN", "").(string),
	Prefix: envGet("PROMETHEUS_PREFIX", "weightapi").(string),
}

var jaegerOptions = provider.JaegerOptions{
	ServiceName:         envGet("JAEGER_SERVICE_NAME", "").(string),
	AgentHost:           envGet("JAEGER_AGENT_HOST", "").(string),
	AgentPort:           envGet("JAEGER_AGENT_PORT", 6831).(int),
	Endpoint:            envGet("JAEGER_ENDPOINT", "").(string),
	User:                envGet("JAEGER_USER", "").(string),
	Password:            envGet("JAEGER_PASSWORD", "").(string),
	BufferFlushInterval: envGet("JAEGER_BUFFER_FLUSH_INTERVAL", 0).(int),
	QueueSize:           envGet("JAEGER_QUEUE_SIZE", 0).(int),
	Tags:                envGet("JAEGER_TAGS", "").(string),
}

var datadogOptions = provider.DataDogOptions{
	ServiceName: envGet("DATADOG_SERVICE_NAME", "").(string),
	Environment: envGet("DATADOG_ENVIRONMENT", "none").(string),
	Tags:        envGet("DATADOG_TAGS", "").(string),
	Debug:       envGet("DATADOG_DEBUG", false).(bool),
}

var datadogTracerOptions = provider.DataDogTracerOptions{
	AgentHost: envGet("DATADOG_TRACER_HOST", "").(string),
	AgentPort: envGet("DATADOG_TRACER_PORT", 8126).(int),
}

var datadogLoggerOptions = provider.DataDogLoggerOptions{
	AgentHost: envGet("DATADOG_LOGGER_HOST", "").(string),
	AgentPort: envGet("DATADOG_LOGGER_PORT", 10518).(int),
	Level:     envGet("DATADOG_LOGGER_LEVEL", "info").(string),
}

var datadogMeterOptions = provider.DataDogMeterOptions{
	AgentHost: envGet("DATADOG_METER_HOST", "").(string),
	AgentPort: envGet("DATADOG_METER_PORT", 8125).(int),
	Prefix:    envGet("DATADOG_METER_PREFIX", "weightapi").(string),
}

var newrelicOptions = provider.NewRelicOptions{
	ApiKey:      envGet("NEWRELIC_API_KEY", "").(string),
	ServiceName: envGet("NEWRELIC_SERVICE_NAME", "").(string),
	Environment: envGet("NEWRELIC_ENVIRONMENT", "none").(string),
	Attributes:  envGet("NEWRELIC_ATTRIBUTES", "").(string),
	Debug:       envGet("NEWRELIC_DEBUG", false).(bool),
}

var newrelicTracerOptions = provider.NewRelicTracerOptions{
	Endpoint: envGet("NEWRELIC_TRACER_ENDPOINT", "").(string),
}

var newrelicLoggerOptions = provider.NewRelicLoggerOptions{
	Endpoint:  envGet("NEWRELIC_LOGGER_ENDPOINT", "").(string),
	AgentHost: envGet("NEWRELIC_LOGGER_AGENT_HOST", "").(string),
	AgentPort: envGet("NEWRELIC_LOGGER_AGENT_PORT", 5171).(int),
	Level:     envGet("NEWRELIC_LOGGER_LEVEL", "info").(string),
}

var newrelicMeterOptions = provider.NewRelicMeterOptions{
	Endpoint: envGet("NEWRELIC_METER_ENDPOINT", "").(string),
	Prefix:   envGet("NEWRELIC_METER_PREFIX", "weightapi").(string),
}

var opentelemetryOptions = provider.OpentelemetryOptions{
	ServiceName: envGet("OPENTELEMETRY_SERVICE_NAME", "").(string),
	Environment: envGet("OPENTELEMETRY_ENVIRONMENT", "none").(string),
	Attributes:  envGet("OPENTELEMETRY_ATTRIBUTES", "").(string),
}

var opentelemetryTracerOptions = provider.OpentelemetryTracerOptions{
	AgentHost: envGet("OPENTELEMETRY_TRACER_HOST", "").(string),
	AgentPort: envGet("OPENTELEMETRY_TRACER_PORT", 4317).(int),
	Protocol:  envGet("OPENTELEMETRY_TRACER_PROTOCOL", "grpc").(string),
}

var opentelemetryMeterOptions = provider.OpentelemetryMeterOptions{
	AgentHost:     envGet("OPENTELEMETRY_METER_HOST", "").(string),
	AgentPort:     envGet("OPENTELEMETRY_METER_PORT", 4317).(int),
	Prefix:        envGet("OPENTELEMETRY_METER_PREFIX", "weightapi").(string),
	CollectPeriod: int64(envGet("OPENTELEMETRY_METER_COLLECT_PERIOD", 1000).(int)),
}

func serviceName(name string) string {

	if common.IsEmpty(name) {
		return tracesOptions.ServiceName
	}
	return name
}

func environmentName(name string) string {

	if common.IsEmpty(name) || name == "none" {
		return tracesOptions.Environment
	}
	return name
}

func interceptSyscall(cancel context.CancelFunc) {

	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM, syscall.SIGQUIT)
	go func() {
		<-c
		logs.Info("Exiting...")
		cancel()
	}()
}

func setupLogs() {

	stdoutOptions.Version = VERSION
	stdout = provider.NewStdout(stdoutOptions)
	stdout.SetCallerOffset(2)
	if common.HasElem(rootOptions.Logs, "stdout") {
		logs.Register(stdout)
	}

	datadogLoggerOptions.DataDogOptions = datadogOptions
	datadogLoggerOptions.ServiceName = serviceName(datadogOptions.ServiceName)
	datadogLoggerOptions.Version = VERSION
	datadogLogger := provider.NewDataDogLogger(datadogLoggerOptions, logs, stdout)
	if datadogLogger != nil && common.HasElem(rootOptions.Logs, "datadog") {
		logs.Register(datadogLogger)
	}

	newrelicLoggerOptions.NewRelicOptions = newrelicOptions
	newrelicLoggerOptions.ServiceName = serviceName(newrelicOptions.ServiceName)
	newrelicLoggerOptions.Version = VERSION
	newrelicLogger := provider.NewNewRelicLogger(newrelicLoggerOptions, logs, stdout)
	if newrelicLogger != nil && common.HasElem(rootOptions.Logs, "newrelic") {
		logs.Register(newrelicLogger)
	}
}

func setupMetrics() {

	prometheusOptions.Version = VERSION
	prometheus = provider.NewPrometheusMeter(prometheusOptions, logs, stdout)
	if prometheus != nil && common.HasElem(rootOptions.Metrics, "prometheus") {
		metrics.Register(prometheus)
	} else {
		prometheus = nil
	}

	datadogMeterOptions.DataDogOptions = datadogOptions
	datadogMeterOptions.ServiceName = serviceName(datadogOptions.ServiceName)
	datadogMeterOptions.Version = VERSION
	datadogMeter := provider.NewDataDogMeter(datadogMeterOptions, logs, stdout)
	if datadogMeter != nil && common.HasElem(rootOptions.Metrics, "datadog") {
		metrics.Register(datadogMeter)
	}

	newrelicMeterOptions.NewRelicOptions = newrelicOptions
	newrelicMeterOptions.ServiceName = serviceName(newrelicOptions.ServiceName)
	newrelicMeterOptions.Version = VERSION
	newrelicMeter := provider.NewNewRelicMeter(newrelicMeterOptions, logs, stdout)
	if newrelicMeter != nil && common.HasElem(rootOptions.Metrics, "newrelic") {
		metrics.Register(newrelicMeter)
	}

	opentelemetryMeterOptions.OpentelemetryOptions = opentelemetryOptions
	opentelemetryMeterOptions.ServiceName = serviceName(opentelemetryOptions.ServiceName)
	opentelemetryMeterOptions.Version = VERSION
	opentelemetryMeter := provider.NewOpentelemetryMeter(opentelemetryMeterOptions, logs, stdout)
	if opentelemetryMeter != nil && common.HasElem(rootOptions.Metrics, "opentelemetry") {
		metrics.Register(opentelemetryMeter)
	}
}

func setupTraces() {

	tracesOptions.Version = VERSION
	traces = common.NewTraces(tracesOptions, logs, metrics)

	if common.HasElem(rootOptions.Traces, "stdout") {
		if exporter := provider.NewStdoutExporter(stdout); exporter != nil {
			traces.Register(exporter)
		}
	}

	jaegerOptions.ServiceName = serviceName(jaegerOptions.ServiceName)
	jaegerOptions.Version = VERSION
	jaeger := provider.NewJaegerTracer(jaegerOptions, logs, stdout)
	if jaeger != nil && common.HasElem(rootOptions.Traces, "jaeger") {
		traces.Register(jaeger)
	}

	datadogTracerOptions.DataDogOptions = datadogOptions
	datadogTracerOptions.ServiceName = serviceName(datadogOptions.ServiceName)
	datadogTracerOptions.Environment = environmentName(datadogOptions.Environment)
	datadogTracerOptions.Version = VERSION
	datadogTracer := provider.NewDataDogTracer(datadogTracerOptions, logs, stdout)
	if datadogTracer != nil && common.HasElem(rootOptions.Traces, "datadog") {
		traces.Register(datadogTracer)
	}

	newrelicTracerOptions.NewRelicOptions = newrelicOptions
	newrelicTracerOptions.ServiceName = serviceName(newrelicOptions.ServiceName)
	newrelicTracerOptions.Environment = environmentName(newrelicOptions.Environment)
	newrelicTracerOptions.Version = VERSION
	newrelicTracer := provider.NewNewRelicTracer(newrelicTracerOptions, logs, stdout)
	if newrelicTracer != nil && common.HasElem(rootOptions.Traces, "newrelic") {
		traces.Register(newrelicTracer)
	}

	opentelemetryTracerOptions.OpentelemetryOptions = opentelemetryOptions
	opentelemetryTracerOptions.ServiceName = serviceName(opentelemetryOptions.ServiceName)
	opentelemetryTracerOptions.Environment = environmentName(opentelemetryOptions.Environment)
	opentelemetryTracerOptions.Version = VERSION
	opentelemetryTracer := provider.NewOpentelemetryTracer(opentelemetryTracerOptions, logs, stdout)
	if opentelemetryTracer != nil && common.HasElem(rootOptions.Traces, "opentelemetry") {
		traces.Register(opentelemetryTracer)
	}
}

func newStore(ctx context.Context) (weight.Store, error) {

	switch storeOptions.Store {
	case "postgres":
		return weight.NewPostgresStore(ctx, postgresOptions, traces, logs)
	case "memory", "":
		return weight.NewMemoryStore(traces), nil
	}
	return nil, errors.Errorf("unknown store %q", storeOptions.Store)
}

func newCache(ctx context.Context) (weather.Cache, error) {

	switch storeOptions.Cache {
	case "redis":
		return weather.NewRedisCache(ctx, redisOptions)
	case "memory", "":
		return weather.NewMemoryCache(), nil
	case "none":
		return nil, nil
	}
	return nil, errors.Errorf("unknown cache %q", storeOptions.Cache)
}

func serve(ctx context.Context) error {

	store, err := newStore(ctx)
	if err != nil {
		return err
	}
	defer store.Close()

	cache, err := newCache(ctx)
	if err != nil {
		return err
	}
	if cache != nil {
		defer cache.Close()
	}

	client := weather.NewClient(weatherOptions, cache, traces, logs)
	srv := server.NewServer(serverOptions, traces, metrics, logs, client, store)
	if prometheus != nil {
		if common.IsEmpty(prometheusOptions.Listen) {
			srv.Handle(prometheusOptions.URL, prometheus)
		} else {
			prometheus.StartInWaitGroup(&mainWG)
		}
	}

	srv.Start(&mainWG)
	<-ctx.Done()

	shutdown, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Stop(shutdown); err != nil {
		logs.Error(err)
	}
	return nil
}

func Execute() {

	rootCmd := &cobra.Command{
		Use:   "weightapi",
		Short: "Weight API",
		PersistentPreRun: func(cmd *cobra.Command, args []string) {

			setupLogs()
			logs.Info("Booting...")

			setupMetrics()
			setupTraces()
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {

			traces.Stop()
			metrics.Stop()
			mainWG.Wait()
		},
		Run: func(cmd *cobra.Command, args []string) {
			cmd.Help()
		},
	}

	flags := rootCmd.PersistentFlags()

	flags.StringSliceVar(&rootOptions.Logs, "logs", rootOptions.Logs, "Log providers: stdout, datadog, newrelic")
	flags.StringSliceVar(&rootOptions.Metrics, "metrics", rootOptions.Metrics, "Metric providers: prometheus, datadog, newrelic, opentelemetry")
	flags.StringSliceVar(&rootOptions.Traces, "traces", rootOptions.Traces, "Trace providers: stdout, jaeger, datadog, newrelic, opentelemetry")

	flags.StringVar(&stdoutOptions.Format, "stdout-format", stdoutOptions.Format, "Stdout format: json, text, template")
	flags.StringVar(&stdoutOptions.Level, "stdout-level", stdoutOptions.Level, "Stdout level: info, warn, error, debug, panic")
	flags.StringVar(&stdoutOptions.Template, "stdout-template", stdoutOptions.Template, "Stdout template")
	flags.StringVar(&stdoutOptions.TimestampFormat, "stdout-timestamp-format", stdoutOptions.TimestampFormat, "Stdout timestamp format")
	flags.BoolVar(&stdoutOptions.TextColors, "stdout-text-colors", stdoutOptions.TextColors, "Stdout text colors")

	flags.StringVar(&tracesOptions.ServiceName, "service-name", tracesOptions.ServiceName, "Service name")
	flags.StringVar(&tracesOptions.Environment, "environment", tracesOptions.Environment, "Environment")
	flags.StringVar(&tracesOptions.Attributes, "attributes", tracesOptions.Attributes, "Resource attributes, comma separated list of name=value")
	flags.IntVar(&tracesOptions.QueueSize, "traces-queue-size", tracesOptions.QueueSize, "Traces queue size per exporter")
	flags.IntVar(&tracesOptions.BatchSize, "traces-batch-size", tracesOptions.BatchSize, "Traces batch size")
	flags.DurationVar(&tracesOptions.FlushInterval, "traces-flush-interval", tracesOptions.FlushInterval, "Traces flush interval")
	flags.DurationVar(&tracesOptions.ExportTimeout, "traces-export-timeout", tracesOptions.ExportTimeout, "Traces export timeout")

	flags.StringVar(&prometheusOptions.URL, "prometheus-url", prometheusOptions.URL, "Prometheus endpoint url")
	flags.StringVar(&prometheusOptions.Listen, "prometheus-listen", prometheusOptions.Listen, "Prometheus listen, empty to serve on the server listener")
	flags.StringVar(&prometheusOptions.Prefix, "prometheus-prefix", prometheusOptions.Prefix, "Prometheus prefix")

	flags.StringVar(&jaegerOptions.ServiceName, "jaeger-service-name", jaegerOptions.ServiceName, "Jaeger service name")
	flags.StringVar(&jaegerOptions.AgentHost, "jaeger-agent-host", jaegerOptions.AgentHost, "Jaeger agent host")
	flags.IntVar(&jaegerOptions.AgentPort, "jaeger-agent-port", jaegerOptions.AgentPort, "Jaeger agent port")
	flags.StringVar(&jaegerOptions.Endpoint, "jaeger-endpoint", jaegerOptions.Endpoint, "Jaeger endpoint")
	flags.StringVar(&jaegerOptions.User, "jaeger-user", jaegerOptions.User, "Jaeger user")
	flags.StringVar(&jaegerOptions.Password, "jaeger-password", jaegerOptions.Password, "Jaeger password")
	flags.IntVar(&jaegerOptions.BufferFlushInterval, "jaeger-buffer-flush-interval", jaegerOptions.BufferFlushInterval, "Jaeger buffer flush interval")
	flags.IntVar(&jaegerOptions.QueueSize, "jaeger-queue-size", jaegerOptions.QueueSize, "Jaeger queue size")
	flags.StringVar(&jaegerOptions.Tags, "jaeger-tags", jaegerOptions.Tags, "Jaeger tags, comma separated list of name=value")

	flags.StringVar(&datadogOptions.ServiceName, "datadog-service-name", datadogOptions.ServiceName, "DataDog service name")
	flags.StringVar(&datadogOptions.Environment, "datadog-environment", datadogOptions.Environment, "DataDog environment")
	flags.StringVar(&datadogOptions.Tags, "datadog-tags", datadogOptions.Tags, "DataDog tags")
	flags.BoolVar(&datadogOptions.Debug, "datadog-debug", datadogOptions.Debug, "DataDog debug")

	flags.StringVar(&datadogTracerOptions.AgentHost, "datadog-tracer-host", datadogTracerOptions.AgentHost, "DataDog tracer host")
	flags.IntVar(&datadogTracerOptions.AgentPort, "datadog-tracer-port", datadogTracerOptions.AgentPort, "DataDog tracer port")

	flags.StringVar(&datadogLoggerOptions.AgentHost, "datadog-logger-host", datadogLoggerOptions.AgentHost, "DataDog logger host")
	flags.IntVar(&datadogLoggerOptions.AgentPort, "datadog-logger-port", datadogLoggerOptions.AgentPort, "DataDog logger port")
	flags.StringVar(&datadogLoggerOptions.Level, "datadog-logger-level", datadogLoggerOptions.Level, "DataDog logger level: info, warn, error, debug, panic")

	flags.StringVar(&datadogMeterOptions.AgentHost, "datadog-meter-host", datadogMeterOptions.AgentHost, "DataDog meter host")
	flags.IntVar(&datadogMeterOptions.AgentPort, "datadog-meter-port", datadogMeterOptions.AgentPort, "DataDog meter port")
	flags.StringVar(&datadogMeterOptions.Prefix, "datadog-meter-prefix", datadogMeterOptions.Prefix, "DataDog meter prefix")

	flags.StringVar(&newrelicOptions.ApiKey, "newrelic-api-key", newrelicOptions.ApiKey, "NewRelic API key")
	flags.StringVar(&newrelicOptions.ServiceName, "newrelic-service-name", newrelicOptions.ServiceName, "NewRelic service name")
	flags.StringVar(&newrelicOptions.Environment, "newrelic-environment", newrelicOptions.Environment, "NewRelic environment")
	flags.StringVar(&newrelicOptions.Attributes, "newrelic-attributes", newrelicOptions.Attributes, "NewRelic attributes")
	flags.BoolVar(&newrelicOptions.Debug, "newrelic-debug", newrelicOptions.Debug, "NewRelic debug")

	flags.StringVar(&newrelicTracerOptions.Endpoint, "newrelic-tracer-endpoint", newrelicTracerOptions.Endpoint, "NewRelic tracer endpoint")

	flags.StringVar(&newrelicLoggerOptions.Endpoint, "newrelic-logger-endpoint", newrelicLoggerOptions.Endpoint, "NewRelic logger endpoint")
	flags.StringVar(&newrelicLoggerOptions.AgentHost, "newrelic-logger-agent-host", newrelicLoggerOptions.AgentHost, "NewRelic logger agent host")
	flags.IntVar(&newrelicLoggerOptions.AgentPort, "newrelic-logger-agent-port", newrelicLoggerOptions.AgentPort, "NewRelic logger agent port")
	flags.StringVar(&newrelicLoggerOptions.Level, "newrelic-logger-level", newrelicLoggerOptions.Level, "NewRelic logger level: info, warn, error, debug, panic")

	flags.StringVar(&newrelicMeterOptions.Endpoint, "newrelic-meter-endpoint", newrelicMeterOptions.Endpoint, "NewRelic meter endpoint")
	flags.StringVar(&newrelicMeterOptions.Prefix, "newrelic-meter-prefix", newrelicMeterOptions.Prefix, "NewRelic meter prefix")

	flags.StringVar(&opentelemetryOptions.ServiceName, "opentelemetry-service-name", opentelemetryOptions.ServiceName, "Opentelemetry service name")
	flags.StringVar(&opentelemetryOptions.Environment, "opentelemetry-environment", opentelemetryOptions.Environment, "Opentelemetry environment")
	flags.StringVar(&opentelemetryOptions.Attributes, "opentelemetry-attributes", opentelemetryOptions.Attributes, "Opentelemetry attributes")

	flags.StringVar(&opentelemetryTracerOptions.AgentHost, "opentelemetry-tracer-host", opentelemetryTracerOptions.AgentHost, "Opentelemetry tracer host")
	flags.IntVar(&opentelemetryTracerOptions.AgentPort, "opentelemetry-tracer-port", opentelemetryTracerOptions.AgentPort, "Opentelemetry tracer port")
	flags.StringVar(&opentelemetryTracerOptions.Protocol, "opentelemetry-tracer-protocol", opentelemetryTracerOptions.Protocol, "Opentelemetry tracer protocol: grpc, http")

	flags.StringVar(&opentelemetryMeterOptions.AgentHost, "opentelemetry-meter-host", opentelemetryMeterOptions.AgentHost, "Opentelemetry meter host")
	flags.IntVar(&opentelemetryMeterOptions.AgentPort, "opentelemetry-meter-port", opentelemetryMeterOptions.AgentPort, "Opentelemetry meter port")
	flags.StringVar(&opentelemetryMeterOptions.Prefix, "opentelemetry-meter-prefix", opentelemetryMeterOptions.Prefix, "Opentelemetry meter prefix")
	flags.Int64Var(&opentelemetryMeterOptions.CollectPeriod, "opentelemetry-meter-collect-period", opentelemetryMeterOptions.CollectPeriod, "Opentelemetry meter collect period in msecs")

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve weather and weight API",
		RunE: func(cmd *cobra.Command, args []string) error {

			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()
			interceptSyscall(cancel)

			return serve(ctx)
		},
	}

	serveFlags := serveCmd.Flags()

	serveFlags.StringVar(&serverOptions.Listen, "server-listen", serverOptions.Listen, "Server listen")
	serveFlags.StringVar(&serverOptions.Mode, "server-mode", serverOptions.Mode, "Server mode: debug, release, test")
	serveFlags.IntVar(&serverOptions.DebugSpans, "server-debug-spans", serverOptions.DebugSpans, "Spans kept for /debug/spans, 0 disables it")

	serveFlags.StringVar(&storeOptions.Store, "store", storeOptions.Store, "Weight store: memory, postgres")
	serveFlags.StringVar(&postgresOptions.DSN, "postgres-dsn", postgresOptions.DSN, "Postgres DSN")
	serveFlags.Int32Var(&postgresOptions.MaxConns, "postgres-max-conns", postgresOptions.MaxConns, "Postgres max connections")

	serveFlags.StringVar(&storeOptions.Cache, "cache", storeOptions.Cache, "Weather cache: memory, redis, none")
	serveFlags.StringVar(&redisOptions.Addr, "redis-addr", redisOptions.Addr, "Redis address")
	serveFlags.StringVar(&redisOptions.Password, "redis-password", redisOptions.Password, "Redis password")
	serveFlags.IntVar(&redisOptions.DB, "redis-db", redisOptions.DB, "Redis database")
	serveFlags.StringVar(&redisOptions.Prefix, "redis-prefix", redisOptions.Prefix, "Redis key prefix")

	serveFlags.StringVar(&weatherOptions.URL, "weather-url", weatherOptions.URL, "Weather service url, empty to generate forecasts locally")
	serveFlags.IntVar(&weatherOptions.Timeout, "weather-timeout", weatherOptions.Timeout, "Weather service timeout in seconds")
	serveFlags.BoolVar(&weatherOptions.Insecure, "weather-insecure", weatherOptions.Insecure, "Weather service insecure skip verify")
	serveFlags.DurationVar(&weatherOptions.CacheTTL, "weather-cache-ttl", weatherOptions.CacheTTL, "Weather cache ttl")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print the version number",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println(VERSION)
		},
	})

	if err := rootCmd.Execute(); err != nil {
		logs.Error(err)
		os.Exit(1)
	}
}
