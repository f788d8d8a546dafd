package weather

import (
	"context"
	"fmt"
	"hash/fnv"
	"math/rand"
	"strings"
	"time"

	"github.com/devopsext/weightapi/common"
	"github.com/go-resty/resty/v2"
	"github.com/pkg/errors"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

var summaries = []string{
	"Freezing", "Bracing", "Chilly", "Cool", "Mild", "Warm", "Balmy", "Hot", "Sweltering", "Scorching",
}

type Forecast struct {
	City         string    `json:"city"`
	Date         time.Time `json:"date"`
	TemperatureC int       `json:"temperatureC"`
	Summary      string    `json:"summary"`
}

type ClientOptions struct {
	URL      string
	Timeout  int
	Insecure bool
	CacheTTL time.Duration
}

// Client looks forecasts up through the cache first and then either the upstream
// service or, without URL, a local generator.
type Client struct {
	options ClientOptions
	client  *resty.Client
	cache   Cache
	tracer  common.Tracer
	logger  common.Logger
	now     func() time.Time
}

type StatusError struct {
	Code int
	City string
}

func (se StatusError) Error() string {
	return fmt.Sprintf("weather service returned %d for %s", se.Code, se.City)
}

func (f *Forecast) TemperatureF() int {
	return 32 + int(float64(f.TemperatureC)/0.5556)
}

func generate(city string, day time.Time) *Forecast {

	h := fnv.New64a()
	h.Write([]byte(strings.ToLower(city)))
	h.Write([]byte(day.Format("2006-01-02")))
	r := rand.New(rand.NewSource(int64(h.Sum64())))

	return &Forecast{
		City:         city,
		Date:         day,
		TemperatureC: r.Intn(75) - 20,
		Summary:      summaries[r.Intn(len(summaries))],
	}
}

func (c *Client) startSpan(ctx context.Context, name string, kv ...attribute.KeyValue) (context.Context, common.TracerSpan) {

	if c.tracer == nil {
		return ctx, common.NoopSpan{}
	}
	return c.tracer.StartSpan(ctx, name, common.WithAttributes(kv...))
}

func (c *Client) lookup(ctx context.Context, city string) (*Forecast, bool) {

	if c.cache == nil {
		return nil, false
	}

	ctx, span := c.startSpan(ctx, "cache-lookup",
		attribute.String("cache.system", c.cache.Name()),
		attribute.String("weather.city", city),
	)
	defer span.Finish()

	f, ok, err := c.cache.Get(ctx, city)
	if err != nil {
		// a broken cache degrades to a miss
		span.Error(err)
		c.logger.SpanWarn(span, "Weather cache lookup failed: %v", err)
		return nil, false
	}
	span.SetTag("cache.hit", ok)
	span.SetStatus(codes.Ok, "")
	return f, ok
}

func (c *Client) store(ctx context.Context, city string, f *Forecast) {

	if c.cache == nil {
		return
	}
	if err := c.cache.Set(ctx, city, f, c.options.CacheTTL); err != nil {
		c.logger.Warn("Weather cache store failed: %v", err)
	}
}

func (c *Client) fetch(ctx context.Context, city string) (f *Forecast, err error) {

	ctx, span := c.startSpan(ctx, "weather-call", attribute.String("weather.city", city))
	defer func() {
		if err != nil {
			span.Error(err)
		} else {
			span.SetStatus(codes.Ok, "")
		}
		span.Finish()
	}()

	if common.IsEmpty(c.options.URL) {
		span.SetTag("weather.source", "local")
		return generate(city, c.now().UTC().Truncate(24*time.Hour)), nil
	}
	span.SetTag("weather.source", "remote")

	forecast := &Forecast{}
	req := c.client.R().
		SetContext(ctx).
		SetPathParam("city", city).
		SetResult(forecast)
	span.SetCarrier(req.Header)

	resp, err := req.Get("/forecast/{city}")
	if err != nil {
		return nil, errors.Wrapf(err, "weather service for %s", city)
	}
	span.SetTag("http.status_code", resp.StatusCode())

	if resp.IsError() {
		return nil, errors.WithStack(StatusError{Code: resp.StatusCode(), City: city})
	}
	if common.IsEmpty(forecast.City) {
		forecast.City = city
	}
	return forecast, nil
}

// Forecast errors are returned unchanged so the caller's span records them.
func (c *Client) Forecast(ctx context.Context, city string) (*Forecast, error) {

	city = strings.TrimSpace(city)
	if common.IsEmpty(city) {
		return nil, errors.New("city is required")
	}

	if f, ok := c.lookup(ctx, city); ok {
		return f, nil
	}

	f, err := c.fetch(ctx, city)
	if err != nil {
		return nil, err
	}
	c.store(ctx, city, f)
	return f, nil
}

func NewClient(options ClientOptions, cache Cache, tracer common.Tracer, logger common.Logger) *Client {

	if logger == nil {
		logger = common.NewLogs()
	}
	if options.Timeout <= 0 {
		options.Timeout = 5
	}
	if options.CacheTTL <= 0 {
		options.CacheTTL = 10 * time.Minute
	}

	client := resty.NewWithClient(common.MakeHttpClient(options.Timeout, options.Insecure)).
		SetBaseURL(strings.TrimRight(options.URL, "/")).
		SetHeader("Accept", "application/json").
		SetHeader("User-Agent", "weightapi")

	return &Client{
		options: options,
		client:  client,
		cache:   cache,
		tracer:  tracer,
		logger:  logger,
		now:     time.Now,
	}
}
