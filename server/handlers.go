package server

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/devopsext/weightapi/common"
	"github.com/devopsext/weightapi/weather"
	"github.com/devopsext/weightapi/weight"
	"github.com/gin-gonic/gin"
	"github.com/pkg/errors"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

const badTown = "Bad Town"

type InvalidOperationError struct {
	Message string
}

func (ioe InvalidOperationError) Error() string {
	return ioe.Message
}

type forecastView struct {
	City         string    `json:"city"`
	Date         time.Time `json:"date"`
	TemperatureC int       `json:"temperatureC"`
	TemperatureF int       `json:"temperatureF"`
	Summary      string    `json:"summary"`
}

type exceptionView struct {
	Type       string `json:"type"`
	Message    string `json:"message"`
	Stacktrace string `json:"stacktrace,omitempty"`
}

type spanView struct {
	TraceID       string                 `json:"trace_id"`
	SpanID        string                 `json:"span_id"`
	ParentID      string                 `json:"parent_id,omitempty"`
	Name          string                 `json:"name"`
	Start         time.Time              `json:"start"`
	DurationMs    float64                `json:"duration_ms"`
	Status        string                 `json:"status"`
	StatusMessage string                 `json:"status_message,omitempty"`
	Attributes    map[string]interface{} `json:"attributes,omitempty"`
	Exceptions    []exceptionView        `json:"exceptions,omitempty"`
}

// handle pushes the handler's error to gin, which makes it an unhandled request error.
func handle(fn func(c *gin.Context) error) gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := fn(c); err != nil {
			c.Error(err)
		}
	}
}

// reject answers the known failures itself; anything else stays unhandled.
func reject(c *gin.Context, err error) bool {

	code := 0
	var ve weight.ValidationError
	switch {
	case errors.As(err, &ve):
		code = http.StatusBadRequest
	case errors.Is(err, weight.ErrNotFound):
		code = http.StatusNotFound
	default:
		return false
	}

	currentSpan(c.Request.Context()).AddEvent("request-rejected", attribute.String("reason", err.Error()))
	c.JSON(code, gin.H{"error": err.Error()})
	return true
}

func succeed(c *gin.Context, code int, obj interface{}) {

	currentSpan(c.Request.Context()).SetStatus(codes.Ok, "")
	if obj == nil {
		c.Status(code)
		return
	}
	c.JSON(code, obj)
}

func (s *Server) startSpan(ctx context.Context, name string, kv ...attribute.KeyValue) (context.Context, common.TracerSpan) {
	return s.traces.StartSpan(ctx, name, common.WithAttributes(kv...))
}

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) forecast(ctx context.Context, city string) (f *weather.Forecast, err error) {

	ctx, span := s.startSpan(ctx, "forecast", attribute.String("weather.city", city))
	defer func() {
		if err != nil {
			span.Error(err)
		} else {
			span.SetStatus(codes.Ok, "")
		}
		span.Finish()
	}()

	return s.weather.Forecast(ctx, city)
}

func (s *Server) getWeather(c *gin.Context) error {

	ctx := c.Request.Context()
	city := strings.TrimSpace(c.Param("city"))
	currentSpan(ctx).SetTag("city", city)

	if strings.EqualFold(city, badTown) {
		return errors.WithStack(InvalidOperationError{Message: badTown})
	}

	f, err := s.forecast(ctx, city)
	if err != nil {
		return err
	}

	succeed(c, http.StatusOK, forecastView{
		City:         f.City,
		Date:         f.Date,
		TemperatureC: f.TemperatureC,
		TemperatureF: f.TemperatureF(),
		Summary:      f.Summary,
	})
	return nil
}

func (s *Server) bindRecord(c *gin.Context) (*weight.Record, bool) {

	r := &weight.Record{}
	if err := c.ShouldBindJSON(r); err != nil {
		reject(c, weight.ValidationError{Field: "body", Reason: err.Error()})
		return nil, false
	}
	if err := r.Validate(); err != nil {
		reject(c, err)
		return nil, false
	}
	return r, true
}

func (s *Server) listWeights(c *gin.Context) error {

	records, err := s.weights.List(c.Request.Context())
	if err != nil {
		return err
	}
	if records == nil {
		records = []*weight.Record{}
	}
	succeed(c, http.StatusOK, records)
	return nil
}

func (s *Server) createWeight(c *gin.Context) error {

	r, ok := s.bindRecord(c)
	if !ok {
		return nil
	}

	created, err := s.weights.Create(c.Request.Context(), r)
	if err != nil {
		if reject(c, err) {
			return nil
		}
		return err
	}
	currentSpan(c.Request.Context()).SetTag("weight.id", created.ID)
	succeed(c, http.StatusCreated, created)
	return nil
}

func (s *Server) getWeight(c *gin.Context) error {

	id := c.Param("id")
	currentSpan(c.Request.Context()).SetTag("weight.id", id)

	r, err := s.weights.Get(c.Request.Context(), id)
	if err != nil {
		if reject(c, err) {
			return nil
		}
		return err
	}
	succeed(c, http.StatusOK, r)
	return nil
}

func (s *Server) updateWeight(c *gin.Context) error {

	id := c.Param("id")
	currentSpan(c.Request.Context()).SetTag("weight.id", id)

	r, ok := s.bindRecord(c)
	if !ok {
		return nil
	}
	r.ID = id

	updated, err := s.weights.Update(c.Request.Context(), r)
	if err != nil {
		if reject(c, err) {
			return nil
		}
		return err
	}
	succeed(c, http.StatusOK, updated)
	return nil
}

func (s *Server) deleteWeight(c *gin.Context) error {

	id := c.Param("id")
	currentSpan(c.Request.Context()).SetTag("weight.id", id)

	if err := s.weights.Delete(c.Request.Context(), id); err != nil {
		if reject(c, err) {
			return nil
		}
		return err
	}
	succeed(c, http.StatusNoContent, nil)
	return nil
}

func newSpanView(sd *common.SpanData) spanView {

	v := spanView{
		TraceID:       sd.TraceID.String(),
		SpanID:        sd.SpanID.String(),
		Name:          sd.Name,
		Start:         sd.StartTime,
		DurationMs:    float64(sd.Duration().Microseconds()) / 1000,
		Status:        sd.Status.String(),
		StatusMessage: sd.StatusMessage,
	}
	if !sd.IsRoot() {
		v.ParentID = sd.ParentSpanID.String()
	}
	if len(sd.Attributes) > 0 {
		v.Attributes = make(map[string]interface{}, len(sd.Attributes))
		for _, kv := range sd.Attributes {
			v.Attributes[string(kv.Key)] = kv.Value.AsInterface()
		}
	}
	for _, e := range sd.Exceptions {
		v.Exceptions = append(v.Exceptions, exceptionView{Type: e.Type, Message: e.Message, Stacktrace: e.Stacktrace})
	}
	return v
}

// debugSpans lists the last finished spans, optionally of one trace.
func (s *Server) debugSpans(c *gin.Context) {

	traceID := c.Query("trace_id")

	views := []spanView{}
	for _, sd := range s.spans.Spans() {
		if traceID != "" && sd.TraceID.String() != traceID {
			continue
		}
		views = append(views, newSpanView(sd))
	}
	c.JSON(http.StatusOK, views)
}
