package weather

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"sync/atomic"
	"testing"
	"time"

	"github.com/devopsext/weightapi/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/codes"
)

func newTestTraces(t *testing.T) (*common.Traces, *common.MemoryExporter) {
	t.Helper()

	traces := common.NewTraces(common.TracesOptions{
		ServiceName:   "weightapi-test",
		BatchSize:     1,
		FlushInterval: 10 * time.Millisecond,
		ExportTimeout: time.Second,
	}, nil, nil)

	memory := common.NewMemoryExporter("memory", 0)
	traces.Register(memory)
	t.Cleanup(traces.Stop)
	return traces, memory
}

func TestGenerate(t *testing.T) {

	day := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

	london := generate("London", day)
	again := generate("london", day)
	assert.Equal(t, london.TemperatureC, again.TemperatureC)
	assert.Equal(t, london.Summary, again.Summary)
	assert.Equal(t, "London", london.City)
	assert.Contains(t, summaries, london.Summary)
	assert.GreaterOrEqual(t, london.TemperatureC, -20)
	assert.Less(t, london.TemperatureC, 55)
}

func TestClientLocal(t *testing.T) {

	client := NewClient(ClientOptions{}, nil, nil, nil)

	f, err := client.Forecast(context.Background(), " Paris ")
	require.NoError(t, err)
	assert.Equal(t, "Paris", f.City)

	_, err = client.Forecast(context.Background(), "  ")
	assert.Error(t, err)
}

func TestClientRemote(t *testing.T) {

	var calls atomic.Int32
	var traceparent, traceID atomic.Value

	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		traceparent.Store(r.Header.Get("traceparent"))
		traceID.Store(r.Header.Get("X-Trace-ID"))

		assert.Equal(t, "/forecast/London", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(Forecast{City: "London", TemperatureC: 12, Summary: "Cool"})
	}))
	defer upstream.Close()

	traces, memory := newTestTraces(t)
	client := NewClient(ClientOptions{URL: upstream.URL + "/"}, NewMemoryCache(), traces, nil)

	ctx, root := traces.StartSpan(context.Background(), "GET /weather/:city")
	f, err := client.Forecast(ctx, "London")
	require.NoError(t, err)
	assert.Equal(t, 12, f.TemperatureC)

	cached, err := client.Forecast(ctx, "london")
	require.NoError(t, err)
	assert.Equal(t, "Cool", cached.Summary)
	root.Finish()

	assert.Equal(t, int32(1), calls.Load())
	assert.Contains(t, traceparent.Load().(string), root.GetContext().GetTraceID())
	assert.Equal(t, root.GetContext().GetTraceID(), traceID.Load().(string))

	// cache-lookup (miss), weather-call, cache-lookup (hit), root
	spans := memory.WaitFor(4, 2*time.Second)
	require.Len(t, spans, 4)

	names := []string{spans[0].Name, spans[1].Name, spans[2].Name, spans[3].Name}
	assert.Equal(t, []string{"cache-lookup", "weather-call", "cache-lookup", "GET /weather/:city"}, names)

	rootID := spans[3].SpanID
	for _, s := range spans[:3] {
		assert.Equal(t, spans[3].TraceID, s.TraceID)
		assert.Equal(t, rootID, s.ParentSpanID)
		assert.Equal(t, codes.Ok, s.Status)
	}

	hit, _ := spans[0].Attribute("cache.hit")
	assert.False(t, hit.AsBool())
	hit, _ = spans[2].Attribute("cache.hit")
	assert.True(t, hit.AsBool())

	status, ok := spans[1].Attribute("http.status_code")
	require.True(t, ok)
	assert.Equal(t, int64(200), status.AsInt64())
}

func TestClientRemoteFailure(t *testing.T) {

	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer upstream.Close()

	traces, memory := newTestTraces(t)
	client := NewClient(ClientOptions{URL: upstream.URL}, nil, traces, nil)

	_, err := client.Forecast(context.Background(), "Oslo")
	var se StatusError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, http.StatusBadGateway, se.Code)

	spans := memory.WaitFor(1, 2*time.Second)
	require.Len(t, spans, 1)
	assert.Equal(t, "weather-call", spans[0].Name)
	assert.Equal(t, codes.Error, spans[0].Status)
	require.Len(t, spans[0].Exceptions, 1)
	assert.Equal(t, "weather.StatusError", spans[0].Exceptions[0].Type)
}

func TestMemoryCacheExpiry(t *testing.T) {

	ctx := context.Background()
	cache := NewMemoryCache()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	cache.now = func() time.Time { return now }

	require.NoError(t, cache.Set(ctx, "Rome", &Forecast{City: "Rome", TemperatureC: 20}, time.Minute))

	f, ok, err := cache.Get(ctx, "ROME")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 20, f.TemperatureC)

	now = now.Add(2 * time.Minute)
	_, ok, err = cache.Get(ctx, "Rome")
	require.NoError(t, err)
	assert.False(t, ok)

	assert.Error(t, cache.Set(ctx, "Rome", nil, time.Minute))
}

func TestRedisCache(t *testing.T) {

	addr := os.Getenv("WEIGHTAPI_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("WEIGHTAPI_TEST_REDIS_ADDR is not set")
	}

	ctx := context.Background()
	cache, err := NewRedisCache(ctx, RedisOptions{Addr: addr, Prefix: "weightapi:test:" + common.GetGuid() + ":"})
	require.NoError(t, err)
	defer cache.Close()

	_, ok, err := cache.Get(ctx, "Rome")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, cache.Set(ctx, "Rome", &Forecast{City: "Rome", TemperatureC: 20}, time.Minute))
	f, ok, err := cache.Get(ctx, "rome")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 20, f.TemperatureC)
}

func TestNewRedisCacheUnreachable(t *testing.T) {

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	_, err := NewRedisCache(ctx, RedisOptions{Addr: "127.0.0.1:1"})
	assert.Error(t, err)
}
