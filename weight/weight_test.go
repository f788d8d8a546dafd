package weight

import (
	"context"
	"os"
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

func testRecord(kilograms float64) *Record {
	return &Record{
		Date:      time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC),
		Kilograms: kilograms,
		Notes:     "morning",
	}
}

func TestRecordValidate(t *testing.T) {

	tests := []struct {
		name   string
		record *Record
		field  string
	}{
		{name: "nil record", record: nil, field: "record"},
		{name: "missing date", record: &Record{Kilograms: 80}, field: "date"},
		{name: "future date", record: &Record{Date: time.Now().Add(72 * time.Hour), Kilograms: 80}, field: "date"},
		{name: "too light", record: testRecord(0.5), field: "kilograms"},
		{name: "too heavy", record: testRecord(501), field: "kilograms"},
		{name: "valid", record: testRecord(80.4)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.record.Validate()
			if tt.field == "" {
				assert.NoError(t, err)
				return
			}
			var ve ValidationError
			require.ErrorAs(t, err, &ve)
			assert.Equal(t, tt.field, ve.Field)
		})
	}
}

func TestMemoryStoreCRUD(t *testing.T) {

	ctx := context.Background()
	store := NewMemoryStore(nil)
	defer store.Close()

	created, err := store.Create(ctx, testRecord(80.4))
	require.NoError(t, err)
	require.NotEmpty(t, created.ID)

	got, err := store.Get(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, 80.4, got.Kilograms)

	second := testRecord(79.9)
	second.Date = second.Date.Add(24 * time.Hour)
	_, err = store.Create(ctx, second)
	require.NoError(t, err)

	list, err := store.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, created.ID, list[0].ID)

	got.Kilograms = 81
	updated, err := store.Update(ctx, got)
	require.NoError(t, err)
	assert.Equal(t, 81.0, updated.Kilograms)

	require.NoError(t, store.Delete(ctx, created.ID))
	_, err = store.Get(ctx, created.ID)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, store.Delete(ctx, created.ID), ErrNotFound)

	missing := testRecord(70)
	missing.ID = "missing"
	_, err = store.Update(ctx, missing)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryStoreSpans(t *testing.T) {

	traces, memory := newTestTraces(t)
	store := NewMemoryStore(traces)

	ctx, root := traces.StartSpan(context.Background(), "request")
	created, err := store.Create(ctx, testRecord(80))
	require.NoError(t, err)
	_, err = store.Get(ctx, "missing")
	require.ErrorIs(t, err, ErrNotFound)
	_, err = store.Create(ctx, testRecord(0))
	require.Error(t, err)
	root.Finish()

	spans := memory.WaitFor(4, 2*time.Second)
	require.Len(t, spans, 4)

	var calls []*common.SpanData
	for _, s := range spans {
		if s.Name == "db-call" {
			calls = append(calls, s)
		}
	}
	require.Len(t, calls, 3)

	for _, s := range calls {
		assert.Equal(t, spans[len(spans)-1].TraceID, s.TraceID)
		system, ok := s.Attribute("db.system")
		require.True(t, ok)
		assert.Equal(t, "memory", system.AsString())
	}

	insert := calls[0]
	op, _ := insert.Attribute("db.operation")
	assert.Equal(t, "insert", op.AsString())
	id, _ := insert.Attribute("weight.id")
	assert.Equal(t, created.ID, id.AsString())
	assert.Equal(t, codes.Ok, insert.Status)

	assert.Equal(t, codes.Ok, calls[1].Status)
	assert.Equal(t, codes.Ok, calls[2].Status)
	assert.Empty(t, calls[2].Exceptions)
	rejected, ok := calls[2].Attribute("db.rejected")
	require.True(t, ok)
	assert.Equal(t, "kilograms", rejected.AsString())
}

func TestPostgresStore(t *testing.T) {

	dsn := os.Getenv("WEIGHTAPI_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("WEIGHTAPI_TEST_POSTGRES_DSN is not set")
	}

	ctx := context.Background()
	traces, memory := newTestTraces(t)

	store, err := NewPostgresStore(ctx, PostgresOptions{DSN: dsn, MaxConns: 2}, traces, nil)
	require.NoError(t, err)
	defer store.Close()

	created, err := store.Create(ctx, testRecord(80.4))
	require.NoError(t, err)

	got, err := store.Get(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, 80.4, got.Kilograms)

	got.Notes = "evening"
	_, err = store.Update(ctx, got)
	require.NoError(t, err)

	list, err := store.List(ctx)
	require.NoError(t, err)
	assert.NotEmpty(t, list)

	require.NoError(t, store.Delete(ctx, created.ID))
	_, err = store.Get(ctx, created.ID)
	assert.ErrorIs(t, err, ErrNotFound)

	spans := memory.WaitFor(6, 2*time.Second)
	require.Len(t, spans, 6)
	system, _ := spans[0].Attribute("db.system")
	assert.Equal(t, "postgresql", system.AsString())
}

func TestNewPostgresStoreUnreachable(t *testing.T) {

	_, err := NewPostgresStore(context.Background(), PostgresOptions{DSN: "postgres://weightapi@127.0.0.1:1/weightapi?connect_timeout=1"}, nil, nil)
	assert.Error(t, err)
}
