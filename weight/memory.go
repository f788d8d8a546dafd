package weight

import (
	"context"
	"sort"
	"sync"

	"github.com/devopsext/weightapi/common"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
)

type MemoryStore struct {
	tracer  common.Tracer
	mu      sync.RWMutex
	records map[string]Record
}

func (ms *MemoryStore) Create(ctx context.Context, r *Record) (rec *Record, err error) {

	_, span := startCall(ctx, ms.tracer, "memory", "insert")
	defer func() { finishCall(span, err) }()

	if err := r.Validate(); err != nil {
		return nil, err
	}

	ms.mu.Lock()
	defer ms.mu.Unlock()

	created := *r
	created.ID = uuid.NewString()
	ms.records[created.ID] = created

	span.SetAttributes(attribute.String("weight.id", created.ID))
	return &created, nil
}

func (ms *MemoryStore) Get(ctx context.Context, id string) (rec *Record, err error) {

	_, span := startCall(ctx, ms.tracer, "memory", "select", attribute.String("weight.id", id))
	defer func() { finishCall(span, err) }()

	ms.mu.RLock()
	defer ms.mu.RUnlock()

	r, ok := ms.records[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &r, nil
}

func (ms *MemoryStore) List(ctx context.Context) (recs []*Record, err error) {

	_, span := startCall(ctx, ms.tracer, "memory", "select")
	defer func() { finishCall(span, err) }()

	ms.mu.RLock()
	defer ms.mu.RUnlock()

	recs = make([]*Record, 0, len(ms.records))
	for _, r := range ms.records {
		r := r
		recs = append(recs, &r)
	}
	sort.Slice(recs, func(i, j int) bool {
		if recs[i].Date.Equal(recs[j].Date) {
			return recs[i].ID < recs[j].ID
		}
		return recs[i].Date.Before(recs[j].Date)
	})

	span.SetTag("db.rows", len(recs))
	return recs, nil
}

func (ms *MemoryStore) Update(ctx context.Context, r *Record) (rec *Record, err error) {

	_, span := startCall(ctx, ms.tracer, "memory", "update")
	defer func() { finishCall(span, err) }()

	if err := r.Validate(); err != nil {
		return nil, err
	}
	span.SetAttributes(attribute.String("weight.id", r.ID))

	ms.mu.Lock()
	defer ms.mu.Unlock()

	if _, ok := ms.records[r.ID]; !ok {
		return nil, ErrNotFound
	}
	updated := *r
	ms.records[r.ID] = updated
	return &updated, nil
}

func (ms *MemoryStore) Delete(ctx context.Context, id string) (err error) {

	_, span := startCall(ctx, ms.tracer, "memory", "delete", attribute.String("weight.id", id))
	defer func() { finishCall(span, err) }()

	ms.mu.Lock()
	defer ms.mu.Unlock()

	if _, ok := ms.records[id]; !ok {
		return ErrNotFound
	}
	delete(ms.records, id)
	return nil
}

func (ms *MemoryStore) Close() {
}

func NewMemoryStore(tracer common.Tracer) *MemoryStore {
	return &MemoryStore{
		tracer:  tracer,
		records: make(map[string]Record),
	}
}
