package weight

import (
	"context"
	"fmt"
	"time"

	"github.com/devopsext/weightapi/common"
	"github.com/pkg/errors"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
)

var ErrNotFound = errors.New("weight record not found")

const (
	minKilograms = 1
	maxKilograms = 500
)

type Record struct {
	ID        string    `json:"id"`
	Date      time.Time `json:"date"`
	Kilograms float64   `json:"kilograms"`
	Notes     string    `json:"notes,omitempty"`
}

type ValidationError struct {
	Field  string
	Reason string
}

// Store keeps weight records. Get, Update and Delete return ErrNotFound for unknown ids.
type Store interface {
	Create(ctx context.Context, r *Record) (*Record, error)
	Get(ctx context.Context, id string) (*Record, error)
	List(ctx context.Context) ([]*Record, error)
	Update(ctx context.Context, r *Record) (*Record, error)
	Delete(ctx context.Context, id string) error
	Close()
}

func (ve ValidationError) Error() string {
	return fmt.Sprintf("%s %s", ve.Field, ve.Reason)
}

func (r *Record) Validate() error {

	if r == nil {
		return ValidationError{Field: "record", Reason: "is required"}
	}
	if r.Date.IsZero() {
		return ValidationError{Field: "date", Reason: "is required"}
	}
	if r.Date.After(time.Now().Add(24 * time.Hour)) {
		return ValidationError{Field: "date", Reason: "is in the future"}
	}
	if r.Kilograms < minKilograms || r.Kilograms > maxKilograms {
		return ValidationError{Field: "kilograms", Reason: fmt.Sprintf("must be between %d and %d", minKilograms, maxKilograms)}
	}
	return nil
}

// startCall opens the db-call span every store operation runs in.
func startCall(ctx context.Context, tracer common.Tracer, system, operation string, kv ...attribute.KeyValue) (context.Context, common.TracerSpan) {

	if tracer == nil {
		return ctx, common.NoopSpan{}
	}

	kv = append(kv,
		semconv.DBSystemKey.String(system),
		attribute.String("db.operation", operation),
	)
	return tracer.StartSpan(ctx, "db-call", common.WithAttributes(kv...))
}

// finishCall keeps expected outcomes such as a missing row or a rejected record off
// the error path.
func finishCall(span common.TracerSpan, err error) {

	var invalid ValidationError
	switch {
	case err == nil:
		span.SetStatus(codes.Ok, "")
	case errors.Is(err, ErrNotFound):
		span.SetTag("db.rows", 0)
		span.SetStatus(codes.Ok, "")
	case errors.As(err, &invalid):
		span.SetTag("db.rejected", invalid.Field)
		span.SetStatus(codes.Ok, "")
	default:
		span.Error(err)
	}
	span.Finish()
}
