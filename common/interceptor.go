package common

import (
	"context"
	"fmt"

	"github.com/pkg/errors"
	"go.opentelemetry.io/otel/codes"
)

// PanicError carries a recovered panic value that is not an error itself.
type PanicError struct {
	Value interface{}
}

func (pe PanicError) Error() string {
	return fmt.Sprintf("panic: %v", pe.Value)
}

// Interceptor is the single capture point for unhandled request errors. It records
// them on the request span and hands them back untouched.
type Interceptor struct {
	tracer Tracer
	logger Logger
}

func panicError(r interface{}) error {

	if err, ok := r.(error); ok {
		return errors.WithStack(err)
	}
	return errors.WithStack(PanicError{Value: r})
}

func (i *Interceptor) capture(span TracerSpan, err error) {

	span.SetStatus(codes.Error, err.Error())
	span.RecordException(err)
	i.logger.SpanError(span, err)
}

// Intercept runs fn inside the request span. An ambient span in ctx is reused,
// otherwise a root span is started, continuing carrier if it holds a trace. The
// error returned by fn is returned as is; a panic is recorded and re-raised.
func (i *Interceptor) Intercept(ctx context.Context, name string, carrier interface{}, fn func(ctx context.Context) error) (err error) {

	if ctx == nil {
		ctx = context.Background()
	}
	if i == nil || i.tracer == nil {
		return fn(ctx)
	}

	span := SpanFromContext(ctx)
	owned := false
	if span == nil || !span.IsRecording() {
		ctx, span = i.tracer.StartSpan(ctx, name, WithCarrier(carrier))
		owned = true
	}

	defer func() {
		if r := recover(); r != nil {
			i.capture(span, panicError(r))
			if owned {
				span.Finish()
			}
			panic(r)
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			span.SetStatus(codes.Error, ctxErr.Error())
		}
		if owned {
			span.Finish()
		}
	}()

	err = fn(ctx)
	if err != nil {
		i.capture(span, err)
	}
	return err
}

func NewInterceptor(tracer Tracer, logger Logger) *Interceptor {

	if logger == nil {
		logger = NewLogs()
	}
	return &Interceptor{
		tracer: tracer,
		logger: logger,
	}
}
