package common

import "context"

type spanContextKey struct{}

// ContextWithSpan returns a child context carrying span as the ambient span.
// The parent context keeps its own span, so leaving a scope restores it.
func ContextWithSpan(ctx context.Context, span TracerSpan) context.Context {

	if ctx == nil {
		ctx = context.Background()
	}
	if span == nil {
		return ctx
	}
	return context.WithValue(ctx, spanContextKey{}, span)
}

func SpanFromContext(ctx context.Context) TracerSpan {

	if ctx == nil {
		return nil
	}
	span, ok := ctx.Value(spanContextKey{}).(TracerSpan)
	if !ok {
		return nil
	}
	return span
}
