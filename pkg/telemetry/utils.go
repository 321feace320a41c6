package telemetry

import (
	"context"

	"go.opentelemetry.io/otel/codes"
	tr "go.opentelemetry.io/otel/trace"
)

// FinishSpan ends the span, flagging it as failed when err points to a non-nil error.
type FinishSpan = func(err *error, options ...tr.SpanEndOption)

func noopFinish(*error, ...tr.SpanEndOption) {}

func StartSpan(ctx context.Context, tracer tr.Tracer, name string, opts ...tr.SpanStartOption) (context.Context, FinishSpan) {
	if tracer == nil {
		return ctx, noopFinish
	}

	ctx, span := tracer.Start(ctx, name, opts...)

	return ctx, func(err *error, options ...tr.SpanEndOption) {
		if err != nil && *err != nil {
			span.RecordError(*err)
			span.SetStatus(codes.Error, (*err).Error())
		}

		span.End(options...)
	}
}

// Tracer returns a named tracer, nil if no provider is given.
func Tracer(provider tr.TracerProvider, name string) tr.Tracer {
	if provider == nil {
		return nil
	}

	return provider.Tracer(name)
}
