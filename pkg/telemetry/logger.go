package telemetry

import (
	"context"
	"log/slog"
	"strconv"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// AddTraceToLogHandler decorates handler with the trace and span ids of the record's context.
func (s *Service) AddTraceToLogHandler(handler slog.Handler) slog.Handler {
	if s == nil {
		return handler
	}

	return TraceHandler{
		Handler:    handler,
		Uint64:     s.TraceUint64,
		Attributes: otelAttributeToSlogAttr(s.resource.Attributes()),
	}
}

func otelAttributeToSlogAttr(attributes []attribute.KeyValue) []slog.Attr {
	output := make([]slog.Attr, len(attributes))

	for index, attribute := range attributes {
		output[index] = slog.String(string(attribute.Key), attribute.Value.Emit())
	}

	return output
}

type TraceHandler struct {
	slog.Handler
	Attributes []slog.Attr
	Uint64     bool
}

func (th TraceHandler) Handle(ctx context.Context, r slog.Record) error {
	spanCtx := trace.SpanContextFromContext(ctx)

	if spanCtx.HasTraceID() {
		r.AddAttrs(slog.String("trace_id", th.formatID(spanCtx.TraceID().String())))
	}

	if spanCtx.HasSpanID() {
		r.AddAttrs(slog.String("span_id", th.formatID(spanCtx.SpanID().String())))
	}

	r.AddAttrs(th.Attributes...)

	return th.Handler.Handle(ctx, r)
}

// formatID keeps the lowest 64 bits in decimal when Uint64 is set, as some
// log backends only index trace ids that way.
func (th TraceHandler) formatID(id string) string {
	if !th.Uint64 {
		return id
	}

	return uint64TraceID(id)
}

func uint64TraceID(id string) string {
	if len(id) < 16 {
		return ""
	}

	value, err := strconv.ParseUint(id[len(id)-16:], 16, 64)
	if err != nil {
		return ""
	}

	return strconv.FormatUint(value, 10)
}
