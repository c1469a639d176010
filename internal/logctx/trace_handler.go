package logctx

import (
	"context"
	"log/slog"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// TraceHandler correlates log records with the OpenTelemetry span in their
// context. Every record gets trace_id and span_id; warnings and errors are
// also recorded as events on a recording span, so a segment's failed
// attempts show up on its fetch span.
type TraceHandler struct {
	slog.Handler
}

// NewTraceHandler wraps h. Panics if h is nil.
func NewTraceHandler(h slog.Handler) *TraceHandler {
	if h == nil {
		panic("logctx: NewTraceHandler called with nil handler")
	}
	return &TraceHandler{Handler: h}
}

// Handle implements slog.Handler.
func (h *TraceHandler) Handle(ctx context.Context, r slog.Record) error {
	span := trace.SpanFromContext(ctx)

	if sc := span.SpanContext(); sc.IsValid() {
		r.AddAttrs(
			slog.String("trace_id", sc.TraceID().String()),
			slog.String("span_id", sc.SpanID().String()),
		)
	}

	if r.Level >= slog.LevelWarn && span.IsRecording() {
		span.AddEvent(r.Message, trace.WithAttributes(spanEventAttrs(r)...))
	}

	return h.Handler.Handle(ctx, r)
}

// WithAttrs implements slog.Handler.
func (h *TraceHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &TraceHandler{Handler: h.Handler.WithAttrs(attrs)}
}

// WithGroup implements slog.Handler.
func (h *TraceHandler) WithGroup(name string) slog.Handler {
	return &TraceHandler{Handler: h.Handler.WithGroup(name)}
}

// spanEventAttrs converts the record's level and top-level attributes.
// Values are stringified; spans only need them for reading.
func spanEventAttrs(r slog.Record) []attribute.KeyValue {
	kvs := make([]attribute.KeyValue, 0, r.NumAttrs()+1)
	kvs = append(kvs, attribute.String("log.severity", r.Level.String()))

	r.Attrs(func(a slog.Attr) bool {
		kvs = append(kvs, attribute.String(a.Key, a.Value.Resolve().String()))
		return true
	})

	return kvs
}
