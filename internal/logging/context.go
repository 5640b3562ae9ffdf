package logging

import (
	"context"
	"regexp"

	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// ContextFields extracts correlation data from ctx: the active trace, the
// compression run and segment, and the HTTP request ID.
func ContextFields(ctx context.Context) []zap.Field {
	fields := make([]zap.Field, 0, 6)

	if span := trace.SpanFromContext(ctx); span.SpanContext().IsValid() {
		sc := span.SpanContext()
		fields = append(fields,
			zap.String("trace_id", sc.TraceID().String()),
			zap.String("span_id", sc.SpanID().String()),
		)
	}

	if runID := RunIDFromContext(ctx); runID != "" {
		fields = append(fields, zap.String("run.id", runID))
	}

	if seg, ok := SegmentFromContext(ctx); ok {
		fields = append(fields,
			zap.Int("segment.index", seg.Index),
			zap.Int("segment.total", seg.Total),
		)
	}

	if requestID := RequestIDFromContext(ctx); requestID != "" {
		fields = append(fields, zap.String("request.id", requestID))
	}

	return fields
}

type runCtxKey struct{}
type segmentCtxKey struct{}
type requestCtxKey struct{}

// Segment identifies one piece of a prompt that was split to fit the
// context window.
type Segment struct {
	Index int
	Total int
}

const maxIDLen = 128

var idPattern = regexp.MustCompile(`^[a-zA-Z0-9_.:-]+$`)

func validID(id string) bool {
	return id != "" && len(id) <= maxIDLen && idPattern.MatchString(id)
}

// WithRunID tags ctx with the ID of one compression run.
func WithRunID(ctx context.Context, runID string) context.Context {
	return context.WithValue(ctx, runCtxKey{}, runID)
}

// RunIDFromContext returns the run ID, or "".
func RunIDFromContext(ctx context.Context) string {
	if s, ok := ctx.Value(runCtxKey{}).(string); ok {
		return s
	}
	return ""
}

// WithSegment tags ctx with the segment being compressed.
func WithSegment(ctx context.Context, index, total int) context.Context {
	return context.WithValue(ctx, segmentCtxKey{}, Segment{Index: index, Total: total})
}

// SegmentFromContext returns the segment, if any.
func SegmentFromContext(ctx context.Context) (Segment, bool) {
	s, ok := ctx.Value(segmentCtxKey{}).(Segment)
	return s, ok
}

// WithRequestID tags ctx with a request ID. Request IDs usually come from
// clients, so IDs that are empty, too long or contain characters outside
// [A-Za-z0-9_.:-] are ignored and ctx is returned unchanged.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	if !validID(requestID) {
		return ctx
	}
	return context.WithValue(ctx, requestCtxKey{}, requestID)
}

// RequestIDFromContext returns the request ID, or "".
func RequestIDFromContext(ctx context.Context) string {
	if r, ok := ctx.Value(requestCtxKey{}).(string); ok {
		return r
	}
	return ""
}
