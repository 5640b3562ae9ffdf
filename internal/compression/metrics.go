package compression

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Outcomes recorded on compression.operations_total.
const (
	outcomeCompressed = "compressed"
	outcomeUnchanged  = "unchanged"
	outcomeFailed     = "failed"
)

// Reasons recorded on compression.fallbacks_total.
const (
	reasonNotShorter        = "not_shorter"
	reasonAttemptsExhausted = "attempts_exhausted"
	reasonError             = "error"
	reasonUnknownLimit      = "unknown_limit"
)

type metrics struct {
	operations metric.Int64Counter
	attempts   metric.Int64Histogram
	ratio      metric.Float64Histogram
	fallbacks  metric.Int64Counter
	duration   metric.Float64Histogram
}

func newMetrics(meter metric.Meter) (*metrics, error) {
	m := &metrics{}
	var err error

	m.operations, err = meter.Int64Counter(
		"compression.operations_total",
		metric.WithDescription("Total number of compression requests by outcome"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create operations counter: %w", err)
	}

	m.attempts, err = meter.Int64Histogram(
		"compression.attempts",
		metric.WithDescription("Verification rounds used per segment"),
		metric.WithUnit("1"),
		metric.WithExplicitBucketBoundaries(1, 2, 3, 4, 5, 8),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create attempts histogram: %w", err)
	}

	m.ratio, err = meter.Float64Histogram(
		"compression.ratio",
		metric.WithDescription("Original tokens divided by compressed tokens"),
		metric.WithUnit("1"),
		metric.WithExplicitBucketBoundaries(1.0, 1.25, 1.5, 2.0, 3.0, 5.0, 10.0),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create ratio histogram: %w", err)
	}

	m.fallbacks, err = meter.Int64Counter(
		"compression.fallbacks_total",
		metric.WithDescription("Times the original prompt was returned instead of a compressed one"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create fallbacks counter: %w", err)
	}

	m.duration, err = meter.Float64Histogram(
		"compression.duration_seconds",
		metric.WithDescription("Time spent compressing a prompt"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.5, 1, 5, 10, 30, 60, 120, 300),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create duration histogram: %w", err)
	}

	return m, nil
}

func (m *metrics) recordOperation(ctx context.Context, outcome string, elapsed time.Duration) {
	attrs := metric.WithAttributes(attribute.String("outcome", outcome))
	m.operations.Add(ctx, 1, attrs)
	m.duration.Record(ctx, elapsed.Seconds(), attrs)
}

func (m *metrics) recordRatio(ctx context.Context, original, compressed int) {
	if compressed > 0 {
		m.ratio.Record(ctx, float64(original)/float64(compressed))
	}
}

func (m *metrics) recordAttempts(ctx context.Context, n int) {
	m.attempts.Record(ctx, int64(n))
}

func (m *metrics) recordFallback(ctx context.Context, reason string) {
	m.fallbacks.Add(ctx, 1, metric.WithAttributes(attribute.String("reason", reason)))
}
