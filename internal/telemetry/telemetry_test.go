package telemetry

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/log/global"

	"github.com/fyrsmithlabs/promptzip/internal/config"
)

func TestNew_Disabled(t *testing.T) {
	tel, err := New(context.Background(), NewDefaultConfig())
	require.NoError(t, err)
	require.NotNil(t, tel)

	assert.NotNil(t, tel.Tracer("test"))
	assert.NotNil(t, tel.Meter("test"))
	assert.False(t, tel.IsEnabled())

	health := tel.Health()
	assert.True(t, health.Healthy)
	assert.False(t, health.Degraded)
}

func TestNew_InvalidConfig(t *testing.T) {
	cfg := &Config{Enabled: true}

	tel, err := New(context.Background(), cfg)
	require.Error(t, err)
	assert.Nil(t, tel)
	assert.Contains(t, err.Error(), "invalid telemetry config")
}

func TestTelemetry_NilSafe(t *testing.T) {
	var tel *Telemetry

	assert.NotPanics(t, func() {
		_ = tel.Tracer("test")
		_ = tel.Meter("test")
		_ = tel.LoggerProvider()
		_ = tel.IsEnabled()
		_ = tel.Shutdown(context.Background())
	})

	health := tel.Health()
	assert.False(t, health.Healthy)
	assert.True(t, health.Degraded)
}

func TestTelemetry_LoggerProviderFallsBackToGlobal(t *testing.T) {
	tel, err := New(context.Background(), NewDefaultConfig())
	require.NoError(t, err)

	assert.Equal(t, global.GetLoggerProvider(), tel.LoggerProvider())
}

func TestTelemetry_ShutdownDisabled(t *testing.T) {
	cfg := NewDefaultConfig()
	cfg.Shutdown.Timeout = config.Duration(100 * time.Millisecond)

	tel, err := New(context.Background(), cfg)
	require.NoError(t, err)

	require.NoError(t, tel.Shutdown(context.Background()))
	assert.False(t, tel.Health().Healthy)
	assert.NoError(t, tel.Shutdown(context.Background()), "second shutdown is a no-op")
}

func TestTelemetry_DegradedReasons(t *testing.T) {
	tel := &Telemetry{cfg: NewDefaultConfig()}
	tel.setDegraded("tracer provider failed: %v", "boom")

	health := tel.Health()
	assert.True(t, health.Degraded)
	assert.True(t, health.Healthy)
	assert.Equal(t, []string{"tracer provider failed: boom"}, health.Reasons)
}

func TestTestTelemetry_Spans(t *testing.T) {
	tt := NewTestTelemetry()
	tracer := tt.Tracer("test")

	_, span := tracer.Start(context.Background(), "compression.segment")
	span.SetAttributes(
		attribute.Int("segment.index", 0),
		attribute.String("model", "gpt-4"),
		attribute.Float64("ratio", 0.5),
		attribute.Bool("unchanged", false),
	)
	span.End()

	_, span = tracer.Start(context.Background(), "compression.segment")
	span.End()

	tt.AssertSpanExists(t, "compression.segment")
	tt.AssertSpanAttribute(t, "compression.segment", "segment.index", int64(0))
	tt.AssertSpanAttribute(t, "compression.segment", "model", "gpt-4")
	tt.AssertSpanAttribute(t, "compression.segment", "ratio", 0.5)
	tt.AssertSpanAttribute(t, "compression.segment", "unchanged", false)
	assert.Len(t, tt.SpansByName("compression.segment"), 2)
	assert.Nil(t, tt.SpanByName("missing"))
}

func TestTestTelemetry_CounterValue(t *testing.T) {
	tt := NewTestTelemetry()
	counter, err := tt.Meter("test").Int64Counter("compression.fallbacks_total")
	require.NoError(t, err)

	ctx := context.Background()
	counter.Add(ctx, 1, metricAttrs("reason", "not_shorter"))
	counter.Add(ctx, 2, metricAttrs("reason", "attempts_exhausted"))
	counter.Add(ctx, 1, metricAttrs("reason", "not_shorter"))

	assert.EqualValues(t, 2, tt.CounterValue(t, "compression.fallbacks_total", attribute.String("reason", "not_shorter")))
	assert.EqualValues(t, 4, tt.CounterValue(t, "compression.fallbacks_total"))
	assert.EqualValues(t, 0, tt.CounterValue(t, "missing.metric"))
}

func TestTestTelemetry_Shutdown(t *testing.T) {
	tt := NewTestTelemetry()
	_, span := tt.Tracer("test").Start(context.Background(), "span")
	span.End()

	assert.True(t, tt.IsEnabled())
	require.NoError(t, tt.Shutdown(context.Background()))
	assert.False(t, tt.Health().Healthy)
	assert.False(t, tt.IsEnabled())
	assert.Len(t, tt.Spans(), 1)
}
