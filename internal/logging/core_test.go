package logging

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/log/noop"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest"
	"go.uber.org/zap/zaptest/observer"

	"github.com/fyrsmithlabs/promptzip/internal/config"
)

func TestNewCore_ConsoleOnly(t *testing.T) {
	core, err := newCore(NewDefaultConfig(), nil, &zaptest.Buffer{})
	require.NoError(t, err)
	assert.NotNil(t, core)
}

func TestNewCore_ConsoleAndOTEL(t *testing.T) {
	cfg := NewDefaultConfig()
	cfg.Output.OTEL = true

	core, err := newCore(cfg, noop.NewLoggerProvider(), &zaptest.Buffer{})
	require.NoError(t, err)
	assert.NotNil(t, core)
}

func TestNewCore_NoOutputs(t *testing.T) {
	cfg := NewDefaultConfig()
	cfg.Output.Console = false

	_, err := newCore(cfg, nil, &zaptest.Buffer{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "at least one output")
}

func TestNewSampledCore_Disabled(t *testing.T) {
	core, _ := observer.New(zapcore.InfoLevel)
	assert.Equal(t, core, newSampledCore(core, SamplingConfig{Enabled: false}))
}

func TestNewSampledCore_ErrorsNeverSampled(t *testing.T) {
	core, observed := observer.New(zapcore.InfoLevel)
	sampled := newSampledCore(core, SamplingConfig{
		Enabled: true,
		Tick:    config.Duration(time.Second),
		Levels:  DefaultLevelSamplingConfig(),
	})
	logger := &Logger{zap: zap.New(sampled)}

	for i := 0; i < 150; i++ {
		logger.Error(context.Background(), "segment failed")
	}

	assert.Equal(t, 150, observed.FilterMessage("segment failed").Len())
}

func TestNewSampledCore_InfoSampled(t *testing.T) {
	core, observed := observer.New(zapcore.InfoLevel)
	sampled := newSampledCore(core, SamplingConfig{
		Enabled: true,
		Tick:    config.Duration(time.Minute),
		Levels: map[zapcore.Level]LevelSamplingConfig{
			zapcore.InfoLevel: {Initial: 5, Thereafter: 0},
		},
	})
	logger := &Logger{zap: zap.New(sampled)}

	for i := 0; i < 20; i++ {
		logger.Info(context.Background(), "attempt")
	}

	assert.Equal(t, 5, observed.FilterMessage("attempt").Len())
}

func TestLevelFilterCore(t *testing.T) {
	core, observed := observer.New(TraceLevel)
	filtered := &levelFilterCore{Core: core, maxLevel: zapcore.WarnLevel}

	assert.True(t, filtered.Enabled(zapcore.InfoLevel))
	assert.False(t, filtered.Enabled(zapcore.ErrorLevel))

	child := filtered.With([]zapcore.Field{zap.String("k", "v")})
	logger := zap.New(child)
	logger.Warn("kept")
	logger.Error("dropped")

	require.Equal(t, 1, observed.Len())
	assert.Equal(t, "kept", observed.All()[0].Message)
}

func TestPreview(t *testing.T) {
	short := Preview("prompt", "hello", 10)
	assert.Equal(t, "hello", short.String)

	long := Preview("prompt", "héllo wörld", 5)
	assert.Equal(t, "héllo…(13 bytes)", long.String)
}

func TestSecretField(t *testing.T) {
	tl := NewTestLogger()
	tl.Info(context.Background(), "connecting", Secret("redis_password", config.Secret("hunter22")))

	entries := tl.All()
	require.Len(t, entries, 1)
	m := entries[0].ContextMap()
	assert.Equal(t, map[string]any{"set": true, "length": 8}, m["redis_password"])
}

func TestTestLogger_Assertions(t *testing.T) {
	tl := NewTestLogger()
	ctx := context.Background()

	tl.Info(ctx, "segment compressed", zap.String("model", "gpt-4"), zap.Int("tokens", 3))

	tl.AssertLogged(t, zapcore.InfoLevel, "segment compressed")
	tl.AssertNotLogged(t, zapcore.ErrorLevel, "segment compressed")
	tl.AssertField(t, "segment", "model", "gpt-4")
	tl.AssertField(t, "segment", "tokens", int64(3))

	tl.Reset()
	assert.Empty(t, tl.All())
}
