package main

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/promptzip/internal/cache"
	"github.com/fyrsmithlabs/promptzip/internal/compression"
	"github.com/fyrsmithlabs/promptzip/internal/config"
	"github.com/fyrsmithlabs/promptzip/internal/logging"
	"github.com/fyrsmithlabs/promptzip/internal/reasoning"
	"github.com/fyrsmithlabs/promptzip/internal/telemetry"
	"github.com/fyrsmithlabs/promptzip/internal/tokens"
)

// app holds the wired dependencies shared by the commands.
type app struct {
	cfg        *config.Config
	telemetry  *telemetry.Telemetry
	logger     *logging.Logger
	cache      *cache.Cache
	compressor *compression.Compressor
}

// newBase loads configuration and starts telemetry and logging.
func newBase(ctx context.Context) (*app, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}

	tel, err := telemetry.New(ctx, telemetry.FromConfig(cfg.Telemetry, version))
	if err != nil {
		return nil, fmt.Errorf("failed to initialize telemetry: %w", err)
	}

	logCfg, err := logging.FromConfig(cfg.Logging)
	if err != nil {
		return nil, fmt.Errorf("invalid logging config: %w", err)
	}
	logger, err := logging.NewLogger(logCfg, tel.LoggerProvider())
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	return &app{cfg: cfg, telemetry: tel, logger: logger}, nil
}

// newApp builds the full compression stack.
func newApp(ctx context.Context) (*app, error) {
	a, err := newBase(ctx)
	if err != nil {
		return nil, err
	}

	a.cache, err = newCache(ctx, a.cfg.Cache, a.logger)
	if err != nil {
		a.close(ctx)
		return nil, err
	}

	full, fast, err := newServices(a.cfg.LLM, a.cache, a.logger)
	if err != nil {
		a.close(ctx)
		return nil, err
	}

	measurer, err := newMeasurer(a.cfg.Compression.Tokenizer, a.cfg.LLM.Model)
	if err != nil {
		a.close(ctx)
		return nil, err
	}

	window := contextWindow(a.cfg)
	if window == 0 {
		a.logger.Warn(ctx, "unknown context window, prompts will not be split ahead of time",
			zap.String("model", a.cfg.LLM.Model),
		)
	}

	a.compressor, err = compression.New(full, fast, measurer,
		compression.WithAttempts(a.cfg.Compression.Attempts),
		compression.WithContextWindow(window),
		compression.WithSafetyFactor(a.cfg.Compression.SafetyFactor),
		compression.WithConcurrency(a.cfg.Compression.Concurrency),
		compression.WithLogger(a.logger),
		compression.WithTracer(a.telemetry.Tracer(telemetry.ScopeCompression)),
		compression.WithMeter(a.telemetry.Meter(telemetry.ScopeCompression)),
	)
	if err != nil {
		a.close(ctx)
		return nil, fmt.Errorf("failed to create compressor: %w", err)
	}
	return a, nil
}

func (a *app) close(ctx context.Context) {
	if err := a.cache.Close(); err != nil {
		a.logger.Warn(ctx, "failed to close cache", zap.Error(err))
	}
	if err := a.telemetry.Shutdown(ctx); err != nil {
		a.logger.Warn(ctx, "telemetry shutdown failed", zap.Error(err))
	}
	_ = a.logger.Sync()
}

// newCache returns nil when caching is disabled.
func newCache(ctx context.Context, cfg config.CacheConfig, logger *logging.Logger) (*cache.Cache, error) {
	var store cache.Store
	switch cfg.Backend {
	case "none":
		return nil, nil
	case "memory":
		store = cache.NewMemoryStore(cfg.MaxEntries, cfg.TTL.Duration())
	case "redis":
		rs := cache.NewRedisStore(cache.RedisConfig{
			Addr:            cfg.RedisAddr,
			Password:        cfg.RedisPassword.Value(),
			DB:              cfg.RedisDB,
			KeyPrefix:       cfg.RedisKeyPrefix,
			DialTimeout:     cfg.RedisDialTimeout.Duration(),
			BreakerFailures: cfg.BreakerFailures,
			BreakerTimeout:  cfg.BreakerCooldown.Duration(),
		}, logger)
		if err := rs.Ping(ctx); err != nil {
			logger.Warn(ctx, "redis cache unreachable, continuing uncached until it recovers",
				zap.String("addr", cfg.RedisAddr),
				zap.Error(err),
			)
		}
		store = rs
	default:
		return nil, fmt.Errorf("unknown cache backend: %s", cfg.Backend)
	}

	return cache.New(store,
		cache.WithTTL(cfg.TTL.Duration()),
		cache.WithLogger(logger),
		cache.WithMetrics(cache.NewMetrics()),
	), nil
}

// newServices creates the full and fast reasoning services. The fast model
// also repairs malformed JSON for both.
func newServices(cfg config.LLMConfig, c *cache.Cache, logger *logging.Logger) (full, fast reasoning.Service, err error) {
	fullCfg := reasoning.ModelConfig{
		Provider: cfg.Provider,
		Model:    cfg.Model,
		APIKey:   cfg.APIKey.Value(),
		BaseURL:  cfg.BaseURL,
		Timeout:  cfg.Timeout.Duration(),
	}
	fastCfg := fullCfg
	fastCfg.Model = cfg.FastModelName()

	fullModel, err := reasoning.NewModel(fullCfg)
	if err != nil {
		return nil, nil, err
	}
	fastModel := fullModel
	if fastCfg.Model != fullCfg.Model {
		if fastModel, err = reasoning.NewModel(fastCfg); err != nil {
			return nil, nil, err
		}
	}

	common := []reasoning.Option{
		reasoning.WithRepairModel(fastModel),
		reasoning.WithRateLimit(cfg.RateLimit, cfg.Burst),
		reasoning.WithRetries(cfg.MaxRetries, 0),
		reasoning.WithMaxTokens(cfg.MaxTokens),
		reasoning.WithJSONRepairAttempts(cfg.JSONRepairAttempts),
		reasoning.WithLogger(logger.Named("reasoning")),
	}

	fullSvc, err := reasoning.NewLLMService(fullModel, append(common, reasoning.WithName(fullCfg.Identity()))...)
	if err != nil {
		return nil, nil, err
	}
	fastSvc, err := reasoning.NewLLMService(fastModel, append(common, reasoning.WithName(fastCfg.Identity()))...)
	if err != nil {
		return nil, nil, err
	}

	if c == nil {
		return fullSvc, fastSvc, nil
	}
	return reasoning.NewCachedService(fullSvc, c, fullCfg.Identity()),
		reasoning.NewCachedService(fastSvc, c, fastCfg.Identity()),
		nil
}

func newMeasurer(tokenizer, model string) (tokens.Measurer, error) {
	switch tokenizer {
	case "bytes":
		return tokens.ByteEstimator(tokens.DefaultBytesPerToken), nil
	case "tiktoken", "":
		t, err := tokens.NewTiktoken(model)
		if err != nil {
			return nil, fmt.Errorf("failed to load tokenizer: %w", err)
		}
		return t, nil
	default:
		return nil, fmt.Errorf("unknown tokenizer: %s", tokenizer)
	}
}

// contextWindow prefers the configured window and falls back to the known
// window of the full model. Zero disables proactive splitting.
func contextWindow(cfg *config.Config) int {
	if cfg.Compression.ContextWindow > 0 {
		return cfg.Compression.ContextWindow
	}
	w, _ := tokens.ContextWindow(cfg.LLM.Model)
	return w
}

var errCacheDisabled = errors.New("cache is disabled (cache.backend is none)")
