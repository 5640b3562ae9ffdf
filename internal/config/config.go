// Package config provides configuration loading for promptzip.
//
// Configuration is layered: built-in defaults, then an optional YAML file,
// then PROMPTZIP_* environment variables.
package config

import (
	"errors"
	"fmt"
	"time"
)

// Config holds the complete promptzip configuration.
type Config struct {
	LLM         LLMConfig         `koanf:"llm"`
	Compression CompressionConfig `koanf:"compression"`
	Cache       CacheConfig       `koanf:"cache"`
	Logging     LoggingConfig     `koanf:"logging"`
	Telemetry   TelemetryConfig   `koanf:"telemetry"`
	Server      ServerConfig      `koanf:"server"`
}

// LLMConfig selects the reasoning models.
//
// Model handles the full-quality operations. FastModel handles format
// identification, diffing and JSON repair, and defaults to Model.
type LLMConfig struct {
	Provider           string   `koanf:"provider"` // openai | anthropic
	Model              string   `koanf:"model"`
	FastModel          string   `koanf:"fast_model"`
	APIKey             Secret   `koanf:"api_key"`
	BaseURL            string   `koanf:"base_url"`
	Timeout            Duration `koanf:"timeout"`
	RateLimit          float64  `koanf:"rate_limit"` // requests per second, 0 disables
	Burst              int      `koanf:"burst"`
	MaxRetries         int      `koanf:"max_retries"`
	MaxTokens          int      `koanf:"max_tokens"`
	JSONRepairAttempts int      `koanf:"json_repair_attempts"`
}

// CompressionConfig tunes the compression pipeline.
type CompressionConfig struct {
	Attempts      int     `koanf:"attempts"`
	SafetyFactor  float64 `koanf:"safety_factor"`
	ContextWindow int     `koanf:"context_window"` // 0 looks the window up by model name
	Concurrency   int     `koanf:"concurrency"`    // parallel segments when splitting
	Tokenizer     string  `koanf:"tokenizer"`      // tiktoken | bytes
}

// CacheConfig selects and tunes the result cache.
type CacheConfig struct {
	Backend          string   `koanf:"backend"` // memory | redis | none
	TTL              Duration `koanf:"ttl"`
	MaxEntries       int      `koanf:"max_entries"`
	RedisAddr        string   `koanf:"redis_addr"`
	RedisPassword    Secret   `koanf:"redis_password"`
	RedisDB          int      `koanf:"redis_db"`
	RedisKeyPrefix   string   `koanf:"redis_key_prefix"`
	RedisDialTimeout Duration `koanf:"redis_dial_timeout"`
	BreakerFailures  uint32   `koanf:"breaker_failures"`
	BreakerCooldown  Duration `koanf:"breaker_cooldown"`
}

// LoggingConfig holds the user-facing logging knobs.
type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"` // json | console
	Output string `koanf:"output"` // stderr | stdout
	OTEL   bool   `koanf:"otel"`
}

// TelemetryConfig holds OpenTelemetry export settings.
type TelemetryConfig struct {
	Enabled        bool     `koanf:"enabled"`
	Endpoint       string   `koanf:"endpoint"`
	Protocol       string   `koanf:"protocol"` // grpc | http/protobuf
	Insecure       bool     `koanf:"insecure"`
	ServiceName    string   `koanf:"service_name"`
	SampleRate     float64  `koanf:"sample_rate"`
	MetricsEnabled bool     `koanf:"metrics_enabled"`
	ExportInterval Duration `koanf:"export_interval"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Host            string   `koanf:"host"`
	Port            int      `koanf:"port"`
	ShutdownTimeout Duration `koanf:"shutdown_timeout"`
	RequestTimeout  Duration `koanf:"request_timeout"`
	MaxBodyBytes    int64    `koanf:"max_body_bytes"`
}

// Default returns the configuration used when nothing is set.
func Default() *Config {
	return &Config{
		LLM: LLMConfig{
			Provider:           "openai",
			Model:              "gpt-4",
			Timeout:            Duration(2 * time.Minute),
			RateLimit:          50.0 / 60.0,
			Burst:              5,
			MaxRetries:         3,
			MaxTokens:          4096,
			JSONRepairAttempts: 3,
		},
		Compression: CompressionConfig{
			Attempts:     3,
			SafetyFactor: 0.70,
			Concurrency:  4,
			Tokenizer:    "tiktoken",
		},
		Cache: CacheConfig{
			Backend:          "memory",
			TTL:              Duration(7 * 24 * time.Hour),
			MaxEntries:       10000,
			RedisAddr:        "localhost:6379",
			RedisKeyPrefix:   "promptzip:",
			RedisDialTimeout: Duration(5 * time.Second),
			BreakerFailures:  5,
			BreakerCooldown:  Duration(30 * time.Second),
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stderr",
		},
		Telemetry: TelemetryConfig{
			Enabled:        false,
			Endpoint:       "localhost:4317",
			Protocol:       "grpc",
			Insecure:       true,
			ServiceName:    "promptzip",
			SampleRate:     1.0,
			MetricsEnabled: true,
			ExportInterval: Duration(15 * time.Second),
		},
		Server: ServerConfig{
			Host:            "127.0.0.1",
			Port:            8088,
			ShutdownTimeout: Duration(10 * time.Second),
			RequestTimeout:  Duration(10 * time.Minute),
			MaxBodyBytes:    4 << 20,
		},
	}
}

// FastModelName returns the model used for fast operations.
func (c LLMConfig) FastModelName() string {
	if c.FastModel != "" {
		return c.FastModel
	}
	return c.Model
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	var errs []error

	switch c.LLM.Provider {
	case "openai", "anthropic":
	default:
		errs = append(errs, fmt.Errorf("llm.provider must be 'openai' or 'anthropic', got %q", c.LLM.Provider))
	}
	if c.LLM.Model == "" {
		errs = append(errs, errors.New("llm.model is required"))
	}
	if c.LLM.RateLimit < 0 {
		errs = append(errs, errors.New("llm.rate_limit cannot be negative"))
	}
	if c.LLM.MaxRetries < 0 {
		errs = append(errs, errors.New("llm.max_retries cannot be negative"))
	}
	if c.LLM.JSONRepairAttempts < 0 {
		errs = append(errs, errors.New("llm.json_repair_attempts cannot be negative"))
	}

	if c.Compression.Attempts < 1 {
		errs = append(errs, fmt.Errorf("compression.attempts must be >= 1, got %d", c.Compression.Attempts))
	}
	if c.Compression.SafetyFactor <= 0 || c.Compression.SafetyFactor > 1 {
		errs = append(errs, fmt.Errorf("compression.safety_factor must be in (0, 1], got %g", c.Compression.SafetyFactor))
	}
	if c.Compression.ContextWindow < 0 {
		errs = append(errs, errors.New("compression.context_window cannot be negative"))
	}
	if c.Compression.Concurrency < 1 {
		errs = append(errs, fmt.Errorf("compression.concurrency must be >= 1, got %d", c.Compression.Concurrency))
	}
	switch c.Compression.Tokenizer {
	case "tiktoken", "bytes":
	default:
		errs = append(errs, fmt.Errorf("compression.tokenizer must be 'tiktoken' or 'bytes', got %q", c.Compression.Tokenizer))
	}

	switch c.Cache.Backend {
	case "memory":
		if c.Cache.MaxEntries < 1 {
			errs = append(errs, errors.New("cache.max_entries must be >= 1 for the memory backend"))
		}
	case "redis":
		if c.Cache.RedisAddr == "" {
			errs = append(errs, errors.New("cache.redis_addr is required for the redis backend"))
		}
		// cache clear deletes every key under the prefix
		if c.Cache.RedisKeyPrefix == "" {
			errs = append(errs, errors.New("cache.redis_key_prefix is required for the redis backend"))
		}
	case "none":
	default:
		errs = append(errs, fmt.Errorf("cache.backend must be 'memory', 'redis' or 'none', got %q", c.Cache.Backend))
	}

	if c.Logging.Format != "json" && c.Logging.Format != "console" {
		errs = append(errs, fmt.Errorf("logging.format must be 'json' or 'console', got %q", c.Logging.Format))
	}
	if c.Logging.Output != "stderr" && c.Logging.Output != "stdout" {
		errs = append(errs, fmt.Errorf("logging.output must be 'stderr' or 'stdout', got %q", c.Logging.Output))
	}

	if c.Server.Port < 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port out of range: %d", c.Server.Port))
	}

	return errors.Join(errs...)
}
