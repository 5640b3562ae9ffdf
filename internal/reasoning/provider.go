package reasoning

import (
	"fmt"
	"net/http"
	"time"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/anthropic"
	"github.com/tmc/langchaingo/llms/openai"
)

// Supported providers.
const (
	ProviderOpenAI    = "openai"
	ProviderAnthropic = "anthropic"
)

// ModelConfig selects and authenticates a chat model.
type ModelConfig struct {
	Provider string
	Model    string
	APIKey   string
	BaseURL  string
	// Timeout bounds each HTTP request to the provider. Zero means no limit.
	Timeout time.Duration
}

// NewModel creates the langchaingo model for cfg.
func NewModel(cfg ModelConfig) (llms.Model, error) {
	if cfg.Model == "" {
		return nil, fmt.Errorf("model name required")
	}

	switch cfg.Provider {
	case ProviderOpenAI, "":
		opts := []openai.Option{openai.WithModel(cfg.Model)}
		if cfg.APIKey != "" {
			opts = append(opts, openai.WithToken(cfg.APIKey))
		}
		if cfg.BaseURL != "" {
			opts = append(opts, openai.WithBaseURL(cfg.BaseURL))
		}
		if cfg.Timeout > 0 {
			opts = append(opts, openai.WithHTTPClient(&http.Client{Timeout: cfg.Timeout}))
		}
		m, err := openai.New(opts...)
		if err != nil {
			return nil, fmt.Errorf("creating openai model: %w", err)
		}
		return m, nil
	case ProviderAnthropic:
		opts := []anthropic.Option{anthropic.WithModel(cfg.Model)}
		if cfg.APIKey != "" {
			opts = append(opts, anthropic.WithToken(cfg.APIKey))
		}
		if cfg.BaseURL != "" {
			opts = append(opts, anthropic.WithBaseURL(cfg.BaseURL))
		}
		if cfg.Timeout > 0 {
			opts = append(opts, anthropic.WithHTTPClient(&http.Client{Timeout: cfg.Timeout}))
		}
		m, err := anthropic.New(opts...)
		if err != nil {
			return nil, fmt.Errorf("creating anthropic model: %w", err)
		}
		return m, nil
	default:
		return nil, fmt.Errorf("unknown provider: %s", cfg.Provider)
	}
}

// Identity names a model for logs and cache keys.
func (c ModelConfig) Identity() string {
	provider := c.Provider
	if provider == "" {
		provider = ProviderOpenAI
	}
	return provider + "/" + c.Model
}
