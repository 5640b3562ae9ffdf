package reasoning

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewModel(t *testing.T) {
	tests := []struct {
		name    string
		cfg     ModelConfig
		wantErr string
	}{
		{"openai", ModelConfig{Provider: ProviderOpenAI, Model: "gpt-4o", APIKey: "sk-test"}, ""},
		{"default provider", ModelConfig{Model: "gpt-4o", APIKey: "sk-test"}, ""},
		{"openai with timeout and base url", ModelConfig{Model: "gpt-4o", APIKey: "sk-test", BaseURL: "http://localhost:8080/v1", Timeout: time.Second}, ""},
		{"anthropic", ModelConfig{Provider: ProviderAnthropic, Model: "claude-sonnet-4", APIKey: "sk-ant-test", Timeout: time.Second}, ""},
		{"missing model", ModelConfig{Provider: ProviderOpenAI, APIKey: "sk-test"}, "model name required"},
		{"unknown provider", ModelConfig{Provider: "cohere", Model: "command"}, "unknown provider"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, err := NewModel(tt.cfg)
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.NotNil(t, m)
		})
	}
}

func TestModelConfig_Identity(t *testing.T) {
	assert.Equal(t, "openai/gpt-4o", ModelConfig{Model: "gpt-4o"}.Identity())
	assert.Equal(t, "anthropic/claude-haiku-4", ModelConfig{Provider: ProviderAnthropic, Model: "claude-haiku-4"}.Identity())
}
