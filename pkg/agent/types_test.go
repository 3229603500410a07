package agent

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIsRetryableError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"rate limit", errors.New("429 Too Many Requests"), true},
		{"server error", errors.New("502 Bad Gateway"), true},
		{"connection reset", errors.New("read tcp: connection reset by peer"), true},
		{"unauthorized", errors.New("401 Unauthorized"), false},
		{"bad request", errors.New("400 invalid model"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsRetryableError(tt.err))
		})
	}
}

func TestProviderError(t *testing.T) {
	inner := errors.New("invalid api key")
	err := fmt.Errorf("turn: %w", &ProviderError{Provider: "groq", Err: inner})

	assert.ErrorIs(t, err, inner)
	assert.Contains(t, err.Error(), "groq request failed: invalid api key")
}

func TestEstimateTokens(t *testing.T) {
	assert.Equal(t, 0, EstimateTokens(nil))
	assert.Equal(t, 2, EstimateTokens([]AgentMessage{{Content: "12345"}}))
}

func TestProviderFactory(t *testing.T) {
	f := &ProviderFactory{}

	t.Run("should build groq on the openai client", func(t *testing.T) {
		p, err := f.NewProvider(ProviderConfig{Provider: ProviderGroq, APIKey: "gsk_test"})
		require.NoError(t, err)
		assert.Equal(t, ProviderGroq, p.Provider())
		assert.IsType(t, &OpenAIProvider{}, p)
	})

	t.Run("should build anthropic", func(t *testing.T) {
		p, err := f.NewProvider(ProviderConfig{Provider: ProviderAnthropic, APIKey: "sk-ant-test"})
		require.NoError(t, err)
		assert.Equal(t, ProviderAnthropic, p.Provider())
	})

	t.Run("should require an api key", func(t *testing.T) {
		_, err := f.NewProvider(ProviderConfig{Provider: ProviderGroq})
		assert.Error(t, err)
	})

	t.Run("should reject unknown providers", func(t *testing.T) {
		_, err := f.NewProvider(ProviderConfig{Provider: "gemini", APIKey: "k"})
		assert.Error(t, err)
	})
}
