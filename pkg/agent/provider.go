package agent

import (
	"context"
	"fmt"

	"github.com/harun/groqchat/pkg/toolexecutor"
)

const (
	ProviderGroq      = "groq"
	ProviderOpenAI    = "openai"
	ProviderAnthropic = "anthropic"

	GroqBaseURL = "https://api.groq.com/openai/v1"
)

// LLMProvider is an interface for LLM API providers
type LLMProvider interface {
	// Call makes an LLM API call
	Call(ctx context.Context, request LLMRequest) (*LLMResponse, error)

	// Provider returns the provider name
	Provider() string
}

// LLMRequest contains the request parameters for LLM call
type LLMRequest struct {
	Model        string
	Messages     []AgentMessage
	Tools        []toolexecutor.ToolSpec
	Temperature  float64
	MaxTokens    int
	SystemPrompt string
}

// LLMResponse contains the response from LLM
type LLMResponse struct {
	Content   string
	ToolCalls []ToolCall
	Usage     *TokenUsage
}

// ProviderConfig selects and authenticates a provider. APIKey is the
// per-session credential and must never be logged.
type ProviderConfig struct {
	Provider string
	APIKey   string
	BaseURL  string
}

// ProviderCreator creates LLM providers
type ProviderCreator interface {
	NewProvider(cfg ProviderConfig) (LLMProvider, error)
}

// ProviderFactory creates the built-in providers
type ProviderFactory struct{}

// NewProvider creates a new LLM provider
func (f *ProviderFactory) NewProvider(cfg ProviderConfig) (LLMProvider, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("api key is required")
	}

	switch cfg.Provider {
	case ProviderGroq, "":
		baseURL := cfg.BaseURL
		if baseURL == "" {
			baseURL = GroqBaseURL
		}
		return NewOpenAIProvider(ProviderGroq, cfg.APIKey, baseURL), nil
	case ProviderOpenAI:
		return NewOpenAIProvider(ProviderOpenAI, cfg.APIKey, cfg.BaseURL), nil
	case ProviderAnthropic:
		return NewAnthropicProvider(cfg.APIKey, cfg.BaseURL), nil
	default:
		return nil, fmt.Errorf("unsupported provider: %s", cfg.Provider)
	}
}
