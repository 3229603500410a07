package agent

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/openai/openai-go"
)

const (
	DefaultModel          = "llama-3.3-70b-versatile"
	DefaultTemperature    = 0.3
	DefaultMaxIterations  = 15
	DefaultContextTokens  = 8192
	DefaultRetryBaseDelay = time.Second
	DefaultSystemPrompt   = "You are a helpful assistant. Use the available tools when they help answer the user."
)

// ErrMaxIterations is returned when the model keeps requesting tools past the iteration limit
var ErrMaxIterations = errors.New("agent stopped after reaching the maximum number of iterations")

// AgentConfig configures agent behavior
type AgentConfig struct {
	Model          string        `json:"model"`
	Temperature    float64       `json:"temperature,omitempty"`
	MaxTokens      int           `json:"max_tokens,omitempty"`
	SystemPrompt   string        `json:"system_prompt,omitempty"`
	MaxRetries     int           `json:"max_retries,omitempty"`
	MaxIterations  int           `json:"max_iterations,omitempty"`
	ContextTokens  int           `json:"context_tokens,omitempty"`
	RetryBaseDelay time.Duration `json:"-"`
}

// ToolCall represents a tool invocation requested by the model
type ToolCall struct {
	ID         string                 `json:"id"`
	Name       string                 `json:"name"`
	Parameters map[string]interface{} `json:"parameters"`
}

// TokenUsage tracks token consumption
type TokenUsage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

// AgentMessage represents a message in the conversation
type AgentMessage struct {
	Role       string     `json:"role"`
	Content    string     `json:"content"`
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`
	ToolCallID string     `json:"tool_call_id,omitempty"`
}

// ProviderError wraps a failed inference call
type ProviderError struct {
	Provider string
	Err      error
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("%s request failed: %v", e.Provider, e.Err)
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}

// DefaultConfig returns default agent configuration
func DefaultConfig() AgentConfig {
	return AgentConfig{
		Model:          DefaultModel,
		Temperature:    DefaultTemperature,
		MaxTokens:      1024,
		SystemPrompt:   DefaultSystemPrompt,
		MaxRetries:     3,
		MaxIterations:  DefaultMaxIterations,
		ContextTokens:  DefaultContextTokens,
		RetryBaseDelay: DefaultRetryBaseDelay,
	}
}

// IsRetryableError checks if an error should be retried
func IsRetryableError(err error) bool {
	if err == nil {
		return false
	}

	var openaiErr *openai.Error
	if errors.As(err, &openaiErr) {
		return retryableStatus(openaiErr.StatusCode)
	}
	var anthropicErr *anthropic.Error
	if errors.As(err, &anthropicErr) {
		return retryableStatus(anthropicErr.StatusCode)
	}

	errMsg := strings.ToLower(err.Error())

	// Network errors
	for _, s := range []string{"econnreset", "etimedout", "connection reset", "connection refused", "i/o timeout"} {
		if strings.Contains(errMsg, s) {
			return true
		}
	}

	// Rate limits
	if strings.Contains(errMsg, "429") || strings.Contains(errMsg, "rate limit") {
		return true
	}

	// Server errors
	for _, code := range []string{"500", "502", "503", "504"} {
		if strings.Contains(errMsg, code) {
			return true
		}
	}

	return false
}

func retryableStatus(code int) bool {
	return code == 429 || code >= 500
}

// EstimateTokens provides a rough token count estimation
func EstimateTokens(messages []AgentMessage) int {
	totalChars := 0
	for _, msg := range messages {
		totalChars += len(msg.Content)
	}
	// 1 token ≈ 4 characters
	return (totalChars + 3) / 4
}
