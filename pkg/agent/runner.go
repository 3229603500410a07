package agent

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/harun/groqchat/internal/observability"
	"github.com/harun/groqchat/internal/tracing"
	"github.com/harun/groqchat/pkg/memory"
	"github.com/harun/groqchat/pkg/session"
	"github.com/harun/groqchat/pkg/toolexecutor"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
)

// Runner answers chat input with an LLM, running requested tools until the
// model produces a plain reply.
type Runner struct {
	provider     LLMProvider
	toolExecutor *toolexecutor.ToolExecutor
	memory       *memory.ConversationBuffer
	config       AgentConfig
	logger       zerolog.Logger
}

// Config holds runner configuration
type Config struct {
	Provider     LLMProvider
	ToolExecutor *toolexecutor.ToolExecutor
	Memory       *memory.ConversationBuffer
	Agent        AgentConfig
	Logger       zerolog.Logger
}

// NewRunner creates a new agent runner
func NewRunner(cfg Config) (*Runner, error) {
	observability.EnsureRegistered()

	if cfg.Provider == nil {
		return nil, fmt.Errorf("llm provider is required")
	}
	if cfg.ToolExecutor == nil {
		return nil, fmt.Errorf("tool executor is required")
	}

	agentCfg := cfg.Agent
	defaults := DefaultConfig()
	if agentCfg.Model == "" {
		agentCfg.Model = defaults.Model
	}
	if agentCfg.SystemPrompt == "" {
		agentCfg.SystemPrompt = defaults.SystemPrompt
	}
	if agentCfg.MaxIterations <= 0 {
		agentCfg.MaxIterations = defaults.MaxIterations
	}
	if agentCfg.MaxRetries <= 0 {
		agentCfg.MaxRetries = defaults.MaxRetries
	}
	if agentCfg.ContextTokens <= 0 {
		agentCfg.ContextTokens = defaults.ContextTokens
	}
	if agentCfg.RetryBaseDelay <= 0 {
		agentCfg.RetryBaseDelay = defaults.RetryBaseDelay
	}

	if err := validateConfig(agentCfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	logCtx := cfg.Logger.With().Str("component", "agent").Str("provider", cfg.Provider.Provider())
	if cfg.Memory != nil {
		logCtx = logCtx.Str("memory_key", cfg.Memory.Key())
	}

	return &Runner{
		provider:     cfg.Provider,
		toolExecutor: cfg.ToolExecutor,
		memory:       cfg.Memory,
		config:       agentCfg,
		logger:       logCtx.Logger(),
	}, nil
}

// Respond produces the reply to input. With a memory buffer attached the
// model sees the buffer; otherwise it sees history minus failed entries.
func (r *Runner) Respond(ctx context.Context, input string, history []session.Message) (string, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if tracing.GetTraceID(ctx) == "" {
		ctx = tracing.NewRequestContext(ctx)
	}
	attrs := []attribute.KeyValue{
		attribute.String("provider", r.provider.Provider()),
		attribute.String("model", r.config.Model),
	}
	if r.memory != nil {
		attrs = append(attrs,
			attribute.String("memory_key", r.memory.Key()),
			attribute.Int("memory_entries", r.memory.Len()),
		)
	}
	ctx, span := tracing.StartSpan(ctx, "groqchat.agent", "agent.respond", attrs...)
	logger := tracing.LoggerFromContext(ctx, r.logger)
	start := time.Now()

	answer, err := r.run(ctx, input, history)

	observability.RecordAgentRun(r.provider.Provider(), time.Since(start), err == nil)
	tracing.EndSpan(span, err)

	if err != nil {
		logger.Warn().Err(err).Dur("duration", time.Since(start)).Msg("Agent run failed")
		return "", err
	}

	event := logger.Debug().Dur("duration", time.Since(start))
	if r.memory != nil {
		r.memory.SaveContext(input, answer)
		event = event.Int("memory_entries", r.memory.Len())
	}
	event.Msg("Agent run completed")
	return answer, nil
}

func (r *Runner) run(ctx context.Context, input string, history []session.Message) (string, error) {
	messages := r.buildMessages(input, history)
	tools := r.toolExecutor.Specs()
	logger := tracing.LoggerFromContext(ctx, r.logger)

	for iteration := 0; iteration < r.config.MaxIterations; iteration++ {
		if err := ctx.Err(); err != nil {
			return "", err
		}

		response, err := r.callLLMWithRetry(ctx, messages, tools)
		if err != nil {
			return "", &ProviderError{Provider: r.provider.Provider(), Err: err}
		}

		if len(response.ToolCalls) == 0 {
			return response.Content, nil
		}

		messages = append(messages, AgentMessage{
			Role:      "assistant",
			Content:   response.Content,
			ToolCalls: response.ToolCalls,
		})

		for _, toolCall := range response.ToolCalls {
			result := r.toolExecutor.Execute(ctx, toolCall.Name, toolCall.Parameters, &toolexecutor.ExecutionContext{
				SessionID: tracing.GetSessionID(ctx),
				CallID:    toolCall.ID,
			})

			logger.Debug().
				Str("tool", toolCall.Name).
				Bool("success", result.Success).
				Int("iteration", iteration).
				Msg("Tool call handled")

			messages = append(messages, AgentMessage{
				Role:       "tool",
				Content:    result.Content(),
				ToolCallID: toolCall.ID,
			})
		}
	}

	return "", ErrMaxIterations
}

// validateConfig validates agent configuration
func validateConfig(config AgentConfig) error {
	if config.Temperature < 0 || config.Temperature > 1 {
		return fmt.Errorf("temperature must be between 0 and 1")
	}
	if config.MaxTokens < 0 {
		return fmt.Errorf("max tokens cannot be negative")
	}
	return nil
}

// buildMessages constructs the conversation sent to the model, system prompt excluded
func (r *Runner) buildMessages(input string, history []session.Message) []AgentMessage {
	messages := []AgentMessage{}

	if r.memory != nil {
		for _, entry := range r.memory.Load() {
			messages = append(messages, AgentMessage{Role: entry.Role, Content: entry.Content})
		}
	} else {
		for _, msg := range history {
			if msg.Failed || msg.Content == "" {
				continue
			}
			messages = append(messages, AgentMessage{Role: string(msg.Role), Content: msg.Content})
		}
		messages = dropUnanswered(messages)
	}

	messages = append(messages, AgentMessage{
		Role:    "user",
		Content: input,
	})

	return r.compactIfNeeded(messages)
}

// dropUnanswered removes user entries whose reply was skipped so that roles
// keep alternating.
func dropUnanswered(messages []AgentMessage) []AgentMessage {
	out := make([]AgentMessage, 0, len(messages))
	for i, msg := range messages {
		if msg.Role == "user" && (i+1 == len(messages) || messages[i+1].Role != "assistant") {
			continue
		}
		out = append(out, msg)
	}
	return out
}

// compactIfNeeded drops the oldest exchanges once the estimate exceeds the context budget
func (r *Runner) compactIfNeeded(messages []AgentMessage) []AgentMessage {
	tokenCount := EstimateTokens(messages)
	if tokenCount <= r.config.ContextTokens {
		return messages
	}

	dropped := 0
	for len(messages) > 1 && EstimateTokens(messages) > r.config.ContextTokens {
		messages = messages[1:]
		dropped++
	}
	// Never start on an assistant reply.
	for len(messages) > 1 && messages[0].Role != "user" {
		messages = messages[1:]
		dropped++
	}

	r.logger.Info().
		Int("tokenCount", tokenCount).
		Int("contextTokens", r.config.ContextTokens).
		Int("dropped", dropped).
		Msg("Compacted context")

	return messages
}

// callLLMWithRetry calls the provider with exponential backoff retry
func (r *Runner) callLLMWithRetry(ctx context.Context, messages []AgentMessage, tools []toolexecutor.ToolSpec) (*LLMResponse, error) {
	maxRetries := r.config.MaxRetries
	var lastErr error

	for attempt := 0; attempt < maxRetries; attempt++ {
		response, err := r.callLLM(ctx, messages, tools)
		if err == nil {
			return response, nil
		}

		lastErr = err

		if !IsRetryableError(err) || errors.Is(err, context.Canceled) {
			return nil, err
		}

		if attempt == maxRetries-1 {
			break
		}

		delay := r.config.RetryBaseDelay * time.Duration(1<<attempt)
		observability.RecordProviderRetry(r.provider.Provider())
		logger := tracing.LoggerFromContext(ctx, r.logger)
		logger.Info().
			Int("attempt", attempt+1).
			Dur("delay", delay).
			Msg("Retrying after error")

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(delay):
		}
	}

	return nil, fmt.Errorf("max retries (%d) exceeded: %w", maxRetries, lastErr)
}

// callLLM makes a single provider call
func (r *Runner) callLLM(ctx context.Context, messages []AgentMessage, tools []toolexecutor.ToolSpec) (*LLMResponse, error) {
	response, err := r.provider.Call(ctx, LLMRequest{
		Model:        r.config.Model,
		Messages:     messages,
		Tools:        tools,
		Temperature:  r.config.Temperature,
		MaxTokens:    r.config.MaxTokens,
		SystemPrompt: r.config.SystemPrompt,
	})
	if err != nil {
		return nil, err
	}
	if response == nil {
		return nil, fmt.Errorf("empty response from provider")
	}
	return response, nil
}
