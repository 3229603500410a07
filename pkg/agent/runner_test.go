package agent

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/harun/groqchat/pkg/coretools"
	"github.com/harun/groqchat/pkg/memory"
	"github.com/harun/groqchat/pkg/session"
	"github.com/harun/groqchat/pkg/toolexecutor"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeProvider replays scripted responses and records every request.
type fakeProvider struct {
	mu        sync.Mutex
	responses []fakeResponse
	requests  []LLMRequest
}

type fakeResponse struct {
	resp *LLMResponse
	err  error
}

func (p *fakeProvider) Provider() string { return "fake" }

func (p *fakeProvider) Call(ctx context.Context, request LLMRequest) (*LLMResponse, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.requests = append(p.requests, request)
	if len(p.responses) == 0 {
		return &LLMResponse{Content: "default answer"}, nil
	}
	next := p.responses[0]
	p.responses = p.responses[1:]
	return next.resp, next.err
}

func (p *fakeProvider) calls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.requests)
}

// weatherProvider asks for the weather tool on the first call and echoes the
// tool result on the second.
type weatherProvider struct {
	fakeProvider
}

func (p *weatherProvider) Call(ctx context.Context, request LLMRequest) (*LLMResponse, error) {
	p.mu.Lock()
	p.requests = append(p.requests, request)
	p.mu.Unlock()

	last := request.Messages[len(request.Messages)-1]
	if last.Role == "tool" {
		return &LLMResponse{Content: "Here you go: " + last.Content}, nil
	}
	return &LLMResponse{
		ToolCalls: []ToolCall{{
			ID:         "call_1",
			Name:       coretools.WeatherToolName,
			Parameters: map[string]interface{}{"city": "Tokyo"},
		}},
	}, nil
}

func newTestExecutor(t *testing.T) *toolexecutor.ToolExecutor {
	exec := toolexecutor.New()
	require.NoError(t, coretools.RegisterCoreTools(exec))
	return exec
}

func newTestRunner(t *testing.T, provider LLMProvider, mem *memory.ConversationBuffer) *Runner {
	cfg := DefaultConfig()
	cfg.RetryBaseDelay = time.Millisecond

	runner, err := NewRunner(Config{
		Provider:     provider,
		ToolExecutor: newTestExecutor(t),
		Memory:       mem,
		Agent:        cfg,
		Logger:       zerolog.Nop(),
	})
	require.NoError(t, err)
	return runner
}

func TestNewRunner(t *testing.T) {
	t.Run("should fail without provider", func(t *testing.T) {
		_, err := NewRunner(Config{ToolExecutor: toolexecutor.New()})
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "provider")
	})

	t.Run("should fail without tool executor", func(t *testing.T) {
		_, err := NewRunner(Config{Provider: &fakeProvider{}})
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "tool executor")
	})

	t.Run("should reject invalid temperature", func(t *testing.T) {
		_, err := NewRunner(Config{
			Provider:     &fakeProvider{},
			ToolExecutor: toolexecutor.New(),
			Agent:        AgentConfig{Temperature: 1.5},
		})
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "temperature")
	})

	t.Run("should fill defaults", func(t *testing.T) {
		runner, err := NewRunner(Config{
			Provider:     &fakeProvider{},
			ToolExecutor: toolexecutor.New(),
		})
		require.NoError(t, err)
		assert.Equal(t, DefaultModel, runner.config.Model)
		assert.Equal(t, DefaultMaxIterations, runner.config.MaxIterations)
		assert.NotEmpty(t, runner.config.SystemPrompt)
	})
}

func TestRunnerRespond(t *testing.T) {
	t.Run("should return a direct answer", func(t *testing.T) {
		provider := &fakeProvider{responses: []fakeResponse{{resp: &LLMResponse{Content: "Hi there"}}}}
		runner := newTestRunner(t, provider, nil)

		answer, err := runner.Respond(context.Background(), "hello", nil)

		require.NoError(t, err)
		assert.Equal(t, "Hi there", answer)
		require.Len(t, provider.requests, 1)

		req := provider.requests[0]
		assert.Equal(t, "llama-3.3-70b-versatile", req.Model)
		assert.Equal(t, 0.3, req.Temperature)
		require.Len(t, req.Tools, 1)
		assert.Equal(t, coretools.WeatherToolName, req.Tools[0].Name)
		assert.Equal(t, []AgentMessage{{Role: "user", Content: "hello"}}, req.Messages)
	})

	t.Run("should run the weather tool and answer with its result", func(t *testing.T) {
		provider := &weatherProvider{}
		runner := newTestRunner(t, provider, nil)

		answer, err := runner.Respond(context.Background(), "What's the weather in Tokyo?", nil)

		require.NoError(t, err)
		assert.Contains(t, answer, "sunny in Tokyo")
		require.Len(t, provider.requests, 2)

		second := provider.requests[1].Messages
		require.Len(t, second, 3)
		assert.Equal(t, "assistant", second[1].Role)
		assert.Equal(t, "tool", second[2].Role)
		assert.Equal(t, "call_1", second[2].ToolCallID)
	})

	t.Run("should feed tool failures back to the model", func(t *testing.T) {
		provider := &fakeProvider{responses: []fakeResponse{
			{resp: &LLMResponse{ToolCalls: []ToolCall{{ID: "c1", Name: coretools.WeatherToolName}}}},
			{resp: &LLMResponse{Content: "Which city?"}},
		}}
		runner := newTestRunner(t, provider, nil)

		answer, err := runner.Respond(context.Background(), "weather please", nil)

		require.NoError(t, err)
		assert.Equal(t, "Which city?", answer)
		toolMsg := provider.requests[1].Messages[2]
		assert.True(t, strings.HasPrefix(toolMsg.Content, "Error: "))
	})

	t.Run("should wrap provider failures", func(t *testing.T) {
		provider := &fakeProvider{responses: []fakeResponse{{err: errors.New("401 Unauthorized: invalid api key")}}}
		runner := newTestRunner(t, provider, nil)

		_, err := runner.Respond(context.Background(), "hello", nil)

		require.Error(t, err)
		var providerErr *ProviderError
		require.ErrorAs(t, err, &providerErr)
		assert.Equal(t, "fake", providerErr.Provider)
		assert.Equal(t, 1, provider.calls(), "permanent errors are not retried")
	})

	t.Run("should retry retryable errors", func(t *testing.T) {
		provider := &fakeProvider{responses: []fakeResponse{
			{err: errors.New("429 rate limit reached")},
			{err: errors.New("503 service unavailable")},
			{resp: &LLMResponse{Content: "finally"}},
		}}
		runner := newTestRunner(t, provider, nil)

		answer, err := runner.Respond(context.Background(), "hello", nil)

		require.NoError(t, err)
		assert.Equal(t, "finally", answer)
		assert.Equal(t, 3, provider.calls())
	})

	t.Run("should give up after max retries", func(t *testing.T) {
		provider := &fakeProvider{responses: []fakeResponse{
			{err: errors.New("500 internal")},
			{err: errors.New("500 internal")},
			{err: errors.New("500 internal")},
		}}
		runner := newTestRunner(t, provider, nil)

		_, err := runner.Respond(context.Background(), "hello", nil)

		require.Error(t, err)
		assert.Contains(t, err.Error(), "max retries")
		assert.Equal(t, 3, provider.calls())
	})

	t.Run("should stop at the iteration limit", func(t *testing.T) {
		loop := &LLMResponse{ToolCalls: []ToolCall{{ID: "c", Name: coretools.WeatherToolName, Parameters: map[string]interface{}{"city": "Oslo"}}}}
		responses := make([]fakeResponse, 0, 20)
		for i := 0; i < 20; i++ {
			responses = append(responses, fakeResponse{resp: loop})
		}
		provider := &fakeProvider{responses: responses}
		runner := newTestRunner(t, provider, nil)

		_, err := runner.Respond(context.Background(), "loop forever", nil)

		assert.ErrorIs(t, err, ErrMaxIterations)
		assert.Equal(t, DefaultMaxIterations, provider.calls())
	})

	t.Run("should stop on a cancelled context", func(t *testing.T) {
		provider := &fakeProvider{}
		runner := newTestRunner(t, provider, nil)

		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		_, err := runner.Respond(ctx, "hello", nil)

		assert.ErrorIs(t, err, context.Canceled)
		assert.Equal(t, 0, provider.calls())
	})
}

func TestRunnerMemory(t *testing.T) {
	t.Run("should send remembered exchanges", func(t *testing.T) {
		mem := memory.NewConversationBuffer("chat_history")
		provider := &fakeProvider{responses: []fakeResponse{
			{resp: &LLMResponse{Content: "first answer"}},
			{resp: &LLMResponse{Content: "second answer"}},
		}}
		runner := newTestRunner(t, provider, mem)

		_, err := runner.Respond(context.Background(), "first", nil)
		require.NoError(t, err)
		_, err = runner.Respond(context.Background(), "second", nil)
		require.NoError(t, err)

		assert.Equal(t, []AgentMessage{
			{Role: "user", Content: "first"},
			{Role: "assistant", Content: "first answer"},
			{Role: "user", Content: "second"},
		}, provider.requests[1].Messages)
		assert.Equal(t, 4, mem.Len())
	})

	t.Run("should log under the memory key", func(t *testing.T) {
		var buf bytes.Buffer
		mem := memory.NewConversationBuffer("support_history")
		runner, err := NewRunner(Config{
			Provider:     &fakeProvider{responses: []fakeResponse{{resp: &LLMResponse{Content: "hi"}}}},
			ToolExecutor: newTestExecutor(t),
			Memory:       mem,
			Agent:        DefaultConfig(),
			Logger:       zerolog.New(&buf).Level(zerolog.DebugLevel),
		})
		require.NoError(t, err)

		_, err = runner.Respond(context.Background(), "hello", nil)
		require.NoError(t, err)

		assert.Contains(t, buf.String(), "Agent run completed")
		assert.Contains(t, buf.String(), `"memory_key":"support_history"`)
		assert.Contains(t, buf.String(), `"memory_entries":2`)
	})

	t.Run("should not remember failed runs", func(t *testing.T) {
		mem := memory.NewConversationBuffer("chat_history")
		provider := &fakeProvider{responses: []fakeResponse{{err: errors.New("bad key")}}}
		runner := newTestRunner(t, provider, mem)

		_, err := runner.Respond(context.Background(), "hello", nil)

		require.Error(t, err)
		assert.Equal(t, 0, mem.Len())
	})

	t.Run("should fall back to transcript history without failed entries", func(t *testing.T) {
		provider := &fakeProvider{}
		runner := newTestRunner(t, provider, nil)

		history := []session.Message{
			{Role: session.RoleUser, Content: "hi"},
			{Role: session.RoleAssistant, Content: "hello"},
			{Role: session.RoleUser, Content: "broken"},
			{Role: session.RoleAssistant, Content: "Error: boom", Failed: true},
		}

		_, err := runner.Respond(context.Background(), "again", history)
		require.NoError(t, err)

		assert.Equal(t, []AgentMessage{
			{Role: "user", Content: "hi"},
			{Role: "assistant", Content: "hello"},
			{Role: "user", Content: "again"},
		}, provider.requests[0].Messages)
	})
}

func TestCompactIfNeeded(t *testing.T) {
	provider := &fakeProvider{}
	runner := newTestRunner(t, provider, nil)
	runner.config.ContextTokens = 10

	messages := []AgentMessage{
		{Role: "user", Content: strings.Repeat("a", 40)},
		{Role: "assistant", Content: strings.Repeat("b", 40)},
		{Role: "user", Content: "short"},
	}

	compacted := runner.compactIfNeeded(messages)

	require.Len(t, compacted, 1)
	assert.Equal(t, "short", compacted[0].Content)
}
