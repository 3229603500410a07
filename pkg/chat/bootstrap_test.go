package chat

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/harun/groqchat/internal/config"
	"github.com/harun/groqchat/pkg/agent"
	"github.com/harun/groqchat/pkg/coretools"
	"github.com/harun/groqchat/pkg/session"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// scriptedProvider stands in for the inference API
type scriptedProvider struct {
	err error
}

func (p *scriptedProvider) Provider() string { return "groq" }

func (p *scriptedProvider) Call(ctx context.Context, request agent.LLMRequest) (*agent.LLMResponse, error) {
	if p.err != nil {
		return nil, p.err
	}

	last := request.Messages[len(request.Messages)-1]
	switch {
	case last.Role == "tool":
		return &agent.LLMResponse{Content: last.Content}, nil
	case strings.Contains(last.Content, "weather in Tokyo"):
		return &agent.LLMResponse{ToolCalls: []agent.ToolCall{{
			ID:         "call_weather",
			Name:       coretools.WeatherToolName,
			Parameters: map[string]interface{}{"city": "Tokyo"},
		}}}, nil
	default:
		return &agent.LLMResponse{Content: "Hello!"}, nil
	}
}

type recordingFactory struct {
	provider agent.LLMProvider
	configs  []agent.ProviderConfig
}

func (f *recordingFactory) NewProvider(cfg agent.ProviderConfig) (agent.LLMProvider, error) {
	f.configs = append(f.configs, cfg)
	if f.provider == nil {
		return nil, errors.New("no provider")
	}
	return f.provider, nil
}

func newTestBootstrapper(factory agent.ProviderCreator) *Bootstrapper {
	return NewBootstrapper(BootstrapConfig{
		Model:           config.DefaultConfig().Model,
		Logger:          zerolog.Nop(),
		ProviderFactory: factory,
	})
}

func TestBootstrap(t *testing.T) {
	t.Run("should refuse an empty credential and build nothing", func(t *testing.T) {
		factory := &recordingFactory{provider: &scriptedProvider{}}
		b := newTestBootstrapper(factory)
		sess := session.New("s")

		for _, credential := range []string{"", "   "} {
			err := b.Bootstrap(context.Background(), sess, credential)
			assert.ErrorIs(t, err, ErrMissingCredential)
		}

		assert.False(t, sess.HasAgent())
		assert.Empty(t, factory.configs)
	})

	t.Run("should build the agent once", func(t *testing.T) {
		factory := &recordingFactory{provider: &scriptedProvider{}}
		b := newTestBootstrapper(factory)
		sess := session.New("s")

		require.NoError(t, b.Bootstrap(context.Background(), sess, "gsk_first"))
		first := sess.Agent()
		require.NoError(t, b.Bootstrap(context.Background(), sess, "gsk_second"))

		assert.Same(t, first, sess.Agent())
		require.Len(t, factory.configs, 1)
		assert.Equal(t, "gsk_first", factory.configs[0].APIKey)
		assert.Equal(t, config.DefaultGroqBaseURL, factory.configs[0].BaseURL)
	})

	t.Run("should leave the session without agent when construction fails", func(t *testing.T) {
		b := newTestBootstrapper(&recordingFactory{})
		sess := session.New("s")

		err := b.Bootstrap(context.Background(), sess, "gsk_key")

		assert.Error(t, err)
		assert.False(t, sess.HasAgent())
	})

	t.Run("should build real providers through the default factory", func(t *testing.T) {
		b := NewBootstrapper(BootstrapConfig{Logger: zerolog.Nop()})
		sess := session.New("s")

		require.NoError(t, b.Bootstrap(context.Background(), sess, "gsk_not_a_real_key"))
		assert.True(t, sess.HasAgent())
	})
}

func TestBootstrapThenTurn(t *testing.T) {
	t.Run("should answer the Tokyo weather question through the tool", func(t *testing.T) {
		b := newTestBootstrapper(&recordingFactory{provider: &scriptedProvider{}})
		sess := session.New("s")
		require.NoError(t, b.Bootstrap(context.Background(), sess, "gsk_valid"))

		msg, ok := Turn(context.Background(), sess, "What's the weather in Tokyo?")

		require.True(t, ok)
		assert.Contains(t, msg.Content, "sunny in Tokyo")
	})

	t.Run("should surface a rejected credential as an error message", func(t *testing.T) {
		provider := &scriptedProvider{err: errors.New("401 Unauthorized: invalid key gsk_bad_credential_value")}
		b := newTestBootstrapper(&recordingFactory{provider: provider})
		sess := session.New("s")
		require.NoError(t, b.Bootstrap(context.Background(), sess, "gsk_bad_credential_value"))

		msg, ok := Turn(context.Background(), sess, "hello")

		require.True(t, ok)
		assert.True(t, strings.HasPrefix(msg.Content, "Error: "))
		assert.NotContains(t, msg.Content, "gsk_bad_credential_value")
		assert.Len(t, sess.Messages(), 2)
	})
}

func TestBaseURLFor(t *testing.T) {
	model := config.DefaultConfig().Model
	assert.Equal(t, config.DefaultGroqBaseURL, baseURLFor(model))

	model.Provider = agent.ProviderOpenAI
	assert.Equal(t, "", baseURLFor(model))

	model.BaseURL = "http://localhost:11434/v1"
	assert.Equal(t, "http://localhost:11434/v1", baseURLFor(model))
}

func TestSetModelConfig(t *testing.T) {
	b := newTestBootstrapper(&recordingFactory{provider: &scriptedProvider{}})

	model := b.ModelConfig()
	model.Name = "llama-3.1-8b-instant"
	b.SetModelConfig(model)

	assert.Equal(t, "llama-3.1-8b-instant", b.ModelConfig().Name)
}
