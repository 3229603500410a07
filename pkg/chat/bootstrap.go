package chat

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/harun/groqchat/internal/config"
	"github.com/harun/groqchat/internal/logger"
	"github.com/harun/groqchat/internal/observability"
	"github.com/harun/groqchat/internal/tracing"
	"github.com/harun/groqchat/pkg/agent"
	"github.com/harun/groqchat/pkg/coretools"
	"github.com/harun/groqchat/pkg/memory"
	"github.com/harun/groqchat/pkg/session"
	"github.com/harun/groqchat/pkg/toolexecutor"
	"github.com/rs/zerolog"
)

// ErrMissingCredential is returned when bootstrap is attempted without a credential
var ErrMissingCredential = errors.New("missing API key")

// BootstrapConfig holds what every session agent is built from
type BootstrapConfig struct {
	Model           config.ModelConfig
	Logger          zerolog.Logger
	ProviderFactory agent.ProviderCreator
}

// Bootstrapper builds the agent of a session once a credential is supplied
type Bootstrapper struct {
	mu      sync.RWMutex
	model   config.ModelConfig
	logger  zerolog.Logger
	factory agent.ProviderCreator
}

// NewBootstrapper creates a bootstrapper. A zero model config falls back to the defaults.
func NewBootstrapper(cfg BootstrapConfig) *Bootstrapper {
	observability.EnsureRegistered()

	model := cfg.Model
	if model.Name == "" {
		model = config.DefaultConfig().Model
	}

	factory := cfg.ProviderFactory
	if factory == nil {
		factory = &agent.ProviderFactory{}
	}

	return &Bootstrapper{
		model:   model,
		logger:  cfg.Logger.With().Str("component", "bootstrap").Logger(),
		factory: factory,
	}
}

// SetModelConfig changes the settings used for sessions bootstrapped from now on
func (b *Bootstrapper) SetModelConfig(model config.ModelConfig) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.model = model
}

// ModelConfig returns the settings new sessions are built with
func (b *Bootstrapper) ModelConfig() config.ModelConfig {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.model
}

// Bootstrap builds the provider, tool executor, memory and runner for sess
// using credential. It does nothing for a session that already has an agent.
// The credential is not verified here; a bad one fails on the first turn.
func (b *Bootstrapper) Bootstrap(ctx context.Context, sess *session.Session, credential string) error {
	if sess == nil {
		return fmt.Errorf("session is required")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	ctx = tracing.WithSessionID(ctx, sess.ID)
	logger := tracing.LoggerFromContext(ctx, b.logger)

	credential = strings.TrimSpace(credential)
	if credential == "" {
		observability.RecordBootstrap(false)
		logger.Debug().Msg("Bootstrap refused without credential")
		return ErrMissingCredential
	}

	model := b.ModelConfig()

	_, created, err := sess.EnsureAgent(func() (session.Responder, error) {
		return b.build(model, credential)
	})
	if !created {
		return nil
	}

	observability.RecordBootstrap(err == nil)
	if err != nil {
		logger.Error().Err(err).Msg("Bootstrap failed")
		return err
	}

	logger.Info().
		Str("provider", model.Provider).
		Str("model", model.Name).
		Msg("Session bootstrapped")

	return nil
}

func (b *Bootstrapper) build(model config.ModelConfig, credential string) (session.Responder, error) {
	provider, err := b.factory.NewProvider(agent.ProviderConfig{
		Provider: model.Provider,
		APIKey:   credential,
		BaseURL:  baseURLFor(model),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create provider: %w", err)
	}

	exec := toolexecutor.New()
	if err := coretools.RegisterCoreTools(exec); err != nil {
		return nil, err
	}

	runner, err := agent.NewRunner(agent.Config{
		Provider:     provider,
		ToolExecutor: exec,
		Memory:       memory.NewConversationBuffer(model.MemoryKey),
		Agent: agent.AgentConfig{
			Model:         model.Name,
			Temperature:   model.Temperature,
			MaxTokens:     model.MaxTokens,
			SystemPrompt:  model.SystemPrompt,
			MaxRetries:    model.MaxRetries,
			MaxIterations: model.MaxIterations,
		},
		Logger: b.logger,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create agent runner: %w", err)
	}

	redactor := logger.NewRedactor()
	if err := redactor.AddPattern(regexp.QuoteMeta(credential)); err != nil {
		return nil, fmt.Errorf("failed to register credential redaction: %w", err)
	}

	return &guardedResponder{
		inner:    runner,
		redactor: redactor,
		timeout:  model.TurnTimeoutDuration(),
	}, nil
}

// baseURLFor returns the endpoint override for model. The default Groq URL
// only applies to the groq provider.
func baseURLFor(model config.ModelConfig) string {
	if model.Provider == agent.ProviderGroq || model.Provider == "" {
		return model.BaseURL
	}
	if model.BaseURL == config.DefaultGroqBaseURL {
		return ""
	}
	return model.BaseURL
}

// guardedResponder bounds a turn in time and keeps the credential out of
// error text shown to the user.
type guardedResponder struct {
	inner    session.Responder
	redactor *logger.Redactor
	timeout  time.Duration
}

func (g *guardedResponder) Respond(ctx context.Context, input string, history []session.Message) (string, error) {
	if g.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.timeout)
		defer cancel()
	}

	reply, err := g.inner.Respond(ctx, input, history)
	if err != nil {
		return "", &redactedError{msg: g.redactor.Redact(err.Error()), err: err}
	}
	return reply, nil
}

// redactedError keeps the wrapped chain for errors.Is/As while printing the scrubbed text
type redactedError struct {
	msg string
	err error
}

func (e *redactedError) Error() string { return e.msg }

func (e *redactedError) Unwrap() error { return e.err }
