package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.NotNil(t, cfg)
	assert.Equal(t, "groq", cfg.Model.Provider)
	assert.Equal(t, "llama-3.3-70b-versatile", cfg.Model.Name)
	assert.Equal(t, 0.3, cfg.Model.Temperature)
	assert.Equal(t, "https://api.groq.com/openai/v1", cfg.Model.BaseURL)
	assert.Equal(t, "chat_history", cfg.Model.MemoryKey)
	assert.Equal(t, 15, cfg.Model.MaxIterations)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.True(t, cfg.Logging.Redaction)
	assert.Equal(t, "127.0.0.1:8501", cfg.Server.Addr())
	assert.Equal(t, time.Hour, cfg.Session.IdleTimeoutDuration())
	assert.Zero(t, cfg.Model.TurnTimeoutDuration())
	assert.NoError(t, cfg.Validate())
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"invalid port", func(c *Config) { c.Server.Port = 0 }, "port"},
		{"unknown provider", func(c *Config) { c.Model.Provider = "gemini" }, "invalid model provider"},
		{"empty model", func(c *Config) { c.Model.Name = "" }, "model name"},
		{"temperature too high", func(c *Config) { c.Model.Temperature = 1.5 }, "temperature"},
		{"negative max tokens", func(c *Config) { c.Model.MaxTokens = -1 }, "max_tokens"},
		{"negative retries", func(c *Config) { c.Model.MaxRetries = -1 }, "max_retries"},
		{"zero iterations", func(c *Config) { c.Model.MaxIterations = 0 }, "max_iterations"},
		{"negative turn timeout", func(c *Config) { c.Model.TurnTimeout = -5 }, "turn_timeout"},
		{"empty memory key", func(c *Config) { c.Model.MemoryKey = "" }, "memory_key"},
		{"zero idle timeout", func(c *Config) { c.Session.IdleTimeout = 0 }, "idle_timeout"},
		{"empty sweep schedule", func(c *Config) { c.Session.SweepSchedule = "" }, "sweep_schedule"},
		{"zero rate limit", func(c *Config) { c.Session.TurnsPerMinute = 0 }, "turns_per_minute"},
		{"empty cookie name", func(c *Config) { c.Session.CookieName = "" }, "cookie_name"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)

			err := cfg.Validate()
			assert.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}

	t.Run("alternate providers are accepted", func(t *testing.T) {
		for _, p := range []string{"openai", "anthropic"} {
			cfg := DefaultConfig()
			cfg.Model.Provider = p
			assert.NoError(t, cfg.Validate())
		}
	})
}

func TestConfigString(t *testing.T) {
	s := DefaultConfig().String()
	assert.Contains(t, s, `"provider": "groq"`)
	assert.NotContains(t, s, "api_key")
}
