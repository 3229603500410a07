package config

import (
	"encoding/json"
	"fmt"
	"time"
)

// Fixed inference parameters used when the config file does not override them.
const (
	DefaultProvider    = "groq"
	DefaultModel       = "llama-3.3-70b-versatile"
	DefaultTemperature = 0.3
	DefaultGroqBaseURL = "https://api.groq.com/openai/v1"
	DefaultMemoryKey   = "chat_history"
)

// Config represents the groqchat configuration. It never carries the
// provider credential: that is entered per session in the browser.
type Config struct {
	// HTTP server
	Server ServerConfig `json:"server" mapstructure:"server"`

	// Inference provider and agent loop
	Model ModelConfig `json:"model" mapstructure:"model"`

	// Browser sessions
	Session SessionConfig `json:"session" mapstructure:"session"`

	// Logging
	Logging LoggingConfig `json:"logging" mapstructure:"logging"`

	// Data directory
	DataDir string `json:"data_dir" mapstructure:"data_dir"`
}

// ServerConfig holds web server configuration
type ServerConfig struct {
	Host  string `json:"host" mapstructure:"host"`
	Port  int    `json:"port" mapstructure:"port"`
	Title string `json:"title" mapstructure:"title"`
}

// ModelConfig configures the inference provider and the agent loop
type ModelConfig struct {
	Provider      string  `json:"provider" mapstructure:"provider"` // groq, openai, anthropic
	Name          string  `json:"name" mapstructure:"name"`
	Temperature   float64 `json:"temperature" mapstructure:"temperature"`
	MaxTokens     int     `json:"max_tokens" mapstructure:"max_tokens"`
	BaseURL       string  `json:"base_url" mapstructure:"base_url"`
	SystemPrompt  string  `json:"system_prompt" mapstructure:"system_prompt"`
	MaxRetries    int     `json:"max_retries" mapstructure:"max_retries"`
	MaxIterations int     `json:"max_iterations" mapstructure:"max_iterations"`
	TurnTimeout   int     `json:"turn_timeout" mapstructure:"turn_timeout"` // seconds, 0 disables
	MemoryKey     string  `json:"memory_key" mapstructure:"memory_key"`
}

// SessionConfig holds browser session configuration
type SessionConfig struct {
	IdleTimeout    int    `json:"idle_timeout" mapstructure:"idle_timeout"` // seconds
	SweepSchedule  string `json:"sweep_schedule" mapstructure:"sweep_schedule"`
	TurnsPerMinute int    `json:"turns_per_minute" mapstructure:"turns_per_minute"`
	CookieName     string `json:"cookie_name" mapstructure:"cookie_name"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level     string `json:"level" mapstructure:"level"`
	File      string `json:"file" mapstructure:"file"`
	Pretty    bool   `json:"pretty" mapstructure:"pretty"`
	Redaction bool   `json:"redaction" mapstructure:"redaction"`
}

// DefaultConfig returns a config with default values
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:  "127.0.0.1",
			Port:  8501,
			Title: "AI Agent Chatbot (Groq)",
		},
		Model: ModelConfig{
			Provider:      DefaultProvider,
			Name:          DefaultModel,
			Temperature:   DefaultTemperature,
			MaxTokens:     1024,
			BaseURL:       DefaultGroqBaseURL,
			MaxRetries:    3,
			MaxIterations: 15,
			MemoryKey:     DefaultMemoryKey,
		},
		Session: SessionConfig{
			IdleTimeout:    3600,
			SweepSchedule:  "@every 1m",
			TurnsPerMinute: 30,
			CookieName:     "groqchat_session",
		},
		Logging: LoggingConfig{
			Level:     "info",
			Pretty:    true,
			Redaction: true,
		},
	}
}

// Addr returns the listen address for the web server
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// TurnTimeoutDuration returns the per-turn deadline, zero when disabled
func (m ModelConfig) TurnTimeoutDuration() time.Duration {
	return time.Duration(m.TurnTimeout) * time.Second
}

// IdleTimeoutDuration returns how long an untouched session is kept
func (s SessionConfig) IdleTimeoutDuration() time.Duration {
	return time.Duration(s.IdleTimeout) * time.Second
}

// String returns a JSON representation of the config
func (c *Config) String() string {
	data, _ := json.MarshalIndent(c, "", "  ")
	return string(data)
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}

	switch c.Model.Provider {
	case "groq", "openai", "anthropic":
	default:
		return fmt.Errorf("invalid model provider %s (must be: groq, openai, anthropic)", c.Model.Provider)
	}
	if c.Model.Name == "" {
		return fmt.Errorf("model name is required")
	}
	if c.Model.Temperature < 0 || c.Model.Temperature > 1 {
		return fmt.Errorf("model temperature must be between 0 and 1")
	}
	if c.Model.MaxTokens < 0 {
		return fmt.Errorf("model max_tokens cannot be negative")
	}
	if c.Model.MaxRetries < 0 {
		return fmt.Errorf("model max_retries cannot be negative")
	}
	if c.Model.MaxIterations <= 0 {
		return fmt.Errorf("model max_iterations must be positive")
	}
	if c.Model.TurnTimeout < 0 {
		return fmt.Errorf("model turn_timeout cannot be negative")
	}
	if c.Model.MemoryKey == "" {
		return fmt.Errorf("model memory_key is required")
	}

	if c.Session.IdleTimeout <= 0 {
		return fmt.Errorf("session idle_timeout must be positive")
	}
	if c.Session.SweepSchedule == "" {
		return fmt.Errorf("session sweep_schedule is required")
	}
	if c.Session.TurnsPerMinute <= 0 {
		return fmt.Errorf("session turns_per_minute must be positive")
	}
	if c.Session.CookieName == "" {
		return fmt.Errorf("session cookie_name is required")
	}

	return nil
}
