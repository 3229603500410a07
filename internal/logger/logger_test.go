package logger

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	t.Run("create logger with console output", func(t *testing.T) {
		buf := &bytes.Buffer{}
		logger, err := New(Config{
			Level:   "info",
			Console: true,
			Output:  buf,
		})
		require.NoError(t, err)
		defer logger.Close()

		logger.Info().Msg("hello console")
		assert.Contains(t, buf.String(), "hello console")
	})

	t.Run("create logger with file output", func(t *testing.T) {
		logFile := filepath.Join(t.TempDir(), "logs", "test.log")

		logger, err := New(Config{
			Level: "debug",
			File:  logFile,
		})
		require.NoError(t, err)

		logger.Info().Msg("test message")
		require.NoError(t, logger.Close())

		data, err := os.ReadFile(logFile)
		require.NoError(t, err)
		assert.Contains(t, string(data), "test message")
	})

	t.Run("redaction strips groq keys", func(t *testing.T) {
		buf := &bytes.Buffer{}
		logger, err := New(Config{
			Level:     "info",
			Console:   true,
			Output:    buf,
			Redaction: true,
		})
		require.NoError(t, err)
		defer logger.Close()
		assert.NotNil(t, logger.redactor)

		logger.Info().Str("key", "gsk_abcdefghijklmnopqrstuvwxyz012345").Msg("bootstrap")
		assert.NotContains(t, buf.String(), "gsk_abcdefghijklmnopqrstuvwxyz012345")
		assert.Contains(t, buf.String(), "[REDACTED]")
	})

	t.Run("invalid level falls back to info", func(t *testing.T) {
		logger, err := New(Config{Level: "loud"})
		require.NoError(t, err)
		defer logger.Close()

		assert.Equal(t, zerolog.InfoLevel, logger.GetZerolog().GetLevel())
	})
}

func TestSetLevel(t *testing.T) {
	logger, err := New(Config{Level: "info"})
	require.NoError(t, err)
	defer logger.Close()
	defer zerolog.SetGlobalLevel(zerolog.TraceLevel)

	t.Run("should accept known level", func(t *testing.T) {
		require.NoError(t, logger.SetLevel("warn"))
		assert.Equal(t, zerolog.WarnLevel, zerolog.GlobalLevel())
	})

	t.Run("should reject unknown level", func(t *testing.T) {
		err := logger.SetLevel("shouting")
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "invalid log level")
	})
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, "info", cfg.Level)
	assert.True(t, cfg.Console)
	assert.True(t, cfg.Pretty)
	assert.True(t, cfg.Redaction)
}

func TestLoggerWith(t *testing.T) {
	buf := &bytes.Buffer{}
	logger, err := New(Config{Level: "info", Console: true, Output: buf})
	require.NoError(t, err)
	defer logger.Close()

	child := logger.With().Str("component", "test").Logger()
	child.Info().Msg("child")

	assert.Contains(t, buf.String(), `"component":"test"`)
}
