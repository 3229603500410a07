package cli

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/harun/groqchat/internal/config"
	"github.com/harun/groqchat/pkg/gateway"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig() *config.Config {
	cfg := config.DefaultConfig()
	cfg.Logging.Pretty = false
	cfg.Logging.Level = "warn"
	return cfg
}

func healthOf(t *testing.T, a *app) gateway.HealthReport {
	t.Helper()
	rec := httptest.NewRecorder()
	a.server.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var report gateway.HealthReport
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&report))
	return report
}

func TestApp_Lifecycle(t *testing.T) {
	a, err := newApp(testConfig(), appOptions{addr: "127.0.0.1:0"})
	require.NoError(t, err)
	require.NoError(t, a.start())

	assert.True(t, a.sweeper.IsRunning())

	resp, err := http.Get("http://" + a.server.Addr() + "/healthz")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, a.stop(ctx))
	assert.False(t, a.sweeper.IsRunning())
}

func TestApp_StopWithoutStart(t *testing.T) {
	a, err := newApp(testConfig(), appOptions{addr: "127.0.0.1:0"})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	assert.NoError(t, a.stop(ctx))
}

func TestApp_InvalidOptions(t *testing.T) {
	t.Run("should reject an unknown log level", func(t *testing.T) {
		_, err := newApp(testConfig(), appOptions{addr: "127.0.0.1:0", logLevel: "loud"})
		assert.Error(t, err)
	})

	t.Run("should reject a bad sweep schedule", func(t *testing.T) {
		cfg := testConfig()
		cfg.Session.SweepSchedule = "whenever"

		_, err := newApp(cfg, appOptions{addr: "127.0.0.1:0"})
		assert.Error(t, err)
	})
}

func TestApp_ApplyConfig(t *testing.T) {
	a, err := newApp(testConfig(), appOptions{addr: "127.0.0.1:0"})
	require.NoError(t, err)
	defer a.log.Close()

	assert.Equal(t, gateway.DefaultTurnsPerMinute, healthOf(t, a).TurnsPerMinute)

	next := testConfig()
	next.Model.Name = "llama-3.1-8b-instant"
	next.Session.TurnsPerMinute = 5
	a.applyConfig(next)

	assert.Equal(t, "llama-3.1-8b-instant", a.boot.ModelConfig().Name)
	assert.Equal(t, 5, healthOf(t, a).TurnsPerMinute)
}

func TestApp_ReloadsConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "groqchat.json")
	loader := config.NewLoader(path)
	require.NoError(t, loader.Save(testConfig()))

	cfg, err := config.Load(path)
	require.NoError(t, err)

	a, err := newApp(cfg, appOptions{configPath: path, addr: "127.0.0.1:0"})
	require.NoError(t, err)
	require.NotNil(t, a.watcher)
	require.NoError(t, a.start())
	defer a.stop(context.Background())

	next := testConfig()
	next.Model.Name = "llama-3.1-8b-instant"
	require.NoError(t, loader.Save(next))

	assert.Eventually(t, func() bool {
		return a.boot.ModelConfig().Name == "llama-3.1-8b-instant"
	}, 5*time.Second, 50*time.Millisecond)
}
