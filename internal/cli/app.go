package cli

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/harun/groqchat/internal/config"
	"github.com/harun/groqchat/internal/logger"
	"github.com/harun/groqchat/internal/tracing"
	"github.com/harun/groqchat/pkg/chat"
	"github.com/harun/groqchat/pkg/gateway"
	"github.com/harun/groqchat/pkg/session"
	"github.com/rs/zerolog"
)

const serviceName = "groqchat"

// app owns every long running component of the server process
type app struct {
	cfg      *config.Config
	log      *logger.Logger
	logger   zerolog.Logger
	sessions *session.Manager
	sweeper  *session.Sweeper
	boot     *chat.Bootstrapper
	server   *gateway.Server
	watcher  *config.Watcher
}

// appOptions are the command line overrides applied on top of the config
type appOptions struct {
	configPath string
	addr       string
	logLevel   string
}

func newApp(cfg *config.Config, opts appOptions) (*app, error) {
	level := cfg.Logging.Level
	if opts.logLevel != "" {
		level = opts.logLevel
	}

	// The global level gates output so reloads can lower it as well as raise it.
	lg, err := logger.New(logger.Config{
		Level:     "trace",
		File:      cfg.Logging.File,
		Console:   true,
		Pretty:    cfg.Logging.Pretty,
		Redaction: cfg.Logging.Redaction,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create logger: %w", err)
	}
	if err := lg.SetLevel(level); err != nil {
		lg.Close()
		return nil, err
	}
	zl := lg.GetZerolog()

	if err := tracing.InitOpenTelemetry(serviceName); err != nil {
		zl.Warn().Err(err).Msg("OpenTelemetry unavailable, spans disabled")
	}

	sessions := session.NewManager(cfg.Session.IdleTimeoutDuration())
	sweeper, err := session.NewSweeper(sessions, cfg.Session.SweepSchedule, zl)
	if err != nil {
		lg.Close()
		return nil, fmt.Errorf("failed to create session sweeper: %w", err)
	}

	boot := chat.NewBootstrapper(chat.BootstrapConfig{
		Model:  cfg.Model,
		Logger: zl,
	})

	addr := cfg.Server.Addr()
	if opts.addr != "" {
		addr = opts.addr
	}

	server, err := gateway.NewServer(gateway.Config{
		Addr:           addr,
		Title:          cfg.Server.Title,
		CookieName:     cfg.Session.CookieName,
		TurnsPerMinute: cfg.Session.TurnsPerMinute,
		Sessions:       sessions,
		Bootstrapper:   boot,
		Logger:         zl,
	})
	if err != nil {
		lg.Close()
		return nil, fmt.Errorf("failed to create server: %w", err)
	}

	a := &app{
		cfg:      cfg,
		log:      lg,
		logger:   zl,
		sessions: sessions,
		sweeper:  sweeper,
		boot:     boot,
		server:   server,
	}

	if opts.configPath != "" {
		if _, err := os.Stat(opts.configPath); err == nil {
			watcher, err := config.NewWatcher(opts.configPath, zl, a.applyConfig)
			if err != nil {
				zl.Warn().Err(err).Msg("Config hot reload disabled")
			} else {
				a.watcher = watcher
			}
		}
	}

	return a, nil
}

// applyConfig takes the reloadable parts of a new config: log level and the
// model settings of sessions bootstrapped from now on.
func (a *app) applyConfig(cfg *config.Config) {
	if err := a.log.SetLevel(cfg.Logging.Level); err != nil {
		a.logger.Warn().Err(err).Msg("Ignoring reloaded log level")
	}
	a.boot.SetModelConfig(cfg.Model)
	a.server.SetTurnsPerMinute(cfg.Session.TurnsPerMinute)

	a.logger.Info().
		Str("level", cfg.Logging.Level).
		Str("provider", cfg.Model.Provider).
		Str("model", cfg.Model.Name).
		Msg("Applied reloaded config")
}

func (a *app) start() error {
	if err := a.sweeper.Start(); err != nil {
		return fmt.Errorf("failed to start session sweeper: %w", err)
	}
	if err := a.server.Start(); err != nil {
		_ = a.sweeper.Stop()
		return err
	}

	a.logger.Info().
		Str("addr", a.server.Addr()).
		Str("provider", a.cfg.Model.Provider).
		Str("model", a.cfg.Model.Name).
		Msg("groqchat is ready")

	return nil
}

func (a *app) stop(ctx context.Context) error {
	var errs []error

	if err := a.server.Stop(ctx); err != nil {
		errs = append(errs, err)
	}
	if a.sweeper.IsRunning() {
		if err := a.sweeper.Stop(); err != nil {
			errs = append(errs, err)
		}
	}
	if a.watcher != nil {
		if err := a.watcher.Stop(); err != nil {
			errs = append(errs, err)
		}
	}
	if err := tracing.ShutdownOpenTelemetry(ctx); err != nil {
		errs = append(errs, err)
	}

	a.logger.Info().Msg("groqchat stopped")

	if err := a.log.Close(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}
