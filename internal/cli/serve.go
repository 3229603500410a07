package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/harun/groqchat/internal/config"
	"github.com/spf13/cobra"
)

var (
	serveAddr     string
	serveShutdown int
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the groqchat web server",
	Long: `Start the groqchat web server in the foreground.
Open the listen address in a browser and enter a Groq API key to start chatting.
The server stops on SIGINT or SIGTERM.`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "listen address, overrides server.host and server.port")
	serveCmd.Flags().IntVar(&serveShutdown, "shutdown-timeout", 30, "seconds to wait for in-flight turns on shutdown")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	pidFile := getPIDFilePath()
	if isRunning(pidFile) {
		return fmt.Errorf("server is already running (PID file: %s)", pidFile)
	}

	loader := config.NewLoader(cfgFile)
	cfg, err := loader.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	opts := appOptions{
		configPath: loader.GetConfigPath(),
		addr:       serveAddr,
	}
	if cmd.Flags().Changed("log-level") {
		opts.logLevel = logLevel
	}

	a, err := newApp(cfg, opts)
	if err != nil {
		return err
	}
	if err := a.start(); err != nil {
		_ = a.stop(context.Background())
		return err
	}

	if err := writePIDFile(pidFile); err != nil {
		a.logger.Warn().Err(err).Msg("Failed to write PID file")
	}
	defer os.Remove(pidFile)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	<-ctx.Done()

	a.logger.Info().Msg("Shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Duration(serveShutdown)*time.Second)
	defer cancel()

	return a.stop(shutdownCtx)
}
