// Command signvista serves sign-language recognition over HTTP and runs the
// local camera loop.
package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/ayusman/signvista/internal/config"
)

type rootOptions struct {
	configPath  string
	traceStdout bool
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:          "signvista",
		Short:        "Sign-language recognition service",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
				return fmt.Errorf("load .env: %w", err)
			}
			if opts.configPath == "" {
				opts.configPath = os.Getenv(config.EnvConfigPath)
			}
			return nil
		},
	}

	cmd.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "", "config file (default $"+config.EnvConfigPath+")")
	cmd.PersistentFlags().BoolVar(&opts.traceStdout, "trace-stdout", false, "write trace spans to stderr")

	cmd.AddCommand(
		newServeCmd(opts),
		newCameraCmd(opts),
		newValidateCmd(opts),
	)
	return cmd
}

// loadConfig reads the config file, applies the environment and installs
// the default logger at the configured level.
func loadConfig(path string) (*config.Config, error) {
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	config.ApplyEnv(cfg)
	setupLogging(cfg.Server.LogLevel)
	return cfg, nil
}

func setupLogging(level config.LogLevel) {
	var l slog.Level
	switch level {
	case config.LogDebug:
		l = slog.LevelDebug
	case config.LogWarn:
		l = slog.LevelWarn
	case config.LogError:
		l = slog.LevelError
	default:
		l = slog.LevelInfo
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: l})))
}
