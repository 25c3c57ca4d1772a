package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/alejandrodnm/polyswarm/config"
)

type rootFlags struct {
	configPath string
	verbose    bool
	format     string
	logFormat  string
}

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		slog.Error("polyswarm exited with error", "err", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	flags := &rootFlags{}

	root := &cobra.Command{
		Use:           "polyswarm",
		Short:         "Multi-agent trading swarm for Polymarket",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().StringVar(&flags.configPath, "config", "config/config.yaml", "path to config file")
	root.PersistentFlags().BoolVar(&flags.verbose, "verbose", false, "set log level to debug")
	root.PersistentFlags().StringVar(&flags.format, "format", "table", "console output: table|compact")
	root.PersistentFlags().StringVar(&flags.logFormat, "log-format", "", "log format: text|json (overrides config)")

	root.AddCommand(newRunCmd(flags))
	root.AddCommand(newSwarmCmd(flags))
	root.AddCommand(newMarketsCmd(flags))
	return root
}

// loadConfig carga la configuración y deja el logger listo.
func loadConfig(flags *rootFlags) (*config.Config, error) {
	cfg, err := config.Load(flags.configPath)
	if err != nil {
		return nil, err
	}
	if flags.verbose {
		cfg.Log.Level = "debug"
	}
	if flags.logFormat != "" {
		cfg.Log.Format = flags.logFormat
	}
	setupLogger(cfg.Log)
	return cfg, nil
}

func setupLogger(cfg config.LogConfig) {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}
	slog.SetDefault(slog.New(handler))
}
