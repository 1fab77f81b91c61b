package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/pattonant/autopen2.0/internal/config"
)

var (
	flagConfig string
	flagJSON   bool

	// cfg is loaded once in PersistentPreRunE and shared by subcommands.
	cfg *config.Config
)

var rootCmd = &cobra.Command{
	Use:   "autopen",
	Short: "autopen - penetration-test pipeline orchestrator",
	Long: `autopen orchestrates authorized penetration tests through a fixed
phase pipeline: pre-engagement, reconnaissance, threat modeling,
vulnerability scanning, exploitation, post-exploitation and reporting.

Every exploit-capable action is gated by the engagement scope policy;
targets not explicitly allowed are never touched.`,
	PersistentPreRunE: setup,
	SilenceUsage:      true,
	SilenceErrors:     true,
}

// Execute runs the root command under signal-driven cancellation. SIGINT and
// SIGTERM act as the session kill-switch: queued work stops immediately and
// in-flight exploit steps get the configured grace period.
func Execute(ctx context.Context) error {
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	return rootCmd.ExecuteContext(ctx)
}

// setup loads configuration and installs the structured logger before any
// subcommand runs.
func setup(cmd *cobra.Command, args []string) error {
	loaded, err := config.Load(flagConfig)
	if err != nil {
		return err
	}
	cfg = loaded

	slog.SetDefault(newLogger(cfg.Logging))
	return nil
}

// newLogger builds the process logger from the logging config.
func newLogger(lc config.LoggingConfig) *slog.Logger {
	level := slog.LevelInfo
	switch lc.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if lc.Format == "json" {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	} else {
		handler = slog.NewTextHandler(os.Stderr, opts)
	}
	return slog.New(handler)
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&flagConfig, "config", "c", "", "Path to config file")
	rootCmd.PersistentFlags().BoolVar(&flagJSON, "json", false, "Emit JSON output")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(exportCmd)
	rootCmd.AddCommand(sessionsCmd)
}
