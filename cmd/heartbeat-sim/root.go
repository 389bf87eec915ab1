package main

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"heartbeat-sim/internal/config"
	"heartbeat-sim/internal/logging"
	"heartbeat-sim/internal/monitor"
)

// exitEscalated is the process status after a monitor escalation.
const exitEscalated = 2

var (
	configPath string
	schemaPath string
	logLevel   string
	logFormat  string
)

var rootCmd = &cobra.Command{
	Use:           "heartbeat-sim",
	Short:         "Heartbeat monitor and fault-injecting probe target",
	Long:          "heartbeat-sim runs a TCP heartbeat monitor that escalates after consecutive failures, and a probe target that stalls on purpose.",
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		if errors.Is(err, monitor.ErrEscalated) {
			os.Exit(exitEscalated)
		}
		os.Exit(1)
	}
}

func init() {
	rootCmd.Version = version
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to configuration YAML (defaults when empty)")
	rootCmd.PersistentFlags().StringVar(&schemaPath, "schema", "", "Path to CUE schema file (embedded schema when empty)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level: debug, info, warn, error")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "", "Log format: text or json")

	rootCmd.AddCommand(monitorCmd)
	rootCmd.AddCommand(targetCmd)
	rootCmd.AddCommand(replayCmd)
	rootCmd.AddCommand(dashboardCmd)
}

// loadConfig reads the configuration and applies the logging flags.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(configPath, schemaPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if logLevel != "" {
		cfg.Logging.Level = logLevel
	}
	if logFormat != "" {
		cfg.Logging.Format = logFormat
	}
	return cfg, nil
}

// newLogger builds the process logger on w and installs it as the slog default.
func newLogger(cfg *config.Config, w io.Writer) (*slog.Logger, error) {
	logger, err := logging.NewWithOptions(w, cfg.Logging.Level, cfg.Logging.Format)
	if err != nil {
		return nil, err
	}
	slog.SetDefault(logger)
	return logger, nil
}
