package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"heartbeat-sim/internal/sink"
)

var (
	replayInput  string
	replaySpeed  float64
	replayStdout string
)

var replayCmd = &cobra.Command{
	Use:   "replay",
	Short: "Replay a probe log file",
	Long:  "replay feeds probe rows from a JSONL log back through the configured sinks, re-deriving escalations.",
	RunE: func(cmd *cobra.Command, args []string) error {
		if replayInput == "" {
			return fmt.Errorf("input file required")
		}
		if replaySpeed <= 0 {
			return fmt.Errorf("speed must be positive, got %v", replaySpeed)
		}
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		if cmd.Flags().Changed("stdout") {
			cfg.Sinks.Stdout = replayStdout
		}
		out, err := newWriters(cfg, roleReplay, nil, nil)
		if err != nil {
			return err
		}
		defer out.Close()
		if _, err := newLogger(cfg, out.logOutput()); err != nil {
			return err
		}
		return sink.ReplayLogFile(replayInput, out, replaySpeed)
	},
}

func init() {
	replayCmd.Flags().StringVar(&replayInput, "input", "", "Path to probe log file")
	replayCmd.Flags().Float64Var(&replaySpeed, "speed", 1.0, "Playback speed multiplier")
	replayCmd.Flags().StringVar(&replayStdout, "stdout", "", "Stdout format: auto, plain, color, json, none")
	replayCmd.MarkFlagRequired("input")
}
