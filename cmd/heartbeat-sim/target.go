package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"heartbeat-sim/internal/admin"
	"heartbeat-sim/internal/config"
	"heartbeat-sim/internal/logging"
	"heartbeat-sim/internal/metrics"
	"heartbeat-sim/internal/scenario"
	"heartbeat-sim/internal/sink"
	"heartbeat-sim/internal/target"
)

var (
	tgtListen   string
	tgtChance   float64
	tgtCrash    float64
	tgtStall    time.Duration
	tgtStatus   string
	tgtSeed     int64
	tgtScenario string
	tgtAdmin    string
	tgtStdout   string
	tgtTUI      bool
	tgtLogFile  string
)

var targetCmd = &cobra.Command{
	Use:   "target",
	Short: "Run the fault-injecting probe target",
	Long: "target answers heartbeat probes with ALIVE and, with probability failure-chance, stalls\n" +
		"instead so monitors see timeouts. A scenario replaces the random draw with a fixed script.",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		applyTargetFlags(cmd, cfg)
		if err := cfg.Validate(); err != nil {
			return err
		}
		return runTarget(cfg)
	},
}

func init() {
	f := targetCmd.Flags()
	f.StringVar(&tgtListen, "listen", "", "Listen address")
	f.Float64Var(&tgtChance, "failure-chance", 0, "Probability in [0,1] of stalling a connection")
	f.Float64Var(&tgtCrash, "crash-ratio", 0, "Share in [0,1] of faults that close at once instead of stalling")
	f.DurationVar(&tgtStall, "stall", 0, "How long a stalled connection is held open")
	f.StringVar(&tgtStatus, "status", "", "Status appended to ALIVE replies")
	f.Int64Var(&tgtSeed, "seed", 0, "Seed for the fault draw (0 picks one from the clock)")
	f.StringVar(&tgtScenario, "scenario", "", "Built-in scenario name or path to a scenario YAML")
	f.StringVar(&tgtAdmin, "admin", "", "Serve the admin API on this address")
	f.StringVar(&tgtStdout, "stdout", "", "Stdout format: auto, plain, color, json, none")
	f.BoolVar(&tgtTUI, "tui", false, "Show the interactive dashboard")
	f.StringVar(&tgtLogFile, "log-file", "", "Export connection rows as JSONL to this path")
}

func applyTargetFlags(cmd *cobra.Command, cfg *config.Config) {
	f := cmd.Flags()
	if f.Changed("listen") {
		cfg.Target.ListenAddress = tgtListen
	}
	if f.Changed("failure-chance") {
		cfg.Target.FailureChance = tgtChance
	}
	if f.Changed("crash-ratio") {
		cfg.Target.CrashRatio = tgtCrash
	}
	if f.Changed("stall") {
		cfg.Target.StallDuration = tgtStall
	}
	if f.Changed("status") {
		cfg.Target.Status = tgtStatus
	}
	if f.Changed("seed") {
		cfg.Target.Seed = tgtSeed
	}
	if f.Changed("scenario") {
		cfg.Target.Scenario = tgtScenario
	}
	applySinkFlags(cmd, cfg, tgtAdmin, tgtStdout, tgtTUI, tgtLogFile)
}

// newPolicy returns the scripted policy when a scenario is configured and the
// random fault policy otherwise.
func newPolicy(tc config.TargetConfig) (target.Policy, error) {
	if tc.Scenario != "" {
		s, err := scenario.Lookup(tc.Scenario)
		if err != nil {
			return nil, fmt.Errorf("scenario %q: %w", tc.Scenario, err)
		}
		return s.Policy(tc.Status), nil
	}
	p, err := target.NewRandomPolicy(tc.FailureChance, tc.Status, tc.Seed)
	if err != nil {
		return nil, err
	}
	if err := p.SetCrashRatio(tc.CrashRatio); err != nil {
		return nil, err
	}
	return p, nil
}

func runTarget(cfg *config.Config) error {
	policy, err := newPolicy(cfg.Target)
	if err != nil {
		return err
	}
	var faults target.FaultControl
	if fc, ok := policy.(target.FaultControl); ok {
		faults = fc
	}

	var m *metrics.Metrics
	if cfg.Sinks.Metrics {
		m = metrics.New()
		m.SetBuildInfo(version, roleTarget)
	}
	out, err := newWriters(cfg, roleTarget, targetOverview(cfg), m)
	if err != nil {
		return err
	}
	defer out.Close()

	logger, err := newLogger(cfg, out.logOutput())
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = logging.NewContext(ctx, logger)

	if out.tui != nil && faults != nil {
		out.tui.SetControls(sink.Controls{
			ToggleChaos:      faults.ToggleChaos,
			SetFailureChance: faults.SetFailureChance,
		})
	}

	srv, err := target.NewServer(target.Config{
		ListenAddress: cfg.Target.ListenAddress,
		FailureChance: cfg.Target.FailureChance,
		CrashRatio:    cfg.Target.CrashRatio,
		StallDuration: cfg.Target.StallDuration,
		ReadTimeout:   cfg.Target.ReadTimeout,
		Status:        cfg.Target.Status,
		Seed:          cfg.Target.Seed,
	}, policy, out)
	if err != nil {
		return err
	}

	adminCtx, stopAdmin := context.WithCancel(ctx)
	defer stopAdmin()
	adminErr := noAdmin()
	if cfg.Admin.Enabled {
		adm := admin.NewServer(nil, faults, m)
		adm.SetLogger(logger)
		out.Add(adm.Hub())
		if out.tui != nil {
			out.tui.SetAdminStatus(true)
		}
		adminErr = serveAdmin(adminCtx, adm, cfg.Admin.ListenAddress, stop)
	}

	err = srv.ListenAndServe(ctx)
	stopAdmin()
	if aerr := <-adminErr; aerr != nil {
		return aerr
	}
	return err
}
