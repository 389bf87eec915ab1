package main

import (
	"context"
	"errors"
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
	"heartbeat-sim/internal/monitor"
)

var (
	monAddress     string
	monInterval    time.Duration
	monTimeout     time.Duration
	monMaxFailures int
	monAdmin       string
	monStdout      string
	monTUI         bool
	monLogFile     string
)

var monitorCmd = &cobra.Command{
	Use:   "monitor",
	Short: "Probe a target until it fails too many times in a row",
	Long: "monitor sends a heartbeat to the target every interval and escalates after max-failures\n" +
		"consecutive failed probes. The process then exits with status 2.",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		applyMonitorFlags(cmd, cfg)
		if err := cfg.Validate(); err != nil {
			return err
		}
		return runMonitor(cfg)
	},
}

func init() {
	f := monitorCmd.Flags()
	f.StringVar(&monAddress, "address", "", "Target host:port")
	f.DurationVar(&monInterval, "interval", 0, "Delay between probe cycles")
	f.DurationVar(&monTimeout, "timeout", 0, "Hard deadline for one probe exchange")
	f.IntVar(&monMaxFailures, "max-failures", 0, "Consecutive failures that trigger escalation")
	f.StringVar(&monAdmin, "admin", "", "Serve the admin API on this address")
	f.StringVar(&monStdout, "stdout", "", "Stdout format: auto, plain, color, json, none")
	f.BoolVar(&monTUI, "tui", false, "Show the interactive dashboard")
	f.StringVar(&monLogFile, "log-file", "", "Export probe rows as JSONL to this path")
}

// applyMonitorFlags overrides file values with flags given on the command line.
func applyMonitorFlags(cmd *cobra.Command, cfg *config.Config) {
	f := cmd.Flags()
	if f.Changed("address") {
		cfg.Monitor.Address = monAddress
	}
	if f.Changed("interval") {
		cfg.Monitor.Interval = monInterval
	}
	if f.Changed("timeout") {
		cfg.Monitor.Timeout = monTimeout
	}
	if f.Changed("max-failures") {
		cfg.Monitor.MaxFailures = monMaxFailures
	}
	applySinkFlags(cmd, cfg, monAdmin, monStdout, monTUI, monLogFile)
}

func applySinkFlags(cmd *cobra.Command, cfg *config.Config, adminAddr, stdout string, tui bool, logFile string) {
	f := cmd.Flags()
	if f.Changed("admin") {
		cfg.Admin.Enabled = true
		cfg.Admin.ListenAddress = adminAddr
	}
	if f.Changed("stdout") {
		cfg.Sinks.Stdout = stdout
	}
	if f.Changed("tui") {
		cfg.Sinks.TUI = tui
	}
	if f.Changed("log-file") {
		cfg.Sinks.LogFile = logFile
	}
}

func runMonitor(cfg *config.Config) error {
	var m *metrics.Metrics
	if cfg.Sinks.Metrics {
		m = metrics.New()
		m.SetBuildInfo(version, roleMonitor)
	}
	out, err := newWriters(cfg, roleMonitor, monitorOverview(cfg), m)
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

	mon := monitor.New(monitor.Config{
		Address:     cfg.Monitor.Address,
		Interval:    cfg.Monitor.Interval,
		Timeout:     cfg.Monitor.Timeout,
		MaxFailures: cfg.Monitor.MaxFailures,
	}, out, out)

	adminCtx, stopAdmin := context.WithCancel(ctx)
	defer stopAdmin()
	adminErr := noAdmin()
	if cfg.Admin.Enabled {
		srv := admin.NewServer(mon, nil, m)
		srv.SetLogger(logger)
		out.Add(srv.Hub())
		if out.tui != nil {
			out.tui.SetAdminStatus(true)
		}
		adminErr = serveAdmin(adminCtx, srv, cfg.Admin.ListenAddress, stop)
	}

	esc, err := mon.Run(ctx)
	stopAdmin()
	if aerr := <-adminErr; aerr != nil {
		return aerr
	}
	if err != nil {
		if errors.Is(err, context.Canceled) {
			logger.Info("heartbeat monitor stopped", "cycles", mon.Cycles())
			return nil
		}
		return err
	}
	return fmt.Errorf("%w: %d consecutive failures against %s, last %s",
		monitor.ErrEscalated, esc.ConsecutiveFailures, esc.Target, esc.LastOutcome)
}

// serveAdmin runs srv until ctx is done. A failing admin server stops the process
// and its error is delivered on the returned channel.
func serveAdmin(ctx context.Context, srv *admin.Server, addr string, stop context.CancelFunc) <-chan error {
	errc := make(chan error, 1)
	go func() {
		err := srv.Start(ctx, addr)
		if err != nil {
			err = fmt.Errorf("admin server on %s: %w", addr, err)
			logging.FromContext(ctx).Error("admin server failed", "addr", addr, "err", err)
			stop()
		}
		errc <- err
	}()
	return errc
}

// noAdmin stands in for serveAdmin when the admin API is disabled.
func noAdmin() <-chan error {
	errc := make(chan error, 1)
	errc <- nil
	return errc
}
