package main

import (
	"fmt"
	"io"
	"os"

	"heartbeat-sim/internal/config"
	"heartbeat-sim/internal/metrics"
	"heartbeat-sim/internal/sink"
)

// Roles select which row families a process produces.
const (
	roleMonitor = "monitor"
	roleTarget  = "target"
	roleReplay  = "replay"
)

// stdoutNone disables the stdout sink.
const stdoutNone = "none"

// sinks is the fan-out built for one process.
type sinks struct {
	*sink.MultiWriter
	tui *sink.TUIWriter
}

// logOutput is where slog writes: the TUI log pane when it owns the terminal.
func (s *sinks) logOutput() io.Writer {
	if s.tui != nil {
		return s.tui
	}
	return os.Stderr
}

// newTUI is replaced in tests.
var newTUI = sink.NewTUIWriter

// newWriters sets up the writers configured in cfg.Sinks for role. m may be nil.
// Close on the result releases every writer.
func newWriters(cfg *config.Config, role string, overview *sink.Overview, m *metrics.Metrics) (*sinks, error) {
	s := &sinks{MultiWriter: sink.NewMultiWriter()}
	fail := func(err error) (*sinks, error) {
		_ = s.Close()
		return nil, err
	}

	sc := cfg.Sinks
	switch {
	case sc.TUI && role != roleReplay:
		s.tui = newTUI(overview)
		s.Add(s.tui)
	case sc.Stdout != stdoutNone:
		w, err := sink.NewStdoutSink(sc.Stdout, overview)
		if err != nil {
			return fail(err)
		}
		s.Add(w)
	}

	if sc.LogFile != "" && role != roleReplay {
		var probes, escalations, connections string
		if role == roleTarget {
			connections = sc.LogFile
		} else {
			probes = sc.LogFile
			escalations = sc.LogFile + ".escalations"
		}
		fw, err := sink.NewFileWriter(probes, escalations, connections)
		if err != nil {
			return fail(fmt.Errorf("log file: %w", err))
		}
		s.Add(fw)
	}

	if sc.Greptime.Endpoint != "" {
		gw, err := sink.NewGreptimeDBWriter(sc.Greptime.Endpoint, sc.Greptime.Database)
		if err != nil {
			return fail(fmt.Errorf("greptimedb: %w", err))
		}
		s.Add(gw)
	}

	if len(sc.Etcd.Endpoints) > 0 && role != roleReplay {
		ew, err := sink.NewEtcdWriter(sc.Etcd.Endpoints, sc.Etcd.Prefix, sc.Etcd.LeaseTTL)
		if err != nil {
			return fail(fmt.Errorf("etcd: %w", err))
		}
		s.Add(ew)
	}

	if m != nil {
		s.Add(m)
	}
	return s, nil
}

func monitorOverview(cfg *config.Config) *sink.Overview {
	mc := cfg.Monitor
	return &sink.Overview{
		Role: roleMonitor,
		Items: [][2]string{
			{"Target", mc.Address},
			{"Interval", mc.Interval.String()},
			{"Timeout", mc.Timeout.String()},
			{"Max failures", fmt.Sprint(mc.MaxFailures)},
		},
	}
}

func targetOverview(cfg *config.Config) *sink.Overview {
	tc := cfg.Target
	items := [][2]string{
		{"Listen", tc.ListenAddress},
		{"Stall", tc.StallDuration.String()},
		{"Status", tc.Status},
	}
	if tc.Scenario != "" {
		items = append(items, [2]string{"Scenario", tc.Scenario})
	} else {
		items = append(items,
			[2]string{"Crash ratio", fmt.Sprintf("%.2f", tc.CrashRatio)},
			[2]string{"Failure chance", fmt.Sprintf("%.2f", tc.FailureChance)})
	}
	return &sink.Overview{Role: roleTarget, Items: items}
}
