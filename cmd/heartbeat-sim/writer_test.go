package main

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"heartbeat-sim/internal/config"
	"heartbeat-sim/internal/heartbeat"
	"heartbeat-sim/internal/metrics"
	"heartbeat-sim/internal/sink"
)

func TestNewWritersPlainStdout(t *testing.T) {
	cfg := config.Default()
	cfg.Sinks.Stdout = "plain"
	out, err := newWriters(cfg, roleMonitor, nil, nil)
	if err != nil {
		t.Fatalf("newWriters returned error: %v", err)
	}
	defer out.Close()
	p, e, c := out.Len()
	if p != 1 || e != 1 || c != 1 {
		t.Fatalf("expected the stdout writer in every family, got %d/%d/%d", p, e, c)
	}
	if out.logOutput() != os.Stderr {
		t.Fatalf("logs should go to stderr without the TUI")
	}
}

func TestNewWritersNone(t *testing.T) {
	cfg := config.Default()
	cfg.Sinks.Stdout = stdoutNone
	out, err := newWriters(cfg, roleMonitor, nil, nil)
	if err != nil {
		t.Fatalf("newWriters returned error: %v", err)
	}
	defer out.Close()
	if p, e, c := out.Len(); p+e+c != 0 {
		t.Fatalf("expected no writers, got %d/%d/%d", p, e, c)
	}
}

func TestNewWritersBadStdout(t *testing.T) {
	cfg := config.Default()
	cfg.Sinks.Stdout = "xml"
	if _, err := newWriters(cfg, roleMonitor, nil, nil); err == nil {
		t.Fatalf("expected error for unknown stdout format")
	}
}

func TestNewWritersMetrics(t *testing.T) {
	cfg := config.Default()
	cfg.Sinks.Stdout = stdoutNone
	out, err := newWriters(cfg, roleTarget, nil, metrics.New())
	if err != nil {
		t.Fatalf("newWriters returned error: %v", err)
	}
	defer out.Close()
	if p, e, c := out.Len(); p != 1 || e != 1 || c != 1 {
		t.Fatalf("metrics should receive every family, got %d/%d/%d", p, e, c)
	}
}

func TestNewWritersMonitorLogFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "probes.log")
	cfg := config.Default()
	cfg.Sinks.Stdout = stdoutNone
	cfg.Sinks.LogFile = path
	out, err := newWriters(cfg, roleMonitor, nil, nil)
	if err != nil {
		t.Fatalf("newWriters returned error: %v", err)
	}
	if err := out.WriteProbe(heartbeat.ProbeRow{Cycle: 1, Outcome: heartbeat.OutcomeTimeout, Timestamp: time.Now()}); err != nil {
		t.Fatalf("write probe: %v", err)
	}
	if err := out.WriteEscalation(heartbeat.EscalationRow{Cycle: 3, Timestamp: time.Now()}); err != nil {
		t.Fatalf("write escalation: %v", err)
	}
	if err := out.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	for _, p := range []string{path, path + ".escalations"} {
		info, err := os.Stat(p)
		if err != nil {
			t.Fatalf("stat %s: %v", p, err)
		}
		if info.Size() == 0 {
			t.Fatalf("expected %s to be non-empty", p)
		}
	}
}

func TestNewWritersTargetLogFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "connections.log")
	cfg := config.Default()
	cfg.Sinks.Stdout = stdoutNone
	cfg.Sinks.LogFile = path
	out, err := newWriters(cfg, roleTarget, nil, nil)
	if err != nil {
		t.Fatalf("newWriters returned error: %v", err)
	}
	defer out.Close()
	if p, _, c := out.Len(); p != 0 || c != 1 {
		t.Fatalf("target log file should only take connection rows, got probes=%d connections=%d", p, c)
	}
	if _, err := os.Stat(path + ".escalations"); !os.IsNotExist(err) {
		t.Fatalf("target must not create an escalation log")
	}
}

func TestNewWritersReplaySkipsLogFile(t *testing.T) {
	cfg := config.Default()
	cfg.Sinks.Stdout = stdoutNone
	cfg.Sinks.LogFile = filepath.Join(t.TempDir(), "probes.log")
	out, err := newWriters(cfg, roleReplay, nil, nil)
	if err != nil {
		t.Fatalf("newWriters returned error: %v", err)
	}
	defer out.Close()
	if p, _, _ := out.Len(); p != 0 {
		t.Fatalf("replay must not append to the log it reads, got %d probe writers", p)
	}
}

func TestNewWritersBadLogFile(t *testing.T) {
	cfg := config.Default()
	cfg.Sinks.Stdout = stdoutNone
	cfg.Sinks.LogFile = filepath.Join(t.TempDir(), "missing", "probes.log")
	if _, err := newWriters(cfg, roleMonitor, nil, nil); err == nil {
		t.Fatalf("expected error for unwritable log file")
	}
}

func TestNewWritersTUIReplacesStdout(t *testing.T) {
	var got *sink.Overview
	newTUI = func(o *sink.Overview) *sink.TUIWriter {
		got = o
		return &sink.TUIWriter{}
	}
	t.Cleanup(func() { newTUI = sink.NewTUIWriter })

	cfg := config.Default()
	cfg.Sinks.TUI = true
	ov := monitorOverview(cfg)
	out, err := newWriters(cfg, roleMonitor, ov, nil)
	if err != nil {
		t.Fatalf("newWriters returned error: %v", err)
	}
	if out.tui == nil || got != ov {
		t.Fatalf("expected the TUI to be started with the overview")
	}
	if p, _, _ := out.Len(); p != 1 {
		t.Fatalf("expected only the TUI writer, got %d", p)
	}
	if out.logOutput() != out.tui {
		t.Fatalf("logs should be routed into the TUI")
	}
}

func TestOverviews(t *testing.T) {
	cfg := config.Default()
	mo := monitorOverview(cfg)
	if mo.Role != roleMonitor || mo.Items[0][1] != "localhost:9999" || mo.Items[3][1] != "3" {
		t.Fatalf("unexpected monitor overview %+v", mo)
	}
	to := targetOverview(cfg)
	if last := to.Items[len(to.Items)-1]; last[0] != "Failure chance" || last[1] != "0.20" {
		t.Fatalf("unexpected target overview %+v", to)
	}
	cfg.Target.Scenario = "hang"
	to = targetOverview(cfg)
	if last := to.Items[len(to.Items)-1]; last[0] != "Scenario" || last[1] != "hang" {
		t.Fatalf("expected scenario in overview, got %+v", to)
	}
}
