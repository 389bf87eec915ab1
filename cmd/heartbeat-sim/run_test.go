package main

import (
	"errors"
	"net"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"heartbeat-sim/internal/config"
	"heartbeat-sim/internal/heartbeat"
	"heartbeat-sim/internal/monitor"
	"heartbeat-sim/internal/sink"
)

func TestRunMonitorEscalatesAgainstMissingTarget(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	addr := ln.Addr().String()
	ln.Close()

	log := filepath.Join(t.TempDir(), "probes.log")
	cfg := config.Default()
	cfg.Monitor.Address = addr
	cfg.Monitor.Interval = 10 * time.Millisecond
	cfg.Monitor.Timeout = 100 * time.Millisecond
	cfg.Sinks.Stdout = stdoutNone
	cfg.Sinks.LogFile = log
	cfg.Logging.Level = "error"

	err = runMonitor(cfg)
	if !errors.Is(err, monitor.ErrEscalated) {
		t.Fatalf("runMonitor = %v, want ErrEscalated", err)
	}

	var rows []string
	w := probeCollector(func(outcome string) { rows = append(rows, outcome) })
	if err := sink.ReplayLogFile(log, w, 1000); err != nil {
		t.Fatalf("replay log: %v", err)
	}
	if len(rows) != 3 {
		t.Fatalf("expected 3 logged cycles, got %v", rows)
	}
}

type probeCollector func(outcome string)

func (f probeCollector) WriteProbe(row heartbeat.ProbeRow) error {
	f(row.Outcome)
	return nil
}

// busyAddr returns an address already bound for the life of the test.
func busyAddr(t *testing.T) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	t.Cleanup(func() { ln.Close() })
	return ln.Addr().String()
}

func TestRunMonitorFailsWhenAdminCannotBind(t *testing.T) {
	// A target that accepts and never answers keeps the monitor busy.
	silent, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer silent.Close()

	cfg := config.Default()
	cfg.Monitor.Address = silent.Addr().String()
	cfg.Monitor.Timeout = 5 * time.Second
	cfg.Admin.Enabled = true
	cfg.Admin.ListenAddress = busyAddr(t)
	cfg.Sinks.Stdout = stdoutNone
	cfg.Logging.Level = "error"

	done := make(chan error, 1)
	go func() { done <- runMonitor(cfg) }()
	select {
	case err := <-done:
		if err == nil || errors.Is(err, monitor.ErrEscalated) || !strings.Contains(err.Error(), "admin server") {
			t.Fatalf("runMonitor = %v, want admin bind error", err)
		}
	case <-time.After(3 * time.Second):
		t.Fatalf("runMonitor kept running without its admin server")
	}
}

func TestRunTargetFailsWhenAdminCannotBind(t *testing.T) {
	cfg := config.Default()
	cfg.Target.ListenAddress = "127.0.0.1:0"
	cfg.Admin.Enabled = true
	cfg.Admin.ListenAddress = busyAddr(t)
	cfg.Sinks.Stdout = stdoutNone
	cfg.Logging.Level = "error"

	done := make(chan error, 1)
	go func() { done <- runTarget(cfg) }()
	select {
	case err := <-done:
		if err == nil || !strings.Contains(err.Error(), "admin server") {
			t.Fatalf("runTarget = %v, want admin bind error", err)
		}
	case <-time.After(3 * time.Second):
		t.Fatalf("runTarget kept running without its admin server")
	}
}
