package sink

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"heartbeat-sim/internal/heartbeat"
)

func encodeRows(t *testing.T, rows []heartbeat.ProbeRow) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	for _, r := range rows {
		if err := enc.Encode(r); err != nil {
			t.Fatalf("encode: %v", err)
		}
	}
	return &buf
}

func TestReplayLog(t *testing.T) {
	rows := []heartbeat.ProbeRow{
		{SessionID: "s1", Cycle: 1, Outcome: heartbeat.OutcomeSuccess, Timestamp: time.Unix(0, 0)},
		{SessionID: "s1", Cycle: 2, Outcome: heartbeat.OutcomeTimeout, Timestamp: time.Unix(3, 0)},
	}
	rw := &recordWriter{}
	if err := ReplayLog(encodeRows(t, rows), rw, 0); err != nil {
		t.Fatalf("ReplayLog: %v", err)
	}
	if len(rw.probes) != len(rows) {
		t.Fatalf("expected %d rows, got %d", len(rows), len(rw.probes))
	}
	for i, r := range rows {
		if rw.probes[i].Cycle != r.Cycle || rw.probes[i].Outcome != r.Outcome {
			t.Fatalf("row %d mismatch: %+v vs %+v", i, rw.probes[i], r)
		}
	}
}

func TestReplayLogPacing(t *testing.T) {
	rows := []heartbeat.ProbeRow{
		{Cycle: 1, Timestamp: time.Unix(0, 0)},
		{Cycle: 2, Timestamp: time.Unix(1, 0)},
	}
	start := time.Now()
	if err := ReplayLog(encodeRows(t, rows), &recordWriter{}, 20); err != nil {
		t.Fatalf("ReplayLog: %v", err)
	}
	if d := time.Since(start); d < 40*time.Millisecond {
		t.Fatalf("replay at 20x finished in %v, want about 50ms", d)
	}
}

func TestReplayLogBadLine(t *testing.T) {
	err := ReplayLog(strings.NewReader("{\"cycle\":1}\nnot json\n"), &recordWriter{}, 0)
	if err == nil || !strings.Contains(err.Error(), "line 2") {
		t.Fatalf("expected line 2 error, got %v", err)
	}
}

func TestReplayLogFileEscalates(t *testing.T) {
	rows := []heartbeat.ProbeRow{
		{SessionID: "s1", Cycle: 1, Outcome: heartbeat.OutcomeTimeout, ConsecutiveFailures: 1, MaxFailures: 2},
		{SessionID: "s1", Cycle: 2, Outcome: heartbeat.OutcomeTimeout, ConsecutiveFailures: 2, MaxFailures: 2},
	}
	path := filepath.Join(t.TempDir(), "probes.jsonl")
	if err := os.WriteFile(path, encodeRows(t, rows).Bytes(), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	rw := &recordWriter{}
	if err := ReplayLogFile(path, rw, 0); err != nil {
		t.Fatalf("ReplayLogFile: %v", err)
	}
	if len(rw.probes) != 2 || len(rw.escalations) != 1 {
		t.Fatalf("got %d probes, %d escalations", len(rw.probes), len(rw.escalations))
	}
	if rw.escalations[0].Cycle != 2 || rw.escalations[0].LastOutcome != heartbeat.OutcomeTimeout {
		t.Fatalf("unexpected escalation %+v", rw.escalations[0])
	}
	if err := ReplayLogFile(filepath.Join(t.TempDir(), "missing"), rw, 0); err == nil {
		t.Fatalf("expected error for missing file")
	}
}
