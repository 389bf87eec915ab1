package sink

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"heartbeat-sim/internal/heartbeat"
)

// ReplayLog reads JSONL probe rows from r and writes them to w. Rows are paced by
// the gap between their timestamps divided by speed; speed <= 0 replays at once.
func ReplayLog(r io.Reader, w ProbeWriter, speed float64) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	var prev time.Time
	line := 0
	for scanner.Scan() {
		line++
		if len(scanner.Bytes()) == 0 {
			continue
		}
		var row heartbeat.ProbeRow
		if err := json.Unmarshal(scanner.Bytes(), &row); err != nil {
			return fmt.Errorf("line %d: %w", line, err)
		}
		if speed > 0 && !prev.IsZero() {
			if gap := row.Timestamp.Sub(prev); gap > 0 {
				time.Sleep(time.Duration(float64(gap) / speed))
			}
		}
		prev = row.Timestamp
		if err := w.WriteProbe(row); err != nil {
			return err
		}
	}
	return scanner.Err()
}

// ReplayLogFile opens path and replays it. Escalation writers also receive an
// EscalationRow when a replayed row reaches its failure threshold.
func ReplayLogFile(path string, w ProbeWriter, speed float64) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open replay log: %w", err)
	}
	defer f.Close()
	if ew, ok := w.(EscalationWriter); ok {
		return ReplayLog(f, &escalatingWriter{ProbeWriter: w, esc: ew}, speed)
	}
	return ReplayLog(f, w, speed)
}

// escalatingWriter derives the escalation signal from replayed probe rows.
type escalatingWriter struct {
	ProbeWriter
	esc  EscalationWriter
	done map[string]bool
}

func (e *escalatingWriter) WriteProbe(row heartbeat.ProbeRow) error {
	if err := e.ProbeWriter.WriteProbe(row); err != nil {
		return err
	}
	if row.MaxFailures < 1 || row.ConsecutiveFailures != row.MaxFailures {
		return nil
	}
	if e.done == nil {
		e.done = map[string]bool{}
	}
	if e.done[row.SessionID] {
		return nil
	}
	e.done[row.SessionID] = true
	return e.esc.WriteEscalation(heartbeat.EscalationRow{
		SessionID:           row.SessionID,
		Cycle:               row.Cycle,
		Target:              row.Target,
		ConsecutiveFailures: row.ConsecutiveFailures,
		MaxFailures:         row.MaxFailures,
		LastOutcome:         row.Outcome,
		Reason:              heartbeat.EscalationReason,
		Timestamp:           row.Timestamp,
	})
}
