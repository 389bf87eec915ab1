// Writer implementation printing operator lines to STDOUT
package sink

import (
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"heartbeat-sim/internal/heartbeat"
)

// CtimeLayout renders timestamps the way ctime(3) does.
const CtimeLayout = time.ANSIC

// CriticalLine is printed once when the monitor escalates.
const CriticalLine = "CRITICAL FAILURE DETECTED - triggering emergency protocol"

// StdoutWriter prints one plain line per probe cycle and target connection.
type StdoutWriter struct {
	mu  sync.Mutex
	out io.Writer
}

// NewStdoutWriter creates a StdoutWriter writing to os.Stdout.
func NewStdoutWriter() *StdoutWriter {
	return &StdoutWriter{out: os.Stdout}
}

// WriteProbe prints `Success : <time>: <payload>` or `Fail : <time>: Failure #n (<kind>)`.
func (w *StdoutWriter) WriteProbe(row heartbeat.ProbeRow) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	_, err := fmt.Fprintln(w.out, probeLine(row))
	return err
}

// WriteProbes prints multiple probe rows.
func (w *StdoutWriter) WriteProbes(rows []heartbeat.ProbeRow) error {
	for _, r := range rows {
		if err := w.WriteProbe(r); err != nil {
			return err
		}
	}
	return nil
}

// WriteEscalation prints the critical failure line.
func (w *StdoutWriter) WriteEscalation(row heartbeat.EscalationRow) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	_, err := fmt.Fprintln(w.out, CriticalLine)
	return err
}

// WriteConnection prints what the target did with a connection.
func (w *StdoutWriter) WriteConnection(row heartbeat.ConnectionRow) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	_, err := fmt.Fprintln(w.out, connectionLine(row))
	return err
}

func probeLine(row heartbeat.ProbeRow) string {
	ts := row.Timestamp.Local().Format(CtimeLayout)
	if !row.Failed() {
		return fmt.Sprintf("Success : %s: %s", ts, row.Payload)
	}
	return fmt.Sprintf("Fail : %s: Failure #%d (%s)", ts, row.ConsecutiveFailures, row.Outcome)
}

func connectionLine(row heartbeat.ConnectionRow) string {
	ts := row.Timestamp.Local().Format(CtimeLayout)
	if row.Payload != "" {
		return fmt.Sprintf("Target : %s: %s %s -> %q", ts, row.Action, row.Remote, row.Payload)
	}
	return fmt.Sprintf("Target : %s: %s %s", ts, row.Action, row.Remote)
}
