// ColorStdoutWriter prints human-friendly, colorized heartbeat lines to STDOUT.
package sink

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"text/tabwriter"
	"time"

	"heartbeat-sim/internal/heartbeat"
)

const (
	colorReset   = "\x1b[0m"
	colorRed     = "\x1b[31m"
	colorGreen   = "\x1b[32m"
	colorYellow  = "\x1b[33m"
	colorBlue    = "\x1b[34m"
	colorMagenta = "\x1b[35m"
	colorCyan    = "\x1b[36m"
	colorGray    = "\x1b[90m"
	colorBoldRed = "\x1b[1;31m"
)

// Overview is printed once above the first colorized line.
type Overview struct {
	Role  string
	Items [][2]string
}

// ColorStdoutWriter prints heartbeat rows using ANSI colors.
type ColorStdoutWriter struct {
	mu       sync.Mutex
	overview *Overview
	out      io.Writer
	once     sync.Once
}

// NewColorStdoutWriter creates a ColorStdoutWriter writing to os.Stdout. overview may be nil.
func NewColorStdoutWriter(overview *Overview) *ColorStdoutWriter {
	return &ColorStdoutWriter{overview: overview, out: os.Stdout}
}

func (w *ColorStdoutWriter) printOverview() {
	if w.overview == nil {
		return
	}
	fmt.Fprintf(w.out, "%s configuration:\n", w.overview.Role)
	tw := tabwriter.NewWriter(w.out, 0, 0, 2, ' ', 0)
	for _, it := range w.overview.Items {
		fmt.Fprintf(tw, "%s:\t%s\n", it[0], it[1])
	}
	tw.Flush()
	fmt.Fprintln(w.out)
}

// outcomeColor maps a probe outcome to its palette entry.
func outcomeColor(outcome string) string {
	switch outcome {
	case heartbeat.OutcomeSuccess:
		return colorGreen
	case heartbeat.OutcomeTimeout:
		return colorYellow
	case heartbeat.OutcomeUnexpected:
		return colorMagenta
	default:
		return colorRed
	}
}

// actionColor maps a target action to its palette entry.
func actionColor(action string) string {
	switch action {
	case "reply":
		return colorGreen
	case "stall", "trickle":
		return colorYellow
	default:
		return colorGray
	}
}

// failureGauge renders n of max as a bar, e.g. [##-].
func failureGauge(n, max int) string {
	if max <= 0 {
		return ""
	}
	if n > max {
		n = max
	}
	b := make([]byte, 0, max+2)
	b = append(b, '[')
	for i := 0; i < max; i++ {
		if i < n {
			b = append(b, '#')
		} else {
			b = append(b, '-')
		}
	}
	return string(append(b, ']'))
}

func colorProbeLine(row heartbeat.ProbeRow) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s[%s]%s ", colorGray, row.Timestamp.Format(time.RFC3339), colorReset)
	fmt.Fprintf(&b, "%scycle=%d%s ", colorBlue, row.Cycle, colorReset)
	fmt.Fprintf(&b, "%s%s%s ", outcomeColor(row.Outcome), row.Outcome, colorReset)
	gaugeColor := colorGreen
	if row.ConsecutiveFailures > 0 {
		gaugeColor = colorYellow
	}
	if row.ConsecutiveFailures >= row.MaxFailures {
		gaugeColor = colorRed
	}
	fmt.Fprintf(&b, "%s%s %d/%d%s ", gaugeColor, failureGauge(row.ConsecutiveFailures, row.MaxFailures), row.ConsecutiveFailures, row.MaxFailures, colorReset)
	fmt.Fprintf(&b, "%slatency=%.1fms%s", colorCyan, row.LatencyMS, colorReset)
	if row.Payload != "" {
		fmt.Fprintf(&b, " %spayload=%q%s", colorGray, row.Payload, colorReset)
	}
	if row.Error != "" {
		fmt.Fprintf(&b, " %serr=%s%s", colorRed, row.Error, colorReset)
	}
	return b.String()
}

func colorEscalationLine(row heartbeat.EscalationRow) string {
	return fmt.Sprintf("%s[%s]%s %s%s%s cycle=%d failures=%d/%d last=%s",
		colorGray, row.Timestamp.Format(time.RFC3339), colorReset,
		colorBoldRed, CriticalLine, colorReset,
		row.Cycle, row.ConsecutiveFailures, row.MaxFailures, row.LastOutcome)
}

func colorConnectionLine(row heartbeat.ConnectionRow) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s[%s]%s %s%s%s %sremote=%s%s probe=%q",
		colorGray, row.Timestamp.Format(time.RFC3339), colorReset,
		actionColor(row.Action), row.Action, colorReset,
		colorBlue, row.Remote, colorReset, row.Probe)
	if row.Payload != "" {
		fmt.Fprintf(&b, " payload=%q", row.Payload)
	}
	if row.Chaos {
		fmt.Fprintf(&b, " %schaos%s", colorMagenta, colorReset)
	}
	return b.String()
}

func (w *ColorStdoutWriter) println(line string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.once.Do(w.printOverview)
	_, err := fmt.Fprintln(w.out, line)
	return err
}

// WriteProbe outputs a single probe row in colorized format.
func (w *ColorStdoutWriter) WriteProbe(row heartbeat.ProbeRow) error {
	return w.println(colorProbeLine(row))
}

// WriteProbes outputs multiple probe rows.
func (w *ColorStdoutWriter) WriteProbes(rows []heartbeat.ProbeRow) error {
	for _, r := range rows {
		_ = w.WriteProbe(r)
	}
	return nil
}

// WriteEscalation prints the critical failure banner.
func (w *ColorStdoutWriter) WriteEscalation(row heartbeat.EscalationRow) error {
	return w.println(colorEscalationLine(row))
}

// WriteConnection prints a target connection event.
func (w *ColorStdoutWriter) WriteConnection(row heartbeat.ConnectionRow) error {
	return w.println(colorConnectionLine(row))
}
