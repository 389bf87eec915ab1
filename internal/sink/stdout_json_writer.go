package sink

import (
	"encoding/json"
	"io"
	"os"
	"sync"

	"heartbeat-sim/internal/heartbeat"
)

// JSONStdoutWriter prints every row as one JSON object per line to STDOUT.
type JSONStdoutWriter struct {
	mu  sync.Mutex
	enc *json.Encoder
}

// NewJSONStdoutWriter creates a JSONStdoutWriter writing to os.Stdout.
func NewJSONStdoutWriter() *JSONStdoutWriter {
	return newJSONWriter(os.Stdout)
}

func newJSONWriter(out io.Writer) *JSONStdoutWriter {
	return &JSONStdoutWriter{enc: json.NewEncoder(out)}
}

// Event is the envelope of a JSON line: a kind tag plus the row.
type Event struct {
	Kind string `json:"kind"`
	Row  any    `json:"row"`
}

// Event kinds.
const (
	KindProbe      = "probe"
	KindEscalation = "escalation"
	KindConnection = "connection"
)

func (w *JSONStdoutWriter) encode(kind string, row any) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.enc.Encode(Event{Kind: kind, Row: row})
}

// WriteProbe outputs a probe row in JSON format.
func (w *JSONStdoutWriter) WriteProbe(row heartbeat.ProbeRow) error {
	return w.encode(KindProbe, row)
}

// WriteEscalation outputs an escalation row in JSON format.
func (w *JSONStdoutWriter) WriteEscalation(row heartbeat.EscalationRow) error {
	return w.encode(KindEscalation, row)
}

// WriteConnection outputs a connection row in JSON format.
func (w *JSONStdoutWriter) WriteConnection(row heartbeat.ConnectionRow) error {
	return w.encode(KindConnection, row)
}
