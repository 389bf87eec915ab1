package sink

import (
	"errors"

	"heartbeat-sim/internal/heartbeat"
)

// MultiWriter fans rows out to every writer of the matching family. Every writer
// sees the row even when an earlier one fails; the errors are joined.
type MultiWriter struct {
	probes      []ProbeWriter
	escalations []EscalationWriter
	connections []ConnectionWriter
}

// NewMultiWriter sorts writers into row families by the interfaces they implement.
func NewMultiWriter(writers ...any) *MultiWriter {
	mw := &MultiWriter{}
	for _, w := range writers {
		mw.Add(w)
	}
	return mw
}

// Add registers w for every row family it implements and handles.
func (mw *MultiWriter) Add(w any) {
	handles := func(kind string) bool {
		f, ok := w.(familyFilter)
		return !ok || f.Handles(kind)
	}
	if pw, ok := w.(ProbeWriter); ok && handles(KindProbe) {
		mw.probes = append(mw.probes, pw)
	}
	if ew, ok := w.(EscalationWriter); ok && handles(KindEscalation) {
		mw.escalations = append(mw.escalations, ew)
	}
	if cw, ok := w.(ConnectionWriter); ok && handles(KindConnection) {
		mw.connections = append(mw.connections, cw)
	}
}

// Len reports how many writers are registered per family.
func (mw *MultiWriter) Len() (probes, escalations, connections int) {
	return len(mw.probes), len(mw.escalations), len(mw.connections)
}

// WriteProbe sends a probe row to all probe writers.
func (mw *MultiWriter) WriteProbe(row heartbeat.ProbeRow) error {
	var errs []error
	for _, w := range mw.probes {
		errs = append(errs, w.WriteProbe(row))
	}
	return errors.Join(errs...)
}

// WriteProbes sends multiple probe rows to all writers, using batch if supported.
func (mw *MultiWriter) WriteProbes(rows []heartbeat.ProbeRow) error {
	var errs []error
	for _, w := range mw.probes {
		if bw, ok := w.(batchProbeWriter); ok {
			errs = append(errs, bw.WriteProbes(rows))
			continue
		}
		for _, r := range rows {
			errs = append(errs, w.WriteProbe(r))
		}
	}
	return errors.Join(errs...)
}

// WriteEscalation sends an escalation row to all escalation writers.
func (mw *MultiWriter) WriteEscalation(row heartbeat.EscalationRow) error {
	var errs []error
	for _, w := range mw.escalations {
		errs = append(errs, w.WriteEscalation(row))
	}
	return errors.Join(errs...)
}

// WriteConnection sends a connection row to all connection writers.
func (mw *MultiWriter) WriteConnection(row heartbeat.ConnectionRow) error {
	var errs []error
	for _, w := range mw.connections {
		errs = append(errs, w.WriteConnection(row))
	}
	return errors.Join(errs...)
}

// Close closes every registered writer implementing io.Closer once.
func (mw *MultiWriter) Close() error {
	seen := map[any]bool{}
	var errs []error
	closeOnce := func(w any) {
		c, ok := w.(interface{ Close() error })
		if !ok || seen[w] {
			return
		}
		seen[w] = true
		errs = append(errs, c.Close())
	}
	for _, w := range mw.probes {
		closeOnce(w)
	}
	for _, w := range mw.escalations {
		closeOnce(w)
	}
	for _, w := range mw.connections {
		closeOnce(w)
	}
	return errors.Join(errs...)
}
