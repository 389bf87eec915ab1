package sink

import (
	"encoding/json"
	"errors"
	"os"
	"sync"

	"heartbeat-sim/internal/heartbeat"
)

// FileWriter appends probe, escalation and connection rows to JSONL files.
type FileWriter struct {
	mu       sync.Mutex
	files    []*os.File
	probeEnc *json.Encoder
	escEnc   *json.Encoder
	connEnc  *json.Encoder
}

// NewFileWriter creates a FileWriter. Any path may be empty to skip that row family.
func NewFileWriter(probePath, escalationPath, connectionPath string) (*FileWriter, error) {
	fw := &FileWriter{}
	var err error
	if fw.probeEnc, err = fw.open(probePath); err != nil {
		fw.Close()
		return nil, err
	}
	if fw.escEnc, err = fw.open(escalationPath); err != nil {
		fw.Close()
		return nil, err
	}
	if fw.connEnc, err = fw.open(connectionPath); err != nil {
		fw.Close()
		return nil, err
	}
	return fw, nil
}

func (f *FileWriter) open(path string) (*json.Encoder, error) {
	if path == "" {
		return nil, nil
	}
	fh, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, err
	}
	f.files = append(f.files, fh)
	return json.NewEncoder(fh), nil
}

// Handles reports whether a file was opened for the row family kind.
func (f *FileWriter) Handles(kind string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	switch kind {
	case KindProbe:
		return f.probeEnc != nil
	case KindEscalation:
		return f.escEnc != nil
	case KindConnection:
		return f.connEnc != nil
	}
	return false
}

// WriteProbe logs a single probe row, if enabled.
func (f *FileWriter) WriteProbe(row heartbeat.ProbeRow) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.probeEnc == nil {
		return nil
	}
	return f.probeEnc.Encode(row)
}

// WriteProbes logs multiple probe rows.
func (f *FileWriter) WriteProbes(rows []heartbeat.ProbeRow) error {
	for _, r := range rows {
		if err := f.WriteProbe(r); err != nil {
			return err
		}
	}
	return nil
}

// WriteEscalation logs an escalation row, if enabled.
func (f *FileWriter) WriteEscalation(row heartbeat.EscalationRow) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.escEnc == nil {
		return nil
	}
	return f.escEnc.Encode(row)
}

// WriteConnection logs a target connection row, if enabled.
func (f *FileWriter) WriteConnection(row heartbeat.ConnectionRow) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.connEnc == nil {
		return nil
	}
	return f.connEnc.Encode(row)
}

// Close closes any underlying files.
func (f *FileWriter) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	var errs []error
	for _, fh := range f.files {
		errs = append(errs, fh.Close())
	}
	f.files = nil
	return errors.Join(errs...)
}
