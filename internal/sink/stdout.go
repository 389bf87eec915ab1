package sink

import (
	"fmt"
	"os"

	"golang.org/x/term"
)

// Stdout formats accepted by NewStdoutSink.
const (
	FormatAuto  = "auto"
	FormatPlain = "plain"
	FormatColor = "color"
	FormatJSON  = "json"
)

// isTerminal is replaced in tests.
var isTerminal = func() bool { return term.IsTerminal(int(os.Stdout.Fd())) }

// NewStdoutSink returns the stdout writer for format. auto picks colors when
// stdout is a terminal and plain lines otherwise.
func NewStdoutSink(format string, overview *Overview) (any, error) {
	switch format {
	case "", FormatAuto:
		if isTerminal() {
			return NewColorStdoutWriter(overview), nil
		}
		return NewStdoutWriter(), nil
	case FormatPlain:
		return NewStdoutWriter(), nil
	case FormatColor:
		return NewColorStdoutWriter(overview), nil
	case FormatJSON:
		return NewJSONStdoutWriter(), nil
	default:
		return nil, fmt.Errorf("unknown stdout format %q", format)
	}
}
