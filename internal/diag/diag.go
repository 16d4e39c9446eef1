// Package diag renders the line-oriented, human-facing diagnostics the CLI
// tools print to stderr, independent of the structured zerolog stream in
// wslog. Exactly one of three prefixes is ever used.
package diag

import (
	"fmt"
	"io"
	"os"
)

// Stream is the writer diagnostics are sent to; tests may swap it out.
var Stream io.Writer = os.Stderr

// Errorf prints an "Error  :" diagnostic line.
func Errorf(format string, args ...any) {
	fmt.Fprintf(Stream, "Error  : %s\n", fmt.Sprintf(format, args...))
}

// Warnf prints a "Warning:" diagnostic line.
func Warnf(format string, args ...any) {
	fmt.Fprintf(Stream, "Warning: %s\n", fmt.Sprintf(format, args...))
}

// Infof prints an "Info   :" diagnostic line.
func Infof(format string, args ...any) {
	fmt.Fprintf(Stream, "Info   : %s\n", fmt.Sprintf(format, args...))
}
