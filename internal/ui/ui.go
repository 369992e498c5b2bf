// Package ui prints human diagnostics to stderr.
//
// Stdout is reserved for the single JSON envelope each command emits, so
// every helper here writes to stderr only. Color is keyed to whether
// stderr is a terminal; stdout is piped in nearly every invocation and
// must not influence styling.
package ui

import (
	"fmt"
	"io"
	"os"

	"github.com/fatih/color"
	"golang.org/x/term"
)

// Verbose gates Verbosef output. The CLI sets it from --verbose.
var Verbose bool

// out is swappable in tests.
var out io.Writer = color.Error

var (
	warnColor    = color.New(color.FgYellow)
	errColor     = color.New(color.FgRed)
	successColor = color.New(color.FgGreen)
	mutedColor   = color.New(color.Faint)
)

func init() {
	// fatih/color decides NoColor from stdout, which is wrong for a tool
	// whose stdout is a machine contract. Re-decide from stderr, keeping
	// NO_COLOR authoritative.
	if os.Getenv("NO_COLOR") == "" {
		color.NoColor = !term.IsTerminal(int(os.Stderr.Fd()))
	}
}

// Warnf prints a warning line.
func Warnf(format string, args ...interface{}) {
	fmt.Fprintf(out, "%s %s\n", warnColor.Sprint("Warning:"), fmt.Sprintf(format, args...))
}

// Errorf prints an error line.
func Errorf(format string, args ...interface{}) {
	fmt.Fprintf(out, "%s %s\n", errColor.Sprint("Error:"), fmt.Sprintf(format, args...))
}

// Successf prints a confirmation line.
func Successf(format string, args ...interface{}) {
	fmt.Fprintf(out, "%s\n", successColor.Sprintf(format, args...))
}

// Infof prints a plain informational line.
func Infof(format string, args ...interface{}) {
	fmt.Fprintf(out, format+"\n", args...)
}

// Verbosef prints a muted line, only when Verbose is set.
func Verbosef(format string, args ...interface{}) {
	if !Verbose {
		return
	}
	fmt.Fprintf(out, "%s\n", mutedColor.Sprintf(format, args...))
}
