// Package output formats CLI status lines consistently across commands.
package output

import (
	"fmt"
	"io"
	"strings"
)

const (
	iconSuccess = "✅"
	iconWarning = "⚠️ "
	iconError   = "❌"
)

// Writer prints formatted status lines. Write errors are ignored; there
// is nothing useful to do when the console is gone.
type Writer struct {
	out io.Writer
}

// New creates a Writer.
func New(out io.Writer) *Writer {
	return &Writer{out: out}
}

// Status prints a line with an icon, or aligned padding without one.
func (w *Writer) Status(icon, msg string) {
	if icon == "" {
		icon = "  "
	}
	_, _ = fmt.Fprintf(w.out, "%s %s\n", icon, msg)
}

// Statusf prints a formatted status line.
func (w *Writer) Statusf(icon, format string, args ...any) {
	w.Status(icon, fmt.Sprintf(format, args...))
}

// Success prints a success line.
func (w *Writer) Success(msg string) { w.Status(iconSuccess, msg) }

// Successf prints a formatted success line.
func (w *Writer) Successf(format string, args ...any) { w.Statusf(iconSuccess, format, args...) }

// Warning prints a warning line.
func (w *Writer) Warning(msg string) { w.Status(iconWarning, msg) }

// Warningf prints a formatted warning line.
func (w *Writer) Warningf(format string, args ...any) { w.Statusf(iconWarning, format, args...) }

// Error prints an error line.
func (w *Writer) Error(msg string) { w.Status(iconError, msg) }

// Errorf prints a formatted error line.
func (w *Writer) Errorf(format string, args ...any) { w.Statusf(iconError, format, args...) }

// Block prints content indented by two spaces with blank lines around
// it. Used for config dumps and note excerpts.
func (w *Writer) Block(content string) {
	_, _ = fmt.Fprintln(w.out)
	for _, line := range strings.Split(strings.TrimRight(content, "\n"), "\n") {
		_, _ = fmt.Fprintf(w.out, "  %s\n", line)
	}
	_, _ = fmt.Fprintln(w.out)
}

// Newline prints an empty line.
func (w *Writer) Newline() {
	_, _ = fmt.Fprintln(w.out)
}
