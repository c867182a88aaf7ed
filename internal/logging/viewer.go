package logging

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"regexp"
	"sort"
	"strings"
	"time"
)

// LogEntry is one parsed line of the JSON service log.
type LogEntry struct {
	Time    time.Time      `json:"time"`
	Level   string         `json:"level"`
	Msg     string         `json:"msg"`
	Attrs   map[string]any `json:"-"`
	Raw     string         `json:"-"`
	IsValid bool           `json:"-"`
}

// ViewerConfig configures filtering and rendering for `temoa logs`.
type ViewerConfig struct {
	Level   string
	Pattern *regexp.Regexp
	NoColor bool
}

// Viewer reads, filters, and pretty-prints the service log.
type Viewer struct {
	config ViewerConfig
	out    io.Writer
}

// NewViewer creates a log viewer writing to out.
func NewViewer(cfg ViewerConfig, out io.Writer) *Viewer {
	return &Viewer{config: cfg, out: out}
}

// Tail returns the matching entries among the last n lines of the log.
// The file is scanned once with a bounded window, so a large log does
// not load into memory.
func (v *Viewer) Tail(path string, n int) ([]LogEntry, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open log file: %w", err)
	}
	defer func() { _ = file.Close() }()

	if n <= 0 {
		return nil, nil
	}
	window := make([]string, 0, n)
	scanner := newLineScanner(file)
	for scanner.Scan() {
		if len(window) == n {
			copy(window, window[1:])
			window = window[:n-1]
		}
		window = append(window, scanner.Text())
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read log file: %w", err)
	}

	var entries []LogEntry
	for _, line := range window {
		if entry := v.parseLine(line); v.matchesFilter(entry) {
			entries = append(entries, entry)
		}
	}
	return entries, nil
}

// Follow streams entries appended to the log until the context ends.
// History is Tail's job, so reading starts at the current end.
func (v *Viewer) Follow(ctx context.Context, path string, entries chan<- LogEntry) error {
	file, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open log file: %w", err)
	}
	defer func() { _ = file.Close() }()

	if _, err := file.Seek(0, io.SeekEnd); err != nil {
		return fmt.Errorf("failed to seek to end: %w", err)
	}

	reader := bufio.NewReader(file)
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if done := v.drainNewLines(ctx, reader, entries); done {
				return nil
			}
		}
	}
}

// drainNewLines forwards every complete line currently available.
// Returns true when the context ended mid-send.
func (v *Viewer) drainNewLines(ctx context.Context, reader *bufio.Reader, entries chan<- LogEntry) bool {
	for {
		line, err := reader.ReadString('\n')
		if err != nil {
			return false
		}
		line = strings.TrimSuffix(line, "\n")
		if line == "" {
			continue
		}
		entry := v.parseLine(line)
		if !v.matchesFilter(entry) {
			continue
		}
		select {
		case entries <- entry:
		case <-ctx.Done():
			return true
		}
	}
}

// FormatEntry renders one entry as a human-readable line. Attributes
// print in sorted key order so repeated runs compare cleanly.
func (v *Viewer) FormatEntry(entry LogEntry) string {
	if !entry.IsValid {
		return entry.Raw
	}

	var b strings.Builder
	b.WriteString(entry.Time.Format("15:04:05.000"))
	b.WriteByte(' ')
	b.WriteString(v.formatLevel(entry.Level))
	b.WriteByte(' ')
	b.WriteString(entry.Msg)

	keys := make([]string, 0, len(entry.Attrs))
	for k := range entry.Attrs {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(&b, " %s=%v", k, entry.Attrs[k])
	}
	return b.String()
}

// Print writes the formatted entries to the viewer's output.
func (v *Viewer) Print(entries []LogEntry) {
	for _, entry := range entries {
		_, _ = fmt.Fprintln(v.out, v.FormatEntry(entry))
	}
}

// parseLine decodes one JSON log line. Lines that are not JSON come
// back with IsValid false and print raw.
func (v *Viewer) parseLine(line string) LogEntry {
	entry := LogEntry{Raw: line}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal([]byte(line), &fields); err != nil {
		return entry
	}
	entry.IsValid = true

	var stamp string
	if raw, ok := fields["time"]; ok && json.Unmarshal(raw, &stamp) == nil {
		if parsed, err := time.Parse(time.RFC3339Nano, stamp); err == nil {
			entry.Time = parsed
		}
	}
	if raw, ok := fields["level"]; ok {
		_ = json.Unmarshal(raw, &entry.Level)
	}
	if raw, ok := fields["msg"]; ok {
		_ = json.Unmarshal(raw, &entry.Msg)
	}

	entry.Attrs = make(map[string]any, len(fields))
	for k, raw := range fields {
		switch k {
		case "time", "level", "msg":
			continue
		}
		var val any
		if json.Unmarshal(raw, &val) == nil {
			entry.Attrs[k] = val
		}
	}
	return entry
}

// matchesFilter applies the level floor and the regex, both optional.
func (v *Viewer) matchesFilter(entry LogEntry) bool {
	if v.config.Level != "" &&
		LevelFromString(entry.Level) < LevelFromString(v.config.Level) {
		return false
	}
	if v.config.Pattern != nil && !v.config.Pattern.MatchString(entry.Raw) {
		return false
	}
	return true
}

// formatLevel renders a fixed-width level tag, colored per level
// unless colors are off.
func (v *Viewer) formatLevel(level string) string {
	tag := strings.ToUpper(level)
	if len(tag) > 5 {
		tag = tag[:5]
	}
	tag = fmt.Sprintf("%-5s", tag)

	if v.config.NoColor {
		return tag
	}
	code, ok := levelColors[strings.ToLower(level)]
	if !ok {
		return tag
	}
	return code + tag + "\033[0m"
}

var levelColors = map[string]string{
	"debug":   "\033[90m",
	"info":    "\033[32m",
	"warn":    "\033[33m",
	"warning": "\033[33m",
	"error":   "\033[31m",
}

// newLineScanner builds a scanner sized for long log lines (query
// payloads, stack traces) that exceed bufio's default token size.
func newLineScanner(r io.Reader) *bufio.Scanner {
	const maxLine = 1024 * 1024
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, maxLine), maxLine)
	return scanner
}
