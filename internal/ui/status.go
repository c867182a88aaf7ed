package ui

import (
	"encoding/json"
	"fmt"
	"io"
	"time"
)

// StatusInfo describes one vault's index for the stats command.
type StatusInfo struct {
	Vault       string    `json:"vault"`
	Notes       int       `json:"notes"`
	Embeddings  int       `json:"embeddings"`
	Tags        int       `json:"tags"`
	Directories int       `json:"directories"`
	LastIndexed time.Time `json:"last_indexed"`

	// IndexSize is the on-disk index size in bytes, zero when unknown.
	IndexSize int64 `json:"index_size,omitempty"`

	Model          string `json:"model"`
	Dimensions     int    `json:"dimensions"`
	EmbedderStatus string `json:"embedder_status"` // "ready", "offline", "error"
	WatcherStatus  string `json:"watcher_status,omitempty"`
}

// StatusRenderer displays vault index status.
type StatusRenderer struct {
	out    io.Writer
	styles Styles
}

// NewStatusRenderer creates a status renderer.
func NewStatusRenderer(out io.Writer, noColor bool) *StatusRenderer {
	return &StatusRenderer{
		out:    out,
		styles: GetStyles(noColor),
	}
}

// Render writes a human-readable status block.
func (r *StatusRenderer) Render(info StatusInfo) error {
	_, _ = fmt.Fprintf(r.out, "%s\n\n", r.styles.Header.Render("Vault: "+info.Vault))

	_, _ = fmt.Fprintf(r.out, "  Notes:        %d\n", info.Notes)
	_, _ = fmt.Fprintf(r.out, "  Embeddings:   %d\n", info.Embeddings)
	_, _ = fmt.Fprintf(r.out, "  Tags:         %d\n", info.Tags)
	_, _ = fmt.Fprintf(r.out, "  Directories:  %d\n", info.Directories)
	if !info.LastIndexed.IsZero() {
		_, _ = fmt.Fprintf(r.out, "  Last indexed: %s\n", formatTime(info.LastIndexed))
	}
	if info.IndexSize > 0 {
		_, _ = fmt.Fprintf(r.out, "  Index size:   %s\n", FormatBytes(info.IndexSize))
	}
	_, _ = fmt.Fprintln(r.out)

	_, _ = fmt.Fprintln(r.out, "  Embedder:")
	_, _ = fmt.Fprintf(r.out, "    Model:      %s\n", info.Model)
	_, _ = fmt.Fprintf(r.out, "    Dimensions: %d\n", info.Dimensions)
	_, _ = fmt.Fprintf(r.out, "    Status:     %s\n", r.renderStatus(info.EmbedderStatus))

	if info.WatcherStatus != "" {
		_, _ = fmt.Fprintln(r.out)
		_, _ = fmt.Fprintf(r.out, "  Watcher: %s\n", r.renderStatus(info.WatcherStatus))
	}

	return nil
}

// RenderJSON writes status as indented JSON.
func (r *StatusRenderer) RenderJSON(info StatusInfo) error {
	encoder := json.NewEncoder(r.out)
	encoder.SetIndent("", "  ")
	return encoder.Encode(info)
}

func (r *StatusRenderer) renderStatus(status string) string {
	switch status {
	case "ready", "running":
		return r.styles.Success.Render(status)
	case "offline", "stopped":
		return r.styles.Warning.Render(status)
	case "error":
		return r.styles.Error.Render(status)
	default:
		return status
	}
}

// formatTime renders recent times as relative phrases ("5 minutes ago")
// and anything older than a week as an absolute date.
func formatTime(t time.Time) string {
	ago := func(n int, unit string) string {
		if n == 1 {
			return "1 " + unit + " ago"
		}
		return fmt.Sprintf("%d %ss ago", n, unit)
	}

	diff := time.Since(t)
	switch {
	case diff < time.Minute:
		return "just now"
	case diff < time.Hour:
		return ago(int(diff.Minutes()), "minute")
	case diff < 24*time.Hour:
		return ago(int(diff.Hours()), "hour")
	case diff < 7*24*time.Hour:
		return ago(int(diff.Hours())/24, "day")
	default:
		return t.Format("2006-01-02 15:04")
	}
}

// FormatBytes renders a byte count in human units.
func FormatBytes(bytes int64) string {
	if bytes < 1024 {
		return fmt.Sprintf("%d B", bytes)
	}

	value := float64(bytes)
	units := []string{"KB", "MB", "GB"}
	for i, unit := range units {
		value /= 1024
		if value < 1024 || i == len(units)-1 {
			return fmt.Sprintf("%.1f %s", value, unit)
		}
	}
	return fmt.Sprintf("%d B", bytes)
}
