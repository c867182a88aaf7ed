package vault

import (
	"strings"
	"time"
)

// Status classifies a document's visibility. Inactive and hidden documents
// are dropped from search results unless explicitly requested.
type Status string

const (
	StatusActive   Status = "active"
	StatusInactive Status = "inactive"
	StatusHidden   Status = "hidden"
)

// ParseStatus maps a frontmatter value to a Status, defaulting to active
// for anything unrecognized.
func ParseStatus(s string) Status {
	switch Status(strings.ToLower(strings.TrimSpace(s))) {
	case StatusInactive:
		return StatusInactive
	case StatusHidden:
		return StatusHidden
	default:
		return StatusActive
	}
}

// Document is one Markdown file read from a vault.
type Document struct {
	// Path is the file's vault-relative path and its identity.
	Path string
	// Title comes from the frontmatter title field, falling back to the
	// filename without extension.
	Title string
	// Body is the content after frontmatter.
	Body string
	// Frontmatter holds the parsed YAML header. Empty map when absent.
	Frontmatter map[string]any
	// Tags is the union of the frontmatter tags list and inline #hashtags,
	// lowercased and deduplicated.
	Tags []string
	// Created and Modified come from frontmatter dates when present and
	// file mtime otherwise. Display metadata only: a static frontmatter
	// date does not track disk edits.
	Created  time.Time
	Modified time.Time
	// FileModTime is the filesystem mtime at read time. Change detection
	// compares this, never Modified.
	FileModTime time.Time
	// ContentLength is the body length in runes, the unit chunking
	// thresholds and change detection work in.
	ContentLength int
	Status        Status
	// Type is the frontmatter type field, empty when absent.
	Type string
	// Tombstone marks a file that exists but could not be read. Tombstones
	// carry only Path and are skipped by indexing.
	Tombstone bool
}
