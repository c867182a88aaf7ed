package watcher

import (
	"time"
)

// Op is the kind of change observed for a path.
type Op int

const (
	// OpCreate marks a note that appeared under the vault root.
	OpCreate Op = iota
	// OpModify marks a note whose content changed.
	OpModify
	// OpDelete marks a note or directory that is gone.
	OpDelete
)

func (op Op) String() string {
	switch op {
	case OpCreate:
		return "CREATE"
	case OpModify:
		return "MODIFY"
	case OpDelete:
		return "DELETE"
	default:
		return "UNKNOWN"
	}
}

// Event is one coalesced change under the vault root. Path is
// vault-relative with forward slashes. A delete may name a directory
// whose notes vanished with it; consumers should treat any batch as a
// reindex trigger rather than replay events file by file.
type Event struct {
	Path string
	Op   Op
	Time time.Time
}

const (
	// DefaultDebounce is the quiet window before a batch is emitted.
	// Vault edits arrive in bursts (editor saves, sync clients), so the
	// window is generous compared to code watchers.
	DefaultDebounce = 2 * time.Second

	// DefaultPollInterval is the rescan cadence of the polling fallback.
	DefaultPollInterval = 5 * time.Second

	defaultBufferSize = 64
)

// Options configures a VaultWatcher.
type Options struct {
	// Debounce is the quiet window before pending events flush.
	Debounce time.Duration

	// PollInterval is the rescan cadence when inotify is unavailable.
	PollInterval time.Duration

	// BufferSize caps queued batches before drops.
	BufferSize int

	// Excludes are directory base names skipped in addition to
	// dot-directories, mirroring the vault reader's exclude rules.
	Excludes []string
}

func (o Options) withDefaults() Options {
	if o.Debounce <= 0 {
		o.Debounce = DefaultDebounce
	}
	if o.PollInterval <= 0 {
		o.PollInterval = DefaultPollInterval
	}
	if o.BufferSize <= 0 {
		o.BufferSize = defaultBufferSize
	}
	return o
}
