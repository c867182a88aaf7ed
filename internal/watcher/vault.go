package watcher

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
)

// VaultWatcher reports note changes under one vault root. fsnotify is
// the primary backend with recursive directory registration; when
// inotify cannot be initialized (watch limits, unsupported FS) a
// polling scanner takes over.
type VaultWatcher struct {
	opts      Options
	logger    *slog.Logger
	debouncer *Debouncer
	fsw       *fsnotify.Watcher
	poller    *pollScanner
	excludes  map[string]bool

	events  chan []Event
	errors  chan error
	stopCh  chan struct{}
	root    string
	mu      sync.Mutex
	stopped bool
	dropped atomic.Uint64
}

// New creates a VaultWatcher. The polling fallback is selected only
// when the fsnotify backend cannot be initialized.
func New(opts Options, logger *slog.Logger) (*VaultWatcher, error) {
	opts = opts.withDefaults()
	if logger == nil {
		logger = slog.Default()
	}

	excludes := make(map[string]bool, len(opts.Excludes))
	for _, name := range opts.Excludes {
		excludes[name] = true
	}

	w := &VaultWatcher{
		opts:      opts,
		logger:    logger,
		debouncer: NewDebouncer(opts.Debounce, logger),
		excludes:  excludes,
		events:    make(chan []Event, opts.BufferSize),
		errors:    make(chan error, 10),
		stopCh:    make(chan struct{}),
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		logger.Warn("fsnotify_unavailable", slog.String("error", err.Error()))
		w.poller = newPollScanner(opts.PollInterval, w.skipDir, isNote)
	} else {
		w.fsw = fsw
	}
	return w, nil
}

// Backend names the active watching mechanism.
func (w *VaultWatcher) Backend() string {
	if w.fsw != nil {
		return "fsnotify"
	}
	return "polling"
}

// Events returns the channel of coalesced batches. It is closed when
// the watcher stops.
func (w *VaultWatcher) Events() <-chan []Event {
	return w.events
}

// Errors returns the channel of non-fatal errors. The watcher keeps
// running after sending one.
func (w *VaultWatcher) Errors() <-chan error {
	return w.errors
}

// Dropped returns the number of batches dropped because the consumer
// fell behind.
func (w *VaultWatcher) Dropped() uint64 {
	return w.dropped.Load()
}

// Start watches root until the context is cancelled or Stop is called.
// It blocks for the lifetime of the watcher.
func (w *VaultWatcher) Start(ctx context.Context, root string) error {
	abs, err := filepath.Abs(root)
	if err != nil {
		return fmt.Errorf("resolve vault root: %w", err)
	}
	w.root = abs

	go w.forward()

	if w.fsw != nil {
		return w.runFsnotify(ctx)
	}
	return w.runPolling(ctx)
}

func (w *VaultWatcher) runFsnotify(ctx context.Context) error {
	if err := w.watchTree(w.root, false); err != nil {
		return fmt.Errorf("register vault directories: %w", err)
	}

	for {
		select {
		case <-ctx.Done():
			_ = w.Stop()
			return ctx.Err()
		case <-w.stopCh:
			return nil
		case ev, ok := <-w.fsw.Events:
			if !ok {
				return nil
			}
			w.handleFsnotifyEvent(ev)
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return nil
			}
			w.emitError(err)
		}
	}
}

func (w *VaultWatcher) runPolling(ctx context.Context) error {
	go func() {
		for {
			select {
			case <-w.stopCh:
				return
			case ev, ok := <-w.poller.Events():
				if !ok {
					return
				}
				w.debouncer.Add(ev)
			case err, ok := <-w.poller.Errors():
				if !ok {
					return
				}
				w.emitError(err)
			}
		}
	}()

	err := w.poller.Start(ctx, w.root)
	if err != nil {
		_ = w.Stop()
	}
	return err
}

// handleFsnotifyEvent filters and converts one raw event.
func (w *VaultWatcher) handleFsnotifyEvent(ev fsnotify.Event) {
	rel, err := filepath.Rel(w.root, ev.Name)
	if err != nil {
		return
	}
	rel = filepath.ToSlash(rel)
	if rel == "." || rel == "" || w.ignored(rel) {
		return
	}

	switch {
	case ev.Op&fsnotify.Create != 0:
		info, err := os.Stat(ev.Name)
		if err != nil {
			return
		}
		if info.IsDir() {
			// A directory moved in carries notes fsnotify never saw.
			if err := w.watchTree(ev.Name, true); err != nil {
				w.emitError(err)
			}
			return
		}
		if !isNote(rel) {
			return
		}
		w.debouncer.Add(Event{Path: rel, Op: OpCreate, Time: time.Now()})

	case ev.Op&fsnotify.Write != 0:
		if !isNote(rel) {
			return
		}
		w.debouncer.Add(Event{Path: rel, Op: OpModify, Time: time.Now()})

	case ev.Op&(fsnotify.Remove|fsnotify.Rename) != 0:
		// The path is gone, so a directory cannot be told apart from an
		// extensionless file. Either way the index needs a pass.
		if !isNote(rel) && path.Ext(rel) != "" {
			return
		}
		w.debouncer.Add(Event{Path: rel, Op: OpDelete, Time: time.Now()})
	}
}

// watchTree registers dir and every non-ignored directory under it.
// With emit set, notes found along the way are queued as creates.
func (w *VaultWatcher) watchTree(dir string, emit bool) error {
	return filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}

		rel, relErr := filepath.Rel(w.root, p)
		if relErr != nil {
			return nil
		}
		rel = filepath.ToSlash(rel)

		if d.IsDir() {
			if rel != "." && w.ignored(rel) {
				return filepath.SkipDir
			}
			return w.fsw.Add(p)
		}

		if emit && !w.ignored(rel) && isNote(rel) {
			w.debouncer.Add(Event{Path: rel, Op: OpCreate, Time: time.Now()})
		}
		return nil
	})
}

// forward moves debounced batches to the events channel and closes it
// once the debouncer stops. Keeping the send on a single goroutine is
// what makes the close safe.
func (w *VaultWatcher) forward() {
	for batch := range w.debouncer.Output() {
		if len(batch) == 0 {
			continue
		}
		select {
		case w.events <- batch:
		default:
			n := w.dropped.Add(1)
			w.logger.Warn("watch_batch_dropped",
				slog.Int("batch_size", len(batch)),
				slog.Uint64("dropped_total", n))
		}
	}
	close(w.events)
}

// emitError sends err without blocking. Guarded by mu so Stop cannot
// close the channel mid-send.
func (w *VaultWatcher) emitError(err error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.stopped {
		return
	}
	select {
	case w.errors <- err:
	default:
	}
}

// Stop shuts the watcher down. Safe to call more than once.
func (w *VaultWatcher) Stop() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.stopped {
		return nil
	}
	w.stopped = true
	close(w.stopCh)

	w.debouncer.Stop()
	if w.fsw != nil {
		_ = w.fsw.Close()
	}
	if w.poller != nil {
		_ = w.poller.Stop()
	}
	close(w.errors)
	return nil
}

// ignored reports whether a vault-relative slash path falls in a
// dot-directory, an excluded directory, or is itself hidden.
func (w *VaultWatcher) ignored(rel string) bool {
	for _, seg := range strings.Split(rel, "/") {
		if strings.HasPrefix(seg, ".") || w.excludes[seg] {
			return true
		}
	}
	return false
}

// skipDir adapts ignored for the polling scanner, which filters while
// walking.
func (w *VaultWatcher) skipDir(rel string) bool {
	return w.ignored(rel)
}

// isNote reports whether a vault-relative path has a Markdown
// extension.
func isNote(rel string) bool {
	switch strings.ToLower(path.Ext(rel)) {
	case ".md", ".markdown":
		return true
	default:
		return false
	}
}
