package watcher

import (
	"context"
	"fmt"
	"io/fs"
	"path/filepath"
	"sync"
	"time"
)

// pollScanner detects note changes by rescanning the vault on an
// interval. It is the fallback backend for filesystems without
// inotify support. Only notes are tracked, so a removed directory
// surfaces as per-note deletes on the next scan.
type pollScanner struct {
	interval time.Duration
	skipDir  func(rel string) bool
	note     func(rel string) bool

	mu      sync.Mutex
	state   map[string]noteStamp
	events  chan Event
	errors  chan error
	stopCh  chan struct{}
	stopped bool
	root    string
}

type noteStamp struct {
	modTime time.Time
	size    int64
}

func newPollScanner(interval time.Duration, skipDir, note func(rel string) bool) *pollScanner {
	return &pollScanner{
		interval: interval,
		skipDir:  skipDir,
		note:     note,
		state:    make(map[string]noteStamp),
		events:   make(chan Event, 100),
		errors:   make(chan error, 10),
		stopCh:   make(chan struct{}),
	}
}

// Start scans root on the configured interval until the context is
// cancelled or Stop is called. The first scan only records a baseline.
func (p *pollScanner) Start(ctx context.Context, root string) error {
	abs, err := filepath.Abs(root)
	if err != nil {
		return fmt.Errorf("resolve vault root: %w", err)
	}
	p.root = abs

	if err := p.baseline(); err != nil {
		return fmt.Errorf("initial vault scan: %w", err)
	}

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			_ = p.Stop()
			return ctx.Err()
		case <-p.stopCh:
			return nil
		case <-ticker.C:
			if err := p.detectChanges(); err != nil {
				select {
				case p.errors <- err:
				default:
				}
			}
		}
	}
}

// Stop shuts the scanner down. Safe to call more than once.
func (p *pollScanner) Stop() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.stopped {
		return nil
	}
	p.stopped = true
	close(p.stopCh)
	close(p.events)
	close(p.errors)
	return nil
}

func (p *pollScanner) Events() <-chan Event {
	return p.events
}

func (p *pollScanner) Errors() <-chan error {
	return p.errors
}

func (p *pollScanner) baseline() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	state, err := p.snapshot()
	if err != nil {
		return err
	}
	p.state = state
	return nil
}

// snapshot walks the vault and stamps every note.
func (p *pollScanner) snapshot() (map[string]noteStamp, error) {
	state := make(map[string]noteStamp, len(p.state))
	err := filepath.WalkDir(p.root, func(fp string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}

		rel, relErr := filepath.Rel(p.root, fp)
		if relErr != nil || rel == "." {
			return nil
		}
		rel = filepath.ToSlash(rel)

		if d.IsDir() {
			if p.skipDir(rel) {
				return filepath.SkipDir
			}
			return nil
		}
		if p.skipDir(rel) || !p.note(rel) {
			return nil
		}

		info, infoErr := d.Info()
		if infoErr != nil {
			return nil
		}
		state[rel] = noteStamp{modTime: info.ModTime(), size: info.Size()}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk vault: %w", err)
	}
	return state, nil
}

// detectChanges diffs the current scan against the previous one and
// emits an event per changed note.
func (p *pollScanner) detectChanges() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	current, err := p.snapshot()
	if err != nil {
		return err
	}

	now := time.Now()
	for rel, stamp := range current {
		prev, seen := p.state[rel]
		switch {
		case !seen:
			p.emit(Event{Path: rel, Op: OpCreate, Time: now})
		case !prev.modTime.Equal(stamp.modTime) || prev.size != stamp.size:
			p.emit(Event{Path: rel, Op: OpModify, Time: now})
		}
	}
	for rel := range p.state {
		if _, ok := current[rel]; !ok {
			p.emit(Event{Path: rel, Op: OpDelete, Time: now})
		}
	}

	p.state = current
	return nil
}

// emit sends without blocking. Must be called with the lock held.
func (p *pollScanner) emit(event Event) {
	if p.stopped {
		return
	}
	select {
	case p.events <- event:
	default:
	}
}
