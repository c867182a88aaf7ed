package integration

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/temoa-dev/temoa/internal/search"
	"github.com/temoa-dev/temoa/internal/watcher"
)

// startWatcher runs w.Start in the background and gives fsnotify time
// to register the vault tree before the test writes files.
func startWatcher(t *testing.T, w *watcher.VaultWatcher, root string) context.CancelFunc {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	go func() { _ = w.Start(ctx, root) }()
	time.Sleep(250 * time.Millisecond)
	return cancel
}

func nextBatch(t *testing.T, w *watcher.VaultWatcher, timeout time.Duration) []watcher.Event {
	t.Helper()
	select {
	case batch, ok := <-w.Events():
		require.True(t, ok, "events channel closed early")
		return batch
	case <-time.After(timeout):
		t.Fatal("timeout waiting for event batch")
		return nil
	}
}

// The serve command pairs a watcher with an incremental reindex per
// batch. This drives that same loop by hand: change a file, wait for
// the batch, merge, and confirm the change is searchable.
func TestWatchAndReindex_NewNoteBecomesSearchable(t *testing.T) {
	ctx := context.Background()
	dir := seedVault(t)
	reg := newRegistry(t, nil)

	_, err := reg.Reindex(ctx, dir, true, nil)
	require.NoError(t, err)

	w, err := watcher.New(watcher.Options{Debounce: 50 * time.Millisecond}, nil)
	require.NoError(t, err)
	defer w.Stop()
	cancel := startWatcher(t, w, dir)
	defer cancel()

	writeNote(t, dir, "journal/2024-04-01.md", `---
tags: [journal]
---

# Monday

Swapped the bike chain and degreased the cassette. Shifting is crisp
again, should have done this months ago.
`)

	batch := nextBatch(t, w, 5*time.Second)
	require.NotEmpty(t, batch)
	assert.Equal(t, watcher.OpCreate, batch[0].Op)

	res, err := reg.Reindex(ctx, dir, false, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, res.New)
	assert.False(t, res.Full)

	results, err := reg.Search(ctx, dir, "bike chain cassette", search.Options{Limit: 5})
	require.NoError(t, err)
	assert.True(t, hasPath(results, "journal/2024-04-01.md"))
}

func TestWatchAndReindex_DeletedNoteDropsOut(t *testing.T) {
	ctx := context.Background()
	dir := seedVault(t)
	reg := newRegistry(t, nil)

	_, err := reg.Reindex(ctx, dir, true, nil)
	require.NoError(t, err)

	w, err := watcher.New(watcher.Options{Debounce: 50 * time.Millisecond}, nil)
	require.NoError(t, err)
	defer w.Stop()
	cancel := startWatcher(t, w, dir)
	defer cancel()

	require.NoError(t, os.Remove(filepath.Join(dir, "recipes", "soup.md")))

	batch := nextBatch(t, w, 5*time.Second)
	require.NotEmpty(t, batch)
	assert.Equal(t, watcher.OpDelete, batch[0].Op)
	assert.Equal(t, "recipes/soup.md", batch[0].Path)

	res, err := reg.Reindex(ctx, dir, false, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Deleted)

	results, err := reg.Search(ctx, dir, "lentil soup cumin", search.Options{Limit: 10})
	require.NoError(t, err)
	assert.False(t, hasPath(results, "recipes/soup.md"), "removed note must not rank")
}
