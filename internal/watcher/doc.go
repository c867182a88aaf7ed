// Package watcher reports Markdown changes under a vault root so watch
// mode can schedule incremental reindexes.
//
// fsnotify is the primary backend with recursive directory
// registration; a polling scanner takes over when inotify cannot be
// initialized (watch limits, network mounts). Raw events pass through
// a debouncer that merges bursts per path, so an editor save or a sync
// client writing dozens of notes yields one batch after a quiet
// window. Dot-directories and configured excludes are filtered with
// the same rules the vault reader applies, and only Markdown files
// produce events.
//
//	w, err := watcher.New(watcher.Options{Debounce: 2 * time.Second}, logger)
//	if err != nil {
//	    return err
//	}
//	defer w.Stop()
//	go func() {
//	    for batch := range w.Events() {
//	        // schedule an incremental reindex
//	        _ = batch
//	    }
//	}()
//	return w.Start(ctx, vaultRoot)
package watcher
