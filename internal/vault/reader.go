package vault

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	terrors "github.com/temoa-dev/temoa/internal/errors"
)

// markdownExtensions are the file extensions treated as notes.
var markdownExtensions = map[string]bool{
	".md":       true,
	".markdown": true,
}

// Reader enumerates and parses Markdown documents under a vault root.
// Parsed documents are cached by (path, mtime), so unchanged files are
// not re-read across index cycles.
type Reader struct {
	root     string
	excludes []string
	logger   *slog.Logger

	mu    sync.RWMutex
	cache map[string]cacheEntry
}

type cacheEntry struct {
	mtime time.Time
	doc   Document
}

// NewReader creates a Reader for the vault at root. The root is resolved
// to an absolute path immediately; its existence is checked at read time
// so a vault created after the Reader still works.
func NewReader(root string, excludes []string, logger *slog.Logger) *Reader {
	if logger == nil {
		logger = slog.Default()
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		abs = root
	}
	return &Reader{
		root:     abs,
		excludes: excludes,
		logger:   logger,
		cache:    make(map[string]cacheEntry),
	}
}

// Root returns the absolute vault root path.
func (r *Reader) Root() string {
	return r.root
}

// ReadVault enumerates all Markdown files under the vault root and returns
// their parsed documents, sorted lexicographically by relative path.
// Directories beginning with "." and configured excludes are skipped.
// A missing or unreadable root is fatal; a single unreadable file is
// logged and skipped.
func (r *Reader) ReadVault(ctx context.Context) ([]Document, error) {
	info, err := os.Stat(r.root)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, terrors.New(terrors.ErrCodeVaultNotFound,
				fmt.Sprintf("vault root does not exist: %s", r.root), err).
				WithSuggestion("check the vault path in your config (temoa config show)")
		}
		return nil, terrors.New(terrors.ErrCodeVaultUnreadable,
			fmt.Sprintf("cannot access vault root: %s", r.root), err)
	}
	if !info.IsDir() {
		return nil, terrors.New(terrors.ErrCodeVaultNotFound,
			fmt.Sprintf("vault root is not a directory: %s", r.root), nil)
	}

	var paths []string
	walkErr := filepath.WalkDir(r.root, func(path string, d fs.DirEntry, err error) error {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err != nil {
			// Unreadable subtree: skip it rather than abort the read.
			r.logger.Warn("skipping unreadable path", "path", path, "error", err)
			if d != nil && d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}

		name := d.Name()
		if d.IsDir() {
			if path == r.root {
				return nil
			}
			if strings.HasPrefix(name, ".") || r.isExcluded(name) {
				return filepath.SkipDir
			}
			return nil
		}

		if strings.HasPrefix(name, ".") || r.isExcluded(name) {
			return nil
		}
		if !markdownExtensions[strings.ToLower(filepath.Ext(name))] {
			return nil
		}

		rel, relErr := filepath.Rel(r.root, path)
		if relErr != nil {
			r.logger.Warn("skipping file outside vault root", "path", path, "error", relErr)
			return nil
		}
		paths = append(paths, filepath.ToSlash(rel))
		return nil
	})
	if walkErr != nil {
		if ctx.Err() != nil {
			return nil, walkErr
		}
		return nil, terrors.New(terrors.ErrCodeVaultUnreadable,
			fmt.Sprintf("vault enumeration failed under %s", r.root), walkErr)
	}

	sort.Strings(paths)

	docs := make([]Document, 0, len(paths))
	for _, rel := range paths {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		doc := r.ReadFile(rel)
		if doc.Tombstone {
			r.logger.Warn("skipping unreadable file", "path", rel)
			continue
		}
		docs = append(docs, doc)
	}

	r.pruneCache(paths)
	return docs, nil
}

// ReadFile reads and parses a single document by vault-relative path.
// Results are cached by (path, mtime); an unchanged file returns the
// cached document without touching its content. An unreadable file
// returns a tombstone document rather than an error.
func (r *Reader) ReadFile(relPath string) Document {
	relPath = filepath.ToSlash(relPath)
	absPath := filepath.Join(r.root, filepath.FromSlash(relPath))

	info, err := os.Stat(absPath)
	if err != nil {
		return Document{Path: relPath, Tombstone: true}
	}

	r.mu.RLock()
	entry, ok := r.cache[relPath]
	r.mu.RUnlock()
	if ok && entry.mtime.Equal(info.ModTime()) {
		return entry.doc
	}

	raw, err := os.ReadFile(absPath)
	if err != nil {
		return Document{Path: relPath, Tombstone: true}
	}

	doc := r.parseDocument(relPath, string(raw), info.ModTime())

	r.mu.Lock()
	r.cache[relPath] = cacheEntry{mtime: info.ModTime(), doc: doc}
	r.mu.Unlock()

	return doc
}

// parseDocument builds a Document from raw file content.
func (r *Reader) parseDocument(relPath, content string, mtime time.Time) Document {
	fmText, body := splitFrontmatter(content)
	fm, err := parseFrontmatter(fmText)
	if err != nil {
		// Malformed YAML degrades to an untagged document.
		r.logger.Warn("malformed frontmatter", "path", relPath, "error", err)
	}

	title := stringField(fm, "title")
	if title == "" {
		base := filepath.Base(relPath)
		title = strings.TrimSuffix(base, filepath.Ext(base))
	}

	created := dateField(fm, "created", "created_date", "date")
	modified := dateField(fm, "modified", "modified_date", "updated")
	if created.IsZero() {
		created = mtime
	}
	if modified.IsZero() {
		modified = mtime
	}

	return Document{
		Path:          relPath,
		Title:         title,
		Body:          body,
		Frontmatter:   fm,
		Tags:          mergeTags(tagsField(fm), inlineTags(body)),
		Created:       created,
		Modified:      modified,
		FileModTime:   mtime,
		ContentLength: utf8.RuneCountInString(body),
		Status:        ParseStatus(stringField(fm, "status")),
		Type:          stringField(fm, "type"),
	}
}

// isExcluded reports whether a file or directory name matches one of the
// configured exclude patterns. Patterns support a trailing or leading "*".
func (r *Reader) isExcluded(name string) bool {
	for _, pattern := range r.excludes {
		if pattern == name {
			return true
		}
		if matched, err := filepath.Match(pattern, name); err == nil && matched {
			return true
		}
	}
	return false
}

// pruneCache drops cache entries for paths no longer present in the vault.
func (r *Reader) pruneCache(livePaths []string) {
	live := make(map[string]bool, len(livePaths))
	for _, p := range livePaths {
		live[p] = true
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	for path := range r.cache {
		if !live[path] {
			delete(r.cache, path)
		}
	}
}
