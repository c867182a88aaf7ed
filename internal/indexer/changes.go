package indexer

import (
	"sort"

	"github.com/temoa-dev/temoa/internal/dense"
	"github.com/temoa-dev/temoa/internal/vault"
)

// changeSet holds the three disjoint path sets an incremental build
// works from. Each slice is sorted for deterministic processing.
type changeSet struct {
	added    []string
	modified []string
	deleted  []string
}

func (c changeSet) empty() bool {
	return len(c.added) == 0 && len(c.modified) == 0 && len(c.deleted) == 0
}

// detectChanges compares the tracked files against the current vault.
// Modification is judged on filesystem mtime at second precision plus
// body length, both recorded in the tracking table, so a sub-second
// rewrite that changes content still registers through its length.
// Frontmatter dates never participate: a note carrying a static
// `modified:` field still reindexes when its file changes on disk.
func detectChanges(tracking map[string]dense.FileTrack, docs []vault.Document) changeSet {
	var c changeSet

	current := make(map[string]vault.Document, len(docs))
	for _, d := range docs {
		current[d.Path] = d
	}

	for path, entry := range tracking {
		d, exists := current[path]
		if !exists {
			c.deleted = append(c.deleted, path)
			continue
		}
		if d.FileModTime.Unix() != entry.Modified || d.ContentLength != entry.Size {
			c.modified = append(c.modified, path)
		}
	}
	for path := range current {
		if _, tracked := tracking[path]; !tracked {
			c.added = append(c.added, path)
		}
	}

	sort.Strings(c.added)
	sort.Strings(c.modified)
	sort.Strings(c.deleted)
	return c
}

// positionMap translates pre-delete row positions to their post-delete
// values: each position drops by the number of removed rows below it.
type positionMap struct {
	removedAsc []int
}

// newPositionMap builds a map from the removed positions (any order).
func newPositionMap(removed []int) positionMap {
	asc := make([]int, len(removed))
	copy(asc, removed)
	sort.Ints(asc)
	return positionMap{removedAsc: asc}
}

func (m positionMap) apply(pos int) int {
	below := sort.SearchInts(m.removedAsc, pos)
	return pos - below
}
