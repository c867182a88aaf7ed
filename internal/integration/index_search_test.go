// Package integration exercises the full stack: vault files on disk,
// index build, persisted store, and the search pipeline, all through
// the registry the way the server drives it.
package integration

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/temoa-dev/temoa/internal/config"
	"github.com/temoa-dev/temoa/internal/dense"
	"github.com/temoa-dev/temoa/internal/embed"
	terrors "github.com/temoa-dev/temoa/internal/errors"
	"github.com/temoa-dev/temoa/internal/profile"
	"github.com/temoa-dev/temoa/internal/registry"
	"github.com/temoa-dev/temoa/internal/search"
)

func writeNote(t *testing.T, dir, rel, content string) {
	t.Helper()
	full := filepath.Join(dir, filepath.FromSlash(rel))
	require.NoError(t, os.MkdirAll(filepath.Dir(full), 0o755))
	require.NoError(t, os.WriteFile(full, []byte(content), 0o644))
}

// countingEmbedder tracks single-text embeds, which the pipeline uses
// for queries. Batch embeds during indexing are not counted.
type countingEmbedder struct {
	embed.Embedder
	queryEmbeds atomic.Int64
}

func (c *countingEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	c.queryEmbeds.Add(1)
	return c.Embedder.Embed(ctx, text)
}

func newRegistry(t *testing.T, embedder embed.Embedder, opts ...registry.Option) *registry.Registry {
	t.Helper()
	if embedder == nil {
		embedder = embed.NewStaticEmbedder(64)
	}
	reg, err := registry.New(config.NewConfig(), embedder, nil, opts...)
	require.NoError(t, err)
	t.Cleanup(reg.Close)
	return reg
}

// seedVault writes enough prose notes for expansion to have neighbors
// to mine and for rankings to be meaningful.
func seedVault(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	writeNote(t, dir, "journal/2024-03-12.md", `---
tags: [journal, health]
---

# Tuesday

Morning run felt easier than last week. Legs recovered faster and the
heart rate stayed lower on the hill section.
`)
	writeNote(t, dir, "journal/2024-03-14.md", `---
tags: [journal]
---

# Thursday

Long run day. Skipped the hill and kept an even pace along the river,
then stretched properly for once.
`)
	writeNote(t, dir, "projects/garden.md", `---
type: project
status: active
tags: [garden]
---

# Garden plan

Raised beds along the south fence. Tomatoes and basil go in after the
last frost. Garlic has been in since October.
`)
	writeNote(t, dir, "projects/bookshelf.md", `---
type: project
status: paused
tags: [wood]
---

# Bookshelf build

Oak boards are cut to length. Still need to route the dadoes and decide
on the finish, probably a hard wax oil.
`)
	writeNote(t, dir, "reference/running-plan.md", `---
type: reference
tags: [running, health]
---

# Half marathon plan

Three runs a week. One easy, one with hill repeats, one long run that
grows by a kilometer each week until race day.
`)
	writeNote(t, dir, "recipes/soup.md", `# Lentil soup

Red lentils, cumin, a tin of tomatoes, and whatever vegetables need
using up. Simmer 25 minutes, blend half, season hard.
`)
	return dir
}

func hasPath(results []search.Result, path string) bool {
	return pathCount(results, path) > 0
}

func pathCount(results []search.Result, path string) int {
	n := 0
	for _, r := range results {
		if r.Path == path {
			n++
		}
	}
	return n
}

func TestEndToEnd_BuildSearchIncrementalSearch(t *testing.T) {
	ctx := context.Background()
	dir := seedVault(t)
	reg := newRegistry(t, nil)

	// Full build.
	res, err := reg.Reindex(ctx, dir, true, nil)
	require.NoError(t, err)
	assert.True(t, res.Full)
	assert.Equal(t, 6, res.Files)
	assert.Equal(t, 6, res.New)
	rowsBefore := res.Rows

	// Search against the fresh index.
	results, err := reg.Search(ctx, dir, "hill repeats training", search.Options{Limit: 5})
	require.NoError(t, err)
	require.NotEmpty(t, results)
	assert.True(t, hasPath(results, "reference/running-plan.md"))

	// One new note arrives.
	writeNote(t, dir, "journal/2024-03-15.md", `---
tags: [journal]
---

# Friday

Tried the sourdough starter again. Doubled in six hours this time, so
the warmer spot near the oven is doing its job.
`)

	res, err = reg.Reindex(ctx, dir, false, nil)
	require.NoError(t, err)
	assert.False(t, res.Full, "a single addition should merge incrementally")
	assert.Equal(t, 1, res.New)
	assert.Equal(t, 0, res.Modified)
	assert.Equal(t, 0, res.Deleted)
	assert.Equal(t, rowsBefore+1, res.Rows, "short note adds exactly one row")

	// The new note is searchable without restarting anything.
	results, err = reg.Search(ctx, dir, "sourdough starter doubled", search.Options{Limit: 5})
	require.NoError(t, err)
	assert.True(t, hasPath(results, "journal/2024-03-15.md"))
}

func TestIncremental_NoChangesIsNoop(t *testing.T) {
	ctx := context.Background()
	dir := seedVault(t)
	reg := newRegistry(t, nil)

	_, err := reg.Reindex(ctx, dir, true, nil)
	require.NoError(t, err)

	res, err := reg.Reindex(ctx, dir, false, nil)
	require.NoError(t, err)
	assert.False(t, res.Full)
	assert.Zero(t, res.New)
	assert.Zero(t, res.Modified)
	assert.Zero(t, res.Deleted)
	assert.Equal(t, 6, res.Unchanged)
}

func TestIncremental_MixedChanges(t *testing.T) {
	ctx := context.Background()
	dir := seedVault(t)
	reg := newRegistry(t, nil)

	_, err := reg.Reindex(ctx, dir, true, nil)
	require.NoError(t, err)

	// Add one, rewrite one, delete one.
	writeNote(t, dir, "reference/knots.md", "# Knots\n\nBowline, clove hitch, and the trucker's hitch for the roof rack.")
	writeNote(t, dir, "recipes/soup.md", "# Lentil soup v2\n\nSame soup but with smoked paprika and a parmesan rind in the pot.")
	require.NoError(t, os.Remove(filepath.Join(dir, "projects/bookshelf.md")))

	res, err := reg.Reindex(ctx, dir, false, nil)
	require.NoError(t, err)
	assert.False(t, res.Full)
	assert.Equal(t, 1, res.New)
	assert.Equal(t, 1, res.Modified)
	assert.Equal(t, 1, res.Deleted)

	// Deleted note is gone, new and rewritten content is live.
	results, err := reg.Search(ctx, dir, "trucker's hitch roof rack", search.Options{Limit: 5})
	require.NoError(t, err)
	assert.True(t, hasPath(results, "reference/knots.md"))

	results, err = reg.Search(ctx, dir, "oak boards dadoes", search.Options{Limit: 10})
	require.NoError(t, err)
	assert.False(t, hasPath(results, "projects/bookshelf.md"), "deleted note must not rank")
}

func TestEmptyQuery_NoResultsNoEmbedding(t *testing.T) {
	ctx := context.Background()
	dir := seedVault(t)

	counter := &countingEmbedder{Embedder: embed.NewStaticEmbedder(64)}
	reg := newRegistry(t, counter)

	_, err := reg.Reindex(ctx, dir, true, nil)
	require.NoError(t, err)

	before := counter.queryEmbeds.Load()

	for _, q := range []string{"", "   ", "\t\n"} {
		results, err := reg.Search(ctx, dir, q, search.Options{Limit: 5})
		require.NoError(t, err, "blank query %q must not error", q)
		assert.Empty(t, results)
	}

	assert.Equal(t, before, counter.queryEmbeds.Load(),
		"blank queries must not reach the embedder")
}

func TestShortQuery_ExpandsFromNeighbors(t *testing.T) {
	ctx := context.Background()
	dir := seedVault(t)

	var lastTrace search.QueryTrace
	reg := newRegistry(t, nil, registry.WithTraceHook(func(tr search.QueryTrace) {
		lastTrace = tr
	}))

	_, err := reg.Reindex(ctx, dir, true, nil)
	require.NoError(t, err)

	// One word falls below the expansion threshold.
	results, err := reg.Search(ctx, dir, "running", search.Options{Limit: 5})
	require.NoError(t, err)
	require.NotEmpty(t, results)

	assert.True(t, lastTrace.Expanded, "single-word query should expand from neighbor terms")

	// A longer query runs as-is.
	_, err = reg.Search(ctx, dir, "what did I plan for the garden beds", search.Options{Limit: 5})
	require.NoError(t, err)
	assert.False(t, lastTrace.Expanded)
}

func TestHybridSearch_RecoversKeywordOnlyMatches(t *testing.T) {
	ctx := context.Background()
	dir := seedVault(t)

	// An identifier-style token no embedding model is trained on.
	writeNote(t, dir, "reference/router.md", `# Router settings

Admin login is on 192.168.50.1, error code WRT-5521 means the WAN
port lost its lease, power cycle fixes it.
`)

	reg := newRegistry(t, nil)
	_, err := reg.Reindex(ctx, dir, true, nil)
	require.NoError(t, err)

	results, err := reg.Search(ctx, dir, "WRT-5521", search.Options{Limit: 5, Expand: profile.ExpandOff})
	require.NoError(t, err)
	require.NotEmpty(t, results)
	assert.Equal(t, "reference/router.md", results[0].Path,
		"exact token match should rank first through the lexical side")
	assert.Positive(t, results[0].BM25Score)
}

func TestChunkDedup_CollapsesChunksOfOneNote(t *testing.T) {
	ctx := context.Background()
	dir := seedVault(t)

	// A note long enough to split into several chunks, all about one
	// distinctive topic so multiple chunks rank for the same query.
	para := "Fermentation brine ratios matter more than anything else. " +
		"Two percent salt by weight keeps kraut crisp, three percent slows " +
		"everything down for hot weather batches.\n\n"
	writeNote(t, dir, "reference/fermentation.md", "# Fermentation notes\n\n"+strings.Repeat(para, 40))

	reg := newRegistry(t, nil)
	res, err := reg.Reindex(ctx, dir, true, nil)
	require.NoError(t, err)
	assert.Greater(t, res.Rows, res.Files, "the long note must produce multiple chunks")

	// Without dedup the same note can occupy several result slots.
	raw, err := reg.Search(ctx, dir, "fermentation brine ratios", search.Options{Limit: 10, ChunkDedup: false})
	require.NoError(t, err)
	assert.GreaterOrEqual(t, pathCount(raw, "reference/fermentation.md"), 2,
		"multiple chunks of the long note should rank without dedup")

	// The default profile collapses chunks to the best-ranked one.
	opts := search.OptionsFromProfile(profile.NewResolver(nil, nil).Resolve("default"))
	opts.Limit = 10
	deduped, err := reg.Search(ctx, dir, "fermentation brine ratios", opts)
	require.NoError(t, err)
	assert.Equal(t, 1, pathCount(deduped, "reference/fermentation.md"),
		"dedup keeps only the best chunk per note")
}

func TestCrossVaultCopy_RefusesSave(t *testing.T) {
	ctx := context.Background()
	vaultA := seedVault(t)
	reg := newRegistry(t, nil)

	_, err := reg.Reindex(ctx, vaultA, true, nil)
	require.NoError(t, err)

	// Simulate copying the whole vault, index included, elsewhere.
	vaultB := t.TempDir()
	srcDir := dense.StoreDir(vaultA, "static")
	dstDir := dense.StoreDir(vaultB, "static")
	require.NoError(t, os.MkdirAll(dstDir, 0o755))
	entries, err := os.ReadDir(srcDir)
	require.NoError(t, err)
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		data, err := os.ReadFile(filepath.Join(srcDir, entry.Name()))
		require.NoError(t, err)
		require.NoError(t, os.WriteFile(filepath.Join(dstDir, entry.Name()), data, 0o644))
	}

	store, err := dense.NewStore(vaultB, "static", 64, nil)
	require.NoError(t, err)
	require.NoError(t, store.Load(), "a copied store still loads for reading")

	manifestPath := filepath.Join(dstDir, "index.json")
	before, err := os.ReadFile(manifestPath)
	require.NoError(t, err)

	// Saving under the new vault must be refused, not silently rebound.
	err = store.Save()
	require.Error(t, err)
	var te *terrors.TemoaError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, terrors.ErrCodeIndexVaultMismatch, te.Code)

	after, err := os.ReadFile(manifestPath)
	require.NoError(t, err)
	assert.Equal(t, before, after, "refused save must leave the store untouched")
}
