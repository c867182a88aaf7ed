package search

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/temoa-dev/temoa/internal/config"
	"github.com/temoa-dev/temoa/internal/dense"
	"github.com/temoa-dev/temoa/internal/embed"
	terrors "github.com/temoa-dev/temoa/internal/errors"
	"github.com/temoa-dev/temoa/internal/filter"
	"github.com/temoa-dev/temoa/internal/lexical"
	"github.com/temoa-dev/temoa/internal/profile"
)

const testDims = 64

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testMeta(path, title, content string, tags ...string) dense.Meta {
	return dense.Meta{
		Path:          path,
		Title:         title,
		Content:       content,
		Tags:          tags,
		Modified:      time.Now(),
		ContentLength: len(content),
	}
}

// newCorpusPipeline indexes metas into a throwaway vault and assembles a
// pipeline over it. Row vectors always come from a fresh static embedder
// so the corpus indexes deterministically even when the query-side
// embedder is rigged to fail; a nil embedder serves queries with the
// builder itself.
func newCorpusPipeline(t *testing.T, embedder embed.Embedder, metas []dense.Meta, mutate func(*config.SearchConfig), opts ...PipelineOption) *Pipeline {
	t.Helper()

	vault := t.TempDir()
	builder := embed.NewStaticEmbedder(testDims)

	store, err := dense.NewStore(vault, builder.ModelID(), testDims, quietLogger())
	require.NoError(t, err)

	vectors := make([][]float32, len(metas))
	docs := make([]lexical.Doc, len(metas))
	for i, m := range metas {
		text := m.Title + "\n" + m.Content
		vec, err := builder.Embed(context.Background(), text)
		require.NoError(t, err)
		vectors[i] = vec
		docs[i] = lexical.Doc{ID: i, Path: m.Path, Text: text, Tags: m.Tags}
	}
	require.NoError(t, store.Replace(vectors, metas))

	cfg := config.NewConfig().Search
	if mutate != nil {
		mutate(&cfg)
	}
	lex := lexical.Build(docs, lexical.Options{K1: cfg.BM25K1, B: cfg.BM25B, TagWeight: cfg.TagBoost})

	if embedder == nil {
		embedder = builder
	}
	return NewPipeline(store, lex, embedder, cfg, quietLogger(), opts...)
}

func resultPaths(results []Result) []string {
	paths := make([]string, len(results))
	for i, r := range results {
		paths[i] = r.Path
	}
	return paths
}

func hasResult(results []Result, path string) bool {
	for _, r := range results {
		if r.Path == path {
			return true
		}
	}
	return false
}

// countingEmbedder records how often query embedding runs.
type countingEmbedder struct {
	*embed.StaticEmbedder
	mu    sync.Mutex
	calls int
}

func newCountingEmbedder() *countingEmbedder {
	return &countingEmbedder{StaticEmbedder: embed.NewStaticEmbedder(testDims)}
}

func (e *countingEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	e.mu.Lock()
	e.calls++
	e.mu.Unlock()
	return e.StaticEmbedder.Embed(ctx, text)
}

func (e *countingEmbedder) count() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.calls
}

// failingEmbedder errors on every query embedding.
type failingEmbedder struct {
	*embed.StaticEmbedder
}

func (e *failingEmbedder) Embed(context.Context, string) ([]float32, error) {
	return nil, fmt.Errorf("model server unreachable")
}

func defaultCorpus() []dense.Meta {
	return []dense.Meta{
		testMeta("health/workout.md", "Morning Workout", "A good walk after a workout helps recovery. Stretching and hydration matter.", "health"),
		testMeta("cooking/bread.md", "Sourdough", "Sourdough starters need regular feeding with flour and water.", "cooking"),
		testMeta("projects/telescope.md", "Telescope Build", "Grinding the mirror blank for the dobsonian telescope.", "astronomy"),
		testMeta("journal/summer.md", "Summer Days", "Long evenings in the garden pruning tomatoes.", "garden"),
	}
}

func TestSearch_EmptyQueryReturnsNoResultsWithoutEmbedding(t *testing.T) {
	// Given
	embedder := newCountingEmbedder()
	p := newCorpusPipeline(t, embedder, defaultCorpus(), nil)

	// When
	results, err := p.Search(context.Background(), "   ", Options{})

	// Then: empty list, no error, and no model call
	require.NoError(t, err)
	assert.Empty(t, results)
	assert.Zero(t, embedder.count())
}

func TestSearch_HybridFindsSemanticMatch(t *testing.T) {
	// Given
	p := newCorpusPipeline(t, nil, defaultCorpus(), nil)

	// When
	results, err := p.Search(context.Background(), "workout good walk", Options{Limit: 3})

	// Then
	require.NoError(t, err)
	require.NotEmpty(t, results)
	assert.Equal(t, "health/workout.md", results[0].Path)
	assert.Equal(t, "Morning Workout", results[0].Title)
	assert.NotEmpty(t, results[0].Excerpt)
	assert.InDelta(t, 1.0, results[0].RRFScore, 1e-9)
}

func TestSearch_BM25ModeUsesOnlyKeywordRetrieval(t *testing.T) {
	// Given
	embedder := newCountingEmbedder()
	p := newCorpusPipeline(t, embedder, defaultCorpus(), nil)

	// When
	results, err := p.Search(context.Background(), "sourdough starters flour", Options{
		Limit:  3,
		Mode:   profile.ModeBM25,
		Expand: profile.ExpandOff,
	})

	// Then: no embedding ran and every hit is keyword-sourced
	require.NoError(t, err)
	require.NotEmpty(t, results)
	assert.Zero(t, embedder.count())
	for _, r := range results {
		assert.Equal(t, "bm25", r.Source)
		assert.Zero(t, r.SimilarityScore)
	}
	assert.Equal(t, "cooking/bread.md", results[0].Path)
}

func TestSearch_DenseModeUsesOnlyVectorRetrieval(t *testing.T) {
	// Given
	p := newCorpusPipeline(t, nil, defaultCorpus(), nil)

	// When
	results, err := p.Search(context.Background(), "telescope mirror", Options{
		Limit:  2,
		Mode:   profile.ModeDense,
		Expand: profile.ExpandOff,
	})

	// Then
	require.NoError(t, err)
	require.NotEmpty(t, results)
	assert.Equal(t, "projects/telescope.md", results[0].Path)
	for _, r := range results {
		assert.Equal(t, "dense", r.Source)
		assert.Zero(t, r.BM25Score)
	}
}

func TestSearch_HybridDegradesToBM25WhenEmbeddingFails(t *testing.T) {
	// Given: a query-side embedder that always fails
	embedder := &failingEmbedder{StaticEmbedder: embed.NewStaticEmbedder(testDims)}
	p := newCorpusPipeline(t, embedder, defaultCorpus(), nil)

	// When
	results, err := p.Search(context.Background(), "pruning tomatoes garden", Options{
		Limit:  3,
		Expand: profile.ExpandOff,
	})

	// Then: keyword results still answer
	require.NoError(t, err)
	require.NotEmpty(t, results)
	assert.True(t, hasResult(results, "journal/summer.md"))
	for _, r := range results {
		assert.Equal(t, "bm25", r.Source)
	}
}

func TestSearch_DenseModeSurfacesEmbeddingFailure(t *testing.T) {
	// Given
	embedder := &failingEmbedder{StaticEmbedder: embed.NewStaticEmbedder(testDims)}
	p := newCorpusPipeline(t, embedder, defaultCorpus(), nil)

	// When
	_, err := p.Search(context.Background(), "anything", Options{
		Mode:   profile.ModeDense,
		Expand: profile.ExpandOff,
	})

	// Then
	require.Error(t, err)
	assert.Equal(t, terrors.ErrCodeEmbedFailed, terrors.GetCode(err))
}

func TestSearch_QueryTimeoutReturnsTimeoutCode(t *testing.T) {
	// Given: a deadline no query can meet
	p := newCorpusPipeline(t, nil, defaultCorpus(), func(cfg *config.SearchConfig) {
		cfg.QueryTimeout = "1ns"
	})

	// When
	_, err := p.Search(context.Background(), "workout", Options{Limit: 3})

	// Then
	require.Error(t, err)
	assert.Equal(t, terrors.ErrCodeQueryTimeout, terrors.GetCode(err))
}

func TestSearch_TagFilterNarrowsResults(t *testing.T) {
	// Given
	p := newCorpusPipeline(t, nil, defaultCorpus(), nil)

	// When: an inclusive tag filter rides along
	results, err := p.Search(context.Background(), "notes about anything", Options{
		Limit:   10,
		Expand:  profile.ExpandOff,
		Filters: filter.Filters{IncludeTags: []string{"cooking"}},
	})

	// Then: only the tagged note qualifies
	require.NoError(t, err)
	require.NotEmpty(t, results)
	for _, r := range results {
		assert.Equal(t, "cooking/bread.md", r.Path)
	}
}

func TestSearch_ExcludePathFilter(t *testing.T) {
	// Given
	p := newCorpusPipeline(t, nil, defaultCorpus(), nil)

	// When
	results, err := p.Search(context.Background(), "workout walk recovery", Options{
		Limit:   10,
		Expand:  profile.ExpandOff,
		Filters: filter.Filters{ExcludePaths: []string{"health/"}},
	})

	// Then
	require.NoError(t, err)
	assert.False(t, hasResult(results, "health/workout.md"), "excluded path surfaced: %v", resultPaths(results))
}

func TestSearch_DefaultStatusHidesArchivedNotes(t *testing.T) {
	// Given: one active and one archived note on the same topic
	archived := testMeta("old/draft.md", "Draft", "Quince marmalade recipe draft.")
	archived.Status = "archived"
	metas := []dense.Meta{
		testMeta("recipes/quince.md", "Quince Marmalade", "Quince marmalade recipe, final version."),
		archived,
	}
	p := newCorpusPipeline(t, nil, metas, nil)

	// When: no status filter is sent
	results, err := p.Search(context.Background(), "quince marmalade recipe", Options{Limit: 10, Expand: profile.ExpandOff})

	// Then: only the active note answers
	require.NoError(t, err)
	require.NotEmpty(t, results)
	assert.False(t, hasResult(results, "old/draft.md"))

	// When: the archived status is requested explicitly
	results, err = p.Search(context.Background(), "quince marmalade recipe", Options{
		Limit:   10,
		Expand:  profile.ExpandOff,
		Filters: filter.Filters{Statuses: []string{"archived"}},
	})

	// Then
	require.NoError(t, err)
	assert.True(t, hasResult(results, "old/draft.md"))
	assert.False(t, hasResult(results, "recipes/quince.md"))
}

func TestSearch_ChunkDedupKeepsOneResultPerNote(t *testing.T) {
	// Given: one long note split into three chunks
	chunk := func(n int, content string) dense.Meta {
		m := testMeta("long/essay.md", "Essay", content)
		m.Chunked = true
		m.Chunk = n
		return m
	}
	metas := []dense.Meta{
		chunk(0, "Opening thoughts on fermentation and preservation."),
		chunk(1, "Fermentation of vegetables relies on lactic acid bacteria."),
		chunk(2, "Closing notes on storage temperatures."),
		testMeta("other/pickles.md", "Pickles", "Quick pickles skip fermentation entirely."),
	}
	p := newCorpusPipeline(t, nil, metas, nil)

	// When
	results, err := p.Search(context.Background(), "fermentation vegetables bacteria", Options{
		Limit:      10,
		Expand:     profile.ExpandOff,
		ChunkDedup: true,
	})

	// Then: the essay appears exactly once
	require.NoError(t, err)
	count := 0
	for _, r := range results {
		if r.Path == "long/essay.md" {
			count++
		}
	}
	assert.Equal(t, 1, count, "paths: %v", resultPaths(results))
}

func TestSearch_WithoutDedupChunksRankSeparately(t *testing.T) {
	// Given
	chunk := func(n int, content string) dense.Meta {
		m := testMeta("long/essay.md", "Essay", content)
		m.Chunked = true
		m.Chunk = n
		return m
	}
	metas := []dense.Meta{
		chunk(0, "Fermentation basics for beginners."),
		chunk(1, "Fermentation vessels and airlocks."),
	}
	p := newCorpusPipeline(t, nil, metas, nil)

	// When
	results, err := p.Search(context.Background(), "fermentation", Options{
		Limit:  10,
		Expand: profile.ExpandOff,
	})

	// Then
	require.NoError(t, err)
	count := 0
	for _, r := range results {
		if r.Path == "long/essay.md" {
			count++
		}
	}
	assert.Equal(t, 2, count)
}

// keywordReranker scores passages containing its keyword ahead of the rest.
type keywordReranker struct {
	keyword string
	up      bool
}

func (r *keywordReranker) Rerank(_ context.Context, _ string, documents []string, topK int) ([]RerankResult, error) {
	out := make([]RerankResult, 0, len(documents))
	for i, d := range documents {
		score := 0.1
		if strings.Contains(strings.ToLower(d), r.keyword) {
			score = 0.9
		}
		out = append(out, RerankResult{Index: i, Score: score})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	if topK > 0 && topK < len(out) {
		out = out[:topK]
	}
	return out, nil
}

func (r *keywordReranker) Available(context.Context) bool { return r.up }
func (r *keywordReranker) Close() error                   { return nil }

func TestSearch_RerankReordersByCrossEncoderScore(t *testing.T) {
	// Given: a reranker that prefers telescope passages
	p := newCorpusPipeline(t, nil, defaultCorpus(), nil,
		WithReranker(&keywordReranker{keyword: "telescope", up: true}))

	// When
	results, err := p.Search(context.Background(), "notes from this year", Options{
		Limit:  4,
		Expand: profile.ExpandOff,
		Rerank: true,
	})

	// Then: the preferred note leads and carries its score
	require.NoError(t, err)
	require.NotEmpty(t, results)
	assert.Equal(t, "projects/telescope.md", results[0].Path)
	require.NotNil(t, results[0].CrossEncoderScore)
	assert.InDelta(t, 0.9, *results[0].CrossEncoderScore, 1e-9)
	assert.InDelta(t, 0.9, results[0].CombinedScore, 1e-9)
}

func TestSearch_RerankSkippedWhenUnavailable(t *testing.T) {
	// Given: a configured but unreachable reranker
	p := newCorpusPipeline(t, nil, defaultCorpus(), nil,
		WithReranker(&keywordReranker{keyword: "telescope", up: false}))

	// When
	results, err := p.Search(context.Background(), "workout walk", Options{
		Limit:  4,
		Expand: profile.ExpandOff,
		Rerank: true,
	})

	// Then: fused order stands, no cross-encoder scores
	require.NoError(t, err)
	require.NotEmpty(t, results)
	assert.Equal(t, "health/workout.md", results[0].Path)
	for _, r := range results {
		assert.Nil(t, r.CrossEncoderScore)
	}
}

// erroringReranker is reachable but fails every call.
type erroringReranker struct{}

func (erroringReranker) Rerank(context.Context, string, []string, int) ([]RerankResult, error) {
	return nil, fmt.Errorf("rerank service misbehaved")
}
func (erroringReranker) Available(context.Context) bool { return true }
func (erroringReranker) Close() error                   { return nil }

func TestSearch_RerankFailureKeepsFusedOrder(t *testing.T) {
	// Given
	p := newCorpusPipeline(t, nil, defaultCorpus(), nil, WithReranker(erroringReranker{}))

	// When
	results, err := p.Search(context.Background(), "sourdough flour", Options{
		Limit:  4,
		Expand: profile.ExpandOff,
		Rerank: true,
	})

	// Then: the failure degrades to the fused order
	require.NoError(t, err)
	require.NotEmpty(t, results)
	assert.Equal(t, "cooking/bread.md", results[0].Path)
	for _, r := range results {
		assert.Nil(t, r.CrossEncoderScore)
	}
}

func TestSearch_TimeBoostPrefersRecentNotes(t *testing.T) {
	// Given: two notes with the same body, the older one indexed first so
	// it outranks the fresh one before boosting
	old := testMeta("archive/standup.md", "Standup Notes", "Weekly standup notes about the migration project.")
	old.Modified = time.Now().AddDate(-1, 0, 0)
	fresh := testMeta("current/standup.md", "Standup Notes", "Weekly standup notes about the migration project.")
	fresh.Modified = time.Now()

	p := newCorpusPipeline(t, nil, []dense.Meta{old, fresh}, nil)

	// When: boosting with a short half-life
	results, err := p.Search(context.Background(), "standup migration notes", Options{
		Limit:        5,
		Expand:       profile.ExpandOff,
		TimeBoost:    true,
		HalfLifeDays: 30,
	})

	// Then: recency overcomes the small rank edge
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "current/standup.md", results[0].Path)
	assert.Greater(t, results[0].CombinedScore, results[1].CombinedScore)
}

func TestSearch_TimeBoostReadsFreshMtimeFromDisk(t *testing.T) {
	// Given: two equally stale rows, but one file was edited on disk
	// after indexing. Row order favors the untouched note.
	other := testMeta("notes/steady.md", "Steady", "Ideas revived after a long pause.")
	other.Modified = time.Now().AddDate(-2, 0, 0)
	stale := testMeta("notes/revived.md", "Revived", "Ideas revived after a long pause.")
	stale.Modified = time.Now().AddDate(-2, 0, 0)

	p := newCorpusPipeline(t, nil, []dense.Meta{other, stale}, nil)

	full := filepath.Join(p.VaultPath(), "notes", "revived.md")
	require.NoError(t, os.MkdirAll(filepath.Dir(full), 0o755))
	require.NoError(t, os.WriteFile(full, []byte("Ideas revived after a long pause."), 0o644))

	// When
	results, err := p.Search(context.Background(), "revived ideas pause", Options{
		Limit:        5,
		Expand:       profile.ExpandOff,
		TimeBoost:    true,
		HalfLifeDays: 30,
	})

	// Then: the on-disk mtime wins over the stale indexed one
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "notes/revived.md", results[0].Path)
}

func TestSearch_LimitTruncatesResults(t *testing.T) {
	// Given: more matching notes than the limit
	metas := make([]dense.Meta, 0, 6)
	for i := 0; i < 6; i++ {
		metas = append(metas, testMeta(
			fmt.Sprintf("inbox/note-%d.md", i),
			fmt.Sprintf("Note %d", i),
			"Recurring topic about beekeeping and hive inspections.",
		))
	}
	p := newCorpusPipeline(t, nil, metas, nil)

	// When
	results, err := p.Search(context.Background(), "beekeeping hive", Options{Limit: 3, Expand: profile.ExpandOff})

	// Then
	require.NoError(t, err)
	assert.Len(t, results, 3)
}

func TestSearch_DefaultLimitComesFromConfig(t *testing.T) {
	// Given
	metas := make([]dense.Meta, 0, 5)
	for i := 0; i < 5; i++ {
		metas = append(metas, testMeta(
			fmt.Sprintf("inbox/note-%d.md", i),
			fmt.Sprintf("Note %d", i),
			"Recurring topic about beekeeping and hive inspections.",
		))
	}
	p := newCorpusPipeline(t, nil, metas, func(cfg *config.SearchConfig) {
		cfg.DefaultLimit = 2
	})

	// When: no limit in the request
	results, err := p.Search(context.Background(), "beekeeping hive", Options{Expand: profile.ExpandOff})

	// Then
	require.NoError(t, err)
	assert.Len(t, results, 2)
}

func TestSearch_TraceHookObservesQuery(t *testing.T) {
	// Given
	var mu sync.Mutex
	var traces []QueryTrace
	p := newCorpusPipeline(t, nil, defaultCorpus(), nil, WithTraceHook(func(tr QueryTrace) {
		mu.Lock()
		traces = append(traces, tr)
		mu.Unlock()
	}))

	// When
	_, err := p.Search(context.Background(), "workout walk", Options{
		Limit:   3,
		Profile: "default",
		Expand:  profile.ExpandOff,
	})

	// Then
	require.NoError(t, err)
	mu.Lock()
	defer mu.Unlock()
	require.Len(t, traces, 1)
	tr := traces[0]
	assert.Equal(t, "workout walk", tr.Query)
	assert.Equal(t, "default", tr.Profile)
	assert.Equal(t, profile.ModeHybrid, tr.Mode)
	assert.False(t, tr.Expanded)
	assert.Positive(t, tr.Results)
	assert.GreaterOrEqual(t, tr.Candidates, tr.Results)
	assert.Positive(t, tr.Latency)
}

func TestStats_SummarizesCorpus(t *testing.T) {
	// Given: two notes, one of them chunked, with overlapping tags
	chunkA := testMeta("essays/long.md", "Long Essay", "Part one.", "Writing", "drafts")
	chunkA.Chunked = true
	chunkA.Chunk = 0
	chunkB := testMeta("essays/long.md", "Long Essay", "Part two.", "Writing", "drafts")
	chunkB.Chunked = true
	chunkB.Chunk = 1
	metas := []dense.Meta{
		chunkA,
		chunkB,
		testMeta("inbox/quick.md", "Quick", "A quick thought.", "writing"),
	}
	p := newCorpusPipeline(t, nil, metas, nil)

	// When
	stats := p.Stats()

	// Then: files count paths once, tags fold case
	assert.Equal(t, 2, stats.FileCount)
	assert.Equal(t, 3, stats.EmbeddingCount)
	assert.Equal(t, 2, stats.TagCount)
	assert.Equal(t, 2, stats.DirectoryCount)
	assert.Equal(t, "static", stats.ModelID)
	assert.Equal(t, testDims, stats.Dimension)
}

func TestOptionsFromProfile_MapsEveryField(t *testing.T) {
	p := profile.Profile{
		ID:           "recent",
		Mode:         profile.ModeHybrid,
		Rerank:       false,
		Chunking:     true,
		HalfLifeDays: 14,
		Expand:       profile.ExpandAuto,
		Limit:        20,
	}

	opts := OptionsFromProfile(p)

	assert.Equal(t, 20, opts.Limit)
	assert.Equal(t, "recent", opts.Profile)
	assert.Equal(t, profile.ModeHybrid, opts.Mode)
	assert.Equal(t, profile.ExpandAuto, opts.Expand)
	assert.False(t, opts.Rerank)
	assert.True(t, opts.TimeBoost)
	assert.Equal(t, 14, opts.HalfLifeDays)
	assert.True(t, opts.ChunkDedup)
}

func TestBuildExcerpt(t *testing.T) {
	// Short content passes through untouched.
	assert.Equal(t, "short note", buildExcerpt("  short note  "))

	// Long content is cut back to a word boundary and marked.
	long := strings.Repeat("hexagonal ", 60)
	got := buildExcerpt(long)
	assert.LessOrEqual(t, len([]rune(got)), excerptRunes+1)
	assert.True(t, strings.HasSuffix(got, "hexagonal…"), "got tail %q", got[len(got)-20:])
}

func TestSanitizeScore(t *testing.T) {
	assert.Equal(t, 0.5, sanitizeScore(0.5))
	assert.Zero(t, sanitizeScore(math.NaN()))
	assert.Zero(t, sanitizeScore(math.Inf(1)))
	assert.Zero(t, sanitizeScore(math.Inf(-1)))
}
