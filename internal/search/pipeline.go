package search

import (
	"context"
	stderrors "errors"
	"log/slog"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/temoa-dev/temoa/internal/config"
	"github.com/temoa-dev/temoa/internal/dense"
	"github.com/temoa-dev/temoa/internal/embed"
	terrors "github.com/temoa-dev/temoa/internal/errors"
	"github.com/temoa-dev/temoa/internal/filter"
	"github.com/temoa-dev/temoa/internal/lexical"
	"github.com/temoa-dev/temoa/internal/profile"
)

// Pipeline executes queries against one indexed vault. It holds a
// snapshot of the index metadata taken at construction; the registry
// rebuilds the pipeline after a reindex, so the snapshot never goes
// stale mid-query.
type Pipeline struct {
	vaultPath  string
	vaultCanon string
	store      *dense.Store
	lex        *lexical.Index
	metas      []dense.Meta
	embedder   embed.Embedder
	reranker   Reranker
	cfg        config.SearchConfig
	logger     *slog.Logger
	trace      func(QueryTrace)
	stop       map[string]struct{}
}

// PipelineOption configures optional pipeline collaborators.
type PipelineOption func(*Pipeline)

// WithReranker attaches a cross-encoder reranker. Without one the
// re-ranking stage is skipped and results keep their fused order.
func WithReranker(r Reranker) PipelineOption {
	return func(p *Pipeline) { p.reranker = r }
}

// WithTraceHook registers a callback invoked once per completed query,
// used to feed telemetry without coupling the pipeline to its sink.
func WithTraceHook(fn func(QueryTrace)) PipelineOption {
	return func(p *Pipeline) { p.trace = fn }
}

// NewPipeline assembles a query pipeline over a loaded store and its
// lexical index.
func NewPipeline(store *dense.Store, lex *lexical.Index, embedder embed.Embedder, cfg config.SearchConfig, logger *slog.Logger, opts ...PipelineOption) *Pipeline {
	if logger == nil {
		logger = slog.Default()
	}
	p := &Pipeline{
		vaultPath: filepath.Clean(store.VaultPath()),
		store:     store,
		lex:       lex,
		metas:     store.Metas(),
		embedder:  embedder,
		cfg:       cfg,
		logger:    logger,
		stop:      lexical.BuildStopWordSet(lexical.DefaultStopWords),
	}
	if canon, err := filepath.EvalSymlinks(p.vaultPath); err == nil {
		p.vaultCanon = canon
	} else {
		p.vaultCanon = p.vaultPath
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// VaultPath returns the absolute vault root this pipeline serves.
func (p *Pipeline) VaultPath() string { return p.vaultPath }

// Search runs the full query pipeline and returns at most opts.Limit
// results. The whole query runs under the configured deadline; hitting
// it returns a query-timeout error.
func (p *Pipeline) Search(ctx context.Context, query string, opts Options) ([]Result, error) {
	start := time.Now()

	// An empty query matches nothing: no error, and no model call.
	query = strings.TrimSpace(query)
	if query == "" {
		return []Result{}, nil
	}
	opts = p.normalize(opts)

	if deadline := p.cfg.QueryTimeoutDuration(); deadline > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, deadline)
		defer cancel()
	}

	searchQuery := query
	expanded := false
	if shouldExpand(opts.Expand, query) {
		if e := p.expandQuery(ctx, query); e != query {
			searchQuery = e
			expanded = true
		}
	}

	allowed := opts.Filters.AllowedPaths(p.metas)

	k := p.cfg.MinCandidates
	if k <= 0 {
		k = 100
	}
	if opts.Limit > k {
		k = opts.Limit
	}

	denseHits, bm25Hits, err := p.retrieve(ctx, searchQuery, opts.Mode, k, allowed)
	if err != nil {
		return nil, err
	}
	if ctx.Err() != nil {
		return nil, p.asRetrievalError(ctx, ctx.Err())
	}

	entries := fuse(denseHits, bm25Hits, p.cfg.RRFConstant)
	fusedCount := len(entries)

	entries = p.filterCandidates(entries, opts.Filters)

	if opts.ChunkDedup {
		entries = dedupeChunks(entries, p.metas)
	}

	reranked := false
	if opts.Rerank && p.reranker != nil && len(entries) > 1 {
		entries, reranked = p.rerankCandidates(ctx, query, entries)
	}

	boosted := opts.TimeBoost && opts.HalfLifeDays > 0 && p.cfg.TimeBoost.Enabled
	if boosted {
		p.applyTimeBoost(entries, opts.HalfLifeDays, time.Now())
		sort.SliceStable(entries, func(i, j int) bool {
			return entries[i].finalScore > entries[j].finalScore
		})
	} else {
		for _, c := range entries {
			c.finalScore = c.orderingScore()
		}
	}

	if len(entries) > opts.Limit {
		entries = entries[:opts.Limit]
	}

	results := p.buildResults(entries)
	latency := time.Since(start)

	if p.trace != nil {
		p.trace(QueryTrace{
			Query:      query,
			Profile:    opts.Profile,
			Mode:       opts.Mode,
			Expanded:   expanded,
			Reranked:   reranked,
			Boosted:    boosted,
			Candidates: fusedCount,
			Results:    len(results),
			Latency:    latency,
		})
	}
	p.logger.Debug("search_done",
		slog.String("query", query),
		slog.String("profile", opts.Profile),
		slog.String("mode", string(opts.Mode)),
		slog.Bool("expanded", expanded),
		slog.Bool("reranked", reranked),
		slog.Int("candidates", fusedCount),
		slog.Int("results", len(results)),
		slog.Duration("latency", latency))

	return results, nil
}

// normalize fills option defaults from the search configuration.
func (p *Pipeline) normalize(opts Options) Options {
	if opts.Limit <= 0 {
		opts.Limit = p.cfg.DefaultLimit
	}
	if opts.Limit <= 0 {
		opts.Limit = 10
	}
	if opts.Mode == "" {
		opts.Mode = profile.Mode(p.cfg.Mode)
	}
	if opts.Mode == "" {
		opts.Mode = profile.ModeHybrid
	}
	if opts.Expand == "" {
		opts.Expand = profile.Expand(p.cfg.Expand)
	}
	if opts.Expand == "" {
		opts.Expand = profile.ExpandAuto
	}
	if opts.TimeBoost && opts.HalfLifeDays <= 0 {
		opts.HalfLifeDays = p.cfg.TimeBoost.HalfLifeDays
	}
	return opts
}

// retrieve runs the primary retrieval stage. Hybrid mode queries both
// sources concurrently; a dense failure degrades to BM25-only results
// with a warning rather than failing the query, since the lexical index
// is in-memory and always answers.
func (p *Pipeline) retrieve(ctx context.Context, query string, mode profile.Mode, k int, allowed map[string]bool) ([]dense.Hit, []lexical.Hit, error) {
	switch mode {
	case profile.ModeBM25:
		return nil, p.lex.Search(query, k, allowed), nil

	case profile.ModeDense:
		hits, err := p.denseSearch(ctx, query, k, allowed)
		if err != nil {
			return nil, nil, p.asRetrievalError(ctx, err)
		}
		return hits, nil, nil

	default:
		g, gctx := errgroup.WithContext(ctx)

		var (
			denseHits []dense.Hit
			denseErr  error
			bm25Hits  []lexical.Hit
		)
		g.Go(func() error {
			denseHits, denseErr = p.denseSearch(gctx, query, k, allowed)
			return nil
		})
		g.Go(func() error {
			bm25Hits = p.lex.Search(query, k, allowed)
			return nil
		})
		_ = g.Wait()

		if denseErr != nil {
			if stderrors.Is(denseErr, context.DeadlineExceeded) || ctx.Err() != nil {
				return nil, nil, p.asRetrievalError(ctx, denseErr)
			}
			p.logger.Warn("dense_retrieval_degraded",
				slog.String("query", query),
				slog.Any("error", denseErr))
			denseHits = nil
		}
		return denseHits, bm25Hits, nil
	}
}

// denseSearch embeds the query and scans the vector store.
func (p *Pipeline) denseSearch(ctx context.Context, query string, k int, allowed map[string]bool) ([]dense.Hit, error) {
	vec, err := p.embedder.Embed(ctx, query)
	if err != nil {
		return nil, terrors.New(terrors.ErrCodeEmbedFailed, "query embedding failed", err)
	}
	return p.store.Search(vec, k, allowed)
}

// asRetrievalError classifies a retrieval failure: deadline overruns
// become query-timeout errors, cancellation propagates untouched, and
// structured errors keep their code.
func (p *Pipeline) asRetrievalError(ctx context.Context, err error) error {
	if stderrors.Is(err, context.DeadlineExceeded) || stderrors.Is(ctx.Err(), context.DeadlineExceeded) {
		return terrors.New(terrors.ErrCodeQueryTimeout, "query deadline exceeded", err)
	}
	if stderrors.Is(err, context.Canceled) {
		return err
	}
	var te *terrors.TemoaError
	if stderrors.As(err, &te) {
		return err
	}
	return terrors.New(terrors.ErrCodeRetrievalFailed, "retrieval failed", err)
}

// filterCandidates applies the post-retrieval result filters against
// indexed metadata. No file is re-read here.
func (p *Pipeline) filterCandidates(entries []*candidate, f filter.Filters) []*candidate {
	kept := entries[:0]
	for _, c := range entries {
		if c.row < 0 || c.row >= len(p.metas) {
			continue
		}
		if f.Matches(p.metas[c.row]) {
			kept = append(kept, c)
		}
	}
	return kept
}

// dedupeChunks keeps the best-scoring chunk per document. Entries
// arrive sorted, so the first occurrence of a path wins.
func dedupeChunks(entries []*candidate, metas []dense.Meta) []*candidate {
	seen := make(map[string]struct{}, len(entries))
	kept := entries[:0]
	for _, c := range entries {
		p := metas[c.row].Path
		if _, dup := seen[p]; dup {
			continue
		}
		seen[p] = struct{}{}
		kept = append(kept, c)
	}
	return kept
}

// rerankCandidates scores the head of the candidate list with the
// cross-encoder and reorders it by relevance. Candidates without
// passage text keep their place behind the scored head. Any failure or
// timeout leaves the incoming order untouched.
func (p *Pipeline) rerankCandidates(ctx context.Context, query string, entries []*candidate) ([]*candidate, bool) {
	depth := p.cfg.RerankDepth
	if depth <= 0 || depth > 100 {
		depth = 100
	}
	if depth > len(entries) {
		depth = len(entries)
	}

	rctx, cancel := context.WithTimeout(ctx, p.cfg.RerankTimeoutDuration())
	defer cancel()

	if !p.reranker.Available(rctx) {
		p.logger.Debug("rerank_skipped", slog.String("reason", "reranker unavailable"))
		return entries, false
	}

	head := entries[:depth]
	tail := entries[depth:]

	valid := make([]*candidate, 0, len(head))
	passages := make([]string, 0, len(head))
	var skipped []*candidate
	for _, c := range head {
		var text string
		if c.row >= 0 && c.row < len(p.metas) {
			text = p.metas[c.row].Content
		}
		if strings.TrimSpace(text) == "" {
			skipped = append(skipped, c)
			continue
		}
		valid = append(valid, c)
		passages = append(passages, text)
	}
	if len(valid) < 2 {
		return entries, false
	}

	scored, err := p.reranker.Rerank(rctx, query, passages, 0)
	if err != nil {
		p.logger.Warn("rerank_skipped", slog.Any("error", err))
		return entries, false
	}

	out := make([]*candidate, 0, len(entries))
	taken := make(map[int]struct{}, len(scored))
	for _, rr := range scored {
		if rr.Index < 0 || rr.Index >= len(valid) {
			continue
		}
		if _, dup := taken[rr.Index]; dup {
			continue
		}
		taken[rr.Index] = struct{}{}
		c := valid[rr.Index]
		c.ceScore = rr.Score
		c.reranked = true
		out = append(out, c)
	}
	if len(out) == 0 {
		return entries, false
	}
	for i, c := range valid {
		if _, ok := taken[i]; !ok {
			out = append(out, c)
		}
	}
	out = append(out, skipped...)
	out = append(out, tail...)
	return out, true
}

// buildResults converts candidates to serializable results.
func (p *Pipeline) buildResults(entries []*candidate) []Result {
	results := make([]Result, 0, len(entries))
	for _, c := range entries {
		if c.row < 0 || c.row >= len(p.metas) {
			continue
		}
		m := p.metas[c.row]
		r := Result{
			Path:            m.Path,
			Title:           m.Title,
			Excerpt:         buildExcerpt(m.Content),
			Frontmatter:     m.Frontmatter,
			Tags:            m.Tags,
			SimilarityScore: sanitizeScore(c.simScore),
			BM25Score:       sanitizeScore(c.bm25Score),
			RRFScore:        sanitizeScore(c.rrfScore),
			CombinedScore:   sanitizeScore(c.finalScore),
			Source:          c.source(),
		}
		if c.reranked {
			ce := sanitizeScore(c.ceScore)
			r.CrossEncoderScore = &ce
		}
		results = append(results, r)
	}
	return results
}

// Stats summarizes the indexed corpus for the stats endpoint.
func (p *Pipeline) Stats() Stats {
	man := p.store.Manifest()

	paths := make(map[string]struct{})
	tags := make(map[string]struct{})
	dirs := make(map[string]struct{})
	for _, m := range p.metas {
		if _, ok := paths[m.Path]; !ok {
			paths[m.Path] = struct{}{}
			dirs[path.Dir(m.Path)] = struct{}{}
		}
		for _, t := range m.Tags {
			tags[strings.ToLower(t)] = struct{}{}
		}
	}

	return Stats{
		FileCount:      len(paths),
		EmbeddingCount: len(p.metas),
		TagCount:       len(tags),
		DirectoryCount: len(dirs),
		ModelID:        p.store.ModelID(),
		Dimension:      p.store.Dim(),
		CreatedAt:      man.CreatedAt,
	}
}
