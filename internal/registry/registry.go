// Package registry caches one assembled search pipeline per vault so
// repeated requests skip store loading, lexical index construction, and
// model warmup. A reindex rebuilds into a fresh store and swaps the new
// pipeline in atomically; searches started earlier keep reading the
// prior index until they finish.
package registry

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/temoa-dev/temoa/internal/chunk"
	"github.com/temoa-dev/temoa/internal/config"
	"github.com/temoa-dev/temoa/internal/dense"
	"github.com/temoa-dev/temoa/internal/embed"
	terrors "github.com/temoa-dev/temoa/internal/errors"
	"github.com/temoa-dev/temoa/internal/indexer"
	"github.com/temoa-dev/temoa/internal/lexical"
	"github.com/temoa-dev/temoa/internal/search"
	"github.com/temoa-dev/temoa/internal/vault"
)

// DefaultCapacity is the number of vault pipelines kept in memory when
// the configuration does not set one.
const DefaultCapacity = 3

// keySep joins vault path and model id into a cache key. NUL cannot
// appear in either part.
const keySep = "\x00"

// Registry is an LRU cache of per-vault search pipelines keyed by
// (absolute vault path, embedding model id). Evicted entries are simply
// dropped; their memory is reclaimed once in-flight requests finish.
type Registry struct {
	cfg      *config.Config
	embedder embed.Embedder
	reranker search.Reranker
	trace    func(search.QueryTrace)
	logger   *slog.Logger

	// mu serializes lookup-and-insert so two concurrent first requests
	// for the same vault load its store once.
	mu    sync.Mutex
	cache *lru.Cache[string, *entry]
}

// entry is one cached vault. The RWMutex guards the pipeline pointer:
// searches hold it shared for their whole run and a finished reindex
// takes it exclusively for the swap, so a query never observes a
// half-replaced index. The reader persists across reindexes, keeping
// its per-file parse cache warm through watch-mode cycles.
type entry struct {
	vaultPath string
	reader    *vault.Reader
	chunker   *chunk.Chunker

	reindexing atomic.Bool

	mu       sync.RWMutex
	store    *dense.Store
	pipeline *search.Pipeline
	loadErr  error
}

// Option configures optional registry collaborators.
type Option func(*Registry)

// WithReranker attaches a cross-encoder to every pipeline the registry
// assembles.
func WithReranker(r search.Reranker) Option {
	return func(reg *Registry) { reg.reranker = r }
}

// WithTraceHook registers the telemetry callback passed to every
// assembled pipeline.
func WithTraceHook(fn func(search.QueryTrace)) Option {
	return func(reg *Registry) { reg.trace = fn }
}

// New creates a registry with capacity cfg.Registry.Capacity.
func New(cfg *config.Config, embedder embed.Embedder, logger *slog.Logger, opts ...Option) (*Registry, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	if embedder == nil {
		return nil, fmt.Errorf("embedder is required")
	}
	if logger == nil {
		logger = slog.Default()
	}

	reg := &Registry{
		cfg:      cfg,
		embedder: embedder,
		logger:   logger,
	}
	for _, opt := range opts {
		opt(reg)
	}

	capacity := cfg.Registry.Capacity
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	cache, err := lru.NewWithEvict(capacity, func(key string, _ *entry) {
		vaultPath, _, _ := strings.Cut(key, keySep)
		logger.Info("registry_evict", slog.String("vault", vaultPath))
	})
	if err != nil {
		return nil, err
	}
	reg.cache = cache
	return reg, nil
}

// Search runs a query against the vault's cached pipeline, assembling
// one from the on-disk store on first use. A store that failed to load
// keeps failing here until a reindex repairs it.
func (r *Registry) Search(ctx context.Context, vaultPath, query string, opts search.Options) ([]search.Result, error) {
	e, err := r.entryFor(ctx, vaultPath)
	if err != nil {
		return nil, err
	}

	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.loadErr != nil {
		return nil, e.loadErr
	}
	return e.pipeline.Search(ctx, query, opts)
}

// Stats reports the indexed corpus behind the vault's pipeline.
func (r *Registry) Stats(ctx context.Context, vaultPath string) (search.Stats, error) {
	e, err := r.entryFor(ctx, vaultPath)
	if err != nil {
		return search.Stats{}, err
	}

	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.loadErr != nil {
		return search.Stats{}, e.loadErr
	}
	return e.pipeline.Stats(), nil
}

// Reindex refreshes the vault's index and swaps the rebuilt pipeline
// in. The build runs against a fresh store instance, so searches keep
// reading the prior index until the swap. Only one reindex per vault
// runs at a time; a concurrent second call fails with an index-locked
// error instead of queueing.
func (r *Registry) Reindex(ctx context.Context, vaultPath string, force bool, progress indexer.ProgressFunc) (*indexer.Result, error) {
	e, err := r.entryFor(ctx, vaultPath)
	if err != nil {
		return nil, err
	}

	if !e.reindexing.CompareAndSwap(false, true) {
		return nil, terrors.New(terrors.ErrCodeIndexLocked,
			"a reindex for this vault is already running", nil).
			WithDetail("vault", e.vaultPath).
			WithSuggestion("wait for the running reindex to finish")
	}
	defer e.reindexing.Store(false)

	store, err := dense.NewStore(e.vaultPath, r.embedder.ModelID(), r.embedder.Dimensions(), r.logger)
	if err != nil {
		return nil, err
	}
	ix, err := indexer.New(indexer.Deps{
		Reader:    e.reader,
		Chunker:   e.chunker,
		Embedder:  r.embedder,
		Store:     store,
		Logger:    r.logger,
		Progress:  progress,
		BatchSize: r.cfg.Embedding.BatchSize,
	})
	if err != nil {
		return nil, err
	}
	res, err := ix.Run(ctx, force)
	if err != nil {
		return nil, err
	}
	r.maybeEnableANN(store)

	pipeline := r.assemblePipeline(store)
	e.mu.Lock()
	e.store = store
	e.pipeline = pipeline
	e.loadErr = nil
	e.mu.Unlock()
	return res, nil
}

// CachedVaults returns the vault paths currently cached, least recently
// used first.
func (r *Registry) CachedVaults() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	keys := r.cache.Keys()
	cached := make([]string, 0, len(keys))
	for _, key := range keys {
		vaultPath, _, _ := strings.Cut(key, keySep)
		cached = append(cached, vaultPath)
	}
	return cached
}

// Len returns the number of cached vault pipelines.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.cache.Len()
}

// Close drops every cached pipeline.
func (r *Registry) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cache.Purge()
}

// entryFor returns the cached entry for the vault, assembling one on a
// miss. Inserting at capacity evicts the least recently used vault.
func (r *Registry) entryFor(ctx context.Context, vaultPath string) (*entry, error) {
	abs, err := resolveVaultPath(vaultPath)
	if err != nil {
		return nil, err
	}
	key := abs + keySep + r.embedder.ModelID()

	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok := r.cache.Get(key); ok {
		return e, nil
	}
	e := r.assemble(ctx, abs)
	r.cache.Add(key, e)
	return e, nil
}

// assemble loads the vault's store from disk and builds its pipeline.
// A failed load is retained on the entry so searches surface it; the
// entry itself is still usable, since reindexing repairs the store and
// clears the error.
func (r *Registry) assemble(ctx context.Context, vaultPath string) *entry {
	e := &entry{
		vaultPath: vaultPath,
		reader:    vault.NewReader(vaultPath, r.cfg.Excludes, r.logger),
		chunker:   chunk.New(chunkOptions(r.cfg.Chunking)),
	}

	store, err := dense.NewStore(vaultPath, r.embedder.ModelID(), r.embedder.Dimensions(), r.logger)
	if err == nil {
		err = store.Load()
	}
	if err != nil {
		r.logger.Warn("registry_load_failed",
			slog.String("vault", vaultPath),
			slog.String("code", terrors.GetCode(err)),
			slog.Any("error", err))
		e.loadErr = err
		return e
	}

	if store.Len() == 0 {
		r.logger.Warn("vault_index_missing",
			slog.String("vault", vaultPath),
			slog.String("model", r.embedder.ModelID()))
	} else {
		r.warm(ctx)
		r.maybeEnableANN(store)
	}

	e.store = store
	e.pipeline = r.assemblePipeline(store)
	return e
}

// maybeEnableANN builds the HNSW accelerator over the loaded matrix when
// configured. Exact scan stays the default; graph build failures only
// cost the speedup.
func (r *Registry) maybeEnableANN(store *dense.Store) {
	if !r.cfg.Search.ANN.Enabled || store.Len() == 0 {
		return
	}
	if err := store.EnableANN(dense.ANNConfig{
		M:        r.cfg.Search.ANN.M,
		EfSearch: r.cfg.Search.ANN.EfSearch,
	}); err != nil {
		r.logger.Warn("ann_build_failed",
			slog.String("vault", store.VaultPath()),
			slog.Any("error", err))
	}
}

// warm runs one throwaway embedding so the first real query does not
// pay the model cold-start. Failures are logged, not returned; the
// query path reports its own embedding errors.
func (r *Registry) warm(ctx context.Context) {
	start := time.Now()
	if _, err := r.embedder.Embed(ctx, "warmup"); err != nil {
		r.logger.Warn("embedder_warmup_failed",
			slog.String("model", r.embedder.ModelID()),
			slog.Any("error", err))
		return
	}
	r.logger.Debug("embedder_warm",
		slog.String("model", r.embedder.ModelID()),
		slog.Duration("took", time.Since(start)))
}

// assemblePipeline builds a lexical index over the stored metadata and
// wires the query pipeline around it. The lexical side is rebuilt whole
// on every (re)index; BM25 construction is cheap next to embedding.
func (r *Registry) assemblePipeline(store *dense.Store) *search.Pipeline {
	metas := store.Metas()
	docs := make([]lexical.Doc, len(metas))
	for i, m := range metas {
		text := m.Content
		if m.Title != "" {
			text = m.Title + "\n" + m.Content
		}
		docs[i] = lexical.Doc{ID: i, Path: m.Path, Text: text, Tags: m.Tags}
	}
	lex := lexical.Build(docs, lexical.Options{
		K1:        r.cfg.Search.BM25K1,
		B:         r.cfg.Search.BM25B,
		TagWeight: r.cfg.Search.TagBoost,
	})

	opts := make([]search.PipelineOption, 0, 2)
	if r.reranker != nil {
		opts = append(opts, search.WithReranker(r.reranker))
	}
	if r.trace != nil {
		opts = append(opts, search.WithTraceHook(r.trace))
	}
	return search.NewPipeline(store, lex, r.embedder, r.cfg.Search, r.logger, opts...)
}

func chunkOptions(cfg config.ChunkingConfig) chunk.Options {
	return chunk.Options{
		Enabled:   cfg.Enabled,
		Threshold: cfg.Threshold,
		Size:      cfg.Size,
		Overlap:   cfg.Overlap,
	}
}

func resolveVaultPath(vaultPath string) (string, error) {
	if strings.TrimSpace(vaultPath) == "" {
		return "", terrors.New(terrors.ErrCodeInvalidParam, "vault path must not be empty", nil)
	}
	abs, err := config.ExpandPath(vaultPath)
	if err != nil {
		return "", terrors.New(terrors.ErrCodeInvalidParam,
			fmt.Sprintf("cannot resolve vault path %q", vaultPath), err)
	}
	return abs, nil
}
