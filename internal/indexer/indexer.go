// Package indexer builds and refreshes the persistent index for one
// vault: read documents, chunk long bodies, embed every unit, and merge
// the rows into the dense store. Full builds replace the matrix;
// incremental builds re-embed only changed files and splice them in,
// keeping row positions and file tracking consistent.
package indexer

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/temoa-dev/temoa/internal/chunk"
	"github.com/temoa-dev/temoa/internal/dense"
	"github.com/temoa-dev/temoa/internal/embed"
	terrors "github.com/temoa-dev/temoa/internal/errors"
	"github.com/temoa-dev/temoa/internal/vault"
)

// Stage identifies one phase of an indexing run, in execution order.
type Stage string

const (
	StageScan  Stage = "scan"
	StageChunk Stage = "chunk"
	StageEmbed Stage = "embed"
	StageSave  Stage = "save"
)

// Progress is one progress report. Total is zero while unknown.
type Progress struct {
	Stage   Stage
	Current int
	Total   int
	Path    string
	Message string
}

// ProgressFunc receives progress reports during a run. Callbacks run on
// the indexing goroutine and must not block.
type ProgressFunc func(Progress)

// Deps are the collaborators an Indexer needs.
type Deps struct {
	Reader   *vault.Reader
	Chunker  *chunk.Chunker
	Embedder embed.Embedder
	Store    *dense.Store
	Logger   *slog.Logger
	Progress ProgressFunc
	// BatchSize is texts per embedding request. Zero uses the embed
	// package default.
	BatchSize int
}

// Result summarizes one indexing run. New, Modified, and Deleted count
// files; Rows is the number of embeddings in the store afterwards.
type Result struct {
	Full      bool
	Files     int
	New       int
	Modified  int
	Deleted   int
	Unchanged int
	Rows      int
	Duration  time.Duration
}

// Indexer runs full and incremental builds for one (vault, model) store.
type Indexer struct {
	reader    *vault.Reader
	chunker   *chunk.Chunker
	embedder  embed.Embedder
	store     *dense.Store
	logger    *slog.Logger
	progress  ProgressFunc
	batchSize int
}

// New creates an Indexer, validating required dependencies.
func New(deps Deps) (*Indexer, error) {
	if deps.Reader == nil {
		return nil, fmt.Errorf("vault reader is required")
	}
	if deps.Embedder == nil {
		return nil, fmt.Errorf("embedder is required")
	}
	if deps.Store == nil {
		return nil, fmt.Errorf("store is required")
	}
	if deps.Chunker == nil {
		deps.Chunker = chunk.New(chunk.DefaultOptions())
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Progress == nil {
		deps.Progress = func(Progress) {}
	}
	batch := deps.BatchSize
	if batch <= 0 {
		batch = embed.DefaultBatchSize
	}
	if batch > embed.MaxBatchSize {
		batch = embed.MaxBatchSize
	}
	return &Indexer{
		reader:    deps.Reader,
		chunker:   deps.Chunker,
		embedder:  deps.Embedder,
		store:     deps.Store,
		logger:    deps.Logger,
		progress:  deps.Progress,
		batchSize: batch,
	}, nil
}

// Run executes one indexing pass. force always rebuilds from scratch;
// otherwise the existing store is loaded and merged incrementally,
// falling back to a full build when the store is missing, built by a
// different model, or fails its invariants. The store directory is
// flock-guarded for the duration, so a concurrent run fails fast with
// an index-locked error.
func (ix *Indexer) Run(ctx context.Context, force bool) (*Result, error) {
	start := time.Now()

	lock := dense.NewIndexLock(ix.store.Dir())
	if err := lock.Acquire(); err != nil {
		return nil, err
	}
	defer func() { _ = lock.Release() }()

	ix.progress(Progress{Stage: StageScan, Message: "Reading vault " + ix.reader.Root()})
	docs, err := ix.reader.ReadVault(ctx)
	if err != nil {
		return nil, err
	}
	ix.logger.Info("index_scan_complete",
		slog.String("vault", ix.reader.Root()),
		slog.Int("files", len(docs)))

	full := force
	if !full {
		if loadErr := ix.store.Load(); loadErr != nil {
			ix.logger.Warn("index_store_unusable",
				slog.String("code", terrors.GetCode(loadErr)),
				slog.Any("error", loadErr))
			full = true
		} else if len(ix.store.Tracking()) == 0 {
			full = true
		}
	}

	var result *Result
	if full {
		result, err = ix.fullBuild(ctx, docs)
	} else {
		result, err = ix.incrementalBuild(ctx, docs)
	}
	if err != nil {
		return nil, err
	}

	result.Full = full
	result.Files = len(docs)
	result.Rows = ix.store.Len()
	result.Duration = time.Since(start)

	ix.logger.Info("index_complete",
		slog.String("vault", ix.reader.Root()),
		slog.String("model", ix.store.ModelID()),
		slog.Bool("full", result.Full),
		slog.Int("files", result.Files),
		slog.Int("new", result.New),
		slog.Int("modified", result.Modified),
		slog.Int("deleted", result.Deleted),
		slog.Int("rows", result.Rows),
		slog.Int64("duration_ms", result.Duration.Milliseconds()))
	return result, nil
}

// fullBuild embeds every document and replaces the store contents. The
// old store stays on disk until the atomic save, so an interrupted
// rebuild never destroys a working index.
func (ix *Indexer) fullBuild(ctx context.Context, docs []vault.Document) (*Result, error) {
	units := ix.chunkDocs(docs)
	vectors, err := ix.embedUnits(ctx, units, 0, len(units))
	if err != nil {
		return nil, err
	}
	if err := ix.store.Replace(vectors, unitMetas(units)); err != nil {
		return nil, err
	}

	ix.progress(Progress{Stage: StageSave, Message: "Saving index"})
	if err := ix.store.Save(); err != nil {
		return nil, err
	}
	return &Result{New: len(docs)}, nil
}

// incrementalBuild merges vault changes into the loaded store. Order
// matters: rows of deleted and re-embedded files are removed first
// (positions descending, so removals never shift the positions still to
// be removed), modified files whose unit count is unchanged are
// overwritten in place through a post-delete index map, and everything
// else is appended as one contiguous block at the end. Tracking is
// rebuilt from the final metadata during save.
func (ix *Indexer) incrementalBuild(ctx context.Context, docs []vault.Document) (*Result, error) {
	tracking := ix.store.Tracking()
	changes := detectChanges(tracking, docs)

	if changes.empty() {
		ix.logger.Info("index_unchanged",
			slog.String("vault", ix.reader.Root()),
			slog.Int("files", len(docs)))
		return &Result{Unchanged: len(docs)}, nil
	}

	byPath := make(map[string]vault.Document, len(docs))
	for _, d := range docs {
		byPath[d.Path] = d
	}

	// Modified files keep their rows only when the new unit count matches
	// the old one; everything else goes through delete+append.
	var inPlace, reAdd []string
	unitsByPath := make(map[string][]unit, len(changes.modified))
	for _, path := range changes.modified {
		units := ix.chunkDoc(byPath[path])
		unitsByPath[path] = units
		if len(units) == len(tracking[path].Positions) {
			inPlace = append(inPlace, path)
		} else {
			reAdd = append(reAdd, path)
		}
	}

	removed := make([]int, 0)
	for _, path := range changes.deleted {
		removed = append(removed, tracking[path].Positions...)
	}
	for _, path := range reAdd {
		removed = append(removed, tracking[path].Positions...)
	}
	sort.Sort(sort.Reverse(sort.IntSlice(removed)))
	if err := ix.store.DeleteRowsDesc(removed); err != nil {
		return nil, err
	}

	var inPlaceUnits []unit
	for _, path := range inPlace {
		inPlaceUnits = append(inPlaceUnits, unitsByPath[path]...)
	}

	addedSet := make(map[string]bool, len(changes.added))
	for _, path := range changes.added {
		addedSet[path] = true
	}
	var appendUnits []unit
	for _, d := range docs {
		if addedSet[d.Path] {
			appendUnits = append(appendUnits, ix.chunkDoc(d)...)
			continue
		}
		if u, ok := unitsByPath[d.Path]; ok && len(u) != len(tracking[d.Path].Positions) {
			appendUnits = append(appendUnits, u...)
		}
	}

	if len(inPlaceUnits) > 0 {
		shift := newPositionMap(removed)
		vectors, err := ix.embedUnits(ctx, inPlaceUnits, 0, len(inPlaceUnits)+len(appendUnits))
		if err != nil {
			return nil, err
		}
		i := 0
		for _, path := range inPlace {
			for _, pos := range tracking[path].Positions {
				if err := ix.store.UpdateRow(shift.apply(pos), vectors[i], inPlaceUnits[i].meta); err != nil {
					return nil, err
				}
				i++
			}
		}
	}

	if len(appendUnits) > 0 {
		vectors, err := ix.embedUnits(ctx, appendUnits, len(inPlaceUnits), len(inPlaceUnits)+len(appendUnits))
		if err != nil {
			return nil, err
		}
		if err := ix.store.AppendRows(vectors, unitMetas(appendUnits)); err != nil {
			return nil, err
		}
	}

	ix.progress(Progress{Stage: StageSave, Message: "Saving index"})
	if err := ix.store.Save(); err != nil {
		return nil, err
	}

	ix.logger.Info("index_merge",
		slog.String("vault", ix.reader.Root()),
		slog.Int("new", len(changes.added)),
		slog.Int("modified", len(changes.modified)),
		slog.Int("deleted", len(changes.deleted)),
		slog.Int("rows_removed", len(removed)),
		slog.Int("rows_updated_in_place", len(inPlace)))

	return &Result{
		New:       len(changes.added),
		Modified:  len(changes.modified),
		Deleted:   len(changes.deleted),
		Unchanged: len(docs) - len(changes.added) - len(changes.modified),
	}, nil
}

// unit is one indexable row before embedding.
type unit struct {
	text string
	meta dense.Meta
}

// chunkDocs splits every document, reporting chunking progress.
func (ix *Indexer) chunkDocs(docs []vault.Document) []unit {
	var units []unit
	for i, d := range docs {
		ix.progress(Progress{
			Stage:   StageChunk,
			Current: i + 1,
			Total:   len(docs),
			Path:    d.Path,
		})
		units = append(units, ix.chunkDoc(d)...)
	}
	return units
}

// chunkDoc converts one document into its indexable units. The stored
// content is the piece text; the embedded text carries the title too,
// so title terms reach dense retrieval.
func (ix *Indexer) chunkDoc(d vault.Document) []unit {
	pieces := ix.chunker.Split(d.Body)
	units := make([]unit, 0, len(pieces))
	for _, p := range pieces {
		meta := dense.Meta{
			Path:          d.Path,
			Title:         d.Title,
			Content:       p.Text,
			Tags:          d.Tags,
			Frontmatter:   d.Frontmatter,
			Created:       d.Created,
			Modified:      d.Modified,
			Mtime:         d.FileModTime,
			ContentLength: d.ContentLength,
			Status:        string(d.Status),
			Type:          d.Type,
		}
		if !p.Whole {
			meta.Chunked = true
			meta.Chunk = p.Ordinal
			meta.ChunkStart = p.Start
			meta.ChunkEnd = p.End
		}
		text := p.Text
		if d.Title != "" {
			text = d.Title + "\n\n" + text
		}
		units = append(units, unit{text: text, meta: meta})
	}
	return units
}

// embedUnits embeds units in batches, checking for cancellation between
// batches. done and total carry the run-wide progress counters when the
// run embeds in several phases.
func (ix *Indexer) embedUnits(ctx context.Context, units []unit, done, total int) ([][]float32, error) {
	if len(units) == 0 {
		return nil, nil
	}

	ix.progress(Progress{Stage: StageEmbed, Current: done, Total: total})

	vectors := make([][]float32, 0, len(units))
	for batchStart := 0; batchStart < len(units); batchStart += ix.batchSize {
		select {
		case <-ctx.Done():
			ix.logger.Info("index_interrupted",
				slog.Int("embedded", done+batchStart),
				slog.Int("total", total))
			return nil, terrors.New(terrors.ErrCodeEmbedFailed,
				fmt.Sprintf("indexing interrupted at %d/%d units", done+batchStart, total), ctx.Err())
		default:
		}

		batchEnd := batchStart + ix.batchSize
		if batchEnd > len(units) {
			batchEnd = len(units)
		}
		texts := make([]string, 0, batchEnd-batchStart)
		for _, u := range units[batchStart:batchEnd] {
			texts = append(texts, u.text)
		}

		batch, err := ix.embedder.EmbedBatch(ctx, texts)
		if err != nil {
			return nil, terrors.New(terrors.ErrCodeEmbedFailed,
				fmt.Sprintf("embed batch %d-%d", batchStart, batchEnd), err)
		}
		if len(batch) != len(texts) {
			return nil, terrors.New(terrors.ErrCodeEmbedFailed,
				fmt.Sprintf("embedder returned %d vectors for %d texts", len(batch), len(texts)), nil)
		}
		vectors = append(vectors, batch...)

		ix.progress(Progress{Stage: StageEmbed, Current: done + batchEnd, Total: total})
	}
	return vectors, nil
}

func unitMetas(units []unit) []dense.Meta {
	metas := make([]dense.Meta, len(units))
	for i, u := range units {
		metas[i] = u.meta
	}
	return metas
}
