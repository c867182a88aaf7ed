package dense

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	terrors "github.com/temoa-dev/temoa/internal/errors"
)

// Store holds the embedding matrix, its parallel metadata, and the
// manifest for one (vault, model) pair, and persists them under
// <vault>/.temoa/<model>/. Row i of the matrix always describes metas[i].
type Store struct {
	vaultPath string
	modelID   string
	dir       string
	logger    *slog.Logger

	mu       sync.RWMutex
	vectors  [][]float32
	metas    []Meta
	manifest Manifest
	dims     int
	ann      *annIndex
}

// NewStore creates a store handle for a vault and model. The vault path
// is resolved to an absolute path since it is the store's identity.
// Nothing is read from disk until Load.
func NewStore(vaultPath, modelID string, dims int, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}
	abs, err := filepath.Abs(vaultPath)
	if err != nil {
		return nil, terrors.New(terrors.ErrCodeVaultNotFound, "resolve vault path: "+vaultPath, err)
	}
	return &Store{
		vaultPath: abs,
		modelID:   modelID,
		dims:      dims,
		dir:       StoreDir(abs, modelID),
		logger:    logger,
	}, nil
}

// Dir returns the on-disk store directory.
func (s *Store) Dir() string { return s.dir }

// VaultPath returns the absolute vault root this store belongs to.
func (s *Store) VaultPath() string { return s.vaultPath }

// ModelID returns the embedding model the store was opened for.
func (s *Store) ModelID() string { return s.modelID }

// Len returns the number of rows.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.vectors)
}

// Dim returns the embedding dimension, or 0 when still unknown.
func (s *Store) Dim() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.dims
}

// Meta returns a copy of the metadata record for row i.
func (s *Store) Meta(i int) (Meta, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if i < 0 || i >= len(s.metas) {
		return Meta{}, fmt.Errorf("row %d out of range [0,%d)", i, len(s.metas))
	}
	return s.metas[i], nil
}

// Metas returns a copy of the metadata list.
func (s *Store) Metas() []Meta {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Meta, len(s.metas))
	copy(out, s.metas)
	return out
}

// Manifest returns a copy of the current manifest.
func (s *Store) Manifest() Manifest {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return copyManifest(s.manifest)
}

// Tracking returns a copy of the file-tracking table.
func (s *Store) Tracking() map[string]FileTrack {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return copyTracking(s.manifest.FileTracking)
}

// Exists reports whether a persisted store is present on disk.
func (s *Store) Exists() bool {
	if _, err := os.Stat(filepath.Join(s.dir, ManifestFile)); err != nil {
		return false
	}
	if _, err := os.Stat(filepath.Join(s.dir, MatrixFile)); err != nil {
		return false
	}
	return true
}

// Load reads matrix, metadata, and manifest from disk. A missing
// manifest leaves the store empty (fresh build). Stores whose files
// disagree on length, dimension, vault, or model fail with index errors
// so the indexer can fall back to a full rebuild.
func (s *Store) Load() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	manifestPath := filepath.Join(s.dir, ManifestFile)
	manifestBytes, err := os.ReadFile(manifestPath)
	if os.IsNotExist(err) {
		s.vectors = nil
		s.metas = nil
		s.manifest = Manifest{}
		return nil
	}
	if err != nil {
		return terrors.New(terrors.ErrCodeIndexCorrupt, "read manifest", err).WithDetail("path", manifestPath)
	}

	var manifest Manifest
	if err := json.Unmarshal(manifestBytes, &manifest); err != nil {
		return terrors.New(terrors.ErrCodeIndexCorrupt, "parse manifest", err).WithDetail("path", manifestPath)
	}

	if manifest.ModelInfo.ID != "" && manifest.ModelInfo.ID != s.modelID {
		return terrors.New(terrors.ErrCodeIndexModelMismatch,
			fmt.Sprintf("store built with model %q, configured model is %q", manifest.ModelInfo.ID, s.modelID), nil)
	}

	matrixPath := filepath.Join(s.dir, MatrixFile)
	matrixFile, err := os.Open(matrixPath)
	if err != nil {
		return terrors.New(terrors.ErrCodeIndexCorrupt, "open matrix", err).WithDetail("path", matrixPath)
	}
	vectors, dims, err := readNPY(matrixFile)
	closeErr := matrixFile.Close()
	if err != nil {
		return terrors.New(terrors.ErrCodeIndexCorrupt, "parse matrix", err).WithDetail("path", matrixPath)
	}
	if closeErr != nil {
		return terrors.New(terrors.ErrCodeIndexCorrupt, "close matrix", closeErr)
	}

	metaPath := filepath.Join(s.dir, MetadataFile)
	metaBytes, err := os.ReadFile(metaPath)
	if err != nil {
		return terrors.New(terrors.ErrCodeIndexCorrupt, "read metadata", err).WithDetail("path", metaPath)
	}
	var metas []Meta
	if err := json.Unmarshal(metaBytes, &metas); err != nil {
		return terrors.New(terrors.ErrCodeIndexCorrupt, "parse metadata", err).WithDetail("path", metaPath)
	}

	if len(vectors) != len(metas) || len(vectors) != manifest.NumEmbeddings {
		return terrors.New(terrors.ErrCodeIndexLengthMismatch,
			fmt.Sprintf("matrix has %d rows, metadata %d, manifest says %d",
				len(vectors), len(metas), manifest.NumEmbeddings), nil)
	}
	if len(vectors) > 0 && dims != manifest.EmbeddingDim {
		return terrors.New(terrors.ErrCodeDimensionMismatch,
			fmt.Sprintf("matrix dimension %d, manifest says %d", dims, manifest.EmbeddingDim), nil)
	}
	if s.dims > 0 && len(vectors) > 0 && dims != s.dims {
		return terrors.New(terrors.ErrCodeDimensionMismatch,
			fmt.Sprintf("store dimension %d, configured model uses %d", dims, s.dims), nil)
	}
	if err := checkTracking(manifest.FileTracking, len(vectors)); err != nil {
		return err
	}

	s.vectors = vectors
	s.metas = metas
	s.manifest = manifest
	if s.dims == 0 && len(vectors) > 0 {
		s.dims = dims
	}
	s.ann = nil

	s.logger.Debug("store_loaded",
		slog.String("dir", s.dir),
		slog.Int("rows", len(vectors)),
		slog.Int("dims", s.dims))
	return nil
}

// Save writes the in-memory state atomically: all files go to a fresh
// temp directory first, then rename into place with the manifest last.
// Length invariants and vault identity are verified before any write.
func (s *Store) Save() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.vectors) != len(s.metas) {
		return terrors.New(terrors.ErrCodeIndexLengthMismatch,
			fmt.Sprintf("matrix has %d rows, metadata %d", len(s.vectors), len(s.metas)), nil)
	}
	if s.manifest.VaultPath != "" && s.manifest.VaultPath != s.vaultPath {
		return terrors.New(terrors.ErrCodeIndexVaultMismatch,
			fmt.Sprintf("store belongs to vault %q, refusing save into %q", s.manifest.VaultPath, s.vaultPath), nil).
			WithSuggestion("run a full reindex to rebuild the store for this vault")
	}

	s.rebuildTrackingLocked()
	if err := checkTracking(s.manifest.FileTracking, len(s.vectors)); err != nil {
		return err
	}

	s.manifest.ModelInfo = ModelInfo{ID: s.modelID, Dimensions: s.dims}
	s.manifest.CreatedAt = time.Now().UTC()
	s.manifest.NumEmbeddings = len(s.vectors)
	s.manifest.EmbeddingDim = s.dims
	s.manifest.VaultPath = s.vaultPath

	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return terrors.New(terrors.ErrCodeIndexCorrupt, "create store directory", err).WithDetail("path", s.dir)
	}
	tmpDir, err := os.MkdirTemp(s.dir, ".save-")
	if err != nil {
		return terrors.New(terrors.ErrCodeIndexCorrupt, "create temp directory", err)
	}
	defer func() { _ = os.RemoveAll(tmpDir) }()

	if err := s.writeMatrix(filepath.Join(tmpDir, MatrixFile)); err != nil {
		return err
	}
	metaBytes, err := json.Marshal(s.metas)
	if err != nil {
		return terrors.New(terrors.ErrCodeIndexCorrupt, "encode metadata", err)
	}
	if err := writeFileSync(filepath.Join(tmpDir, MetadataFile), metaBytes); err != nil {
		return err
	}
	manifestBytes, err := json.MarshalIndent(s.manifest, "", "  ")
	if err != nil {
		return terrors.New(terrors.ErrCodeIndexCorrupt, "encode manifest", err)
	}
	if err := writeFileSync(filepath.Join(tmpDir, ManifestFile), manifestBytes); err != nil {
		return err
	}

	// Manifest renames last: its counts are the commit point that Load
	// validates the other files against.
	for _, name := range []string{MatrixFile, MetadataFile, ManifestFile} {
		if err := os.Rename(filepath.Join(tmpDir, name), filepath.Join(s.dir, name)); err != nil {
			return terrors.New(terrors.ErrCodeIndexCorrupt, "rename "+name+" into place", err)
		}
	}
	syncDir(s.dir)

	s.logger.Info("store_saved",
		slog.String("dir", s.dir),
		slog.Int("rows", len(s.vectors)),
		slog.Int("dims", s.dims))
	return nil
}

// Clear removes the persisted store files and resets in-memory state.
func (s *Store) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, name := range []string{MatrixFile, MetadataFile, ManifestFile, LockFile} {
		if err := os.Remove(filepath.Join(s.dir, name)); err != nil && !os.IsNotExist(err) {
			return terrors.New(terrors.ErrCodeIndexCorrupt, "remove "+name, err)
		}
	}

	s.vectors = nil
	s.metas = nil
	s.manifest = Manifest{}
	s.ann = nil
	return nil
}

// Replace installs a freshly built matrix and metadata list, dropping
// whatever was in memory. Used by full builds.
func (s *Store) Replace(vectors [][]float32, metas []Meta) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(vectors) != len(metas) {
		return terrors.New(terrors.ErrCodeIndexLengthMismatch,
			fmt.Sprintf("matrix has %d rows, metadata %d", len(vectors), len(metas)), nil)
	}
	for i, vec := range vectors {
		if err := s.checkDimsLocked(vec); err != nil {
			return terrors.New(terrors.ErrCodeDimensionMismatch,
				fmt.Sprintf("row %d: %v", i, err), nil)
		}
	}

	s.vectors = vectors
	s.metas = metas
	s.manifest.FileTracking = nil
	s.ann = nil
	return nil
}

// DeleteRowsDesc removes the given rows. Positions must be sorted in
// strictly descending order so earlier removals cannot shift later ones.
func (s *Store) DeleteRowsDesc(positions []int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	prev := -1
	for _, p := range positions {
		if p < 0 || p >= len(s.vectors) {
			return fmt.Errorf("delete position %d out of range [0,%d)", p, len(s.vectors))
		}
		if prev != -1 && p >= prev {
			return fmt.Errorf("delete positions not strictly descending: %d after %d", p, prev)
		}
		prev = p
	}

	for _, p := range positions {
		s.vectors = append(s.vectors[:p], s.vectors[p+1:]...)
		s.metas = append(s.metas[:p], s.metas[p+1:]...)
	}
	s.ann = nil
	return nil
}

// UpdateRow overwrites one row in place.
func (s *Store) UpdateRow(i int, vec []float32, meta Meta) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if i < 0 || i >= len(s.vectors) {
		return fmt.Errorf("update position %d out of range [0,%d)", i, len(s.vectors))
	}
	if err := s.checkDimsLocked(vec); err != nil {
		return terrors.New(terrors.ErrCodeDimensionMismatch, err.Error(), nil)
	}

	s.vectors[i] = vec
	s.metas[i] = meta
	s.ann = nil
	return nil
}

// AppendRows adds rows at the end as one contiguous block.
func (s *Store) AppendRows(vectors [][]float32, metas []Meta) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(vectors) != len(metas) {
		return terrors.New(terrors.ErrCodeIndexLengthMismatch,
			fmt.Sprintf("appending %d vectors with %d metadata records", len(vectors), len(metas)), nil)
	}
	for i, vec := range vectors {
		if err := s.checkDimsLocked(vec); err != nil {
			return terrors.New(terrors.ErrCodeDimensionMismatch,
				fmt.Sprintf("append row %d: %v", i, err), nil)
		}
	}

	s.vectors = append(s.vectors, vectors...)
	s.metas = append(s.metas, metas...)
	s.ann = nil
	return nil
}

// Search scans the matrix with a dot product (cosine on unit vectors)
// and returns the top k rows by score, ties broken by row order. A nil
// allowed set searches everything; an empty one matches nothing.
func (s *Store) Search(query []float32, k int, allowed map[string]bool) ([]Hit, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if k <= 0 || len(s.vectors) == 0 {
		return nil, nil
	}
	if len(s.vectors) > 0 && len(query) != s.dims {
		return nil, terrors.New(terrors.ErrCodeDimensionMismatch,
			fmt.Sprintf("query has %d dimensions, store uses %d", len(query), s.dims), nil)
	}

	if s.ann != nil && allowed == nil {
		return s.ann.search(query, k, s.vectors)
	}

	hits := make([]Hit, 0, len(s.vectors))
	for i, vec := range s.vectors {
		if allowed != nil && !allowed[s.metas[i].Path] {
			continue
		}
		hits = append(hits, Hit{Row: i, Score: dot(query, vec)})
	}

	sort.Slice(hits, func(a, b int) bool {
		if hits[a].Score != hits[b].Score {
			return hits[a].Score > hits[b].Score
		}
		return hits[a].Row < hits[b].Row
	})
	if len(hits) > k {
		hits = hits[:k]
	}
	return hits, nil
}

// rebuildTrackingLocked derives the file-tracking table from the current
// metadata list, so positions are always fresh after a merge.
func (s *Store) rebuildTrackingLocked() {
	tracking := make(map[string]FileTrack, len(s.metas))
	for i, meta := range s.metas {
		entry, ok := tracking[meta.Path]
		if !ok {
			mtime := meta.Mtime
			if mtime.IsZero() {
				// Rows written before mtimes were recorded track the
				// display date; the first rescan re-embeds them once.
				mtime = meta.Modified
			}
			entry = FileTrack{
				Modified: mtime.Unix(),
				Size:     meta.ContentLength,
			}
		}
		entry.Positions = append(entry.Positions, i)
		tracking[meta.Path] = entry
	}
	s.manifest.FileTracking = tracking
}

func (s *Store) checkDimsLocked(vec []float32) error {
	if s.dims == 0 {
		s.dims = len(vec)
	}
	if len(vec) != s.dims {
		return fmt.Errorf("vector has %d dimensions, store uses %d", len(vec), s.dims)
	}
	return nil
}

func (s *Store) writeMatrix(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return terrors.New(terrors.ErrCodeIndexCorrupt, "create matrix file", err).WithDetail("path", path)
	}
	if err := writeNPY(f, s.vectors, s.dims); err != nil {
		_ = f.Close()
		return terrors.New(terrors.ErrCodeIndexCorrupt, "write matrix", err).WithDetail("path", path)
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		return terrors.New(terrors.ErrCodeIndexCorrupt, "sync matrix", err)
	}
	return f.Close()
}

// checkTracking verifies every tracked position is a valid row and that
// the table accounts for every row exactly once.
func checkTracking(tracking map[string]FileTrack, rows int) error {
	if tracking == nil {
		if rows == 0 {
			return nil
		}
		return terrors.New(terrors.ErrCodeIndexLengthMismatch,
			fmt.Sprintf("file tracking missing for %d rows", rows), nil)
	}

	total := 0
	for path, entry := range tracking {
		for _, p := range entry.Positions {
			if p < 0 || p >= rows {
				return terrors.New(terrors.ErrCodeIndexLengthMismatch,
					fmt.Sprintf("tracking for %q references row %d of %d", path, p, rows), nil)
			}
		}
		total += len(entry.Positions)
	}
	if total != rows {
		return terrors.New(terrors.ErrCodeIndexLengthMismatch,
			fmt.Sprintf("tracking covers %d positions for %d rows", total, rows), nil)
	}
	return nil
}

func dot(a, b []float32) float64 {
	var sum float64
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	for i := 0; i < n; i++ {
		sum += float64(a[i]) * float64(b[i])
	}
	return sum
}

func writeFileSync(path string, data []byte) error {
	f, err := os.Create(path)
	if err != nil {
		return terrors.New(terrors.ErrCodeIndexCorrupt, "create "+filepath.Base(path), err)
	}
	if _, err := f.Write(data); err != nil {
		_ = f.Close()
		return terrors.New(terrors.ErrCodeIndexCorrupt, "write "+filepath.Base(path), err)
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		return terrors.New(terrors.ErrCodeIndexCorrupt, "sync "+filepath.Base(path), err)
	}
	return f.Close()
}

func syncDir(dir string) {
	d, err := os.Open(dir)
	if err != nil {
		return
	}
	_ = d.Sync()
	_ = d.Close()
}

func copyManifest(m Manifest) Manifest {
	out := m
	out.FileTracking = copyTracking(m.FileTracking)
	return out
}

func copyTracking(t map[string]FileTrack) map[string]FileTrack {
	if t == nil {
		return nil
	}
	out := make(map[string]FileTrack, len(t))
	for k, v := range t {
		positions := make([]int, len(v.Positions))
		copy(positions, v.Positions)
		v.Positions = positions
		out[k] = v
	}
	return out
}
