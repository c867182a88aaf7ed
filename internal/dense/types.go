// Package dense persists and serves the embedding matrix: a float32
// matrix in NPY format, a parallel metadata list, and a manifest whose
// file-tracking table drives incremental reindexing. Saves are atomic
// and refuse to overwrite a store built from a different vault.
package dense

import (
	"path/filepath"
	"regexp"
	"strconv"
	"time"
)

// Store file names inside <vault>/.temoa/<model>/.
const (
	StoreDirName = ".temoa"

	MatrixFile   = "embeddings.npy"
	MetadataFile = "metadata.json"
	ManifestFile = "index.json"
	LockFile     = ".lock"
)

// Meta is the metadata record parallel to one matrix row. Chunked
// documents contribute one row per chunk; each row repeats the parent
// document's fields alongside its chunk identity. Modified is the
// display date (frontmatter when present); Mtime is the filesystem
// mtime at index time, which file tracking compares.
type Meta struct {
	Path          string         `json:"path"`
	Title         string         `json:"title"`
	Content       string         `json:"content"`
	Tags          []string       `json:"tags,omitempty"`
	Frontmatter   map[string]any `json:"frontmatter,omitempty"`
	Created       time.Time      `json:"created"`
	Modified      time.Time      `json:"modified"`
	Mtime         time.Time      `json:"mtime,omitempty"`
	ContentLength int            `json:"content_length"`
	Status        string         `json:"status,omitempty"`
	Type          string         `json:"type,omitempty"`

	Chunked    bool `json:"chunked,omitempty"`
	Chunk      int  `json:"chunk,omitempty"`
	ChunkStart int  `json:"chunk_start,omitempty"`
	ChunkEnd   int  `json:"chunk_end,omitempty"`
}

// Key identifies a row within a vault: the document path plus the chunk
// ordinal (zero for whole documents).
func (m Meta) Key() string {
	if !m.Chunked {
		return m.Path
	}
	return m.Path + "#" + strconv.Itoa(m.Chunk)
}

// ModelInfo records which embedding model built the store.
type ModelInfo struct {
	ID         string `json:"id"`
	Dimensions int    `json:"dimensions"`
}

// FileTrack is one file-tracking entry: enough to detect changes and to
// locate every matrix row the file owns.
type FileTrack struct {
	Modified  int64 `json:"modified"` // mtime, unix seconds
	Size      int   `json:"size"`     // body length in runes
	Positions []int `json:"positions"`
}

// Manifest is persisted as index.json next to the matrix.
type Manifest struct {
	ModelInfo     ModelInfo            `json:"model_info"`
	CreatedAt     time.Time            `json:"created_at"`
	NumEmbeddings int                  `json:"num_embeddings"`
	EmbeddingDim  int                  `json:"embedding_dim"`
	VaultPath     string               `json:"vault_path"`
	FileTracking  map[string]FileTrack `json:"file_tracking"`
}

// Hit is one scored row from a matrix scan.
type Hit struct {
	Row   int
	Score float64
}

var modelIDUnsafe = regexp.MustCompile(`[^a-zA-Z0-9._-]+`)

// SanitizeModelID maps a model identifier to a directory-safe name, so
// "ollama/nomic-embed-text:v1.5" becomes "ollama-nomic-embed-text-v1.5".
func SanitizeModelID(id string) string {
	safe := modelIDUnsafe.ReplaceAllString(id, "-")
	if safe == "" {
		safe = "default"
	}
	return safe
}

// StoreDir returns the on-disk store directory for a vault and model.
func StoreDir(vaultPath, modelID string) string {
	return filepath.Join(vaultPath, StoreDirName, SanitizeModelID(modelID))
}
