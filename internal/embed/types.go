// Package embed turns text into dense vectors. The Ollama adapter talks
// to a local model server; the static embedder derives vectors from
// token hashes for offline use. Wrappers add retries and an LRU cache.
// All embedders return unit-normalized vectors.
package embed

import (
	"context"
	"math"
	"time"
)

const (
	// DefaultBatchSize is texts per embedding request.
	DefaultBatchSize = 32

	// MaxBatchSize caps a single request to keep payloads bounded.
	MaxBatchSize = 256

	// DefaultRequestTimeout bounds one embedding HTTP call. Cold model
	// loads on modest hardware can take tens of seconds.
	DefaultRequestTimeout = 30 * time.Second

	// DefaultDimensions matches nomic-embed-text, the default model.
	DefaultDimensions = 768

	// StaticDimensions is the vector width of the hash-based embedder.
	StaticDimensions = 256
)

// Embedder generates vector embeddings for text.
type Embedder interface {
	// Embed generates the embedding for a single text.
	Embed(ctx context.Context, text string) ([]float32, error)

	// EmbedBatch generates embeddings for multiple texts, preserving order.
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)

	// Dimensions returns the embedding dimension.
	Dimensions() int

	// ModelID returns the model identifier. It keys the on-disk index
	// directory and the embedding cache.
	ModelID() string

	// Available reports whether the embedder is ready to serve.
	Available(ctx context.Context) bool

	// Close releases resources.
	Close() error
}

// normalizeVector scales a vector to unit length. Zero vectors are
// returned unchanged.
func normalizeVector(v []float32) []float32 {
	var sumSquares float64
	for _, val := range v {
		sumSquares += float64(val) * float64(val)
	}

	magnitude := math.Sqrt(sumSquares)
	if magnitude == 0 {
		return v
	}

	normalized := make([]float32, len(v))
	for i, val := range v {
		normalized[i] = float32(float64(val) / magnitude)
	}
	return normalized
}
