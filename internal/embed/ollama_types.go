package embed

import "time"

// Ollama connection defaults.
const (
	DefaultOllamaHost = "http://localhost:11434"
	DefaultOllamaModel = "nomic-embed-text"

	// OllamaPoolSize is the connection pool size for the embedding client.
	OllamaPoolSize = 4
)

// OllamaConfig configures the Ollama embedding adapter.
type OllamaConfig struct {
	Host           string        // API endpoint, e.g. http://localhost:11434
	Model          string        // embedding model name
	Dimensions     int           // 0 means probe the model on startup
	BatchSize      int           // texts per /api/embed request
	RequestTimeout time.Duration // per-call deadline
	PoolSize       int           // idle connections kept per host

	// SkipHealthCheck bypasses model discovery and the dimension probe.
	// Used by tests that point the adapter at a stub server.
	SkipHealthCheck bool
}

// DefaultOllamaConfig returns the standard Ollama adapter settings.
func DefaultOllamaConfig() OllamaConfig {
	return OllamaConfig{
		Host:           DefaultOllamaHost,
		Model:          DefaultOllamaModel,
		BatchSize:      DefaultBatchSize,
		RequestTimeout: DefaultRequestTimeout,
		PoolSize:       OllamaPoolSize,
	}
}

// ollamaEmbedRequest is the /api/embed request body. Input is either a
// single string or a list of strings.
type ollamaEmbedRequest struct {
	Model string `json:"model"`
	Input any    `json:"input"`
}

// ollamaEmbedResponse is the /api/embed response body.
type ollamaEmbedResponse struct {
	Model      string      `json:"model"`
	Embeddings [][]float64 `json:"embeddings"`
}

// ollamaModelInfo describes one installed model from /api/tags.
type ollamaModelInfo struct {
	Name       string `json:"name"`
	ModifiedAt string `json:"modified_at,omitempty"`
	Size       int64  `json:"size,omitempty"`
}

// ollamaModelListResponse is the /api/tags response body.
type ollamaModelListResponse struct {
	Models []ollamaModelInfo `json:"models"`
}
