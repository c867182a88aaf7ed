package embed

import (
	"context"
	"fmt"
	"math"
	"sync"
)

// fakeEmbedder is a controllable Embedder for wrapper tests. It returns
// deterministic unit vectors derived from text length and can be told to
// fail its first N calls.
type fakeEmbedder struct {
	dims    int
	modelID string

	mu         sync.Mutex
	failures   int // remaining calls that should fail
	embedCalls int
	batchCalls int
	batchSizes []int
	closed     bool
}

func newFakeEmbedder(dims int) *fakeEmbedder {
	return &fakeEmbedder{dims: dims, modelID: "fake-model"}
}

func (f *fakeEmbedder) vectorFor(text string) []float32 {
	vec := make([]float32, f.dims)
	vec[len(text)%f.dims] = 1
	return vec
}

func (f *fakeEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.embedCalls++
	if f.failures > 0 {
		f.failures--
		return nil, fmt.Errorf("transient failure")
	}
	return f.vectorFor(text), nil
}

func (f *fakeEmbedder) EmbedBatch(_ context.Context, texts []string) ([][]float32, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.batchCalls++
	f.batchSizes = append(f.batchSizes, len(texts))
	if f.failures > 0 {
		f.failures--
		return nil, fmt.Errorf("transient failure")
	}
	vecs := make([][]float32, len(texts))
	for i, t := range texts {
		vecs[i] = f.vectorFor(t)
	}
	return vecs, nil
}

func (f *fakeEmbedder) Dimensions() int { return f.dims }

func (f *fakeEmbedder) ModelID() string { return f.modelID }

func (f *fakeEmbedder) Available(_ context.Context) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return !f.closed
}

func (f *fakeEmbedder) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func vectorMagnitude(v []float32) float64 {
	var sum float64
	for _, val := range v {
		sum += float64(val) * float64(val)
	}
	return math.Sqrt(sum)
}

func cosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) {
		return 0
	}
	var dot, magA, magB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		magA += float64(a[i]) * float64(a[i])
		magB += float64(b[i]) * float64(b[i])
	}
	if magA == 0 || magB == 0 {
		return 0
	}
	return dot / (math.Sqrt(magA) * math.Sqrt(magB))
}
