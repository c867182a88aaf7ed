package search

import (
	"context"
)

// RerankResult is one scored query-passage pair.
type RerankResult struct {
	// Index is the original position in the input documents slice.
	Index int
	// Score is the cross-encoder relevance score.
	Score float64
}

// Reranker scores query-passage pairs with a cross-encoder model.
// Cross-encoders jointly encode the pair for more accurate relevance
// than bi-encoders, at higher computational cost.
type Reranker interface {
	// Rerank scores the documents against the query and returns results
	// sorted by score descending. topK limits the returned results
	// (0 = return all).
	Rerank(ctx context.Context, query string, documents []string, topK int) ([]RerankResult, error)

	// Available reports whether the reranker service is reachable.
	Available(ctx context.Context) bool

	// Close releases resources.
	Close() error
}

// NoopReranker keeps the incoming order. Used when re-ranking is
// disabled or no service is configured.
type NoopReranker struct{}

// Rerank returns documents in original order with decreasing scores.
func (n *NoopReranker) Rerank(_ context.Context, _ string, documents []string, topK int) ([]RerankResult, error) {
	results := make([]RerankResult, len(documents))
	for i := range documents {
		results[i] = RerankResult{Index: i, Score: 1.0 - float64(i)*0.01}
	}
	if topK > 0 && topK < len(results) {
		results = results[:topK]
	}
	return results, nil
}

// Available always returns true.
func (n *NoopReranker) Available(_ context.Context) bool { return true }

// Close is a no-op.
func (n *NoopReranker) Close() error { return nil }

var _ Reranker = (*NoopReranker)(nil)
