package dense

import (
	"sort"

	"github.com/coder/hnsw"
)

// ANNConfig tunes the optional HNSW accelerator.
type ANNConfig struct {
	M        int // graph connectivity
	EfSearch int // search beam width
}

// DefaultANNConfig returns the standard HNSW parameters.
func DefaultANNConfig() ANNConfig {
	return ANNConfig{M: 16, EfSearch: 64}
}

// annIndex holds an HNSW graph keyed by matrix row. It is rebuilt from
// scratch whenever the matrix changes; approximate search only ever
// serves unfiltered queries, filtered ones always take the exact scan.
type annIndex struct {
	graph *hnsw.Graph[int]
}

// EnableANN builds an HNSW graph over the current matrix. Any mutation
// of the matrix discards the graph; call EnableANN again after reindex.
func (s *Store) EnableANN(cfg ANNConfig) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if cfg.M <= 0 {
		cfg.M = DefaultANNConfig().M
	}
	if cfg.EfSearch <= 0 {
		cfg.EfSearch = DefaultANNConfig().EfSearch
	}

	g := hnsw.NewGraph[int]()
	g.Distance = hnsw.CosineDistance
	g.M = cfg.M
	g.EfSearch = cfg.EfSearch
	g.Ml = 0.25

	for i, vec := range s.vectors {
		g.Add(hnsw.MakeNode(i, vec))
	}

	s.ann = &annIndex{graph: g}
	return nil
}

// ANNEnabled reports whether an HNSW graph is currently active.
func (s *Store) ANNEnabled() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.ann != nil
}

func (a *annIndex) search(query []float32, k int, vectors [][]float32) ([]Hit, error) {
	if a.graph.Len() == 0 {
		return nil, nil
	}

	nodes := a.graph.Search(query, k)
	hits := make([]Hit, 0, len(nodes))
	for _, node := range nodes {
		if node.Key < 0 || node.Key >= len(vectors) {
			continue
		}
		hits = append(hits, Hit{Row: node.Key, Score: dot(query, vectors[node.Key])})
	}

	sort.Slice(hits, func(a, b int) bool {
		if hits[a].Score != hits[b].Score {
			return hits[a].Score > hits[b].Score
		}
		return hits[a].Row < hits[b].Row
	})
	return hits, nil
}
