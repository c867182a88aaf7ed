package search

import (
	"sort"

	"github.com/temoa-dev/temoa/internal/dense"
	"github.com/temoa-dev/temoa/internal/lexical"
)

// DefaultRRFConstant is the standard RRF smoothing parameter. k=60 is
// empirically validated across domains (Azure AI Search, OpenSearch).
const DefaultRRFConstant = 60

// candidate is one embedding row flowing through the pipeline. Retrieval
// and fusion fill the score fields; later stages only reorder and set
// finalScore.
type candidate struct {
	row       int
	simScore  float64
	bm25Score float64
	rrfScore  float64
	denseRank int
	bm25Rank  int
	inBoth    bool

	ceScore  float64
	reranked bool

	finalScore float64
}

// source names the retrieval lists the candidate appeared in.
func (c *candidate) source() string {
	switch {
	case c.denseRank > 0 && c.bm25Rank > 0:
		return "dense+bm25"
	case c.bm25Rank > 0:
		return "bm25"
	default:
		return "dense"
	}
}

// orderingScore is the score the candidate is currently ranked by: the
// cross-encoder score once re-ranked, the fused score before that.
func (c *candidate) orderingScore() float64 {
	if c.reranked {
		return c.ceScore
	}
	return c.rrfScore
}

// fuse merges the dense and BM25 ranked lists with reciprocal rank
// fusion: score(d) = Σ over lists containing d of 1/(k + rank). A list
// that does not contain a document contributes nothing for it.
//
// The fused list is sorted by RRF score (desc), then membership in both
// lists, then BM25 score (desc), then row, and normalized so the top
// score is 1.0.
func fuse(denseHits []dense.Hit, bm25Hits []lexical.Hit, k int) []*candidate {
	if k <= 0 {
		k = DefaultRRFConstant
	}
	if len(denseHits) == 0 && len(bm25Hits) == 0 {
		return []*candidate{}
	}

	byRow := make(map[int]*candidate, len(denseHits)+len(bm25Hits))
	get := func(row int) *candidate {
		if c, ok := byRow[row]; ok {
			return c
		}
		c := &candidate{row: row}
		byRow[row] = c
		return c
	}

	for i, h := range denseHits {
		c := get(h.Row)
		c.simScore = h.Score
		c.denseRank = i + 1
		c.rrfScore += 1 / float64(k+i+1)
	}
	for i, h := range bm25Hits {
		c := get(h.ID)
		c.bm25Score = h.Score
		c.bm25Rank = i + 1
		c.rrfScore += 1 / float64(k+i+1)
		if c.denseRank > 0 {
			c.inBoth = true
		}
	}

	fused := make([]*candidate, 0, len(byRow))
	for _, c := range byRow {
		fused = append(fused, c)
	}
	sort.Slice(fused, func(i, j int) bool {
		return compareFused(fused[i], fused[j])
	})
	normalizeFused(fused)
	return fused
}

// compareFused reports whether a ranks before b.
func compareFused(a, b *candidate) bool {
	if a.rrfScore != b.rrfScore {
		return a.rrfScore > b.rrfScore
	}
	if a.inBoth != b.inBoth {
		return a.inBoth
	}
	if a.bm25Score != b.bm25Score {
		return a.bm25Score > b.bm25Score
	}
	return a.row < b.row
}

// normalizeFused scales RRF scores so the best candidate scores 1.0.
// Rank order is unchanged, and the later multiplicative time boost is
// unaffected by the scaling.
func normalizeFused(fused []*candidate) {
	if len(fused) == 0 {
		return
	}
	max := fused[0].rrfScore
	if max == 0 {
		return
	}
	for _, c := range fused {
		c.rrfScore /= max
	}
}
