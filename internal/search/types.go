// Package search runs the query pipeline: optional expansion, prefilter
// construction, dense and BM25 retrieval, reciprocal-rank fusion, result
// filters, chunk deduplication, cross-encoder re-ranking, time-decay
// boost and truncation, in that order.
package search

import (
	"math"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/temoa-dev/temoa/internal/filter"
	"github.com/temoa-dev/temoa/internal/profile"
)

// Result is one search hit as serialized to clients. Every stage writes
// its contribution to a dedicated field; CombinedScore carries the final
// ordering key.
type Result struct {
	Path              string         `json:"path"`
	Title             string         `json:"title"`
	Excerpt           string         `json:"excerpt"`
	Frontmatter       map[string]any `json:"frontmatter,omitempty"`
	Tags              []string       `json:"tags,omitempty"`
	SimilarityScore   float64        `json:"similarity_score"`
	BM25Score         float64        `json:"bm25_score"`
	RRFScore          float64        `json:"rrf_score"`
	CrossEncoderScore *float64       `json:"cross_encoder_score,omitempty"`
	CombinedScore     float64        `json:"combined_score"`
	Source            string         `json:"source"`
}

// Options are the per-query pipeline parameters, normally derived from a
// profile and then overridden by explicit query parameters.
type Options struct {
	Limit        int
	Profile      string
	Mode         profile.Mode
	Expand       profile.Expand
	Rerank       bool
	TimeBoost    bool
	HalfLifeDays int
	ChunkDedup   bool
	Filters      filter.Filters
}

// OptionsFromProfile expands a resolved profile into pipeline options.
func OptionsFromProfile(p profile.Profile) Options {
	return Options{
		Limit:        p.Limit,
		Profile:      p.ID,
		Mode:         p.Mode,
		Expand:       p.Expand,
		Rerank:       p.Rerank,
		TimeBoost:    p.HalfLifeDays > 0,
		HalfLifeDays: p.HalfLifeDays,
		ChunkDedup:   p.Chunking,
	}
}

// QueryTrace summarizes one executed query for telemetry.
type QueryTrace struct {
	Query      string
	Profile    string
	Mode       profile.Mode
	Expanded   bool
	Reranked   bool
	Boosted    bool
	Candidates int
	Results    int
	Latency    time.Duration
}

// Stats describes the indexed corpus behind a pipeline.
type Stats struct {
	FileCount      int       `json:"file_count"`
	EmbeddingCount int       `json:"embedding_count"`
	TagCount       int       `json:"tag_count"`
	DirectoryCount int       `json:"directory_count"`
	ModelID        string    `json:"model_id"`
	Dimension      int       `json:"dimension"`
	CreatedAt      time.Time `json:"created_at"`
}

const excerptRunes = 300

// buildExcerpt trims content to the excerpt budget, cutting back to a
// word boundary when one is close enough.
func buildExcerpt(content string) string {
	content = strings.TrimSpace(content)
	if utf8.RuneCountInString(content) <= excerptRunes {
		return content
	}
	runes := []rune(content)
	cut := excerptRunes
	for i := cut; i > cut-40 && i > 0; i-- {
		if runes[i-1] == ' ' || runes[i-1] == '\n' {
			cut = i - 1
			break
		}
	}
	return strings.TrimRight(string(runes[:cut]), " \n") + "…"
}

// sanitizeScore maps non-finite values to 0 so serialized output stays
// JSON-safe.
func sanitizeScore(f float64) float64 {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0
	}
	return f
}
