package search

import (
	"context"
	"math"
	"sort"
	"strings"

	"github.com/temoa-dev/temoa/internal/lexical"
	"github.com/temoa-dev/temoa/internal/profile"
)

// Query expansion uses pseudo-relevance feedback: embed the short query,
// pull a handful of nearest documents, and append their most distinctive
// terms. Expansion is advisory, so any failure falls back to the
// original query.
const (
	expansionSeedDocs    = 5
	expansionTerms       = 3
	expansionMinTokenLen = 3
)

// shouldExpand decides whether the query goes through expansion.
// ExpandAuto expands only short queries, where vocabulary mismatch
// hurts the most.
func shouldExpand(mode profile.Expand, query string) bool {
	switch mode {
	case profile.ExpandOn:
		return true
	case profile.ExpandOff:
		return false
	default:
		return len(strings.Fields(query)) < 3
	}
}

// expandQuery returns the query with distinctive neighbor terms
// appended, or the original query when expansion cannot help.
func (p *Pipeline) expandQuery(ctx context.Context, query string) string {
	ectx, cancel := context.WithTimeout(ctx, p.cfg.ExpansionTimeoutDuration())
	defer cancel()

	vec, err := p.embedder.Embed(ectx, query)
	if err != nil {
		p.logger.Debug("expansion_skipped", "query", query, "error", err)
		return query
	}
	if ectx.Err() != nil {
		p.logger.Debug("expansion_skipped", "query", query, "error", ectx.Err())
		return query
	}

	hits, err := p.store.Search(vec, expansionSeedDocs, nil)
	if err != nil || len(hits) == 0 {
		if err != nil {
			p.logger.Debug("expansion_skipped", "query", query, "error", err)
		}
		return query
	}

	texts := make([]string, 0, len(hits))
	for _, h := range hits {
		if h.Row >= 0 && h.Row < len(p.metas) {
			texts = append(texts, p.metas[h.Row].Content)
		}
	}

	exclude := make(map[string]struct{})
	for _, t := range lexical.Tokenize(query, 1, nil) {
		exclude[t] = struct{}{}
	}

	terms := topTFIDFTerms(texts, expansionTerms, p.stop, exclude)
	if len(terms) == 0 {
		return query
	}

	expanded := query + " " + strings.Join(terms, " ")
	p.logger.Debug("query_expanded", "query", query, "expanded", expanded)
	return expanded
}

// topTFIDFTerms ranks the terms of an ad-hoc corpus by tf-idf and
// returns the top n. Terms present in every document score zero idf and
// drop out, as do stopwords, short tokens and excluded terms.
func topTFIDFTerms(docs []string, n int, stop map[string]struct{}, exclude map[string]struct{}) []string {
	if len(docs) == 0 || n <= 0 {
		return nil
	}

	tf := make(map[string]int)
	df := make(map[string]int)
	for _, doc := range docs {
		seen := make(map[string]struct{})
		for _, term := range lexical.Tokenize(doc, expansionMinTokenLen, stop) {
			if _, skip := exclude[term]; skip {
				continue
			}
			tf[term]++
			if _, dup := seen[term]; !dup {
				seen[term] = struct{}{}
				df[term]++
			}
		}
	}

	type weighted struct {
		term   string
		weight float64
	}
	total := float64(len(docs))
	ranked := make([]weighted, 0, len(tf))
	for term, freq := range tf {
		idf := math.Log(total / float64(df[term]))
		if w := float64(freq) * idf; w > 0 {
			ranked = append(ranked, weighted{term: term, weight: w})
		}
	}
	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].weight != ranked[j].weight {
			return ranked[i].weight > ranked[j].weight
		}
		return ranked[i].term < ranked[j].term
	})

	if n > len(ranked) {
		n = len(ranked)
	}
	terms := make([]string, n)
	for i := 0; i < n; i++ {
		terms[i] = ranked[i].term
	}
	return terms
}
