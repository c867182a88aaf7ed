// Package lexical provides the in-memory BM25 index behind keyword
// retrieval. The index is rebuilt from stored metadata on every (re)index
// and served read-only to concurrent queries, so it carries no locks.
package lexical

import (
	"math"
	"sort"
	"strings"
)

// Doc is one indexable unit: a whole note or a single chunk of one. ID is
// the caller's row identity (the dense-store row), Path the vault-relative
// file path that retrieval allow-lists are keyed by.
type Doc struct {
	ID   int
	Path string
	Text string
	Tags []string
}

// Hit is a scored document reference.
type Hit struct {
	ID    int
	Score float64
}

// Options tunes tokenization and BM25 scoring.
type Options struct {
	K1             float64
	B              float64
	TagWeight      float64 // per-term tag bonus in idf units; 0 disables
	MinTokenLength int
	StopWords      []string // nil means DefaultStopWords, empty means none
}

// DefaultOptions returns the standard ranking parameters.
func DefaultOptions() Options {
	return Options{
		K1:             1.5,
		B:              0.75,
		TagWeight:      0.5,
		MinTokenLength: 2,
		StopWords:      DefaultStopWords,
	}
}

type posting struct {
	doc int // ordinal into docs
	tf  int
}

type docEntry struct {
	id      int
	path    string
	length  int
	tagSet  map[string]struct{}
	rawTags []string
}

// Index ranks documents with BM25 over body tokens plus a tag-field bonus.
// Tag matching is two-tier: a query term that equals any indexed tag token
// scores those documents directly; only a term with no exact tag match
// anywhere falls back to substring matching in either direction.
type Index struct {
	opts     Options
	stop     map[string]struct{}
	docs     []docEntry
	postings map[string][]posting
	tagDocs  map[string][]int // exact tag token -> doc ordinals
	avgLen   float64
}

// Build constructs an index over docs. Structural zero values in opts
// (K1, B, MinTokenLength, nil StopWords) fall back to DefaultOptions;
// TagWeight 0 is honored as "no tag bonus".
func Build(docs []Doc, opts Options) *Index {
	def := DefaultOptions()
	if opts.K1 <= 0 {
		opts.K1 = def.K1
	}
	if opts.B <= 0 {
		opts.B = def.B
	}
	if opts.MinTokenLength <= 0 {
		opts.MinTokenLength = def.MinTokenLength
	}
	if opts.StopWords == nil {
		opts.StopWords = def.StopWords
	}

	ix := &Index{
		opts:     opts,
		stop:     BuildStopWordSet(opts.StopWords),
		postings: make(map[string][]posting),
		tagDocs:  make(map[string][]int),
	}

	total := 0
	for _, d := range docs {
		terms := Tokenize(d.Text, opts.MinTokenLength, ix.stop)
		entry := docEntry{id: d.ID, path: d.Path, length: len(terms)}
		ord := len(ix.docs)

		counts := make(map[string]int, len(terms))
		for _, t := range terms {
			counts[t]++
		}
		for t, tf := range counts {
			ix.postings[t] = append(ix.postings[t], posting{doc: ord, tf: tf})
		}
		total += len(terms)

		for _, raw := range d.Tags {
			tag := strings.ToLower(strings.TrimSpace(raw))
			if tag == "" {
				continue
			}
			entry.rawTags = append(entry.rawTags, tag)
			// Tags are user-chosen labels, so stop words stay.
			for _, tok := range Tokenize(tag, opts.MinTokenLength, nil) {
				if entry.tagSet == nil {
					entry.tagSet = make(map[string]struct{})
				}
				if _, seen := entry.tagSet[tok]; seen {
					continue
				}
				entry.tagSet[tok] = struct{}{}
				ix.tagDocs[tok] = append(ix.tagDocs[tok], ord)
			}
		}

		ix.docs = append(ix.docs, entry)
	}

	if len(ix.docs) > 0 {
		ix.avgLen = float64(total) / float64(len(ix.docs))
	}
	return ix
}

// Search scores the query against the index and returns up to k hits in
// descending score order, ties broken by ascending ID. A query that
// tokenizes to nothing returns no hits rather than an error. When allowed
// is non-nil only documents whose path is in the set are scored.
func (ix *Index) Search(query string, k int, allowed map[string]bool) []Hit {
	if k <= 0 || len(ix.docs) == 0 {
		return nil
	}
	terms := Tokenize(query, ix.opts.MinTokenLength, ix.stop)
	if len(terms) == 0 {
		return nil
	}

	unique := terms[:0]
	seen := make(map[string]struct{}, len(terms))
	for _, t := range terms {
		if _, dup := seen[t]; dup {
			continue
		}
		seen[t] = struct{}{}
		unique = append(unique, t)
	}

	scores := make(map[int]float64)
	for _, t := range unique {
		post := ix.postings[t]
		idf := ix.idf(len(post))

		for _, p := range post {
			d := &ix.docs[p.doc]
			if allowed != nil && !allowed[d.path] {
				continue
			}
			tf := float64(p.tf)
			denom := tf + ix.opts.K1*(1-ix.opts.B+ix.opts.B*float64(d.length)/ix.avgLen)
			scores[p.doc] += idf * tf * (ix.opts.K1 + 1) / denom
		}

		if ix.opts.TagWeight <= 0 {
			continue
		}
		bonus := ix.opts.TagWeight * idf
		if exact := ix.tagDocs[t]; len(exact) > 0 {
			for _, ord := range exact {
				d := &ix.docs[ord]
				if allowed != nil && !allowed[d.path] {
					continue
				}
				scores[ord] += bonus
			}
			continue
		}
		for ord := range ix.docs {
			d := &ix.docs[ord]
			if len(d.rawTags) == 0 {
				continue
			}
			if allowed != nil && !allowed[d.path] {
				continue
			}
			for _, tag := range d.rawTags {
				if strings.Contains(tag, t) || strings.Contains(t, tag) {
					scores[ord] += bonus
					break
				}
			}
		}
	}

	hits := make([]Hit, 0, len(scores))
	for ord, score := range scores {
		hits = append(hits, Hit{ID: ix.docs[ord].id, Score: score})
	}
	sort.Slice(hits, func(a, b int) bool {
		if hits[a].Score != hits[b].Score {
			return hits[a].Score > hits[b].Score
		}
		return hits[a].ID < hits[b].ID
	})
	if len(hits) > k {
		hits = hits[:k]
	}
	return hits
}

// Len returns the number of indexed documents.
func (ix *Index) Len() int { return len(ix.docs) }

// Vocabulary returns the number of distinct body terms.
func (ix *Index) Vocabulary() int { return len(ix.postings) }

// AvgDocLen returns the mean token count per document.
func (ix *Index) AvgDocLen() float64 { return ix.avgLen }

// idf uses the non-negative Robertson formulation.
func (ix *Index) idf(df int) float64 {
	n := float64(len(ix.docs))
	return math.Log(1 + (n-float64(df)+0.5)/(float64(df)+0.5))
}
