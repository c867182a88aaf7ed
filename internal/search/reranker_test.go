package search

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/temoa-dev/temoa/internal/config"
)

func TestNoopReranker_PreservesOrder(t *testing.T) {
	r := &NoopReranker{}

	results, err := r.Rerank(context.Background(), "query", []string{"a", "b", "c"}, 0)

	require.NoError(t, err)
	require.Len(t, results, 3)
	for i, res := range results {
		assert.Equal(t, i, res.Index)
	}
	assert.Greater(t, results[0].Score, results[1].Score)
	assert.Greater(t, results[1].Score, results[2].Score)
}

func TestNoopReranker_TopKTruncates(t *testing.T) {
	r := &NoopReranker{}

	results, err := r.Rerank(context.Background(), "query", []string{"a", "b", "c", "d"}, 2)

	require.NoError(t, err)
	assert.Len(t, results, 2)
}

func TestNoopReranker_AlwaysAvailable(t *testing.T) {
	r := &NoopReranker{}

	assert.True(t, r.Available(context.Background()))
	assert.NoError(t, r.Close())
}

// rerankService fakes the cross-encoder HTTP endpoint.
func rerankService(t *testing.T, scores map[int]float64, status int) (*httptest.Server, *atomic.Int32) {
	t.Helper()
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/health":
			w.WriteHeader(http.StatusOK)
		case "/rerank":
			calls.Add(1)
			if status != http.StatusOK {
				w.WriteHeader(status)
				return
			}
			var req struct {
				Query     string   `json:"query"`
				Documents []string `json:"documents"`
				Model     string   `json:"model"`
			}
			require.NoError(t, json.NewDecoder(r.Body).Decode(&req))

			type item struct {
				Index          int     `json:"index"`
				RelevanceScore float64 `json:"relevance_score"`
			}
			var items []item
			for i := range req.Documents {
				if s, ok := scores[i]; ok {
					items = append(items, item{Index: i, RelevanceScore: s})
				}
			}
			w.Header().Set("Content-Type", "application/json")
			require.NoError(t, json.NewEncoder(w).Encode(map[string]any{"results": items}))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	t.Cleanup(srv.Close)
	return srv, &calls
}

func TestHTTPReranker_ScoresAndSortsDescending(t *testing.T) {
	// Given: a service scoring the second passage highest
	srv, _ := rerankService(t, map[int]float64{0: 0.2, 1: 0.95, 2: 0.6}, http.StatusOK)
	r := NewHTTPReranker(config.RerankerConfig{URL: srv.URL, Model: "test-ce"}, quietLogger())
	defer r.Close()

	// When
	results, err := r.Rerank(context.Background(), "query", []string{"a", "b", "c"}, 0)

	// Then
	require.NoError(t, err)
	require.Len(t, results, 3)
	assert.Equal(t, 1, results[0].Index)
	assert.InDelta(t, 0.95, results[0].Score, 1e-12)
	assert.Equal(t, 2, results[1].Index)
	assert.Equal(t, 0, results[2].Index)
}

func TestHTTPReranker_TopKTruncatesClientSide(t *testing.T) {
	srv, _ := rerankService(t, map[int]float64{0: 0.1, 1: 0.9, 2: 0.5}, http.StatusOK)
	r := NewHTTPReranker(config.RerankerConfig{URL: srv.URL}, quietLogger())
	defer r.Close()

	results, err := r.Rerank(context.Background(), "query", []string{"a", "b", "c"}, 1)

	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, 1, results[0].Index)
}

func TestHTTPReranker_EmptyDocumentsSkipRequest(t *testing.T) {
	srv, calls := rerankService(t, nil, http.StatusOK)
	r := NewHTTPReranker(config.RerankerConfig{URL: srv.URL}, quietLogger())
	defer r.Close()

	results, err := r.Rerank(context.Background(), "query", nil, 0)

	require.NoError(t, err)
	assert.Empty(t, results)
	assert.Zero(t, calls.Load())
}

func TestHTTPReranker_ServerErrorSurfaces(t *testing.T) {
	srv, _ := rerankService(t, nil, http.StatusInternalServerError)
	r := NewHTTPReranker(config.RerankerConfig{URL: srv.URL}, quietLogger())
	defer r.Close()

	_, err := r.Rerank(context.Background(), "query", []string{"a"}, 0)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 500")
}

func TestHTTPReranker_AvailableChecksHealth(t *testing.T) {
	srv, _ := rerankService(t, nil, http.StatusOK)
	r := NewHTTPReranker(config.RerankerConfig{URL: srv.URL}, quietLogger())
	defer r.Close()

	assert.True(t, r.Available(context.Background()))

	srv.Close()
	assert.False(t, r.Available(context.Background()))
}

func TestHTTPReranker_CloseStopsFurtherUse(t *testing.T) {
	srv, _ := rerankService(t, map[int]float64{0: 0.5}, http.StatusOK)
	r := NewHTTPReranker(config.RerankerConfig{URL: srv.URL}, quietLogger())

	require.NoError(t, r.Close())
	require.NoError(t, r.Close())

	_, err := r.Rerank(context.Background(), "query", []string{"a"}, 0)
	assert.Error(t, err)
	assert.False(t, r.Available(context.Background()))
}

func TestNewHTTPReranker_DefaultsAndTrimsURL(t *testing.T) {
	r := NewHTTPReranker(config.RerankerConfig{}, nil)
	assert.Equal(t, DefaultRerankerURL, r.base)

	r = NewHTTPReranker(config.RerankerConfig{URL: "http://svc:9000///"}, nil)
	assert.Equal(t, "http://svc:9000", r.base)
}
