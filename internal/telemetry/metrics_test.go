package telemetry

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestMetrics(t *testing.T, store *Store) *Metrics {
	t.Helper()
	m := New(store, Options{}, nil)
	t.Cleanup(func() { _ = m.Close() })
	return m
}

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := OpenStore(filepath.Join(t.TempDir(), "telemetry.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestBucketFor_PlacesLatenciesAtBoundaries(t *testing.T) {
	cases := []struct {
		latency time.Duration
		want    string
	}{
		{0, BucketUnder10},
		{9 * time.Millisecond, BucketUnder10},
		{10 * time.Millisecond, Bucket10to50},
		{49 * time.Millisecond, Bucket10to50},
		{50 * time.Millisecond, Bucket50to100},
		{99 * time.Millisecond, Bucket50to100},
		{100 * time.Millisecond, Bucket100to500},
		{499 * time.Millisecond, Bucket100to500},
		{500 * time.Millisecond, BucketOver500},
		{3 * time.Second, BucketOver500},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, bucketFor(tc.latency), "latency %s", tc.latency)
	}
}

func TestRecord_AggregatesModesProfilesAndLatency(t *testing.T) {
	// Given a collector
	m := newTestMetrics(t, nil)

	// When a few searches are recorded
	m.Record(Event{Query: "raft consensus", Mode: "hybrid", Profile: "default", Results: 5, Latency: 8 * time.Millisecond})
	m.Record(Event{Query: "raft log", Mode: "hybrid", Profile: "default", Results: 3, Latency: 60 * time.Millisecond})
	m.Record(Event{Query: "garden notes", Mode: "dense", Profile: "research", Results: 2, Latency: 12 * time.Millisecond})

	// Then the snapshot reflects every dimension
	snap := m.Snapshot()
	assert.Equal(t, int64(3), snap.TotalQueries)
	assert.Equal(t, int64(2), snap.ModeCounts["hybrid"])
	assert.Equal(t, int64(1), snap.ModeCounts["dense"])
	assert.Equal(t, int64(2), snap.ProfileCounts["default"])
	assert.Equal(t, int64(1), snap.ProfileCounts["research"])
	assert.Equal(t, int64(1), snap.Latency[BucketUnder10])
	assert.Equal(t, int64(1), snap.Latency[Bucket10to50])
	assert.Equal(t, int64(1), snap.Latency[Bucket50to100])
}

func TestRecord_TracksZeroResultQueries(t *testing.T) {
	// Given a collector
	m := newTestMetrics(t, nil)

	// When some queries find nothing
	m.Record(Event{Query: "first miss", Mode: "hybrid", Results: 0, Latency: time.Millisecond})
	m.Record(Event{Query: "a hit", Mode: "hybrid", Results: 4, Latency: time.Millisecond})
	m.Record(Event{Query: "second miss", Mode: "dense", Results: 0, Latency: time.Millisecond})

	// Then the misses are counted and kept in order
	snap := m.Snapshot()
	assert.Equal(t, int64(2), snap.ZeroResults)
	assert.Equal(t, []string{"first miss", "second miss"}, snap.RecentZero)
	assert.InDelta(t, 2.0/3.0, snap.ZeroResultRate(), 1e-9)
}

func TestRecord_ZeroResultRingKeepsNewest(t *testing.T) {
	// Given a collector with a tiny ring
	m := New(nil, Options{ZeroResults: 2}, nil)
	defer m.Close()

	// When more misses arrive than the ring holds
	for _, q := range []string{"one", "two", "three"} {
		m.Record(Event{Query: q, Mode: "dense", Results: 0})
	}

	// Then only the newest remain, oldest first
	assert.Equal(t, []string{"two", "three"}, m.Snapshot().RecentZero)
	assert.Equal(t, int64(3), m.Snapshot().ZeroResults)
}

func TestSnapshot_RanksTermsByFrequency(t *testing.T) {
	// Given repeated query terms
	m := newTestMetrics(t, nil)
	m.Record(Event{Query: "kubernetes operator", Mode: "hybrid", Results: 1})
	m.Record(Event{Query: "kubernetes ingress", Mode: "hybrid", Results: 1})
	m.Record(Event{Query: "kubernetes", Mode: "hybrid", Results: 1})

	// When the snapshot is taken
	top := m.Snapshot().TopTerms

	// Then the most frequent term leads and ties sort by term
	require.NotEmpty(t, top)
	assert.Equal(t, TermCount{Term: "kubernetes", Count: 3}, top[0])
	assert.Equal(t, TermCount{Term: "ingress", Count: 1}, top[1])
	assert.Equal(t, TermCount{Term: "operator", Count: 1}, top[2])
}

func TestExtractTerms_DropsShortWords(t *testing.T) {
	assert.Equal(t, []string{"raft", "log"}, extractTerms("Raft we log it"))
	assert.Empty(t, extractTerms("do it"))
	assert.Empty(t, extractTerms(""))
}

func TestFlush_WritesDeltasNotRunningTotals(t *testing.T) {
	// Given a collector backed by a store
	store := newTestStore(t)
	m := newTestMetrics(t, store)
	day := time.Now().Format("2006-01-02")

	// When the same session flushes twice
	m.Record(Event{Query: "alpha notes", Mode: "hybrid", Profile: "default", Results: 1, Latency: 5 * time.Millisecond})
	require.NoError(t, m.Flush())
	m.Record(Event{Query: "beta notes", Mode: "hybrid", Profile: "default", Results: 0, Latency: 5 * time.Millisecond})
	require.NoError(t, m.Flush())
	require.NoError(t, m.Flush())

	// Then persisted counts match the session, not a multiple of it
	modes, err := store.ModeCounts(day, day)
	require.NoError(t, err)
	assert.Equal(t, int64(2), modes["hybrid"])

	terms, err := store.TopTerms(10)
	require.NoError(t, err)
	require.Len(t, terms, 3)
	assert.Equal(t, TermCount{Term: "notes", Count: 2}, terms[0])

	zero, err := store.RecentZeroResults(10)
	require.NoError(t, err)
	assert.Equal(t, []string{"beta notes"}, zero)

	// And the in-memory snapshot still carries the cumulative view
	assert.Equal(t, int64(2), m.Snapshot().TotalQueries)
}

func TestClose_FlushesPendingAndStopsRecording(t *testing.T) {
	// Given a collector with unflushed events
	store := newTestStore(t)
	m := New(store, Options{FlushInterval: time.Hour}, nil)
	m.Record(Event{Query: "pending flush", Mode: "dense", Results: 2, Latency: time.Millisecond})

	// When it is closed
	require.NoError(t, m.Close())

	// Then the event reached the store and later records are dropped
	day := time.Now().Format("2006-01-02")
	modes, err := store.ModeCounts(day, day)
	require.NoError(t, err)
	assert.Equal(t, int64(1), modes["dense"])

	m.Record(Event{Query: "after close", Mode: "dense", Results: 1})
	assert.Equal(t, int64(1), m.Snapshot().TotalQueries)
	require.NoError(t, m.Close())
}
