// Package telemetry aggregates local query metrics: retrieval-mode and
// profile counts, a latency histogram, the most frequent query terms,
// and a ring of recent zero-result queries. Nothing leaves the machine;
// the sqlite store persists daily aggregates so trends survive
// restarts.
package telemetry

import (
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	lru "github.com/hashicorp/golang-lru/v2"
)

// Latency histogram bucket labels, ordered.
const (
	BucketUnder10  = "<10ms"
	Bucket10to50   = "10-50ms"
	Bucket50to100  = "50-100ms"
	Bucket100to500 = "100-500ms"
	BucketOver500  = ">=500ms"
)

// BucketLabels lists the histogram buckets in ascending order, for
// stable rendering.
var BucketLabels = []string{BucketUnder10, Bucket10to50, Bucket50to100, Bucket100to500, BucketOver500}

func bucketFor(d time.Duration) string {
	switch ms := d.Milliseconds(); {
	case ms < 10:
		return BucketUnder10
	case ms < 50:
		return Bucket10to50
	case ms < 100:
		return Bucket50to100
	case ms < 500:
		return Bucket100to500
	default:
		return BucketOver500
	}
}

// Event is one completed search as reported by the pipeline trace hook.
type Event struct {
	Query   string
	Mode    string
	Profile string
	Results int
	Latency time.Duration
}

// TermCount is a query term with its frequency.
type TermCount struct {
	Term  string `json:"term"`
	Count int64  `json:"count"`
}

// Snapshot is an immutable view of the aggregates collected since the
// process started.
type Snapshot struct {
	TotalQueries  int64            `json:"total_queries"`
	ZeroResults   int64            `json:"zero_results"`
	ModeCounts    map[string]int64 `json:"mode_counts"`
	ProfileCounts map[string]int64 `json:"profile_counts"`
	Latency       map[string]int64 `json:"latency_buckets"`
	TopTerms      []TermCount      `json:"top_terms"`
	RecentZero    []string         `json:"recent_zero_result_queries"`
	Since         time.Time        `json:"since"`
}

// ZeroResultRate returns the fraction of queries that found nothing.
func (s Snapshot) ZeroResultRate() float64 {
	if s.TotalQueries == 0 {
		return 0
	}
	return float64(s.ZeroResults) / float64(s.TotalQueries)
}

// Options tunes the collector. Zero values take defaults.
type Options struct {
	TopTerms      int           // LRU capacity for term frequencies (default 100)
	ZeroResults   int           // ring capacity for zero-result queries (default 100)
	FlushInterval time.Duration // background flush period; 0 disables the loop
}

// Metrics collects query telemetry in memory and periodically flushes
// deltas to an optional store. Safe for concurrent use.
type Metrics struct {
	mu sync.Mutex

	// Session aggregates, never reset. These feed Snapshot.
	modes     map[string]int64
	profiles  map[string]int64
	latencies map[string]int64
	terms     *lru.Cache[string, int64]
	zeroRing  *ring
	total     int64
	zeroTotal int64
	since     time.Time

	// Pending deltas, drained by Flush so restarts and repeated
	// flushes never double-count in the store.
	pendModes    map[string]int64
	pendProfiles map[string]int64
	pendLatency  map[string]int64
	pendTerms    map[string]int64
	pendZero     []string

	store  *Store
	logger *slog.Logger
	ticker *time.Ticker
	done   chan struct{}
	closed bool
}

// New creates a collector. A nil store keeps metrics in memory only.
func New(store *Store, opts Options, logger *slog.Logger) *Metrics {
	if opts.TopTerms <= 0 {
		opts.TopTerms = 100
	}
	if opts.ZeroResults <= 0 {
		opts.ZeroResults = 100
	}
	if logger == nil {
		logger = slog.Default()
	}

	terms, _ := lru.New[string, int64](opts.TopTerms)
	m := &Metrics{
		modes:        make(map[string]int64),
		profiles:     make(map[string]int64),
		latencies:    make(map[string]int64),
		terms:        terms,
		zeroRing:     newRing(opts.ZeroResults),
		since:        time.Now(),
		pendModes:    make(map[string]int64),
		pendProfiles: make(map[string]int64),
		pendLatency:  make(map[string]int64),
		pendTerms:    make(map[string]int64),
		store:        store,
		logger:       logger,
		done:         make(chan struct{}),
	}

	if opts.FlushInterval > 0 && store != nil {
		m.ticker = time.NewTicker(opts.FlushInterval)
		go m.flushLoop()
	}
	return m
}

func (m *Metrics) flushLoop() {
	for {
		select {
		case <-m.ticker.C:
			if err := m.Flush(); err != nil {
				m.logger.Warn("telemetry_flush_failed", slog.Any("error", err))
			}
		case <-m.done:
			return
		}
	}
}

// Record captures one search event.
func (m *Metrics) Record(ev Event) {
	bucket := bucketFor(ev.Latency)
	terms := extractTerms(ev.Query)

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return
	}

	m.total++
	m.modes[ev.Mode]++
	m.pendModes[ev.Mode]++
	if ev.Profile != "" {
		m.profiles[ev.Profile]++
		m.pendProfiles[ev.Profile]++
	}
	m.latencies[bucket]++
	m.pendLatency[bucket]++

	for _, term := range terms {
		count, _ := m.terms.Get(term)
		m.terms.Add(term, count+1)
		m.pendTerms[term]++
	}

	if ev.Results == 0 {
		m.zeroTotal++
		m.zeroRing.add(ev.Query)
		m.pendZero = append(m.pendZero, ev.Query)
	}
}

// Snapshot returns the session aggregates.
func (m *Metrics) Snapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()

	top := make([]TermCount, 0, m.terms.Len())
	for _, term := range m.terms.Keys() {
		if count, ok := m.terms.Peek(term); ok {
			top = append(top, TermCount{Term: term, Count: count})
		}
	}
	sortTermCounts(top)

	return Snapshot{
		TotalQueries:  m.total,
		ZeroResults:   m.zeroTotal,
		ModeCounts:    copyCounts(m.modes),
		ProfileCounts: copyCounts(m.profiles),
		Latency:       copyCounts(m.latencies),
		TopTerms:      top,
		RecentZero:    m.zeroRing.items(),
		Since:         m.since,
	}
}

// Flush drains pending deltas to the store. With no store it is a
// no-op. On failure the drained deltas are dropped rather than
// retried; telemetry is best-effort.
func (m *Metrics) Flush() error {
	if m.store == nil {
		return nil
	}

	m.mu.Lock()
	modes := m.pendModes
	profiles := m.pendProfiles
	latency := m.pendLatency
	terms := m.pendTerms
	zero := m.pendZero
	m.pendModes = make(map[string]int64)
	m.pendProfiles = make(map[string]int64)
	m.pendLatency = make(map[string]int64)
	m.pendTerms = make(map[string]int64)
	m.pendZero = nil
	m.mu.Unlock()

	now := time.Now()
	day := now.Format("2006-01-02")
	if err := m.store.AddModeCounts(day, modes); err != nil {
		return err
	}
	if err := m.store.AddProfileCounts(day, profiles); err != nil {
		return err
	}
	if err := m.store.AddLatencyCounts(day, latency); err != nil {
		return err
	}
	if err := m.store.AddTermCounts(terms, now); err != nil {
		return err
	}
	return m.store.AddZeroResults(zero, now)
}

// Close stops the flush loop and drains what is pending.
func (m *Metrics) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	m.mu.Unlock()

	if m.ticker != nil {
		m.ticker.Stop()
	}
	close(m.done)
	return m.Flush()
}

// extractTerms lowercases the query and keeps words of three or more
// runes, the same floor the lexical tokenizer applies.
func extractTerms(query string) []string {
	fields := strings.Fields(strings.ToLower(query))
	terms := fields[:0]
	for _, f := range fields {
		if utf8.RuneCountInString(f) >= 3 {
			terms = append(terms, f)
		}
	}
	return terms
}

func copyCounts(in map[string]int64) map[string]int64 {
	out := make(map[string]int64, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

func sortTermCounts(terms []TermCount) {
	sort.Slice(terms, func(i, j int) bool {
		if terms[i].Count != terms[j].Count {
			return terms[i].Count > terms[j].Count
		}
		return terms[i].Term < terms[j].Term
	})
}

// ring keeps the most recent n strings in arrival order.
type ring struct {
	buf  []string
	next int
	full bool
}

func newRing(n int) *ring {
	if n <= 0 {
		n = 100
	}
	return &ring{buf: make([]string, n)}
}

func (r *ring) add(s string) {
	r.buf[r.next] = s
	r.next = (r.next + 1) % len(r.buf)
	if r.next == 0 {
		r.full = true
	}
}

// items returns the buffered strings, oldest first.
func (r *ring) items() []string {
	if !r.full {
		return append([]string(nil), r.buf[:r.next]...)
	}
	out := make([]string, 0, len(r.buf))
	out = append(out, r.buf[r.next:]...)
	return append(out, r.buf[:r.next]...)
}
