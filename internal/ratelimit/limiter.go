// Package ratelimit enforces sliding-window request budgets. The server
// keeps one Limiter per endpoint class (search, reindex, extract), each
// counting requests per client identity over a trailing window.
package ratelimit

import (
	"sync"
	"time"
)

// maxIdentities caps the number of tracked clients so an identity flood
// cannot grow the map without bound. Idle identities are pruned when
// the cap is reached.
const maxIdentities = 10000

// Limiter is a sliding-window counter per client identity. A request is
// allowed while fewer than limit requests happened in the trailing
// window; there is no burst allowance beyond the budget itself.
type Limiter struct {
	limit  int
	window time.Duration

	mu      sync.Mutex
	seen    map[string][]time.Time
	maxKeys int
	now     func() time.Time
}

// New creates a limiter allowing limit requests per identity per
// window. A non-positive limit disables the limiter; a non-positive
// window falls back to one minute.
func New(limit int, window time.Duration) *Limiter {
	if window <= 0 {
		window = time.Minute
	}
	return &Limiter{
		limit:   limit,
		window:  window,
		seen:    make(map[string][]time.Time),
		maxKeys: maxIdentities,
		now:     time.Now,
	}
}

// Allow records a request for the identity and reports whether it fits
// the budget. Denied requests are not recorded, so probing while
// limited does not extend the penalty.
func (l *Limiter) Allow(identity string) bool {
	if l.limit <= 0 {
		return true
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	hits := l.pruneLocked(identity, now)
	if len(hits) >= l.limit {
		return false
	}

	if _, tracked := l.seen[identity]; !tracked && len(l.seen) >= l.maxKeys {
		l.evictIdleLocked(now)
	}
	l.seen[identity] = append(hits, now)
	return true
}

// RetryAfter returns how long the identity must wait for a slot to free
// up. Zero means a request would be allowed now.
func (l *Limiter) RetryAfter(identity string) time.Duration {
	if l.limit <= 0 {
		return 0
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	hits := l.pruneLocked(identity, now)
	if len(hits) < l.limit {
		return 0
	}
	return hits[0].Add(l.window).Sub(now)
}

// Reset forgets the identity's history.
func (l *Limiter) Reset(identity string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.seen, identity)
}

// Len returns the number of identities currently tracked.
func (l *Limiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.seen)
}

// pruneLocked drops requests that slid out of the window and returns
// the remaining hits, removing the identity entirely once empty.
func (l *Limiter) pruneLocked(identity string, now time.Time) []time.Time {
	hits := l.seen[identity]
	cutoff := now.Add(-l.window)

	keep := 0
	for keep < len(hits) && !hits[keep].After(cutoff) {
		keep++
	}
	if keep > 0 {
		hits = hits[keep:]
		if len(hits) == 0 {
			delete(l.seen, identity)
			return nil
		}
		l.seen[identity] = hits
	}
	return hits
}

// evictIdleLocked removes identities whose windows have fully drained.
func (l *Limiter) evictIdleLocked(now time.Time) {
	cutoff := now.Add(-l.window)
	for identity, hits := range l.seen {
		if len(hits) == 0 || !hits[len(hits)-1].After(cutoff) {
			delete(l.seen, identity)
		}
	}
}
