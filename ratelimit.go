package clubhouse

import (
	"sync"
	"time"
)

// rateWindow tracks code requests for one phone inside the current window.
type rateWindow struct {
	count   int
	resetAt time.Time
}

// RateLimiter bounds verification-code sends per phone. Counters are
// process-wide and safe under concurrent requests; they reset when the
// window elapses. State is intentionally not persisted: a restart forgiving
// the counters is acceptable, losing a live code is not.
type RateLimiter struct {
	mu      sync.Mutex
	max     int
	window  time.Duration
	entries map[string]*rateWindow
	now     func() time.Time
}

// NewRateLimiter creates a limiter allowing max requests per window.
func NewRateLimiter(max int, window time.Duration) *RateLimiter {
	return &RateLimiter{
		max:     max,
		window:  window,
		entries: map[string]*rateWindow{},
		now:     time.Now,
	}
}

// WithClock injects a custom clock (useful for tests).
func (r *RateLimiter) WithClock(clock func() time.Time) *RateLimiter {
	if clock != nil {
		r.now = clock
	}
	return r
}

// pruneEvery bounds how large the entries map can grow between sweeps.
const pruneEvery = 256

// Allow records an attempt for the key and reports whether it is within
// bounds. The attempt is counted even when denied, so hammering does not
// reopen the window early.
func (r *RateLimiter) Allow(key string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()

	entry, ok := r.entries[key]
	if !ok || now.After(entry.resetAt) {
		if len(r.entries) >= pruneEvery {
			r.pruneLocked(now)
		}
		r.entries[key] = &rateWindow{count: 1, resetAt: now.Add(r.window)}
		return true
	}

	entry.count++
	return entry.count <= r.max
}

// Reset clears the counter for a key. Used after a successful verification
// so a member who mistyped earlier is not locked out of their next login.
func (r *RateLimiter) Reset(key string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.entries, key)
}

// Prune drops windows that elapsed before now. Allow sweeps on its own once
// the map grows past a threshold; this is for callers that want to force it.
func (r *RateLimiter) Prune() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.pruneLocked(r.now())
}

func (r *RateLimiter) pruneLocked(now time.Time) {
	for key, entry := range r.entries {
		if now.After(entry.resetAt) {
			delete(r.entries, key)
		}
	}
}
