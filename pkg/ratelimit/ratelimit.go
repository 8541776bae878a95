// Package ratelimit provides per-key sliding-window admission control for
// the inbound HTTP edge.
package ratelimit

import (
	"sync"
	"time"
)

// Limiter admits at most maxRequests calls per key within a trailing
// window. Safe for concurrent use; the prune/count/append sequence for a
// key runs under one lock so two racing callers cannot both claim the last
// slot.
type Limiter struct {
	mu      sync.Mutex
	seen    map[string][]time.Time
	max     int
	window  time.Duration
	nowFunc func() time.Time
}

func New(maxRequests int, window time.Duration) *Limiter {
	return &Limiter{
		seen:    make(map[string][]time.Time),
		max:     maxRequests,
		window:  window,
		nowFunc: time.Now,
	}
}

// Allow reports whether a call from key is admitted right now. Admitted
// calls are recorded; rejected calls leave the window untouched.
func (l *Limiter) Allow(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.nowFunc()
	cutoff := now.Add(-l.window)

	history := l.seen[key]
	kept := history[:0]
	for _, ts := range history {
		if ts.After(cutoff) {
			kept = append(kept, ts)
		}
	}

	if len(kept) >= l.max {
		l.seen[key] = kept
		return false
	}

	l.seen[key] = append(kept, now)
	return true
}
