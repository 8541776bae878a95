// Package dedup tracks provider message ids so a redelivered webhook is
// processed at most once.
package dedup

import (
	"sync"
	"time"
)

const (
	defaultTTL           = time.Hour
	defaultEvictAboveLen = 10000
)

// Deduplicator is a TTL-bounded set of seen message ids. Entries are
// evicted opportunistically: when the set grows past a threshold, one pass
// drops everything older than the TTL. No background sweep.
type Deduplicator struct {
	mu            sync.Mutex
	seen          map[string]time.Time
	ttl           time.Duration
	evictAboveLen int
	nowFunc       func() time.Time
}

type Option func(*Deduplicator)

func WithTTL(ttl time.Duration) Option {
	return func(d *Deduplicator) {
		if ttl > 0 {
			d.ttl = ttl
		}
	}
}

// WithEvictionThreshold sets the set size above which an eviction pass
// runs. Mainly useful to force eviction in tests.
func WithEvictionThreshold(n int) Option {
	return func(d *Deduplicator) {
		if n > 0 {
			d.evictAboveLen = n
		}
	}
}

func New(opts ...Option) *Deduplicator {
	d := &Deduplicator{
		seen:          make(map[string]time.Time),
		ttl:           defaultTTL,
		evictAboveLen: defaultEvictAboveLen,
		nowFunc:       time.Now,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// IsDuplicate reports whether id was already seen within the TTL and marks
// it as seen. The check-and-mark is atomic so concurrent deliveries of the
// same id yield exactly one false.
func (d *Deduplicator) IsDuplicate(id string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	now := d.nowFunc()

	if firstSeen, ok := d.seen[id]; ok && now.Sub(firstSeen) < d.ttl {
		return true
	}

	if len(d.seen) >= d.evictAboveLen {
		d.evictLocked(now)
	}

	d.seen[id] = now
	return false
}

func (d *Deduplicator) evictLocked(now time.Time) {
	for id, firstSeen := range d.seen {
		if now.Sub(firstSeen) >= d.ttl {
			delete(d.seen, id)
		}
	}
}
