// Package ratelimit implements the sliding-window throttle applied to login
// attempts, keyed by origin IP (or a subject prefix for trusted callers).
//
// State is in-process and TTL-bounded; it is not durable truth. The Limiter
// interface exists so a shared store with atomic increment/TTL semantics can
// replace the map for multi-instance deployments.
package ratelimit

import (
	"sync"
	"time"

	"github.com/danukusuma/auth-service/internal/auth/domain"
)

type Limiter interface {
	// Allow records a hit for key and reports whether it stays within the
	// window budget. The check and the record are one atomic step.
	Allow(key string) bool
	// RetryAfter reports how long until the oldest retained hit leaves the
	// window. Zero when the key is currently allowed.
	RetryAfter(key string) time.Duration
}

type SlidingWindow struct {
	mu     sync.Mutex
	hits   map[string][]time.Time
	window time.Duration
	max    int
	clock  domain.Clock
}

func NewSlidingWindow(max int, window time.Duration, clock domain.Clock) *SlidingWindow {
	return &SlidingWindow{
		hits:   make(map[string][]time.Time),
		window: window,
		max:    max,
		clock:  clock,
	}
}

func (l *SlidingWindow) Allow(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.clock.Now()
	kept := l.trimLocked(key, now)
	if len(kept) >= l.max {
		return false
	}
	l.hits[key] = append(kept, now)
	return true
}

func (l *SlidingWindow) RetryAfter(key string) time.Duration {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.clock.Now()
	kept := l.trimLocked(key, now)
	if len(kept) < l.max {
		return 0
	}
	return kept[0].Add(l.window).Sub(now)
}

// Sweep drops keys whose every hit has aged out. Callers run it periodically;
// correctness never depends on it because Allow trims per key.
func (l *SlidingWindow) Sweep() {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.clock.Now()
	for key := range l.hits {
		if len(l.trimLocked(key, now)) == 0 {
			delete(l.hits, key)
		}
	}
}

func (l *SlidingWindow) trimLocked(key string, now time.Time) []time.Time {
	cutoff := now.Add(-l.window)
	kept := l.hits[key][:0]
	for _, t := range l.hits[key] {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}
	l.hits[key] = kept
	return kept
}
