package ratelimit

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time { return c.now }

func (c *fakeClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

func newLimiter(max int, window time.Duration) (*SlidingWindow, *fakeClock) {
	clock := &fakeClock{now: time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC)}
	return NewSlidingWindow(max, window, clock), clock
}

func TestAllowWithinBudget(t *testing.T) {
	l, _ := newLimiter(3, time.Minute)

	for i := 0; i < 3; i++ {
		assert.True(t, l.Allow("ip:1"), "hit %d", i)
	}
	assert.False(t, l.Allow("ip:1"))

	// A denied call does not extend the window for later ones.
	assert.False(t, l.Allow("ip:1"))
}

func TestKeysAreIndependent(t *testing.T) {
	l, _ := newLimiter(1, time.Minute)

	assert.True(t, l.Allow("ip:1"))
	assert.False(t, l.Allow("ip:1"))
	assert.True(t, l.Allow("ip:2"))
}

func TestRetryAfter(t *testing.T) {
	l, clock := newLimiter(2, time.Minute)

	assert.Zero(t, l.RetryAfter("ip:1"))

	l.Allow("ip:1")
	assert.Zero(t, l.RetryAfter("ip:1"), "under budget keys are allowed now")

	l.Allow("ip:1")
	clock.Advance(20 * time.Second)
	assert.Equal(t, 40*time.Second, l.RetryAfter("ip:1"))
}

func TestWindowSlides(t *testing.T) {
	l, clock := newLimiter(2, time.Minute)

	assert.True(t, l.Allow("ip:1"))
	clock.Advance(30 * time.Second)
	assert.True(t, l.Allow("ip:1"))
	assert.False(t, l.Allow("ip:1"))

	// The first hit ages out, freeing exactly one slot.
	clock.Advance(31 * time.Second)
	assert.True(t, l.Allow("ip:1"))
	assert.False(t, l.Allow("ip:1"))
}

func TestSweep(t *testing.T) {
	l, clock := newLimiter(5, time.Minute)

	l.Allow("stale")
	clock.Advance(50 * time.Second)
	l.Allow("fresh")
	clock.Advance(20 * time.Second)

	l.Sweep()

	l.mu.Lock()
	_, staleKept := l.hits["stale"]
	_, freshKept := l.hits["fresh"]
	l.mu.Unlock()
	assert.False(t, staleKept)
	assert.True(t, freshKept)
}

func TestAllowConcurrent(t *testing.T) {
	l, _ := newLimiter(10, time.Minute)

	var allowed int64
	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if l.Allow("ip:1") {
				atomic.AddInt64(&allowed, 1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int64(10), allowed)
}
