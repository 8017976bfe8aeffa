package rate

import (
	"context"
	"sync"
	"time"
)

// MemoryLimiter keeps counters in process. Auth and user each hold their
// own, so it only suits dev and test.
type MemoryLimiter struct {
	mu        sync.Mutex
	limit     int
	window    time.Duration
	counters  map[string]counter
	nextSweep time.Time
}

type counter struct {
	hits    int
	expires time.Time
}

func NewMemory(limit int, window time.Duration) *MemoryLimiter {
	return &MemoryLimiter{limit: limit, window: window, counters: map[string]counter{}}
}

func (l *MemoryLimiter) Allow(_ context.Context, key string, now time.Time) (bool, time.Duration, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.sweep(now)

	c, ok := l.counters[key]
	if !ok || !now.Before(c.expires) {
		c = counter{expires: now.Add(l.window)}
	}
	if c.hits >= l.limit {
		return false, c.expires.Sub(now), nil
	}
	c.hits++
	l.counters[key] = c
	return true, 0, nil
}

// sweep drops expired counters at most once per window.
func (l *MemoryLimiter) sweep(now time.Time) {
	if now.Before(l.nextSweep) {
		return
	}
	for k, c := range l.counters {
		if !now.Before(c.expires) {
			delete(l.counters, k)
		}
	}
	l.nextSweep = now.Add(l.window)
}

// Len reports how many keys are being tracked.
func (l *MemoryLimiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.counters)
}
