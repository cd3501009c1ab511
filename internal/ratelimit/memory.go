// Package ratelimit enforces a minimum interval between provider calls.
package ratelimit

import (
	"context"
	"sync"
	"time"
)

type entry struct {
	lastCall time.Time
	expires  time.Time
}

// Limiter keeps the last call time per key in memory. Entries expire after
// the interval they were recorded with.
type Limiter struct {
	mu      sync.Mutex
	now     func() time.Time
	entries map[string]entry
}

// New creates a Limiter. A nil now uses time.Now.
func New(now func() time.Time) *Limiter {
	if now == nil {
		now = time.Now
	}
	return &Limiter{now: now, entries: make(map[string]entry)}
}

// Allow reports whether at least interval has elapsed since the last
// recorded call for key. When it has not, the remaining wait is returned.
func (l *Limiter) Allow(_ context.Context, key string, interval time.Duration) (bool, time.Duration, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	e, ok := l.entries[key]
	if !ok {
		return true, 0, nil
	}
	if !now.Before(e.expires) {
		delete(l.entries, key)
		return true, 0, nil
	}
	return decide(now.Sub(e.lastCall), interval)
}

// Record stores now as the last call for key.
func (l *Limiter) Record(_ context.Context, key string, interval time.Duration) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	l.entries[key] = entry{lastCall: now, expires: now.Add(interval)}
	return nil
}

// decide applies the interval policy to an elapsed duration. A last call
// stamped in the future (clock skew between instances) counts as made now, so
// the wait never exceeds interval.
func decide(elapsed, interval time.Duration) (bool, time.Duration, error) {
	if elapsed < 0 {
		elapsed = 0
	}
	if elapsed >= interval {
		return true, 0, nil
	}
	return false, interval - elapsed, nil
}
