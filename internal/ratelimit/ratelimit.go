// Package ratelimit implements a per-identity cooldown gate. Each identity
// gets one accepted message per window; entries idle beyond the sweep
// horizon are evicted to bound memory.
package ratelimit

import (
	"context"
	"math"
	"sync"
	"time"

	"cottbot/internal/logging"
)

// Result reports the outcome of one cooldown check.
type Result struct {
	Allowed bool
	// RemainingSeconds is how long the identity must wait, set on denial.
	RemainingSeconds int
}

// Limiter is a cooldown gate keyed by opaque identity. The zero value is
// not usable; construct with New. Safe for concurrent use.
type Limiter struct {
	mu      sync.Mutex
	last    map[string]time.Time
	window  time.Duration
	horizon time.Duration
	now     func() time.Time
}

// New creates a limiter with the given cooldown window and sweep horizon.
// The horizon must be at least the window; eviction only affects memory,
// never correctness.
func New(window, horizon time.Duration) *Limiter {
	if horizon < window {
		horizon = window
	}
	return &Limiter{
		last:    make(map[string]time.Time),
		window:  window,
		horizon: horizon,
		now:     time.Now,
	}
}

// WithClock replaces the limiter's time source. Test hook.
func (l *Limiter) WithClock(now func() time.Time) *Limiter {
	l.now = now
	return l
}

// Check reports whether the identity may proceed. An allowed check records
// the current time as the identity's last acceptance, including the very
// first check for an unseen identity. Denial leaves the stored timestamp
// untouched.
func (l *Limiter) Check(identity string) Result {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	if last, ok := l.last[identity]; ok {
		elapsed := now.Sub(last)
		if elapsed < l.window {
			remaining := int(math.Ceil((l.window - elapsed).Seconds()))
			return Result{Allowed: false, RemainingSeconds: remaining}
		}
	}

	l.last[identity] = now
	return Result{Allowed: true}
}

// Sweep evicts entries idle beyond the horizon and returns the eviction
// count.
func (l *Limiter) Sweep() int {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	evicted := 0
	for identity, last := range l.last {
		if now.Sub(last) > l.horizon {
			delete(l.last, identity)
			evicted++
		}
	}
	if evicted > 0 {
		logging.GatewayDebug("rate limiter sweep evicted %d entries", evicted)
	}
	return evicted
}

// StartSweeper runs Sweep every interval until the context is cancelled.
// Non-blocking; the goroutine exits when ctx is done.
func (l *Limiter) StartSweeper(ctx context.Context, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				l.Sweep()
			}
		}
	}()
}

// Len returns the number of tracked identities.
func (l *Limiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.last)
}
