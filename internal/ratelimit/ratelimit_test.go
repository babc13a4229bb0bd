package ratelimit

import (
	"context"
	"testing"
	"time"

	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// fakeClock steps time manually.
type fakeClock struct {
	t time.Time
}

func (c *fakeClock) now() time.Time          { return c.t }
func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestLimiter(window, horizon time.Duration) (*Limiter, *fakeClock) {
	clock := &fakeClock{t: time.Unix(1700000000, 0)}
	return New(window, horizon).WithClock(clock.now), clock
}

func TestFirstCheckAllowedAndRecorded(t *testing.T) {
	l, _ := newTestLimiter(5*time.Second, time.Minute)

	if got := l.Check("user-1"); !got.Allowed {
		t.Fatal("first check should be allowed")
	}
	if l.Len() != 1 {
		t.Errorf("Len() = %d, want 1 (first allow must be recorded)", l.Len())
	}
}

func TestDenyWithinWindow(t *testing.T) {
	l, clock := newTestLimiter(5*time.Second, time.Minute)

	l.Check("user-1")
	clock.advance(2 * time.Second)

	got := l.Check("user-1")
	if got.Allowed {
		t.Fatal("second check within window should be denied")
	}
	if got.RemainingSeconds != 3 {
		t.Errorf("RemainingSeconds = %d, want 3", got.RemainingSeconds)
	}
}

func TestRemainingRoundsUp(t *testing.T) {
	l, clock := newTestLimiter(5*time.Second, time.Minute)

	l.Check("user-1")
	clock.advance(2500 * time.Millisecond)

	got := l.Check("user-1")
	if got.Allowed {
		t.Fatal("expected denial")
	}
	if got.RemainingSeconds != 3 {
		t.Errorf("RemainingSeconds = %d, want ceil(2.5) = 3", got.RemainingSeconds)
	}
}

func TestDenialDoesNotRefreshTimestamp(t *testing.T) {
	l, clock := newTestLimiter(5*time.Second, time.Minute)

	l.Check("user-1")
	clock.advance(4 * time.Second)
	if got := l.Check("user-1"); got.Allowed {
		t.Fatal("expected denial at t+4s")
	}

	// 5s after the original acceptance; would still be within the window
	// if the denial had refreshed the timestamp.
	clock.advance(1 * time.Second)
	if got := l.Check("user-1"); !got.Allowed {
		t.Errorf("expected allow at t+5s, denied with %ds remaining", got.RemainingSeconds)
	}
}

func TestAllowAfterWindowElapses(t *testing.T) {
	l, clock := newTestLimiter(5*time.Second, time.Minute)

	l.Check("user-1")
	clock.advance(5 * time.Second)
	if got := l.Check("user-1"); !got.Allowed {
		t.Error("check after full window should be allowed")
	}
}

func TestIndependentIdentities(t *testing.T) {
	l, _ := newTestLimiter(5*time.Second, time.Minute)

	l.Check("user-1")
	if got := l.Check("user-2"); !got.Allowed {
		t.Error("different identity must not share the cooldown")
	}
}

func TestSweepEvictsIdleEntries(t *testing.T) {
	l, clock := newTestLimiter(5*time.Second, time.Minute)

	l.Check("idle")
	clock.advance(30 * time.Second)
	l.Check("fresh")

	clock.advance(31 * time.Second) // "idle" is 61s old, "fresh" 31s

	if evicted := l.Sweep(); evicted != 1 {
		t.Errorf("Sweep() = %d, want 1", evicted)
	}
	if l.Len() != 1 {
		t.Errorf("Len() = %d after sweep, want 1", l.Len())
	}

	// Eviction never affects correctness: an evicted identity is simply
	// "never limited" again.
	if got := l.Check("idle"); !got.Allowed {
		t.Error("evicted identity should be allowed")
	}
}

func TestHorizonClampedToWindow(t *testing.T) {
	l := New(10*time.Second, time.Second)
	if l.horizon != 10*time.Second {
		t.Errorf("horizon = %v, want clamped to window", l.horizon)
	}
}

func TestSweeperStopsOnCancel(t *testing.T) {
	l, _ := newTestLimiter(time.Second, time.Second)

	ctx, cancel := context.WithCancel(context.Background())
	l.StartSweeper(ctx, 10*time.Millisecond)
	time.Sleep(30 * time.Millisecond)
	cancel()
	// goleak in TestMain verifies the goroutine exits.
	time.Sleep(20 * time.Millisecond)
}
