package ratelimit

import (
	"testing"
	"time"
)

func TestAcquireWithinCapacity(t *testing.T) {
	l := New(2, 1)

	if wait := l.Acquire(1); wait != 0 {
		t.Errorf("first acquire wait = %v, want 0", wait)
	}
	if wait := l.Acquire(1); wait != 0 {
		t.Errorf("second acquire wait = %v, want 0", wait)
	}
}

func TestAcquireBeyondCapacityWaits(t *testing.T) {
	l := New(2, 1)

	l.Acquire(1)
	l.Acquire(1)
	wait := l.Acquire(1)

	// With the bucket drained and a refill of 1 token/sec, the third
	// token is roughly a second away.
	if wait < 900*time.Millisecond || wait > 1100*time.Millisecond {
		t.Errorf("third acquire wait = %v, want ~1s", wait)
	}
}

func TestAcquireZeroTokens(t *testing.T) {
	l := New(1, 1)
	if wait := l.Acquire(0); wait != 0 {
		t.Errorf("Acquire(0) wait = %v, want 0", wait)
	}
}

func TestDisabledLimiter(t *testing.T) {
	l := New(0, 0)
	for i := 0; i < 100; i++ {
		if wait := l.Acquire(1); wait != 0 {
			t.Fatalf("disabled limiter returned wait %v on acquire %d", wait, i)
		}
	}
}
