package shipper

import (
	"testing"
	"time"
)

func TestBreakerOpensAtThreshold(t *testing.T) {
	b := NewBreaker(3, time.Minute)

	for i := 0; i < 2; i++ {
		b.RecordFailure()
		if !b.Allow() {
			t.Fatalf("circuit opened after %d failures, threshold is 3", i+1)
		}
	}
	b.RecordFailure()

	if b.State() != CircuitOpen {
		t.Fatalf("state = %v, want open", b.State())
	}
	if b.Allow() {
		t.Error("open circuit should reject batches")
	}
}

func TestBreakerSuccessResetsFailures(t *testing.T) {
	b := NewBreaker(3, time.Minute)

	b.RecordFailure()
	b.RecordFailure()
	b.RecordSuccess()
	b.RecordFailure()
	b.RecordFailure()

	if b.State() != CircuitClosed {
		t.Errorf("state = %v, want closed after reset", b.State())
	}
}

func TestBreakerCooldownAdmitsOneProbe(t *testing.T) {
	now := time.Now()
	b := NewBreaker(1, 30*time.Second)
	b.now = func() time.Time { return now }

	b.RecordFailure()
	if b.Allow() {
		t.Fatal("circuit should be open")
	}

	now = now.Add(29 * time.Second)
	if b.Allow() {
		t.Fatal("circuit should stay open during the cooldown")
	}

	now = now.Add(time.Second)
	if !b.Allow() {
		t.Fatal("cooldown elapsed, one probe should pass")
	}
	if b.State() != CircuitHalfOpen {
		t.Fatalf("state = %v, want half_open", b.State())
	}
	if b.Allow() {
		t.Error("only one probe may pass while half-open")
	}
}

func TestBreakerProbeOutcome(t *testing.T) {
	t.Run("success closes", func(t *testing.T) {
		now := time.Now()
		b := NewBreaker(1, time.Second)
		b.now = func() time.Time { return now }

		b.RecordFailure()
		now = now.Add(time.Second)
		if !b.Allow() {
			t.Fatal("probe should pass")
		}
		b.RecordSuccess()

		if b.State() != CircuitClosed {
			t.Errorf("state = %v, want closed", b.State())
		}
		if !b.Allow() {
			t.Error("closed circuit should allow batches")
		}
	})

	t.Run("failure reopens and resets cooldown", func(t *testing.T) {
		now := time.Now()
		b := NewBreaker(1, 10*time.Second)
		b.now = func() time.Time { return now }

		b.RecordFailure()
		now = now.Add(10 * time.Second)
		if !b.Allow() {
			t.Fatal("probe should pass")
		}
		b.RecordFailure()

		if b.State() != CircuitOpen {
			t.Fatalf("state = %v, want open", b.State())
		}
		now = now.Add(9 * time.Second)
		if b.Allow() {
			t.Error("cooldown should restart from the failed probe")
		}
		now = now.Add(time.Second)
		if !b.Allow() {
			t.Error("restarted cooldown elapsed, probe should pass")
		}
	})
}

func TestBreakerDisabled(t *testing.T) {
	b := NewBreaker(0, time.Minute)
	for i := 0; i < 10; i++ {
		b.RecordFailure()
	}
	if !b.Allow() {
		t.Error("disabled breaker should always allow")
	}
	if b.State() != CircuitClosed {
		t.Errorf("state = %v, want closed", b.State())
	}
}
