package backoff

import (
	"testing"
	"time"
)

func TestDelay_NonDecreasingUpToCap(t *testing.T) {
	p := New(2, 64*time.Second, 0, 1)

	var prev time.Duration
	for attempt := 0; attempt < 12; attempt++ {
		d := p.Delay(attempt)
		if d < prev {
			t.Errorf("Delay(%d) = %v, less than Delay(%d) = %v", attempt, d, attempt-1, prev)
		}
		prev = d
	}
}

func TestDelay_NeverExceedsCap(t *testing.T) {
	p := New(2, 64*time.Second, time.Second, 42)

	for attempt := 0; attempt < 100; attempt++ {
		if d := p.Delay(attempt); d > 64*time.Second {
			t.Fatalf("Delay(%d) = %v, exceeds cap 64s", attempt, d)
		}
	}
}

func TestDelay_JitterBounds(t *testing.T) {
	p := New(2, 64*time.Second, time.Second, 7)

	// Attempt 0: 1s base + [0, 1s) jitter.
	for i := 0; i < 50; i++ {
		d := p.Delay(0)
		if d < time.Second || d >= 2*time.Second {
			t.Fatalf("Delay(0) = %v, want [1s, 2s)", d)
		}
	}
}

func TestDelay_DeterministicWithSeed(t *testing.T) {
	a := New(2, 64*time.Second, time.Second, 99)
	b := New(2, 64*time.Second, time.Second, 99)

	for attempt := 0; attempt < 10; attempt++ {
		da, db := a.Delay(attempt), b.Delay(attempt)
		if da != db {
			t.Errorf("Delay(%d) diverged: %v vs %v", attempt, da, db)
		}
	}
}

func TestDelay_NegativeAttemptTreatedAsZero(t *testing.T) {
	p := New(2, 64*time.Second, 0, 1)

	if d := p.Delay(-3); d != time.Second {
		t.Errorf("Delay(-3) = %v, want 1s", d)
	}
}

func TestDefault(t *testing.T) {
	p := Default()

	if p.Base != 2 {
		t.Errorf("Base = %v, want 2", p.Base)
	}
	if p.Cap != 64*time.Second {
		t.Errorf("Cap = %v, want 64s", p.Cap)
	}
	if p.JitterMax != time.Second {
		t.Errorf("JitterMax = %v, want 1s", p.JitterMax)
	}
}
