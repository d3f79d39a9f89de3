// Package backoff computes retry delays with capped exponential growth and jitter.
package backoff

import (
	"math"
	"math/rand"
	"time"
)

// Policy computes the delay before a retry attempt.
//
// The delay for attempt n is min(Cap, Base^n seconds + jitter), where jitter
// is uniform in [0, JitterMax). A Policy is safe for use from a single
// goroutine; share one per retry loop, not across them.
type Policy struct {
	// Base is the exponent base in seconds. Attempt n waits Base^n seconds
	// before jitter.
	Base float64

	// Cap is the maximum delay, jitter included.
	Cap time.Duration

	// JitterMax is the upper bound of the random jitter added to each delay.
	JitterMax time.Duration

	rng *rand.Rand
}

// Default returns the policy used for upstream API retries:
// base 2, capped at 64 seconds, up to 1 second of jitter.
func Default() *Policy {
	return New(2, 64*time.Second, time.Second, rand.Int63())
}

// New creates a policy with a seeded random source, so delays are
// reproducible in tests.
func New(base float64, cap, jitterMax time.Duration, seed int64) *Policy {
	return &Policy{
		Base:      base,
		Cap:       cap,
		JitterMax: jitterMax,
		rng:       rand.New(rand.NewSource(seed)),
	}
}

// Delay returns the wait duration before the given attempt. Attempts are
// zero-based: attempt 0 is the first retry.
func (p *Policy) Delay(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}

	exp := math.Pow(p.Base, float64(attempt))
	d := time.Duration(exp * float64(time.Second))

	// Guard against overflow for large attempt counts.
	if d <= 0 || d > p.Cap {
		return p.Cap
	}

	if p.JitterMax > 0 {
		d += time.Duration(p.rng.Int63n(int64(p.JitterMax)))
	}

	if d > p.Cap {
		return p.Cap
	}
	return d
}
