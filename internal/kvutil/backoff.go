package kvutil

import (
	"context"
	rand "math/rand/v2"
	"time"
)

// Backoff produces capped, decorrelated-jitter delays between retry attempts.
//
// Each delay is drawn from [base, prev*multiplier) and clamped to the cap, so
// concurrent writers contending on the same key spread out instead of retrying in
// lockstep. A Backoff is not safe for concurrent use; create one per retry loop.
type Backoff struct {
	base       time.Duration
	multiplier float64
	capDur     time.Duration
	rng        *rand.Rand
	prev       time.Duration
}

// NewBackoff creates a backoff sequence.
//
// Parameters:
//   - base: First delay and lower bound of every delay (50ms if <= 0)
//   - multiplier: Growth factor (values below 1.0 mean no growth)
//   - capDur: Upper bound of every delay (unbounded if <= 0)
//   - seed: Non-zero seed for a deterministic sequence; 0 uses the global source
//
// Returns:
//   - *Backoff: A new sequence starting at base
func NewBackoff(base time.Duration, multiplier float64, capDur time.Duration, seed int64) *Backoff {
	if base <= 0 {
		base = 50 * time.Millisecond
	}
	if multiplier < 1.0 {
		multiplier = 1.0
	}

	return &Backoff{
		base:       base,
		multiplier: multiplier,
		capDur:     capDur,
		rng:        newRNG(seed),
	}
}

// Next returns the next delay and advances the sequence.
func (b *Backoff) Next() time.Duration {
	b.prev = b.next(b.prev)
	return b.prev
}

// Reset restarts the sequence at base.
func (b *Backoff) Reset() {
	b.prev = 0
}

// Wait sleeps for the next delay or until ctx is done.
//
// Returns:
//   - error: ctx.Err() when the context ended first, nil otherwise
func (b *Backoff) Wait(ctx context.Context) error {
	timer := time.NewTimer(b.Next())
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func (b *Backoff) next(prev time.Duration) time.Duration {
	if b.capDur > 0 && b.capDur < b.base {
		return b.capDur
	}
	if prev <= 0 {
		return b.base
	}

	span := time.Duration(float64(prev)*b.multiplier) - b.base
	if span <= 0 {
		span = b.base
	}

	var jitter int64
	if b.rng != nil {
		jitter = b.rng.Int64N(int64(span))
	} else {
		jitter = rand.Int64N(int64(span)) //nolint:gosec // retry jitter, not security sensitive
	}

	next := b.base + time.Duration(jitter)
	if b.capDur > 0 && next > b.capDur {
		return b.capDur
	}

	return next
}

// newRNG returns a seeded source for seed != 0, and nil otherwise so the
// package-level source is used.
//
//nolint:gosec
func newRNG(seed int64) *rand.Rand {
	if seed == 0 {
		return nil
	}
	s1 := uint64(seed)

	return rand.New(rand.NewPCG(s1, s1^0x9e3779b97f4a7c15))
}
