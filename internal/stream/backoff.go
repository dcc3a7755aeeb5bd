package stream

import (
	"math/rand"
	"time"
)

// Backoff yields exponentially growing reconnect delays with equal jitter:
// half of the capped exponential step is fixed and half is random, so every
// delay is strictly positive. Not safe for concurrent use.
type Backoff struct {
	Base time.Duration
	Max  time.Duration

	attempt int
	rng     *rand.Rand
}

// NewBackoff creates a backoff with the given base and cap
func NewBackoff(base, max time.Duration) *Backoff {
	if base <= 0 {
		base = time.Second
	}
	if max < base {
		max = base
	}
	return &Backoff{
		Base: base,
		Max:  max,
		rng:  rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// Next returns the delay before the next attempt and advances the counter
func (b *Backoff) Next() time.Duration {
	step := b.Max
	if b.attempt < 32 {
		if d := b.Base << uint(b.attempt); d > 0 && d < b.Max {
			step = d
		}
	}
	b.attempt++

	half := step / 2
	if half <= 0 {
		return step
	}
	return half + time.Duration(b.rng.Int63n(int64(half)+1))
}

// Reset returns to the base delay after a successful connection
func (b *Backoff) Reset() {
	b.attempt = 0
}

// Attempt returns the number of delays handed out since the last reset
func (b *Backoff) Attempt() int {
	return b.attempt
}
