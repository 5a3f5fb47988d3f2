// Package ratelimit throttles outbound calls per named external service with
// token buckets.
package ratelimit

import (
	"context"
	"sync"
	"time"
)

// Clock abstracts time so tests can drive the bucket with simulated time.
type Clock interface {
	Now() time.Time
	After(d time.Duration) <-chan time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time                         { return time.Now() }
func (systemClock) After(d time.Duration) <-chan time.Time { return time.After(d) }

// SystemClock is the wall clock.
var SystemClock Clock = systemClock{}

// Bucket is a token bucket with a steady refill rate and a burst capacity.
// It starts full.
type Bucket struct {
	rate  float64 // tokens per second
	burst float64
	clock Clock

	mu     sync.Mutex
	tokens float64
	last   time.Time
}

// NewBucket creates a bucket refilling at rate tokens per second and holding
// at most burst tokens. A burst below one is raised to one.
func NewBucket(rate float64, burst int, clock Clock) *Bucket {
	if clock == nil {
		clock = SystemClock
	}
	b := float64(burst)
	if b < 1 {
		b = 1
	}
	return &Bucket{
		rate:   rate,
		burst:  b,
		clock:  clock,
		tokens: b,
		last:   clock.Now(),
	}
}

// refill must be called with mu held.
func (b *Bucket) refill(now time.Time) {
	if elapsed := now.Sub(b.last); elapsed > 0 {
		b.tokens += elapsed.Seconds() * b.rate
		if b.tokens > b.burst {
			b.tokens = b.burst
		}
		b.last = now
	}
}

// full reports whether the bucket has refilled to burst, in which case it is
// indistinguishable from a new one.
func (b *Bucket) full() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.refill(b.clock.Now())
	return b.tokens >= b.burst
}

// TryAcquire takes a token if one is available right now.
func (b *Bucket) TryAcquire() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.refill(b.clock.Now())
	if b.tokens >= 1 {
		b.tokens--
		return true
	}
	return false
}

// Acquire waits until a token is available. The token is reserved up front so
// concurrent callers queue in arrival order; the only error is cancellation
// of ctx, in which case the reservation is returned to the bucket.
func (b *Bucket) Acquire(ctx context.Context) error {
	_, err := b.acquire(ctx)
	return err
}

// acquire reserves a token and returns how long the caller waited.
func (b *Bucket) acquire(ctx context.Context) (time.Duration, error) {
	b.mu.Lock()
	b.refill(b.clock.Now())
	b.tokens--
	var wait time.Duration
	if b.tokens < 0 {
		if b.rate <= 0 {
			b.tokens++
			b.mu.Unlock()
			<-ctx.Done()
			return 0, ctx.Err()
		}
		wait = time.Duration(-b.tokens / b.rate * float64(time.Second))
	}
	b.mu.Unlock()

	if wait <= 0 {
		return 0, nil
	}

	select {
	case <-b.clock.After(wait):
		return wait, nil
	case <-ctx.Done():
		b.mu.Lock()
		b.tokens++
		b.mu.Unlock()
		return 0, ctx.Err()
	}
}

// Rate returns the steady refill rate in tokens per second.
func (b *Bucket) Rate() float64 { return b.rate }

// Burst returns the bucket capacity.
func (b *Bucket) Burst() int { return int(b.burst) }
