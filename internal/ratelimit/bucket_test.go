package ratelimit

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeClock only moves when told to. After advances the clock by the
// requested duration and fires immediately, so a waiting caller observes the
// simulated time it waited for.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func (c *fakeClock) After(d time.Duration) <-chan time.Time {
	c.Advance(d)
	ch := make(chan time.Time, 1)
	ch <- c.Now()
	return ch
}

// blockingClock never fires After, for cancellation tests.
type blockingClock struct{ *fakeClock }

func (blockingClock) After(time.Duration) <-chan time.Time { return make(chan time.Time) }

func TestBucket_StartsFull(t *testing.T) {
	clock := newFakeClock()
	b := NewBucket(1, 3, clock)

	assert.True(t, b.TryAcquire())
	assert.True(t, b.TryAcquire())
	assert.True(t, b.TryAcquire())
	assert.False(t, b.TryAcquire())

	clock.Advance(time.Second)
	assert.True(t, b.TryAcquire())
	assert.False(t, b.TryAcquire())
}

func TestBucket_RefillCappedAtBurst(t *testing.T) {
	clock := newFakeClock()
	b := NewBucket(10, 5, clock)
	for b.TryAcquire() {
	}

	clock.Advance(time.Hour)
	n := 0
	for b.TryAcquire() {
		n++
	}
	assert.Equal(t, 5, n)
}

func TestBucket_NeverExceedsBurstPlusElapsedRate(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	for _, tc := range []struct {
		rate  float64
		burst int
	}{
		{rate: 1, burst: 3},
		{rate: 45, burst: 15},
		{rate: 0.5, burst: 1},
		{rate: 10, burst: 10},
	} {
		clock := newFakeClock()
		start := clock.Now()
		b := NewBucket(tc.rate, tc.burst, clock)

		granted := 0
		for step := 0; step < 2000; step++ {
			clock.Advance(time.Duration(rng.Intn(50)) * time.Millisecond)
			for i := rng.Intn(4); i >= 0; i-- {
				if b.TryAcquire() {
					granted++
				}
			}
			elapsed := clock.Now().Sub(start).Seconds()
			limit := float64(tc.burst) + elapsed*tc.rate
			require.LessOrEqual(t, float64(granted), limit+1e-9,
				"rate=%v burst=%d granted=%d elapsed=%.3fs", tc.rate, tc.burst, granted, elapsed)
		}
	}
}

func TestBucket_AcquireWaitsForRefill(t *testing.T) {
	clock := newFakeClock()
	start := clock.Now()
	b := NewBucket(2, 2, clock)
	ctx := context.Background()

	for i := 0; i < 6; i++ {
		require.NoError(t, b.Acquire(ctx))
	}

	// Two tokens were free, the remaining four cost 0.5s each.
	assert.Equal(t, 2*time.Second, clock.Now().Sub(start))
}

func TestBucket_AcquireCancelledReturnsToken(t *testing.T) {
	clock := blockingClock{newFakeClock()}
	b := NewBucket(1, 1, clock)
	require.True(t, b.TryAcquire())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- b.Acquire(ctx) }()
	cancel()

	err := <-done
	require.ErrorIs(t, err, context.Canceled)

	clock.Advance(time.Second)
	assert.True(t, b.TryAcquire(), "cancelled reservation must be released")
}

func TestRegistry_NamedBucketsAndObserver(t *testing.T) {
	clock := newFakeClock()
	r := NewRegistry(map[string]Limit{
		ServiceJupiterFree: {Rate: 1, Burst: 1},
	}, Limit{Rate: 100, Burst: 100}, clock)

	var (
		mu    sync.Mutex
		waits = map[string]time.Duration{}
	)
	r.OnWait(func(service string, d time.Duration) {
		mu.Lock()
		waits[service] += d
		mu.Unlock()
	})

	acq := r.For(ServiceJupiterFree)
	require.NoError(t, acq.Acquire(context.Background()))
	require.NoError(t, acq.Acquire(context.Background()))
	assert.Equal(t, time.Second, waits[ServiceJupiterFree])

	// Unknown services get the fallback limit.
	assert.Equal(t, 100, r.Bucket("other").Burst())
	assert.True(t, r.TryAcquire("other"))
}

func TestRegistry_PrunesRefilledFallbackBuckets(t *testing.T) {
	clock := newFakeClock()
	r := NewRegistry(map[string]Limit{
		ServiceSolanaRPC: {Rate: 1, Burst: 1},
	}, Limit{Rate: 1, Burst: 2}, clock)

	require.True(t, r.TryAcquire(ServiceSolanaRPC))
	for i := 0; i < 10; i++ {
		require.True(t, r.TryAcquire(fmt.Sprintf("api:10.0.0.%d", i)))
	}
	assert.Equal(t, 11, r.Len())

	// Half-empty buckets still carry state.
	assert.Zero(t, r.Prune())
	assert.False(t, r.TryAcquire(ServiceSolanaRPC))

	clock.Advance(time.Second)
	assert.Equal(t, 10, r.Prune())
	assert.Equal(t, 1, r.Len(), "configured bucket kept")
	assert.Equal(t, 1, r.Bucket(ServiceSolanaRPC).Burst())

	// A recreated client bucket starts full, like the one dropped.
	assert.True(t, r.TryAcquire("api:10.0.0.1"))
	assert.True(t, r.TryAcquire("api:10.0.0.1"))
	assert.False(t, r.TryAcquire("api:10.0.0.1"))
}

func TestRegistry_SweepsWhileCreating(t *testing.T) {
	clock := newFakeClock()
	r := NewRegistry(nil, Limit{Rate: 1, Burst: 1}, clock)
	r.pruneEvery = 4

	for i := 0; i < 1000; i++ {
		require.True(t, r.TryAcquire(fmt.Sprintf("api:%d", i)))
		clock.Advance(time.Second)
	}
	assert.LessOrEqual(t, r.Len(), 4)
}
