package ratelimit

import (
	"context"
	"sync"
	"time"
)

// Well-known service names.
const (
	ServiceSolanaRPC    = "solana_rpc"
	ServiceJupiterPaid  = "jupiter_paid"
	ServiceJupiterFree  = "jupiter_free"
	ServiceJupiterPrice = "jupiter_price"
)

// Limit configures one bucket.
type Limit struct {
	Rate  float64
	Burst int
}

// Acquirer is satisfied by anything that can hand out a token.
type Acquirer interface {
	Acquire(ctx context.Context) error
}

// WaitObserver is told how long each acquisition waited.
type WaitObserver func(service string, wait time.Duration)

// defaultPruneEvery is how many fallback buckets are created between sweeps.
const defaultPruneEvery = 1024

// Registry owns one bucket per service name. Buckets for unknown names are
// created on first use from the fallback limit and dropped again once they
// have refilled, so per-client keys do not accumulate.
type Registry struct {
	clock    Clock
	fallback Limit
	observe  WaitObserver

	mu         sync.Mutex
	buckets    map[string]*Bucket
	configured map[string]bool
	created    int
	pruneEvery int
}

// NewRegistry creates a registry with the given per-service limits.
func NewRegistry(limits map[string]Limit, fallback Limit, clock Clock) *Registry {
	if clock == nil {
		clock = SystemClock
	}
	r := &Registry{
		clock:      clock,
		fallback:   fallback,
		buckets:    make(map[string]*Bucket, len(limits)),
		configured: make(map[string]bool, len(limits)),
		pruneEvery: defaultPruneEvery,
	}
	for name, l := range limits {
		r.buckets[name] = NewBucket(l.Rate, l.Burst, clock)
		r.configured[name] = true
	}
	return r
}

// OnWait installs an observer for acquisition waits.
func (r *Registry) OnWait(fn WaitObserver) {
	r.mu.Lock()
	r.observe = fn
	r.mu.Unlock()
}

// Bucket returns the bucket for service, creating it if needed.
func (r *Registry) Bucket(service string) *Bucket {
	r.mu.Lock()
	defer r.mu.Unlock()
	b, ok := r.buckets[service]
	if !ok {
		r.created++
		if r.created%r.pruneEvery == 0 {
			r.pruneLocked()
		}
		b = NewBucket(r.fallback.Rate, r.fallback.Burst, r.clock)
		r.buckets[service] = b
	}
	return b
}

// Prune drops fallback buckets that have refilled to burst and returns how
// many were removed. Configured buckets are never dropped.
func (r *Registry) Prune() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.pruneLocked()
}

func (r *Registry) pruneLocked() int {
	n := 0
	for name, b := range r.buckets {
		if r.configured[name] || !b.full() {
			continue
		}
		delete(r.buckets, name)
		n++
	}
	return n
}

// Len returns the number of live buckets.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.buckets)
}

// Acquire waits for a token from the named service's bucket.
func (r *Registry) Acquire(ctx context.Context, service string) error {
	wait, err := r.Bucket(service).acquire(ctx)
	if err != nil {
		return err
	}
	r.mu.Lock()
	observe := r.observe
	r.mu.Unlock()
	if observe != nil {
		observe(service, wait)
	}
	return nil
}

// TryAcquire takes a token from the named bucket without waiting.
func (r *Registry) TryAcquire(service string) bool {
	return r.Bucket(service).TryAcquire()
}

// For binds the registry to one service name.
func (r *Registry) For(service string) Acquirer {
	return named{r: r, service: service}
}

type named struct {
	r       *Registry
	service string
}

func (n named) Acquire(ctx context.Context) error {
	return n.r.Acquire(ctx, n.service)
}

// Unlimited never waits. Useful when a client is constructed without a
// registry.
type Unlimited struct{}

func (Unlimited) Acquire(ctx context.Context) error { return ctx.Err() }
