package domain

import (
	"context"
	"time"
)

// QuoteCache holds recently fetched quotes for a short TTL.
type QuoteCache interface {
	// Get returns ErrNotFound on a miss or an expired entry.
	Get(ctx context.Context, key string) (*Quote, error)
	Set(ctx context.Context, key string, q *Quote, ttl time.Duration) error
	Len(ctx context.Context) int
	Clear(ctx context.Context) error
}

// LockManager provides mutual exclusion across processes.
type LockManager interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (unlock func(), err error)
}

// TriggerBus carries triggers from the detection subsystem and publishes
// session summaries back to it.
type TriggerBus interface {
	PublishTrigger(ctx context.Context, channel string, t Trigger) error
	// Triggers streams decoded triggers until ctx ends. Malformed payloads
	// are dropped.
	Triggers(ctx context.Context, channel string) (<-chan Trigger, error)
	PublishSummary(ctx context.Context, channel string, s Summary) error
}
