package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/kpizzy812/solana-sniper-sub000/internal/domain"
)

// Guard enforces one session at a time per wallet pool. The in-process mutex
// is always used; the lock manager, when set, extends the exclusion to other
// processes sharing the pool.
type Guard struct {
	mu    sync.Mutex
	locks domain.LockManager
	key   string
	ttl   time.Duration
}

// NewGuard creates a Guard. locks may be nil.
func NewGuard(locks domain.LockManager, key string, ttl time.Duration) *Guard {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &Guard{locks: locks, key: "session:" + key, ttl: ttl}
}

// Enter claims the pool or returns domain.ErrSessionInProgress.
func (g *Guard) Enter(ctx context.Context) (release func(), err error) {
	if !g.mu.TryLock() {
		return nil, domain.ErrSessionInProgress
	}
	if g.locks == nil {
		return g.mu.Unlock, nil
	}

	unlock, err := g.locks.Acquire(ctx, g.key, g.ttl)
	if err != nil {
		g.mu.Unlock()
		if errors.Is(err, domain.ErrLockHeld) {
			return nil, fmt.Errorf("%w: held by another process", domain.ErrSessionInProgress)
		}
		return nil, fmt.Errorf("session: acquire lock: %w", err)
	}
	return func() {
		unlock()
		g.mu.Unlock()
	}, nil
}
