package jupiter

import (
	"context"
	"sync"
	"time"

	"github.com/kpizzy812/solana-sniper-sub000/internal/domain"
)

// MemoryCache is an in-process QuoteCache. Expired entries are dropped
// lazily on read and on Len.
type MemoryCache struct {
	now func() time.Time

	mu      sync.Mutex
	entries map[string]memoryEntry
}

type memoryEntry struct {
	quote     *domain.Quote
	expiresAt time.Time
}

// NewMemoryCache creates an empty cache. now defaults to time.Now.
func NewMemoryCache(now func() time.Time) *MemoryCache {
	if now == nil {
		now = time.Now
	}
	return &MemoryCache{now: now, entries: make(map[string]memoryEntry)}
}

func (m *MemoryCache) Get(_ context.Context, key string) (*domain.Quote, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[key]
	if !ok {
		return nil, domain.ErrNotFound
	}
	if !m.now().Before(e.expiresAt) {
		delete(m.entries, key)
		return nil, domain.ErrNotFound
	}
	return e.quote, nil
}

func (m *MemoryCache) Set(_ context.Context, key string, q *domain.Quote, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[key] = memoryEntry{quote: q, expiresAt: m.now().Add(ttl)}
	return nil
}

func (m *MemoryCache) Len(_ context.Context) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now()
	for k, e := range m.entries {
		if !now.Before(e.expiresAt) {
			delete(m.entries, k)
		}
	}
	return len(m.entries)
}

func (m *MemoryCache) Clear(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	clear(m.entries)
	return nil
}

var _ domain.QuoteCache = (*MemoryCache)(nil)
