package cache

import (
	"context"
	"sync"
	"time"

	"github.com/example/kitchen-order-service/internal/domain"
)

type memoryEntry struct {
	order     domain.Order
	expiresAt time.Time
}

// MemoryOrderCache is an in-process cache. A zero TTL keeps entries for the
// life of the process.
type MemoryOrderCache struct {
	mu    sync.RWMutex
	store map[string]memoryEntry
	ttl   time.Duration
	now   func() time.Time
}

func NewMemoryOrderCache(ttl time.Duration) *MemoryOrderCache {
	return &MemoryOrderCache{store: make(map[string]memoryEntry), ttl: ttl, now: time.Now}
}

func (c *MemoryOrderCache) Get(_ context.Context, id string) (domain.Order, bool) {
	c.mu.RLock()
	e, ok := c.store[id]
	c.mu.RUnlock()
	if !ok {
		return domain.Order{}, false
	}
	if !e.expiresAt.IsZero() && !c.now().Before(e.expiresAt) {
		c.mu.Lock()
		if cur, ok := c.store[id]; ok && cur.expiresAt.Equal(e.expiresAt) {
			delete(c.store, id)
		}
		c.mu.Unlock()
		return domain.Order{}, false
	}
	return e.order, true
}

// Set stores o unless the cached entry for the id is newer.
func (c *MemoryOrderCache) Set(_ context.Context, o domain.Order) {
	e := memoryEntry{order: o}
	if c.ttl > 0 {
		e.expiresAt = c.now().Add(c.ttl)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if cur, ok := c.store[o.ID]; ok && cur.order.UpdatedAt.After(o.UpdatedAt) {
		return
	}
	c.store[o.ID] = e
}

// Len reports the number of stored entries, expired ones included.
func (c *MemoryOrderCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.store)
}

var _ domain.OrderCache = (*MemoryOrderCache)(nil)
