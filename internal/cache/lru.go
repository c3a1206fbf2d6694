package cache

import (
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

type lruEntry[V any] struct {
	value     V
	expiresAt time.Time
}

// LRU is a size bounded cache whose entries also expire after a TTL. A zero
// TTL keeps entries until they are evicted.
type LRU[K comparable, V any] struct {
	lru    *lru.Cache[K, lruEntry[V]]
	ttl    time.Duration
	clock  clock
	mu     sync.Mutex
	hits   uint64
	misses uint64
}

func NewLRU[K comparable, V any](size int, ttl time.Duration) (*LRU[K, V], error) {
	c, err := lru.New[K, lruEntry[V]](size)
	if err != nil {
		return nil, err
	}
	return &LRU[K, V]{lru: c, ttl: ttl, clock: systemClock{}}, nil
}

func (c *LRU[K, V]) Add(key K, value V) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry := lruEntry[V]{value: value}
	if c.ttl > 0 {
		entry.expiresAt = c.clock.Now().Add(c.ttl)
	}
	c.lru.Add(key, entry)
}

func (c *LRU[K, V]) Get(key K) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.lru.Get(key)
	if ok && !entry.expiresAt.IsZero() && c.clock.Now().After(entry.expiresAt) {
		c.lru.Remove(key)
		ok = false
	}
	if !ok {
		c.misses++
		var zero V
		return zero, false
	}
	c.hits++
	return entry.value, true
}

func (c *LRU[K, V]) Len() int {
	return c.lru.Len()
}

// Purge drops every entry but keeps the hit statistics.
func (c *LRU[K, V]) Purge() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lru.Purge()
}

// Stats returns hit and miss counters.
func (c *LRU[K, V]) Stats() map[string]uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return map[string]uint64{
		"hits":   c.hits,
		"misses": c.misses,
	}
}
