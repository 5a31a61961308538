package cache

import (
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

type entry[V any] struct {
	value     V
	expiresAt time.Time
}

// TTL is a size-bounded LRU cache whose entries expire after a fixed TTL.
// Now is the clock used for expiry and may be replaced in tests.
type TTL[K comparable, V any] struct {
	mu    sync.Mutex
	cache *lru.Cache[K, entry[V]]
	ttl   time.Duration
	Now   func() time.Time
}

// NewTTL creates a cache holding at most size entries for ttl each.
func NewTTL[K comparable, V any](size int, ttl time.Duration) (*TTL[K, V], error) {
	c, err := lru.New[K, entry[V]](size)
	if err != nil {
		return nil, err
	}
	return &TTL[K, V]{cache: c, ttl: ttl, Now: time.Now}, nil
}

// Get returns the cached value for key if present and not expired. Expired
// entries are evicted on access.
func (c *TTL[K, V]) Get(key K) (V, bool) {
	var zero V
	if c == nil {
		return zero, false
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.cache.Get(key)
	if !ok {
		return zero, false
	}
	if !c.Now().Before(e.expiresAt) {
		c.cache.Remove(key)
		return zero, false
	}
	return e.value, true
}

func (c *TTL[K, V]) Set(key K, value V) {
	if c == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cache.Add(key, entry[V]{value: value, expiresAt: c.Now().Add(c.ttl)})
}

func (c *TTL[K, V]) Remove(key K) {
	if c == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cache.Remove(key)
}

// Purge drops every entry.
func (c *TTL[K, V]) Purge() {
	if c == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cache.Purge()
}

// Len counts entries including ones that expired but were not read since.
func (c *TTL[K, V]) Len() int {
	if c == nil {
		return 0
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cache.Len()
}
