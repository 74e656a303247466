package cache

import (
	"container/list"
	"context"
	"sync"

	"github.com/kjstillabower/weather-gateway/internal/models"
)

// Cache defines the interface for weather payload caching keyed by client identity.
// Entries carry no expiry; they leave the cache only through capacity eviction.
type Cache interface {
	Get(ctx context.Context, key string) (models.Weather, bool, error)
	Set(ctx context.Context, key string, value models.Weather) error
}

// LRUCache implements Cache as a capacity-bounded in-memory map with least-recently-used
// eviction. Safe for concurrent use; every operation holds the mutex only for map/list work.
type LRUCache struct {
	mu       sync.Mutex
	capacity int
	items    map[string]*list.Element
	order    *list.List // front = most recently used
	onEvict  func(key string)
}

type entry struct {
	key   string
	value models.Weather
}

// NewLRUCache creates a cache holding at most capacity entries. capacity < 1 is treated as 1.
func NewLRUCache(capacity int) *LRUCache {
	if capacity < 1 {
		capacity = 1
	}
	return &LRUCache{
		capacity: capacity,
		items:    make(map[string]*list.Element, capacity),
		order:    list.New(),
	}
}

// OnEvict registers a callback invoked (outside the lock) with each evicted key.
func (c *LRUCache) OnEvict(fn func(key string)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onEvict = fn
}

// Get returns the payload stored for key and marks it most recently used.
func (c *LRUCache) Get(ctx context.Context, key string) (models.Weather, bool, error) {
	if err := ctx.Err(); err != nil {
		return models.Weather{}, false, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	el, ok := c.items[key]
	if !ok {
		return models.Weather{}, false, nil
	}
	c.order.MoveToFront(el)
	return el.Value.(*entry).value, true, nil
}

// Set upserts key. When the cache is full the least recently used entry is evicted.
func (c *LRUCache) Set(ctx context.Context, key string, value models.Weather) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.mu.Lock()
	if el, ok := c.items[key]; ok {
		el.Value.(*entry).value = value
		c.order.MoveToFront(el)
		c.mu.Unlock()
		return nil
	}

	var evicted string
	var didEvict bool
	if c.order.Len() >= c.capacity {
		oldest := c.order.Back()
		evicted = oldest.Value.(*entry).key
		c.order.Remove(oldest)
		delete(c.items, evicted)
		didEvict = true
	}
	c.items[key] = c.order.PushFront(&entry{key: key, value: value})
	onEvict := c.onEvict
	c.mu.Unlock()

	if didEvict && onEvict != nil {
		onEvict(evicted)
	}
	return nil
}

// Len returns the number of cached entries.
func (c *LRUCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.order.Len()
}

// Capacity returns the configured maximum number of entries.
func (c *LRUCache) Capacity() int {
	return c.capacity
}
