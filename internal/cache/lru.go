package cache

import (
	"container/list"
	"sync"
	"time"
)

// EvictFunc is called for every entry leaving the cache through expiry,
// capacity pressure, Delete or Purge. It runs without the cache lock held.
type EvictFunc[T any] func(key string, value T)

// LRUCache is a size-bounded cache whose entries expire after a period of
// inactivity: every Get extends the lifetime of the entry.
type LRUCache[T any] struct {
	mu      sync.Mutex
	maxSize int
	ttl     time.Duration
	items   map[string]*list.Element
	lru     *list.List
	onEvict EvictFunc[T]
	now     func() time.Time
}

type cacheItem[T any] struct {
	key       string
	data      T
	expiresAt time.Time
}

// NewLRUCache creates a cache holding at most maxSize entries, each idle for
// at most ttl. onEvict may be nil.
func NewLRUCache[T any](maxSize int, ttl time.Duration, onEvict EvictFunc[T]) *LRUCache[T] {
	if maxSize < 1 {
		maxSize = 1
	}
	return &LRUCache[T]{
		maxSize: maxSize,
		ttl:     ttl,
		items:   make(map[string]*list.Element),
		lru:     list.New(),
		onEvict: onEvict,
		now:     time.Now,
	}
}

// Get returns the entry for key and extends its lifetime.
func (c *LRUCache[T]) Get(key string) (T, bool) {
	var zero T
	c.mu.Lock()
	elem, exists := c.items[key]
	if !exists {
		c.mu.Unlock()
		return zero, false
	}
	item := elem.Value.(*cacheItem[T])
	now := c.now()
	if now.After(item.expiresAt) {
		c.removeElement(elem)
		c.mu.Unlock()
		c.evicted(item)
		return zero, false
	}
	item.expiresAt = now.Add(c.ttl)
	c.lru.MoveToFront(elem)
	c.mu.Unlock()
	return item.data, true
}

// Set stores data under key. Replacing an entry evicts the previous value.
func (c *LRUCache[T]) Set(key string, data T) {
	item := &cacheItem[T]{key: key, data: data}
	var gone []*cacheItem[T]

	c.mu.Lock()
	item.expiresAt = c.now().Add(c.ttl)
	if elem, exists := c.items[key]; exists {
		gone = append(gone, elem.Value.(*cacheItem[T]))
		elem.Value = item
		c.lru.MoveToFront(elem)
	} else {
		c.items[key] = c.lru.PushFront(item)
		for c.lru.Len() > c.maxSize {
			oldest := c.lru.Back()
			gone = append(gone, oldest.Value.(*cacheItem[T]))
			c.removeElement(oldest)
		}
	}
	c.mu.Unlock()

	for _, g := range gone {
		c.evicted(g)
	}
}

// Delete removes key from the cache.
func (c *LRUCache[T]) Delete(key string) {
	c.mu.Lock()
	elem, exists := c.items[key]
	if !exists {
		c.mu.Unlock()
		return
	}
	item := elem.Value.(*cacheItem[T])
	c.removeElement(elem)
	c.mu.Unlock()
	c.evicted(item)
}

// CleanExpired removes all expired entries and returns how many were removed.
func (c *LRUCache[T]) CleanExpired() int {
	c.mu.Lock()
	now := c.now()
	var gone []*cacheItem[T]
	for elem := c.lru.Front(); elem != nil; {
		next := elem.Next()
		item := elem.Value.(*cacheItem[T])
		if now.After(item.expiresAt) {
			gone = append(gone, item)
			c.removeElement(elem)
		}
		elem = next
	}
	c.mu.Unlock()

	for _, g := range gone {
		c.evicted(g)
	}
	return len(gone)
}

// Purge evicts every entry.
func (c *LRUCache[T]) Purge() {
	c.mu.Lock()
	var gone []*cacheItem[T]
	for elem := c.lru.Front(); elem != nil; elem = elem.Next() {
		gone = append(gone, elem.Value.(*cacheItem[T]))
	}
	c.items = make(map[string]*list.Element)
	c.lru.Init()
	c.mu.Unlock()

	for _, g := range gone {
		c.evicted(g)
	}
}

// Size returns the current number of entries.
func (c *LRUCache[T]) Size() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.items)
}

func (c *LRUCache[T]) removeElement(elem *list.Element) {
	item := elem.Value.(*cacheItem[T])
	delete(c.items, item.key)
	c.lru.Remove(elem)
}

func (c *LRUCache[T]) evicted(item *cacheItem[T]) {
	if c.onEvict != nil {
		c.onEvict(item.key, item.data)
	}
}
