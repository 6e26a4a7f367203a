// ABOUTME: Thread-safe TTL cache mapping request ids to prior results.
// ABOUTME: Lets retried sends return the original message instead of a copy.

package dedupe

import (
	"container/list"
	"sync"
	"time"
)

// cacheEntry stores the cached value, its timestamp, and its list element.
type cacheEntry struct {
	value     string
	timestamp time.Time
	element   *list.Element
}

// Cache is a thread-safe, TTL-based, size-limited cache from idempotency
// keys to the result of the request that first carried them. Insertion
// order lives in a doubly-linked list for O(1) eviction of the oldest key.
//
// Duplicate suppression is best effort: entries age out after the TTL and
// the oldest are evicted at capacity, so a sufficiently late retry is
// processed as a fresh request.
type Cache struct {
	mu      sync.RWMutex
	entries map[string]*cacheEntry
	order   *list.List // keys in insertion order, oldest at front
	ttl     time.Duration
	maxSize int
	done    chan struct{}
	closed  bool
}

// New creates a cache with the given TTL and maximum size. A background
// goroutine periodically drops expired entries.
func New(ttl time.Duration, maxSize int) *Cache {
	c := &Cache{
		entries: make(map[string]*cacheEntry),
		order:   list.New(),
		ttl:     ttl,
		maxSize: maxSize,
		done:    make(chan struct{}),
	}
	go c.cleanup()
	return c
}

// Lookup returns the value cached under key, if present and fresh.
func (c *Cache) Lookup(key string) (string, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	entry, ok := c.entries[key]
	if !ok || time.Since(entry.timestamp) >= c.ttl {
		return "", false
	}
	return entry.value, true
}

// LookupOrRemember atomically resolves an idempotency key: if the key is
// already cached and fresh it returns the original value and true, otherwise
// it stores value and returns it with false. The single lock acquisition is
// what makes two concurrent retries agree on one winner.
func (c *Cache) LookupOrRemember(key, value string) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries[key]
	if ok && time.Since(entry.timestamp) < c.ttl {
		return entry.value, true
	}

	c.rememberLocked(key, value)
	return value, false
}

// Remember stores value under key, evicting the oldest entry if the cache
// is at capacity.
func (c *Cache) Remember(key, value string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.rememberLocked(key, value)
}

// rememberLocked is the internal store implementation. Caller holds mu.
func (c *Cache) rememberLocked(key, value string) {
	now := time.Now()

	// Re-remembering a key refreshes it and moves it to the back.
	if entry, exists := c.entries[key]; exists {
		entry.value = value
		entry.timestamp = now
		c.order.MoveToBack(entry.element)
		return
	}

	if len(c.entries) >= c.maxSize {
		c.evictOldest()
	}

	elem := c.order.PushBack(key)
	c.entries[key] = &cacheEntry{
		value:     value,
		timestamp: now,
		element:   elem,
	}
}

// evictOldest removes the oldest entry. Caller holds mu.
func (c *Cache) evictOldest() {
	front := c.order.Front()
	if front == nil {
		return
	}

	key, _ := front.Value.(string)
	c.order.Remove(front)
	delete(c.entries, key)
}

// cleanup runs in a background goroutine, periodically removing expired
// entries so the map does not hold dead keys until capacity pressure.
func (c *Cache) cleanup() {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.runCleanup()
		case <-c.done:
			return
		}
	}
}

func (c *Cache) runCleanup() {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now()
	for key, entry := range c.entries {
		if now.Sub(entry.timestamp) > c.ttl {
			c.order.Remove(entry.element)
			delete(c.entries, key)
		}
	}
}

// Close stops the background cleanup goroutine. Safe to call repeatedly.
func (c *Cache) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.closed {
		close(c.done)
		c.closed = true
	}
}
