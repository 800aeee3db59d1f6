// Package lru implements a generic, thread-safe LRU cache used as the
// in-process tier in front of the on-disk document caches.
//
// Get, Put, Delete and Len are O(1). RemoveFunc and Purge are O(n).
package lru

import (
	"container/list"
	"sync"
)

type entry[K comparable, V any] struct {
	key K
	val V
}

// Cache is a generic, thread-safe LRU cache.
type Cache[K comparable, V any] struct {
	mu       sync.Mutex
	capacity int
	order    *list.List // front = most recently used
	items    map[K]*list.Element
}

// New creates an LRU cache with the given capacity.
// Panics if capacity < 1.
func New[K comparable, V any](capacity int) *Cache[K, V] {
	if capacity < 1 {
		panic("lru: capacity must be >= 1")
	}
	return &Cache[K, V]{
		capacity: capacity,
		order:    list.New(),
		items:    make(map[K]*list.Element, capacity),
	}
}

// Get returns the value for key and marks it most recently used.
func (c *Cache[K, V]) Get(key K) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	el, ok := c.items[key]
	if !ok {
		var zero V
		return zero, false
	}
	c.order.MoveToFront(el)
	return el.Value.(*entry[K, V]).val, true
}

// Put inserts or replaces key. When the cache is full the least recently
// used entry is evicted and returned.
func (c *Cache[K, V]) Put(key K, val V) (evictedKey K, evictedVal V, evicted bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if el, ok := c.items[key]; ok {
		el.Value.(*entry[K, V]).val = val
		c.order.MoveToFront(el)
		return evictedKey, evictedVal, false
	}

	if c.order.Len() >= c.capacity {
		victim := c.order.Back()
		e := victim.Value.(*entry[K, V])
		c.order.Remove(victim)
		delete(c.items, e.key)
		evictedKey, evictedVal, evicted = e.key, e.val, true
	}

	c.items[key] = c.order.PushFront(&entry[K, V]{key: key, val: val})
	return evictedKey, evictedVal, evicted
}

// Delete removes key. Returns true if it was present.
func (c *Cache[K, V]) Delete(key K) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	el, ok := c.items[key]
	if !ok {
		return false
	}
	c.order.Remove(el)
	delete(c.items, key)
	return true
}

// RemoveFunc deletes every entry whose key satisfies match and returns how
// many were removed.
func (c *Cache[K, V]) RemoveFunc(match func(K) bool) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	removed := 0
	for el := c.order.Front(); el != nil; {
		next := el.Next()
		e := el.Value.(*entry[K, V])
		if match(e.key) {
			c.order.Remove(el)
			delete(c.items, e.key)
			removed++
		}
		el = next
	}
	return removed
}

// Len returns the number of cached entries.
func (c *Cache[K, V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.order.Len()
}

// Purge drops every entry.
func (c *Cache[K, V]) Purge() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.order.Init()
	c.items = make(map[K]*list.Element, c.capacity)
}
