// Package cache provides thread-safe generic caching and the rendered preview cache.
package cache

import "sync"

// Cache is a mutex-guarded map. A positive limit bounds it, evicting the oldest insertion first.
type Cache[K comparable, V any] struct {
	mu    sync.RWMutex
	items map[K]V
	order []K
	limit int
}

func NewCache[K comparable, V any]() *Cache[K, V] {
	return &Cache[K, V]{
		items: make(map[K]V),
	}
}

// NewBoundedCache returns a cache holding at most limit entries. limit <= 0 means unbounded.
func NewBoundedCache[K comparable, V any](limit int) *Cache[K, V] {
	c := NewCache[K, V]()
	if limit > 0 {
		c.limit = limit
	}
	return c
}

func (c *Cache[K, V]) Get(key K) (V, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	val, ok := c.items[key]
	return val, ok
}

func (c *Cache[K, V]) Set(key K, value V) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, exists := c.items[key]; !exists && c.limit > 0 {
		for len(c.items) >= c.limit && len(c.order) > 0 {
			oldest := c.order[0]
			c.order = c.order[1:]
			delete(c.items, oldest)
		}
		c.order = append(c.order, key)
	}
	c.items[key] = value
}

func (c *Cache[K, V]) Delete(key K) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.items[key]; !ok {
		return
	}
	delete(c.items, key)
	if c.limit > 0 {
		for i, k := range c.order {
			if k == key {
				c.order = append(c.order[:i], c.order[i+1:]...)
				break
			}
		}
	}
}

// Len returns the number of cached entries.
func (c *Cache[K, V]) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.items)
}

// RenderedContent is a cached render of one source text under one set of options.
type RenderedContent struct {
	HTML  []byte
	Extra any
}

// Rendered caches pipeline output keyed by content hash and an options fingerprint.
type Rendered struct {
	c *Cache[string, *RenderedContent]
}

func NewRendered(limit int) *Rendered {
	return &Rendered{c: NewBoundedCache[string, *RenderedContent](limit)}
}

func renderedKey(contentHash, options string) string {
	return contentHash + "\x00" + options
}

func (r *Rendered) Get(contentHash, options string) (*RenderedContent, bool) {
	return r.c.Get(renderedKey(contentHash, options))
}

func (r *Rendered) Set(contentHash, options string, html []byte, extra any) {
	r.c.Set(renderedKey(contentHash, options), &RenderedContent{
		HTML:  html,
		Extra: extra,
	})
}

func (r *Rendered) Len() int {
	return r.c.Len()
}
