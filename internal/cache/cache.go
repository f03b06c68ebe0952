// Package cache holds the engine's two small caching primitives: a
// soft-limit LRU backing the merge engine's stroke retention window, and
// a hash-sharded variant memoizing decoded brush reference images on the
// ingest path. Both live entirely in memory for the duration of a run.
package cache

import (
	"container/list"
	"hash/fnv"
	"sync"
)

type entry[K comparable, V any] struct {
	key   K
	value V
}

// Cache is a mutex-guarded LRU with a soft entry limit. Set reports the
// entry it displaced, if any: retention-window callers own external
// resources (atlas tiles) behind their values and must release them
// explicitly rather than leak them on a silent eviction.
type Cache[K comparable, V any] struct {
	mu    sync.Mutex
	limit int
	order *list.List // front is most recently used
	index map[K]*list.Element
}

// New constructs a cache holding at most limit entries; limit <= 0 means
// unbounded.
func New[K comparable, V any](limit int) *Cache[K, V] {
	return &Cache[K, V]{
		limit: limit,
		order: list.New(),
		index: make(map[K]*list.Element),
	}
}

// Get returns the value stored under key and marks it recently used.
func (c *Cache[K, V]) Get(key K) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	el, ok := c.index[key]
	if !ok {
		var zero V
		return zero, false
	}
	c.order.MoveToFront(el)
	return el.Value.(entry[K, V]).value, true
}

// Set stores value under key. If the insert pushed the cache past its
// limit, the least recently used entry is removed and returned so the
// caller can dispose of whatever it guards.
func (c *Cache[K, V]) Set(key K, value V) (evictedKey K, evictedValue V, evicted bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if el, ok := c.index[key]; ok {
		el.Value = entry[K, V]{key: key, value: value}
		c.order.MoveToFront(el)
		return
	}

	c.index[key] = c.order.PushFront(entry[K, V]{key: key, value: value})

	if c.limit > 0 && c.order.Len() > c.limit {
		oldest := c.order.Back()
		ev := oldest.Value.(entry[K, V])
		c.order.Remove(oldest)
		delete(c.index, ev.key)
		return ev.key, ev.value, true
	}
	return
}

// Delete removes key, reporting whether it was present.
func (c *Cache[K, V]) Delete(key K) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	el, ok := c.index[key]
	if !ok {
		return false
	}
	c.order.Remove(el)
	delete(c.index, key)
	return true
}

// Len reports the number of entries currently held.
func (c *Cache[K, V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.order.Len()
}

// shardCount must stay a power of two so shard selection is a mask.
const shardCount = 16

// Sharded spreads keys across a fixed set of independently locked Cache
// shards. Values must be recomputable: a shard overflowing simply drops
// its oldest entry without telling anyone.
type Sharded[K comparable, V any] struct {
	shards [shardCount]*Cache[K, V]
	hash   func(K) uint64
}

// NewSharded constructs a sharded cache with perShard capacity per shard.
func NewSharded[K comparable, V any](perShard int, hash func(K) uint64) *Sharded[K, V] {
	s := &Sharded[K, V]{hash: hash}
	for i := range s.shards {
		s.shards[i] = New[K, V](perShard)
	}
	return s
}

func (s *Sharded[K, V]) shardFor(key K) *Cache[K, V] {
	return s.shards[s.hash(key)&(shardCount-1)]
}

// Get returns the value stored under key.
func (s *Sharded[K, V]) Get(key K) (V, bool) {
	return s.shardFor(key).Get(key)
}

// Set stores value under key, silently dropping the owning shard's oldest
// entry on overflow.
func (s *Sharded[K, V]) Set(key K, value V) {
	s.shardFor(key).Set(key, value)
}

// Len reports the total entry count across shards.
func (s *Sharded[K, V]) Len() int {
	total := 0
	for _, sh := range s.shards {
		total += sh.Len()
	}
	return total
}

// StringHasher is the shard hash used for string-keyed sharded caches.
func StringHasher(s string) uint64 {
	h := fnv.New64a()
	h.Write([]byte(s))
	return h.Sum64()
}
