// Package tilecache keeps a bounded set of tile textures resident.
//
// LRU is a fixed-capacity least-recently-used map. Recency is tracked with
// an intrusive doubly linked list: the head is the most recently used entry
// and the tail is the next victim. The cache is not safe for concurrent use;
// the renderer owns it on the graphics thread.
package tilecache

// DefaultCapacity is the entry limit used when New gets a non-positive one.
const DefaultCapacity = 1024

type node[K comparable, V any] struct {
	key   K
	value V
	prev  *node[K, V]
	next  *node[K, V]
}

// Stats counts cache traffic since the last ResetStats.
type Stats struct {
	Hits      uint64
	Misses    uint64
	Evictions uint64
}

// LRU is a fixed-capacity cache with least-recently-used eviction.
type LRU[K comparable, V any] struct {
	capacity int
	entries  map[K]*node[K, V]
	head     *node[K, V]
	tail     *node[K, V]
	release  func(K, V)
	stats    Stats
}

// New creates an empty cache. release, if not nil, is called for every
// value that leaves the cache: on eviction, Erase, replacement and Clear.
func New[K comparable, V any](capacity int, release func(K, V)) *LRU[K, V] {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &LRU[K, V]{
		capacity: capacity,
		entries:  make(map[K]*node[K, V], capacity),
		release:  release,
	}
}

// Capacity returns the entry limit.
func (c *LRU[K, V]) Capacity() int {
	return c.capacity
}

// Len returns the number of entries.
func (c *LRU[K, V]) Len() int {
	return len(c.entries)
}

// Contains reports whether key is present without touching its recency.
func (c *LRU[K, V]) Contains(key K) bool {
	_, ok := c.entries[key]
	return ok
}

// Get returns the value for key and marks it most recently used.
func (c *LRU[K, V]) Get(key K) (V, bool) {
	n, ok := c.entries[key]
	if !ok {
		c.stats.Misses++
		var zero V
		return zero, false
	}
	c.stats.Hits++
	c.moveToFront(n)
	return n.value, true
}

// GetOrLoad returns the value for key, calling load on a miss. A loaded
// value is inserted as most recently used, evicting the least recently used
// entry when the cache is full. Load errors are returned and nothing is
// inserted.
func (c *LRU[K, V]) GetOrLoad(key K, load func() (V, error)) (V, error) {
	if v, ok := c.Get(key); ok {
		return v, nil
	}
	v, err := load()
	if err != nil {
		var zero V
		return zero, err
	}
	c.Put(key, v)
	return v, nil
}

// Put inserts or replaces the value for key and marks it most recently
// used. A replaced value is released.
func (c *LRU[K, V]) Put(key K, value V) {
	if n, ok := c.entries[key]; ok {
		old := n.value
		n.value = value
		c.moveToFront(n)
		if c.release != nil {
			c.release(key, old)
		}
		return
	}

	if len(c.entries) >= c.capacity {
		c.evict()
	}
	n := &node[K, V]{key: key, value: value}
	c.pushFront(n)
	c.entries[key] = n
}

// Erase removes key and releases its value. Other entries keep their
// recency. It reports whether key was present.
func (c *LRU[K, V]) Erase(key K) bool {
	n, ok := c.entries[key]
	if !ok {
		return false
	}
	c.unlink(n)
	delete(c.entries, key)
	if c.release != nil {
		c.release(n.key, n.value)
	}
	return true
}

// Clear releases and removes every entry. Stats are kept.
func (c *LRU[K, V]) Clear() {
	for n := c.head; n != nil; {
		next := n.next
		if c.release != nil {
			c.release(n.key, n.value)
		}
		n.prev, n.next = nil, nil
		n = next
	}
	c.head, c.tail = nil, nil
	clear(c.entries)
}

// Oldest returns the key that would be evicted next.
func (c *LRU[K, V]) Oldest() (K, bool) {
	if c.tail == nil {
		var zero K
		return zero, false
	}
	return c.tail.key, true
}

// Keys returns the keys from most to least recently used.
func (c *LRU[K, V]) Keys() []K {
	keys := make([]K, 0, len(c.entries))
	for n := c.head; n != nil; n = n.next {
		keys = append(keys, n.key)
	}
	return keys
}

// Stats returns the traffic counters.
func (c *LRU[K, V]) Stats() Stats {
	return c.stats
}

// ResetStats zeroes the traffic counters.
func (c *LRU[K, V]) ResetStats() {
	c.stats = Stats{}
}

func (c *LRU[K, V]) evict() {
	n := c.tail
	if n == nil {
		return
	}
	c.unlink(n)
	delete(c.entries, n.key)
	c.stats.Evictions++
	if c.release != nil {
		c.release(n.key, n.value)
	}
}

func (c *LRU[K, V]) pushFront(n *node[K, V]) {
	n.prev = nil
	n.next = c.head
	if c.head != nil {
		c.head.prev = n
	}
	c.head = n
	if c.tail == nil {
		c.tail = n
	}
}

func (c *LRU[K, V]) moveToFront(n *node[K, V]) {
	if n == c.head {
		return
	}
	c.unlink(n)
	c.pushFront(n)
}

func (c *LRU[K, V]) unlink(n *node[K, V]) {
	if n.prev != nil {
		n.prev.next = n.next
	} else {
		c.head = n.next
	}
	if n.next != nil {
		n.next.prev = n.prev
	} else {
		c.tail = n.prev
	}
	n.prev, n.next = nil, nil
}
