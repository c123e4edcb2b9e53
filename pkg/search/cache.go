package search

import (
	"container/list"
	"crypto/sha256"
	"encoding/binary"
	"math"
	"sync"
	"time"
)

// Key identifies one cached query.
type Key string

// QueryKey derives a cache key from a search request. Queries that
// differ in any float bit, k or ef hash to different keys.
func QueryKey(query []float32, k, ef int) Key {
	h := sha256.New()
	var buf [4]byte
	for _, v := range query {
		binary.LittleEndian.PutUint32(buf[:], math.Float32bits(v))
		h.Write(buf[:])
	}
	binary.LittleEndian.PutUint32(buf[:], uint32(k))
	h.Write(buf[:])
	binary.LittleEndian.PutUint32(buf[:], uint32(ef))
	h.Write(buf[:])
	return Key(h.Sum(nil)[:16])
}

// Cache is a thread-safe LRU cache for search results. Every entry is
// tagged with the index version it was computed against; a lookup with
// a newer version is a miss, so mutations invalidate lazily without
// walking the cache.
type Cache struct {
	capacity int
	ttl      time.Duration

	mu      sync.Mutex
	entries map[Key]*list.Element
	lru     *list.List

	hits   int64
	misses int64
}

type cacheEntry struct {
	key       Key
	version   uint64
	value     interface{}
	expiresAt time.Time
}

// NewCache creates a cache holding at most capacity entries. ttl of 0
// disables time-based expiry.
func NewCache(capacity int, ttl time.Duration) *Cache {
	if capacity < 1 {
		capacity = 1
	}
	return &Cache{
		capacity: capacity,
		ttl:      ttl,
		entries:  make(map[Key]*list.Element, capacity),
		lru:      list.New(),
	}
}

// Get returns the value cached for key at the given version.
func (c *Cache) Get(key Key, version uint64) (interface{}, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	elem, ok := c.entries[key]
	if !ok {
		c.misses++
		return nil, false
	}
	entry := elem.Value.(*cacheEntry)
	if entry.version != version || (c.ttl > 0 && time.Now().After(entry.expiresAt)) {
		c.remove(elem)
		c.misses++
		return nil, false
	}
	c.lru.MoveToFront(elem)
	c.hits++
	return entry.value, true
}

// Put stores a value computed at the given version.
func (c *Cache) Put(key Key, version uint64, value interface{}) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if elem, ok := c.entries[key]; ok {
		entry := elem.Value.(*cacheEntry)
		entry.version = version
		entry.value = value
		if c.ttl > 0 {
			entry.expiresAt = time.Now().Add(c.ttl)
		}
		c.lru.MoveToFront(elem)
		return
	}

	entry := &cacheEntry{key: key, version: version, value: value}
	if c.ttl > 0 {
		entry.expiresAt = time.Now().Add(c.ttl)
	}
	c.entries[key] = c.lru.PushFront(entry)
	if c.lru.Len() > c.capacity {
		c.remove(c.lru.Back())
	}
}

// Clear drops every entry and resets the counters.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[Key]*list.Element, c.capacity)
	c.lru.Init()
	c.hits = 0
	c.misses = 0
}

// Len returns the number of cached entries, expired ones included.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lru.Len()
}

// Stats reports hit/miss counters since the last Clear.
func (c *Cache) Stats() CacheStats {
	c.mu.Lock()
	defer c.mu.Unlock()

	s := CacheStats{Hits: c.hits, Misses: c.misses, Size: c.lru.Len()}
	if total := c.hits + c.misses; total > 0 {
		s.HitRate = float64(c.hits) / float64(total)
	}
	return s
}

func (c *Cache) remove(elem *list.Element) {
	c.lru.Remove(elem)
	delete(c.entries, elem.Value.(*cacheEntry).key)
}

// CacheStats holds cache performance counters.
type CacheStats struct {
	Hits    int64
	Misses  int64
	Size    int
	HitRate float64
}
