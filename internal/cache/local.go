package cache

import (
	"container/list"
	"sync"
	"time"

	"github.com/mir00r/traffic-resilience/internal/domain"
)

// LocalCache is a bounded in-process LRU with per-entry TTL. Expired entries
// are never served: a read that finds one removes it and reports a miss.
type LocalCache struct {
	maxEntries int
	defaultTTL time.Duration
	now        func() time.Time

	mu      sync.Mutex
	order   *list.List // front = most recently used
	entries map[string]*list.Element
	stats   domain.CacheStats
}

type localItem struct {
	key   string
	entry domain.CacheEntry
}

// NewLocalCache creates a cache holding at most maxEntries items. A ttl of
// zero passed to Set means defaultTTL.
func NewLocalCache(maxEntries int, defaultTTL time.Duration) *LocalCache {
	if maxEntries <= 0 {
		maxEntries = 1
	}
	return &LocalCache{
		maxEntries: maxEntries,
		defaultTTL: defaultTTL,
		now:        time.Now,
		order:      list.New(),
		entries:    make(map[string]*list.Element),
	}
}

// Get returns a copy of the value for key, or false if it is missing or expired.
func (c *LocalCache) Get(key string) ([]byte, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	elem, ok := c.entries[key]
	if !ok {
		c.stats.Misses++
		return nil, false
	}

	item := elem.Value.(*localItem)
	if item.entry.Expired(c.now()) {
		c.removeElement(elem)
		c.stats.Evictions++
		c.stats.Misses++
		return nil, false
	}

	c.order.MoveToFront(elem)
	c.stats.Hits++
	return cloneBytes(item.entry.Value), true
}

// Set inserts or overwrites key. Inserting a new key into a full cache first
// evicts the least recently used entry.
func (c *LocalCache) Set(key string, value []byte, ttl time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.set(key, value, ttl)
}

// Add stores key only if it is absent or expired and reports whether it did.
func (c *LocalCache) Add(key string, value []byte, ttl time.Duration) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if elem, ok := c.entries[key]; ok {
		if !elem.Value.(*localItem).entry.Expired(c.now()) {
			return false
		}
	}
	c.set(key, value, ttl)
	return true
}

func (c *LocalCache) set(key string, value []byte, ttl time.Duration) {
	if ttl <= 0 {
		ttl = c.defaultTTL
	}
	entry := domain.CacheEntry{Value: cloneBytes(value)}
	if ttl > 0 {
		entry.ExpiresAt = c.now().Add(ttl)
	}

	if elem, ok := c.entries[key]; ok {
		elem.Value.(*localItem).entry = entry
		c.order.MoveToFront(elem)
		return
	}

	if c.order.Len() >= c.maxEntries {
		if oldest := c.order.Back(); oldest != nil {
			c.removeElement(oldest)
			c.stats.Evictions++
		}
	}

	c.entries[key] = c.order.PushFront(&localItem{key: key, entry: entry})
}

// Del removes key if present
func (c *LocalCache) Del(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if elem, ok := c.entries[key]; ok {
		c.removeElement(elem)
	}
}

// Clear removes every entry. Counters are kept.
func (c *LocalCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.order.Init()
	c.entries = make(map[string]*list.Element)
}

// DeleteExpired removes all expired entries and returns how many it removed.
func (c *LocalCache) DeleteExpired() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	removed := 0
	for elem := c.order.Back(); elem != nil; {
		prev := elem.Prev()
		if elem.Value.(*localItem).entry.Expired(now) {
			c.removeElement(elem)
			c.stats.Evictions++
			removed++
		}
		elem = prev
	}
	return removed
}

// Len returns the number of stored entries, expired ones included
func (c *LocalCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.order.Len()
}

// Stats returns the hit, miss and eviction counters
func (c *LocalCache) Stats() domain.CacheStats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stats
}

func (c *LocalCache) removeElement(elem *list.Element) {
	c.order.Remove(elem)
	delete(c.entries, elem.Value.(*localItem).key)
}

func cloneBytes(b []byte) []byte {
	if b == nil {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}
