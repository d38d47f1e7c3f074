// Package cache holds the storage behind the result-value cache: an
// in-memory LRU with TTL, durable byte stores and the codec used to put
// values into them.
package cache

import (
	"strings"
	"sync"
	"time"
)

// Stats represents cache statistics.
type Stats struct {
	Hits      int64
	Misses    int64
	Size      int
	MaxSize   int
	Evictions int64
	HitRate   float64
}

// Clock returns the current time.
type Clock func() time.Time

// LRUCache is a concurrent LRU cache with per-entry TTL.
type LRUCache struct {
	mu         sync.Mutex
	data       map[string]*cacheNode
	maxSize    int
	defaultTTL time.Duration
	now        Clock
	head       *cacheNode
	tail       *cacheNode
	stats      Stats
}

type cacheNode struct {
	key       string
	value     any
	expiresAt time.Time
	prev      *cacheNode
	next      *cacheNode
}

type settings struct {
	now Clock
}

// Option configures a cache or store.
type Option func(*settings)

// WithClock replaces time.Now for expiry checks.
func WithClock(now Clock) Option {
	return func(s *settings) { s.now = now }
}

func apply(opts []Option) settings {
	s := settings{now: time.Now}
	for _, opt := range opts {
		opt(&s)
	}
	return s
}

// NewLRUCache creates a cache holding at most maxSize entries; zero or less
// means unbounded. Entries set without a TTL use defaultTTL, and a zero
// defaultTTL never expires them.
func NewLRUCache(maxSize int, defaultTTL time.Duration, opts ...Option) *LRUCache {
	return &LRUCache{
		data:       make(map[string]*cacheNode),
		maxSize:    maxSize,
		defaultTTL: defaultTTL,
		now:        apply(opts).now,
		stats:      Stats{MaxSize: maxSize},
	}
}

// Get retrieves a live value. Expired entries are removed and count as
// misses.
func (c *LRUCache) Get(key string) (any, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	node, ok := c.data[key]
	if !ok {
		c.stats.Misses++
		return nil, false
	}
	if !node.expiresAt.IsZero() && !c.now().Before(node.expiresAt) {
		c.removeNode(node)
		c.stats.Misses++
		return nil, false
	}

	c.moveToFront(node)
	c.stats.Hits++
	return node.value, true
}

// Peek retrieves a value without touching recency, statistics or expiry.
func (c *LRUCache) Peek(key string) (any, time.Time, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	node, ok := c.data[key]
	if !ok {
		return nil, time.Time{}, false
	}
	return node.value, node.expiresAt, true
}

// Set stores a value. A zero ttl uses the default TTL.
func (c *LRUCache) Set(key string, value any, ttl time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if ttl == 0 {
		ttl = c.defaultTTL
	}
	var expiresAt time.Time
	if ttl > 0 {
		expiresAt = c.now().Add(ttl)
	}

	if node, exists := c.data[key]; exists {
		node.value = value
		node.expiresAt = expiresAt
		c.moveToFront(node)
		return
	}

	if c.maxSize > 0 && len(c.data) >= c.maxSize {
		c.evictLRU()
	}
	node := &cacheNode{key: key, value: value, expiresAt: expiresAt}
	c.addToFront(node)
	c.data[key] = node
}

// Invalidate removes key and reports whether it was present.
func (c *LRUCache) Invalidate(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	node, ok := c.data[key]
	if ok {
		c.removeNode(node)
	}
	return ok
}

// InvalidatePattern removes all keys matching a pattern of colon separated
// parts, where "*" matches any single part: "script:*", "*:users". It
// returns the removed keys.
func (c *LRUCache) InvalidatePattern(pattern string) []string {
	c.mu.Lock()
	defer c.mu.Unlock()

	var removed []string
	for key, node := range c.data {
		if matchesPattern(key, pattern) {
			removed = append(removed, key)
			c.removeNode(node)
		}
	}
	return removed
}

// Keys returns the keys currently held, most recently used first.
func (c *LRUCache) Keys() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	keys := make([]string, 0, len(c.data))
	for n := c.head; n != nil; n = n.next {
		keys = append(keys, n.key)
	}
	return keys
}

// Clear removes all entries and resets statistics.
func (c *LRUCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.data = make(map[string]*cacheNode)
	c.head = nil
	c.tail = nil
	c.stats = Stats{MaxSize: c.maxSize}
}

// Stats returns cache statistics.
func (c *LRUCache) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()

	stats := c.stats
	stats.Size = len(c.data)
	if total := stats.Hits + stats.Misses; total > 0 {
		stats.HitRate = float64(stats.Hits) / float64(total) * 100
	}
	return stats
}

func (c *LRUCache) addToFront(node *cacheNode) {
	node.prev = nil
	node.next = c.head
	if c.head != nil {
		c.head.prev = node
	}
	c.head = node
	if c.tail == nil {
		c.tail = node
	}
}

func (c *LRUCache) moveToFront(node *cacheNode) {
	if node == c.head {
		return
	}
	c.unlink(node)
	c.addToFront(node)
}

func (c *LRUCache) unlink(node *cacheNode) {
	if node.prev != nil {
		node.prev.next = node.next
	} else {
		c.head = node.next
	}
	if node.next != nil {
		node.next.prev = node.prev
	} else {
		c.tail = node.prev
	}
	node.prev, node.next = nil, nil
}

func (c *LRUCache) removeNode(node *cacheNode) {
	c.unlink(node)
	delete(c.data, node.key)
}

func (c *LRUCache) evictLRU() {
	if c.tail == nil {
		return
	}
	c.removeNode(c.tail)
	c.stats.Evictions++
}

func matchesPattern(key, pattern string) bool {
	if pattern == "*" {
		return true
	}
	parts := strings.Split(pattern, ":")
	keyParts := strings.Split(key, ":")
	if len(parts) != len(keyParts) {
		return false
	}
	for i, part := range parts {
		if part != "*" && part != keyParts[i] {
			return false
		}
	}
	return true
}
