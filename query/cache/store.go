package cache

import (
	"time"
)

// Store is a durable byte store for cached values. Implementations expire
// entries after their TTL and are safe for concurrent use.
type Store interface {
	// Get returns the live value for key; false when absent or expired.
	Get(key string) ([]byte, bool, error)
	// Put stores value for ttl; a non-positive ttl never expires.
	Put(key string, value []byte, ttl time.Duration) error
	Delete(key string) error
	// Clear removes every entry.
	Clear() error
}

// MemoryStore is a Store held in an LRUCache.
type MemoryStore struct {
	lru *LRUCache
}

// NewMemoryStore creates a store of at most maxSize entries.
func NewMemoryStore(maxSize int, opts ...Option) *MemoryStore {
	return &MemoryStore{lru: NewLRUCache(maxSize, 0, opts...)}
}

func (s *MemoryStore) Get(key string) ([]byte, bool, error) {
	v, ok := s.lru.Get(key)
	if !ok {
		return nil, false, nil
	}
	return v.([]byte), true, nil
}

func (s *MemoryStore) Put(key string, value []byte, ttl time.Duration) error {
	s.lru.Set(key, append([]byte(nil), value...), ttl)
	return nil
}

func (s *MemoryStore) Delete(key string) error {
	s.lru.Invalidate(key)
	return nil
}

func (s *MemoryStore) Clear() error {
	s.lru.Clear()
	return nil
}

// Stats returns the underlying cache statistics.
func (s *MemoryStore) Stats() Stats { return s.lru.Stats() }
