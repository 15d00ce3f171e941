package memory

import (
	"context"
	"sync"
	"time"
)

// DeliveryStore remembers webhook delivery ids until they expire
type DeliveryStore struct {
	mu   sync.Mutex
	seen map[string]time.Time // id -> expiry
	now  func() time.Time
}

func NewDeliveryStore() *DeliveryStore {
	return &DeliveryStore{
		seen: make(map[string]time.Time),
		now:  time.Now,
	}
}

func (s *DeliveryStore) MarkDelivered(_ context.Context, id string, ttl time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	for key, expiry := range s.seen {
		if !now.Before(expiry) {
			delete(s.seen, key)
		}
	}

	if _, ok := s.seen[id]; ok {
		return false, nil
	}
	s.seen[id] = now.Add(ttl)
	return true, nil
}

func (s *DeliveryStore) Forget(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.seen, id)
	return nil
}

type cacheEntry struct {
	value  []byte
	expiry time.Time
}

// Cache is an in-memory TTL cache
type Cache struct {
	mu      sync.Mutex
	entries map[string]cacheEntry
	now     func() time.Time
}

func NewCache() *Cache {
	return &Cache{
		entries: make(map[string]cacheEntry),
		now:     time.Now,
	}
}

func (c *Cache) Get(_ context.Context, key string) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries[key]
	if !ok {
		return nil, nil
	}
	if !c.now().Before(entry.expiry) {
		delete(c.entries, key)
		return nil, nil
	}
	return append([]byte(nil), entry.value...), nil
}

func (c *Cache) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries[key] = cacheEntry{
		value:  append([]byte(nil), value...),
		expiry: c.now().Add(ttl),
	}
	return nil
}
