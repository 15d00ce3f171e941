package redis

import (
	"context"
	"time"

	"github.com/crabzie/workspace-fleet/internal/core/port"
	"github.com/gofiber/storage/redis/v3"
)

type cache struct {
	storage *redis.Storage
}

// NewCache adapts the fiber Redis storage to the cache port
func NewCache(storage *redis.Storage) port.Cache {
	return &cache{storage: storage}
}

// Get returns nil, nil for missing keys, as the fiber storage does
func (c *cache) Get(_ context.Context, key string) ([]byte, error) {
	return c.storage.Get(key)
}

func (c *cache) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	return c.storage.Set(key, value, ttl)
}
