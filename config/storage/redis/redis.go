// Package redis provides Redis connection setup shared by the pub/sub, delivery and cache adapters.
package redis

import (
	"context"
	"time"

	config "github.com/crabzie/workspace-fleet/config/utils"

	"github.com/gofiber/storage/redis/v3"
	redigo "github.com/redis/go-redis/v9"
)

type Redis struct {
	Client  redigo.UniversalClient
	Storage *redis.Storage
}

// New creates a new instance of Redis
func New(ctx context.Context, config *config.Redis) (*Redis, error) {
	addr := config.Addr
	if addr == "" {
		addr = config.Host + ":" + config.Port
	}

	client := redigo.NewUniversalClient(&redigo.UniversalOptions{
		Addrs:           []string{addr},
		Password:        config.Password,
		DB:              0,
		MaxRetries:      3,
		MinRetryBackoff: 100 * time.Millisecond,
		MaxRetryBackoff: 1 * time.Second,
		DialTimeout:     5 * time.Second,
		ReadTimeout:     3 * time.Second,
		WriteTimeout:    3 * time.Second,
		PoolSize:        10,
		MinIdleConns:    2,
		ConnMaxIdleTime: 5 * time.Minute,
		// TLSConfig:       &tls.Config{MinVersion: tls.VersionTLS13},
	})

	if _, err := client.Ping(ctx).Result(); err != nil {
		_ = client.Close()
		return nil, err
	}

	storage := redis.NewFromConnection(client)

	return &Redis{Client: client, Storage: storage}, nil
}

// Health pings the server
func (r *Redis) Health(ctx context.Context) error {
	return r.Client.Ping(ctx).Err()
}

// Close releases the connection pool. The storage wraps Client, so closing it closes both.
func (r *Redis) Close() error {
	return r.Storage.Close()
}
