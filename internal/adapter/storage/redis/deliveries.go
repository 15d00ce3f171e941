package redis

import (
	"context"
	"time"

	"github.com/crabzie/workspace-fleet/internal/core/port"
	"github.com/redis/go-redis/v9"
)

type deliveryStore struct {
	client redis.UniversalClient
}

// NewDeliveryStore records webhook delivery ids with SET NX so concurrent replicas agree
func NewDeliveryStore(client redis.UniversalClient) port.DeliveryStore {
	return &deliveryStore{client: client}
}

func (s *deliveryStore) MarkDelivered(ctx context.Context, id string, ttl time.Duration) (bool, error) {
	return s.client.SetNX(ctx, "delivery:"+id, 1, ttl).Result()
}

func (s *deliveryStore) Forget(ctx context.Context, id string) error {
	return s.client.Del(ctx, "delivery:"+id).Err()
}
