package redis

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/crabzie/workspace-fleet/internal/core/domain"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// channelPrefix namespaces pub/sub channels of this service
const channelPrefix = "fleet:"

// PubSub broadcasts events over Redis channels so every API replica can relay them
type PubSub struct {
	client redis.UniversalClient
	log    *zap.Logger
}

func NewPubSub(client redis.UniversalClient, log *zap.Logger) *PubSub {
	return &PubSub{
		client: client,
		log:    log,
	}
}

func (p *PubSub) Broadcast(ctx context.Context, event domain.Event) error {
	data, err := json.Marshal(event)
	if err != nil {
		return err
	}
	if err := p.client.Publish(ctx, channelPrefix+event.Channel, data).Err(); err != nil {
		return fmt.Errorf("redis publish %s: %w", event.Channel, err)
	}
	return nil
}

// Subscribe forwards messages published on channel until ctx is done.
// Payloads are delivered as json.RawMessage.
func (p *PubSub) Subscribe(ctx context.Context, channel string) (<-chan domain.Event, error) {
	sub := p.client.Subscribe(ctx, channelPrefix+channel)
	// Wait for the subscription confirmation so no message published after we return is lost
	if _, err := sub.Receive(ctx); err != nil {
		sub.Close()
		return nil, fmt.Errorf("redis subscribe %s: %w", channel, err)
	}

	out := make(chan domain.Event, 32)
	go func() {
		defer close(out)
		defer sub.Close()

		msgs := sub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-msgs:
				if !ok {
					return
				}
				var raw struct {
					Channel string          `json:"channel"`
					Name    string          `json:"event"`
					Payload json.RawMessage `json:"payload"`
				}
				if err := json.Unmarshal([]byte(msg.Payload), &raw); err != nil {
					p.log.Warn("Skipping malformed pub/sub message", zap.String("channel", channel), zap.Error(err))
					continue
				}
				select {
				case out <- domain.Event{Channel: raw.Channel, Name: raw.Name, Payload: raw.Payload}:
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	return out, nil
}
