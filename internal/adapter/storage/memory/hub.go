package memory

import (
	"context"
	"sync"

	"github.com/crabzie/workspace-fleet/internal/core/domain"
	"go.uber.org/zap"
)

const subscriberBuffer = 32

// Hub is a process-local pub/sub used when no Redis is configured.
// Slow subscribers drop events instead of blocking publishers.
type Hub struct {
	mu   sync.RWMutex
	subs map[string]map[chan domain.Event]struct{}
	log  *zap.Logger
}

func NewHub(log *zap.Logger) *Hub {
	if log == nil {
		log = zap.NewNop()
	}
	return &Hub{
		subs: make(map[string]map[chan domain.Event]struct{}),
		log:  log,
	}
}

func (h *Hub) Broadcast(_ context.Context, event domain.Event) error {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for ch := range h.subs[event.Channel] {
		select {
		case ch <- event:
		default:
			h.log.Warn("Dropping event for slow subscriber", zap.String("channel", event.Channel))
		}
	}
	return nil
}

// Subscribe registers a listener on channel. The returned channel is closed once ctx is done.
func (h *Hub) Subscribe(ctx context.Context, channel string) (<-chan domain.Event, error) {
	ch := make(chan domain.Event, subscriberBuffer)

	h.mu.Lock()
	if h.subs[channel] == nil {
		h.subs[channel] = make(map[chan domain.Event]struct{})
	}
	h.subs[channel][ch] = struct{}{}
	h.mu.Unlock()

	go func() {
		<-ctx.Done()
		h.mu.Lock()
		delete(h.subs[channel], ch)
		if len(h.subs[channel]) == 0 {
			delete(h.subs, channel)
		}
		h.mu.Unlock()
		close(ch)
	}()

	return ch, nil
}
