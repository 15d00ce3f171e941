package rabbitmq

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/crabzie/workspace-fleet/internal/core/domain"
	"github.com/crabzie/workspace-fleet/internal/core/port"
	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

// DefaultExchange receives every workflow and graph event
const DefaultExchange = "fleet.events"

type eventQueue struct {
	conn     *amqp.Connection
	ch       *amqp.Channel
	exchange string
	log      *zap.Logger
}

// NewEventQueue dials RabbitMQ with retries and declares the topic exchange
func NewEventQueue(ctx context.Context, url, exchange string, maxRetries int, log *zap.Logger) (port.EventQueue, error) {
	if exchange == "" {
		exchange = DefaultExchange
	}
	if maxRetries <= 0 {
		maxRetries = 10
	}

	var conn *amqp.Connection
	var err error

	for i := 1; i <= maxRetries; i++ {
		conn, err = amqp.Dial(url)
		if err == nil {
			var ch *amqp.Channel
			ch, err = conn.Channel()
			if err == nil {
				err = ch.ExchangeDeclare(
					exchange, // name
					"topic",  // kind
					true,     // durable
					false,    // auto-deleted
					false,    // internal
					false,    // no-wait
					nil,      // arguments
				)
				if err == nil {
					return &eventQueue{
						conn:     conn,
						ch:       ch,
						exchange: exchange,
						log:      log,
					}, nil
				}
			}
			conn.Close()
		}

		log.Warn("Failed to connect to RabbitMQ, retrying...",
			zap.Int("attempt", i),
			zap.Int("max_retries", maxRetries),
			zap.Error(err),
		)

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(time.Duration(i*2) * time.Second):
		}
	}

	return nil, fmt.Errorf("failed to connect to RabbitMQ after %d attempts: %w", maxRetries, err)
}

// RoutingKey is "<event>.<channel>", e.g. "workflow-status-update.task-42"
func RoutingKey(event domain.Event) string {
	return event.Name + "." + event.Channel
}

func (q *eventQueue) Broadcast(ctx context.Context, event domain.Event) error {
	body, err := json.Marshal(event)
	if err != nil {
		return err
	}

	key := RoutingKey(event)
	err = q.ch.PublishWithContext(ctx,
		q.exchange, // Exchange
		key,        // Routing key
		false,      // Mandatory
		false,      // Immediate
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			Timestamp:    time.Now(),
			Type:         event.Name,
			Body:         body,
		})
	if err != nil {
		q.log.Error("Failed to publish event", zap.String("key", key), zap.Error(err))
		return err
	}

	q.log.Debug("Published event to RabbitMQ", zap.String("key", key))
	return nil
}

func (q *eventQueue) Close() error {
	if err := q.ch.Close(); err != nil && !q.conn.IsClosed() {
		q.log.Warn("Failed to close channel", zap.Error(err))
	}
	return q.conn.Close()
}
