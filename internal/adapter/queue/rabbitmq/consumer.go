package rabbitmq

import (
	"context"
	"encoding/json"

	"github.com/crabzie/workspace-fleet/internal/core/domain"
	"go.uber.org/zap"
)

// ConsumeEvents declares a durable queue bound to bindingKey and dispatches
// each delivery to handler. Payloads arrive as json.RawMessage.
func (q *eventQueue) ConsumeEvents(ctx context.Context, queue, bindingKey string, handler func(domain.Event) error) error {
	if bindingKey == "" {
		bindingKey = "#"
	}

	_, err := q.ch.QueueDeclare(
		queue, // name
		true,  // durable
		false, // delete when unused
		false, // exclusive
		false, // no-wait
		nil,   // arguments
	)
	if err != nil {
		return err
	}

	if err := q.ch.QueueBind(queue, bindingKey, q.exchange, false, nil); err != nil {
		return err
	}

	msgs, err := q.ch.ConsumeWithContext(ctx,
		queue, // queue
		"",    // consumer
		false, // auto-ack, acked after the handler returns
		false, // exclusive
		false, // no-local
		false, // no-wait
		nil,   // args
	)
	if err != nil {
		return err
	}

	q.log.Info("Started consuming events", zap.String("queue", queue), zap.String("binding", bindingKey))

	go func() {
		for d := range msgs {
			event, err := decodeEvent(d.Body)
			if err != nil {
				q.log.Error("Failed to unmarshal event", zap.Error(err))
				d.Nack(false, false) // discard invalid message
				continue
			}

			if err := handler(event); err != nil {
				q.log.Error("Event handling failed", zap.String("event", event.Name), zap.Error(err))
				d.Nack(false, true)
				continue
			}
			d.Ack(false)
		}
		q.log.Info("Stopped consuming events", zap.String("queue", queue))
	}()

	return nil
}

func decodeEvent(body []byte) (domain.Event, error) {
	var raw struct {
		Channel string          `json:"channel"`
		Name    string          `json:"event"`
		Payload json.RawMessage `json:"payload"`
	}
	if err := json.Unmarshal(body, &raw); err != nil {
		return domain.Event{}, err
	}
	return domain.Event{Channel: raw.Channel, Name: raw.Name, Payload: raw.Payload}, nil
}
