package events

import (
	"context"
	"encoding/json"
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"
)

// Publisher emits change events. The job board uses it from its write path;
// the admin CLI uses it to trigger syncs through the queue.
type Publisher struct {
	conn  *amqp.Connection
	queue string
}

func NewPublisher(conn *amqp.Connection, queue string) *Publisher {
	if queue == "" {
		queue = DefaultQueue
	}
	return &Publisher{conn: conn, queue: queue}
}

func (p *Publisher) Publish(ctx context.Context, event ChangeEvent) error {
	if err := event.Validate(); err != nil {
		return err
	}

	ch, err := p.conn.Channel()
	if err != nil {
		return fmt.Errorf("open rabbitmq channel failed: %w", err)
	}
	defer ch.Close()

	if err := declareQueue(ch, p.queue); err != nil {
		return err
	}

	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal change event failed: %w", err)
	}

	if err := ch.PublishWithContext(
		ctx,
		"",
		p.queue,
		false,
		false,
		amqp.Publishing{
			ContentType:  "application/json",
			Body:         payload,
			DeliveryMode: amqp.Persistent,
		},
	); err != nil {
		return fmt.Errorf("publish change event failed: %w", err)
	}
	return nil
}
