package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/talentboard/supportbot/internal/domain"
	"github.com/talentboard/supportbot/internal/metrics"
	"github.com/talentboard/supportbot/internal/service"
	"go.uber.org/zap"
)

const defaultPrefetch = 8

// SyncHandler applies change events to the knowledge store.
type SyncHandler interface {
	SyncOne(ctx context.Context, sourceType domain.SourceType, id string) (*service.SyncResult, error)
	RemoveSource(ctx context.Context, sourceType domain.SourceType, id string) (int64, error)
}

type channel interface {
	Qos(prefetchCount, prefetchSize int, global bool) error
	QueueDeclare(name string, durable, autoDelete, exclusive, noWait bool, args amqp.Table) (amqp.Queue, error)
	ConsumeWithContext(ctx context.Context, queue, consumer string, autoAck, exclusive, noLocal, noWait bool, args amqp.Table) (<-chan amqp.Delivery, error)
	Close() error
}

// Consumer reads change events and resyncs or removes the affected source.
//
// Successful events are acked. Malformed events are rejected without requeue.
// Events whose sync fails are requeued once; a redelivered event that fails
// again is dropped so a poisoned message cannot spin forever.
type Consumer struct {
	open     func() (channel, error)
	queue    string
	prefetch int
	handler  SyncHandler
	log      *zap.Logger
}

func NewConsumer(conn *amqp.Connection, queue string, handler SyncHandler, log *zap.Logger) *Consumer {
	return newConsumer(func() (channel, error) { return conn.Channel() }, queue, handler, log)
}

func newConsumer(open func() (channel, error), queue string, handler SyncHandler, log *zap.Logger) *Consumer {
	if queue == "" {
		queue = DefaultQueue
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Consumer{
		open:     open,
		queue:    queue,
		prefetch: defaultPrefetch,
		handler:  handler,
		log:      log.With(zap.String("queue", queue)),
	}
}

// Run consumes until ctx is cancelled or the delivery channel closes.
func (c *Consumer) Run(ctx context.Context) error {
	ch, err := c.open()
	if err != nil {
		return fmt.Errorf("open rabbitmq channel failed: %w", err)
	}
	defer ch.Close()

	if err := declareQueue(ch, c.queue); err != nil {
		return err
	}
	if err := ch.Qos(c.prefetch, 0, false); err != nil {
		return fmt.Errorf("set qos failed: %w", err)
	}
	deliveries, err := ch.ConsumeWithContext(ctx, c.queue, "supportbot", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("consume failed: %w", err)
	}

	c.log.Info("change event consumer started")
	for {
		select {
		case <-ctx.Done():
			c.log.Info("change event consumer stopped")
			return nil
		case d, ok := <-deliveries:
			if !ok {
				if ctx.Err() != nil {
					return nil
				}
				return errors.New("delivery channel closed")
			}
			c.handleDelivery(ctx, d)
		}
	}
}

func (c *Consumer) handleDelivery(ctx context.Context, d amqp.Delivery) {
	var event ChangeEvent
	if err := json.Unmarshal(d.Body, &event); err != nil {
		c.reject(d, "", err)
		return
	}
	if err := event.Validate(); err != nil {
		c.reject(d, string(event.Action), err)
		return
	}

	log := c.log.With(
		zap.String("source_type", string(event.SourceType)),
		zap.String("source_id", event.SourceID),
		zap.String("action", string(event.Action)),
	)

	var err error
	switch event.Action {
	case ActionUpsert:
		_, err = c.handler.SyncOne(ctx, event.SourceType, event.SourceID)
	case ActionDelete:
		_, err = c.handler.RemoveSource(ctx, event.SourceType, event.SourceID)
	}

	if err == nil {
		metrics.ChangeEventsTotal.WithLabelValues(string(event.Action), "ok").Inc()
		if ackErr := d.Ack(false); ackErr != nil {
			log.Error("ack failed", zap.Error(ackErr))
		}
		return
	}

	// A failure caused by shutdown says nothing about the event, so it goes
	// back to the queue even when it was already redelivered.
	requeue := ctx.Err() != nil || !d.Redelivered
	outcome := "requeued"
	if !requeue {
		outcome = "dropped"
	}
	metrics.ChangeEventsTotal.WithLabelValues(string(event.Action), outcome).Inc()
	log.Error("change event failed", zap.Error(err), zap.Bool("requeue", requeue))
	if nackErr := d.Nack(false, requeue); nackErr != nil {
		log.Error("nack failed", zap.Error(nackErr))
	}
}

func (c *Consumer) reject(d amqp.Delivery, action string, err error) {
	metrics.ChangeEventsTotal.WithLabelValues(action, "malformed").Inc()
	c.log.Warn("malformed change event", zap.Error(err), zap.ByteString("body", d.Body))
	if nackErr := d.Nack(false, false); nackErr != nil {
		c.log.Error("nack failed", zap.Error(nackErr))
	}
}
