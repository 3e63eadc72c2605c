// Package events connects the synchronizer to source change events published
// by the job board over RabbitMQ.
package events

import (
	"context"
	"fmt"
	"strings"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/talentboard/supportbot/internal/domain"
)

// DefaultQueue is the durable queue change events are published to.
const DefaultQueue = "supportbot.source-changes"

// Action is what happened to a source document.
type Action string

const (
	ActionUpsert Action = "upsert"
	ActionDelete Action = "delete"
)

// ChangeEvent announces that a source document was created, updated or deleted.
type ChangeEvent struct {
	SourceType domain.SourceType `json:"source_type"`
	SourceID   string            `json:"source_id"`
	Action     Action            `json:"action"`
}

// Validate normalizes the source type and checks the event is actionable.
func (e *ChangeEvent) Validate() error {
	st, err := domain.ParseSourceType(string(e.SourceType))
	if err != nil {
		return err
	}
	e.SourceType = st
	e.SourceID = strings.TrimSpace(e.SourceID)
	if e.SourceID == "" {
		return domain.NewDomainErrorWithCause(domain.ErrCodeValidation, domain.ErrMissingRequiredField.Message,
			fmt.Errorf("source_id is required"))
	}
	switch e.Action {
	case ActionUpsert, ActionDelete:
		return nil
	default:
		return domain.NewDomainErrorWithCause(domain.ErrCodeValidation, domain.ErrInvalidSyncAction.Message,
			fmt.Errorf("unknown action %q", e.Action))
	}
}

// Dial connects to RabbitMQ and checks that a channel can be opened.
func Dial(ctx context.Context, url string) (*amqp.Connection, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("dial rabbitmq failed: %w", err)
	}

	checkCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		ch, err := conn.Channel()
		if err == nil {
			err = ch.Close()
		}
		done <- err
	}()

	select {
	case <-checkCtx.Done():
		_ = conn.Close()
		return nil, fmt.Errorf("rabbitmq health check timeout: %w", checkCtx.Err())
	case err := <-done:
		if err != nil {
			_ = conn.Close()
			return nil, fmt.Errorf("open rabbitmq channel failed: %w", err)
		}
		return conn, nil
	}
}

func declareQueue(ch interface {
	QueueDeclare(name string, durable, autoDelete, exclusive, noWait bool, args amqp.Table) (amqp.Queue, error)
}, queue string) error {
	_, err := ch.QueueDeclare(
		queue,
		true,
		false,
		false,
		false,
		nil,
	)
	if err != nil {
		return fmt.Errorf("declare queue failed: %w", err)
	}
	return nil
}
