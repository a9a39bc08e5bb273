package messaging

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"leadership-portal/internal/domain"

	amqp "github.com/rabbitmq/amqp091-go"
)

const storeTimeout = 5 * time.Second

// AuditStore is where consumed events end up.
type AuditStore interface {
	Insert(ctx context.Context, event *domain.AuditEvent) error
}

// AuditConsumer persists events from the audit queue. Inserts are
// idempotent on the event ID, so redelivery after a crash is harmless.
type AuditConsumer struct {
	rmq   *RabbitMQ
	store AuditStore
}

func NewAuditConsumer(rmq *RabbitMQ, store AuditStore) *AuditConsumer {
	return &AuditConsumer{
		rmq:   rmq,
		store: store,
	}
}

// Start begins consuming in a background goroutine that stops with ctx.
func (c *AuditConsumer) Start(ctx context.Context) error {
	msgs, err := c.rmq.ConsumeAuditEvents()
	if err != nil {
		return err
	}

	go c.run(ctx, msgs)
	return nil
}

func (c *AuditConsumer) run(ctx context.Context, msgs <-chan amqp.Delivery) {
	for {
		select {
		case <-ctx.Done():
			slog.Info("stopping audit consumer")
			return
		case msg, ok := <-msgs:
			if !ok {
				slog.Warn("audit consumer channel closed")
				return
			}
			c.handle(ctx, msg)
		}
	}
}

// handle acks stored events and requeues the first store failure. Malformed
// events and repeated failures are rejected without requeue, which routes
// them to the dead-letter queue.
func (c *AuditConsumer) handle(ctx context.Context, msg amqp.Delivery) {
	var event domain.AuditEvent
	if err := json.Unmarshal(msg.Body, &event); err != nil || event.ID == "" || event.Type == "" {
		slog.Error("dead-lettering malformed audit event",
			slog.Int("body_size", len(msg.Body)))
		nack(msg, "", false)
		return
	}

	storeCtx, cancel := context.WithTimeout(ctx, storeTimeout)
	defer cancel()

	if err := c.store.Insert(storeCtx, &event); err != nil {
		slog.Error("failed to persist audit event",
			slog.String("id", event.ID),
			slog.Bool("requeue", !msg.Redelivered),
			slog.String("error", err.Error()))
		nack(msg, event.ID, !msg.Redelivered)
		return
	}

	if err := msg.Ack(false); err != nil {
		slog.Error("failed to ack audit event",
			slog.String("id", event.ID),
			slog.String("error", err.Error()))
	}
}

func nack(msg amqp.Delivery, id string, requeue bool) {
	if err := msg.Nack(false, requeue); err != nil {
		slog.Error("failed to nack audit event",
			slog.String("id", id),
			slog.Bool("requeue", requeue),
			slog.String("error", err.Error()))
	}
}
