package messaging

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"leadership-portal/internal/domain"
	"leadership-portal/internal/observability"

	amqp "github.com/rabbitmq/amqp091-go"
)

const publishTimeout = 2 * time.Second

// publishChannel is the part of *amqp.Channel the publisher uses.
type publishChannel interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
}

// AuditPublisher sends audit events to the audit exchange. It satisfies
// access.AuditSink so the gate and services can use it directly.
type AuditPublisher struct {
	ch publishChannel
}

func NewAuditPublisher(rmq *RabbitMQ) *AuditPublisher {
	return &AuditPublisher{ch: rmq.channel}
}

// Record publishes event. The publish outlives a cancelled request context
// so a client hanging up cannot suppress its own audit trail.
func (p *AuditPublisher) Record(ctx context.Context, event *domain.AuditEvent) error {
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal audit event: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), publishTimeout)
	defer cancel()

	err = p.ch.PublishWithContext(
		ctx,
		AuditExchange,
		"",
		false,
		false,
		amqp.Publishing{
			ContentType:  "application/json",
			Body:         body,
			DeliveryMode: amqp.Persistent,
			MessageId:    event.ID,
			Type:         event.Type,
			Timestamp:    event.Timestamp,
		},
	)
	if err != nil {
		observability.AuditEventsPublished.WithLabelValues(event.Type, "error").Inc()
		return fmt.Errorf("failed to publish audit event: %w", err)
	}

	observability.AuditEventsPublished.WithLabelValues(event.Type, "ok").Inc()
	return nil
}
