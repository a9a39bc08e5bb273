package messaging

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"
	amqp "github.com/rabbitmq/amqp091-go"
)

const (
	// AuditExchange fans audit events out to every bound queue.
	AuditExchange = "portal.audit"
	// AuditQueue is the durable queue the persisting consumer reads.
	AuditQueue = "portal.audit.persist"
	// AuditDeadLetterExchange receives events the consumer gave up on.
	AuditDeadLetterExchange = "portal.audit.dlx"
	// AuditDeadLetterQueue holds dead-lettered events until an operator
	// replays or inspects them.
	AuditDeadLetterQueue = "portal.audit.dead"

	prefetchCount = 32
)

type RabbitMQ struct {
	conn    *amqp.Connection
	channel *amqp.Channel
}

func NewRabbitMQ(url string) (*RabbitMQ, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to open channel: %w", err)
	}

	rmq := &RabbitMQ{
		conn:    conn,
		channel: ch,
	}

	if err := rmq.Setup(); err != nil {
		rmq.Close()
		return nil, err
	}

	return rmq, nil
}

// NewRabbitMQWithRetry keeps dialing with exponential backoff until the
// broker accepts the connection or ctx ends. Brokers often come up after
// the application in container deployments.
func NewRabbitMQWithRetry(ctx context.Context, url string) (*RabbitMQ, error) {
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = 500 * time.Millisecond
	policy.MaxInterval = 10 * time.Second
	policy.MaxElapsedTime = 0 // bounded by ctx

	var rmq *RabbitMQ
	err := backoff.RetryNotify(func() error {
		var err error
		rmq, err = NewRabbitMQ(url)
		return err
	}, backoff.WithContext(policy, ctx), func(err error, next time.Duration) {
		slog.Warn("rabbitmq not ready, retrying",
			slog.String("error", err.Error()),
			slog.Duration("retry_in", next))
	})
	if err != nil {
		return nil, err
	}
	return rmq, nil
}

// Setup declares the audit topology. It is idempotent.
func (r *RabbitMQ) Setup() error {
	if err := r.channel.ExchangeDeclare(
		AuditExchange, // name
		"fanout",      // type
		true,          // durable
		false,         // auto-deleted
		false,         // internal
		false,         // no-wait
		nil,           // arguments
	); err != nil {
		return fmt.Errorf("failed to declare audit exchange: %w", err)
	}

	if err := r.declareDeadLetter(); err != nil {
		return err
	}

	if _, err := r.channel.QueueDeclare(
		AuditQueue, // name
		true,       // durable
		false,      // delete when unused
		false,      // exclusive
		false,      // no-wait
		amqp.Table{"x-dead-letter-exchange": AuditDeadLetterExchange},
	); err != nil {
		return fmt.Errorf("failed to declare %s queue: %w", AuditQueue, err)
	}

	if err := r.channel.QueueBind(
		AuditQueue,    // queue name
		"",            // routing key
		AuditExchange, // exchange
		false,
		nil,
	); err != nil {
		return fmt.Errorf("failed to bind %s queue: %w", AuditQueue, err)
	}

	slog.Info("rabbitmq setup completed successfully")
	return nil
}

func (r *RabbitMQ) declareDeadLetter() error {
	if err := r.channel.ExchangeDeclare(
		AuditDeadLetterExchange,
		"fanout",
		true,
		false,
		false,
		false,
		nil,
	); err != nil {
		return fmt.Errorf("failed to declare dead-letter exchange: %w", err)
	}

	if _, err := r.channel.QueueDeclare(AuditDeadLetterQueue, true, false, false, false, nil); err != nil {
		return fmt.Errorf("failed to declare %s queue: %w", AuditDeadLetterQueue, err)
	}

	if err := r.channel.QueueBind(AuditDeadLetterQueue, "", AuditDeadLetterExchange, false, nil); err != nil {
		return fmt.Errorf("failed to bind %s queue: %w", AuditDeadLetterQueue, err)
	}
	return nil
}

// ConsumeAuditEvents starts a manual-ack consumer on the audit queue.
func (r *RabbitMQ) ConsumeAuditEvents() (<-chan amqp.Delivery, error) {
	if err := r.channel.Qos(prefetchCount, 0, false); err != nil {
		return nil, fmt.Errorf("failed to set prefetch: %w", err)
	}

	msgs, err := r.channel.Consume(
		AuditQueue,
		"",
		false, // manual ack
		false,
		false,
		false,
		nil,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to register consumer: %w", err)
	}

	slog.Info("started consuming audit events", slog.String("queue", AuditQueue))
	return msgs, nil
}

// NotifyClose returns a channel that receives the error when the
// connection drops. It never fires for a RabbitMQ without a connection.
func (r *RabbitMQ) NotifyClose() <-chan *amqp.Error {
	if r.conn == nil {
		return make(chan *amqp.Error)
	}
	return r.conn.NotifyClose(make(chan *amqp.Error, 1))
}

func (r *RabbitMQ) IsClosed() bool {
	return r.conn == nil || r.conn.IsClosed()
}

func (r *RabbitMQ) Close() error {
	if r.channel != nil {
		r.channel.Close()
	}
	if r.conn != nil {
		return r.conn.Close()
	}
	return nil
}
