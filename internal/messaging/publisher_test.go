package messaging

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"leadership-portal/internal/domain"
	"leadership-portal/internal/observability"

	promtest "github.com/prometheus/client_golang/prometheus/testutil"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeChannel struct {
	err      error
	exchange string
	msgs     []amqp.Publishing
	ctxErr   error
	deadline bool
}

func (f *fakeChannel) PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error {
	f.exchange = exchange
	f.ctxErr = ctx.Err()
	_, f.deadline = ctx.Deadline()
	if f.err != nil {
		return f.err
	}
	f.msgs = append(f.msgs, msg)
	return nil
}

func TestAuditPublisher_Record(t *testing.T) {
	ch := &fakeChannel{}
	p := &AuditPublisher{ch: ch}
	event := domain.NewAuditEvent(domain.AuditAccessDenied, "user-1", "not_owner")
	event.ResourceType = domain.ResourceAssignment
	event.ResourceID = "a-1"

	counter := observability.AuditEventsPublished.WithLabelValues(domain.AuditAccessDenied, "ok")
	before := promtest.ToFloat64(counter)

	require.NoError(t, p.Record(context.Background(), event))

	require.Len(t, ch.msgs, 1)
	assert.Equal(t, AuditExchange, ch.exchange)
	assert.True(t, ch.deadline, "publish is bounded")
	msg := ch.msgs[0]
	assert.Equal(t, "application/json", msg.ContentType)
	assert.Equal(t, amqp.Persistent, msg.DeliveryMode)
	assert.Equal(t, event.ID, msg.MessageId)

	var decoded domain.AuditEvent
	require.NoError(t, json.Unmarshal(msg.Body, &decoded))
	assert.Equal(t, event.ID, decoded.ID)
	assert.Equal(t, "a-1", decoded.ResourceID)
	assert.Equal(t, before+1, promtest.ToFloat64(counter))
}

func TestAuditPublisher_SurvivesCancelledRequest(t *testing.T) {
	ch := &fakeChannel{}
	p := &AuditPublisher{ch: ch}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	require.NoError(t, p.Record(ctx, domain.NewAuditEvent(domain.AuditLogout, "user-1", "success")))

	assert.NoError(t, ch.ctxErr)
}

func TestAuditPublisher_BrokerError(t *testing.T) {
	ch := &fakeChannel{err: errors.New("channel/connection is not open")}
	p := &AuditPublisher{ch: ch}

	counter := observability.AuditEventsPublished.WithLabelValues(domain.AuditLogin, "error")
	before := promtest.ToFloat64(counter)

	err := p.Record(context.Background(), domain.NewAuditEvent(domain.AuditLogin, "", "failure"))

	assert.ErrorContains(t, err, "failed to publish audit event")
	assert.Equal(t, before+1, promtest.ToFloat64(counter))
}

