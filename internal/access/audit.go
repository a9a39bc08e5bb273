package access

import (
	"context"

	"leadership-portal/internal/domain"
)

// AuditSink receives security events. Delivery is best effort: the gate logs
// sink errors and never lets them change a decision.
type AuditSink interface {
	Record(ctx context.Context, event *domain.AuditEvent) error
}

// NopAuditSink discards every event.
type NopAuditSink struct{}

func (NopAuditSink) Record(context.Context, *domain.AuditEvent) error { return nil }
