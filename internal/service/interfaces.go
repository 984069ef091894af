package service

import (
	"context"

	"github.com/pesio-ai/be-ap-payment-orders/internal/repository"
)

// AuditRecorder appends workflow actions to the audit trail
type AuditRecorder interface {
	Append(ctx context.Context, entry *repository.AuditEntry) error
}

// EventPublisher publishes workflow events. Implementations never fail the
// caller.
type EventPublisher interface {
	PublishOrderEvent(ctx context.Context, eventType, orderID, sessionID string, payload map[string]any)
}
