package repository

import "time"

// Audit actions
const (
	AuditCreated        = "created"
	AuditItemAttached   = "item_attached"
	AuditItemAssociated = "item_associated"
	AuditSubmitted      = "submitted"
	AuditStatusApplied  = "status_applied"
	AuditFailed         = "failed"
)

// AuditEntry is one immutable record of a workflow action on a payment order.
type AuditEntry struct {
	ID           int64          `json:"id"`
	SessionID    string         `json:"sessionId"`
	OrderID      *string        `json:"orderId,omitempty"` // nil until the order is created
	Action       string         `json:"action"`
	Operation    string         `json:"operation"` // the workflow action that ran: create | attach | associate | submit
	StatusBefore *string        `json:"statusBefore,omitempty"`
	StatusAfter  *string        `json:"statusAfter,omitempty"`
	ErrorCode    *string        `json:"errorCode,omitempty"`
	Message      *string        `json:"message,omitempty"`
	PerformedAt  time.Time      `json:"performedAt"`
	Metadata     map[string]any `json:"metadata,omitempty"`
}
