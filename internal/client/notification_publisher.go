package client

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/pesio-ai/be-ap-payment-orders/internal/logger"
)

// NotificationPublisher publishes payment-order workflow events to NATS for
// consumption by the notifications service.
//
// Subject convention: notifications.payment_orders.<event_type>
// Event types: order_created, item_attached, item_associated, order_submitted
//
// Publishing never fails the workflow action that triggered it: errors are
// logged and dropped.
type NotificationPublisher struct {
	conn *nats.Conn
	log  *logger.Logger
}

// NotificationEvent is the JSON schema published to NATS.
type NotificationEvent struct {
	EventType    string         `json:"event_type"`
	ResourceType string         `json:"resource_type"`
	ResourceID   string         `json:"resource_id"`
	SessionID    string         `json:"session_id,omitempty"`
	OccurredAt   time.Time      `json:"occurred_at"`
	Payload      map[string]any `json:"payload,omitempty"`
}

// NewNotificationPublisher creates a publisher on an open connection. A nil
// connection yields a publisher that does nothing.
func NewNotificationPublisher(conn *nats.Conn, log *logger.Logger) *NotificationPublisher {
	return &NotificationPublisher{conn: conn, log: log}
}

// ConnectNotificationPublisher dials url and returns a publisher
func ConnectNotificationPublisher(url string, log *logger.Logger) (*NotificationPublisher, error) {
	conn, err := nats.Connect(url,
		nats.Name("be-ap-payment-orders"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}
	return NewNotificationPublisher(conn, log), nil
}

// Close drains the connection
func (p *NotificationPublisher) Close() {
	if p.conn != nil {
		_ = p.conn.Drain()
	}
}

// PublishOrderEvent publishes a payment-order event.
// Subject: notifications.payment_orders.<eventType>
func (p *NotificationPublisher) PublishOrderEvent(ctx context.Context, eventType, orderID, sessionID string, payload map[string]any) {
	if p == nil || p.conn == nil {
		return
	}

	event := &NotificationEvent{
		EventType:    eventType,
		ResourceType: "payment_order",
		ResourceID:   orderID,
		SessionID:    sessionID,
		OccurredAt:   time.Now().UTC(),
		Payload:      payload,
	}

	data, err := json.Marshal(event)
	if err != nil {
		p.log.Warn().Err(err).Str("event_type", eventType).Msg("notification: failed to marshal event")
		return
	}

	subject := fmt.Sprintf("notifications.payment_orders.%s", eventType)
	if err := p.conn.Publish(subject, data); err != nil {
		p.log.Warn().Err(err).
			Str("subject", subject).
			Str("order_id", orderID).
			Msg("notification: failed to publish NATS event (non-fatal)")
		return
	}

	p.log.Debug().
		Str("subject", subject).
		Str("order_id", orderID).
		Msg("notification: event published")
}
