package client

import (
	"context"
	"fmt"
	"net/url"

	"github.com/pesio-ai/be-ap-payment-orders/internal/errors"
)

// PathOrders is the payment order collection
const PathOrders = "/ordre-paiement"

// OrdersClient is a client for the payment order endpoints
type OrdersClient struct {
	gw *Gateway
}

// NewOrdersClient creates a new payment order client
func NewOrdersClient(gw *Gateway) *OrdersClient {
	return &OrdersClient{gw: gw}
}

// CreateOrder persists an order header and returns the assigned identity
func (c *OrdersClient) CreateOrder(ctx context.Context, req *CreateOrderRequest) (*CreatedOrder, error) {
	var resp CreatedOrder
	if err := c.gw.Post(ctx, PathOrders, req, &resp); err != nil {
		return nil, fmt.Errorf("failed to create payment order: %w", err)
	}
	if resp.ID == "" {
		return nil, errors.New(errors.ErrCodeProtocol, "Le serveur n'a pas renvoyé l'identifiant de l'ordre")
	}
	return &resp, nil
}

// SubmitOrder submits an order for approval
func (c *OrdersClient) SubmitOrder(ctx context.Context, orderID string, req *SubmitOrderRequest) error {
	path := fmt.Sprintf("%s/%s/soumettre", PathOrders, url.PathEscape(orderID))
	if err := c.gw.Post(ctx, path, req, nil); err != nil {
		return fmt.Errorf("failed to submit payment order: %w", err)
	}
	return nil
}
