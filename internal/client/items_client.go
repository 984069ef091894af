package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/url"

	"github.com/shopspring/decimal"

	"github.com/pesio-ai/be-ap-payment-orders/internal/draft"
)

// Record is a sub-item as the backend returns it. Numbers are kept as
// json.Number so amounts decode exactly.
type Record map[string]any

// UnmarshalJSON decodes the record with UseNumber
func (r *Record) UnmarshalJSON(b []byte) error {
	dec := json.NewDecoder(bytes.NewReader(b))
	dec.UseNumber()
	var m map[string]any
	if err := dec.Decode(&m); err != nil {
		return err
	}
	*r = m
	return nil
}

// ItemID returns the record's id as a string
func (r Record) ItemID() string {
	switch v := r["id"].(type) {
	case string:
		return v
	case json.Number:
		return v.String()
	case float64:
		return fmt.Sprintf("%.0f", v)
	case nil:
		return ""
	default:
		return fmt.Sprint(v)
	}
}

// Decimal reads a numeric attribute, sent either as a number or a string.
// Missing or unparsable values read as zero.
func (r Record) Decimal(field string) decimal.Decimal {
	switch v := r[field].(type) {
	case json.Number:
		d, err := decimal.NewFromString(v.String())
		if err != nil {
			return decimal.Zero
		}
		return d
	case float64:
		return decimal.NewFromFloat(v)
	case string:
		d, err := decimal.NewFromString(v)
		if err != nil {
			return decimal.Zero
		}
		return d
	}
	return decimal.Zero
}

// ItemsClient creates, lists and associates sub-items
type ItemsClient struct {
	gw *Gateway
}

// NewItemsClient creates a new sub-item client
func NewItemsClient(gw *Gateway) *ItemsClient {
	return &ItemsClient{gw: gw}
}

// CreateItem creates a sub-item at endpoint
func (c *ItemsClient) CreateItem(ctx context.Context, endpoint string, payload draft.Payload) (Record, error) {
	var resp Record
	if err := c.gw.Post(ctx, endpoint, payload, &resp); err != nil {
		return nil, fmt.Errorf("failed to create item at %s: %w", endpoint, err)
	}
	return resp, nil
}

// ListItems lists the sub-items attached to an order
func (c *ItemsClient) ListItems(ctx context.Context, endpoint, orderID string) ([]Record, error) {
	path := fmt.Sprintf("%s?ordrePaiementId=%s", endpoint, url.QueryEscape(orderID))
	return list[Record](ctx, c.gw, path, "items")
}

// AssociateItem links an existing sub-item to an order
func (c *ItemsClient) AssociateItem(ctx context.Context, path, orderID string) error {
	body := map[string]string{draft.FieldOrderID: orderID}
	if err := c.gw.Put(ctx, path, body, nil); err != nil {
		return fmt.Errorf("failed to associate item: %w", err)
	}
	return nil
}
