package client

import (
	"context"

	"github.com/pesio-ai/be-ap-payment-orders/internal/draft"
)

// ReferenceClientInterface defines the reference-data lookups
type ReferenceClientInterface interface {
	ListCompanies(ctx context.Context) ([]Company, error)
	ListCurrencies(ctx context.Context) ([]Currency, error)
	ListCounterparties(ctx context.Context) ([]Counterparty, error)
	ListLedgerAccounts(ctx context.Context) ([]LedgerAccount, error)
	ListBanks(ctx context.Context) ([]Bank, error)
	ListInvoices(ctx context.Context) ([]Invoice, error)
	ListTreasuryAccounts(ctx context.Context) ([]TreasuryAccount, error)
}

// OrdersClientInterface defines the payment order calls
type OrdersClientInterface interface {
	CreateOrder(ctx context.Context, req *CreateOrderRequest) (*CreatedOrder, error)
	SubmitOrder(ctx context.Context, orderID string, req *SubmitOrderRequest) error
}

// ItemsClientInterface defines the sub-item calls
type ItemsClientInterface interface {
	CreateItem(ctx context.Context, endpoint string, payload draft.Payload) (Record, error)
	ListItems(ctx context.Context, endpoint, orderID string) ([]Record, error)
	AssociateItem(ctx context.Context, path, orderID string) error
}
