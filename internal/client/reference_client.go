package client

import (
	"context"
	"fmt"
)

// Reference data paths
const (
	PathCompanies        = "/societes"
	PathCurrencies       = "/devises"
	PathCounterparties   = "/tiers"
	PathLedgerAccounts   = "/plan-comptables?actifs=true"
	PathBanks            = "/banques"
	PathInvoices         = "/factures"
	PathTreasuryAccounts = "/comptes-tresorerie"
)

// ReferenceClient reads the reference lists the order form is built from
type ReferenceClient struct {
	gw *Gateway
}

// NewReferenceClient creates a new reference data client
func NewReferenceClient(gw *Gateway) *ReferenceClient {
	return &ReferenceClient{gw: gw}
}

func list[T any](ctx context.Context, gw *Gateway, path, what string) ([]T, error) {
	items, shape, err := getList[T](ctx, gw, path)
	if err != nil {
		return nil, fmt.Errorf("failed to list %s: %w", what, err)
	}
	gw.log.Debug().
		Str("path", path).
		Str("shape", shape.String()).
		Int("count", len(items)).
		Msg("Reference list loaded")
	return items, nil
}

// ListCompanies lists the companies
func (c *ReferenceClient) ListCompanies(ctx context.Context) ([]Company, error) {
	return list[Company](ctx, c.gw, PathCompanies, "companies")
}

// ListCurrencies lists the currencies
func (c *ReferenceClient) ListCurrencies(ctx context.Context) ([]Currency, error) {
	return list[Currency](ctx, c.gw, PathCurrencies, "currencies")
}

// ListCounterparties lists the third parties
func (c *ReferenceClient) ListCounterparties(ctx context.Context) ([]Counterparty, error) {
	return list[Counterparty](ctx, c.gw, PathCounterparties, "counterparties")
}

// ListLedgerAccounts lists the active ledger accounts
func (c *ReferenceClient) ListLedgerAccounts(ctx context.Context) ([]LedgerAccount, error) {
	return list[LedgerAccount](ctx, c.gw, PathLedgerAccounts, "ledger accounts")
}

// ListBanks lists the banks
func (c *ReferenceClient) ListBanks(ctx context.Context) ([]Bank, error) {
	return list[Bank](ctx, c.gw, PathBanks, "banks")
}

// ListInvoices lists the invoices available for settlement
func (c *ReferenceClient) ListInvoices(ctx context.Context) ([]Invoice, error) {
	return list[Invoice](ctx, c.gw, PathInvoices, "invoices")
}

// ListTreasuryAccounts lists the accounts payments can leave from
func (c *ReferenceClient) ListTreasuryAccounts(ctx context.Context) ([]TreasuryAccount, error) {
	return list[TreasuryAccount](ctx, c.gw, PathTreasuryAccounts, "treasury accounts")
}
