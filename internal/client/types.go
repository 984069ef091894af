package client

import (
	"bytes"
	"encoding/json"

	"github.com/shopspring/decimal"

	"github.com/pesio-ai/be-ap-payment-orders/internal/order"
)

// ID is a backend identifier. The backend sends numbers for most resources
// and strings for a few; both decode to the same value.
type ID string

// UnmarshalJSON accepts 12, "12" and null
func (id *ID) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if bytes.Equal(b, []byte("null")) {
		*id = ""
		return nil
	}
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*id = ID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return err
	}
	*id = ID(n.String())
	return nil
}

// Company represents a company of the group (societe)
type Company struct {
	ID   ID     `json:"id"`
	Code string `json:"code"`
	Name string `json:"raisonSociale"`
}

// Currency represents a currency (devise)
type Currency struct {
	ID     ID     `json:"id"`
	Code   string `json:"code"`
	Label  string `json:"libelle"`
	Symbol string `json:"symbole"`
}

// Counterparty represents a third party (tiers)
type Counterparty struct {
	ID   ID     `json:"id"`
	Code string `json:"code"`
	Name string `json:"nom"`
	Type string `json:"type"`
}

// LedgerAccount represents a chart-of-accounts entry (plan comptable)
type LedgerAccount struct {
	ID     ID     `json:"id"`
	Number string `json:"numero"`
	Label  string `json:"libelle"`
	Active bool   `json:"actif"`
}

// Bank represents a bank (banque)
type Bank struct {
	ID    ID     `json:"id"`
	Code  string `json:"code"`
	Name  string `json:"nom"`
	Swift string `json:"swift"`
}

// TreasuryAccount represents a cash or bank account payments leave from
type TreasuryAccount struct {
	ID         ID     `json:"id"`
	Code       string `json:"code"`
	Label      string `json:"libelle"`
	Type       string `json:"type"`
	BankID     ID     `json:"banqueId"`
	IBAN       string `json:"iban"`
	CurrencyID ID     `json:"deviseId"`
}

// Invoice represents a supplier invoice (facture)
type Invoice struct {
	ID                 ID                `json:"id"`
	Number             string            `json:"numero"`
	IssueDate          string            `json:"dateFacture"`
	TotalAmount        decimal.Decimal   `json:"montantTtc"`
	OutstandingBalance decimal.Decimal   `json:"resteAPayer"`
	Status             string            `json:"statut"`
	Counterparty       *CounterpartyInfo `json:"tiers,omitempty"`
}

// CounterpartyInfo is the counterparty summary embedded in an invoice
type CounterpartyInfo struct {
	ID   ID     `json:"id"`
	Code string `json:"code"`
	Name string `json:"nom"`
}

// ToDomain converts the DTO to the aggregate's invoice reference
func (i Invoice) ToDomain() order.Invoice {
	inv := order.Invoice{
		ID:                 string(i.ID),
		Number:             i.Number,
		IssueDate:          i.IssueDate,
		TotalAmount:        i.TotalAmount,
		OutstandingBalance: i.OutstandingBalance,
		Status:             i.Status,
	}
	if i.Counterparty != nil {
		inv.CounterpartyID = string(i.Counterparty.ID)
		inv.CounterpartyName = i.Counterparty.Name
	}
	return inv
}

// ToDomain converts the DTO to the aggregate's counterparty
func (c Counterparty) ToDomain() order.Counterparty {
	return order.Counterparty{ID: string(c.ID), Code: c.Code, Name: c.Name}
}

// InvoiceSettlement is one selected invoice carried by an order
type InvoiceSettlement struct {
	InvoiceID ID          `json:"factureId"`
	Amount    json.Number `json:"montant"`
}

// CreateOrderRequest represents a create payment order request
type CreateOrderRequest struct {
	Number             *string             `json:"numero"`
	Date               string              `json:"dateOrdre"`
	Issuer             string              `json:"emetteur"`
	OperationType      string              `json:"typeOperation"`
	CompanyID          *string             `json:"societeId"`
	TreasuryAccountID  *string             `json:"compteTresorerieId"`
	CurrencyID         *string             `json:"deviseId"`
	Amount             json.Number         `json:"montant"`
	Status             string              `json:"statut"`
	PaymentMode        string              `json:"modePaiement"`
	IBAN               *string             `json:"iban"`
	BIC                *string             `json:"bic"`
	BeneficiaryBankID  *string             `json:"banqueBeneficiaireId"`
	BeneficiaryName    *string             `json:"nomBeneficiaire"`
	Description        *string             `json:"description"`
	PaymentReference   *string             `json:"referencePaiement"`
	CounterpartyID     *string             `json:"tiersId"`
	InvoiceSettlements []InvoiceSettlement `json:"factures,omitempty"`
}

// CreatedOrder is the backend's answer to a create request
type CreatedOrder struct {
	ID     ID     `json:"id"`
	Number string `json:"numero"`
	Status string `json:"statut"`
}

// SubmitOrderRequest carries the final invoice selection at submission
type SubmitOrderRequest struct {
	InvoiceSettlements []InvoiceSettlement `json:"factures,omitempty"`
}

// backend status labels
var statusLabels = map[order.Status]string{
	order.StatusDraft:     "brouillon",
	order.StatusSubmitted: "soumis",
	order.StatusValidated: "valide",
	order.StatusPaid:      "paye",
	order.StatusRejected:  "rejete",
}

// StatusLabel returns the backend label of a status
func StatusLabel(s order.Status) string {
	return statusLabels[s]
}

// ParseStatus maps a backend label back to a status
func ParseStatus(label string) (order.Status, bool) {
	for s, l := range statusLabels {
		if l == label {
			return s, true
		}
	}
	return "", false
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// NewCreateOrderRequest builds the create body from an aggregate
func NewCreateOrderRequest(a *order.Aggregate) *CreateOrderRequest {
	o := a.Order()
	return &CreateOrderRequest{
		Number:             optional(o.OrderNumber),
		Date:               o.Date,
		Issuer:             o.Issuer,
		OperationType:      string(o.OperationType),
		CompanyID:          optional(o.CompanyRef),
		TreasuryAccountID:  optional(o.PaymentAccountRef),
		CurrencyID:         optional(o.CurrencyRef),
		Amount:             json.Number(o.Amount.StringFixed(2)),
		Status:             StatusLabel(o.Status),
		PaymentMode:        string(o.PaymentMode),
		IBAN:               optional(o.IBAN),
		BIC:                optional(o.BIC),
		BeneficiaryBankID:  optional(o.BeneficiaryBankRef),
		BeneficiaryName:    optional(o.BeneficiaryName),
		Description:        optional(o.Description),
		PaymentReference:   optional(o.PaymentReference),
		CounterpartyID:     optional(o.CounterpartyRef),
		InvoiceSettlements: settlements(a),
	}
}

// NewSubmitOrderRequest builds the submit body from an aggregate
func NewSubmitOrderRequest(a *order.Aggregate) *SubmitOrderRequest {
	return &SubmitOrderRequest{InvoiceSettlements: settlements(a)}
}

func settlements(a *order.Aggregate) []InvoiceSettlement {
	selected := a.SelectedInvoices()
	if len(selected) == 0 {
		return nil
	}
	out := make([]InvoiceSettlement, 0, len(selected))
	for _, inv := range selected {
		out = append(out, InvoiceSettlement{
			InvoiceID: ID(inv.ID),
			Amount:    json.Number(inv.TotalAmount.StringFixed(2)),
		})
	}
	return out
}
