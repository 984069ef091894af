// Package catalog maps each payment-order operation type to the sub-item
// schema and backend endpoints that serve it.
package catalog

import (
	"fmt"
	"net/url"
	"sort"

	"github.com/pesio-ai/be-ap-payment-orders/internal/errors"
)

// OperationType is the category of disbursement a payment order carries
type OperationType string

const (
	OpInvoice       OperationType = "facture"
	OpPayroll       OperationType = "paie"
	OpSalaryAdvance OperationType = "avance_salaire"
	OpTax           OperationType = "impot_taxe"
	OpSocialCharge  OperationType = "charge_sociale"
	OpExpenseReport OperationType = "note_frais"
	OpPerDiem       OperationType = "per_diem"
	OpOther         OperationType = "autre"
)

// ErrUnknownOperationType is returned for types that are not registered.
// Callers treat it as "feature not yet available", never as fatal.
var ErrUnknownOperationType = errors.New(errors.ErrCodeUnknownOperationType, "")

// Entry describes one operation type
type Entry struct {
	Type  OperationType `json:"type"`
	Label string        `json:"label"`
	// Schema names the draft schema for the sub-item. Empty for invoice
	// settlement, whose items are selections of existing invoices.
	Schema string `json:"schema,omitempty"`
	// Endpoint creates and lists sub-items of this type.
	Endpoint string `json:"endpoint"`
	// AssociateEndpoint links an existing sub-item to an order. It is a
	// format string taking the item id then the order id. Empty when the
	// backend offers no association for this type.
	AssociateEndpoint string `json:"associateEndpoint,omitempty"`
}

// SelectsInvoices reports whether the type settles existing invoices rather
// than creating new sub-items.
func (e Entry) SelectsInvoices() bool {
	return e.Type == OpInvoice
}

// AssociatePath returns the association path for an item and order. Both
// ids are escaped as single path segments.
func (e Entry) AssociatePath(itemID, orderID string) (string, bool) {
	if e.AssociateEndpoint == "" {
		return "", false
	}
	return fmt.Sprintf(e.AssociateEndpoint, url.PathEscape(itemID), url.PathEscape(orderID)), true
}

var registry = map[OperationType]Entry{
	OpInvoice: {
		Type:     OpInvoice,
		Label:    "Règlement de factures",
		Endpoint: "/factures",
	},
	OpPayroll: {
		Type:     OpPayroll,
		Label:    "Paie",
		Schema:   "paie",
		Endpoint: "/paies",
	},
	OpSalaryAdvance: {
		Type:     OpSalaryAdvance,
		Label:    "Avance sur salaire",
		Schema:   "avance_salaire",
		Endpoint: "/avances-salaire",
	},
	OpTax: {
		Type:     OpTax,
		Label:    "Impôts et taxes",
		Schema:   "impot_taxe",
		Endpoint: "/impots-taxes",
	},
	OpSocialCharge: {
		Type:              OpSocialCharge,
		Label:             "Charges sociales",
		Schema:            "charge_sociale",
		Endpoint:          "/charges-sociales",
		AssociateEndpoint: "/charges-sociales/%s/associer-ordre/%s",
	},
	OpExpenseReport: {
		Type:     OpExpenseReport,
		Label:    "Note de frais",
		Schema:   "note_frais",
		Endpoint: "/notes-frais",
	},
	OpPerDiem: {
		Type:     OpPerDiem,
		Label:    "Per diem",
		Schema:   "per_diem",
		Endpoint: "/per-diems",
	},
	OpOther: {
		Type:     OpOther,
		Label:    "Autre paiement",
		Schema:   "autre",
		Endpoint: "/autres-paiements",
	},
}

// Lookup returns the entry for an operation type
func Lookup(t OperationType) (Entry, error) {
	e, ok := registry[t]
	if !ok {
		return Entry{}, &errors.Error{
			Code:    errors.ErrCodeUnknownOperationType,
			Message: fmt.Sprintf("Le type d'opération '%s' n'est pas encore disponible", t),
		}
	}
	return e, nil
}

// All returns every registered entry ordered by type
func All() []Entry {
	out := make([]Entry, 0, len(registry))
	for _, e := range registry {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Type < out[j].Type })
	return out
}

// Known reports whether t is registered
func Known(t OperationType) bool {
	_, ok := registry[t]
	return ok
}
