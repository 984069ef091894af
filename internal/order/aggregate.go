// Package order holds the payment-order aggregate: the header, the invoice
// selection of settlement orders, and the sub-items attached to the order.
//
// An Aggregate is not safe for concurrent use; the owning session serializes
// access.
package order

import (
	"fmt"
	"sort"

	"github.com/shopspring/decimal"

	"github.com/pesio-ai/be-ap-payment-orders/internal/catalog"
	"github.com/pesio-ai/be-ap-payment-orders/internal/errors"
)

// ErrOrderNotPersisted is returned when an operation needs an order id
// before the order has been created on the backend.
var ErrOrderNotPersisted = errors.New(errors.ErrCodeOrderNotPersisted,
	"Veuillez d'abord enregistrer l'ordre de paiement")

// PaymentOrder is the header of a disbursement instruction
type PaymentOrder struct {
	ID                 string                `json:"id,omitempty"`
	OrderNumber        string                `json:"orderNumber,omitempty"`
	Date               string                `json:"date"`
	Issuer             string                `json:"issuer"`
	OperationType      catalog.OperationType `json:"operationType"`
	CompanyRef         string                `json:"companyRef"`
	PaymentAccountRef  string                `json:"paymentAccountRef"`
	CurrencyRef        string                `json:"currencyRef"`
	Amount             decimal.Decimal       `json:"amount"`
	Status             Status                `json:"status"`
	PaymentMode        PaymentMode           `json:"paymentMode"`
	IBAN               string                `json:"iban,omitempty"`
	BIC                string                `json:"bic,omitempty"`
	BeneficiaryBankRef string                `json:"beneficiaryBankRef,omitempty"`
	BeneficiaryName    string                `json:"beneficiaryName,omitempty"`
	Description        string                `json:"description,omitempty"`
	PaymentReference   string                `json:"paymentReference,omitempty"`
	CounterpartyRef    string                `json:"counterpartyRef,omitempty"`
	CounterpartyCode   string                `json:"counterpartyCode,omitempty"`
	CounterpartyName   string                `json:"counterpartyName,omitempty"`
}

// Invoice is a read-only reference to a backend invoice
type Invoice struct {
	ID                 string          `json:"id"`
	Number             string          `json:"number"`
	IssueDate          string          `json:"issueDate"`
	TotalAmount        decimal.Decimal `json:"totalAmount"`
	OutstandingBalance decimal.Decimal `json:"outstandingBalance"`
	Status             string          `json:"status"`
	CounterpartyID     string          `json:"counterpartyId,omitempty"`
	CounterpartyName   string          `json:"counterpartyName,omitempty"`
}

// Counterparty is a supplier, employee or other third party
type Counterparty struct {
	ID   string `json:"id"`
	Code string `json:"code"`
	Name string `json:"name"`
}

// Item is a sub-item attached to the order on the backend
type Item struct {
	ID         string                `json:"id"`
	Kind       catalog.OperationType `json:"kind"`
	Amount     decimal.Decimal       `json:"amount"`
	Attributes map[string]any        `json:"attributes,omitempty"`
}

// HeaderEdit carries the header fields an operator may change. Nil fields are
// left untouched.
type HeaderEdit struct {
	Date               *string                `json:"date,omitempty"`
	Issuer             *string                `json:"issuer,omitempty"`
	OperationType      *catalog.OperationType `json:"operationType,omitempty"`
	CompanyRef         *string                `json:"companyRef,omitempty"`
	PaymentAccountRef  *string                `json:"paymentAccountRef,omitempty"`
	CurrencyRef        *string                `json:"currencyRef,omitempty"`
	Amount             *decimal.Decimal       `json:"amount,omitempty"`
	PaymentMode        *PaymentMode           `json:"paymentMode,omitempty"`
	IBAN               *string                `json:"iban,omitempty"`
	BIC                *string                `json:"bic,omitempty"`
	BeneficiaryBankRef *string                `json:"beneficiaryBankRef,omitempty"`
	BeneficiaryName    *string                `json:"beneficiaryName,omitempty"`
	Description        *string                `json:"description,omitempty"`
	PaymentReference   *string                `json:"paymentReference,omitempty"`
	OrderNumber        *string                `json:"orderNumber,omitempty"`
}

// Aggregate is a payment order with its selections and attached items
type Aggregate struct {
	order          PaymentOrder
	selection      map[string]Invoice
	items          []Item
	counterparties []Counterparty
}

// New starts a draft order
func New(header PaymentOrder) *Aggregate {
	header.ID = ""
	header.Status = StatusDraft
	return &Aggregate{
		order:     header,
		selection: make(map[string]Invoice),
	}
}

// Order returns a copy of the header
func (a *Aggregate) Order() PaymentOrder {
	return a.order
}

// ID returns the backend id, empty until created
func (a *Aggregate) ID() string {
	return a.order.ID
}

// Persisted reports whether the order has a backend id
func (a *Aggregate) Persisted() bool {
	return a.order.ID != ""
}

// Items returns the attached sub-items
func (a *Aggregate) Items() []Item {
	return append([]Item(nil), a.items...)
}

// typeLocked reports whether anything hangs off the current operation type
func (a *Aggregate) typeLocked() bool {
	return len(a.items) > 0 || len(a.selection) > 0
}

// Edit applies operator changes to the header. Every change is checked
// before any is applied, so a rejected edit leaves the header as it was.
func (a *Aggregate) Edit(e HeaderEdit) error {
	if a.order.Status != StatusDraft {
		return errors.New(errors.ErrCodeConflict,
			fmt.Sprintf("l'ordre est au statut '%s' et ne peut plus être modifié", a.order.Status))
	}

	opType := a.order.OperationType
	if e.OperationType != nil {
		if err := a.checkOperationType(*e.OperationType); err != nil {
			return err
		}
		opType = *e.OperationType
	}
	mode := a.order.PaymentMode
	if e.PaymentMode != nil {
		if !e.PaymentMode.Valid() {
			return errors.InvalidInput("paymentMode", fmt.Sprintf("mode de paiement '%s' inconnu", *e.PaymentMode))
		}
		mode = *e.PaymentMode
	}
	if e.Amount != nil {
		if err := checkAmount(opType, *e.Amount); err != nil {
			return err
		}
	}
	if (e.IBAN != nil || e.BIC != nil || e.BeneficiaryBankRef != nil) && mode != ModeTransfer {
		return errors.InvalidInput("iban", "les coordonnées bancaires ne s'appliquent qu'au virement")
	}
	if e.BeneficiaryName != nil && mode != ModeCheck {
		return errors.InvalidInput("beneficiaryName", "le bénéficiaire ne s'applique qu'au chèque")
	}

	a.order.OperationType = opType
	if e.PaymentMode != nil {
		_ = a.SetPaymentMode(mode)
	}
	if e.Amount != nil {
		a.order.Amount = *e.Amount
	}
	a.syncInvoiceAmount()

	set := func(dst *string, src *string) {
		if src != nil {
			*dst = *src
		}
	}
	set(&a.order.Date, e.Date)
	set(&a.order.Issuer, e.Issuer)
	set(&a.order.CompanyRef, e.CompanyRef)
	set(&a.order.PaymentAccountRef, e.PaymentAccountRef)
	set(&a.order.CurrencyRef, e.CurrencyRef)
	set(&a.order.IBAN, e.IBAN)
	set(&a.order.BIC, e.BIC)
	set(&a.order.BeneficiaryBankRef, e.BeneficiaryBankRef)
	set(&a.order.BeneficiaryName, e.BeneficiaryName)
	set(&a.order.Description, e.Description)
	set(&a.order.PaymentReference, e.PaymentReference)
	set(&a.order.OrderNumber, e.OrderNumber)
	return nil
}

func (a *Aggregate) checkOperationType(t catalog.OperationType) error {
	if t == a.order.OperationType {
		return nil
	}
	if _, err := catalog.Lookup(t); err != nil {
		return err
	}
	if a.typeLocked() {
		return errors.New(errors.ErrCodeConflict,
			"le type d'opération ne peut plus être modifié une fois des éléments rattachés")
	}
	return nil
}

func checkAmount(t catalog.OperationType, amount decimal.Decimal) error {
	if t == catalog.OpInvoice {
		return errors.InvalidInput("amount", "le montant d'un règlement de factures est calculé à partir des factures sélectionnées")
	}
	if amount.IsNegative() {
		return errors.InvalidInput("amount", "le montant doit être supérieur ou égal à 0")
	}
	return nil
}

// SetOperationType changes the operation type. Once an item is attached or
// an invoice selected, the type is fixed.
func (a *Aggregate) SetOperationType(t catalog.OperationType) error {
	if err := a.checkOperationType(t); err != nil {
		return err
	}
	a.order.OperationType = t
	a.syncInvoiceAmount()
	return nil
}

// syncInvoiceAmount keeps an invoice settlement's amount equal to the sum of
// its selection
func (a *Aggregate) syncInvoiceAmount() {
	if a.order.OperationType == catalog.OpInvoice {
		a.order.Amount = a.ComputeAmount()
	}
}

// SetPaymentMode changes the payment mode and clears the fields that belong
// to the previous mode.
func (a *Aggregate) SetPaymentMode(m PaymentMode) error {
	if !m.Valid() {
		return errors.InvalidInput("paymentMode", fmt.Sprintf("mode de paiement '%s' inconnu", m))
	}
	a.order.PaymentMode = m
	if m != ModeTransfer {
		a.order.IBAN = ""
		a.order.BIC = ""
		a.order.BeneficiaryBankRef = ""
	}
	if m != ModeCheck {
		a.order.BeneficiaryName = ""
	}
	return nil
}

// SetAmount overrides the amount. Invoice settlement amounts are derived
// from the selection and cannot be set.
func (a *Aggregate) SetAmount(amount decimal.Decimal) error {
	if err := checkAmount(a.order.OperationType, amount); err != nil {
		return err
	}
	a.order.Amount = amount
	return nil
}

// SelectInvoice adds or removes one invoice from the selection and
// recomputes the amount. Selecting twice, or removing an invoice that is not
// selected, changes nothing.
func (a *Aggregate) SelectInvoice(inv Invoice, included bool) error {
	if a.order.OperationType != catalog.OpInvoice {
		return errors.New(errors.ErrCodeConflict,
			fmt.Sprintf("la sélection de factures ne s'applique pas au type '%s'", a.order.OperationType))
	}
	if inv.ID == "" {
		return errors.InvalidInput("invoice", "facture sans identifiant")
	}
	if included {
		if _, ok := a.selection[inv.ID]; !ok {
			a.selection[inv.ID] = inv
		}
	} else {
		delete(a.selection, inv.ID)
	}
	a.order.Amount = a.ComputeAmount()
	return nil
}

// ComputeAmount sums totalAmount over the selected invoices
func (a *Aggregate) ComputeAmount() decimal.Decimal {
	sum := decimal.Zero
	for _, inv := range a.selection {
		sum = sum.Add(inv.TotalAmount)
	}
	return sum
}

// SelectedInvoices returns the selection ordered by invoice id
func (a *Aggregate) SelectedInvoices() []Invoice {
	out := make([]Invoice, 0, len(a.selection))
	for _, inv := range a.selection {
		out = append(out, inv)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Selected reports whether the invoice is in the selection
func (a *Aggregate) Selected(invoiceID string) bool {
	_, ok := a.selection[invoiceID]
	return ok
}

// SetCounterparties stores the last fetched counterparty list
func (a *Aggregate) SetCounterparties(list []Counterparty) {
	a.counterparties = append([]Counterparty(nil), list...)
}

// ResolveCounterparty copies the code and name of a known counterparty onto
// the header. Unknown ids are ignored.
func (a *Aggregate) ResolveCounterparty(id string) bool {
	for _, c := range a.counterparties {
		if c.ID == id {
			a.order.CounterpartyRef = c.ID
			a.order.CounterpartyCode = c.Code
			a.order.CounterpartyName = c.Name
			return true
		}
	}
	return false
}

// MarkCreated records the id (and number, when generated) the backend
// assigned.
func (a *Aggregate) MarkCreated(id, number string) {
	a.order.ID = id
	if number != "" {
		a.order.OrderNumber = number
	}
}

// CanAttach checks the attach preconditions for a sub-item kind
func (a *Aggregate) CanAttach(kind catalog.OperationType) error {
	if !a.Persisted() {
		return ErrOrderNotPersisted
	}
	if kind != a.order.OperationType {
		return errors.New(errors.ErrCodeConflict,
			fmt.Sprintf("un élément '%s' ne peut pas être rattaché à un ordre de type '%s'", kind, a.order.OperationType))
	}
	if kind == catalog.OpInvoice {
		return errors.New(errors.ErrCodeConflict, "les factures se sélectionnent, elles ne se rattachent pas")
	}
	return nil
}

// AttachItem records a sub-item the backend created for this order
func (a *Aggregate) AttachItem(item Item) error {
	if err := a.CanAttach(item.Kind); err != nil {
		return err
	}
	for i := range a.items {
		if a.items[i].ID == item.ID {
			a.items[i] = item
			a.order.Amount = a.itemsAmount()
			return nil
		}
	}
	a.items = append(a.items, item)
	a.order.Amount = a.itemsAmount()
	return nil
}

// ReplaceItems swaps the attached items for the list the backend reports
func (a *Aggregate) ReplaceItems(kind catalog.OperationType, items []Item) error {
	if err := a.CanAttach(kind); err != nil {
		return err
	}
	a.items = append([]Item(nil), items...)
	if len(a.items) > 0 {
		a.order.Amount = a.itemsAmount()
	}
	return nil
}

func (a *Aggregate) itemsAmount() decimal.Decimal {
	sum := decimal.Zero
	for _, it := range a.items {
		sum = sum.Add(it.Amount)
	}
	return sum
}

// Transition moves the order to a new status
func (a *Aggregate) Transition(to Status) error {
	if !transitions.Allowed(a.order.Status, to) {
		return errors.New(errors.ErrCodeConflict,
			fmt.Sprintf("transition de '%s' vers '%s' non autorisée", a.order.Status, to))
	}
	a.order.Status = to
	return nil
}

// Snapshot is a JSON view of the aggregate
type Snapshot struct {
	Order    PaymentOrder `json:"order"`
	Invoices []Invoice    `json:"selectedInvoices"`
	Items    []Item       `json:"items"`
}

// Snapshot returns the current state
func (a *Aggregate) Snapshot() Snapshot {
	return Snapshot{
		Order:    a.order,
		Invoices: a.SelectedInvoices(),
		Items:    a.Items(),
	}
}
