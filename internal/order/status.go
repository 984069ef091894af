package order

// Status is the lifecycle state of a payment order
type Status string

const (
	StatusDraft     Status = "draft"
	StatusSubmitted Status = "submitted"
	StatusValidated Status = "validated"
	StatusPaid      Status = "paid"
	StatusRejected  Status = "rejected"
)

// StatusTransitionChart lists the statuses reachable from each status
type StatusTransitionChart map[Status][]Status

// Allowed reports whether from → to is a legal transition
func (c StatusTransitionChart) Allowed(from, to Status) bool {
	list, exists := c[from]
	if !exists {
		return false
	}
	for _, s := range list {
		if s == to {
			return true
		}
	}
	return false
}

// Only draft → submitted is requested by this service. The rest are applied
// when the approval process reports them.
var transitions = StatusTransitionChart{
	StatusDraft:     {StatusSubmitted},
	StatusSubmitted: {StatusValidated, StatusRejected},
	StatusValidated: {StatusPaid, StatusRejected},
}

// Terminal reports whether no transition leaves s
func (s Status) Terminal() bool {
	_, ok := transitions[s]
	return !ok
}

// PaymentMode is how the disbursement is paid out
type PaymentMode string

const (
	ModeTransfer    PaymentMode = "virement"
	ModeCheck       PaymentMode = "cheque"
	ModeCash        PaymentMode = "especes"
	ModeMobileMoney PaymentMode = "mobile_money"
	ModeCard        PaymentMode = "carte"
	ModeDirectDebit PaymentMode = "prelevement"
)

// Valid reports whether m is a known payment mode
func (m PaymentMode) Valid() bool {
	switch m {
	case ModeTransfer, ModeCheck, ModeCash, ModeMobileMoney, ModeCard, ModeDirectDebit:
		return true
	}
	return false
}
