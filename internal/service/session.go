package service

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/pesio-ai/be-ap-payment-orders/internal/catalog"
	"github.com/pesio-ai/be-ap-payment-orders/internal/client"
	"github.com/pesio-ai/be-ap-payment-orders/internal/draft"
	"github.com/pesio-ai/be-ap-payment-orders/internal/errors"
	"github.com/pesio-ai/be-ap-payment-orders/internal/order"
)

// Action names a workflow action. Each action has its own lock.
type Action string

const (
	ActionLoadReference Action = "reference_data"
	ActionCreate        Action = "create"
	ActionAttach        Action = "attach"
	ActionAssociate     Action = "associate"
	ActionSubmit        Action = "submit"
)

var guardedActions = []Action{ActionLoadReference, ActionCreate, ActionAttach, ActionAssociate, ActionSubmit}

// ErrBusy is returned when the same action is already running for the session
var ErrBusy = errors.New(errors.ErrCodeBusy, "")

// ErrSessionNotFound is returned for an unknown session id
var ErrSessionNotFound = errors.New(errors.ErrCodeNotFound, "Session inconnue ou expirée")

// ReferenceData holds the lists the order form is built from
type ReferenceData struct {
	Companies        []client.Company         `json:"companies"`
	Currencies       []client.Currency        `json:"currencies"`
	Counterparties   []client.Counterparty    `json:"counterparties"`
	LedgerAccounts   []client.LedgerAccount   `json:"ledgerAccounts"`
	Banks            []client.Bank            `json:"banks"`
	Invoices         []client.Invoice         `json:"invoices"`
	TreasuryAccounts []client.TreasuryAccount `json:"treasuryAccounts"`
	// Failures lists the lists that could not be loaded. Lists that failed
	// keep their previous content.
	Failures []Notice `json:"failures,omitempty"`
}

// Session is one operator's editing session: a single order aggregate, one
// draft per sub-item type and the reference lists.
type Session struct {
	id        string
	createdAt time.Time

	mu        sync.Mutex
	issuer    string
	agg       *order.Aggregate
	drafts    map[catalog.OperationType]draft.Draft
	invoices  map[string]order.Invoice
	reference ReferenceData
	reauth    bool
	notice    *Notice

	locks map[Action]*sync.Mutex
}

func newSession(issuer string, now time.Time) *Session {
	s := &Session{
		id:        uuid.NewString(),
		createdAt: now,
		issuer:    issuer,
		invoices:  make(map[string]order.Invoice),
		locks:     make(map[Action]*sync.Mutex, len(guardedActions)),
	}
	for _, a := range guardedActions {
		s.locks[a] = &sync.Mutex{}
	}
	s.reset(now)
	return s
}

// ID returns the session id
func (s *Session) ID() string {
	return s.id
}

// acquire takes the action lock without waiting. The returned func releases
// it.
func (s *Session) acquire(a Action) (func(), error) {
	l := s.locks[a]
	if !l.TryLock() {
		return nil, &errors.Error{
			Code:    errors.ErrCodeBusy,
			Message: fmt.Sprintf("L'action '%s' est déjà en cours, veuillez patienter", a),
		}
	}
	return l.Unlock, nil
}

// reset replaces the aggregate and drafts. Reference lists are kept.
// Caller holds s.mu.
func (s *Session) reset(now time.Time) {
	s.agg = order.New(order.PaymentOrder{
		Date:          now.Format("2006-01-02"),
		Issuer:        s.issuer,
		OperationType: catalog.OpInvoice,
		PaymentMode:   order.ModeTransfer,
	})
	counterparties := make([]order.Counterparty, 0, len(s.reference.Counterparties))
	for _, c := range s.reference.Counterparties {
		counterparties = append(counterparties, c.ToDomain())
	}
	s.agg.SetCounterparties(counterparties)
	s.drafts = make(map[catalog.OperationType]draft.Draft)
	s.notice = nil
}

// draftFor returns the current draft of a sub-item type, starting an empty
// one with the order currency when none exists. Caller holds s.mu.
func (s *Session) draftFor(b *draft.Builder, kind catalog.OperationType) draft.Draft {
	if d, ok := s.drafts[kind]; ok && !d.IsZero() {
		return d
	}
	return b.Empty(s.agg.Order().CurrencyRef)
}

// SessionView is the JSON state of a session
type SessionView struct {
	ID             string                                `json:"id"`
	CreatedAt      time.Time                             `json:"createdAt"`
	Order          order.Snapshot                        `json:"order"`
	Drafts         map[catalog.OperationType]draft.Draft `json:"drafts"`
	ReauthRequired bool                                  `json:"reauthRequired"`
	Notice         *Notice                               `json:"notice,omitempty"`
}

// View returns the current state
func (s *Session) View() SessionView {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.view()
}

func (s *Session) view() SessionView {
	drafts := make(map[catalog.OperationType]draft.Draft, len(s.drafts))
	for k, d := range s.drafts {
		drafts[k] = d
	}
	return SessionView{
		ID:             s.id,
		CreatedAt:      s.createdAt,
		Order:          s.agg.Snapshot(),
		Drafts:         drafts,
		ReauthRequired: s.reauth,
		Notice:         s.notice,
	}
}

// Reference returns the last loaded reference lists
func (s *Session) Reference() ReferenceData {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reference
}

// SessionRegistry holds the open sessions
type SessionRegistry struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	now      func() time.Time
}

// NewSessionRegistry creates an empty registry
func NewSessionRegistry() *SessionRegistry {
	return &SessionRegistry{
		sessions: make(map[string]*Session),
		now:      time.Now,
	}
}

// Create opens a session for an operator
func (r *SessionRegistry) Create(issuer string) *Session {
	s := newSession(issuer, r.now())
	r.mu.Lock()
	r.sessions[s.id] = s
	r.mu.Unlock()
	return s
}

// Get returns an open session
func (r *SessionRegistry) Get(id string) (*Session, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[id]
	if !ok {
		return nil, ErrSessionNotFound
	}
	return s, nil
}

// Close forgets a session
func (r *SessionRegistry) Close(id string) {
	r.mu.Lock()
	delete(r.sessions, id)
	r.mu.Unlock()
}

// Len returns the number of open sessions
func (r *SessionRegistry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}
