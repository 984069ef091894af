package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/pesio-ai/be-ap-payment-orders/internal/catalog"
	"github.com/pesio-ai/be-ap-payment-orders/internal/client"
	"github.com/pesio-ai/be-ap-payment-orders/internal/draft"
	"github.com/pesio-ai/be-ap-payment-orders/internal/errors"
	"github.com/pesio-ai/be-ap-payment-orders/internal/logger"
	"github.com/pesio-ai/be-ap-payment-orders/internal/metrics"
	"github.com/pesio-ai/be-ap-payment-orders/internal/order"
	"github.com/pesio-ai/be-ap-payment-orders/internal/repository"
)

// ActionApplyStatus records a status reported by the approval process. It
// makes no backend call and takes no action lock.
const ActionApplyStatus Action = "apply_status"

var (
	// ErrAssociationUnsupported is returned when the backend offers no way to
	// link an existing sub-item of this type to an order.
	ErrAssociationUnsupported = errors.New(errors.ErrCodeConflict, "")

	errSuperseded = errors.New(errors.ErrCodeConflict,
		"La session a été réinitialisée pendant l'opération, le résultat a été ignoré")
)

var auditActions = map[Action]string{
	ActionCreate:      repository.AuditCreated,
	ActionAttach:      repository.AuditItemAttached,
	ActionAssociate:   repository.AuditItemAssociated,
	ActionSubmit:      repository.AuditSubmitted,
	ActionApplyStatus: repository.AuditStatusApplied,
}

var eventTypes = map[Action]string{
	ActionCreate:    "order_created",
	ActionAttach:    "item_attached",
	ActionAssociate: "item_associated",
	ActionSubmit:    "order_submitted",
}

// PaymentOrderService drives the payment order workflow for the open
// sessions: it edits the aggregate, persists it through the backend and
// turns every failure into a notice.
type PaymentOrderService struct {
	sessions  *SessionRegistry
	reference client.ReferenceClientInterface
	orders    client.OrdersClientInterface
	items     client.ItemsClientInterface
	audit     AuditRecorder
	events    EventPublisher
	log       *logger.Logger
}

// NewPaymentOrderService creates a new payment order service. audit and
// events may be nil.
func NewPaymentOrderService(
	sessions *SessionRegistry,
	reference client.ReferenceClientInterface,
	orders client.OrdersClientInterface,
	items client.ItemsClientInterface,
	audit AuditRecorder,
	events EventPublisher,
	log *logger.Logger,
) *PaymentOrderService {
	return &PaymentOrderService{
		sessions:  sessions,
		reference: reference,
		orders:    orders,
		items:     items,
		audit:     audit,
		events:    events,
		log:       log,
	}
}

// OpenSession starts a session with an empty draft order
func (s *PaymentOrderService) OpenSession(issuer string) SessionView {
	sess := s.sessions.Create(issuer)
	s.log.Info().Str("session_id", sess.ID()).Str("issuer", issuer).Msg("Session opened")
	return sess.View()
}

// GetSession returns the state of a session
func (s *PaymentOrderService) GetSession(sessionID string) (SessionView, error) {
	sess, err := s.sessions.Get(sessionID)
	if err != nil {
		return SessionView{}, err
	}
	return sess.View(), nil
}

// ActiveSessions returns the number of open sessions
func (s *PaymentOrderService) ActiveSessions() int {
	return s.sessions.Len()
}

// CloseSession forgets a session
func (s *PaymentOrderService) CloseSession(sessionID string) error {
	if _, err := s.sessions.Get(sessionID); err != nil {
		return err
	}
	s.sessions.Close(sessionID)
	s.log.Info().Str("session_id", sessionID).Msg("Session closed")
	return nil
}

// ResetSession discards the order and every draft. The reference lists
// stay loaded.
func (s *PaymentOrderService) ResetSession(sessionID string) (SessionView, error) {
	sess, err := s.sessions.Get(sessionID)
	if err != nil {
		return SessionView{}, err
	}
	sess.mu.Lock()
	defer sess.mu.Unlock()
	sess.reset(s.sessions.now())
	s.log.Info().Str("session_id", sessionID).Msg("Session reset")
	return sess.view(), nil
}

// EditHeader applies operator changes to the order header
func (s *PaymentOrderService) EditHeader(sessionID string, edit order.HeaderEdit) (SessionView, error) {
	sess, err := s.sessions.Get(sessionID)
	if err != nil {
		return SessionView{}, err
	}
	sess.mu.Lock()
	defer sess.mu.Unlock()
	if err := sess.agg.Edit(edit); err != nil {
		return sess.view(), err
	}
	return sess.view(), nil
}

// SelectInvoice adds or removes a loaded invoice from the settlement
func (s *PaymentOrderService) SelectInvoice(sessionID, invoiceID string, included bool) (SessionView, error) {
	sess, err := s.sessions.Get(sessionID)
	if err != nil {
		return SessionView{}, err
	}
	sess.mu.Lock()
	defer sess.mu.Unlock()

	inv, ok := sess.invoices[invoiceID]
	if !ok {
		if included {
			return sess.view(), errors.New(errors.ErrCodeNotFound,
				fmt.Sprintf("Facture '%s' introuvable, rechargez la liste des factures", invoiceID))
		}
		if !sess.agg.Selected(invoiceID) {
			return sess.view(), nil
		}
		inv = order.Invoice{ID: invoiceID}
	}
	if err := sess.agg.SelectInvoice(inv, included); err != nil {
		return sess.view(), err
	}
	return sess.view(), nil
}

// ResolveCounterparty copies a loaded counterparty onto the header. An
// unknown id changes nothing and is not an error.
func (s *PaymentOrderService) ResolveCounterparty(sessionID, counterpartyID string) (SessionView, bool, error) {
	sess, err := s.sessions.Get(sessionID)
	if err != nil {
		return SessionView{}, false, err
	}
	sess.mu.Lock()
	defer sess.mu.Unlock()
	found := sess.agg.ResolveCounterparty(counterpartyID)
	return sess.view(), found, nil
}

// UpdateDraft changes one field of the draft sub-item of a type
func (s *PaymentOrderService) UpdateDraft(sessionID string, kind catalog.OperationType, field, value string) (draft.Draft, error) {
	sess, err := s.sessions.Get(sessionID)
	if err != nil {
		return draft.Draft{}, err
	}
	b, err := builderFor(kind)
	if err != nil {
		return draft.Draft{}, err
	}

	sess.mu.Lock()
	defer sess.mu.Unlock()
	current := sess.draftFor(b, kind)
	next, err := b.Update(current, field, value)
	if err != nil {
		return current, err
	}
	sess.drafts[kind] = next
	return next, nil
}

func builderFor(kind catalog.OperationType) (*draft.Builder, error) {
	entry, err := catalog.Lookup(kind)
	if err != nil {
		return nil, err
	}
	if entry.Schema == "" {
		return nil, errors.New(errors.ErrCodeConflict,
			fmt.Sprintf("Le type '%s' ne se saisit pas, ses éléments se sélectionnent", kind))
	}
	return draft.For(entry.Schema)
}

// CreateOrder persists the order header and records the id the backend
// assigns.
func (s *PaymentOrderService) CreateOrder(ctx context.Context, sessionID string) (SessionView, error) {
	ctx = detach(ctx)
	sess, err := s.sessions.Get(sessionID)
	if err != nil {
		return SessionView{}, err
	}
	release, err := sess.acquire(ActionCreate)
	if err != nil {
		return s.finish(ctx, sess, ActionCreate, order.PaymentOrder{}, nil, err, "")
	}
	defer release()

	sess.mu.Lock()
	agg := sess.agg
	before := agg.Order()
	if agg.Persisted() {
		sess.mu.Unlock()
		err := errors.New(errors.ErrCodeConflict, "L'ordre de paiement est déjà enregistré")
		return s.finish(ctx, sess, ActionCreate, before, nil, err, "")
	}
	req := client.NewCreateOrderRequest(agg)
	sess.mu.Unlock()

	created, err := s.orders.CreateOrder(ctx, req)
	if err == nil {
		sess.mu.Lock()
		if sess.agg == agg {
			agg.MarkCreated(string(created.ID), created.Number)
		} else {
			err = errSuperseded
		}
		sess.mu.Unlock()
	}

	meta := map[string]any{"operationType": string(before.OperationType), "amount": before.Amount.StringFixed(2)}
	return s.finish(ctx, sess, ActionCreate, before, meta, err, "Ordre de paiement enregistré")
}

// AttachItem creates the current draft of a type as a sub-item of the order.
// On success the attached list is refreshed and the draft starts over,
// keeping its currency.
func (s *PaymentOrderService) AttachItem(ctx context.Context, sessionID string, kind catalog.OperationType) (SessionView, error) {
	ctx = detach(ctx)
	sess, err := s.sessions.Get(sessionID)
	if err != nil {
		return SessionView{}, err
	}
	release, err := sess.acquire(ActionAttach)
	if err != nil {
		return s.finish(ctx, sess, ActionAttach, order.PaymentOrder{}, nil, err, "")
	}
	defer release()

	meta := map[string]any{"kind": string(kind)}

	sess.mu.Lock()
	agg := sess.agg
	before := agg.Order()
	if err := agg.CanAttach(kind); err != nil {
		sess.mu.Unlock()
		return s.finish(ctx, sess, ActionAttach, before, meta, err, "")
	}
	entry, err := catalog.Lookup(kind)
	if err != nil {
		sess.mu.Unlock()
		return s.finish(ctx, sess, ActionAttach, before, meta, err, "")
	}
	b, err := builderFor(kind)
	if err != nil {
		sess.mu.Unlock()
		return s.finish(ctx, sess, ActionAttach, before, meta, err, "")
	}
	d := sess.draftFor(b, kind)
	orderID := agg.ID()
	payload, err := b.Serialize(d, orderID)
	sess.mu.Unlock()
	if err != nil {
		return s.finish(ctx, sess, ActionAttach, before, meta, err, "")
	}

	created, err := s.items.CreateItem(ctx, entry.Endpoint, payload)
	if err != nil {
		return s.finish(ctx, sess, ActionAttach, before, meta, err, "")
	}
	createdItem := toItem(kind, created, b)
	meta["itemId"] = createdItem.ID

	refreshed, refreshErr := s.listItems(ctx, entry, b, orderID)
	if refreshErr != nil {
		s.log.Warn().Err(refreshErr).
			Str("session_id", sessionID).
			Str("order_id", orderID).
			Msg("Item created but list refresh failed, keeping created item only")
	}

	sess.mu.Lock()
	if sess.agg != agg {
		sess.mu.Unlock()
		return s.finish(ctx, sess, ActionAttach, before, meta, errSuperseded, "")
	}
	if refreshErr == nil {
		err = agg.ReplaceItems(kind, withItem(refreshed, createdItem))
	} else {
		err = agg.AttachItem(createdItem)
	}
	if err == nil {
		sess.drafts[kind] = b.Empty(d.Currency())
		if errors.CodeOf(refreshErr) == errors.ErrCodeUnauthorized {
			// the item is kept but the credential is gone
			err = refreshErr
		}
	}
	sess.mu.Unlock()

	return s.finish(ctx, sess, ActionAttach, before, meta, err, "Élément rattaché à l'ordre de paiement")
}

// AssociateItem links an existing sub-item to the order through the type's
// associate endpoint.
func (s *PaymentOrderService) AssociateItem(ctx context.Context, sessionID string, kind catalog.OperationType, itemID string) (SessionView, error) {
	ctx = detach(ctx)
	sess, err := s.sessions.Get(sessionID)
	if err != nil {
		return SessionView{}, err
	}
	release, err := sess.acquire(ActionAssociate)
	if err != nil {
		return s.finish(ctx, sess, ActionAssociate, order.PaymentOrder{}, nil, err, "")
	}
	defer release()

	meta := map[string]any{"kind": string(kind), "itemId": itemID}

	sess.mu.Lock()
	agg := sess.agg
	before := agg.Order()
	sess.mu.Unlock()

	if id := strings.TrimSpace(itemID); id == "" || id == "." || id == ".." {
		return s.finish(ctx, sess, ActionAssociate, before, meta,
			errors.InvalidInput("itemId", "l'identifiant de l'élément est requis"), "")
	}
	entry, err := catalog.Lookup(kind)
	if err != nil {
		return s.finish(ctx, sess, ActionAssociate, before, meta, err, "")
	}

	sess.mu.Lock()
	err = agg.CanAttach(kind)
	orderID := agg.ID()
	sess.mu.Unlock()
	if err != nil {
		return s.finish(ctx, sess, ActionAssociate, before, meta, err, "")
	}

	path, ok := entry.AssociatePath(itemID, orderID)
	if !ok {
		err := errors.Wrap(ErrAssociationUnsupported, errors.ErrCodeConflict,
			fmt.Sprintf("L'association d'un élément existant n'est pas disponible pour le type '%s'", kind))
		return s.finish(ctx, sess, ActionAssociate, before, meta, err, "")
	}

	if err := s.items.AssociateItem(ctx, path, orderID); err != nil {
		return s.finish(ctx, sess, ActionAssociate, before, meta, err, "")
	}

	b, err := builderFor(kind)
	if err != nil {
		return s.finish(ctx, sess, ActionAssociate, before, meta, err, "")
	}
	refreshed, refreshErr := s.listItems(ctx, entry, b, orderID)

	sess.mu.Lock()
	switch {
	case sess.agg != agg:
		err = errSuperseded
	case errors.CodeOf(refreshErr) == errors.ErrCodeUnauthorized:
		err = refreshErr
	case refreshErr != nil:
		s.log.Warn().Err(refreshErr).
			Str("session_id", sessionID).
			Str("order_id", orderID).
			Msg("Item associated but list refresh failed")
	default:
		err = agg.ReplaceItems(kind, refreshed)
	}
	sess.mu.Unlock()

	return s.finish(ctx, sess, ActionAssociate, before, meta, err, "Élément associé à l'ordre de paiement")
}

// SubmitOrder submits a created order. On success only the status changes;
// the order is not fetched again.
func (s *PaymentOrderService) SubmitOrder(ctx context.Context, sessionID string) (SessionView, error) {
	ctx = detach(ctx)
	sess, err := s.sessions.Get(sessionID)
	if err != nil {
		return SessionView{}, err
	}
	release, err := sess.acquire(ActionSubmit)
	if err != nil {
		return s.finish(ctx, sess, ActionSubmit, order.PaymentOrder{}, nil, err, "")
	}
	defer release()

	sess.mu.Lock()
	agg := sess.agg
	before := agg.Order()
	if !agg.Persisted() {
		sess.mu.Unlock()
		return s.finish(ctx, sess, ActionSubmit, before, nil, order.ErrOrderNotPersisted, "")
	}
	if before.Status != order.StatusDraft {
		sess.mu.Unlock()
		err := errors.New(errors.ErrCodeConflict,
			fmt.Sprintf("L'ordre de paiement est au statut '%s' et ne peut pas être soumis", client.StatusLabel(before.Status)))
		return s.finish(ctx, sess, ActionSubmit, before, nil, err, "")
	}
	orderID := agg.ID()
	req := client.NewSubmitOrderRequest(agg)
	sess.mu.Unlock()

	err = s.orders.SubmitOrder(ctx, orderID, req)
	if err == nil {
		sess.mu.Lock()
		if sess.agg == agg {
			err = agg.Transition(order.StatusSubmitted)
		} else {
			err = errSuperseded
		}
		sess.mu.Unlock()
	}

	meta := map[string]any{"invoices": len(req.InvoiceSettlements), "amount": before.Amount.StringFixed(2)}
	return s.finish(ctx, sess, ActionSubmit, before, meta, err, "Ordre de paiement soumis pour validation")
}

// ApplyRemoteStatus records a status change made by the approval process.
// The label is the backend's (valide, paye, rejete...) or the internal name.
func (s *PaymentOrderService) ApplyRemoteStatus(ctx context.Context, sessionID, label string) (SessionView, error) {
	sess, err := s.sessions.Get(sessionID)
	if err != nil {
		return SessionView{}, err
	}

	status, ok := client.ParseStatus(label)
	if !ok {
		status = order.Status(label)
		if client.StatusLabel(status) == "" {
			return sess.View(), errors.InvalidInput("status", fmt.Sprintf("statut '%s' inconnu", label))
		}
	}

	sess.mu.Lock()
	agg := sess.agg
	before := agg.Order()
	if !agg.Persisted() {
		err = order.ErrOrderNotPersisted
	} else {
		err = agg.Transition(status)
	}
	sess.mu.Unlock()

	return s.finish(ctx, sess, ActionApplyStatus, before, map[string]any{"label": label}, err,
		fmt.Sprintf("Statut de l'ordre de paiement : %s", client.StatusLabel(status)))
}

// detach keeps the request values but drops its cancellation: a workflow
// call, once issued, runs to completion. The gateway timeout still applies.
func detach(ctx context.Context) context.Context {
	return context.WithoutCancel(ctx)
}

// listItems fetches the sub-items of a type attached to an order
func (s *PaymentOrderService) listItems(ctx context.Context, entry catalog.Entry, b *draft.Builder, orderID string) ([]order.Item, error) {
	records, err := s.items.ListItems(ctx, entry.Endpoint, orderID)
	if err != nil {
		return nil, err
	}
	items := make([]order.Item, 0, len(records))
	for _, r := range records {
		items = append(items, toItem(entry.Type, r, b))
	}
	return items, nil
}

func toItem(kind catalog.OperationType, r client.Record, b *draft.Builder) order.Item {
	return order.Item{
		ID:         r.ItemID(),
		Kind:       kind,
		Amount:     r.Decimal(b.Schema().AmountField),
		Attributes: map[string]any(r),
	}
}

// withItem appends item to list unless the list already holds it
func withItem(list []order.Item, item order.Item) []order.Item {
	for _, it := range list {
		if it.ID == item.ID {
			return list
		}
	}
	return append(list, item)
}

// finish closes a workflow action: it sets the session notice, records the
// metric and the audit entry, and publishes the event of a successful
// action. It returns the session state and err unchanged.
func (s *PaymentOrderService) finish(
	ctx context.Context,
	sess *Session,
	a Action,
	before order.PaymentOrder,
	meta map[string]any,
	err error,
	success string,
) (SessionView, error) {
	sess.mu.Lock()
	if err != nil {
		n := NoticeFor(err)
		sess.notice = &n
		if errors.CodeOf(err) == errors.ErrCodeUnauthorized {
			sess.reauth = true
		}
	} else {
		sess.notice = successNotice(success)
		if a != ActionApplyStatus {
			sess.reauth = false
		}
	}
	view := sess.view()
	sess.mu.Unlock()

	outcome := "ok"
	if err != nil {
		outcome = strings.ToLower(string(errors.CodeOf(err)))
	}
	metrics.ObserveAction(string(a), outcome)

	after := view.Order.Order
	orderID := after.ID
	if orderID == "" {
		orderID = before.ID
	}

	log := s.log.WithField("session_id", sess.ID())
	if err != nil {
		log.Warn().Err(err).
			Str("order_id", orderID).
			Str("action", string(a)).
			Str("code", string(errors.CodeOf(err))).
			Msg("Workflow action failed")
	} else {
		log.Info().
			Str("order_id", orderID).
			Str("action", string(a)).
			Str("status", string(after.Status)).
			Msg("Workflow action completed")
	}

	if err == nil || errors.CodeOf(err) != errors.ErrCodeBusy {
		s.recordAudit(ctx, sess.ID(), a, orderID, before.Status, after.Status, meta, err)
	}
	if err == nil && s.events != nil {
		if eventType, ok := eventTypes[a]; ok {
			payload := map[string]any{
				"operation_type": string(after.OperationType),
				"amount":         after.Amount.StringFixed(2),
				"status":         string(after.Status),
			}
			for k, v := range meta {
				payload[k] = v
			}
			s.events.PublishOrderEvent(ctx, eventType, orderID, sess.ID(), payload)
		}
	}
	return view, err
}

// recordAudit appends an audit entry. A failure is logged and dropped.
func (s *PaymentOrderService) recordAudit(
	ctx context.Context,
	sessionID string,
	a Action,
	orderID string,
	before, after order.Status,
	meta map[string]any,
	actionErr error,
) {
	if s.audit == nil {
		return
	}
	action, ok := auditActions[a]
	if !ok {
		return
	}

	entry := &repository.AuditEntry{
		SessionID: sessionID,
		Action:    action,
		Operation: string(a),
		Metadata:  meta,
	}
	if orderID != "" {
		entry.OrderID = &orderID
	}
	if before != "" {
		b := string(before)
		entry.StatusBefore = &b
	}
	if after != "" {
		af := string(after)
		entry.StatusAfter = &af
	}
	if actionErr != nil {
		entry.Action = repository.AuditFailed
		code := string(errors.CodeOf(actionErr))
		msg := NoticeFor(actionErr).Message
		entry.ErrorCode = &code
		entry.Message = &msg
	}

	if err := s.audit.Append(ctx, entry); err != nil {
		s.log.Warn().Err(err).
			Str("session_id", sessionID).
			Str("action", entry.Action).
			Msg("audit: failed to append entry (non-fatal)")
	}
}
