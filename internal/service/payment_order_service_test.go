package service

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pesio-ai/be-ap-payment-orders/internal/catalog"
	"github.com/pesio-ai/be-ap-payment-orders/internal/client"
	"github.com/pesio-ai/be-ap-payment-orders/internal/errors"
	"github.com/pesio-ai/be-ap-payment-orders/internal/logger"
	"github.com/pesio-ai/be-ap-payment-orders/internal/order"
	"github.com/pesio-ai/be-ap-payment-orders/internal/repository"
)

// fakeBackend routes "METHOD /path" to handlers and records every request
type fakeBackend struct {
	mu       sync.Mutex
	requests []string
	bodies   map[string]map[string]any
	handlers map[string]http.HandlerFunc
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{
		bodies:   make(map[string]map[string]any),
		handlers: make(map[string]http.HandlerFunc),
	}
}

func (f *fakeBackend) handle(route string, h http.HandlerFunc) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.handlers[route] = h
}

func (f *fakeBackend) reply(route string, status int, body string) {
	f.handle(route, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, status, body)
	})
}

func (f *fakeBackend) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	route := r.Method + " " + r.URL.Path
	f.mu.Lock()
	f.requests = append(f.requests, r.Method+" "+r.URL.RequestURI())
	if r.Body != nil {
		raw, _ := io.ReadAll(r.Body)
		var body map[string]any
		if json.Unmarshal(raw, &body) == nil {
			f.bodies[route] = body
		}
	}
	h, ok := f.handlers[route]
	f.mu.Unlock()

	if !ok {
		writeJSON(w, http.StatusNotFound, `{"success":false,"message":"Ressource introuvable"}`)
		return
	}
	h(w, r)
}

func (f *fakeBackend) calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.requests...)
}

func (f *fakeBackend) body(route string) map[string]any {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.bodies[route]
}

func writeJSON(w http.ResponseWriter, status int, body string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = io.WriteString(w, body)
}

type recordingAudit struct {
	mu      sync.Mutex
	entries []*repository.AuditEntry
}

func (r *recordingAudit) Append(ctx context.Context, entry *repository.AuditEntry) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, entry)
	return nil
}

func (r *recordingAudit) actions() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.entries))
	for _, e := range r.entries {
		out = append(out, e.Action)
	}
	return out
}

type recordingEvents struct {
	mu    sync.Mutex
	types []string
}

func (r *recordingEvents) PublishOrderEvent(ctx context.Context, eventType, orderID, sessionID string, payload map[string]any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.types = append(r.types, eventType)
}

type harness struct {
	svc     *PaymentOrderService
	backend *fakeBackend
	creds   *client.StaticCredentials
	audit   *recordingAudit
	events  *recordingEvents
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	backend := newFakeBackend()
	srv := httptest.NewServer(backend)
	t.Cleanup(srv.Close)

	creds := client.NewStaticCredentials("tok")
	gw := client.NewGateway(srv.URL, 5*time.Second, creds, logger.Nop())
	audit := &recordingAudit{}
	events := &recordingEvents{}

	svc := NewPaymentOrderService(
		NewSessionRegistry(),
		client.NewReferenceClient(gw),
		client.NewOrdersClient(gw),
		client.NewItemsClient(gw),
		audit,
		events,
		logger.Nop(),
	)
	return &harness{svc: svc, backend: backend, creds: creds, audit: audit, events: events}
}

// openOrder opens a session with the given operation type and currency
func (h *harness) openOrder(t *testing.T, op catalog.OperationType) string {
	t.Helper()
	view := h.svc.OpenSession("amina.diallo")
	currency := "1"
	_, err := h.svc.EditHeader(view.ID, order.HeaderEdit{OperationType: &op, CurrencyRef: &currency})
	require.NoError(t, err)
	return view.ID
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func TestAttachBeforeCreateFailsWithoutNetworkCall(t *testing.T) {
	h := newHarness(t)
	id := h.openOrder(t, catalog.OpSocialCharge)

	view, err := h.svc.AttachItem(context.Background(), id, catalog.OpSocialCharge)
	require.Error(t, err)
	assert.ErrorIs(t, err, order.ErrOrderNotPersisted)
	assert.Empty(t, h.backend.calls())

	require.NotNil(t, view.Notice)
	assert.Equal(t, "Veuillez d'abord enregistrer l'ordre de paiement", view.Notice.Message)
	assert.Empty(t, view.Order.Items)
	assert.Equal(t, order.StatusDraft, view.Order.Order.Status)
	assert.Equal(t, []string{repository.AuditFailed}, h.audit.actions())
}

func TestCreateAssignsIdentity(t *testing.T) {
	h := newHarness(t)
	h.backend.reply("POST /ordre-paiement", http.StatusCreated,
		`{"success":true,"data":{"id":12,"numero":"OP-2026-0012","statut":"brouillon"}}`)
	id := h.openOrder(t, catalog.OpOther)

	view, err := h.svc.CreateOrder(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, "12", view.Order.Order.ID)
	assert.Equal(t, "OP-2026-0012", view.Order.Order.OrderNumber)
	assert.Equal(t, NoticeSuccess, view.Notice.Level)

	body := h.backend.body("POST /ordre-paiement")
	assert.Equal(t, "autre", body["typeOperation"])
	assert.Equal(t, "brouillon", body["statut"])
	assert.Equal(t, "virement", body["modePaiement"])

	_, err = h.svc.CreateOrder(context.Background(), id)
	assert.Equal(t, errors.ErrCodeConflict, errors.CodeOf(err))
	assert.Len(t, h.backend.calls(), 1)
	assert.Equal(t, []string{"order_created"}, h.events.types)
}

func TestSubmitApplicationErrorKeepsDraft(t *testing.T) {
	h := newHarness(t)
	h.backend.reply("POST /ordre-paiement", http.StatusOK, `{"success":true,"data":{"id":12}}`)
	h.backend.reply("POST /ordre-paiement/12/soumettre", http.StatusOK,
		`{"success":false,"message":"Solde insuffisant"}`)
	id := h.openOrder(t, catalog.OpOther)

	_, err := h.svc.CreateOrder(context.Background(), id)
	require.NoError(t, err)

	view, err := h.svc.SubmitOrder(context.Background(), id)
	require.Error(t, err)
	assert.Equal(t, errors.ErrCodeApplication, errors.CodeOf(err))
	require.NotNil(t, view.Notice)
	assert.Equal(t, "Solde insuffisant", view.Notice.Message)
	assert.Equal(t, NoticeError, view.Notice.Level)
	assert.Equal(t, order.StatusDraft, view.Order.Order.Status)
	assert.Equal(t, "12", view.Order.Order.ID)
	assert.Equal(t, []string{"order_created"}, h.events.types)
}

func TestSubmitChangesOnlyStatus(t *testing.T) {
	h := newHarness(t)
	h.backend.reply("POST /ordre-paiement", http.StatusOK, `{"success":true,"data":{"id":12}}`)
	h.backend.reply("POST /ordre-paiement/12/soumettre", http.StatusOK, `{"success":true}`)
	id := h.openOrder(t, catalog.OpOther)

	created, err := h.svc.CreateOrder(context.Background(), id)
	require.NoError(t, err)

	view, err := h.svc.SubmitOrder(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, order.StatusSubmitted, view.Order.Order.Status)

	before := created.Order.Order
	before.Status = order.StatusSubmitted
	assert.Equal(t, before, view.Order.Order)
	assert.Equal(t, []string{"POST /ordre-paiement", "POST /ordre-paiement/12/soumettre"}, h.backend.calls())
	assert.Equal(t, []string{repository.AuditCreated, repository.AuditSubmitted}, h.audit.actions())
	assert.Equal(t, []string{"order_created", "order_submitted"}, h.events.types)

	_, err = h.svc.SubmitOrder(context.Background(), id)
	assert.Equal(t, errors.ErrCodeConflict, errors.CodeOf(err))
}

func TestSubmitBeforeCreate(t *testing.T) {
	h := newHarness(t)
	id := h.openOrder(t, catalog.OpOther)

	_, err := h.svc.SubmitOrder(context.Background(), id)
	assert.ErrorIs(t, err, order.ErrOrderNotPersisted)
	assert.Empty(t, h.backend.calls())
}

func TestAttachValidatesBeforeSending(t *testing.T) {
	h := newHarness(t)
	h.backend.reply("POST /ordre-paiement", http.StatusOK, `{"success":true,"data":{"id":7}}`)
	id := h.openOrder(t, catalog.OpSocialCharge)

	_, err := h.svc.CreateOrder(context.Background(), id)
	require.NoError(t, err)

	view, err := h.svc.AttachItem(context.Background(), id, catalog.OpSocialCharge)
	require.Error(t, err)
	assert.Equal(t, errors.ErrCodeValidation, errors.CodeOf(err))
	assert.Equal(t, "Le libellé est requis; Le montant est requis", view.Notice.Message)
	assert.Equal(t, []string{"POST /ordre-paiement"}, h.backend.calls())
}

func TestAttachRefreshesItemsAndResetsDraft(t *testing.T) {
	h := newHarness(t)
	h.backend.reply("POST /ordre-paiement", http.StatusOK, `{"success":true,"data":{"id":7}}`)
	h.backend.reply("POST /charges-sociales", http.StatusCreated,
		`{"success":true,"data":{"id":31,"libelle":"CNSS mars","montant":250}}`)
	h.backend.reply("GET /charges-sociales", http.StatusOK,
		`{"success":true,"data":[{"id":30,"montant":"100.00"},{"id":31,"montant":250}]}`)
	id := h.openOrder(t, catalog.OpSocialCharge)
	ctx := context.Background()

	_, err := h.svc.CreateOrder(ctx, id)
	require.NoError(t, err)

	_, err = h.svc.UpdateDraft(id, catalog.OpSocialCharge, "libelle", "CNSS mars")
	require.NoError(t, err)
	_, err = h.svc.UpdateDraft(id, catalog.OpSocialCharge, "montant", "250.00")
	require.NoError(t, err)

	view, err := h.svc.AttachItem(ctx, id, catalog.OpSocialCharge)
	require.NoError(t, err)

	payload := h.backend.body("POST /charges-sociales")
	assert.Equal(t, "7", payload["ordrePaiementId"])
	assert.Equal(t, 250.0, payload["montant"])
	assert.Equal(t, "1", payload["deviseId"])
	employee, present := payload["employeId"]
	assert.True(t, present)
	assert.Nil(t, employee)

	assert.Contains(t, h.backend.calls(), "GET /charges-sociales?ordrePaiementId=7")
	require.Len(t, view.Order.Items, 2)
	assert.True(t, view.Order.Order.Amount.Equal(dec("350")), view.Order.Order.Amount.String())

	d := view.Drafts[catalog.OpSocialCharge]
	assert.Equal(t, "", d.Get("libelle"))
	assert.Equal(t, "", d.Get("montant"))
	assert.Equal(t, "1", d.Currency())
	assert.Equal(t, "caisse_sociale", d.Get("organisme"))
	assert.Equal(t, []string{"order_created", "item_attached"}, h.events.types)
}

func TestAttachCreateFailureKeepsDraft(t *testing.T) {
	h := newHarness(t)
	h.backend.reply("POST /ordre-paiement", http.StatusOK, `{"success":true,"data":{"id":7}}`)
	h.backend.reply("POST /charges-sociales", http.StatusUnprocessableEntity,
		`{"success":false,"errors":{"montant":["Le montant dépasse le plafond autorisé."]}}`)
	id := h.openOrder(t, catalog.OpSocialCharge)
	ctx := context.Background()

	_, err := h.svc.CreateOrder(ctx, id)
	require.NoError(t, err)
	_, err = h.svc.UpdateDraft(id, catalog.OpSocialCharge, "libelle", "CNSS mars")
	require.NoError(t, err)
	_, err = h.svc.UpdateDraft(id, catalog.OpSocialCharge, "montant", "99999.00")
	require.NoError(t, err)

	view, err := h.svc.AttachItem(ctx, id, catalog.OpSocialCharge)
	require.Error(t, err)
	assert.Equal(t, "Le montant dépasse le plafond autorisé.", view.Notice.Message)
	assert.Equal(t, "99999.00", view.Drafts[catalog.OpSocialCharge].Get("montant"))
	assert.Empty(t, view.Order.Items)
	assert.NotContains(t, h.backend.calls(), "GET /charges-sociales?ordrePaiementId=7")
}

func TestActionLockFailsFast(t *testing.T) {
	h := newHarness(t)
	entered := make(chan struct{})
	unblock := make(chan struct{})
	h.backend.reply("POST /ordre-paiement", http.StatusOK, `{"success":true,"data":{"id":12}}`)
	h.backend.handle("POST /ordre-paiement/12/soumettre", func(w http.ResponseWriter, r *http.Request) {
		close(entered)
		<-unblock
		writeJSON(w, http.StatusOK, `{"success":true}`)
	})
	id := h.openOrder(t, catalog.OpOther)
	ctx := context.Background()

	_, err := h.svc.CreateOrder(ctx, id)
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() {
		_, err := h.svc.SubmitOrder(ctx, id)
		done <- err
	}()
	<-entered

	_, err = h.svc.SubmitOrder(ctx, id)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrBusy)

	close(unblock)
	require.NoError(t, <-done)

	view, err := h.svc.GetSession(id)
	require.NoError(t, err)
	assert.Equal(t, order.StatusSubmitted, view.Order.Order.Status)
	assert.Equal(t, []string{repository.AuditCreated, repository.AuditSubmitted}, h.audit.actions())
}

func TestUnauthorizedRequiresReauth(t *testing.T) {
	h := newHarness(t)
	h.backend.reply("POST /ordre-paiement", http.StatusOK, `{"success":true,"data":{"id":12}}`)
	h.backend.reply("POST /ordre-paiement/12/soumettre", http.StatusUnauthorized, `{"message":"Unauthenticated."}`)
	id := h.openOrder(t, catalog.OpOther)
	ctx := context.Background()

	_, err := h.svc.CreateOrder(ctx, id)
	require.NoError(t, err)

	view, err := h.svc.SubmitOrder(ctx, id)
	require.Error(t, err)
	assert.Equal(t, errors.ErrCodeUnauthorized, errors.CodeOf(err))
	assert.True(t, view.ReauthRequired)
	assert.Equal(t, "Session expirée, veuillez vous reconnecter", view.Notice.Message)
	assert.Equal(t, order.StatusDraft, view.Order.Order.Status)

	_, err = h.creds.Token(ctx)
	assert.Error(t, err)

	calls := len(h.backend.calls())
	_, err = h.svc.SubmitOrder(ctx, id)
	assert.Equal(t, errors.ErrCodeUnauthorized, errors.CodeOf(err))
	assert.Len(t, h.backend.calls(), calls)

	h.creds.Set("fresh")
	h.backend.reply("POST /ordre-paiement/12/soumettre", http.StatusOK, `{"success":true}`)
	view, err = h.svc.SubmitOrder(ctx, id)
	require.NoError(t, err)
	assert.False(t, view.ReauthRequired)
}

func TestAssociateItem(t *testing.T) {
	h := newHarness(t)
	h.backend.reply("POST /ordre-paiement", http.StatusOK, `{"success":true,"data":{"id":7}}`)
	h.backend.handle("PUT /charges-sociales/55/associer-ordre/7", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	h.backend.reply("GET /charges-sociales", http.StatusOK, `[{"id":55,"montant":"80.00"}]`)
	id := h.openOrder(t, catalog.OpSocialCharge)
	ctx := context.Background()

	_, err := h.svc.AssociateItem(ctx, id, catalog.OpSocialCharge, "55")
	assert.ErrorIs(t, err, order.ErrOrderNotPersisted)

	_, err = h.svc.CreateOrder(ctx, id)
	require.NoError(t, err)

	view, err := h.svc.AssociateItem(ctx, id, catalog.OpSocialCharge, "55")
	require.NoError(t, err)
	require.Len(t, view.Order.Items, 1)
	assert.Equal(t, "55", view.Order.Items[0].ID)
	assert.True(t, view.Order.Order.Amount.Equal(dec("80")))
	assert.Equal(t, "7", h.backend.body("PUT /charges-sociales/55/associer-ordre/7")["ordrePaiementId"])
}

func TestAssociateEscapesItemID(t *testing.T) {
	h := newHarness(t)
	h.backend.reply("POST /ordre-paiement", http.StatusOK, `{"success":true,"data":{"id":7}}`)
	h.backend.reply("POST /ordre-paiement/9/soumettre", http.StatusOK, `{"success":true}`)
	id := h.openOrder(t, catalog.OpSocialCharge)
	ctx := context.Background()

	_, err := h.svc.CreateOrder(ctx, id)
	require.NoError(t, err)

	_, err = h.svc.AssociateItem(ctx, id, catalog.OpSocialCharge, "../ordre-paiement/9/soumettre")
	require.Error(t, err)
	assert.Contains(t, h.backend.calls(),
		"PUT /charges-sociales/..%2Fordre-paiement%2F9%2Fsoumettre/associer-ordre/7")
	assert.NotContains(t, h.backend.calls(), "POST /ordre-paiement/9/soumettre")

	calls := len(h.backend.calls())
	_, err = h.svc.AssociateItem(ctx, id, catalog.OpSocialCharge, "..")
	assert.Equal(t, errors.ErrCodeInvalidInput, errors.CodeOf(err))
	assert.Len(t, h.backend.calls(), calls)
}

func TestAssociateRefreshUnauthorizedRequiresReauth(t *testing.T) {
	h := newHarness(t)
	h.backend.reply("POST /ordre-paiement", http.StatusOK, `{"success":true,"data":{"id":7}}`)
	h.backend.handle("PUT /charges-sociales/55/associer-ordre/7", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	h.backend.reply("GET /charges-sociales", http.StatusUnauthorized, `{"message":"Unauthenticated."}`)
	id := h.openOrder(t, catalog.OpSocialCharge)
	ctx := context.Background()

	_, err := h.svc.CreateOrder(ctx, id)
	require.NoError(t, err)

	view, err := h.svc.AssociateItem(ctx, id, catalog.OpSocialCharge, "55")
	assert.Equal(t, errors.ErrCodeUnauthorized, errors.CodeOf(err))
	assert.True(t, view.ReauthRequired)
	assert.Equal(t, "Session expirée, veuillez vous reconnecter", view.Notice.Message)
}

func TestAttachRefreshUnauthorizedKeepsItemAndRequiresReauth(t *testing.T) {
	h := newHarness(t)
	h.backend.reply("POST /ordre-paiement", http.StatusOK, `{"success":true,"data":{"id":7}}`)
	h.backend.reply("POST /charges-sociales", http.StatusCreated,
		`{"success":true,"data":{"id":31,"libelle":"CNSS mars","montant":250}}`)
	h.backend.reply("GET /charges-sociales", http.StatusUnauthorized, `{"message":"Unauthenticated."}`)
	id := h.openOrder(t, catalog.OpSocialCharge)
	ctx := context.Background()

	_, err := h.svc.CreateOrder(ctx, id)
	require.NoError(t, err)
	_, err = h.svc.UpdateDraft(id, catalog.OpSocialCharge, "libelle", "CNSS mars")
	require.NoError(t, err)
	_, err = h.svc.UpdateDraft(id, catalog.OpSocialCharge, "montant", "250.00")
	require.NoError(t, err)

	view, err := h.svc.AttachItem(ctx, id, catalog.OpSocialCharge)
	assert.Equal(t, errors.ErrCodeUnauthorized, errors.CodeOf(err))
	assert.True(t, view.ReauthRequired)
	assert.Equal(t, "Session expirée, veuillez vous reconnecter", view.Notice.Message)

	require.Len(t, view.Order.Items, 1)
	assert.Equal(t, "31", view.Order.Items[0].ID)
	assert.Equal(t, "", view.Drafts[catalog.OpSocialCharge].Get("libelle"))

	_, err = h.creds.Token(ctx)
	assert.Error(t, err)
}

func TestAssociateUnsupportedForOtherTypes(t *testing.T) {
	h := newHarness(t)
	h.backend.reply("POST /ordre-paiement", http.StatusOK, `{"success":true,"data":{"id":8}}`)
	id := h.openOrder(t, catalog.OpPerDiem)
	ctx := context.Background()

	_, err := h.svc.CreateOrder(ctx, id)
	require.NoError(t, err)

	_, err = h.svc.AssociateItem(ctx, id, catalog.OpPerDiem, "3")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrAssociationUnsupported)
	assert.Len(t, h.backend.calls(), 1)
}

const invoicesBody = `{"success":true,"data":[
	{"id":1,"numero":"FAC-001","dateFacture":"2026-02-01","montantTtc":"1200.00","resteAPayer":"1200.00","statut":"validee","tiers":{"id":4,"nom":"SONATEL"}},
	{"id":2,"numero":"FAC-002","dateFacture":"2026-02-03","montantTtc":300.50,"resteAPayer":300.50,"statut":"validee"}
]}`

func replyReference(b *fakeBackend) {
	b.reply("GET /societes", http.StatusOK, `[{"id":1,"code":"HQ","raisonSociale":"Siège"}]`)
	b.reply("GET /devises", http.StatusOK, `{"success":true,"data":[{"id":1,"code":"XOF"}]}`)
	b.reply("GET /tiers", http.StatusOK, `{"data":[{"id":4,"code":"F004","nom":"SONATEL"}]}`)
	b.reply("GET /plan-comptables", http.StatusOK, `[]`)
	b.reply("GET /banques", http.StatusOK, `[]`)
	b.reply("GET /factures", http.StatusOK, invoicesBody)
	b.reply("GET /comptes-tresorerie", http.StatusOK, `[]`)
}

func TestInvoiceSettlementScenario(t *testing.T) {
	h := newHarness(t)
	replyReference(h.backend)
	h.backend.reply("POST /ordre-paiement", http.StatusOK, `{"success":true,"data":{"id":20}}`)
	view := h.svc.OpenSession("amina.diallo")
	ctx := context.Background()

	data, err := h.svc.LoadReferenceData(ctx, view.ID)
	require.NoError(t, err)
	assert.Empty(t, data.Failures)
	require.Len(t, data.Invoices, 2)

	view, err = h.svc.SelectInvoice(view.ID, "1", true)
	require.NoError(t, err)
	view, err = h.svc.SelectInvoice(view.ID, "2", true)
	require.NoError(t, err)
	view, err = h.svc.SelectInvoice(view.ID, "2", true)
	require.NoError(t, err)
	assert.True(t, view.Order.Order.Amount.Equal(dec("1500.50")), view.Order.Order.Amount.String())

	view, err = h.svc.SelectInvoice(view.ID, "1", false)
	require.NoError(t, err)
	assert.True(t, view.Order.Order.Amount.Equal(dec("300.50")), view.Order.Order.Amount.String())

	_, err = h.svc.SelectInvoice(view.ID, "99", true)
	assert.Equal(t, errors.ErrCodeNotFound, errors.CodeOf(err))
	view, err = h.svc.SelectInvoice(view.ID, "99", false)
	require.NoError(t, err)
	assert.True(t, view.Order.Order.Amount.Equal(dec("300.50")), view.Order.Order.Amount.String())

	view, found, err := h.svc.ResolveCounterparty(view.ID, "4")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "F004", view.Order.Order.CounterpartyCode)

	_, err = h.svc.CreateOrder(ctx, view.ID)
	require.NoError(t, err)
	body := h.backend.body("POST /ordre-paiement")
	assert.Equal(t, 300.5, body["montant"])
	settlements, ok := body["factures"].([]any)
	require.True(t, ok)
	require.Len(t, settlements, 1)
	assert.Equal(t, "2", settlements[0].(map[string]any)["factureId"])
}

func TestLoadReferenceDataToleratesPartialFailure(t *testing.T) {
	h := newHarness(t)
	replyReference(h.backend)
	h.backend.handle("GET /banques", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		_, _ = io.WriteString(w, "<html>502 Bad Gateway</html>")
	})
	h.backend.reply("GET /societes", http.StatusOK, `{"other":"shape"}`)
	view := h.svc.OpenSession("amina.diallo")

	data, err := h.svc.LoadReferenceData(context.Background(), view.ID)
	require.NoError(t, err)
	require.Len(t, data.Failures, 2)
	assert.Contains(t, data.Failures[0].Message, "sociétés")
	assert.Contains(t, data.Failures[1].Message, "banques")
	assert.Contains(t, data.Failures[1].Message, "text/html")

	assert.Nil(t, data.Companies)
	assert.Len(t, data.Currencies, 1)
	assert.Len(t, data.Counterparties, 1)
	assert.Len(t, data.Invoices, 2)

	view, err = h.svc.GetSession(view.ID)
	require.NoError(t, err)
	require.NotNil(t, view.Notice)
	assert.Equal(t, NoticeWarning, view.Notice.Level)
}

func TestLoadReferenceDataUnauthorized(t *testing.T) {
	h := newHarness(t)
	h.backend.reply("GET /societes", http.StatusUnauthorized, `{}`)
	replyOthers := []string{"/devises", "/tiers", "/plan-comptables", "/banques", "/factures", "/comptes-tresorerie"}
	for _, p := range replyOthers {
		h.backend.reply("GET "+p, http.StatusOK, `[]`)
	}
	view := h.svc.OpenSession("amina.diallo")

	_, err := h.svc.LoadReferenceData(context.Background(), view.ID)
	require.Error(t, err)
	assert.Equal(t, errors.ErrCodeUnauthorized, errors.CodeOf(err))

	view, err = h.svc.GetSession(view.ID)
	require.NoError(t, err)
	assert.True(t, view.ReauthRequired)
}

func TestApplyRemoteStatus(t *testing.T) {
	h := newHarness(t)
	h.backend.reply("POST /ordre-paiement", http.StatusOK, `{"success":true,"data":{"id":12}}`)
	h.backend.reply("POST /ordre-paiement/12/soumettre", http.StatusOK, `{"success":true}`)
	id := h.openOrder(t, catalog.OpOther)
	ctx := context.Background()

	_, err := h.svc.ApplyRemoteStatus(ctx, id, "valide")
	assert.ErrorIs(t, err, order.ErrOrderNotPersisted)

	_, err = h.svc.CreateOrder(ctx, id)
	require.NoError(t, err)

	_, err = h.svc.ApplyRemoteStatus(ctx, id, "paye")
	assert.Equal(t, errors.ErrCodeConflict, errors.CodeOf(err))

	_, err = h.svc.SubmitOrder(ctx, id)
	require.NoError(t, err)

	view, err := h.svc.ApplyRemoteStatus(ctx, id, "valide")
	require.NoError(t, err)
	assert.Equal(t, order.StatusValidated, view.Order.Order.Status)

	view, err = h.svc.ApplyRemoteStatus(ctx, id, string(order.StatusPaid))
	require.NoError(t, err)
	assert.Equal(t, order.StatusPaid, view.Order.Order.Status)

	_, err = h.svc.ApplyRemoteStatus(ctx, id, "archive")
	assert.Equal(t, errors.ErrCodeInvalidInput, errors.CodeOf(err))
}

func TestResetSupersedesOrder(t *testing.T) {
	h := newHarness(t)
	replyReference(h.backend)
	h.backend.reply("POST /ordre-paiement", http.StatusOK, `{"success":true,"data":{"id":12}}`)
	id := h.openOrder(t, catalog.OpOther)
	ctx := context.Background()

	_, err := h.svc.LoadReferenceData(ctx, id)
	require.NoError(t, err)
	_, err = h.svc.CreateOrder(ctx, id)
	require.NoError(t, err)
	_, err = h.svc.UpdateDraft(id, catalog.OpOther, "libelle", "Loyer")
	require.NoError(t, err)

	view, err := h.svc.ResetSession(id)
	require.NoError(t, err)
	assert.Empty(t, view.Order.Order.ID)
	assert.Equal(t, catalog.OpInvoice, view.Order.Order.OperationType)
	assert.Empty(t, view.Drafts)

	view, found, err := h.svc.ResolveCounterparty(id, "4")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "SONATEL", view.Order.Order.CounterpartyName)
}

func TestUpdateDraftRejectsMaskAndInvoices(t *testing.T) {
	h := newHarness(t)
	id := h.openOrder(t, catalog.OpOther)

	d, err := h.svc.UpdateDraft(id, catalog.OpOther, "montant", "12.5")
	require.NoError(t, err)
	assert.Equal(t, "12.5", d.Get("montant"))

	d, err = h.svc.UpdateDraft(id, catalog.OpOther, "montant", "12.555")
	require.Error(t, err)
	assert.Equal(t, "12.5", d.Get("montant"))

	_, err = h.svc.UpdateDraft(id, catalog.OpInvoice, "montant", "1")
	assert.Equal(t, errors.ErrCodeConflict, errors.CodeOf(err))

	_, err = h.svc.UpdateDraft(id, catalog.OperationType("crypto"), "montant", "1")
	assert.Equal(t, errors.ErrCodeUnknownOperationType, errors.CodeOf(err))
}

func TestSessionsAreIsolated(t *testing.T) {
	h := newHarness(t)
	a := h.openOrder(t, catalog.OpOther)
	b := h.openOrder(t, catalog.OpPayroll)

	_, err := h.svc.UpdateDraft(a, catalog.OpOther, "libelle", "Loyer")
	require.NoError(t, err)

	va, err := h.svc.GetSession(a)
	require.NoError(t, err)
	vb, err := h.svc.GetSession(b)
	require.NoError(t, err)
	assert.Len(t, va.Drafts, 1)
	assert.Empty(t, vb.Drafts)
	assert.Equal(t, catalog.OpPayroll, vb.Order.Order.OperationType)

	require.NoError(t, h.svc.CloseSession(a))
	_, err = h.svc.GetSession(a)
	assert.ErrorIs(t, err, ErrSessionNotFound)
}
