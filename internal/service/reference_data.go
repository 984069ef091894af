package service

import (
	"context"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/pesio-ai/be-ap-payment-orders/internal/client"
	"github.com/pesio-ai/be-ap-payment-orders/internal/errors"
	"github.com/pesio-ai/be-ap-payment-orders/internal/metrics"
	"github.com/pesio-ai/be-ap-payment-orders/internal/order"
)

// maxReferenceFetches bounds the concurrent reference calls of one session
const maxReferenceFetches = 4

// referenceList fetches one list into a ReferenceData
type referenceList struct {
	name  string
	fetch func(ctx context.Context, c client.ReferenceClientInterface, into *ReferenceData) error
}

func fetchInto[T any](get func(client.ReferenceClientInterface, context.Context) ([]T, error), set func(*ReferenceData, []T)) func(context.Context, client.ReferenceClientInterface, *ReferenceData) error {
	return func(ctx context.Context, c client.ReferenceClientInterface, into *ReferenceData) error {
		list, err := get(c, ctx)
		if err != nil {
			return err
		}
		set(into, list)
		return nil
	}
}

var referenceLists = []referenceList{
	{"sociétés", fetchInto(client.ReferenceClientInterface.ListCompanies,
		func(r *ReferenceData, l []client.Company) { r.Companies = l })},
	{"devises", fetchInto(client.ReferenceClientInterface.ListCurrencies,
		func(r *ReferenceData, l []client.Currency) { r.Currencies = l })},
	{"tiers", fetchInto(client.ReferenceClientInterface.ListCounterparties,
		func(r *ReferenceData, l []client.Counterparty) { r.Counterparties = l })},
	{"plan comptable", fetchInto(client.ReferenceClientInterface.ListLedgerAccounts,
		func(r *ReferenceData, l []client.LedgerAccount) { r.LedgerAccounts = l })},
	{"banques", fetchInto(client.ReferenceClientInterface.ListBanks,
		func(r *ReferenceData, l []client.Bank) { r.Banks = l })},
	{"factures", fetchInto(client.ReferenceClientInterface.ListInvoices,
		func(r *ReferenceData, l []client.Invoice) { r.Invoices = l })},
	{"comptes de trésorerie", fetchInto(client.ReferenceClientInterface.ListTreasuryAccounts,
		func(r *ReferenceData, l []client.TreasuryAccount) { r.TreasuryAccounts = l })},
}

// LoadReferenceData fetches every reference list. Each list is fetched on its
// own: a failing list is reported in Failures and keeps its previous content
// while the others are replaced. Only a 401 fails the whole load.
func (s *PaymentOrderService) LoadReferenceData(ctx context.Context, sessionID string) (ReferenceData, error) {
	sess, err := s.sessions.Get(sessionID)
	if err != nil {
		return ReferenceData{}, err
	}
	release, err := sess.acquire(ActionLoadReference)
	if err != nil {
		metrics.ObserveAction(string(ActionLoadReference), "busy")
		return sess.Reference(), err
	}
	defer release()

	sess.mu.Lock()
	data := sess.reference
	sess.mu.Unlock()
	data.Failures = nil

	var (
		mu       sync.Mutex
		failures = make(map[string]error)
		g        errgroup.Group
	)
	g.SetLimit(maxReferenceFetches)
	for _, l := range referenceLists {
		l := l
		g.Go(func() error {
			var fetched ReferenceData
			if err := l.fetch(ctx, s.reference, &fetched); err != nil {
				mu.Lock()
				failures[l.name] = err
				mu.Unlock()
				return nil
			}
			mu.Lock()
			merge(&data, &fetched)
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	log := s.log.WithField("session_id", sessionID)
	var unauthorized error
	for _, l := range referenceLists {
		err, failed := failures[l.name]
		if !failed {
			continue
		}
		if errors.CodeOf(err) == errors.ErrCodeUnauthorized {
			unauthorized = err
		}
		n := NoticeFor(err)
		n.Message = "Chargement de la liste '" + l.name + "' impossible : " + n.Message
		data.Failures = append(data.Failures, n)
		log.Warn().Err(err).
			Str("list", l.name).
			Msg("Reference list failed to load")
	}

	sess.mu.Lock()
	sess.reference = data
	sess.invoices = make(map[string]order.Invoice, len(data.Invoices))
	for _, inv := range data.Invoices {
		sess.invoices[string(inv.ID)] = inv.ToDomain()
	}
	counterparties := make([]order.Counterparty, 0, len(data.Counterparties))
	for _, c := range data.Counterparties {
		counterparties = append(counterparties, c.ToDomain())
	}
	sess.agg.SetCounterparties(counterparties)
	if unauthorized != nil {
		n := NoticeFor(unauthorized)
		sess.notice = &n
		sess.reauth = true
	} else if len(data.Failures) > 0 {
		n := Notice{Level: NoticeWarning, Message: data.Failures[0].Message}
		sess.notice = &n
	} else {
		sess.reauth = false
		sess.notice = nil
	}
	sess.mu.Unlock()

	outcome := "ok"
	switch {
	case unauthorized != nil:
		outcome = "unauthorized"
	case len(data.Failures) > 0:
		outcome = "partial"
	}
	metrics.ObserveAction(string(ActionLoadReference), outcome)

	if unauthorized != nil {
		return data, unauthorized
	}
	return data, nil
}

// merge copies the lists present in fetched into dst
func merge(dst, fetched *ReferenceData) {
	if fetched.Companies != nil {
		dst.Companies = fetched.Companies
	}
	if fetched.Currencies != nil {
		dst.Currencies = fetched.Currencies
	}
	if fetched.Counterparties != nil {
		dst.Counterparties = fetched.Counterparties
	}
	if fetched.LedgerAccounts != nil {
		dst.LedgerAccounts = fetched.LedgerAccounts
	}
	if fetched.Banks != nil {
		dst.Banks = fetched.Banks
	}
	if fetched.Invoices != nil {
		dst.Invoices = fetched.Invoices
	}
	if fetched.TreasuryAccounts != nil {
		dst.TreasuryAccounts = fetched.TreasuryAccounts
	}
}
