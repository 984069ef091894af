package handler

import (
	"context"
	"net/http"

	"github.com/pesio-ai/be-ap-payment-orders/internal/errors"
	"github.com/pesio-ai/be-ap-payment-orders/internal/metrics"
	"github.com/pesio-ai/be-ap-payment-orders/internal/repository"
)

// AuditReader reads the audit trail
type AuditReader interface {
	Ping(ctx context.Context) error
	GetByOrderID(ctx context.Context, orderID string) ([]*repository.AuditEntry, error)
	GetBySessionID(ctx context.Context, sessionID string) ([]*repository.AuditEntry, error)
}

// RegisterRoutes mounts the session routes, the catalog, the audit trail
// (when audit is not nil), /health and /metrics on mux
func RegisterRoutes(mux *http.ServeMux, h *HTTPHandler, audit AuditReader) {
	// Health check
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		resp := map[string]any{
			"status":   "healthy",
			"sessions": h.service.ActiveSessions(),
		}
		status := http.StatusOK
		if audit != nil {
			if err := audit.Ping(r.Context()); err != nil {
				h.log.Warn().Err(err).Msg("Audit database unreachable")
				resp["status"] = "degraded"
				resp["database"] = "unreachable"
				status = http.StatusServiceUnavailable
			} else {
				resp["database"] = "ok"
			}
		}
		writeJSON(w, status, resp)
	})
	mux.Handle("/metrics", metrics.Handler())

	mux.HandleFunc("/api/v1/catalog", h.Catalog)

	// Session routes
	mux.HandleFunc("/api/v1/sessions", h.OpenSession)
	mux.HandleFunc("/api/v1/sessions/get", h.GetSession)
	mux.HandleFunc("/api/v1/sessions/reset", h.ResetSession)
	mux.HandleFunc("/api/v1/sessions/close", h.CloseSession)
	mux.HandleFunc("/api/v1/sessions/reference-data", h.LoadReferenceData)
	mux.HandleFunc("/api/v1/sessions/header", h.EditHeader)
	mux.HandleFunc("/api/v1/sessions/invoices/select", h.SelectInvoice)
	mux.HandleFunc("/api/v1/sessions/counterparty", h.ResolveCounterparty)
	mux.HandleFunc("/api/v1/sessions/drafts/update", h.UpdateDraft)

	// Workflow routes
	mux.HandleFunc("/api/v1/sessions/create", h.CreateOrder)
	mux.HandleFunc("/api/v1/sessions/items/attach", h.AttachItem)
	mux.HandleFunc("/api/v1/sessions/items/associate", h.AssociateItem)
	mux.HandleFunc("/api/v1/sessions/submit", h.SubmitOrder)
	mux.HandleFunc("/api/v1/sessions/status", h.ApplyStatus)

	if audit != nil {
		mux.HandleFunc("/api/v1/audit", h.auditTrail(audit))
	}
}

// auditTrail lists the audit entries of an order (?orderId=) or a session
// (?sessionId=)
func (h *HTTPHandler) auditTrail(audit AuditReader) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}

		var (
			entries []*repository.AuditEntry
			err     error
		)
		q := r.URL.Query()
		switch {
		case q.Get("orderId") != "":
			entries, err = audit.GetByOrderID(r.Context(), q.Get("orderId"))
		case q.Get("sessionId") != "":
			entries, err = audit.GetBySessionID(r.Context(), q.Get("sessionId"))
		default:
			h.writeError(w, errors.InvalidInput("orderId", "orderId ou sessionId est requis"), nil)
			return
		}
		if err != nil {
			h.log.Error().Err(err).Msg("Failed to read audit trail")
			http.Error(w, "Failed to read audit trail", http.StatusInternalServerError)
			return
		}
		if entries == nil {
			entries = []*repository.AuditEntry{}
		}
		writeJSON(w, http.StatusOK, entries)
	}
}
