package handler

import (
	"encoding/json"
	"net/http"

	"github.com/pesio-ai/be-ap-payment-orders/internal/catalog"
	"github.com/pesio-ai/be-ap-payment-orders/internal/errors"
	"github.com/pesio-ai/be-ap-payment-orders/internal/logger"
	"github.com/pesio-ai/be-ap-payment-orders/internal/order"
	"github.com/pesio-ai/be-ap-payment-orders/internal/service"
)

// HTTPHandler handles HTTP requests
type HTTPHandler struct {
	service *service.PaymentOrderService
	log     *logger.Logger
}

// NewHTTPHandler creates a new HTTP handler
func NewHTTPHandler(service *service.PaymentOrderService, log *logger.Logger) *HTTPHandler {
	return &HTTPHandler{
		service: service,
		log:     log,
	}
}

// sessionRequest is the body of every session action
type sessionRequest struct {
	SessionID string `json:"sessionId"`
}

// errorResponse is the body of a failed request. Session is set when the
// action ran against a session, so the caller sees the state it left.
type errorResponse struct {
	Notice  service.Notice       `json:"notice"`
	Session *service.SessionView `json:"session,omitempty"`
}

// StatusFor maps an error to its HTTP status
func StatusFor(err error) int {
	switch errors.CodeOf(err) {
	case errors.ErrCodeValidation, errors.ErrCodeInvalidInput:
		return http.StatusUnprocessableEntity
	case errors.ErrCodeOrderNotPersisted, errors.ErrCodeConflict:
		return http.StatusConflict
	case errors.ErrCodeBusy:
		return http.StatusTooManyRequests
	case errors.ErrCodeUnauthorized:
		return http.StatusUnauthorized
	case errors.ErrCodeUnknownOperationType, errors.ErrCodeNotFound:
		return http.StatusNotFound
	case errors.ErrCodeTransport, errors.ErrCodeProtocol, errors.ErrCodeApplication:
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func (h *HTTPHandler) writeError(w http.ResponseWriter, err error, view *service.SessionView) {
	status := StatusFor(err)
	if status == http.StatusInternalServerError {
		h.log.Error().Err(err).Msg("Request failed")
	}
	resp := errorResponse{Notice: service.NoticeFor(err)}
	if view != nil && view.ID != "" {
		resp.Session = view
	}
	writeJSON(w, status, resp)
}

func (h *HTTPHandler) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return false
	}
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return false
	}
	return true
}

// knownKind rejects an operation type the catalog does not register
func (h *HTTPHandler) knownKind(w http.ResponseWriter, kind catalog.OperationType) bool {
	if catalog.Known(kind) {
		return true
	}
	_, err := catalog.Lookup(kind)
	h.writeError(w, err, nil)
	return false
}

// respond writes the session after an action, or the error with the state
// the session was left in
func (h *HTTPHandler) respond(w http.ResponseWriter, view service.SessionView, err error) {
	if err != nil {
		h.writeError(w, err, &view)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

// OpenSession handles open session HTTP requests
func (h *HTTPHandler) OpenSession(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Issuer string `json:"issuer"`
	}
	if !h.decode(w, r, &req) {
		return
	}
	writeJSON(w, http.StatusCreated, h.service.OpenSession(req.Issuer))
}

// GetSession handles get session HTTP requests
func (h *HTTPHandler) GetSession(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	sessionID := r.URL.Query().Get("id")
	if sessionID == "" {
		http.Error(w, "Session ID is required", http.StatusBadRequest)
		return
	}

	view, err := h.service.GetSession(sessionID)
	if err != nil {
		h.writeError(w, err, nil)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

// ResetSession handles reset session HTTP requests
func (h *HTTPHandler) ResetSession(w http.ResponseWriter, r *http.Request) {
	var req sessionRequest
	if !h.decode(w, r, &req) {
		return
	}
	view, err := h.service.ResetSession(req.SessionID)
	h.respond(w, view, err)
}

// CloseSession handles close session HTTP requests
func (h *HTTPHandler) CloseSession(w http.ResponseWriter, r *http.Request) {
	var req sessionRequest
	if !h.decode(w, r, &req) {
		return
	}
	if err := h.service.CloseSession(req.SessionID); err != nil {
		h.writeError(w, err, nil)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// LoadReferenceData handles reference data HTTP requests
func (h *HTTPHandler) LoadReferenceData(w http.ResponseWriter, r *http.Request) {
	var req sessionRequest
	if !h.decode(w, r, &req) {
		return
	}
	data, err := h.service.LoadReferenceData(r.Context(), req.SessionID)
	if err != nil {
		h.writeError(w, err, nil)
		return
	}
	writeJSON(w, http.StatusOK, data)
}

// EditHeader handles header edit HTTP requests
func (h *HTTPHandler) EditHeader(w http.ResponseWriter, r *http.Request) {
	var req struct {
		SessionID string `json:"sessionId"`
		order.HeaderEdit
	}
	if !h.decode(w, r, &req) {
		return
	}
	view, err := h.service.EditHeader(req.SessionID, req.HeaderEdit)
	h.respond(w, view, err)
}

// SelectInvoice handles invoice selection HTTP requests
func (h *HTTPHandler) SelectInvoice(w http.ResponseWriter, r *http.Request) {
	var req struct {
		SessionID string `json:"sessionId"`
		InvoiceID string `json:"invoiceId"`
		Included  bool   `json:"included"`
	}
	if !h.decode(w, r, &req) {
		return
	}
	if req.InvoiceID == "" {
		h.writeError(w, errors.InvalidInput("invoiceId", "l'identifiant de la facture est requis"), nil)
		return
	}
	view, err := h.service.SelectInvoice(req.SessionID, req.InvoiceID, req.Included)
	h.respond(w, view, err)
}

// ResolveCounterparty handles counterparty HTTP requests
func (h *HTTPHandler) ResolveCounterparty(w http.ResponseWriter, r *http.Request) {
	var req struct {
		SessionID      string `json:"sessionId"`
		CounterpartyID string `json:"counterpartyId"`
	}
	if !h.decode(w, r, &req) {
		return
	}
	view, found, err := h.service.ResolveCounterparty(req.SessionID, req.CounterpartyID)
	if err != nil {
		h.writeError(w, err, nil)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"session": view,
		"found":   found,
	})
}

// UpdateDraft handles draft edit HTTP requests
func (h *HTTPHandler) UpdateDraft(w http.ResponseWriter, r *http.Request) {
	var req struct {
		SessionID string                `json:"sessionId"`
		Kind      catalog.OperationType `json:"kind"`
		Field     string                `json:"field"`
		Value     string                `json:"value"`
	}
	if !h.decode(w, r, &req) || !h.knownKind(w, req.Kind) {
		return
	}
	d, err := h.service.UpdateDraft(req.SessionID, req.Kind, req.Field, req.Value)
	if err != nil {
		writeJSON(w, StatusFor(err), map[string]any{
			"notice": service.NoticeFor(err),
			"draft":  d,
		})
		return
	}
	writeJSON(w, http.StatusOK, d)
}

// CreateOrder handles create order HTTP requests
func (h *HTTPHandler) CreateOrder(w http.ResponseWriter, r *http.Request) {
	var req sessionRequest
	if !h.decode(w, r, &req) {
		return
	}
	view, err := h.service.CreateOrder(r.Context(), req.SessionID)
	h.respond(w, view, err)
}

// AttachItem handles attach item HTTP requests
func (h *HTTPHandler) AttachItem(w http.ResponseWriter, r *http.Request) {
	var req struct {
		SessionID string                `json:"sessionId"`
		Kind      catalog.OperationType `json:"kind"`
	}
	if !h.decode(w, r, &req) || !h.knownKind(w, req.Kind) {
		return
	}
	view, err := h.service.AttachItem(r.Context(), req.SessionID, req.Kind)
	h.respond(w, view, err)
}

// AssociateItem handles associate item HTTP requests
func (h *HTTPHandler) AssociateItem(w http.ResponseWriter, r *http.Request) {
	var req struct {
		SessionID string                `json:"sessionId"`
		Kind      catalog.OperationType `json:"kind"`
		ItemID    string                `json:"itemId"`
	}
	if !h.decode(w, r, &req) || !h.knownKind(w, req.Kind) {
		return
	}
	view, err := h.service.AssociateItem(r.Context(), req.SessionID, req.Kind, req.ItemID)
	h.respond(w, view, err)
}

// SubmitOrder handles submit HTTP requests
func (h *HTTPHandler) SubmitOrder(w http.ResponseWriter, r *http.Request) {
	var req sessionRequest
	if !h.decode(w, r, &req) {
		return
	}
	view, err := h.service.SubmitOrder(r.Context(), req.SessionID)
	h.respond(w, view, err)
}

// ApplyStatus handles remote status HTTP requests
func (h *HTTPHandler) ApplyStatus(w http.ResponseWriter, r *http.Request) {
	var req struct {
		SessionID string `json:"sessionId"`
		Status    string `json:"status"`
	}
	if !h.decode(w, r, &req) {
		return
	}
	view, err := h.service.ApplyRemoteStatus(r.Context(), req.SessionID, req.Status)
	h.respond(w, view, err)
}

// Catalog handles catalog HTTP requests
func (h *HTTPHandler) Catalog(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, http.StatusOK, catalog.All())
}
