package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/pesio-ai/be-ap-payment-orders/internal/errors"
	"github.com/pesio-ai/be-ap-payment-orders/internal/logger"
	"github.com/pesio-ai/be-ap-payment-orders/internal/metrics"
)

const maxBodyBytes = 10 << 20

// ErrUnauthorized is returned when the backend answers 401. The credential
// has already been invalidated; the operator must log in again.
var ErrUnauthorized = errors.New(errors.ErrCodeUnauthorized, "")

// Gateway sends authenticated JSON requests to the accounting backend and
// classifies every failure as transport, protocol, application, validation
// or authorization.
type Gateway struct {
	baseURL string
	http    *http.Client
	creds   CredentialProvider
	log     *logger.Logger
}

// NewGateway creates a gateway for baseURL
func NewGateway(baseURL string, timeout time.Duration, creds CredentialProvider, log *logger.Logger) *Gateway {
	return &Gateway{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: timeout},
		creds:   creds,
		log:     log,
	}
}

// envelope is the common response wrapper: {success, message, errors, data}
type envelope struct {
	Success *bool           `json:"success"`
	Message string          `json:"message"`
	Error   json.RawMessage `json:"error"`
	Errors  json.RawMessage `json:"errors"`
	Data    json.RawMessage `json:"data"`
}

// Do sends one request and returns the raw JSON body of a successful
// response. A nil body is returned for 204 No Content.
func (g *Gateway) Do(ctx context.Context, method, path string, in any) ([]byte, error) {
	start := time.Now()
	body, outcome, err := g.do(ctx, method, path, in)
	metrics.ObserveBackend(method, path, outcome, time.Since(start))

	if err != nil {
		g.log.Warn().Err(err).
			Str("method", method).
			Str("path", path).
			Str("outcome", outcome).
			Msg("Backend call failed")
		return nil, err
	}

	g.log.Debug().
		Str("method", method).
		Str("path", path).
		Dur("elapsed", time.Since(start)).
		Msg("Backend call succeeded")
	return body, nil
}

func (g *Gateway) do(ctx context.Context, method, path string, in any) ([]byte, string, error) {
	var reqBody io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return nil, "internal", errors.Wrap(err, errors.ErrCodeInternal, "failed to marshal request")
		}
		reqBody = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, g.baseURL+path, reqBody)
	if err != nil {
		return nil, "internal", errors.Wrap(err, errors.ErrCodeInternal, "failed to build request")
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Request-ID", uuid.NewString())
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	token, err := g.creds.Token(ctx)
	if err != nil {
		return nil, "unauthorized", err
	}
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := g.http.Do(req)
	if err != nil {
		return nil, "transport", errors.Wrap(err, errors.ErrCodeTransport, "Impossible de joindre le serveur")
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, "transport", errors.Wrap(err, errors.ErrCodeTransport, "Réponse du serveur interrompue")
	}

	if resp.StatusCode == http.StatusUnauthorized {
		if err := g.creds.Invalidate(ctx); err != nil {
			g.log.Warn().Err(err).Msg("Failed to invalidate credential")
		}
		return nil, "unauthorized", &errors.Error{
			Code:    errors.ErrCodeUnauthorized,
			Message: "Session expirée, veuillez vous reconnecter",
		}
	}

	if resp.StatusCode == http.StatusNoContent && len(bytes.TrimSpace(body)) == 0 {
		return nil, "ok", nil
	}

	contentType := resp.Header.Get("Content-Type")
	if !isJSON(contentType) {
		if contentType == "" {
			contentType = "type inconnu"
		}
		return nil, "protocol", &errors.Error{
			Code: errors.ErrCodeProtocol,
			Message: fmt.Sprintf("Réponse inattendue du serveur (%s, HTTP %d) : JSON attendu, "+
				"vérifiez la configuration d'authentification ou de la passerelle", contentType, resp.StatusCode),
		}
	}

	if appErr := applicationError(resp.StatusCode, body); appErr != nil {
		if appErr.Code == errors.ErrCodeValidation {
			return nil, "validation", appErr
		}
		return nil, "application", appErr
	}
	return body, "ok", nil
}

func isJSON(contentType string) bool {
	mt, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return false
	}
	return mt == "application/json" || strings.HasSuffix(mt, "+json")
}

// applicationError returns the error a JSON response reports, or nil.
// Non-2xx statuses and {success:false} are errors; a non-empty errors map
// makes it a validation error.
func applicationError(status int, body []byte) *errors.Error {
	var env envelope
	isObject := bytes.HasPrefix(bytes.TrimSpace(body), []byte("{"))
	if isObject {
		if err := json.Unmarshal(body, &env); err != nil {
			return &errors.Error{
				Code:    errors.ErrCodeProtocol,
				Message: fmt.Sprintf("Réponse JSON illisible (HTTP %d)", status),
				Cause:   err,
			}
		}
	} else if len(bytes.TrimSpace(body)) > 0 && !json.Valid(body) {
		return &errors.Error{
			Code:    errors.ErrCodeProtocol,
			Message: fmt.Sprintf("Réponse JSON illisible (HTTP %d)", status),
		}
	}

	failed := status < 200 || status > 299
	if isObject && env.Success != nil && !*env.Success {
		failed = true
	}
	if !failed {
		return nil
	}

	if details := fieldMessages(env.Errors); len(details) > 0 {
		return errors.Validation(details...)
	}

	msg := env.Message
	if msg == "" {
		msg = rawString(env.Error)
	}
	if msg == "" {
		msg = fmt.Sprintf("Impossible de terminer l'opération (HTTP %d)", status)
	}
	return &errors.Error{Code: errors.ErrCodeApplication, Message: msg}
}

// fieldMessages flattens {"field": "msg"} or {"field": ["msg", ...]} or
// ["msg", ...] into a list of messages.
func fieldMessages(raw json.RawMessage) []string {
	if len(raw) == 0 || string(raw) == "null" {
		return nil
	}

	var list []string
	if err := json.Unmarshal(raw, &list); err == nil {
		return list
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		return nil
	}
	flat := make(map[string][]string, len(fields))
	for k, v := range fields {
		var many []string
		if err := json.Unmarshal(v, &many); err == nil {
			flat[k] = many
			continue
		}
		if one := rawString(v); one != "" {
			flat[k] = []string{one}
		}
	}
	return errors.FlattenFieldErrors(flat)
}

func rawString(raw json.RawMessage) string {
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return ""
	}
	return s
}

// decodeObject decodes a single resource, unwrapping {data: {...}} when
// present.
func decodeObject(body []byte, out any) error {
	if out == nil || len(body) == 0 {
		return nil
	}
	var env envelope
	if bytes.HasPrefix(bytes.TrimSpace(body), []byte("{")) {
		if err := json.Unmarshal(body, &env); err == nil && len(env.Data) > 0 && string(env.Data) != "null" {
			body = env.Data
		}
	}
	if err := json.Unmarshal(body, out); err != nil {
		return errors.Wrap(err, errors.ErrCodeProtocol, "Réponse du serveur au format inattendu")
	}
	return nil
}

// Get fetches a single resource
func (g *Gateway) Get(ctx context.Context, path string, out any) error {
	body, err := g.Do(ctx, http.MethodGet, path, nil)
	if err != nil {
		return err
	}
	return decodeObject(body, out)
}

// Post sends in and decodes the response into out (which may be nil)
func (g *Gateway) Post(ctx context.Context, path string, in, out any) error {
	body, err := g.Do(ctx, http.MethodPost, path, in)
	if err != nil {
		return err
	}
	return decodeObject(body, out)
}

// Put sends in and decodes the response into out (which may be nil)
func (g *Gateway) Put(ctx context.Context, path string, in, out any) error {
	body, err := g.Do(ctx, http.MethodPut, path, in)
	if err != nil {
		return err
	}
	return decodeObject(body, out)
}

// getList fetches a collection in any of the tolerated shapes
func getList[T any](ctx context.Context, g *Gateway, path string) ([]T, ListShape, error) {
	body, err := g.Do(ctx, http.MethodGet, path, nil)
	if err != nil {
		return nil, ShapeUnrecognized, err
	}
	return DecodeList[T](body)
}
