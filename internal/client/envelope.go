package client

import (
	"bytes"
	"encoding/json"

	"github.com/pesio-ai/be-ap-payment-orders/internal/errors"
)

// ListShape tags which response shape a collection arrived in
type ListShape int

const (
	ShapeUnrecognized ListShape = iota
	ShapeBareArray              // [...]
	ShapeSuccessData            // {"success": true, "data": [...]}
	ShapeData                   // {"data": [...]}
)

func (s ListShape) String() string {
	switch s {
	case ShapeBareArray:
		return "bare_array"
	case ShapeSuccessData:
		return "success_data"
	case ShapeData:
		return "data"
	}
	return "unrecognized"
}

// ErrUnrecognizedShape is returned for a collection response that matches
// none of the tolerated shapes.
var ErrUnrecognizedShape = errors.New(errors.ErrCodeProtocol, "")

type shapeMatcher struct {
	shape ListShape
	match func(body []byte) (json.RawMessage, bool)
}

func isArray(raw []byte) bool {
	return bytes.HasPrefix(bytes.TrimSpace(raw), []byte("["))
}

// listMatchers are tried in order; the first match wins.
var listMatchers = []shapeMatcher{
	{ShapeBareArray, func(body []byte) (json.RawMessage, bool) {
		return body, isArray(body)
	}},
	{ShapeData, func(body []byte) (json.RawMessage, bool) {
		var env struct {
			Success *bool           `json:"success"`
			Data    json.RawMessage `json:"data"`
		}
		if json.Unmarshal(body, &env) != nil || env.Success != nil || !isArray(env.Data) {
			return nil, false
		}
		return env.Data, true
	}},
	{ShapeSuccessData, func(body []byte) (json.RawMessage, bool) {
		var env struct {
			Success *bool           `json:"success"`
			Data    json.RawMessage `json:"data"`
		}
		if json.Unmarshal(body, &env) != nil || env.Success == nil || !isArray(env.Data) {
			return nil, false
		}
		return env.Data, true
	}},
}

// DecodeList decodes a collection delivered as a bare array, as
// {data: [...]}, or as {success, data: [...]}. Any other shape is an error
// and nothing is returned.
func DecodeList[T any](body []byte) ([]T, ListShape, error) {
	for _, m := range listMatchers {
		raw, ok := m.match(body)
		if !ok {
			continue
		}
		var out []T
		if err := json.Unmarshal(raw, &out); err != nil {
			return nil, ShapeUnrecognized, errors.Wrap(err, errors.ErrCodeProtocol,
				"Liste reçue du serveur au format inattendu")
		}
		if out == nil {
			out = []T{}
		}
		return out, m.shape, nil
	}
	return nil, ShapeUnrecognized, errors.Wrap(ErrUnrecognizedShape, errors.ErrCodeProtocol,
		"Réponse du serveur au format inconnu : liste attendue")
}
