package service

import (
	"github.com/pesio-ai/be-ap-payment-orders/internal/errors"
)

// NoticeLevel is the severity of a notice
type NoticeLevel string

const (
	NoticeSuccess NoticeLevel = "success"
	NoticeInfo    NoticeLevel = "info"
	NoticeWarning NoticeLevel = "warning"
	NoticeError   NoticeLevel = "error"
)

const (
	msgReauth  = "Session expirée, veuillez vous reconnecter"
	msgGeneric = "Impossible de terminer l'opération"
)

// Notice is the transient message shown to the operator after an action
type Notice struct {
	Level   NoticeLevel `json:"level"`
	Message string      `json:"message"`
	Code    errors.Code `json:"code,omitempty"`
}

// NoticeFor flattens an action error into the message shown to the operator.
// Validation and backend messages are passed through verbatim.
func NoticeFor(err error) Notice {
	var e *errors.Error
	if !errors.As(err, &e) {
		return Notice{Level: NoticeError, Message: msgGeneric + ": " + err.Error(), Code: errors.ErrCodeInternal}
	}

	switch e.Code {
	case errors.ErrCodeValidation, errors.ErrCodeInvalidInput:
		return Notice{Level: NoticeWarning, Message: e.Message, Code: e.Code}
	case errors.ErrCodeUnauthorized:
		return Notice{Level: NoticeWarning, Message: msgReauth, Code: e.Code}
	case errors.ErrCodeBusy, errors.ErrCodeOrderNotPersisted, errors.ErrCodeUnknownOperationType:
		return Notice{Level: NoticeInfo, Message: e.Message, Code: e.Code}
	case errors.ErrCodeTransport:
		return Notice{Level: NoticeError, Message: msgGeneric + ": " + e.Error(), Code: e.Code}
	case errors.ErrCodeApplication, errors.ErrCodeProtocol:
		return Notice{Level: NoticeError, Message: e.Message, Code: e.Code}
	}

	msg := e.Message
	if msg == "" {
		msg = msgGeneric
	}
	return Notice{Level: NoticeError, Message: msg, Code: e.Code}
}

func successNotice(msg string) *Notice {
	return &Notice{Level: NoticeSuccess, Message: msg}
}
