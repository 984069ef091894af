// Package errors defines the error taxonomy shared by the gateway, the
// workflow controller and the HTTP layer.
package errors

import (
	stderrors "errors"
	"fmt"
	"sort"
	"strings"
)

// Code classifies an error
type Code string

const (
	ErrCodeTransport            Code = "TRANSPORT"
	ErrCodeProtocol             Code = "PROTOCOL"
	ErrCodeApplication          Code = "APPLICATION"
	ErrCodeValidation           Code = "VALIDATION"
	ErrCodeUnauthorized         Code = "UNAUTHORIZED"
	ErrCodeOrderNotPersisted    Code = "ORDER_NOT_PERSISTED"
	ErrCodeUnknownOperationType Code = "UNKNOWN_OPERATION_TYPE"
	ErrCodeBusy                 Code = "BUSY"
	ErrCodeConflict             Code = "CONFLICT"
	ErrCodeInvalidInput         Code = "INVALID_INPUT"
	ErrCodeNotFound             Code = "NOT_FOUND"
	ErrCodeInternal             Code = "INTERNAL"
)

// Error is a classified error carrying a user-facing message
type Error struct {
	Code    Code
	Message string
	Field   string
	// Details holds field-level messages, in the order they were reported.
	Details []string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// Is matches two *Error values by code, so sentinel errors work with errors.Is.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Code == e.Code && (t.Message == "" || t.Message == e.Message)
}

// New creates a new error with the given code and message
func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Wrap wraps a cause with a code and message
func Wrap(err error, code Code, message string) *Error {
	return &Error{Code: code, Message: message, Cause: err}
}

// InvalidInput reports a bad value for a single field
func InvalidInput(field, message string) *Error {
	return &Error{Code: ErrCodeInvalidInput, Field: field, Message: message}
}

// Validation builds a validation error whose message is every detail joined
// verbatim.
func Validation(details ...string) *Error {
	return &Error{
		Code:    ErrCodeValidation,
		Message: strings.Join(details, "; "),
		Details: details,
	}
}

// FlattenFieldErrors flattens a backend field→messages map into an ordered
// list. Fields are sorted so the combined message is stable.
func FlattenFieldErrors(fields map[string][]string) []string {
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var out []string
	for _, k := range keys {
		for _, msg := range fields[k] {
			if msg != "" {
				out = append(out, msg)
			}
		}
	}
	return out
}

// CodeOf returns the code of the first *Error in err's chain, or
// ErrCodeInternal.
func CodeOf(err error) Code {
	var e *Error
	if stderrors.As(err, &e) {
		return e.Code
	}
	return ErrCodeInternal
}

// As is errors.As from the standard library.
func As(err error, target any) bool {
	return stderrors.As(err, target)
}

// Is is errors.Is from the standard library.
func Is(err, target error) bool {
	return stderrors.Is(err, target)
}
