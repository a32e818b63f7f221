// Package apperr defines the error kinds exposed by the account backend and
// the mapping policy between internal failures and client-visible messages.
package apperr

import (
	"errors"
	"fmt"
)

// Kind classifies an error for transport mapping. The set is deliberately
// small: token-consuming flows collapse "wrong token" and "expired token"
// into one generic kind so the response does not reveal which occurred.
type Kind string

const (
	KindValidation     Kind = "VALIDATION_ERROR"
	KindAuthentication Kind = "AUTHENTICATION_ERROR"
	KindTokenExpired   Kind = "TOKEN_EXPIRED"
	KindRateLimited    Kind = "RATE_LIMITED"
	KindConflict       Kind = "CONFLICT"
	KindNotFound       Kind = "NOT_FOUND"
	KindInternal       Kind = "INTERNAL_ERROR"
)

// Error is the only error shape that crosses the transport boundary.
// Message is safe to show to clients; the wrapped cause is not.
type Error struct {
	Kind    Kind
	Message string
	// Fields holds aggregated per-field violations for KindValidation.
	Fields map[string]string
	cause  error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.cause }

// New creates an Error with a client-safe message.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Wrap attaches an internal cause that must never reach the client.
func Wrap(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, cause: cause}
}

// Validation creates a KindValidation error carrying all field violations.
func Validation(fields map[string]string) *Error {
	return &Error{
		Kind:    KindValidation,
		Message: "invalid input",
		Fields:  fields,
	}
}

// KindOf extracts the Kind from err, defaulting to KindInternal for
// anything that is not an *Error.
func KindOf(err error) Kind {
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Kind
	}
	return KindInternal
}

// MessageOf returns the client-safe message for err. Unclassified errors
// produce a generic message so internal detail never leaks.
func MessageOf(err error) string {
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Message
	}
	return "something went wrong, please try again"
}

// FieldsOf returns aggregated field violations, or nil.
func FieldsOf(err error) map[string]string {
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Fields
	}
	return nil
}
