// Package apperr is the error taxonomy shared by services, middleware and
// handlers. Every error that reaches the HTTP boundary is converted to an
// *Error so the response status and message are derived from its Kind.
package apperr

import (
	"errors"
	"net/http"
)

type Kind string

const (
	KindValidation         Kind = "validation"
	KindInvalidCredentials Kind = "invalid_credentials"
	KindWrongPassword      Kind = "wrong_password"
	KindCodeMismatch       Kind = "code_mismatch"
	KindInvalidActivation  Kind = "invalid_activation"
	KindExpiredActivation  Kind = "expired_activation"
	KindUnauthenticated    Kind = "unauthenticated"
	KindInvalidToken       Kind = "invalid_or_expired_token"
	KindSessionNotActive   Kind = "session_not_active"
	KindForbidden          Kind = "forbidden"
	KindNotFound           Kind = "not_found"
	KindUserNotFound       Kind = "user_not_found"
	KindConfiguration      Kind = "configuration"
	KindInternal           Kind = "internal"
)

// Error carries a client-safe message. Cause is for logs only.
type Error struct {
	Kind    Kind
	Message string
	Cause   error
}

func (e *Error) Error() string { return e.Message }

func (e *Error) Unwrap() error { return e.Cause }

// Status maps the kind to an HTTP status code.
func (e *Error) Status() int {
	return StatusOf(e.Kind)
}

func StatusOf(kind Kind) int {
	switch kind {
	case KindValidation, KindInvalidCredentials, KindWrongPassword,
		KindCodeMismatch, KindInvalidActivation, KindExpiredActivation:
		return http.StatusBadRequest
	case KindUnauthenticated, KindInvalidToken, KindSessionNotActive:
		return http.StatusUnauthorized
	case KindForbidden:
		return http.StatusForbidden
	case KindNotFound, KindUserNotFound:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

func Wrap(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, Cause: cause}
}

func Validation(message string) *Error {
	return New(KindValidation, message)
}

func NotFound(message string) *Error {
	return New(KindNotFound, message)
}

func Forbidden(message string) *Error {
	return New(KindForbidden, message)
}

// Internal hides the cause behind a generic message.
func Internal(cause error) *Error {
	return Wrap(KindInternal, "Internal server error", cause)
}

// As extracts the *Error from err's chain, or nil.
func As(err error) *Error {
	var ae *Error
	if errors.As(err, &ae) {
		return ae
	}
	return nil
}

func IsKind(err error, kind Kind) bool {
	ae := As(err)
	return ae != nil && ae.Kind == kind
}

// From converts any error to an *Error, treating unknown errors as internal.
func From(err error) *Error {
	if err == nil {
		return nil
	}
	if ae := As(err); ae != nil {
		return ae
	}
	return Internal(err)
}
