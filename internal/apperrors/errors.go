package apperrors

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies a domain error for transport mapping.
type Kind string

const (
	KindValidation    Kind = "validation_error"
	KindPermission    Kind = "permission_error"
	KindStateConflict Kind = "state_conflict"
	KindNotFound      Kind = "not_found"
	KindTransport     Kind = "transport_error"
)

// Error is a typed domain error. Code is a stable machine-readable
// identifier inside the kind, Message is human-readable.
type Error struct {
	Kind    Kind   `json:"-"`
	Code    string `json:"code"`
	Message string `json:"message"`
	wrapped error
}

func (e *Error) Error() string {
	if e.wrapped != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.wrapped)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.wrapped }

// Wrap attaches an underlying cause.
func (e *Error) Wrap(err error) *Error {
	return &Error{Kind: e.Kind, Code: e.Code, Message: e.Message, wrapped: err}
}

func Validation(code, message string) *Error {
	return &Error{Kind: KindValidation, Code: code, Message: message}
}

func Permission(code, message string) *Error {
	return &Error{Kind: KindPermission, Code: code, Message: message}
}

func StateConflict(code, message string) *Error {
	return &Error{Kind: KindStateConflict, Code: code, Message: message}
}

func NotFound(code, message string) *Error {
	return &Error{Kind: KindNotFound, Code: code, Message: message}
}

func Transport(code, message string) *Error {
	return &Error{Kind: KindTransport, Code: code, Message: message}
}

// IsKind reports whether err is a domain error of the given kind.
func IsKind(err error, kind Kind) bool {
	var de *Error
	if errors.As(err, &de) {
		return de.Kind == kind
	}
	return false
}

func IsValidation(err error) bool    { return IsKind(err, KindValidation) }
func IsPermission(err error) bool    { return IsKind(err, KindPermission) }
func IsStateConflict(err error) bool { return IsKind(err, KindStateConflict) }
func IsNotFound(err error) bool      { return IsKind(err, KindNotFound) }
func IsTransport(err error) bool     { return IsKind(err, KindTransport) }

// HTTPStatus maps a domain error to an HTTP status code. Unrecognized
// errors map to 500.
func HTTPStatus(err error) int {
	var de *Error
	if !errors.As(err, &de) {
		return http.StatusInternalServerError
	}
	switch de.Kind {
	case KindValidation:
		return http.StatusBadRequest
	case KindPermission:
		return http.StatusForbidden
	case KindStateConflict:
		return http.StatusConflict
	case KindNotFound:
		return http.StatusNotFound
	case KindTransport:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// CodeOf returns the machine-readable code of a domain error, or
// "internal_error" for anything else.
func CodeOf(err error) string {
	var de *Error
	if errors.As(err, &de) {
		return de.Code
	}
	return "internal_error"
}
