package mailerr

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"go.uber.org/multierr"
)

// Kind classifies errors surfaced to callers of the mailer.
type Kind string

const (
	KindValidation    Kind = "validation"
	KindConfiguration Kind = "configuration"
	KindNotFound      Kind = "not_found"
	KindConflict      Kind = "conflict"
	KindDelivery      Kind = "delivery"
	KindInternal      Kind = "internal"
)

// Error is the error type returned by the delivery engine, the router and the
// stores. Validation errors carry every violation found, not just the first.
type Error struct {
	Kind       Kind     `json:"kind"`
	Message    string   `json:"message"`
	Violations []string `json:"violations,omitempty"`
	Cause      error    `json:"-"`
}

func (e *Error) Error() string {
	msg := e.Message
	if len(e.Violations) > 0 {
		msg += ": " + strings.Join(e.Violations, "; ")
	}
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// HTTPStatus maps the error kind onto a response status.
func (e *Error) HTTPStatus() int {
	switch e.Kind {
	case KindValidation, KindConfiguration:
		return http.StatusBadRequest
	case KindNotFound:
		return http.StatusNotFound
	case KindConflict:
		return http.StatusConflict
	case KindDelivery:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// New creates an error of the given kind.
func New(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap creates an error of the given kind around cause.
func Wrap(kind Kind, cause error, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), Cause: cause}
}

// Validation turns an accumulated multierr into a validation error listing
// every violation.
func Validation(message string, err error) *Error {
	var violations []string
	for _, e := range multierr.Errors(err) {
		violations = append(violations, e.Error())
	}
	return &Error{Kind: KindValidation, Message: message, Violations: violations}
}

// NotFound creates a not-found error.
func NotFound(format string, args ...any) *Error {
	return New(KindNotFound, format, args...)
}

// Is reports whether err is an *Error of the given kind.
func Is(err error, kind Kind) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind == kind
	}
	return false
}
