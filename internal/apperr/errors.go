// Package apperr classifies errors that cross package boundaries so that
// handlers and the pipeline can react to the failure class rather than the text.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind is the failure class of an Error.
type Kind string

const (
	KindValidation          Kind = "validation"
	KindNotFound            Kind = "not_found"
	KindUnauthorized        Kind = "unauthorized"
	KindProviderUnavailable Kind = "provider_unavailable"
	KindProviderFailure     Kind = "provider_failure"
	KindStorageFailure      Kind = "storage_failure"
	KindServiceUnavailable  Kind = "service_unavailable"
	KindInvalidTransition   Kind = "invalid_transition"
	KindInternal            Kind = "internal"
)

// Error carries a Kind alongside a human-readable message and an optional cause.
type Error struct {
	Kind    Kind   `json:"kind"`
	Message string `json:"message"`
	Err     error  `json:"-"`
}

func (e *Error) Error() string {
	switch {
	case e.Message != "" && e.Err != nil:
		return e.Message + ": " + e.Err.Error()
	case e.Message != "":
		return e.Message
	case e.Err != nil:
		return e.Err.Error()
	}
	return string(e.Kind)
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches another *Error by Kind, so errors.Is(err, apperr.ErrNotFound) works
// for any not-found error regardless of message.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind && t.Message == "" && t.Err == nil
}

// Sentinels usable with errors.Is.
var (
	ErrValidation          = &Error{Kind: KindValidation}
	ErrNotFound            = &Error{Kind: KindNotFound}
	ErrUnauthorized        = &Error{Kind: KindUnauthorized}
	ErrProviderUnavailable = &Error{Kind: KindProviderUnavailable}
	ErrProviderFailure     = &Error{Kind: KindProviderFailure}
	ErrStorageFailure      = &Error{Kind: KindStorageFailure}
	ErrServiceUnavailable  = &Error{Kind: KindServiceUnavailable}
	ErrInvalidTransition   = &Error{Kind: KindInvalidTransition}
)

func New(kind Kind, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

func Wrap(kind Kind, err error, format string, args ...interface{}) *Error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), Err: err}
}

func Validation(format string, args ...interface{}) *Error {
	return New(KindValidation, format, args...)
}

func NotFound(what string) *Error {
	return New(KindNotFound, "%s not found", what)
}

func Unauthorized(format string, args ...interface{}) *Error {
	return New(KindUnauthorized, format, args...)
}

// KindOf returns the Kind of the first *Error in err's chain, or KindInternal.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// Message returns the message of the first *Error in the chain, falling back to err.Error().
func Message(err error) string {
	var e *Error
	if errors.As(err, &e) && e.Message != "" {
		return e.Message
	}
	if err != nil {
		return err.Error()
	}
	return ""
}

// HTTPStatus maps an error to the status code the API responds with.
func HTTPStatus(err error) int {
	switch KindOf(err) {
	case KindValidation:
		return http.StatusBadRequest
	case KindNotFound:
		return http.StatusNotFound
	case KindUnauthorized:
		return http.StatusUnauthorized
	case KindProviderUnavailable:
		return http.StatusServiceUnavailable
	case KindProviderFailure, KindServiceUnavailable:
		return http.StatusBadGateway
	case KindInvalidTransition:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}
