// Package apperr carries the error kinds every handler reports and the
// single mapping from kind to HTTP status.
package apperr

import (
	"errors"
	"net/http"
)

type Kind string

const (
	KindNotFound         Kind = "not_found"
	KindBadRequest       Kind = "bad_request"
	KindUnauthorized     Kind = "unauthorized"
	KindForbidden        Kind = "forbidden"
	KindConflict         Kind = "conflict"
	KindCapacityExceeded Kind = "capacity_exceeded"
	KindInternal         Kind = "internal"
)

// Status returns the HTTP status code for the kind.
func (k Kind) Status() int {
	switch k {
	case KindNotFound:
		return http.StatusNotFound
	case KindBadRequest:
		return http.StatusBadRequest
	case KindUnauthorized:
		return http.StatusUnauthorized
	case KindForbidden:
		return http.StatusForbidden
	case KindConflict, KindCapacityExceeded:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// Error is a client-safe message plus an optional internal cause.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

func New(kind Kind, msg string) *Error { return &Error{Kind: kind, Message: msg} }

func Wrap(kind Kind, msg string, err error) *Error {
	return &Error{Kind: kind, Message: msg, Err: err}
}

func NotFound(msg string) *Error         { return New(KindNotFound, msg) }
func BadRequest(msg string) *Error       { return New(KindBadRequest, msg) }
func Unauthorized(msg string) *Error     { return New(KindUnauthorized, msg) }
func Forbidden(msg string) *Error        { return New(KindForbidden, msg) }
func Conflict(msg string) *Error         { return New(KindConflict, msg) }
func CapacityExceeded(msg string) *Error { return New(KindCapacityExceeded, msg) }

// Internal hides err from clients behind msg.
func Internal(msg string, err error) *Error { return Wrap(KindInternal, msg, err) }

// KindOf reports the kind of err, KindInternal for anything unclassified.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// Message is the text safe to show a client.
func Message(err error) string {
	var e *Error
	if errors.As(err, &e) && e.Message != "" {
		return e.Message
	}
	return "Something went wrong. Try again later."
}
