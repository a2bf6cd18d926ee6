package api

import (
	"errors"
	"fmt"
)

// Kind classifies a mutation failure.
type Kind int

const (
	// KindTransport covers network errors and unrecognized non-2xx replies.
	KindTransport Kind = iota
	// KindUnauthorized is a 401; the session token has been cleared.
	KindUnauthorized
	// KindConflict is an optimistic-concurrency rejection. Never retried
	// automatically; the caller refetches and retries.
	KindConflict
	// KindValidation is a client-side pre-submit failure that never reached
	// the network.
	KindValidation
)

func (k Kind) String() string {
	switch k {
	case KindUnauthorized:
		return "unauthorized"
	case KindConflict:
		return "conflict"
	case KindValidation:
		return "validation"
	}
	return "transport"
}

// Error is a typed mutation failure carrying the server's message when one
// was present.
type Error struct {
	Kind    Kind
	Message string
	Status  int // HTTP status, zero for client-side failures
}

func (e *Error) Error() string {
	if e.Status > 0 {
		return fmt.Sprintf("%s (%d): %s", e.Kind, e.Status, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func errOf(kind Kind, status int, msg string) *Error {
	return &Error{Kind: kind, Message: msg, Status: status}
}

// KindOf returns the failure kind, or KindTransport for untyped errors.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindTransport
}

// IsUnauthorized reports whether err is a 401 failure.
func IsUnauthorized(err error) bool {
	var e *Error
	return errors.As(err, &e) && e.Kind == KindUnauthorized
}

// IsConflict reports whether err is a version-conflict failure.
func IsConflict(err error) bool {
	var e *Error
	return errors.As(err, &e) && e.Kind == KindConflict
}

// IsValidation reports whether err is a client-side validation failure.
func IsValidation(err error) bool {
	var e *Error
	return errors.As(err, &e) && e.Kind == KindValidation
}
