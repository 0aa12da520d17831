package service

import (
	"errors"
	"fmt"
)

// Kind is the stable machine-readable classification of a domain
// failure. Handlers map kinds to HTTP status codes; the kind string is
// also returned to clients so they can branch without parsing
// messages.
type Kind string

const (
	KindConflict          Kind = "conflict"
	KindNotFound          Kind = "not_found"
	KindInvalidCredential Kind = "invalid_credential"
	KindUnverified        Kind = "unverified"
	KindInactive          Kind = "inactive"
	KindInvalidToken      Kind = "invalid_or_expired_token"
	KindRateLimited       Kind = "rate_limited"
	KindValidation        Kind = "validation_failed"
	KindUnexpected        Kind = "unexpected"
)

// Error is a domain failure with a stable kind and a human message.
// RetryAfter carries the remaining cooldown in seconds for
// KindRateLimited and is zero otherwise.
type Error struct {
	Kind       Kind
	Message    string
	RetryAfter int
	cause      error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.cause }

// E constructs a domain error of the given kind.
func E(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Wrap attaches an underlying cause to a domain error, preserved for
// logs but never surfaced to clients.
func Wrap(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, cause: cause}
}

// KindOf extracts the kind from err, or KindUnexpected for anything
// that is not a domain error.
func KindOf(err error) Kind {
	var de *Error
	if errors.As(err, &de) {
		return de.Kind
	}
	return KindUnexpected
}

// AsError returns the domain error inside err, if any.
func AsError(err error) (*Error, bool) {
	var de *Error
	ok := errors.As(err, &de)
	return de, ok
}
