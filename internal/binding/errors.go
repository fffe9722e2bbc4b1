package binding

import (
	"errors"
	"fmt"
)

// ErrorKind classifies binding engine failures. Callers branch on the kind;
// the engine never uses panics or sentinel strings for control flow.
type ErrorKind string

const (
	KindBusinessNotVerified  ErrorKind = "business_not_verified"
	KindFingerprintMalformed ErrorKind = "fingerprint_malformed"
	KindBindingConflict      ErrorKind = "binding_conflict"
	KindIssuanceFailed       ErrorKind = "issuance_failed"
	KindNotBound             ErrorKind = "not_bound"
	KindSuspended            ErrorKind = "suspended"
	KindInvalid              ErrorKind = "invalid"
	KindGatewayUnavailable   ErrorKind = "gateway_unavailable"
)

// Invalid reasons carried by KindInvalid errors
const (
	ReasonMismatch      = "mismatch"
	ReasonExpired       = "expired"
	ReasonRevoked       = "revoked"
	ReasonClaimMismatch = "claim_mismatch"
)

// Error is a typed binding engine failure
type Error struct {
	Kind   ErrorKind
	Reason string
	Err    error
}

// Error implements the error interface
func (e *Error) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("%s: %s", e.Kind, e.Reason)
	}
	return string(e.Kind)
}

// Unwrap exposes the wrapped cause, if any
func (e *Error) Unwrap() error {
	return e.Err
}

// NewError creates a typed binding error
func NewError(kind ErrorKind, reason string) *Error {
	return &Error{Kind: kind, Reason: reason}
}

// WrapError creates a typed binding error around a cause
func WrapError(kind ErrorKind, reason string, err error) *Error {
	return &Error{Kind: kind, Reason: reason, Err: err}
}

// AsError extracts a typed binding error from an error chain
func AsError(err error) (*Error, bool) {
	var bindingErr *Error
	if errors.As(err, &bindingErr) {
		return bindingErr, true
	}
	return nil, false
}

// KindOf returns the kind of a binding error, or "" for other errors
func KindOf(err error) ErrorKind {
	if bindingErr, ok := AsError(err); ok {
		return bindingErr.Kind
	}
	return ""
}
