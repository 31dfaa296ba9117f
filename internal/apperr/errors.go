// Package apperr defines the typed error taxonomy surfaced by the
// scheduling and execution engines. Every error carries a machine-readable
// kind plus a human message; handlers map kinds to HTTP statuses.
package apperr

import (
	"errors"
	"fmt"
)

// Kind identifies the category of an error
type Kind string

const (
	KindValidation             Kind = "validation_error"
	KindNotFound               Kind = "not_found"
	KindInvalidStateTransition Kind = "invalid_state_transition"
	KindAccessDenied           Kind = "access_denied"
	KindInsufficientStock      Kind = "insufficient_stock"
	KindContractInactive       Kind = "contract_inactive"
	KindContractExpired        Kind = "contract_expired"
)

// Error is a typed application error
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Validationf creates a validation error
func Validationf(format string, args ...interface{}) *Error {
	return &Error{Kind: KindValidation, Message: fmt.Sprintf(format, args...)}
}

// NotFound creates a not-found error. It is deliberately used both for
// missing entities and for entities outside the caller's access scope, so
// existence never leaks across tenants or branches.
func NotFound(entity string) *Error {
	return &Error{Kind: KindNotFound, Message: entity + " not found"}
}

// InvalidStateTransition creates a state machine violation error naming the
// current and the attempted state.
func InvalidStateTransition(from, to string) *Error {
	return &Error{
		Kind:    KindInvalidStateTransition,
		Message: fmt.Sprintf("invalid state transition from %q to %q", from, to),
	}
}

// AccessDenied creates an explicit branch/role check failure
func AccessDenied(format string, args ...interface{}) *Error {
	return &Error{Kind: KindAccessDenied, Message: fmt.Sprintf(format, args...)}
}

// InsufficientStock creates a stock shortfall error naming the product and
// the available vs required quantities.
func InsufficientStock(product string, available, required int) *Error {
	return &Error{
		Kind:    KindInsufficientStock,
		Message: fmt.Sprintf("insufficient stock for product %s: available %d, required %d", product, available, required),
	}
}

// ContractInactive creates an error for operations that require an active contract
func ContractInactive(status string) *Error {
	return &Error{Kind: KindContractInactive, Message: fmt.Sprintf("contract is not active (status %q)", status)}
}

// ContractExpired creates an error for operations against an expired contract
func ContractExpired(endDate string) *Error {
	return &Error{Kind: KindContractExpired, Message: fmt.Sprintf("contract expired on %s", endDate)}
}

// KindOf returns the kind of err, or the empty kind for untyped errors
func KindOf(err error) Kind {
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Kind
	}
	return ""
}

// IsKind reports whether err is an application error of the given kind
func IsKind(err error, kind Kind) bool {
	return KindOf(err) == kind
}
