package domain

import (
	"errors"
	"fmt"
)

// Sentinel errors. Callers classify failures with errors.Is.
var (
	ErrZeroAmount               = errors.New("zero amount")
	ErrInvalidAmount            = errors.New("invalid amount")
	ErrZeroAddress              = errors.New("zero address")
	ErrUnauthorized             = errors.New("unauthorized")
	ErrInvalidRateMode          = errors.New("invalid rate mode")
	ErrIntegrationNotConfigured = errors.New("integration not configured")
	ErrReentrancy               = errors.New("reentrant call")
	ErrInvalidPath              = errors.New("invalid swap path")
	ErrInvalidFeeTier           = errors.New("invalid fee tier")
	ErrInvalidIntegrationResult = errors.New("invalid integration result")
	ErrNotFound                 = errors.New("not found")
)

// ErrorKind is a coarse-grained categorization for errors.
type ErrorKind string

const (
	KindValidation  ErrorKind = "validation"
	KindAccess      ErrorKind = "access"
	KindGuard       ErrorKind = "guard"
	KindIntegration ErrorKind = "integration"
	KindCustody     ErrorKind = "custody"
	KindStorage     ErrorKind = "storage"
)

// OpError wraps an underlying error with the operation and a kind.
type OpError struct {
	Op    Operation
	Kind  ErrorKind
	Field string // Optional: offending input
	Err   error
}

func (e *OpError) Error() string {
	if e == nil {
		return "<nil>"
	}

	base := fmt.Sprintf("%s: %s", e.Op, e.Kind)
	if e.Field != "" {
		base += fmt.Sprintf(" (field=%s)", e.Field)
	}
	if e.Err != nil {
		base += fmt.Sprintf(": %v", e.Err)
	}
	return base
}

func (e *OpError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// NewOpError builds an OpError.
func NewOpError(op Operation, kind ErrorKind, field string, err error) *OpError {
	return &OpError{Op: op, Kind: kind, Field: field, Err: err}
}

// IsKind helps callers classify errors without depending on the dispatcher.
func IsKind(err error, kind ErrorKind) bool {
	var oe *OpError
	if errors.As(err, &oe) {
		return oe.Kind == kind
	}
	return false
}

// KindOf returns the kind of the outermost OpError in err's chain, or "" if none.
func KindOf(err error) ErrorKind {
	var oe *OpError
	if errors.As(err, &oe) {
		return oe.Kind
	}
	return ""
}
