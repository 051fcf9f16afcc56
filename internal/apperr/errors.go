// Package apperr defines the domain error taxonomy. Handlers return these
// unwrapped or via fmt.Errorf("%w"); cmd/server maps them once to stable
// HTTP status/code pairs.
package apperr

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

var (
	// ErrConfigurationMissing: a required setting (central exchange rate)
	// is absent or invalid. Fatal for the request, no retry.
	ErrConfigurationMissing = errors.New("required configuration missing")

	// ErrConflict: a concurrent writer won (duplicate number after retries
	// exhausted, or a second decision on the same approval request).
	ErrConflict = errors.New("conflict")

	// ErrIntegrityViolation: an audit checksum mismatch or a rejected
	// attempt to rewrite audit history. Always fatal, never ignored.
	ErrIntegrityViolation = errors.New("integrity violation")

	// ErrForbidden: the principal's role does not allow the operation
	// (e.g. deciding a request outside the chain's approver roles).
	ErrForbidden = errors.New("forbidden")
)

// ValidationError rejects malformed input before any write.
type ValidationError struct {
	Msg string
}

func (e *ValidationError) Error() string { return e.Msg }

func Validation(format string, args ...any) error {
	return &ValidationError{Msg: fmt.Sprintf(format, args...)}
}

// InsufficientBalanceError rejects an out entry that would drive the running
// balance negative while policy forbids it. No partial state is left behind.
type InsufficientBalanceError struct {
	Shortfall decimal.Decimal
}

func (e *InsufficientBalanceError) Error() string {
	return fmt.Sprintf("insufficient balance, short by %s", e.Shortfall.StringFixed(2))
}
