package models

import (
	"errors"
	"fmt"
)

var (
	// ErrOrderExists is returned when creating a transaction whose order id
	// is already taken. The existing record is never overwritten.
	ErrOrderExists = errors.New("order already exists")

	ErrOrderNotFound = errors.New("order not found")

	// ErrAlreadyCredited marks a redundant credit attempt; callers treat it
	// as success.
	ErrAlreadyCredited = errors.New("order already credited")

	// ErrSignatureInvalid covers both a missing and a mismatched webhook
	// signature. The expected digest is never included.
	ErrSignatureInvalid = errors.New("invalid webhook signature")

	// ErrBudgetExhausted means the poll budget ran out without a terminal
	// outcome from the gateway.
	ErrBudgetExhausted = errors.New("reconciliation attempt budget exhausted")
)

// ValidationError rejects bad input before any remote call is made.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// GatewayError is any failure talking to the payment gateway. Retryable
// errors (network failures, 5xx) may be re-attempted with backoff; permanent
// ones (4xx) are surfaced to the caller as-is.
type GatewayError struct {
	StatusCode int
	Body       string
	Retryable  bool
	Err        error
}

func (e *GatewayError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("gateway unavailable: %v", e.Err)
	}
	if e.Retryable {
		return fmt.Sprintf("gateway unavailable: status %d", e.StatusCode)
	}
	return fmt.Sprintf("gateway rejected request: status %d", e.StatusCode)
}

func (e *GatewayError) Unwrap() error { return e.Err }

// IsGatewayUnavailable reports whether err is a transient gateway failure.
func IsGatewayUnavailable(err error) bool {
	var ge *GatewayError
	return errors.As(err, &ge) && ge.Retryable
}

// IsGatewayRejected reports whether the gateway refused the request outright.
func IsGatewayRejected(err error) bool {
	var ge *GatewayError
	return errors.As(err, &ge) && !ge.Retryable
}
