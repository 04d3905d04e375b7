package ports

import (
	"errors"
	"fmt"
)

// Standard application-level errors.
// Adapters should wrap underlying infrastructure errors with these standard errors.
var (
	// General Errors
	ErrUnknown         = errors.New("unknown error occurred")
	ErrInvalidRequest  = errors.New("invalid request parameters or format")
	ErrNotFound        = errors.New("resource not found")
	ErrTimeout         = errors.New("operation timed out")
	ErrContextCanceled = errors.New("operation canceled via context")
	ErrConfiguration   = errors.New("invalid or missing configuration")

	// Core taxonomy
	ErrInsufficientData      = errors.New("insufficient data")
	ErrTransient             = errors.New("transient failure")
	ErrValidation            = errors.New("request rejected by validation")
	ErrReconciliationTimeout = errors.New("reconciliation timed out")

	// Exchange Specific Errors
	ErrExchangeUnavailable  = errors.New("exchange API is unavailable")
	ErrConnectionFailed     = errors.New("failed to connect to the exchange")
	ErrRateLimited          = errors.New("API rate limit exceeded")
	ErrAuthenticationFailed = errors.New("exchange authentication failed (check API keys)")
	ErrInvalidAPIKeys       = errors.New("invalid API keys or permissions")
	ErrInsufficientFunds    = errors.New("insufficient funds for operation")
	ErrOrderNotFound        = errors.New("order not found on the exchange")
	ErrOrderPlacementFailed = errors.New("failed to place order")
	ErrBelowMinimum         = errors.New("order amount below exchange minimum")

	// Database Specific Errors
	ErrDuplicateEntry = errors.New("database record already exists")
	ErrDBConnection   = errors.New("database connection error")
	ErrQueryFailed    = errors.New("database query failed")
	ErrUpdateFailed   = errors.New("database update failed")
)

// APIError carries the raw code and message returned by an exchange.
type APIError struct {
	Code    int64
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("<APIError> code=%d, msg=%s", e.Code, e.Message)
}

var transientErrors = []error{
	ErrTransient, ErrTimeout, ErrRateLimited, ErrConnectionFailed, ErrExchangeUnavailable, ErrUnknown,
}

var validationErrors = []error{
	ErrValidation, ErrInvalidRequest, ErrInsufficientFunds, ErrOrderPlacementFailed, ErrBelowMinimum,
	ErrDuplicateEntry, ErrAuthenticationFailed, ErrInvalidAPIKeys,
}

// IsValidation reports whether err must not be retried.
// Validation wins over transient when an error wraps both.
func IsValidation(err error) bool {
	if err == nil {
		return false
	}
	for _, target := range validationErrors {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

// IsTransient reports whether err is worth retrying.
func IsTransient(err error) bool {
	if err == nil || IsValidation(err) || errors.Is(err, ErrContextCanceled) {
		return false
	}
	for _, target := range transientErrors {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
