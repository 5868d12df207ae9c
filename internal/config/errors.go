package config

import (
	"errors"
	"time"
)

// Sentinel errors for internal use.
var (
	ErrInvalidConfig        = errors.New("invalid configuration")
	ErrInvalidAddress       = errors.New("invalid payout address")
	ErrAttemptLimitExceeded = errors.New("settlement attempt limit exceeded")
	ErrRegistrationNotFound = errors.New("no registration for address")
	ErrDuplicateSettlement  = errors.New("settlement already recorded for deposit")
	ErrInsufficientReserve  = errors.New("insufficient payout reserve")
	ErrKeyFileNotSet        = errors.New("private key file path not configured")
	ErrTxReverted           = errors.New("transaction reverted")
	ErrReceiptTimeout       = errors.New("receipt polling timeout")
	ErrTransferFailed       = errors.New("token transfer broadcast failed")
	ErrPayoutNotFound       = errors.New("pending payout not found")
)

// TransientError wraps an error that should be retried.
type TransientError struct {
	Err        error
	RetryAfter time.Duration // 0 = use default backoff
}

func (e *TransientError) Error() string { return e.Err.Error() }
func (e *TransientError) Unwrap() error { return e.Err }

// NewTransientError wraps an error as transient (retriable).
func NewTransientError(err error) error {
	return &TransientError{Err: err}
}

// NewTransientErrorWithRetry wraps with explicit retry delay.
func NewTransientErrorWithRetry(err error, retryAfter time.Duration) error {
	return &TransientError{Err: err, RetryAfter: retryAfter}
}

// IsTransient returns true if the error is transient (retriable).
func IsTransient(err error) bool {
	var te *TransientError
	return errors.As(err, &te)
}

// GetRetryAfter returns the retry delay if set, or 0.
func GetRetryAfter(err error) time.Duration {
	var te *TransientError
	if errors.As(err, &te) {
		return te.RetryAfter
	}
	return 0
}

// Error codes returned in API responses.
const (
	ErrorInvalidConfig        = "ERROR_INVALID_CONFIG"
	ErrorInvalidAddress       = "ERROR_INVALID_ADDRESS"
	ErrorAttemptLimitExceeded = "ERROR_ATTEMPT_LIMIT_EXCEEDED"
	ErrorDatabase             = "ERROR_DATABASE"
	ErrorTxBroadcastFailed    = "ERROR_TX_BROADCAST_FAILED"
	ErrorTxReverted           = "ERROR_TX_REVERTED"
	ErrorReceiptTimeout       = "ERROR_RECEIPT_TIMEOUT"
	ErrorInsufficientReserve  = "ERROR_INSUFFICIENT_RESERVE"
)
