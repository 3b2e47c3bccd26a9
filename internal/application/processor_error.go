package application

import (
	"errors"
	"fmt"
)

// ErrorKind classifies processor failures for retry and reconciliation
// decisions.
type ErrorKind string

const (
	// KindDeclined is permanent; retrying the same request cannot succeed.
	KindDeclined ErrorKind = "DECLINED"
	// KindTransient is a network or processor outage; safe to retry with the
	// same idempotency key.
	KindTransient ErrorKind = "TRANSIENT"
	// KindInvalidState means the processor disagrees with local state; the
	// caller must reconcile, not blindly retry.
	KindInvalidState ErrorKind = "INVALID_STATE"
)

type ProcessorError struct {
	Code       string
	Message    string
	StatusCode int
}

func (e *ProcessorError) Error() string {
	return fmt.Sprintf("processor error [%s]: %s (status: %d)", e.Code, e.Message, e.StatusCode)
}

// Kind maps processor error codes and HTTP statuses onto the engine's
// taxonomy.
func (e *ProcessorError) Kind() ErrorKind {
	if e.StatusCode >= 500 {
		return KindTransient
	}

	switch e.Code {
	case "card_declined", "insufficient_funds", "card_expired", "invalid_card",
		"fraud_suspected", "amount_too_large":
		return KindDeclined
	case "hold_already_captured", "hold_already_canceled", "hold_expired",
		"hold_not_found":
		return KindInvalidState
	case "internal_error", "rate_limited":
		return KindTransient
	default:
		return KindDeclined
	}
}

func (e *ProcessorError) IsRetryable() bool {
	return e.Kind() == KindTransient
}

func IsProcessorError(err error) (*ProcessorError, bool) {
	var procErr *ProcessorError
	ok := errors.As(err, &procErr)
	return procErr, ok
}
