package domain

import (
	"errors"
	"fmt"
)

// DomainError represents a business logic error
type DomainError struct {
	Code    string
	Message string
	Err     error
}

func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

// Unwrap returns the underlying error for errors.Is/As support
func (e *DomainError) Unwrap() error {
	return e.Err
}

// Domain error codes
const (
	ErrCodeInvalidAmount        = "INVALID_AMOUNT"
	ErrCodeDuplicateActiveHold  = "DUPLICATE_ACTIVE_HOLD"
	ErrCodeDeclined             = "DECLINED"
	ErrCodeAlreadyTerminal      = "ALREADY_TERMINAL"
	ErrCodeVersionConflict      = "VERSION_CONFLICT"
	ErrCodeHoldExpired          = "HOLD_EXPIRED"
	ErrCodeHoldNotFound         = "HOLD_NOT_FOUND"
	ErrCodeInvalidTransition    = "INVALID_TRANSITION"
	ErrCodeStaleEvent           = "STALE_EVENT"
	ErrCodeMissingRequiredField = "MISSING_REQUIRED_FIELD"
)

func NewInvalidAmountError(amount int64) *DomainError {
	return &DomainError{
		Code:    ErrCodeInvalidAmount,
		Message: fmt.Sprintf("invalid amount %d", amount),
	}
}

func NewAmountOutOfBoundsError(amount, min, max int64) *DomainError {
	return &DomainError{
		Code:    ErrCodeInvalidAmount,
		Message: fmt.Sprintf("amount %d outside allowed range [%d, %d]", amount, min, max),
	}
}

func NewDuplicateActiveHoldError(orderID string) *DomainError {
	return &DomainError{
		Code:    ErrCodeDuplicateActiveHold,
		Message: fmt.Sprintf("an active hold already exists for order %s", orderID),
	}
}

func NewDeclinedError(holdID string, err error) *DomainError {
	return &DomainError{
		Code:    ErrCodeDeclined,
		Message: fmt.Sprintf("processor declined hold %s", holdID),
		Err:     err,
	}
}

func NewAlreadyTerminalError(holdID string, state HoldState) *DomainError {
	return &DomainError{
		Code:    ErrCodeAlreadyTerminal,
		Message: fmt.Sprintf("hold %s is already %s", holdID, state),
	}
}

func NewVersionConflictError(holdID string) *DomainError {
	return &DomainError{
		Code:    ErrCodeVersionConflict,
		Message: fmt.Sprintf("hold %s was modified concurrently", holdID),
	}
}

func NewHoldExpiredError(holdID string) *DomainError {
	return &DomainError{
		Code:    ErrCodeHoldExpired,
		Message: fmt.Sprintf("hold %s has expired", holdID),
	}
}

func NewHoldNotFoundError(id string) *DomainError {
	return &DomainError{
		Code:    ErrCodeHoldNotFound,
		Message: fmt.Sprintf("hold with ID %s not found", id),
	}
}

func NewInvalidTransitionError(from, to HoldState) *DomainError {
	return &DomainError{
		Code:    ErrCodeInvalidTransition,
		Message: fmt.Sprintf("cannot transition from %s to %s", from, to),
	}
}

func NewStaleEventError(eventID string) *DomainError {
	return &DomainError{
		Code:    ErrCodeStaleEvent,
		Message: fmt.Sprintf("event %s is not newer than the last reconciled event", eventID),
	}
}

func NewMissingRequiredFieldError(field string) *DomainError {
	return &DomainError{
		Code:    ErrCodeMissingRequiredField,
		Message: fmt.Sprintf("%s is required", field),
	}
}

// IsErrorCode checks if an error is a DomainError with a specific code
func IsErrorCode(err error, code string) bool {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Code == code
	}
	return false
}
