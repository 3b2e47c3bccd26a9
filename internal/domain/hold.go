// Package domain encodes the funds-hold entity and its lifecycle.
package domain

import (
	"errors"
	"slices"
	"time"
)

// HoldState represents the current state of a hold in its lifecycle.
type HoldState string

const (
	StatePending    HoldState = "PENDING"
	StateAuthorized HoldState = "AUTHORIZED"
	StateCaptured   HoldState = "CAPTURED"
	StateCanceled   HoldState = "CANCELED"
	StateExpired    HoldState = "EXPIRED"
	StateFailed     HoldState = "FAILED"
)

// Hold is a funds pre-authorization placed against a client's payment
// instrument for a single order. Amount, order, creation time and deadline are
// fixed at creation; only the state and its bookkeeping fields move.
type Hold struct {
	ID          string
	OrderID     string
	ClientID    string
	AmountCents int64
	Currency    string
	State       HoldState

	// ProcessorRef is the processor-assigned identifier, set once the hold
	// is placed.
	ProcessorRef *string

	CreatedAt  time.Time
	ExpiresAt  time.Time
	CapturedAt *time.Time
	CanceledAt *time.Time

	// CapturedBy is the provider that accepted the order, set only on capture.
	CapturedBy *string

	// Version increments on every write; the store rejects writes against a
	// stale version.
	Version int64

	// LastEventID is the identifier of the last webhook event applied.
	LastEventID *string

	FailureCode  *string
	CancelReason *string
}

func NewHold(
	id string,
	orderID string,
	clientID string,
	amount Money,
	now time.Time,
	window time.Duration,
) (*Hold, error) {
	if id == "" {
		return nil, errors.New("hold ID is required")
	}
	if orderID == "" {
		return nil, errors.New("order ID is required")
	}
	if clientID == "" {
		return nil, errors.New("client ID is required")
	}
	if window <= 0 {
		return nil, errors.New("authorization window must be positive")
	}

	return &Hold{
		ID:          id,
		OrderID:     orderID,
		ClientID:    clientID,
		AmountCents: amount.Amount,
		Currency:    amount.Currency,
		State:       StatePending,
		CreatedAt:   now,
		ExpiresAt:   now.Add(window),
		Version:     1,
	}, nil
}

func (h *Hold) transition(target HoldState) error {
	if err := h.canTransitionTo(target); err != nil {
		return err
	}
	h.State = target
	return nil
}

// defines the edges of the hold state machine
func (h *Hold) canTransitionTo(target HoldState) error {
	switch h.State {
	case StatePending:
		// Cancel is permitted before the processor confirms, releasing the
		// order for a fresh attempt.
		return h.allow(target, StateAuthorized, StateFailed, StateCanceled)
	case StateAuthorized:
		return h.allow(target, StateCaptured, StateCanceled, StateExpired)
	}
	return NewInvalidTransitionError(h.State, target)
}

func (h *Hold) allow(target HoldState, allowed ...HoldState) error {
	if slices.Contains(allowed, target) {
		return nil
	}
	return NewInvalidTransitionError(h.State, target)
}

// Authorize records that the processor confirmed the hold.
func (h *Hold) Authorize(processorRef string) error {
	if err := h.transition(StateAuthorized); err != nil {
		return err
	}
	h.ProcessorRef = &processorRef
	return nil
}

// Fail records a processor decline while the hold was still pending.
func (h *Hold) Fail(code string) error {
	if err := h.transition(StateFailed); err != nil {
		return err
	}
	h.FailureCode = &code
	return nil
}

// Capture converts the hold into a funds transfer for the accepting provider.
func (h *Hold) Capture(providerID string, capturedAt time.Time) error {
	if err := h.transition(StateCaptured); err != nil {
		return err
	}
	h.CapturedAt = &capturedAt
	h.CapturedBy = &providerID
	return nil
}

// Cancel releases the hold before capture.
func (h *Hold) Cancel(canceledAt time.Time, reason string) error {
	if err := h.transition(StateCanceled); err != nil {
		return err
	}
	h.CanceledAt = &canceledAt
	if reason != "" {
		h.CancelReason = &reason
	}
	return nil
}

// ConfirmCaptured applies a processor-confirmed capture whose synchronous
// response was lost. CapturedBy stays as-is; the provider identity travels
// with the capture request, not the confirmation.
func (h *Hold) ConfirmCaptured(capturedAt time.Time) error {
	if h.State == StateCaptured {
		return nil
	}
	if err := h.transition(StateCaptured); err != nil {
		return err
	}
	h.CapturedAt = &capturedAt
	return nil
}

// Expire releases the hold because the deadline passed with no capture.
// Records CanceledAt so downstream consumers see when funds were released.
func (h *Hold) Expire(expiredAt time.Time) error {
	if err := h.transition(StateExpired); err != nil {
		return err
	}
	h.CanceledAt = &expiredAt
	return nil
}

// MarkReconciled records the last webhook event applied to this hold.
func (h *Hold) MarkReconciled(eventID string) {
	h.LastEventID = &eventID
}

func (h *Hold) IsTerminal() bool {
	switch h.State {
	case StateCaptured, StateCanceled, StateExpired, StateFailed:
		return true
	default:
		return false
	}
}

// IsActive reports whether the hold still counts against the one-active-hold-
// per-order rule.
func (h *Hold) IsActive() bool {
	return h.State == StatePending || h.State == StateAuthorized
}

func (h *Hold) IsExpired(now time.Time) bool {
	return !now.Before(h.ExpiresAt)
}

// CanCapture reports whether a capture attempt is currently permitted.
func (h *Hold) CanCapture(now time.Time) bool {
	return h.State == StateAuthorized && now.Before(h.ExpiresAt)
}

// CanCancel reports whether a cancel attempt would change state.
func (h *Hold) CanCancel() bool {
	return h.State == StatePending || h.State == StateAuthorized
}

// Reconstitute - special constructor for loading from the store.
func Reconstitute(
	id string, orderID string, clientID string,
	amount int64, currency string,
	state HoldState,
	processorRef *string,
	createdAt, expiresAt time.Time,
	capturedAt, canceledAt *time.Time,
	capturedBy *string,
	version int64,
	lastEventID *string,
	failureCode *string,
	cancelReason *string,
) *Hold {
	return &Hold{
		ID:           id,
		OrderID:      orderID,
		ClientID:     clientID,
		AmountCents:  amount,
		Currency:     currency,
		State:        state,
		ProcessorRef: processorRef,
		CreatedAt:    createdAt,
		ExpiresAt:    expiresAt,
		CapturedAt:   capturedAt,
		CanceledAt:   canceledAt,
		CapturedBy:   capturedBy,
		Version:      version,
		LastEventID:  lastEventID,
		FailureCode:  failureCode,
		CancelReason: cancelReason,
	}
}
