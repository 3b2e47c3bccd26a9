package application

import (
	"context"
	"errors"
	"time"

	"github.com/servilink/payhold/internal/domain"
)

// ErrDuplicateEvent signals webhook redelivery of an event already recorded.
var ErrDuplicateEvent = errors.New("processor event already recorded")

// ProcessorClient is the port for the external payment processor. Every
// mutating call carries an idempotency key so network-level retries never
// duplicate a financial effect.
type ProcessorClient interface {
	CreateHold(ctx context.Context, req CreateHoldRequest, idempotencyKey string) (*CreateHoldResponse, error)
	Capture(ctx context.Context, processorRef string, idempotencyKey string) (*CaptureResponse, error)
	Cancel(ctx context.Context, processorRef string, idempotencyKey string) (*CancelResponse, error)
	GetHold(ctx context.Context, processorRef string) (*HoldStatusResponse, error)
}

type CreateHoldRequest struct {
	AmountCents int64             `json:"amount_cents"`
	Currency    string            `json:"currency"`
	Metadata    map[string]string `json:"metadata,omitempty"`
}

type CreateHoldResponse struct {
	ProcessorRef string    `json:"hold_id"`
	Status       string    `json:"status"`
	CreatedAt    time.Time `json:"created_at"`
}

type CaptureResponse struct {
	ProcessorRef string    `json:"hold_id"`
	Status       string    `json:"status"`
	CapturedAt   time.Time `json:"captured_at"`
}

type CancelResponse struct {
	ProcessorRef string    `json:"hold_id"`
	Status       string    `json:"status"`
	CanceledAt   time.Time `json:"canceled_at"`
}

type HoldStatusResponse struct {
	ProcessorRef string    `json:"hold_id"`
	Status       string    `json:"status"`
	AmountCents  int64     `json:"amount_cents"`
	ExpiresAt    time.Time `json:"expires_at"`
}

// HoldRepository is the port for persistence. Update enforces the optimistic
// version check; implementations return domain VERSION_CONFLICT errors on a
// stale write.
type HoldRepository interface {
	Create(ctx context.Context, hold *domain.Hold) error
	Update(ctx context.Context, hold *domain.Hold, expectedVersion int64) error
	FindByID(ctx context.Context, id string) (*domain.Hold, error)
	FindByProcessorRef(ctx context.Context, ref string) (*domain.Hold, error)
	FindActiveByOrderID(ctx context.Context, orderID string) (*domain.Hold, error)
	FindExpired(ctx context.Context, now time.Time, limit int) ([]*domain.Hold, error)
	FindExpiringBefore(ctx context.Context, deadline time.Time, limit int) ([]*domain.Hold, error)
}

// EventRepository records inbound processor events durably before they are
// applied, so webhook redelivery can be detected and acknowledged safely.
type EventRepository interface {
	// Record inserts the event; returns ErrDuplicateEvent if the event id
	// was seen before.
	Record(ctx context.Context, event *ProcessorEvent) error
	MarkProcessed(ctx context.Context, eventID string, outcome string) error
}

// ProcessorEvent is a webhook notification after signature verification.
type ProcessorEvent struct {
	ID           string    `json:"id"`
	Type         string    `json:"type"`
	ProcessorRef string    `json:"hold_id"`
	OccurredAt   time.Time `json:"occurred_at"`
	FailureCode  string    `json:"failure_code,omitempty"`
	Payload      []byte    `json:"-"`
}

// Notifier is the port for the push/notification pipeline. It is fire and
// forget: implementations must not let delivery failures surface as errors of
// the financial operation.
type Notifier interface {
	HoldStateChanged(ctx context.Context, hold *domain.Hold)
}
