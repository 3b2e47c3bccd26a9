package postgres

import (
	"time"
)

// HoldModel mirrors the holds table row.
type HoldModel struct {
	ID           string
	OrderID      string
	ClientID     string
	AmountCents  int64
	Currency     string
	State        string
	ProcessorRef *string
	CreatedAt    time.Time
	ExpiresAt    time.Time
	CapturedAt   *time.Time
	CanceledAt   *time.Time
	CapturedBy   *string
	Version      int64
	LastEventID  *string
	FailureCode  *string
	CancelReason *string
}

// EventModel mirrors the processor_events table row. A unique constraint on
// event_id makes webhook redelivery detectable at insert time.
type EventModel struct {
	EventID      string
	Type         string
	ProcessorRef string
	OccurredAt   time.Time
	ReceivedAt   time.Time
	Payload      []byte
	ProcessedAt  *time.Time
	Outcome      *string
}
