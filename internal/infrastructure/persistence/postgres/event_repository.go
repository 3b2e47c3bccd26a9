package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/servilink/payhold/internal/application"
)

type EventRepository struct {
	db *DB
}

func NewEventRepository(db *DB) *EventRepository {
	return &EventRepository{db: db}
}

// Record persists the raw event before any processing. The webhook endpoint
// acks the processor only after this insert commits, so redelivery can never
// lose an event.
func (r *EventRepository) Record(ctx context.Context, event *application.ProcessorEvent) error {
	query := `
		INSERT INTO processor_events (event_id, type, processor_ref, occurred_at, received_at, payload)
		VALUES ($1, $2, $3, $4, $5, $6)
	`

	_, err := r.db.Pool.Exec(ctx, query,
		event.ID,
		event.Type,
		event.ProcessorRef,
		event.OccurredAt,
		time.Now().UTC(),
		event.Payload,
	)

	if err != nil {
		if IsUniqueViolation(err) {
			return application.ErrDuplicateEvent
		}
		return fmt.Errorf("failed to record processor event: %w", err)
	}

	return nil
}

func (r *EventRepository) MarkProcessed(ctx context.Context, eventID string, outcome string) error {
	query := `
		UPDATE processor_events
		SET processed_at = $1, outcome = $2
		WHERE event_id = $3
	`

	_, err := r.db.Pool.Exec(ctx, query, time.Now().UTC(), outcome, eventID)
	if err != nil {
		return fmt.Errorf("failed to mark processor event processed: %w", err)
	}

	return nil
}
