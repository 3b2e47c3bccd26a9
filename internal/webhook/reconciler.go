// Package webhook receives processor notifications and drives them into the
// engine: verify, record durably, deduplicate, apply.
package webhook

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/servilink/payhold/internal/application"
	"github.com/servilink/payhold/internal/domain"
)

// Engine is the slice of the hold engine the reconciler needs.
type Engine interface {
	ApplyProcessorEvent(ctx context.Context, evt *application.ProcessorEvent) error
}

type Reconciler struct {
	engine Engine
	events application.EventRepository
	secret string
	logger *slog.Logger
}

func NewReconciler(engine Engine, events application.EventRepository, secret string, logger *slog.Logger) *Reconciler {
	return &Reconciler{
		engine: engine,
		events: events,
		secret: secret,
		logger: logger,
	}
}

// Process handles one webhook delivery end to end. A nil return means the
// delivery may be acknowledged; a non-nil return means the processor should
// redeliver. Events that can never apply (stale, conflicting, orphaned) are
// logged and acknowledged so the processor stops retrying them.
func (r *Reconciler) Process(ctx context.Context, body []byte, signature string) error {
	if signature == "" || !VerifySignature(r.secret, body, signature) {
		return application.NewBadSignatureError()
	}

	var evt application.ProcessorEvent
	if err := json.Unmarshal(body, &evt); err != nil {
		return application.NewInvalidInputError(fmt.Errorf("malformed event payload: %w", err))
	}
	if evt.ID == "" || evt.Type == "" || evt.ProcessorRef == "" {
		return application.NewInvalidInputError(errors.New("event id, type and hold_id are required"))
	}
	evt.Payload = body

	// Record before applying; the acknowledgment must never outrun the durable
	// copy. A duplicate insert means redelivery of an event we may not have
	// finished applying, so fall through and let the staleness check decide.
	if err := r.events.Record(ctx, &evt); err != nil && !errors.Is(err, application.ErrDuplicateEvent) {
		return application.NewInternalError(err)
	}

	applyErr := r.engine.ApplyProcessorEvent(ctx, &evt)
	switch {
	case applyErr == nil:
		r.markProcessed(ctx, evt.ID, "applied")
	case domain.IsErrorCode(applyErr, domain.ErrCodeStaleEvent):
		r.logger.Info("discarding stale processor event",
			"event_id", evt.ID,
			"type", evt.Type)
		r.markProcessed(ctx, evt.ID, "stale")
	case domain.IsErrorCode(applyErr, domain.ErrCodeAlreadyTerminal),
		domain.IsErrorCode(applyErr, domain.ErrCodeInvalidTransition):
		// The processor's view conflicts with a hold that already settled
		// locally. Log loudly and keep the local verdict.
		r.logger.Warn("processor event conflicts with terminal hold",
			"event_id", evt.ID,
			"type", evt.Type,
			"hold_id", evt.ProcessorRef,
			"error", applyErr)
		r.markProcessed(ctx, evt.ID, "discarded")
	case domain.IsErrorCode(applyErr, domain.ErrCodeHoldNotFound):
		r.logger.Warn("processor event references unknown hold",
			"event_id", evt.ID,
			"hold_id", evt.ProcessorRef)
		r.markProcessed(ctx, evt.ID, "orphaned")
	default:
		// Transient failure; leave the event unprocessed and let the
		// processor redeliver.
		return applyErr
	}

	return nil
}

func (r *Reconciler) markProcessed(ctx context.Context, eventID, outcome string) {
	if err := r.events.MarkProcessed(ctx, eventID, outcome); err != nil {
		r.logger.Error("failed to mark processor event processed",
			"event_id", eventID,
			"outcome", outcome,
			"error", err)
	}
}
