package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/servilink/payhold/internal/application"
	"github.com/servilink/payhold/internal/clock"
	"github.com/servilink/payhold/internal/config"
	"github.com/servilink/payhold/internal/domain"
)

// HoldEngine orchestrates the hold lifecycle: placing pre-authorizations with
// the processor, capturing or releasing them, and reconciling webhook events.
// Every read-validate-call-write sequence runs under a per-hold lock, and every
// write goes through the store's version check, so concurrent attempts resolve
// to exactly one winner.
type HoldEngine struct {
	holds     application.HoldRepository
	processor application.ProcessorClient
	notifier  application.Notifier
	clock     clock.Clock
	cfg       config.HoldConfig
	locks     *keyedLocker
	logger    *slog.Logger
}

func NewHoldEngine(
	holds application.HoldRepository,
	processor application.ProcessorClient,
	notifier application.Notifier,
	clk clock.Clock,
	cfg config.HoldConfig,
	logger *slog.Logger,
) *HoldEngine {
	return &HoldEngine{
		holds:     holds,
		processor: processor,
		notifier:  notifier,
		clock:     clk,
		cfg:       cfg,
		locks:     newKeyedLocker(),
		logger:    logger,
	}
}

// CreateHold validates the request, persists a PENDING hold and asks the
// processor to place the pre-authorization. Validation failures never reach
// the processor.
func (e *HoldEngine) CreateHold(ctx context.Context, cmd CreateHoldCommand) (*domain.Hold, error) {
	if cmd.OrderID == "" {
		return nil, domain.NewMissingRequiredFieldError("order ID")
	}
	if cmd.ClientID == "" {
		return nil, domain.NewMissingRequiredFieldError("client ID")
	}

	money, err := domain.NewMoney(cmd.AmountCents, cmd.Currency)
	if err != nil {
		return nil, domain.NewInvalidAmountError(cmd.AmountCents)
	}
	if cmd.AmountCents < e.cfg.MinAmountCents || cmd.AmountCents > e.cfg.MaxAmountCents {
		return nil, domain.NewAmountOutOfBoundsError(cmd.AmountCents, e.cfg.MinAmountCents, e.cfg.MaxAmountCents)
	}

	window, err := e.resolveWindow(cmd.WindowSeconds)
	if err != nil {
		return nil, err
	}

	if existing, err := e.holds.FindActiveByOrderID(ctx, cmd.OrderID); err == nil {
		if existing.State == domain.StatePending {
			// A previous attempt hit a transient processor failure after the
			// PENDING row landed. Resume it instead of rejecting, otherwise the
			// retry we asked the caller to make could never succeed.
			return e.resumePendingHold(ctx, existing.ID, cmd)
		}
		return nil, domain.NewDuplicateActiveHoldError(existing.OrderID)
	} else if !domain.IsErrorCode(err, domain.ErrCodeHoldNotFound) {
		return nil, application.NewInternalError(err)
	}

	now := e.clock.Now()
	hold, err := domain.NewHold(uuid.New().String(), cmd.OrderID, cmd.ClientID, money, now, window)
	if err != nil {
		return nil, application.NewInvalidInputError(err)
	}

	// The PENDING row lands before the processor call; the partial unique
	// index turns a concurrent create for the same order into a clean
	// DUPLICATE_ACTIVE_HOLD for the loser.
	if err := e.holds.Create(ctx, hold); err != nil {
		if domain.IsErrorCode(err, domain.ErrCodeDuplicateActiveHold) {
			return nil, err
		}
		return nil, application.NewInternalError(err)
	}

	unlock := e.locks.Lock(hold.ID)
	defer unlock()

	return e.placeWithProcessor(ctx, hold)
}

// resumePendingHold retries the processor call for a hold left PENDING by an
// earlier transient failure. Reusing the original derived idempotency key
// means the processor places at most one authorization no matter how many
// retries land here.
func (e *HoldEngine) resumePendingHold(ctx context.Context, holdID string, cmd CreateHoldCommand) (*domain.Hold, error) {
	unlock := e.locks.Lock(holdID)
	defer unlock()

	hold, err := e.holds.FindByID(ctx, holdID)
	if err != nil {
		return nil, err
	}

	if hold.State != domain.StatePending {
		// A concurrent retry or webhook resolved it while we waited on the lock.
		if hold.IsActive() {
			return nil, domain.NewDuplicateActiveHoldError(hold.OrderID)
		}
		return nil, domain.NewAlreadyTerminalError(hold.ID, hold.State)
	}

	// Only the original request may resume; a retry asking for different money
	// is a different hold and the order is still taken.
	if hold.AmountCents != cmd.AmountCents || hold.Currency != cmd.Currency {
		return nil, domain.NewDuplicateActiveHoldError(hold.OrderID)
	}

	return e.placeWithProcessor(ctx, hold)
}

// placeWithProcessor asks the processor to place the pre-authorization for a
// PENDING hold and persists the outcome. Callers hold the per-hold lock.
func (e *HoldEngine) placeWithProcessor(ctx context.Context, hold *domain.Hold) (*domain.Hold, error) {
	resp, err := e.processor.CreateHold(ctx, createRequest(hold), "auth-"+hold.ID)
	if err != nil {
		return nil, e.failPendingHold(ctx, hold, err)
	}

	if err := hold.Authorize(resp.ProcessorRef); err != nil {
		return nil, application.NewInternalError(err)
	}
	if err := e.holds.Update(ctx, hold, hold.Version); err != nil {
		return nil, err
	}

	e.logger.Info("hold authorized",
		"hold_id", hold.ID,
		"order_id", hold.OrderID,
		"processor_ref", resp.ProcessorRef,
		"expires_at", hold.ExpiresAt)

	e.notify(ctx, hold)
	return hold, nil
}

func createRequest(hold *domain.Hold) application.CreateHoldRequest {
	return application.CreateHoldRequest{
		AmountCents: hold.AmountCents,
		Currency:    hold.Currency,
		Metadata: map[string]string{
			"order_id":  hold.OrderID,
			"client_id": hold.ClientID,
		},
	}
}

// failPendingHold converts a processor failure during CreateHold into the
// right caller-facing error. A decline moves the hold to FAILED; a transient
// failure leaves it PENDING so the webhook or a retry can resolve it.
func (e *HoldEngine) failPendingHold(ctx context.Context, hold *domain.Hold, procCallErr error) error {
	procErr, ok := application.IsProcessorError(procCallErr)
	if !ok || procErr.Kind() == application.KindTransient {
		e.logger.Warn("processor unavailable during hold creation",
			"hold_id", hold.ID,
			"order_id", hold.OrderID,
			"error", procCallErr)
		return application.NewTransientError(procCallErr)
	}

	if err := hold.Fail(procErr.Code); err != nil {
		return application.NewInternalError(err)
	}
	if err := e.holds.Update(ctx, hold, hold.Version); err != nil {
		return application.NewInternalError(err)
	}

	e.logger.Info("hold declined",
		"hold_id", hold.ID,
		"order_id", hold.OrderID,
		"decline_code", procErr.Code)

	e.notify(ctx, hold)
	return domain.NewDeclinedError(hold.ID, procCallErr)
}

// Capture converts an authorized hold into a funds transfer for the provider
// that accepted the order. Of two racing captures exactly one wins; the loser
// gets ALREADY_TERMINAL and the processor sees at most one capture call.
func (e *HoldEngine) Capture(ctx context.Context, cmd CaptureCommand) (*domain.Hold, error) {
	if cmd.ProviderID == "" {
		return nil, domain.NewMissingRequiredFieldError("provider ID")
	}

	unlock := e.locks.Lock(cmd.HoldID)
	defer unlock()

	hold, err := e.holds.FindByID(ctx, cmd.HoldID)
	if err != nil {
		return nil, err
	}

	if cmd.ExpectedVersion != 0 && cmd.ExpectedVersion != hold.Version {
		return nil, domain.NewVersionConflictError(hold.ID)
	}
	if hold.IsTerminal() {
		return nil, domain.NewAlreadyTerminalError(hold.ID, hold.State)
	}
	if hold.State != domain.StateAuthorized {
		return nil, domain.NewInvalidTransitionError(hold.State, domain.StateCaptured)
	}

	now := e.clock.Now()
	if hold.IsExpired(now) {
		// The deadline passed before the sweeper got here. Release instead of
		// capturing, exactly as the sweeper would.
		if err := e.expireLocked(ctx, hold, now); err != nil {
			return nil, err
		}
		return nil, domain.NewHoldExpiredError(hold.ID)
	}

	resp, err := e.processor.Capture(ctx, *hold.ProcessorRef, "cap-"+hold.ID)
	if err != nil {
		procErr, ok := application.IsProcessorError(err)
		if !ok || procErr.Kind() == application.KindTransient {
			return nil, application.NewTransientError(err)
		}
		if procErr.Kind() == application.KindInvalidState {
			return nil, e.resolveAgainstProcessor(ctx, hold)
		}
		// Capture declines leave the hold AUTHORIZED; the caller may cancel
		// or let it expire.
		e.logger.Warn("processor declined capture",
			"hold_id", hold.ID,
			"decline_code", procErr.Code)
		return nil, domain.NewDeclinedError(hold.ID, err)
	}

	if err := hold.Capture(cmd.ProviderID, resp.CapturedAt); err != nil {
		return nil, application.NewInternalError(err)
	}
	if err := e.holds.Update(ctx, hold, hold.Version); err != nil {
		return nil, err
	}

	e.logger.Info("hold captured",
		"hold_id", hold.ID,
		"order_id", hold.OrderID,
		"provider_id", cmd.ProviderID,
		"amount_cents", hold.AmountCents)

	e.notify(ctx, hold)
	return hold, nil
}

// Cancel releases a hold before capture. Canceling an already released hold is
// a no-op success; canceling a captured one fails with ALREADY_TERMINAL.
func (e *HoldEngine) Cancel(ctx context.Context, cmd CancelCommand) (*domain.Hold, error) {
	unlock := e.locks.Lock(cmd.HoldID)
	defer unlock()

	hold, err := e.holds.FindByID(ctx, cmd.HoldID)
	if err != nil {
		return nil, err
	}

	if cmd.ExpectedVersion != 0 && cmd.ExpectedVersion != hold.Version {
		return nil, domain.NewVersionConflictError(hold.ID)
	}

	switch hold.State {
	case domain.StateCanceled, domain.StateExpired:
		// Funds are already released; repeating the cancel changes nothing.
		return hold, nil
	case domain.StateCaptured, domain.StateFailed:
		return nil, domain.NewAlreadyTerminalError(hold.ID, hold.State)
	}

	// A PENDING hold has no processor ref yet; there is nothing to release
	// remotely.
	if hold.ProcessorRef != nil {
		if _, err := e.processor.Cancel(ctx, *hold.ProcessorRef, "cxl-"+hold.ID); err != nil {
			procErr, ok := application.IsProcessorError(err)
			if !ok || procErr.Kind() == application.KindTransient {
				return nil, application.NewTransientError(err)
			}
			if procErr.Kind() == application.KindInvalidState {
				resolveErr := e.resolveAgainstProcessor(ctx, hold)
				// The processor may report the hold already released, which
				// is the outcome the caller asked for.
				if hold.State == domain.StateCanceled || hold.State == domain.StateExpired {
					return hold, nil
				}
				return nil, resolveErr
			}
			return nil, application.NewInternalError(err)
		}
	}

	if err := hold.Cancel(e.clock.Now(), cmd.Reason); err != nil {
		return nil, application.NewInternalError(err)
	}
	if err := e.holds.Update(ctx, hold, hold.Version); err != nil {
		return nil, err
	}

	e.logger.Info("hold canceled",
		"hold_id", hold.ID,
		"order_id", hold.OrderID,
		"reason", cmd.Reason)

	e.notify(ctx, hold)
	return hold, nil
}

// GetStatus returns the hold projected as of now.
func (e *HoldEngine) GetStatus(ctx context.Context, holdID string) (domain.HoldView, error) {
	hold, err := e.holds.FindByID(ctx, holdID)
	if err != nil {
		return domain.HoldView{}, err
	}
	return hold.Snapshot(e.clock.Now()), nil
}

// ListExpiringSoon returns authorized holds whose deadline falls within the
// given horizon, soonest first.
func (e *HoldEngine) ListExpiringSoon(ctx context.Context, within time.Duration, limit int) ([]domain.HoldView, error) {
	now := e.clock.Now()
	holds, err := e.holds.FindExpiringBefore(ctx, now.Add(within), limit)
	if err != nil {
		return nil, application.NewInternalError(err)
	}

	views := make([]domain.HoldView, 0, len(holds))
	for _, hold := range holds {
		views = append(views, hold.Snapshot(now))
	}
	return views, nil
}

// ExpireHold releases a hold whose deadline has passed. It is the sweeper's
// entry point and is safe to call from multiple instances: a hold already
// resolved by a racing capture, cancel or sweep is a no-op.
func (e *HoldEngine) ExpireHold(ctx context.Context, holdID string) error {
	unlock := e.locks.Lock(holdID)
	defer unlock()

	hold, err := e.holds.FindByID(ctx, holdID)
	if err != nil {
		return err
	}

	if !hold.IsActive() {
		return nil
	}

	now := e.clock.Now()
	if !hold.IsExpired(now) {
		return nil
	}

	if hold.State == domain.StatePending {
		return e.expirePendingLocked(ctx, hold, now)
	}
	return e.expireLocked(ctx, hold, now)
}

// expirePendingLocked resolves a hold stuck PENDING past its deadline, so an
// order is never blocked forever by a create whose outcome was lost. The
// create is re-issued with its original idempotency key to learn what the
// processor actually did, and whatever comes back is released.
func (e *HoldEngine) expirePendingLocked(ctx context.Context, hold *domain.Hold, now time.Time) error {
	resp, err := e.processor.CreateHold(ctx, createRequest(hold), "auth-"+hold.ID)
	if err != nil {
		procErr, ok := application.IsProcessorError(err)
		if !ok || procErr.Kind() == application.KindTransient {
			// Still PENDING; the next sweep retries with the same key.
			return application.NewTransientError(err)
		}

		// The processor never held the funds; the order is free again.
		if failErr := hold.Fail(procErr.Code); failErr != nil {
			return application.NewInternalError(failErr)
		}
		if err := e.holds.Update(ctx, hold, hold.Version); err != nil {
			return err
		}

		e.logger.Info("stale pending hold failed",
			"hold_id", hold.ID,
			"order_id", hold.OrderID,
			"decline_code", procErr.Code)

		e.notify(ctx, hold)
		return nil
	}

	if err := hold.Authorize(resp.ProcessorRef); err != nil {
		return application.NewInternalError(err)
	}
	return e.expireLocked(ctx, hold, now)
}

// expireLocked releases the hold at the processor and marks it EXPIRED.
// Callers hold the per-hold lock.
func (e *HoldEngine) expireLocked(ctx context.Context, hold *domain.Hold, now time.Time) error {
	if hold.ProcessorRef != nil {
		if _, err := e.processor.Cancel(ctx, *hold.ProcessorRef, "exp-"+hold.ID); err != nil {
			procErr, ok := application.IsProcessorError(err)
			if !ok || procErr.Kind() == application.KindTransient {
				// Leave the hold AUTHORIZED; the next sweep retries with the
				// same idempotency key.
				return application.NewTransientError(err)
			}
			if procErr.Kind() == application.KindInvalidState {
				// The processor already resolved the hold; adopt its verdict.
				return e.resolveAgainstProcessor(ctx, hold)
			}
			return application.NewInternalError(err)
		}
	}

	if err := hold.Expire(now); err != nil {
		return application.NewInternalError(err)
	}
	if err := e.holds.Update(ctx, hold, hold.Version); err != nil {
		return err
	}

	e.logger.Info("hold expired",
		"hold_id", hold.ID,
		"order_id", hold.OrderID,
		"expired_at", now)

	e.notify(ctx, hold)
	return nil
}

// resolveAgainstProcessor re-queries the processor when it reports our state
// as stale and adopts its terminal verdict locally. Callers hold the per-hold
// lock. Returns ALREADY_TERMINAL describing where the hold ended up.
func (e *HoldEngine) resolveAgainstProcessor(ctx context.Context, hold *domain.Hold) error {
	status, err := e.processor.GetHold(ctx, *hold.ProcessorRef)
	if err != nil {
		return application.NewTransientError(err)
	}

	now := e.clock.Now()
	var applyErr error

	switch status.Status {
	case "captured":
		applyErr = hold.ConfirmCaptured(now)
	case "canceled":
		applyErr = hold.Cancel(now, "resolved against processor state")
	case "expired":
		applyErr = hold.Expire(now)
	default:
		return application.NewInternalError(
			fmt.Errorf("processor reports hold %s as %q, cannot reconcile", hold.ID, status.Status))
	}

	if applyErr != nil {
		return application.NewInternalError(applyErr)
	}
	if err := e.holds.Update(ctx, hold, hold.Version); err != nil {
		return err
	}

	e.logger.Warn("hold state resolved from processor",
		"hold_id", hold.ID,
		"state", hold.State)

	e.notify(ctx, hold)
	return domain.NewAlreadyTerminalError(hold.ID, hold.State)
}

// ApplyProcessorEvent applies a verified, durably recorded webhook event to
// the hold it references. Stale or conflicting events return errors the
// webhook endpoint logs and discards; they never force a terminal hold into a
// different terminal state.
func (e *HoldEngine) ApplyProcessorEvent(ctx context.Context, evt *application.ProcessorEvent) error {
	lookup, err := e.holds.FindByProcessorRef(ctx, evt.ProcessorRef)
	if err != nil {
		return err
	}

	unlock := e.locks.Lock(lookup.ID)
	defer unlock()

	// Reload under the lock; the hold may have moved between lookup and lock.
	hold, err := e.holds.FindByID(ctx, lookup.ID)
	if err != nil {
		return err
	}

	// Event ids are lexicographically ordered by the processor; anything not
	// newer than the last applied event is a replay or out-of-order delivery.
	if hold.LastEventID != nil && evt.ID <= *hold.LastEventID {
		return domain.NewStaleEventError(evt.ID)
	}

	changed := true
	switch evt.Type {
	case "hold.captured", "hold.succeeded":
		if hold.State == domain.StateCaptured {
			changed = false
			break
		}
		if hold.IsTerminal() {
			return domain.NewAlreadyTerminalError(hold.ID, hold.State)
		}
		if err := hold.ConfirmCaptured(evt.OccurredAt); err != nil {
			return err
		}
	case "hold.payment_failed":
		if hold.State == domain.StateFailed {
			changed = false
			break
		}
		if hold.IsTerminal() {
			return domain.NewAlreadyTerminalError(hold.ID, hold.State)
		}
		code := evt.FailureCode
		if code == "" {
			code = evt.Type
		}
		if err := hold.Fail(code); err != nil {
			return err
		}
	case "hold.canceled":
		if hold.State == domain.StateCanceled || hold.State == domain.StateExpired {
			changed = false
			break
		}
		if hold.IsTerminal() {
			return domain.NewAlreadyTerminalError(hold.ID, hold.State)
		}
		if err := hold.Cancel(evt.OccurredAt, "processor canceled"); err != nil {
			return err
		}
	case "hold.requires_action":
		// Informational; the state machine does not move.
		changed = false
	default:
		e.logger.Warn("unrecognized processor event type",
			"event_id", evt.ID,
			"type", evt.Type)
		return nil
	}

	hold.MarkReconciled(evt.ID)
	if err := e.holds.Update(ctx, hold, hold.Version); err != nil {
		return err
	}

	e.logger.Info("processor event applied",
		"event_id", evt.ID,
		"type", evt.Type,
		"hold_id", hold.ID,
		"state", hold.State)

	if changed {
		e.notify(ctx, hold)
	}
	return nil
}

func (e *HoldEngine) resolveWindow(windowSeconds int64) (time.Duration, error) {
	if windowSeconds == 0 {
		return e.cfg.DefaultWindow, nil
	}
	window := time.Duration(windowSeconds) * time.Second
	if window < 0 || window > e.cfg.MaxWindow {
		return 0, application.NewInvalidInputError(
			fmt.Errorf("authorization window %ds outside allowed range (max %s)", windowSeconds, e.cfg.MaxWindow))
	}
	return window, nil
}

func (e *HoldEngine) notify(ctx context.Context, hold *domain.Hold) {
	if e.notifier == nil {
		return
	}
	e.notifier.HoldStateChanged(ctx, hold)
}
