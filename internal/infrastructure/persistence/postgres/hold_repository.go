package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/servilink/payhold/internal/domain"
)

const holdColumns = `
	id, order_id, client_id, amount_cents, currency, state,
	processor_ref, created_at, expires_at, captured_at, canceled_at,
	captured_by, version, last_event_id, failure_code, cancel_reason
`

type HoldRepository struct {
	db *DB
}

func NewHoldRepository(db *DB) *HoldRepository {
	return &HoldRepository{db: db}
}

func (r *HoldRepository) Create(ctx context.Context, hold *domain.Hold) error {
	query := `
		INSERT INTO holds (
			id, order_id, client_id, amount_cents, currency, state,
			processor_ref, created_at, expires_at, captured_at, canceled_at,
			captured_by, version, last_event_id, failure_code, cancel_reason
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
	`

	m := toDBModel(hold)
	_, err := r.db.Pool.Exec(ctx, query,
		m.ID,
		m.OrderID,
		m.ClientID,
		m.AmountCents,
		m.Currency,
		m.State,
		m.ProcessorRef,
		m.CreatedAt,
		m.ExpiresAt,
		m.CapturedAt,
		m.CanceledAt,
		m.CapturedBy,
		m.Version,
		m.LastEventID,
		m.FailureCode,
		m.CancelReason,
	)

	if err != nil {
		// The partial unique index on order_id catches a concurrent create
		// for the same order.
		if IsUniqueViolation(err) {
			return domain.NewDuplicateActiveHoldError(hold.OrderID)
		}
		return fmt.Errorf("failed to create hold: %w", err)
	}

	return nil
}

// Update applies the hold's current field values against the expected version.
// A stale version means another writer got there first; the caller must
// re-read and decide.
func (r *HoldRepository) Update(ctx context.Context, hold *domain.Hold, expectedVersion int64) error {
	query := `
		UPDATE holds
		SET state = $1,
			processor_ref = $2, captured_at = $3, canceled_at = $4,
			captured_by = $5, last_event_id = $6, failure_code = $7,
			cancel_reason = $8, version = $9
		WHERE id = $10 AND version = $11
	`

	m := toDBModel(hold)
	result, err := r.db.Pool.Exec(ctx, query,
		m.State,
		m.ProcessorRef,
		m.CapturedAt,
		m.CanceledAt,
		m.CapturedBy,
		m.LastEventID,
		m.FailureCode,
		m.CancelReason,
		expectedVersion+1,
		m.ID,
		expectedVersion,
	)

	if err != nil {
		return fmt.Errorf("failed to update hold: %w", err)
	}

	if result.RowsAffected() == 0 {
		if _, findErr := r.FindByID(ctx, hold.ID); findErr != nil {
			return findErr
		}
		return domain.NewVersionConflictError(hold.ID)
	}

	hold.Version = expectedVersion + 1
	return nil
}

func (r *HoldRepository) FindByID(ctx context.Context, id string) (*domain.Hold, error) {
	query := `SELECT ` + holdColumns + ` FROM holds WHERE id = $1`

	row := r.db.Pool.QueryRow(ctx, query, id)
	return scanHold(row, id)
}

func (r *HoldRepository) FindByProcessorRef(ctx context.Context, ref string) (*domain.Hold, error) {
	query := `SELECT ` + holdColumns + ` FROM holds WHERE processor_ref = $1`

	row := r.db.Pool.QueryRow(ctx, query, ref)
	return scanHold(row, ref)
}

// FindActiveByOrderID returns the one hold still counting against the order,
// or HOLD_NOT_FOUND if none is active.
func (r *HoldRepository) FindActiveByOrderID(ctx context.Context, orderID string) (*domain.Hold, error) {
	query := `
		SELECT ` + holdColumns + `
		FROM holds
		WHERE order_id = $1 AND state IN ('PENDING', 'AUTHORIZED')
	`

	row := r.db.Pool.QueryRow(ctx, query, orderID)
	return scanHold(row, orderID)
}

// FindExpired finds active holds whose deadline has passed. PENDING holds
// count too: a create that never resolved still blocks its order, and the
// sweeper is what clears it.
func (r *HoldRepository) FindExpired(ctx context.Context, now time.Time, limit int) ([]*domain.Hold, error) {
	query := `
		SELECT ` + holdColumns + `
		FROM holds
		WHERE state IN ('PENDING', 'AUTHORIZED')
		  AND expires_at <= $1
		ORDER BY expires_at ASC
		LIMIT $2
	`

	return r.queryHolds(ctx, query, now, limit)
}

// FindExpiringBefore finds AUTHORIZED holds that will expire before the
// deadline, for notification triggers.
func (r *HoldRepository) FindExpiringBefore(ctx context.Context, deadline time.Time, limit int) ([]*domain.Hold, error) {
	query := `
		SELECT ` + holdColumns + `
		FROM holds
		WHERE state = 'AUTHORIZED'
		  AND expires_at <= $1
		ORDER BY expires_at ASC
		LIMIT $2
	`

	return r.queryHolds(ctx, query, deadline, limit)
}

func (r *HoldRepository) queryHolds(ctx context.Context, query string, args ...any) ([]*domain.Hold, error) {
	rows, err := r.db.Pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query holds: %w", err)
	}

	results, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (*domain.Hold, error) {
		var m HoldModel
		err := row.Scan(
			&m.ID, &m.OrderID, &m.ClientID, &m.AmountCents, &m.Currency, &m.State,
			&m.ProcessorRef, &m.CreatedAt, &m.ExpiresAt, &m.CapturedAt, &m.CanceledAt,
			&m.CapturedBy, &m.Version, &m.LastEventID, &m.FailureCode, &m.CancelReason,
		)
		return toDomainModel(m), err
	})

	if err != nil {
		return nil, fmt.Errorf("scan holds: %w", err)
	}
	return results, nil
}

// scanHold converts a database row into a domain Hold.
// Returns HOLD_NOT_FOUND if the row doesn't exist.
func scanHold(row pgx.Row, id string) (*domain.Hold, error) {
	var m HoldModel
	err := row.Scan(
		&m.ID, &m.OrderID, &m.ClientID, &m.AmountCents, &m.Currency, &m.State,
		&m.ProcessorRef, &m.CreatedAt, &m.ExpiresAt, &m.CapturedAt, &m.CanceledAt,
		&m.CapturedBy, &m.Version, &m.LastEventID, &m.FailureCode, &m.CancelReason,
	)

	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.NewHoldNotFoundError(id)
		}
		return nil, fmt.Errorf("failed to scan hold: %w", err)
	}
	return toDomainModel(m), nil
}
