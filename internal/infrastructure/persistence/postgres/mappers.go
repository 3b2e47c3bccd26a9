package postgres

import (
	"github.com/servilink/payhold/internal/domain"
)

// toDomainModel: maps db model to domain entity
func toDomainModel(m HoldModel) *domain.Hold {
	return domain.Reconstitute(
		m.ID,
		m.OrderID,
		m.ClientID,
		m.AmountCents,
		m.Currency,
		domain.HoldState(m.State),
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
}

// toDBModel: maps domain entity to db model
func toDBModel(h *domain.Hold) *HoldModel {
	return &HoldModel{
		ID:           h.ID,
		OrderID:      h.OrderID,
		ClientID:     h.ClientID,
		AmountCents:  h.AmountCents,
		Currency:     h.Currency,
		State:        string(h.State),
		ProcessorRef: h.ProcessorRef,
		CreatedAt:    h.CreatedAt,
		ExpiresAt:    h.ExpiresAt,
		CapturedAt:   h.CapturedAt,
		CanceledAt:   h.CanceledAt,
		CapturedBy:   h.CapturedBy,
		Version:      h.Version,
		LastEventID:  h.LastEventID,
		FailureCode:  h.FailureCode,
		CancelReason: h.CancelReason,
	}
}
