package domain

import "time"

// HoldView is the read-only projection served to callers. It never exposes
// mutable entity internals.
type HoldView struct {
	ID               string     `json:"id"`
	OrderID          string     `json:"order_id"`
	State            HoldState  `json:"state"`
	AmountCents      int64      `json:"amount_cents"`
	Currency         string     `json:"currency"`
	CreatedAt        time.Time  `json:"created_at"`
	ExpiresAt        time.Time  `json:"expires_at"`
	HoursUntilExpiry float64    `json:"hours_until_expiry"`
	CanCapture       bool       `json:"can_capture"`
	CanCancel        bool       `json:"can_cancel"`
	CapturedAt       *time.Time `json:"captured_at,omitempty"`
	CanceledAt       *time.Time `json:"canceled_at,omitempty"`
	CapturedBy       *string    `json:"captured_by,omitempty"`
	Version          int64      `json:"version"`
}

// Snapshot projects the hold as of now.
func (h *Hold) Snapshot(now time.Time) HoldView {
	hours := h.ExpiresAt.Sub(now).Hours()
	if hours < 0 {
		hours = 0
	}
	return HoldView{
		ID:               h.ID,
		OrderID:          h.OrderID,
		State:            h.State,
		AmountCents:      h.AmountCents,
		Currency:         h.Currency,
		CreatedAt:        h.CreatedAt,
		ExpiresAt:        h.ExpiresAt,
		HoursUntilExpiry: hours,
		CanCapture:       h.CanCapture(now),
		CanCancel:        h.CanCancel(),
		CapturedAt:       h.CapturedAt,
		CanceledAt:       h.CanceledAt,
		CapturedBy:       h.CapturedBy,
		Version:          h.Version,
	}
}
