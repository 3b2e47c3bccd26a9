// Package notify delivers hold state changes to the marketplace's push
// pipeline. Delivery is best effort: a failed notification is logged and
// dropped, never surfaced to the financial operation that triggered it.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/servilink/payhold/internal/domain"
)

type stateChangeNotice struct {
	HoldID      string     `json:"hold_id"`
	OrderID     string     `json:"order_id"`
	ClientID    string     `json:"client_id"`
	State       string     `json:"state"`
	AmountCents int64      `json:"amount_cents"`
	Currency    string     `json:"currency"`
	ExpiresAt   time.Time  `json:"expires_at"`
	CapturedBy  *string    `json:"captured_by,omitempty"`
	CapturedAt  *time.Time `json:"captured_at,omitempty"`
	CanceledAt  *time.Time `json:"canceled_at,omitempty"`
	OccurredAt  time.Time  `json:"occurred_at"`
}

type HTTPNotifier struct {
	baseURL string
	client  *http.Client
	logger  *slog.Logger
}

func NewHTTPNotifier(baseURL string, timeout time.Duration, logger *slog.Logger) *HTTPNotifier {
	return &HTTPNotifier{
		baseURL: baseURL,
		client:  &http.Client{Timeout: timeout},
		logger:  logger,
	}
}

// HoldStateChanged posts the new state to the push pipeline.
func (n *HTTPNotifier) HoldStateChanged(ctx context.Context, hold *domain.Hold) {
	notice := stateChangeNotice{
		HoldID:      hold.ID,
		OrderID:     hold.OrderID,
		ClientID:    hold.ClientID,
		State:       string(hold.State),
		AmountCents: hold.AmountCents,
		Currency:    hold.Currency,
		ExpiresAt:   hold.ExpiresAt,
		CapturedBy:  hold.CapturedBy,
		CapturedAt:  hold.CapturedAt,
		CanceledAt:  hold.CanceledAt,
		OccurredAt:  time.Now().UTC(),
	}

	body, err := json.Marshal(notice)
	if err != nil {
		n.logger.Error("failed to encode state change notice", "hold_id", hold.ID, "error", err)
		return
	}

	url := fmt.Sprintf("%s/api/v1/notifications/hold-state", n.baseURL)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		n.logger.Error("failed to build notification request", "hold_id", hold.ID, "error", err)
		return
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		n.logger.Warn("notification delivery failed",
			"hold_id", hold.ID,
			"state", hold.State,
			"error", err)
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		n.logger.Warn("notification rejected by push pipeline",
			"hold_id", hold.ID,
			"state", hold.State,
			"status", resp.StatusCode)
	}
}
