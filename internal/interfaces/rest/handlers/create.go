package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/servilink/payhold/internal/application"
	"github.com/servilink/payhold/internal/application/services"
	"github.com/servilink/payhold/internal/interfaces/rest"
)

type CreateHoldRequest struct {
	OrderID       string `json:"order_id" validate:"required"`
	ClientID      string `json:"client_id" validate:"required"`
	AmountCents   int64  `json:"amount_cents" validate:"required,gt=0"`
	Currency      string `json:"currency" validate:"required,len=3"`
	WindowSeconds int64  `json:"window_seconds" validate:"omitempty,gt=0"`
}

// HandleCreateHold places a pre-authorization for an order.
func (h *Handlers) HandleCreateHold(w http.ResponseWriter, r *http.Request) {
	var req CreateHoldRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		rest.WriteError(w, application.NewInvalidInputError(err), h.logger)
		return
	}

	if err := h.validate.Struct(req); err != nil {
		rest.WriteError(w, application.NewInvalidInputError(err), h.logger)
		return
	}

	hold, err := h.engine.CreateHold(r.Context(), services.CreateHoldCommand{
		OrderID:       req.OrderID,
		ClientID:      req.ClientID,
		AmountCents:   req.AmountCents,
		Currency:      req.Currency,
		WindowSeconds: req.WindowSeconds,
	})
	if err != nil {
		rest.WriteError(w, err, h.logger)
		return
	}

	rest.RespondJSON(w, http.StatusCreated, hold.Snapshot(time.Now().UTC()))
}
