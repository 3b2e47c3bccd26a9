package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/servilink/payhold/internal/application"
	"github.com/servilink/payhold/internal/application/services"
	"github.com/servilink/payhold/internal/interfaces/rest"
)

type CaptureRequest struct {
	ProviderID      string `json:"provider_id" validate:"required"`
	ExpectedVersion int64  `json:"expected_version" validate:"omitempty,gt=0"`
}

// HandleCapture converts an authorized hold into a charge for the provider
// that accepted the order.
func (h *Handlers) HandleCapture(w http.ResponseWriter, r *http.Request) {
	var req CaptureRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		rest.WriteError(w, application.NewInvalidInputError(err), h.logger)
		return
	}

	if err := h.validate.Struct(req); err != nil {
		rest.WriteError(w, application.NewInvalidInputError(err), h.logger)
		return
	}

	hold, err := h.engine.Capture(r.Context(), services.CaptureCommand{
		HoldID:          r.PathValue("id"),
		ProviderID:      req.ProviderID,
		ExpectedVersion: req.ExpectedVersion,
	})
	if err != nil {
		rest.WriteError(w, err, h.logger)
		return
	}

	rest.RespondJSON(w, http.StatusOK, hold.Snapshot(time.Now().UTC()))
}
