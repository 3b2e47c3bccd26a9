package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/servilink/payhold/internal/application"
	"github.com/servilink/payhold/internal/application/services"
	"github.com/servilink/payhold/internal/interfaces/rest"
)

type CancelRequest struct {
	Reason          string `json:"reason"`
	ExpectedVersion int64  `json:"expected_version" validate:"omitempty,gt=0"`
}

// HandleCancel releases a hold before capture. The body is optional; an empty
// body cancels with no recorded reason.
func (h *Handlers) HandleCancel(w http.ResponseWriter, r *http.Request) {
	var req CancelRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		rest.WriteError(w, application.NewInvalidInputError(err), h.logger)
		return
	}

	if err := h.validate.Struct(req); err != nil {
		rest.WriteError(w, application.NewInvalidInputError(err), h.logger)
		return
	}

	hold, err := h.engine.Cancel(r.Context(), services.CancelCommand{
		HoldID:          r.PathValue("id"),
		Reason:          req.Reason,
		ExpectedVersion: req.ExpectedVersion,
	})
	if err != nil {
		rest.WriteError(w, err, h.logger)
		return
	}

	rest.RespondJSON(w, http.StatusOK, hold.Snapshot(time.Now().UTC()))
}
