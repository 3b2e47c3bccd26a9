package handlers

import (
	"net/http"
	"strconv"
	"time"

	"github.com/servilink/payhold/internal/interfaces/rest"
)

const (
	defaultExpiringHorizon = 24 * time.Hour
	defaultExpiringLimit   = 100
)

// HandleGetHold returns the hold's current projection.
func (h *Handlers) HandleGetHold(w http.ResponseWriter, r *http.Request) {
	view, err := h.engine.GetStatus(r.Context(), r.PathValue("id"))
	if err != nil {
		rest.WriteError(w, err, h.logger)
		return
	}

	rest.RespondJSON(w, http.StatusOK, view)
}

// HandleListExpiring lists authorized holds approaching their deadline, for
// "capture soon" nudges.
func (h *Handlers) HandleListExpiring(w http.ResponseWriter, r *http.Request) {
	within := defaultExpiringHorizon
	if raw := r.URL.Query().Get("within_hours"); raw != "" {
		hours, err := strconv.ParseFloat(raw, 64)
		if err == nil && hours > 0 {
			within = time.Duration(hours * float64(time.Hour))
		}
	}

	limit := defaultExpiringLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err == nil && parsed > 0 && parsed <= 1000 {
			limit = parsed
		}
	}

	views, err := h.engine.ListExpiringSoon(r.Context(), within, limit)
	if err != nil {
		rest.WriteError(w, err, h.logger)
		return
	}

	rest.RespondJSON(w, http.StatusOK, views)
}
