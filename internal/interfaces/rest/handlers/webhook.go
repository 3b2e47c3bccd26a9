package handlers

import (
	"io"
	"net/http"

	"github.com/servilink/payhold/internal/application"
	"github.com/servilink/payhold/internal/interfaces/rest"
)

// HandleProcessorWebhook receives processor event notifications. A 2xx here
// acknowledges the delivery, so it is only sent once the event is durably
// recorded; a non-2xx makes the processor redeliver.
func (h *Handlers) HandleProcessorWebhook(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		rest.WriteError(w, application.NewInvalidInputError(err), h.logger)
		return
	}

	signature := r.Header.Get("X-Processor-Signature")
	if err := h.reconciler.Process(r.Context(), body, signature); err != nil {
		rest.WriteError(w, err, h.logger)
		return
	}

	rest.RespondJSON(w, http.StatusOK, map[string]string{"received": "true"})
}
