// Package handlers exposes the hold engine over HTTP.
package handlers

import (
	"log/slog"
	"net/http"

	"github.com/go-playground/validator"
	"github.com/servilink/payhold/internal/application/services"
	"github.com/servilink/payhold/internal/webhook"
)

type Handlers struct {
	engine     *services.HoldEngine
	reconciler *webhook.Reconciler
	validate   *validator.Validate
	logger     *slog.Logger
}

func NewHandlers(engine *services.HoldEngine, reconciler *webhook.Reconciler, logger *slog.Logger) *Handlers {
	return &Handlers{
		engine:     engine,
		reconciler: reconciler,
		validate:   validator.New(),
		logger:     logger,
	}
}

func (h *Handlers) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/v1/holds", h.HandleCreateHold)
	mux.HandleFunc("GET /api/v1/holds/expiring", h.HandleListExpiring)
	mux.HandleFunc("GET /api/v1/holds/{id}", h.HandleGetHold)
	mux.HandleFunc("POST /api/v1/holds/{id}/capture", h.HandleCapture)
	mux.HandleFunc("POST /api/v1/holds/{id}/cancel", h.HandleCancel)
	mux.HandleFunc("POST /api/v1/webhooks/processor", h.HandleProcessorWebhook)
}
