package rest

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/servilink/payhold/internal/application"
)

type APIResponse struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   *APIError   `json:"error,omitempty"`
}

type APIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func RespondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	_ = json.NewEncoder(w).Encode(APIResponse{
		Success: status >= 200 && status < 300,
		Data:    data,
	})
}

// WriteError maps engine errors onto the API envelope.
func WriteError(w http.ResponseWriter, err error, logger *slog.Logger) {
	status := application.ToHTTPStatus(err)
	code := application.ToErrorCode(err)

	if status >= 500 {
		logger.Error("request failed", "code", code, "error", err)
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	_ = json.NewEncoder(w).Encode(APIResponse{
		Success: false,
		Error: &APIError{
			Code:    code,
			Message: err.Error(),
		},
	})
}
