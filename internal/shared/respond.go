package shared

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
)

// Response is the envelope returned by every API endpoint.
type Response struct {
	Status  int    `json:"status"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

// RespondJSON writes the envelope with the given HTTP status.
func RespondJSON(w http.ResponseWriter, status int, message string, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(Response{Status: status, Message: message, Data: data})
}

// RespondError maps domain errors onto the envelope.
func RespondError(w http.ResponseWriter, logger *slog.Logger, err error) {
	switch {
	case errors.Is(err, ErrNotFound):
		RespondJSON(w, http.StatusNotFound, err.Error(), nil)
	case errors.Is(err, ErrUnauthenticated):
		RespondJSON(w, http.StatusUnauthorized, err.Error(), nil)
	case errors.Is(err, ErrInvalidReference):
		RespondJSON(w, http.StatusBadRequest, err.Error(), nil)
	case errors.Is(err, ErrConcurrencyConflict):
		RespondJSON(w, http.StatusConflict, err.Error(), nil)
	default:
		if logger != nil {
			logger.Error("request failed", slog.Any("error", err))
		}
		RespondJSON(w, http.StatusInternalServerError, "internal error", nil)
	}
}
