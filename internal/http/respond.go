package http

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"finledger/internal/core"
	"finledger/internal/crypto"
)

// Response is the envelope every JSON endpoint answers with.
type Response struct {
	Success    bool   `json:"success"`
	Message    string `json:"message,omitempty"`
	Data       any    `json:"data,omitempty"`
	Error      string `json:"error,omitempty"`
	StatusCode int    `json:"statusCode"`
}

func writeJSON(w http.ResponseWriter, status int, resp Response) {
	resp.StatusCode = status
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		slog.Error("Failed to encode response", "error", err)
	}
}

func writeData(w http.ResponseWriter, status int, message string, data any) {
	writeJSON(w, status, Response{Success: true, Message: message, Data: data})
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, Response{Success: false, Error: msg})
}

// writeServiceError maps engine errors onto the status codes of the API
// contract. Validation failures are 400 with the sentinel's message, missing
// records are 404, everything else is an opaque 500.
func writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, core.ErrNotFound):
		writeError(w, http.StatusNotFound, "transaction not found")
	case errors.Is(err, core.ErrInvalidDateFormat),
		errors.Is(err, core.ErrInvalidAmount),
		errors.Is(err, core.ErrEmptyDescription),
		errors.Is(err, core.ErrDescriptionTooLong),
		errors.Is(err, core.ErrInvalidRecurrenceData),
		errors.Is(err, core.ErrInvalidDateRange),
		errors.Is(err, core.ErrInvalidRecurrenceType),
		errors.Is(err, core.ErrInvalidID):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, crypto.ErrDecryptionFailed):
		slog.ErrorContext(r.Context(), "Decryption failure", "error", err, "url", r.URL.Path)
		writeError(w, http.StatusInternalServerError, "internal error")
	default:
		slog.ErrorContext(r.Context(), "Request failed", "error", err, "url", r.URL.Path)
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}
