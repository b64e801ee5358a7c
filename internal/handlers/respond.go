package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/udhaari/khata/internal/middleware"
	"github.com/udhaari/khata/internal/models"
	"github.com/udhaari/khata/internal/services"
)

const maxBodyBytes = 1_048_576

// decodeJSON reads exactly one JSON object and rejects unknown fields.
// On failure it has already written the response.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()

	if err := dec.Decode(dst); err != nil {
		services.SendErrorResponse(w, "Invalid request body", http.StatusBadRequest, nil)
		return false
	}
	if err := dec.Decode(&struct{}{}); err != io.EOF {
		services.SendErrorResponse(w, "Request body must only contain a single JSON object", http.StatusBadRequest, nil)
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func ownerFrom(w http.ResponseWriter, r *http.Request) (string, bool) {
	ownerID, ok := middleware.OwnerID(r.Context())
	if !ok {
		services.SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
		return "", false
	}
	return ownerID, true
}

// writeError maps engine errors onto HTTP. Undo notices are 409, never 5xx.
func writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, models.ErrValidation):
		services.SendErrorResponse(w, "Validation failed", http.StatusBadRequest, err)
	case errors.Is(err, models.ErrNotFound):
		services.SendErrorResponse(w, err.Error(), http.StatusNotFound, nil)
	case errors.Is(err, models.ErrUndoExpired):
		services.SendErrorResponse(w, "Undo window has expired", http.StatusConflict, nil)
	case errors.Is(err, models.ErrUndoUnavailable):
		services.SendErrorResponse(w, "Nothing to undo", http.StatusConflict, nil)
	case errors.Is(err, models.ErrConflict):
		services.SendErrorResponse(w, "Customer was modified concurrently, please retry", http.StatusConflict, nil)
	case errors.Is(err, models.ErrWriteFailure):
		w.Header().Set("Retry-After", "1")
		services.SendErrorResponse(w, "Could not save, please retry", http.StatusServiceUnavailable, nil)
	default:
		services.SendErrorResponse(w, "Internal server error", http.StatusInternalServerError, nil)
	}
}
