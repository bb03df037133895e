package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"qpay-backend/internal/services"
)

func respondWithError(w http.ResponseWriter, code int, errorCode, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]string{
		"error":   errorCode,
		"message": message,
	})
}

func respondWithJSON(w http.ResponseWriter, code int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(payload)
}

// respondServiceError maps the service error taxonomy onto stable error codes
// and HTTP statuses. Unrecognized errors fall back to the passed default.
func respondServiceError(w http.ResponseWriter, err error, defaultCode int, defaultErrorCode string) {
	switch {
	case errors.Is(err, services.ErrInvalidTransition):
		respondWithError(w, http.StatusConflict, "invalid_transition", err.Error())
	case errors.Is(err, services.ErrInvalidPin):
		respondWithError(w, http.StatusUnauthorized, "invalid_pin", "Invalid PIN")
	case errors.Is(err, services.ErrInsufficientBalance):
		respondWithError(w, http.StatusUnprocessableEntity, "insufficient_balance", "Insufficient wallet balance")
	case errors.Is(err, services.ErrDuplicateRequest):
		respondWithError(w, http.StatusConflict, "duplicate_request", err.Error())
	case errors.Is(err, services.ErrAlreadyPaid):
		respondWithError(w, http.StatusConflict, "already_paid", err.Error())
	case errors.Is(err, services.ErrInvalidState):
		respondWithError(w, http.StatusConflict, "invalid_state", err.Error())
	case errors.Is(err, services.ErrOutOfRange):
		respondWithError(w, http.StatusBadRequest, "out_of_range", err.Error())
	case errors.Is(err, services.ErrUnauthorized):
		respondWithError(w, http.StatusUnauthorized, "unauthorized", err.Error())
	case errors.Is(err, services.ErrForbidden):
		respondWithError(w, http.StatusForbidden, "forbidden", err.Error())
	case errors.Is(err, services.ErrNotFound):
		respondWithError(w, http.StatusNotFound, "not_found", err.Error())
	case errors.Is(err, services.ErrAlreadyExists):
		respondWithError(w, http.StatusConflict, "already_exists", err.Error())
	default:
		respondWithError(w, defaultCode, defaultErrorCode, err.Error())
	}
}
