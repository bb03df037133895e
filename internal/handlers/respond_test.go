package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"qpay-backend/internal/models"
	"qpay-backend/internal/services"
)

func TestRespondServiceErrorMapping(t *testing.T) {
	tests := []struct {
		err        error
		wantStatus int
		wantCode   string
	}{
		{&services.TransitionError{From: models.BookingPending, To: models.BookingPaid}, http.StatusConflict, "invalid_transition"},
		{services.ErrInvalidPin, http.StatusUnauthorized, "invalid_pin"},
		{services.ErrInsufficientBalance, http.StatusUnprocessableEntity, "insufficient_balance"},
		{services.ErrDuplicateRequest, http.StatusConflict, "duplicate_request"},
		{services.ErrAlreadyPaid, http.StatusConflict, "already_paid"},
		{fmt.Errorf("booking status is pending: %w", services.ErrInvalidState), http.StatusConflict, "invalid_state"},
		{services.ErrOutOfRange, http.StatusBadRequest, "out_of_range"},
		{services.ErrUnauthorized, http.StatusUnauthorized, "unauthorized"},
		{services.ErrForbidden, http.StatusForbidden, "forbidden"},
		{fmt.Errorf("wallet %w", services.ErrNotFound), http.StatusNotFound, "not_found"},
		{services.ErrAlreadyExists, http.StatusConflict, "already_exists"},
		{fmt.Errorf("database error"), http.StatusInternalServerError, "settlement_failed"},
	}

	for _, tt := range tests {
		t.Run(tt.wantCode, func(t *testing.T) {
			rec := httptest.NewRecorder()
			respondServiceError(rec, tt.err, http.StatusInternalServerError, "settlement_failed")

			if rec.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", rec.Code, tt.wantStatus)
			}

			var body map[string]string
			if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
				t.Fatalf("response is not JSON: %v", err)
			}
			if body["error"] != tt.wantCode {
				t.Errorf("error code = %q, want %q", body["error"], tt.wantCode)
			}
			if body["message"] == "" {
				t.Error("expected a human-readable message")
			}
		})
	}
}

func TestTransitionErrorMessage(t *testing.T) {
	err := &services.TransitionError{From: models.BookingConfirmed, To: models.BookingPaid}
	want := "invalid transition from confirmed to paid"
	if err.Error() != want {
		t.Errorf("Error() = %q, want %q", err.Error(), want)
	}
}
