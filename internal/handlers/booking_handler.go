package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"

	"qpay-backend/internal/middleware"
	"qpay-backend/internal/models"
	"qpay-backend/internal/services"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog"
)

type BookingHandler struct {
	bookingService *services.BookingService
	logger         zerolog.Logger
}

func NewBookingHandler(bookingService *services.BookingService, logger zerolog.Logger) *BookingHandler {
	return &BookingHandler{
		bookingService: bookingService,
		logger:         logger,
	}
}

func (h *BookingHandler) Create(w http.ResponseWriter, r *http.Request) {
	currentUserID, ok := middleware.GetUserID(r)
	if !ok {
		respondWithError(w, http.StatusUnauthorized, "unauthorized", "User not authenticated")
		return
	}

	userRole, _ := middleware.GetUserRole(r)
	if userRole != string(models.RoleUser) {
		respondWithError(w, http.StatusForbidden, "forbidden", "Only customers can create bookings")
		return
	}

	var req models.CreateBookingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid_request", "Invalid request body")
		return
	}

	booking, err := h.bookingService.Create(currentUserID, &req)
	if err != nil {
		h.logger.Error().Err(err).Int("user_id", currentUserID).Msg("Booking creation failed")
		respondServiceError(w, err, http.StatusBadRequest, "booking_failed")
		return
	}

	respondWithJSON(w, http.StatusCreated, booking)
}

func (h *BookingHandler) List(w http.ResponseWriter, r *http.Request) {
	currentUserID, ok := middleware.GetUserID(r)
	if !ok {
		respondWithError(w, http.StatusUnauthorized, "unauthorized", "User not authenticated")
		return
	}

	limit, offset := paginationParams(r)

	bookings, err := h.bookingService.ListForUser(currentUserID, limit, offset)
	if err != nil {
		h.logger.Error().Err(err).Msg("Failed to fetch bookings")
		respondWithError(w, http.StatusInternalServerError, "fetch_failed", "Failed to fetch bookings")
		return
	}

	respondWithJSON(w, http.StatusOK, bookings)
}

func (h *BookingHandler) Get(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	bookingID, err := strconv.Atoi(vars["id"])
	if err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid_booking_id", "Invalid booking ID")
		return
	}

	currentUserID, ok := middleware.GetUserID(r)
	if !ok {
		respondWithError(w, http.StatusUnauthorized, "unauthorized", "User not authenticated")
		return
	}

	booking, err := h.bookingService.GetByID(bookingID)
	if err != nil {
		respondServiceError(w, err, http.StatusInternalServerError, "fetch_failed")
		return
	}

	userRole, _ := middleware.GetUserRole(r)
	if userRole != string(models.RoleAdmin) &&
		booking.UserID != currentUserID && booking.ServiceProviderID != currentUserID {
		respondWithError(w, http.StatusNotFound, "not_found", "Booking not found")
		return
	}

	respondWithJSON(w, http.StatusOK, booking)
}

func (h *BookingHandler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	bookingID, err := strconv.Atoi(vars["id"])
	if err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid_booking_id", "Invalid booking ID")
		return
	}

	currentUserID, ok := middleware.GetUserID(r)
	if !ok {
		respondWithError(w, http.StatusUnauthorized, "unauthorized", "User not authenticated")
		return
	}

	var req models.UpdateBookingStatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid_request", "Invalid request body")
		return
	}

	booking, err := h.bookingService.UpdateStatus(bookingID, currentUserID, models.BookingStatus(req.Status))
	if err != nil {
		h.logger.Warn().Err(err).Int("booking_id", bookingID).Msg("Booking status update rejected")
		respondServiceError(w, err, http.StatusBadRequest, "update_failed")
		return
	}

	respondWithJSON(w, http.StatusOK, booking)
}

// paginationParams reads page/limit query parameters with the defaults used
// across all list endpoints.
func paginationParams(r *http.Request) (limit, offset int) {
	limit = 50
	page := 1

	if l, err := strconv.Atoi(r.URL.Query().Get("limit")); err == nil && l > 0 && l <= 200 {
		limit = l
	}
	if p, err := strconv.Atoi(r.URL.Query().Get("page")); err == nil && p > 0 {
		page = p
	}

	return limit, (page - 1) * limit
}
