package handlers

import (
	"encoding/json"
	"net/http"

	"qpay-backend/internal/middleware"
	"qpay-backend/internal/models"
	"qpay-backend/internal/services"

	"github.com/rs/zerolog"
)

type RequestHandler struct {
	requestService *services.RequestService
	logger         zerolog.Logger
}

func NewRequestHandler(requestService *services.RequestService, logger zerolog.Logger) *RequestHandler {
	return &RequestHandler{
		requestService: requestService,
		logger:         logger,
	}
}

func (h *RequestHandler) Create(w http.ResponseWriter, r *http.Request) {
	currentUserID, ok := middleware.GetUserID(r)
	if !ok {
		respondWithError(w, http.StatusUnauthorized, "unauthorized", "User not authenticated")
		return
	}

	userRole, _ := middleware.GetUserRole(r)
	if userRole != string(models.RoleProvider) {
		respondWithError(w, http.StatusForbidden, "forbidden", "Only providers can request payment")
		return
	}

	var req models.CreateMoneyRequestRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid_request", "Invalid request body")
		return
	}

	request, err := h.requestService.Create(currentUserID, &req)
	if err != nil {
		h.logger.Warn().Err(err).Int("booking_id", req.BookingID).Msg("Money request rejected")
		respondServiceError(w, err, http.StatusBadRequest, "request_failed")
		return
	}

	respondWithJSON(w, http.StatusCreated, request)
}

func (h *RequestHandler) List(w http.ResponseWriter, r *http.Request) {
	currentUserID, ok := middleware.GetUserID(r)
	if !ok {
		respondWithError(w, http.StatusUnauthorized, "unauthorized", "User not authenticated")
		return
	}

	limit, offset := paginationParams(r)

	requests, err := h.requestService.ListForUser(currentUserID, limit, offset)
	if err != nil {
		h.logger.Error().Err(err).Msg("Failed to fetch money requests")
		respondWithError(w, http.StatusInternalServerError, "fetch_failed", "Failed to fetch money requests")
		return
	}

	respondWithJSON(w, http.StatusOK, requests)
}
