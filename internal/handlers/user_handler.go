package handlers

import (
	"net/http"
	"strconv"

	"qpay-backend/internal/middleware"
	"qpay-backend/internal/models"
	"qpay-backend/internal/services"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog"
)

type UserHandler struct {
	userService *services.UserService
	logger      zerolog.Logger
}

func NewUserHandler(userService *services.UserService, logger zerolog.Logger) *UserHandler {
	return &UserHandler{
		userService: userService,
		logger:      logger,
	}
}

func (h *UserHandler) GetUser(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	userID, err := strconv.Atoi(vars["id"])
	if err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid_user_id", "Invalid user ID")
		return
	}

	currentUserID, ok := middleware.GetUserID(r)
	if !ok {
		respondWithError(w, http.StatusUnauthorized, "unauthorized", "User not authenticated")
		return
	}

	userRole, _ := middleware.GetUserRole(r)

	if userRole != string(models.RoleAdmin) && currentUserID != userID {
		respondWithError(w, http.StatusForbidden, "forbidden", "You can only view your own profile")
		return
	}

	user, err := h.userService.GetUserByID(userID)
	if err != nil {
		respondWithError(w, http.StatusNotFound, "not_found", "User not found")
		return
	}

	user.PasswordHash = ""
	respondWithJSON(w, http.StatusOK, user)
}

// ListProviders serves the provider directory used by the booking screens.
func (h *UserHandler) ListProviders(w http.ResponseWriter, r *http.Request) {
	providers, err := h.userService.ListProviders()
	if err != nil {
		h.logger.Error().Err(err).Msg("Failed to fetch providers")
		respondWithError(w, http.StatusInternalServerError, "fetch_failed", "Failed to fetch providers")
		return
	}

	respondWithJSON(w, http.StatusOK, providers)
}
