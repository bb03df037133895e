package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"

	"qpay-backend/internal/middleware"
	"qpay-backend/internal/models"
	"qpay-backend/internal/services"

	"github.com/rs/zerolog"
)

type WalletHandler struct {
	walletService *services.WalletService
	userService   *services.UserService
	authService   *services.AuthService
	logger        zerolog.Logger
}

func NewWalletHandler(walletService *services.WalletService, userService *services.UserService, authService *services.AuthService, logger zerolog.Logger) *WalletHandler {
	return &WalletHandler{
		walletService: walletService,
		userService:   userService,
		authService:   authService,
		logger:        logger,
	}
}

func (h *WalletHandler) Register(w http.ResponseWriter, r *http.Request) {
	currentUserID, ok := middleware.GetUserID(r)
	if !ok {
		respondWithError(w, http.StatusUnauthorized, "unauthorized", "User not authenticated")
		return
	}

	var req models.RegisterWalletRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid_request", "Invalid request body")
		return
	}

	wallet, err := h.walletService.Register(currentUserID, req.Pin)
	if err != nil {
		h.logger.Error().Err(err).Int("user_id", currentUserID).Msg("Wallet registration failed")
		respondServiceError(w, err, http.StatusBadRequest, "registration_failed")
		return
	}

	respondWithJSON(w, http.StatusCreated, wallet)
}

func (h *WalletHandler) Login(w http.ResponseWriter, r *http.Request) {
	currentUserID, ok := middleware.GetUserID(r)
	if !ok {
		respondWithError(w, http.StatusUnauthorized, "unauthorized", "User not authenticated")
		return
	}

	var req models.WalletLoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid_request", "Invalid request body")
		return
	}

	if err := h.walletService.VerifyPin(currentUserID, req.Pin); err != nil {
		respondServiceError(w, err, http.StatusBadRequest, "login_failed")
		return
	}

	user, err := h.userService.GetUserByID(currentUserID)
	if err != nil {
		respondWithError(w, http.StatusNotFound, "not_found", "User not found")
		return
	}

	token, err := h.authService.GenerateWalletToken(user.ID, user.Email, user.Role)
	if err != nil {
		h.logger.Error().Err(err).Msg("Wallet token generation failed")
		respondWithError(w, http.StatusInternalServerError, "token_generation_failed", "Failed to generate token")
		return
	}

	respondWithJSON(w, http.StatusOK, map[string]string{"token": token})
}

func (h *WalletHandler) Get(w http.ResponseWriter, r *http.Request) {
	currentUserID, ok := middleware.GetUserID(r)
	if !ok {
		respondWithError(w, http.StatusUnauthorized, "unauthorized", "User not authenticated")
		return
	}

	wallet, err := h.walletService.Get(currentUserID)
	if err != nil {
		respondServiceError(w, err, http.StatusInternalServerError, "fetch_failed")
		return
	}

	respondWithJSON(w, http.StatusOK, wallet)
}

func (h *WalletHandler) ResetPin(w http.ResponseWriter, r *http.Request) {
	currentUserID, ok := middleware.GetUserID(r)
	if !ok {
		respondWithError(w, http.StatusUnauthorized, "unauthorized", "User not authenticated")
		return
	}

	var req models.ResetPinRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid_request", "Invalid request body")
		return
	}

	if err := h.walletService.ResetPin(currentUserID, req.Password, req.NewPin); err != nil {
		respondServiceError(w, err, http.StatusBadRequest, "reset_failed")
		return
	}

	respondWithJSON(w, http.StatusOK, map[string]string{"message": "PIN updated successfully"})
}

func (h *WalletHandler) SetDiscount(w http.ResponseWriter, r *http.Request) {
	currentUserID, ok := middleware.GetUserID(r)
	if !ok {
		respondWithError(w, http.StatusUnauthorized, "unauthorized", "User not authenticated")
		return
	}

	var req models.SetDiscountRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid_request", "Invalid request body")
		return
	}

	if err := h.walletService.SetDiscount(currentUserID, req.Percent); err != nil {
		respondServiceError(w, err, http.StatusBadRequest, "update_failed")
		return
	}

	respondWithJSON(w, http.StatusOK, map[string]interface{}{
		"message":          "Discount updated successfully",
		"discount_percent": req.Percent,
	})
}

// Preview computes what a payment would cost after the provider's discount,
// using the same calculator settlement uses.
func (h *WalletHandler) Preview(w http.ResponseWriter, r *http.Request) {
	if _, ok := middleware.GetUserID(r); !ok {
		respondWithError(w, http.StatusUnauthorized, "unauthorized", "User not authenticated")
		return
	}

	providerID, err := strconv.Atoi(r.URL.Query().Get("provider_id"))
	if err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid_request", "provider_id is required")
		return
	}

	amount, err := strconv.ParseFloat(r.URL.Query().Get("amount"), 64)
	if err != nil || amount < 0 {
		respondWithError(w, http.StatusBadRequest, "invalid_request", "amount must be a non-negative number")
		return
	}

	wallet, err := h.walletService.Get(providerID)
	if err != nil {
		respondServiceError(w, err, http.StatusInternalServerError, "fetch_failed")
		return
	}

	respondWithJSON(w, http.StatusOK, map[string]interface{}{
		"base_amount":      amount,
		"discount_percent": wallet.DiscountPercent,
		"final_amount":     services.FinalAmount(amount, wallet.DiscountPercent),
	})
}

// TopUp is admin-only; the route enforces the role.
func (h *WalletHandler) TopUp(w http.ResponseWriter, r *http.Request) {
	var req models.TopUpRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid_request", "Invalid request body")
		return
	}

	transaction, err := h.walletService.TopUp(req.UserID, req.Amount)
	if err != nil {
		h.logger.Error().Err(err).Int("user_id", req.UserID).Msg("Top-up failed")
		respondServiceError(w, err, http.StatusBadRequest, "topup_failed")
		return
	}

	respondWithJSON(w, http.StatusCreated, transaction)
}
