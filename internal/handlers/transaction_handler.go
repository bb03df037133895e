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

type TransactionHandler struct {
	paymentService *services.PaymentService
	ledgerService  *services.LedgerService
	logger         zerolog.Logger
}

func NewTransactionHandler(paymentService *services.PaymentService, ledgerService *services.LedgerService, logger zerolog.Logger) *TransactionHandler {
	return &TransactionHandler{
		paymentService: paymentService,
		ledgerService:  ledgerService,
		logger:         logger,
	}
}

// SendMoney settles a wallet-to-wallet payment. A caller-supplied
// Idempotency-Key header makes network-level retries safe.
func (h *TransactionHandler) SendMoney(w http.ResponseWriter, r *http.Request) {
	currentUserID, ok := middleware.GetUserID(r)
	if !ok {
		respondWithError(w, http.StatusUnauthorized, "unauthorized", "User not authenticated")
		return
	}

	var req models.SendMoneyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid_request", "Invalid request body")
		return
	}

	idempotencyKey := r.Header.Get("Idempotency-Key")
	if len(idempotencyKey) > 64 {
		respondWithError(w, http.StatusBadRequest, "invalid_request", "Idempotency-Key must be at most 64 characters")
		return
	}

	transaction, err := h.paymentService.Settle(currentUserID, &req, idempotencyKey)
	if err != nil {
		h.logger.Warn().Err(err).Int("sender_id", currentUserID).Msg("Settlement rejected")
		respondServiceError(w, err, http.StatusInternalServerError, "settlement_failed")
		return
	}

	respondWithJSON(w, http.StatusCreated, transaction)
}

func (h *TransactionHandler) GetHistory(w http.ResponseWriter, r *http.Request) {
	currentUserID, ok := middleware.GetUserID(r)
	if !ok {
		respondWithError(w, http.StatusUnauthorized, "unauthorized", "User not authenticated")
		return
	}

	limit, offset := paginationParams(r)

	transactions, err := h.ledgerService.ListForUser(currentUserID, limit, offset)
	if err != nil {
		h.logger.Error().Err(err).Msg("Failed to fetch transaction history")
		respondWithError(w, http.StatusInternalServerError, "fetch_failed", "Failed to fetch transaction history")
		return
	}

	respondWithJSON(w, http.StatusOK, transactions)
}

func (h *TransactionHandler) GetTransaction(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	transactionID, err := strconv.Atoi(vars["id"])
	if err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid_transaction_id", "Invalid transaction ID")
		return
	}

	currentUserID, ok := middleware.GetUserID(r)
	if !ok {
		respondWithError(w, http.StatusUnauthorized, "unauthorized", "User not authenticated")
		return
	}

	transaction, err := h.ledgerService.GetTransactionForUser(transactionID, currentUserID)
	if err != nil {
		respondServiceError(w, err, http.StatusInternalServerError, "fetch_failed")
		return
	}

	respondWithJSON(w, http.StatusOK, transaction)
}

func (h *TransactionHandler) GetReceipt(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	transactionID, err := strconv.Atoi(vars["id"])
	if err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid_transaction_id", "Invalid transaction ID")
		return
	}

	currentUserID, ok := middleware.GetUserID(r)
	if !ok {
		respondWithError(w, http.StatusUnauthorized, "unauthorized", "User not authenticated")
		return
	}

	receipt, err := h.ledgerService.Receipt(transactionID, currentUserID)
	if err != nil {
		respondServiceError(w, err, http.StatusInternalServerError, "fetch_failed")
		return
	}

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(receipt))
}
