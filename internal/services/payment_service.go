package services

import (
	"database/sql"
	"errors"
	"fmt"
	"sync"

	"qpay-backend/internal/metrics"
	"qpay-backend/internal/models"

	"github.com/rs/zerolog"
)

// PaymentService orchestrates wallet-to-wallet settlement: PIN check,
// discount application, atomic balance update plus ledger write, and the
// linked money request / booking status updates.
type PaymentService struct {
	db             *sql.DB
	logger         zerolog.Logger
	walletService  *WalletService
	bookingService *BookingService
	ledgerService  *LedgerService
	mu             sync.Map
}

func NewPaymentService(db *sql.DB, logger zerolog.Logger, walletService *WalletService, bookingService *BookingService, ledgerService *LedgerService) *PaymentService {
	return &PaymentService{
		db:             db,
		logger:         logger,
		walletService:  walletService,
		bookingService: bookingService,
		ledgerService:  ledgerService,
	}
}

func (s *PaymentService) getMutex(payerID int) *sync.Mutex {
	mu, _ := s.mu.LoadOrStore(payerID, &sync.Mutex{})
	return mu.(*sync.Mutex)
}

// Settle executes a settlement for payerID. Steps up to and including the
// ledger write happen in one SQL transaction, so a failure after the balance
// mutation rolls the money movement back together with it. The booking status
// update runs after commit and is best-effort. A non-empty idempotencyKey
// makes retries return the original transaction.
func (s *PaymentService) Settle(payerID int, req *models.SendMoneyRequest, idempotencyKey string) (*models.Transaction, error) {
	transaction, err := s.settle(payerID, req, idempotencyKey)
	switch {
	case err == nil:
		metrics.SettlementsTotal.WithLabelValues("completed").Inc()
	case errors.Is(err, ErrInvalidPin), errors.Is(err, ErrInsufficientBalance),
		errors.Is(err, ErrAlreadyPaid), errors.Is(err, ErrNotFound), errors.Is(err, ErrForbidden):
		metrics.SettlementsTotal.WithLabelValues("rejected").Inc()
	default:
		metrics.SettlementsTotal.WithLabelValues("failed").Inc()
	}
	return transaction, err
}

func (s *PaymentService) settle(payerID int, req *models.SendMoneyRequest, idempotencyKey string) (*models.Transaction, error) {
	if req.ReceiverID == payerID {
		return nil, errors.New("cannot send money to your own wallet")
	}
	if req.RequestID == nil && req.Amount <= 0 {
		return nil, errors.New("amount must be greater than zero")
	}

	if idempotencyKey != "" {
		existing, err := s.ledgerService.GetByIdempotencyKey(idempotencyKey)
		if err == nil {
			if existing.SenderID == nil || *existing.SenderID != payerID {
				return nil, fmt.Errorf("transaction %w", ErrNotFound)
			}
			s.logger.Info().Str("idempotency_key", idempotencyKey).Int("transaction_id", existing.ID).Msg("Idempotent settlement replay")
			return existing, nil
		}
		if !errors.Is(err, ErrNotFound) {
			return nil, err
		}
	}

	if err := s.walletService.VerifyPin(payerID, req.Pin); err != nil {
		return nil, err
	}

	mu := s.getMutex(payerID)
	mu.Lock()
	defer mu.Unlock()

	tx, err := s.db.Begin()
	if err != nil {
		s.logger.Error().Err(err).Msg("Error starting settlement transaction")
		return nil, fmt.Errorf("failed to start transaction: %w", err)
	}
	defer tx.Rollback()

	payerBalance, receiverDiscount, err := s.lockWallets(tx, payerID, req.ReceiverID)
	if err != nil {
		return nil, err
	}

	baseAmount := req.Amount
	bookingID := req.BookingID

	if req.RequestID != nil {
		request, err := s.lockRequest(tx, *req.RequestID)
		if err != nil {
			return nil, err
		}
		if request.UserID != payerID || request.ServiceProviderID != req.ReceiverID {
			return nil, ErrForbidden
		}
		if request.Status != models.RequestPending {
			return nil, ErrAlreadyPaid
		}
		// The request amount is authoritative for request-backed payments.
		baseAmount = request.Amount
		if bookingID == nil {
			id := request.BookingID
			bookingID = &id
		}
	} else if bookingID != nil {
		bookingUserID, bookingProviderID, err := s.lockBooking(tx, *bookingID)
		if err != nil {
			return nil, err
		}
		if bookingUserID != payerID || bookingProviderID != req.ReceiverID {
			return nil, ErrForbidden
		}
	}

	finalAmount := FinalAmount(baseAmount, receiverDiscount)
	if payerBalance < finalAmount {
		return nil, ErrInsufficientBalance
	}

	_, err = tx.Exec("UPDATE wallets SET balance = balance - ? WHERE owner_id = ?", finalAmount, payerID)
	if err != nil {
		return nil, fmt.Errorf("failed to debit payer: %w", err)
	}
	_, err = tx.Exec("UPDATE wallets SET balance = balance + ? WHERE owner_id = ?", finalAmount, req.ReceiverID)
	if err != nil {
		return nil, s.abortAfterBalanceMutation(payerID, req.ReceiverID, err)
	}

	var idemKey sql.NullString
	if idempotencyKey != "" {
		idemKey = sql.NullString{String: idempotencyKey, Valid: true}
	}

	result, err := tx.Exec(
		"INSERT INTO transactions (sender_id, receiver_id, base_amount, discount_applied, final_amount, type, booking_id, request_id, status, idempotency_key) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)",
		payerID, req.ReceiverID, baseAmount, receiverDiscount, finalAmount,
		string(models.TransactionTypeTransfer), bookingID, req.RequestID,
		string(models.TransactionStatusCompleted), idemKey,
	)
	if err != nil {
		if isDuplicateEntry(err) && idempotencyKey != "" {
			// A concurrent retry with the same key won the race.
			tx.Rollback()
			return s.ledgerService.GetByIdempotencyKey(idempotencyKey)
		}
		return nil, s.abortAfterBalanceMutation(payerID, req.ReceiverID, err)
	}

	transactionID, err := result.LastInsertId()
	if err != nil {
		return nil, s.abortAfterBalanceMutation(payerID, req.ReceiverID, err)
	}

	if req.RequestID != nil {
		_, err = tx.Exec("UPDATE money_requests SET status = ? WHERE id = ?", string(models.RequestPaid), *req.RequestID)
		if err != nil {
			return nil, s.abortAfterBalanceMutation(payerID, req.ReceiverID, err)
		}
	}

	if err = tx.Commit(); err != nil {
		s.logger.Error().Err(err).Msg("Error committing settlement")
		return nil, fmt.Errorf("failed to commit settlement: %w", err)
	}

	s.logger.Info().
		Int("transaction_id", int(transactionID)).
		Int("sender_id", payerID).
		Int("receiver_id", req.ReceiverID).
		Float64("base_amount", baseAmount).
		Int("discount_applied", receiverDiscount).
		Float64("final_amount", finalAmount).
		Msg("Settlement completed")

	// Money movement is committed. The booking status is metadata only; an
	// invalid transition here must not undo the settlement.
	if bookingID != nil {
		if err := s.bookingService.MarkPaid(*bookingID); err != nil {
			s.logger.Warn().
				Err(err).
				Int("booking_id", *bookingID).
				Int("transaction_id", int(transactionID)).
				Msg("Settlement committed but booking was not moved to paid")
		}
	}

	return s.ledgerService.GetTransactionByID(int(transactionID))
}

// lockWallets acquires both wallet row locks in ascending owner-id order and
// returns the payer balance and the receiver's discount percent.
func (s *PaymentService) lockWallets(tx *sql.Tx, payerID, receiverID int) (float64, int, error) {
	first, second := payerID, receiverID
	if first > second {
		first, second = second, first
	}

	type walletRow struct {
		balance  float64
		discount int
	}
	rows := make(map[int]walletRow, 2)

	for _, id := range []int{first, second} {
		var row walletRow
		err := tx.QueryRow(
			"SELECT balance, discount_percent FROM wallets WHERE owner_id = ? FOR UPDATE",
			id,
		).Scan(&row.balance, &row.discount)
		if err == sql.ErrNoRows {
			return 0, 0, fmt.Errorf("wallet for user %d %w", id, ErrNotFound)
		}
		if err != nil {
			return 0, 0, fmt.Errorf("failed to lock wallet: %w", err)
		}
		rows[id] = row
	}

	return rows[payerID].balance, rows[receiverID].discount, nil
}

// lockBooking verifies a directly-referenced booking belongs to the paying
// parties before it gets stamped into the ledger and marked paid.
func (s *PaymentService) lockBooking(tx *sql.Tx, bookingID int) (userID, providerID int, err error) {
	err = tx.QueryRow(
		"SELECT user_id, service_provider_id FROM bookings WHERE id = ? FOR UPDATE",
		bookingID,
	).Scan(&userID, &providerID)
	if err == sql.ErrNoRows {
		return 0, 0, fmt.Errorf("booking %w", ErrNotFound)
	}
	if err != nil {
		return 0, 0, fmt.Errorf("failed to lock booking: %w", err)
	}
	return userID, providerID, nil
}

func (s *PaymentService) lockRequest(tx *sql.Tx, requestID int) (*models.MoneyRequest, error) {
	var request models.MoneyRequest
	var status string
	err := tx.QueryRow(
		"SELECT id, booking_id, service_provider_id, user_id, amount, status FROM money_requests WHERE id = ? FOR UPDATE",
		requestID,
	).Scan(&request.ID, &request.BookingID, &request.ServiceProviderID, &request.UserID, &request.Amount, &status)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("money request %w", ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to lock money request: %w", err)
	}
	request.Status = models.MoneyRequestStatus(status)
	return &request, nil
}

// abortAfterBalanceMutation is the one failure mode with no safe automatic
// recovery short of the rollback itself, so it gets a dedicated log line.
func (s *PaymentService) abortAfterBalanceMutation(payerID, receiverID int, err error) error {
	s.logger.Error().
		Err(err).
		Int("sender_id", payerID).
		Int("receiver_id", receiverID).
		Msg("Unresolved settlement: failure after balance mutation, rolling back")
	return fmt.Errorf("settlement failed: %w", err)
}
