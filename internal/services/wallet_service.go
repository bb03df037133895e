package services

import (
	"database/sql"
	"errors"
	"fmt"

	"qpay-backend/internal/models"

	"github.com/rs/zerolog"
	"golang.org/x/crypto/bcrypt"
)

type WalletService struct {
	db          *sql.DB
	logger      zerolog.Logger
	userService *UserService
}

func NewWalletService(db *sql.DB, logger zerolog.Logger, userService *UserService) *WalletService {
	return &WalletService{
		db:          db,
		logger:      logger,
		userService: userService,
	}
}

func validPin(pin string) bool {
	if len(pin) != 4 {
		return false
	}
	for _, c := range pin {
		if c < '0' || c > '9' {
			return false
		}
	}
	return true
}

func (s *WalletService) Register(ownerID int, pin string) (*models.Wallet, error) {
	if !validPin(pin) {
		return nil, errors.New("PIN must be exactly 4 digits")
	}

	var existing int
	err := s.db.QueryRow("SELECT owner_id FROM wallets WHERE owner_id = ?", ownerID).Scan(&existing)
	if err == nil {
		return nil, fmt.Errorf("wallet %w", ErrAlreadyExists)
	} else if err != sql.ErrNoRows {
		s.logger.Error().Err(err).Int("owner_id", ownerID).Msg("Error checking existing wallet")
		return nil, fmt.Errorf("database error: %w", err)
	}

	pinHash, err := bcrypt.GenerateFromPassword([]byte(pin), bcrypt.DefaultCost)
	if err != nil {
		s.logger.Error().Err(err).Msg("Error hashing PIN")
		return nil, fmt.Errorf("failed to hash PIN: %w", err)
	}

	_, err = s.db.Exec(
		"INSERT INTO wallets (owner_id, pin_hash, balance, discount_percent) VALUES (?, ?, 0, 0)",
		ownerID, string(pinHash),
	)
	if isDuplicateEntry(err) {
		// A concurrent registration won the race on the primary key.
		return nil, fmt.Errorf("wallet %w", ErrAlreadyExists)
	}
	if err != nil {
		s.logger.Error().Err(err).Int("owner_id", ownerID).Msg("Error creating wallet")
		return nil, fmt.Errorf("failed to create wallet: %w", err)
	}

	s.logger.Info().Int("owner_id", ownerID).Msg("Wallet registered")
	return s.Get(ownerID)
}

func (s *WalletService) Get(ownerID int) (*models.Wallet, error) {
	var wallet models.Wallet
	err := s.db.QueryRow(
		"SELECT owner_id, pin_hash, balance, discount_percent, created_at, updated_at FROM wallets WHERE owner_id = ?",
		ownerID,
	).Scan(
		&wallet.OwnerID, &wallet.PinHash, &wallet.Balance, &wallet.DiscountPercent,
		&wallet.CreatedAt, &wallet.UpdatedAt,
	)

	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("wallet %w", ErrNotFound)
	}
	if err != nil {
		s.logger.Error().Err(err).Int("owner_id", ownerID).Msg("Error fetching wallet")
		return nil, fmt.Errorf("database error: %w", err)
	}

	return &wallet, nil
}

// VerifyPin checks the owner's wallet PIN. The bcrypt comparison gives no
// feedback about which digit differed.
func (s *WalletService) VerifyPin(ownerID int, pin string) error {
	wallet, err := s.Get(ownerID)
	if err != nil {
		return err
	}

	if bcrypt.CompareHashAndPassword([]byte(wallet.PinHash), []byte(pin)) != nil {
		s.logger.Warn().Int("owner_id", ownerID).Msg("Failed wallet PIN attempt")
		return ErrInvalidPin
	}

	return nil
}

// ResetPin replaces the wallet PIN after re-authenticating against the
// owner's primary account password.
func (s *WalletService) ResetPin(ownerID int, password, newPin string) error {
	if err := s.userService.VerifyPassword(ownerID, password); err != nil {
		return err
	}

	if !validPin(newPin) {
		return errors.New("PIN must be exactly 4 digits")
	}

	pinHash, err := bcrypt.GenerateFromPassword([]byte(newPin), bcrypt.DefaultCost)
	if err != nil {
		s.logger.Error().Err(err).Msg("Error hashing PIN")
		return fmt.Errorf("failed to hash PIN: %w", err)
	}

	result, err := s.db.Exec("UPDATE wallets SET pin_hash = ? WHERE owner_id = ?", string(pinHash), ownerID)
	if err != nil {
		s.logger.Error().Err(err).Int("owner_id", ownerID).Msg("Error updating PIN")
		return fmt.Errorf("failed to update PIN: %w", err)
	}

	if rows, _ := result.RowsAffected(); rows == 0 {
		return fmt.Errorf("wallet %w", ErrNotFound)
	}

	s.logger.Info().Int("owner_id", ownerID).Msg("Wallet PIN reset")
	return nil
}

func (s *WalletService) SetDiscount(ownerID int, percent int) error {
	if percent < 0 || percent > 100 {
		return ErrOutOfRange
	}

	result, err := s.db.Exec("UPDATE wallets SET discount_percent = ? WHERE owner_id = ?", percent, ownerID)
	if err != nil {
		s.logger.Error().Err(err).Int("owner_id", ownerID).Msg("Error updating discount")
		return fmt.Errorf("failed to update discount: %w", err)
	}

	if rows, _ := result.RowsAffected(); rows == 0 {
		return fmt.Errorf("wallet %w", ErrNotFound)
	}

	s.logger.Info().Int("owner_id", ownerID).Int("discount_percent", percent).Msg("Wallet discount updated")
	return nil
}

// TopUp credits a wallet from outside the platform and records the movement
// in the ledger. Admin-only at the handler layer.
func (s *WalletService) TopUp(userID int, amount float64) (*models.Transaction, error) {
	if amount <= 0 {
		return nil, errors.New("amount must be greater than zero")
	}

	tx, err := s.db.Begin()
	if err != nil {
		s.logger.Error().Err(err).Msg("Error starting top-up transaction")
		return nil, fmt.Errorf("failed to start transaction: %w", err)
	}
	defer tx.Rollback()

	var balance float64
	err = tx.QueryRow("SELECT balance FROM wallets WHERE owner_id = ? FOR UPDATE", userID).Scan(&balance)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("wallet %w", ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to fetch balance: %w", err)
	}

	_, err = tx.Exec("UPDATE wallets SET balance = balance + ? WHERE owner_id = ?", amount, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to credit wallet: %w", err)
	}

	result, err := tx.Exec(
		"INSERT INTO transactions (sender_id, receiver_id, base_amount, discount_applied, final_amount, type, status) VALUES (NULL, ?, ?, 0, ?, ?, ?)",
		userID, amount, amount, string(models.TransactionTypeTopUp), string(models.TransactionStatusCompleted),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to record top-up: %w", err)
	}

	transactionID, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("failed to get transaction ID: %w", err)
	}

	if err = tx.Commit(); err != nil {
		s.logger.Error().Err(err).Msg("Error committing top-up")
		return nil, fmt.Errorf("failed to commit top-up: %w", err)
	}

	s.logger.Info().Int("user_id", userID).Float64("amount", amount).Msg("Wallet topped up")

	return &models.Transaction{
		ID:          int(transactionID),
		ReceiverID:  userID,
		BaseAmount:  amount,
		FinalAmount: amount,
		Type:        string(models.TransactionTypeTopUp),
		Status:      string(models.TransactionStatusCompleted),
	}, nil
}
