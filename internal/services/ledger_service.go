package services

import (
	"database/sql"
	"fmt"
	"strings"

	"qpay-backend/internal/models"

	"github.com/rs/zerolog"
)

// LedgerService reads the append-only transaction record. There is no update
// path here: rows are written once by settlement or top-up and only queried
// afterwards.
type LedgerService struct {
	db     *sql.DB
	logger zerolog.Logger
}

func NewLedgerService(db *sql.DB, logger zerolog.Logger) *LedgerService {
	return &LedgerService{
		db:     db,
		logger: logger,
	}
}

const transactionColumns = "id, sender_id, receiver_id, base_amount, discount_applied, final_amount, type, booking_id, request_id, status, created_at"

func scanTransaction(row interface{ Scan(...interface{}) error }) (*models.Transaction, error) {
	var t models.Transaction
	var senderID, bookingID, requestID sql.NullInt64

	err := row.Scan(
		&t.ID, &senderID, &t.ReceiverID, &t.BaseAmount, &t.DiscountApplied,
		&t.FinalAmount, &t.Type, &bookingID, &requestID, &t.Status, &t.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	if senderID.Valid {
		val := int(senderID.Int64)
		t.SenderID = &val
	}
	if bookingID.Valid {
		val := int(bookingID.Int64)
		t.BookingID = &val
	}
	if requestID.Valid {
		val := int(requestID.Int64)
		t.RequestID = &val
	}

	return &t, nil
}

func (s *LedgerService) GetTransactionByID(transactionID int) (*models.Transaction, error) {
	row := s.db.QueryRow(
		"SELECT "+transactionColumns+" FROM transactions WHERE id = ?",
		transactionID,
	)

	t, err := scanTransaction(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("transaction %w", ErrNotFound)
	}
	if err != nil {
		s.logger.Error().Err(err).Int("transaction_id", transactionID).Msg("Error fetching transaction")
		return nil, fmt.Errorf("database error: %w", err)
	}

	return t, nil
}

func (s *LedgerService) GetByIdempotencyKey(key string) (*models.Transaction, error) {
	row := s.db.QueryRow(
		"SELECT "+transactionColumns+" FROM transactions WHERE idempotency_key = ?",
		key,
	)

	t, err := scanTransaction(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("transaction %w", ErrNotFound)
	}
	if err != nil {
		s.logger.Error().Err(err).Str("idempotency_key", key).Msg("Error fetching transaction by key")
		return nil, fmt.Errorf("database error: %w", err)
	}

	return t, nil
}

// ListForUser returns transactions where the user is sender or receiver,
// newest first.
func (s *LedgerService) ListForUser(userID int, limit, offset int) ([]*models.Transaction, error) {
	query := `
		SELECT ` + transactionColumns + `
		FROM transactions
		WHERE sender_id = ? OR receiver_id = ?
		ORDER BY created_at DESC, id DESC
		LIMIT ? OFFSET ?
	`

	rows, err := s.db.Query(query, userID, userID, limit, offset)
	if err != nil {
		s.logger.Error().Err(err).Int("user_id", userID).Msg("Error fetching transaction history")
		return nil, fmt.Errorf("database error: %w", err)
	}
	defer rows.Close()

	var transactions []*models.Transaction
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, fmt.Errorf("error scanning transaction: %w", err)
		}
		transactions = append(transactions, t)
	}

	return transactions, nil
}

// GetTransactionForUser fetches a transaction only if the user is one of its
// parties. Foreign transactions look identical to missing ones.
func (s *LedgerService) GetTransactionForUser(transactionID, userID int) (*models.Transaction, error) {
	t, err := s.GetTransactionByID(transactionID)
	if err != nil {
		return nil, err
	}

	if t.ReceiverID != userID && (t.SenderID == nil || *t.SenderID != userID) {
		return nil, fmt.Errorf("transaction %w", ErrNotFound)
	}

	return t, nil
}

// Receipt renders the fixed-format receipt for a transaction the user is a
// party to.
func (s *LedgerService) Receipt(transactionID, userID int) (string, error) {
	t, err := s.GetTransactionForUser(transactionID, userID)
	if err != nil {
		return "", err
	}

	senderName := "QPay"
	if t.SenderID != nil {
		senderName = s.displayName(*t.SenderID)
	}
	receiverName := s.displayName(t.ReceiverID)

	return RenderReceipt(t, senderName, receiverName), nil
}

func (s *LedgerService) displayName(userID int) string {
	var username string
	err := s.db.QueryRow("SELECT username FROM users WHERE id = ?", userID).Scan(&username)
	if err != nil {
		return fmt.Sprintf("user #%d", userID)
	}
	return username
}

// RenderReceipt produces the receipt document from an immutable transaction
// record. The amounts come straight from the row; nothing is recomputed.
func RenderReceipt(t *models.Transaction, senderName, receiverName string) string {
	var b strings.Builder

	line := strings.Repeat("=", 38)
	sep := strings.Repeat("-", 38)

	b.WriteString(line + "\n")
	b.WriteString("             QPay RECEIPT\n")
	b.WriteString(line + "\n")
	fmt.Fprintf(&b, "Receipt No : QP-%08d\n", t.ID)
	fmt.Fprintf(&b, "Date       : %s\n", t.CreatedAt.Format("2006-01-02 15:04:05"))
	fmt.Fprintf(&b, "From       : %s\n", senderName)
	fmt.Fprintf(&b, "To         : %s\n", receiverName)
	if t.BookingID != nil {
		fmt.Fprintf(&b, "Booking    : #%d\n", *t.BookingID)
	}
	b.WriteString(sep + "\n")
	fmt.Fprintf(&b, "Base amount     : %10.2f\n", t.BaseAmount)
	fmt.Fprintf(&b, "Discount        : %9d%%\n", t.DiscountApplied)
	fmt.Fprintf(&b, "Amount paid     : %10.2f\n", t.FinalAmount)
	b.WriteString(sep + "\n")
	fmt.Fprintf(&b, "Status          : %s\n", t.Status)
	b.WriteString(line + "\n")

	return b.String()
}
