package services

import (
	"database/sql"
	"errors"
	"fmt"
	"sync"

	"qpay-backend/internal/models"

	"github.com/rs/zerolog"
)

type RequestService struct {
	db     *sql.DB
	logger zerolog.Logger
	mu     sync.Map
}

func NewRequestService(db *sql.DB, logger zerolog.Logger) *RequestService {
	return &RequestService{
		db:     db,
		logger: logger,
	}
}

func (s *RequestService) getMutex(bookingID int) *sync.Mutex {
	mu, _ := s.mu.LoadOrStore(bookingID, &sync.Mutex{})
	return mu.(*sync.Mutex)
}

// Create opens a money request against a completed booking and moves the
// booking to requested. Concurrent calls for the same booking serialize here;
// the loser fails with ErrDuplicateRequest.
func (s *RequestService) Create(providerID int, req *models.CreateMoneyRequestRequest) (*models.MoneyRequest, error) {
	if req.Amount <= 0 {
		return nil, errors.New("amount must be greater than zero")
	}

	mu := s.getMutex(req.BookingID)
	mu.Lock()
	defer mu.Unlock()

	tx, err := s.db.Begin()
	if err != nil {
		s.logger.Error().Err(err).Msg("Error starting money request transaction")
		return nil, fmt.Errorf("failed to start transaction: %w", err)
	}
	defer tx.Rollback()

	var userID, bookingProviderID int
	var status string
	err = tx.QueryRow(
		"SELECT user_id, service_provider_id, status FROM bookings WHERE id = ? FOR UPDATE",
		req.BookingID,
	).Scan(&userID, &bookingProviderID, &status)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("booking %w", ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to fetch booking: %w", err)
	}

	if bookingProviderID != providerID {
		return nil, ErrForbidden
	}

	// The duplicate check runs before the status check so a concurrent loser
	// reports duplicate_request, not the requested status it raced against.
	var pendingID int
	err = tx.QueryRow(
		"SELECT id FROM money_requests WHERE booking_id = ? AND status = ?",
		req.BookingID, string(models.RequestPending),
	).Scan(&pendingID)
	if err == nil {
		return nil, ErrDuplicateRequest
	} else if err != sql.ErrNoRows {
		return nil, fmt.Errorf("failed to check pending requests: %w", err)
	}

	if models.BookingStatus(status) != models.BookingCompleted {
		return nil, fmt.Errorf("booking status is %s: %w", status, ErrInvalidState)
	}

	result, err := tx.Exec(
		"INSERT INTO money_requests (booking_id, service_provider_id, user_id, amount, description, status) VALUES (?, ?, ?, ?, ?, ?)",
		req.BookingID, providerID, userID, req.Amount, req.Description, string(models.RequestPending),
	)
	if err != nil {
		s.logger.Error().Err(err).Msg("Error creating money request")
		return nil, fmt.Errorf("failed to create money request: %w", err)
	}

	requestID, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("failed to get request ID: %w", err)
	}

	_, err = tx.Exec("UPDATE bookings SET status = ? WHERE id = ?", string(models.BookingRequested), req.BookingID)
	if err != nil {
		return nil, fmt.Errorf("failed to update booking status: %w", err)
	}

	if err = tx.Commit(); err != nil {
		s.logger.Error().Err(err).Msg("Error committing money request")
		return nil, fmt.Errorf("failed to commit money request: %w", err)
	}

	s.logger.Info().
		Int("request_id", int(requestID)).
		Int("booking_id", req.BookingID).
		Int("service_provider_id", providerID).
		Float64("amount", req.Amount).
		Msg("Money request created")

	return s.GetByID(int(requestID))
}

func (s *RequestService) GetByID(requestID int) (*models.MoneyRequest, error) {
	var request models.MoneyRequest
	var status string

	err := s.db.QueryRow(
		"SELECT id, booking_id, service_provider_id, user_id, amount, description, status, created_at FROM money_requests WHERE id = ?",
		requestID,
	).Scan(
		&request.ID, &request.BookingID, &request.ServiceProviderID, &request.UserID,
		&request.Amount, &request.Description, &status, &request.CreatedAt,
	)

	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("money request %w", ErrNotFound)
	}
	if err != nil {
		s.logger.Error().Err(err).Int("request_id", requestID).Msg("Error fetching money request")
		return nil, fmt.Errorf("database error: %w", err)
	}

	request.Status = models.MoneyRequestStatus(status)
	return &request, nil
}

// ListForUser returns requests where the caller is either the billed user or
// the requesting provider, newest first.
func (s *RequestService) ListForUser(userID int, limit, offset int) ([]*models.MoneyRequest, error) {
	query := `
		SELECT id, booking_id, service_provider_id, user_id, amount, description, status, created_at
		FROM money_requests
		WHERE user_id = ? OR service_provider_id = ?
		ORDER BY created_at DESC
		LIMIT ? OFFSET ?
	`

	rows, err := s.db.Query(query, userID, userID, limit, offset)
	if err != nil {
		s.logger.Error().Err(err).Int("user_id", userID).Msg("Error fetching money requests")
		return nil, fmt.Errorf("database error: %w", err)
	}
	defer rows.Close()

	var requests []*models.MoneyRequest
	for rows.Next() {
		var request models.MoneyRequest
		var status string
		err := rows.Scan(
			&request.ID, &request.BookingID, &request.ServiceProviderID, &request.UserID,
			&request.Amount, &request.Description, &status, &request.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("error scanning money request: %w", err)
		}
		request.Status = models.MoneyRequestStatus(status)
		requests = append(requests, &request)
	}

	return requests, nil
}
