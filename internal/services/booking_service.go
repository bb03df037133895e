package services

import (
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	"qpay-backend/internal/models"

	"github.com/rs/zerolog"
)

type BookingService struct {
	db          *sql.DB
	logger      zerolog.Logger
	userService *UserService
	mu          sync.Map
}

func NewBookingService(db *sql.DB, logger zerolog.Logger, userService *UserService) *BookingService {
	return &BookingService{
		db:          db,
		logger:      logger,
		userService: userService,
	}
}

func (s *BookingService) getMutex(bookingID int) *sync.Mutex {
	mu, _ := s.mu.LoadOrStore(bookingID, &sync.Mutex{})
	return mu.(*sync.Mutex)
}

func (s *BookingService) Create(userID int, req *models.CreateBookingRequest) (*models.Booking, error) {
	if req.Title == "" {
		return nil, errors.New("title is required")
	}
	if req.Charge < 0 {
		return nil, errors.New("charge cannot be negative")
	}

	isProvider, err := s.userService.IsProvider(req.ServiceProviderID)
	if err != nil {
		return nil, err
	}
	if !isProvider {
		return nil, fmt.Errorf("service provider %w", ErrNotFound)
	}

	bookingDate := time.Now()
	if req.BookingDate != "" {
		bookingDate, err = time.Parse(time.RFC3339, req.BookingDate)
		if err != nil {
			return nil, errors.New("booking_date must be RFC3339")
		}
	}

	result, err := s.db.Exec(
		"INSERT INTO bookings (user_id, service_provider_id, title, description, booking_date, charge, status) VALUES (?, ?, ?, ?, ?, ?, ?)",
		userID, req.ServiceProviderID, req.Title, req.Description, bookingDate, req.Charge, string(models.BookingPending),
	)
	if err != nil {
		s.logger.Error().Err(err).Msg("Error creating booking")
		return nil, fmt.Errorf("failed to create booking: %w", err)
	}

	bookingID, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("failed to get booking ID: %w", err)
	}

	booking, err := s.GetByID(int(bookingID))
	if err != nil {
		return nil, err
	}

	s.logger.Info().
		Int("booking_id", booking.ID).
		Int("user_id", userID).
		Int("service_provider_id", req.ServiceProviderID).
		Msg("Booking created")

	return booking, nil
}

func (s *BookingService) GetByID(bookingID int) (*models.Booking, error) {
	var booking models.Booking
	var status string

	err := s.db.QueryRow(
		"SELECT id, user_id, service_provider_id, title, description, booking_date, charge, status, created_at FROM bookings WHERE id = ?",
		bookingID,
	).Scan(
		&booking.ID, &booking.UserID, &booking.ServiceProviderID, &booking.Title,
		&booking.Description, &booking.BookingDate, &booking.Charge, &status, &booking.CreatedAt,
	)

	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("booking %w", ErrNotFound)
	}
	if err != nil {
		s.logger.Error().Err(err).Int("booking_id", bookingID).Msg("Error fetching booking")
		return nil, fmt.Errorf("database error: %w", err)
	}

	booking.Status = models.BookingStatus(status)
	return &booking, nil
}

func (s *BookingService) ListForUser(userID int, limit, offset int) ([]*models.Booking, error) {
	query := `
		SELECT id, user_id, service_provider_id, title, description, booking_date, charge, status, created_at
		FROM bookings
		WHERE user_id = ? OR service_provider_id = ?
		ORDER BY created_at DESC
		LIMIT ? OFFSET ?
	`

	rows, err := s.db.Query(query, userID, userID, limit, offset)
	if err != nil {
		s.logger.Error().Err(err).Int("user_id", userID).Msg("Error fetching bookings")
		return nil, fmt.Errorf("database error: %w", err)
	}
	defer rows.Close()

	var bookings []*models.Booking
	for rows.Next() {
		var booking models.Booking
		var status string
		err := rows.Scan(
			&booking.ID, &booking.UserID, &booking.ServiceProviderID, &booking.Title,
			&booking.Description, &booking.BookingDate, &booking.Charge, &status, &booking.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("error scanning booking: %w", err)
		}
		booking.Status = models.BookingStatus(status)
		bookings = append(bookings, &booking)
	}

	return bookings, nil
}

// UpdateStatus applies a client-driven transition. The actor is derived from
// the caller's relation to the booking; requested and paid are only reachable
// through the money request and settlement flows.
func (s *BookingService) UpdateStatus(bookingID, actorUserID int, to models.BookingStatus) (*models.Booking, error) {
	if !models.ValidBookingStatus(to) {
		return nil, errors.New("unknown booking status")
	}
	if to == models.BookingPaid || to == models.BookingRequested {
		return nil, fmt.Errorf("status %s cannot be set directly: %w", to, ErrForbidden)
	}

	mu := s.getMutex(bookingID)
	mu.Lock()
	defer mu.Unlock()

	tx, err := s.db.Begin()
	if err != nil {
		s.logger.Error().Err(err).Msg("Error starting booking update transaction")
		return nil, fmt.Errorf("failed to start transaction: %w", err)
	}
	defer tx.Rollback()

	var userID, providerID int
	var current string
	err = tx.QueryRow(
		"SELECT user_id, service_provider_id, status FROM bookings WHERE id = ? FOR UPDATE",
		bookingID,
	).Scan(&userID, &providerID, &current)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("booking %w", ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to fetch booking: %w", err)
	}

	var actor models.Actor
	switch actorUserID {
	case userID:
		actor = models.ActorUser
	case providerID:
		actor = models.ActorProvider
	default:
		return nil, ErrForbidden
	}

	from := models.BookingStatus(current)
	if !models.CanTransition(from, to, actor) {
		return nil, &TransitionError{From: from, To: to}
	}

	_, err = tx.Exec("UPDATE bookings SET status = ? WHERE id = ?", string(to), bookingID)
	if err != nil {
		return nil, fmt.Errorf("failed to update booking status: %w", err)
	}

	if err = tx.Commit(); err != nil {
		s.logger.Error().Err(err).Msg("Error committing booking update")
		return nil, fmt.Errorf("failed to commit booking update: %w", err)
	}

	s.logger.Info().
		Int("booking_id", bookingID).
		Str("from", string(from)).
		Str("to", string(to)).
		Str("actor", string(actor)).
		Msg("Booking status updated")

	return s.GetByID(bookingID)
}

// MarkPaid moves a booking to paid on behalf of a committed settlement.
func (s *BookingService) MarkPaid(bookingID int) error {
	mu := s.getMutex(bookingID)
	mu.Lock()
	defer mu.Unlock()

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to start transaction: %w", err)
	}
	defer tx.Rollback()

	var current string
	err = tx.QueryRow("SELECT status FROM bookings WHERE id = ? FOR UPDATE", bookingID).Scan(&current)
	if err == sql.ErrNoRows {
		return fmt.Errorf("booking %w", ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("failed to fetch booking: %w", err)
	}

	from := models.BookingStatus(current)
	if !models.CanTransition(from, models.BookingPaid, models.ActorSystem) {
		return &TransitionError{From: from, To: models.BookingPaid}
	}

	_, err = tx.Exec("UPDATE bookings SET status = ? WHERE id = ?", string(models.BookingPaid), bookingID)
	if err != nil {
		return fmt.Errorf("failed to update booking status: %w", err)
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit booking update: %w", err)
	}

	s.logger.Info().Int("booking_id", bookingID).Msg("Booking marked paid")
	return nil
}
