package services

import (
	"database/sql"
	"errors"
	"fmt"

	"qpay-backend/internal/models"

	"github.com/rs/zerolog"
	"golang.org/x/crypto/bcrypt"
)

type UserService struct {
	db     *sql.DB
	logger zerolog.Logger
}

func NewUserService(db *sql.DB, logger zerolog.Logger) *UserService {
	return &UserService{
		db:     db,
		logger: logger,
	}
}

func (s *UserService) Register(req *models.RegisterRequest) (*models.User, error) {
	if req.Username == "" || req.Email == "" || req.Password == "" {
		return nil, errors.New("username, email, and password are required")
	}

	validRole := false
	validRoles := []string{string(models.RoleUser), string(models.RoleProvider)}
	for _, r := range validRoles {
		if req.Role == r {
			validRole = true
			break
		}
	}
	if !validRole {
		req.Role = string(models.RoleUser)
	}

	var existingID int
	err := s.db.QueryRow("SELECT id FROM users WHERE email = ? OR username = ?", req.Email, req.Username).Scan(&existingID)
	if err == nil {
		return nil, fmt.Errorf("user with this email or username %w", ErrAlreadyExists)
	} else if err != sql.ErrNoRows {
		s.logger.Error().Err(err).Msg("Error checking existing user")
		return nil, fmt.Errorf("database error: %w", err)
	}

	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		s.logger.Error().Err(err).Msg("Error hashing password")
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	result, err := s.db.Exec(
		"INSERT INTO users (username, email, password_hash, role) VALUES (?, ?, ?, ?)",
		req.Username, req.Email, string(hashedPassword), req.Role,
	)
	if isDuplicateEntry(err) {
		return nil, fmt.Errorf("user with this email or username %w", ErrAlreadyExists)
	}
	if err != nil {
		s.logger.Error().Err(err).Msg("Error creating user")
		return nil, fmt.Errorf("failed to create user: %w", err)
	}

	userID, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("failed to get user ID: %w", err)
	}

	user, err := s.GetUserByID(int(userID))
	if err != nil {
		return nil, err
	}

	s.logger.Info().Int("user_id", user.ID).Str("email", user.Email).Str("role", user.Role).Msg("User registered successfully")
	return user, nil
}

func (s *UserService) Authenticate(req *models.LoginRequest) (*models.User, error) {
	if req.Email == "" || req.Password == "" {
		return nil, errors.New("email and password are required")
	}

	var user models.User
	var passwordHash string

	err := s.db.QueryRow(
		"SELECT id, username, email, password_hash, role, created_at, updated_at FROM users WHERE email = ?",
		req.Email,
	).Scan(
		&user.ID, &user.Username, &user.Email, &passwordHash, &user.Role, &user.CreatedAt, &user.UpdatedAt,
	)

	if err == sql.ErrNoRows {
		return nil, errors.New("invalid email or password")
	}
	if err != nil {
		s.logger.Error().Err(err).Msg("Error querying user")
		return nil, fmt.Errorf("database error: %w", err)
	}

	err = bcrypt.CompareHashAndPassword([]byte(passwordHash), []byte(req.Password))
	if err != nil {
		s.logger.Warn().Str("email", req.Email).Msg("Failed authentication attempt")
		return nil, errors.New("invalid email or password")
	}

	s.logger.Info().Int("user_id", user.ID).Str("email", user.Email).Msg("User authenticated successfully")
	return &user, nil
}

func (s *UserService) GetUserByID(userID int) (*models.User, error) {
	var user models.User
	err := s.db.QueryRow(
		"SELECT id, username, email, password_hash, role, created_at, updated_at FROM users WHERE id = ?",
		userID,
	).Scan(
		&user.ID, &user.Username, &user.Email, &user.PasswordHash, &user.Role, &user.CreatedAt, &user.UpdatedAt,
	)

	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		s.logger.Error().Err(err).Int("user_id", userID).Msg("Error fetching user")
		return nil, fmt.Errorf("database error: %w", err)
	}

	return &user, nil
}

// VerifyPassword re-authenticates a user against their primary account
// credential. Used by the wallet PIN reset flow.
func (s *UserService) VerifyPassword(userID int, password string) error {
	user, err := s.GetUserByID(userID)
	if err != nil {
		return err
	}

	if bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)) != nil {
		s.logger.Warn().Int("user_id", userID).Msg("Failed password re-authentication")
		return ErrUnauthorized
	}

	return nil
}

// ListProviders returns the provider directory used for booking creation and
// receipt display names.
func (s *UserService) ListProviders() ([]*models.Provider, error) {
	rows, err := s.db.Query(
		"SELECT id, username FROM users WHERE role = ? ORDER BY username",
		string(models.RoleProvider),
	)
	if err != nil {
		s.logger.Error().Err(err).Msg("Error fetching providers")
		return nil, fmt.Errorf("database error: %w", err)
	}
	defer rows.Close()

	var providers []*models.Provider
	for rows.Next() {
		var p models.Provider
		if err := rows.Scan(&p.ID, &p.Username); err != nil {
			return nil, fmt.Errorf("error scanning provider: %w", err)
		}
		providers = append(providers, &p)
	}

	return providers, nil
}

// IsProvider reports whether the given user exists and holds the provider role.
func (s *UserService) IsProvider(userID int) (bool, error) {
	user, err := s.GetUserByID(userID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return false, nil
		}
		return false, err
	}
	return user.Role == string(models.RoleProvider), nil
}
