package services

import (
	"errors"
	"fmt"

	"qpay-backend/internal/models"

	"github.com/go-sql-driver/mysql"
)

var (
	ErrInvalidTransition   = errors.New("invalid transition")
	ErrInvalidPin          = errors.New("invalid PIN")
	ErrInsufficientBalance = errors.New("insufficient balance")
	ErrDuplicateRequest    = errors.New("a pending money request already exists for this booking")
	ErrAlreadyPaid         = errors.New("money request is already paid")
	ErrInvalidState        = errors.New("booking is not in a valid state for this operation")
	ErrOutOfRange          = errors.New("discount percent must be between 0 and 100")
	ErrUnauthorized        = errors.New("unauthorized")
	ErrForbidden           = errors.New("forbidden")
	ErrNotFound            = errors.New("not found")
	ErrAlreadyExists       = errors.New("already exists")
)

// TransitionError reports the current and attempted status of a rejected
// booking transition. It matches ErrInvalidTransition under errors.Is.
type TransitionError struct {
	From models.BookingStatus
	To   models.BookingStatus
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("invalid transition from %s to %s", e.From, e.To)
}

func (e *TransitionError) Is(target error) bool {
	return target == ErrInvalidTransition
}

// isDuplicateEntry reports whether err is a MySQL duplicate-key violation.
// Check-then-insert flows race; the unique index is the real arbiter.
func isDuplicateEntry(err error) bool {
	var mysqlErr *mysql.MySQLError
	return errors.As(err, &mysqlErr) && mysqlErr.Number == 1062
}
