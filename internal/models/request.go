package models

import "time"

// MoneyRequest is a provider's request for payment against a completed
// booking. At most one pending request exists per booking.
type MoneyRequest struct {
	ID                int                `json:"id"`
	BookingID         int                `json:"booking_id"`
	ServiceProviderID int                `json:"service_provider_id"`
	UserID            int                `json:"user_id"`
	Amount            float64            `json:"amount"`
	Description       string             `json:"description"`
	Status            MoneyRequestStatus `json:"status"`
	CreatedAt         time.Time          `json:"created_at"`
}

type MoneyRequestStatus string

const (
	RequestPending MoneyRequestStatus = "pending"
	RequestPaid    MoneyRequestStatus = "paid"
)

type CreateMoneyRequestRequest struct {
	BookingID   int     `json:"booking_id"`
	Amount      float64 `json:"amount"`
	Description string  `json:"description"`
}
