package models

import "time"

// Transaction is the append-only record of a completed wallet movement. Rows
// are never mutated after insert; receipts are rendered from them verbatim.
type Transaction struct {
	ID              int       `json:"id"`
	SenderID        *int      `json:"sender_id,omitempty"`
	ReceiverID      int       `json:"receiver_id"`
	BaseAmount      float64   `json:"base_amount"`
	DiscountApplied int       `json:"discount_applied"`
	FinalAmount     float64   `json:"final_amount"`
	Type            string    `json:"type"`
	BookingID       *int      `json:"booking_id,omitempty"`
	RequestID       *int      `json:"request_id,omitempty"`
	Status          string    `json:"status"`
	CreatedAt       time.Time `json:"created_at"`
}

type TransactionType string

const (
	TransactionTypeTransfer TransactionType = "transfer"
	TransactionTypeTopUp    TransactionType = "topup"
)

type TransactionStatus string

const (
	TransactionStatusCompleted TransactionStatus = "completed"
	TransactionStatusFailed    TransactionStatus = "failed"
)

type SendMoneyRequest struct {
	ReceiverID int     `json:"receiver_id"`
	Amount     float64 `json:"amount"`
	Pin        string  `json:"pin"`
	BookingID  *int    `json:"booking_id,omitempty"`
	RequestID  *int    `json:"request_id,omitempty"`
}
