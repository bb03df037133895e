package models

import "time"

// Wallet is a user's QPay account. PIN hashes never leave the service layer.
type Wallet struct {
	OwnerID         int       `json:"owner_id"`
	PinHash         string    `json:"-"`
	Balance         float64   `json:"balance"`
	DiscountPercent int       `json:"discount_percent"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

type RegisterWalletRequest struct {
	Pin string `json:"pin"`
}

type WalletLoginRequest struct {
	Pin string `json:"pin"`
}

type ResetPinRequest struct {
	Password string `json:"password"`
	NewPin   string `json:"new_pin"`
}

type SetDiscountRequest struct {
	Percent int `json:"percent"`
}

type TopUpRequest struct {
	UserID int     `json:"user_id"`
	Amount float64 `json:"amount"`
}
