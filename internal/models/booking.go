package models

import "time"

type Booking struct {
	ID                int           `json:"id"`
	UserID            int           `json:"user_id"`
	ServiceProviderID int           `json:"service_provider_id"`
	Title             string        `json:"title"`
	Description       string        `json:"description"`
	BookingDate       time.Time     `json:"booking_date"`
	Charge            float64       `json:"charge"`
	Status            BookingStatus `json:"status"`
	CreatedAt         time.Time     `json:"created_at"`
}

type BookingStatus string

const (
	BookingPending   BookingStatus = "pending"
	BookingConfirmed BookingStatus = "confirmed"
	BookingCompleted BookingStatus = "completed"
	BookingRequested BookingStatus = "requested"
	BookingPaid      BookingStatus = "paid"
	BookingCancelled BookingStatus = "cancelled"
)

// Actor identifies who is attempting a booking transition. The requesting
// customer is ActorUser, the assigned provider is ActorProvider, and
// ActorSystem is reserved for settlement.
type Actor string

const (
	ActorUser     Actor = "user"
	ActorProvider Actor = "provider"
	ActorSystem   Actor = "system"
)

// ValidBookingStatus reports whether s is one of the known statuses.
func ValidBookingStatus(s BookingStatus) bool {
	switch s {
	case BookingPending, BookingConfirmed, BookingCompleted,
		BookingRequested, BookingPaid, BookingCancelled:
		return true
	}
	return false
}

// CanTransition is the single transition table for the booking lifecycle.
// A booking only ever moves forward; no transition skips a state.
func CanTransition(from, to BookingStatus, actor Actor) bool {
	switch {
	case from == BookingPending && to == BookingConfirmed:
		return actor == ActorProvider
	case from == BookingPending && to == BookingCancelled:
		return actor == ActorUser || actor == ActorProvider
	case from == BookingConfirmed && to == BookingCompleted:
		return actor == ActorProvider
	case from == BookingConfirmed && to == BookingCancelled:
		return actor == ActorProvider
	case from == BookingCompleted && to == BookingRequested:
		return actor == ActorProvider
	case from == BookingCompleted && to == BookingPaid:
		return actor == ActorSystem
	case from == BookingRequested && to == BookingPaid:
		return actor == ActorSystem
	}
	return false
}

type CreateBookingRequest struct {
	ServiceProviderID int     `json:"service_provider_id"`
	Title             string  `json:"title"`
	Description       string  `json:"description"`
	BookingDate       string  `json:"booking_date"`
	Charge            float64 `json:"charge"`
}

type UpdateBookingStatusRequest struct {
	Status string `json:"status"`
}
