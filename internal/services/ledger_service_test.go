package services

import (
	"strings"
	"testing"
	"time"

	"qpay-backend/internal/models"
)

func TestRenderReceipt(t *testing.T) {
	sender := 7
	booking := 12
	tr := &models.Transaction{
		ID:              42,
		SenderID:        &sender,
		ReceiverID:      9,
		BaseAmount:      200,
		DiscountApplied: 25,
		FinalAmount:     150,
		BookingID:       &booking,
		Status:          string(models.TransactionStatusCompleted),
		CreatedAt:       time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC),
	}

	receipt := RenderReceipt(tr, "alice", "bob-plumbing")

	for _, want := range []string{
		"QPay RECEIPT",
		"Receipt No : QP-00000042",
		"Date       : 2026-03-14 09:30:00",
		"From       : alice",
		"To         : bob-plumbing",
		"Booking    : #12",
		"Base amount     :     200.00",
		"Discount        :        25%",
		"Amount paid     :     150.00",
		"Status          : completed",
	} {
		if !strings.Contains(receipt, want) {
			t.Errorf("receipt missing %q:\n%s", want, receipt)
		}
	}
}

func TestRenderReceiptTopUp(t *testing.T) {
	tr := &models.Transaction{
		ID:          3,
		ReceiverID:  5,
		BaseAmount:  50,
		FinalAmount: 50,
		Status:      string(models.TransactionStatusCompleted),
		CreatedAt:   time.Now(),
	}

	receipt := RenderReceipt(tr, "QPay", "carol")

	if !strings.Contains(receipt, "From       : QPay") {
		t.Errorf("top-up receipt should show the platform as sender:\n%s", receipt)
	}
	if strings.Contains(receipt, "Booking") {
		t.Errorf("receipt without a booking should not print a booking line:\n%s", receipt)
	}
}
