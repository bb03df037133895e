package services

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"sync"
	"testing"

	"qpay-backend/internal/db"
	"qpay-backend/internal/models"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// These tests need a real MySQL instance because the settlement guarantees
// live in row locks and transactions. Set TEST_DB_URL to run them, e.g.
// TEST_DB_URL="root:secret@tcp(localhost:3306)/qpay_test?parseTime=true"

func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()

	dsn := os.Getenv("TEST_DB_URL")
	if dsn == "" {
		t.Skip("TEST_DB_URL not set; skipping database tests")
	}

	d, err := sql.Open("mysql", dsn)
	if err != nil {
		t.Skipf("Failed to open MySQL connection: %v", err)
	}
	if err := d.Ping(); err != nil {
		t.Skipf("MySQL not available: %v", err)
	}

	db.RunMigrations(d)
	t.Cleanup(func() { d.Close() })
	return d
}

type testEnv struct {
	db       *sql.DB
	users    *UserService
	wallets  *WalletService
	bookings *BookingService
	requests *RequestService
	ledger   *LedgerService
	payments *PaymentService
}

func newTestEnv(t *testing.T) *testEnv {
	d := setupTestDB(t)
	log := zerolog.Nop()

	users := NewUserService(d, log)
	wallets := NewWalletService(d, log, users)
	bookings := NewBookingService(d, log, users)
	requests := NewRequestService(d, log)
	ledger := NewLedgerService(d, log)
	payments := NewPaymentService(d, log, wallets, bookings, ledger)

	return &testEnv{
		db:       d,
		users:    users,
		wallets:  wallets,
		bookings: bookings,
		requests: requests,
		ledger:   ledger,
		payments: payments,
	}
}

func (e *testEnv) createUser(t *testing.T, role models.UserRole) int {
	t.Helper()
	name := fmt.Sprintf("t-%s", uuid.NewString()[:12])
	user, err := e.users.Register(&models.RegisterRequest{
		Username: name,
		Email:    name + "@test.local",
		Password: "password123",
		Role:     string(role),
	})
	if err != nil {
		t.Fatalf("failed to create test user: %v", err)
	}
	return user.ID
}

func (e *testEnv) createFundedWallet(t *testing.T, userID int, balance float64) {
	t.Helper()
	if _, err := e.wallets.Register(userID, "1234"); err != nil {
		t.Fatalf("failed to register wallet: %v", err)
	}
	if balance > 0 {
		if _, err := e.wallets.TopUp(userID, balance); err != nil {
			t.Fatalf("failed to fund wallet: %v", err)
		}
	}
}

func (e *testEnv) balance(t *testing.T, userID int) float64 {
	t.Helper()
	w, err := e.wallets.Get(userID)
	if err != nil {
		t.Fatalf("failed to fetch wallet: %v", err)
	}
	return w.Balance
}

func (e *testEnv) completedBooking(t *testing.T, userID, providerID int, charge float64) int {
	t.Helper()
	booking, err := e.bookings.Create(userID, &models.CreateBookingRequest{
		ServiceProviderID: providerID,
		Title:             "pipe repair",
		Charge:            charge,
	})
	if err != nil {
		t.Fatalf("failed to create booking: %v", err)
	}
	if _, err := e.bookings.UpdateStatus(booking.ID, providerID, models.BookingConfirmed); err != nil {
		t.Fatalf("failed to confirm booking: %v", err)
	}
	if _, err := e.bookings.UpdateStatus(booking.ID, providerID, models.BookingCompleted); err != nil {
		t.Fatalf("failed to complete booking: %v", err)
	}
	return booking.ID
}

func TestWalletLifecycle(t *testing.T) {
	e := newTestEnv(t)
	userID := e.createUser(t, models.RoleUser)

	if _, err := e.wallets.Register(userID, "123"); err == nil {
		t.Error("expected short PIN to be rejected")
	}

	wallet, err := e.wallets.Register(userID, "1234")
	if err != nil {
		t.Fatalf("wallet registration failed: %v", err)
	}
	if wallet.Balance != 0 {
		t.Errorf("new wallet balance = %v, want 0", wallet.Balance)
	}

	if _, err := e.wallets.Register(userID, "1234"); !errors.Is(err, ErrAlreadyExists) {
		t.Errorf("second registration: got %v, want ErrAlreadyExists", err)
	}

	if err := e.wallets.VerifyPin(userID, "1234"); err != nil {
		t.Errorf("correct PIN rejected: %v", err)
	}
	if err := e.wallets.VerifyPin(userID, "4321"); !errors.Is(err, ErrInvalidPin) {
		t.Errorf("wrong PIN: got %v, want ErrInvalidPin", err)
	}

	if err := e.wallets.SetDiscount(userID, 101); !errors.Is(err, ErrOutOfRange) {
		t.Errorf("discount 101: got %v, want ErrOutOfRange", err)
	}
	if err := e.wallets.SetDiscount(userID, 25); err != nil {
		t.Errorf("discount 25 rejected: %v", err)
	}

	if err := e.wallets.ResetPin(userID, "wrong-password", "9999"); !errors.Is(err, ErrUnauthorized) {
		t.Errorf("reset with bad password: got %v, want ErrUnauthorized", err)
	}
	if err := e.wallets.ResetPin(userID, "password123", "9999"); err != nil {
		t.Fatalf("reset PIN failed: %v", err)
	}
	if err := e.wallets.VerifyPin(userID, "9999"); err != nil {
		t.Errorf("new PIN rejected after reset: %v", err)
	}
}

func TestBookingStatusEndpointRules(t *testing.T) {
	e := newTestEnv(t)
	userID := e.createUser(t, models.RoleUser)
	providerID := e.createUser(t, models.RoleProvider)

	booking, err := e.bookings.Create(userID, &models.CreateBookingRequest{
		ServiceProviderID: providerID,
		Title:             "garden work",
		Charge:            80,
	})
	if err != nil {
		t.Fatalf("failed to create booking: %v", err)
	}
	if booking.Status != models.BookingPending {
		t.Fatalf("new booking status = %s, want pending", booking.Status)
	}

	// The customer cannot confirm their own booking.
	if _, err := e.bookings.UpdateStatus(booking.ID, userID, models.BookingConfirmed); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("user confirm: got %v, want ErrInvalidTransition", err)
	}

	// No state skipping.
	if _, err := e.bookings.UpdateStatus(booking.ID, providerID, models.BookingCompleted); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("pending->completed: got %v, want ErrInvalidTransition", err)
	}

	var transErr *TransitionError
	_, err = e.bookings.UpdateStatus(booking.ID, providerID, models.BookingCompleted)
	if !errors.As(err, &transErr) {
		t.Fatalf("expected TransitionError, got %v", err)
	}
	if transErr.From != models.BookingPending || transErr.To != models.BookingCompleted {
		t.Errorf("TransitionError = %v, want pending->completed", transErr)
	}

	// Outsiders get forbidden, not transition details.
	strangerID := e.createUser(t, models.RoleUser)
	if _, err := e.bookings.UpdateStatus(booking.ID, strangerID, models.BookingCancelled); !errors.Is(err, ErrForbidden) {
		t.Errorf("stranger cancel: got %v, want ErrForbidden", err)
	}

	// paid and requested are system/flow-driven only.
	if _, err := e.bookings.UpdateStatus(booking.ID, providerID, models.BookingPaid); !errors.Is(err, ErrForbidden) {
		t.Errorf("direct paid: got %v, want ErrForbidden", err)
	}
	if _, err := e.bookings.UpdateStatus(booking.ID, providerID, models.BookingRequested); !errors.Is(err, ErrForbidden) {
		t.Errorf("direct requested: got %v, want ErrForbidden", err)
	}

	if _, err := e.bookings.UpdateStatus(booking.ID, providerID, models.BookingConfirmed); err != nil {
		t.Fatalf("provider confirm failed: %v", err)
	}
	updated, err := e.bookings.GetByID(booking.ID)
	if err != nil {
		t.Fatal(err)
	}
	if updated.Status != models.BookingConfirmed {
		t.Errorf("status = %s, want confirmed", updated.Status)
	}
}

func TestMoneyRequestRules(t *testing.T) {
	e := newTestEnv(t)
	userID := e.createUser(t, models.RoleUser)
	providerID := e.createUser(t, models.RoleProvider)

	booking, err := e.bookings.Create(userID, &models.CreateBookingRequest{
		ServiceProviderID: providerID,
		Title:             "tiling",
		Charge:            120,
	})
	if err != nil {
		t.Fatal(err)
	}

	// Not completed yet.
	_, err = e.requests.Create(providerID, &models.CreateMoneyRequestRequest{
		BookingID: booking.ID,
		Amount:    120,
	})
	if !errors.Is(err, ErrInvalidState) {
		t.Errorf("request on pending booking: got %v, want ErrInvalidState", err)
	}

	bookingID := e.completedBooking(t, userID, providerID, 120)

	request, err := e.requests.Create(providerID, &models.CreateMoneyRequestRequest{
		BookingID:   bookingID,
		Amount:      120,
		Description: "tiling work done",
	})
	if err != nil {
		t.Fatalf("request creation failed: %v", err)
	}
	if request.Status != models.RequestPending {
		t.Errorf("request status = %s, want pending", request.Status)
	}

	updated, err := e.bookings.GetByID(bookingID)
	if err != nil {
		t.Fatal(err)
	}
	if updated.Status != models.BookingRequested {
		t.Errorf("booking status = %s, want requested", updated.Status)
	}

	// A second request against the same booking fails.
	_, err = e.requests.Create(providerID, &models.CreateMoneyRequestRequest{
		BookingID: bookingID,
		Amount:    120,
	})
	if !errors.Is(err, ErrDuplicateRequest) {
		t.Errorf("second request: got %v, want ErrDuplicateRequest", err)
	}
}

func TestConcurrentMoneyRequestCreation(t *testing.T) {
	e := newTestEnv(t)
	userID := e.createUser(t, models.RoleUser)
	providerID := e.createUser(t, models.RoleProvider)
	bookingID := e.completedBooking(t, userID, providerID, 90)

	var wg sync.WaitGroup
	results := make(chan error, 2)

	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := e.requests.Create(providerID, &models.CreateMoneyRequestRequest{
				BookingID: bookingID,
				Amount:    90,
			})
			results <- err
		}()
	}
	wg.Wait()
	close(results)

	var ok, dup int
	for err := range results {
		switch {
		case err == nil:
			ok++
		case errors.Is(err, ErrDuplicateRequest):
			dup++
		default:
			t.Errorf("unexpected error: %v", err)
		}
	}

	if ok != 1 || dup != 1 {
		t.Errorf("got %d successes and %d duplicates, want exactly 1 of each", ok, dup)
	}
}

func TestSettlementWithDiscount(t *testing.T) {
	e := newTestEnv(t)
	userID := e.createUser(t, models.RoleUser)
	providerID := e.createUser(t, models.RoleProvider)

	e.createFundedWallet(t, userID, 150)
	e.createFundedWallet(t, providerID, 0)
	if err := e.wallets.SetDiscount(providerID, 25); err != nil {
		t.Fatal(err)
	}

	bookingID := e.completedBooking(t, userID, providerID, 200)
	request, err := e.requests.Create(providerID, &models.CreateMoneyRequestRequest{
		BookingID: bookingID,
		Amount:    200,
	})
	if err != nil {
		t.Fatal(err)
	}

	transaction, err := e.payments.Settle(userID, &models.SendMoneyRequest{
		ReceiverID: providerID,
		Pin:        "1234",
		RequestID:  &request.ID,
	}, "")
	if err != nil {
		t.Fatalf("settlement failed: %v", err)
	}

	if transaction.BaseAmount != 200 {
		t.Errorf("base amount = %v, want 200", transaction.BaseAmount)
	}
	if transaction.DiscountApplied != 25 {
		t.Errorf("discount applied = %v, want 25", transaction.DiscountApplied)
	}
	if transaction.FinalAmount != 150 {
		t.Errorf("final amount = %v, want 150", transaction.FinalAmount)
	}

	if got := e.balance(t, userID); got != 0 {
		t.Errorf("payer balance = %v, want 0", got)
	}
	if got := e.balance(t, providerID); got != 150 {
		t.Errorf("receiver balance = %v, want 150", got)
	}

	paidRequest, err := e.requests.GetByID(request.ID)
	if err != nil {
		t.Fatal(err)
	}
	if paidRequest.Status != models.RequestPaid {
		t.Errorf("request status = %s, want paid", paidRequest.Status)
	}

	booking, err := e.bookings.GetByID(bookingID)
	if err != nil {
		t.Fatal(err)
	}
	if booking.Status != models.BookingPaid {
		t.Errorf("booking status = %s, want paid", booking.Status)
	}

	// Settling the same request again fails and moves no money.
	_, err = e.payments.Settle(userID, &models.SendMoneyRequest{
		ReceiverID: providerID,
		Pin:        "1234",
		RequestID:  &request.ID,
	}, "")
	if !errors.Is(err, ErrAlreadyPaid) {
		t.Errorf("second settle: got %v, want ErrAlreadyPaid", err)
	}
	if got := e.balance(t, providerID); got != 150 {
		t.Errorf("receiver balance after replay = %v, want 150", got)
	}
}

func TestSettlementDirectBookingPayment(t *testing.T) {
	e := newTestEnv(t)
	userID := e.createUser(t, models.RoleUser)
	providerID := e.createUser(t, models.RoleProvider)

	e.createFundedWallet(t, userID, 100)
	e.createFundedWallet(t, providerID, 0)
	bookingID := e.completedBooking(t, userID, providerID, 80)

	transaction, err := e.payments.Settle(userID, &models.SendMoneyRequest{
		ReceiverID: providerID,
		Amount:     80,
		Pin:        "1234",
		BookingID:  &bookingID,
	}, "")
	if err != nil {
		t.Fatalf("direct booking payment failed: %v", err)
	}
	if transaction.BookingID == nil || *transaction.BookingID != bookingID {
		t.Errorf("transaction booking = %v, want %d", transaction.BookingID, bookingID)
	}

	booking, err := e.bookings.GetByID(bookingID)
	if err != nil {
		t.Fatal(err)
	}
	if booking.Status != models.BookingPaid {
		t.Errorf("booking status = %s, want paid", booking.Status)
	}
}

func TestSettlementRejectsForeignBooking(t *testing.T) {
	e := newTestEnv(t)
	victimID := e.createUser(t, models.RoleUser)
	victimProviderID := e.createUser(t, models.RoleProvider)
	attackerID := e.createUser(t, models.RoleUser)
	accompliceID := e.createUser(t, models.RoleProvider)

	e.createFundedWallet(t, attackerID, 100)
	e.createFundedWallet(t, accompliceID, 0)
	e.createFundedWallet(t, victimID, 100)
	e.createFundedWallet(t, victimProviderID, 0)

	victimBookingID := e.completedBooking(t, victimID, victimProviderID, 500)

	// A cheap payment to an accomplice must not be able to mark someone
	// else's booking paid.
	_, err := e.payments.Settle(attackerID, &models.SendMoneyRequest{
		ReceiverID: accompliceID,
		Amount:     1,
		Pin:        "1234",
		BookingID:  &victimBookingID,
	}, "")
	if !errors.Is(err, ErrForbidden) {
		t.Fatalf("foreign booking settle: got %v, want ErrForbidden", err)
	}

	if got := e.balance(t, attackerID); got != 100 {
		t.Errorf("attacker balance = %v, want 100 (unchanged)", got)
	}
	booking, err := e.bookings.GetByID(victimBookingID)
	if err != nil {
		t.Fatal(err)
	}
	if booking.Status != models.BookingCompleted {
		t.Errorf("victim booking status = %s, want completed", booking.Status)
	}

	// The customer also cannot redirect their own booking's payment to a
	// wallet other than the assigned provider's.
	_, err = e.payments.Settle(victimID, &models.SendMoneyRequest{
		ReceiverID: accompliceID,
		Amount:     1,
		Pin:        "1234",
		BookingID:  &victimBookingID,
	}, "")
	if !errors.Is(err, ErrForbidden) {
		t.Errorf("wrong receiver settle: got %v, want ErrForbidden", err)
	}
}

func TestConcurrentWalletRegistration(t *testing.T) {
	e := newTestEnv(t)
	userID := e.createUser(t, models.RoleUser)

	var wg sync.WaitGroup
	results := make(chan error, 2)

	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := e.wallets.Register(userID, "1234")
			results <- err
		}()
	}
	wg.Wait()
	close(results)

	var ok, dup int
	for err := range results {
		switch {
		case err == nil:
			ok++
		case errors.Is(err, ErrAlreadyExists):
			dup++
		default:
			t.Errorf("unexpected error: %v", err)
		}
	}

	if ok != 1 || dup != 1 {
		t.Errorf("got %d successes and %d already-exists failures, want exactly 1 of each", ok, dup)
	}
}

func TestSettlementWrongPin(t *testing.T) {
	e := newTestEnv(t)
	userID := e.createUser(t, models.RoleUser)
	providerID := e.createUser(t, models.RoleProvider)

	e.createFundedWallet(t, userID, 100)
	e.createFundedWallet(t, providerID, 0)

	_, err := e.payments.Settle(userID, &models.SendMoneyRequest{
		ReceiverID: providerID,
		Amount:     40,
		Pin:        "0000",
	}, "")
	if !errors.Is(err, ErrInvalidPin) {
		t.Fatalf("got %v, want ErrInvalidPin", err)
	}

	if got := e.balance(t, userID); got != 100 {
		t.Errorf("payer balance = %v, want 100 (unchanged)", got)
	}

	history, err := e.ledger.ListForUser(providerID, 10, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(history) != 0 {
		t.Errorf("expected no transactions for receiver, got %d", len(history))
	}
}

func TestConcurrentSettlementDoubleSpend(t *testing.T) {
	e := newTestEnv(t)
	userID := e.createUser(t, models.RoleUser)
	providerID := e.createUser(t, models.RoleProvider)

	e.createFundedWallet(t, userID, 100)
	e.createFundedWallet(t, providerID, 0)

	var wg sync.WaitGroup
	results := make(chan error, 2)

	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := e.payments.Settle(userID, &models.SendMoneyRequest{
				ReceiverID: providerID,
				Amount:     60,
				Pin:        "1234",
			}, "")
			results <- err
		}()
	}
	wg.Wait()
	close(results)

	var ok, insufficient int
	for err := range results {
		switch {
		case err == nil:
			ok++
		case errors.Is(err, ErrInsufficientBalance):
			insufficient++
		default:
			t.Errorf("unexpected error: %v", err)
		}
	}

	if ok != 1 || insufficient != 1 {
		t.Errorf("got %d successes and %d insufficient-balance failures, want exactly 1 of each", ok, insufficient)
	}

	if got := e.balance(t, userID); got != 40 {
		t.Errorf("payer balance = %v, want 40", got)
	}
	if got := e.balance(t, providerID); got != 60 {
		t.Errorf("receiver balance = %v, want 60", got)
	}
}

func TestSettlementIdempotencyKey(t *testing.T) {
	e := newTestEnv(t)
	userID := e.createUser(t, models.RoleUser)
	providerID := e.createUser(t, models.RoleProvider)

	e.createFundedWallet(t, userID, 100)
	e.createFundedWallet(t, providerID, 0)

	key := uuid.NewString()
	req := &models.SendMoneyRequest{
		ReceiverID: providerID,
		Amount:     30,
		Pin:        "1234",
	}

	first, err := e.payments.Settle(userID, req, key)
	if err != nil {
		t.Fatalf("first settle failed: %v", err)
	}

	second, err := e.payments.Settle(userID, req, key)
	if err != nil {
		t.Fatalf("idempotent replay failed: %v", err)
	}

	if first.ID != second.ID {
		t.Errorf("replay returned transaction %d, want original %d", second.ID, first.ID)
	}
	if got := e.balance(t, userID); got != 70 {
		t.Errorf("payer balance = %v, want 70 (debited once)", got)
	}
}

func TestLedgerHistoryAndAccess(t *testing.T) {
	e := newTestEnv(t)
	userID := e.createUser(t, models.RoleUser)
	providerID := e.createUser(t, models.RoleProvider)
	strangerID := e.createUser(t, models.RoleUser)

	e.createFundedWallet(t, userID, 100)
	e.createFundedWallet(t, providerID, 0)

	var lastID int
	for _, amount := range []float64{10, 20, 30} {
		tr, err := e.payments.Settle(userID, &models.SendMoneyRequest{
			ReceiverID: providerID,
			Amount:     amount,
			Pin:        "1234",
		}, "")
		if err != nil {
			t.Fatal(err)
		}
		lastID = tr.ID
	}

	history, err := e.ledger.ListForUser(userID, 2, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(history) != 2 {
		t.Fatalf("page size 2, got %d entries", len(history))
	}
	if history[0].ID != lastID {
		t.Errorf("history is not newest-first: first entry is %d, want %d", history[0].ID, lastID)
	}

	// A third party can see neither the transaction nor its receipt.
	if _, err := e.ledger.GetTransactionForUser(lastID, strangerID); !errors.Is(err, ErrNotFound) {
		t.Errorf("foreign transaction fetch: got %v, want ErrNotFound", err)
	}
	if _, err := e.ledger.Receipt(lastID, strangerID); !errors.Is(err, ErrNotFound) {
		t.Errorf("foreign receipt fetch: got %v, want ErrNotFound", err)
	}

	receipt, err := e.ledger.Receipt(lastID, userID)
	if err != nil {
		t.Fatalf("receipt fetch failed: %v", err)
	}
	if receipt == "" {
		t.Error("receipt is empty")
	}
}
