package router

import (
	"database/sql"
	"net/http"

	"qpay-backend/internal/config"
	"qpay-backend/internal/handlers"
	"qpay-backend/internal/middleware"
	"qpay-backend/internal/models"
	"qpay-backend/internal/services"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

func SetupRouter(db *sql.DB, cfg config.Config, logger zerolog.Logger) *mux.Router {
	userService := services.NewUserService(db, logger)
	authService := services.NewAuthService(cfg.JWTSecret, logger)
	walletService := services.NewWalletService(db, logger, userService)
	bookingService := services.NewBookingService(db, logger, userService)
	requestService := services.NewRequestService(db, logger)
	ledgerService := services.NewLedgerService(db, logger)
	paymentService := services.NewPaymentService(db, logger, walletService, bookingService, ledgerService)

	authHandler := handlers.NewAuthHandler(userService, authService, logger)
	userHandler := handlers.NewUserHandler(userService, logger)
	walletHandler := handlers.NewWalletHandler(walletService, userService, authService, logger)
	bookingHandler := handlers.NewBookingHandler(bookingService, logger)
	requestHandler := handlers.NewRequestHandler(requestService, logger)
	transactionHandler := handlers.NewTransactionHandler(paymentService, ledgerService, logger)

	jwtSecret := cfg.JWTSecret

	r := mux.NewRouter()

	rateLimiter := middleware.NewRateLimiter(rate.Limit(10), 20)

	r.Use(middleware.ErrorHandling(logger))
	r.Use(middleware.Metrics())
	r.Use(middleware.RequestLogging(logger))
	r.Use(middleware.SecurityHeaders())
	r.Use(middleware.CORS())
	r.Use(rateLimiter.Middleware())

	api := r.PathPrefix("/api/v1").Subrouter()

	auth := api.PathPrefix("/auth").Subrouter()
	auth.HandleFunc("/register", authHandler.Register).Methods("POST")
	auth.HandleFunc("/login", authHandler.Login).Methods("POST")

	protectedAuth := auth.PathPrefix("").Subrouter()
	protectedAuth.Use(middleware.Authentication(jwtSecret, logger))
	protectedAuth.HandleFunc("/refresh", authHandler.Refresh).Methods("POST")

	users := api.PathPrefix("/users").Subrouter()
	users.Use(middleware.Authentication(jwtSecret, logger))
	users.HandleFunc("/{id}", userHandler.GetUser).Methods("GET")

	providers := api.PathPrefix("/providers").Subrouter()
	providers.Use(middleware.Authentication(jwtSecret, logger))
	providers.HandleFunc("", userHandler.ListProviders).Methods("GET")

	wallet := api.PathPrefix("/wallet").Subrouter()
	wallet.Use(middleware.Authentication(jwtSecret, logger))
	wallet.Use(middleware.RequestValidation())
	wallet.HandleFunc("/register", walletHandler.Register).Methods("POST")
	wallet.HandleFunc("/login", walletHandler.Login).Methods("POST")
	wallet.HandleFunc("/pin", walletHandler.ResetPin).Methods("PUT")
	wallet.HandleFunc("/discount", walletHandler.SetDiscount).Methods("PUT")
	wallet.HandleFunc("/preview", walletHandler.Preview).Methods("GET")
	wallet.HandleFunc("", walletHandler.Get).Methods("GET")

	topup := api.PathPrefix("/wallet/topup").Subrouter()
	topup.Use(middleware.Authentication(jwtSecret, logger))
	topup.Use(middleware.RequireRole(string(models.RoleAdmin)))
	topup.HandleFunc("", walletHandler.TopUp).Methods("POST")

	bookings := api.PathPrefix("/bookings").Subrouter()
	bookings.Use(middleware.Authentication(jwtSecret, logger))
	bookings.Use(middleware.RequestValidation())
	bookings.HandleFunc("", bookingHandler.Create).Methods("POST")
	bookings.HandleFunc("", bookingHandler.List).Methods("GET")
	bookings.HandleFunc("/{id}", bookingHandler.Get).Methods("GET")
	bookings.HandleFunc("/{id}/status", bookingHandler.UpdateStatus).Methods("PUT")

	moneyRequests := api.PathPrefix("/money-requests").Subrouter()
	moneyRequests.Use(middleware.Authentication(jwtSecret, logger))
	moneyRequests.Use(middleware.RequestValidation())
	moneyRequests.HandleFunc("", requestHandler.Create).Methods("POST")
	moneyRequests.HandleFunc("", requestHandler.List).Methods("GET")

	transactions := api.PathPrefix("/transactions").Subrouter()
	transactions.Use(middleware.Authentication(jwtSecret, logger))
	transactions.Use(middleware.RequestValidation())
	transactions.Handle("/send-money", middleware.RequireWalletSession()(http.HandlerFunc(transactionHandler.SendMoney))).Methods("POST")
	transactions.HandleFunc("/history", transactionHandler.GetHistory).Methods("GET")
	transactions.HandleFunc("/{id}/receipt", transactionHandler.GetReceipt).Methods("GET")
	transactions.HandleFunc("/{id}", transactionHandler.GetTransaction).Methods("GET")

	r.Handle("/metrics", promhttp.Handler()).Methods("GET")
	r.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"ok"}`))
	}).Methods("GET")

	return r
}
