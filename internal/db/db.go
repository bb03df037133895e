package db

import (
	"database/sql"
	"log"

	_ "github.com/go-sql-driver/mysql"
)

func InitDB(dbURL string) *sql.DB {
	db, err := sql.Open("mysql", dbURL)
	if err != nil {
		log.Fatal("❌ Veritabanına bağlanılamadı:", err)
	}

	err = db.Ping()
	if err != nil {
		log.Fatal("❌ Veritabanı yanıt vermiyor:", err)
	}

	log.Println("✅ Veritabanına bağlanıldı")
	return db
}

func RunMigrations(db *sql.DB) {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS users (
			id INT AUTO_INCREMENT PRIMARY KEY,
			username VARCHAR(100) NOT NULL UNIQUE,
			email VARCHAR(100) NOT NULL UNIQUE,
			password_hash VARCHAR(255),
			role VARCHAR(50),
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			updated_at DATETIME DEFAULT CURRENT_TIMESTAMP ON UPDATE CURRENT_TIMESTAMP
		);`,
		`CREATE TABLE IF NOT EXISTS wallets (
			owner_id INT PRIMARY KEY,
			pin_hash VARCHAR(255) NOT NULL,
			balance DECIMAL(20,2) NOT NULL DEFAULT 0,
			discount_percent INT NOT NULL DEFAULT 0,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			updated_at DATETIME DEFAULT CURRENT_TIMESTAMP ON UPDATE CURRENT_TIMESTAMP,
			FOREIGN KEY (owner_id) REFERENCES users(id) ON DELETE CASCADE
		);`,
		`CREATE TABLE IF NOT EXISTS bookings (
			id INT AUTO_INCREMENT PRIMARY KEY,
			user_id INT NOT NULL,
			service_provider_id INT NOT NULL,
			title VARCHAR(255),
			description TEXT,
			booking_date DATETIME,
			charge DECIMAL(20,2) NOT NULL DEFAULT 0,
			status VARCHAR(20) NOT NULL,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			INDEX idx_bookings_user (user_id),
			INDEX idx_bookings_provider (service_provider_id)
		);`,
		`CREATE TABLE IF NOT EXISTS money_requests (
			id INT AUTO_INCREMENT PRIMARY KEY,
			booking_id INT NOT NULL,
			service_provider_id INT NOT NULL,
			user_id INT NOT NULL,
			amount DECIMAL(20,2) NOT NULL,
			description TEXT,
			status VARCHAR(20) NOT NULL,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			INDEX idx_requests_booking (booking_id, status),
			INDEX idx_requests_user (user_id),
			INDEX idx_requests_provider (service_provider_id)
		);`,
		`CREATE TABLE IF NOT EXISTS transactions (
			id INT AUTO_INCREMENT PRIMARY KEY,
			sender_id INT,
			receiver_id INT NOT NULL,
			base_amount DECIMAL(20,2) NOT NULL,
			discount_applied INT NOT NULL DEFAULT 0,
			final_amount DECIMAL(20,2) NOT NULL,
			type VARCHAR(20) NOT NULL,
			booking_id INT,
			request_id INT,
			status VARCHAR(20) NOT NULL,
			idempotency_key VARCHAR(64),
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			UNIQUE KEY uq_transactions_idem (idempotency_key),
			INDEX idx_transactions_sender (sender_id),
			INDEX idx_transactions_receiver (receiver_id),
			INDEX idx_transactions_created (created_at)
		);`,
	}

	for _, q := range queries {
		_, err := db.Exec(q)
		if err != nil {
			log.Fatal("Migration hatası:", err)
		}
	}
	log.Println("Migration tamamlandı")
}
