package config

import (
	"log"
	"os"

	"github.com/joho/godotenv"
)

type Config struct {
	DBUrl     string
	Port      string
	JWTSecret string
}

func LoadConfig() Config {
	err := godotenv.Load()
	if err != nil {
		log.Println(".env dosyası bulunamadı, varsayılanlar kullanılacak")
	}

	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}

	secret := os.Getenv("JWT_SECRET")
	if secret == "" {
		secret = "default-secret-key-change-in-production"
		log.Println("JWT_SECRET tanımlı değil, varsayılan anahtar kullanılacak")
	}

	return Config{
		DBUrl:     os.Getenv("DB_URL"),
		Port:      port,
		JWTSecret: secret,
	}
}
