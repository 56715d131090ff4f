package config

import (
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
)

type Config struct {
	Port        string
	DatabaseURL string
	DBHost      string
	DBPort      string
	DBUser      string
	DBPassword  string
	DBName      string
	DBSSLMode   string

	JWTSecret string

	Currency     string
	TaxRate      decimal.Decimal
	ShippingFlat decimal.Decimal
	DedupeWindow time.Duration

	CardAPIURL        string
	CardSecretKey     string
	CardWebhookSecret string

	WalletBaseURL      string
	WalletClientID     string
	WalletClientSecret string
	WalletWebhookID    string
	WalletReturnURL    string
	WalletCancelURL    string

	RabbitMQURL   string
	OrderExchange string
	OrderQueue    string
	DelayExchange string

	StoreName string
}

// Load reads .env when present and falls back to real environment
// variables, defaulting everything so a dev instance starts bare.
func Load() *Config {
	if err := godotenv.Load(); err != nil {
		log.Println("no .env file found, using environment")
	}

	return &Config{
		Port:        getEnv("PORT", "8080"),
		DatabaseURL: getEnv("DATABASE_URL", ""),
		DBHost:      getEnv("DB_HOST", "localhost"),
		DBPort:      getEnv("DB_PORT", "5432"),
		DBUser:      getEnv("DB_USER", "postgres"),
		DBPassword:  getEnv("DB_PASSWORD", "postgres"),
		DBName:      getEnv("DB_NAME", "liquikart"),
		DBSSLMode:   getEnv("DB_SSLMODE", "disable"),

		JWTSecret: getEnv("JWT_SECRET", "dev-secret-change-me"),

		Currency:     getEnv("CURRENCY", "USD"),
		TaxRate:      getDecimal("TAX_RATE", "0.08"),
		ShippingFlat: getDecimal("SHIPPING_FLAT", "5.00"),
		DedupeWindow: getDuration("PENDING_ORDER_WINDOW", 30*time.Minute),

		CardAPIURL:        getEnv("CARD_API_URL", "https://api.stripe.com"),
		CardSecretKey:     getEnv("CARD_SECRET_KEY", ""),
		CardWebhookSecret: getEnv("CARD_WEBHOOK_SECRET", ""),

		WalletBaseURL:      getEnv("WALLET_BASE_URL", "https://api-m.sandbox.paypal.com"),
		WalletClientID:     getEnv("WALLET_CLIENT_ID", ""),
		WalletClientSecret: getEnv("WALLET_CLIENT_SECRET", ""),
		WalletWebhookID:    getEnv("WALLET_WEBHOOK_ID", ""),
		WalletReturnURL:    getEnv("WALLET_RETURN_URL", "http://localhost:3000/checkout/return"),
		WalletCancelURL:    getEnv("WALLET_CANCEL_URL", "http://localhost:3000/checkout/cancel"),

		RabbitMQURL:   getEnv("RABBITMQ_URL", ""),
		OrderExchange: getEnv("ORDER_EXCHANGE", "order_events"),
		OrderQueue:    getEnv("ORDER_QUEUE", "order_events_queue"),
		DelayExchange: getEnv("DELAY_EXCHANGE", "payment_check_delay"),

		StoreName: getEnv("STORE_NAME", "LiquiKart"),
	}
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getDecimal(key, fallback string) decimal.Decimal {
	raw := getEnv(key, fallback)
	d, err := decimal.NewFromString(raw)
	if err != nil {
		log.Printf("config: bad %s value %q, using %s", key, raw, fallback)
		d, _ = decimal.NewFromString(fallback)
	}
	return d
}

func getDuration(key string, fallback time.Duration) time.Duration {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback
	}
	if d, err := time.ParseDuration(raw); err == nil {
		return d
	}
	if mins, err := strconv.Atoi(raw); err == nil {
		return time.Duration(mins) * time.Minute
	}
	log.Printf("config: bad %s value %q, using %s", key, raw, fallback)
	return fallback
}
