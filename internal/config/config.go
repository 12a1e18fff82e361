package config

import (
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds application configuration values.
type Config struct {
	AppPort      string
	DataDir      string
	DatabaseURL  string
	JWTSecret    string
	TokenExpires time.Duration

	WooBaseURL        string
	WooConsumerKey    string
	WooConsumerSecret string

	StripeSecretKey     string
	StripeWebhookSecret string

	ShipStationBaseURL string
	ShipStationKey     string
	ShipStationSecret  string

	TelegramBotToken  string
	TelegramAdminChat string

	SyncInterval time.Duration
}

// Load reads environment variables and returns a populated Config.
// DATABASE_URL is optional: an empty value disables the relational
// mirror entirely.
func Load() *Config {
	_ = godotenv.Load()

	cfg := &Config{
		AppPort:      getEnv("APP_PORT", "8080"),
		DataDir:      getEnv("DATA_DIR", "./data"),
		DatabaseURL:  getEnv("DATABASE_URL", ""),
		JWTSecret:    getEnv("JWT_SECRET", ""),
		TokenExpires: getEnvHours("JWT_TTL_HOURS", 24),

		WooBaseURL:        getEnv("WOO_BASE_URL", ""),
		WooConsumerKey:    getEnv("WOO_CONSUMER_KEY", ""),
		WooConsumerSecret: getEnv("WOO_CONSUMER_SECRET", ""),

		StripeSecretKey:     getEnv("STRIPE_SECRET_KEY", ""),
		StripeWebhookSecret: getEnv("STRIPE_WEBHOOK_SECRET", ""),

		ShipStationBaseURL: getEnv("SHIPSTATION_BASE_URL", "https://ssapi.shipstation.com"),
		ShipStationKey:     getEnv("SHIPSTATION_API_KEY", ""),
		ShipStationSecret:  getEnv("SHIPSTATION_API_SECRET", ""),

		TelegramBotToken:  getEnv("TELEGRAM_BOT_TOKEN", ""),
		TelegramAdminChat: getEnv("TELEGRAM_ADMIN_CHAT_ID", ""),

		SyncInterval: getEnvSeconds("SYNC_INTERVAL_SECONDS", 60),
	}

	if cfg.AppPort == "" {
		log.Fatal("APP_PORT must be set")
	}

	if cfg.JWTSecret == "" {
		log.Fatal("JWT_SECRET must be set")
	}

	return cfg
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvHours(key string, fallback int) time.Duration {
	return time.Duration(getEnvInt(key, fallback)) * time.Hour
}

func getEnvSeconds(key string, fallback int) time.Duration {
	return time.Duration(getEnvInt(key, fallback)) * time.Second
}

func getEnvInt(key string, fallback int) int {
	if value, ok := os.LookupEnv(key); ok {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return fallback
}
