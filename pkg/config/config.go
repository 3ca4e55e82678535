package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Port      string
	JWTSecret string

	DatabaseURL string

	// AppBaseURL is the public URL used to synthesize deep links.
	AppBaseURL string

	// Pub/Sub event ingestion; disabled when the project id is empty.
	GoogleProjectID string
	PubSubTopic     string

	// Dispatch tuning.
	DispatchWorkers int
	DispatchTimeout time.Duration
}

func Load() *Config {
	// Load .env file if it exists
	_ = godotenv.Load()

	workers := 8
	if v := os.Getenv("DISPATCH_WORKERS"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil && parsed > 0 {
			workers = parsed
		}
	}

	timeout := 2 * time.Minute
	if v := os.Getenv("DISPATCH_TIMEOUT"); v != "" {
		if parsed, err := time.ParseDuration(v); err == nil {
			timeout = parsed
		}
	}

	return &Config{
		Port:            getEnv("PORT", "8080"),
		JWTSecret:       getEnv("JWT_SECRET", "your-secret-key-change-in-production"),
		DatabaseURL:     getEnv("DATABASE_URL", "host=localhost user=postgres password=postgres dbname=push port=5432 sslmode=disable"),
		AppBaseURL:      getEnv("APP_BASE_URL", "http://localhost:8080"),
		GoogleProjectID: getEnv("GOOGLE_PROJECT_ID", ""),
		PubSubTopic:     getEnv("PUBSUB_TOPIC", "push-events"),
		DispatchWorkers: workers,
		DispatchTimeout: timeout,
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
