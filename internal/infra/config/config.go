package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// AppConfig holds all configuration for the notification service.
type AppConfig struct {
	DatabaseURL  string
	NeynarAPIKey string
	HTTPPort     string
	PollInterval time.Duration
	PollWindow   time.Duration
	LogLevel     string
	Environment  string
}

// Load reads configuration from environment variables and .env file (if present).
func Load() (*AppConfig, error) {
	// Attempt to load .env file. Errors are ignored if the file doesn't exist.
	// godotenv.Load will not override existing env variables.
	_ = godotenv.Load()

	cfg := &AppConfig{}

	cfg.DatabaseURL = os.Getenv("DATABASE_URL")
	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is not set")
	}

	cfg.NeynarAPIKey = os.Getenv("NEYNAR_API_KEY")
	if cfg.NeynarAPIKey == "" {
		return nil, fmt.Errorf("NEYNAR_API_KEY is not set")
	}

	cfg.HTTPPort = os.Getenv("HTTP_PORT")
	if cfg.HTTPPort == "" {
		cfg.HTTPPort = "3000"
	}

	var err error
	cfg.PollInterval, err = durationEnv("POLL_INTERVAL", 10*time.Second)
	if err != nil {
		return nil, err
	}

	cfg.PollWindow, err = durationEnv("POLL_WINDOW", 5*time.Minute)
	if err != nil {
		return nil, err
	}

	cfg.LogLevel = strings.ToLower(os.Getenv("LOG_LEVEL"))
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info" // Default log level
	}

	cfg.Environment = strings.ToLower(os.Getenv("ENVIRONMENT"))
	if cfg.Environment == "" {
		cfg.Environment = "development" // Default environment
	}

	return cfg, nil
}

func durationEnv(name string, fallback time.Duration) (time.Duration, error) {
	raw := os.Getenv(name)
	if raw == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", name, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("invalid %s: must be positive", name)
	}
	return d, nil
}
