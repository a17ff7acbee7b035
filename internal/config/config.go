// Package config loads server settings from the environment.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config holds every setting the server reads at startup.
type Config struct {
	Port     int
	LogLevel string

	// SessionStore selects the backend: "memory" or "sqlite". Both
	// lose every session on restart.
	SessionStore         string
	SessionTTL           time.Duration
	SessionSweepInterval time.Duration
	ShareURLPrefix       string
	AllowedOrigin        string
	MaxUploadBytes       int64

	// NATSURL enables session event publishing when set.
	NATSURL           string
	NATSSubjectPrefix string

	// OpenAIAPIKey enables POST /receipts/scan when set.
	OpenAIAPIKey string
	OpenAIModel  string
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

// Load reads the environment, falling back to defaults for unset keys.
func Load() (*Config, error) {
	cfg := &Config{
		LogLevel:          getEnv("LOG_LEVEL", "info"),
		SessionStore:      getEnv("SESSION_STORE", "memory"),
		ShareURLPrefix:    getEnv("SHARE_URL_PREFIX", "/split-receipt/items?session="),
		AllowedOrigin:     getEnv("ALLOWED_ORIGIN", "*"),
		NATSURL:           os.Getenv("NATS_URL"),
		NATSSubjectPrefix: getEnv("NATS_SUBJECT_PREFIX", "receiptsplit.sessions"),
		OpenAIAPIKey:      os.Getenv("OPENAI_API_KEY"),
		OpenAIModel:       getEnv("OPENAI_MODEL", "gpt-4o"),
	}

	var err error
	if cfg.Port, err = strconv.Atoi(getEnv("PORT", "8080")); err != nil || cfg.Port <= 0 {
		return nil, fmt.Errorf("invalid PORT: %q", os.Getenv("PORT"))
	}
	if cfg.MaxUploadBytes, err = strconv.ParseInt(getEnv("MAX_UPLOAD_BYTES", "10485760"), 10, 64); err != nil || cfg.MaxUploadBytes <= 0 {
		return nil, fmt.Errorf("invalid MAX_UPLOAD_BYTES: %q", os.Getenv("MAX_UPLOAD_BYTES"))
	}
	switch cfg.SessionStore {
	case "memory", "sqlite":
	default:
		return nil, fmt.Errorf("invalid SESSION_STORE: %q", cfg.SessionStore)
	}
	if cfg.SessionTTL, err = parseDuration("SESSION_TTL", "24h"); err != nil {
		return nil, err
	}
	if cfg.SessionSweepInterval, err = parseDuration("SESSION_SWEEP_INTERVAL", "1h"); err != nil {
		return nil, err
	}

	return cfg, nil
}

func parseDuration(key, fallback string) (time.Duration, error) {
	d, err := time.ParseDuration(getEnv(key, fallback))
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("invalid %s: must be positive", key)
	}
	return d, nil
}
