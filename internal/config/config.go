package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all runtime configuration loaded from environment variables.
// Every field has a sensible default; only DATABASE_URL is required.
type Config struct {
	// Server
	HTTPPort        string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration

	// Database
	DatabaseURL string
	DBMaxConns  int32
	DBMinConns  int32

	// Scheduler loop
	TickInterval    time.Duration
	ErrorBackoff    time.Duration
	DefaultTimezone string

	// Dispatcher
	DispatchInterval time.Duration
	DispatchBatch    int
	DispatchWorkers  int
	MaxAttempts      int

	// Channel providers: primary tried first, secondary on transient failure.
	// An empty URL means the provider slot is not configured.
	ProviderTimeout  time.Duration
	EmailProviders   []ProviderConfig
	SMSProviders     []ProviderConfig
	PushProviders    []ProviderConfig
	TrackingBaseURL  string

	// Rate limiting: maximum sends per second per channel
	RateLimit int

	// Retention job defaults
	RetentionDays int
}

// ProviderConfig is one delivery provider endpoint for a channel.
type ProviderConfig struct {
	Name   string
	URL    string
	APIKey string
}

func Load() (*Config, error) {
	// .env is a development convenience; absence is not an error.
	_ = godotenv.Load()

	dbURL := os.Getenv("DATABASE_URL")
	if dbURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	return &Config{
		HTTPPort:        getEnv("HTTP_PORT", "8080"),
		ReadTimeout:     getDuration("READ_TIMEOUT", 5*time.Second),
		WriteTimeout:    getDuration("WRITE_TIMEOUT", 10*time.Second),
		ShutdownTimeout: getDuration("SHUTDOWN_TIMEOUT", 30*time.Second),

		DatabaseURL: dbURL,
		DBMaxConns:  int32(getInt("DB_MAX_CONNS", 25)),
		DBMinConns:  int32(getInt("DB_MIN_CONNS", 5)),

		TickInterval:    getDuration("SCHEDULER_TICK", 30*time.Second),
		ErrorBackoff:    getDuration("SCHEDULER_ERROR_BACKOFF", 60*time.Second),
		DefaultTimezone: getEnv("SCHEDULER_TIMEZONE", "UTC"),

		DispatchInterval: getDuration("DISPATCH_INTERVAL", time.Minute),
		DispatchBatch:    getInt("DISPATCH_BATCH", 100),
		DispatchWorkers:  getInt("DISPATCH_WORKERS", 8),
		MaxAttempts:      getInt("DISPATCH_MAX_ATTEMPTS", 3),

		ProviderTimeout: getDuration("PROVIDER_TIMEOUT", 10*time.Second),
		EmailProviders:  providers("EMAIL"),
		SMSProviders:    providers("SMS"),
		PushProviders:   providers("PUSH"),
		TrackingBaseURL: getEnv("TRACKING_BASE_URL", "http://localhost:8080"),

		RateLimit: getInt("RATE_LIMIT_PER_CHANNEL", 50),

		RetentionDays: getInt("RETENTION_DAYS", 90),
	}, nil
}

// providers reads up to two provider slots per channel, e.g.
// EMAIL_PRIMARY_URL / EMAIL_PRIMARY_NAME / EMAIL_PRIMARY_KEY and the
// SECONDARY equivalents. Unset slots are omitted from the fallback order.
func providers(channel string) []ProviderConfig {
	var out []ProviderConfig
	for _, slot := range []string{"PRIMARY", "SECONDARY"} {
		url := os.Getenv(channel + "_" + slot + "_URL")
		if url == "" {
			continue
		}
		out = append(out, ProviderConfig{
			Name:   getEnv(channel+"_"+slot+"_NAME", slot),
			URL:    url,
			APIKey: os.Getenv(channel + "_" + slot + "_KEY"),
		})
	}
	return out
}

func getEnv(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func getInt(key string, defaultVal int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return defaultVal
}

func getDuration(key string, defaultVal time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return defaultVal
}
