// Package config handles application configuration from environment variables
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"

	"github.com/mkells/vigil/internal/session"
)

// Config holds all application configuration
type Config struct {
	// Server settings
	Port     string
	Env      string // "development", "staging", "production"
	LogLevel string

	// Database
	DatabaseURL string // PostgreSQL connection string (optional, uses in-memory if not set)

	// Scoring
	DecayWindow       time.Duration
	ModerateThreshold int
	HighThreshold     int

	// Session lifecycle
	SessionResurrect session.ResurrectPolicy

	// Mock event generator (development only)
	MockEvents       bool
	MockInterval     time.Duration

	// Security
	RateLimitRPM int
}

const (
	DefaultPort               = "8080"
	DefaultEnv                = "development"
	DefaultLogLevel           = "info"
	DefaultDecayWindowMinutes = 10
	DefaultModerateThreshold  = 8
	DefaultHighThreshold      = 15
	DefaultMockIntervalSecs   = 5
	DefaultRateLimitRPM       = 120
)

// Load reads configuration from environment variables
// It loads .env file if present (for local development)
func Load() (*Config, error) {
	// Load .env file if it exists (ignore error if not present)
	_ = godotenv.Load()

	resurrect, err := session.ParseResurrectPolicy(os.Getenv("SESSION_RESURRECT"))
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		Port:              getEnv("PORT", DefaultPort),
		Env:               getEnv("ENV", DefaultEnv),
		LogLevel:          getEnv("LOG_LEVEL", DefaultLogLevel),
		DatabaseURL:       os.Getenv("DATABASE_URL"), // Optional, uses in-memory if not set
		DecayWindow:       time.Duration(getEnvInt64("DECAY_WINDOW_MINUTES", DefaultDecayWindowMinutes)) * time.Minute,
		ModerateThreshold: int(getEnvInt64("MODERATE_RISK_THRESHOLD", DefaultModerateThreshold)),
		HighThreshold:     int(getEnvInt64("HIGH_RISK_THRESHOLD", DefaultHighThreshold)),
		SessionResurrect:  resurrect,
		MockEvents:        getEnvBool("MOCK_EVENTS", false),
		MockInterval:      time.Duration(getEnvInt64("MOCK_INTERVAL_SECONDS", DefaultMockIntervalSecs)) * time.Second,
		RateLimitRPM:      int(getEnvInt64("RATE_LIMIT_RPM", DefaultRateLimitRPM)),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks that the configuration is internally consistent
func (c *Config) Validate() error {
	if c.DecayWindow <= 0 {
		return fmt.Errorf("DECAY_WINDOW_MINUTES must be positive")
	}
	if c.ModerateThreshold < 0 || c.HighThreshold < 0 {
		return fmt.Errorf("risk thresholds must be non-negative")
	}
	if c.HighThreshold <= c.ModerateThreshold {
		return fmt.Errorf("HIGH_RISK_THRESHOLD (%d) must be greater than MODERATE_RISK_THRESHOLD (%d)",
			c.HighThreshold, c.ModerateThreshold)
	}
	if c.MockEvents && c.MockInterval <= 0 {
		return fmt.Errorf("MOCK_INTERVAL_SECONDS must be positive when MOCK_EVENTS is enabled")
	}
	if c.RateLimitRPM <= 0 {
		return fmt.Errorf("RATE_LIMIT_RPM must be positive")
	}
	return nil
}

// IsDevelopment returns true if running in development mode
func (c *Config) IsDevelopment() bool {
	return c.Env == "development"
}

// IsProduction returns true if running in production mode
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// Helper functions

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.ParseInt(value, 10, 64); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}
