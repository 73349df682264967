// Package server provides configuration helpers that define runtime defaults,
// validation, and rate-limiting parameters for the Veilchat relay.
package server

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// RateLimitConfig defines the parameters for per-connection message rate limiting.
type RateLimitConfig struct {
	Burst          int
	RefillInterval time.Duration
}

// Config holds the relay configuration, including security controls and the
// connection string for the key directory store.
type Config struct {
	Env            string
	Port           string
	AllowedOrigins []string
	CORSAllow      []string
	DefaultRoom    string
	MaxMessageSize int64
	SendQueueSize  int
	RateLimit      RateLimitConfig
	APIRateLimit   RateLimitConfig

	// DirectoryPGURL selects the Postgres-backed key directory when set.
	// The relay falls back to the in-memory store when empty.
	DirectoryPGURL string
}

// NewConfig creates a Config populated with default values for all settings.
func NewConfig() *Config {
	return &Config{
		Env:            "dev",
		Port:           ":8080",
		AllowedOrigins: []string{"http://localhost:8080"},
		CORSAllow:      []string{"http://localhost:3000"},
		DefaultRoom:    "lobby",
		MaxMessageSize: 64 * 1024,
		SendQueueSize:  256,
		RateLimit: RateLimitConfig{
			Burst:          10,
			RefillInterval: time.Second,
		},
		APIRateLimit: RateLimitConfig{
			Burst:          30,
			RefillInterval: time.Minute,
		},
	}
}

// NewConfigFromEnv creates a Config from environment variables, falling back
// to defaults for anything unset.
func NewConfigFromEnv() *Config {
	cfg := NewConfig()

	if env := os.Getenv("APP_ENV"); env != "" {
		cfg.Env = env
	}
	if port := os.Getenv("SERVER_PORT"); port != "" {
		cfg.Port = port
	}
	if origins := os.Getenv("ALLOWED_ORIGINS"); origins != "" {
		cfg.AllowedOrigins = splitCSV(origins)
	}
	if allow := os.Getenv("CORS_ALLOW"); allow != "" {
		cfg.CORSAllow = splitCSV(allow)
	}
	if room := os.Getenv("DEFAULT_ROOM"); room != "" {
		cfg.DefaultRoom = room
	}
	if maxSize := os.Getenv("MAX_MESSAGE_SIZE"); maxSize != "" {
		cfg.MaxMessageSize = parseInt64(maxSize, cfg.MaxMessageSize)
	}
	if queue := os.Getenv("SEND_QUEUE_SIZE"); queue != "" {
		cfg.SendQueueSize = parseInt(queue, cfg.SendQueueSize)
	}
	if burst := os.Getenv("RATE_LIMIT_BURST"); burst != "" {
		cfg.RateLimit.Burst = parseInt(burst, cfg.RateLimit.Burst)
	}
	if interval := os.Getenv("RATE_LIMIT_REFILL_SECONDS"); interval != "" {
		cfg.RateLimit.RefillInterval = parseSeconds(interval, cfg.RateLimit.RefillInterval)
	}
	cfg.DirectoryPGURL = os.Getenv("DIRECTORY_PG_URL")

	return cfg
}

// sanitize fills in zero values so a partially constructed Config is safe to use.
func (c *Config) sanitize() {
	if c.Port == "" {
		c.Port = ":8080"
	}
	if c.DefaultRoom == "" {
		c.DefaultRoom = "lobby"
	}
	if c.MaxMessageSize <= 0 {
		c.MaxMessageSize = 64 * 1024
	}
	if c.SendQueueSize <= 0 {
		c.SendQueueSize = 256
	}
	if c.RateLimit.Burst <= 0 {
		c.RateLimit.Burst = 10
	}
	if c.RateLimit.RefillInterval <= 0 {
		c.RateLimit.RefillInterval = time.Second
	}
	if c.APIRateLimit.Burst <= 0 {
		c.APIRateLimit.Burst = 30
	}
	if c.APIRateLimit.RefillInterval <= 0 {
		c.APIRateLimit.RefillInterval = time.Minute
	}
}

// splitCSV trims and filters a comma-separated list.
func splitCSV(v string) []string {
	var out []string
	for _, s := range strings.Split(v, ",") {
		s = strings.TrimSpace(s)
		if s != "" {
			out = append(out, s)
		}
	}
	return out
}

func parseInt(value string, defaultValue int) int {
	if parsed, err := strconv.Atoi(value); err == nil && parsed > 0 {
		return parsed
	}
	return defaultValue
}

func parseInt64(value string, defaultValue int64) int64 {
	if parsed, err := strconv.ParseInt(value, 10, 64); err == nil && parsed > 0 {
		return parsed
	}
	return defaultValue
}

func parseSeconds(value string, defaultValue time.Duration) time.Duration {
	if seconds, err := strconv.Atoi(value); err == nil && seconds > 0 {
		return time.Duration(seconds) * time.Second
	}
	return defaultValue
}
