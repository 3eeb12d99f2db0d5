// Package config loads the environment-based configuration recognized
// by spec §6.6. The DefaultConfig/LoadFromEnv/Validate shape mirrors
// the teacher's internal/database.Config pattern.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config holds every tunable named in spec §6.6.
type Config struct {
	DBPath string
	Port   int

	PollInterval time.Duration
	Concurrency  int
	MaxRetries   int
	LeaseTTL     time.Duration

	ImageMaxPerSKU int
	DefaultTheme   string

	WebhookSecret            string
	SkipWebhookVerification  bool
	Production               bool

	AICompositor string

	RedisAddr string

	SlackWebhookURL string

	ObjectStoreDir string
	PresignSecret  string
}

// DefaultConfig returns the documented defaults from spec §4.2/§4.3/
// §4.6/§6.6.
func DefaultConfig() *Config {
	return &Config{
		DBPath:         "./data/photopipeline.db",
		Port:           8080,
		PollInterval:   5 * time.Second,
		Concurrency:    4,
		MaxRetries:     3,
		LeaseTTL:       10 * time.Minute,
		ImageMaxPerSKU: 4,
		DefaultTheme:   "default",
		Production:     true,
		AICompositor:   "none",
		ObjectStoreDir: "./data/objects",
	}
}

// LoadFromEnv overlays recognized environment variables onto c.
// Malformed numeric/duration values are ignored, leaving the previous
// (default) value in place — mirroring the teacher's "keep default
// port value" behavior on a bad DB_PORT.
func (c *Config) LoadFromEnv() {
	if v := os.Getenv("DB_PATH"); v != "" {
		c.DBPath = v
	}
	if v := os.Getenv("PORT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Port = n
		}
	}
	if v := os.Getenv("POLL_INTERVAL_MS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.PollInterval = time.Duration(n) * time.Millisecond
		}
	}
	if v := os.Getenv("CONCURRENCY"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Concurrency = n
		}
	}
	if v := os.Getenv("MAX_RETRIES"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.MaxRetries = n
		}
	}
	if v := os.Getenv("IMAGE_MAX_PER_SKU"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.ImageMaxPerSKU = n
		}
	}
	if v := os.Getenv("DEFAULT_THEME"); v != "" {
		c.DefaultTheme = v
	}
	if v := os.Getenv("TJMS_WEBHOOK_SECRET"); v != "" {
		c.WebhookSecret = v
	}
	if v := os.Getenv("SKIP_WEBHOOK_VERIFICATION"); v == "true" {
		c.SkipWebhookVerification = true
	}
	if v := os.Getenv("AI_COMPOSITOR"); v != "" {
		c.AICompositor = v
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		c.RedisAddr = v
	}
	if v := os.Getenv("SLACK_WEBHOOK_URL"); v != "" {
		c.SlackWebhookURL = v
	}
	if v := os.Getenv("OBJECT_STORE_DIR"); v != "" {
		c.ObjectStoreDir = v
	}
	if v := os.Getenv("PRESIGN_SECRET"); v != "" {
		c.PresignSecret = v
	}
	if v := os.Getenv("ENVIRONMENT"); v == "development" {
		c.Production = false
	}
}

// Validate enforces the invariants spec §4.3 relies on: in production
// the webhook secret is mandatory, and an unset presign secret falls
// back to the webhook secret. Whether SKIP_WEBHOOK_VERIFICATION takes
// effect is decided by SkipVerification, not here.
func (c *Config) Validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("port must be between 1 and 65535")
	}
	if c.Concurrency <= 0 {
		return fmt.Errorf("concurrency must be positive")
	}
	if c.MaxRetries < 0 {
		return fmt.Errorf("max retries must not be negative")
	}
	if c.ImageMaxPerSKU <= 0 {
		return fmt.Errorf("image max per sku must be positive")
	}
	if c.Production && c.WebhookSecret == "" {
		return fmt.Errorf("webhook secret is required in production")
	}
	if c.PresignSecret == "" {
		c.PresignSecret = c.WebhookSecret
	}
	if c.PresignSecret == "" {
		return fmt.Errorf("presign secret or webhook secret must be set")
	}
	return nil
}

// SkipVerification reports whether webhook signature verification may
// be bypassed: only in development, and only when no secret is set at
// all (spec §4.3: "the signature can be skipped only if a specific
// environment flag is set *and* the secret is absent").
func (c *Config) SkipVerification() bool {
	return !c.Production && c.SkipWebhookVerification && c.WebhookSecret == ""
}
