// Package config provides configuration management functionality.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// placeholderSecrets are values that must never be used as a webhook
// signing key outside of debug deployments.
var placeholderSecrets = map[string]struct{}{
	"change-me": {},
	"changeme":  {},
	"default":   {},
	"secret":    {},
}

// Config holds application configuration
type Config struct {
	DataDir   string // Base directory for the ledger database (always absolute)
	Port      int
	Debug     bool // Relaxes trader-client authorization and secret checks
	LogLevel  string
	LogPretty bool

	// Webhook signing. Primary first, then rotated legacy secrets in order.
	WebhookSecret            string
	WebhookAdditionalSecrets []string

	// Per-vendor base URL overrides. Empty means the vendor default.
	ZerodhaBaseURL string
	GrowwBaseURL   string
	UpstoxBaseURL  string

	// Daily snapshot job
	SnapshotEnabled  bool
	SnapshotSchedule string // six-field cron expression, seconds first
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if it exists
	_ = godotenv.Load()

	dataDir := getEnv("DATA_DIR", "./data")
	absDataDir, err := filepath.Abs(dataDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve data directory path: %w", err)
	}
	if err := os.MkdirAll(absDataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	cfg := &Config{
		DataDir:                  absDataDir,
		Port:                     getEnvAsInt("PORT", 8000),
		Debug:                    getEnvAsBool("DEBUG", false),
		LogLevel:                 getEnv("LOG_LEVEL", "info"),
		LogPretty:                getEnvAsBool("LOG_PRETTY", false),
		WebhookSecret:            getEnv("BROKER_WEBHOOK_SECRET", ""),
		WebhookAdditionalSecrets: splitSecrets(getEnv("BROKER_WEBHOOK_ADDITIONAL_SECRETS", "")),
		ZerodhaBaseURL:           getEnv("ZERODHA_BASE_URL", ""),
		GrowwBaseURL:             getEnv("GROWW_BASE_URL", ""),
		UpstoxBaseURL:            getEnv("UPSTOX_BASE_URL", ""),
		SnapshotEnabled:          getEnvAsBool("SNAPSHOT_ENABLED", true),
		SnapshotSchedule:         getEnv("SNAPSHOT_SCHEDULE", "0 30 18 * * *"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks if required configuration is present.
// In non-debug mode a missing or placeholder webhook secret aborts startup:
// broker callbacks mutate real balances, so an unguessable key is mandatory.
func (c *Config) Validate() error {
	if c.Debug {
		return nil
	}

	if c.WebhookSecret == "" {
		return fmt.Errorf("BROKER_WEBHOOK_SECRET is required when DEBUG is false")
	}
	for _, secret := range c.WebhookSecrets() {
		if _, bad := placeholderSecrets[strings.ToLower(secret)]; bad {
			return fmt.Errorf("webhook secret %q is a placeholder value; set a real key", secret)
		}
	}

	return nil
}

// WebhookSecrets returns all accepted signing keys, primary first.
// Order matters: the primary key is the one used for outbound signing.
func (c *Config) WebhookSecrets() []string {
	secrets := make([]string, 0, 1+len(c.WebhookAdditionalSecrets))
	if c.WebhookSecret != "" {
		secrets = append(secrets, c.WebhookSecret)
	}
	secrets = append(secrets, c.WebhookAdditionalSecrets...)
	return secrets
}

func splitSecrets(raw string) []string {
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

// Helper functions
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}
