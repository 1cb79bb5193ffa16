package config

import (
	"fmt"
	"strings"
	"time"
)

const (
	SessionStorePostgres = "postgres"
	SessionStoreMemory   = "memory"
)

type Config struct {
	Env                string
	Port               int
	SessionStore       string
	DatabaseURL        string
	FrontendURL        string
	TranscriptTimezone string
	SessionWebhookURL  string
	ShutdownTimeoutSec int
}

func (c *Config) Validate() error {
	for _, req := range c.requiredFieldChecks() {
		if req.value == "" {
			return fmt.Errorf("%s is required", req.name)
		}
	}
	switch c.SessionStore {
	case SessionStorePostgres:
		if c.DatabaseURL == "" {
			return fmt.Errorf("DATABASE_URL is required when SESSION_STORE=%s", SessionStorePostgres)
		}
	case SessionStoreMemory:
	default:
		return fmt.Errorf("SESSION_STORE must be %q or %q, got %q", SessionStorePostgres, SessionStoreMemory, c.SessionStore)
	}
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("PORT must be between 1 and 65535, got %d", c.Port)
	}
	if c.ShutdownTimeoutSec <= 0 {
		return fmt.Errorf("SHUTDOWN_TIMEOUT_SEC must be positive, got %d", c.ShutdownTimeoutSec)
	}
	if _, err := time.LoadLocation(c.TranscriptTimezone); err != nil {
		return fmt.Errorf("TRANSCRIPT_TIMEZONE is invalid: %w", err)
	}
	origins := c.AllowedOrigins()
	if len(origins) == 0 {
		return fmt.Errorf("FRONTEND_URL must list at least one origin")
	}
	for _, origin := range origins {
		if !isValidOrigin(origin) {
			return fmt.Errorf("FRONTEND_URL origin %q must be \"*\" or start with http:// or https://", origin)
		}
	}
	return nil
}

func isValidOrigin(origin string) bool {
	return origin == "*" || strings.HasPrefix(origin, "http://") || strings.HasPrefix(origin, "https://")
}

type requiredEnvField struct {
	name  string
	value string
}

func (c *Config) requiredFieldChecks() []requiredEnvField {
	return []requiredEnvField{
		{name: "SESSION_STORE", value: c.SessionStore},
		{name: "FRONTEND_URL", value: c.FrontendURL},
		{name: "TRANSCRIPT_TIMEZONE", value: c.TranscriptTimezone},
	}
}

func (c *Config) IsDevelopment() bool {
	return c.Env == "development"
}

func (c *Config) ShutdownTimeout() time.Duration {
	return time.Duration(c.ShutdownTimeoutSec) * time.Second
}

// AllowedOrigins splits FRONTEND_URL on commas, trimming blanks.
func (c *Config) AllowedOrigins() []string {
	var origins []string
	for _, part := range strings.Split(c.FrontendURL, ",") {
		if origin := strings.TrimSpace(part); origin != "" {
			origins = append(origins, origin)
		}
	}
	return origins
}

// Location falls back to UTC; Validate has already rejected unknown zones.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.TranscriptTimezone)
	if err != nil {
		return time.UTC
	}
	return loc
}
