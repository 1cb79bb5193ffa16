package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"

	"github.com/caarlos0/env/v11"
	internalconfig "github.com/foxseedlab/coachsession/internal/config"
	"github.com/joho/godotenv"
)

type envConfig struct {
	Env                string `env:"ENV" envDefault:"production"`
	Port               int    `env:"PORT" envDefault:"4000"`
	SessionStore       string `env:"SESSION_STORE" envDefault:"postgres"`
	DatabaseURL        string `env:"DATABASE_URL"`
	FrontendURL        string `env:"FRONTEND_URL" envDefault:"http://localhost:3000"`
	TranscriptTimezone string `env:"TRANSCRIPT_TIMEZONE" envDefault:"UTC"`
	SessionWebhookURL  string `env:"SESSION_WEBHOOK_URL"`
	ShutdownTimeoutSec int    `env:"SHUTDOWN_TIMEOUT_SEC" envDefault:"10"`
}

// Load reads .env when present, then the process environment.
func Load() (*internalconfig.Config, error) {
	if err := godotenv.Load(); err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("failed to read .env: %w", err)
		}
		slog.Debug("no .env file found; using process environment")
	}
	return parse(env.Options{})
}

func parse(opts env.Options) (*internalconfig.Config, error) {
	var raw envConfig
	if err := env.ParseWithOptions(&raw, opts); err != nil {
		return nil, fmt.Errorf("environment variables are invalid or missing: %w", err)
	}

	cfg := &internalconfig.Config{
		Env:                raw.Env,
		Port:               raw.Port,
		SessionStore:       raw.SessionStore,
		DatabaseURL:        raw.DatabaseURL,
		FrontendURL:        raw.FrontendURL,
		TranscriptTimezone: raw.TranscriptTimezone,
		SessionWebhookURL:  raw.SessionWebhookURL,
		ShutdownTimeoutSec: raw.ShutdownTimeoutSec,
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}
