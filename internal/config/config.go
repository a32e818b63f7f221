// Package config loads service configuration from the environment, with an
// optional .env file for local development.
package config

import (
	"errors"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Config carries every tunable the service depends on. Token secrets are
// independent on purpose: access and refresh tokens must never verify
// against each other's secret.
type Config struct {
	Environment string `env:"APP_ENV" envDefault:"development"`
	AppName     string `env:"APP_NAME" envDefault:"accountd"`
	Port        int    `env:"PORT" envDefault:"5000"`
	FrontendURL string `env:"FRONTEND_URL" envDefault:"http://localhost:3000"`

	DatabaseURL string `env:"DATABASE_URL,required"`
	RedisURL    string `env:"REDIS_URL,required"`

	AccessTokenSecret  string        `env:"ACCESS_TOKEN_SECRET,required"`
	RefreshTokenSecret string        `env:"REFRESH_TOKEN_SECRET,required"`
	AccessTokenTTL     time.Duration `env:"ACCESS_TOKEN_TTL" envDefault:"2h"`
	RefreshTokenTTL    time.Duration `env:"REFRESH_TOKEN_TTL" envDefault:"24h"`

	BcryptCost int `env:"BCRYPT_COST" envDefault:"10"`

	// Activation and password-reset links share one lifetime.
	AccountTokenTTL time.Duration `env:"ACCOUNT_TOKEN_TTL" envDefault:"1h"`

	RateLimitWindow time.Duration `env:"RATE_LIMIT_WINDOW" envDefault:"60s"`
	RateLimitMax    int           `env:"RATE_LIMIT_MAX" envDefault:"5"`

	EmailQueueWorkers    int    `env:"EMAIL_QUEUE_WORKERS" envDefault:"5"`
	SenderEmail          string `env:"SENDER_EMAIL" envDefault:"no-reply@localhost"`
	PostmarkServerToken  string `env:"POSTMARK_SERVER_TOKEN"`
	PostmarkAccountToken string `env:"POSTMARK_ACCOUNT_TOKEN"`
}

// Load reads the .env file when present, then parses the environment into a
// Config and validates cross-field invariants.
func Load() (*Config, error) {
	// The .env file is optional; a missing file is not an error.
	_ = godotenv.Load()

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, err
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.AccessTokenSecret == c.RefreshTokenSecret {
		return errors.New("access and refresh token secrets must differ")
	}
	if c.AccessTokenTTL <= 0 || c.RefreshTokenTTL <= 0 {
		return errors.New("token lifetimes must be positive")
	}
	if c.RefreshTokenTTL <= c.AccessTokenTTL {
		return errors.New("refresh token lifetime must exceed access token lifetime")
	}
	if c.RateLimitMax <= 0 || c.RateLimitWindow <= 0 {
		return errors.New("invalid rate limit configuration")
	}
	if c.EmailQueueWorkers <= 0 {
		c.EmailQueueWorkers = 1
	}
	return nil
}

// IsProduction reports whether the service runs with production hardening
// (generic client errors, Secure cookies).
func (c *Config) IsProduction() bool {
	return c.Environment == "production" || c.Environment == "prod"
}
