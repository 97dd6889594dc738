// Copyright (c) 2026 Cathedra. All rights reserved.

/*
Package config handles application-wide settings and environment parsing.

It leverages 'caarlos0/env' to map OS environment variables into a strongly-typed
Go struct, providing early validation and default values.

Usage:

	cfg, err := config.Load()
	if err != nil {
	    log.Fatal(err)
	}

Architecture:

  - Immutability: Once loaded, configuration is read-only.
  - DI-Friendly: Passed to core components (DB, Redis, TokenService) via constructors.
  - Zero Hidden State: No global variables are used to store config.

This ensures the application is Twelve-Factor compliant by storing config in the env.
*/
package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// # Configuration Schema

// Config holds all runtime configuration for the Cathedra API server.
//
// The signing secret and every credential TTL are required inputs of the
// identity core; parsing fails fast when a required key is absent so the
// service never starts half-configured.
type Config struct {

	// Server settings
	ServerPort  string `env:"SERVER_PORT"  envDefault:"8080"`
	Environment string `env:"ENVIRONMENT"  envDefault:"development"`
	Debug       bool   `env:"DEBUG"        envDefault:"false"`

	// Relational Database (PostgreSQL)
	DatabaseURL string `env:"DATABASE_URL,required"`

	// MigrationPath is the filesystem path to the SQL migrations directory.
	MigrationPath string `env:"MIGRATION_PATH" envDefault:"./data/migrations"`

	// Key-Value Store (Redis) — volatile OTP challenges
	RedisURL string `env:"REDIS_URL,required"`

	// JWTSecret signs access tokens (HS256). Minimum 32 bytes.
	JWTSecret string `env:"JWT_SECRET,required"`

	// Credential lifetimes
	AccessTokenTTL      time.Duration `env:"ACCESS_TOKEN_TTL"       envDefault:"15m"`
	RefreshTokenTTLDays int           `env:"REFRESH_TOKEN_TTL_DAYS" envDefault:"7"`
	EmailCodeTTL        time.Duration `env:"EMAIL_CODE_TTL"         envDefault:"5m"`
	OtpTTL              time.Duration `env:"OTP_TTL"                envDefault:"5m"`
	ResetTokenTTL       time.Duration `env:"RESET_TOKEN_TTL"        envDefault:"60m"`

	// Outbound email (Mailgun). Required: the mailer refuses to construct
	// without them, so an absent key should fail here, not at wiring time.
	MailgunDomain string `env:"MAILGUN_DOMAIN,required"`
	MailgunAPIKey string `env:"MAILGUN_API_KEY,required"`
	MailFrom      string `env:"MAIL_FROM" envDefault:"no-reply@cathedra.app"`

	// Cross-Origin Resource Sharing
	ExtraOrigins string `env:"EXTRA_ORIGINS"`
}

// # Configuration Loading

// Load parses environment variables into a [Config] struct.
func Load() (*Config, error) {

	// Initialize an empty config struct
	cfg := &Config{}

	// Use the 'env' package to map environment variables to struct fields.
	// This will fail if any field marked with 'required' is missing.
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("config: failed to parse environment variables: %w", err)
	}

	return cfg, nil
}

// RefreshTokenTTL returns the refresh-token lifetime as a duration.
func (c *Config) RefreshTokenTTL() time.Duration {
	return time.Duration(c.RefreshTokenTTLDays) * 24 * time.Hour
}

// IsDevelopment reports whether the server is running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.Environment == "development"
}

// IsProduction reports whether the server is running in production mode.
func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}
