// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

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
  - DI-Friendly: Passed to core components (DB, Redis) via constructors.
  - Zero Hidden State: No global variables are used to store config.

This ensures the application is Twelve-Factor compliant by storing config in the env.
*/
package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// # Revocation Backends

const (
	RevocationBackendRedis  = "redis"
	RevocationBackendMemory = "memory"
)

const (
	minBcryptCost = 10
	maxBcryptCost = 14

	minJWTSecretLength = 32
)

// # Configuration Schema

// Config holds all runtime configuration for the campus API server.
type Config struct {

	// Server settings
	ServerPort  string `env:"SERVER_PORT"  envDefault:"8080"`
	Environment string `env:"ENVIRONMENT"  envDefault:"development"`
	Debug       bool   `env:"DEBUG"        envDefault:"false"`

	// Relational Database (PostgreSQL)
	DatabaseURL string `env:"DATABASE_URL,required,notEmpty"`

	// MigrationPath is the filesystem path to the SQL migrations directory.
	MigrationPath string `env:"MIGRATION_PATH" envDefault:"./data/migrations"`

	// Key-Value Store (Redis). Required unless revocation runs in memory.
	RedisURL string `env:"REDIS_URL"`

	// RevocationBackend selects where revoked tokens are recorded.
	// "memory" is only correct for a single API instance.
	RevocationBackend string `env:"REVOCATION_BACKEND" envDefault:"redis"`

	// Token signing. HS256 with JWTSecret unless both key paths are set.
	JWTSecret      string `env:"JWT_SECRET"`
	JWTPrivKeyPath string `env:"JWT_PRIVATE_KEY_PATH"`
	JWTPubKeyPath  string `env:"JWT_PUBLIC_KEY_PATH"`

	// BcryptCost is the work factor for password and backup-code hashes.
	BcryptCost int `env:"BCRYPT_COST" envDefault:"12"`

	// StoreTimeout bounds each repository and revocation store call.
	StoreTimeout time.Duration `env:"STORE_TIMEOUT" envDefault:"3s"`

	// MfaIssuer is the label shown by authenticator apps.
	MfaIssuer string `env:"MFA_ISSUER" envDefault:"Campus"`

	// EventsChannel is the Redis pub/sub channel for auth events. Empty disables publishing.
	EventsChannel string `env:"EVENTS_CHANNEL" envDefault:"campus:auth:events"`

	// Cross-Origin Resource Sharing
	ExtraOrigins []string `env:"EXTRA_ORIGINS" envSeparator:","`

	// Administrator bootstrap (cmd/bootstrap-admin only)
	AdminEmail    string `env:"ADMIN_EMAIL"`
	AdminPassword string `env:"ADMIN_PASSWORD"`
}

// # Configuration Loading

// Load parses environment variables into a [Config] struct and validates it.
func Load() (*Config, error) {

	// Initialize an empty config struct
	cfg := &Config{}

	// Use the 'env' package to map environment variables to struct fields.
	// This will fail if any field marked with 'required' is missing.
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("config: failed to parse environment variables: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate enforces the rules that span more than one variable.
func (c *Config) Validate() error {
	var errs []error

	switch c.RevocationBackend {
	case RevocationBackendRedis:
		if c.RedisURL == "" {
			errs = append(errs, errors.New("REDIS_URL is required when REVOCATION_BACKEND=redis"))
		}
	case RevocationBackendMemory:
		if c.IsProduction() {
			errs = append(errs, errors.New("REVOCATION_BACKEND=memory is not allowed in production"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown REVOCATION_BACKEND %q", c.RevocationBackend))
	}

	hasPriv, hasPub := c.JWTPrivKeyPath != "", c.JWTPubKeyPath != ""
	switch {
	case hasPriv != hasPub:
		errs = append(errs, errors.New("JWT_PRIVATE_KEY_PATH and JWT_PUBLIC_KEY_PATH must be set together"))
	case !hasPriv && len(c.JWTSecret) < minJWTSecretLength:
		errs = append(errs, fmt.Errorf("JWT_SECRET must be at least %d bytes when no RSA keys are configured", minJWTSecretLength))
	}

	if c.BcryptCost < minBcryptCost || c.BcryptCost > maxBcryptCost {
		errs = append(errs, fmt.Errorf("BCRYPT_COST must be between %d and %d", minBcryptCost, maxBcryptCost))
	}

	if c.StoreTimeout <= 0 {
		errs = append(errs, errors.New("STORE_TIMEOUT must be positive"))
	}

	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	return nil
}

// UsesRSA reports whether tokens are signed with RS256 key files.
func (c *Config) UsesRSA() bool {
	return c.JWTPrivKeyPath != "" && c.JWTPubKeyPath != ""
}

// AllowedOrigins lists the browser origins accepted outside development.
func (c *Config) AllowedOrigins() []string {
	return c.ExtraOrigins
}

// IsDevelopment reports whether the server is running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.Environment == "development"
}

// IsProduction reports whether the server is running in production mode.
func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}
