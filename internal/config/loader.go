// loader.go implements the configuration loading lifecycle.
//
// The loading sequence is:
//  1. Enforce UTC process time to prevent drift bugs (the deployment time
//     zone is applied explicitly where windows are computed, never via
//     time.Local).
//  2. Load a .env file via godotenv (non-fatal if absent; never overrides
//     existing environment variables).
//  3. Use envconfig to process struct tags and populate the Config struct.
//  4. Validate the struct using go-playground/validator.
package config

import (
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// LoadConfig loads and validates the Floodline configuration from the
// environment. It is called once per process at startup; any error is fatal.
func LoadConfig() (*Config, error) {
	time.Local = time.UTC

	_ = godotenv.Load()

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("config: processing environment: %w", err)
	}

	if err := validate(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// validate checks struct tags and cross-field rules that tags cannot express.
func validate(cfg *Config) error {
	v := validator.New()
	if err := v.Struct(cfg); err != nil {
		return fmt.Errorf("config: validation failed: %w", err)
	}

	// The deployment time zone must be loadable; a typo here would silently
	// shift every polling window.
	if _, err := time.LoadLocation(cfg.Timezone); err != nil {
		return fmt.Errorf("config: invalid DEPLOYMENT_TIMEZONE %q: %w", cfg.Timezone, err)
	}

	if cfg.Scheduler.BackoffBase <= 0 {
		return fmt.Errorf("config: TICK_BACKOFF_BASE must be positive, got %s", cfg.Scheduler.BackoffBase)
	}

	return nil
}

// Location returns the parsed deployment time zone. LoadConfig has already
// verified it parses, so failure here indicates the Config was constructed
// by hand; fall back to UTC rather than panic.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}
