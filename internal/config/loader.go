// loader.go owns the configuration loading lifecycle: env file, env vars,
// secret checks, filesystem checks, then struct validation. A process that
// gets past LoadConfig has everything it needs to serve traffic.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// ConfigError classifies a startup configuration failure so operators can
// tell a missing secret from a malformed value without reading a stack trace.
type ConfigError struct {
	Type    ConfigErrorType
	Message string
	Err     error
}

func (e *ConfigError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Type, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Type, e.Message)
}

func (e *ConfigError) Unwrap() error {
	return e.Err
}

// LoadConfig assembles the full Config from the environment.
//
// Order matters: UTC is pinned first so every later timestamp is consistent,
// the .env file is layered under real env vars, and the signing-key and
// data-root checks run before struct validation so their failures name the
// exact variable instead of a generic validator message.
func LoadConfig() (*Config, error) {
	// Stored timestamps and token expiries all assume UTC.
	time.Local = time.UTC

	// A missing .env is normal outside local development. godotenv never
	// overrides variables that are already set.
	_ = godotenv.Load()

	// Empty prefix: envconfig reads the tag values verbatim, so
	// envconfig:"APP_ENV" maps to APP_ENV.
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, &ConfigError{
			Type:    ErrParsing,
			Message: "failed to process environment configuration",
			Err:     err,
		}
	}

	// A process without a signing key could accept signups but hand out
	// unverifiable sessions. Refuse to start.
	if !cfg.Auth.JWTSigningKey.IsSet() {
		return nil, &ConfigError{
			Type:    ErrMissingSecret,
			Message: "JWT_SIGNING_KEY is not set; refusing to start without a session signing key",
		}
	}

	// The data root must already exist. Creating it here would mask an
	// unmounted volume as an empty dataset.
	if cfg.Storage.DataRoot != "" {
		info, err := os.Stat(cfg.Storage.DataRoot)
		if err != nil {
			return nil, &ConfigError{
				Type:    ErrValidation,
				Message: fmt.Sprintf("data root %q is not accessible", cfg.Storage.DataRoot),
				Err:     err,
			}
		}
		if !info.IsDir() {
			return nil, &ConfigError{
				Type:    ErrValidation,
				Message: fmt.Sprintf("data root %q is not a directory", cfg.Storage.DataRoot),
			}
		}
	}

	cfg.Build = NewBuildInfo()

	if err := validator.New().Struct(cfg); err != nil {
		return nil, &ConfigError{
			Type:    ErrValidation,
			Message: "configuration validation failed",
			Err:     err,
		}
	}

	return &cfg, nil
}
