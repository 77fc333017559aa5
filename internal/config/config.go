// Package config defines the global configuration structure for the TripWise
// platform. Configuration is loaded once at process initialization and is
// immutable thereafter. It follows 12-Factor App principles by strictly
// separating code from configuration.
//
// Values are resolved via a priority chain:
//
//	OS Environment (Highest) -> Dotenv File (Lowest)
//
// Any missing required value or invalid format causes the application to fail
// immediately on startup (fail fast).
package config

import (
	"time"

	"tripwise/internal/types"
)

// SecretString is an alias for types.SecretString, the redacted secret type used
// throughout configuration to prevent accidental logging of sensitive values.
type SecretString = types.SecretString

// Config is the top-level configuration struct for the TripWise platform.
// It is populated once during process initialization and never modified.
// Sub-components receive only the specific config subsets they require
// (Least Privilege principle).
type Config struct {
	// System Metadata
	Environment string `envconfig:"APP_ENV" validate:"required,oneof=local dev staging prod"`
	Service     string `envconfig:"SERVICE_NAME" default:"tripwise-api"`
	LogLevel    string `envconfig:"LOG_LEVEL" default:"info"`
	IsTestMode  bool   `envconfig:"IS_TEST_MODE" default:"false"`

	// Domain Configurations
	Server      ServerConfig
	Storage     StorageConfig
	Auth        AuthConfig
	Generation  GenerationConfig
	Geo         GeoConfig
	Billing     BillingConfig
	Email       EmailConfig
	Maintenance MaintenanceConfig
	Security    SecurityConfig
	Feature     FeatureConfig

	// Build Metadata (Injected via ldflags, not Env)
	Build BuildInfo
}

// ServerConfig holds HTTP server and public URL configuration.
type ServerConfig struct {
	Port string `envconfig:"PORT" default:"8080"`
	// Public URL for confirmation links in emails (no trailing slash)
	APIExternalURL string        `envconfig:"API_EXTERNAL_URL" validate:"required,url"` // e.g., https://api.tripwise.app
	RequestTimeout time.Duration `envconfig:"REQUEST_TIMEOUT" default:"60s"`
	ShutdownGrace  time.Duration `envconfig:"SHUTDOWN_GRACE" default:"15s"`
}

// StorageConfig holds the flat-file store location.
type StorageConfig struct {
	// DataRoot is the directory that holds countries/, users.json and
	// pending_signups.json. It must exist and be writable at startup.
	DataRoot string `envconfig:"DATA_ROOT" validate:"required"`
}

// AuthConfig holds session signing and signup confirmation parameters.
type AuthConfig struct {
	// JWTSigningKey signs session tokens. A missing key is a fatal startup
	// error: issuing unsigned sessions is never acceptable.
	JWTSigningKey SecretString  `envconfig:"JWT_SIGNING_KEY" validate:"required,min=32"`
	SessionTTL    time.Duration `envconfig:"SESSION_TTL" default:"168h"`
	BcryptCost    int           `envconfig:"BCRYPT_COST" default:"12" validate:"min=10,max=16"`
	// ConfirmTokenTTL bounds how long a pending signup stays claimable.
	ConfirmTokenTTL time.Duration `envconfig:"CONFIRM_TOKEN_TTL" default:"48h"`
}

// GenerationConfig holds the content generation oracle credentials and tuning.
type GenerationConfig struct {
	OpenAIAPIKey SecretString  `envconfig:"OPENAI_API_KEY" validate:"required"`
	Model        string        `envconfig:"GENERATION_MODEL" default:"gpt-4o"`
	Timeout      time.Duration `envconfig:"GENERATION_TIMEOUT" default:"30s"`
	// MaxCitiesPerCountry caps how many city records a single country file
	// may accumulate through lazy generation.
	MaxCitiesPerCountry int `envconfig:"MAX_CITIES_PER_COUNTRY" default:"500"`
}

// GeoConfig holds geocoding provider settings.
type GeoConfig struct {
	BaseURL string `envconfig:"GEOCODER_BASE_URL" default:"https://nominatim.openstreetmap.org" validate:"url"`
	// UserAgent identifies the service to the geocoding provider, which
	// requires a contactable agent string for API access.
	UserAgent string        `envconfig:"GEOCODER_USER_AGENT" default:"TripWise/1.0 (ops@tripwise.app)"`
	Timeout   time.Duration `envconfig:"GEOCODER_TIMEOUT" default:"10s"`
	CacheTTL  time.Duration `envconfig:"GEOCODER_CACHE_TTL" default:"24h"`
}

// BillingConfig holds payment oracle credentials and settlement parameters.
type BillingConfig struct {
	BaseURL      string       `envconfig:"PAYMENT_BASE_URL" validate:"required,url"` // e.g., https://api-m.paypal.com
	ClientID     string       `envconfig:"PAYMENT_CLIENT_ID" validate:"required"`
	ClientSecret SecretString `envconfig:"PAYMENT_CLIENT_SECRET" validate:"required"`
	// MerchantID, when set, must match the payee recorded on captured orders.
	MerchantID string        `envconfig:"PAYMENT_MERCHANT_ID"`
	Currency   string        `envconfig:"PAYMENT_CURRENCY" default:"EUR" validate:"len=3"`
	Timeout    time.Duration `envconfig:"PAYMENT_TIMEOUT" default:"20s"`
}

// EmailConfig holds email delivery provider credentials.
type EmailConfig struct {
	SendGridAPIKey SecretString  `envconfig:"SENDGRID_API_KEY" validate:"required"`
	FromAddress    string        `envconfig:"EMAIL_FROM_ADDRESS" default:"hello@tripwise.app"`
	FromName       string        `envconfig:"EMAIL_FROM_NAME" default:"TripWise"`
	Timeout        time.Duration `envconfig:"EMAIL_TIMEOUT" default:"10s"`
	Provider       string        `envconfig:"EMAIL_PROVIDER" default:"sendgrid"`
}

// MaintenanceConfig holds background maintenance scheduling parameters.
type MaintenanceConfig struct {
	// SweepSchedule is a cron expression for the pending-signup sweeper.
	SweepSchedule string `envconfig:"SWEEP_SCHEDULE" default:"17 * * * *"`
}

// SecurityConfig holds CORS and traffic shaping settings.
type SecurityConfig struct {
	CorsAllowedOrigins []string `envconfig:"CORS_ALLOWED_ORIGINS" default:"*"`
	// RateLimitRPS is the sustained per-client request rate; RateLimitBurst
	// is the bucket depth. Zero RPS disables rate limiting.
	RateLimitRPS   float64 `envconfig:"RATE_LIMIT_RPS" default:"10"`
	RateLimitBurst int     `envconfig:"RATE_LIMIT_BURST" default:"20"`
}

// FeatureConfig holds emergency kill switches for system capabilities.
type FeatureConfig struct {
	EnableSweeper   bool `envconfig:"FEATURE_ENABLE_SWEEPER" default:"true"`
	EnableRateLimit bool `envconfig:"FEATURE_ENABLE_RATE_LIMIT" default:"true"`
}

// BuildInfo holds build-time metadata injected via ldflags.
// These values are NOT populated from environment variables.
type BuildInfo struct {
	Version   string
	Commit    string
	BuildTime string
}

// ConfigErrorType categorizes configuration loading failures to aid debugging.
type ConfigErrorType string

const (
	// ErrMissingEnv indicates a required environment variable was not found.
	ErrMissingEnv ConfigErrorType = "MISSING_ENV"
	// ErrMissingSecret indicates a required credential was not provided.
	ErrMissingSecret ConfigErrorType = "MISSING_SECRET"
	// ErrValidation indicates the configuration failed struct validation rules.
	ErrValidation ConfigErrorType = "VALIDATION_FAILED"
	// ErrParsing indicates a failure when parsing environment variable values
	// into their target types.
	ErrParsing ConfigErrorType = "PARSING_FAILED"
)
