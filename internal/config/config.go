// Package config defines the global configuration structure for the payflow
// billing service. Configuration is loaded once at process startup and is
// immutable thereafter. It follows 12-Factor App principles by strictly
// separating code from configuration.
//
// Values are resolved via a priority chain:
//
//	OS Environment (Highest) -> Dotenv File (Lowest)
//
// Any missing required value or invalid format causes the application to fail
// immediately on startup.
package config

import (
	"time"

	"payflow/internal/types"
)

// SecretString is an alias for types.SecretString, the redacted secret type used
// throughout configuration to prevent accidental logging of sensitive values.
type SecretString = types.SecretString

// Config is the top-level configuration struct for the payflow service.
// It is populated once during process initialization and never modified.
// Sub-components receive only the specific config subsets they require.
type Config struct {
	// System Metadata
	Environment string `envconfig:"APP_ENV" validate:"required,oneof=local dev staging prod"`
	Service     string `envconfig:"SERVICE_NAME" default:"payflow-api"`
	LogLevel    string `envconfig:"LOG_LEVEL" default:"info"`

	// Domain Configurations
	Server   ServerConfig
	Database DatabaseConfig
	Gateway  GatewayConfig
	Notifier NotifierConfig
	Sweep    SweepConfig
	Security SecurityConfig

	// Build Metadata (Injected via ldflags, not Env)
	Build BuildInfo
}

// ServerConfig holds HTTP server and public URL configuration.
type ServerConfig struct {
	Port string `envconfig:"PORT" default:"8080"`
	// Public URL of the customer dashboard (no trailing slash). The payment
	// gateway redirects the buyer here after the checkout flow completes.
	DashboardURL    string        `envconfig:"DASHBOARD_URL" validate:"required,url"`
	ReadTimeout     time.Duration `envconfig:"SERVER_READ_TIMEOUT" default:"10s"`
	WriteTimeout    time.Duration `envconfig:"SERVER_WRITE_TIMEOUT" default:"30s"`
	ShutdownTimeout time.Duration `envconfig:"SERVER_SHUTDOWN_TIMEOUT" default:"15s"`
}

// DatabaseConfig holds database connection and pool tuning parameters.
type DatabaseConfig struct {
	URL SecretString `envconfig:"DATABASE_URL" validate:"required,url"`

	// Tuning Parameters
	MaxConns          int           `envconfig:"DB_MAX_CONNS" default:"10"`
	MinConns          int           `envconfig:"DB_MIN_CONNS" default:"2"`
	MaxConnLifetime   time.Duration `envconfig:"DB_MAX_CONN_LIFETIME" default:"30m"`
	AcquireTimeout    time.Duration `envconfig:"DB_ACQUIRE_TIMEOUT" default:"2s"`
	HealthCheckPeriod time.Duration `envconfig:"DB_HEALTH_CHECK_PERIOD" default:"1m"`
}

// GatewayConfig holds payment gateway credentials and endpoint settings.
//
// ShopID and SecretKey form the Basic auth pair for the gateway's payments
// API. When either is empty the service runs in demo mode: payment rows are
// recorded locally without contacting the gateway and no redirect URL is
// issued.
type GatewayConfig struct {
	BaseURL       string       `envconfig:"GATEWAY_BASE_URL" default:"https://api.yookassa.ru/v3"`
	ShopID        string       `envconfig:"GATEWAY_SHOP_ID"`
	SecretKey     SecretString `envconfig:"GATEWAY_SECRET_KEY"`
	WebhookSecret SecretString `envconfig:"GATEWAY_WEBHOOK_SECRET"`
	Timeout       time.Duration `envconfig:"GATEWAY_TIMEOUT" default:"10s"`
}

// DemoMode reports whether gateway credentials are absent and the service
// should record payment attempts locally instead of contacting the gateway.
func (g GatewayConfig) DemoMode() bool {
	return g.ShopID == "" || !g.SecretKey.IsSet()
}

// NotifierConfig holds settings for the outbound expiry notification service.
type NotifierConfig struct {
	URL       string        `envconfig:"NOTIFIER_URL"`
	AuthToken SecretString  `envconfig:"NOTIFIER_AUTH_TOKEN"`
	Timeout   time.Duration `envconfig:"NOTIFIER_TIMEOUT" default:"5s"`
	FromName  string        `envconfig:"NOTIFIER_FROM_NAME" default:"AVT Billing"`
}

// Enabled reports whether a notification endpoint is configured. When false
// the sweeper logs expiry notices instead of delivering them.
func (n NotifierConfig) Enabled() bool {
	return n.URL != ""
}

// SweepConfig holds lifecycle sweep tuning parameters.
type SweepConfig struct {
	// NotifyWithinDays is the look-ahead window for expiry warnings.
	NotifyWithinDays int `envconfig:"SWEEP_NOTIFY_WITHIN_DAYS" default:"7" validate:"min=1"`
	// RenewWithinDays is the look-ahead window for auto-renewal charges.
	RenewWithinDays int `envconfig:"SWEEP_RENEW_WITHIN_DAYS" default:"3" validate:"min=1"`
	// Concurrency bounds the notification fan-out during a sweep.
	Concurrency int `envconfig:"SWEEP_CONCURRENCY" default:"8" validate:"min=1"`
}

// SecurityConfig holds admin access and CORS settings.
type SecurityConfig struct {
	AdminAPIKey        SecretString `envconfig:"ADMIN_API_KEY" validate:"required"`
	CorsAllowedOrigins []string     `envconfig:"CORS_ALLOWED_ORIGINS" default:"*"`
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
	// ErrValidation indicates the configuration failed struct validation rules.
	ErrValidation ConfigErrorType = "VALIDATION_FAILED"
	// ErrParsing indicates a failure when parsing environment variable values
	// into their target types.
	ErrParsing ConfigErrorType = "PARSING_FAILED"
)
