// Package config defines the global configuration structure for the Floodline
// platform. Configuration is loaded once at process start and is immutable
// thereafter. It follows 12-Factor principles by strictly separating code
// from configuration.
//
// Any missing required value or invalid format causes the process to exit
// immediately on startup (fail fast).
package config

import "time"

// Config is the top-level configuration struct. It is populated once during
// process initialization and never modified. Sub-components receive only the
// specific config subsets they require.
type Config struct {
	// System Metadata
	Environment string `envconfig:"APP_ENV" default:"local" validate:"required,oneof=local dev staging prod"`
	Service     string `envconfig:"SERVICE_NAME" default:"floodline"`
	LogLevel    string `envconfig:"LOG_LEVEL" default:"info"`

	// Deployment time zone used for the feed adapters' trailing windows
	// (e.g. "Asia/Kathmandu"). The window is "yesterday 00:00 through
	// today 23:59" in this zone, recomputed per poll.
	Timezone string `envconfig:"DEPLOYMENT_TIMEZONE" default:"Asia/Kathmandu" validate:"required"`

	Server    ServerConfig
	Database  DatabaseConfig
	AWS       AWSConfig
	Feeds     FeedConfig
	Scheduler SchedulerConfig
	Security  SecurityConfig
	Webhook   WebhookConfig
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Port        string `envconfig:"PORT" default:"8080"`
	MetricsPort string `envconfig:"METRICS_PORT" default:"9090"`
}

// DatabaseConfig holds database connection and pool tuning parameters.
type DatabaseConfig struct {
	URL string `envconfig:"DATABASE_URL" validate:"required,url"`

	MaxConns          int           `envconfig:"DB_MAX_CONNS" default:"10"`
	MinConns          int           `envconfig:"DB_MIN_CONNS" default:"2"`
	MaxConnLifetime   time.Duration `envconfig:"DB_MAX_CONN_LIFETIME" default:"30m"`
	HealthCheckPeriod time.Duration `envconfig:"DB_HEALTH_CHECK_PERIOD" default:"1m"`
}

// AWSConfig holds AWS resource identifiers and regional configuration.
type AWSConfig struct {
	Region string `envconfig:"AWS_REGION" default:"us-east-1"`

	// Queue URLs
	TickQueue         string `envconfig:"SQS_TICKS" validate:"required,url"`
	DispatchQueue     string `envconfig:"SQS_DISPATCH" validate:"required,url"`
	NotificationQueue string `envconfig:"SQS_NOTIFICATIONS" validate:"required,url"`

	// LocalStack support (empty in prod)
	EndpointURL string `envconfig:"AWS_ENDPOINT_URL"`
}

// FeedConfig holds external hydrological feed endpoints and timeouts.
type FeedConfig struct {
	DHMBaseURL    string        `envconfig:"DHM_BASE_URL" validate:"required,url"`
	GlofasBaseURL string        `envconfig:"GLOFAS_BASE_URL" validate:"required,url"`
	FetchTimeout  time.Duration `envconfig:"FEED_FETCH_TIMEOUT" default:"30s"`
}

// SchedulerConfig holds recurring-job retry policy. The defaults match the
// platform contract: 3 attempts with exponential backoff starting at 1s.
type SchedulerConfig struct {
	MaxAttempts int           `envconfig:"TICK_MAX_ATTEMPTS" default:"3" validate:"min=1"`
	BackoffBase time.Duration `envconfig:"TICK_BACKOFF_BASE" default:"1s"`
}

// SecurityConfig holds management API access configuration.
type SecurityConfig struct {
	AdminAPIKey string `envconfig:"ADMIN_API_KEY" validate:"required,min=16"`
}

// WebhookConfig holds settings for outbound notification webhook delivery.
type WebhookConfig struct {
	URL            string        `envconfig:"NOTIFY_WEBHOOK_URL"`
	UserAgent      string        `envconfig:"WEBHOOK_USER_AGENT" default:"Floodline-Notify/1.0"`
	DefaultTimeout time.Duration `envconfig:"WEBHOOK_TIMEOUT" default:"10s"`
}
