// Package config defines the application configuration, its YAML loader and
// the file watcher used for hot-reload.
package config

import (
	"github.com/moolen/vigil/internal/anomaly"
	"github.com/moolen/vigil/internal/reasoning"
	"github.com/moolen/vigil/internal/risk"
)

// Config holds all configuration for the application.
type Config struct {
	// LogLevel is the logging level (debug, info, warn, error)
	LogLevel string `yaml:"log_level"`

	Warehouse WarehouseConfig `yaml:"warehouse"`
	KPI       KPIConfig       `yaml:"kpi"`
	Reasoning ReasoningConfig `yaml:"reasoning"`
	Cycle     CycleConfig     `yaml:"cycle"`
	Audit     AuditConfig     `yaml:"audit"`
	Channels  ChannelsConfig  `yaml:"channels"`
	Server    ServerConfig    `yaml:"server"`
	Tracing   TracingConfig   `yaml:"tracing"`
}

// WarehouseConfig configures the customer mart connection.
type WarehouseConfig struct {
	// DSN is the Postgres connection string for the customer mart
	DSN string `yaml:"dsn"`

	// PredictionCacheSize bounds the per-cycle prediction cache
	PredictionCacheSize int `yaml:"prediction_cache_size"`
}

// KPIConfig configures the business-KPI source.
type KPIConfig struct {
	// URL is the base URL of the analytics service; empty disables KPIs
	URL string `yaml:"url"`

	// TimeoutSeconds bounds one KPI request
	TimeoutSeconds int `yaml:"timeout_seconds"`
}

// ReasoningConfig configures the LLM provider and adapter.
type ReasoningConfig struct {
	// Provider selects the backend: anthropic, openai or mock.
	// API keys are read from ANTHROPIC_API_KEY / OPENAI_API_KEY.
	Provider string `yaml:"provider"`

	// Model is the model identifier; empty uses the provider default
	Model string `yaml:"model"`

	// MaxTokens is the maximum number of tokens per reply
	MaxTokens int `yaml:"max_tokens"`

	// ProbabilityThreshold is the churn probability treated as high risk
	ProbabilityThreshold float64 `yaml:"probability_threshold"`

	// MaxRetries is the number of additional attempts per provider call
	MaxRetries int `yaml:"max_retries"`

	// CallTimeoutSeconds bounds one provider call
	CallTimeoutSeconds int `yaml:"call_timeout_seconds"`

	// ScenarioPath points to a canned-reply file for the mock provider
	ScenarioPath string `yaml:"scenario_path"`
}

// CycleConfig configures the decision cycle.
type CycleConfig struct {
	// Metrics is the set of metric names scored for anomalies
	Metrics []string `yaml:"metrics"`

	// Concurrency bounds parallel customer processing
	Concurrency int `yaml:"concurrency"`

	// CustomerTimeoutSeconds bounds one customer end to end
	CustomerTimeoutSeconds int `yaml:"customer_timeout_seconds"`

	// IntervalMinutes is the pause between cycles in serve mode
	IntervalMinutes int `yaml:"interval_minutes"`

	// ModerateZ and SevereZ are the anomaly severity bucket boundaries
	ModerateZ float64 `yaml:"moderate_z"`
	SevereZ   float64 `yaml:"severe_z"`
}

// AuditConfig configures the audit trail.
type AuditConfig struct {
	// FilePath is the JSONL audit log; used when PostgresDSN is empty
	FilePath string `yaml:"file_path"`

	// PostgresDSN stores the trail in Postgres instead of a file
	PostgresDSN string `yaml:"postgres_dsn"`

	// Kafka mirrors every entry onto a topic when brokers are set
	Kafka KafkaConfig `yaml:"kafka"`
}

// KafkaConfig configures the optional audit mirror.
type KafkaConfig struct {
	Brokers []string `yaml:"brokers"`
	Topic   string   `yaml:"topic"`
}

// ChannelsConfig configures the dispatch channels.
type ChannelsConfig struct {
	// TimeoutSeconds bounds one delivery request on any channel
	TimeoutSeconds int `yaml:"timeout_seconds"`

	Alert    AlertChannelConfig    `yaml:"alert"`
	Ticket   TicketChannelConfig   `yaml:"ticket"`
	Outreach OutreachChannelConfig `yaml:"outreach"`
}

// AlertChannelConfig configures the retention-team webhook.
type AlertChannelConfig struct {
	WebhookURL string `yaml:"webhook_url"`
}

// TicketChannelConfig configures the ticketing system.
type TicketChannelConfig struct {
	BaseURL    string `yaml:"base_url"`
	ProjectKey string `yaml:"project_key"`
	Username   string `yaml:"username"`
	APIToken   string `yaml:"api_token"`
}

// OutreachChannelConfig configures the mail service.
type OutreachChannelConfig struct {
	URL       string `yaml:"url"`
	APIKey    string `yaml:"api_key"`
	FromEmail string `yaml:"from_email"`
}

// ServerConfig configures the serve-mode HTTP surface.
type ServerConfig struct {
	// MetricsAddr is the listen address for /metrics and /healthz
	MetricsAddr string `yaml:"metrics_addr"`
}

// TracingConfig configures OpenTelemetry trace export.
type TracingConfig struct {
	// Enabled indicates whether OpenTelemetry tracing is enabled
	Enabled bool `yaml:"enabled"`

	// Endpoint is the OTLP gRPC endpoint for trace export
	Endpoint string `yaml:"endpoint"`
}

// DefaultConfig returns the application defaults.
func DefaultConfig() *Config {
	return &Config{
		LogLevel: "info",
		Warehouse: WarehouseConfig{
			PredictionCacheSize: 4096,
		},
		KPI: KPIConfig{
			TimeoutSeconds: 15,
		},
		Reasoning: ReasoningConfig{
			Provider:             "anthropic",
			MaxTokens:            1024,
			ProbabilityThreshold: reasoning.DefaultProbabilityThreshold,
			MaxRetries:           2,
			CallTimeoutSeconds:   30,
		},
		Cycle: CycleConfig{
			Metrics:                risk.DefaultMetrics,
			Concurrency:            4,
			CustomerTimeoutSeconds: 120,
			IntervalMinutes:        60,
			ModerateZ:              anomaly.DefaultModerateZ,
			SevereZ:                anomaly.DefaultSevereZ,
		},
		Audit: AuditConfig{
			FilePath: "action_logs.jsonl",
		},
		Channels: ChannelsConfig{
			TimeoutSeconds: 15,
		},
		Server: ServerConfig{
			MetricsAddr: ":9090",
		},
	}
}

// Validate checks that the configuration is valid.
func (c *Config) Validate() error {
	if c.Warehouse.DSN == "" {
		return NewConfigError("warehouse.dsn must not be empty")
	}

	switch c.Reasoning.Provider {
	case "anthropic", "openai", "mock":
	default:
		return NewConfigError("reasoning.provider must be one of: anthropic, openai, mock")
	}
	if c.Reasoning.Provider == "mock" && c.Reasoning.ScenarioPath == "" {
		return NewConfigError("reasoning.scenario_path must be set for the mock provider")
	}
	if c.Reasoning.ProbabilityThreshold <= 0 || c.Reasoning.ProbabilityThreshold > 1 {
		return NewConfigError("reasoning.probability_threshold must be in (0, 1]")
	}
	if c.Reasoning.MaxRetries < 0 {
		return NewConfigError("reasoning.max_retries must not be negative")
	}

	if c.Cycle.Concurrency < 1 {
		return NewConfigError("cycle.concurrency must be at least 1")
	}
	if c.Cycle.CustomerTimeoutSeconds < 1 {
		return NewConfigError("cycle.customer_timeout_seconds must be at least 1")
	}
	if c.Cycle.IntervalMinutes < 1 {
		return NewConfigError("cycle.interval_minutes must be at least 1")
	}
	if c.Cycle.ModerateZ <= 0 || c.Cycle.SevereZ <= c.Cycle.ModerateZ {
		return NewConfigError("cycle severity bounds must satisfy 0 < moderate_z < severe_z")
	}

	if c.Audit.FilePath == "" && c.Audit.PostgresDSN == "" {
		return NewConfigError("audit requires file_path or postgres_dsn")
	}
	if len(c.Audit.Kafka.Brokers) > 0 && c.Audit.Kafka.Topic == "" {
		return NewConfigError("audit.kafka.topic must be set when brokers are configured")
	}

	if c.Tracing.Enabled && c.Tracing.Endpoint == "" {
		return NewConfigError("tracing.endpoint must be set when tracing is enabled")
	}

	return nil
}

// ConfigError represents a configuration error.
type ConfigError struct {
	message string
}

// NewConfigError creates a new configuration error.
func NewConfigError(message string) *ConfigError {
	return &ConfigError{message: message}
}

// Error returns the error message.
func (e *ConfigError) Error() string {
	return e.message
}
