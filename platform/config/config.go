// Package config provides application configuration loading.
// This is part of the platform layer and contains no business logic.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// =============================================================================
// Module-Specific Config Interfaces (Principle of Least Privilege)
// =============================================================================

// DatabaseConfig provides database connection settings.
type DatabaseConfig interface {
	GetDatabaseURL() string
}

// SchedulerConfig provides settings for the asynq worker and task client.
type SchedulerConfig interface {
	GetRedisURL() string
	GetRedisTLSInsecure() bool
	GetAsynqQueueName() string
	GetAsynqConcurrency() int
	GetBatchInterval() time.Duration
	GetBatchSize() int
}

// OracleConfig provides settings for the decision-oracle client.
type OracleConfig interface {
	GetGeminiAPIKey() string
	GetOracleModel() string
	GetOracleTimeout() time.Duration
	GetOracleRequestsPerMinute() int
}

// GatewayConfig provides settings for the SMS/WhatsApp gateway sender.
type GatewayConfig interface {
	GetGatewayURL() string
	GetGatewayKey() string
	GetGatewayDeviceID() string
}

// EmailConfig provides settings for the SMTP email sender.
type EmailConfig interface {
	GetEmailEnabled() bool
	GetSMTPHost() string
	GetSMTPPort() int
	GetSMTPUsername() string
	GetSMTPPassword() string
	GetEmailFromName() string
	GetEmailFromAddress() string
}

// AlertConfig provides settings for the operational alert channel.
type AlertConfig interface {
	GetAlertWebhookURL() string
}

// HTTPConfig provides settings for the HTTP server.
type HTTPConfig interface {
	GetHTTPAddr() string
	GetCORSAllowAll() bool
	GetCORSOrigins() []string
}

// WebhookConfig provides settings for inbound webhook authentication.
type WebhookConfig interface {
	GetWebhookAPIKey() string
}

// AgentToggles controls the autonomous outreach engine. Rollout selection is
// a deterministic hash of the lead ID so a lead never flips buckets between
// cycles.
type AgentToggles struct {
	Enabled        bool
	DryRun         bool
	RolloutPercent int // 0-100
}

// =============================================================================
// Main Config Struct
// =============================================================================

// Config holds all application configuration values.
type Config struct {
	Env              string
	HTTPAddr         string
	DatabaseURL      string
	CORSAllowAll     bool
	CORSOrigins      []string
	RedisURL         string
	RedisTLSInsecure bool
	AsynqQueueName   string
	AsynqConcurrency int
	BatchInterval    time.Duration
	BatchSize        int
	GeminiAPIKey     string
	OracleModel      string
	OracleTimeout    time.Duration
	OracleRPM        int
	GatewayURL       string
	GatewayKey       string
	GatewayDeviceID  string
	EmailEnabled     bool
	SMTPHost         string
	SMTPPort         int
	SMTPUsername     string
	SMTPPassword     string
	EmailFromName    string
	EmailFromAddress string
	AlertWebhookURL  string
	WebhookAPIKey    string
	Agent            AgentToggles
}

// Load reads configuration from the environment, with .env support for
// local development.
func Load() (*Config, error) {
	_ = godotenv.Load()

	corsOrigins := splitCSV(getEnv("CORS_ORIGINS", "http://localhost:4200"))
	corsAllowAll := strings.EqualFold(getEnv("CORS_ALLOW_ALL", "false"), "true")
	if containsWildcard(corsOrigins) {
		corsAllowAll = true
	}

	emailEnabled := strings.EqualFold(getEnv("EMAIL_ENABLED", "true"), "true")
	smtpHost := getEnv("SMTP_HOST", "")

	rollout := mustInt(getEnv("AGENT_ROLLOUT_PERCENT", "100"))
	if rollout < 0 {
		rollout = 0
	}
	if rollout > 100 {
		rollout = 100
	}

	cfg := &Config{
		Env:              getEnv("APP_ENV", "development"),
		HTTPAddr:         getEnv("HTTP_ADDR", ":8080"),
		DatabaseURL:      getEnv("DATABASE_URL", ""),
		CORSAllowAll:     corsAllowAll,
		CORSOrigins:      corsOrigins,
		RedisURL:         getEnv("REDIS_URL", ""),
		RedisTLSInsecure: strings.EqualFold(getEnv("REDIS_TLS_INSECURE", "false"), "true"),
		AsynqQueueName:   getEnv("ASYNQ_QUEUE", "nurture"),
		AsynqConcurrency: mustInt(getEnv("ASYNQ_CONCURRENCY", "10")),
		BatchInterval:    mustDuration(getEnv("BATCH_INTERVAL", "15m")),
		BatchSize:        mustInt(getEnv("BATCH_SIZE", "50")),
		GeminiAPIKey:     getEnv("GEMINI_API_KEY", ""),
		OracleModel:      getEnv("ORACLE_MODEL", "gemini-2.0-flash"),
		OracleTimeout:    mustDuration(getEnv("ORACLE_TIMEOUT", "45s")),
		OracleRPM:        mustInt(getEnv("ORACLE_REQUESTS_PER_MINUTE", "30")),
		GatewayURL:       getEnv("GATEWAY_URL", ""),
		GatewayKey:       getEnv("GATEWAY_API_KEY", ""),
		GatewayDeviceID:  getEnv("GATEWAY_DEVICE_ID", ""),
		EmailEnabled:     emailEnabled && smtpHost != "",
		SMTPHost:         smtpHost,
		SMTPPort:         mustInt(getEnv("SMTP_PORT", "587")),
		SMTPUsername:     getEnv("SMTP_USERNAME", ""),
		SMTPPassword:     getEnv("SMTP_PASSWORD", ""),
		EmailFromName:    getEnv("EMAIL_FROM_NAME", "Nurture"),
		EmailFromAddress: getEnv("EMAIL_FROM_ADDRESS", ""),
		AlertWebhookURL:  getEnv("ALERT_WEBHOOK_URL", ""),
		WebhookAPIKey:    getEnv("WEBHOOK_API_KEY", ""),
		Agent: AgentToggles{
			Enabled:        strings.EqualFold(getEnv("AGENT_ENABLED", "true"), "true"),
			DryRun:         strings.EqualFold(getEnv("AGENT_DRY_RUN", "false"), "true"),
			RolloutPercent: rollout,
		},
	}

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}
	if cfg.EmailEnabled && cfg.EmailFromAddress == "" {
		return nil, fmt.Errorf("EMAIL_FROM_ADDRESS is required when email is enabled")
	}
	if cfg.BatchSize < 1 {
		return nil, fmt.Errorf("BATCH_SIZE must be positive")
	}

	return cfg, nil
}

// =============================================================================
// Interface Implementations
// =============================================================================

func (c *Config) GetDatabaseURL() string { return c.DatabaseURL }

func (c *Config) GetRedisURL() string { return c.RedisURL }
func (c *Config) GetRedisTLSInsecure() bool { return c.RedisTLSInsecure }
func (c *Config) GetAsynqQueueName() string { return c.AsynqQueueName }
func (c *Config) GetAsynqConcurrency() int { return c.AsynqConcurrency }
func (c *Config) GetBatchInterval() time.Duration { return c.BatchInterval }
func (c *Config) GetBatchSize() int { return c.BatchSize }

func (c *Config) GetGeminiAPIKey() string { return c.GeminiAPIKey }
func (c *Config) GetOracleModel() string { return c.OracleModel }
func (c *Config) GetOracleTimeout() time.Duration { return c.OracleTimeout }
func (c *Config) GetOracleRequestsPerMinute() int { return c.OracleRPM }

func (c *Config) GetGatewayURL() string { return c.GatewayURL }
func (c *Config) GetGatewayKey() string { return c.GatewayKey }
func (c *Config) GetGatewayDeviceID() string { return c.GatewayDeviceID }

func (c *Config) GetEmailEnabled() bool { return c.EmailEnabled }
func (c *Config) GetSMTPHost() string { return c.SMTPHost }
func (c *Config) GetSMTPPort() int { return c.SMTPPort }
func (c *Config) GetSMTPUsername() string { return c.SMTPUsername }
func (c *Config) GetSMTPPassword() string { return c.SMTPPassword }
func (c *Config) GetEmailFromName() string { return c.EmailFromName }
func (c *Config) GetEmailFromAddress() string { return c.EmailFromAddress }

func (c *Config) GetAlertWebhookURL() string { return c.AlertWebhookURL }

func (c *Config) GetWebhookAPIKey() string { return c.WebhookAPIKey }

func (c *Config) GetHTTPAddr() string { return c.HTTPAddr }
func (c *Config) GetCORSAllowAll() bool { return c.CORSAllowAll }
func (c *Config) GetCORSOrigins() []string { return c.CORSOrigins }

// =============================================================================
// Helpers
// =============================================================================

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok && strings.TrimSpace(value) != "" {
		return value
	}
	return fallback
}

func mustDuration(value string) time.Duration {
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0
	}
	return d
}

func mustInt(value string) int {
	n, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return 0
	}
	return n
}

func splitCSV(value string) []string {
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

func containsWildcard(values []string) bool {
	for _, v := range values {
		if v == "*" {
			return true
		}
	}
	return false
}
