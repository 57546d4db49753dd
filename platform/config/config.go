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

// HTTPConfig provides settings for the HTTP server.
type HTTPConfig interface {
	GetHTTPAddr() string
	GetCORSAllowAll() bool
	GetCORSOrigins() []string
	GetIngestAPIKey() string
}

// SchedulerConfig provides settings for the dispatch scheduler and worker.
type SchedulerConfig interface {
	GetRedisURL() string
	GetRedisTLSInsecure() bool
	GetAsynqQueueName() string
	GetAsynqConcurrency() int
	GetDispatchInterval() time.Duration
	GetDispatchBatchSize() int
	GetMaxSendAttempts() int
	GetSendBackoffBase() time.Duration
}

// BatchSourceConfig provides settings for the remote batch file source.
type BatchSourceConfig interface {
	GetBatchSourceEndpoint() string
	GetBatchSourceAccessKey() string
	GetBatchSourceSecretKey() string
	GetBatchSourceUseSSL() bool
	GetBatchSourceBucket() string
	GetBatchSourcePrefix() string
	GetBatchPollInterval() time.Duration
	IsBatchSourceEnabled() bool
}

// IngestionConfig provides settings for row validation and normalization.
type IngestionConfig interface {
	GetRowErrorCeiling() int
	GetHashIdentityEmail() bool
	GetDefaultPhoneRegion() string
	GetAbandonmentThreshold() time.Duration
}

// TransportConfig provides settings for the outreach transport collaborator.
type TransportConfig interface {
	GetSMTPHost() string
	GetSMTPPort() int
	GetSMTPUsername() string
	GetSMTPPassword() string
	GetSMTPFromName() string
	GetSMTPFromAddress() string
	GetSendTimeout() time.Duration
	GetTransportEnabled() bool
}

// CryptoConfig provides settings for contact-field encryption.
type CryptoConfig interface {
	GetFieldEncryptionPassphrase() string
	GetFieldEncryptionSalt() string
}

// SequencesConfig provides settings for the sequences module.
type SequencesConfig interface {
	GetSequenceSeedFile() string
}

// =============================================================================
// Main Config Struct
// =============================================================================

// Config holds all application configuration values.
type Config struct {
	Env      string
	HTTPAddr string

	DatabaseURL string

	CORSAllowAll bool
	CORSOrigins  []string
	IngestAPIKey string

	RedisURL          string
	RedisTLSInsecure  bool
	AsynqQueueName    string
	AsynqConcurrency  int
	DispatchInterval  time.Duration
	DispatchBatchSize int
	MaxSendAttempts   int
	SendBackoffBase   time.Duration

	BatchSourceEndpoint  string
	BatchSourceAccessKey string
	BatchSourceSecretKey string
	BatchSourceUseSSL    bool
	BatchSourceBucket    string
	BatchSourcePrefix    string
	BatchPollInterval    time.Duration

	RowErrorCeiling      int
	HashIdentityEmail    bool
	DefaultPhoneRegion   string
	AbandonmentThreshold time.Duration

	SMTPHost         string
	SMTPPort         int
	SMTPUsername     string
	SMTPPassword     string
	SMTPFromName     string
	SMTPFromAddress  string
	SendTimeout      time.Duration
	TransportEnabled bool

	FieldEncryptionPassphrase string
	FieldEncryptionSalt       string

	SequenceSeedFile string

	RateLimitPerSecond float64
	RateLimitBurst     int
}

// Load reads configuration from the environment, honoring a local .env file
// when present.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		Env:      getEnv("APP_ENV", "development"),
		HTTPAddr: getEnv("HTTP_ADDR", ":8080"),

		DatabaseURL: os.Getenv("DATABASE_URL"),

		CORSAllowAll: getBoolEnv("CORS_ALLOW_ALL", true),
		CORSOrigins:  splitEnv("CORS_ORIGINS"),
		IngestAPIKey: os.Getenv("INGEST_API_KEY"),

		RedisURL:          getEnv("REDIS_URL", "redis://localhost:6379/0"),
		RedisTLSInsecure:  getBoolEnv("REDIS_TLS_INSECURE", false),
		AsynqQueueName:    getEnv("ASYNQ_QUEUE", "outreach"),
		AsynqConcurrency:  getIntEnv("ASYNQ_CONCURRENCY", 10),
		DispatchInterval:  getDurationEnv("DISPATCH_INTERVAL", 60*time.Second),
		DispatchBatchSize: getIntEnv("DISPATCH_BATCH_SIZE", 100),
		MaxSendAttempts:   getIntEnv("MAX_SEND_ATTEMPTS", 5),
		SendBackoffBase:   getDurationEnv("SEND_BACKOFF_BASE", time.Minute),

		BatchSourceEndpoint:  os.Getenv("BATCH_SOURCE_ENDPOINT"),
		BatchSourceAccessKey: os.Getenv("BATCH_SOURCE_ACCESS_KEY"),
		BatchSourceSecretKey: os.Getenv("BATCH_SOURCE_SECRET_KEY"),
		BatchSourceUseSSL:    getBoolEnv("BATCH_SOURCE_USE_SSL", true),
		BatchSourceBucket:    getEnv("BATCH_SOURCE_BUCKET", "lead-drops"),
		BatchSourcePrefix:    getEnv("BATCH_SOURCE_PREFIX", "incoming/"),
		BatchPollInterval:    getDurationEnv("BATCH_POLL_INTERVAL", 5*time.Minute),

		RowErrorCeiling:      getIntEnv("ROW_ERROR_CEILING", 100),
		HashIdentityEmail:    getBoolEnv("HASH_IDENTITY_EMAIL", true),
		DefaultPhoneRegion:   getEnv("DEFAULT_PHONE_REGION", "US"),
		AbandonmentThreshold: getDurationEnv("ABANDONMENT_THRESHOLD", 72*time.Hour),

		SMTPHost:         os.Getenv("SMTP_HOST"),
		SMTPPort:         getIntEnv("SMTP_PORT", 587),
		SMTPUsername:     os.Getenv("SMTP_USERNAME"),
		SMTPPassword:     os.Getenv("SMTP_PASSWORD"),
		SMTPFromName:     getEnv("SMTP_FROM_NAME", "Outreach"),
		SMTPFromAddress:  os.Getenv("SMTP_FROM_ADDRESS"),
		SendTimeout:      getDurationEnv("SEND_TIMEOUT", 15*time.Second),
		TransportEnabled: getBoolEnv("TRANSPORT_ENABLED", true),

		FieldEncryptionPassphrase: os.Getenv("FIELD_ENCRYPTION_PASSPHRASE"),
		FieldEncryptionSalt:       getEnv("FIELD_ENCRYPTION_SALT", "outreach-engine"),

		SequenceSeedFile: os.Getenv("SEQUENCE_SEED_FILE"),

		RateLimitPerSecond: getFloatEnv("RATE_LIMIT_PER_SECOND", 10),
		RateLimitBurst:     getIntEnv("RATE_LIMIT_BURST", 30),
	}

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}
	if cfg.FieldEncryptionPassphrase == "" {
		return nil, fmt.Errorf("FIELD_ENCRYPTION_PASSPHRASE is required")
	}

	return cfg, nil
}

// =============================================================================
// Interface Implementations
// =============================================================================

func (c *Config) GetDatabaseURL() string { return c.DatabaseURL }

func (c *Config) GetHTTPAddr() string      { return c.HTTPAddr }
func (c *Config) GetCORSAllowAll() bool    { return c.CORSAllowAll }
func (c *Config) GetCORSOrigins() []string { return c.CORSOrigins }
func (c *Config) GetIngestAPIKey() string  { return c.IngestAPIKey }

func (c *Config) GetRedisURL() string                { return c.RedisURL }
func (c *Config) GetRedisTLSInsecure() bool          { return c.RedisTLSInsecure }
func (c *Config) GetAsynqQueueName() string          { return c.AsynqQueueName }
func (c *Config) GetAsynqConcurrency() int           { return c.AsynqConcurrency }
func (c *Config) GetDispatchInterval() time.Duration { return c.DispatchInterval }
func (c *Config) GetDispatchBatchSize() int          { return c.DispatchBatchSize }
func (c *Config) GetMaxSendAttempts() int            { return c.MaxSendAttempts }
func (c *Config) GetSendBackoffBase() time.Duration  { return c.SendBackoffBase }

func (c *Config) GetBatchSourceEndpoint() string      { return c.BatchSourceEndpoint }
func (c *Config) GetBatchSourceAccessKey() string     { return c.BatchSourceAccessKey }
func (c *Config) GetBatchSourceSecretKey() string     { return c.BatchSourceSecretKey }
func (c *Config) GetBatchSourceUseSSL() bool          { return c.BatchSourceUseSSL }
func (c *Config) GetBatchSourceBucket() string        { return c.BatchSourceBucket }
func (c *Config) GetBatchSourcePrefix() string        { return c.BatchSourcePrefix }
func (c *Config) GetBatchPollInterval() time.Duration { return c.BatchPollInterval }
func (c *Config) IsBatchSourceEnabled() bool          { return c.BatchSourceEndpoint != "" }

func (c *Config) GetRowErrorCeiling() int                  { return c.RowErrorCeiling }
func (c *Config) GetHashIdentityEmail() bool               { return c.HashIdentityEmail }
func (c *Config) GetDefaultPhoneRegion() string            { return c.DefaultPhoneRegion }
func (c *Config) GetAbandonmentThreshold() time.Duration   { return c.AbandonmentThreshold }

func (c *Config) GetSMTPHost() string            { return c.SMTPHost }
func (c *Config) GetSMTPPort() int               { return c.SMTPPort }
func (c *Config) GetSMTPUsername() string        { return c.SMTPUsername }
func (c *Config) GetSMTPPassword() string        { return c.SMTPPassword }
func (c *Config) GetSMTPFromName() string        { return c.SMTPFromName }
func (c *Config) GetSMTPFromAddress() string     { return c.SMTPFromAddress }
func (c *Config) GetSendTimeout() time.Duration  { return c.SendTimeout }
func (c *Config) GetTransportEnabled() bool      { return c.TransportEnabled }

func (c *Config) GetFieldEncryptionPassphrase() string { return c.FieldEncryptionPassphrase }
func (c *Config) GetFieldEncryptionSalt() string       { return c.FieldEncryptionSalt }

func (c *Config) GetSequenceSeedFile() string { return c.SequenceSeedFile }

// =============================================================================
// Env Helpers
// =============================================================================

func getEnv(key, fallback string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return fallback
}

func getBoolEnv(key string, fallback bool) bool {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(raw)
	if err != nil {
		return fallback
	}
	return parsed
}

func getIntEnv(key string, fallback int) int {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return parsed
}

func getFloatEnv(key string, fallback float64) float64 {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback
	}
	parsed, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return fallback
	}
	return parsed
}

func getDurationEnv(key string, fallback time.Duration) time.Duration {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil || parsed <= 0 {
		return fallback
	}
	return parsed
}

func splitEnv(key string) []string {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
