package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	pkgconfig "github.com/gomersimpson131212-create/reviews-telegram-bot/pkg/config"
	"github.com/gomersimpson131212-create/reviews-telegram-bot/pkg/database"
)

// ServiceName labels logs, metrics and traces.
const ServiceName = "feedback-bot"

// Config holds all configuration for the feedback bot.
type Config struct {
	Environment string `env:"ENVIRONMENT" envDefault:"development"`
	LogLevel    string `env:"LOG_LEVEL" envDefault:"info"`

	// Telegram
	BotToken            string  `env:"BOT_TOKEN"`
	TelegramAPIEndpoint string  `env:"TELEGRAM_API_ENDPOINT"`
	TelegramPollTimeout int     `env:"TELEGRAM_POLL_TIMEOUT" envDefault:"60"`
	TelegramRateLimit   float64 `env:"TELEGRAM_RATE_LIMIT" envDefault:"25"`
	TelegramRateBurst   int     `env:"TELEGRAM_RATE_BURST" envDefault:"5"`
	TelegramDryRun      bool    `env:"TELEGRAM_DRY_RUN" envDefault:"false"`

	// Moderation and publishing
	AdminIDs         []int64 `env:"ADMIN_IDS" envSeparator:","`
	ModerationChatID int64   `env:"MODERATION_CHAT_ID"`
	ChannelID        string  `env:"CHANNEL_ID"`

	SubmissionCooldown         time.Duration `env:"SUBMISSION_COOLDOWN" envDefault:"12h"`
	AggregateReconcileInterval time.Duration `env:"AGGREGATE_RECONCILE_INTERVAL" envDefault:"10m"`

	// Ops HTTP server
	HTTPPort          int           `env:"HTTP_PORT" envDefault:"8080"`
	ShutdownTimeout   time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"15s"`
	PprofAllowedCIDRs []string      `env:"PPROF_ALLOWED_CIDRS" envDefault:"127.0.0.0/8,::1/128" envSeparator:","`

	// PostgreSQL
	PostgresHost string `env:"POSTGRES_HOST" envDefault:"localhost"`
	PostgresPort int    `env:"POSTGRES_PORT" envDefault:"5432"`
	PostgresUser string `env:"POSTGRES_USER" envDefault:"feedback"`
	PostgresPass string `env:"POSTGRES_PASSWORD" envDefault:"feedback_secret"`
	PostgresDB   string `env:"POSTGRES_DB" envDefault:"feedback"`
	PostgresSSL  string `env:"POSTGRES_SSL_MODE" envDefault:"disable"`

	// Database pool
	DBMaxConns        int32         `env:"DB_MAX_CONNS" envDefault:"10"`
	DBMinConns        int32         `env:"DB_MIN_CONNS" envDefault:"2"`
	DBMaxConnLifetime time.Duration `env:"DB_MAX_CONN_LIFETIME" envDefault:"1h"`
	DBMaxConnIdleTime time.Duration `env:"DB_MAX_CONN_IDLE_TIME" envDefault:"30m"`

	// Kafka domain events, off unless enabled.
	KafkaEnabled     bool     `env:"KAFKA_ENABLED" envDefault:"false"`
	KafkaBrokers     []string `env:"KAFKA_BROKERS" envDefault:"localhost:9092" envSeparator:","`
	KafkaTopicPrefix string   `env:"KAFKA_TOPIC_PREFIX" envDefault:"feedback"`

	// Redis update de-duplication. Empty address keeps it in memory.
	RedisAddr      string        `env:"REDIS_ADDR"`
	RedisPassword  string        `env:"REDIS_PASSWORD"`
	RedisDB        int           `env:"REDIS_DB" envDefault:"0"`
	UpdateDedupTTL time.Duration `env:"UPDATE_DEDUP_TTL" envDefault:"24h"`

	// OpenTelemetry
	OTELEnabled    bool    `env:"OTEL_ENABLED" envDefault:"false"`
	OTELEndpoint   string  `env:"OTEL_EXPORTER_OTLP_ENDPOINT" envDefault:"localhost:4318"`
	OTELSampleRate float64 `env:"OTEL_SAMPLE_RATE" envDefault:"1.0"`

	// Slow query logging
	SlowQueryThresholdMs int `env:"LOG_SLOW_QUERY_MS" envDefault:"500"`
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := pkgconfig.Load(cfg); err != nil {
		return nil, fmt.Errorf("load bot config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks required values and ranges.
func (c *Config) Validate() error {
	if c.BotToken == "" && !c.TelegramDryRun {
		return fmt.Errorf("BOT_TOKEN is required unless TELEGRAM_DRY_RUN is set")
	}
	if len(c.AdminIDs) == 0 {
		return fmt.Errorf("ADMIN_IDS is required")
	}
	if strings.TrimSpace(c.ChannelID) == "" {
		return fmt.Errorf("CHANNEL_ID is required")
	}
	if !strings.HasPrefix(c.ChannelID, "@") {
		if _, err := strconv.ParseInt(c.ChannelID, 10, 64); err != nil {
			return fmt.Errorf("CHANNEL_ID must be @username or a numeric chat id, got %q", c.ChannelID)
		}
	}
	if c.SubmissionCooldown < 0 {
		return fmt.Errorf("SUBMISSION_COOLDOWN must not be negative")
	}
	if c.HTTPPort < 1 || c.HTTPPort > 65535 {
		return fmt.Errorf("invalid HTTP port: %d", c.HTTPPort)
	}
	if c.TelegramRateLimit <= 0 {
		return fmt.Errorf("TELEGRAM_RATE_LIMIT must be positive")
	}
	if c.TelegramRateBurst < 1 {
		return fmt.Errorf("TELEGRAM_RATE_BURST must be at least 1")
	}
	if c.KafkaEnabled && len(c.KafkaBrokers) == 0 {
		return fmt.Errorf("KAFKA_BROKERS is required when KAFKA_ENABLED is set")
	}
	if c.OTELSampleRate < 0 || c.OTELSampleRate > 1.0 {
		return fmt.Errorf("OTEL_SAMPLE_RATE must be between 0.0 and 1.0, got %f", c.OTELSampleRate)
	}
	return nil
}

// ModerationChat returns the chat receiving moderation requests, defaulting
// to the first admin's private chat.
func (c *Config) ModerationChat() int64 {
	if c.ModerationChatID != 0 {
		return c.ModerationChatID
	}
	return c.AdminIDs[0]
}

// Postgres returns the pool configuration.
func (c *Config) Postgres() database.PostgresConfig {
	return database.PostgresConfig{
		Host:            c.PostgresHost,
		Port:            c.PostgresPort,
		User:            c.PostgresUser,
		Password:        c.PostgresPass,
		DBName:          c.PostgresDB,
		SSLMode:         c.PostgresSSL,
		ApplicationName: ServiceName,
		MaxConns:        c.DBMaxConns,
		MinConns:        c.DBMinConns,
		MaxConnLifetime: c.DBMaxConnLifetime,
		MaxConnIdleTime: c.DBMaxConnIdleTime,
	}
}

// Redis returns the Redis configuration. Enabled() is false when REDIS_ADDR is empty.
func (c *Config) Redis() database.RedisConfig {
	return database.RedisConfig{
		Addr:        c.RedisAddr,
		Password:    c.RedisPassword,
		DB:          c.RedisDB,
		DialTimeout: 5 * time.Second,
	}
}

// SlowQueryThreshold returns LOG_SLOW_QUERY_MS as a duration.
func (c *Config) SlowQueryThreshold() time.Duration {
	return time.Duration(c.SlowQueryThresholdMs) * time.Millisecond
}
