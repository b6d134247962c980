package config

import (
	"fmt"
	"time"

	appredis "github.com/Proton-105/himera-trader/pkg/redis"
)

// Config holds runtime configuration for the Himera trading assistant.
type Config struct {
	AppEnv    string          `mapstructure:"app_env"`
	Logger    LoggerConfig    `mapstructure:"logger"`
	Sentry    SentryConfig    `mapstructure:"sentry"`
	Bot       BotConfig       `mapstructure:"bot" validate:"required"`
	Server    ServerConfig    `mapstructure:"server"`
	Redis     appredis.Config `mapstructure:"redis"`
	Database  DatabaseConfig  `mapstructure:"database"`
	RateLimit RateLimitConfig `mapstructure:"rate_limit"`
	Pricing   PricingConfig   `mapstructure:"pricing" validate:"required"`
	Jobs      JobsConfig      `mapstructure:"jobs"`
}

// LoggerConfig controls slog output.
type LoggerConfig struct {
	Level  string `mapstructure:"level" validate:"omitempty,oneof=debug info warn error"`
	Format string `mapstructure:"format" validate:"omitempty,oneof=json text"`
	// File enables rotated file output in addition to stdout.
	File       string `mapstructure:"file"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
}

// SentryConfig configures error reporting.
type SentryConfig struct {
	Enabled     bool    `mapstructure:"enabled"`
	DSN         string  `mapstructure:"dsn" validate:"required_if=Enabled true"`
	SampleRate  float64 `mapstructure:"sample_rate" validate:"gte=0,lte=1"`
	Environment string  `mapstructure:"environment"`
}

// BotConfig configures the Telegram transport.
type BotConfig struct {
	Token   string        `mapstructure:"token" validate:"required"`
	Mode    string        `mapstructure:"mode" validate:"omitempty,oneof=polling webhook"`
	Timeout time.Duration `mapstructure:"timeout"`
	// WebhookListen and WebhookURL are used in webhook mode only.
	WebhookListen string `mapstructure:"webhook_listen" validate:"required_if=Mode webhook"`
	WebhookURL    string `mapstructure:"webhook_url" validate:"required_if=Mode webhook,omitempty,url"`
	// DefaultLanguage is used when the sender's language has no catalog.
	DefaultLanguage string `mapstructure:"default_language"`
}

// ServerConfig configures the HTTP server used for probes, metrics and the price API.
type ServerConfig struct {
	Port            string        `mapstructure:"port" validate:"required"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// DatabaseConfig configures the PostgreSQL connection.
type DatabaseConfig struct {
	Host          string `mapstructure:"host"`
	Port          string `mapstructure:"port"`
	User          string `mapstructure:"user"`
	Password      string `mapstructure:"password"`
	Name          string `mapstructure:"name"`
	SSLMode       string `mapstructure:"sslmode"`
	MigrationsDir string `mapstructure:"migrations_dir"`
}

// DSN returns PostgreSQL DSN based on config values.
func (c DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		c.Host,
		c.Port,
		c.User,
		c.Password,
		c.Name,
		c.SSLMode,
	)
}

// Enabled reports whether enough settings are present to open a connection.
func (c DatabaseConfig) Enabled() bool {
	return c.Host != "" && c.Name != ""
}

// RateLimitRule is a limit per window, e.g. 20 per "1m".
type RateLimitRule struct {
	Limit  int    `mapstructure:"limit"`
	Window string `mapstructure:"window"`
}

// RateLimitCommands holds per-command rules.
type RateLimitCommands struct {
	Price RateLimitRule `mapstructure:"price"`
	Long  RateLimitRule `mapstructure:"long"`
	Short RateLimitRule `mapstructure:"short"`
}

// RateLimitConfig configures per-user request throttling.
type RateLimitConfig struct {
	Enabled   bool              `mapstructure:"enabled"`
	Global    RateLimitRule     `mapstructure:"global"`
	PerUser   RateLimitRule     `mapstructure:"per_user"`
	Commands  RateLimitCommands `mapstructure:"commands"`
	Whitelist []int64           `mapstructure:"whitelist"`
}

// PricingConfig configures the price resolution subsystem.
type PricingConfig struct {
	CacheTTL     time.Duration `mapstructure:"cache_ttl" validate:"required"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	QuoteAsset   string        `mapstructure:"quote_asset"`
	// Aliases maps common tickers to the wrapped representation used by listings.
	Aliases map[string]string `mapstructure:"aliases"`
	// ReferenceIDs maps tickers to reference API coin ids.
	ReferenceIDs map[string]string `mapstructure:"reference_ids"`
	Providers    ProvidersConfig   `mapstructure:"providers"`
}

// ProvidersConfig groups upstream endpoints in resolution order.
type ProvidersConfig struct {
	Aggregator  ProviderEndpoint `mapstructure:"aggregator"`
	Hyperliquid ProviderEndpoint `mapstructure:"hyperliquid"`
	Binance     ProviderEndpoint `mapstructure:"binance"`
	Coingecko   ProviderEndpoint `mapstructure:"coingecko"`
}

// ProviderEndpoint describes a single upstream API.
type ProviderEndpoint struct {
	BaseURL string        `mapstructure:"base_url" validate:"omitempty,url"`
	APIKey  string        `mapstructure:"api_key"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// JobsConfig configures background refresh.
type JobsConfig struct {
	Enabled      bool     `mapstructure:"enabled"`
	RefreshCron  string   `mapstructure:"refresh_cron"`
	WatchSymbols []string `mapstructure:"watch_symbols"`
	Concurrency  int      `mapstructure:"concurrency"`
}
