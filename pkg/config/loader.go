// Package config provides configuration loading and validation utilities.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	validator "github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"
	"github.com/spf13/viper"
)

const (
	defaultCacheTTL     = 60 * time.Second
	defaultWriteTimeout = 2 * time.Second
	defaultQuoteAsset   = "USDT"
	defaultRefreshCron  = "*/5 * * * *"
)

// Load reads configuration from YAML files and environment variables, validates it, and returns the resulting Config.
func Load() (*Config, *viper.Viper, error) {
	if err := godotenv.Load(".env.local", ".env"); err != nil {
		// env files are optional
		_ = err
	}

	env := os.Getenv("APP_ENV")
	if env == "" {
		env = "development"
	}

	v := viper.New()
	v.SetConfigFile(fmt.Sprintf("./configs/%s.yaml", env))

	return load(v, env)
}

// LoadFile reads configuration from an explicit path. Used by tools and tests.
func LoadFile(path string) (*Config, *viper.Viper, error) {
	v := viper.New()
	v.SetConfigFile(path)
	return load(v, "test")
}

func load(v *viper.Viper, env string) (*Config, *viper.Viper, error) {
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		return nil, nil, fmt.Errorf("read config: %w", err)
	}

	cfg, err := decode(v)
	if err != nil {
		return nil, nil, err
	}
	cfg.AppEnv = env

	return cfg, v, nil
}

func decode(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	validate := validator.New(validator.WithRequiredStructEnabled())
	if err := validate.Struct(cfg); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	if cfg.Jobs.Enabled {
		if _, err := cron.ParseStandard(cfg.Jobs.RefreshCron); err != nil {
			return nil, fmt.Errorf("validate config: jobs.refresh_cron: %w", err)
		}
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "json")
	v.SetDefault("bot.mode", "polling")
	v.SetDefault("bot.timeout", 10*time.Second)
	v.SetDefault("bot.webhook_listen", ":8443")
	v.SetDefault("bot.default_language", "en")
	v.SetDefault("server.port", ":8080")
	v.SetDefault("server.shutdown_timeout", 10*time.Second)
	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.pool_size", 10)
	v.SetDefault("database.port", "5432")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("pricing.cache_ttl", defaultCacheTTL)
	v.SetDefault("pricing.write_timeout", defaultWriteTimeout)
	v.SetDefault("pricing.quote_asset", defaultQuoteAsset)
	v.SetDefault("pricing.aliases", map[string]string{"BTC": "WBTC", "ETH": "WETH"})
	v.SetDefault("pricing.reference_ids", map[string]string{
		"BTC":  "bitcoin",
		"ETH":  "ethereum",
		"SOL":  "solana",
		"BNB":  "binancecoin",
		"XRP":  "ripple",
		"DOGE": "dogecoin",
		"TON":  "the-open-network",
	})
	v.SetDefault("pricing.providers.aggregator.timeout", 5*time.Second)
	v.SetDefault("pricing.providers.hyperliquid.base_url", "https://api.hyperliquid.xyz")
	v.SetDefault("pricing.providers.hyperliquid.timeout", 5*time.Second)
	v.SetDefault("pricing.providers.binance.base_url", "https://api.binance.com")
	v.SetDefault("pricing.providers.binance.timeout", 5*time.Second)
	v.SetDefault("pricing.providers.coingecko.base_url", "https://api.coingecko.com/api/v3")
	v.SetDefault("pricing.providers.coingecko.timeout", 5*time.Second)
	v.SetDefault("jobs.refresh_cron", defaultRefreshCron)
	v.SetDefault("jobs.concurrency", 2)
}

// Watch reloads the config file on change and hands validated pricing settings to onChange.
// Invalid edits are logged and ignored.
func Watch(v *viper.Viper, log *slog.Logger, onChange func(PricingConfig)) {
	if v == nil || onChange == nil {
		return
	}
	if log == nil {
		log = slog.Default()
	}

	v.OnConfigChange(func(e fsnotify.Event) {
		if !e.Has(fsnotify.Write) && !e.Has(fsnotify.Create) {
			return
		}

		cfg, err := decode(v)
		if err != nil {
			log.Warn("config reload rejected", slog.String("file", e.Name), slog.Any("error", err))
			return
		}

		log.Info("config reloaded", slog.String("file", e.Name), slog.Duration("price_cache_ttl", cfg.Pricing.CacheTTL))
		onChange(cfg.Pricing)
	})
	v.WatchConfig()
}
