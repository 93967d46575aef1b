package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config represents the complete application configuration
type Config struct {
	Pair      PairConfig      `mapstructure:"pair"`
	WorldBank WorldBankConfig `mapstructure:"worldbank"`
	Refresh   RefreshConfig   `mapstructure:"refresh"`
	Storage   StorageConfig   `mapstructure:"storage"`
	HTTP      HTTPConfig      `mapstructure:"http"`
	Telegram  TelegramConfig  `mapstructure:"telegram"`
	Logging   LoggingConfig   `mapstructure:"logging"`
}

// PairConfig selects the two regions and the indicators that describe them.
// CountryA is the region whose currency is quoted against the reference currency.
type PairConfig struct {
	Label          string `mapstructure:"label"`
	CountryA       string `mapstructure:"country_a"`
	CountryB       string `mapstructure:"country_b"`
	PriceIndicator string `mapstructure:"price_indicator"`
	RateIndicator  string `mapstructure:"rate_indicator"`
	StartYear      int    `mapstructure:"start_year"`
}

// Key identifies the pair in storage.
func (p PairConfig) Key() string {
	return strings.ToLower(p.CountryA + "/" + p.CountryB)
}

// WorldBankConfig holds World Bank API client configuration
type WorldBankConfig struct {
	BaseURL           string        `mapstructure:"base_url"`
	Timeout           time.Duration `mapstructure:"timeout"`
	PerPage           int           `mapstructure:"per_page"`
	MaxRetries        int           `mapstructure:"max_retries"`
	RetryDelayBase    time.Duration `mapstructure:"retry_delay_base"`
	RequestsPerSecond float64       `mapstructure:"requests_per_second"`
	Burst             int           `mapstructure:"burst"`
	BreakerFailures   int           `mapstructure:"breaker_failures"`
	BreakerTimeout    time.Duration `mapstructure:"breaker_timeout"`
}

// RefreshConfig controls how often the estimate is recomputed
type RefreshConfig struct {
	Interval     time.Duration `mapstructure:"interval"`
	StalenessLag int           `mapstructure:"staleness_lag"`
}

// StorageConfig holds frame cache persistence configuration
type StorageConfig struct {
	DBPath    string `mapstructure:"db_path"`
	MaxFrames int    `mapstructure:"max_frames"`
}

// HTTPConfig holds the read API configuration
type HTTPConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Addr    string `mapstructure:"addr"`
}

// TelegramConfig holds Telegram notification configuration
type TelegramConfig struct {
	BotToken       string        `mapstructure:"bot_token"`
	ChatID         string        `mapstructure:"chat_id"`
	Enabled        bool          `mapstructure:"enabled"`
	MaxRetries     int           `mapstructure:"max_retries"`
	RetryDelayBase time.Duration `mapstructure:"retry_delay_base"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Load reads configuration from file and environment variables.
// An empty path loads defaults and environment only.
func Load(path string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	v.SetEnvPrefix("PPPWATCH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &cfg, nil
}

// setDefaults configures default values for all configuration options
func setDefaults(v *viper.Viper) {
	// USD/UYU, as quoted by the World Bank for Uruguay
	v.SetDefault("pair.label", "USD/UYU")
	v.SetDefault("pair.country_a", "uy")
	v.SetDefault("pair.country_b", "us")
	v.SetDefault("pair.price_indicator", "FP.CPI.TOTL")
	v.SetDefault("pair.rate_indicator", "PA.NUS.FCRF")
	v.SetDefault("pair.start_year", 1960)

	v.SetDefault("worldbank.base_url", "https://api.worldbank.org")
	v.SetDefault("worldbank.timeout", "30s")
	v.SetDefault("worldbank.per_page", 500)
	v.SetDefault("worldbank.max_retries", 3)
	v.SetDefault("worldbank.retry_delay_base", "1s")
	v.SetDefault("worldbank.requests_per_second", 2.0)
	v.SetDefault("worldbank.burst", 3)
	v.SetDefault("worldbank.breaker_failures", 3)
	v.SetDefault("worldbank.breaker_timeout", "1m")

	v.SetDefault("refresh.interval", "6h")
	v.SetDefault("refresh.staleness_lag", 1)

	v.SetDefault("storage.db_path", "./data/pppwatch.db")
	v.SetDefault("storage.max_frames", 10)

	v.SetDefault("http.enabled", true)
	v.SetDefault("http.addr", ":8080")

	v.SetDefault("telegram.enabled", false)
	v.SetDefault("telegram.bot_token", "") // registered so PPPWATCH_TELEGRAM_BOT_TOKEN is picked up
	v.SetDefault("telegram.chat_id", "")
	v.SetDefault("telegram.max_retries", 3)
	v.SetDefault("telegram.retry_delay_base", "1s")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
}

// Validate checks that all configuration values are valid
func (c *Config) Validate() error {
	if c.Pair.CountryA == "" {
		return fmt.Errorf("pair.country_a is required")
	}
	if c.Pair.CountryB == "" {
		return fmt.Errorf("pair.country_b is required")
	}
	if strings.EqualFold(c.Pair.CountryA, c.Pair.CountryB) {
		return fmt.Errorf("pair.country_a and pair.country_b must differ")
	}
	if c.Pair.PriceIndicator == "" {
		return fmt.Errorf("pair.price_indicator is required")
	}
	if c.Pair.RateIndicator == "" {
		return fmt.Errorf("pair.rate_indicator is required")
	}
	if c.Pair.StartYear < 1900 {
		return fmt.Errorf("pair.start_year must be 1900 or later")
	}

	if c.WorldBank.BaseURL == "" {
		return fmt.Errorf("worldbank.base_url is required")
	}
	if c.WorldBank.Timeout < time.Second {
		return fmt.Errorf("worldbank.timeout must be at least 1 second")
	}
	if c.WorldBank.PerPage < 1 || c.WorldBank.PerPage > 32500 {
		return fmt.Errorf("worldbank.per_page must be between 1 and 32500")
	}
	if c.WorldBank.MaxRetries < 1 {
		return fmt.Errorf("worldbank.max_retries must be at least 1")
	}
	if c.WorldBank.RetryDelayBase < 0 {
		return fmt.Errorf("worldbank.retry_delay_base must not be negative")
	}
	if c.WorldBank.RequestsPerSecond <= 0 {
		return fmt.Errorf("worldbank.requests_per_second must be positive")
	}
	if c.WorldBank.Burst < 1 {
		return fmt.Errorf("worldbank.burst must be at least 1")
	}
	if c.WorldBank.BreakerFailures < 1 {
		return fmt.Errorf("worldbank.breaker_failures must be at least 1")
	}

	if c.Refresh.Interval < 1*time.Minute {
		return fmt.Errorf("refresh.interval must be at least 1 minute")
	}
	if c.Refresh.StalenessLag < 0 {
		return fmt.Errorf("refresh.staleness_lag must not be negative")
	}

	if c.Storage.MaxFrames < 1 {
		return fmt.Errorf("storage.max_frames must be at least 1")
	}

	if c.HTTP.Enabled && c.HTTP.Addr == "" {
		return fmt.Errorf("http.addr is required when http is enabled")
	}

	if c.Telegram.Enabled {
		if c.Telegram.BotToken == "" {
			return fmt.Errorf("telegram.bot_token is required when telegram is enabled")
		}
		if c.Telegram.ChatID == "" {
			return fmt.Errorf("telegram.chat_id is required when telegram is enabled")
		}
	}

	validLogLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLogLevels[c.Logging.Level] {
		return fmt.Errorf("logging.level must be one of: debug, info, warn, error")
	}
	validFormats := map[string]bool{"json": true, "text": true}
	if !validFormats[c.Logging.Format] {
		return fmt.Errorf("logging.format must be one of: json, text")
	}

	return nil
}
