// Package config provides configuration management for the trading application.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
	"github.com/xhit/go-str2duration/v2"

	apperrors "momentum-trader/internal/errors"
	"momentum-trader/internal/logging"
	"momentum-trader/internal/models"
	"momentum-trader/internal/notify"
	"momentum-trader/internal/optimizer"
	"momentum-trader/internal/pricefeed"
	"momentum-trader/internal/store"
	"momentum-trader/internal/trading"
	"momentum-trader/pkg/utils"
)

// Config holds all application configuration.
type Config struct {
	Backtest   BacktestConfig    `mapstructure:"backtest"`
	Oscillator OscillatorConfig  `mapstructure:"oscillator"`
	Optimizer  OptimizerConfig   `mapstructure:"optimizer"`
	Ledger     LedgerConfig      `mapstructure:"ledger"`
	Refresh    RefreshConfig     `mapstructure:"refresh"`
	Analytics  AnalyticsConfig   `mapstructure:"analytics"`
	Notify     NotifyConfig      `mapstructure:"notify"`
	Logging    logging.LogConfig `mapstructure:"logging"`

	// Dir is the directory the configuration was loaded from.
	Dir string `mapstructure:"-"`
}

// BacktestConfig holds the default strategy parameters.
type BacktestConfig struct {
	EntryThreshold    float64 `mapstructure:"entry_threshold"`
	TakeProfitPercent float64 `mapstructure:"take_profit_percent"`
	StopLossPercent   float64 `mapstructure:"stop_loss_percent"`
	MaxHoldingDays    int     `mapstructure:"max_holding_days"`
	UseWeeklyFilter   bool    `mapstructure:"use_weekly_filter"`
	WarmupMonths      int     `mapstructure:"warmup_months"`
}

// OscillatorConfig holds the default oscillator periods.
type OscillatorConfig struct {
	R int `mapstructure:"r"`
	S int `mapstructure:"s"`
	U int `mapstructure:"u"`
}

// OptimizerConfig holds the parameter search settings.
type OptimizerConfig struct {
	Workers         int              `mapstructure:"workers"` // 0 = one per CPU
	MinTrades       int              `mapstructure:"min_trades"`
	MaxCombinations int              `mapstructure:"max_combinations"`
	Ranges          optimizer.Ranges `mapstructure:"ranges"`
}

// LedgerConfig selects the persistence backend.
type LedgerConfig struct {
	Storage     string `mapstructure:"storage"` // sqlite, postgres, memory
	DBPath      string `mapstructure:"db_path"`
	PostgresURL string `mapstructure:"postgres_url"`
}

// RefreshConfig holds the price refresh settings. Durations accept day and
// week units, e.g. "15m", "1d", "1w".
type RefreshConfig struct {
	Interval          string  `mapstructure:"interval"`
	PriceFeedURL      string  `mapstructure:"price_feed_url"`
	PriceFeedKey      string  `mapstructure:"price_feed_key"`
	Timeout           string  `mapstructure:"timeout"`
	MaxAttempts       int     `mapstructure:"max_attempts"`
	InitialDelay      string  `mapstructure:"initial_delay"`
	MaxDelay          string  `mapstructure:"max_delay"`
	Concurrency       int     `mapstructure:"concurrency"`
	RequestsPerSecond float64 `mapstructure:"requests_per_second"`
}

// AnalyticsConfig holds analytics settings.
type AnalyticsConfig struct {
	RiskFreeRate float64 `mapstructure:"risk_free_rate"` // annual, percent
}

// NotifyConfig holds the alert settings used while watching the ledger.
type NotifyConfig struct {
	Level      string `mapstructure:"level"` // all, trades_only, errors_only
	WebhookURL string `mapstructure:"webhook_url"`
	Bell       bool   `mapstructure:"bell"`
}

// DefaultConfigDir returns the default configuration directory.
func DefaultConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".config/momentum-trader"
	}
	return filepath.Join(home, ".config", "momentum-trader")
}

// ConfigPath returns the config file path inside configDir.
func ConfigPath(configDir string) string {
	if configDir == "" {
		configDir = DefaultConfigDir()
	}
	return filepath.Join(configDir, "config.toml")
}

// Load loads configuration from the specified directory.
// If configDir is empty, uses the default config directory. A missing
// config.toml is replaced by the commented template and defaults apply.
func Load(configDir string) (*Config, error) {
	if configDir == "" {
		configDir = DefaultConfigDir()
	}

	loadDotEnv(configDir)

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("toml")
	v.AddConfigPath(configDir)
	setDefaults(v, configDir)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("loading config.toml: %w", err)
		}
		if err := createTemplateConfig(configDir); err != nil {
			return nil, err
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("decoding config.toml: %w", err)
	}
	cfg.Dir = configDir

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// Default returns the built-in configuration rooted at configDir.
func Default(configDir string) *Config {
	v := viper.New()
	setDefaults(v, configDir)
	cfg := &Config{}
	_ = v.Unmarshal(cfg)
	cfg.Dir = configDir
	return cfg
}

func loadDotEnv(configDir string) {
	// godotenv never overrides variables already set in the environment.
	for _, path := range []string{".env", filepath.Join(configDir, ".env")} {
		if _, err := os.Stat(path); err == nil {
			_ = godotenv.Load(path)
		}
	}
}

func setDefaults(v *viper.Viper, configDir string) {
	bt := trading.DefaultBacktestParams()
	v.SetDefault("backtest.entry_threshold", bt.EntryThreshold)
	v.SetDefault("backtest.take_profit_percent", bt.TakeProfitPercent)
	v.SetDefault("backtest.stop_loss_percent", bt.StopLossPercent)
	v.SetDefault("backtest.max_holding_days", bt.MaxHoldingDays)
	v.SetDefault("backtest.use_weekly_filter", bt.UseWeeklyFilter)
	v.SetDefault("backtest.warmup_months", bt.WarmupMonths)

	osc := models.DefaultOscillatorParams()
	v.SetDefault("oscillator.r", osc.R)
	v.SetDefault("oscillator.s", osc.S)
	v.SetDefault("oscillator.u", osc.U)

	v.SetDefault("optimizer.workers", 0)
	v.SetDefault("optimizer.min_trades", optimizer.DefaultMinTrades)
	v.SetDefault("optimizer.max_combinations", optimizer.DefaultMaxCombinations)
	ranges := optimizer.DefaultRanges()
	for key, r := range map[string]optimizer.Range{
		"r":                   ranges.R,
		"s":                   ranges.S,
		"u":                   ranges.U,
		"entry_threshold":     ranges.EntryThreshold,
		"take_profit_percent": ranges.TakeProfitPercent,
		"stop_loss_percent":   ranges.StopLossPercent,
		"max_holding_days":    ranges.MaxHoldingDays,
	} {
		v.SetDefault("optimizer.ranges."+key+".min", r.Min)
		v.SetDefault("optimizer.ranges."+key+".max", r.Max)
		v.SetDefault("optimizer.ranges."+key+".step", r.Step)
	}

	v.SetDefault("ledger.storage", store.BackendSQLite)
	v.SetDefault("ledger.db_path", filepath.Join(configDir, "trader.db"))
	v.SetDefault("ledger.postgres_url", "")

	v.SetDefault("refresh.interval", "15m")
	v.SetDefault("refresh.price_feed_url", "")
	v.SetDefault("refresh.price_feed_key", "")
	v.SetDefault("refresh.timeout", "10s")
	v.SetDefault("refresh.max_attempts", 3)
	v.SetDefault("refresh.initial_delay", "500ms")
	v.SetDefault("refresh.max_delay", "10s")
	v.SetDefault("refresh.concurrency", 8)
	v.SetDefault("refresh.requests_per_second", 5.0)

	v.SetDefault("analytics.risk_free_rate", 2.0)

	v.SetDefault("notify.level", string(notify.LevelAll))
	v.SetDefault("notify.webhook_url", "")
	v.SetDefault("notify.bell", false)

	log := logging.DefaultLogConfig()
	v.SetDefault("logging.level", log.Level)
	v.SetDefault("logging.console", log.Console)
	v.SetDefault("logging.no_color", log.NoColor)
	v.SetDefault("logging.file", log.File)
	v.SetDefault("logging.file_path", filepath.Join(configDir, "logs", "trader.log"))
	v.SetDefault("logging.max_size", log.MaxSize)
	v.SetDefault("logging.max_backups", log.MaxBackups)
	v.SetDefault("logging.max_age", log.MaxAge)
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("TRADER_STORAGE"); v != "" {
		cfg.Ledger.Storage = v
	}
	if v := os.Getenv("TRADER_DB_PATH"); v != "" {
		cfg.Ledger.DBPath = v
	}
	if v := os.Getenv("TRADER_POSTGRES_URL"); v != "" {
		cfg.Ledger.PostgresURL = v
	}
	if v := os.Getenv("TRADER_PRICE_FEED_URL"); v != "" {
		cfg.Refresh.PriceFeedURL = v
	}
	if v := os.Getenv("TRADER_PRICE_FEED_KEY"); v != "" {
		cfg.Refresh.PriceFeedKey = v
	}
	if v := os.Getenv("TRADER_WEBHOOK_URL"); v != "" {
		cfg.Notify.WebhookURL = v
	}
	if v := os.Getenv("TRADER_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if err := c.BacktestParams().Validate(); err != nil {
		return invalid("backtest: %v", err)
	}
	if c.Oscillator.R < 1 || c.Oscillator.S < 1 || c.Oscillator.U < 1 {
		return invalid("oscillator periods must be at least 1")
	}
	if c.Optimizer.Workers < 0 {
		return invalid("optimizer.workers must not be negative")
	}
	if c.Optimizer.MinTrades < 1 {
		return invalid("optimizer.min_trades must be at least 1")
	}
	if _, err := c.Optimizer.Ranges.Size(); err != nil {
		return invalid("optimizer.ranges: %v", err)
	}

	switch c.Ledger.Storage {
	case store.BackendSQLite:
		if c.Ledger.DBPath == "" {
			return invalid("ledger.db_path is required for sqlite storage")
		}
	case store.BackendPostgres:
		if c.Ledger.PostgresURL == "" {
			return invalid("ledger.postgres_url is required for postgres storage")
		}
	case store.BackendMemory:
	default:
		return invalid("invalid ledger.storage: %s (must be sqlite, postgres or memory)", c.Ledger.Storage)
	}

	for name, value := range map[string]string{
		"refresh.interval":      c.Refresh.Interval,
		"refresh.timeout":       c.Refresh.Timeout,
		"refresh.initial_delay": c.Refresh.InitialDelay,
		"refresh.max_delay":     c.Refresh.MaxDelay,
	} {
		d, err := parseDuration(value)
		if err != nil {
			return invalid("%s: %v", name, err)
		}
		if d <= 0 {
			return invalid("%s must be positive", name)
		}
	}
	if c.Refresh.MaxAttempts < 1 {
		return invalid("refresh.max_attempts must be at least 1")
	}
	if c.Refresh.Concurrency < 1 {
		return invalid("refresh.concurrency must be at least 1")
	}
	if c.Refresh.RequestsPerSecond < 0 {
		return invalid("refresh.requests_per_second must not be negative")
	}

	if c.Analytics.RiskFreeRate < 0 || c.Analytics.RiskFreeRate > 100 {
		return invalid("analytics.risk_free_rate must be between 0 and 100")
	}

	if _, err := notify.ParseLevel(c.Notify.Level); err != nil {
		return invalid("notify.level: %v", err)
	}

	return nil
}

func invalid(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", apperrors.ErrConfigInvalid, fmt.Sprintf(format, args...))
}

func parseDuration(s string) (time.Duration, error) {
	return str2duration.ParseDuration(strings.TrimSpace(s))
}

// BacktestParams returns the configured strategy parameters.
func (c *Config) BacktestParams() trading.BacktestParams {
	return trading.BacktestParams{
		EntryThreshold:    c.Backtest.EntryThreshold,
		TakeProfitPercent: c.Backtest.TakeProfitPercent,
		StopLossPercent:   c.Backtest.StopLossPercent,
		MaxHoldingDays:    c.Backtest.MaxHoldingDays,
		UseWeeklyFilter:   c.Backtest.UseWeeklyFilter,
		WarmupMonths:      c.Backtest.WarmupMonths,
	}
}

// OscillatorParams returns the configured oscillator periods.
func (c *Config) OscillatorParams() models.OscillatorParams {
	return models.OscillatorParams{R: c.Oscillator.R, S: c.Oscillator.S, U: c.Oscillator.U}
}

// StoreOptions returns the persistence backend options.
func (c *Config) StoreOptions() store.Options {
	return store.Options{
		Backend:     c.Ledger.Storage,
		SQLitePath:  c.Ledger.DBPath,
		PostgresURL: c.Ledger.PostgresURL,
	}
}

// RefreshInterval returns the parsed refresh interval.
func (c *Config) RefreshInterval() time.Duration {
	d, _ := parseDuration(c.Refresh.Interval)
	return d
}

// PriceFeedConfig returns the HTTP price feed settings.
func (c *Config) PriceFeedConfig() pricefeed.HTTPConfig {
	cfg := pricefeed.DefaultHTTPConfig(c.Refresh.PriceFeedURL)
	cfg.APIKey = c.Refresh.PriceFeedKey
	cfg.RequestsPerSecond = c.Refresh.RequestsPerSecond
	if d, err := parseDuration(c.Refresh.Timeout); err == nil {
		cfg.Timeout = d
	}
	cfg.Retry = c.retryConfig()
	return cfg
}

func (c *Config) retryConfig() utils.RetryConfig {
	rc := utils.DefaultRetryConfig()
	rc.MaxAttempts = c.Refresh.MaxAttempts
	if d, err := parseDuration(c.Refresh.InitialDelay); err == nil {
		rc.InitialDelay = d
	}
	if d, err := parseDuration(c.Refresh.MaxDelay); err == nil {
		rc.MaxDelay = d
	}
	return rc
}

// NotifyOptions returns the alert settings. The level is assumed valid.
func (c *Config) NotifyOptions() notify.Options {
	level, _ := notify.ParseLevel(c.Notify.Level)
	return notify.Options{
		Level:      level,
		WebhookURL: c.Notify.WebhookURL,
		Bell:       c.Notify.Bell,
	}
}
