// Package config loads the screener configuration from
// ~/.config/tw-screener/config.toml and credentials.toml.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"
	"github.com/spf13/viper"

	"tw-screener/internal/analysis/rules"
	"tw-screener/internal/cache"
	apperrors "tw-screener/internal/errors"
	"tw-screener/internal/logging"
	"tw-screener/internal/sources"
	"tw-screener/internal/trading"
)

// AppName names the config directory.
const AppName = "tw-screener"

// Config holds all application configuration.
type Config struct {
	Screen        ScreenConfig       `mapstructure:"screen"`
	Filters       FilterConfig       `mapstructure:"filters"`
	Sources       SourcesConfig      `mapstructure:"sources"`
	Cache         CacheConfig        `mapstructure:"cache"`
	History       HistoryConfig      `mapstructure:"history"`
	Notifications NotificationConfig `mapstructure:"notifications"`
	Schedule      ScheduleConfig     `mapstructure:"schedule"`
	Metrics       MetricsConfig      `mapstructure:"metrics"`
	Logging       LoggingConfig      `mapstructure:"logging"`
	Backtest      BacktestConfig     `mapstructure:"backtest"`
	Credentials   Credentials        `mapstructure:"-" json:"-"` // Loaded separately

	dir string
}

// ScreenConfig holds the live scan rule parameters.
type ScreenConfig struct {
	Strategy         string  `mapstructure:"strategy" validate:"required"`
	BiasRange        float64 `mapstructure:"bias_range" validate:"gt=0,lte=100"`
	MinVolumeLots    int64   `mapstructure:"min_volume_lots" validate:"gte=0"`
	ChipThresholdPct float64 `mapstructure:"chip_threshold_pct" validate:"gte=0,lte=100"`
	VolumeSurge      bool    `mapstructure:"volume_surge"`
	RSIRising        bool    `mapstructure:"rsi_rising"`
	TrendHigh        bool    `mapstructure:"trend_high"`
	BullishCandle    bool    `mapstructure:"bullish_candle"`
	Period           string  `mapstructure:"period"`
	Concurrency      int     `mapstructure:"concurrency" validate:"gte=1,lte=32"`
}

// FilterConfig holds the post-match exclusions.
type FilterConfig struct {
	ExcludeMarginSurge bool    `mapstructure:"exclude_margin_surge"`
	MarginSurgeLots    float64 `mapstructure:"margin_surge_lots" validate:"gte=0"`
	MinRevenueYoY      float64 `mapstructure:"min_revenue_yoy" validate:"gte=-100"`
	ExcludeLoss        bool    `mapstructure:"exclude_loss"`
}

// SourcesConfig holds HTTP settings and endpoint overrides.
type SourcesConfig struct {
	TimeoutSeconds    int          `mapstructure:"timeout_seconds" validate:"gte=1,lte=120"`
	Retries           int          `mapstructure:"retries" validate:"gte=0,lte=10"`
	RequestsPerSecond float64      `mapstructure:"requests_per_second" validate:"gte=0"`
	UserAgent         string       `mapstructure:"user_agent"`
	TWSEBaseURL       string       `mapstructure:"twse_base_url" validate:"omitempty,url"`
	TPExBaseURL       string       `mapstructure:"tpex_base_url" validate:"omitempty,url"`
	MOPSBaseURL       string       `mapstructure:"mops_base_url" validate:"omitempty,url"`
	YahooBaseURL      string       `mapstructure:"yahoo_base_url" validate:"omitempty,url"`
	ISINBaseURL       string       `mapstructure:"isin_base_url" validate:"omitempty,url"`
	Feeds             []FeedConfig `mapstructure:"feeds" validate:"dive"`
}

// FeedConfig is one RSS feed.
type FeedConfig struct {
	Name string `mapstructure:"name" validate:"required"`
	URL  string `mapstructure:"url" validate:"required,url"`
}

// CacheConfig holds the snapshot cache settings.
type CacheConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	RedisAddr string `mapstructure:"redis_addr" validate:"omitempty,hostname_port"`
	RedisDB   int    `mapstructure:"redis_db" validate:"gte=0"`
	Prefix    string `mapstructure:"prefix"`
}

// HistoryConfig selects the history log backend.
type HistoryConfig struct {
	Backend string `mapstructure:"backend" validate:"omitempty,oneof=sqlite csv"`
	Path    string `mapstructure:"path"`
}

// NotificationConfig holds notification configuration.
type NotificationConfig struct {
	Enabled  bool           `mapstructure:"enabled"`
	Level    string         `mapstructure:"level" validate:"omitempty,oneof=all matches_only errors_only"`
	Line     LineConfig     `mapstructure:"line"`
	Telegram TelegramConfig `mapstructure:"telegram"`
	Webhook  WebhookConfig  `mapstructure:"webhook"`
}

// LineConfig holds LINE Notify configuration. The token lives in credentials.toml.
type LineConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Endpoint string `mapstructure:"endpoint" validate:"omitempty,url"`
	Token    string `mapstructure:"-" json:"-"`
}

// TelegramConfig holds Telegram notification configuration.
type TelegramConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	ChatID   string `mapstructure:"chat_id"`
	APIBase  string `mapstructure:"api_base" validate:"omitempty,url"`
	BotToken string `mapstructure:"-" json:"-"`
}

// WebhookConfig holds webhook notification configuration.
type WebhookConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	URL     string `mapstructure:"url" validate:"omitempty,url"`
}

// ScheduleConfig drives the daily scan.
type ScheduleConfig struct {
	Cron        string   `mapstructure:"cron"`
	Strategies  []string `mapstructure:"strategies"`
	Notify      bool     `mapstructure:"notify"`
	SaveHistory bool     `mapstructure:"save_history"`
}

// MetricsConfig holds the Prometheus listener address.
type MetricsConfig struct {
	Addr string `mapstructure:"addr"`
}

// LoggingConfig mirrors logging.LogConfig.
type LoggingConfig struct {
	Level      string `mapstructure:"level" validate:"omitempty,oneof=debug info warn error"`
	Console    bool   `mapstructure:"console"`
	File       bool   `mapstructure:"file"`
	Path       string `mapstructure:"path"`
	MaxSizeMB  int    `mapstructure:"max_size_mb" validate:"gte=0"`
	MaxBackups int    `mapstructure:"max_backups" validate:"gte=0"`
	MaxAgeDays int    `mapstructure:"max_age_days" validate:"gte=0"`
}

// BacktestConfig holds replay defaults.
type BacktestConfig struct {
	Period string `mapstructure:"period"`
	Mode   string `mapstructure:"mode" validate:"omitempty,oneof=full core"`
}

// Credentials holds secrets.
type Credentials struct {
	Line     LineCredentials     `mapstructure:"line"`
	Telegram TelegramCredentials `mapstructure:"telegram"`
	Redis    RedisCredentials    `mapstructure:"redis"`
}

// LineCredentials holds the LINE Notify token.
type LineCredentials struct {
	Token string `mapstructure:"token"`
}

// TelegramCredentials holds the bot token.
type TelegramCredentials struct {
	BotToken string `mapstructure:"bot_token"`
}

// RedisCredentials holds the Redis password.
type RedisCredentials struct {
	Password string `mapstructure:"password"`
}

// DefaultConfigDir returns the default configuration directory.
func DefaultConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".config", AppName)
	}
	return filepath.Join(home, ".config", AppName)
}

// Load loads configuration from the specified directory. If configDir is
// empty, uses the default config directory. Missing files are created from
// templates and then read. A .env file in the directory or the working
// directory is applied before the environment overrides.
func Load(configDir string) (*Config, error) {
	if configDir == "" {
		configDir = DefaultConfigDir()
	}

	cfg := &Config{dir: configDir}

	if err := loadFile(configDir, "config", configTemplate, 0644, setDefaults, cfg); err != nil {
		return nil, fmt.Errorf("loading config.toml: %w", err)
	}
	if err := loadFile(configDir, "credentials", credentialsTemplate, 0600, nil, &cfg.Credentials); err != nil {
		return nil, fmt.Errorf("loading credentials.toml: %w", err)
	}

	_ = godotenv.Load(filepath.Join(configDir, ".env"))
	_ = godotenv.Load()
	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// Default returns the built-in configuration without touching the filesystem.
func Default() *Config {
	v := viper.New()
	setDefaults(v)
	cfg := &Config{dir: DefaultConfigDir()}
	_ = v.Unmarshal(cfg)
	return cfg
}

func setDefaults(v *viper.Viper) {
	def := rules.DefaultParameters()
	v.SetDefault("screen.strategy", string(def.Strategy))
	v.SetDefault("screen.bias_range", def.BiasRange)
	v.SetDefault("screen.min_volume_lots", def.MinVolumeLots)
	v.SetDefault("screen.chip_threshold_pct", def.ChipThresholdPct)
	v.SetDefault("screen.period", "1y")
	v.SetDefault("screen.concurrency", 1)

	v.SetDefault("filters.margin_surge_lots", trading.DefaultMarginSurgeLots)
	v.SetDefault("filters.min_revenue_yoy", trading.DefaultMinRevenueYoY)
	v.SetDefault("filters.exclude_loss", true)

	v.SetDefault("sources.timeout_seconds", 10)
	v.SetDefault("sources.retries", 2)
	v.SetDefault("sources.requests_per_second", 3.0)

	v.SetDefault("cache.enabled", true)
	v.SetDefault("cache.prefix", AppName)

	v.SetDefault("history.backend", "sqlite")

	v.SetDefault("notifications.level", "all")

	v.SetDefault("schedule.cron", "30 18 * * 1-5")
	v.SetDefault("schedule.strategies", []string{string(rules.ChipConcentration)})
	v.SetDefault("schedule.notify", true)
	v.SetDefault("schedule.save_history", true)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.console", true)
	v.SetDefault("logging.file", true)
	v.SetDefault("logging.max_size_mb", 50)
	v.SetDefault("logging.max_backups", 7)
	v.SetDefault("logging.max_age_days", 30)

	v.SetDefault("backtest.period", "5y")
	v.SetDefault("backtest.mode", "core")
}

func loadFile(configDir, name, template string, perm os.FileMode, defaults func(*viper.Viper), target interface{}) error {
	v := viper.New()
	v.SetConfigName(name)
	v.SetConfigType("toml")
	v.AddConfigPath(configDir)
	if defaults != nil {
		defaults(v)
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return err
		}
		if err := writeTemplate(configDir, name+".toml", template, perm); err != nil {
			return err
		}
		if err := v.ReadInConfig(); err != nil {
			return err
		}
	}

	return v.Unmarshal(target)
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("SCREENER_LINE_TOKEN"); v != "" {
		cfg.Credentials.Line.Token = v
	}
	if v := os.Getenv("SCREENER_TELEGRAM_TOKEN"); v != "" {
		cfg.Credentials.Telegram.BotToken = v
	}
	if v := os.Getenv("SCREENER_TELEGRAM_CHAT"); v != "" {
		cfg.Notifications.Telegram.ChatID = v
	}
	if v := os.Getenv("SCREENER_REDIS_ADDR"); v != "" {
		cfg.Cache.RedisAddr = v
	}
	if v := os.Getenv("SCREENER_REDIS_PASSWORD"); v != "" {
		cfg.Credentials.Redis.Password = v
	}
	if v := os.Getenv("SCREENER_HISTORY_PATH"); v != "" {
		cfg.History.Path = v
	}

	cfg.Notifications.Line.Token = cfg.Credentials.Line.Token
	cfg.Notifications.Telegram.BotToken = cfg.Credentials.Telegram.BotToken
}

var validate = validator.New()

// Validate checks field ranges, the strategy names and the cron expression.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var errs validator.ValidationErrors
		if errors.As(err, &errs) {
			fields := make([]string, 0, len(errs))
			for _, fe := range errs {
				fields = append(fields, fmt.Sprintf("%s failed %s", fe.Namespace(), fe.Tag()))
			}
			return fmt.Errorf("%w: %s", apperrors.ErrConfigInvalid, strings.Join(fields, ", "))
		}
		return err
	}

	if _, err := rules.ParseStrategy(c.Screen.Strategy); err != nil {
		return apperrors.NewValidationError("screen.strategy", c.Screen.Strategy, err.Error())
	}
	for _, s := range c.Schedule.Strategies {
		if _, err := rules.ParseStrategy(s); err != nil {
			return apperrors.NewValidationError("schedule.strategies", s, err.Error())
		}
	}
	if c.Schedule.Cron != "" {
		if _, err := cron.ParseStandard(c.Schedule.Cron); err != nil {
			return apperrors.NewValidationError("schedule.cron", c.Schedule.Cron, err.Error())
		}
	}
	if c.Notifications.Webhook.Enabled && c.Notifications.Webhook.URL == "" {
		return apperrors.NewValidationError("notifications.webhook.url", "", "required when the webhook is enabled")
	}
	return nil
}

// Dir returns the directory the configuration was loaded from.
func (c *Config) Dir() string {
	return c.dir
}

// Parameters builds the rule parameters of the configured strategy.
func (c *Config) Parameters() (rules.Parameters, error) {
	return c.Screen.Parameters(c.Screen.Strategy)
}

// Parameters builds rule parameters for strategy with the configured thresholds.
func (s ScreenConfig) Parameters(strategy string) (rules.Parameters, error) {
	st, err := rules.ParseStrategy(strategy)
	if err != nil {
		return rules.Parameters{}, err
	}
	p := rules.DefaultParameters()
	p.Strategy = st
	p.BiasRange = s.BiasRange
	p.MinVolumeLots = s.MinVolumeLots
	p.ChipThresholdPct = s.ChipThresholdPct
	p.VolumeSurgeRequired = s.VolumeSurge
	p.RSIRisingRequired = s.RSIRising
	p.TrendHighRequired = s.TrendHigh
	p.BullishCandleRequired = s.BullishCandle
	return p, p.Validate()
}

// FilterSet builds the post-match filters.
func (f FilterConfig) FilterSet() trading.FilterSet {
	return trading.FilterSet{
		ExcludeMarginSurge: f.ExcludeMarginSurge,
		MarginSurgeLots:    f.MarginSurgeLots,
		MinRevenueYoY:      f.MinRevenueYoY,
		ExcludeLoss:        f.ExcludeLoss,
	}
}

// EvalMode returns the replay evaluation mode.
func (b BacktestConfig) EvalMode() (rules.Mode, error) {
	if b.Mode == "" {
		return rules.CoreOnlyMode, nil
	}
	return rules.ParseMode(b.Mode)
}

// SourcesConfig converts to the sources wiring. observer may be nil.
func (c *Config) SourcesConfig(observer sources.Observer) sources.Config {
	client := sources.DefaultClientConfig()
	client.Timeout = time.Duration(c.Sources.TimeoutSeconds) * time.Second
	client.Retries = c.Sources.Retries
	client.RequestsPerSecond = c.Sources.RequestsPerSecond
	if c.Sources.UserAgent != "" {
		client.UserAgent = c.Sources.UserAgent
	}

	var feeds []sources.Feed
	for _, f := range c.Sources.Feeds {
		feeds = append(feeds, sources.Feed{Name: f.Name, URL: f.URL})
	}

	return sources.Config{
		TWSEBaseURL:  c.Sources.TWSEBaseURL,
		TPExBaseURL:  c.Sources.TPExBaseURL,
		MOPSBaseURL:  c.Sources.MOPSBaseURL,
		YahooBaseURL: c.Sources.YahooBaseURL,
		ISINBaseURL:  c.Sources.ISINBaseURL,
		Feeds:        feeds,
		Client:       client,
		Observer:     observer,
	}
}

// CacheConfig converts to the cache wiring.
func (c *Config) CacheConfig() cache.Config {
	return cache.Config{
		Enabled:       c.Cache.Enabled,
		RedisAddr:     c.Cache.RedisAddr,
		RedisPassword: c.Credentials.Redis.Password,
		RedisDB:       c.Cache.RedisDB,
		Prefix:        c.Cache.Prefix,
	}
}

// HistoryPath returns the history file, defaulting to history.db (or
// history.csv) in the config directory.
func (c *Config) HistoryPath() string {
	if c.History.Path != "" {
		return c.History.Path
	}
	name := "history.db"
	if c.History.Backend == "csv" {
		name = "history.csv"
	}
	return filepath.Join(c.dir, name)
}

// LogConfig converts to the logging settings.
func (c *Config) LogConfig() logging.LogConfig {
	lc := logging.LogConfig{
		Level:      c.Logging.Level,
		Console:    c.Logging.Console,
		File:       c.Logging.File,
		FilePath:   c.Logging.Path,
		MaxSize:    c.Logging.MaxSizeMB,
		MaxBackups: c.Logging.MaxBackups,
		MaxAge:     c.Logging.MaxAgeDays,
	}
	if lc.FilePath == "" {
		lc.FilePath = logging.DefaultLogPath()
	}
	return lc
}
