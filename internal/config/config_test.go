package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"tw-screener/internal/analysis/rules"
	apperrors "tw-screener/internal/errors"
)

func TestLoadCreatesTemplates(t *testing.T) {
	dir := t.TempDir()

	cfg, err := Load(dir)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	for _, name := range []string{"config.toml", "credentials.toml"} {
		if _, err := os.Stat(filepath.Join(dir, name)); err != nil {
			t.Errorf("%s not created: %v", name, err)
		}
	}
	info, err := os.Stat(filepath.Join(dir, "credentials.toml"))
	if err == nil && info.Mode().Perm() != 0600 {
		t.Errorf("credentials mode = %v, want 0600", info.Mode().Perm())
	}

	if cfg.Screen.Strategy != "chip" || cfg.Screen.BiasRange != 5 || cfg.Screen.MinVolumeLots != 1000 {
		t.Errorf("unexpected screen defaults: %+v", cfg.Screen)
	}
	if !cfg.Filters.ExcludeLoss {
		t.Error("exclude_loss should default to true")
	}
	if cfg.Dir() != dir {
		t.Errorf("Dir = %q", cfg.Dir())
	}
	if got := cfg.HistoryPath(); got != filepath.Join(dir, "history.db") {
		t.Errorf("HistoryPath = %q", got)
	}
}

func TestLoadReadsExistingFile(t *testing.T) {
	dir := t.TempDir()
	content := `
[screen]
strategy = "pullback"
bias_range = 3.5
min_volume_lots = 500
chip_threshold_pct = 10.0
rsi_rising = true
concurrency = 4

[history]
backend = "csv"
`
	if err := os.WriteFile(filepath.Join(dir, "config.toml"), []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(dir)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	params, err := cfg.Parameters()
	if err != nil {
		t.Fatalf("Parameters: %v", err)
	}
	if params.Strategy != rules.VolumeLowPullback || params.BiasRange != 3.5 || params.MinVolumeLots != 500 {
		t.Errorf("unexpected parameters: %+v", params)
	}
	if !params.RSIRisingRequired || params.VolumeSurgeRequired {
		t.Errorf("unexpected optional filters: %+v", params)
	}
	// Unset keys fall back to defaults.
	if cfg.Sources.TimeoutSeconds != 10 || cfg.Backtest.Mode != "core" {
		t.Errorf("defaults not applied: %+v %+v", cfg.Sources, cfg.Backtest)
	}
	if got := cfg.HistoryPath(); got != filepath.Join(dir, "history.csv") {
		t.Errorf("HistoryPath = %q", got)
	}
}

func TestEnvOverrides(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("SCREENER_LINE_TOKEN", "line-secret")
	t.Setenv("SCREENER_TELEGRAM_TOKEN", "bot-secret")
	t.Setenv("SCREENER_TELEGRAM_CHAT", "12345")
	t.Setenv("SCREENER_REDIS_ADDR", "localhost:6380")
	t.Setenv("SCREENER_HISTORY_PATH", "/tmp/h.db")

	cfg, err := Load(dir)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Notifications.Line.Token != "line-secret" {
		t.Errorf("line token = %q", cfg.Notifications.Line.Token)
	}
	if cfg.Notifications.Telegram.BotToken != "bot-secret" || cfg.Notifications.Telegram.ChatID != "12345" {
		t.Errorf("telegram = %+v", cfg.Notifications.Telegram)
	}
	if cc := cfg.CacheConfig(); cc.RedisAddr != "localhost:6380" {
		t.Errorf("redis addr = %q", cc.RedisAddr)
	}
	if cfg.HistoryPath() != "/tmp/h.db" {
		t.Errorf("history path = %q", cfg.HistoryPath())
	}
}

func TestDotEnvFile(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("SCREENER_TELEGRAM_CHAT", "")
	os.Unsetenv("SCREENER_TELEGRAM_CHAT")
	if err := os.WriteFile(filepath.Join(dir, ".env"), []byte("SCREENER_TELEGRAM_CHAT=777\n"), 0600); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(dir)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Notifications.Telegram.ChatID != "777" {
		t.Errorf("chat id = %q, want 777", cfg.Notifications.Telegram.ChatID)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"unknown strategy", func(c *Config) { c.Screen.Strategy = "momentum" }},
		{"bias out of range", func(c *Config) { c.Screen.BiasRange = 0 }},
		{"bad cron", func(c *Config) { c.Schedule.Cron = "every day" }},
		{"bad schedule strategy", func(c *Config) { c.Schedule.Strategies = []string{"chip", "x"} }},
		{"bad level", func(c *Config) { c.Notifications.Level = "loud" }},
		{"webhook without url", func(c *Config) { c.Notifications.Webhook.Enabled = true }},
		{"zero concurrency", func(c *Config) { c.Screen.Concurrency = 0 }},
	}

	if err := Default().Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatal("expected validation error")
			}
			if !errors.Is(err, apperrors.ErrConfigInvalid) {
				t.Errorf("error %v does not match ErrConfigInvalid", err)
			}
		})
	}
}

func TestBuilders(t *testing.T) {
	cfg := Default()
	cfg.Filters.ExcludeMarginSurge = true
	cfg.Sources.Feeds = []FeedConfig{{Name: "cnyes", URL: "https://example.com/rss"}}

	fs := cfg.Filters.FilterSet()
	if !fs.ExcludeMarginSurge || fs.MarginSurgeLots != 500 || !fs.ExcludeLoss {
		t.Errorf("filter set = %+v", fs)
	}

	sc := cfg.SourcesConfig(nil)
	if sc.Client.Timeout.Seconds() != 10 || len(sc.Feeds) != 1 || sc.Feeds[0].Name != "cnyes" {
		t.Errorf("sources config = %+v", sc)
	}

	mode, err := cfg.Backtest.EvalMode()
	if err != nil || mode != rules.CoreOnlyMode {
		t.Errorf("EvalMode = %v, %v", mode, err)
	}

	if _, err := cfg.Screen.Parameters("breakdown"); err != nil {
		t.Errorf("Parameters(breakdown): %v", err)
	}
	if _, err := cfg.Screen.Parameters("nope"); !errors.Is(err, apperrors.ErrUnknownStrategy) {
		t.Errorf("Parameters(nope) = %v", err)
	}

	lc := cfg.LogConfig()
	if lc.FilePath == "" || lc.MaxSize != 50 {
		t.Errorf("log config = %+v", lc)
	}
}
