package config

import (
	"fmt"
	"os"
	"path/filepath"
)

func writeTemplate(configDir, name, content string, perm os.FileMode) error {
	if err := os.MkdirAll(configDir, 0755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}
	path := filepath.Join(configDir, name)
	if err := os.WriteFile(path, []byte(content), perm); err != nil {
		return fmt.Errorf("writing template %s: %w", path, err)
	}
	return nil
}

const configTemplate = `# tw-screener configuration
# Credentials live in credentials.toml next to this file.

[screen]
# chip | pullback | breakdown
strategy = "chip"
# maximum distance from MA200, percent
bias_range = 5.0
# minimum daily volume, lots of 1000 shares
min_volume_lots = 1000
# net institutional buy as percent of volume
chip_threshold_pct = 10.0
volume_surge = false
rsi_rising = false
trend_high = false
bullish_candle = false
period = "1y"
# parallel downloads, 1 keeps the exchange sites happy
concurrency = 1

[filters]
exclude_margin_surge = false
margin_surge_lots = 500.0
min_revenue_yoy = -100.0
exclude_loss = true

[sources]
timeout_seconds = 10
retries = 2
requests_per_second = 3.0
# user_agent = ""
# twse_base_url = "https://www.twse.com.tw"
# tpex_base_url = "https://www.tpex.org.tw"
# mops_base_url = "https://mops.twse.com.tw"
# yahoo_base_url = "https://query1.finance.yahoo.com"
# isin_base_url = "https://isin.twse.com.tw"

# [[sources.feeds]]
# name = "cnyes"
# url = "https://news.cnyes.com/rss/cat/tw_stock"

[cache]
enabled = true
# redis_addr = "localhost:6379"
redis_db = 0
prefix = "tw-screener"

[history]
# sqlite | csv
backend = "sqlite"
# path = ""

[notifications]
enabled = false
# all | matches_only | errors_only
level = "all"

[notifications.line]
enabled = false

[notifications.telegram]
enabled = false
chat_id = ""

[notifications.webhook]
enabled = false
url = ""

[schedule]
# standard five-field cron, Asia/Taipei
cron = "30 18 * * 1-5"
strategies = ["chip"]
notify = true
save_history = true

[metrics]
# addr = ":9090"

[logging]
level = "info"
console = true
file = true
max_size_mb = 50
max_backups = 7
max_age_days = 30

[backtest]
period = "5y"
# full | core
mode = "core"
`

const credentialsTemplate = `# tw-screener credentials
# Environment variables SCREENER_LINE_TOKEN, SCREENER_TELEGRAM_TOKEN and
# SCREENER_REDIS_PASSWORD take precedence.

[line]
token = ""

[telegram]
bot_token = ""

[redis]
password = ""
`
