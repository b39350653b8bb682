// Package cli provides the command-line interface for the screener.
package cli

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"tw-screener/internal/cache"
	"tw-screener/internal/config"
	"tw-screener/internal/logging"
	"tw-screener/internal/metrics"
	"tw-screener/internal/models"
	"tw-screener/internal/security"
	"tw-screener/internal/sources"
	"tw-screener/internal/store"
)

// Version information
const (
	Version   = "0.3.0"
	BuildDate = "2024-05-10"
)

// skipLoad marks commands that run without loading the configuration.
const skipLoad = "skip-load"

// App holds the application dependencies.
type App struct {
	Config  *config.Config
	Logger  zerolog.Logger
	Metrics *metrics.Recorder
	Cache   cache.Store
	Market  *sources.Market
}

// NewRootCmd creates the root command for the CLI.
func NewRootCmd() *cobra.Command {
	app := &App{Logger: zerolog.Nop()}

	rootCmd := &cobra.Command{
		Use:   "screener",
		Short: "Taiwan equities screener",
		Long: `screener scans TWSE and TPEx stocks with three daily-candle strategies:

  chip       籌碼衝鋒  institutional net buying near MA200
  pullback   蜻蜓點水  low-volume pullback onto MA20/MA60
  breakdown  浴火重生  false break below MA200 and recovery

Data comes from TWSE, TPEx, MOPS and Yahoo Finance. Matches can be saved to a
history log, replayed with 'backtest' and evaluated with 'lab'.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Annotations[skipLoad] == "true" {
				return nil
			}
			return app.load(cmd)
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			return app.Close()
		},
	}

	rootCmd.PersistentFlags().String("config", "", "config directory (default: ~/.config/tw-screener)")
	rootCmd.PersistentFlags().Bool("json", false, "output in JSON format")
	rootCmd.PersistentFlags().Bool("debug", false, "enable debug logging")

	rootCmd.AddCommand(newVersionCmd())
	rootCmd.AddCommand(newConfigCmd(app))
	addScanCommands(rootCmd, app)
	addHistoryCommands(rootCmd, app)
	addMarketCommands(rootCmd, app)
	addScheduleCommands(rootCmd, app)

	return rootCmd
}

func (a *App) load(cmd *cobra.Command) error {
	dir, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(dir)
	if err != nil {
		return err
	}
	a.Config = cfg

	a.Logger = logging.NewLoggerWithConfig(cfg.LogConfig())
	if debug, _ := cmd.Flags().GetBool("debug"); debug {
		logging.SetDebugLevel()
		a.Logger = a.Logger.Level(zerolog.DebugLevel)
	}

	a.Metrics = metrics.New()

	a.Cache, err = cache.New(cfg.CacheConfig())
	if err != nil {
		a.Logger.Warn().Err(err).Msg("Shared cache unavailable, using memory only")
		a.Cache = cache.NewMemoryCache(10 * time.Minute)
	}

	a.Market = sources.NewMarket(cfg.SourcesConfig(a.Metrics.ObserveFetch), a.Cache, a.Logger)
	a.Logger.Debug().Str("config_dir", cfg.Dir()).Msg("Application initialized")
	return nil
}

// Close releases the cache connections.
func (a *App) Close() error {
	if a.Cache != nil {
		return a.Cache.Close()
	}
	return nil
}

// OpenHistory opens the configured history backend.
func (a *App) OpenHistory() (store.HistoryStore, error) {
	return store.Open(a.Config.History.Backend, a.Config.HistoryPath())
}

// resolver returns the instrument index, or an empty one when the ISIN
// listing cannot be loaded.
func (a *App) resolver(ctx context.Context) *sources.Resolver {
	r, err := a.Market.Resolver(ctx)
	if err != nil {
		a.Logger.Debug().Err(err).Msg("Instrument list unavailable")
		return sources.NewResolver(nil)
	}
	return r
}

// lookup resolves a code argument. "2330.TW" style tickers are accepted as is.
func (a *App) lookup(ctx context.Context, arg string) models.Instrument {
	arg = strings.ToUpper(strings.TrimSpace(arg))
	if strings.Contains(arg, ".") {
		code := models.CodeFromSymbol(arg)
		inst, _ := a.resolver(ctx).Lookup(code)
		if strings.HasSuffix(arg, ".TWO") {
			inst.Market = models.MarketTPEx
		} else {
			inst.Market = models.MarketTWSE
		}
		return inst
	}
	inst, _ := a.resolver(ctx).Lookup(arg)
	return inst
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:         "version",
		Short:       "Print version information",
		Annotations: map[string]string{skipLoad: "true"},
		Run: func(cmd *cobra.Command, args []string) {
			output := NewOutput(cmd)
			if output.IsJSON() {
				output.JSON(map[string]string{
					"version":    Version,
					"build_date": BuildDate,
				})
			} else {
				output.Printf("tw-screener v%s\n", Version)
				output.Dim("Build date: %s", BuildDate)
			}
		},
	}
}

func newConfigCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Configuration management",
		Long:  "View and validate application configuration.",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Show current configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			if output.IsJSON() {
				return output.JSON(app.Config)
			}
			showConfig(output, app.Config)
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:         "path",
		Short:       "Show configuration directory path",
		Annotations: map[string]string{skipLoad: "true"},
		Run: func(cmd *cobra.Command, args []string) {
			output := NewOutput(cmd)
			dir, _ := cmd.Flags().GetString("config")
			if dir == "" {
				dir = config.DefaultConfigDir()
			}
			if output.IsJSON() {
				output.JSON(map[string]string{"path": dir})
			} else {
				output.Println(dir)
			}
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:         "validate",
		Short:       "Validate configuration files",
		Annotations: map[string]string{skipLoad: "true"},
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			dir, _ := cmd.Flags().GetString("config")
			if _, err := config.Load(dir); err != nil {
				output.Error("Configuration validation failed: %v", err)
				return err
			}
			if output.IsJSON() {
				output.JSON(map[string]bool{"valid": true})
			} else {
				output.Success("✓ Configuration is valid")
			}
			return nil
		},
	})

	return cmd
}

func showConfig(output *Output, cfg *config.Config) {
	onOff := func(b bool) string {
		if b {
			return output.Green("on")
		}
		return output.DimText("off")
	}

	output.Bold("Screen")
	output.Printf("  Strategy:        %s\n", cfg.Screen.Strategy)
	output.Printf("  Bias range:      %.1f%%\n", cfg.Screen.BiasRange)
	output.Printf("  Min volume:      %s lots\n", FormatLots(cfg.Screen.MinVolumeLots))
	output.Printf("  Chip threshold:  %.1f%%\n", cfg.Screen.ChipThresholdPct)
	output.Printf("  Volume surge:    %s\n", onOff(cfg.Screen.VolumeSurge))
	output.Printf("  RSI rising:      %s\n", onOff(cfg.Screen.RSIRising))
	output.Printf("  Trend high:      %s\n", onOff(cfg.Screen.TrendHigh))
	output.Printf("  Bullish candle:  %s\n", onOff(cfg.Screen.BullishCandle))
	output.Printf("  Concurrency:     %d\n", cfg.Screen.Concurrency)
	output.Println()

	output.Bold("Filters")
	output.Printf("  Margin surge:    %s (> %.0f lots)\n", onOff(cfg.Filters.ExcludeMarginSurge), cfg.Filters.MarginSurgeLots)
	output.Printf("  Min revenue YoY: %.1f%%\n", cfg.Filters.MinRevenueYoY)
	output.Printf("  Exclude losses:  %s\n", onOff(cfg.Filters.ExcludeLoss))
	output.Println()

	output.Bold("Storage")
	output.Printf("  History:         %s (%s)\n", cfg.HistoryPath(), cfg.History.Backend)
	redis := cfg.Cache.RedisAddr
	if redis == "" {
		redis = "-"
	}
	output.Printf("  Cache:           %s, redis %s\n", onOff(cfg.Cache.Enabled), redis)
	output.Println()

	output.Bold("Notifications")
	output.Printf("  Enabled:         %s\n", onOff(cfg.Notifications.Enabled))
	output.Printf("  Level:           %s\n", cfg.Notifications.Level)
	output.Printf("  LINE:            %s %s\n", onOff(cfg.Notifications.Line.Enabled), output.DimText(security.MaskCredential(cfg.Notifications.Line.Token)))
	output.Printf("  Telegram:        %s %s\n", onOff(cfg.Notifications.Telegram.Enabled), output.DimText(security.MaskCredential(cfg.Notifications.Telegram.BotToken)))
	output.Printf("  Webhook:         %s\n", onOff(cfg.Notifications.Webhook.Enabled))
	output.Println()

	output.Bold("Schedule")
	output.Printf("  Cron:            %s (Asia/Taipei)\n", cfg.Schedule.Cron)
	output.Printf("  Strategies:      %s\n", strings.Join(cfg.Schedule.Strategies, ", "))
	if cfg.Metrics.Addr != "" {
		output.Printf("  Metrics:         %s\n", cfg.Metrics.Addr)
	}
}

// wrapRunErr annotates command failures with the failing step.
func wrapRunErr(step string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", step, err)
}
