package cli

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"tw-screener/internal/analysis/rules"
	"tw-screener/internal/config"
	"tw-screener/internal/models"
	"tw-screener/internal/notify"
	"tw-screener/internal/screener"
	"tw-screener/pkg/utils"
)

func addScanCommands(rootCmd *cobra.Command, app *App) {
	rootCmd.AddCommand(newScanCmd(app))
	rootCmd.AddCommand(newBacktestCmd(app))
}

func newScanCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "scan",
		Short: "Run a strategy over every listed stock",
		Long: `Scan the TWSE and TPEx universe with one strategy.

Flags override the [screen] and [filters] sections of config.toml for this run.`,
		Example: `  screener scan --strategy chip
  screener scan --strategy pullback --min-volume 500 --save
  screener scan --codes 2330,2317,6488 --trace 2330`,
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			ctx := cmd.Context()
			cfg := app.Config

			screen := cfg.Screen
			filters := cfg.Filters
			applyScreenFlags(cmd, &screen, &filters)

			params, err := screen.Parameters(screen.Strategy)
			if err != nil {
				return err
			}

			instruments, err := app.Market.Instruments(ctx)
			if err != nil {
				return wrapRunErr("loading instrument list", err)
			}
			instruments = selectInstruments(app, cmd, instruments)
			if len(instruments) == 0 {
				return fmt.Errorf("no instruments to scan")
			}

			progress := NewOutput(cmd)
			progress.writer = os.Stderr
			trace, _ := cmd.Flags().GetString("trace")

			opts := screener.Options{
				Parameters:  params,
				Filters:     filters.FilterSet(),
				Period:      screen.Period,
				Concurrency: screen.Concurrency,
				TraceCode:   trace,
				Progress: func(p screener.Progress) {
					progress.Progress(p.Done, p.Total, fmt.Sprintf("%s ok:%d vol:%d hit:%d", p.Current, p.Downloaded, p.VolumeOK, p.Matched))
				},
			}

			if !output.IsJSON() {
				output.Info("Scanning %d stocks with %s", len(instruments), params.Strategy.Label())
			}

			report, err := screener.New(app.Market, app.Metrics, app.Logger).Scan(ctx, instruments, opts)
			if err != nil {
				return wrapRunErr("scan", err)
			}

			if save, _ := cmd.Flags().GetBool("save"); save && len(report.Results) > 0 {
				if err := saveReport(app, cmd, report); err != nil {
					output.Warning("History not saved: %v", err)
				} else if !output.IsJSON() {
					output.Success("Saved %d records to %s", len(report.Results), cfg.HistoryPath())
				}
			}

			if send, _ := cmd.Flags().GetBool("notify"); send {
				notifier := notify.New(&cfg.Notifications, app.Logger)
				if err := notifier.SendScanSummary(ctx, notify.SummaryFromReport(report)); err != nil {
					output.Warning("Notification failed: %v", err)
				}
			}

			if output.IsJSON() {
				return output.JSON(report)
			}
			top, _ := cmd.Flags().GetInt("top")
			renderReport(output, report, top)
			return nil
		},
	}

	cmd.Flags().String("strategy", "", "strategy: chip, pullback or breakdown")
	cmd.Flags().Float64("bias", 0, "max distance from MA200 in percent")
	cmd.Flags().Int64("min-volume", 0, "min volume in lots")
	cmd.Flags().Float64("chip-threshold", 0, "min institutional net buy as percent of volume")
	cmd.Flags().Bool("volume-surge", false, "require volume above the prior day")
	cmd.Flags().Bool("rsi-rising", false, "require RSI above the prior day")
	cmd.Flags().Bool("trend-high", false, "require a recent high above MA200 * 1.05")
	cmd.Flags().Bool("bullish", false, "require a bullish candle")
	cmd.Flags().Bool("exclude-margin", false, "drop stocks with a margin balance surge")
	cmd.Flags().Float64("margin-lots", 0, "margin surge threshold in lots")
	cmd.Flags().Float64("min-yoy", 0, "min monthly revenue YoY in percent")
	cmd.Flags().Bool("include-loss", false, "keep stocks with negative EPS")
	cmd.Flags().Int("concurrency", 0, "parallel downloads")
	cmd.Flags().String("codes", "", "comma separated stock codes to scan instead of the full list")
	cmd.Flags().Int("limit", 0, "scan only the first N stocks")
	cmd.Flags().String("trace", "", "log every decision for one stock code")
	cmd.Flags().Bool("save", false, "append matches to the history log")
	cmd.Flags().Bool("notify", false, "send the summary to the configured channels")
	cmd.Flags().Int("top", 0, "show only the first N rows")

	return cmd
}

// applyScreenFlags copies the flags the user set over the configured values.
func applyScreenFlags(cmd *cobra.Command, screen *config.ScreenConfig, filters *config.FilterConfig) {
	flags := cmd.Flags()
	if flags.Changed("strategy") {
		screen.Strategy, _ = flags.GetString("strategy")
	}
	if flags.Changed("bias") {
		screen.BiasRange, _ = flags.GetFloat64("bias")
	}
	if flags.Changed("min-volume") {
		screen.MinVolumeLots, _ = flags.GetInt64("min-volume")
	}
	if flags.Changed("chip-threshold") {
		screen.ChipThresholdPct, _ = flags.GetFloat64("chip-threshold")
	}
	if flags.Changed("volume-surge") {
		screen.VolumeSurge, _ = flags.GetBool("volume-surge")
	}
	if flags.Changed("rsi-rising") {
		screen.RSIRising, _ = flags.GetBool("rsi-rising")
	}
	if flags.Changed("trend-high") {
		screen.TrendHigh, _ = flags.GetBool("trend-high")
	}
	if flags.Changed("bullish") {
		screen.BullishCandle, _ = flags.GetBool("bullish")
	}
	if flags.Changed("concurrency") {
		screen.Concurrency, _ = flags.GetInt("concurrency")
	}
	if flags.Changed("exclude-margin") {
		filters.ExcludeMarginSurge, _ = flags.GetBool("exclude-margin")
	}
	if flags.Changed("margin-lots") {
		filters.MarginSurgeLots, _ = flags.GetFloat64("margin-lots")
	}
	if flags.Changed("min-yoy") {
		filters.MinRevenueYoY, _ = flags.GetFloat64("min-yoy")
	}
	if flags.Changed("include-loss") {
		include, _ := flags.GetBool("include-loss")
		filters.ExcludeLoss = !include
	}
}

func selectInstruments(app *App, cmd *cobra.Command, all []models.Instrument) []models.Instrument {
	codes, _ := cmd.Flags().GetString("codes")
	if codes != "" {
		resolver := app.resolver(cmd.Context())
		var out []models.Instrument
		for _, code := range strings.Split(codes, ",") {
			code = strings.TrimSpace(code)
			if code == "" {
				continue
			}
			inst, _ := resolver.Lookup(code)
			out = append(out, inst)
		}
		all = out
	}
	if limit, _ := cmd.Flags().GetInt("limit"); limit > 0 && limit < len(all) {
		all = all[:limit]
	}
	return all
}

func saveReport(app *App, cmd *cobra.Command, report *screener.Report) error {
	history, err := app.OpenHistory()
	if err != nil {
		return err
	}
	defer history.Close()
	return history.Save(cmd.Context(), report.HistoryRecords())
}

func renderReport(output *Output, report *screener.Report, top int) {
	summary := []string{
		fmt.Sprintf("Strategy:   %s", report.Strategy.Label()),
		fmt.Sprintf("Scanned:    %d (downloaded %d, volume ok %d)", report.Total, report.Downloaded, report.VolumeOK),
		fmt.Sprintf("Matches:    %d (filtered out %d)", len(report.Results), report.Rejected),
		fmt.Sprintf("Chip date:  %s", FormatDate(report.ChipDate)),
		fmt.Sprintf("Revenue:    %s", formatMonth(report.RevenueMonth)),
		fmt.Sprintf("Duration:   %s", FormatDuration(report.Duration)),
	}
	output.Box("🔥 選股戰報 "+utils.ISODate(report.StartedAt), summary)
	for _, w := range report.Warnings {
		output.Warning("⚠️  %s", w)
	}
	output.Println()

	if len(report.Results) == 0 {
		output.Dim("今日無目標")
		return
	}

	rows := report.SortedByRSI()
	if top > 0 && top < len(rows) {
		rows = rows[:top]
	}

	table := NewTable(output, "代號", "名稱", "產業", "收盤", "乖離", "量(張)", "RSI", "法人(張)", "YoY", "EPS", "備註")
	for _, r := range rows {
		table.AddRow(
			r.Code,
			TruncateString(r.Name, 10),
			TruncateString(r.Sector, 8),
			FormatPrice(r.Close),
			FormatPercent(r.Bias),
			FormatLots(r.VolumeLots),
			fmt.Sprintf("%.1f", r.RSI),
			FormatLots(r.NetBuyLots),
			output.Move(r.RevenueYoY, FormatPercent(r.RevenueYoY)),
			FormatOptional(r.EPS),
			TruncateString(r.Annotation, 30),
		)
	}
	table.Render()
}

func formatMonth(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Format("2006-01")
}

// parseStrategies reads a comma separated strategy list.
func parseStrategies(value string) ([]rules.Strategy, error) {
	var out []rules.Strategy
	for _, part := range strings.Split(value, ",") {
		if strings.TrimSpace(part) == "" {
			continue
		}
		s, err := rules.ParseStrategy(part)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, nil
}
