package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"tw-screener/internal/trading"
)

func newBacktestCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "backtest <code>",
		Short: "Replay a strategy over one stock's history",
		Long: `Replay a strategy over the daily history of one stock and report the best
forward gain after every signal.

The default core mode checks the volume floor and the core strategy tests only,
using a price/volume proxy in place of institutional data.`,
		Example: `  screener backtest 2330
  screener backtest 6488 --strategy breakdown --period 3y
  screener backtest 2317 --compare`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			ctx := cmd.Context()
			cfg := app.Config

			strategy := cfg.Screen.Strategy
			if cmd.Flags().Changed("strategy") {
				strategy, _ = cmd.Flags().GetString("strategy")
			}
			params, err := cfg.Screen.Parameters(strategy)
			if err != nil {
				return err
			}

			bt := cfg.Backtest
			if cmd.Flags().Changed("period") {
				bt.Period, _ = cmd.Flags().GetString("period")
			}
			if cmd.Flags().Changed("mode") {
				bt.Mode, _ = cmd.Flags().GetString("mode")
			}
			mode, err := bt.EvalMode()
			if err != nil {
				return err
			}

			inst := app.lookup(ctx, args[0])
			symbol := inst.Symbol()

			if compare, _ := cmd.Flags().GetBool("compare"); compare {
				candles, err := app.Market.FetchCandles(ctx, symbol, bt.Period)
				if err != nil {
					return wrapRunErr("loading candles", err)
				}
				rows := trading.CompareStrategies(candles, symbol, params, mode)
				if output.IsJSON() {
					return output.JSON(rows)
				}
				renderComparison(output, inst.Name, symbol, rows)
				return nil
			}

			result, err := trading.NewBacktestEngine(app.Market).Run(ctx, trading.BacktestConfig{
				Symbol:     symbol,
				Period:     bt.Period,
				Parameters: params,
				Mode:       mode,
			})
			if err != nil {
				return wrapRunErr("backtest", err)
			}

			summary := trading.Summarize(result)
			if output.IsJSON() {
				return output.JSON(map[string]interface{}{
					"result":  result,
					"summary": summary,
				})
			}
			renderBacktest(output, inst.Name, result, summary)
			return nil
		},
	}

	cmd.Flags().String("strategy", "", "strategy: chip, pullback or breakdown")
	cmd.Flags().String("period", "", "history period such as 1y, 3y or 5y")
	cmd.Flags().String("mode", "", "evaluation mode: core or full")
	cmd.Flags().Bool("compare", false, "compare every strategy on the same history")

	return cmd
}

func renderBacktest(output *Output, name string, result *trading.BacktestResult, summary trading.BacktestSummary) {
	header := []string{
		fmt.Sprintf("Strategy: %s (%s mode)", result.Strategy.Label(), result.Mode),
		fmt.Sprintf("History:  %s → %s, %d candles", FormatDate(result.StartDate), FormatDate(result.EndDate), result.Candles),
	}
	if result.Insufficient {
		header = append(header, "Not enough history for the warm-up window")
	}
	output.Box(fmt.Sprintf("%s %s", result.Symbol, name), header)
	output.Println()

	if len(result.Signals) == 0 {
		output.Dim("No signals in this period")
		return
	}

	table := NewTable(output, "日期", "收盤", "乖離", "最大漲幅", "高點日", "天數")
	for _, sig := range trading.SortByGain(result.Signals) {
		high := "-"
		days := "-"
		if sig.HasFuture {
			high = FormatDate(sig.MaxHighDate)
			days = fmt.Sprintf("%d", sig.HoldingDays)
		}
		table.AddRow(
			FormatDate(sig.Date),
			FormatPrice(sig.Close),
			FormatPercent(sig.Bias),
			output.Move(sig.MaxGainPct, FormatPercent(sig.MaxGainPct)),
			high,
			days,
		)
	}
	table.Render()
	output.Println()

	output.Bold("Summary")
	output.Printf("  Signals:       %d\n", summary.Signals)
	output.Printf("  Avg max gain:  %s\n", output.Move(summary.AvgMaxGain, FormatPercent(summary.AvgMaxGain)))
	output.Printf("  Hit rate:      %.2f%% (gain ≥ %.0f%%)\n", summary.HitRate, trading.HitThresholdPct)
	output.Printf("  Best:          %s on %s\n", FormatPercent(summary.BestGain), FormatDate(summary.BestDate))
	output.Printf("  Avg hold:      %.1f days\n", summary.AvgHoldDays)
}

func renderComparison(output *Output, name, symbol string, rows []trading.StrategyComparison) {
	output.Bold("%s %s strategy comparison", symbol, name)
	table := NewTable(output, "策略", "訊號", "平均漲幅", "勝率", "最佳")
	for _, row := range rows {
		table.AddRow(
			row.Strategy.Label(),
			fmt.Sprintf("%d", row.Summary.Signals),
			output.Move(row.Summary.AvgMaxGain, FormatPercent(row.Summary.AvgMaxGain)),
			fmt.Sprintf("%.2f%%", row.Summary.HitRate),
			FormatPercent(row.Summary.BestGain),
		)
	}
	table.Render()
	if len(rows) > 0 && rows[0].Summary.Signals > 0 {
		output.Println()
		output.Success("Best fit: %s", rows[0].Strategy.Label())
	}
}
