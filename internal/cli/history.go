package cli

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"tw-screener/internal/models"
	"tw-screener/internal/store"
	"tw-screener/internal/trading"
)

func addHistoryCommands(rootCmd *cobra.Command, app *App) {
	rootCmd.AddCommand(newHistoryCmd(app))
	rootCmd.AddCommand(newLabCmd(app))
}

func newHistoryCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "history",
		Aliases: []string{"hist"},
		Short:   "Screening history log",
		Long:    "List, export, import and clear saved screening results.",
	}

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List saved results grouped by date",
		Example: `  screener history list --strategy chip --from 2024-04-01
  screener history list --code 2330`,
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			records, err := loadHistory(app, cmd)
			if err != nil {
				return err
			}
			if output.IsJSON() {
				return output.JSON(records)
			}
			if len(records) == 0 {
				output.Dim("No history records")
				return nil
			}

			for _, group := range store.GroupByDate(records) {
				output.Bold("📅 %s (%d)", group.Date, len(group.Records))
				table := NewTable(output, "代號", "名稱", "策略", "進場價", "乖離", "RSI", "法人(張)", "YoY")
				for _, r := range group.Records {
					table.AddRow(
						r.Code,
						TruncateString(r.Name, 10),
						r.Strategy,
						FormatPrice(r.EntryPrice),
						FormatPercent(r.Bias),
						fmt.Sprintf("%.1f", r.RSI),
						FormatLots(r.NetBuyLots),
						FormatPercent(r.RevenueYoY),
					)
				}
				table.Render()
				output.Println()
			}

			if hits := store.MultiStrategyHits(records); len(hits) > 0 {
				output.Bold("⭐ Multiple strategies")
				for _, h := range hits {
					output.Printf("  %s  %s %s: %s\n", h.Date, h.Code, h.Name, strings.Join(h.Strategies, " + "))
				}
			}
			return nil
		},
	}
	addHistoryFilterFlags(listCmd)
	cmd.AddCommand(listCmd)

	clearCmd := &cobra.Command{
		Use:   "clear",
		Short: "Delete every saved result",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			if yes, _ := cmd.Flags().GetBool("yes"); !yes {
				return fmt.Errorf("refusing to clear history without --yes")
			}
			history, err := app.OpenHistory()
			if err != nil {
				return err
			}
			defer history.Close()
			if err := history.Clear(cmd.Context()); err != nil {
				return err
			}
			output.Success("History cleared")
			return nil
		},
	}
	clearCmd.Flags().Bool("yes", false, "confirm deletion")
	cmd.AddCommand(clearCmd)

	exportCmd := &cobra.Command{
		Use:   "export [file]",
		Short: "Export history as CSV (stdout when file is - or omitted)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			records, err := loadHistory(app, cmd)
			if err != nil {
				return err
			}
			var w io.Writer = cmd.OutOrStdout()
			if len(args) == 1 && args[0] != "-" {
				f, err := os.Create(args[0])
				if err != nil {
					return err
				}
				defer f.Close()
				w = f
			}
			if err := store.Export(w, records); err != nil {
				return err
			}
			if w != cmd.OutOrStdout() {
				NewOutput(cmd).Success("Exported %d records to %s", len(records), args[0])
			}
			return nil
		},
	}
	addHistoryFilterFlags(exportCmd)
	cmd.AddCommand(exportCmd)

	cmd.AddCommand(&cobra.Command{
		Use:   "import <file>",
		Short: "Import a CSV export into the history log",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			f, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer f.Close()

			history, err := app.OpenHistory()
			if err != nil {
				return err
			}
			defer history.Close()

			saved, skipped, err := store.ImportInto(cmd.Context(), history, f)
			if err != nil {
				return wrapRunErr("import", err)
			}
			if output.IsJSON() {
				return output.JSON(map[string]int{"saved": saved, "skipped": skipped})
			}
			output.Success("Imported %d records", saved)
			if skipped > 0 {
				output.Warning("Skipped %d rows with an unknown strategy or missing fields", skipped)
			}
			return nil
		},
	})

	return cmd
}

func addHistoryFilterFlags(cmd *cobra.Command) {
	cmd.Flags().String("strategy", "", "strategy key or label")
	cmd.Flags().String("code", "", "stock code")
	cmd.Flags().String("from", "", "first screen date (YYYY-MM-DD)")
	cmd.Flags().String("to", "", "last screen date (YYYY-MM-DD)")
	cmd.Flags().Int("limit", 0, "max records")
}

func historyFilter(cmd *cobra.Command) store.HistoryFilter {
	var f store.HistoryFilter
	f.Strategy, _ = cmd.Flags().GetString("strategy")
	f.Code, _ = cmd.Flags().GetString("code")
	f.From, _ = cmd.Flags().GetString("from")
	f.To, _ = cmd.Flags().GetString("to")
	f.Limit, _ = cmd.Flags().GetInt("limit")
	return f
}

func loadHistory(app *App, cmd *cobra.Command) ([]models.HistoryRecord, error) {
	history, err := app.OpenHistory()
	if err != nil {
		return nil, err
	}
	defer history.Close()
	return history.Load(cmd.Context(), historyFilter(cmd))
}

func newLabCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "lab",
		Short: "Evaluate saved results held until the latest close",
		Long: `Hold every saved result from its screen date to the latest close and
aggregate the returns per strategy.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			ctx := cmd.Context()

			records, err := loadHistory(app, cmd)
			if err != nil {
				return err
			}
			if len(records) == 0 {
				output.Dim("No history records to evaluate")
				return nil
			}

			resolver := app.resolver(ctx)
			progress := NewOutput(cmd)
			progress.writer = os.Stderr

			lab := trading.NewStrategyLab(app.Market, resolver.Symbol, app.Logger)
			trades, err := lab.Simulate(ctx, records, func(done, total int) {
				progress.Progress(done, total, "Evaluating")
			})
			if err != nil {
				return wrapRunErr("lab", err)
			}
			stats := trading.StrategyStats(trades)

			if output.IsJSON() {
				return output.JSON(map[string]interface{}{
					"trades": trades,
					"stats":  stats,
				})
			}

			table := NewTable(output, "策略", "筆數", "平均報酬", "勝率", "最大報酬")
			for _, s := range stats {
				table.AddRow(
					s.Strategy,
					fmt.Sprintf("%d", s.Trades),
					output.Move(s.AvgReturn, FormatPercent(s.AvgReturn)),
					fmt.Sprintf("%.1f%%", s.WinRate),
					FormatPercent(s.MaxReturn),
				)
			}
			table.Render()

			if detail, _ := cmd.Flags().GetBool("by-date"); detail {
				for _, s := range stats {
					output.Println()
					output.Bold("%s", s.Strategy)
					for _, d := range s.ByDate {
						output.Printf("  %s  %2d  %s\n", d.Date, d.Trades, output.Move(d.AvgReturn, FormatPercent(d.AvgReturn)))
					}
				}
			}
			return nil
		},
	}
	addHistoryFilterFlags(cmd)
	cmd.Flags().Bool("by-date", false, "show the average return of every screen date")
	return cmd
}
