package cli

import (
	"fmt"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"tw-screener/internal/models"
	"tw-screener/internal/sources"
	"tw-screener/internal/trading"
)

func addMarketCommands(rootCmd *cobra.Command, app *App) {
	rootCmd.AddCommand(newFundamentalsCmd(app))
	rootCmd.AddCommand(newChipsCmd(app))
	rootCmd.AddCommand(newRadarCmd(app))
	rootCmd.AddCommand(newSectorsCmd(app))
	rootCmd.AddCommand(newHeatmapCmd(app))
	rootCmd.AddCommand(newNewsCmd(app))
	rootCmd.AddCommand(newMarketCmd(app))
	rootCmd.AddCommand(newDiagnoseCmd(app))
}

func newFundamentalsCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:     "fundamentals <code>",
		Aliases: []string{"fund"},
		Short:   "Show EPS, P/E and ROE of a stock",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			inst := app.lookup(cmd.Context(), args[0])
			fund, err := app.Market.FetchFundamentals(cmd.Context(), inst.Symbol())
			if err != nil {
				return wrapRunErr("fundamentals", err)
			}
			if output.IsJSON() {
				return output.JSON(map[string]interface{}{
					"instrument":   inst,
					"fundamentals": fund,
				})
			}
			output.Box(fmt.Sprintf("%s %s", inst.Symbol(), inst.Name), []string{
				fmt.Sprintf("Sector: %s", inst.Sector),
				fmt.Sprintf("EPS:    %s", FormatOptional(fund.EPS)),
				fmt.Sprintf("P/E:    %s", FormatOptional(fund.PE)),
				fmt.Sprintf("ROE:    %s", FormatOptional(fund.ROE)),
			})
			if trading.LossMaker(fund) {
				output.Warning("Trailing EPS is negative")
			}
			return nil
		},
	}
}

func newChipsCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "chips",
		Short: "Rank today's institutional net buying",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			limit, _ := cmd.Flags().GetInt("limit")
			ranking, date, err := app.Market.InstitutionalRanking(cmd.Context(), limit)
			if err != nil {
				return wrapRunErr("institutional ranking", err)
			}
			if output.IsJSON() {
				return output.JSON(map[string]interface{}{"date": date, "ranking": ranking})
			}
			output.Bold("💰 三大法人買超排行 %s", FormatDate(date))
			renderRanking(output, ranking)
			return nil
		},
	}
	cmd.Flags().Int("limit", trading.DefaultRankingLimit, "ranking length")
	return cmd
}

func renderRanking(output *Output, ranking []models.RankedFlow) {
	table := NewTable(output, "代號", "名稱", "今日(張)", "昨日(張)", "狀態")
	for _, r := range ranking {
		status := r.Status
		switch r.Status {
		case trading.StatusSurgeBuy, trading.StatusWhaleEntry:
			status = output.Red(status)
		case trading.StatusConsecutiveBuy, trading.StatusStrongReversal:
			status = output.Yellow(status)
		}
		table.AddRow(
			r.Code,
			TruncateString(r.Name, 10),
			FormatLots(r.TodayShares/1000),
			FormatLots(r.PrevShares/1000),
			status,
		)
	}
	table.Render()
}

func newRadarCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "radar",
		Short: "Cross-check institutional buying with sector flows and headlines",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			ctx := cmd.Context()

			ranking, date, err := app.Market.InstitutionalRanking(ctx, trading.DefaultRankingLimit)
			if err != nil {
				return wrapRunErr("institutional ranking", err)
			}
			news, err := app.Market.Headlines(ctx)
			if err != nil {
				app.Logger.Warn().Err(err).Msg("Headlines unavailable")
			}
			var inflow []models.SectorFlow
			if flows, _, err := app.Market.SectorFlows(ctx); err == nil {
				inflow = trading.BuildSectorReport(flows, 3, 0).Inflow
			} else {
				app.Logger.Warn().Err(err).Msg("Sector flows unavailable")
			}
			hits := trading.Radar(ranking, news)

			if output.IsJSON() {
				return output.JSON(map[string]interface{}{
					"date":   date,
					"inflow": inflow,
					"hits":   hits,
				})
			}

			output.Bold("📡 主力雷達 %s", FormatDate(date))
			if len(inflow) > 0 {
				output.Println()
				output.Info("Sectors gaining turnover share")
				for _, f := range inflow {
					output.Printf("  %s %s\n", PadRight(f.Sector, 12), output.Move(f.FlowChange, FormatPercent(f.FlowChange)))
				}
			}
			output.Println()
			if len(hits) == 0 {
				output.Dim("No stocks with both buying pressure and news flow")
				return nil
			}
			table := NewTable(output, "代號", "名稱", "狀態", "強度", "新聞")
			for _, h := range hits {
				table.AddRow(h.Code, h.Name, h.Status, strings.Repeat("★", h.Strength), TruncateString(h.News, 40))
			}
			table.Render()
			return nil
		},
	}
}

func newSectorsCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "sectors",
		Short: "Show sector money flow versus the previous trading day",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			flows, date, err := app.Market.SectorFlows(cmd.Context())
			if err != nil {
				return wrapRunErr("sector flows", err)
			}
			report := trading.BuildSectorReport(flows, 5, 10)
			if output.IsJSON() {
				return output.JSON(map[string]interface{}{"date": date, "report": report})
			}

			output.Bold("🏭 資金流向 %s", FormatDate(date))
			section := func(title string, rows []models.SectorFlow) {
				output.Println()
				output.Info("%s", title)
				table := NewTable(output, "產業", "成交額(億)", "占比", "昨日占比", "變化")
				for _, f := range rows {
					table.AddRow(
						f.Sector,
						fmt.Sprintf("%.1f", f.Turnover/1e8),
						fmt.Sprintf("%.2f%%", f.Share),
						fmt.Sprintf("%.2f%%", f.PrevShare),
						output.Move(f.FlowChange, FormatPercent(f.FlowChange)),
					)
				}
				table.Render()
			}
			section("Inflow", report.Inflow)
			section("Outflow", report.Outflow)
			section("Main turnover", report.Main)
			return nil
		},
	}
}

func newHeatmapCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "heatmap",
		Short: "Show the most traded stocks grouped by sector",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			top, _ := cmd.Flags().GetInt("top")
			cells, date, err := app.Market.Heatmap(cmd.Context(), top)
			if err != nil {
				return wrapRunErr("heatmap", err)
			}
			if output.IsJSON() {
				return output.JSON(map[string]interface{}{"date": date, "cells": cells})
			}

			bySector := make(map[string][]models.HeatmapCell)
			turnover := make(map[string]float64)
			for _, c := range cells {
				bySector[c.Sector] = append(bySector[c.Sector], c)
				turnover[c.Sector] += c.Turnover
			}
			sectors := make([]string, 0, len(bySector))
			for s := range bySector {
				sectors = append(sectors, s)
			}
			sort.SliceStable(sectors, func(i, j int) bool { return turnover[sectors[i]] > turnover[sectors[j]] })

			per, _ := cmd.Flags().GetInt("per-sector")
			output.Bold("🗺  市場熱力圖 %s (%d stocks)", FormatDate(date), len(cells))
			for _, s := range sectors {
				output.Println()
				output.Printf("%s %s\n", output.BoldText(s), output.DimText(fmt.Sprintf("%.1f億", turnover[s]/1e8)))
				row := bySector[s]
				if per > 0 && len(row) > per {
					row = row[:per]
				}
				for _, c := range row {
					output.Printf("  %s %s %s\n", PadRight(c.Code, 6), PadRight(TruncateString(c.Name, 10), 10), output.Move(c.ChangePct, FormatPercent(c.ChangePct)))
				}
			}
			return nil
		},
	}
	cmd.Flags().Int("top", sources.HeatmapSize, "number of stocks by turnover")
	cmd.Flags().Int("per-sector", 5, "stocks shown per sector (0 for all)")
	return cmd
}

func newNewsCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "news",
		Short: "Show the latest market headlines",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			news, err := app.Market.Headlines(cmd.Context())
			if err != nil {
				return wrapRunErr("headlines", err)
			}
			limit, _ := cmd.Flags().GetInt("limit")
			if limit > 0 && len(news) > limit {
				news = news[:limit]
			}
			keywords := trading.HotKeywords(news, 5)
			if output.IsJSON() {
				return output.JSON(map[string]interface{}{"news": news, "keywords": keywords})
			}

			output.Bold("📰 市場新聞")
			for _, n := range news {
				output.Printf("  %s %s\n", output.DimText(FormatDateTime(n.Published)[5:16]), n.Title)
				output.Dim("    %s %s", n.Source, n.Link)
			}
			if len(keywords) > 0 {
				output.Println()
				output.Info("Hot topics")
				for _, k := range keywords {
					output.Printf("  #%s ×%d\n", k.Tag, k.Count)
				}
			}
			return nil
		},
	}
	cmd.Flags().Int("limit", 20, "max headlines")
	return cmd
}

func newMarketCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "market",
		Short: "Show the TAIEX and VIX temperature",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			quotes, err := app.Market.MarketTemperature(cmd.Context())
			if err != nil {
				return wrapRunErr("market temperature", err)
			}
			if output.IsJSON() {
				return output.JSON(quotes)
			}
			output.Bold("🌡  大盤溫度")
			for _, q := range quotes {
				name := q.Symbol
				switch q.Symbol {
				case sources.SymbolTAIEX:
					name = "加權指數"
				case sources.SymbolVIX:
					name = "VIX"
				}
				output.Printf("  %s %10.2f  %s\n", PadRight(name, 10), q.Last,
					output.Move(q.Change, FormatChange(q.Change, q.ChangePct)))
			}
			return nil
		},
	}
}

func newDiagnoseCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "diagnose",
		Short: "Check every data provider",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			probes := app.Market.Diagnose(cmd.Context())
			if output.IsJSON() {
				return output.JSON(probes)
			}
			failed := 0
			table := NewTable(output, "來源", "狀態", "延遲", "說明")
			for _, p := range probes {
				status := output.Green("✓ ok")
				if !p.OK {
					status = output.Red("✗ fail")
					failed++
				}
				table.AddRow(p.Source, status, FormatDuration(p.Latency), TruncateString(p.Detail, 50))
			}
			table.Render()
			if failed > 0 {
				return fmt.Errorf("%d of %d providers unavailable", failed, len(probes))
			}
			return nil
		},
	}
}
