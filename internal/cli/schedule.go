package cli

import (
	"os"
	"strings"

	"github.com/spf13/cobra"

	"tw-screener/internal/notify"
	"tw-screener/internal/scheduler"
	"tw-screener/internal/screener"
)

func addScheduleCommands(rootCmd *cobra.Command, app *App) {
	rootCmd.AddCommand(newScheduleCmd(app))
}

func newScheduleCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "schedule",
		Short: "Run the configured scans on a cron schedule",
		Long: `Run the strategies listed in [schedule] on the cron expression from
config.toml, evaluated in Asia/Taipei. Each run can save matches to the history
log and send a summary to the notification channels.`,
		Example: `  screener schedule
  screener schedule --once --strategies chip,breakdown
  screener schedule --metrics-addr :9108`,
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			ctx := cmd.Context()
			cfg := app.Config

			sched := cfg.Schedule
			if cmd.Flags().Changed("cron") {
				sched.Cron, _ = cmd.Flags().GetString("cron")
			}
			if cmd.Flags().Changed("strategies") {
				value, _ := cmd.Flags().GetString("strategies")
				sched.Strategies = []string{value}
			}
			parsed, err := parseStrategies(strings.Join(sched.Strategies, ","))
			if err != nil {
				return err
			}

			params, err := cfg.Parameters()
			if err != nil {
				return err
			}

			notifier := notify.New(&cfg.Notifications, app.Logger)
			if multi, ok := notifier.(*notify.MultiNotifier); ok && !output.IsJSON() {
				multi.AddChannel(notify.NewTerminalNotifier(os.Stdout))
			}

			history, err := app.OpenHistory()
			if err != nil {
				return err
			}
			defer history.Close()

			s := scheduler.New(scheduler.Config{
				Spec:       sched.Cron,
				Strategies: parsed,
				Options: screener.Options{
					Parameters:  params,
					Filters:     cfg.Filters.FilterSet(),
					Period:      cfg.Screen.Period,
					Concurrency: cfg.Screen.Concurrency,
				},
				Notify:      sched.Notify,
				SaveHistory: sched.SaveHistory,
			}, app.Market, screener.New(app.Market, app.Metrics, app.Logger), history, notifier, app.Logger)

			if once, _ := cmd.Flags().GetBool("once"); once {
				reports, err := s.RunOnce(ctx)
				if output.IsJSON() {
					if jerr := output.JSON(reports); jerr != nil {
						return jerr
					}
				} else {
					for _, r := range reports {
						output.Success("%s: %d matches in %s", r.Strategy.Label(), len(r.Results), FormatDuration(r.Duration))
					}
				}
				return err
			}

			addr := cfg.Metrics.Addr
			if cmd.Flags().Changed("metrics-addr") {
				addr, _ = cmd.Flags().GetString("metrics-addr")
			}
			if addr != "" {
				go func() {
					if err := app.Metrics.Serve(ctx, addr); err != nil {
						app.Logger.Error().Err(err).Str("addr", addr).Msg("Metrics server stopped")
					}
				}()
				app.Logger.Info().Str("addr", addr).Msg("Serving metrics")
			}

			output.Info("Scheduler started: %s (Asia/Taipei), press Ctrl+C to stop", sched.Cron)
			return s.Run(ctx)
		},
	}

	cmd.Flags().String("cron", "", "cron expression (minute hour dom month dow)")
	cmd.Flags().String("strategies", "", "comma separated strategies to run")
	cmd.Flags().Bool("once", false, "run every strategy once and exit")
	cmd.Flags().String("metrics-addr", "", "serve Prometheus metrics on this address")

	return cmd
}
