// Package scheduler runs the daily scan on a cron schedule in Asia/Taipei.
package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"tw-screener/internal/analysis/rules"
	apperrors "tw-screener/internal/errors"
	"tw-screener/internal/logging"
	"tw-screener/internal/models"
	"tw-screener/internal/notify"
	"tw-screener/internal/screener"
	"tw-screener/internal/store"
	"tw-screener/pkg/utils"
)

// DefaultSpec runs after the evening margin report, Monday to Friday.
const DefaultSpec = "30 18 * * 1-5"

// Universe lists the instruments to scan. *sources.Market implements it.
type Universe interface {
	Instruments(ctx context.Context) ([]models.Instrument, error)
}

// Scanner runs one scan. *screener.Screener implements it.
type Scanner interface {
	Scan(ctx context.Context, instruments []models.Instrument, opts screener.Options) (*screener.Report, error)
}

// Config describes the scheduled job.
type Config struct {
	Spec        string
	Strategies  []rules.Strategy
	Options     screener.Options // Parameters.Strategy is replaced per run
	Notify      bool
	SaveHistory bool
	Retry       utils.RetryConfig
}

// Scheduler owns the cron runner and the job dependencies.
type Scheduler struct {
	cfg      Config
	universe Universe
	scanner  Scanner
	history  store.HistoryStore
	notifier notify.Notifier
	logger   zerolog.Logger

	cron    *cron.Cron
	entryID cron.EntryID
	mu      sync.Mutex
	runs    int
}

// New creates a scheduler. history and notifier may be nil.
func New(cfg Config, universe Universe, scanner Scanner, history store.HistoryStore, notifier notify.Notifier, logger zerolog.Logger) *Scheduler {
	if cfg.Spec == "" {
		cfg.Spec = DefaultSpec
	}
	if len(cfg.Strategies) == 0 {
		cfg.Strategies = []rules.Strategy{rules.ChipConcentration}
	}
	if cfg.Retry.MaxAttempts == 0 {
		cfg.Retry = utils.DefaultRetryConfig()
		cfg.Retry.RetryableErrors = []error{apperrors.ErrSourceUnavailable, apperrors.ErrRateLimited, apperrors.ErrTimeout}
	}
	if notifier == nil {
		notifier = notify.NewNoOpNotifier()
	}

	logger = logger.With().Str("component", "scheduler").Logger()
	return &Scheduler{
		cfg:      cfg,
		universe: universe,
		scanner:  scanner,
		history:  history,
		notifier: notifier,
		logger:   logger,
		cron: cron.New(
			cron.WithLocation(utils.TaipeiLocation),
			cron.WithChain(cron.Recover(cronLogger{logger}), cron.SkipIfStillRunning(cronLogger{logger})),
		),
	}
}

// Run registers the job and blocks until ctx is cancelled, then waits for a
// running job to finish.
func (s *Scheduler) Run(ctx context.Context) error {
	id, err := s.cron.AddFunc(s.cfg.Spec, func() {
		if _, err := s.RunOnce(ctx); err != nil && ctx.Err() == nil {
			s.logger.Error().Err(err).Msg("Scheduled scan failed")
		}
	})
	if err != nil {
		return fmt.Errorf("parsing schedule %q: %w", s.cfg.Spec, err)
	}
	s.mu.Lock()
	s.entryID = id
	s.mu.Unlock()

	s.cron.Start()
	s.logger.Info().Str("spec", s.cfg.Spec).Time("next", s.Next()).Msg("Scheduler started")

	<-ctx.Done()
	<-s.cron.Stop().Done()
	s.logger.Info().Int("runs", s.Runs()).Msg("Scheduler stopped")
	return nil
}

// Next returns the next activation, or the zero time before Run.
func (s *Scheduler) Next() time.Time {
	s.mu.Lock()
	id := s.entryID
	s.mu.Unlock()
	if id == 0 {
		return time.Time{}
	}
	return s.cron.Entry(id).Next
}

// Runs returns the number of completed RunOnce calls.
func (s *Scheduler) Runs() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.runs
}

// RunOnce scans the universe once per configured strategy, saves the matches
// and sends one summary per strategy. A failing strategy is reported and the
// remaining strategies still run.
func (s *Scheduler) RunOnce(ctx context.Context) ([]*screener.Report, error) {
	defer func() {
		s.mu.Lock()
		s.runs++
		s.mu.Unlock()
	}()

	instruments, err := utils.RetryWithResult(ctx, s.cfg.Retry, func() ([]models.Instrument, error) {
		return s.universe.Instruments(ctx)
	})
	if err != nil {
		err = apperrors.Wrap(err, "loading instrument universe")
		s.notifyError(ctx, err, "universe")
		return nil, err
	}

	var reports []*screener.Report
	var errs []error
	for _, strategy := range s.cfg.Strategies {
		report, err := s.runStrategy(ctx, strategy, instruments)
		if report != nil {
			reports = append(reports, report)
		}
		if err != nil {
			if ctx.Err() != nil {
				return reports, ctx.Err()
			}
			errs = append(errs, err)
		}
	}
	return reports, apperrors.Join(errs...)
}

func (s *Scheduler) runStrategy(ctx context.Context, strategy rules.Strategy, instruments []models.Instrument) (*screener.Report, error) {
	opts := s.cfg.Options
	opts.Parameters.Strategy = strategy
	logger := s.logger.With().Str("strategy", string(strategy)).Logger()

	report, err := s.scanner.Scan(logging.WithLogger(ctx, logger), instruments, opts)
	if err != nil {
		err = apperrors.Wrapf(err, "scan %s", strategy)
		s.notifyError(ctx, err, string(strategy))
		return report, err
	}

	if s.cfg.SaveHistory && s.history != nil && len(report.Results) > 0 {
		if err := s.history.Save(ctx, report.HistoryRecords()); err != nil {
			logger.Error().Err(err).Msg("Failed to save history")
		}
	}

	if s.cfg.Notify {
		if err := s.notifier.SendScanSummary(ctx, notify.SummaryFromReport(report)); err != nil {
			logger.Warn().Err(err).Msg("Failed to send scan summary")
		}
	}

	logger.Info().
		Str("run_id", report.RunID).
		Int("matches", len(report.Results)).
		Dur("duration", report.Duration).
		Msg("Scheduled scan complete")
	return report, nil
}

func (s *Scheduler) notifyError(ctx context.Context, err error, errContext string) {
	if !s.cfg.Notify || ctx.Err() != nil {
		return
	}
	if nerr := s.notifier.SendError(ctx, err, errContext); nerr != nil {
		s.logger.Warn().Err(nerr).Msg("Failed to send error notification")
	}
}

// cronLogger adapts zerolog to cron.Logger.
type cronLogger struct {
	logger zerolog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Debug().Fields(keysAndValues).Msg(msg)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Error().Err(err).Fields(keysAndValues).Msg(msg)
}
