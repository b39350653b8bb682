// Package screener runs one strategy over the whole market: it fetches the
// shared snapshots once, evaluates every instrument and applies the post
// filters to the matches.
package screener

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/sourcegraph/conc"

	"tw-screener/internal/analysis/indicators"
	"tw-screener/internal/analysis/rules"
	apperrors "tw-screener/internal/errors"
	"tw-screener/internal/logging"
	"tw-screener/internal/models"
	"tw-screener/internal/sources"
	"tw-screener/internal/trading"
	"tw-screener/pkg/utils"
)

// MinCandles is the shortest series worth evaluating; shorter downloads are
// treated like failed ones.
const MinCandles = 20

// DefaultPeriod is the candle history fetched per instrument.
const DefaultPeriod = "1y"

// Source is the data the scan needs. *sources.Market implements it.
type Source interface {
	trading.CandleSource
	FetchFundamentals(ctx context.Context, symbol string) (models.Fundamentals, error)
	FetchInstitutionalFlow(ctx context.Context) (sources.FlowSnapshot, error)
	FetchMarginChange(ctx context.Context) (sources.MarginSnapshot, error)
	FetchRevenue(ctx context.Context) (sources.RevenueSnapshot, error)
}

// Recorder receives scan events. *metrics.Recorder implements it.
type Recorder interface {
	InstrumentScanned(strategy, outcome string)
	Matched(strategy string)
	ScanFinished(strategy string, elapsed time.Duration, matches int)
}

// Instrument outcomes reported to the Recorder.
const (
	OutcomeMatched  = "matched"
	OutcomeRejected = "rejected"
	OutcomeNoMatch  = "no_match"
	OutcomeLowVol   = "low_volume"
	OutcomeSkipped  = "skipped"
)

// Options configures one scan.
type Options struct {
	Parameters  rules.Parameters
	Filters     trading.FilterSet
	Period      string
	Concurrency int

	// TraceCode logs every decision taken for one stock code.
	TraceCode string

	// Progress is called after each instrument with the running counters.
	Progress func(p Progress)
}

// Progress is a snapshot of the scan counters.
type Progress struct {
	Done       int
	Total      int
	Downloaded int
	VolumeOK   int
	Matched    int
	Current    string
}

// Report is the outcome of one scan. Results are in scan order.
type Report struct {
	RunID        string
	Strategy     rules.Strategy
	StartedAt    time.Time
	Duration     time.Duration
	Total        int
	Downloaded   int
	VolumeOK     int
	Rejected     int
	ChipDate     time.Time
	MarginDate   time.Time
	RevenueMonth time.Time
	Warnings     []string
	Results      []models.ScanResult
}

// Screener scans a list of instruments with one strategy.
type Screener struct {
	source   Source
	recorder Recorder
	logger   zerolog.Logger
	clock    utils.Clock
}

// New creates a screener. recorder may be nil.
func New(source Source, recorder Recorder, logger zerolog.Logger) *Screener {
	return &Screener{source: source, recorder: recorder, logger: logger, clock: utils.TaipeiNow}
}

// snapshots are the read-only auxiliary maps of one scan.
type snapshots struct {
	flow    sources.FlowSnapshot
	margin  sources.MarginSnapshot
	revenue sources.RevenueSnapshot
	errs    []error
}

// outcome is the result of one instrument, stored in its own slot.
type outcome struct {
	kind       string
	downloaded bool
	volumeOK   bool
	result     *models.ScanResult
}

// Scan evaluates every instrument and returns the matches that survive the
// filters. Cancelling ctx stops the scan between instruments and returns the
// partial report with ctx's error.
func (s *Screener) Scan(ctx context.Context, instruments []models.Instrument, opts Options) (*Report, error) {
	if err := opts.Parameters.Validate(); err != nil {
		return nil, err
	}
	if opts.Period == "" {
		opts.Period = DefaultPeriod
	}

	report := &Report{
		RunID:     uuid.NewString(),
		Strategy:  opts.Parameters.Strategy,
		StartedAt: s.clock(),
		Total:     len(instruments),
	}
	logger := logging.WithRunID(s.logger, report.RunID)
	logger.Info().Str("strategy", report.Strategy.String()).Int("instruments", len(instruments)).Msg("Scan started")

	snap := s.fetchSnapshots(ctx, opts, logger)
	report.ChipDate = snap.flow.Date
	report.MarginDate = snap.margin.Date
	report.RevenueMonth = snap.revenue.Month
	for _, err := range snap.errs {
		report.Warnings = append(report.Warnings, err.Error())
	}

	slots := make([]outcome, len(instruments))
	var progressMu sync.Mutex
	progress := Progress{Total: len(instruments)}
	finish := func(i int, o outcome) {
		slots[i] = o
		if s.recorder != nil {
			s.recorder.InstrumentScanned(report.Strategy.String(), o.kind)
		}
		if opts.Progress == nil {
			return
		}
		progressMu.Lock()
		defer progressMu.Unlock()
		progress.Done++
		progress.Current = instruments[i].Code
		if o.downloaded {
			progress.Downloaded++
		}
		if o.volumeOK {
			progress.VolumeOK++
		}
		if o.result != nil {
			progress.Matched++
		}
		opts.Progress(progress)
	}

	var scanErr error
	if opts.Concurrency <= 1 {
		for i, inst := range instruments {
			if err := ctx.Err(); err != nil {
				scanErr = err
				break
			}
			finish(i, s.scanInstrument(ctx, inst, opts, snap, logger))
		}
	} else {
		scanErr = s.scanConcurrent(ctx, instruments, opts, snap, logger, finish)
	}

	for _, o := range slots {
		if o.downloaded {
			report.Downloaded++
		}
		if o.volumeOK {
			report.VolumeOK++
		}
		if o.kind == OutcomeRejected {
			report.Rejected++
		}
		if o.result != nil {
			report.Results = append(report.Results, *o.result)
		}
	}
	report.Duration = s.clock().Sub(report.StartedAt)

	if s.recorder != nil {
		s.recorder.ScanFinished(report.Strategy.String(), report.Duration, len(report.Results))
	}
	logger.Info().
		Int("downloaded", report.Downloaded).
		Int("volume_ok", report.VolumeOK).
		Int("matches", len(report.Results)).
		Dur("duration", report.Duration).
		Msg("Scan finished")

	return report, scanErr
}

// scanConcurrent feeds indexes to a fixed pool of workers. Each worker writes
// only its own slot.
func (s *Screener) scanConcurrent(ctx context.Context, instruments []models.Instrument, opts Options, snap snapshots, logger zerolog.Logger, finish func(int, outcome)) error {
	workChan := make(chan int)
	var wg sync.WaitGroup

	for w := 0; w < opts.Concurrency; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range workChan {
				finish(i, s.scanInstrument(ctx, instruments[i], opts, snap, logger))
			}
		}()
	}

	var err error
feed:
	for i := range instruments {
		select {
		case <-ctx.Done():
			err = ctx.Err()
			break feed
		case workChan <- i:
		}
	}
	close(workChan)
	wg.Wait()
	return err
}

// fetchSnapshots loads the auxiliary maps in parallel. A failing snapshot is
// replaced by an empty map and reported as a warning. Margin data is only
// fetched when the margin filter is on.
func (s *Screener) fetchSnapshots(ctx context.Context, opts Options, logger zerolog.Logger) snapshots {
	var snap snapshots
	var mu sync.Mutex
	warn := func(name string, err error) {
		logger.Warn().Err(err).Str("snapshot", name).Msg("Snapshot unavailable, filters fall back to defaults")
		mu.Lock()
		snap.errs = append(snap.errs, apperrors.Wrap(err, name))
		mu.Unlock()
	}

	var wg conc.WaitGroup
	wg.Go(func() {
		flow, err := s.source.FetchInstitutionalFlow(ctx)
		if err != nil {
			warn("institutional flow", err)
		}
		snap.flow = flow
	})
	wg.Go(func() {
		rev, err := s.source.FetchRevenue(ctx)
		if err != nil {
			warn("revenue", err)
		}
		snap.revenue = rev
	})
	if opts.Filters.ExcludeMarginSurge {
		wg.Go(func() {
			margin, err := s.source.FetchMarginChange(ctx)
			if err != nil {
				warn("margin", err)
			}
			snap.margin = margin
		})
	}
	wg.Wait()
	return snap
}

// scanInstrument runs the per-stock pipeline: download, volume floor,
// indicators, rules, then the filters, fetching fundamentals only for
// candidates that survived the cheaper checks.
func (s *Screener) scanInstrument(ctx context.Context, inst models.Instrument, opts Options, snap snapshots, logger zerolog.Logger) outcome {
	params := opts.Parameters
	strategy := params.Strategy.String()
	trace := opts.TraceCode != "" && opts.TraceCode == inst.Code
	log := logging.WithSymbol(logger, inst.Symbol())
	note := func(msg string) {
		if trace {
			log.Info().Msg(msg)
		}
	}

	candles, err := s.source.FetchCandles(ctx, inst.Symbol(), opts.Period)
	if err != nil {
		log.Debug().Err(err).Msg("Download failed")
		note("download failed: " + err.Error())
		return outcome{kind: OutcomeSkipped}
	}
	if len(candles) < MinCandles {
		note("too few candles")
		return outcome{kind: OutcomeSkipped}
	}

	last := candles[len(candles)-1]
	if float64(last.Volume)/1000 < float64(params.MinVolumeLots) {
		note("below volume floor")
		return outcome{kind: OutcomeLowVol, downloaded: true}
	}

	frame := indicators.Enrich(candles)
	match := rules.Evaluate(frame, params, rules.Auxiliary{Code: inst.Code, Flow: snap.flow.Flow})
	if !match.Matched() {
		note("rules: no match")
		return outcome{kind: OutcomeNoMatch, downloaded: true, volumeOK: true}
	}
	note("rules: " + match.Annotation())

	in := trading.FilterInput{Code: inst.Code, Margin: snap.margin.Change, Revenue: snap.revenue.Revenue}
	if d := opts.Filters.PreCheck(in); !d.Keep {
		note("filtered: " + d.Reason)
		return outcome{kind: OutcomeRejected, downloaded: true, volumeOK: true}
	}

	fund, err := s.source.FetchFundamentals(ctx, inst.Symbol())
	if err != nil {
		log.Debug().Err(err).Msg("Fundamentals unavailable")
		fund = models.Fundamentals{}
	}
	in.Fundamentals = fund
	decision := opts.Filters.Apply(in)
	if !decision.Keep {
		note("filtered: " + decision.Reason)
		return outcome{kind: OutcomeRejected, downloaded: true, volumeOK: true}
	}

	result := BuildResult(inst, frame[len(frame)-1], params.Strategy, match, snap.flow.Flow, decision.Revenue, fund)
	logging.LogScanMatch(log, inst.Code, strategy, result.Close, result.Bias, result.Annotation)
	if s.recorder != nil {
		s.recorder.Matched(strategy)
	}
	return outcome{kind: OutcomeMatched, downloaded: true, volumeOK: true, result: &result}
}

// BuildResult assembles the display row of a match. Bias is reported as 0
// for the pullback strategy and whenever MA200 is undefined.
func BuildResult(inst models.Instrument, curr models.EnrichedCandle, strategy rules.Strategy, match rules.MatchResult,
	flow models.InstitutionalFlow, revenue models.RevenueGrowth, fund models.Fundamentals) models.ScanResult {
	bias := 0.0
	if strategy != rules.VolumeLowPullback {
		if b, ok := rules.Bias(curr); ok {
			bias = b
		}
	}
	var netBuy int64
	if flow != nil {
		netBuy = flow[inst.Code]
	}
	rsi := 0.0
	if indicators.Defined(curr.RSI) {
		rsi = utils.Round2(curr.RSI)
	}
	return models.ScanResult{
		Code:       inst.Code,
		Name:       inst.Name,
		Sector:     inst.Sector,
		Close:      utils.Round2(curr.Close),
		Bias:       utils.Round2(bias),
		VolumeLots: curr.Volume / 1000,
		RSI:        rsi,
		NetBuyLots: rules.NetBuyLots(netBuy),
		RevenueYoY: revenue.YoY,
		RevenueMoM: revenue.MoM,
		EPS:        fund.EPS,
		PE:         fund.PE,
		DataDate:   curr.Date,
		Strategy:   strategy.Label(),
		Annotation: match.Annotation(),
	}
}
