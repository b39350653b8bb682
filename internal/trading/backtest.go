package trading

import (
	"context"
	"fmt"
	"sort"
	"time"

	"tw-screener/internal/analysis/indicators"
	"tw-screener/internal/analysis/rules"
	"tw-screener/internal/models"
	"tw-screener/pkg/utils"
)

const (
	// MinBacktestCandles is the history length Run must exceed to replay.
	MinBacktestCandles = 100
	// DefaultBacktestPeriod is the history requested from the candle source.
	DefaultBacktestPeriod = "5y"
	// HitThresholdPct is the forward gain that counts as a hit in summaries.
	HitThresholdPct = 10.0
)

// DefaultBacktestEngine implements the BacktestEngine interface.
type DefaultBacktestEngine struct {
	source CandleSource
}

// NewBacktestEngine creates a new backtest engine.
func NewBacktestEngine(source CandleSource) *DefaultBacktestEngine {
	return &DefaultBacktestEngine{source: source}
}

// Run fetches the configured history and replays the strategy from its warm-up point.
func (be *DefaultBacktestEngine) Run(ctx context.Context, config BacktestConfig) (*BacktestResult, error) {
	if err := be.validateConfig(config); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	period := config.Period
	if period == "" {
		period = DefaultBacktestPeriod
	}

	candles, err := be.source.FetchCandles(ctx, config.Symbol, period)
	if err != nil {
		return nil, fmt.Errorf("fetching candles: %w", err)
	}

	return Replay(candles, config.Symbol, config.Parameters, config.Mode), nil
}

func (be *DefaultBacktestEngine) validateConfig(config BacktestConfig) error {
	if config.Symbol == "" {
		return fmt.Errorf("symbol is required")
	}
	return config.Parameters.Validate()
}

// Replay runs the driver over an already loaded series.
func Replay(candles []models.Candle, symbol string, params rules.Parameters, mode rules.Mode) *BacktestResult {
	result := &BacktestResult{
		Symbol:   symbol,
		Strategy: params.Strategy,
		Mode:     mode,
		Candles:  len(candles),
		Signals:  make([]models.SignalRecord, 0),
	}
	if len(candles) > 0 {
		result.StartDate = candles[0].Date
		result.EndDate = candles[len(candles)-1].Date
	}
	if len(candles) <= MinBacktestCandles {
		result.Insufficient = true
		return result
	}

	frame := indicators.Enrich(candles)
	start := StartIndex(frame, params.Strategy)
	result.StartIndex = start
	if start < 0 {
		result.Insufficient = true
		return result
	}

	for i := start; i < len(frame); i++ {
		sig := DetectSignalAt(frame, i, params, mode)
		if !sig.IsSignal {
			continue
		}
		fwd := CalculateForwardPerformance(frame, *sig.Offset)
		result.Signals = append(result.Signals, models.SignalRecord{
			Date:        frame[i].Date,
			Close:       utils.Round2(frame[i].Close),
			Bias:        *sig.Bias,
			MaxGainPct:  fwd.MaxGainPct,
			MaxHighDate: fwd.MaxHighDate,
			HoldingDays: fwd.HoldingDays,
			HasFuture:   fwd.HasFuture,
		})
	}

	return result
}

// StartIndex returns the first replay index: the first defined MA200 for
// strategies that need it, index 60 for the pullback strategy, and never
// below 60. It is -1 when MA200 never becomes defined.
func StartIndex(frame []models.EnrichedCandle, strategy rules.Strategy) int {
	if strategy == rules.VolumeLowPullback {
		return rules.MinHistory
	}
	first := indicators.FirstDefined(frame, func(c models.EnrichedCandle) float64 { return c.MA200 })
	if first < 0 {
		return -1
	}
	if first < rules.MinHistory {
		return rules.MinHistory
	}
	return first
}

// DetectSignal evaluates the strategy at the candle nearest to target.
func DetectSignal(frame []models.EnrichedCandle, target time.Time, params rules.Parameters, mode rules.Mode) Signal {
	idx := NearestIndex(frame, target)
	if idx < 0 {
		return Signal{}
	}
	return DetectSignalAt(frame, idx, params, mode)
}

// DetectSignalAt evaluates the strategy at a known index.
func DetectSignalAt(frame []models.EnrichedCandle, idx int, params rules.Parameters, mode rules.Mode) Signal {
	if idx < rules.MinHistory || idx >= len(frame) {
		return Signal{}
	}
	res := rules.EvaluateAt(frame, idx, params, rules.Auxiliary{}, mode)
	if !res.Matched() {
		return Signal{}
	}

	bias := 0.0
	if params.Strategy != rules.VolumeLowPullback {
		if b, ok := rules.Bias(frame[idx]); ok {
			bias = utils.Round2(b)
		}
	}
	offset := idx
	return Signal{IsSignal: true, Bias: &bias, Offset: &offset}
}

// NearestIndex returns the index whose date is closest to target; on a tie
// the earlier candle wins. It returns -1 for an empty frame.
func NearestIndex(frame []models.EnrichedCandle, target time.Time) int {
	if len(frame) == 0 {
		return -1
	}
	pos := sort.Search(len(frame), func(i int) bool {
		return !frame[i].Date.Before(target)
	})
	switch {
	case pos == 0:
		return 0
	case pos == len(frame):
		return len(frame) - 1
	}
	before := target.Sub(frame[pos-1].Date)
	after := frame[pos].Date.Sub(target)
	if after < before {
		return pos
	}
	return pos - 1
}

// CalculateForwardPerformance finds the highest high after offset. The first
// occurrence wins when the maximum repeats.
func CalculateForwardPerformance(frame []models.EnrichedCandle, offset int) ForwardPerformance {
	if offset < 0 || offset >= len(frame)-1 {
		return ForwardPerformance{}
	}

	signal := frame[offset]
	best := offset + 1
	for i := offset + 2; i < len(frame); i++ {
		if frame[i].High > frame[best].High {
			best = i
		}
	}

	gain := 0.0
	if signal.Close > 0 {
		gain = (frame[best].High - signal.Close) / signal.Close * 100
	}

	return ForwardPerformance{
		MaxGainPct:  utils.Round2(gain),
		MaxHighDate: frame[best].Date,
		HoldingDays: calendarDays(signal.Date, frame[best].Date),
		HasFuture:   true,
	}
}

func calendarDays(from, to time.Time) int {
	a := time.Date(from.Year(), from.Month(), from.Day(), 0, 0, 0, 0, time.UTC)
	b := time.Date(to.Year(), to.Month(), to.Day(), 0, 0, 0, 0, time.UTC)
	return int(b.Sub(a).Hours() / 24)
}

// SortByGain orders signals by forward gain, best first. Ties keep chronological order.
func SortByGain(signals []models.SignalRecord) []models.SignalRecord {
	sorted := make([]models.SignalRecord, len(signals))
	copy(sorted, signals)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].MaxGainPct > sorted[j].MaxGainPct
	})
	return sorted
}

// BacktestSummary aggregates a replay.
type BacktestSummary struct {
	Signals     int
	AvgMaxGain  float64
	HitRate     float64 // percent of signals reaching HitThresholdPct
	BestGain    float64
	BestDate    time.Time
	AvgHoldDays float64
}

// Summarize aggregates the signals of a replay.
func Summarize(result *BacktestResult) BacktestSummary {
	var s BacktestSummary
	if result == nil || len(result.Signals) == 0 {
		return s
	}
	var totalGain, totalDays float64
	hits := 0
	for i, sig := range result.Signals {
		totalGain += sig.MaxGainPct
		totalDays += float64(sig.HoldingDays)
		if sig.MaxGainPct >= HitThresholdPct {
			hits++
		}
		if i == 0 || sig.MaxGainPct > s.BestGain {
			s.BestGain = sig.MaxGainPct
			s.BestDate = sig.Date
		}
	}
	n := float64(len(result.Signals))
	s.Signals = len(result.Signals)
	s.AvgMaxGain = utils.Round2(totalGain / n)
	s.HitRate = utils.Round2(float64(hits) / n * 100)
	s.AvgHoldDays = utils.Round2(totalDays / n)
	return s
}

// StrategyComparison is one row of CompareStrategies.
type StrategyComparison struct {
	Strategy rules.Strategy
	Summary  BacktestSummary
}

// CompareStrategies replays every strategy over the same candles and orders
// them by average forward gain.
func CompareStrategies(candles []models.Candle, symbol string, base rules.Parameters, mode rules.Mode) []StrategyComparison {
	comparisons := make([]StrategyComparison, 0, len(rules.Strategies()))
	for _, s := range rules.Strategies() {
		p := base
		p.Strategy = s
		comparisons = append(comparisons, StrategyComparison{
			Strategy: s,
			Summary:  Summarize(Replay(candles, symbol, p, mode)),
		})
	}
	sort.SliceStable(comparisons, func(i, j int) bool {
		return comparisons[i].Summary.AvgMaxGain > comparisons[j].Summary.AvgMaxGain
	})
	return comparisons
}
