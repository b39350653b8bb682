// Package trading replays the screening rules over history and applies the
// post-match filters used by the live scan.
package trading

import (
	"context"
	"time"

	"tw-screener/internal/analysis/rules"
	"tw-screener/internal/models"
)

// CandleSource loads daily candles for a Yahoo Finance symbol over a period
// such as "1y" or "5y".
type CandleSource interface {
	FetchCandles(ctx context.Context, symbol, period string) ([]models.Candle, error)
}

// BacktestEngine replays a strategy over one stock's history.
type BacktestEngine interface {
	Run(ctx context.Context, config BacktestConfig) (*BacktestResult, error)
}

// BacktestConfig represents one single-stock replay.
type BacktestConfig struct {
	Symbol     string
	Period     string // defaults to 5y
	Parameters rules.Parameters
	Mode       rules.Mode
}

// BacktestResult lists every signal found, in chronological order.
type BacktestResult struct {
	Symbol       string
	Strategy     rules.Strategy
	Mode         rules.Mode
	Candles      int
	StartIndex   int
	StartDate    time.Time
	EndDate      time.Time
	Insufficient bool
	Signals      []models.SignalRecord
}

// Signal is the outcome of DetectSignal. Bias and Offset are nil when no signal fired.
type Signal struct {
	IsSignal bool
	Bias     *float64
	Offset   *int
}

// ForwardPerformance describes the best exit after a signal.
type ForwardPerformance struct {
	MaxGainPct  float64
	MaxHighDate time.Time
	HoldingDays int
	HasFuture   bool
}
