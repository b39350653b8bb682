// Package indicators computes the moving averages and RSI attached to every
// daily candle before the screening rules run.
package indicators

import (
	"fmt"
	"math"
	"sync"

	"tw-screener/internal/models"
)

// Indicator defines the interface for single-value technical indicators.
type Indicator interface {
	Name() string
	Calculate(candles []models.Candle) ([]float64, error)
	Period() int
}

// Standard indicator names.
const (
	NameMA5     = "MA5"
	NameMA20    = "MA20"
	NameMA60    = "MA60"
	NameMA200   = "MA200"
	NameVolMA5  = "VolMA5"
	NameVolMA60 = "VolMA60"
	NameRSI     = "RSI14"
)

// Engine holds an ordered set of indicators and evaluates them over a candle series.
type Engine struct {
	mu         sync.RWMutex
	indicators []Indicator
	byName     map[string]Indicator
}

// NewEngine creates an engine with the given indicators.
func NewEngine(inds ...Indicator) *Engine {
	e := &Engine{byName: make(map[string]Indicator)}
	for _, ind := range inds {
		e.RegisterIndicator(ind)
	}
	return e
}

// StandardEngine returns the engine used by the screening rules.
func StandardEngine() *Engine {
	return NewEngine(
		NewSMA(5), NewSMA(20), NewSMA(60), NewSMA(200),
		NewVolumeSMA(5), NewVolumeSMA(60),
		NewRSI(14),
	)
}

// RegisterIndicator adds an indicator; a later registration with the same name replaces it.
func (e *Engine) RegisterIndicator(ind Indicator) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, exists := e.byName[ind.Name()]; !exists {
		e.indicators = append(e.indicators, ind)
	} else {
		for i, existing := range e.indicators {
			if existing.Name() == ind.Name() {
				e.indicators[i] = ind
			}
		}
	}
	e.byName[ind.Name()] = ind
}

// Names returns the registered indicator names in registration order.
func (e *Engine) Names() []string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	names := make([]string, len(e.indicators))
	for i, ind := range e.indicators {
		names[i] = ind.Name()
	}
	return names
}

// MaxPeriod returns the longest warm-up window of the registered indicators.
func (e *Engine) MaxPeriod() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	longest := 0
	for _, ind := range e.indicators {
		if ind.Period() > longest {
			longest = ind.Period()
		}
	}
	return longest
}

// CalculateAll evaluates every registered indicator.
func (e *Engine) CalculateAll(candles []models.Candle) (map[string][]float64, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	results := make(map[string][]float64, len(e.indicators))
	for _, ind := range e.indicators {
		values, err := ind.Calculate(candles)
		if err != nil {
			return nil, fmt.Errorf("calculating %s: %w", ind.Name(), err)
		}
		results[ind.Name()] = values
	}
	return results, nil
}

// Calculate evaluates a single indicator by name.
func (e *Engine) Calculate(name string, candles []models.Candle) ([]float64, error) {
	e.mu.RLock()
	ind, ok := e.byName[name]
	e.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("indicator %s not found", name)
	}
	return ind.Calculate(candles)
}

var standard = StandardEngine()

// Enrich attaches the standard indicators to every candle. It never fails:
// short series simply carry NaN for every indicator whose window is not full.
func Enrich(candles []models.Candle) []models.EnrichedCandle {
	cols, _ := standard.CalculateAll(candles)
	value := func(name string, i int) float64 {
		if series, ok := cols[name]; ok {
			return series[i]
		}
		return math.NaN()
	}

	out := make([]models.EnrichedCandle, len(candles))
	for i, c := range candles {
		out[i] = models.EnrichedCandle{
			Candle:  c,
			MA5:     value(NameMA5, i),
			MA20:    value(NameMA20, i),
			MA60:    value(NameMA60, i),
			MA200:   value(NameMA200, i),
			VolMA5:  value(NameVolMA5, i),
			VolMA60: value(NameVolMA60, i),
			RSI:     value(NameRSI, i),
		}
	}
	return out
}

// FirstDefined returns the first index at which pick yields a defined value,
// or -1 if it never does.
func FirstDefined(frame []models.EnrichedCandle, pick func(models.EnrichedCandle) float64) int {
	for i, c := range frame {
		if Defined(pick(c)) {
			return i
		}
	}
	return -1
}
