// Package patterns provides candlestick shape predicates.
package patterns

import (
	"tw-screener/internal/models"
)

// Bullish shape reasons.
const (
	ReasonUpClose    = "close above open"
	ReasonDoji       = "doji"
	ReasonFlatBody   = "flat body"
	ReasonLongShadow = "long lower shadow"
)

// CandlestickDetector classifies single daily candles.
type CandlestickDetector struct {
	dojiThreshold        float64 // body / range below this is a doji
	flatBodyThreshold    float64 // body / open below this is a flat body
	lowerShadowThreshold float64 // lower shadow / range above this is a hammer-like rejection
}

// NewCandlestickDetector creates a detector with the screening thresholds.
func NewCandlestickDetector() *CandlestickDetector {
	return &CandlestickDetector{
		dojiThreshold:        0.1,
		flatBodyThreshold:    0.003,
		lowerShadowThreshold: 0.5,
	}
}

// Bullish reports whether the candle counts as bullish and which shape
// qualified it. All comparisons are strict.
func (d *CandlestickDetector) Bullish(open, high, low, close float64) (bool, string) {
	if close > open {
		return true, ReasonUpClose
	}

	body := close - open
	if body < 0 {
		body = -body
	}
	rng := high - low

	if rng > 0 && body/rng < d.dojiThreshold {
		return true, ReasonDoji
	}
	if open > 0 && body/open < d.flatBodyThreshold {
		return true, ReasonFlatBody
	}

	lowerShadow := open
	if close < open {
		lowerShadow = close
	}
	lowerShadow -= low
	if rng > 0 && lowerShadow/rng > d.lowerShadowThreshold {
		return true, ReasonLongShadow
	}

	return false, ""
}

var defaultDetector = NewCandlestickDetector()

// IsBullishCandle applies the default thresholds.
func IsBullishCandle(open, high, low, close float64) bool {
	ok, _ := defaultDetector.Bullish(open, high, low, close)
	return ok
}

// IsBullish applies the default thresholds to a candle.
func IsBullish(c models.Candle) bool {
	return IsBullishCandle(c.Open, c.High, c.Low, c.Close)
}
