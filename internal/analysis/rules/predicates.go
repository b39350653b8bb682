package rules

import (
	"math"

	"tw-screener/internal/analysis/indicators"
	"tw-screener/internal/analysis/patterns"
	"tw-screener/internal/models"
)

const (
	pullbackBand     = 1.03 // low within 3% above MA200
	trendHighPremium = 1.05 // recent high at least 5% above MA200
	chipProxySurge   = 1.5  // replay stand-in for chip data

	trendWindowStart = 64 // trend-high window covers [at-64, at-5]
	trendWindowEnd   = 5
)

// Bias returns (close - MA200) / MA200 in percent, and false when MA200 is undefined.
func Bias(c models.EnrichedCandle) (float64, bool) {
	if !indicators.Defined(c.MA200) || c.MA200 == 0 {
		return 0, false
	}
	return (c.Close - c.MA200) / c.MA200 * 100, true
}

// ChipConcentrationPct returns net buy shares as a percentage of volume. It
// is 0 whenever either side is not positive.
func ChipConcentrationPct(netBuy, volume int64) float64 {
	if netBuy <= 0 || volume <= 0 {
		return 0
	}
	return float64(netBuy) / float64(volume) * 100
}

// NetBuyLots converts net buy shares to whole lots, truncating toward zero.
func NetBuyLots(netBuy int64) int64 {
	return netBuy / 1000
}

// trendHighHolds checks that the highest close in the trend window exceeds
// MA200 by the premium. The check is skipped when the window is empty or
// MA200 is undefined.
func trendHighHolds(frame []models.EnrichedCandle, at int) bool {
	curr := frame[at]
	start := at - trendWindowStart
	if start < 0 {
		start = 0
	}
	end := at - trendWindowEnd + 1
	if end <= start || !indicators.Defined(curr.MA200) {
		return true
	}
	high := math.Inf(-1)
	for _, c := range frame[start:end] {
		if c.Close > high {
			high = c.Close
		}
	}
	return high > curr.MA200*trendHighPremium
}

// rsiRising requires a defined RSI above the prior value. An undefined prior
// value does not block.
func rsiRising(curr, prev models.EnrichedCandle) bool {
	if !indicators.Defined(curr.RSI) {
		return false
	}
	if !indicators.Defined(prev.RSI) {
		return true
	}
	return curr.RSI > prev.RSI
}

func volumeSurge(curr, prev models.EnrichedCandle) bool {
	return curr.Volume > prev.Volume
}

func bullishCandle(c models.EnrichedCandle) bool {
	return patterns.IsBullishCandle(c.Open, c.High, c.Low, c.Close)
}

// pullbackHolds checks the low-volume retest of MA200. With strictClose the
// close must be above MA200 rather than at or above it.
func pullbackHolds(c models.EnrichedCandle, strictClose bool) bool {
	if !indicators.Defined(c.MA200) || !indicators.Defined(c.VolMA5) {
		return false
	}
	if strictClose && c.Close <= c.MA200 {
		return false
	}
	if c.Close < c.MA200 {
		return false
	}
	if c.Low > c.MA200*pullbackBand {
		return false
	}
	return float64(c.Volume) < c.VolMA5
}

// brokeBelowMA200 reports whether any of the lookback candles before at had
// a low under its own MA200.
func brokeBelowMA200(frame []models.EnrichedCandle, at, lookback int) bool {
	start := at - lookback
	if start < 0 {
		start = 0
	}
	for _, c := range frame[start:at] {
		if indicators.Defined(c.MA200) && c.Low < c.MA200 {
			return true
		}
	}
	return false
}

func aboveMA(close, ma float64) bool {
	return indicators.Defined(ma) && close > ma
}

// chipProxy stands in for institutional data when replaying history: close
// above MA20 on a 1.5x volume expansion with an up candle.
func chipProxy(curr, prev models.EnrichedCandle) bool {
	return aboveMA(curr.Close, curr.MA20) &&
		float64(curr.Volume) > float64(prev.Volume)*chipProxySurge &&
		curr.Close > curr.Open
}
