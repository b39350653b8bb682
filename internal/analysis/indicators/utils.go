package indicators

import (
	"errors"
	"math"

	"tw-screener/internal/models"
)

// ErrInvalidPeriod is returned when an indicator window is not positive.
var ErrInvalidPeriod = errors.New("invalid period")

// Defined reports whether an indicator value has a full window behind it.
func Defined(v float64) bool {
	return !math.IsNaN(v)
}

// undefinedSeries returns a series of n NaN values.
func undefinedSeries(n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = math.NaN()
	}
	return out
}

// windowMean averages values[end-period+1 : end+1]. Each call sums its own
// window so results do not depend on evaluation order.
func windowMean(values []float64, end, period int) float64 {
	var total float64
	for _, v := range values[end-period+1 : end+1] {
		total += v
	}
	return total / float64(period)
}

// closePrices extracts close prices from candles.
func closePrices(candles []models.Candle) []float64 {
	prices := make([]float64, len(candles))
	for i, c := range candles {
		prices[i] = c.Close
	}
	return prices
}

// volumes extracts volumes from candles as floats.
func volumes(candles []models.Candle) []float64 {
	vols := make([]float64, len(candles))
	for i, c := range candles {
		vols[i] = float64(c.Volume)
	}
	return vols
}

// rollingMean returns the simple moving average of values; positions before
// the first full window are NaN.
func rollingMean(values []float64, period int) []float64 {
	result := undefinedSeries(len(values))
	for i := period - 1; i < len(values); i++ {
		result[i] = windowMean(values, i, period)
	}
	return result
}
