package indicators

import (
	"fmt"

	"tw-screener/internal/models"
)

// RSI calculates the Relative Strength Index from simple rolling means of
// gains and losses.
//
// The first delta of the series counts as zero, so with period 14 the first
// defined value sits at index 13. When the average loss over the window is
// zero the value is 100, including a completely flat window.
type RSI struct {
	period int
}

// NewRSI creates a new RSI indicator.
func NewRSI(period int) *RSI {
	return &RSI{period: period}
}

func (r *RSI) Name() string {
	return fmt.Sprintf("RSI%d", r.period)
}

func (r *RSI) Period() int {
	return r.period
}

func (r *RSI) Calculate(candles []models.Candle) ([]float64, error) {
	if r.period <= 0 {
		return nil, ErrInvalidPeriod
	}

	gains := make([]float64, len(candles))
	losses := make([]float64, len(candles))
	for i := 1; i < len(candles); i++ {
		delta := candles[i].Close - candles[i-1].Close
		if delta > 0 {
			gains[i] = delta
		} else if delta < 0 {
			losses[i] = -delta
		}
	}

	result := undefinedSeries(len(candles))
	for i := r.period - 1; i < len(candles); i++ {
		avgGain := windowMean(gains, i, r.period)
		avgLoss := windowMean(losses, i, r.period)
		if avgLoss == 0 {
			result[i] = 100
			continue
		}
		rs := avgGain / avgLoss
		result[i] = 100 - 100/(1+rs)
	}

	return result, nil
}
