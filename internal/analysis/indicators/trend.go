package indicators

import (
	"fmt"

	"tw-screener/internal/models"
)

// SMA calculates the simple moving average of closing prices.
type SMA struct {
	period int
}

// NewSMA creates a new SMA indicator.
func NewSMA(period int) *SMA {
	return &SMA{period: period}
}

func (s *SMA) Name() string {
	return fmt.Sprintf("MA%d", s.period)
}

func (s *SMA) Period() int {
	return s.period
}

// Calculate returns one value per candle. Values before index period-1 are NaN.
func (s *SMA) Calculate(candles []models.Candle) ([]float64, error) {
	if s.period <= 0 {
		return nil, ErrInvalidPeriod
	}
	return rollingMean(closePrices(candles), s.period), nil
}

// VolumeSMA calculates the simple moving average of traded shares.
type VolumeSMA struct {
	period int
}

// NewVolumeSMA creates a new volume moving average.
func NewVolumeSMA(period int) *VolumeSMA {
	return &VolumeSMA{period: period}
}

func (v *VolumeSMA) Name() string {
	return fmt.Sprintf("VolMA%d", v.period)
}

func (v *VolumeSMA) Period() int {
	return v.period
}

func (v *VolumeSMA) Calculate(candles []models.Candle) ([]float64, error) {
	if v.period <= 0 {
		return nil, ErrInvalidPeriod
	}
	return rollingMean(volumes(candles), v.period), nil
}
