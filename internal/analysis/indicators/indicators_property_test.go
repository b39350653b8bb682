package indicators

import (
	"math"
	"reflect"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"tw-screener/internal/models"
)

// candleGen generates candles with positive prices and a consistent OHLC range.
func candleGen() gopter.Gen {
	return gen.Struct(reflect.TypeOf(models.Candle{}), map[string]gopter.Gen{
		"Open":   gen.Float64Range(10.0, 1000.0),
		"High":   gen.Float64Range(10.0, 1000.0),
		"Low":    gen.Float64Range(10.0, 1000.0),
		"Close":  gen.Float64Range(10.0, 1000.0),
		"Volume": gen.Int64Range(1000, 50000000),
	}).Map(func(c models.Candle) models.Candle {
		return normalizeCandle(c)
	})
}

func normalizeCandle(c models.Candle) models.Candle {
	if c.Open <= 0 {
		c.Open = 10.0
	}
	if c.Close <= 0 {
		c.Close = 10.0
	}
	c.High = math.Max(c.High, math.Max(c.Open, c.Close))
	c.Low = math.Min(c.Low, math.Min(c.Open, c.Close))
	if c.Low <= 0 {
		c.Low = math.Min(c.Open, c.Close)
	}
	return c
}

// candleSliceGen generates a chronological slice of daily candles.
func candleSliceGen(minLen, maxLen int) gopter.Gen {
	return gen.SliceOfN(maxLen, candleGen()).Map(func(candles []models.Candle) []models.Candle {
		for len(candles) < minLen {
			if len(candles) == 0 {
				candles = append(candles, models.Candle{Open: 10, High: 11, Low: 9, Close: 10, Volume: 1000})
				continue
			}
			candles = append(candles, candles[len(candles)-1])
		}
		start := time.Date(2023, 1, 2, 0, 0, 0, 0, time.UTC)
		for i := range candles {
			candles[i] = normalizeCandle(candles[i])
			candles[i].Date = start.AddDate(0, 0, i)
		}
		return candles
	})
}

func risingCandles(n int) []models.Candle {
	candles := make([]models.Candle, n)
	start := time.Date(2023, 1, 2, 0, 0, 0, 0, time.UTC)
	for i := range candles {
		price := 50 + float64(i)
		candles[i] = models.Candle{
			Date: start.AddDate(0, 0, i), Open: price - 0.5, High: price + 0.5,
			Low: price - 1, Close: price, Volume: int64(1000 * (i + 1)),
		}
	}
	return candles
}

func sameValue(a, b float64) bool {
	if math.IsNaN(a) || math.IsNaN(b) {
		return math.IsNaN(a) && math.IsNaN(b)
	}
	return math.Float64bits(a) == math.Float64bits(b)
}

func TestProperty_RSIWithinBounds(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	parameters.Rng.Seed(time.Now().UnixNano())

	properties := gopter.NewProperties(parameters)

	properties.Property("defined RSI values are within [0, 100]", prop.ForAll(
		func(candles []models.Candle) bool {
			values, err := NewRSI(14).Calculate(candles)
			if err != nil {
				return false
			}
			for _, v := range values {
				if Defined(v) && (v < 0 || v > 100) {
					return false
				}
			}
			return true
		},
		candleSliceGen(20, 100),
	))

	properties.TestingRun(t)
}

func TestProperty_SMAIsAverageOfPrices(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	parameters.Rng.Seed(time.Now().UnixNano())

	properties := gopter.NewProperties(parameters)

	properties.Property("SMA is the mean of the trailing closes and NaN before the window fills", prop.ForAll(
		func(candles []models.Candle) bool {
			period := 10
			values, err := NewSMA(period).Calculate(candles)
			if err != nil || len(values) != len(candles) {
				return false
			}
			closes := closePrices(candles)
			for i := range values {
				if i < period-1 {
					if Defined(values[i]) {
						return false
					}
					continue
				}
				var total float64
				for _, c := range closes[i-period+1 : i+1] {
					total += c
				}
				if math.Abs(values[i]-total/float64(period)) > 1e-9 {
					return false
				}
			}
			return true
		},
		candleSliceGen(5, 50),
	))

	properties.TestingRun(t)
}

func TestProperty_EnrichIsDeterministic(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 50
	parameters.Rng.Seed(time.Now().UnixNano())

	properties := gopter.NewProperties(parameters)

	properties.Property("two enrichments of the same series are identical", prop.ForAll(
		func(candles []models.Candle) bool {
			a := Enrich(candles)
			b := Enrich(candles)
			if len(a) != len(candles) || len(b) != len(candles) {
				return false
			}
			for i := range a {
				if !sameValue(a[i].MA5, b[i].MA5) || !sameValue(a[i].MA20, b[i].MA20) ||
					!sameValue(a[i].MA60, b[i].MA60) || !sameValue(a[i].MA200, b[i].MA200) ||
					!sameValue(a[i].VolMA5, b[i].VolMA5) || !sameValue(a[i].VolMA60, b[i].VolMA60) ||
					!sameValue(a[i].RSI, b[i].RSI) {
					return false
				}
			}
			return true
		},
		candleSliceGen(1, 250),
	))

	properties.TestingRun(t)
}

func TestEnrichWarmupBoundaries(t *testing.T) {
	frame := Enrich(risingCandles(220))

	checks := []struct {
		name  string
		pick  func(models.EnrichedCandle) float64
		first int
	}{
		{"MA5", func(c models.EnrichedCandle) float64 { return c.MA5 }, 4},
		{"MA20", func(c models.EnrichedCandle) float64 { return c.MA20 }, 19},
		{"MA60", func(c models.EnrichedCandle) float64 { return c.MA60 }, 59},
		{"MA200", func(c models.EnrichedCandle) float64 { return c.MA200 }, 199},
		{"VolMA5", func(c models.EnrichedCandle) float64 { return c.VolMA5 }, 4},
		{"VolMA60", func(c models.EnrichedCandle) float64 { return c.VolMA60 }, 59},
		{"RSI", func(c models.EnrichedCandle) float64 { return c.RSI }, 13},
	}

	for _, tc := range checks {
		if got := FirstDefined(frame, tc.pick); got != tc.first {
			t.Errorf("%s first defined at %d, want %d", tc.name, got, tc.first)
		}
		for i := tc.first; i < len(frame); i++ {
			if !Defined(tc.pick(frame[i])) {
				t.Errorf("%s undefined at %d after warm-up", tc.name, i)
				break
			}
		}
	}
}

func TestEnrichShortSeries(t *testing.T) {
	frame := Enrich(risingCandles(3))
	if len(frame) != 3 {
		t.Fatalf("len = %d, want 3", len(frame))
	}
	for i, c := range frame {
		if Defined(c.MA5) || Defined(c.RSI) || Defined(c.MA200) {
			t.Errorf("candle %d should have no defined indicators", i)
		}
	}
	if got := Enrich(nil); len(got) != 0 {
		t.Errorf("Enrich(nil) returned %d candles", len(got))
	}
}

func TestRSIStrictlyRisingIs100(t *testing.T) {
	frame := Enrich(risingCandles(30))
	for i := 13; i < len(frame); i++ {
		if frame[i].RSI != 100 {
			t.Fatalf("RSI at %d = %v, want 100", i, frame[i].RSI)
		}
	}
}

func TestRSIFlatWindowIs100(t *testing.T) {
	candles := risingCandles(20)
	for i := range candles {
		candles[i].Close = 42
	}
	values, err := NewRSI(14).Calculate(candles)
	if err != nil {
		t.Fatalf("Calculate: %v", err)
	}
	if values[19] != 100 {
		t.Errorf("flat RSI = %v, want 100", values[19])
	}
}

func TestRSIMixedMoves(t *testing.T) {
	// Alternating +2 / -1 moves: over any 14 deltas the gain mean is twice the loss mean.
	candles := risingCandles(40)
	price := 100.0
	for i := range candles {
		if i > 0 {
			if i%2 == 1 {
				price += 2
			} else {
				price -= 1
			}
		}
		candles[i].Close = price
	}
	values, _ := NewRSI(14).Calculate(candles)
	for i := 14; i < len(values); i++ {
		if math.Abs(values[i]-100.0*2/3) > 1e-9 {
			t.Fatalf("RSI at %d = %v, want %.6f", i, values[i], 100.0*2/3)
		}
	}
}

func TestInvalidPeriod(t *testing.T) {
	if _, err := NewSMA(0).Calculate(risingCandles(5)); err != ErrInvalidPeriod {
		t.Errorf("expected ErrInvalidPeriod, got %v", err)
	}
	if _, err := StandardEngine().Calculate("MACD", risingCandles(5)); err == nil {
		t.Errorf("expected unknown indicator error")
	}
	if got := StandardEngine().MaxPeriod(); got != 200 {
		t.Errorf("MaxPeriod = %d, want 200", got)
	}
}
