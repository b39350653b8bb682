package trading

import (
	"context"
	"errors"
	"testing"
	"time"

	"tw-screener/internal/analysis/indicators"
	"tw-screener/internal/analysis/rules"
	"tw-screener/internal/models"
)

var day0 = time.Date(2023, 1, 2, 0, 0, 0, 0, time.UTC)

func flatCandles(n int) []models.Candle {
	candles := make([]models.Candle, n)
	for i := range candles {
		candles[i] = models.Candle{
			Date: day0.AddDate(0, 0, i), Open: 99.5, High: 100.5, Low: 99, Close: 100, Volume: 1_000_000,
		}
	}
	return candles
}

// spikeSeries has one volume expansion at index 210 and a later high of 112.
func spikeSeries() []models.Candle {
	candles := flatCandles(220)
	candles[210] = models.Candle{Date: candles[210].Date, Open: 100, High: 102.5, Low: 99.8, Close: 102, Volume: 2_000_000}
	candles[215].High = 112
	return candles
}

type stubSource struct {
	candles []models.Candle
	err     error
	symbol  string
	period  string
}

func (s *stubSource) FetchCandles(_ context.Context, symbol, period string) ([]models.Candle, error) {
	s.symbol, s.period = symbol, period
	return s.candles, s.err
}

func pullbackParams() rules.Parameters {
	p := rules.DefaultParameters()
	p.Strategy = rules.VolumeLowPullback
	return p
}

func chipParams() rules.Parameters {
	p := rules.DefaultParameters()
	p.Strategy = rules.ChipConcentration
	return p
}

func TestForwardPerformance(t *testing.T) {
	candles := flatCandles(5)
	candles[1].Close = 100
	candles[3].High = 130
	frame := indicators.Enrich(candles)

	fwd := CalculateForwardPerformance(frame, 1)
	if !fwd.HasFuture {
		t.Fatal("expected future candles")
	}
	if fwd.MaxGainPct != 30.0 {
		t.Errorf("MaxGainPct = %v, want 30", fwd.MaxGainPct)
	}
	if !fwd.MaxHighDate.Equal(candles[3].Date) {
		t.Errorf("MaxHighDate = %v, want %v", fwd.MaxHighDate, candles[3].Date)
	}
	if fwd.HoldingDays != 2 {
		t.Errorf("HoldingDays = %d, want 2", fwd.HoldingDays)
	}
}

func TestForwardPerformanceFirstMaximumWins(t *testing.T) {
	candles := flatCandles(6)
	candles[2].High = 120
	candles[4].High = 120
	fwd := CalculateForwardPerformance(indicators.Enrich(candles), 0)
	if !fwd.MaxHighDate.Equal(candles[2].Date) {
		t.Errorf("MaxHighDate = %v, want first occurrence %v", fwd.MaxHighDate, candles[2].Date)
	}
}

func TestForwardPerformanceWithoutFuture(t *testing.T) {
	frame := indicators.Enrich(flatCandles(5))
	fwd := CalculateForwardPerformance(frame, 4)
	if fwd.HasFuture || fwd.MaxGainPct != 0 || fwd.HoldingDays != 0 || !fwd.MaxHighDate.IsZero() {
		t.Errorf("last candle should yield the empty record, got %+v", fwd)
	}
	if fwd := CalculateForwardPerformance(frame, -1); fwd.HasFuture {
		t.Errorf("negative offset should yield the empty record")
	}
}

func TestNearestIndex(t *testing.T) {
	frame := indicators.Enrich([]models.Candle{
		{Date: day0},
		{Date: day0.AddDate(0, 0, 2)},
		{Date: day0.AddDate(0, 0, 5)},
	})

	tests := []struct {
		name   string
		target time.Time
		want   int
	}{
		{"exact", day0.AddDate(0, 0, 2), 1},
		{"before first", day0.AddDate(0, 0, -3), 0},
		{"after last", day0.AddDate(0, 0, 9), 2},
		{"tie picks earlier", day0.AddDate(0, 0, 1), 0},
		{"closer to later", day0.AddDate(0, 0, 4), 2},
	}
	for _, tc := range tests {
		if got := NearestIndex(frame, tc.target); got != tc.want {
			t.Errorf("%s: NearestIndex = %d, want %d", tc.name, got, tc.want)
		}
	}
	if got := NearestIndex(nil, day0); got != -1 {
		t.Errorf("empty frame = %d, want -1", got)
	}
}

func TestDetectSignal(t *testing.T) {
	candles := spikeSeries()
	frame := indicators.Enrich(candles)
	p := chipParams()

	sig := DetectSignal(frame, candles[210].Date, p, rules.CoreOnlyMode)
	if !sig.IsSignal || sig.Offset == nil || *sig.Offset != 210 {
		t.Fatalf("expected signal at 210, got %+v", sig)
	}
	if *sig.Bias != 1.99 {
		t.Errorf("bias = %v, want 1.99", *sig.Bias)
	}

	if sig := DetectSignal(frame, candles[209].Date, p, rules.CoreOnlyMode); sig.IsSignal || sig.Bias != nil || sig.Offset != nil {
		t.Errorf("flat day should not signal, got %+v", sig)
	}

	if sig := DetectSignalAt(frame, 59, p, rules.CoreOnlyMode); sig.IsSignal {
		t.Errorf("offset under 60 must not signal")
	}
}

func TestDetectSignalPullbackBiasIsZero(t *testing.T) {
	candles := flatCandles(220)
	candles[219] = models.Candle{Date: candles[219].Date, Open: 100.5, High: 101, Low: 100.2, Close: 100.8, Volume: 500_000}
	frame := indicators.Enrich(candles)
	p := rules.DefaultParameters()
	p.Strategy = rules.VolumeLowPullback
	p.MinVolumeLots = 100

	sig := DetectSignalAt(frame, 219, p, rules.CoreOnlyMode)
	if !sig.IsSignal {
		t.Fatalf("expected pullback signal")
	}
	if *sig.Bias != 0 {
		t.Errorf("pullback bias = %v, want 0", *sig.Bias)
	}
}

func TestReplay(t *testing.T) {
	result := Replay(spikeSeries(), "2330.TW", chipParams(), rules.CoreOnlyMode)
	if result.Insufficient {
		t.Fatal("220 candles should be enough")
	}
	if result.StartIndex != 199 {
		t.Errorf("StartIndex = %d, want 199", result.StartIndex)
	}
	if len(result.Signals) != 1 {
		t.Fatalf("signals = %d, want 1", len(result.Signals))
	}
	sig := result.Signals[0]
	if sig.Close != 102 || sig.MaxGainPct != 9.8 || sig.HoldingDays != 5 || !sig.HasFuture {
		t.Errorf("unexpected signal %+v", sig)
	}
}

func TestReplayInsufficientHistory(t *testing.T) {
	for _, n := range []int{99, MinBacktestCandles} {
		result := Replay(flatCandles(n), "2330.TW", chipParams(), rules.CoreOnlyMode)
		if !result.Insufficient || len(result.Signals) != 0 {
			t.Errorf("%d candles should be insufficient, got %+v", n, result)
		}
	}
	if result := Replay(flatCandles(MinBacktestCandles+1), "2330.TW", pullbackParams(), rules.CoreOnlyMode); result.Insufficient {
		t.Errorf("%d candles should replay the pullback strategy", MinBacktestCandles+1)
	}

	// MA200 never defined: nothing to replay for MA200 strategies.
	result := Replay(flatCandles(150), "2330.TW", chipParams(), rules.CoreOnlyMode)
	if !result.Insufficient {
		t.Errorf("chip replay without MA200 should be insufficient")
	}
}

func TestStartIndex(t *testing.T) {
	frame := indicators.Enrich(flatCandles(250))
	if got := StartIndex(frame, rules.ChipConcentration); got != 199 {
		t.Errorf("chip start = %d, want 199", got)
	}
	if got := StartIndex(frame, rules.VolumeLowPullback); got != 60 {
		t.Errorf("pullback start = %d, want 60", got)
	}
}

func TestBacktestEngineRun(t *testing.T) {
	src := &stubSource{candles: spikeSeries()}
	engine := NewBacktestEngine(src)

	result, err := engine.Run(context.Background(), BacktestConfig{Symbol: "2330.TW", Parameters: chipParams(), Mode: rules.CoreOnlyMode})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if src.period != DefaultBacktestPeriod || src.symbol != "2330.TW" {
		t.Errorf("source called with %s %s", src.symbol, src.period)
	}
	if len(result.Signals) != 1 {
		t.Errorf("signals = %d, want 1", len(result.Signals))
	}

	if _, err := engine.Run(context.Background(), BacktestConfig{Parameters: chipParams()}); err == nil {
		t.Error("missing symbol should fail")
	}

	boom := errors.New("boom")
	_, err = NewBacktestEngine(&stubSource{err: boom}).Run(context.Background(), BacktestConfig{Symbol: "x", Parameters: chipParams()})
	if !errors.Is(err, boom) {
		t.Errorf("source error should be wrapped, got %v", err)
	}
}

func TestBacktestWithoutModeReplaysCoreRules(t *testing.T) {
	var cfg BacktestConfig
	if cfg.Mode != rules.CoreOnlyMode {
		t.Fatalf("zero BacktestConfig mode = %v, want core", cfg.Mode)
	}

	result, err := NewBacktestEngine(&stubSource{candles: spikeSeries()}).
		Run(context.Background(), BacktestConfig{Symbol: "2330.TW", Parameters: chipParams()})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	core := Replay(spikeSeries(), "2330.TW", chipParams(), rules.CoreOnlyMode)
	if result.Mode != rules.CoreOnlyMode {
		t.Errorf("result mode = %v, want core", result.Mode)
	}
	if len(result.Signals) != len(core.Signals) || len(result.Signals) != 1 {
		t.Fatalf("signals = %d, core replay found %d", len(result.Signals), len(core.Signals))
	}
	if !result.Signals[0].Date.Equal(core.Signals[0].Date) {
		t.Errorf("signal date %v, core replay %v", result.Signals[0].Date, core.Signals[0].Date)
	}
}

func TestSortAndSummarize(t *testing.T) {
	signals := []models.SignalRecord{
		{Date: day0, MaxGainPct: 5, HoldingDays: 4},
		{Date: day0.AddDate(0, 0, 1), MaxGainPct: 20, HoldingDays: 10},
		{Date: day0.AddDate(0, 0, 2), MaxGainPct: 5, HoldingDays: 1},
	}
	sorted := SortByGain(signals)
	if sorted[0].MaxGainPct != 20 || !sorted[1].Date.Equal(day0) {
		t.Errorf("unexpected order %+v", sorted)
	}
	if signals[0].MaxGainPct != 5 {
		t.Error("SortByGain must not reorder its input")
	}

	s := Summarize(&BacktestResult{Signals: signals})
	if s.Signals != 3 || s.AvgMaxGain != 10 || s.HitRate != 33.33 || s.BestGain != 20 || s.AvgHoldDays != 5 {
		t.Errorf("unexpected summary %+v", s)
	}
	if s := Summarize(nil); s.Signals != 0 {
		t.Errorf("nil result should summarize to zero")
	}
}

func TestCompareStrategies(t *testing.T) {
	rows := CompareStrategies(spikeSeries(), "2330.TW", rules.DefaultParameters(), rules.CoreOnlyMode)
	if len(rows) != len(rules.Strategies()) {
		t.Fatalf("rows = %d", len(rows))
	}
	if rows[0].Strategy != rules.ChipConcentration {
		t.Errorf("chip should lead, got %s", rows[0].Strategy)
	}
}
