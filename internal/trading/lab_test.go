package trading

import (
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"

	"tw-screener/internal/models"
	"tw-screener/pkg/utils"
)

func labCandles() []models.Candle {
	start, _ := utils.ParseISODate("2024-05-01")
	closes := []float64{100, 104, 98, 110}
	candles := make([]models.Candle, len(closes))
	for i, c := range closes {
		candles[i] = models.Candle{Date: start.AddDate(0, 0, i), Close: c}
	}
	return candles
}

func TestHoldToLatest(t *testing.T) {
	rec := models.HistoryRecord{ScreenDate: "2024-05-02", Code: "2330", Strategy: "chip", Close: 104, EntryPrice: 100}
	trade, ok := HoldToLatest(rec, labCandles())
	if !ok {
		t.Fatal("expected trade")
	}
	if trade.EntryPrice != 100 || trade.CurrentPrice != 110 || trade.ReturnPct != 10 {
		t.Errorf("unexpected %+v", trade)
	}

	rec.EntryPrice = 0
	if trade, _ := HoldToLatest(rec, labCandles()); trade.EntryPrice != 104 {
		t.Errorf("entry falls back to close, got %v", trade.EntryPrice)
	}

	rec.ScreenDate = "2024-06-01"
	if _, ok := HoldToLatest(rec, labCandles()); ok {
		t.Error("no candle after the screen date")
	}

	if _, ok := HoldToLatest(models.HistoryRecord{ScreenDate: "2024-05-01"}, labCandles()); ok {
		t.Error("record without a price should be skipped")
	}
}

func TestStrategyStats(t *testing.T) {
	trades := []LabTrade{
		{Strategy: "chip", EntryDate: "2024-05-01", ReturnPct: 10},
		{Strategy: "chip", EntryDate: "2024-05-02", ReturnPct: -4},
		{Strategy: "chip", EntryDate: "2024-05-02", ReturnPct: 6},
		{Strategy: "pullback", EntryDate: "2024-05-01", ReturnPct: -2},
	}
	stats := StrategyStats(trades)
	if len(stats) != 2 || stats[0].Strategy != "chip" {
		t.Fatalf("unexpected %+v", stats)
	}
	chip := stats[0]
	if chip.Trades != 3 || chip.AvgReturn != 4 || chip.WinRate != 66.7 || chip.MaxReturn != 10 {
		t.Errorf("unexpected chip stats %+v", chip)
	}
	if len(chip.ByDate) != 2 || chip.ByDate[0].Date != "2024-05-02" || chip.ByDate[0].AvgReturn != 1 {
		t.Errorf("unexpected per-date stats %+v", chip.ByDate)
	}
	if stats[1].WinRate != 0 || stats[1].MaxReturn != -2 {
		t.Errorf("unexpected pullback stats %+v", stats[1])
	}
}

type codeSource map[string][]models.Candle

func (s codeSource) FetchCandles(_ context.Context, symbol, _ string) ([]models.Candle, error) {
	if c, ok := s[symbol]; ok {
		return c, nil
	}
	return nil, errors.New("not found")
}

func TestStrategyLabSimulate(t *testing.T) {
	src := codeSource{"2330.TW": labCandles(), "8069.TWO": labCandles()}
	symbol := func(code string) string {
		if code == "8069" {
			return "8069.TWO"
		}
		return code + ".TW"
	}
	lab := NewStrategyLab(src, symbol, zerolog.Nop())

	records := []models.HistoryRecord{
		{ScreenDate: "2024-05-01", Code: "2330", Strategy: "chip", EntryPrice: 100},
		{ScreenDate: "2024-05-01", Code: "2330", Strategy: "chip", EntryPrice: 100},
		{ScreenDate: "2024-05-01", Code: "8069", Strategy: "breakdown", EntryPrice: 88},
		{ScreenDate: "2024-05-01", Code: "1234", Strategy: "chip", EntryPrice: 10},
	}
	calls := 0
	trades, err := lab.Simulate(context.Background(), records, func(done, total int) {
		calls++
		if total != 3 {
			t.Errorf("total = %d, duplicates should be dropped", total)
		}
	})
	if err != nil {
		t.Fatalf("Simulate: %v", err)
	}
	if calls != 3 || len(trades) != 2 {
		t.Errorf("calls = %d, trades = %d", calls, len(trades))
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := lab.Simulate(ctx, records, nil); !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}
