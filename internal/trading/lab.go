package trading

import (
	"context"
	"sort"

	"github.com/rs/zerolog"

	"tw-screener/internal/models"
	"tw-screener/pkg/utils"
)

// LabTrade is one history record held from its screen date to the latest close.
type LabTrade struct {
	Strategy     string  `json:"strategy"`
	Code         string  `json:"code"`
	Name         string  `json:"name"`
	EntryDate    string  `json:"entry_date"`
	EntryPrice   float64 `json:"entry_price"`
	CurrentPrice float64 `json:"current_price"`
	ReturnPct    float64 `json:"return_pct"`
}

// DateStat is the average return of one screen date.
type DateStat struct {
	Date      string  `json:"date"`
	Trades    int     `json:"trades"`
	AvgReturn float64 `json:"avg_return"`
}

// LabStats aggregates the trades of one strategy.
type LabStats struct {
	Strategy  string     `json:"strategy"`
	Trades    int        `json:"trades"`
	AvgReturn float64    `json:"avg_return"`
	WinRate   float64    `json:"win_rate"`
	MaxReturn float64    `json:"max_return"`
	ByDate    []DateStat `json:"by_date"`
}

// StrategyLab simulates holding every screened stock until today.
type StrategyLab struct {
	source CandleSource
	symbol func(code string) string
	period string
	logger zerolog.Logger
}

// NewStrategyLab creates a lab. symbol maps a stock code to its Yahoo ticker.
func NewStrategyLab(source CandleSource, symbol func(code string) string, logger zerolog.Logger) *StrategyLab {
	if symbol == nil {
		symbol = func(code string) string { return code + models.MarketTWSE.Suffix() }
	}
	return &StrategyLab{source: source, symbol: symbol, period: "1y", logger: logger}
}

// Simulate evaluates records sequentially. Stocks whose candles cannot be
// loaded are skipped. progress may be nil.
func (l *StrategyLab) Simulate(ctx context.Context, records []models.HistoryRecord, progress func(done, total int)) ([]LabTrade, error) {
	unique := dedupRecords(records)
	trades := make([]LabTrade, 0, len(unique))

	for i, rec := range unique {
		if err := ctx.Err(); err != nil {
			return trades, err
		}
		if progress != nil {
			progress(i+1, len(unique))
		}

		candles, err := l.source.FetchCandles(ctx, l.symbol(rec.Code), l.period)
		if err != nil {
			l.logger.Debug().Err(err).Str("code", rec.Code).Msg("lab: skipping record")
			continue
		}
		if trade, ok := HoldToLatest(rec, candles); ok {
			trades = append(trades, trade)
		}
	}
	return trades, nil
}

func dedupRecords(records []models.HistoryRecord) []models.HistoryRecord {
	seen := make(map[string]bool, len(records))
	out := make([]models.HistoryRecord, 0, len(records))
	for _, r := range records {
		if seen[r.Key()] {
			continue
		}
		seen[r.Key()] = true
		out = append(out, r)
	}
	return out
}

// HoldToLatest prices a history record at the last close on or after its
// screen date. It reports false when the entry price is unusable or no candle
// follows the entry.
func HoldToLatest(rec models.HistoryRecord, candles []models.Candle) (LabTrade, bool) {
	entry := rec.EntryPrice
	if entry <= 0 {
		entry = rec.Close
	}
	if entry <= 0 {
		return LabTrade{}, false
	}
	entryDate, err := utils.ParseISODate(rec.ScreenDate)
	if err != nil {
		return LabTrade{}, false
	}

	var last *models.Candle
	for i := range candles {
		if !utils.DayStart(candles[i].Date).Before(entryDate) {
			last = &candles[i]
		}
	}
	if last == nil {
		return LabTrade{}, false
	}

	return LabTrade{
		Strategy:     rec.Strategy,
		Code:         rec.Code,
		Name:         rec.Name,
		EntryDate:    rec.ScreenDate,
		EntryPrice:   utils.Round2(entry),
		CurrentPrice: utils.Round2(last.Close),
		ReturnPct:    utils.Round2((last.Close - entry) / entry * 100),
	}, true
}

// StrategyStats groups trades per strategy in first-seen order. Dates within
// a strategy are listed newest first.
func StrategyStats(trades []LabTrade) []LabStats {
	order := make([]string, 0)
	groups := make(map[string][]LabTrade)
	for _, t := range trades {
		if _, ok := groups[t.Strategy]; !ok {
			order = append(order, t.Strategy)
		}
		groups[t.Strategy] = append(groups[t.Strategy], t)
	}

	stats := make([]LabStats, 0, len(order))
	for _, strategy := range order {
		group := groups[strategy]
		s := LabStats{Strategy: strategy, Trades: len(group), MaxReturn: group[0].ReturnPct}
		var total float64
		wins := 0
		byDate := make(map[string][]float64)
		for _, t := range group {
			total += t.ReturnPct
			if t.ReturnPct > 0 {
				wins++
			}
			if t.ReturnPct > s.MaxReturn {
				s.MaxReturn = t.ReturnPct
			}
			byDate[t.EntryDate] = append(byDate[t.EntryDate], t.ReturnPct)
		}
		s.AvgReturn = utils.Round2(total / float64(len(group)))
		s.WinRate = utils.RoundTo(float64(wins)/float64(len(group))*100, 1)

		dates := make([]string, 0, len(byDate))
		for d := range byDate {
			dates = append(dates, d)
		}
		sort.Sort(sort.Reverse(sort.StringSlice(dates)))
		for _, d := range dates {
			var sum float64
			for _, r := range byDate[d] {
				sum += r
			}
			s.ByDate = append(s.ByDate, DateStat{Date: d, Trades: len(byDate[d]), AvgReturn: utils.Round2(sum / float64(len(byDate[d])))})
		}
		stats = append(stats, s)
	}
	return stats
}
