package sources

import (
	"context"
	"fmt"
	"time"

	"github.com/sourcegraph/conc"

	"tw-screener/pkg/utils"
)

// Probe is the availability of one provider.
type Probe struct {
	Source  string        `json:"source"`
	OK      bool          `json:"ok"`
	Latency time.Duration `json:"latency"`
	Detail  string        `json:"detail"`
}

// Diagnose queries every provider once, bypassing the cache, and reports
// which ones answered. Probes run concurrently and keep a fixed order.
func (m *Market) Diagnose(ctx context.Context) []Probe {
	now := m.clock()
	probes := []struct {
		source string
		run    func(ctx context.Context) (string, error)
	}{
		{sourceYahoo, func(ctx context.Context) (string, error) {
			candles, err := m.yahoo.FetchCandles(ctx, "2330.TW", "5d")
			return fmt.Sprintf("%d candles for 2330.TW", len(candles)), err
		}},
		{sourceTWSE, func(ctx context.Context) (string, error) {
			rows, date, err := m.twse.InstitutionalRows(ctx, time.Time{})
			return fmt.Sprintf("T86 %s, %d rows", utils.ISODate(date), len(rows)), err
		}},
		{sourceTPEx, func(ctx context.Context) (string, error) {
			day := utils.LastTradingDay(now)
			flow, err := m.tpex.InstitutionalFlow(ctx, day)
			return fmt.Sprintf("%s, %d stocks", utils.ISODate(day), len(flow)), err
		}},
		{sourceMOPS, func(ctx context.Context) (string, error) {
			month := utils.RevenueMonths(now, 1)[0]
			rev, err := m.mops.Revenue(ctx, month)
			return fmt.Sprintf("%s, %d companies", month.Format("2006-01"), len(rev)), err
		}},
		{sourceISIN, func(ctx context.Context) (string, error) {
			list, err := m.dir.Instruments(ctx)
			return fmt.Sprintf("%d instruments", len(list)), err
		}},
		{sourceNews, func(ctx context.Context) (string, error) {
			items, err := m.news.Headlines(ctx)
			return fmt.Sprintf("%d headlines", len(items)), err
		}},
	}

	out := make([]Probe, len(probes))
	var wg conc.WaitGroup
	for i, p := range probes {
		i, p := i, p
		wg.Go(func() {
			start := time.Now()
			detail, err := p.run(ctx)
			out[i] = Probe{Source: p.source, OK: err == nil, Latency: time.Since(start), Detail: detail}
			if err != nil {
				out[i].Detail = err.Error()
			}
		})
	}
	wg.Wait()
	return out
}
