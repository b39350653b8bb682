package sources

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"tw-screener/internal/cache"
	apperrors "tw-screener/internal/errors"
	"tw-screener/internal/models"
	"tw-screener/internal/trading"
	"tw-screener/pkg/utils"
)

// Publication cutoffs (Taipei hour) and fallback depth of the daily reports.
const (
	chipsCutoffHour   = 15
	chipsAttempts     = 3
	marginCutoffHour  = 21
	marginAttempts    = 3
	heatmapCutoffHour = 14
	heatmapAttempts   = 5
	revenueAttempts   = 2

	// HeatmapSize is the number of stocks kept by turnover.
	HeatmapSize = 400
)

// Config holds the endpoints and client settings of every provider. Empty
// URLs use the public sites.
type Config struct {
	TWSEBaseURL  string
	TPExBaseURL  string
	MOPSBaseURL  string
	YahooBaseURL string
	ISINBaseURL  string
	Feeds        []Feed
	Client       ClientConfig
	Observer     Observer
	Clock        utils.Clock
}

// Market combines the providers, applies the date fallbacks and memoizes
// snapshots in an optional cache.
type Market struct {
	twse   *TWSE
	tpex   *TPEx
	mops   *MOPS
	yahoo  *Yahoo
	news   *News
	dir    *Directory
	cache  cache.Store
	clock  utils.Clock
	logger zerolog.Logger
}

// NewMarket wires every provider. store may be nil.
func NewMarket(cfg Config, store cache.Store, logger zerolog.Logger) *Market {
	newClient := func() *Client {
		c := NewClient(cfg.Client, logger)
		c.SetObserver(cfg.Observer)
		return c
	}
	clock := cfg.Clock
	if clock == nil {
		clock = utils.TaipeiNow
	}
	return &Market{
		twse:   NewTWSE(newClient(), cfg.TWSEBaseURL),
		tpex:   NewTPEx(newClient(), cfg.TPExBaseURL),
		mops:   NewMOPS(newClient(), cfg.MOPSBaseURL),
		yahoo:  NewYahoo(newClient(), cfg.YahooBaseURL),
		news:   NewNews(newClient(), cfg.Feeds, logger),
		dir:    NewDirectory(newClient(), cfg.ISINBaseURL),
		cache:  store,
		clock:  clock,
		logger: logger,
	}
}

// FlowSnapshot is the institutional net buy of one trading day.
type FlowSnapshot struct {
	Flow models.InstitutionalFlow `json:"flow"`
	Date time.Time                `json:"date"`
}

// MarginSnapshot is the margin purchase change of one trading day.
type MarginSnapshot struct {
	Change models.MarginChange `json:"change"`
	Date   time.Time           `json:"date"`
}

// RevenueSnapshot is the monthly revenue report of one month.
type RevenueSnapshot struct {
	Revenue models.RevenueMap `json:"revenue"`
	Month   time.Time         `json:"month"`
}

// FetchCandles implements trading.CandleSource.
func (m *Market) FetchCandles(ctx context.Context, symbol, period string) ([]models.Candle, error) {
	return m.yahoo.FetchCandles(ctx, symbol, period)
}

// FetchFundamentals returns valuation data for symbol.
func (m *Market) FetchFundamentals(ctx context.Context, symbol string) (models.Fundamentals, error) {
	return m.yahoo.FetchFundamentals(ctx, symbol)
}

// FetchInstitutionalFlow returns the latest TWSE + TPEx net buy snapshot. The
// search starts today after 15:00 and yesterday before, trying three
// calendar days. OTC values override listed ones for the same code.
func (m *Market) FetchInstitutionalFlow(ctx context.Context) (FlowSnapshot, error) {
	return cache.Remember(ctx, m.cache, "chips:"+m.dayKey(), cache.TTLChips, func(ctx context.Context) (FlowSnapshot, error) {
		for _, d := range utils.CandidateDates(m.clock(), chipsCutoffHour, chipsAttempts) {
			if err := ctx.Err(); err != nil {
				return FlowSnapshot{}, err
			}
			flow := make(models.InstitutionalFlow)
			if rows, _, err := m.twse.InstitutionalRows(ctx, d); err == nil {
				for code, v := range trading.FlowFromRows(rows) {
					flow[code] = v
				}
			} else {
				m.logger.Debug().Err(err).Time("date", d).Msg("twse chips unavailable")
			}
			if otc, err := m.tpex.InstitutionalFlow(ctx, d); err == nil {
				for code, v := range otc {
					flow[code] = v
				}
			} else {
				m.logger.Debug().Err(err).Time("date", d).Msg("tpex chips unavailable")
			}
			if len(flow) > 0 {
				return FlowSnapshot{Flow: flow, Date: d}, nil
			}
		}
		return FlowSnapshot{Flow: models.InstitutionalFlow{}}, apperrors.NewDataError("chips", "", "no report in fallback window", apperrors.ErrDataNotFound)
	})
}

// FetchMarginChange returns the latest TWSE + TPEx margin purchase change.
// Reports appear after 21:00.
func (m *Market) FetchMarginChange(ctx context.Context) (MarginSnapshot, error) {
	return cache.Remember(ctx, m.cache, "margin:"+m.dayKey(), cache.TTLMargin, func(ctx context.Context) (MarginSnapshot, error) {
		for _, d := range utils.CandidateDates(m.clock(), marginCutoffHour, marginAttempts) {
			if err := ctx.Err(); err != nil {
				return MarginSnapshot{}, err
			}
			change := make(models.MarginChange)
			if listed, err := m.twse.MarginChange(ctx, d); err == nil {
				for code, v := range listed {
					change[code] = v
				}
			}
			if otc, err := m.tpex.MarginChange(ctx, d); err == nil {
				for code, v := range otc {
					change[code] = v
				}
			}
			if len(change) > 0 {
				return MarginSnapshot{Change: change, Date: d}, nil
			}
		}
		return MarginSnapshot{Change: models.MarginChange{}}, apperrors.NewDataError("margin", "", "no report in fallback window", apperrors.ErrDataNotFound)
	})
}

// FetchRevenue returns the newest monthly revenue report available: last
// month from the 12th, otherwise the month before, then one month earlier.
func (m *Market) FetchRevenue(ctx context.Context) (RevenueSnapshot, error) {
	return cache.Remember(ctx, m.cache, "revenue:"+m.dayKey(), cache.TTLRevenue, func(ctx context.Context) (RevenueSnapshot, error) {
		var lastErr error
		for _, month := range utils.RevenueMonths(m.clock(), revenueAttempts) {
			rev, err := m.mops.Revenue(ctx, month)
			if err == nil && len(rev) > 0 {
				return RevenueSnapshot{Revenue: rev, Month: month}, nil
			}
			lastErr = err
		}
		return RevenueSnapshot{Revenue: models.RevenueMap{}}, apperrors.NewDataError("revenue", "", "no report in fallback window", lastErr)
	})
}

// Heatmap returns the top stocks by turnover of the latest daily quotes.
func (m *Market) Heatmap(ctx context.Context, top int) ([]models.HeatmapCell, time.Time, error) {
	type snapshot struct {
		Cells []models.HeatmapCell `json:"cells"`
		Date  time.Time            `json:"date"`
	}
	if top <= 0 {
		top = HeatmapSize
	}
	s, err := cache.Remember(ctx, m.cache, fmt.Sprintf("heatmap:%d", top), cache.TTLHeatmap, func(ctx context.Context) (snapshot, error) {
		resolver := m.resolverOrEmpty(ctx)
		for _, d := range utils.CandidateDates(m.clock(), heatmapCutoffHour, heatmapAttempts) {
			rows, err := m.twse.Quotes(ctx, d)
			if err != nil || len(rows) == 0 {
				continue
			}
			return snapshot{Cells: trading.BuildHeatmap(rows, top, resolver.Sector), Date: d}, nil
		}
		return snapshot{}, apperrors.NewDataError("heatmap", "", "no quotes in fallback window", apperrors.ErrDataNotFound)
	})
	return s.Cells, s.Date, err
}

// InstitutionalRanking ranks the latest T86 report against the previous
// trading day. A missing previous report compares against zero.
func (m *Market) InstitutionalRanking(ctx context.Context, limit int) ([]models.RankedFlow, time.Time, error) {
	type snapshot struct {
		Ranking []models.RankedFlow `json:"ranking"`
		Date    time.Time           `json:"date"`
	}
	s, err := cache.Remember(ctx, m.cache, fmt.Sprintf("ranking:%d", limit), cache.TTLRanking, func(ctx context.Context) (snapshot, error) {
		rows, date, err := m.twse.InstitutionalRows(ctx, time.Time{})
		if err != nil {
			return snapshot{}, err
		}
		prev := models.InstitutionalFlow{}
		if prevRows, _, err := m.twse.InstitutionalRows(ctx, utils.LastTradingDay(date)); err == nil {
			prev = trading.FlowFromRows(prevRows)
		} else {
			m.logger.Debug().Err(err).Msg("previous T86 unavailable")
		}
		return snapshot{Ranking: trading.RankInstitutional(rows, prev, limit), Date: date}, nil
	})
	return s.Ranking, s.Date, err
}

// SectorFlows compares the latest BFIAMU turnover shares with the previous trading day.
func (m *Market) SectorFlows(ctx context.Context) ([]models.SectorFlow, time.Time, error) {
	type snapshot struct {
		Flows []models.SectorFlow `json:"flows"`
		Date  time.Time           `json:"date"`
	}
	s, err := cache.Remember(ctx, m.cache, "sectors", cache.TTLSectorFlow, func(ctx context.Context) (snapshot, error) {
		today, date, err := m.twse.SectorTurnover(ctx, time.Time{})
		if err != nil {
			return snapshot{}, err
		}
		prev, _, err := m.twse.SectorTurnover(ctx, utils.LastTradingDay(date))
		if err != nil {
			m.logger.Debug().Err(err).Msg("previous BFIAMU unavailable")
			prev = nil
		}
		return snapshot{Flows: trading.ComputeSectorFlows(today, prev), Date: date}, nil
	})
	return s.Flows, s.Date, err
}

// Headlines returns the aggregated news feed.
func (m *Market) Headlines(ctx context.Context) ([]models.NewsItem, error) {
	return cache.Remember(ctx, m.cache, "news", cache.TTLNews, m.news.Headlines)
}

// Temperature symbols.
const (
	SymbolTAIEX = "^TWII"
	SymbolVIX   = "^VIX"
)

// MarketTemperature returns the last move of the TAIEX and the VIX. Indices
// that cannot be loaded are left out.
func (m *Market) MarketTemperature(ctx context.Context) ([]models.IndexQuote, error) {
	var quotes []models.IndexQuote
	var lastErr error
	for _, symbol := range []string{SymbolTAIEX, SymbolVIX} {
		closes, err := m.yahoo.FetchCloses(ctx, symbol, "5d")
		if err != nil {
			lastErr = err
			continue
		}
		if q, ok := trading.IndexMove(symbol, closes); ok {
			quotes = append(quotes, q)
		}
	}
	if len(quotes) == 0 && lastErr != nil {
		return nil, lastErr
	}
	return quotes, nil
}

// Instruments returns the scan universe.
func (m *Market) Instruments(ctx context.Context) ([]models.Instrument, error) {
	return cache.Remember(ctx, m.cache, "instruments", cache.TTLInstruments, m.dir.Instruments)
}

// Resolver returns a code index of the scan universe.
func (m *Market) Resolver(ctx context.Context) (*Resolver, error) {
	list, err := m.Instruments(ctx)
	if err != nil {
		return nil, err
	}
	return NewResolver(list), nil
}

func (m *Market) resolverOrEmpty(ctx context.Context) *Resolver {
	r, err := m.Resolver(ctx)
	if err != nil {
		m.logger.Debug().Err(err).Msg("instrument list unavailable, using curated sectors only")
		return NewResolver(nil)
	}
	return r
}

// dayKey scopes daily snapshot cache keys to the Taipei hour, so a report
// published after its cutoff is picked up within the hour.
func (m *Market) dayKey() string {
	return m.clock().In(utils.TaipeiLocation).Format("2006010215")
}
