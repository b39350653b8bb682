// Package store persists the screening history log.
package store

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"tw-screener/internal/analysis/rules"
	apperrors "tw-screener/internal/errors"
	"tw-screener/internal/models"
)

// Backend names accepted by Open.
const (
	BackendSQLite = "sqlite"
	BackendCSV    = "csv"
)

// HistoryStore is the append-only screening log. A record is identified by
// (screen date, code, strategy) and a later Save of the same key replaces it.
type HistoryStore interface {
	Save(ctx context.Context, records []models.HistoryRecord) error
	Load(ctx context.Context, filter HistoryFilter) ([]models.HistoryRecord, error)
	Clear(ctx context.Context) error
	Close() error
}

// HistoryFilter narrows Load. Zero fields match everything; From and To are
// inclusive YYYY-MM-DD dates.
type HistoryFilter struct {
	Strategy string
	Code     string
	From     string
	To       string
	Limit    int
}

func (f HistoryFilter) match(r models.HistoryRecord) bool {
	if f.Strategy != "" && r.Strategy != f.Strategy {
		return false
	}
	if f.Code != "" && r.Code != f.Code {
		return false
	}
	if f.From != "" && r.ScreenDate < f.From {
		return false
	}
	if f.To != "" && r.ScreenDate > f.To {
		return false
	}
	return true
}

// Open creates the backend named by kind at path.
func Open(kind, path string) (HistoryStore, error) {
	switch strings.ToLower(kind) {
	case "", BackendSQLite:
		return NewSQLiteStore(path)
	case BackendCSV:
		return NewCSVStore(path)
	default:
		return nil, apperrors.NewValidationError("history.backend", kind, "must be sqlite or csv")
	}
}

// normalize stores strategies by their display label and fills a missing
// entry price with the screen close. It reports false for an unknown strategy.
func normalize(r models.HistoryRecord) (models.HistoryRecord, bool) {
	s, err := rules.ParseStrategy(r.Strategy)
	if err != nil {
		return r, false
	}
	r.Strategy = s.Label()
	if r.EntryPrice <= 0 {
		r.EntryPrice = r.Close
	}
	return r, true
}

func normalizeAll(records []models.HistoryRecord) ([]models.HistoryRecord, error) {
	out := make([]models.HistoryRecord, 0, len(records))
	for _, r := range records {
		n, ok := normalize(r)
		if !ok {
			return nil, fmt.Errorf("%s %s: %w: %q", r.ScreenDate, r.Code, apperrors.ErrUnknownStrategy, r.Strategy)
		}
		out = append(out, n)
	}
	return out, nil
}

// NormalizeFilter maps a strategy key in the filter to its stored label.
func NormalizeFilter(f HistoryFilter) HistoryFilter {
	if f.Strategy == "" {
		return f
	}
	if s, err := rules.ParseStrategy(f.Strategy); err == nil {
		f.Strategy = s.Label()
	}
	return f
}

// RecordFromResult converts a scan match to a history row.
func RecordFromResult(screenDate string, r models.ScanResult) models.HistoryRecord {
	return models.HistoryRecord{
		ScreenDate: screenDate,
		Code:       r.Code,
		Name:       r.Name,
		Sector:     r.Sector,
		Strategy:   r.Strategy,
		Close:      r.Close,
		EntryPrice: r.Close,
		Bias:       r.Bias,
		RSI:        r.RSI,
		NetBuyLots: r.NetBuyLots,
		RevenueYoY: r.RevenueYoY,
		Annotation: r.Annotation,
	}
}

// DateGroup is the history of one screen date.
type DateGroup struct {
	Date    string
	Records []models.HistoryRecord
}

// GroupByDate groups records by screen date, newest first. Records keep
// their relative order within a date.
func GroupByDate(records []models.HistoryRecord) []DateGroup {
	index := make(map[string]int)
	groups := make([]DateGroup, 0)
	for _, r := range records {
		i, ok := index[r.ScreenDate]
		if !ok {
			i = len(groups)
			index[r.ScreenDate] = i
			groups = append(groups, DateGroup{Date: r.ScreenDate})
		}
		groups[i].Records = append(groups[i].Records, r)
	}
	sort.SliceStable(groups, func(i, j int) bool { return groups[i].Date > groups[j].Date })
	return groups
}

// MultiHit is a stock flagged by more than one strategy on the same date.
type MultiHit struct {
	Date       string
	Code       string
	Name       string
	Strategies []string
}

// MultiStrategyHits lists codes matched by at least two strategies on one date.
func MultiStrategyHits(records []models.HistoryRecord) []MultiHit {
	type key struct{ date, code string }
	order := make([]key, 0)
	hits := make(map[key]*MultiHit)
	for _, r := range records {
		k := key{r.ScreenDate, r.Code}
		h, ok := hits[k]
		if !ok {
			h = &MultiHit{Date: r.ScreenDate, Code: r.Code, Name: r.Name}
			hits[k] = h
			order = append(order, k)
		}
		dup := false
		for _, s := range h.Strategies {
			if s == r.Strategy {
				dup = true
			}
		}
		if !dup {
			h.Strategies = append(h.Strategies, r.Strategy)
		}
	}

	out := make([]MultiHit, 0)
	for _, k := range order {
		if h := hits[k]; len(h.Strategies) >= 2 {
			out = append(out, *h)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Date > out[j].Date })
	return out
}
