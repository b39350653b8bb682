package screener

import (
	"sort"

	"tw-screener/internal/models"
	"tw-screener/internal/store"
	"tw-screener/pkg/utils"
)

// SortedByRSI returns the results with the highest RSI first, the order the
// scan table is displayed in.
func (r *Report) SortedByRSI() []models.ScanResult {
	out := make([]models.ScanResult, len(r.Results))
	copy(out, r.Results)
	sort.SliceStable(out, func(i, j int) bool { return out[i].RSI > out[j].RSI })
	return out
}

// Top returns the first n results in scan order.
func (r *Report) Top(n int) []models.ScanResult {
	if n >= len(r.Results) {
		return r.Results
	}
	return r.Results[:n]
}

// HistoryRecords converts the results for the history log, dated on the day
// the scan started.
func (r *Report) HistoryRecords() []models.HistoryRecord {
	date := utils.ISODate(r.StartedAt)
	out := make([]models.HistoryRecord, 0, len(r.Results))
	for _, res := range r.Results {
		out = append(out, store.RecordFromResult(date, res))
	}
	return out
}
