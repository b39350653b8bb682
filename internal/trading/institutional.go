package trading

import (
	"sort"

	"tw-screener/internal/models"
)

// Institutional flow status labels.
const (
	StatusSurgeBuy       = "surge buy"
	StatusConsecutiveBuy = "consecutive buy"
	StatusStrongReversal = "strong reversal"
	StatusReversal       = "reversal"
	StatusWhaleEntry     = "whale entry"
	StatusNetBuy         = "net buy"
)

// DefaultRankingLimit is the length of the institutional ranking.
const DefaultRankingLimit = 30

const (
	surgeMinShares = 1_000_000
	whaleMinShares = 2_000_000
)

// FlowRow is one stock of a T86 report.
type FlowRow struct {
	Code   string
	Name   string
	NetBuy int64 // shares
}

// FlowStatus labels today's net buy against the previous trading day's.
func FlowStatus(today, prev int64) string {
	switch {
	case today > 0 && prev > 0:
		if today > prev*2 && today > surgeMinShares {
			return StatusSurgeBuy
		}
		return StatusConsecutiveBuy
	case today > 0 && prev < 0:
		if today > -prev {
			return StatusStrongReversal
		}
		return StatusReversal
	case today > whaleMinShares:
		return StatusWhaleEntry
	default:
		return StatusNetBuy
	}
}

// RankInstitutional keeps the limit largest net buyers of today and labels
// each against prev. Codes missing from prev count as zero.
func RankInstitutional(today []FlowRow, prev models.InstitutionalFlow, limit int) []models.RankedFlow {
	if limit <= 0 {
		limit = DefaultRankingLimit
	}
	rows := make([]FlowRow, len(today))
	copy(rows, today)
	sort.SliceStable(rows, func(i, j int) bool {
		return rows[i].NetBuy > rows[j].NetBuy
	})
	if len(rows) > limit {
		rows = rows[:limit]
	}

	ranked := make([]models.RankedFlow, 0, len(rows))
	for _, r := range rows {
		var y int64
		if prev != nil {
			y = prev[r.Code]
		}
		ranked = append(ranked, models.RankedFlow{
			Code:        r.Code,
			Name:        r.Name,
			TodayShares: r.NetBuy,
			PrevShares:  y,
			Status:      FlowStatus(r.NetBuy, y),
		})
	}
	return ranked
}

// FlowFromRows converts report rows to a code-indexed snapshot.
func FlowFromRows(rows []FlowRow) models.InstitutionalFlow {
	flow := make(models.InstitutionalFlow, len(rows))
	for _, r := range rows {
		flow[r.Code] = r.NetBuy
	}
	return flow
}
