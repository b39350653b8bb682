package trading

import (
	"sort"
	"strings"

	"tw-screener/internal/models"
	"tw-screener/pkg/utils"
)

// SectorTurnover is one row of the TWSE industry turnover report.
type SectorTurnover struct {
	Sector   string
	Turnover float64
}

// SectorReport groups sector flows for display.
type SectorReport struct {
	Inflow  []models.SectorFlow // largest share gains
	Outflow []models.SectorFlow // largest share losses
	Main    []models.SectorFlow // largest turnover
}

func shares(rows []SectorTurnover) map[string]float64 {
	var total float64
	for _, r := range rows {
		total += r.Turnover
	}
	out := make(map[string]float64, len(rows))
	for _, r := range rows {
		if total > 0 {
			out[r.Sector] = r.Turnover / total * 100
		} else {
			out[r.Sector] = 0
		}
	}
	return out
}

// ComputeSectorFlows compares each sector's share of market turnover with the
// previous trading day. Sectors missing from prev have a previous share of 0.
// Values are rounded to one decimal place.
func ComputeSectorFlows(today, prev []SectorTurnover) []models.SectorFlow {
	todayShare := shares(today)
	prevShare := shares(prev)

	flows := make([]models.SectorFlow, 0, len(today))
	for _, r := range today {
		p := prevShare[r.Sector]
		flows = append(flows, models.SectorFlow{
			Sector:     r.Sector,
			Turnover:   r.Turnover,
			Share:      utils.RoundTo(todayShare[r.Sector], 1),
			PrevShare:  utils.RoundTo(p, 1),
			FlowChange: utils.RoundTo(todayShare[r.Sector]-p, 1),
		})
	}
	return flows
}

// BuildSectorReport selects the top movers: n inflows, n outflows and
// mainN sectors by turnover.
func BuildSectorReport(flows []models.SectorFlow, n, mainN int) SectorReport {
	pick := func(less func(a, b models.SectorFlow) bool, k int) []models.SectorFlow {
		sorted := make([]models.SectorFlow, len(flows))
		copy(sorted, flows)
		sort.SliceStable(sorted, func(i, j int) bool { return less(sorted[i], sorted[j]) })
		if len(sorted) > k {
			sorted = sorted[:k]
		}
		return sorted
	}
	return SectorReport{
		Inflow:  pick(func(a, b models.SectorFlow) bool { return a.FlowChange > b.FlowChange }, n),
		Outflow: pick(func(a, b models.SectorFlow) bool { return a.FlowChange < b.FlowChange }, n),
		Main:    pick(func(a, b models.SectorFlow) bool { return a.Turnover > b.Turnover }, mainN),
	}
}

// QuoteRow is one stock of the TWSE daily quote report.
type QuoteRow struct {
	Code     string
	Name     string
	Close    float64
	Change   float64 // unsigned price difference as printed
	Sign     int     // +1, -1 or 0
	Turnover float64
}

// BuildHeatmap keeps the top stocks by turnover and computes their percentage
// change against the implied previous close.
func BuildHeatmap(rows []QuoteRow, top int, sectorOf func(code string) string) []models.HeatmapCell {
	sorted := make([]QuoteRow, len(rows))
	copy(sorted, rows)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Turnover > sorted[j].Turnover })
	if top > 0 && len(sorted) > top {
		sorted = sorted[:top]
	}

	cells := make([]models.HeatmapCell, 0, len(sorted))
	for _, r := range sorted {
		signed := r.Change * float64(r.Sign)
		prevClose := r.Close - signed
		pct := 0.0
		if prevClose > 0 {
			pct = signed / prevClose * 100
		}
		sector := "其他"
		if sectorOf != nil {
			sector = sectorOf(r.Code)
		}
		cells = append(cells, models.HeatmapCell{
			Code:      r.Code,
			Name:      r.Name,
			Sector:    sector,
			Close:     r.Close,
			ChangePct: utils.Round2(pct),
			Turnover:  r.Turnover,
		})
	}
	return cells
}

// RadarHit is a stock where institutional buying lines up with news flow.
type RadarHit struct {
	Code     string `json:"code"`
	Name     string `json:"name"`
	Status   string `json:"status"`
	News     string `json:"news"`
	Strength int    `json:"strength"`
}

// Radar cross-checks the institutional ranking against headlines: surge buys
// always qualify, consecutive buys qualify when a headline names the stock.
func Radar(ranking []models.RankedFlow, news []models.NewsItem) []RadarHit {
	hits := make([]RadarHit, 0)
	for _, r := range ranking {
		var related []string
		for _, n := range news {
			if r.Name != "" && strings.Contains(n.Title, r.Name) {
				related = append(related, n.Title)
			}
		}
		surge := r.Status == StatusSurgeBuy
		if !surge && !(r.Status == StatusConsecutiveBuy && len(related) > 0) {
			continue
		}
		hit := RadarHit{Code: r.Code, Name: r.Name, Status: r.Status, News: "none", Strength: 2}
		if len(related) > 0 {
			hit.News = related[0]
		}
		if surge {
			hit.Strength = 3
		}
		hits = append(hits, hit)
	}
	return hits
}

// newsKeywords maps a headline term to the tag it contributes.
var newsKeywords = []struct{ term, tag string }{
	{"營收", "營收"},
	{"法說", "法說"},
	{"新高", "創新高"},
}

// KeywordCount is a hot topic tag and its frequency.
type KeywordCount struct {
	Tag   string
	Count int
}

// HotKeywords counts topic tags across headlines, most frequent first, at most limit tags.
func HotKeywords(news []models.NewsItem, limit int) []KeywordCount {
	counts := make(map[string]int)
	order := make([]string, 0)
	for _, n := range news {
		for _, kw := range newsKeywords {
			if strings.Contains(n.Title, kw.term) {
				if counts[kw.tag] == 0 {
					order = append(order, kw.tag)
				}
				counts[kw.tag]++
			}
		}
	}
	out := make([]KeywordCount, 0, len(order))
	for _, tag := range order {
		out = append(out, KeywordCount{Tag: tag, Count: counts[tag]})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Count > out[j].Count })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

// IndexMove builds a quote from the last two closes of an index.
func IndexMove(symbol string, closes []float64) (models.IndexQuote, bool) {
	if len(closes) < 2 {
		return models.IndexQuote{}, false
	}
	last := closes[len(closes)-1]
	prev := closes[len(closes)-2]
	q := models.IndexQuote{Symbol: symbol, Last: last, Prev: prev, Change: utils.Round2(last - prev)}
	if prev != 0 {
		q.ChangePct = utils.Round2((last - prev) / prev * 100)
	}
	return q, true
}
