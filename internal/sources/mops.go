package sources

import (
	"bytes"
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	apperrors "tw-screener/internal/errors"
	"tw-screener/internal/models"
	"tw-screener/pkg/utils"
)

// DefaultMOPSBaseURL is the Market Observation Post System.
const DefaultMOPSBaseURL = "https://mops.twse.com.tw"

const sourceMOPS = "mops"

// MOPS reads the monthly revenue summary pages.
type MOPS struct {
	client  *Client
	baseURL string
}

// NewMOPS creates a MOPS reader. An empty baseURL uses the public site.
func NewMOPS(client *Client, baseURL string) *MOPS {
	if baseURL == "" {
		baseURL = DefaultMOPSBaseURL
	}
	return &MOPS{client: client, baseURL: strings.TrimRight(baseURL, "/")}
}

// Revenue returns the revenue growth of every listed and OTC company for the
// report month. Markets that fail are skipped; ErrDataNotFound is returned
// only when neither page yields any row.
func (m *MOPS) Revenue(ctx context.Context, month time.Time) (models.RevenueMap, error) {
	out := make(models.RevenueMap)
	var lastErr error
	for _, market := range []string{"sii", "otc"} {
		url := fmt.Sprintf("%s/nas/t21/%s/t21sc03_%d_%d_0.html", m.baseURL, market, utils.ROCYear(month), int(month.Month()))
		body, err := m.client.Get(ctx, sourceMOPS, url, nil)
		if err != nil {
			lastErr = err
			continue
		}
		rows, err := ParseRevenueHTML(body)
		if err != nil {
			lastErr = err
			continue
		}
		for code, g := range rows {
			out[code] = g
		}
	}
	if len(out) == 0 {
		if lastErr == nil {
			lastErr = apperrors.ErrDataNotFound
		}
		return nil, apperrors.NewDataError(sourceMOPS, month.Format("2006-01"), "no revenue rows", lastErr)
	}
	return out, nil
}

// ParseRevenueHTML extracts yoy and mom growth from every table whose header
// names the company code column. Columns are located by header text, so
// nested headers with colspan and rowspan are flattened first.
func ParseRevenueHTML(body []byte) (models.RevenueMap, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, apperrors.NewDataError(sourceMOPS, "", "parse html", err)
	}

	out := make(models.RevenueMap)
	doc.Find("table").Each(func(_ int, tbl *goquery.Selection) {
		if tbl.Find("table").Length() > 0 {
			return
		}
		headers, dataRows := splitTable(tbl)
		codeCol, yoyCol, momCol := -1, -1, -1
		for i, h := range headers {
			switch {
			case strings.Contains(h, "代號") && codeCol < 0:
				codeCol = i
			case strings.Contains(h, "去年") && strings.Contains(h, "%"):
				yoyCol = i
			case strings.Contains(h, "上月") && strings.Contains(h, "%"):
				momCol = i
			}
		}
		if codeCol < 0 || yoyCol < 0 {
			return
		}
		for _, cells := range dataRows {
			if codeCol >= len(cells) || yoyCol >= len(cells) {
				continue
			}
			code := cells[codeCol]
			if code == "" || strings.Contains(code, "合計") {
				continue
			}
			yoy, ok := utils.ParseNumber(cells[yoyCol])
			if !ok {
				continue
			}
			g := models.RevenueGrowth{YoY: yoy}
			if momCol >= 0 && momCol < len(cells) {
				g.MoM, _ = utils.ParseNumber(cells[momCol])
			}
			out[code] = g
		}
	})
	return out, nil
}

// spanCell is a header cell still covering rows below it.
type spanCell struct {
	text string
	left int
}

// splitTable returns the flattened header names and the text of every data
// row. Header rows are the rows made only of th cells.
func splitTable(tbl *goquery.Selection) ([]string, [][]string) {
	var grid [][]string
	var data [][]string
	pending := map[int]spanCell{}

	tbl.Find("tr").Each(func(_ int, tr *goquery.Selection) {
		th := tr.Find("th")
		td := tr.Find("td")
		if td.Length() > 0 {
			cells := make([]string, 0, td.Length())
			td.Each(func(_ int, c *goquery.Selection) {
				cells = append(cells, compact(c.Text()))
			})
			data = append(data, cells)
			return
		}
		if th.Length() == 0 {
			return
		}

		var row []string
		col := 0
		fill := func() {
			for {
				p, ok := pending[col]
				if !ok {
					return
				}
				row = append(row, p.text)
				if p.left <= 1 {
					delete(pending, col)
				} else {
					pending[col] = spanCell{p.text, p.left - 1}
				}
				col++
			}
		}
		th.Each(func(_ int, c *goquery.Selection) {
			fill()
			text := compact(c.Text())
			rows := attrInt(c, "rowspan")
			for k := 0; k < attrInt(c, "colspan"); k++ {
				row = append(row, text)
				if rows > 1 {
					pending[col] = spanCell{text, rows - 1}
				}
				col++
			}
		})
		fill()
		grid = append(grid, row)
	})

	width := 0
	for _, r := range grid {
		if len(r) > width {
			width = len(r)
		}
	}
	headers := make([]string, width)
	for i := 0; i < width; i++ {
		var parts []string
		for _, r := range grid {
			if i < len(r) && (len(parts) == 0 || parts[len(parts)-1] != r[i]) {
				parts = append(parts, r[i])
			}
		}
		headers[i] = strings.Join(parts, "")
	}
	return headers, data
}

func attrInt(s *goquery.Selection, name string) int {
	v, ok := s.Attr(name)
	if !ok {
		return 1
	}
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil || n < 1 {
		return 1
	}
	return n
}

// compact removes all whitespace, including the full-width space.
func compact(s string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case ' ', '\t', '\n', '\r', '\u3000', '\u00a0':
			return -1
		}
		return r
	}, s)
}
