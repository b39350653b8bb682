package sources

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	apperrors "tw-screener/internal/errors"
	"tw-screener/internal/models"
	"tw-screener/internal/trading"
	"tw-screener/pkg/utils"
)

// DefaultTWSEBaseURL is the Taiwan Stock Exchange site.
const DefaultTWSEBaseURL = "https://www.twse.com.tw"

const sourceTWSE = "twse"

// twseReport is the envelope of the TWSE rwd JSON endpoints. Single-table
// reports put fields/data at the top level, multi-table reports use tables.
type twseReport struct {
	Stat   string          `json:"stat"`
	Date   string          `json:"date"`
	Fields []string        `json:"fields"`
	Data   [][]interface{} `json:"data"`
	Tables []table         `json:"tables"`
}

func (r twseReport) ok() bool {
	return strings.EqualFold(r.Stat, "OK")
}

func (r twseReport) tables() []table {
	out := make([]table, 0, len(r.Tables)+1)
	if len(r.Fields) > 0 {
		out = append(out, table{Fields: r.Fields, Data: r.Data})
	}
	return append(out, r.Tables...)
}

func (r twseReport) find(names ...string) (table, bool) {
	for _, t := range r.tables() {
		if t.has(names...) {
			return t, true
		}
	}
	return table{}, false
}

// TWSE reads the listed market reports.
type TWSE struct {
	client  *Client
	baseURL string
}

// NewTWSE creates a TWSE reader. An empty baseURL uses the public site.
func NewTWSE(client *Client, baseURL string) *TWSE {
	if baseURL == "" {
		baseURL = DefaultTWSEBaseURL
	}
	return &TWSE{client: client, baseURL: strings.TrimRight(baseURL, "/")}
}

func (t *TWSE) report(ctx context.Context, path string, date time.Time, extra map[string]string) (twseReport, error) {
	query := map[string]string{"response": "json"}
	for k, v := range extra {
		query[k] = v
	}
	if !date.IsZero() {
		query["date"] = utils.DateKey(date)
	}

	var r twseReport
	if err := t.client.GetJSON(ctx, sourceTWSE, t.baseURL+path, query, &r); err != nil {
		return r, err
	}
	if !r.ok() {
		return r, apperrors.NewDataError(sourceTWSE, path, fmt.Sprintf("stat %q", r.Stat), apperrors.ErrDataNotFound)
	}
	return r, nil
}

func reportDate(r twseReport, fallback time.Time) time.Time {
	if d, err := utils.ParseDateKey(r.Date); err == nil {
		return d
	}
	return fallback
}

// InstitutionalRows returns the T86 three-institution net buy per stock. A
// zero date asks for the latest report; the report date is returned.
func (t *TWSE) InstitutionalRows(ctx context.Context, date time.Time) ([]trading.FlowRow, time.Time, error) {
	r, err := t.report(ctx, "/rwd/zh/fund/T86", date, map[string]string{"selectType": "ALL"})
	if err != nil {
		return nil, time.Time{}, err
	}
	tbl, ok := r.find("證券代號", "三大法人買賣超股數")
	if !ok {
		return nil, time.Time{}, apperrors.NewDataError(sourceTWSE, "T86", "missing columns", apperrors.ErrDataNotFound)
	}
	codeCol, nameCol, netCol := tbl.col("證券代號"), tbl.col("證券名稱"), tbl.col("三大法人買賣超股數")

	rows := make([]trading.FlowRow, 0, len(tbl.Data))
	for _, row := range tbl.Data {
		code := cell(row, codeCol)
		if code == "" {
			continue
		}
		rows = append(rows, trading.FlowRow{Code: code, Name: cell(row, nameCol), NetBuy: cellInt(row, netCol)})
	}
	return rows, reportDate(r, date), nil
}

// MarginChange returns the MI_MARGN day-over-day margin purchase change per
// stock on date.
func (t *TWSE) MarginChange(ctx context.Context, date time.Time) (models.MarginChange, error) {
	r, err := t.report(ctx, "/rwd/zh/margin/MI_MARGN", date, map[string]string{"selectType": "STOCK"})
	if err != nil {
		return nil, err
	}

	var tbl table
	var codeCol, prevCol, todayCol int
	found := false
	for _, candidate := range r.tables() {
		if candidate.has("股票代號", "融資今日餘額") {
			tbl, codeCol, prevCol, todayCol = candidate, candidate.col("股票代號"), candidate.col("融資前日餘額"), candidate.col("融資今日餘額")
			found = true
			break
		}
		// Current layout: 代號, 名稱, then margin purchase columns first.
		if candidate.has("代號", "今日餘額", "前日餘額") {
			tbl, codeCol, prevCol, todayCol = candidate, candidate.col("代號"), candidate.col("前日餘額"), candidate.col("今日餘額")
			found = true
			break
		}
	}
	if !found {
		return nil, apperrors.NewDataError(sourceTWSE, "MI_MARGN", "missing columns", apperrors.ErrDataNotFound)
	}

	out := make(models.MarginChange, len(tbl.Data))
	for _, row := range tbl.Data {
		code := cell(row, codeCol)
		if code == "" {
			continue
		}
		out[code] = float64(cellInt(row, todayCol)-cellInt(row, prevCol)) / 1000
	}
	return out, nil
}

var tagPattern = regexp.MustCompile(`<[^>]*>`)

// parseSign reads the direction cell, which TWSE wraps in coloured HTML.
func parseSign(s string) int {
	switch strings.TrimSpace(tagPattern.ReplaceAllString(s, "")) {
	case "+":
		return 1
	case "-":
		return -1
	}
	return 0
}

// Quotes returns the MI_INDEX daily quotes of every listed stock on date.
func (t *TWSE) Quotes(ctx context.Context, date time.Time) ([]trading.QuoteRow, error) {
	r, err := t.report(ctx, "/rwd/zh/afterTrading/MI_INDEX", date, map[string]string{"type": "ALLBUT0999"})
	if err != nil {
		return nil, err
	}
	tbl, ok := r.find("證券代號", "收盤價")
	if !ok {
		return nil, apperrors.NewDataError(sourceTWSE, "MI_INDEX", "missing quote table", apperrors.ErrDataNotFound)
	}
	codeCol, nameCol := tbl.col("證券代號"), tbl.col("證券名稱")
	closeCol, signCol, diffCol, turnoverCol := tbl.col("收盤價"), tbl.col("漲跌(+/-)"), tbl.col("漲跌價差"), tbl.col("成交金額")

	rows := make([]trading.QuoteRow, 0, len(tbl.Data))
	for _, row := range tbl.Data {
		code := cell(row, codeCol)
		if code == "" {
			continue
		}
		closePrice, _ := cellNumber(row, closeCol)
		diff, _ := cellNumber(row, diffCol)
		turnover, _ := cellNumber(row, turnoverCol)
		rows = append(rows, trading.QuoteRow{
			Code:     code,
			Name:     cell(row, nameCol),
			Close:    closePrice,
			Change:   diff,
			Sign:     parseSign(cell(row, signCol)),
			Turnover: turnover,
		})
	}
	return rows, nil
}

// SectorTurnover returns the BFIAMU industry turnover. A zero date asks for
// the latest report; the report date is returned.
func (t *TWSE) SectorTurnover(ctx context.Context, date time.Time) ([]trading.SectorTurnover, time.Time, error) {
	r, err := t.report(ctx, "/rwd/zh/afterTrading/BFIAMU", date, nil)
	if err != nil {
		return nil, time.Time{}, err
	}
	tbl, ok := r.find("分類指數名稱", "成交金額")
	if !ok {
		return nil, time.Time{}, apperrors.NewDataError(sourceTWSE, "BFIAMU", "missing columns", apperrors.ErrDataNotFound)
	}
	nameCol, turnoverCol := tbl.col("分類指數名稱"), tbl.col("成交金額")

	rows := make([]trading.SectorTurnover, 0, len(tbl.Data))
	for _, row := range tbl.Data {
		name := cell(row, nameCol)
		if name == "" {
			continue
		}
		v, _ := cellNumber(row, turnoverCol)
		rows = append(rows, trading.SectorTurnover{Sector: name, Turnover: v})
	}
	return rows, reportDate(r, date), nil
}
