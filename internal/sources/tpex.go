package sources

import (
	"context"
	"strings"
	"time"

	apperrors "tw-screener/internal/errors"
	"tw-screener/internal/models"
	"tw-screener/pkg/utils"
)

// DefaultTPExBaseURL is the Taipei Exchange site.
const DefaultTPExBaseURL = "https://www.tpex.org.tw"

const sourceTPEx = "tpex"

// tpexReport accepts both the legacy aaData layout and the tables layout.
type tpexReport struct {
	AaData [][]interface{} `json:"aaData"`
	Tables []table         `json:"tables"`
}

func (r tpexReport) rows() [][]interface{} {
	if len(r.AaData) > 0 {
		return r.AaData
	}
	for _, t := range r.Tables {
		if len(t.Data) > 0 {
			return t.Data
		}
	}
	return nil
}

// TPEx reads the OTC market reports. Dates are sent in the Minguo calendar.
type TPEx struct {
	client  *Client
	baseURL string
}

// NewTPEx creates a TPEx reader. An empty baseURL uses the public site.
func NewTPEx(client *Client, baseURL string) *TPEx {
	if baseURL == "" {
		baseURL = DefaultTPExBaseURL
	}
	return &TPEx{client: client, baseURL: strings.TrimRight(baseURL, "/")}
}

func (t *TPEx) rows(ctx context.Context, path string, query map[string]string) ([][]interface{}, error) {
	var r tpexReport
	if err := t.client.GetJSON(ctx, sourceTPEx, t.baseURL+path, query, &r); err != nil {
		return nil, err
	}
	rows := r.rows()
	if len(rows) == 0 {
		return nil, apperrors.NewDataError(sourceTPEx, path, "empty report", apperrors.ErrDataNotFound)
	}
	return rows, nil
}

// InstitutionalFlow returns the three-institution net buy per OTC stock,
// taken from the last column of the hedge report.
func (t *TPEx) InstitutionalFlow(ctx context.Context, date time.Time) (models.InstitutionalFlow, error) {
	rows, err := t.rows(ctx, "/web/stock/3insti/daily_trade/3itrade_hedge_result.php", map[string]string{
		"l": "zh-tw", "o": "json", "se": "EW", "t": "D", "d": utils.ROCDate(date),
	})
	if err != nil {
		return nil, err
	}
	flow := make(models.InstitutionalFlow, len(rows))
	for _, row := range rows {
		code := cell(row, 0)
		if code == "" || len(row) == 0 {
			continue
		}
		if v, ok := cellNumber(row, len(row)-1); ok {
			flow[code] = int64(v)
		}
	}
	return flow, nil
}

// MarginChange returns the OTC margin purchase change: today's balance
// (column 6) minus the previous balance (column 2), divided by 1000.
func (t *TPEx) MarginChange(ctx context.Context, date time.Time) (models.MarginChange, error) {
	rows, err := t.rows(ctx, "/web/stock/margin_trading/margin_balance/margin_bal_result.php", map[string]string{
		"l": "zh-tw", "o": "json", "d": utils.ROCDate(date), "s": "0,asc,0",
	})
	if err != nil {
		return nil, err
	}
	out := make(models.MarginChange, len(rows))
	for _, row := range rows {
		code := cell(row, 0)
		if code == "" || len(row) < 7 {
			continue
		}
		today, ok1 := cellNumber(row, 6)
		prev, ok2 := cellNumber(row, 2)
		if !ok1 || !ok2 {
			continue
		}
		out[code] = (today - prev) / 1000
	}
	return out, nil
}
