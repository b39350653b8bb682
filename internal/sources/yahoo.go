package sources

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	apperrors "tw-screener/internal/errors"
	"tw-screener/internal/models"
	"tw-screener/pkg/utils"
)

// DefaultYahooBaseURL serves the chart and quoteSummary APIs.
const DefaultYahooBaseURL = "https://query1.finance.yahoo.com"

const sourceYahoo = "yahoo"

type yahooChartResponse struct {
	Chart struct {
		Result []struct {
			Timestamp  []int64 `json:"timestamp"`
			Indicators struct {
				Quote []struct {
					Open   []*float64 `json:"open"`
					High   []*float64 `json:"high"`
					Low    []*float64 `json:"low"`
					Close  []*float64 `json:"close"`
					Volume []*int64   `json:"volume"`
				} `json:"quote"`
			} `json:"indicators"`
		} `json:"result"`
		Error *struct {
			Code        string `json:"code"`
			Description string `json:"description"`
		} `json:"error"`
	} `json:"chart"`
}

type yahooValue struct {
	Raw *float64 `json:"raw"`
}

type yahooSummaryResponse struct {
	QuoteSummary struct {
		Result []struct {
			DefaultKeyStatistics struct {
				TrailingEps yahooValue `json:"trailingEps"`
			} `json:"defaultKeyStatistics"`
			SummaryDetail struct {
				TrailingPE yahooValue `json:"trailingPE"`
			} `json:"summaryDetail"`
			FinancialData struct {
				ReturnOnEquity yahooValue `json:"returnOnEquity"`
			} `json:"financialData"`
		} `json:"result"`
		Error *struct {
			Code        string `json:"code"`
			Description string `json:"description"`
		} `json:"error"`
	} `json:"quoteSummary"`
}

// Yahoo reads daily candles and valuation data from Yahoo Finance.
type Yahoo struct {
	client  *Client
	baseURL string
}

// NewYahoo creates a Yahoo Finance reader. An empty baseURL uses the public API.
func NewYahoo(client *Client, baseURL string) *Yahoo {
	if baseURL == "" {
		baseURL = DefaultYahooBaseURL
	}
	return &Yahoo{client: client, baseURL: strings.TrimRight(baseURL, "/")}
}

// FetchCandles returns daily candles over period ("6mo", "1y", "5y", ...),
// oldest first. Bars with a missing open, high, low or close are dropped.
func (y *Yahoo) FetchCandles(ctx context.Context, symbol, period string) ([]models.Candle, error) {
	if period == "" {
		period = "1y"
	}
	var resp yahooChartResponse
	err := y.client.GetJSON(ctx, sourceYahoo, y.baseURL+"/v8/finance/chart/"+url.PathEscape(symbol), map[string]string{
		"range":    period,
		"interval": "1d",
	}, &resp)
	if err != nil {
		return nil, withSymbol(err, symbol)
	}
	if resp.Chart.Error != nil {
		return nil, apperrors.NewDataError(sourceYahoo, symbol, resp.Chart.Error.Description, apperrors.ErrDataNotFound)
	}
	if len(resp.Chart.Result) == 0 || len(resp.Chart.Result[0].Indicators.Quote) == 0 {
		return nil, apperrors.NewDataError(sourceYahoo, symbol, "empty chart", apperrors.ErrDataNotFound)
	}

	result := resp.Chart.Result[0]
	q := result.Indicators.Quote[0]
	candles := make([]models.Candle, 0, len(result.Timestamp))
	for i, ts := range result.Timestamp {
		o, h, l, c := at(q.Open, i), at(q.High, i), at(q.Low, i), at(q.Close, i)
		if o == nil || h == nil || l == nil || c == nil {
			continue
		}
		var vol int64
		if i < len(q.Volume) && q.Volume[i] != nil {
			vol = *q.Volume[i]
		}
		candles = append(candles, models.Candle{
			Date:   utils.DayStart(time.Unix(ts, 0)),
			Open:   *o,
			High:   *h,
			Low:    *l,
			Close:  *c,
			Volume: vol,
		})
	}
	if len(candles) == 0 {
		return nil, apperrors.NewDataError(sourceYahoo, symbol, "no complete bars", apperrors.ErrDataNotFound)
	}
	return candles, nil
}

func at(values []*float64, i int) *float64 {
	if i < len(values) {
		return values[i]
	}
	return nil
}

// FetchCloses returns the closing prices over period, oldest first.
func (y *Yahoo) FetchCloses(ctx context.Context, symbol, period string) ([]float64, error) {
	candles, err := y.FetchCandles(ctx, symbol, period)
	if err != nil {
		return nil, err
	}
	closes := make([]float64, len(candles))
	for i, c := range candles {
		closes[i] = c.Close
	}
	return closes, nil
}

// FetchFundamentals returns trailing EPS, trailing P/E and ROE. Any field
// Yahoo does not report is nil.
func (y *Yahoo) FetchFundamentals(ctx context.Context, symbol string) (models.Fundamentals, error) {
	var resp yahooSummaryResponse
	err := y.client.GetJSON(ctx, sourceYahoo, y.baseURL+"/v10/finance/quoteSummary/"+url.PathEscape(symbol), map[string]string{
		"modules": "defaultKeyStatistics,summaryDetail,financialData",
	}, &resp)
	if err != nil {
		return models.Fundamentals{}, withSymbol(err, symbol)
	}
	if resp.QuoteSummary.Error != nil || len(resp.QuoteSummary.Result) == 0 {
		msg := "empty quote summary"
		if resp.QuoteSummary.Error != nil {
			msg = resp.QuoteSummary.Error.Description
		}
		return models.Fundamentals{}, apperrors.NewDataError(sourceYahoo, symbol, msg, apperrors.ErrDataNotFound)
	}
	r := resp.QuoteSummary.Result[0]
	return models.Fundamentals{
		EPS: r.DefaultKeyStatistics.TrailingEps.Raw,
		PE:  r.SummaryDetail.TrailingPE.Raw,
		ROE: r.FinancialData.ReturnOnEquity.Raw,
	}, nil
}

// withSymbol fills in the symbol of a DataError raised by the client.
func withSymbol(err error, symbol string) error {
	var de *apperrors.DataError
	if apperrors.As(err, &de) && de.Symbol == "" {
		return apperrors.NewDataError(de.Source, symbol, de.Message, de.Err)
	}
	return fmt.Errorf("%s: %w", symbol, err)
}
