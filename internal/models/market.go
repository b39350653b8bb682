package models

import "time"

// RankedFlow is one row of the institutional investor ranking.
type RankedFlow struct {
	Code        string `json:"code"`
	Name        string `json:"name"`
	TodayShares int64  `json:"today_shares"`
	PrevShares  int64  `json:"prev_shares"`
	Status      string `json:"status"`
}

// SectorFlow is the turnover share of one industry on two consecutive trading days.
type SectorFlow struct {
	Sector     string  `json:"sector"`
	Turnover   float64 `json:"turnover"` // TWD
	Share      float64 `json:"share"`    // percent of market turnover
	PrevShare  float64 `json:"prev_share"`
	FlowChange float64 `json:"flow_change"`
}

// HeatmapCell is one stock of the daily market heatmap.
type HeatmapCell struct {
	Code      string  `json:"code"`
	Name      string  `json:"name"`
	Sector    string  `json:"sector"`
	Close     float64 `json:"close"`
	ChangePct float64 `json:"change_pct"`
	Turnover  float64 `json:"turnover"`
}

// NewsItem is one headline from the RSS feeds.
type NewsItem struct {
	Title     string    `json:"title"`
	Link      string    `json:"link"`
	Source    string    `json:"source"`
	Published time.Time `json:"published"`
}

// IndexQuote is the latest level of a market index.
type IndexQuote struct {
	Symbol    string  `json:"symbol"`
	Last      float64 `json:"last"`
	Prev      float64 `json:"prev"`
	Change    float64 `json:"change"`
	ChangePct float64 `json:"change_pct"`
}

// SignalRecord is one historical signal found by the backtest driver.
type SignalRecord struct {
	Date        time.Time `json:"date"`
	Close       float64   `json:"close"`
	Bias        float64   `json:"bias"`
	MaxGainPct  float64   `json:"max_gain_pct"`
	MaxHighDate time.Time `json:"max_high_date"`
	HoldingDays int       `json:"holding_days"`
	HasFuture   bool      `json:"has_future"`
}
