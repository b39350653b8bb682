// Package models provides domain models for the Taiwan equities screener.
package models

import (
	"strings"
	"time"
)

// Market identifies the venue an instrument trades on.
type Market string

const (
	MarketTWSE Market = "TWSE" // 上市
	MarketTPEx Market = "TPEx" // 上櫃
)

// Suffix returns the Yahoo Finance ticker suffix for the market.
func (m Market) Suffix() string {
	if m == MarketTPEx {
		return ".TWO"
	}
	return ".TW"
}

// Candle represents one daily OHLCV bar. Date is the trading day at
// midnight Asia/Taipei.
type Candle struct {
	Date   time.Time
	Open   float64
	High   float64
	Low    float64
	Close  float64
	Volume int64 // shares
}

// Range returns High - Low.
func (c Candle) Range() float64 {
	return c.High - c.Low
}

// EnrichedCandle is a candle with its derived indicators. Indicator fields
// hold NaN until their window is full.
type EnrichedCandle struct {
	Candle
	MA5     float64
	MA20    float64
	MA60    float64
	MA200   float64
	VolMA5  float64
	VolMA60 float64
	RSI     float64
}

// Instrument is a listed stock in the scan universe.
type Instrument struct {
	Code   string
	Name   string
	Market Market
	Sector string
}

// Symbol returns the Yahoo Finance ticker, e.g. 2330.TW.
func (i Instrument) Symbol() string {
	return i.Code + i.Market.Suffix()
}

// CodeFromSymbol strips the market suffix from a ticker.
func CodeFromSymbol(symbol string) string {
	if idx := strings.IndexByte(symbol, '.'); idx >= 0 {
		return symbol[:idx]
	}
	return symbol
}

// InstitutionalFlow maps a stock code to the combined net buy of the three
// institutional investor groups, in shares, for a single trading day. An
// empty map means no chip data was available.
type InstitutionalFlow map[string]int64

// RevenueGrowth is the monthly revenue change reported on MOPS, in percent.
type RevenueGrowth struct {
	YoY float64 `json:"yoy"`
	MoM float64 `json:"mom"`
}

// RevenueMap maps a stock code to its latest monthly revenue growth.
type RevenueMap map[string]RevenueGrowth

// MarginChange maps a stock code to the day-over-day change of its margin
// purchase balance, in lots.
type MarginChange map[string]float64

// Fundamentals holds valuation data. Nil fields are absent.
type Fundamentals struct {
	EPS *float64 `json:"eps,omitempty"`
	PE  *float64 `json:"pe,omitempty"`
	ROE *float64 `json:"roe,omitempty"`
}

// ScanResult is one instrument that passed the rule engine and the post filters.
type ScanResult struct {
	Code       string    `json:"code"`
	Name       string    `json:"name"`
	Sector     string    `json:"sector"`
	Close      float64   `json:"close"`
	Bias       float64   `json:"bias"`
	VolumeLots int64     `json:"volume_lots"`
	RSI        float64   `json:"rsi"`
	NetBuyLots int64     `json:"net_buy_lots"`
	RevenueYoY float64   `json:"revenue_yoy"`
	RevenueMoM float64   `json:"revenue_mom"`
	EPS        *float64  `json:"eps,omitempty"`
	PE         *float64  `json:"pe,omitempty"`
	DataDate   time.Time `json:"data_date"`
	Strategy   string    `json:"strategy"`
	Annotation string    `json:"annotation"`
}

// HistoryRecord is one row of the append-only screening history log.
// (ScreenDate, Code, Strategy) identifies a row.
type HistoryRecord struct {
	ScreenDate string  `csv:"screen_date" json:"screen_date"` // YYYY-MM-DD
	Code       string  `csv:"code" json:"code"`
	Name       string  `csv:"name" json:"name"`
	Sector     string  `csv:"sector" json:"sector"`
	Strategy   string  `csv:"strategy" json:"strategy"`
	Close      float64 `csv:"close" json:"close"`
	EntryPrice float64 `csv:"entry_price" json:"entry_price"`
	Bias       float64 `csv:"bias" json:"bias"`
	RSI        float64 `csv:"rsi" json:"rsi"`
	NetBuyLots int64   `csv:"net_buy_lots" json:"net_buy_lots"`
	RevenueYoY float64 `csv:"revenue_yoy" json:"revenue_yoy"`
	Annotation string  `csv:"annotation" json:"annotation"`
}

// Key returns the dedup key of the record.
func (r HistoryRecord) Key() string {
	return r.ScreenDate + "|" + r.Code + "|" + r.Strategy
}
