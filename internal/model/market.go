package model

import "time"

// OHLCV represents a single candlestick bar.
type OHLCV struct {
	Time   time.Time
	Open   float64
	High   float64
	Low    float64
	Close  float64
	Volume float64
}

// PriceSeries holds raw daily price data for one ticker.
type PriceSeries struct {
	Ticker    string
	Exchange  string
	Currency  string
	DailyBars []OHLCV
	FetchedAt time.Time
}

// Closes returns the closing prices in bar order.
func (p *PriceSeries) Closes() []float64 {
	closes := make([]float64, len(p.DailyBars))
	for i, b := range p.DailyBars {
		closes[i] = b.Close
	}
	return closes
}

// Quote is the latest traded price of a ticker in its listing currency.
type Quote struct {
	Price    float64
	Currency string
	AsOf     time.Time
}
