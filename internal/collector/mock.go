package collector

import (
	"context"
	"fmt"
	"time"

	"PortfolioSentinel/internal/model"
)

// MockFetcher returns controllable fixed data for development and testing.
type MockFetcher struct {
	Currency  string
	Prices    map[string]float64
	DailyData map[string][]model.OHLCV
	// Fail lists symbols that return an error.
	Fail map[string]bool
}

func (m *MockFetcher) Name() string { return "mock" }

func (m *MockFetcher) FetchDailyBars(_ context.Context, symbol string, days int) (*model.PriceSeries, error) {
	if m.Fail[symbol] {
		return nil, fmt.Errorf("mock: no data for %s", symbol)
	}
	bars, ok := m.DailyData[symbol]
	if !ok {
		price, ok := m.Prices[symbol]
		if !ok {
			return nil, fmt.Errorf("mock: unknown symbol %s", symbol)
		}
		bars = generateMockBars(price, days)
	}
	return &model.PriceSeries{Ticker: symbol, Currency: m.currency(), DailyBars: bars, FetchedAt: time.Now()}, nil
}

func (m *MockFetcher) FetchQuote(_ context.Context, symbol string) (model.Quote, error) {
	if m.Fail[symbol] {
		return model.Quote{}, fmt.Errorf("mock: no quote for %s", symbol)
	}
	if price, ok := m.Prices[symbol]; ok {
		return model.Quote{Price: price, Currency: m.currency(), AsOf: time.Now()}, nil
	}
	if bars := m.DailyData[symbol]; len(bars) > 0 {
		last := bars[len(bars)-1]
		return model.Quote{Price: last.Close, Currency: m.currency(), AsOf: last.Time}, nil
	}
	return model.Quote{}, fmt.Errorf("mock: unknown symbol %s", symbol)
}

func (m *MockFetcher) currency() string {
	if m.Currency == "" {
		return "USD"
	}
	return m.Currency
}

func generateMockBars(basePrice float64, count int) []model.OHLCV {
	bars := make([]model.OHLCV, count)
	for i := 0; i < count; i++ {
		p := basePrice * (1 + float64(i-count/2)*0.001)
		bars[i] = model.OHLCV{
			Time:   time.Now().AddDate(0, 0, -(count - i)),
			Open:   p * 0.999,
			High:   p * 1.005,
			Low:    p * 0.995,
			Close:  p,
			Volume: 1000000,
		}
	}
	return bars
}
