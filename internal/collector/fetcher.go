package collector

import (
	"context"
	"strings"

	"PortfolioSentinel/internal/model"
)

// Fetcher defines the interface for fetching market data.
type Fetcher interface {
	FetchDailyBars(ctx context.Context, symbol string, days int) (*model.PriceSeries, error)
	FetchQuote(ctx context.Context, symbol string) (model.Quote, error)
	Name() string
}

// exchangeSuffix maps an exchange code to its Yahoo ticker suffix.
var exchangeSuffix = map[string]string{
	"NYSE":   "",
	"NASDAQ": "",
	"TSX":    ".TO",
	"TSX-V":  ".V",
	"TSXV":   ".V",
	"LSE":    ".L",
	"SIX":    ".SW",
	"XETRA":  ".DE",
	"HKEX":   ".HK",
	"TSE":    ".T",
	"ASX":    ".AX",
	"OSE":    ".OL",
	"STO":    ".ST",
	"CPH":    ".CO",
}

// YahooSymbol converts a ticker listed on exchange into Yahoo Finance
// notation. Tickers that already carry a suffix are returned unchanged.
func YahooSymbol(ticker, exchange string) string {
	if strings.Contains(ticker, ".") || strings.HasPrefix(ticker, "^") {
		return ticker
	}
	return ticker + exchangeSuffix[strings.ToUpper(exchange)]
}
