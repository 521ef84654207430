package collector

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"PortfolioSentinel/internal/model"
)

const yahooBaseURL = "https://query1.finance.yahoo.com"

// YahooFetcher reads daily bars, quotes, and currency pairs from the
// Yahoo Finance chart endpoint.
type YahooFetcher struct {
	Client  *http.Client
	BaseURL string
}

// NewYahooFetcher creates a new Yahoo Finance fetcher.
func NewYahooFetcher(proxyURL string) *YahooFetcher {
	transport := &http.Transport{}
	if proxyURL != "" {
		if u, err := url.Parse(proxyURL); err == nil {
			transport.Proxy = http.ProxyURL(u)
		}
	}
	return &YahooFetcher{
		Client: &http.Client{
			Timeout:   30 * time.Second,
			Transport: transport,
		},
		BaseURL: yahooBaseURL,
	}
}

// Name identifies the source in logs.
func (f *YahooFetcher) Name() string { return "yahoo" }

// yahooChart is the response structure from Yahoo Finance chart API.
// Series values are null on non-trading days.
type yahooChart struct {
	Chart struct {
		Result []struct {
			Meta struct {
				Currency           string  `json:"currency"`
				Symbol             string  `json:"symbol"`
				RegularMarketPrice float64 `json:"regularMarketPrice"`
				RegularMarketTime  int64   `json:"regularMarketTime"`
			} `json:"meta"`
			Timestamp  []int64 `json:"timestamp"`
			Indicators struct {
				Quote []struct {
					Open   []*float64 `json:"open"`
					High   []*float64 `json:"high"`
					Low    []*float64 `json:"low"`
					Close  []*float64 `json:"close"`
					Volume []*float64 `json:"volume"`
				} `json:"quote"`
			} `json:"indicators"`
		} `json:"result"`
		Error *struct {
			Code        string `json:"code"`
			Description string `json:"description"`
		} `json:"error"`
	} `json:"chart"`
}

// point returns values[i], or false when it is missing or null.
func point(values []*float64, i int) (float64, bool) {
	if i >= len(values) || values[i] == nil {
		return 0, false
	}
	return *values[i], true
}

func (f *YahooFetcher) fetchChart(ctx context.Context, symbol, interval, rng string) (*yahooChart, error) {
	base := f.BaseURL
	if base == "" {
		base = yahooBaseURL
	}
	u := fmt.Sprintf("%s/v8/finance/chart/%s?interval=%s&range=%s",
		strings.TrimRight(base, "/"), url.PathEscape(symbol), interval, rng)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", "Mozilla/5.0")

	resp, err := f.Client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("yahoo fetch: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("yahoo read body: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("yahoo: status %d, body: %s", resp.StatusCode, string(body))
	}

	var chart yahooChart
	if err := json.Unmarshal(body, &chart); err != nil {
		return nil, fmt.Errorf("yahoo decode: %w", err)
	}
	if chart.Chart.Error != nil {
		return nil, fmt.Errorf("yahoo api error: %s", chart.Chart.Error.Description)
	}
	if len(chart.Chart.Result) == 0 {
		return nil, fmt.Errorf("yahoo: no data returned for %s", symbol)
	}
	return &chart, nil
}

func chartBars(chart *yahooChart) []model.OHLCV {
	result := chart.Chart.Result[0]
	if len(result.Indicators.Quote) == 0 {
		return nil
	}
	quote := result.Indicators.Quote[0]
	bars := make([]model.OHLCV, 0, len(result.Timestamp))

	for i, ts := range result.Timestamp {
		c, ok := point(quote.Close, i)
		if !ok || c <= 0 {
			continue
		}
		bar := model.OHLCV{Time: time.Unix(ts, 0), Open: c, High: c, Low: c, Close: c}
		if v, ok := point(quote.Open, i); ok {
			bar.Open = v
		}
		if v, ok := point(quote.High, i); ok {
			bar.High = v
		}
		if v, ok := point(quote.Low, i); ok {
			bar.Low = v
		}
		bar.Volume, _ = point(quote.Volume, i)
		bars = append(bars, bar)
	}

	sort.Slice(bars, func(i, j int) bool { return bars[i].Time.Before(bars[j].Time) })
	return bars
}

// minorUnits maps Yahoo's subunit currency codes to their ISO currency. The
// codes are case sensitive: "GBp" is pence, "GBP" is pounds.
var minorUnits = map[string]string{
	"GBp": "GBP",
	"GBX": "GBP",
	"ZAc": "ZAR",
	"ZAC": "ZAR",
	"ILA": "ILS",
}

// listingCurrency returns the ISO code for a Yahoo currency and the divisor
// that converts quoted prices into it.
func listingCurrency(code string) (string, float64) {
	if iso, ok := minorUnits[code]; ok {
		return iso, 100
	}
	return strings.ToUpper(code), 1
}

func (f *YahooFetcher) FetchDailyBars(ctx context.Context, symbol string, days int) (*model.PriceSeries, error) {
	chart, err := f.fetchChart(ctx, symbol, "1d", chartRange(days))
	if err != nil {
		return nil, err
	}
	bars := chartBars(chart)
	if len(bars) == 0 {
		return nil, fmt.Errorf("yahoo: no bars for %s", symbol)
	}
	if len(bars) > days {
		bars = bars[len(bars)-days:]
	}
	currency, div := listingCurrency(chart.Chart.Result[0].Meta.Currency)
	if div != 1 {
		for i := range bars {
			bars[i].Open /= div
			bars[i].High /= div
			bars[i].Low /= div
			bars[i].Close /= div
		}
	}
	return &model.PriceSeries{
		Ticker:    symbol,
		Currency:  currency,
		DailyBars: bars,
		FetchedAt: time.Now(),
	}, nil
}

// chartRange picks the shortest Yahoo range covering days calendar days.
// More than a year of trading days needs the two-year range.
func chartRange(days int) string {
	switch {
	case days <= 20:
		return "1mo"
	case days <= 60:
		return "3mo"
	case days <= 120:
		return "6mo"
	case days <= 250:
		return "1y"
	case days <= 500:
		return "2y"
	default:
		return "5y"
	}
}

// FetchQuote returns the regular market price and its listing currency.
// Prices quoted in a subunit such as pence are converted to the main unit.
func (f *YahooFetcher) FetchQuote(ctx context.Context, symbol string) (model.Quote, error) {
	chart, err := f.fetchChart(ctx, symbol, "1d", "1d")
	if err != nil {
		return model.Quote{}, err
	}
	meta := chart.Chart.Result[0].Meta
	price := meta.RegularMarketPrice
	asOf := time.Unix(meta.RegularMarketTime, 0)
	if price <= 0 {
		bars := chartBars(chart)
		if len(bars) == 0 {
			return model.Quote{}, fmt.Errorf("yahoo: no price data for %s", symbol)
		}
		price = bars[len(bars)-1].Close
		asOf = bars[len(bars)-1].Time
	}
	currency, div := listingCurrency(meta.Currency)
	return model.Quote{Price: price / div, Currency: currency, AsOf: asOf}, nil
}

// FetchRate returns how many units of quote one unit of base buys, using the
// Yahoo "BASEQUOTE=X" currency pair.
func (f *YahooFetcher) FetchRate(ctx context.Context, base, quote string) (float64, error) {
	q, err := f.FetchQuote(ctx, strings.ToUpper(base+quote)+"=X")
	if err != nil {
		return 0, err
	}
	if q.Price <= 0 {
		return 0, fmt.Errorf("yahoo: non-positive rate %s/%s", base, quote)
	}
	return q.Price, nil
}
