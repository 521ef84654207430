// Package valuation converts a multi-currency portfolio into base-currency totals.
package valuation

import (
	"fmt"
	"sort"
	"strings"

	"github.com/shopspring/decimal"

	"PortfolioSentinel/internal/model"
)

// Exclusion records a holding or cash balance left out of the valuation.
type Exclusion struct {
	Ticker   string
	Currency string
	Reason   string
}

func (e Exclusion) String() string {
	if e.Ticker != "" {
		return fmt.Sprintf("%s: %s", e.Ticker, e.Reason)
	}
	return fmt.Sprintf("cash %s: %s", e.Currency, e.Reason)
}

// PortfolioValuation is a frozen snapshot of the portfolio in base currency.
type PortfolioValuation struct {
	BaseCurrency   string
	TotalBaseValue float64
	// HoldingValues and Weights are keyed by ticker.
	HoldingValues  map[string]float64
	Weights        map[string]float64
	CashByCurrency map[string]float64
	CashBaseTotal  float64
	Excluded       []Exclusion
}

// IsZero reports whether there is no capital basis to size against.
func (v *PortfolioValuation) IsZero() bool {
	return v == nil || v.TotalBaseValue <= 0
}

// Summary returns the fields kept on a cycle report.
func (v *PortfolioValuation) Summary() model.ValuationSummary {
	s := model.ValuationSummary{
		BaseCurrency:   v.BaseCurrency,
		TotalBaseValue: v.TotalBaseValue,
		CashBaseTotal:  v.CashBaseTotal,
	}
	for _, e := range v.Excluded {
		s.Excluded = append(s.Excluded, e.String())
	}
	return s
}

// Valuate converts holdings and cash into the snapshot's base currency.
// prices is keyed by ticker. Entities whose price or currency cannot be
// resolved are excluded and listed. Valuate does not modify its inputs.
func Valuate(holdings []model.Holding, cash model.CashBalance, fx *model.FxSnapshot, prices map[string]model.Quote) *PortfolioValuation {
	v := &PortfolioValuation{
		HoldingValues:  make(map[string]float64, len(holdings)),
		Weights:        make(map[string]float64, len(holdings)),
		CashByCurrency: make(map[string]float64, len(cash)),
	}
	if fx != nil {
		v.BaseCurrency = fx.Base
	}

	holdingValues := make(map[string]decimal.Decimal, len(holdings))
	tickers := make([]string, 0, len(holdings))
	for _, h := range holdings {
		q, ok := prices[h.Ticker]
		if !ok || q.Price <= 0 {
			v.Excluded = append(v.Excluded, Exclusion{Ticker: h.Ticker, Reason: "no current price"})
			continue
		}
		currency := q.Currency
		if currency == "" {
			currency = h.CostCurrency
		}
		rate, ok := fx.Rate(currency)
		if !ok {
			v.Excluded = append(v.Excluded, Exclusion{Ticker: h.Ticker, Currency: currency, Reason: "no FX rate for " + strings.ToUpper(currency)})
			continue
		}
		value := decimal.NewFromInt(h.Shares).
			Mul(decimal.NewFromFloat(q.Price)).
			Mul(decimal.NewFromFloat(rate))
		if prev, seen := holdingValues[h.Ticker]; seen {
			value = value.Add(prev)
		} else {
			tickers = append(tickers, h.Ticker)
		}
		holdingValues[h.Ticker] = value
	}

	currencies := make([]string, 0, len(cash))
	for c := range cash {
		currencies = append(currencies, c)
	}
	sort.Strings(currencies)

	cashTotal := decimal.Zero
	for _, c := range currencies {
		amount := cash[c]
		rate, ok := fx.Rate(c)
		if !ok {
			v.Excluded = append(v.Excluded, Exclusion{Currency: strings.ToUpper(c), Reason: "no FX rate for " + strings.ToUpper(c)})
			continue
		}
		converted := decimal.NewFromFloat(amount).Mul(decimal.NewFromFloat(rate))
		v.CashByCurrency[strings.ToUpper(c)] = converted.InexactFloat64()
		cashTotal = cashTotal.Add(converted)
	}

	sort.Strings(tickers)
	total := cashTotal
	for _, t := range tickers {
		total = total.Add(holdingValues[t])
	}

	v.TotalBaseValue = total.InexactFloat64()
	v.CashBaseTotal = cashTotal.InexactFloat64()
	for _, t := range tickers {
		hv := holdingValues[t]
		v.HoldingValues[t] = hv.InexactFloat64()
		if total.IsPositive() {
			v.Weights[t] = hv.Div(total).InexactFloat64()
		} else {
			v.Weights[t] = 0
		}
	}
	return v
}
