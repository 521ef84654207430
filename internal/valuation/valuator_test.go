package valuation

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"PortfolioSentinel/internal/model"
)

var captured = time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)

func itrPortfolio() ([]model.Holding, model.CashBalance, *model.FxSnapshot, map[string]model.Quote) {
	holdings := []model.Holding{{
		Ticker: "ITR", Exchange: "TSX-V", Shares: 4657, CostBasis: 5.71, CostCurrency: "CAD",
		Risk: model.RiskAggressive,
	}}
	cash := model.CashBalance{"CHF": 800}
	fx := model.NewFxSnapshot("CHF", map[string]float64{"CAD": 0.68}, captured)
	prices := map[string]model.Quote{"ITR": {Price: 6.00, Currency: "CAD"}}
	return holdings, cash, fx, prices
}

func TestValuate_MultiCurrencyScenario(t *testing.T) {
	v := Valuate(itrPortfolio())

	assert.Equal(t, "CHF", v.BaseCurrency)
	assert.Equal(t, 19000.56, v.HoldingValues["ITR"])
	assert.Equal(t, 800.0, v.CashBaseTotal)
	assert.Equal(t, 19800.56, v.TotalBaseValue)
	assert.InDelta(t, 19000.56/19800.56, v.Weights["ITR"], 1e-12)
	assert.Empty(t, v.Excluded)
}

func TestValuate_Idempotent(t *testing.T) {
	holdings, cash, fx, prices := itrPortfolio()
	holdings = append(holdings, model.Holding{Ticker: "NESN", Shares: 12, CostCurrency: "CHF", Risk: model.RiskConservative})
	cash["USD"] = 1234.56
	cash["EUR"] = 99.99
	fx = model.NewFxSnapshot("CHF", map[string]float64{"CAD": 0.68, "USD": 0.88, "EUR": 0.95}, captured)
	prices["NESN"] = model.Quote{Price: 87.3, Currency: "CHF"}

	first := Valuate(holdings, cash, fx, prices)
	second := Valuate(holdings, cash, fx, prices)
	assert.Equal(t, first.TotalBaseValue, second.TotalBaseValue)
	assert.Equal(t, first.CashBaseTotal, second.CashBaseTotal)
	assert.Equal(t, first, second)
	// Inputs untouched.
	assert.Len(t, holdings, 2)
	assert.Equal(t, 0.68, fx.Rates["CAD"])
}

func TestValuate_ExcludesUnresolvedEntities(t *testing.T) {
	holdings := []model.Holding{
		{Ticker: "AAPL", Shares: 10, CostCurrency: "USD"},
		{Ticker: "SONY", Shares: 5, CostCurrency: "JPY"},
		{Ticker: "GONE", Shares: 3, CostCurrency: "USD"},
	}
	cash := model.CashBalance{"USD": 100, "HKD": 50}
	fx := model.NewFxSnapshot("CHF", map[string]float64{"USD": 0.9}, captured)
	prices := map[string]model.Quote{
		"AAPL": {Price: 200, Currency: "USD"},
		"SONY": {Price: 3000, Currency: "JPY"},
	}

	v := Valuate(holdings, cash, fx, prices)
	assert.InDelta(t, 10*200*0.9+100*0.9, v.TotalBaseValue, 1e-9)
	require.Len(t, v.Excluded, 3)
	assert.Equal(t, "SONY", v.Excluded[0].Ticker)
	assert.Equal(t, "GONE", v.Excluded[1].Ticker)
	assert.Equal(t, "HKD", v.Excluded[2].Currency)
	_, ok := v.HoldingValues["SONY"]
	assert.False(t, ok)
}

func TestValuate_ZeroTotal(t *testing.T) {
	fx := model.NewFxSnapshot("CHF", nil, captured)
	v := Valuate([]model.Holding{{Ticker: "X", Shares: 0, CostCurrency: "CHF"}}, model.CashBalance{}, fx,
		map[string]model.Quote{"X": {Price: 10, Currency: "CHF"}})
	assert.True(t, v.IsZero())
	assert.Equal(t, 0.0, v.Weights["X"])
}
