package model

import (
	"fmt"
	"strings"
	"time"
)

// RiskCategory classifies a holding; it drives position caps and stop-loss distance.
type RiskCategory string

const (
	RiskConservative RiskCategory = "conservative"
	RiskModerate     RiskCategory = "moderate"
	RiskAggressive   RiskCategory = "aggressive"
)

// RiskCategories lists every category, most cautious first.
var RiskCategories = []RiskCategory{RiskConservative, RiskModerate, RiskAggressive}

// ParseRiskCategory parses a category name, case-insensitively.
func ParseRiskCategory(s string) (RiskCategory, error) {
	switch RiskCategory(strings.ToLower(strings.TrimSpace(s))) {
	case RiskConservative:
		return RiskConservative, nil
	case RiskModerate:
		return RiskModerate, nil
	case RiskAggressive:
		return RiskAggressive, nil
	}
	return "", fmt.Errorf("unknown risk category %q", s)
}

// Holding is one position in the portfolio.
type Holding struct {
	Ticker       string       `json:"ticker" yaml:"ticker"`
	Exchange     string       `json:"exchange" yaml:"exchange"`
	Shares       int64        `json:"shares" yaml:"shares"`
	CostBasis    float64      `json:"cost_basis" yaml:"cost_basis"`
	CostCurrency string       `json:"cost_currency" yaml:"cost_currency"`
	AcquiredAt   time.Time    `json:"acquired_at" yaml:"acquired_at"`
	Risk         RiskCategory `json:"risk_category" yaml:"risk_category"`
}

// CashBalance maps an ISO currency code to a non-negative amount.
type CashBalance map[string]float64

// FxSnapshot maps currency codes to their rate into the base currency.
// A published snapshot is never modified.
type FxSnapshot struct {
	Base       string
	Rates      map[string]float64
	CapturedAt time.Time
}

// NewFxSnapshot copies rates into a new snapshot.
func NewFxSnapshot(base string, rates map[string]float64, capturedAt time.Time) *FxSnapshot {
	cp := make(map[string]float64, len(rates)+1)
	for k, v := range rates {
		cp[strings.ToUpper(k)] = v
	}
	base = strings.ToUpper(base)
	cp[base] = 1
	return &FxSnapshot{Base: base, Rates: cp, CapturedAt: capturedAt}
}

// Rate returns the multiplier converting one unit of currency into the base currency.
func (s *FxSnapshot) Rate(currency string) (float64, bool) {
	if s == nil {
		return 0, false
	}
	currency = strings.ToUpper(currency)
	if currency == s.Base {
		return 1, true
	}
	r, ok := s.Rates[currency]
	if !ok || r <= 0 {
		return 0, false
	}
	return r, true
}

// WatchItem is a ticker evaluated for buys even though it is not held.
type WatchItem struct {
	Ticker   string       `yaml:"ticker"`
	Exchange string       `yaml:"exchange"`
	Risk     RiskCategory `yaml:"risk_category"`
}
