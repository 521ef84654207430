// Package sizing turns an action into a share quantity and a stop-loss price.
package sizing

import (
	"fmt"

	"github.com/shopspring/decimal"

	apperrors "PortfolioSentinel/internal/errors"
	"PortfolioSentinel/internal/model"
	"PortfolioSentinel/internal/valuation"
)

// Config holds per-category position caps and stop-loss distances, both as fractions.
type Config struct {
	PositionCaps map[model.RiskCategory]float64 `yaml:"position_caps"`
	StopLoss     map[model.RiskCategory]float64 `yaml:"stop_loss"`
}

// DefaultConfig returns caps of 25/15/10% and stop-losses of 8/12/18%.
func DefaultConfig() Config {
	return Config{
		PositionCaps: map[model.RiskCategory]float64{
			model.RiskConservative: 0.25,
			model.RiskModerate:     0.15,
			model.RiskAggressive:   0.10,
		},
		StopLoss: map[model.RiskCategory]float64{
			model.RiskConservative: 0.08,
			model.RiskModerate:     0.12,
			model.RiskAggressive:   0.18,
		},
	}
}

// Validate checks that every category is configured and caps shrink as risk grows.
func (c Config) Validate() error {
	prev := 1.0
	for _, rc := range model.RiskCategories {
		capFrac, ok := c.PositionCaps[rc]
		if !ok || capFrac <= 0 || capFrac > 1 {
			return apperrors.NewConfigError("engine.position_caps."+string(rc), "must be in (0, 1], got %.4f", capFrac)
		}
		if capFrac > prev {
			return apperrors.NewConfigError("engine.position_caps."+string(rc), "cap %.4f exceeds the cap of a more cautious category", capFrac)
		}
		prev = capFrac
		sl, ok := c.StopLoss[rc]
		if !ok || sl <= 0 || sl >= 1 {
			return apperrors.NewConfigError("engine.stop_loss."+string(rc), "must be in (0, 1), got %.4f", sl)
		}
	}
	return nil
}

// Sizer computes trade sizes against a frozen valuation.
type Sizer struct {
	cfg Config
}

// NewSizer validates cfg.
func NewSizer(cfg Config) (*Sizer, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Sizer{cfg: cfg}, nil
}

// Cap returns the position cap fraction of a category.
func (s *Sizer) Cap(risk model.RiskCategory) float64 {
	return s.cfg.PositionCaps[risk]
}

// Concentration returns a ticker's current base value over its cap value.
// It is 0 for tickers not held or when the portfolio has no value.
func (s *Sizer) Concentration(ticker string, risk model.RiskCategory, val *valuation.PortfolioValuation) float64 {
	if val.IsZero() {
		return 0
	}
	capValue := decimal.NewFromFloat(s.Cap(risk)).Mul(decimal.NewFromFloat(val.TotalBaseValue))
	if !capValue.IsPositive() {
		return 0
	}
	return decimal.NewFromFloat(val.HoldingValues[ticker]).Div(capValue).InexactFloat64()
}

// Request describes one sizing decision. Holding is nil for tickers not held.
type Request struct {
	Ticker  string
	Action  model.Action
	Holding *model.Holding
	Quote   model.Quote
	Risk    model.RiskCategory
}

// Result is the sized trade. StopLoss is 0 when no stop applies.
type Result struct {
	ShareDelta   int64
	StopLoss     float64
	StopCurrency string
	Note         string
}

// Size computes the share delta and stop-loss for req.
func (s *Sizer) Size(req Request, val *valuation.PortfolioValuation, fx *model.FxSnapshot) (Result, error) {
	switch {
	case req.Action.IsBuy():
		return s.sizeBuy(req, val, fx)
	case req.Action.IsSell():
		return s.sizeSell(req), nil
	default:
		return Result{Note: "hold, no change"}, nil
	}
}

func (s *Sizer) sizeBuy(req Request, val *valuation.PortfolioValuation, fx *model.FxSnapshot) (Result, error) {
	if val.IsZero() {
		return Result{Note: "no capital basis"}, nil
	}
	rate, ok := fx.Rate(req.Quote.Currency)
	if !ok {
		return Result{}, apperrors.Unavailable(req.Ticker, "sizing", fmt.Errorf("no FX rate for %s", req.Quote.Currency))
	}
	if req.Quote.Price <= 0 {
		return Result{}, apperrors.Unavailable(req.Ticker, "sizing", fmt.Errorf("invalid price %.4f", req.Quote.Price))
	}

	capFrac := s.Cap(req.Risk)
	capValue := decimal.NewFromFloat(capFrac).Mul(decimal.NewFromFloat(val.TotalBaseValue))
	current := decimal.NewFromFloat(val.HoldingValues[req.Ticker])
	room := capValue.Sub(current)
	if !room.IsPositive() {
		res := Result{Note: fmt.Sprintf("already at maximum position size (%.0f%% of portfolio)", capFrac*100)}
		s.applyStop(&res, req)
		return res, nil
	}

	budget := decimal.Min(room, decimal.NewFromFloat(val.CashBaseTotal))
	priceBase := decimal.NewFromFloat(req.Quote.Price).Mul(decimal.NewFromFloat(rate))
	shares := budget.Div(priceBase).Floor().IntPart()
	if shares < 0 {
		shares = 0
	}

	res := Result{ShareDelta: shares}
	if shares == 0 {
		res.Note = "insufficient cash or cap room for one share"
	} else {
		res.Note = fmt.Sprintf("buy %d shares, cap %.0f%% of portfolio", shares, capFrac*100)
	}
	if shares > 0 || req.Holding != nil {
		s.applyStop(&res, req)
	}
	return res, nil
}

func (s *Sizer) sizeSell(req Request) Result {
	if req.Holding == nil || req.Holding.Shares <= 0 {
		return Result{Note: "no position to sell, informational only"}
	}
	if req.Action == model.ActionStrongSell {
		return Result{ShareDelta: -req.Holding.Shares, Note: "exit full position"}
	}
	half := req.Holding.Shares / 2
	if half == 0 {
		return Result{Note: "position too small to reduce, informational only"}
	}
	res := Result{ShareDelta: -half, Note: fmt.Sprintf("reduce position by %d shares", half)}
	if req.Holding.Shares-half > 0 {
		s.applyStop(&res, req)
	}
	return res
}

// applyStop sets the stop-loss from the cost basis of an existing holding,
// or from the market price for a fresh position.
func (s *Sizer) applyStop(res *Result, req Request) {
	entry, currency := req.Quote.Price, req.Quote.Currency
	if req.Holding != nil && req.Holding.CostBasis > 0 {
		entry, currency = req.Holding.CostBasis, req.Holding.CostCurrency
	}
	if entry <= 0 {
		return
	}
	frac := decimal.NewFromInt(1).Sub(decimal.NewFromFloat(s.cfg.StopLoss[req.Risk]))
	res.StopLoss = decimal.NewFromFloat(entry).Mul(frac).Round(2).InexactFloat64()
	res.StopCurrency = currency
}
