package strategy

import (
	"fmt"

	"PortfolioSentinel/internal/model"
)

const neutralScore = 50.0

const (
	componentTechnical    = "technical"
	componentFundamental  = "fundamental"
	componentSentiment    = "sentiment"
	componentRiskAdjusted = "risk"
)

// tally accumulates additive contributions onto a neutral start.
type tally struct {
	component string
	score     float64
	parts     []model.Contribution
}

func newTally(component string, start float64) *tally {
	return &tally{component: component, score: start}
}

func (t *tally) add(points float64, format string, args ...interface{}) {
	t.score += points
	t.parts = append(t.parts, model.Contribution{
		Component: t.component,
		Points:    points,
		Note:      fmt.Sprintf(format, args...),
	})
}

func (t *tally) note(format string, args ...interface{}) {
	t.add(0, format, args...)
}

func clampScore(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}

// scoreTechnical scores RSI, MACD, the 200-period trend and Bollinger position.
func (e *Evaluator) scoreTechnical(t model.TechnicalInputs) (float64, []model.Contribution) {
	n := e.cfg.Normalizer
	s := newTally(componentTechnical, neutralScore)

	switch {
	case t.RSI < n.RSIOversold:
		s.add(n.RSIPoints, "RSI oversold (%.1f), bullish", t.RSI)
	case t.RSI > n.RSIOverbought:
		s.add(-n.RSIPoints, "RSI overbought (%.1f), bearish", t.RSI)
	}

	switch {
	case t.MACD > t.MACDSignal:
		s.add(n.MACDPoints, "MACD above signal line, bullish")
	case t.MACD < t.MACDSignal:
		s.add(-n.MACDPoints, "MACD below signal line, bearish")
	}

	if t.MA200 > 0 {
		switch {
		case t.Price > t.MA200:
			s.add(n.TrendPoints, "Price above 200-day average, long-term bullish")
		case t.Price < t.MA200:
			s.add(-n.TrendPoints, "Price below 200-day average, long-term bearish")
		}
	}

	switch {
	case t.BollingerPosition <= n.BollingerLow:
		s.add(n.BollingerPoints, "Price near lower Bollinger band")
	case t.BollingerPosition >= n.BollingerHigh:
		s.add(-n.BollingerPoints, "Price near upper Bollinger band")
	}

	return clampScore(s.score), s.parts
}

// scoreFundamental scores valuation, growth and margins. A balance-sheet
// risk flag caps this sub-score only.
func (e *Evaluator) scoreFundamental(f *model.FundamentalInputs) (float64, []model.Contribution) {
	s := newTally(componentFundamental, neutralScore)
	if f == nil {
		s.note("Fundamentals unavailable, neutral")
		return neutralScore, s.parts
	}

	if f.PE > 0 && f.MedianPE > 0 {
		switch {
		case f.PE < f.MedianPE:
			s.add(15, "P/E %.1f below median %.1f", f.PE, f.MedianPE)
		case f.PE > f.MedianPE:
			s.add(-10, "P/E %.1f above median %.1f", f.PE, f.MedianPE)
		}
	}

	switch {
	case f.EarningsGrowth > 0:
		s.add(15, "Earnings growth %+.1f%%", f.EarningsGrowth*100)
	case f.EarningsGrowth < 0:
		s.add(-15, "Earnings declining %+.1f%%", f.EarningsGrowth*100)
	}

	switch {
	case f.MarginTrend > 0:
		s.add(10, "Margin expansion")
	case f.MarginTrend < 0:
		s.add(-10, "Margin contraction")
	}

	score := s.score
	if capAt := e.cfg.Normalizer.HealthCap; f.HealthRisk && score > capAt {
		s.add(capAt-score, "Financial health risk caps fundamentals at %.0f", capAt)
		score = capAt
	}
	return clampScore(score), s.parts
}

// scoreSentiment maps news polarity linearly onto ±SentimentScale. An
// anomaly without news to explain it counts against the ticker.
func (e *Evaluator) scoreSentiment(in *model.SentimentInputs) (float64, []model.Contribution) {
	n := e.cfg.Normalizer
	s := newTally(componentSentiment, neutralScore)
	if in == nil {
		s.note("Sentiment unavailable, neutral")
		return neutralScore, s.parts
	}

	polarity := in.NewsPolarity
	if polarity > 1 {
		polarity = 1
	}
	if polarity < -1 {
		polarity = -1
	}
	if in.NewsCount > 0 && polarity != 0 {
		pts := polarity * n.SentimentScale
		if pts > 0 {
			s.add(pts, "News sentiment positive (%+.2f)", polarity)
		} else {
			s.add(pts, "News sentiment negative (%+.2f)", polarity)
		}
	}

	if in.Anomaly && in.NewsCount == 0 {
		s.add(-n.AnomalyPenalty, "Unusual activity without news, treated as noise")
	}
	return clampScore(s.score), s.parts
}

// scoreRiskAdjusted starts from the mean of the other sub-scores and applies
// category, volatility and concentration adjustments.
func (e *Evaluator) scoreRiskAdjusted(technical, fundamental, sentiment, volatility float64, risk model.RiskCategory, concentration float64) (float64, []model.Contribution) {
	n := e.cfg.Normalizer
	s := newTally(componentRiskAdjusted, (technical+fundamental+sentiment)/3)

	if adj := n.CategoryAdjustment[risk]; adj != 0 {
		s.add(adj, "%s risk category", risk)
	}
	if tol, ok := n.VolatilityTolerance[risk]; ok && tol > 0 && volatility > tol {
		s.add(-n.VolatilityPenalty, "Volatility %.0f%% above %s tolerance", volatility*100, risk)
	}
	if concentration > n.ConcentrationThreshold {
		s.add(-n.ConcentrationPenalty, "Position at %.0f%% of its cap", concentration*100)
	}
	return clampScore(s.score), s.parts
}
