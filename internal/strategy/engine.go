package strategy

import (
	"math"
	"sort"
	"strings"

	"PortfolioSentinel/internal/model"
)

// band is one entry of the ordered action table. A score matches when it
// is above Floor, or equal to it when Inclusive is set.
type band struct {
	Floor     int
	Inclusive bool
	Action    model.Action
}

func (b band) matches(score int) bool {
	return score > b.Floor || (b.Inclusive && score == b.Floor)
}

// Evaluator normalizes indicators and combines them into an action.
type Evaluator struct {
	cfg   Config
	bands []band
}

// NewEvaluator validates cfg and builds the action table.
func NewEvaluator(cfg Config) (*Evaluator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	t := cfg.Thresholds
	return &Evaluator{
		cfg: cfg,
		bands: []band{
			{Floor: t.StrongBuy, Inclusive: false, Action: model.ActionStrongBuy},
			{Floor: t.Buy, Inclusive: false, Action: model.ActionBuy},
			{Floor: t.HoldLow, Inclusive: true, Action: model.ActionHold},
			{Floor: t.Sell, Inclusive: true, Action: model.ActionSell},
		},
	}, nil
}

// Evaluation is the combined output for one ticker.
type Evaluation struct {
	Breakdown     model.ScoreBreakdown
	CombinedScore int
	Action        model.Action
}

// Evaluate runs normalize then combine.
func (e *Evaluator) Evaluate(snap *model.IndicatorSnapshot, risk model.RiskCategory, concentration float64) Evaluation {
	b := e.Normalize(snap, risk, concentration)
	score, action := e.Combine(b)
	return Evaluation{Breakdown: b, CombinedScore: score, Action: action}
}

// Normalize maps the snapshot onto four 0..100 sub-scores. concentration is
// the current position value over its category cap value.
func (e *Evaluator) Normalize(snap *model.IndicatorSnapshot, risk model.RiskCategory, concentration float64) model.ScoreBreakdown {
	tech, techParts := e.scoreTechnical(snap.Technical)
	fund, fundParts := e.scoreFundamental(snap.Fundamentals)
	sent, sentParts := e.scoreSentiment(snap.Sentiment)
	riskAdj, riskParts := e.scoreRiskAdjusted(tech, fund, sent, snap.Volatility, risk, concentration)

	parts := make([]model.Contribution, 0, len(techParts)+len(fundParts)+len(sentParts)+len(riskParts))
	parts = append(parts, techParts...)
	parts = append(parts, fundParts...)
	parts = append(parts, sentParts...)
	parts = append(parts, riskParts...)

	return model.ScoreBreakdown{
		Technical:     tech,
		Fundamental:   fund,
		Sentiment:     sent,
		RiskAdjusted:  riskAdj,
		Contributions: parts,
	}
}

// Combine weights the sub-scores, rounds to the nearest integer and looks up the action.
func (e *Evaluator) Combine(b model.ScoreBreakdown) (int, model.Action) {
	w := e.cfg.Weights
	raw := w.Technical*b.Technical +
		w.Fundamental*b.Fundamental +
		w.Sentiment*b.Sentiment +
		w.RiskAdjusted*b.RiskAdjusted
	// Trim float noise so exact halves round consistently.
	raw = math.Round(raw*1e9) / 1e9
	score := int(math.Round(raw))
	return score, e.ActionFor(score)
}

// ActionFor maps a combined score onto the action table, highest band first.
func (e *Evaluator) ActionFor(score int) model.Action {
	for _, b := range e.bands {
		if b.matches(score) {
			return b.Action
		}
	}
	return model.ActionStrongSell
}

// Reasoning builds a short explanation from the strongest contributions.
func Reasoning(b model.ScoreBreakdown, action model.Action) string {
	parts := make([]model.Contribution, 0, len(b.Contributions))
	for _, c := range b.Contributions {
		if c.Points != 0 {
			parts = append(parts, c)
		}
	}
	sort.SliceStable(parts, func(i, j int) bool {
		return math.Abs(parts[i].Points) > math.Abs(parts[j].Points)
	})

	var reasons []string
	switch {
	case b.Technical >= 65:
		reasons = append(reasons, "Technical indicators are bullish")
	case b.Technical <= 35:
		reasons = append(reasons, "Technical indicators are bearish")
	}
	switch {
	case b.Fundamental >= 65:
		reasons = append(reasons, "Fundamentals are strong")
	case b.Fundamental <= 35:
		reasons = append(reasons, "Fundamentals show weakness")
	}
	for _, c := range parts {
		if len(reasons) >= 4 {
			break
		}
		reasons = append(reasons, c.Note)
	}

	if len(reasons) == 0 {
		label := strings.ToLower(strings.ReplaceAll(string(action), "_", " "))
		return "Analysis suggests " + label + " based on neutral indicators."
	}
	return strings.Join(reasons, ". ") + "."
}
