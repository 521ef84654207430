package strategy

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "PortfolioSentinel/internal/errors"
	"PortfolioSentinel/internal/model"
)

func newTestEvaluator(t *testing.T) *Evaluator {
	t.Helper()
	e, err := NewEvaluator(DefaultConfig())
	require.NoError(t, err)
	return e
}

func bullishSnapshot() *model.IndicatorSnapshot {
	return &model.IndicatorSnapshot{
		Ticker: "ABC",
		Technical: model.TechnicalInputs{
			Price: 110, RSI: 25, MACD: 1.2, MACDSignal: 0.8, MA200: 100, BollingerPosition: 0.1,
		},
		Fundamentals: &model.FundamentalInputs{PE: 10, MedianPE: 20, EarningsGrowth: 0.1, MarginTrend: 0.02},
		Sentiment:    &model.SentimentInputs{NewsPolarity: 0.8, NewsCount: 5},
		Volatility:   0.2,
	}
}

func TestActionFor_Boundaries(t *testing.T) {
	e := newTestEvaluator(t)
	tests := []struct {
		score  int
		action model.Action
	}{
		{100, model.ActionStrongBuy},
		{76, model.ActionStrongBuy},
		{75, model.ActionBuy},
		{66, model.ActionBuy},
		{65, model.ActionHold},
		{50, model.ActionHold},
		{40, model.ActionHold},
		{39, model.ActionSell},
		{25, model.ActionSell},
		{24, model.ActionStrongSell},
		{0, model.ActionStrongSell},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.action, e.ActionFor(tt.score), "score %d", tt.score)
	}
}

func TestCombine_WeightedAndRounded(t *testing.T) {
	e := newTestEvaluator(t)

	score, action := e.Combine(model.ScoreBreakdown{Technical: 80, Fundamental: 70, Sentiment: 60, RiskAdjusted: 50})
	// 32 + 24.5 + 9 + 5 = 70.5
	assert.Equal(t, 71, score)
	assert.Equal(t, model.ActionBuy, action)

	score, action = e.Combine(model.ScoreBreakdown{Technical: 75, Fundamental: 75, Sentiment: 75, RiskAdjusted: 75})
	assert.Equal(t, 75, score)
	assert.Equal(t, model.ActionBuy, action)

	score, action = e.Combine(model.ScoreBreakdown{Technical: 65, Fundamental: 65, Sentiment: 65, RiskAdjusted: 65})
	assert.Equal(t, 65, score)
	assert.Equal(t, model.ActionHold, action)

	score, _ = e.Combine(model.ScoreBreakdown{Technical: 65.5, Fundamental: 65.5, Sentiment: 65.5, RiskAdjusted: 65.5})
	assert.Equal(t, 66, score)
}

func TestCombine_MonotonicInEachSubScore(t *testing.T) {
	e := newTestEvaluator(t)
	base := model.ScoreBreakdown{Technical: 40, Fundamental: 55, Sentiment: 30, RiskAdjusted: 70}
	fields := []func(*model.ScoreBreakdown) *float64{
		func(b *model.ScoreBreakdown) *float64 { return &b.Technical },
		func(b *model.ScoreBreakdown) *float64 { return &b.Fundamental },
		func(b *model.ScoreBreakdown) *float64 { return &b.Sentiment },
		func(b *model.ScoreBreakdown) *float64 { return &b.RiskAdjusted },
	}
	for i, field := range fields {
		prev := -1
		for v := 0.0; v <= 100; v += 2.5 {
			b := base
			*field(&b) = v
			score, _ := e.Combine(b)
			assert.GreaterOrEqual(t, score, prev, "field %d value %.1f", i, v)
			prev = score
		}
	}
}

func TestNormalize_Technical(t *testing.T) {
	e := newTestEvaluator(t)

	b := e.Normalize(bullishSnapshot(), model.RiskModerate, 0)
	assert.Equal(t, 100.0, b.Technical)

	bear := bullishSnapshot()
	bear.Technical = model.TechnicalInputs{Price: 90, RSI: 80, MACD: -1, MACDSignal: 0, MA200: 100, BollingerPosition: 0.95}
	b = e.Normalize(bear, model.RiskModerate, 0)
	assert.Equal(t, 0.0, b.Technical)

	neutral := bullishSnapshot()
	neutral.Technical = model.TechnicalInputs{Price: 100, RSI: 50, MACD: 1, MACDSignal: 1, MA200: 100, BollingerPosition: 0.5}
	b = e.Normalize(neutral, model.RiskModerate, 0)
	assert.Equal(t, 50.0, b.Technical)
}

func TestNormalize_FundamentalHealthCap(t *testing.T) {
	e := newTestEvaluator(t)

	snap := bullishSnapshot()
	b := e.Normalize(snap, model.RiskModerate, 0)
	assert.Equal(t, 90.0, b.Fundamental)

	snap.Fundamentals.HealthRisk = true
	b = e.Normalize(snap, model.RiskModerate, 0)
	assert.Equal(t, 40.0, b.Fundamental)
	// The cap does not leak into technicals.
	assert.Equal(t, 100.0, b.Technical)

	snap.Fundamentals = &model.FundamentalInputs{PE: 30, MedianPE: 20, EarningsGrowth: -0.2, MarginTrend: -0.1, HealthRisk: true}
	b = e.Normalize(snap, model.RiskModerate, 0)
	assert.Equal(t, 15.0, b.Fundamental)

	snap.Fundamentals = nil
	b = e.Normalize(snap, model.RiskModerate, 0)
	assert.Equal(t, 50.0, b.Fundamental)
}

func TestNormalize_Sentiment(t *testing.T) {
	e := newTestEvaluator(t)

	snap := bullishSnapshot()
	b := e.Normalize(snap, model.RiskModerate, 0)
	assert.InDelta(t, 70.0, b.Sentiment, 1e-9)

	snap.Sentiment = &model.SentimentInputs{NewsPolarity: -1, NewsCount: 3}
	b = e.Normalize(snap, model.RiskModerate, 0)
	assert.InDelta(t, 25.0, b.Sentiment, 1e-9)

	snap.Sentiment = &model.SentimentInputs{Anomaly: true}
	b = e.Normalize(snap, model.RiskModerate, 0)
	assert.InDelta(t, 40.0, b.Sentiment, 1e-9)

	// Anomaly backed by news is not penalised.
	snap.Sentiment = &model.SentimentInputs{Anomaly: true, NewsCount: 2}
	b = e.Normalize(snap, model.RiskModerate, 0)
	assert.InDelta(t, 50.0, b.Sentiment, 1e-9)
}

func TestNormalize_RiskAdjustedConcentrationPenalty(t *testing.T) {
	e := newTestEvaluator(t)
	snap := bullishSnapshot()

	relaxed := e.Normalize(snap, model.RiskModerate, 0.5)
	// mean(100, 90, 70)
	assert.InDelta(t, 260.0/3, relaxed.RiskAdjusted, 1e-9)

	concentrated := e.Normalize(snap, model.RiskModerate, 0.81)
	assert.InDelta(t, relaxed.RiskAdjusted-20, concentrated.RiskAdjusted, 1e-9)

	atThreshold := e.Normalize(snap, model.RiskModerate, 0.80)
	assert.InDelta(t, relaxed.RiskAdjusted, atThreshold.RiskAdjusted, 1e-9)
}

func TestNormalize_RiskAdjustedCategoryAndVolatility(t *testing.T) {
	e := newTestEvaluator(t)
	snap := bullishSnapshot()

	cons := e.Normalize(snap, model.RiskConservative, 0)
	aggr := e.Normalize(snap, model.RiskAggressive, 0)
	assert.InDelta(t, 20.0, cons.RiskAdjusted-aggr.RiskAdjusted, 1e-9)

	snap.Volatility = 0.5
	mod := e.Normalize(snap, model.RiskModerate, 0)
	assert.InDelta(t, 260.0/3-10, mod.RiskAdjusted, 1e-9)
}

func TestNormalize_Deterministic(t *testing.T) {
	e := newTestEvaluator(t)
	a := e.Evaluate(bullishSnapshot(), model.RiskAggressive, 1.2)
	b := e.Evaluate(bullishSnapshot(), model.RiskAggressive, 1.2)
	assert.Equal(t, a, b)
}

func TestEvaluate_StrongBuyForBullishSnapshot(t *testing.T) {
	e := newTestEvaluator(t)
	ev := e.Evaluate(bullishSnapshot(), model.RiskModerate, 0)
	// 40 + 31.5 + 10.5 + 8.67 = 90.67
	assert.Equal(t, 91, ev.CombinedScore)
	assert.Equal(t, model.ActionStrongBuy, ev.Action)
	assert.NotEmpty(t, ev.Breakdown.Contributions)
}

func TestReasoning(t *testing.T) {
	e := newTestEvaluator(t)
	ev := e.Evaluate(bullishSnapshot(), model.RiskModerate, 0)
	text := Reasoning(ev.Breakdown, ev.Action)
	assert.Contains(t, text, "Technical indicators are bullish")
	assert.Contains(t, text, "Fundamentals are strong")

	neutral := Reasoning(model.ScoreBreakdown{Technical: 50, Fundamental: 50}, model.ActionHold)
	assert.Equal(t, "Analysis suggests hold based on neutral indicators.", neutral)
}

func TestConfigValidate(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())

	bad := DefaultConfig()
	bad.Weights.Sentiment = 0.25
	err := bad.Validate()
	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrConfigInvalid)

	bad = DefaultConfig()
	bad.Weights.Technical = -0.1
	bad.Weights.Fundamental = 0.85
	assert.ErrorIs(t, bad.Validate(), apperrors.ErrConfigInvalid)

	bad = DefaultConfig()
	bad.Thresholds.Sell = 45
	assert.ErrorIs(t, bad.Validate(), apperrors.ErrConfigInvalid)

	bad = DefaultConfig()
	bad.Thresholds.StrongBuy = 60
	_, err = NewEvaluator(bad)
	assert.ErrorIs(t, err, apperrors.ErrConfigInvalid)
}

func TestConfigValidate_ReportsFirstNegativeWeight(t *testing.T) {
	bad := DefaultConfig()
	bad.Weights.Sentiment = -0.1
	bad.Weights.RiskAdjusted = -0.2
	bad.Weights.Fundamental = -0.3

	for i := 0; i < 20; i++ {
		var ce *apperrors.ConfigError
		require.ErrorAs(t, bad.Validate(), &ce)
		assert.Equal(t, "engine.weights.fundamental", ce.Field)
	}
}
