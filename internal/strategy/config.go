package strategy

import (
	"math"

	apperrors "PortfolioSentinel/internal/errors"
	"PortfolioSentinel/internal/model"
)

// Weights are the combiner's per-sub-score weights. They must sum to 1.
type Weights struct {
	Technical    float64 `yaml:"technical"`
	Fundamental  float64 `yaml:"fundamental"`
	Sentiment    float64 `yaml:"sentiment"`
	RiskAdjusted float64 `yaml:"risk_adjusted"`
}

// Thresholds are the combined-score action boundaries.
// A boundary value belongs to the lower-intensity action.
type Thresholds struct {
	StrongBuy int `yaml:"strong_buy"`
	Buy       int `yaml:"buy"`
	HoldLow   int `yaml:"hold_low"`
	Sell      int `yaml:"sell"`
}

// NormalizerConfig holds the point values of every scoring rule.
type NormalizerConfig struct {
	RSIOversold     float64 `yaml:"rsi_oversold"`
	RSIOverbought   float64 `yaml:"rsi_overbought"`
	RSIPoints       float64 `yaml:"rsi_points"`
	MACDPoints      float64 `yaml:"macd_points"`
	TrendPoints     float64 `yaml:"trend_points"`
	BollingerLow    float64 `yaml:"bollinger_low"`
	BollingerHigh   float64 `yaml:"bollinger_high"`
	BollingerPoints float64 `yaml:"bollinger_points"`

	HealthCap float64 `yaml:"health_cap"`

	SentimentScale float64 `yaml:"sentiment_scale"`
	AnomalyPenalty float64 `yaml:"anomaly_penalty"`

	CategoryAdjustment     map[model.RiskCategory]float64 `yaml:"category_adjustment"`
	VolatilityTolerance    map[model.RiskCategory]float64 `yaml:"volatility_tolerance"`
	VolatilityPenalty      float64                        `yaml:"volatility_penalty"`
	ConcentrationThreshold float64                        `yaml:"concentration_threshold"`
	ConcentrationPenalty   float64                        `yaml:"concentration_penalty"`
}

// Config configures an Evaluator.
type Config struct {
	Weights    Weights          `yaml:"weights"`
	Thresholds Thresholds       `yaml:"thresholds"`
	Normalizer NormalizerConfig `yaml:"normalizer"`
}

// DefaultConfig returns the stock weights, thresholds and rule points.
func DefaultConfig() Config {
	return Config{
		Weights:    Weights{Technical: 0.40, Fundamental: 0.35, Sentiment: 0.15, RiskAdjusted: 0.10},
		Thresholds: Thresholds{StrongBuy: 75, Buy: 65, HoldLow: 40, Sell: 25},
		Normalizer: NormalizerConfig{
			RSIOversold:     30,
			RSIOverbought:   70,
			RSIPoints:       15,
			MACDPoints:      15,
			TrendPoints:     10,
			BollingerLow:    0.2,
			BollingerHigh:   0.8,
			BollingerPoints: 10,
			HealthCap:       40,
			SentimentScale:  25,
			AnomalyPenalty:  10,
			CategoryAdjustment: map[model.RiskCategory]float64{
				model.RiskConservative: 10,
				model.RiskModerate:     0,
				model.RiskAggressive:   -10,
			},
			VolatilityTolerance: map[model.RiskCategory]float64{
				model.RiskConservative: 0.25,
				model.RiskModerate:     0.40,
				model.RiskAggressive:   0.60,
			},
			VolatilityPenalty:      10,
			ConcentrationThreshold: 0.80,
			ConcentrationPenalty:   20,
		},
	}
}

// Validate checks weight and threshold invariants.
func (c Config) Validate() error {
	w := c.Weights
	for _, field := range []struct {
		name  string
		value float64
	}{
		{"technical", w.Technical},
		{"fundamental", w.Fundamental},
		{"sentiment", w.Sentiment},
		{"risk_adjusted", w.RiskAdjusted},
	} {
		if field.value < 0 {
			return apperrors.NewConfigError("engine.weights."+field.name, "must not be negative, got %.4f", field.value)
		}
	}
	if sum := w.Technical + w.Fundamental + w.Sentiment + w.RiskAdjusted; math.Abs(sum-1) > 1e-6 {
		return apperrors.NewConfigError("engine.weights", "must sum to 1, got %.4f", sum)
	}

	t := c.Thresholds
	if !(t.Sell > 0 && t.Sell < t.HoldLow && t.HoldLow <= t.Buy && t.Buy < t.StrongBuy && t.StrongBuy < 100) {
		return apperrors.NewConfigError("engine.thresholds",
			"need 0 < sell < hold_low <= buy < strong_buy < 100, got sell=%d hold_low=%d buy=%d strong_buy=%d",
			t.Sell, t.HoldLow, t.Buy, t.StrongBuy)
	}

	n := c.Normalizer
	if n.RSIOversold >= n.RSIOverbought {
		return apperrors.NewConfigError("engine.normalizer.rsi", "oversold %.0f must be below overbought %.0f", n.RSIOversold, n.RSIOverbought)
	}
	if n.BollingerLow < 0 || n.BollingerHigh > 1 || n.BollingerLow >= n.BollingerHigh {
		return apperrors.NewConfigError("engine.normalizer.bollinger", "need 0 <= low < high <= 1")
	}
	if n.ConcentrationThreshold <= 0 {
		return apperrors.NewConfigError("engine.normalizer.concentration_threshold", "must be positive")
	}
	return nil
}
