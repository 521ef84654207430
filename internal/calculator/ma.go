package calculator

import (
	"errors"

	"github.com/markcheno/go-talib"

	"PortfolioSentinel/internal/model"
)

// ErrInsufficientData is returned when a series is shorter than the indicator period.
var ErrInsufficientData = errors.New("not enough data")

// CalculateSMA returns the latest simple moving average over period.
func CalculateSMA(closes []float64, period int) (float64, error) {
	if period <= 0 {
		return 0, errors.New("period must be positive")
	}
	if len(closes) < period {
		return 0, ErrInsufficientData
	}
	if period == 1 {
		return closes[len(closes)-1], nil
	}
	sma := talib.Sma(closes, period)
	return last(sma)
}

// CalculateMA200 returns the 200-day simple moving average from daily bars.
func CalculateMA200(dailyBars []model.OHLCV) (float64, error) {
	return CalculateSMA(extractCloses(dailyBars), 200)
}

func extractCloses(bars []model.OHLCV) []float64 {
	closes := make([]float64, len(bars))
	for i, b := range bars {
		closes[i] = b.Close
	}
	return closes
}

func last(series []float64) (float64, error) {
	if len(series) == 0 {
		return 0, ErrInsufficientData
	}
	v := series[len(series)-1]
	if v != v {
		return 0, ErrInsufficientData
	}
	return v, nil
}
