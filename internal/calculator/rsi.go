package calculator

import (
	"errors"

	"github.com/markcheno/go-talib"

	"PortfolioSentinel/internal/model"
)

// CalculateRSI computes the Wilder-smoothed RSI over the given period.
// Returns 50 (neutral) when there are fewer than period+1 bars.
func CalculateRSI(bars []model.OHLCV, period int) (float64, error) {
	if period <= 1 {
		return 0, errors.New("period must be greater than 1")
	}
	if len(bars) < period+1 {
		return 50.0, nil
	}
	return last(talib.Rsi(extractCloses(bars), period))
}

// MACD is the latest MACD line and its signal line.
type MACD struct {
	Line      float64
	Signal    float64
	Histogram float64
}

// CalculateMACD computes the standard 12/26/9 MACD.
func CalculateMACD(bars []model.OHLCV) (MACD, error) {
	const fast, slow, signal = 12, 26, 9
	if len(bars) < slow+signal {
		return MACD{}, ErrInsufficientData
	}
	line, sig, hist := talib.Macd(extractCloses(bars), fast, slow, signal)
	l, err := last(line)
	if err != nil {
		return MACD{}, err
	}
	s, err := last(sig)
	if err != nil {
		return MACD{}, err
	}
	h, _ := last(hist)
	return MACD{Line: l, Signal: s, Histogram: h}, nil
}
