package calculator

import (
	"math"

	"github.com/markcheno/go-talib"
	"gonum.org/v1/gonum/stat"

	"PortfolioSentinel/internal/model"
)

// CalculateBollingerPosition returns where the last close sits within the
// 20-period, 2-sigma Bollinger bands: 0.0 at the lower band, 1.0 at the upper.
func CalculateBollingerPosition(bars []model.OHLCV) (float64, error) {
	const period, width = 20, 2.0
	if len(bars) < period {
		return 0, ErrInsufficientData
	}
	closes := extractCloses(bars)
	upper, _, lower := talib.BBands(closes, period, width, width, talib.SMA)
	u, err := last(upper)
	if err != nil {
		return 0, err
	}
	l, err := last(lower)
	if err != nil {
		return 0, err
	}
	if u == l {
		return 0.5, nil
	}
	pos := (closes[len(closes)-1] - l) / (u - l)
	return math.Max(0, math.Min(1, pos)), nil
}

// CalculateVolatility returns the annualized standard deviation of daily
// returns over the most recent window bars.
func CalculateVolatility(bars []model.OHLCV, window int) (float64, error) {
	returns := dailyReturns(bars, window)
	if len(returns) < 2 {
		return 0, ErrInsufficientData
	}
	return stat.StdDev(returns, nil) * math.Sqrt(252), nil
}

// DetectAnomaly reports unusual activity on the last bar: volume above
// twice the trailing 20-bar average, or a daily move beyond three standard
// deviations of the trailing returns.
func DetectAnomaly(bars []model.OHLCV) bool {
	const lookback = 20
	if len(bars) < lookback+2 {
		return false
	}
	n := len(bars)
	prior := bars[n-1-lookback : n-1]

	volumes := make([]float64, len(prior))
	for i, b := range prior {
		volumes[i] = b.Volume
	}
	if avg := stat.Mean(volumes, nil); avg > 0 && bars[n-1].Volume > 2*avg {
		return true
	}

	returns := dailyReturns(bars[:n-1], lookback)
	if len(returns) < 2 {
		return false
	}
	mean, sd := stat.MeanStdDev(returns, nil)
	prev := bars[n-2].Close
	if sd == 0 || prev == 0 {
		return false
	}
	move := bars[n-1].Close/prev - 1
	return math.Abs(move-mean) > 3*sd
}

func dailyReturns(bars []model.OHLCV, window int) []float64 {
	start := len(bars) - window - 1
	if start < 0 {
		start = 0
	}
	var returns []float64
	for i := start + 1; i < len(bars); i++ {
		prev := bars[i-1].Close
		if prev <= 0 {
			continue
		}
		returns = append(returns, bars[i].Close/prev-1)
	}
	return returns
}
