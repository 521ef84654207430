package calculator

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"PortfolioSentinel/internal/model"
)

func barsFromCloses(closes []float64, volume float64) []model.OHLCV {
	start := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	bars := make([]model.OHLCV, len(closes))
	for i, c := range closes {
		bars[i] = model.OHLCV{
			Time: start.AddDate(0, 0, i), Open: c, High: c * 1.005, Low: c * 0.995, Close: c, Volume: volume,
		}
	}
	return bars
}

func series(n int, f func(i int) float64) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = f(i)
	}
	return out
}

func TestCalculateSMA(t *testing.T) {
	v, err := CalculateSMA([]float64{1, 2, 3, 4, 5, 6, 7, 8, 9, 10}, 5)
	require.NoError(t, err)
	assert.InDelta(t, 8.0, v, 1e-9)

	_, err = CalculateSMA([]float64{1, 2}, 5)
	assert.ErrorIs(t, err, ErrInsufficientData)

	_, err = CalculateSMA([]float64{1, 2}, 0)
	assert.Error(t, err)
}

func TestCalculateRSI(t *testing.T) {
	rising := barsFromCloses(series(40, func(i int) float64 { return 100 + float64(i) }), 1000)
	rsi, err := CalculateRSI(rising, 14)
	require.NoError(t, err)
	assert.Greater(t, rsi, 70.0)

	falling := barsFromCloses(series(40, func(i int) float64 { return 200 - float64(i) }), 1000)
	rsi, err = CalculateRSI(falling, 14)
	require.NoError(t, err)
	assert.Less(t, rsi, 30.0)

	short := barsFromCloses([]float64{1, 2, 3}, 1000)
	rsi, err = CalculateRSI(short, 14)
	require.NoError(t, err)
	assert.Equal(t, 50.0, rsi)
}

func TestCalculateMACD(t *testing.T) {
	rising := barsFromCloses(series(80, func(i int) float64 { return 50 * (1 + 0.01*float64(i)) }), 1000)
	m, err := CalculateMACD(rising)
	require.NoError(t, err)
	assert.Greater(t, m.Line, 0.0)

	_, err = CalculateMACD(rising[:20])
	assert.ErrorIs(t, err, ErrInsufficientData)
}

func TestCalculateBollingerPosition(t *testing.T) {
	flat := barsFromCloses(series(30, func(int) float64 { return 100 }), 1000)
	pos, err := CalculateBollingerPosition(flat)
	require.NoError(t, err)
	assert.Equal(t, 0.5, pos)

	spiked := barsFromCloses(append(series(29, func(i int) float64 { return 100 + float64(i%2) }), 130), 1000)
	pos, err = CalculateBollingerPosition(spiked)
	require.NoError(t, err)
	assert.Equal(t, 1.0, pos)

	dropped := barsFromCloses(append(series(29, func(i int) float64 { return 100 + float64(i%2) }), 70), 1000)
	pos, err = CalculateBollingerPosition(dropped)
	require.NoError(t, err)
	assert.Equal(t, 0.0, pos)
}

func TestCalculateVolatility(t *testing.T) {
	steady := barsFromCloses(series(40, func(i int) float64 { return 100 * (1 + 0.01*float64(i)) }), 1000)
	vol, err := CalculateVolatility(steady, 5)
	require.NoError(t, err)
	assert.Greater(t, vol, 0.0)
	assert.Less(t, vol, 0.01)

	choppy := barsFromCloses(series(40, func(i int) float64 { return 100 + 5*float64(i%2) }), 1000)
	vol, err = CalculateVolatility(choppy, 30)
	require.NoError(t, err)
	assert.Greater(t, vol, 0.5)

	_, err = CalculateVolatility(steady[:2], 30)
	assert.ErrorIs(t, err, ErrInsufficientData)
}

func TestDetectAnomaly(t *testing.T) {
	closes := series(30, func(i int) float64 { return 100 + float64(i%2) })
	normal := barsFromCloses(closes, 1000)
	assert.False(t, DetectAnomaly(normal))

	volumeSpike := barsFromCloses(closes, 1000)
	volumeSpike[len(volumeSpike)-1].Volume = 5000
	assert.True(t, DetectAnomaly(volumeSpike))

	gap := barsFromCloses(closes, 1000)
	gap[len(gap)-1].Close = 120
	assert.True(t, DetectAnomaly(gap))

	assert.False(t, DetectAnomaly(normal[:5]))
}
