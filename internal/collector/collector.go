package collector

import (
	"context"
	"errors"

	"github.com/rs/zerolog"

	"PortfolioSentinel/internal/calculator"
	apperrors "PortfolioSentinel/internal/errors"
	"PortfolioSentinel/internal/model"
)

// Collector orchestrates data fetching and indicator computation.
type Collector struct {
	Fetcher     Fetcher
	Facts       FactSource
	HistoryDays int
	log         zerolog.Logger
}

// NewCollector creates a new Collector.
func NewCollector(fetcher Fetcher, facts FactSource, historyDays int, logger zerolog.Logger) *Collector {
	if historyDays <= 0 {
		historyDays = 300
	}
	return &Collector{
		Fetcher:     fetcher,
		Facts:       facts,
		HistoryDays: historyDays,
		log:         logger.With().Str("component", "collector").Str("source", fetcher.Name()).Logger(),
	}
}

// CurrentPrice returns the latest quote of ticker on exchange.
func (c *Collector) CurrentPrice(ctx context.Context, ticker, exchange string) (model.Quote, error) {
	q, err := c.Fetcher.FetchQuote(ctx, YahooSymbol(ticker, exchange))
	if err != nil {
		return model.Quote{}, apperrors.Unavailable(ticker, "quote", err)
	}
	if q.Price <= 0 {
		return model.Quote{}, apperrors.Unavailable(ticker, "quote", errors.New("non-positive price"))
	}
	return q, nil
}

// Indicators fetches daily history and computes every normalizer input.
// Indicators that cannot be computed from short history fall back to
// neutral values.
func (c *Collector) Indicators(ctx context.Context, ticker, exchange string) (*model.IndicatorSnapshot, error) {
	series, err := c.Fetcher.FetchDailyBars(ctx, YahooSymbol(ticker, exchange), c.HistoryDays)
	if err != nil {
		return nil, apperrors.Unavailable(ticker, "history", err)
	}
	bars := series.DailyBars
	if len(bars) == 0 {
		return nil, apperrors.Unavailable(ticker, "history", calculator.ErrInsufficientData)
	}
	log := c.log.With().Str("ticker", ticker).Logger()

	tech := model.TechnicalInputs{Price: bars[len(bars)-1].Close}

	if rsi, err := calculator.CalculateRSI(bars, 14); err != nil {
		log.Warn().Err(err).Msg("RSI calculation failed, defaulting to 50")
		tech.RSI = 50
	} else {
		tech.RSI = rsi
	}

	if m, err := calculator.CalculateMACD(bars); err != nil {
		log.Warn().Err(err).Msg("MACD calculation failed, treating as flat")
	} else {
		tech.MACD, tech.MACDSignal = m.Line, m.Signal
	}

	if ma, err := calculator.CalculateMA200(bars); err != nil {
		log.Debug().Err(err).Msg("MA200 unavailable, trend rule skipped")
	} else {
		tech.MA200 = ma
	}

	if pos, err := calculator.CalculateBollingerPosition(bars); err != nil {
		log.Warn().Err(err).Msg("Bollinger position failed, defaulting to mid-band")
		tech.BollingerPosition = 0.5
	} else {
		tech.BollingerPosition = pos
	}

	snap := &model.IndicatorSnapshot{Ticker: ticker, Technical: tech}

	if vol, err := calculator.CalculateVolatility(bars, 30); err != nil {
		log.Warn().Err(err).Msg("volatility calculation failed")
	} else {
		snap.Volatility = vol
	}

	if c.Facts != nil {
		if facts, ok := c.Facts.Facts(ticker); ok {
			snap.Fundamentals = facts.Fundamentals
			if facts.Sentiment != nil {
				s := *facts.Sentiment
				snap.Sentiment = &s
			}
		}
	}
	if calculator.DetectAnomaly(bars) {
		if snap.Sentiment == nil {
			snap.Sentiment = &model.SentimentInputs{}
		}
		snap.Sentiment.Anomaly = true
	}

	return snap, nil
}
