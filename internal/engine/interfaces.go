package engine

import (
	"context"
	"time"

	"PortfolioSentinel/internal/gate"
	"PortfolioSentinel/internal/model"
)

// MarketData supplies prices and indicator inputs.
type MarketData interface {
	CurrentPrice(ctx context.Context, ticker, exchange string) (model.Quote, error)
	Indicators(ctx context.Context, ticker, exchange string) (*model.IndicatorSnapshot, error)
}

// FXProvider returns the latest published FX snapshot.
type FXProvider interface {
	Snapshot() (*model.FxSnapshot, error)
}

// Store persists engine output and owns the portfolio state.
type Store interface {
	LoadHoldings(ctx context.Context, portfolioID string) ([]model.Holding, error)
	LoadCash(ctx context.Context, portfolioID string) (model.CashBalance, error)
	SaveRecommendation(ctx context.Context, rec *model.Recommendation) error
	RecordCycle(ctx context.Context, report *model.CycleReport) error
}

// Transport delivers emitted recommendations.
type Transport interface {
	SendRecommendation(ctx context.Context, rec *model.Recommendation) error
}

// Gate decides emit-or-suppress and owns the alert state.
type Gate interface {
	Apply(rec *model.Recommendation, now time.Time) gate.Decision
	SetActive(active bool)
}
