package recorder

import (
	"context"
	"fmt"
	"strings"

	"PortfolioSentinel/internal/model"
)

// Store persists portfolio state, recommendations and cycle reports.
type Store interface {
	LoadHoldings(ctx context.Context, portfolioID string) ([]model.Holding, error)
	LoadCash(ctx context.Context, portfolioID string) (model.CashBalance, error)
	UpsertHolding(ctx context.Context, portfolioID string, h model.Holding) error
	RemoveHolding(ctx context.Context, portfolioID, ticker string) error
	SetCash(ctx context.Context, portfolioID, currency string, amount float64) error

	SaveRecommendation(ctx context.Context, rec *model.Recommendation) error
	RecentRecommendations(ctx context.Context, portfolioID string, limit int) ([]*model.Recommendation, error)
	RecordCycle(ctx context.Context, report *model.CycleReport) error

	Close() error
}

func validateHolding(h model.Holding) error {
	if strings.TrimSpace(h.Ticker) == "" {
		return fmt.Errorf("holding has no ticker")
	}
	if h.Shares < 0 {
		return fmt.Errorf("holding %s: negative share count %d", h.Ticker, h.Shares)
	}
	if h.CostCurrency == "" {
		return fmt.Errorf("holding %s: missing cost currency", h.Ticker)
	}
	if _, err := model.ParseRiskCategory(string(h.Risk)); err != nil {
		return fmt.Errorf("holding %s: %w", h.Ticker, err)
	}
	return nil
}

func validateCash(currency string, amount float64) error {
	if len(strings.TrimSpace(currency)) != 3 {
		return fmt.Errorf("invalid currency code %q", currency)
	}
	if amount < 0 {
		return fmt.Errorf("cash %s: negative amount %.2f", currency, amount)
	}
	return nil
}

// Seed writes holdings and cash into an empty portfolio. It does nothing when
// the portfolio already has holdings or cash.
func Seed(ctx context.Context, s Store, portfolioID string, holdings []model.Holding, cash model.CashBalance) (bool, error) {
	existing, err := s.LoadHoldings(ctx, portfolioID)
	if err != nil {
		return false, err
	}
	balances, err := s.LoadCash(ctx, portfolioID)
	if err != nil {
		return false, err
	}
	if len(existing) > 0 || len(balances) > 0 {
		return false, nil
	}
	for _, h := range holdings {
		if err := s.UpsertHolding(ctx, portfolioID, h); err != nil {
			return false, fmt.Errorf("seed holding: %w", err)
		}
	}
	for cur, amt := range cash {
		if err := s.SetCash(ctx, portfolioID, cur, amt); err != nil {
			return false, fmt.Errorf("seed cash: %w", err)
		}
	}
	return len(holdings) > 0 || len(cash) > 0, nil
}
