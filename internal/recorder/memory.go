package recorder

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"PortfolioSentinel/internal/model"
)

// MemoryStore is an in-process Store used when SQLite is not configured.
type MemoryStore struct {
	mu       sync.Mutex
	holdings map[string]map[string]model.Holding
	cash     map[string]model.CashBalance
	recs     []*model.Recommendation
	recIDs   map[string]bool
	cycles   []*model.CycleReport
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		holdings: map[string]map[string]model.Holding{},
		cash:     map[string]model.CashBalance{},
		recIDs:   map[string]bool{},
	}
}

func (m *MemoryStore) LoadHoldings(_ context.Context, portfolioID string) ([]model.Holding, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]model.Holding, 0, len(m.holdings[portfolioID]))
	for _, h := range m.holdings[portfolioID] {
		out = append(out, h)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Ticker < out[j].Ticker })
	return out, nil
}

func (m *MemoryStore) LoadCash(_ context.Context, portfolioID string) (model.CashBalance, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := model.CashBalance{}
	for k, v := range m.cash[portfolioID] {
		out[k] = v
	}
	return out, nil
}

func (m *MemoryStore) UpsertHolding(_ context.Context, portfolioID string, h model.Holding) error {
	if err := validateHolding(h); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.holdings[portfolioID] == nil {
		m.holdings[portfolioID] = map[string]model.Holding{}
	}
	h.Ticker = strings.ToUpper(h.Ticker)
	h.CostCurrency = strings.ToUpper(h.CostCurrency)
	m.holdings[portfolioID][h.Ticker] = h
	return nil
}

func (m *MemoryStore) RemoveHolding(_ context.Context, portfolioID, ticker string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.holdings[portfolioID], strings.ToUpper(ticker))
	return nil
}

func (m *MemoryStore) SetCash(_ context.Context, portfolioID, currency string, amount float64) error {
	if err := validateCash(currency, amount); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.cash[portfolioID] == nil {
		m.cash[portfolioID] = model.CashBalance{}
	}
	m.cash[portfolioID][strings.ToUpper(currency)] = amount
	return nil
}

func (m *MemoryStore) SaveRecommendation(_ context.Context, rec *model.Recommendation) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.recIDs[rec.ID] {
		return fmt.Errorf("recommendation %s already saved", rec.ID)
	}
	m.recIDs[rec.ID] = true
	cp := *rec
	m.recs = append(m.recs, &cp)
	return nil
}

func (m *MemoryStore) RecentRecommendations(_ context.Context, portfolioID string, limit int) ([]*model.Recommendation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*model.Recommendation
	for i := len(m.recs) - 1; i >= 0 && (limit <= 0 || len(out) < limit); i-- {
		if m.recs[i].PortfolioID == portfolioID {
			cp := *m.recs[i]
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *MemoryStore) RecordCycle(_ context.Context, report *model.CycleReport) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cycles = append(m.cycles, report)
	return nil
}

// Cycles returns the recorded cycle reports in order.
func (m *MemoryStore) Cycles() []*model.CycleReport {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*model.CycleReport(nil), m.cycles...)
}

func (m *MemoryStore) Close() error { return nil }
