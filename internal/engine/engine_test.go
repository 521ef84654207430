package engine

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	apperrors "PortfolioSentinel/internal/errors"
	"PortfolioSentinel/internal/gate"
	"PortfolioSentinel/internal/model"
	"PortfolioSentinel/internal/recorder"
)

var cycleTime = time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)

type stubMarket struct {
	mu     sync.Mutex
	quotes map[string]model.Quote
	snaps  map[string]model.IndicatorSnapshot
	fail   map[string]bool

	entered chan struct{}
	release chan struct{}
}

func (m *stubMarket) CurrentPrice(ctx context.Context, ticker, _ string) (model.Quote, error) {
	if m.entered != nil {
		m.entered <- struct{}{}
		select {
		case <-m.release:
		case <-ctx.Done():
			return model.Quote{}, ctx.Err()
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail[ticker] {
		return model.Quote{}, errors.New("quote feed down")
	}
	q, ok := m.quotes[ticker]
	if !ok {
		return model.Quote{}, errors.New("unknown ticker")
	}
	return q, nil
}

func (m *stubMarket) Indicators(_ context.Context, ticker, _ string) (*model.IndicatorSnapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.snaps[ticker]
	if !ok {
		return nil, errors.New("no history")
	}
	return &s, nil
}

type stubFX struct {
	snap *model.FxSnapshot
}

func (f stubFX) Snapshot() (*model.FxSnapshot, error) { return f.snap, nil }

type mockTransport struct {
	mock.Mock
}

func (m *mockTransport) SendRecommendation(ctx context.Context, rec *model.Recommendation) error {
	args := m.Called(ctx, rec)
	return args.Error(0)
}

func neutralSnap(ticker string, price float64) model.IndicatorSnapshot {
	return model.IndicatorSnapshot{
		Ticker:    ticker,
		Technical: model.TechnicalInputs{Price: price, RSI: 50, BollingerPosition: 0.5},
	}
}

// bullishSnap scores 100 on the technical side.
func bullishSnap(ticker string, price float64, fund *model.FundamentalInputs, sent *model.SentimentInputs) model.IndicatorSnapshot {
	return model.IndicatorSnapshot{
		Ticker: ticker,
		Technical: model.TechnicalInputs{
			Price: price, RSI: 25, MACD: 1, MACDSignal: 0.5, MA200: price * 0.9, BollingerPosition: 0.1,
		},
		Fundamentals: fund,
		Sentiment:    sent,
		Volatility:   0.2,
	}
}

type fixture struct {
	engine    *Engine
	store     *recorder.MemoryStore
	market    *stubMarket
	transport *mockTransport
	gate      *gate.Gate
}

func newFixture(t *testing.T, cfg Config, gateCfg gate.Config, rates map[string]float64) *fixture {
	t.Helper()
	gateCfg.StateFile = ""
	g, err := gate.New(gateCfg, time.UTC, zerolog.Nop())
	require.NoError(t, err)

	f := &fixture{
		store:     recorder.NewMemoryStore(),
		market:    &stubMarket{quotes: map[string]model.Quote{}, snaps: map[string]model.IndicatorSnapshot{}, fail: map[string]bool{}},
		transport: &mockTransport{},
		gate:      g,
	}
	e, err := New(cfg, Deps{
		Market:    f.market,
		FX:        stubFX{snap: model.NewFxSnapshot("CHF", rates, cycleTime)},
		Store:     f.store,
		Transport: f.transport,
		Gate:      g,
	}, zerolog.Nop())
	require.NoError(t, err)
	e.now = func() time.Time { return cycleTime }
	f.engine = e
	return f
}

func findRec(t *testing.T, report *model.CycleReport, ticker string) *model.Recommendation {
	t.Helper()
	for _, r := range report.Recommendations {
		if r.Ticker == ticker {
			return r
		}
	}
	t.Fatalf("no recommendation for %s", ticker)
	return nil
}

func seedITR(t *testing.T, f *fixture) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, f.store.UpsertHolding(ctx, "main", model.Holding{
		Ticker: "ITR", Exchange: "TSX-V", Shares: 4657, CostBasis: 5.71, CostCurrency: "CAD", Risk: model.RiskAggressive,
	}))
	require.NoError(t, f.store.SetCash(ctx, "main", "CHF", 800))
	f.market.quotes["ITR"] = model.Quote{Price: 6.00, Currency: "CAD", AsOf: cycleTime}
}

func TestRunCycle_ConcentratedHoldingIsPenalized(t *testing.T) {
	f := newFixture(t, DefaultConfig(), gate.DefaultConfig(), map[string]float64{"CAD": 0.68})
	seedITR(t, f)
	f.market.snaps["ITR"] = neutralSnap("ITR", 6.00)

	report, err := f.engine.RunCycle(context.Background(), "main")
	require.NoError(t, err)

	assert.InDelta(t, 19800.56, report.Valuation.TotalBaseValue, 1e-6)
	assert.Equal(t, "CHF", report.Valuation.BaseCurrency)
	rec := findRec(t, report, "ITR")
	// mean 50, aggressive -10, concentration -20
	assert.InDelta(t, 20.0, rec.Breakdown.RiskAdjusted, 1e-9)
	assert.Equal(t, 47, rec.CombinedScore)
	assert.Equal(t, model.ActionHold, rec.Action)
	assert.Equal(t, model.StatusComputed, rec.Status)
	assert.Zero(t, rec.ShareDelta)
	assert.NotEmpty(t, rec.ID)
	assert.Equal(t, report.ID, rec.CycleID)

	f.transport.AssertNotCalled(t, "SendRecommendation", mock.Anything, mock.Anything)
	require.Len(t, f.store.Cycles(), 1)
	saved, err := f.store.RecentRecommendations(context.Background(), "main", 10)
	require.NoError(t, err)
	assert.Len(t, saved, 1)
}

func TestRunCycle_ConcentratedHoldingNeverBuysMore(t *testing.T) {
	f := newFixture(t, DefaultConfig(), gate.DefaultConfig(), map[string]float64{"CAD": 0.68})
	seedITR(t, f)
	f.market.snaps["ITR"] = bullishSnap("ITR", 6.00,
		&model.FundamentalInputs{PE: 10, MedianPE: 20, EarningsGrowth: 0.3, MarginTrend: 0.02},
		&model.SentimentInputs{NewsPolarity: 1, NewsCount: 4})

	report, err := f.engine.RunCycle(context.Background(), "main")
	require.NoError(t, err)

	rec := findRec(t, report, "ITR")
	assert.Equal(t, model.ActionStrongBuy, rec.Action)
	assert.InDelta(t, (100.0+90+75)/3-30, rec.Breakdown.RiskAdjusted, 1e-9)
	assert.Zero(t, rec.ShareDelta)
	assert.Contains(t, rec.Reasoning, "already at maximum position size")
	assert.Equal(t, 4.68, rec.StopLoss)

	// Nothing to trade, so the alert quota is left for real trades.
	assert.Equal(t, model.StatusComputed, rec.Status)
	assert.Contains(t, rec.StatusReason, "already at maximum position size")
	assert.Zero(t, f.gate.State().EmittedToday)
	f.transport.AssertNotCalled(t, "SendRecommendation", mock.Anything, mock.Anything)
}

func TestRunCycle_ZeroSizedBuyDoesNotUseQuota(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Watchlist = []model.WatchItem{
		{Ticker: "AAA", Risk: model.RiskModerate},
		{Ticker: "BBB", Risk: model.RiskModerate},
	}
	gateCfg := gate.DefaultConfig()
	gateCfg.DailyCap = 1
	f := newFixture(t, cfg, gateCfg, nil)
	require.NoError(t, f.store.SetCash(context.Background(), "main", "CHF", 1000))
	fund := &model.FundamentalInputs{PE: 10, MedianPE: 20, EarningsGrowth: 0.1, MarginTrend: 0.1}
	// Equal scores, so AAA reaches the gate first; one share of it costs more
	// than the 150 CHF of cap room.
	f.market.quotes["AAA"] = model.Quote{Price: 500, Currency: "CHF"}
	f.market.snaps["AAA"] = bullishSnap("AAA", 500, fund, nil)
	f.market.quotes["BBB"] = model.Quote{Price: 10, Currency: "CHF"}
	f.market.snaps["BBB"] = bullishSnap("BBB", 10, fund, nil)
	f.transport.On("SendRecommendation", mock.Anything, mock.MatchedBy(func(r *model.Recommendation) bool {
		return r.Ticker == "BBB"
	})).Return(nil).Once()

	report, err := f.engine.RunCycle(context.Background(), "main")
	require.NoError(t, err)

	pricey := findRec(t, report, "AAA")
	assert.NotEqual(t, model.ActionHold, pricey.Action)
	assert.Zero(t, pricey.ShareDelta)
	assert.Equal(t, model.StatusComputed, pricey.Status)
	assert.Contains(t, pricey.StatusReason, "insufficient cash or cap room")

	cheap := findRec(t, report, "BBB")
	assert.Equal(t, int64(15), cheap.ShareDelta)
	assert.Equal(t, model.StatusEmitted, cheap.Status)
	assert.Equal(t, 1, f.gate.State().EmittedToday)
	f.transport.AssertExpectations(t)
}

func TestRunCycle_UnvaluedHoldingIsSkipped(t *testing.T) {
	f := newFixture(t, DefaultConfig(), gate.DefaultConfig(), nil)
	seedITR(t, f)
	f.market.snaps["ITR"] = model.IndicatorSnapshot{
		Ticker:    "ITR",
		Technical: model.TechnicalInputs{Price: 6, RSI: 80, MACD: -1, MACDSignal: 0, MA200: 7, BollingerPosition: 0.9},
	}

	report, err := f.engine.RunCycle(context.Background(), "main")
	require.NoError(t, err)

	assert.Contains(t, report.Valuation.Excluded, "ITR: no FX rate for CAD")
	assert.Empty(t, report.Recommendations)
	require.Len(t, report.Warnings, 1)
	assert.Equal(t, "ITR", report.Warnings[0].Ticker)
	assert.Contains(t, report.Warnings[0].Reason, "no FX rate for CAD")
	assert.Contains(t, report.Warnings[0].Reason, "data unavailable")
	assert.Zero(t, f.gate.State().EmittedToday)
	f.transport.AssertNotCalled(t, "SendRecommendation", mock.Anything, mock.Anything)
}

func TestRunCycle_PausedGateSuppressesButPersists(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Watchlist = []model.WatchItem{{Ticker: "NESN", Exchange: "SIX", Risk: model.RiskModerate}}
	f := newFixture(t, cfg, gate.DefaultConfig(), nil)
	require.NoError(t, f.store.SetCash(context.Background(), "main", "CHF", 10000))
	f.market.quotes["NESN"] = model.Quote{Price: 100, Currency: "CHF"}
	f.market.snaps["NESN"] = bullishSnap("NESN", 100,
		&model.FundamentalInputs{PE: 10, MedianPE: 20, EarningsGrowth: 0.1, MarginTrend: -0.01},
		&model.SentimentInputs{NewsPolarity: -0.2, NewsCount: 1})

	f.engine.SetActive(false)
	report, err := f.engine.RunCycle(context.Background(), "main")
	require.NoError(t, err)

	rec := findRec(t, report, "NESN")
	assert.Equal(t, 78, rec.CombinedScore)
	assert.Equal(t, model.ActionStrongBuy, rec.Action)
	assert.Equal(t, int64(15), rec.ShareDelta)
	assert.Equal(t, model.StatusSuppressed, rec.Status)
	assert.Equal(t, gate.ReasonPaused, rec.StatusReason)

	saved, err := f.store.RecentRecommendations(context.Background(), "main", 10)
	require.NoError(t, err)
	require.Len(t, saved, 1)
	assert.Equal(t, model.StatusSuppressed, saved[0].Status)
	f.transport.AssertNotCalled(t, "SendRecommendation", mock.Anything, mock.Anything)
}

func TestRunCycle_DailyCapFavoursHighestScores(t *testing.T) {
	cfg := DefaultConfig()
	scores := map[string]*model.FundamentalInputs{
		"AAA": {PE: 10, MedianPE: 20, EarningsGrowth: 0.1, MarginTrend: 0.1}, // 87
		"BBB": {PE: 10, MedianPE: 20, EarningsGrowth: 0.1},                   // 83
		"CCC": {PE: 10, MedianPE: 20},                                        // 77
		"DDD": nil,                                                           // 72
	}
	for _, tk := range []string{"DDD", "CCC", "BBB", "AAA"} {
		cfg.Watchlist = append(cfg.Watchlist, model.WatchItem{Ticker: tk, Risk: model.RiskModerate})
	}
	f := newFixture(t, cfg, gate.DefaultConfig(), nil)
	require.NoError(t, f.store.SetCash(context.Background(), "main", "CHF", 10000))
	for tk, fund := range scores {
		f.market.quotes[tk] = model.Quote{Price: 100, Currency: "CHF"}
		f.market.snaps[tk] = bullishSnap(tk, 100, fund, nil)
	}
	f.transport.On("SendRecommendation", mock.Anything, mock.Anything).Return(nil).Times(3)

	report, err := f.engine.RunCycle(context.Background(), "main")
	require.NoError(t, err)

	require.Len(t, report.Recommendations, 4)
	var order []string
	for _, r := range report.Recommendations {
		order = append(order, r.Ticker)
	}
	assert.Equal(t, []string{"AAA", "BBB", "CCC", "DDD"}, order)
	assert.Equal(t, 87, findRec(t, report, "AAA").CombinedScore)
	assert.Equal(t, 72, findRec(t, report, "DDD").CombinedScore)
	assert.Equal(t, model.ActionBuy, findRec(t, report, "DDD").Action)
	assert.Equal(t, gate.ReasonDailyLimit, findRec(t, report, "DDD").StatusReason)
	assert.Equal(t, 3, report.Count(model.StatusEmitted))
	f.transport.AssertExpectations(t)
}

func TestRunCycle_ZeroPortfolioDegradesToHold(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Watchlist = []model.WatchItem{{Ticker: "NESN", Exchange: "SIX", Risk: model.RiskModerate}}
	f := newFixture(t, cfg, gate.DefaultConfig(), nil)
	f.market.quotes["NESN"] = model.Quote{Price: 100, Currency: "CHF"}
	f.market.snaps["NESN"] = bullishSnap("NESN", 100, nil, nil)

	report, err := f.engine.RunCycle(context.Background(), "main")
	require.NoError(t, err)

	rec := findRec(t, report, "NESN")
	assert.Equal(t, model.ActionHold, rec.Action)
	assert.Equal(t, "no capital basis", rec.Reasoning)
	assert.Equal(t, model.StatusComputed, rec.Status)
	assert.Zero(t, rec.ShareDelta)
	require.Len(t, report.Warnings, 1)
	assert.Empty(t, report.Warnings[0].Ticker)
	assert.Contains(t, report.Warnings[0].Reason, apperrors.ErrZeroPortfolioValue.Error())
	f.transport.AssertNotCalled(t, "SendRecommendation", mock.Anything, mock.Anything)
}

func TestRunCycle_DataUnavailableSkipsTicker(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Watchlist = []model.WatchItem{
		{Ticker: "GONE", Risk: model.RiskModerate},
		{Ticker: "NOHIST", Risk: model.RiskModerate},
	}
	f := newFixture(t, cfg, gate.DefaultConfig(), map[string]float64{"CAD": 0.68})
	seedITR(t, f)
	f.market.snaps["ITR"] = neutralSnap("ITR", 6.00)
	f.market.fail["GONE"] = true
	f.market.quotes["NOHIST"] = model.Quote{Price: 10, Currency: "CHF"}

	report, err := f.engine.RunCycle(context.Background(), "main")
	require.NoError(t, err)

	require.Len(t, report.Recommendations, 1)
	assert.Equal(t, "ITR", report.Recommendations[0].Ticker)
	require.Len(t, report.Warnings, 2)
	assert.Equal(t, "GONE", report.Warnings[0].Ticker)
	assert.Contains(t, report.Warnings[0].Reason, "data unavailable")
	assert.Equal(t, "NOHIST", report.Warnings[1].Ticker)
}

func TestRunCycle_RejectsConcurrentCycle(t *testing.T) {
	f := newFixture(t, DefaultConfig(), gate.DefaultConfig(), map[string]float64{"CAD": 0.68})
	seedITR(t, f)
	f.market.snaps["ITR"] = neutralSnap("ITR", 6.00)
	f.market.entered = make(chan struct{}, 1)
	f.market.release = make(chan struct{})

	done := make(chan error, 1)
	go func() {
		_, err := f.engine.RunCycle(context.Background(), "main")
		done <- err
	}()
	<-f.market.entered

	_, err := f.engine.Run(context.Background(), "main", model.TriggerManual)
	assert.ErrorIs(t, err, apperrors.ErrCycleRunning)

	close(f.market.release)
	require.NoError(t, <-done)

	// The lock is released once the cycle finishes.
	f.market.entered = nil
	_, err = f.engine.Run(context.Background(), "main", model.TriggerManual)
	assert.NoError(t, err)
}

func TestNew_FailsFastOnInvalidConfig(t *testing.T) {
	g, err := gate.New(gate.Config{QuietStart: 23, QuietEnd: 7, DailyCap: 3, Deadband: 5}, time.UTC, zerolog.Nop())
	require.NoError(t, err)
	deps := Deps{Market: &stubMarket{}, FX: stubFX{}, Store: recorder.NewMemoryStore(), Transport: &mockTransport{}, Gate: g}

	tests := []struct {
		name   string
		mutate func(*Config, *Deps)
	}{
		{"weights", func(c *Config, _ *Deps) { c.Strategy.Weights.Technical = 0.9 }},
		{"thresholds", func(c *Config, _ *Deps) { c.Strategy.Thresholds.Buy = 80 }},
		{"caps", func(c *Config, _ *Deps) { c.Sizing.PositionCaps[model.RiskConservative] = 0 }},
		{"workers", func(c *Config, _ *Deps) { c.Workers = 0 }},
		{"watchlist risk", func(c *Config, _ *Deps) { c.Watchlist = []model.WatchItem{{Ticker: "X", Risk: "wild"}} }},
		{"missing transport", func(_ *Config, d *Deps) { d.Transport = nil }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			d := deps
			tt.mutate(&cfg, &d)
			_, err := New(cfg, d, zerolog.Nop())
			assert.ErrorIs(t, err, apperrors.ErrConfigInvalid)
		})
	}
}

func TestSortByPriority(t *testing.T) {
	recs := []*model.Recommendation{
		{Ticker: "B1", Action: model.ActionBuy, CombinedScore: 70},
		{Ticker: "SB", Action: model.ActionStrongBuy, CombinedScore: 80},
		{Ticker: "S2", Action: model.ActionSell, CombinedScore: 30},
		{Ticker: "SS", Action: model.ActionStrongSell, CombinedScore: 10},
		{Ticker: "B0", Action: model.ActionBuy, CombinedScore: 70},
	}
	SortByPriority(recs)

	var got []string
	for _, r := range recs {
		got = append(got, r.Ticker)
	}
	assert.Equal(t, []string{"S2", "SS", "SB", "B0", "B1"}, got)
}
