// Package engine runs evaluation cycles: value the portfolio, score every
// tracked ticker, size the trades and pass them through the gate.
package engine

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	apperrors "PortfolioSentinel/internal/errors"
	"PortfolioSentinel/internal/model"
	"PortfolioSentinel/internal/sizing"
	"PortfolioSentinel/internal/strategy"
	"PortfolioSentinel/internal/valuation"
)

const (
	noCapitalBasis = "no capital basis"
	reasonNotHeld  = "not held"
)

// Config holds the engine settings.
type Config struct {
	Strategy  strategy.Config
	Sizing    sizing.Config
	Workers   int
	Watchlist []model.WatchItem
}

// DefaultConfig returns the default scoring and sizing settings with four workers.
func DefaultConfig() Config {
	return Config{
		Strategy: strategy.DefaultConfig(),
		Sizing:   sizing.DefaultConfig(),
		Workers:  4,
	}
}

// Deps are the collaborators an Engine drives.
type Deps struct {
	Market    MarketData
	FX        FXProvider
	Store     Store
	Transport Transport
	Gate      Gate
}

// Engine runs at most one cycle per portfolio at a time.
type Engine struct {
	cfg       Config
	evaluator *strategy.Evaluator
	sizer     *sizing.Sizer
	deps      Deps

	mu    sync.Mutex
	locks map[string]*sync.Mutex

	log zerolog.Logger
	now func() time.Time
}

// New validates cfg and deps and creates an Engine.
func New(cfg Config, deps Deps, logger zerolog.Logger) (*Engine, error) {
	evaluator, err := strategy.NewEvaluator(cfg.Strategy)
	if err != nil {
		return nil, err
	}
	sizer, err := sizing.NewSizer(cfg.Sizing)
	if err != nil {
		return nil, err
	}
	if cfg.Workers <= 0 {
		return nil, apperrors.NewConfigError("engine.workers", "must be positive, got %d", cfg.Workers)
	}
	for i, w := range cfg.Watchlist {
		if w.Ticker == "" {
			return nil, apperrors.NewConfigError(fmt.Sprintf("portfolio.watchlist[%d]", i), "missing ticker")
		}
		if _, err := model.ParseRiskCategory(string(w.Risk)); err != nil {
			return nil, apperrors.NewConfigError(fmt.Sprintf("portfolio.watchlist[%d]", i), "%v", err)
		}
	}
	switch {
	case deps.Market == nil:
		return nil, apperrors.NewConfigError("engine.market", "market data source is required")
	case deps.FX == nil:
		return nil, apperrors.NewConfigError("engine.fx", "FX provider is required")
	case deps.Store == nil:
		return nil, apperrors.NewConfigError("engine.store", "store is required")
	case deps.Transport == nil:
		return nil, apperrors.NewConfigError("engine.transport", "transport is required")
	case deps.Gate == nil:
		return nil, apperrors.NewConfigError("engine.gate", "gate is required")
	}

	return &Engine{
		cfg:       cfg,
		evaluator: evaluator,
		sizer:     sizer,
		deps:      deps,
		locks:     map[string]*sync.Mutex{},
		log:       logger.With().Str("component", "engine").Logger(),
		now:       time.Now,
	}, nil
}

// SetActive pauses or resumes alert emission. Cycles keep running while paused.
func (e *Engine) SetActive(active bool) {
	e.deps.Gate.SetActive(active)
	e.log.Info().Bool("active", active).Msg("engine emission toggled")
}

// RunCycle evaluates portfolioID once as a scheduled cycle.
func (e *Engine) RunCycle(ctx context.Context, portfolioID string) (*model.CycleReport, error) {
	return e.Run(ctx, portfolioID, model.TriggerScheduled)
}

func (e *Engine) lockFor(portfolioID string) *sync.Mutex {
	e.mu.Lock()
	defer e.mu.Unlock()
	l, ok := e.locks[portfolioID]
	if !ok {
		l = &sync.Mutex{}
		e.locks[portfolioID] = l
	}
	return l
}

// target is one ticker evaluated in a cycle.
type target struct {
	Ticker   string
	Exchange string
	Risk     model.RiskCategory
	Holding  *model.Holding
}

func (e *Engine) targets(holdings []model.Holding) []target {
	seen := make(map[string]bool, len(holdings))
	out := make([]target, 0, len(holdings)+len(e.cfg.Watchlist))
	for i := range holdings {
		h := &holdings[i]
		seen[h.Ticker] = true
		out = append(out, target{Ticker: h.Ticker, Exchange: h.Exchange, Risk: h.Risk, Holding: h})
	}
	for _, w := range e.cfg.Watchlist {
		if seen[w.Ticker] {
			continue
		}
		seen[w.Ticker] = true
		out = append(out, target{Ticker: w.Ticker, Exchange: w.Exchange, Risk: w.Risk})
	}
	return out
}

// Run evaluates portfolioID once. A cycle already running for the same
// portfolio makes Run return ErrCycleRunning immediately.
func (e *Engine) Run(ctx context.Context, portfolioID string, trigger model.TriggerType) (*model.CycleReport, error) {
	lock := e.lockFor(portfolioID)
	if !lock.TryLock() {
		e.log.Warn().Str("portfolio", portfolioID).Str("trigger", string(trigger)).Msg("cycle rejected, already running")
		return nil, apperrors.ErrCycleRunning
	}
	defer lock.Unlock()

	report := &model.CycleReport{
		ID:          uuid.NewString(),
		PortfolioID: portfolioID,
		Trigger:     trigger,
		StartedAt:   e.now(),
	}
	log := e.log.With().Str("cycle", report.ID).Str("portfolio", portfolioID).Logger()
	log.Info().Str("trigger", string(trigger)).Msg("cycle started")

	holdings, err := e.deps.Store.LoadHoldings(ctx, portfolioID)
	if err != nil {
		return nil, fmt.Errorf("load holdings: %w", err)
	}
	cash, err := e.deps.Store.LoadCash(ctx, portfolioID)
	if err != nil {
		return nil, fmt.Errorf("load cash: %w", err)
	}
	fx, err := e.deps.FX.Snapshot()
	if err != nil {
		return nil, fmt.Errorf("fx snapshot: %w", err)
	}

	targets := e.targets(holdings)
	quotes, quoteErrs, err := e.fetchQuotes(ctx, targets)
	if err != nil {
		return nil, err
	}

	prices := make(map[string]model.Quote, len(quotes))
	for i, t := range targets {
		if quoteErrs[i] == nil {
			prices[t.Ticker] = quotes[i]
		}
	}
	val := valuation.Valuate(holdings, cash, fx, prices)
	report.Valuation = val.Summary()
	for _, ex := range val.Excluded {
		log.Warn().Str("excluded", ex.String()).Msg("valuation exclusion")
	}
	if val.IsZero() {
		log.Warn().Msg("portfolio value is zero, all actions degrade to hold")
		report.Warnings = append(report.Warnings, model.TickerWarning{Reason: apperrors.ErrZeroPortfolioValue.Error() + ", " + noCapitalBasis})
	}

	recs := make([]*model.Recommendation, len(targets))
	tickerErrs := make([]error, len(targets))
	for i := range quoteErrs {
		tickerErrs[i] = quoteErrs[i]
	}
	// A held ticker the valuation could not price has no weight to size or
	// penalize against.
	excluded := excludedTickers(val)
	for i, t := range targets {
		if tickerErrs[i] != nil || t.Holding == nil {
			continue
		}
		if reason, ok := excluded[t.Ticker]; ok {
			tickerErrs[i] = apperrors.Unavailable(t.Ticker, "valuation", errors.New(reason))
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.cfg.Workers)
	for i, t := range targets {
		if tickerErrs[i] != nil {
			continue
		}
		i, t := i, t
		g.Go(func() error {
			rec, err := e.evaluate(gctx, report, t, quotes[i], val, fx)
			if err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				tickerErrs[i] = err
				return nil
			}
			recs[i] = rec
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	for i, t := range targets {
		if tickerErrs[i] == nil {
			continue
		}
		log.Warn().Err(tickerErrs[i]).Str("ticker", t.Ticker).Msg("ticker skipped")
		report.Warnings = append(report.Warnings, model.TickerWarning{Ticker: t.Ticker, Reason: tickerErrs[i].Error()})
	}
	sort.SliceStable(report.Warnings, func(i, j int) bool { return report.Warnings[i].Ticker < report.Warnings[j].Ticker })

	report.Recommendations = e.applyGate(recs, log)

	for _, rec := range report.Recommendations {
		if err := e.deps.Store.SaveRecommendation(ctx, rec); err != nil {
			log.Error().Err(err).Str("ticker", rec.Ticker).Msg("failed to save recommendation")
		}
	}
	for _, rec := range report.Recommendations {
		if rec.Status != model.StatusEmitted {
			continue
		}
		if err := e.deps.Transport.SendRecommendation(ctx, rec); err != nil {
			log.Error().Err(err).Str("ticker", rec.Ticker).Msg("failed to send recommendation")
			report.Warnings = append(report.Warnings, model.TickerWarning{Ticker: rec.Ticker, Reason: "send failed: " + err.Error()})
		}
	}

	report.FinishedAt = e.now()
	if err := e.deps.Store.RecordCycle(ctx, report); err != nil {
		log.Error().Err(err).Msg("failed to record cycle")
	}

	log.Info().
		Float64("total_value", report.Valuation.TotalBaseValue).
		Int("evaluated", len(report.Recommendations)).
		Int("emitted", report.Count(model.StatusEmitted)).
		Int("suppressed", report.Count(model.StatusSuppressed)).
		Int("warnings", len(report.Warnings)).
		Dur("took", report.FinishedAt.Sub(report.StartedAt)).
		Msg("cycle finished")
	return report, nil
}

// fetchQuotes gets the current price of every target in parallel.
// Per-ticker failures are returned in errs; only cancellation fails the call.
func (e *Engine) fetchQuotes(ctx context.Context, targets []target) ([]model.Quote, []error, error) {
	quotes := make([]model.Quote, len(targets))
	errs := make([]error, len(targets))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.cfg.Workers)
	for i, t := range targets {
		i, t := i, t
		g.Go(func() error {
			q, err := e.deps.Market.CurrentPrice(gctx, t.Ticker, t.Exchange)
			if err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				errs[i] = unavailable(t.Ticker, "quote", err)
				return nil
			}
			quotes[i] = q
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}
	return quotes, errs, nil
}

// evaluate scores and sizes one ticker against the frozen valuation.
func (e *Engine) evaluate(ctx context.Context, report *model.CycleReport, t target, quote model.Quote,
	val *valuation.PortfolioValuation, fx *model.FxSnapshot) (*model.Recommendation, error) {
	snap, err := e.deps.Market.Indicators(ctx, t.Ticker, t.Exchange)
	if err != nil {
		return nil, unavailable(t.Ticker, "indicators", err)
	}
	if snap.Technical.Price <= 0 {
		snap.Technical.Price = quote.Price
	}

	concentration := e.sizer.Concentration(t.Ticker, t.Risk, val)
	ev := e.evaluator.Evaluate(snap, t.Risk, concentration)

	rec := &model.Recommendation{
		ID:            uuid.NewString(),
		CycleID:       report.ID,
		PortfolioID:   report.PortfolioID,
		Ticker:        t.Ticker,
		Exchange:      t.Exchange,
		Risk:          t.Risk,
		Action:        ev.Action,
		CombinedScore: ev.CombinedScore,
		Breakdown:     ev.Breakdown,
		Price:         quote.Price,
		Currency:      quote.Currency,
		EvaluatedAt:   e.now(),
		Status:        model.StatusComputed,
	}

	if val.IsZero() {
		rec.Action = model.ActionHold
		rec.Reasoning = noCapitalBasis
		return rec, nil
	}
	if t.Holding == nil && ev.Action.IsSell() {
		rec.StatusReason = reasonNotHeld
	}

	res, err := e.sizer.Size(sizing.Request{
		Ticker:  t.Ticker,
		Action:  ev.Action,
		Holding: t.Holding,
		Quote:   quote,
		Risk:    t.Risk,
	}, val, fx)
	if err != nil {
		return nil, err
	}
	rec.ShareDelta = res.ShareDelta
	rec.StopLoss = res.StopLoss
	rec.StopCurrency = res.StopCurrency
	rec.Reasoning = strategy.Reasoning(ev.Breakdown, ev.Action)
	if res.Note != "" && rec.Action != model.ActionHold {
		rec.Reasoning += " Sizing: " + res.Note + "."
	}
	if rec.Action != model.ActionHold && rec.ShareDelta == 0 && rec.StatusReason == "" {
		rec.StatusReason = res.Note
	}
	return rec, nil
}

// excludedTickers maps each ticker left out of val to the exclusion reason.
func excludedTickers(val *valuation.PortfolioValuation) map[string]string {
	out := make(map[string]string, len(val.Excluded))
	for _, ex := range val.Excluded {
		if ex.Ticker != "" {
			out[ex.Ticker] = ex.Reason
		}
	}
	return out
}

// applyGate offers actionable recommendations to the gate in priority order
// and returns every recommendation in that order, informational ones last.
// Holds and anything sized to zero shares are informational.
func (e *Engine) applyGate(recs []*model.Recommendation, log zerolog.Logger) []*model.Recommendation {
	var actionable, informational []*model.Recommendation
	for _, rec := range recs {
		if rec == nil {
			continue
		}
		if rec.Action == model.ActionHold || rec.ShareDelta == 0 {
			informational = append(informational, rec)
		} else {
			actionable = append(actionable, rec)
		}
	}
	SortByPriority(actionable)
	sort.SliceStable(informational, func(i, j int) bool { return informational[i].Ticker < informational[j].Ticker })

	now := e.now()
	for _, rec := range actionable {
		d := e.deps.Gate.Apply(rec, now)
		if d.Emit {
			rec.Status = model.StatusEmitted
		} else {
			rec.Status = model.StatusSuppressed
			rec.StatusReason = d.Reason
			log.Info().Str("ticker", rec.Ticker).Str("action", string(rec.Action)).
				Int("score", rec.CombinedScore).Str("reason", d.Reason).Msg("recommendation suppressed")
		}
	}
	return append(actionable, informational...)
}

func priorityGroup(a model.Action) int {
	switch {
	case a.IsSell():
		return 0
	case a == model.ActionStrongBuy:
		return 1
	case a == model.ActionBuy:
		return 2
	default:
		return 3
	}
}

// SortByPriority orders recommendations sells first, then strong buys, then
// buys; higher scores first within a group and ticker as tie-break.
func SortByPriority(recs []*model.Recommendation) {
	sort.SliceStable(recs, func(i, j int) bool {
		gi, gj := priorityGroup(recs[i].Action), priorityGroup(recs[j].Action)
		if gi != gj {
			return gi < gj
		}
		if recs[i].CombinedScore != recs[j].CombinedScore {
			return recs[i].CombinedScore > recs[j].CombinedScore
		}
		return recs[i].Ticker < recs[j].Ticker
	})
}

// Valuate prices the current holdings of portfolioID against the latest FX
// snapshot without scoring anything.
func (e *Engine) Valuate(ctx context.Context, portfolioID string) (*valuation.PortfolioValuation, error) {
	holdings, err := e.deps.Store.LoadHoldings(ctx, portfolioID)
	if err != nil {
		return nil, fmt.Errorf("load holdings: %w", err)
	}
	cash, err := e.deps.Store.LoadCash(ctx, portfolioID)
	if err != nil {
		return nil, fmt.Errorf("load cash: %w", err)
	}
	fx, err := e.deps.FX.Snapshot()
	if err != nil {
		return nil, fmt.Errorf("fx snapshot: %w", err)
	}

	targets := make([]target, len(holdings))
	for i, h := range holdings {
		targets[i] = target{Ticker: h.Ticker, Exchange: h.Exchange, Risk: h.Risk}
	}
	quotes, errs, err := e.fetchQuotes(ctx, targets)
	if err != nil {
		return nil, err
	}
	prices := make(map[string]model.Quote, len(quotes))
	for i, t := range targets {
		if errs[i] == nil {
			prices[t.Ticker] = quotes[i]
		}
	}
	return valuation.Valuate(holdings, cash, fx, prices), nil
}

// unavailable tags err with the ticker and stage unless it already carries them.
func unavailable(ticker, stage string, err error) error {
	var te *apperrors.TickerError
	if apperrors.As(err, &te) && apperrors.Is(err, apperrors.ErrDataUnavailable) {
		return err
	}
	return apperrors.Unavailable(ticker, stage, err)
}
