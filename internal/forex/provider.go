// Package forex publishes immutable FX snapshots against the base currency.
package forex

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	apperrors "PortfolioSentinel/internal/errors"
	"PortfolioSentinel/internal/model"
)

// RateFetcher returns how many units of quote one unit of base buys.
type RateFetcher interface {
	FetchRate(ctx context.Context, base, quote string) (float64, error)
}

// FallbackCHF holds approximate rates to CHF used when a live pair fails.
var FallbackCHF = map[string]float64{
	"USD": 0.88,
	"EUR": 0.95,
	"GBP": 1.10,
	"CAD": 0.65,
	"JPY": 0.0059,
	"AUD": 0.57,
	"HKD": 0.11,
	"SGD": 0.66,
	"SEK": 0.084,
	"NOK": 0.082,
	"DKK": 0.127,
}

// DefaultCurrencies are refreshed even when no holding uses them yet.
var DefaultCurrencies = []string{"USD", "EUR", "GBP", "CAD", "JPY", "AUD", "HKD", "SGD", "SEK", "NOK", "DKK"}

// Provider refreshes rates and swaps whole snapshots; a published snapshot is never mutated.
type Provider struct {
	fetcher    RateFetcher
	base       string
	currencies []string
	workers    int

	mu   sync.RWMutex
	snap *model.FxSnapshot

	log zerolog.Logger
	now func() time.Time
}

// NewProvider creates a Provider for base tracking currencies.
func NewProvider(fetcher RateFetcher, base string, currencies []string, logger zerolog.Logger) *Provider {
	base = strings.ToUpper(base)
	seen := map[string]bool{base: true}
	var list []string
	for _, c := range currencies {
		c = strings.ToUpper(strings.TrimSpace(c))
		if c == "" || seen[c] {
			continue
		}
		seen[c] = true
		list = append(list, c)
	}
	sort.Strings(list)
	return &Provider{
		fetcher:    fetcher,
		base:       base,
		currencies: list,
		workers:    4,
		log:        logger.With().Str("component", "forex").Str("base", base).Logger(),
		now:        time.Now,
	}
}

// Base returns the base currency code.
func (p *Provider) Base() string { return p.base }

// Snapshot returns the latest published snapshot.
func (p *Provider) Snapshot() (*model.FxSnapshot, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.snap == nil {
		return nil, apperrors.Unavailable("", "fx", errors.New("no FX snapshot captured yet"))
	}
	return p.snap, nil
}

// Refresh fetches every tracked pair and publishes a new snapshot. Pairs
// that fail use the fallback table; currencies with neither are left out so
// that dependent holdings are excluded from valuation.
func (p *Provider) Refresh(ctx context.Context) (*model.FxSnapshot, error) {
	rates := make([]float64, len(p.currencies))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.workers)
	for i, cur := range p.currencies {
		i, cur := i, cur
		g.Go(func() error {
			rate, err := p.fetcher.FetchRate(gctx, cur, p.base)
			if err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				p.log.Debug().Err(err).Str("currency", cur).Msg("live rate fetch failed")
				return nil
			}
			rates[i] = rate
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	out := make(map[string]float64, len(p.currencies))
	var fallbacks []string
	for i, cur := range p.currencies {
		if rates[i] > 0 {
			out[cur] = rates[i]
			continue
		}
		if fb, ok := FallbackRate(cur, p.base); ok {
			out[cur] = fb
			fallbacks = append(fallbacks, cur)
			continue
		}
		p.log.Warn().Str("currency", cur).Msg("no rate available, currency will not resolve")
	}
	if len(fallbacks) > 0 {
		p.log.Warn().Strs("currencies", fallbacks).Msg("using fallback FX rates")
	}

	snap := model.NewFxSnapshot(p.base, out, p.now())
	p.mu.Lock()
	p.snap = snap
	p.mu.Unlock()

	p.log.Info().Int("rates", len(snap.Rates)).Int("fallback", len(fallbacks)).Msg("FX snapshot refreshed")
	return snap, nil
}

// FallbackRate derives a rate from currency to base from the CHF table.
func FallbackRate(currency, base string) (float64, bool) {
	currency, base = strings.ToUpper(currency), strings.ToUpper(base)
	toCHF := func(c string) (float64, bool) {
		if c == "CHF" {
			return 1, true
		}
		r, ok := FallbackCHF[c]
		return r, ok
	}
	from, ok := toCHF(currency)
	if !ok {
		return 0, false
	}
	to, ok := toCHF(base)
	if !ok || to == 0 {
		return 0, false
	}
	return from / to, true
}
