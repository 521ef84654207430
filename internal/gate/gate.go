// Package gate decides whether a computed recommendation may be sent.
package gate

import (
	"math"
	"sync"
	"time"

	"github.com/rs/zerolog"

	apperrors "PortfolioSentinel/internal/errors"
	"PortfolioSentinel/internal/model"
)

// Suppression reasons, checked in this order.
const (
	ReasonPaused     = "paused"
	ReasonQuietHours = "quiet hours"
	ReasonDailyLimit = "daily limit reached"
	ReasonDuplicate  = "duplicate alert"
)

const dayLayout = "2006-01-02"

// Config holds notification gate settings. Hours are in the base timezone.
type Config struct {
	QuietStart int    `yaml:"quiet_start"`
	QuietEnd   int    `yaml:"quiet_end"`
	DailyCap   int    `yaml:"daily_cap"`
	Deadband   int    `yaml:"deadband"`
	StateFile  string `yaml:"state_file"`
	Active     bool   `yaml:"initial_active"`
}

// DefaultConfig returns quiet hours 23:00-07:00, three alerts a day and a
// five point dedup deadband.
func DefaultConfig() Config {
	return Config{
		QuietStart: 23,
		QuietEnd:   7,
		DailyCap:   3,
		Deadband:   5,
		StateFile:  "data/gate_state.json",
		Active:     true,
	}
}

// Validate checks the gate configuration.
func (c Config) Validate() error {
	if c.QuietStart < 0 || c.QuietStart > 23 {
		return apperrors.NewConfigError("gate.quiet_start", "hour %d outside 0..23", c.QuietStart)
	}
	if c.QuietEnd < 0 || c.QuietEnd > 23 {
		return apperrors.NewConfigError("gate.quiet_end", "hour %d outside 0..23", c.QuietEnd)
	}
	if c.DailyCap <= 0 {
		return apperrors.NewConfigError("gate.daily_cap", "must be positive, got %d", c.DailyCap)
	}
	if c.Deadband < 0 {
		return apperrors.NewConfigError("gate.deadband", "must not be negative, got %d", c.Deadband)
	}
	return nil
}

// InQuietHours reports whether hour falls inside the quiet window. A window
// with start > end wraps midnight; start == end disables it.
func (c Config) InQuietHours(hour int) bool {
	switch {
	case c.QuietStart == c.QuietEnd:
		return false
	case c.QuietStart > c.QuietEnd:
		return hour >= c.QuietStart || hour < c.QuietEnd
	default:
		return hour >= c.QuietStart && hour < c.QuietEnd
	}
}

// Decision is the gate's verdict for one recommendation.
type Decision struct {
	Emit   bool
	Reason string
}

// Gate is the single writer of GateState. Every mutation is persisted.
type Gate struct {
	mu    sync.Mutex
	cfg   Config
	loc   *time.Location
	state *model.GateState
	log   zerolog.Logger
}

// New creates a Gate, loading state from cfg.StateFile when set. A fresh
// state starts with cfg.Active. An empty StateFile keeps state in memory.
func New(cfg Config, loc *time.Location, logger zerolog.Logger) (*Gate, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if loc == nil {
		loc = time.UTC
	}

	state := &model.GateState{LastEmitted: map[string]model.Emission{}}
	found := false
	if cfg.StateFile != "" {
		var err error
		state, found, err = LoadState(cfg.StateFile)
		if err != nil {
			return nil, err
		}
	}
	if !found {
		state.Active = cfg.Active
	}

	g := &Gate{
		cfg:   cfg,
		loc:   loc,
		state: state,
		log:   logger.With().Str("component", "gate").Logger(),
	}
	if err := g.save(); err != nil {
		return nil, err
	}
	return g, nil
}

// Apply decides whether rec may be emitted at now and records the emission
// when it may. A stale day key is rolled over first.
func (g *Gate) Apply(rec *model.Recommendation, now time.Time) Decision {
	g.mu.Lock()
	defer g.mu.Unlock()

	local := now.In(g.loc)
	day := local.Format(dayLayout)
	dirty := g.rollover(day)

	d := g.decide(rec, local, day)
	if d.Emit {
		g.state.EmittedToday++
		g.state.LastEmitted[rec.Ticker] = model.Emission{Score: rec.CombinedScore, Action: rec.Action, At: now}
		dirty = true
	}
	if dirty {
		if err := g.save(); err != nil {
			g.log.Error().Err(err).Msg("failed to save gate state")
		}
	}

	g.log.Debug().
		Str("ticker", rec.Ticker).
		Str("action", string(rec.Action)).
		Int("score", rec.CombinedScore).
		Bool("emit", d.Emit).
		Str("reason", d.Reason).
		Msg("gate decision")
	return d
}

func (g *Gate) decide(rec *model.Recommendation, local time.Time, day string) Decision {
	if !g.state.Active {
		return Decision{Reason: ReasonPaused}
	}
	if g.cfg.InQuietHours(local.Hour()) {
		return Decision{Reason: ReasonQuietHours}
	}
	if g.state.EmittedToday >= g.cfg.DailyCap {
		return Decision{Reason: ReasonDailyLimit}
	}
	if last, ok := g.state.LastEmitted[rec.Ticker]; ok &&
		last.At.In(g.loc).Format(dayLayout) == day &&
		last.Action == rec.Action &&
		math.Abs(float64(rec.CombinedScore-last.Score)) < float64(g.cfg.Deadband) {
		return Decision{Reason: ReasonDuplicate}
	}
	return Decision{Emit: true}
}

func (g *Gate) rollover(day string) bool {
	if g.state.Day == day {
		return false
	}
	g.log.Info().Str("from", g.state.Day).Str("to", day).Int("emitted", g.state.EmittedToday).Msg("gate day rollover")
	g.state.Day = day
	g.state.EmittedToday = 0
	return true
}

// SetActive pauses or resumes emission.
func (g *Gate) SetActive(active bool) {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.state.Active = active
	if err := g.save(); err != nil {
		g.log.Error().Err(err).Msg("failed to save gate state after toggle")
	}
}

// ResetDaily starts a new day at now: the emitted counter returns to zero.
func (g *Gate) ResetDaily(now time.Time) {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.state.Day = now.In(g.loc).Format(dayLayout)
	g.state.EmittedToday = 0
	if err := g.save(); err != nil {
		g.log.Error().Err(err).Msg("failed to save gate state after daily reset")
	}
}

// State returns a copy of the current gate state.
func (g *Gate) State() model.GateState {
	g.mu.Lock()
	defer g.mu.Unlock()

	s := *g.state
	s.LastEmitted = make(map[string]model.Emission, len(g.state.LastEmitted))
	for k, v := range g.state.LastEmitted {
		s.LastEmitted[k] = v
	}
	return s
}

// Config returns the gate configuration.
func (g *Gate) Config() Config {
	return g.cfg
}

func (g *Gate) save() error {
	if g.cfg.StateFile == "" {
		return nil
	}
	return SaveState(g.cfg.StateFile, g.state)
}
