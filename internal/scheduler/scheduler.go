// Package scheduler drives evaluation cycles from cron triggers and Telegram commands.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	apperrors "PortfolioSentinel/internal/errors"
	"PortfolioSentinel/internal/gate"
	"PortfolioSentinel/internal/model"
	"PortfolioSentinel/internal/notifier"
	"PortfolioSentinel/internal/valuation"
)

// Runner runs cycles and answers portfolio queries.
type Runner interface {
	Run(ctx context.Context, portfolioID string, trigger model.TriggerType) (*model.CycleReport, error)
	Valuate(ctx context.Context, portfolioID string) (*valuation.PortfolioValuation, error)
	SetActive(active bool)
}

// FXRefresher republishes the FX snapshot.
type FXRefresher interface {
	Refresh(ctx context.Context) (*model.FxSnapshot, error)
}

// GateControl exposes the gate operations allowed outside a cycle.
type GateControl interface {
	State() model.GateState
	Config() gate.Config
	ResetDaily(now time.Time)
}

// Messenger sends free-form messages.
type Messenger interface {
	SendWithRetry(ctx context.Context, text string, maxRetries int) error
}

// Scheduler manages all cron tasks.
type Scheduler struct {
	Cron        *cron.Cron
	Engine      Runner
	FX          FXRefresher
	Gate        GateControl
	Notifier    Messenger
	PortfolioID string
	Ctx         context.Context

	log zerolog.Logger
	now func() time.Time
}

// NewScheduler creates a Scheduler whose cron expressions are evaluated in loc.
func NewScheduler(ctx context.Context, portfolioID string, loc *time.Location, eng Runner, fx FXRefresher,
	g GateControl, msg Messenger, logger zerolog.Logger) *Scheduler {
	if loc == nil {
		loc = time.UTC
	}
	return &Scheduler{
		Cron:        cron.New(cron.WithSeconds(), cron.WithLocation(loc)),
		Engine:      eng,
		FX:          fx,
		Gate:        g,
		Notifier:    msg,
		PortfolioID: portfolioID,
		Ctx:         ctx,
		log:         logger.With().Str("component", "scheduler").Logger(),
		now:         time.Now,
	}
}

// RegisterAll registers the check, FX refresh, and daily reset tasks.
func (s *Scheduler) RegisterAll(checkCrons []string, fxCron, resetCron string) error {
	for _, spec := range checkCrons {
		if _, err := s.Cron.AddFunc(spec, s.checkTask); err != nil {
			return fmt.Errorf("register check task %q: %w", spec, err)
		}
	}
	if _, err := s.Cron.AddFunc(fxCron, s.fxTask); err != nil {
		return fmt.Errorf("register fx task: %w", err)
	}
	if _, err := s.Cron.AddFunc(resetCron, s.resetTask); err != nil {
		return fmt.Errorf("register reset task: %w", err)
	}
	return nil
}

// Start starts the cron scheduler.
func (s *Scheduler) Start() {
	s.Cron.Start()
	s.log.Info().Int("entries", len(s.Cron.Entries())).Msg("scheduler started")
}

// Stop stops the cron scheduler and waits for running tasks.
func (s *Scheduler) Stop() {
	<-s.Cron.Stop().Done()
	s.log.Info().Msg("scheduler stopped")
}

// RunNow runs one cycle immediately. It fails with ErrCycleRunning when a
// cycle for the portfolio is already in flight.
func (s *Scheduler) RunNow(ctx context.Context, trigger model.TriggerType) (*model.CycleReport, error) {
	report, err := s.Engine.Run(ctx, s.PortfolioID, trigger)
	if err != nil {
		if errors.Is(err, apperrors.ErrCycleRunning) {
			s.log.Warn().Str("trigger", string(trigger)).Msg("cycle already running, trigger rejected")
		} else {
			s.log.Error().Err(err).Str("trigger", string(trigger)).Msg("cycle failed")
		}
		return nil, err
	}
	s.log.Info().
		Str("cycle", report.ID).
		Str("trigger", string(trigger)).
		Int("emitted", report.Count(model.StatusEmitted)).
		Int("suppressed", report.Count(model.StatusSuppressed)).
		Int("warnings", len(report.Warnings)).
		Msg("cycle finished")
	return report, nil
}

func (s *Scheduler) checkTask() {
	_, err := s.RunNow(s.Ctx, model.TriggerScheduled)
	if err != nil && !errors.Is(err, apperrors.ErrCycleRunning) {
		s.trySend(fmt.Sprintf("❌ Scheduled check failed: %v", err))
	}
}

func (s *Scheduler) fxTask() {
	snap, err := s.FX.Refresh(s.Ctx)
	if err != nil {
		s.log.Error().Err(err).Msg("fx refresh failed")
		return
	}
	s.log.Debug().Int("rates", len(snap.Rates)).Msg("fx snapshot refreshed")
}

func (s *Scheduler) resetTask() {
	s.Gate.ResetDaily(s.now())
	s.log.Info().Msg("daily alert counter reset")
}

// HandleCommand processes a user command and returns a reply.
func (s *Scheduler) HandleCommand(ctx context.Context, command string) string {
	switch normalizeCommand(command) {
	case "/run":
		report, err := s.RunNow(ctx, model.TriggerManual)
		if errors.Is(err, apperrors.ErrCycleRunning) {
			return "⏳ A check is already running."
		}
		if err != nil {
			return fmt.Sprintf("❌ Check failed: %v", err)
		}
		return notifier.FormatCycleSummary(report)
	case "/pause":
		s.Engine.SetActive(false)
		return "⏸ Alerts paused. Checks keep running."
	case "/resume":
		s.Engine.SetActive(true)
		return "▶️ Alerts resumed."
	case "/status":
		return notifier.FormatStatus(s.Gate.State(), s.Gate.Config().DailyCap)
	case "/portfolio":
		val, err := s.Engine.Valuate(ctx, s.PortfolioID)
		if err != nil {
			return fmt.Sprintf("❌ Valuation failed: %v", err)
		}
		return notifier.FormatPortfolio(val)
	default:
		return notifier.HelpText()
	}
}

// normalizeCommand lowercases the first word and drops a "@botname" suffix.
func normalizeCommand(text string) string {
	fields := strings.Fields(text)
	if len(fields) == 0 {
		return ""
	}
	cmd := strings.ToLower(fields[0])
	if i := strings.IndexByte(cmd, '@'); i > 0 {
		cmd = cmd[:i]
	}
	return cmd
}

func (s *Scheduler) trySend(text string) {
	if err := s.Notifier.SendWithRetry(s.Ctx, text, 3); err != nil {
		s.log.Error().Err(err).Msg("send notification failed")
	}
}
