package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"PortfolioSentinel/internal/collector"
	"PortfolioSentinel/internal/config"
	"PortfolioSentinel/internal/engine"
	"PortfolioSentinel/internal/forex"
	"PortfolioSentinel/internal/gate"
	"PortfolioSentinel/internal/logging"
	"PortfolioSentinel/internal/model"
	"PortfolioSentinel/internal/notifier"
	"PortfolioSentinel/internal/recorder"
	"PortfolioSentinel/internal/scheduler"
)

func main() {
	cfgPath := "configs/config.yaml"
	if v := os.Getenv("CONFIG_PATH"); v != "" {
		cfgPath = v
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		log.Fatal().Err(err).Str("path", cfgPath).Msg("load config")
	}

	logger := logging.New(cfg.Logging)
	log.Logger = logger
	logger.Info().Str("config", cfgPath).Msg("PortfolioSentinel starting")

	if err := cfg.Validate(); err != nil {
		logger.Fatal().Err(err).Msg("config validation")
	}
	loc, err := cfg.Location()
	if err != nil {
		logger.Fatal().Err(err).Msg("resolve timezone")
	}

	// Context for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	store := openStore(cfg, logger)
	defer store.Close()

	seeded, err := recorder.Seed(ctx, store, cfg.Portfolio.ID, cfg.Portfolio.Holdings, cfg.Portfolio.Cash)
	if err != nil {
		logger.Fatal().Err(err).Msg("seed portfolio")
	}
	if seeded {
		logger.Info().Int("holdings", len(cfg.Portfolio.Holdings)).Msg("portfolio seeded from config")
	}

	fetcher := collector.NewYahooFetcher(cfg.Proxy)
	facts, err := collector.LoadFacts(cfg.DataSource.FundamentalsFile)
	if err != nil {
		logger.Fatal().Err(err).Msg("load fundamentals")
	}
	col := collector.NewCollector(fetcher, facts, cfg.DataSource.HistoryDays, logger)
	logger.Info().Str("source", fetcher.Name()).Msg("market data ready")

	fx := forex.NewProvider(fetcher, cfg.Portfolio.BaseCurrency, trackedCurrencies(cfg), logger)
	if _, err := fx.Refresh(ctx); err != nil {
		logger.Warn().Err(err).Msg("initial fx refresh failed")
	}

	g, err := gate.New(cfg.Gate, loc, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("init gate")
	}

	tn := notifier.NewTelegramNotifier(cfg.Telegram.BotToken, cfg.Telegram.ChatID, cfg.Proxy, logger)

	eng, err := engine.New(cfg.EngineSettings(), engine.Deps{
		Market:    col,
		FX:        fx,
		Store:     store,
		Transport: tn,
		Gate:      g,
	}, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("init engine")
	}

	sched := scheduler.NewScheduler(ctx, cfg.Portfolio.ID, loc, eng, fx, g, tn, logger)
	if err := sched.RegisterAll(cfg.Schedule.CheckCrons, cfg.Schedule.FXCron, cfg.Schedule.ResetCron); err != nil {
		logger.Fatal().Err(err).Msg("register cron tasks")
	}
	sched.Start()
	defer sched.Stop()

	go tn.StartPolling(ctx, sched.HandleCommand)
	logger.Info().Msg("telegram polling started")

	if cfg.Schedule.RunOnStart {
		logger.Info().Msg("run_on_start enabled, running a check now")
		go func() {
			_, _ = sched.RunNow(ctx, model.TriggerStartup)
		}()
	}

	logger.Info().Msg("PortfolioSentinel is running. Press Ctrl+C to stop.")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	logger.Info().Msg("shutdown signal received, stopping...")
	cancel()
}

// openStore opens the SQLite store, falling back to memory when no path is
// configured or the database cannot be opened.
func openStore(cfg *config.Config, logger zerolog.Logger) recorder.Store {
	if cfg.Database.SQLitePath == "" {
		logger.Warn().Msg("no sqlite path configured, state is kept in memory")
		return recorder.NewMemoryStore()
	}
	s, err := recorder.NewSQLiteStore(cfg.Database.SQLitePath, logger)
	if err != nil {
		logger.Warn().Err(err).Msg("init sqlite store failed, using memory")
		return recorder.NewMemoryStore()
	}
	return s
}

// trackedCurrencies returns the configured FX list plus every currency the
// seed portfolio and watchlist can need.
func trackedCurrencies(cfg *config.Config) []string {
	currencies := cfg.DataSource.FXCurrencies
	if len(currencies) == 0 {
		currencies = append([]string(nil), forex.DefaultCurrencies...)
	}
	for _, h := range cfg.Portfolio.Holdings {
		if h.CostCurrency != "" {
			currencies = append(currencies, h.CostCurrency)
		}
	}
	for cur := range cfg.Portfolio.Cash {
		currencies = append(currencies, cur)
	}
	return currencies
}
