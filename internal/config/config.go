// Package config loads the sentinel configuration from YAML, .env, and the environment.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"PortfolioSentinel/internal/engine"
	apperrors "PortfolioSentinel/internal/errors"
	"PortfolioSentinel/internal/gate"
	"PortfolioSentinel/internal/logging"
	"PortfolioSentinel/internal/model"
	"PortfolioSentinel/internal/sizing"
	"PortfolioSentinel/internal/strategy"
)

// PortfolioConfig identifies the portfolio and seeds it on first start.
type PortfolioConfig struct {
	ID           string            `yaml:"id"`
	BaseCurrency string            `yaml:"base_currency"`
	Timezone     string            `yaml:"timezone"`
	Watchlist    []model.WatchItem `yaml:"watchlist"`
	Holdings     []model.Holding   `yaml:"holdings"`
	Cash         model.CashBalance `yaml:"cash"`
}

// EngineConfig holds scoring, sizing, and parallelism settings.
type EngineConfig struct {
	Strategy strategy.Config `yaml:",inline"`
	Sizing   sizing.Config   `yaml:",inline"`
	Workers  int             `yaml:"workers"`
}

// Config holds all application configuration.
type Config struct {
	Telegram struct {
		BotToken string `yaml:"bot_token"`
		ChatID   string `yaml:"chat_id"`
	} `yaml:"telegram"`
	Portfolio PortfolioConfig `yaml:"portfolio"`
	Engine    EngineConfig    `yaml:"engine"`
	Gate      gate.Config     `yaml:"gate"`
	Schedule  struct {
		CheckCrons []string `yaml:"check_crons"`
		FXCron     string   `yaml:"fx_cron"`
		ResetCron  string   `yaml:"reset_cron"`
		RunOnStart bool     `yaml:"run_on_start"`
	} `yaml:"schedule"`
	DataSource struct {
		HistoryDays      int      `yaml:"history_days"`
		FundamentalsFile string   `yaml:"fundamentals_file"`
		FXCurrencies     []string `yaml:"fx_currencies"`
	} `yaml:"data_source"`
	Database struct {
		SQLitePath string `yaml:"sqlite_path"`
	} `yaml:"database"`
	Logging logging.Config `yaml:"logging"`
	Proxy   string         `yaml:"proxy"`
}

// Default returns the configuration used when no file or variable sets a value.
func Default() *Config {
	cfg := &Config{
		Engine: EngineConfig{
			Strategy: strategy.DefaultConfig(),
			Sizing:   sizing.DefaultConfig(),
			Workers:  engine.DefaultConfig().Workers,
		},
		Gate:    gate.DefaultConfig(),
		Logging: logging.DefaultConfig(),
	}
	cfg.Portfolio.ID = "main"
	cfg.Portfolio.BaseCurrency = "CHF"
	cfg.Portfolio.Timezone = "Europe/Zurich"
	cfg.Schedule.CheckCrons = []string{"0 0 8 * * *", "0 30 15 * * *", "0 0 22 * * *"}
	cfg.Schedule.FXCron = "0 0 * * * *"
	cfg.Schedule.ResetCron = "0 0 0 * * *"
	cfg.DataSource.HistoryDays = 300
	cfg.DataSource.FundamentalsFile = "configs/fundamentals.yaml"
	cfg.Database.SQLitePath = "data/portfolio_sentinel.db"
	return cfg
}

// Load reads config from a YAML file on top of the defaults, loads a .env file
// next to the working directory if present, then applies environment overrides.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("read config: %w", err)
	}
	if len(data) > 0 {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("load .env: %w", err)
	}
	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() error {
	if v := os.Getenv("TELEGRAM_BOT_TOKEN"); v != "" {
		c.Telegram.BotToken = v
	}
	if v := os.Getenv("TELEGRAM_CHAT_ID"); v != "" {
		c.Telegram.ChatID = v
	}
	if v, ok := os.LookupEnv("SQLITE_PATH"); ok {
		c.Database.SQLitePath = v
	}
	if v := os.Getenv("BASE_CURRENCY"); v != "" {
		c.Portfolio.BaseCurrency = v
	}
	if v := os.Getenv("CRON_CHECK"); v != "" {
		var crons []string
		for _, spec := range strings.Split(v, ";") {
			if spec = strings.TrimSpace(spec); spec != "" {
				crons = append(crons, spec)
			}
		}
		c.Schedule.CheckCrons = crons
	}
	if v := os.Getenv("SYSTEM_ACTIVE"); v != "" {
		active, err := strconv.ParseBool(v)
		if err != nil {
			return apperrors.NewConfigError("SYSTEM_ACTIVE", "not a boolean: %q", v)
		}
		c.Gate.Active = active
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
	if v := os.Getenv("HTTPS_PROXY"); v != "" {
		c.Proxy = v
	}
	if v := os.Getenv("RUN_ON_START"); v != "" {
		c.Schedule.RunOnStart = v == "true"
	}
	return nil
}

// Location resolves the portfolio timezone.
func (c *Config) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(c.Portfolio.Timezone)
	if err != nil {
		return nil, apperrors.NewConfigError("portfolio.timezone", "%v", err)
	}
	return loc, nil
}

// EngineSettings returns the engine configuration including the watchlist.
func (c *Config) EngineSettings() engine.Config {
	return engine.Config{
		Strategy:  c.Engine.Strategy,
		Sizing:    c.Engine.Sizing,
		Workers:   c.Engine.Workers,
		Watchlist: c.Portfolio.Watchlist,
	}
}

// Validate checks required fields and the invariants of every section.
func (c *Config) Validate() error {
	if c.Telegram.BotToken == "" {
		return apperrors.NewConfigError("telegram.bot_token", "is required")
	}
	if c.Telegram.ChatID == "" {
		return apperrors.NewConfigError("telegram.chat_id", "is required")
	}
	if c.Portfolio.ID == "" {
		return apperrors.NewConfigError("portfolio.id", "is required")
	}
	if len(c.Portfolio.BaseCurrency) != 3 {
		return apperrors.NewConfigError("portfolio.base_currency", "must be an ISO currency code, got %q", c.Portfolio.BaseCurrency)
	}
	if _, err := c.Location(); err != nil {
		return err
	}
	if len(c.Schedule.CheckCrons) == 0 {
		return apperrors.NewConfigError("schedule.check_crons", "at least one check schedule is required")
	}
	if c.DataSource.HistoryDays <= 0 {
		return apperrors.NewConfigError("data_source.history_days", "must be positive, got %d", c.DataSource.HistoryDays)
	}
	if c.Engine.Workers <= 0 {
		return apperrors.NewConfigError("engine.workers", "must be positive, got %d", c.Engine.Workers)
	}
	if err := c.Engine.Strategy.Validate(); err != nil {
		return err
	}
	if err := c.Engine.Sizing.Validate(); err != nil {
		return err
	}
	if err := c.Gate.Validate(); err != nil {
		return err
	}
	for i, h := range c.Portfolio.Holdings {
		field := fmt.Sprintf("portfolio.holdings[%d]", i)
		if h.Ticker == "" {
			return apperrors.NewConfigError(field, "missing ticker")
		}
		if h.Shares < 0 {
			return apperrors.NewConfigError(field, "shares must not be negative")
		}
		if _, err := model.ParseRiskCategory(string(h.Risk)); err != nil {
			return apperrors.NewConfigError(field, "%v", err)
		}
	}
	for cur, amount := range c.Portfolio.Cash {
		if amount < 0 {
			return apperrors.NewConfigError("portfolio.cash."+cur, "must not be negative")
		}
	}
	return nil
}
