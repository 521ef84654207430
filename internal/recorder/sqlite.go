package recorder

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	_ "modernc.org/sqlite"

	"PortfolioSentinel/internal/model"
)

// SQLiteStore persists portfolio state and engine output to a SQLite database.
type SQLiteStore struct {
	db  *sql.DB
	mu  sync.Mutex
	log zerolog.Logger
}

// NewSQLiteStore opens (or creates) the SQLite database and runs migrations.
func NewSQLiteStore(dbPath string, logger zerolog.Logger) (*SQLiteStore, error) {
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("create db dir: %w", err)
		}
	}
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	// WAL mode so readers are not blocked while a cycle writes.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}

	s := &SQLiteStore{db: db, log: logger.With().Str("component", "recorder").Logger()}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	s.log.Info().Str("path", dbPath).Msg("sqlite store opened")
	return s, nil
}

func (s *SQLiteStore) migrate() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS holdings (
			portfolio_id  TEXT NOT NULL,
			ticker        TEXT NOT NULL,
			exchange      TEXT,
			shares        INTEGER NOT NULL CHECK (shares >= 0),
			cost_basis    REAL,
			cost_currency TEXT NOT NULL,
			acquired_at   INTEGER,
			risk_category TEXT NOT NULL,
			PRIMARY KEY (portfolio_id, ticker)
		)`,

		`CREATE TABLE IF NOT EXISTS cash_balances (
			portfolio_id TEXT NOT NULL,
			currency     TEXT NOT NULL,
			amount       REAL NOT NULL CHECK (amount >= 0),
			PRIMARY KEY (portfolio_id, currency)
		)`,

		`CREATE TABLE IF NOT EXISTS recommendations (
			id             TEXT PRIMARY KEY,
			cycle_id       TEXT NOT NULL,
			portfolio_id   TEXT NOT NULL,
			ticker         TEXT NOT NULL,
			exchange       TEXT,
			risk_category  TEXT,
			action         TEXT NOT NULL,
			combined_score INTEGER,
			technical      REAL,
			fundamental    REAL,
			sentiment      REAL,
			risk_adjusted  REAL,
			contributions  TEXT,
			share_delta    INTEGER,
			stop_loss      REAL,
			stop_currency  TEXT,
			price          REAL,
			currency       TEXT,
			reasoning      TEXT,
			evaluated_at   INTEGER NOT NULL,
			status         TEXT NOT NULL,
			status_reason  TEXT
		)`,
		`CREATE INDEX IF NOT EXISTS idx_rec_portfolio_ts ON recommendations(portfolio_id, evaluated_at)`,
		`CREATE INDEX IF NOT EXISTS idx_rec_cycle ON recommendations(cycle_id)`,

		`CREATE TABLE IF NOT EXISTS cycles (
			id             TEXT PRIMARY KEY,
			portfolio_id   TEXT NOT NULL,
			trigger_type   TEXT,
			started_at     INTEGER NOT NULL,
			finished_at    INTEGER,
			base_currency  TEXT,
			total_value    REAL,
			cash_value     REAL,
			excluded       TEXT,
			computed       INTEGER,
			suppressed     INTEGER,
			emitted        INTEGER,
			warnings       TEXT
		)`,
		`CREATE INDEX IF NOT EXISTS idx_cycles_ts ON cycles(portfolio_id, started_at)`,
	}

	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("exec %q: %w", stmt[:40], err)
		}
	}
	return nil
}

func (s *SQLiteStore) LoadHoldings(ctx context.Context, portfolioID string) ([]model.Holding, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT ticker, exchange, shares, cost_basis, cost_currency, acquired_at, risk_category
		FROM holdings WHERE portfolio_id = ? ORDER BY ticker`, portfolioID)
	if err != nil {
		return nil, fmt.Errorf("query holdings: %w", err)
	}
	defer rows.Close()

	var out []model.Holding
	for rows.Next() {
		var h model.Holding
		var exchange sql.NullString
		var acquired sql.NullInt64
		var risk string
		if err := rows.Scan(&h.Ticker, &exchange, &h.Shares, &h.CostBasis, &h.CostCurrency, &acquired, &risk); err != nil {
			return nil, fmt.Errorf("scan holding: %w", err)
		}
		h.Exchange = exchange.String
		if acquired.Valid && acquired.Int64 != 0 {
			h.AcquiredAt = time.Unix(acquired.Int64, 0).UTC()
		}
		h.Risk = model.RiskCategory(risk)
		out = append(out, h)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) LoadCash(ctx context.Context, portfolioID string) (model.CashBalance, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT currency, amount FROM cash_balances WHERE portfolio_id = ?`, portfolioID)
	if err != nil {
		return nil, fmt.Errorf("query cash: %w", err)
	}
	defer rows.Close()

	out := model.CashBalance{}
	for rows.Next() {
		var cur string
		var amt float64
		if err := rows.Scan(&cur, &amt); err != nil {
			return nil, fmt.Errorf("scan cash: %w", err)
		}
		out[cur] = amt
	}
	return out, rows.Err()
}

func (s *SQLiteStore) UpsertHolding(ctx context.Context, portfolioID string, h model.Holding) error {
	if err := validateHolding(h); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	var acquired int64
	if !h.AcquiredAt.IsZero() {
		acquired = h.AcquiredAt.Unix()
	}
	_, err := s.db.ExecContext(ctx, `INSERT INTO holdings
		(portfolio_id, ticker, exchange, shares, cost_basis, cost_currency, acquired_at, risk_category)
		VALUES (?,?,?,?,?,?,?,?)
		ON CONFLICT(portfolio_id, ticker) DO UPDATE SET
			exchange = excluded.exchange,
			shares = excluded.shares,
			cost_basis = excluded.cost_basis,
			cost_currency = excluded.cost_currency,
			acquired_at = excluded.acquired_at,
			risk_category = excluded.risk_category`,
		portfolioID, strings.ToUpper(h.Ticker), h.Exchange, h.Shares, h.CostBasis,
		strings.ToUpper(h.CostCurrency), acquired, string(h.Risk),
	)
	return err
}

func (s *SQLiteStore) RemoveHolding(ctx context.Context, portfolioID, ticker string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `DELETE FROM holdings WHERE portfolio_id = ? AND ticker = ?`,
		portfolioID, strings.ToUpper(ticker))
	return err
}

func (s *SQLiteStore) SetCash(ctx context.Context, portfolioID, currency string, amount float64) error {
	if err := validateCash(currency, amount); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `INSERT INTO cash_balances (portfolio_id, currency, amount) VALUES (?,?,?)
		ON CONFLICT(portfolio_id, currency) DO UPDATE SET amount = excluded.amount`,
		portfolioID, strings.ToUpper(currency), amount,
	)
	return err
}

func (s *SQLiteStore) SaveRecommendation(ctx context.Context, rec *model.Recommendation) error {
	contributions, err := json.Marshal(rec.Breakdown.Contributions)
	if err != nil {
		return fmt.Errorf("encode contributions: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	b := rec.Breakdown
	_, err = s.db.ExecContext(ctx, `INSERT INTO recommendations
		(id, cycle_id, portfolio_id, ticker, exchange, risk_category, action, combined_score,
		 technical, fundamental, sentiment, risk_adjusted, contributions,
		 share_delta, stop_loss, stop_currency, price, currency, reasoning,
		 evaluated_at, status, status_reason)
		VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		rec.ID, rec.CycleID, rec.PortfolioID, rec.Ticker, rec.Exchange, string(rec.Risk),
		string(rec.Action), rec.CombinedScore,
		b.Technical, b.Fundamental, b.Sentiment, b.RiskAdjusted, string(contributions),
		rec.ShareDelta, rec.StopLoss, rec.StopCurrency, rec.Price, rec.Currency, rec.Reasoning,
		rec.EvaluatedAt.UnixMilli(), string(rec.Status), rec.StatusReason,
	)
	if err != nil {
		return fmt.Errorf("insert recommendation %s: %w", rec.Ticker, err)
	}
	return nil
}

func (s *SQLiteStore) RecentRecommendations(ctx context.Context, portfolioID string, limit int) ([]*model.Recommendation, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `SELECT id, cycle_id, portfolio_id, ticker, exchange, risk_category, action,
		combined_score, technical, fundamental, sentiment, risk_adjusted, contributions,
		share_delta, stop_loss, stop_currency, price, currency, reasoning,
		evaluated_at, status, status_reason
		FROM recommendations WHERE portfolio_id = ?
		ORDER BY evaluated_at DESC, rowid DESC LIMIT ?`, portfolioID, limit)
	if err != nil {
		return nil, fmt.Errorf("query recommendations: %w", err)
	}
	defer rows.Close()

	var out []*model.Recommendation
	for rows.Next() {
		var rec model.Recommendation
		var risk, action, status, contributions string
		var evaluated int64
		if err := rows.Scan(&rec.ID, &rec.CycleID, &rec.PortfolioID, &rec.Ticker, &rec.Exchange, &risk, &action,
			&rec.CombinedScore, &rec.Breakdown.Technical, &rec.Breakdown.Fundamental,
			&rec.Breakdown.Sentiment, &rec.Breakdown.RiskAdjusted, &contributions,
			&rec.ShareDelta, &rec.StopLoss, &rec.StopCurrency, &rec.Price, &rec.Currency, &rec.Reasoning,
			&evaluated, &status, &rec.StatusReason); err != nil {
			return nil, fmt.Errorf("scan recommendation: %w", err)
		}
		rec.Risk = model.RiskCategory(risk)
		rec.Action = model.Action(action)
		rec.Status = model.Status(status)
		rec.EvaluatedAt = time.UnixMilli(evaluated).UTC()
		if contributions != "" {
			if err := json.Unmarshal([]byte(contributions), &rec.Breakdown.Contributions); err != nil {
				return nil, fmt.Errorf("decode contributions: %w", err)
			}
		}
		out = append(out, &rec)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) RecordCycle(ctx context.Context, report *model.CycleReport) error {
	excluded, err := json.Marshal(report.Valuation.Excluded)
	if err != nil {
		return fmt.Errorf("encode exclusions: %w", err)
	}
	warnings, err := json.Marshal(report.Warnings)
	if err != nil {
		return fmt.Errorf("encode warnings: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	_, err = s.db.ExecContext(ctx, `INSERT INTO cycles
		(id, portfolio_id, trigger_type, started_at, finished_at, base_currency, total_value, cash_value,
		 excluded, computed, suppressed, emitted, warnings)
		VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		report.ID, report.PortfolioID, string(report.Trigger),
		report.StartedAt.UnixMilli(), report.FinishedAt.UnixMilli(),
		report.Valuation.BaseCurrency, report.Valuation.TotalBaseValue, report.Valuation.CashBaseTotal,
		string(excluded),
		report.Count(model.StatusComputed), report.Count(model.StatusSuppressed), report.Count(model.StatusEmitted),
		string(warnings),
	)
	if err != nil {
		return fmt.Errorf("insert cycle: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Close() error {
	s.log.Info().Msg("closing sqlite store")
	return s.db.Close()
}
