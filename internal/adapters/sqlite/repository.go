package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"paperTrader/internal/domain"
	"paperTrader/internal/ports"

	"github.com/mattn/go-sqlite3"
)

// Repository implements ports.PortfolioRepository and ports.EquityHistory using SQLite.
// Monetary values are stored as TEXT so they round-trip as exact decimals.
type Repository struct {
	db     *sql.DB
	logger ports.Logger
}

// Config holds configuration for the SQLite repository.
type Config struct {
	DBPath string
	Logger ports.Logger
}

// NewRepository creates a new SQLite repository instance.
func NewRepository(cfg Config) (*Repository, error) {
	if cfg.Logger == nil {
		return nil, fmt.Errorf("logger is required for SQLite repository")
	}
	dbPath := cfg.DBPath
	if dbPath == "" {
		dbPath = "./data/paper_trader.db" // Default path
	}

	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		err = fmt.Errorf("failed to create data directory '%s': %w", filepath.Dir(dbPath), err)
		cfg.Logger.Error(context.Background(), err, "SQLite repository initialization failed")
		return nil, err
	}

	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		err = fmt.Errorf("failed to open database at '%s': %w", dbPath, err)
		cfg.Logger.Error(context.Background(), err, "SQLite repository initialization failed")
		return nil, err
	}

	if err := db.Ping(); err != nil {
		db.Close()
		err = fmt.Errorf("%w: failed to ping database at '%s': %w", ports.ErrDBConnection, dbPath, err)
		cfg.Logger.Error(context.Background(), err, "SQLite repository initialization failed")
		return nil, err
	}

	// A single connection serializes writers; the ledger already serializes per portfolio.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(time.Hour)

	cfg.Logger.Info(context.Background(), "SQLite database connection established", map[string]interface{}{"path": dbPath})

	repo := &Repository{db: db, logger: cfg.Logger}
	if err := repo.initializeSchema(context.Background()); err != nil {
		db.Close()
		err = fmt.Errorf("failed to initialize database schema: %w", err)
		cfg.Logger.Error(context.Background(), err, "SQLite repository initialization failed")
		return nil, err
	}
	cfg.Logger.Info(context.Background(), "Database schema initialized/verified")

	return repo, nil
}

// initializeSchema creates tables if they don't exist.
func (r *Repository) initializeSchema(ctx context.Context) error {
	const schema = `
	CREATE TABLE IF NOT EXISTS portfolios (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		initial_balance TEXT NOT NULL,
		cash_balance TEXT NOT NULL,
		created_at TIMESTAMP NOT NULL,
		updated_at TIMESTAMP NOT NULL,
		version INTEGER NOT NULL DEFAULT 1
	);

	CREATE TABLE IF NOT EXISTS positions (
		portfolio_id TEXT NOT NULL REFERENCES portfolios(id) ON DELETE CASCADE,
		instrument_id TEXT NOT NULL,
		symbol TEXT NOT NULL,
		quantity TEXT NOT NULL,
		average_entry_price TEXT NOT NULL,
		realized_pnl TEXT NOT NULL,
		status TEXT NOT NULL,
		opened_at TIMESTAMP NOT NULL,
		updated_at TIMESTAMP NOT NULL,
		PRIMARY KEY (portfolio_id, instrument_id)
	);

	CREATE TABLE IF NOT EXISTS trades (
		id TEXT PRIMARY KEY,
		portfolio_id TEXT NOT NULL REFERENCES portfolios(id) ON DELETE CASCADE,
		instrument_id TEXT NOT NULL,
		symbol TEXT NOT NULL,
		side TEXT NOT NULL,
		quantity TEXT NOT NULL,
		price TEXT NOT NULL,
		commission TEXT NOT NULL,
		total_amount TEXT NOT NULL,
		realized_pnl TEXT NOT NULL,
		reducing INTEGER NOT NULL,
		executed_at TIMESTAMP NOT NULL,
		sequence INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS equity_snapshots (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		portfolio_id TEXT NOT NULL,
		taken_at TIMESTAMP NOT NULL,
		cash_balance TEXT NOT NULL,
		positions_value TEXT NOT NULL,
		total_equity TEXT NOT NULL
	);

	CREATE UNIQUE INDEX IF NOT EXISTS idx_trades_portfolio_sequence ON trades (portfolio_id, sequence);
	CREATE INDEX IF NOT EXISTS idx_equity_portfolio_taken_at ON equity_snapshots (portfolio_id, taken_at);
	`
	_, err := r.db.ExecContext(ctx, schema)
	if err != nil {
		return fmt.Errorf("failed to execute schema initialization: %w", err)
	}

	// Databases created before portfolios were versioned lack the column.
	var hasVersion int
	if err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM pragma_table_info('portfolios') WHERE name = 'version'`).Scan(&hasVersion); err != nil {
		return fmt.Errorf("failed to inspect portfolios table: %w", err)
	}
	if hasVersion == 0 {
		if _, err := r.db.ExecContext(ctx, `ALTER TABLE portfolios ADD COLUMN version INTEGER NOT NULL DEFAULT 1`); err != nil {
			return fmt.Errorf("failed to add portfolio version column: %w", err)
		}
		r.logger.Info(ctx, "Added version column to portfolios table")
	}
	return nil
}

// Close closes the database connection.
func (r *Repository) Close() error {
	if r.db != nil {
		r.logger.Info(context.Background(), "Closing SQLite database connection")
		return r.db.Close()
	}
	return nil
}

// --- PortfolioRepository Implementation ---

// Persist writes the portfolio row, replaces its open positions and appends new trades in a
// single transaction. The row is only updated while the stored version still equals pf.Version,
// so a writer holding stale state gets ports.ErrConcurrentModification and writes nothing.
func (r *Repository) Persist(ctx context.Context, pf *domain.Portfolio) (err error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: begin: %w", ports.ErrDBConnection, err)
	}
	defer func() {
		if err != nil {
			if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
				r.logger.Error(ctx, rbErr, "Failed to roll back portfolio transaction", map[string]interface{}{"portfolioID": pf.ID})
			}
		}
	}()

	if pf.Version == 0 {
		const insertPortfolio = `
		INSERT INTO portfolios (id, name, initial_balance, cash_balance, created_at, updated_at, version)
		VALUES (?, ?, ?, ?, ?, ?, 1)`
		if _, err = tx.ExecContext(ctx, insertPortfolio,
			pf.ID, pf.Name, pf.InitialBalance.String(), pf.CashBalance.String(), pf.CreatedAt, pf.UpdatedAt); err != nil {
			if isConstraintViolation(err) {
				return fmt.Errorf("%w: portfolio %s", ports.ErrDuplicateEntry, pf.ID)
			}
			return fmt.Errorf("%w: insert portfolio %s: %w", ports.ErrQueryFailed, pf.ID, err)
		}
	} else {
		const updatePortfolio = `
		UPDATE portfolios SET name = ?, cash_balance = ?, updated_at = ?, version = version + 1
		WHERE id = ? AND version = ?`
		var res sql.Result
		if res, err = tx.ExecContext(ctx, updatePortfolio,
			pf.Name, pf.CashBalance.String(), pf.UpdatedAt, pf.ID, pf.Version); err != nil {
			return fmt.Errorf("%w: update portfolio %s: %w", ports.ErrQueryFailed, pf.ID, err)
		}
		var n int64
		if n, err = res.RowsAffected(); err != nil {
			return fmt.Errorf("%w: update portfolio %s: %w", ports.ErrQueryFailed, pf.ID, err)
		}
		if n == 0 {
			return fmt.Errorf("%w: portfolio %s changed since version %d", ports.ErrConcurrentModification, pf.ID, pf.Version)
		}
	}

	if _, err = tx.ExecContext(ctx, `DELETE FROM positions WHERE portfolio_id = ?`, pf.ID); err != nil {
		return fmt.Errorf("%w: clear positions of %s: %w", ports.ErrQueryFailed, pf.ID, err)
	}
	const insertPosition = `
	INSERT INTO positions (portfolio_id, instrument_id, symbol, quantity, average_entry_price,
	                       realized_pnl, status, opened_at, updated_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`
	for _, pos := range pf.OpenPositions() {
		if _, err = tx.ExecContext(ctx, insertPosition,
			pf.ID, pos.InstrumentID, pos.Symbol, pos.Quantity.String(), pos.AverageEntryPrice.String(),
			pos.RealizedPnL.String(), string(pos.Status), pos.OpenedAt, pos.UpdatedAt); err != nil {
			return fmt.Errorf("%w: insert position %s: %w", ports.ErrQueryFailed, pos.InstrumentID, err)
		}
	}

	// Trades are append-only: everything past the highest stored sequence is new.
	var lastSeq int64
	if err = tx.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(sequence), 0) FROM trades WHERE portfolio_id = ?`, pf.ID).Scan(&lastSeq); err != nil {
		return fmt.Errorf("%w: last trade sequence of %s: %w", ports.ErrQueryFailed, pf.ID, err)
	}
	const insertTrade = `
	INSERT INTO trades (id, portfolio_id, instrument_id, symbol, side, quantity, price,
	                    commission, total_amount, realized_pnl, reducing, executed_at, sequence)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	inserted := 0
	for _, t := range pf.Trades {
		if t.Sequence <= lastSeq {
			continue
		}
		if _, err = tx.ExecContext(ctx, insertTrade,
			t.ID, pf.ID, t.InstrumentID, t.Symbol, string(t.Side), t.Quantity.String(), t.Price.String(),
			t.Commission.String(), t.TotalAmount.String(), t.RealizedPnL.String(), t.Reducing, t.ExecutedAt, t.Sequence); err != nil {
			if isConstraintViolation(err) {
				return fmt.Errorf("%w: %w: trade %s (sequence %d)", ports.ErrConcurrentModification, ports.ErrDuplicateEntry, t.ID, t.Sequence)
			}
			return fmt.Errorf("%w: insert trade %s: %w", ports.ErrQueryFailed, t.ID, err)
		}
		inserted++
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("%w: commit portfolio %s: %w", ports.ErrQueryFailed, pf.ID, err)
	}
	pf.Version++
	r.logger.Debug(ctx, "Portfolio persisted", map[string]interface{}{
		"portfolioID": pf.ID,
		"version":     pf.Version,
		"positions":   len(pf.Positions),
		"newTrades":   inserted,
	})
	return nil
}

// isConstraintViolation reports whether err is a UNIQUE or PRIMARY KEY violation.
func isConstraintViolation(err error) bool {
	var sqliteErr sqlite3.Error
	if !errors.As(err, &sqliteErr) {
		return false
	}
	return sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique || sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
}

// LoadPortfolio retrieves a portfolio with its open positions and trade history.
func (r *Repository) LoadPortfolio(ctx context.Context, id string) (*domain.Portfolio, error) {
	const query = `
	SELECT id, name, initial_balance, cash_balance, created_at, updated_at, version
	FROM portfolios WHERE id = ?`

	pf := &domain.Portfolio{Positions: make(map[string]*domain.Position)}
	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&pf.ID, &pf.Name, &pf.InitialBalance, &pf.CashBalance, &pf.CreatedAt, &pf.UpdatedAt, &pf.Version)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			r.logger.Debug(ctx, "Portfolio not found", map[string]interface{}{"portfolioID": id})
			return nil, fmt.Errorf("%w: %s", ports.ErrPortfolioNotFound, id)
		}
		return nil, fmt.Errorf("%w: query portfolio %s: %w", ports.ErrQueryFailed, id, err)
	}

	positions, err := r.loadPositions(ctx, id)
	if err != nil {
		return nil, err
	}
	for _, pos := range positions {
		pf.Positions[pos.InstrumentID] = pos
	}

	pf.Trades, err = r.loadTrades(ctx, id)
	if err != nil {
		return nil, err
	}
	return pf, nil
}

func (r *Repository) loadPositions(ctx context.Context, portfolioID string) ([]*domain.Position, error) {
	const query = `
	SELECT instrument_id, symbol, quantity, average_entry_price, realized_pnl, status, opened_at, updated_at
	FROM positions WHERE portfolio_id = ?`

	rows, err := r.db.QueryContext(ctx, query, portfolioID)
	if err != nil {
		return nil, fmt.Errorf("%w: query positions of %s: %w", ports.ErrQueryFailed, portfolioID, err)
	}
	defer rows.Close()

	positions := make([]*domain.Position, 0)
	for rows.Next() {
		pos, err := scanPosition(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan position: %w", err)
		}
		positions = append(positions, pos)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating position rows: %w", err)
	}
	return positions, nil
}

func (r *Repository) loadTrades(ctx context.Context, portfolioID string) ([]*domain.Trade, error) {
	const query = `
	SELECT id, portfolio_id, instrument_id, symbol, side, quantity, price, commission, total_amount,
	       realized_pnl, reducing, executed_at, sequence
	FROM trades WHERE portfolio_id = ? ORDER BY sequence`

	rows, err := r.db.QueryContext(ctx, query, portfolioID)
	if err != nil {
		return nil, fmt.Errorf("%w: query trades of %s: %w", ports.ErrQueryFailed, portfolioID, err)
	}
	defer rows.Close()

	trades := make([]*domain.Trade, 0)
	for rows.Next() {
		t, err := scanTrade(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan trade: %w", err)
		}
		trades = append(trades, t)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating trade rows: %w", err)
	}
	sort.SliceStable(trades, func(i, j int) bool { return trades[i].Before(trades[j]) })
	return trades, nil
}

// ListPortfolioIDs returns all portfolio IDs in creation order.
func (r *Repository) ListPortfolioIDs(ctx context.Context) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT id FROM portfolios ORDER BY created_at, id`)
	if err != nil {
		return nil, fmt.Errorf("%w: list portfolios: %w", ports.ErrQueryFailed, err)
	}
	defer rows.Close()

	ids := make([]string, 0)
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan portfolio id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// --- EquityHistory Implementation ---

// SaveSnapshot appends a point to a portfolio's equity curve.
func (r *Repository) SaveSnapshot(ctx context.Context, snap domain.EquitySnapshot) error {
	const query = `
	INSERT INTO equity_snapshots (portfolio_id, taken_at, cash_balance, positions_value, total_equity)
	VALUES (?, ?, ?, ?, ?)`
	_, err := r.db.ExecContext(ctx, query,
		snap.PortfolioID, snap.Timestamp, snap.CashBalance.String(), snap.PositionsMarketValue.String(), snap.TotalEquity.String())
	if err != nil {
		return fmt.Errorf("%w: insert equity snapshot for %s: %w", ports.ErrQueryFailed, snap.PortfolioID, err)
	}
	r.logger.Debug(ctx, "Equity snapshot saved", map[string]interface{}{
		"portfolioID": snap.PortfolioID,
		"equity":      snap.TotalEquity.String(),
	})
	return nil
}

// ListSnapshots returns the curve at or after since, oldest first.
func (r *Repository) ListSnapshots(ctx context.Context, portfolioID string, since time.Time) ([]domain.EquitySnapshot, error) {
	const query = `
	SELECT portfolio_id, taken_at, cash_balance, positions_value, total_equity
	FROM equity_snapshots WHERE portfolio_id = ? ORDER BY id`

	rows, err := r.db.QueryContext(ctx, query, portfolioID)
	if err != nil {
		return nil, fmt.Errorf("%w: query equity of %s: %w", ports.ErrQueryFailed, portfolioID, err)
	}
	defer rows.Close()

	out := make([]domain.EquitySnapshot, 0)
	for rows.Next() {
		var s domain.EquitySnapshot
		if err := rows.Scan(&s.PortfolioID, &s.Timestamp, &s.CashBalance, &s.PositionsMarketValue, &s.TotalEquity); err != nil {
			return nil, fmt.Errorf("failed to scan equity snapshot: %w", err)
		}
		if !since.IsZero() && s.Timestamp.Before(since) {
			continue
		}
		out = append(out, s)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating equity rows: %w", err)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Timestamp.Before(out[j].Timestamp) })
	return out, nil
}

// --- Helper Scan Functions ---

// scanner defines an interface compatible with *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...interface{}) error
}

// scanPosition scans a row into a domain.Position struct.
func scanPosition(s scanner) (*domain.Position, error) {
	p := &domain.Position{}
	var status string
	err := s.Scan(&p.InstrumentID, &p.Symbol, &p.Quantity, &p.AverageEntryPrice, &p.RealizedPnL,
		&status, &p.OpenedAt, &p.UpdatedAt)
	if err != nil {
		return nil, err
	}
	p.Status = domain.PositionStatus(status)
	return p, nil
}

// scanTrade scans a row into a domain.Trade struct.
func scanTrade(s scanner) (*domain.Trade, error) {
	t := &domain.Trade{}
	var side string
	err := s.Scan(&t.ID, &t.PortfolioID, &t.InstrumentID, &t.Symbol, &side, &t.Quantity, &t.Price,
		&t.Commission, &t.TotalAmount, &t.RealizedPnL, &t.Reducing, &t.ExecutedAt, &t.Sequence)
	if err != nil {
		return nil, err
	}
	t.Side = domain.OrderSide(side)
	return t, nil
}
