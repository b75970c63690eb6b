package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"options-backtester/internal/errors"
)

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates a new SQLite-based results store.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(time.Hour)

	store := &SQLiteStore{db: db}

	if err := store.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return store, nil
}

// initSchema creates all required tables and indexes.
func (s *SQLiteStore) initSchema() error {
	schema := `
	-- Backtest runs
	CREATE TABLE IF NOT EXISTS runs (
		id TEXT PRIMARY KEY,
		started_at DATETIME NOT NULL,
		quotes_file TEXT NOT NULL,
		pricing_source TEXT NOT NULL,
		starting_capital TEXT NOT NULL
	);

	-- Per-tick portfolio snapshots. Currency columns are decimal strings.
	CREATE TABLE IF NOT EXISTS snapshots (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		run_id TEXT NOT NULL,
		as_of DATETIME NOT NULL,
		net_liquidity TEXT NOT NULL,
		total_buying_power TEXT NOT NULL,
		delta REAL NOT NULL,
		gamma REAL NOT NULL,
		theta REAL NOT NULL,
		vega REAL NOT NULL,
		active_positions INTEGER NOT NULL,
		FOREIGN KEY (run_id) REFERENCES runs(id)
	);
	CREATE INDEX IF NOT EXISTS idx_snapshots_run ON snapshots(run_id, as_of);

	-- Risk-management closures
	CREATE TABLE IF NOT EXISTS closed_positions (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		run_id TEXT NOT NULL,
		position_id TEXT NOT NULL,
		ticker TEXT NOT NULL,
		closed_at DATETIME NOT NULL,
		reason TEXT NOT NULL,
		pnl TEXT NOT NULL,
		FOREIGN KEY (run_id) REFERENCES runs(id)
	);
	CREATE INDEX IF NOT EXISTS idx_closed_run ON closed_positions(run_id);
	`

	if _, err := s.db.Exec(schema); err != nil {
		return errors.Wrap(errors.ErrDatabaseError, err.Error())
	}
	return nil
}

// CreateRun records a new backtest run.
func (s *SQLiteStore) CreateRun(ctx context.Context, run Run) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO runs (id, started_at, quotes_file, pricing_source, starting_capital)
		 VALUES (?, ?, ?, ?, ?)`,
		run.ID, run.StartedAt, run.QuotesFile, run.PricingSource, run.StartingCapital)
	if err != nil {
		return fmt.Errorf("inserting run: %w", err)
	}
	return nil
}

// SaveSnapshot records the portfolio state after one tick.
func (s *SQLiteStore) SaveSnapshot(ctx context.Context, snap Snapshot) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO snapshots (run_id, as_of, net_liquidity, total_buying_power, delta, gamma, theta, vega, active_positions)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		snap.RunID, snap.AsOf, snap.NetLiquidity, snap.TotalBuyingPower,
		snap.Delta, snap.Gamma, snap.Theta, snap.Vega, snap.ActivePositions)
	if err != nil {
		return fmt.Errorf("inserting snapshot: %w", err)
	}
	return nil
}

// SaveClosedPosition records a risk-management closure.
func (s *SQLiteStore) SaveClosedPosition(ctx context.Context, closed ClosedPosition) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO closed_positions (run_id, position_id, ticker, closed_at, reason, pnl)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		closed.RunID, closed.PositionID, closed.Ticker, closed.ClosedAt, closed.Reason, closed.PnL)
	if err != nil {
		return fmt.Errorf("inserting closed position: %w", err)
	}
	return nil
}

// GetRun fetches a run by ID.
func (s *SQLiteStore) GetRun(ctx context.Context, runID string) (*Run, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, started_at, quotes_file, pricing_source, starting_capital FROM runs WHERE id = ?`, runID)

	var run Run
	if err := row.Scan(&run.ID, &run.StartedAt, &run.QuotesFile, &run.PricingSource, &run.StartingCapital); err != nil {
		if err == sql.ErrNoRows {
			return nil, errors.Wrapf(errors.ErrDataNotFound, "run %s", runID)
		}
		return nil, fmt.Errorf("querying run: %w", err)
	}
	return &run, nil
}

// ListRuns returns all runs, most recent first.
func (s *SQLiteStore) ListRuns(ctx context.Context) ([]Run, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, started_at, quotes_file, pricing_source, starting_capital FROM runs ORDER BY started_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("querying runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var run Run
		if err := rows.Scan(&run.ID, &run.StartedAt, &run.QuotesFile, &run.PricingSource, &run.StartingCapital); err != nil {
			return nil, fmt.Errorf("scanning run: %w", err)
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

// GetSnapshots returns a run's snapshots in time order.
func (s *SQLiteStore) GetSnapshots(ctx context.Context, runID string) ([]Snapshot, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT run_id, as_of, net_liquidity, total_buying_power, delta, gamma, theta, vega, active_positions
		 FROM snapshots WHERE run_id = ? ORDER BY as_of ASC`, runID)
	if err != nil {
		return nil, fmt.Errorf("querying snapshots: %w", err)
	}
	defer rows.Close()

	var snaps []Snapshot
	for rows.Next() {
		var snap Snapshot
		if err := rows.Scan(&snap.RunID, &snap.AsOf, &snap.NetLiquidity, &snap.TotalBuyingPower,
			&snap.Delta, &snap.Gamma, &snap.Theta, &snap.Vega, &snap.ActivePositions); err != nil {
			return nil, fmt.Errorf("scanning snapshot: %w", err)
		}
		snaps = append(snaps, snap)
	}
	return snaps, rows.Err()
}

// GetClosedPositions returns a run's closures in time order.
func (s *SQLiteStore) GetClosedPositions(ctx context.Context, runID string) ([]ClosedPosition, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT run_id, position_id, ticker, closed_at, reason, pnl
		 FROM closed_positions WHERE run_id = ? ORDER BY closed_at ASC`, runID)
	if err != nil {
		return nil, fmt.Errorf("querying closed positions: %w", err)
	}
	defer rows.Close()

	var closed []ClosedPosition
	for rows.Next() {
		var c ClosedPosition
		if err := rows.Scan(&c.RunID, &c.PositionID, &c.Ticker, &c.ClosedAt, &c.Reason, &c.PnL); err != nil {
			return nil, fmt.Errorf("scanning closed position: %w", err)
		}
		closed = append(closed, c)
	}
	return closed, rows.Err()
}

// Close releases the database handle.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
