package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"cryptoPaperTrader/internal/ports"

	_ "github.com/mattn/go-sqlite3" // SQLite driver
)

// Repository implements the ports.TradeRepository and ports.TraderStateRepository interfaces using SQLite.
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
		return nil, fmt.Errorf("%w: logger is required for SQLite repository", ports.ErrConfigurationError)
	}
	dbPath := cfg.DBPath
	if dbPath == "" {
		dbPath = "./data/paper_trader.db" // Default path
	}

	// Create data directory if it doesn't exist
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		err = fmt.Errorf("failed to create data directory '%s': %w", filepath.Dir(dbPath), err)
		cfg.Logger.Error(context.Background(), err, "SQLite repository initialization failed")
		return nil, err
	}

	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		err = fmt.Errorf("%w: failed to open database at '%s': %v", ports.ErrDBConnection, dbPath, err)
		cfg.Logger.Error(context.Background(), err, "SQLite repository initialization failed")
		return nil, err
	}

	if err := db.Ping(); err != nil {
		db.Close()
		err = fmt.Errorf("%w: failed to ping database at '%s': %v", ports.ErrDBConnection, dbPath, err)
		cfg.Logger.Error(context.Background(), err, "SQLite repository initialization failed")
		return nil, err
	}

	// a single connection serializes writers
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
	return repo, nil
}

func (r *Repository) initializeSchema(ctx context.Context) error {
	const schema = `
	CREATE TABLE IF NOT EXISTS trades (
		strategy TEXT NOT NULL,
		market_id TEXT NOT NULL,
		trade_id INTEGER NOT NULL,
		data TEXT NOT NULL,
		updated_at TIMESTAMP NOT NULL,
		PRIMARY KEY (strategy, market_id, trade_id)
	);

	CREATE TABLE IF NOT EXISTS trader_state (
		name TEXT PRIMARY KEY,
		data TEXT NOT NULL,
		updated_at TIMESTAMP NOT NULL
	);
	`
	if _, err := r.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("%w: schema initialization: %v", ports.ErrQueryFailed, err)
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

// --- TradeRepository Implementation ---

// SaveTrades replaces the stored trades of a strategy and market in one transaction.
func (r *Repository) SaveTrades(ctx context.Context, strategy, marketID string, records []ports.TradeRecord) (err error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: begin transaction: %v", ports.ErrUpdateFailed, err)
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	if _, err = tx.ExecContext(ctx, `DELETE FROM trades WHERE strategy = ? AND market_id = ?`, strategy, marketID); err != nil {
		return fmt.Errorf("%w: clear trades of %s/%s: %v", ports.ErrUpdateFailed, strategy, marketID, err)
	}

	stmt, err := tx.PrepareContext(ctx, `
	INSERT INTO trades (strategy, market_id, trade_id, data, updated_at)
	VALUES (?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("%w: prepare trade insert: %v", ports.ErrUpdateFailed, err)
	}
	defer stmt.Close()

	now := time.Now().UTC()
	for _, rec := range records {
		if _, err = stmt.ExecContext(ctx, strategy, marketID, rec.TradeID, string(rec.Data), now); err != nil {
			return fmt.Errorf("%w: insert trade %d of %s/%s: %v", ports.ErrUpdateFailed, rec.TradeID, strategy, marketID, err)
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("%w: commit trades: %v", ports.ErrUpdateFailed, err)
	}
	r.logger.Debug(ctx, "Trades saved", map[string]interface{}{"strategy": strategy, "marketID": marketID, "count": len(records)})
	return nil
}

// LoadTrades returns the stored trades of a strategy and market, ordered by trade id.
func (r *Repository) LoadTrades(ctx context.Context, strategy, marketID string) ([]ports.TradeRecord, error) {
	const query = `
	SELECT trade_id, data FROM trades
	WHERE strategy = ? AND market_id = ?
	ORDER BY trade_id ASC`

	rows, err := r.db.QueryContext(ctx, query, strategy, marketID)
	if err != nil {
		return nil, fmt.Errorf("%w: load trades of %s/%s: %v", ports.ErrQueryFailed, strategy, marketID, err)
	}
	defer rows.Close()

	var records []ports.TradeRecord
	for rows.Next() {
		var (
			id   int
			data string
		)
		if err := rows.Scan(&id, &data); err != nil {
			return nil, fmt.Errorf("%w: scan trade row: %v", ports.ErrQueryFailed, err)
		}
		records = append(records, ports.TradeRecord{
			Strategy: strategy,
			MarketID: marketID,
			TradeID:  id,
			Data:     json.RawMessage(data),
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: iterate trade rows: %v", ports.ErrQueryFailed, err)
	}
	return records, nil
}

// ListMarkets returns the markets a strategy has stored trades for.
func (r *Repository) ListMarkets(ctx context.Context, strategy string) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT DISTINCT market_id FROM trades WHERE strategy = ? ORDER BY market_id`, strategy)
	if err != nil {
		return nil, fmt.Errorf("%w: list markets of %s: %v", ports.ErrQueryFailed, strategy, err)
	}
	defer rows.Close()

	var markets []string
	for rows.Next() {
		var m string
		if err := rows.Scan(&m); err != nil {
			return nil, fmt.Errorf("%w: scan market row: %v", ports.ErrQueryFailed, err)
		}
		markets = append(markets, m)
	}
	return markets, rows.Err()
}

// --- TraderStateRepository Implementation ---

// SaveTraderState stores the snapshot of a named trader, replacing the previous one.
func (r *Repository) SaveTraderState(ctx context.Context, name string, data json.RawMessage) error {
	const query = `
	INSERT INTO trader_state (name, data, updated_at) VALUES (?, ?, ?)
	ON CONFLICT(name) DO UPDATE SET data = excluded.data, updated_at = excluded.updated_at`

	if _, err := r.db.ExecContext(ctx, query, name, string(data), time.Now().UTC()); err != nil {
		return fmt.Errorf("%w: save trader state %s: %v", ports.ErrUpdateFailed, name, err)
	}
	r.logger.Debug(ctx, "Trader state saved", map[string]interface{}{"trader": name, "bytes": len(data)})
	return nil
}

// LoadTraderState returns the latest snapshot of a named trader, or nil if none exists.
func (r *Repository) LoadTraderState(ctx context.Context, name string) (json.RawMessage, error) {
	var data string
	err := r.db.QueryRowContext(ctx, `SELECT data FROM trader_state WHERE name = ?`, name).Scan(&data)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			r.logger.Debug(ctx, "No trader state stored", map[string]interface{}{"trader": name})
			return nil, nil
		}
		return nil, fmt.Errorf("%w: load trader state %s: %v", ports.ErrQueryFailed, name, err)
	}
	return json.RawMessage(data), nil
}
