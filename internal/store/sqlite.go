package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"

	apperrors "tw-screener/internal/errors"
	"tw-screener/internal/models"
)

// SQLiteStore implements HistoryStore using SQLite.
type SQLiteStore struct {
	db *sql.DB
	mu sync.Mutex
}

// NewSQLiteStore opens (and creates if needed) the history database.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, apperrors.NewStoreError(BackendSQLite, "open", err)
		}
	}

	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, apperrors.NewStoreError(BackendSQLite, "open", err)
	}

	db.SetMaxOpenConns(4)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(time.Hour)

	store := &SQLiteStore{db: db}
	if err := store.initSchema(); err != nil {
		db.Close()
		return nil, apperrors.NewStoreError(BackendSQLite, "init schema", err)
	}

	return store, nil
}

func (s *SQLiteStore) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS history (
		screen_date TEXT NOT NULL,
		code TEXT NOT NULL,
		name TEXT,
		sector TEXT,
		strategy TEXT NOT NULL,
		close REAL NOT NULL,
		entry_price REAL NOT NULL,
		bias REAL,
		rsi REAL,
		net_buy_lots INTEGER,
		revenue_yoy REAL,
		annotation TEXT,
		updated_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		PRIMARY KEY (screen_date, code, strategy)
	);

	CREATE INDEX IF NOT EXISTS idx_history_strategy ON history(strategy);
	CREATE INDEX IF NOT EXISTS idx_history_code ON history(code);
	`

	_, err := s.db.Exec(schema)
	return err
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Save upserts records in one transaction.
func (s *SQLiteStore) Save(ctx context.Context, records []models.HistoryRecord) error {
	if len(records) == 0 {
		return nil
	}
	normalized, err := normalizeAll(records)
	if err != nil {
		return apperrors.NewStoreError(BackendSQLite, "save", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return apperrors.NewStoreError(BackendSQLite, "begin", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO history (screen_date, code, name, sector, strategy, close, entry_price, bias, rsi, net_buy_lots, revenue_yoy, annotation, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(screen_date, code, strategy) DO UPDATE SET
			name = excluded.name,
			sector = excluded.sector,
			close = excluded.close,
			entry_price = excluded.entry_price,
			bias = excluded.bias,
			rsi = excluded.rsi,
			net_buy_lots = excluded.net_buy_lots,
			revenue_yoy = excluded.revenue_yoy,
			annotation = excluded.annotation,
			updated_at = CURRENT_TIMESTAMP
	`)
	if err != nil {
		return apperrors.NewStoreError(BackendSQLite, "prepare", err)
	}
	defer stmt.Close()

	for _, r := range normalized {
		_, err := stmt.ExecContext(ctx, r.ScreenDate, r.Code, r.Name, r.Sector, r.Strategy, r.Close, r.EntryPrice, r.Bias, r.RSI, r.NetBuyLots, r.RevenueYoY, r.Annotation)
		if err != nil {
			return apperrors.NewStoreError(BackendSQLite, "insert", fmt.Errorf("%s: %w", r.Key(), err))
		}
	}

	if err := tx.Commit(); err != nil {
		return apperrors.NewStoreError(BackendSQLite, "commit", err)
	}
	return nil
}

// Load returns matching records ordered by screen date, then code and strategy.
// Rows whose strategy is no longer known are skipped.
func (s *SQLiteStore) Load(ctx context.Context, filter HistoryFilter) ([]models.HistoryRecord, error) {
	filter = NormalizeFilter(filter)
	query := "SELECT screen_date, code, name, sector, strategy, close, entry_price, bias, rsi, net_buy_lots, revenue_yoy, annotation FROM history WHERE 1=1"
	args := []interface{}{}

	if filter.Strategy != "" {
		query += " AND strategy = ?"
		args = append(args, filter.Strategy)
	}
	if filter.Code != "" {
		query += " AND code = ?"
		args = append(args, filter.Code)
	}
	if filter.From != "" {
		query += " AND screen_date >= ?"
		args = append(args, filter.From)
	}
	if filter.To != "" {
		query += " AND screen_date <= ?"
		args = append(args, filter.To)
	}
	query += " ORDER BY screen_date ASC, code ASC, strategy ASC"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, apperrors.NewStoreError(BackendSQLite, "query", err)
	}
	defer rows.Close()

	var records []models.HistoryRecord
	for rows.Next() {
		var r models.HistoryRecord
		var name, sector, annotation sql.NullString
		var bias, rsi, yoy sql.NullFloat64
		var lots sql.NullInt64
		if err := rows.Scan(&r.ScreenDate, &r.Code, &name, &sector, &r.Strategy, &r.Close, &r.EntryPrice, &bias, &rsi, &lots, &yoy, &annotation); err != nil {
			return nil, apperrors.NewStoreError(BackendSQLite, "scan", err)
		}
		r.Name, r.Sector, r.Annotation = name.String, sector.String, annotation.String
		r.Bias, r.RSI, r.RevenueYoY = bias.Float64, rsi.Float64, yoy.Float64
		r.NetBuyLots = lots.Int64

		if n, ok := normalize(r); ok {
			records = append(records, n)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.NewStoreError(BackendSQLite, "iterate", err)
	}

	return limitRecords(records, filter.Limit), nil
}

// Clear deletes every record.
func (s *SQLiteStore) Clear(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.db.ExecContext(ctx, "DELETE FROM history"); err != nil {
		return apperrors.NewStoreError(BackendSQLite, "clear", err)
	}
	return nil
}

// limitRecords keeps the newest limit records.
func limitRecords(records []models.HistoryRecord, limit int) []models.HistoryRecord {
	if limit > 0 && len(records) > limit {
		return records[len(records)-limit:]
	}
	return records
}
