// Package sqlite holds the durable settings record and an append-only trade
// journal in a local SQLite database (WAL mode, single writer connection).
package sqlite

import (
	"database/sql"
	"fmt"
	"log"
	"time"

	"papertraderv1/internal/model"

	_ "github.com/mattn/go-sqlite3"
)

// settingsSchemaVersion tags the settings row for explicit future migration.
const settingsSchemaVersion = 1

// Config configures the SQLite store.
type Config struct {
	DBPath string // e.g. "data/papertrader.db"
}

// Store owns the settings record and the trade journal.
type Store struct {
	db *sql.DB
}

// DB returns the underlying sql.DB for health checks.
func (s *Store) DB() *sql.DB { return s.db }

// New opens the database, enables WAL, and creates the schema.
func New(cfg Config) (*Store, error) {
	db, err := sql.Open("sqlite3", cfg.DBPath+"?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("sqlite open: %w", err)
	}

	// Single-writer discipline
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := createSchema(db); err != nil {
		return nil, fmt.Errorf("sqlite schema: %w", err)
	}

	log.Printf("[sqlite] opened database at %s", cfg.DBPath)
	return &Store{db: db}, nil
}

func createSchema(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS settings (
			id                  INTEGER PRIMARY KEY CHECK (id = 1),
			version             INTEGER NOT NULL,
			use_realtime_feed   INTEGER NOT NULL,
			polling_interval_ms INTEGER NOT NULL,
			updated_at          INTEGER NOT NULL
		);

		CREATE TABLE IF NOT EXISTS trade_journal (
			id           TEXT    NOT NULL PRIMARY KEY,
			order_id     TEXT    NOT NULL,
			code         TEXT    NOT NULL,
			side         TEXT    NOT NULL,
			price        REAL    NOT NULL,
			quantity     REAL    NOT NULL,
			total_amount REAL    NOT NULL,
			fee          REAL    NOT NULL,
			ts           INTEGER NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_journal_code_ts ON trade_journal (code, ts);
	`)
	return err
}

// LoadSettings reads the single settings record, falling back to defaults
// when no row exists yet.
func (s *Store) LoadSettings() (model.FeedSettings, error) {
	var (
		version  int
		realtime int
		interval int
	)
	err := s.db.QueryRow(
		`SELECT version, use_realtime_feed, polling_interval_ms FROM settings WHERE id = 1`,
	).Scan(&version, &realtime, &interval)
	if err == sql.ErrNoRows {
		return model.DefaultFeedSettings(), nil
	}
	if err != nil {
		return model.FeedSettings{}, fmt.Errorf("sqlite load settings: %w", err)
	}

	return model.FeedSettings{
		UseRealtimeFeed:   realtime != 0,
		PollingIntervalMs: interval,
	}, nil
}

// SaveSettings upserts the single settings record.
func (s *Store) SaveSettings(fs model.FeedSettings) error {
	realtime := 0
	if fs.UseRealtimeFeed {
		realtime = 1
	}
	_, err := s.db.Exec(`
		INSERT INTO settings (id, version, use_realtime_feed, polling_interval_ms, updated_at)
		VALUES (1, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			version = excluded.version,
			use_realtime_feed = excluded.use_realtime_feed,
			polling_interval_ms = excluded.polling_interval_ms,
			updated_at = excluded.updated_at
	`, settingsSchemaVersion, realtime, fs.PollingIntervalMs, time.Now().Unix())
	if err != nil {
		return fmt.Errorf("sqlite save settings: %w", err)
	}
	return nil
}

// JournalTrade appends a completed fill to the durable journal.
func (s *Store) JournalTrade(t model.Trade) error {
	_, err := s.db.Exec(`
		INSERT OR REPLACE INTO trade_journal (id, order_id, code, side, price, quantity, total_amount, fee, ts)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, t.ID, t.OrderID, t.Code, string(t.Side), t.Price, t.Quantity, t.TotalAmount, t.Fee, t.Timestamp.Unix())
	if err != nil {
		return fmt.Errorf("sqlite journal trade: %w", err)
	}
	return nil
}

// ReadJournal returns journaled trades for an instrument, oldest first.
func (s *Store) ReadJournal(code string, limit int) ([]model.Trade, error) {
	rows, err := s.db.Query(`
		SELECT id, order_id, code, side, price, quantity, total_amount, fee, ts
		FROM trade_journal WHERE code = ? ORDER BY ts ASC LIMIT ?
	`, code, limit)
	if err != nil {
		return nil, fmt.Errorf("sqlite read journal: %w", err)
	}
	defer rows.Close()

	var out []model.Trade
	for rows.Next() {
		var (
			t    model.Trade
			side string
			ts   int64
		)
		if err := rows.Scan(&t.ID, &t.OrderID, &t.Code, &side, &t.Price, &t.Quantity, &t.TotalAmount, &t.Fee, &ts); err != nil {
			return nil, err
		}
		t.Side = model.OrderSide(side)
		t.Timestamp = time.Unix(ts, 0).UTC()
		out = append(out, t)
	}
	return out, rows.Err()
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}
