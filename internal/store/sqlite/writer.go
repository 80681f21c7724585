// Package sqlite archives fetched candles and per-cycle reports so history
// survives the exchange's 50-candle window. The backtest replays from here.
package sqlite

import (
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"cryptobot/internal/model"
)

const defaultReportRetention = 1000

// WriterConfig configures the SQLite writer.
type WriterConfig struct {
	DBPath          string // e.g. "data/candles.db"
	ReportRetention int    // cycle reports kept, 0 means default
}

// Writer is a single-connection SQLite writer. Every call commits its own
// transaction.
type Writer struct {
	db        *sql.DB
	retention int
	log       *slog.Logger
}

// DB returns the underlying sql.DB for health checks.
func (w *Writer) DB() *sql.DB { return w.db }

// New opens the database with WAL mode and creates the schema.
func New(cfg WriterConfig) (*Writer, error) {
	db, err := sql.Open("sqlite3", cfg.DBPath+"?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("sqlite open: %w", err)
	}

	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := createSchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite schema: %w", err)
	}

	retention := cfg.ReportRetention
	if retention <= 0 {
		retention = defaultReportRetention
	}
	log := slog.Default().With("component", "sqlite")
	log.Info("opened database", "path", cfg.DBPath)
	return &Writer{db: db, retention: retention, log: log}, nil
}

func createSchema(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS candles (
			market     TEXT    NOT NULL,
			interval   TEXT    NOT NULL,
			ts         INTEGER NOT NULL,
			open       TEXT    NOT NULL,
			high       TEXT    NOT NULL,
			low        TEXT    NOT NULL,
			close      TEXT    NOT NULL,
			volume     TEXT,
			PRIMARY KEY (market, interval, ts)
		);

		CREATE TABLE IF NOT EXISTS cycle_reports (
			id         INTEGER PRIMARY KEY AUTOINCREMENT,
			market     TEXT    NOT NULL,
			ts         INTEGER NOT NULL,
			data       TEXT    NOT NULL
		);
	`)
	return err
}

// SaveCandles inserts candles in a single transaction. Candles already stored
// for the same (market, interval, ts) are left untouched. Returns the number
// of new rows.
func (w *Writer) SaveCandles(market, interval string, candles []model.Candle) (int, error) {
	if len(candles) == 0 {
		return 0, nil
	}
	tx, err := w.db.Begin()
	if err != nil {
		return 0, err
	}

	stmt, err := tx.Prepare(`
		INSERT OR IGNORE INTO candles (market, interval, ts, open, high, low, close, volume)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		tx.Rollback()
		return 0, err
	}
	defer stmt.Close()

	start := time.Now()
	inserted := 0
	for _, c := range candles {
		res, err := stmt.Exec(market, interval, c.OpenTime,
			c.Open.String(), c.High.String(), c.Low.String(), c.Close.String(), c.Volume.String())
		if err != nil {
			tx.Rollback()
			return 0, err
		}
		if n, _ := res.RowsAffected(); n > 0 {
			inserted++
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, err
	}
	if inserted > 0 {
		w.log.Debug("archived candles", "market", market, "interval", interval, "new", inserted, "took", time.Since(start))
	}
	return inserted, nil
}

// GetLastTimestamp returns the newest stored open time, 0 when none.
func (w *Writer) GetLastTimestamp(market, interval string) (int64, error) {
	var ts sql.NullInt64
	err := w.db.QueryRow(
		`SELECT MAX(ts) FROM candles WHERE market = ? AND interval = ?`,
		market, interval,
	).Scan(&ts)
	if err != nil {
		return 0, err
	}
	if !ts.Valid {
		return 0, nil
	}
	return ts.Int64, nil
}

// SaveReport stores a JSON-encoded cycle report and prunes old ones.
func (w *Writer) SaveReport(market string, ts int64, data []byte) error {
	_, err := w.db.Exec(`INSERT INTO cycle_reports (market, ts, data) VALUES (?, ?, ?)`, market, ts, string(data))
	if err != nil {
		return fmt.Errorf("sqlite insert report: %w", err)
	}

	_, err = w.db.Exec(`DELETE FROM cycle_reports WHERE id NOT IN (SELECT id FROM cycle_reports ORDER BY id DESC LIMIT ?)`, w.retention)
	if err != nil {
		w.log.Warn("prune reports failed", "error", err)
	}
	return nil
}

// Close closes the database.
func (w *Writer) Close() error {
	return w.db.Close()
}
