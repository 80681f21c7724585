package execution

import (
	"database/sql"
	"log/slog"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/pkg/errors"

	"cryptobot/internal/model"
)

// Journal persists trade fills to SQLite for analysis and audit.
type Journal struct {
	mu sync.Mutex
	db *sql.DB
}

// NewJournal opens (or creates) a SQLite journal database.
func NewJournal(dbPath string) (*Journal, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal=WAL&_sync=NORMAL")
	if err != nil {
		return nil, errors.Wrap(err, "open journal")
	}

	schema := `
	CREATE TABLE IF NOT EXISTS trades (
		id          INTEGER PRIMARY KEY AUTOINCREMENT,
		order_id    TEXT NOT NULL,
		strategy    TEXT NOT NULL,
		side        TEXT NOT NULL,
		market      TEXT NOT NULL,
		quantity    REAL NOT NULL,
		price       REAL NOT NULL,
		pnl         REAL DEFAULT 0,
		simulated   INTEGER NOT NULL,
		reason      TEXT,
		filled_at   DATETIME NOT NULL,
		created_at  DATETIME DEFAULT CURRENT_TIMESTAMP
	);
	CREATE INDEX IF NOT EXISTS idx_trades_market ON trades(market);
	CREATE INDEX IF NOT EXISTS idx_trades_filled_at ON trades(filled_at);
	`
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "create journal schema")
	}

	slog.Info("opened trade journal", "path", dbPath)
	return &Journal{db: db}, nil
}

// TradeEntry is what gets journaled for one fill.
type TradeEntry struct {
	Fill     model.Fill
	Strategy string
	PnL      float64 // realized P/L, sells only
	Reason   string
}

// RecordFill persists a fill to the journal.
func (j *Journal) RecordFill(e TradeEntry) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	sim := 0
	if e.Fill.Simulated {
		sim = 1
	}
	_, err := j.db.Exec(
		`INSERT INTO trades (order_id, strategy, side, market, quantity, price, pnl, simulated, reason, filled_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.Fill.OrderID,
		e.Strategy,
		string(e.Fill.Side),
		e.Fill.Market,
		e.Fill.Quantity,
		e.Fill.Price,
		e.PnL,
		sim,
		e.Reason,
		e.Fill.FilledAt.UTC().Format(time.RFC3339),
	)
	return errors.Wrap(err, "insert trade")
}

// TradeRecord represents a row from the trades table.
type TradeRecord struct {
	ID        int64   `json:"id"`
	OrderID   string  `json:"order_id"`
	Strategy  string  `json:"strategy"`
	Side      string  `json:"side"`
	Market    string  `json:"market"`
	Quantity  float64 `json:"quantity"`
	Price     float64 `json:"price"`
	PnL       float64 `json:"pnl"`
	Simulated bool    `json:"simulated"`
	Reason    string  `json:"reason"`
	FilledAt  string  `json:"filled_at"`
}

// GetTrades returns the last N trades, newest first.
func (j *Journal) GetTrades(limit int) ([]TradeRecord, error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	rows, err := j.db.Query(
		`SELECT id, order_id, strategy, side, market, quantity, price, pnl, simulated, reason, filled_at
		 FROM trades ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, errors.Wrap(err, "query trades")
	}
	defer rows.Close()

	var trades []TradeRecord
	for rows.Next() {
		var (
			t   TradeRecord
			sim int
		)
		if err := rows.Scan(&t.ID, &t.OrderID, &t.Strategy, &t.Side, &t.Market,
			&t.Quantity, &t.Price, &t.PnL, &sim, &t.Reason, &t.FilledAt); err != nil {
			continue
		}
		t.Simulated = sim == 1
		trades = append(trades, t)
	}
	return trades, rows.Err()
}

// Close closes the journal database.
func (j *Journal) Close() error {
	return j.db.Close()
}
