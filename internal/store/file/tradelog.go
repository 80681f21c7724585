// Package file keeps the bot's plain-text artifacts: the human-readable trade
// log and the per-interval candle CSV dumps. Both are appended from the poll
// loop only.
package file

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"cryptobot/internal/model"
)

// TradeLog appends one line per executed trade, e.g.
//
//	[SIMULATION] [2024-03-01 12:00:00] SELL | Amount: 0.005 | Price: 60000 | Profit/Loss: 50 | Total Profit/Loss: 50
type TradeLog struct {
	path      string
	simulated bool
	now       func() time.Time
}

// TradeLogName is the conventional file name for the given mode.
func TradeLogName(simulated bool) string {
	if simulated {
		return "sim_trades.log"
	}
	return "trades.log"
}

// LedgerName is the conventional P/L ledger file name for the given mode.
func LedgerName(simulated bool) string {
	if simulated {
		return "sim_log.txt"
	}
	return "log.txt"
}

// NewTradeLog writes to dir/TradeLogName(simulated).
func NewTradeLog(dir string, simulated bool) *TradeLog {
	return &TradeLog{
		path:      filepath.Join(dir, TradeLogName(simulated)),
		simulated: simulated,
		now:       time.Now,
	}
}

// Path returns the log file path.
func (l *TradeLog) Path() string { return l.path }

// SetClock replaces the clock used for line timestamps.
func (l *TradeLog) SetClock(now func() time.Time) { l.now = now }

// Record appends a trade line. pnl and total are written for sells only.
func (l *TradeLog) Record(side model.Side, amount, price, pnl, total float64) error {
	mode := "[REAL]"
	if l.simulated {
		mode = "[SIMULATION]"
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%s [%s] %s | Amount: %g | Price: %g",
		mode, l.now().Format("2006-01-02 15:04:05"), strings.ToUpper(string(side)), amount, price)
	if side == model.SideSell {
		fmt.Fprintf(&b, " | Profit/Loss: %g | Total Profit/Loss: %g", pnl, total)
	}
	b.WriteByte('\n')

	f, err := os.OpenFile(l.path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return &model.PersistenceError{Op: "write", Path: l.path, Err: err}
	}
	if _, err := f.WriteString(b.String()); err != nil {
		f.Close()
		return &model.PersistenceError{Op: "write", Path: l.path, Err: err}
	}
	if err := f.Close(); err != nil {
		return &model.PersistenceError{Op: "write", Path: l.path, Err: err}
	}
	return nil
}
