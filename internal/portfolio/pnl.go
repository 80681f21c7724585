package portfolio

import (
	"os"
	"strconv"
	"strings"
	"sync"

	"github.com/pkg/errors"

	"cryptobot/internal/model"
)

// Ledger holds the cumulative realized P/L and mirrors it into a file that
// contains nothing but that number. The file is rewritten on every change.
type Ledger struct {
	mu     sync.RWMutex
	path   string
	total  float64
	trades int
	wins   int
}

// LoadLedger reads the ledger at path. A missing file starts at 0.
// A file that does not parse also starts at 0 and returns a
// *model.PersistenceError alongside the usable ledger.
func LoadLedger(path string) (*Ledger, error) {
	l := &Ledger{path: path}
	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return l, nil
		}
		return l, &model.PersistenceError{Op: "read", Path: path, Err: err}
	}
	fields := strings.Fields(string(raw))
	if len(fields) == 0 {
		return l, nil
	}
	v, err := strconv.ParseFloat(fields[0], 64)
	if err != nil {
		return l, &model.PersistenceError{Op: "parse", Path: path, Err: err}
	}
	l.total = v
	return l, nil
}

// Total returns the cumulative P/L.
func (l *Ledger) Total() float64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.total
}

// Path returns the backing file.
func (l *Ledger) Path() string { return l.path }

// Add adds pnl to the total and persists it. The in-memory total is updated
// even when the write fails.
func (l *Ledger) Add(pnl float64) (float64, error) {
	l.mu.Lock()
	l.total += pnl
	l.trades++
	if pnl > 0 {
		l.wins++
	}
	total := l.total
	l.mu.Unlock()
	return total, l.persist(total)
}

func (l *Ledger) persist(total float64) error {
	if l.path == "" {
		return nil
	}
	data := strconv.FormatFloat(total, 'g', -1, 64)
	if err := os.WriteFile(l.path, []byte(data), 0o644); err != nil {
		return &model.PersistenceError{Op: "write", Path: l.path, Err: errors.WithStack(err)}
	}
	return nil
}

// LedgerSummary describes the realized trades of this session.
type LedgerSummary struct {
	TotalPnL     float64 `json:"total_pnl"`
	ClosedTrades int     `json:"closed_trades"`
	Wins         int     `json:"wins"`
	WinRatePct   float64 `json:"win_rate_pct"`
}

// Summary returns the current totals. Trade counts cover this process only;
// the file stores just the total.
func (l *Ledger) Summary() LedgerSummary {
	l.mu.RLock()
	defer l.mu.RUnlock()
	s := LedgerSummary{TotalPnL: l.total, ClosedTrades: l.trades, Wins: l.wins}
	if l.trades > 0 {
		s.WinRatePct = float64(l.wins) / float64(l.trades) * 100
	}
	return s
}
