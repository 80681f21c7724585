package portfolio

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cryptobot/internal/model"
)

func TestLedger_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sim_log.txt")

	l, err := LoadLedger(path)
	require.NoError(t, err)
	assert.Zero(t, l.Total())

	total, err := l.Add(123.45)
	require.NoError(t, err)
	assert.Equal(t, 123.45, total)

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "123.45", string(raw))

	reloaded, err := LoadLedger(path)
	require.NoError(t, err)
	assert.Equal(t, 123.45, reloaded.Total())
}

func TestLedger_AccumulatesAndSummarizes(t *testing.T) {
	l, err := LoadLedger(filepath.Join(t.TempDir(), "log.txt"))
	require.NoError(t, err)

	_, _ = l.Add(10)
	_, _ = l.Add(-4)
	total, err := l.Add(2.5)
	require.NoError(t, err)
	assert.InDelta(t, 8.5, total, 1e-12)

	s := l.Summary()
	assert.Equal(t, 3, s.ClosedTrades)
	assert.Equal(t, 2, s.Wins)
	assert.InDelta(t, 66.666, s.WinRatePct, 1e-2)
}

func TestLedger_CorruptFileStartsAtZero(t *testing.T) {
	path := filepath.Join(t.TempDir(), "log.txt")
	require.NoError(t, os.WriteFile(path, []byte("garbage"), 0o644))

	l, err := LoadLedger(path)
	var pe *model.PersistenceError
	require.True(t, errors.As(err, &pe))
	assert.Equal(t, "parse", pe.Op)
	require.NotNil(t, l)
	assert.Zero(t, l.Total())
}

func TestLedger_WriteFailureKeepsMemory(t *testing.T) {
	// Directory does not exist, so every write fails.
	l, err := LoadLedger(filepath.Join(t.TempDir(), "missing", "log.txt"))
	require.NoError(t, err)

	total, err := l.Add(5)
	var pe *model.PersistenceError
	require.True(t, errors.As(err, &pe))
	assert.Equal(t, "write", pe.Op)
	assert.Equal(t, 5.0, total)
	assert.Equal(t, 5.0, l.Total())
}

func TestPosition_EnterExit(t *testing.T) {
	var p Position
	p.Enter(model.Fill{Market: "BTC-EUR", Price: 100, Quantity: 2})
	require.True(t, p.Open)
	assert.InDelta(t, 20, p.UnrealizedPnL(110, 2), 1e-12)
	assert.InDelta(t, 10, p.UnrealizedPct(110), 1e-12)

	pnl := p.Exit(model.Fill{Price: 90, Quantity: 2})
	assert.InDelta(t, -20, pnl, 1e-12)
	assert.False(t, p.Open)
	assert.Zero(t, p.EntryPrice)
	assert.Equal(t, "BTC-EUR", p.Market)
	assert.Zero(t, p.UnrealizedPnL(200, 1))
}

func TestRiskLimits_Gates(t *testing.T) {
	r := DefaultRiskLimits()
	require.NoError(t, r.Validate())

	amt, why := r.CanBuy(Position{}, 1000, 0)
	assert.Empty(t, why)
	assert.InDelta(t, 250, amt, 1e-12)

	_, why = r.CanBuy(Position{}, 50, 0)
	assert.NotEmpty(t, why, "fiat must be strictly above the minimum")

	_, why = r.CanBuy(Position{}, 1000, 0.001)
	assert.NotEmpty(t, why)

	_, why = r.CanBuy(Position{Open: true, EntryPrice: 1}, 1000, 0)
	assert.NotEmpty(t, why)

	open := Position{Open: true, EntryPrice: 100, Quantity: 0.5}
	qty, why := r.CanSell(open, 0.5)
	assert.Empty(t, why)
	assert.Equal(t, 0.5, qty)

	_, why = r.CanSell(open, 1e-5)
	assert.NotEmpty(t, why, "dust must be strictly exceeded")

	_, why = r.CanSell(Position{}, 1)
	assert.NotEmpty(t, why)

	assert.Error(t, RiskLimits{MaxPositionFraction: 1.5}.Validate())
}
