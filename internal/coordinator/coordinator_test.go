package coordinator

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cryptobot/internal/execution"
	"cryptobot/internal/indicator"
	"cryptobot/internal/logger"
	"cryptobot/internal/marketdata/candlestore"
	"cryptobot/internal/metrics"
	"cryptobot/internal/model"
	"cryptobot/internal/portfolio"
	"cryptobot/internal/store/file"
	"cryptobot/internal/strategy"
	"cryptobot/pkg/exchangeapi"
)

const hourMs = int64(time.Hour / time.Millisecond)

// falling is 30 hourly closes: steep decline that flattens out, so RSI is 0
// while the MACD histogram has turned positive. Lower band ends near 147.51.
func falling() []float64 {
	out := make([]float64, 0, 30)
	p := 1000.0
	for i := 0; i < 30; i++ {
		if i < 18 {
			p -= 40
		} else {
			p--
		}
		out = append(out, p)
	}
	return out
}

// rising mirrors falling back up from its last close. Appended to falling it
// gives RSI ≈ 95, negative histogram and an upper band near 1120.49.
func rising(from float64) []float64 {
	out := make([]float64, 0, 30)
	p := from
	for i := 0; i < 30; i++ {
		if i < 18 {
			p += 40
		} else {
			p++
		}
		out = append(out, p)
	}
	return out
}

func toCandles(closes []float64, firstOpen int64) []model.Candle {
	out := make([]model.Candle, len(closes))
	for i, c := range closes {
		out[i] = model.Candle{
			OpenTime: firstOpen + int64(i)*hourMs,
			Open:     decimal.NewFromFloat(c),
			High:     decimal.NewFromFloat(c + 2),
			Low:      decimal.NewFromFloat(c - 2),
			Close:    decimal.NewFromFloat(c),
			Volume:   decimal.NewFromInt(1),
		}
	}
	return out
}

type fakeMarket struct {
	mu        sync.Mutex
	candles   []model.Candle
	price     float64
	priceErrs []error // consumed one per call
	candleErr error
	calls     map[string]int
}

func (f *fakeMarket) Candles(_ context.Context, _, interval string, limit int) ([]model.Candle, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.calls == nil {
		f.calls = map[string]int{}
	}
	f.calls[interval]++
	if f.candleErr != nil {
		return nil, f.candleErr
	}
	c := f.candles
	if len(c) > limit {
		c = c[len(c)-limit:]
	}
	return append([]model.Candle(nil), c...), nil
}

func (f *fakeMarket) TickerPrice(context.Context, string) (float64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.priceErrs) > 0 {
		err := f.priceErrs[0]
		f.priceErrs = f.priceErrs[1:]
		if err != nil {
			return 0, err
		}
	}
	return f.price, nil
}

type failingExecutor struct {
	err   error
	calls int
}

func (f *failingExecutor) Place(context.Context, model.Order) (model.Fill, error) {
	f.calls++
	return model.Fill{}, f.err
}

type recordingJournal struct{ entries []execution.TradeEntry }

func (r *recordingJournal) RecordFill(e execution.TradeEntry) error {
	r.entries = append(r.entries, e)
	return nil
}

type recordingBroadcaster struct{ channels []string }

func (r *recordingBroadcaster) Broadcast(channel string, _ []byte) {
	r.channels = append(r.channels, channel)
}

type recordingDumper struct{ saves map[string]int }

func (r *recordingDumper) Save(interval string, candles []model.Candle) (int, error) {
	if r.saves == nil {
		r.saves = map[string]int{}
	}
	r.saves[interval]++
	return len(candles), nil
}

type fixture struct {
	coord   *Coordinator
	market  *fakeMarket
	paper   *execution.PaperExecutor
	ledger  *portfolio.Ledger
	journal *recordingJournal
	bcast   *recordingBroadcaster
	metrics *metrics.Metrics
	dir     string
	now     time.Time
	sleeps  []time.Duration
}

func newFixture(t *testing.T, mutate func(*Config, *Deps)) *fixture {
	t.Helper()
	f := &fixture{
		market:  &fakeMarket{},
		journal: &recordingJournal{},
		bcast:   &recordingBroadcaster{},
		metrics: metrics.NewMetrics(prometheus.NewRegistry()),
		dir:     t.TempDir(),
		now:     time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC),
	}
	var err error
	f.ledger, err = portfolio.LoadLedger(filepath.Join(f.dir, file.LedgerName(true)))
	require.NoError(t, err)
	f.paper = execution.NewPaperExecutor("BTC-EUR", 1000, 0, logger.Discard())

	cfg := DefaultConfig("BTC-EUR")
	tradeLog := file.NewTradeLog(f.dir, true)
	tradeLog.SetClock(func() time.Time { return f.now })
	d := Deps{
		Market:      f.market,
		Wallet:      f.paper,
		Executor:    f.paper,
		Ledger:      f.ledger,
		Store:       candlestore.New(0),
		Engine:      indicator.NewEngine(indicator.DefaultParams()),
		Strategy:    strategy.NewEvaluator(strategy.DefaultThresholds()),
		Limits:      exchangeapi.NewRateLimiter(),
		TradeLog:    tradeLog,
		Journal:     f.journal,
		Broadcaster: f.bcast,
		Metrics:     f.metrics,
		Logger:      logger.Discard(),
	}
	if mutate != nil {
		mutate(&cfg, &d)
	}
	f.coord, err = New(cfg, d,
		WithClock(func() time.Time { return f.now }),
		WithSleeper(func(_ context.Context, d time.Duration) error {
			f.sleeps = append(f.sleeps, d)
			return nil
		}))
	require.NoError(t, err)
	return f
}

func TestRunCycle_BuyThenSell(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	const t0 = int64(1_709_251_200_000)

	down := falling()
	f.market.candles = toCandles(down, t0)
	f.market.price = 140 // below the lower band on every interval

	rep, err := f.coord.RunCycle(ctx)
	require.NoError(t, err)
	assert.Equal(t, strategy.ActionBuy, rep.Action)
	require.Len(t, rep.Frames, 3)
	for _, fr := range rep.Frames {
		assert.True(t, fr.Ready, fr.Interval)
		assert.Less(t, fr.Latest.RSI, 30.0)
		assert.Greater(t, fr.Latest.MACDHist, 0.0)
		assert.InDelta(t, 147.513, fr.Latest.BBLower, 1e-3)
	}
	require.NotNil(t, rep.Fill)
	assert.Equal(t, model.SideBuy, rep.Fill.Side)
	assert.InDelta(t, 250.0/140.0, rep.Fill.Quantity, 1e-12)
	assert.InDelta(t, 750, rep.Fiat, 1e-9)

	pos := f.coord.Position()
	require.True(t, pos.Open)
	assert.Equal(t, 140.0, pos.EntryPrice)

	// Same data again: already open, the buy signal is not acted on.
	rep, err = f.coord.RunCycle(ctx)
	require.NoError(t, err)
	assert.Nil(t, rep.Fill)
	assert.Equal(t, "buy signal while position open", rep.Skipped)

	// The market recovers past the upper band.
	up := rising(down[len(down)-1])
	all := append(append([]float64{}, down...), up...)
	f.market.candles = toCandles(all, t0)
	f.market.price = 1200

	rep, err = f.coord.RunCycle(ctx)
	require.NoError(t, err)
	assert.Equal(t, strategy.ActionSell, rep.Action)
	for _, fr := range rep.Frames {
		assert.Equal(t, 60, fr.Candles)
		assert.Greater(t, fr.Latest.RSI, 70.0)
		assert.Less(t, fr.Latest.MACDHist, 0.0)
		assert.InDelta(t, 1120.487, fr.Latest.BBUpper, 1e-3)
	}
	require.NotNil(t, rep.Fill)
	assert.Equal(t, model.SideSell, rep.Fill.Side)

	wantPnL := (1200.0 - 140.0) * (250.0 / 140.0)
	assert.InDelta(t, wantPnL, rep.RealizedPnL, 1e-9)
	assert.InDelta(t, wantPnL, rep.TotalPnL, 1e-9)
	assert.False(t, f.coord.Position().Open)
	assert.InDelta(t, 750+wantPnL+250, rep.Fiat, 1e-9)
	assert.InDelta(t, (rep.Fiat/1000-1)*100, rep.PerformancePct, 1e-9)

	// Ledger persisted.
	reloaded, err := portfolio.LoadLedger(f.ledger.Path())
	require.NoError(t, err)
	assert.InDelta(t, wantPnL, reloaded.Total(), 1e-9)

	// Trade log has one BUY and one SELL line.
	raw, err := os.ReadFile(filepath.Join(f.dir, "sim_trades.log"))
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(raw)), "\n")
	require.Len(t, lines, 2)
	assert.True(t, strings.HasPrefix(lines[0], "[SIMULATION] [2024-03-01 12:00:00] BUY | Amount: "))
	assert.Contains(t, lines[1], "SELL | Amount: ")
	assert.Contains(t, lines[1], "| Price: 1200 | Profit/Loss: ")

	require.Len(t, f.journal.entries, 2)
	assert.Equal(t, "BB_RSI_MACD_MTF", f.journal.entries[1].Strategy)
	assert.InDelta(t, wantPnL, f.journal.entries[1].PnL, 1e-9)

	assert.Contains(t, f.bcast.channels, "trade:BTC-EUR")
	assert.Contains(t, f.bcast.channels, "report:BTC-EUR")
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.Orders.WithLabelValues("sell", "filled")))
	assert.Equal(t, 3.0, testutil.ToFloat64(f.metrics.CyclesTotal.WithLabelValues("ok")))
	assert.Equal(t, 0.0, testutil.ToFloat64(f.metrics.PositionOpen))
}

func TestRunCycle_WarmupHolds(t *testing.T) {
	f := newFixture(t, nil)
	f.market.candles = toCandles(falling()[:19], 0)
	f.market.price = 1

	rep, err := f.coord.RunCycle(context.Background())
	require.NoError(t, err)
	assert.Equal(t, strategy.ActionHold, rep.Action)
	for _, fr := range rep.Frames {
		assert.False(t, fr.Ready)
	}
	assert.Nil(t, rep.Fill)
	for _, iv := range []string{"1m", "5m", "15m", "1h"} {
		assert.Equal(t, 1, f.market.calls[iv], iv)
	}
}

func TestRunCycle_OrderFailureKeepsState(t *testing.T) {
	exec := &failingExecutor{err: &exchangeapi.ExhaustedError{Attempts: 5, Last: &exchangeapi.HTTPStatusError{StatusCode: 502}}}
	f := newFixture(t, func(_ *Config, d *Deps) { d.Executor = exec })
	f.market.candles = toCandles(falling(), 0)
	f.market.price = 140

	for i := 0; i < 2; i++ {
		rep, err := f.coord.RunCycle(context.Background())
		require.NoError(t, err)
		assert.Equal(t, strategy.ActionBuy, rep.Action)
		assert.Nil(t, rep.Fill)
		assert.NotEmpty(t, rep.OrderError)
		assert.False(t, f.coord.Position().Open)
	}
	assert.Equal(t, 2, exec.calls, "retried on the next cycle")
	assert.Zero(t, f.ledger.Total())
	_, err := os.Stat(filepath.Join(f.dir, "sim_trades.log"))
	assert.True(t, os.IsNotExist(err))
}

func TestRunCycle_BuyGatedByFiatFloor(t *testing.T) {
	f := newFixture(t, func(_ *Config, d *Deps) {
		paper := execution.NewPaperExecutor("BTC-EUR", 50, 0, logger.Discard())
		d.Wallet, d.Executor = paper, paper
	})
	f.market.candles = toCandles(falling(), 0)
	f.market.price = 140

	rep, err := f.coord.RunCycle(context.Background())
	require.NoError(t, err)
	assert.Equal(t, strategy.ActionBuy, rep.Action)
	assert.Nil(t, rep.Fill)
	assert.Contains(t, rep.Skipped, "not above minimum")
}

func TestRunCycle_NoPriceFailsCycle(t *testing.T) {
	f := newFixture(t, nil)
	f.market.candles = toCandles(falling(), 0)
	f.market.priceErrs = []error{exchangeapi.ErrNoPrice}

	_, err := f.coord.RunCycle(context.Background())
	require.ErrorIs(t, err, exchangeapi.ErrNoPrice)
	assert.False(t, f.coord.Position().Open)
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.CyclesTotal.WithLabelValues("error")))
}

func TestRun_RetryDelayAndMaxCycles(t *testing.T) {
	f := newFixture(t, func(c *Config, _ *Deps) { c.MaxCycles = 3 })
	f.market.candles = toCandles(falling()[:5], 0)
	f.market.price = 100
	f.market.priceErrs = []error{exchangeapi.ErrNoPrice}

	require.NoError(t, f.coord.Run(context.Background()))
	assert.Equal(t, []time.Duration{5 * time.Second, 10 * time.Second}, f.sleeps)
}

func TestRun_FatalAuthStops(t *testing.T) {
	f := newFixture(t, nil)
	f.market.candleErr = &exchangeapi.AuthError{StatusCode: 401, Body: `{"error":"bad key"}`}

	err := f.coord.Run(context.Background())
	require.Error(t, err)
	assert.True(t, exchangeapi.IsFatal(err))
	assert.Empty(t, f.sleeps)
	assert.Equal(t, 1, f.market.calls["1m"], "stops at the first rejected request")
}

func TestRun_CancelBetweenCycles(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	f := newFixture(t, nil)
	f.market.candles = toCandles(falling()[:5], 0)
	f.market.price = 100
	f.coord.sleep = func(ctx context.Context, _ time.Duration) error {
		cancel()
		return ctx.Err()
	}

	require.NoError(t, f.coord.Run(ctx))
	assert.Equal(t, uint64(1), f.coord.seq)
}

func TestRunCycle_CSVDumpCadence(t *testing.T) {
	dumper := &recordingDumper{}
	f := newFixture(t, func(_ *Config, d *Deps) { d.CSV = dumper })
	f.market.candles = toCandles(falling()[:5], 0)
	f.market.price = 100
	ctx := context.Background()

	_, err := f.coord.RunCycle(ctx)
	require.NoError(t, err)
	assert.Empty(t, dumper.saves, "first dump only after the interval")

	f.now = f.now.Add(9 * time.Minute)
	_, _ = f.coord.RunCycle(ctx)
	assert.Empty(t, dumper.saves)

	f.now = f.now.Add(time.Minute)
	_, _ = f.coord.RunCycle(ctx)
	assert.Equal(t, map[string]int{"1m": 1, "5m": 1, "15m": 1, "1h": 1}, dumper.saves)
}

func TestReport_JSON(t *testing.T) {
	f := newFixture(t, nil)
	f.market.candles = toCandles(falling(), 0)
	f.market.price = 140

	rep, err := f.coord.RunCycle(context.Background())
	require.NoError(t, err)
	raw, err := json.Marshal(rep)
	require.NoError(t, err)

	var back map[string]interface{}
	require.NoError(t, json.Unmarshal(raw, &back))
	assert.Equal(t, "BUY", back["action"])
	assert.Equal(t, "BTC-EUR-1-1709294400000", back["cycle_id"])
	assert.Equal(t, "open", rep.State())
}

func TestNew_RejectsBadConfig(t *testing.T) {
	_, err := New(Config{Market: "BTCEUR", SignalIntervals: []string{"1h"}, Risk: portfolio.DefaultRiskLimits()}, Deps{})
	assert.Error(t, err)

	f := newFixture(t, nil)
	_, err = New(Config{Market: "BTCEUR", SignalIntervals: []string{"1h"}, Risk: portfolio.DefaultRiskLimits()}, f.coord.d)
	assert.ErrorContains(t, err, "BASE-QUOTE")

	_, err = New(Config{Market: "BTC-EUR", Risk: portfolio.DefaultRiskLimits()}, f.coord.d)
	assert.ErrorContains(t, err, "no signal intervals")

	_, err = New(Config{Market: "BTC-EUR", SignalIntervals: []string{"1h"}, Risk: portfolio.RiskLimits{MaxPositionFraction: 2}}, f.coord.d)
	assert.Error(t, err)
}
