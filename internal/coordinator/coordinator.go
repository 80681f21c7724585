// Package coordinator runs the trading loop: every cycle it refreshes the
// candle history, reads the ticker and balances, evaluates the strategy over
// the signal intervals and places at most one order.
//
// The position state machine is Flat → Open → Flat. A buy is only considered
// while flat and a sell only while open; a failed order leaves the state as
// it was so the next cycle can try again.
package coordinator

import (
	"context"
	"log/slog"
	"time"

	"github.com/pkg/errors"

	"cryptobot/internal/execution"
	"cryptobot/internal/indicator"
	"cryptobot/internal/marketdata/candlestore"
	"cryptobot/internal/metrics"
	"cryptobot/internal/model"
	"cryptobot/internal/notification"
	"cryptobot/internal/portfolio"
	"cryptobot/internal/strategy"
	"cryptobot/pkg/exchangeapi"
)

// MarketData is the read side of the exchange.
type MarketData interface {
	Candles(ctx context.Context, market, interval string, limit int) ([]model.Candle, error)
	TickerPrice(ctx context.Context, market string) (float64, error)
}

// Wallet reports available balances.
type Wallet interface {
	Balance(ctx context.Context, symbol string) (float64, error)
}

// Executor places market orders.
type Executor interface {
	Place(ctx context.Context, o model.Order) (model.Fill, error)
}

// TradeRecorder appends the human-readable trade log.
type TradeRecorder interface {
	Record(side model.Side, amount, price, pnl, total float64) error
}

// TradeJournal persists fills for later analysis.
type TradeJournal interface {
	RecordFill(e execution.TradeEntry) error
}

// CandleDumper writes the periodic CSV dumps.
type CandleDumper interface {
	Save(interval string, candles []model.Candle) (int, error)
}

// CandleArchive keeps every fetched candle.
type CandleArchive interface {
	SaveCandles(market, interval string, candles []model.Candle) (int, error)
}

// ReportArchive stores encoded cycle reports.
type ReportArchive interface {
	SaveReport(market string, ts int64, data []byte) error
}

// Publisher pushes reports and fills to an external bus.
type Publisher interface {
	PublishReport(ctx context.Context, data []byte) error
	PublishTrade(ctx context.Context, data []byte) error
}

// Broadcaster fans reports out to live clients.
type Broadcaster interface {
	Broadcast(channel string, data []byte)
}

// Config holds the loop parameters.
type Config struct {
	Market          model.Market
	Simulated       bool
	Intervals       []string // fetched every cycle
	SignalIntervals []string // evaluated by the strategy, subset of Intervals
	StatusInterval  string   // interval whose last candles are logged
	StatusCandles   int
	CandleLimit     int
	PollInterval    time.Duration
	RetryDelay      time.Duration // after a failed cycle
	CSVSaveInterval time.Duration
	Risk            portfolio.RiskLimits
	StartingFiat    float64 // baseline of the simulation performance figure
	MaxCycles       int     // 0 runs until cancelled
}

// DefaultConfig mirrors the production cadence for market.
func DefaultConfig(market model.Market) Config {
	return Config{
		Market:          market,
		Simulated:       true,
		Intervals:       []string{"1m", "5m", "15m", "1h"},
		SignalIntervals: []string{"5m", "15m", "1h"},
		StatusInterval:  "1h",
		StatusCandles:   3,
		CandleLimit:     50,
		PollInterval:    10 * time.Second,
		RetryDelay:      5 * time.Second,
		CSVSaveInterval: 10 * time.Minute,
		Risk:            portfolio.DefaultRiskLimits(),
		StartingFiat:    execution.DefaultStartingFiat,
	}
}

// Deps are the collaborators. Market, Wallet, Executor, Ledger, Store,
// Engine and Strategy are required; everything else may be nil.
type Deps struct {
	Market   MarketData
	Wallet   Wallet
	Executor Executor
	Ledger   *portfolio.Ledger
	Store    *candlestore.Store
	Engine   *indicator.Engine
	Strategy strategy.Strategy

	Limits      *exchangeapi.RateLimiter
	TradeLog    TradeRecorder
	Journal     TradeJournal
	CSV         CandleDumper
	Archive     CandleArchive
	Reports     ReportArchive
	Publisher   Publisher
	Broadcaster Broadcaster
	Notifier    notification.Notifier
	Metrics     *metrics.Metrics
	Health      *metrics.HealthStatus
	Logger      *slog.Logger
}

// Option customizes a Coordinator.
type Option func(*Coordinator)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option { return func(c *Coordinator) { c.now = now } }

// WithSleeper replaces the wait between cycles.
func WithSleeper(s exchangeapi.SleepFunc) Option { return func(c *Coordinator) { c.sleep = s } }

// Coordinator owns the position and drives cycles. Not safe for concurrent
// use: one goroutine calls Run or RunCycle.
type Coordinator struct {
	cfg Config
	d   Deps

	pos     portfolio.Position
	seq     uint64
	lastCSV time.Time

	now   func() time.Time
	sleep exchangeapi.SleepFunc
	log   *slog.Logger
}

// New validates cfg and deps and returns a flat Coordinator.
func New(cfg Config, d Deps, opts ...Option) (*Coordinator, error) {
	switch {
	case d.Market == nil, d.Wallet == nil, d.Executor == nil:
		return nil, errors.New("coordinator: market data, wallet and executor are required")
	case d.Ledger == nil, d.Store == nil, d.Engine == nil, d.Strategy == nil:
		return nil, errors.New("coordinator: ledger, store, engine and strategy are required")
	case cfg.Market.Base() == "" || cfg.Market.Quote() == "":
		return nil, errors.Errorf("coordinator: market %q is not BASE-QUOTE", cfg.Market)
	case len(cfg.SignalIntervals) == 0:
		return nil, errors.New("coordinator: no signal intervals")
	}
	if err := cfg.Risk.Validate(); err != nil {
		return nil, errors.Wrap(err, "coordinator")
	}
	def := DefaultConfig(cfg.Market)
	if cfg.CandleLimit <= 0 {
		cfg.CandleLimit = def.CandleLimit
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = def.PollInterval
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = def.RetryDelay
	}
	if cfg.CSVSaveInterval <= 0 {
		cfg.CSVSaveInterval = def.CSVSaveInterval
	}
	if cfg.StartingFiat <= 0 {
		cfg.StartingFiat = def.StartingFiat
	}
	if cfg.StatusCandles <= 0 {
		cfg.StatusCandles = def.StatusCandles
	}
	if len(cfg.Intervals) == 0 {
		cfg.Intervals = cfg.SignalIntervals
	}

	c := &Coordinator{
		cfg:   cfg,
		d:     d,
		pos:   portfolio.Position{Market: string(cfg.Market)},
		now:   time.Now,
		sleep: sleepCtx,
		log:   d.Logger,
	}
	for _, o := range opts {
		o(c)
	}
	if c.log == nil {
		c.log = slog.Default()
	}
	c.log = c.log.With("component", "coordinator", "market", string(cfg.Market))
	c.lastCSV = c.now()
	return c, nil
}

// Position returns a copy of the current position.
func (c *Coordinator) Position() portfolio.Position { return c.pos }

// Config returns the effective configuration.
func (c *Coordinator) Config() Config { return c.cfg }

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
