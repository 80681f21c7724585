// Package backtest runs the trading strategy over replayed history against a
// paper wallet, applying the same risk gates as the live loop.
package backtest

import (
	"context"
	"log/slog"
	"time"

	"github.com/pkg/errors"

	"cryptobot/internal/execution"
	"cryptobot/internal/indicator"
	"cryptobot/internal/marketdata/replay"
	"cryptobot/internal/model"
	"cryptobot/internal/portfolio"
	"cryptobot/internal/strategy"
)

// Config parameterizes a run.
type Config struct {
	Market          model.Market
	SignalIntervals []string
	StartingFiat    float64
	SlippageBps     float64
	Risk            portfolio.RiskLimits
	FromTS          int64   // unix ms, 0 = all
	Speed           float64 // 0 = as fast as possible
}

// Result summarizes a run.
type Result struct {
	Steps          int
	Fills          []model.Fill
	ClosedTrades   int
	Wins           int
	RealizedPnL    float64
	FinalValue     float64
	PerformancePct float64
	MaxDrawdownPct float64
	OpenAtEnd      bool
}

// WinRatePct is Wins/ClosedTrades in percent, 0 without closed trades.
func (r Result) WinRatePct() float64 {
	if r.ClosedTrades == 0 {
		return 0
	}
	return float64(r.Wins) / float64(r.ClosedTrades) * 100
}

// Run replays history through engine and strat.
func Run(ctx context.Context, rp *replay.Replayer, engine *indicator.Engine, strat strategy.Strategy, cfg Config, log *slog.Logger) (Result, error) {
	if len(cfg.SignalIntervals) == 0 {
		return Result{}, errors.New("backtest: no signal intervals")
	}
	if err := cfg.Risk.Validate(); err != nil {
		return Result{}, errors.Wrap(err, "backtest")
	}
	if log == nil {
		log = slog.Default()
	}

	var now time.Time
	paper := execution.NewPaperExecutor(cfg.Market, cfg.StartingFiat, cfg.SlippageBps, log)
	paper.SetClock(func() time.Time { return now })
	pos := portfolio.Position{Market: string(cfg.Market)}
	warmup := engine.WarmupLen()

	var (
		res  Result
		peak float64
		last float64
	)
	steps, err := rp.Run(ctx, cfg.FromTS, cfg.Speed, func(s replay.Step) error {
		now, last = s.At, s.Price

		frames := make([]strategy.Frame, 0, len(cfg.SignalIntervals))
		for _, iv := range cfg.SignalIntervals {
			series := s.Series[iv]
			snap, ok := engine.Latest(series)
			frames = append(frames, strategy.Frame{Interval: iv, Price: s.Price, Latest: snap, Ready: ok && len(series) >= warmup})
		}
		dec := strat.Evaluate(frames)
		fiat, crypto := paper.Balances()

		switch {
		case !pos.Open && dec.Buy:
			amount, why := cfg.Risk.CanBuy(pos, fiat, crypto)
			if why != "" {
				break
			}
			fill, err := paper.Place(ctx, model.Order{Market: string(cfg.Market), Side: model.SideBuy, AmountQuote: amount, RefPrice: s.Price})
			if err != nil {
				log.Warn("backtest buy rejected", "at", s.At, "error", err)
				break
			}
			pos.Enter(fill)
			res.Fills = append(res.Fills, fill)
		case pos.Open && dec.Sell:
			qty, why := cfg.Risk.CanSell(pos, crypto)
			if why != "" {
				break
			}
			fill, err := paper.Place(ctx, model.Order{Market: string(cfg.Market), Side: model.SideSell, Amount: qty, RefPrice: s.Price})
			if err != nil {
				log.Warn("backtest sell rejected", "at", s.At, "error", err)
				break
			}
			pnl := pos.Exit(fill)
			res.Fills = append(res.Fills, fill)
			res.RealizedPnL += pnl
			res.ClosedTrades++
			if pnl > 0 {
				res.Wins++
			}
		}

		value := paper.TotalValue(s.Price)
		if value > peak {
			peak = value
		}
		if peak > 0 {
			if dd := (peak - value) / peak * 100; dd > res.MaxDrawdownPct {
				res.MaxDrawdownPct = dd
			}
		}
		return nil
	})
	res.Steps = steps
	res.FinalValue = paper.TotalValue(last)
	res.PerformancePct = paper.PerformancePct(last)
	res.OpenAtEnd = pos.Open
	if err != nil && !errors.Is(err, context.Canceled) {
		return res, err
	}
	return res, nil
}
