package coordinator

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/pkg/errors"

	"cryptobot/internal/execution"
	"cryptobot/internal/logger"
	"cryptobot/internal/model"
	"cryptobot/internal/notification"
	"cryptobot/internal/strategy"
	"cryptobot/pkg/exchangeapi"
)

// RunCycle performs one full cycle. It returns an error when the cycle could
// not reach a decision (no ticker price, no balances) or when the exchange
// rejected the credentials; order failures are reported in the Report and do
// not fail the cycle.
func (c *Coordinator) RunCycle(ctx context.Context) (Report, error) {
	start := c.now()
	c.seq++
	ctx = logger.WithCycleID(ctx, logger.GenerateCycleID(string(c.cfg.Market), c.seq, start))
	log := c.log.With(logger.LogWithCycle(ctx)...)

	rep, err := c.runCycle(ctx, log)
	rep.CycleID = logger.CycleID(ctx)
	rep.At = start.UTC()

	if m := c.d.Metrics; m != nil {
		result := "ok"
		if err != nil {
			result = "error"
		}
		m.CyclesTotal.WithLabelValues(result).Inc()
		m.CycleDuration.Observe(c.now().Sub(start).Seconds())
	}
	if c.d.Health != nil {
		c.d.Health.RecordCycle(err)
	}
	if err != nil {
		return rep, err
	}

	c.dumpCSV(log)
	c.logStatus(log, &rep)
	c.publish(ctx, log, &rep)
	return rep, nil
}

func (c *Coordinator) runCycle(ctx context.Context, log *slog.Logger) (Report, error) {
	market := string(c.cfg.Market)
	rep := Report{Market: market, Simulated: c.cfg.Simulated, Position: c.pos}

	if err := c.refreshCandles(ctx, log); err != nil {
		return rep, err
	}

	price, err := c.d.Market.TickerPrice(ctx, market)
	if err != nil {
		return rep, errors.Wrap(err, "ticker price")
	}
	rep.Price = price

	fiat, crypto, err := c.balances(ctx)
	if err != nil {
		return rep, err
	}
	rep.Fiat, rep.Crypto = fiat, crypto

	frames := make([]strategy.Frame, 0, len(c.cfg.SignalIntervals))
	warmup := c.d.Engine.WarmupLen()
	for _, iv := range c.cfg.SignalIntervals {
		series := c.d.Store.Series(iv)
		snap, ok := c.d.Engine.Latest(series)
		f := strategy.Frame{Interval: iv, Price: price, Latest: snap, Ready: ok && len(series) >= warmup}
		frames = append(frames, f)
		rep.Frames = append(rep.Frames, FrameReport{Interval: iv, Candles: len(series), Ready: f.Ready, Latest: snap})
	}

	dec := c.d.Strategy.Evaluate(frames)
	rep.Action = dec.Action()
	rep.Reasons = dec.Reasons
	if c.d.Metrics != nil {
		c.d.Metrics.Signals.WithLabelValues(string(rep.Action)).Inc()
	}

	switch {
	case !c.pos.Open && dec.Buy:
		if err := c.buy(ctx, log, &rep); err != nil {
			return rep, err
		}
	case c.pos.Open && dec.Sell:
		if err := c.sell(ctx, log, &rep); err != nil {
			return rep, err
		}
	case dec.Buy:
		rep.Skipped = "buy signal while position open"
	case dec.Sell:
		rep.Skipped = "sell signal while flat"
	}

	if rep.Fill != nil {
		// Balances moved; the status should show the post-trade wallet.
		if f, cr, err := c.balances(ctx); err == nil {
			rep.Fiat, rep.Crypto = f, cr
		}
	}
	rep.Position = c.pos
	rep.TotalPnL = c.d.Ledger.Total()
	if c.pos.Open {
		rep.UnrealizedPnL = c.pos.UnrealizedPnL(price, rep.Crypto)
		rep.UnrealizedPct = c.pos.UnrealizedPct(price)
	}
	if c.d.Limits != nil {
		rep.RateLimit = c.d.Limits.Snapshot()
	}
	if c.cfg.Simulated {
		rep.TotalValue = rep.Fiat + rep.Crypto*price
		rep.PerformancePct = (rep.TotalValue/c.cfg.StartingFiat - 1) * 100
	}
	return rep, nil
}

// refreshCandles fetches every interval and merges it into the store. A
// failing interval keeps its previous history; only an auth failure aborts.
func (c *Coordinator) refreshCandles(ctx context.Context, log *slog.Logger) error {
	market := string(c.cfg.Market)
	for _, iv := range c.cfg.Intervals {
		candles, err := c.d.Market.Candles(ctx, market, iv, c.cfg.CandleLimit)
		if err != nil {
			if exchangeapi.IsFatal(err) {
				return errors.Wrapf(err, "candles %s", iv)
			}
			log.Warn("candle fetch failed, keeping previous history", "interval", iv, "error", err)
			continue
		}
		n := c.d.Store.Merge(iv, candles)
		if c.d.Metrics != nil && n > 0 {
			c.d.Metrics.CandlesAppended.WithLabelValues(iv).Add(float64(n))
		}
		if c.d.Archive != nil {
			if _, err := c.d.Archive.SaveCandles(market, iv, candles); err != nil {
				log.Warn("candle archive write failed", "interval", iv, "error", err)
			}
		}
		log.Debug("candles merged", "interval", iv, "fetched", len(candles), "appended", n, "stored", c.d.Store.Len(iv))
	}
	return nil
}

func (c *Coordinator) balances(ctx context.Context) (fiat, crypto float64, err error) {
	fiat, err = c.d.Wallet.Balance(ctx, c.cfg.Market.Quote())
	if err != nil {
		return 0, 0, errors.Wrap(err, "fiat balance")
	}
	crypto, err = c.d.Wallet.Balance(ctx, c.cfg.Market.Base())
	if err != nil {
		return 0, 0, errors.Wrap(err, "crypto balance")
	}
	return fiat, crypto, nil
}

func (c *Coordinator) buy(ctx context.Context, log *slog.Logger, rep *Report) error {
	amount, why := c.cfg.Risk.CanBuy(c.pos, rep.Fiat, rep.Crypto)
	if why != "" {
		rep.Skipped = why
		log.Info("buy signal not acted on", "reason", why)
		return nil
	}

	log.Info("buy signal on all timeframes", "amount_quote", amount, "price", rep.Price)
	order := model.Order{
		Market:      string(c.cfg.Market),
		Side:        model.SideBuy,
		AmountQuote: amount,
		RefPrice:    rep.Price,
	}
	fill, err := c.d.Executor.Place(ctx, order)
	if err != nil {
		return c.orderFailed(ctx, log, rep, order, err)
	}

	c.pos.Enter(fill)
	rep.Fill = &fill
	c.countOrder(model.SideBuy, "filled")
	c.recordTrade(ctx, log, fill, 0, 0)
	return nil
}

func (c *Coordinator) sell(ctx context.Context, log *slog.Logger, rep *Report) error {
	qty, why := c.cfg.Risk.CanSell(c.pos, rep.Crypto)
	if why != "" {
		rep.Skipped = why
		log.Info("sell signal not acted on", "reason", why)
		return nil
	}

	log.Info("sell signal on all timeframes", "amount", qty, "price", rep.Price)
	order := model.Order{
		Market:   string(c.cfg.Market),
		Side:     model.SideSell,
		Amount:   qty,
		RefPrice: rep.Price,
	}
	fill, err := c.d.Executor.Place(ctx, order)
	if err != nil {
		return c.orderFailed(ctx, log, rep, order, err)
	}

	pnl := c.pos.Exit(fill)
	total, perr := c.d.Ledger.Add(pnl)
	if perr != nil {
		log.Error("ledger write failed", "error", perr)
	}
	rep.Fill = &fill
	rep.RealizedPnL = pnl
	c.countOrder(model.SideSell, "filled")
	c.recordTrade(ctx, log, fill, pnl, total)
	return nil
}

// orderFailed keeps the position untouched. Only a credential failure is
// passed up; everything else is retried next cycle.
func (c *Coordinator) orderFailed(ctx context.Context, log *slog.Logger, rep *Report, o model.Order, err error) error {
	rep.OrderError = err.Error()
	c.countOrder(o.Side, "failed")

	var insufficient *execution.InsufficientBalanceError
	if errors.As(err, &insufficient) {
		log.Warn("order rejected locally", "side", o.Side, "error", err)
	} else {
		log.Error("order failed", "side", o.Side, "error", err)
	}
	c.notify(ctx, log, notification.Alert{
		Level:   notification.AlertWarning,
		Title:   "order failed " + string(c.cfg.Market),
		Message: err.Error(),
	})
	if exchangeapi.IsFatal(err) {
		return errors.Wrap(err, "place order")
	}
	return nil
}

func (c *Coordinator) countOrder(side model.Side, result string) {
	if c.d.Metrics != nil {
		c.d.Metrics.Orders.WithLabelValues(string(side), result).Inc()
	}
}

func (c *Coordinator) recordTrade(ctx context.Context, log *slog.Logger, fill model.Fill, pnl, total float64) {
	log.Info("order filled",
		"order_id", fill.OrderID, "side", fill.Side, "quantity", fill.Quantity,
		"price", fill.Price, "simulated", fill.Simulated, "pnl", pnl, "total_pnl", total)

	if c.d.TradeLog != nil {
		if err := c.d.TradeLog.Record(fill.Side, fill.Quantity, fill.Price, pnl, total); err != nil {
			log.Error("trade log write failed", "error", err)
		}
	}
	if c.d.Journal != nil {
		entry := execution.TradeEntry{Fill: fill, Strategy: c.d.Strategy.Name(), PnL: pnl}
		if err := c.d.Journal.RecordFill(entry); err != nil {
			log.Error("journal write failed", "error", err)
		}
	}
	c.notify(ctx, log, notification.TradeAlert(fill, pnl, total))

	if c.d.Publisher != nil || c.d.Broadcaster != nil {
		data, err := json.Marshal(struct {
			model.Fill
			PnL      float64 `json:"pnl"`
			TotalPnL float64 `json:"total_pnl"`
		}{fill, pnl, total})
		if err != nil {
			return
		}
		if c.d.Publisher != nil {
			if err := c.d.Publisher.PublishTrade(ctx, data); err != nil {
				log.Warn("trade publish failed", "error", err)
			}
		}
		if c.d.Broadcaster != nil {
			c.d.Broadcaster.Broadcast("trade:"+string(c.cfg.Market), data)
		}
	}
}

func (c *Coordinator) notify(ctx context.Context, log *slog.Logger, a notification.Alert) {
	if c.d.Notifier == nil {
		return
	}
	nctx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()
	if err := c.d.Notifier.Send(nctx, a); err != nil {
		log.Warn("notification failed", "title", a.Title, "error", err)
	}
}

// dumpCSV appends new candles of every interval once CSVSaveInterval has
// passed since the previous dump (or since start).
func (c *Coordinator) dumpCSV(log *slog.Logger) {
	if c.d.CSV == nil {
		return
	}
	now := c.now()
	if now.Sub(c.lastCSV) < c.cfg.CSVSaveInterval {
		return
	}
	for _, iv := range c.cfg.Intervals {
		n, err := c.d.CSV.Save(iv, c.d.Store.Series(iv))
		if err != nil {
			log.Error("csv dump failed", "interval", iv, "error", err)
			continue
		}
		log.Debug("csv dump", "interval", iv, "rows", n)
	}
	c.lastCSV = now
}

func (c *Coordinator) publish(ctx context.Context, log *slog.Logger, rep *Report) {
	if m := c.d.Metrics; m != nil {
		m.LastPrice.Set(rep.Price)
		m.TotalPnL.Set(rep.TotalPnL)
		m.UnrealizedPnL.Set(rep.UnrealizedPnL)
		open := 0.0
		if rep.Position.Open {
			open = 1
		}
		m.PositionOpen.Set(open)
	}
	if c.d.Reports == nil && c.d.Publisher == nil && c.d.Broadcaster == nil {
		return
	}
	data, err := json.Marshal(rep)
	if err != nil {
		log.Error("encode report", "error", err)
		return
	}
	if c.d.Reports != nil {
		if err := c.d.Reports.SaveReport(rep.Market, rep.At.UnixMilli(), data); err != nil {
			log.Warn("report archive write failed", "error", err)
		}
	}
	if c.d.Publisher != nil {
		if err := c.d.Publisher.PublishReport(ctx, data); err != nil {
			log.Warn("report publish failed", "error", err)
		}
	}
	if c.d.Broadcaster != nil {
		c.d.Broadcaster.Broadcast("report:"+rep.Market, data)
	}
}
