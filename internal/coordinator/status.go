package coordinator

import (
	"log/slog"
	"time"
)

// logStatus writes the per-cycle status: market snapshot, the last candles
// of the status interval, the open position and the running totals.
func (c *Coordinator) logStatus(log *slog.Logger, rep *Report) {
	log.Info("cycle status",
		"price", rep.Price,
		"fiat", rep.Fiat, "fiat_asset", c.cfg.Market.Quote(),
		"crypto", rep.Crypto, "crypto_asset", c.cfg.Market.Base(),
		"state", rep.State(),
		"action", rep.Action)

	for _, f := range rep.Frames {
		log.Debug("frame",
			"interval", f.Interval, "ready", f.Ready, "candles", f.Candles,
			"rsi", f.Latest.RSI, "macd_hist", f.Latest.MACDHist,
			"bb_lower", f.Latest.BBLower, "bb_upper", f.Latest.BBUpper)
	}

	if iv := c.cfg.StatusInterval; iv != "" {
		tail := c.d.Store.Tail(iv, c.cfg.StatusCandles)
		if len(tail) > 0 {
			// Indicators need the full series; only the tail is printed.
			series := c.d.Store.Series(iv)
			snaps := c.d.Engine.Compute(series)
			snaps = snaps[len(snaps)-len(tail):]
			for i, k := range tail {
				s := snaps[i]
				log.Info("candle",
					"interval", iv,
					"time", k.Time().Format("2006-01-02 15:04:05"),
					"open", k.Open.String(), "high", k.High.String(),
					"low", k.Low.String(), "close", k.Close.String(),
					"volume", k.Volume.String(),
					"rsi", s.RSI, "macd", s.MACD, "macd_signal", s.MACDSignal,
					"bb_upper", s.BBUpper, "bb_lower", s.BBLower, "atr", s.ATR)
			}
		}
	}

	if rep.Position.Open {
		log.Info("potential profit/loss if sold now",
			"entry_price", rep.Position.EntryPrice,
			"pnl", round2(rep.UnrealizedPnL), "pct", round2(rep.UnrealizedPct))
	} else {
		log.Info("no open position")
	}

	if rep.Skipped != "" {
		log.Info("signal skipped", "reason", rep.Skipped)
	}

	if rl := rep.RateLimit; rl.Known() {
		log.Info("rate limit",
			"remaining", rl.Remaining,
			"reset_at", rl.ResetAt().Format("2006-01-02 15:04:05 UTC"))
	}

	attrs := []any{"total_pnl", rep.TotalPnL, "asset", c.cfg.Market.Quote()}
	if rep.Simulated {
		attrs = append(attrs, "sim_performance_pct", round2(rep.PerformancePct), "sim_total_value", round2(rep.TotalValue))
	}
	attrs = append(attrs, "next_update", c.cfg.PollInterval.String(), "at", c.now().Local().Format(time.DateTime))
	log.Info("totals", attrs...)
}

func round2(v float64) float64 {
	if v < 0 {
		return -float64(int64(-v*100+0.5)) / 100
	}
	return float64(int64(v*100+0.5)) / 100
}
