// cmd/backtest replays archived candles from SQLite (or the CSV dumps) through
// the indicator engine and strategy against a paper wallet.
//
// Usage:
//
//	go run ./cmd/backtest --market=BTC-EUR --intervals=5m,15m,1h --db=data/cryptobot.db
//	go run ./cmd/backtest --csv-dir=. --speed=100
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"cryptobot/internal/backtest"
	"cryptobot/internal/indicator"
	"cryptobot/internal/logger"
	"cryptobot/internal/marketdata/replay"
	"cryptobot/internal/model"
	"cryptobot/internal/portfolio"
	"cryptobot/internal/store/file"
	sqlitestore "cryptobot/internal/store/sqlite"
	"cryptobot/internal/strategy"
)

func main() {
	market := flag.String("market", "BTC-EUR", "Market to replay")
	ivStr := flag.String("intervals", "5m,15m,1h", "Comma-separated signal intervals")
	speed := flag.Float64("speed", 0, "Playback speed multiplier (0=max, 1=realtime, 100=100x)")
	fromTS := flag.Int64("from", 0, "Unix ms to start replay from (0=all)")
	dbPath := flag.String("db", "data/cryptobot.db", "Path to SQLite archive")
	csvDir := flag.String("csv-dir", "", "Replay CSV dumps from this directory instead of SQLite")
	window := flag.Int("window", 500, "Candles per interval fed to the indicators (0=all)")
	fiat := flag.Float64("fiat", 1000, "Starting fiat balance")
	slippage := flag.Float64("slippage-bps", 0, "Simulated slippage in basis points")
	maxPos := flag.Float64("max-position", 0.25, "Share of fiat spent per buy")
	level := flag.String("log-level", "warn", "Log level")
	flag.Parse()

	log := logger.Init("backtest", logger.ParseLevel(*level))

	intervals := splitList(*ivStr)
	if len(intervals) == 0 {
		log.Error("no valid intervals specified")
		os.Exit(2)
	}

	var src replay.Source
	if *csvDir != "" {
		src = replay.CSVSource{CSV: file.NewCandleCSV(*csvDir, *market)}
	} else {
		reader, err := sqlitestore.NewReader(*dbPath)
		if err != nil {
			log.Error("sqlite open failed", "path", *dbPath, "error", err)
			os.Exit(1)
		}
		defer reader.Close()
		src = reader
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	risk := portfolio.DefaultRiskLimits()
	risk.MaxPositionFraction = *maxPos
	cfg := backtest.Config{
		Market:          model.Market(*market),
		SignalIntervals: intervals,
		StartingFiat:    *fiat,
		SlippageBps:     *slippage,
		Risk:            risk,
		FromTS:          *fromTS,
		Speed:           *speed,
	}
	engine := indicator.NewEngine(indicator.DefaultParams())
	strat := strategy.NewEvaluator(strategy.DefaultThresholds())
	rp := replay.New(src, *market, intervals, *window)

	res, err := backtest.Run(ctx, rp, engine, strat, cfg, log)
	if err != nil {
		log.Error("backtest failed", "error", err)
		os.Exit(1)
	}
	printSummary(log, *market, intervals, res)
}

func printSummary(log *slog.Logger, market string, intervals []string, r backtest.Result) {
	for _, f := range r.Fills {
		fmt.Printf("  [%s] %-4s %.8f @ %.2f\n", f.FilledAt.Format("2006-01-02 15:04"), strings.ToUpper(string(f.Side)), f.Quantity, f.Price)
	}
	fmt.Println()
	fmt.Println("╔══════════════════════════════════════╗")
	fmt.Println("║        BACKTEST COMPLETE             ║")
	fmt.Println("╠══════════════════════════════════════╣")
	fmt.Printf("║  Market:            %-16s ║\n", market)
	fmt.Printf("║  Intervals:         %-16s ║\n", strings.Join(intervals, ","))
	fmt.Printf("║  Steps:             %-16d ║\n", r.Steps)
	fmt.Printf("║  Closed trades:     %-16d ║\n", r.ClosedTrades)
	fmt.Printf("║  Win rate:          %-15.1f%% ║\n", r.WinRatePct())
	fmt.Printf("║  Realized P/L:      %-16.2f ║\n", r.RealizedPnL)
	fmt.Printf("║  Final value:       %-16.2f ║\n", r.FinalValue)
	fmt.Printf("║  Performance:       %-15.2f%% ║\n", r.PerformancePct)
	fmt.Printf("║  Max drawdown:      %-15.2f%% ║\n", r.MaxDrawdownPct)
	fmt.Println("╚══════════════════════════════════════╝")
	if r.OpenAtEnd {
		log.Warn("position still open at end of data")
	}
}

func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
