package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/multierr"

	"cryptobot/config"
	"cryptobot/internal/arming"
	"cryptobot/internal/coordinator"
	"cryptobot/internal/execution"
	"cryptobot/internal/gateway"
	"cryptobot/internal/indicator"
	"cryptobot/internal/logger"
	"cryptobot/internal/marketdata/candlestore"
	"cryptobot/internal/metrics"
	"cryptobot/internal/model"
	"cryptobot/internal/notification"
	"cryptobot/internal/portfolio"
	"cryptobot/internal/store/file"
	redisstore "cryptobot/internal/store/redis"
	sqlitestore "cryptobot/internal/store/sqlite"
	"cryptobot/internal/strategy"
	"cryptobot/pkg/exchangeapi"
)

func main() {
	if err := run(); err != nil {
		slog.Error("cryptobot exited", "error", err)
		os.Exit(1)
	}
}

func run() error {
	sim := flag.Bool("sim", true, "paper trade against a simulated wallet")
	market := flag.String("market", "", "market to trade, e.g. BTC-EUR (overrides MARKET)")
	maxPos := flag.Float64("max-position", 0, "share of fiat spent per buy (overrides MAX_POSITION_PCT)")
	armCode := flag.String("arm-code", "", "TOTP code required to start in real mode")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "sim":
			cfg.Simulation = *sim
		case "market":
			cfg.Market = *market
		case "max-position":
			cfg.MaxPositionPct = *maxPos
		}
	})
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("config: %w", err)
	}

	log := logger.Init("cryptobot", logger.ParseLevel(cfg.LogLevel))
	log.Info("starting", "market", cfg.Market, "simulation", cfg.Simulation,
		"intervals", cfg.Intervals, "signal_intervals", cfg.SignalIntervals)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ---- Real mode is armed with a one-time code ----
	if !cfg.Simulation {
		if err := arming.Check(cfg.ArmTOTPSecret, *armCode, time.Now()); err != nil {
			return err
		}
		if cfg.ArmTOTPSecret == "" {
			log.Warn("real trading without ARM_TOTP_SECRET; no arming code was checked")
		}
	}

	// ---- Metrics & health ----
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	prom := metrics.NewMetrics(reg)
	health := metrics.NewHealthStatus(5*cfg.PollInterval + time.Minute)
	hub := gateway.NewHub()

	// ---- Exchange client ----
	limits := exchangeapi.NewRateLimiter()
	client, err := exchangeapi.NewClient(exchangeapi.Config{
		BaseURL:           cfg.BaseURL,
		APIKey:            cfg.APIKey,
		APISecret:         cfg.APISecret,
		RequestsPerSecond: cfg.RequestsPerSec,
		ProactiveThrottle: cfg.RateLimitFloor > 0,
		RateLimitFloor:    cfg.RateLimitFloor,
	}, limits, exchangeapi.WithObserver(prom), exchangeapi.WithLogger(log.With("component", "exchange")))
	if err != nil {
		return err
	}
	checkClock(ctx, log, client, cfg.TimeDriftWarning)

	// ---- Persistence ----
	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return fmt.Errorf("data dir: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(cfg.SQLitePath), 0o755); err != nil {
		return fmt.Errorf("sqlite dir: %w", err)
	}
	var closers []func() error

	sqlWriter, err := sqlitestore.New(sqlitestore.WriterConfig{DBPath: cfg.SQLitePath})
	if err != nil {
		return fmt.Errorf("sqlite init: %w", err)
	}
	closers = append(closers, sqlWriter.Close)
	sqlReader, err := sqlitestore.NewReader(cfg.SQLitePath)
	if err != nil {
		return fmt.Errorf("sqlite reader: %w", err)
	}
	closers = append(closers, sqlReader.Close)
	health.SetSQLiteOK(true)

	journalName := "journal.db"
	if cfg.Simulation {
		journalName = "sim_journal.db"
	}
	journal, err := execution.NewJournal(filepath.Join(cfg.DataDir, journalName))
	if err != nil {
		return fmt.Errorf("journal: %w", err)
	}
	closers = append(closers, journal.Close)

	ledger, err := portfolio.LoadLedger(filepath.Join(cfg.DataDir, file.LedgerName(cfg.Simulation)))
	if err != nil {
		// Unreadable ledger starts at zero; the next sell rewrites it.
		log.Warn("ledger unreadable, starting from 0", "error", err)
	}
	log.Info("ledger loaded", "path", ledger.Path(), "total_pnl", ledger.Total())

	// ---- Redis (optional) ----
	var publisher coordinator.Publisher
	var redisWriter *redisstore.Writer
	health.SetRedisEnabled(cfg.RedisAddr != "")
	if cfg.RedisAddr != "" {
		redisWriter, err = redisstore.New(redisstore.WriterConfig{Addr: cfg.RedisAddr, Password: cfg.RedisPassword}, cfg.Market)
		if err != nil {
			log.Warn("redis init failed, continuing without redis", "error", err)
			health.SetRedisConnected(false)
		} else {
			health.SetRedisConnected(true)
			publisher = redisWriter
			closers = append(closers, redisWriter.Close)
			cb := redisWriter.Breaker()
			logChange := cb.OnStateChange
			cb.OnStateChange = func(from, to redisstore.State) {
				logChange(from, to)
				prom.RedisCircuitBreakerState.Set(float64(to))
				if to == redisstore.StateOpen {
					prom.RedisCircuitBreakerTrips.Inc()
				}
			}
		}
	}
	if redisWriter != nil {
		health.StartLivenessChecker(ctx, redisWriter.Client(), sqlWriter.DB(), 10*time.Second)
	} else {
		health.StartLivenessChecker(ctx, nil, sqlWriter.DB(), 10*time.Second)
	}

	// ---- HTTP: /metrics, /healthz, /ws, /report ----
	srv := metrics.NewServer(cfg.MetricsAddr, health, reg, hub.Register, reportRoute(sqlReader, cfg.Market))
	srv.Start()
	go trackClients(ctx, hub, prom)

	// ---- Candle history, warm-started from the archive ----
	store := candlestore.New(cfg.HistoryLimit)
	store.OnGap = func(interval string, prevOpen, nextOpen int64) {
		prom.CandleGaps.WithLabelValues(interval).Inc()
		log.Warn("candle gap", "interval", interval,
			"after", time.UnixMilli(prevOpen).UTC(), "next", time.UnixMilli(nextOpen).UTC())
	}
	for _, iv := range cfg.Intervals {
		recent, err := sqlReader.ReadRecentCandles(cfg.Market, iv, cfg.HistoryLimit)
		if err != nil {
			log.Warn("warm start failed", "interval", iv, "error", err)
			continue
		}
		if n := store.Merge(iv, recent); n > 0 {
			log.Info("warm start", "interval", iv, "candles", n)
		}
	}

	// ---- Execution ----
	var (
		wallet   coordinator.Wallet
		executor coordinator.Executor
	)
	if cfg.Simulation {
		paper := execution.NewPaperExecutor(model.Market(cfg.Market), cfg.SimStartingFiat, cfg.SlippageBps, log.With("component", "paper"))
		wallet, executor = paper, paper
	} else {
		live := execution.NewLiveExecutor(client, log.With("component", "live"))
		wallet, executor = live, live
	}

	// ---- Notifications ----
	notifiers := notification.Multi{notification.NewLogNotifier(log.With("component", "alerts"))}
	if cfg.WebhookURL != "" {
		notifiers = append(notifiers, notification.NewWebhookNotifier(cfg.WebhookURL))
	}
	if cfg.TelegramBotToken != "" && cfg.TelegramChatID != "" {
		notifiers = append(notifiers, notification.NewTelegramNotifier(cfg.TelegramBotToken, cfg.TelegramChatID))
	}

	// ---- Coordinator ----
	ccfg := coordinator.DefaultConfig(model.Market(cfg.Market))
	ccfg.Simulated = cfg.Simulation
	ccfg.Intervals = cfg.Intervals
	ccfg.SignalIntervals = cfg.SignalIntervals
	ccfg.StatusInterval = cfg.StatusInterval()
	ccfg.CandleLimit = cfg.CandleLimit
	ccfg.PollInterval = cfg.PollInterval
	ccfg.RetryDelay = cfg.RetryDelay
	ccfg.CSVSaveInterval = cfg.CSVSaveInterval
	ccfg.Risk.MaxPositionFraction = cfg.MaxPositionPct
	ccfg.Risk.MinFiatBalance = cfg.MinFiatBalance
	ccfg.Risk.DustThreshold = cfg.DustThreshold
	ccfg.StartingFiat = cfg.SimStartingFiat

	deps := coordinator.Deps{
		Market:      client,
		Wallet:      wallet,
		Executor:    executor,
		Ledger:      ledger,
		Store:       store,
		Engine:      indicator.NewEngine(indicator.DefaultParams()),
		Strategy:    strategy.NewEvaluator(strategy.DefaultThresholds()),
		Limits:      limits,
		TradeLog:    file.NewTradeLog(cfg.DataDir, cfg.Simulation),
		Journal:     journal,
		CSV:         file.NewCandleCSV(cfg.DataDir, cfg.Market),
		Archive:     sqlWriter,
		Reports:     sqlWriter,
		Publisher:   publisher,
		Broadcaster: hub,
		Notifier:    notifiers,
		Metrics:     prom,
		Health:      health,
		Logger:      log,
	}
	coord, err := coordinator.New(ccfg, deps)
	if err != nil {
		return err
	}

	runErr := coord.Run(ctx)

	// ---- Shutdown ----
	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	closeErr := srv.Stop(shutdownCtx)
	hub.Close()
	for i := len(closers) - 1; i >= 0; i-- {
		closeErr = multierr.Append(closeErr, closers[i]())
	}
	if closeErr != nil {
		log.Warn("shutdown incomplete", "error", closeErr)
	}
	return runErr
}

// checkClock warns when the local clock drifts from the exchange clock by
// more than limit; signed requests are rejected outside the access window.
func checkClock(ctx context.Context, log *slog.Logger, client *exchangeapi.Client, limit time.Duration) {
	tctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	server, err := client.ServerTime(tctx)
	if err != nil {
		log.Warn("server time unavailable", "error", err)
		return
	}
	drift := time.Since(server)
	if drift < 0 {
		drift = -drift
	}
	if drift > limit {
		log.Warn("local clock drifts from exchange", "drift_ms", drift.Milliseconds(), "server_time", server)
		return
	}
	log.Info("clock in sync", "drift_ms", drift.Milliseconds())
}

func reportRoute(r *sqlitestore.Reader, market string) func(*http.ServeMux) {
	return func(mux *http.ServeMux) {
		mux.HandleFunc("/report", func(w http.ResponseWriter, _ *http.Request) {
			data, err := r.ReadLatestReport(market)
			if err != nil {
				http.Error(w, err.Error(), http.StatusInternalServerError)
				return
			}
			if data == nil {
				http.Error(w, "no report yet", http.StatusNotFound)
				return
			}
			w.Header().Set("Content-Type", "application/json")
			w.Write(data)
		})
	}
}

func trackClients(ctx context.Context, hub *gateway.Hub, prom *metrics.Metrics) {
	t := time.NewTicker(5 * time.Second)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			prom.WSClients.Set(float64(hub.ClientCount()))
		}
	}
}
