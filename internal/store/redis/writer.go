// Package redis publishes cycle reports and trades so dashboards and other
// processes can follow the bot. Redis is optional: every write goes through a
// circuit breaker and failures never reach the trading loop.
package redis

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	goredis "github.com/go-redis/redis/v8"
)

const (
	defaultLatestTTL = 30 * time.Minute
	reportStreamLen  = 2000
	tradeStreamLen   = 10000
)

// WriterConfig configures the Redis writer.
type WriterConfig struct {
	Addr     string // e.g. "localhost:6379"
	Password string
	DB       int
}

// Writer publishes JSON payloads for one market.
type Writer struct {
	client *goredis.Client
	cb     *CircuitBreaker
	market string
	log    *slog.Logger
}

// Client returns the underlying Redis client for health checks.
func (w *Writer) Client() *goredis.Client { return w.client }

// Breaker returns the circuit breaker guarding writes.
func (w *Writer) Breaker() *CircuitBreaker { return w.cb }

// New connects, pings the server and returns a Writer for market.
func New(cfg WriterConfig, market string) (*Writer, error) {
	client := goredis.NewClient(&goredis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	w := NewWithClient(client, NewCircuitBreaker(5, 30*time.Second), market)
	w.log.Info("connected", "addr", cfg.Addr)
	return w, nil
}

// NewWithClient wraps an existing client.
func NewWithClient(client *goredis.Client, cb *CircuitBreaker, market string) *Writer {
	w := &Writer{
		client: client,
		cb:     cb,
		market: market,
		log:    slog.Default().With("component", "redis"),
	}
	cb.OnStateChange = func(from, to State) {
		w.log.Warn("circuit breaker state change", "from", from.String(), "to", to.String())
	}
	return w
}

// ReportKey is the key holding the latest cycle report.
func ReportKey(market string) string { return "report:latest:" + market }

// ReportChannel is the pub/sub channel cycle reports are published on.
func ReportChannel(market string) string { return "pub:report:" + market }

// TradeChannel is the pub/sub channel fills are published on.
func TradeChannel(market string) string { return "pub:trade:" + market }

// PublishReport stores the report as latest, appends it to the report stream
// and publishes it.
func (w *Writer) PublishReport(ctx context.Context, data []byte) error {
	payload := string(data)
	return w.cb.Execute(func() error {
		pipe := w.client.Pipeline()
		pipe.Set(ctx, ReportKey(w.market), payload, defaultLatestTTL)
		pipe.XAdd(ctx, &goredis.XAddArgs{
			Stream: "report:" + w.market,
			MaxLen: reportStreamLen,
			Approx: true,
			Values: map[string]interface{}{"data": payload},
		})
		pipe.Publish(ctx, ReportChannel(w.market), payload)
		_, err := pipe.Exec(ctx)
		return err
	})
}

// PublishTrade appends a fill to the trade stream and publishes it.
func (w *Writer) PublishTrade(ctx context.Context, data []byte) error {
	payload := string(data)
	return w.cb.Execute(func() error {
		pipe := w.client.Pipeline()
		pipe.XAdd(ctx, &goredis.XAddArgs{
			Stream: "trades:" + w.market,
			MaxLen: tradeStreamLen,
			Approx: true,
			Values: map[string]interface{}{"data": payload},
		})
		pipe.Publish(ctx, TradeChannel(w.market), payload)
		_, err := pipe.Exec(ctx)
		return err
	})
}

// Close closes the Redis client.
func (w *Writer) Close() error {
	return w.client.Close()
}
