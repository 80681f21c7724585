// Package metrics exposes Prometheus metrics and the /healthz probe.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"cryptobot/pkg/exchangeapi"
)

// Metrics holds every Prometheus collector of the bot.
type Metrics struct {
	CyclesTotal   *prometheus.CounterVec // labels: result=ok|waiting|error
	CycleDuration prometheus.Histogram

	APIAttempts *prometheus.CounterVec   // labels: endpoint, outcome
	APILatency  *prometheus.HistogramVec // labels: endpoint

	RateLimitRemaining prometheus.Gauge
	RateLimitResetAt   prometheus.Gauge // unix seconds

	CandlesAppended *prometheus.CounterVec // labels: interval
	CandleGaps      *prometheus.CounterVec // labels: interval

	Signals *prometheus.CounterVec // labels: action
	Orders  *prometheus.CounterVec // labels: side, result

	PositionOpen  prometheus.Gauge
	LastPrice     prometheus.Gauge
	TotalPnL      prometheus.Gauge
	UnrealizedPnL prometheus.Gauge

	RedisCircuitBreakerState prometheus.Gauge // 0=closed, 1=open, 2=half-open
	RedisCircuitBreakerTrips prometheus.Counter

	WSClients prometheus.Gauge
}

// NewMetrics creates all collectors and registers them on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		CyclesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "cryptobot_cycles_total",
			Help: "Poll cycles by result",
		}, []string{"result"}),
		CycleDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "cryptobot_cycle_duration_seconds",
			Help:    "Wall time of one poll cycle, retries included",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 15, 30, 60},
		}),

		APIAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "cryptobot_api_attempts_total",
			Help: "Exchange request attempts by endpoint and outcome",
		}, []string{"endpoint", "outcome"}),
		APILatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "cryptobot_api_latency_seconds",
			Help:    "Exchange request latency per attempt",
			Buckets: prometheus.DefBuckets,
		}, []string{"endpoint"}),

		RateLimitRemaining: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "cryptobot_ratelimit_remaining",
			Help: "Remaining request weight reported by the exchange (-1 unknown)",
		}),
		RateLimitResetAt: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "cryptobot_ratelimit_reset_timestamp_seconds",
			Help: "When the exchange resets the request budget",
		}),

		CandlesAppended: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "cryptobot_candles_appended_total",
			Help: "New candles merged into the store",
		}, []string{"interval"}),
		CandleGaps: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "cryptobot_candle_gaps_total",
			Help: "Missing buckets detected while merging candles",
		}, []string{"interval"}),

		Signals: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "cryptobot_signals_total",
			Help: "Strategy decisions by action",
		}, []string{"action"}),
		Orders: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "cryptobot_orders_total",
			Help: "Orders by side and result",
		}, []string{"side", "result"}),

		PositionOpen: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "cryptobot_position_open",
			Help: "1 while a position is open",
		}),
		LastPrice: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "cryptobot_last_price",
			Help: "Last ticker price",
		}),
		TotalPnL: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "cryptobot_total_pnl",
			Help: "Cumulative realized profit/loss in quote currency",
		}),
		UnrealizedPnL: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "cryptobot_unrealized_pnl",
			Help: "Profit/loss of the open position at the last price",
		}),

		RedisCircuitBreakerState: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "cryptobot_redis_circuit_breaker_state",
			Help: "Redis circuit breaker state (0=closed, 1=open, 2=half-open)",
		}),
		RedisCircuitBreakerTrips: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "cryptobot_redis_circuit_breaker_trips_total",
			Help: "Times the Redis circuit breaker tripped open",
		}),

		WSClients: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "cryptobot_ws_clients",
			Help: "Connected WebSocket clients",
		}),
	}

	m.RateLimitRemaining.Set(-1)

	reg.MustRegister(
		m.CyclesTotal,
		m.CycleDuration,
		m.APIAttempts,
		m.APILatency,
		m.RateLimitRemaining,
		m.RateLimitResetAt,
		m.CandlesAppended,
		m.CandleGaps,
		m.Signals,
		m.Orders,
		m.PositionOpen,
		m.LastPrice,
		m.TotalPnL,
		m.UnrealizedPnL,
		m.RedisCircuitBreakerState,
		m.RedisCircuitBreakerTrips,
		m.WSClients,
	)
	return m
}

// ObserveAttempt implements exchangeapi.Observer.
func (m *Metrics) ObserveAttempt(endpoint, outcome string, d time.Duration) {
	m.APIAttempts.WithLabelValues(endpoint, outcome).Inc()
	m.APILatency.WithLabelValues(endpoint).Observe(d.Seconds())
}

// ObserveRateLimit implements exchangeapi.Observer.
func (m *Metrics) ObserveRateLimit(s exchangeapi.RateLimitState) {
	m.RateLimitRemaining.Set(float64(s.Remaining))
	if s.ResetAtMs > 0 {
		m.RateLimitResetAt.Set(float64(s.ResetAtMs) / 1000)
	}
}

var _ exchangeapi.Observer = (*Metrics)(nil)
