// Package config loads the bot configuration from the environment, optionally
// seeded from a dotenv file.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/pkg/errors"
	"go.uber.org/multierr"
)

// Config holds all application configuration loaded from environment variables.
type Config struct {
	// Exchange credentials
	APIKey    string
	APISecret string
	BaseURL   string

	// Trading
	Market          string
	Simulation      bool
	MaxPositionPct  float64 // share of fiat spent per buy, (0,1]
	MinFiatBalance  float64
	DustThreshold   float64
	SimStartingFiat float64
	SlippageBps     float64
	ArmTOTPSecret   string

	// Polling
	Intervals        []string
	SignalIntervals  []string
	CandleLimit      int
	HistoryLimit     int
	PollInterval     time.Duration
	RetryDelay       time.Duration
	CSVSaveInterval  time.Duration
	RequestsPerSec   float64
	RateLimitFloor   int64
	TimeDriftWarning time.Duration

	// Infrastructure
	DataDir       string
	SQLitePath    string
	RedisAddr     string // empty disables publishing
	RedisPassword string
	MetricsAddr   string

	// Notifications
	WebhookURL       string
	TelegramBotToken string
	TelegramChatID   string

	LogLevel string
}

// Load reads a dotenv file (ENV_FILE, default ".env") if present and then
// the environment. Real variables win over the file. Every invalid value is
// reported in the returned error.
func Load() (*Config, error) {
	envFile := getEnv("ENV_FILE", ".env")
	if _, err := os.Stat(envFile); err == nil {
		if err := godotenv.Load(envFile); err != nil {
			return nil, errors.Wrapf(err, "load %s", envFile)
		}
	}

	p := &parser{}
	c := &Config{
		APIKey:    os.Getenv("BITVAVO_API_KEY"),
		APISecret: os.Getenv("BITVAVO_API_SECRET"),
		BaseURL:   getEnv("BASE_URL", "https://api.bitvavo.com/v2/"),

		Market:          strings.ToUpper(getEnv("MARKET", "BTC-EUR")),
		Simulation:      p.bool("SIMULATION", true),
		MaxPositionPct:  p.float("MAX_POSITION_PCT", 0.25),
		MinFiatBalance:  p.float("MIN_FIAT_BALANCE", 50),
		DustThreshold:   p.float("DUST_THRESHOLD", 1e-5),
		SimStartingFiat: p.float("SIM_STARTING_FIAT", 1000),
		SlippageBps:     p.float("SIM_SLIPPAGE_BPS", 0),
		ArmTOTPSecret:   os.Getenv("ARM_TOTP_SECRET"),

		Intervals:        splitList(getEnv("INTERVALS", "1m,5m,15m,1h")),
		SignalIntervals:  splitList(getEnv("SIGNAL_INTERVALS", "5m,15m,1h")),
		CandleLimit:      p.int("CANDLE_LIMIT", 50),
		HistoryLimit:     p.int("HISTORY_LIMIT", 5000),
		PollInterval:     p.duration("POLL_INTERVAL", 10*time.Second),
		RetryDelay:       p.duration("RETRY_DELAY", 5*time.Second),
		CSVSaveInterval:  p.duration("CSV_SAVE_INTERVAL", 10*time.Minute),
		RequestsPerSec:   p.float("REQUESTS_PER_SECOND", 0),
		RateLimitFloor:   int64(p.int("RATE_LIMIT_FLOOR", 10)),
		TimeDriftWarning: p.duration("TIME_DRIFT_WARNING", 2*time.Second),

		DataDir:       getEnv("DATA_DIR", "."),
		SQLitePath:    getEnv("SQLITE_PATH", "data/cryptobot.db"),
		RedisAddr:     os.Getenv("REDIS_ADDR"),
		RedisPassword: os.Getenv("REDIS_PASSWORD"),
		MetricsAddr:   getEnv("METRICS_ADDR", ":9090"),

		WebhookURL:       os.Getenv("WEBHOOK_URL"),
		TelegramBotToken: os.Getenv("TELEGRAM_BOT_TOKEN"),
		TelegramChatID:   os.Getenv("TELEGRAM_CHAT_ID"),

		LogLevel: getEnv("LOG_LEVEL", "info"),
	}
	if err := multierr.Append(p.err, c.Validate()); err != nil {
		return nil, err
	}
	return c, nil
}

// Validate checks cross-field constraints. Credentials are only required
// outside simulation.
func (c *Config) Validate() error {
	var err error
	if !strings.Contains(c.Market, "-") {
		err = multierr.Append(err, errors.Errorf("MARKET %q must look like BASE-QUOTE", c.Market))
	}
	if c.MaxPositionPct <= 0 || c.MaxPositionPct > 1 {
		err = multierr.Append(err, errors.Errorf("MAX_POSITION_PCT %.4f outside (0,1]", c.MaxPositionPct))
	}
	if len(c.SignalIntervals) == 0 {
		err = multierr.Append(err, errors.New("SIGNAL_INTERVALS is empty"))
	}
	for _, iv := range c.SignalIntervals {
		if !contains(c.Intervals, iv) {
			err = multierr.Append(err, errors.Errorf("signal interval %q is not fetched (INTERVALS=%s)", iv, strings.Join(c.Intervals, ",")))
		}
	}
	if c.CandleLimit <= 0 {
		err = multierr.Append(err, errors.New("CANDLE_LIMIT must be positive"))
	}
	if !c.Simulation && (c.APIKey == "" || c.APISecret == "") {
		err = multierr.Append(err, errors.New("BITVAVO_API_KEY and BITVAVO_API_SECRET are required outside simulation"))
	}
	return err
}

// StatusInterval is the coarsest fetched interval, used for the status log.
func (c *Config) StatusInterval() string {
	if len(c.Intervals) == 0 {
		return ""
	}
	return c.Intervals[len(c.Intervals)-1]
}

// parser collects conversion errors instead of failing on the first one.
type parser struct {
	err error
}

func (p *parser) int(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		p.err = multierr.Append(p.err, errors.Wrapf(err, "%s", key))
		return fallback
	}
	return n
}

func (p *parser) float(key string, fallback float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		p.err = multierr.Append(p.err, errors.Wrapf(err, "%s", key))
		return fallback
	}
	return f
}

func (p *parser) bool(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		p.err = multierr.Append(p.err, errors.Wrapf(err, "%s", key))
		return fallback
	}
	return b
}

// duration accepts Go durations ("10s") or bare seconds ("10").
func (p *parser) duration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	if n, err := strconv.Atoi(v); err == nil {
		return time.Duration(n) * time.Second
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		p.err = multierr.Append(p.err, errors.Wrapf(err, "%s", key))
		return fallback
	}
	return d
}

func splitList(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

func getEnv(key, fallback string) string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	return v
}
