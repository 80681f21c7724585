// Package exchangeapi is an authenticated REST client for a Bitvavo-style
// exchange API. It signs every request, tracks the rate-limit budget reported
// by the server and retries transient failures with exponential backoff.
//
// Usage example:
//
//	limits := exchangeapi.NewRateLimiter()
//	c, err := exchangeapi.NewClient(exchangeapi.Config{APIKey: key, APISecret: secret}, limits)
//	if err != nil { log.Fatal(err) }
//	candles, err := c.Candles(ctx, "BTC-EUR", "1h", 50)
//	if exchangeapi.IsFatal(err) { log.Fatal(err) }
package exchangeapi

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/pkg/errors"
	"github.com/valyala/fastjson"
	"golang.org/x/time/rate"
)

const (
	DefaultBaseURL      = "https://api.bitvavo.com/v2/"
	DefaultHeaderPrefix = "Bitvavo-"

	defaultHTTPTimeout  = 15 * time.Second
	defaultMaxAttempts  = 5
	defaultInitialDelay = time.Second
)

// Config configures a Client. Zero values fall back to the defaults above.
type Config struct {
	BaseURL      string
	APIKey       string
	APISecret    string
	HeaderPrefix string // prefix of access and rate-limit headers, e.g. "Bitvavo-"

	Timeout      time.Duration
	MaxAttempts  int
	InitialDelay time.Duration // delay after the first failure, doubled afterwards

	// RequestsPerSecond paces outgoing requests client-side. 0 disables pacing.
	RequestsPerSecond float64

	// ProactiveThrottle makes each attempt wait for the reset time once the
	// remaining budget drops to RateLimitFloor.
	ProactiveThrottle bool
	RateLimitFloor    int64

	HTTPClient *http.Client
}

// SleepFunc waits for d or until ctx is done.
type SleepFunc func(ctx context.Context, d time.Duration) error

// Observer receives per-attempt outcomes, e.g. for Prometheus.
type Observer interface {
	ObserveAttempt(endpoint, outcome string, d time.Duration)
	ObserveRateLimit(state RateLimitState)
}

// Option customizes a Client.
type Option func(*Client)

// WithSleeper replaces the retry sleeper (tests use a recording fake).
func WithSleeper(s SleepFunc) Option { return func(c *Client) { c.sleep = s } }

// WithClock replaces the wall clock used for request timestamps.
func WithClock(now func() time.Time) Option { return func(c *Client) { c.now = now } }

// WithObserver attaches an attempt observer.
func WithObserver(o Observer) Option { return func(c *Client) { c.observer = o } }

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option { return func(c *Client) { c.logger = l } }

// Client issues signed requests with bounded retry.
type Client struct {
	baseURL *url.URL
	key     string
	secret  string
	prefix  string

	httpClient   *http.Client
	limits       *RateLimiter
	pacer        *rate.Limiter
	throttle     bool
	floor        int64
	maxAttempts  int
	initialDelay time.Duration

	now      func() time.Time
	sleep    SleepFunc
	observer Observer
	logger   *slog.Logger
}

// NewClient builds a Client. limits is shared with whoever reports on the
// budget; pass a fresh NewRateLimiter() when nobody else needs it.
func NewClient(cfg Config, limits *RateLimiter, opts ...Option) (*Client, error) {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if !strings.HasSuffix(cfg.BaseURL, "/") {
		cfg.BaseURL += "/"
	}
	u, err := url.Parse(cfg.BaseURL)
	if err != nil {
		return nil, errors.Wrap(err, "parse base url")
	}
	if cfg.HeaderPrefix == "" {
		cfg.HeaderPrefix = DefaultHeaderPrefix
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = defaultHTTPTimeout
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = defaultMaxAttempts
	}
	if cfg.InitialDelay <= 0 {
		cfg.InitialDelay = defaultInitialDelay
	}
	if limits == nil {
		limits = NewRateLimiter()
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}
	pacer := rate.NewLimiter(rate.Inf, 1)
	if cfg.RequestsPerSecond > 0 {
		pacer = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), 1)
	}

	c := &Client{
		baseURL:      u,
		key:          cfg.APIKey,
		secret:       cfg.APISecret,
		prefix:       cfg.HeaderPrefix,
		httpClient:   httpClient,
		limits:       limits,
		pacer:        pacer,
		throttle:     cfg.ProactiveThrottle,
		floor:        cfg.RateLimitFloor,
		maxAttempts:  cfg.MaxAttempts,
		initialDelay: cfg.InitialDelay,
		now:          time.Now,
		sleep:        sleepCtx,
		logger:       slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// RateLimits returns the limiter updated by this client.
func (c *Client) RateLimits() *RateLimiter { return c.limits }

// Request sends a signed request and returns the parsed JSON payload.
//
// Transport failures, 429s, other non-2xx statuses and unparseable bodies are
// retried up to MaxAttempts times, sleeping 1s, 2s, 4s, ... after each failure.
// 401/403 abort immediately with *AuthError (see IsFatal). When every attempt
// fails the payload is nil and the error matches ErrRetriesExhausted.
func (c *Client) Request(ctx context.Context, method, endpoint string, body []byte) (*fastjson.Value, error) {
	return c.request(ctx, method, endpoint, body, fastjson.TypeNull)
}

// requestArray is Request for endpoints that answer with a JSON array. Any
// other 2xx document (e.g. an {"errorCode":...} object) is a *ParseError and
// retried like an unparseable body.
func (c *Client) requestArray(ctx context.Context, method, endpoint string, body []byte) (*fastjson.Value, error) {
	return c.request(ctx, method, endpoint, body, fastjson.TypeArray)
}

// request retries until a 2xx payload arrives. want != TypeNull also
// requires the top-level document to be of that type.
func (c *Client) request(ctx context.Context, method, endpoint string, body []byte, want fastjson.Type) (*fastjson.Value, error) {
	bo := c.newBackOff()
	var lastErr error

	for attempt := 1; attempt <= c.maxAttempts; attempt++ {
		start := c.now()
		v, err := c.once(ctx, method, endpoint, body, want)
		c.observeAttempt(endpoint, err, c.now().Sub(start))
		if err == nil {
			return v, nil
		}
		if IsFatal(err) {
			c.logger.Error("fatal API error, not retrying",
				"endpoint", endpoint, "attempt", attempt, "err", err)
			return nil, err
		}
		if !Retryable(err) {
			return nil, err
		}

		lastErr = err
		delay := bo.NextBackOff()
		c.logger.Warn("API request failed",
			"method", method,
			"endpoint", endpoint,
			"attempt", attempt,
			"max_attempts", c.maxAttempts,
			"retry_in", delay.String(),
			"err", err)
		if err := c.sleep(ctx, delay); err != nil {
			return nil, errors.Wrap(err, "retry wait")
		}
	}

	c.logger.Error("max retries reached, returning empty payload",
		"endpoint", endpoint, "attempts", c.maxAttempts, "err", lastErr)
	return nil, &ExhaustedError{Attempts: c.maxAttempts, Last: lastErr}
}

// newBackOff yields InitialDelay, then doubles it on each call, without jitter.
func (c *Client) newBackOff() *backoff.ExponentialBackOff {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = c.initialDelay
	bo.RandomizationFactor = 0
	bo.Multiplier = 2
	bo.MaxInterval = c.initialDelay << uint(c.maxAttempts)
	bo.MaxElapsedTime = 0
	bo.Reset()
	return bo
}

// once performs a single HTTP exchange and classifies the outcome.
func (c *Client) once(ctx context.Context, method, endpoint string, body []byte, want fastjson.Type) (*fastjson.Value, error) {
	if err := c.pacer.Wait(ctx); err != nil {
		return nil, errors.Wrap(err, "request pacing")
	}
	if c.throttle {
		if err := c.limits.Wait(ctx, c.floor); err != nil {
			return nil, errors.Wrap(err, "rate limit wait")
		}
	}

	req, err := c.newAuthenticatedRequest(ctx, method, endpoint, body)
	if err != nil {
		return nil, err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &TransportError{Err: err}
	}
	defer resp.Body.Close()

	if c.limits.UpdateFromHeader(resp.Header, c.prefix) && c.observer != nil {
		c.observer.ObserveRateLimit(c.limits.Snapshot())
	}

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &TransportError{Err: err}
	}

	switch code := resp.StatusCode; {
	case code == http.StatusTooManyRequests:
		return nil, &RateLimitedError{Body: string(raw)}
	case code == http.StatusUnauthorized || code == http.StatusForbidden:
		return nil, &AuthError{StatusCode: code, Body: string(raw)}
	case code < 200 || code > 299:
		return nil, &HTTPStatusError{StatusCode: code, Body: string(raw)}
	}

	v, err := fastjson.ParseBytes(raw)
	if err != nil {
		return nil, &ParseError{Err: err, Body: string(raw)}
	}
	if want != fastjson.TypeNull && v.Type() != want {
		return nil, &ParseError{Err: errors.Errorf("expected %s, got %s", want, v.Type()), Body: string(raw)}
	}
	return v, nil
}

// newAuthenticatedRequest resolves endpoint against the base URL and attaches
// the key, timestamp and signature headers.
func (c *Client) newAuthenticatedRequest(ctx context.Context, method, endpoint string, body []byte) (*http.Request, error) {
	rel, err := url.Parse(endpoint)
	if err != nil {
		return nil, errors.Wrapf(err, "parse endpoint %q", endpoint)
	}
	u := c.baseURL.ResolveReference(rel)
	path := u.Path
	if u.RawQuery != "" {
		path += "?" + u.RawQuery
	}

	ts := c.now().UnixMilli()
	signature := Sign(c.secret, ts, method, path, string(body))

	var rd io.Reader
	if len(body) > 0 {
		rd = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, u.String(), rd)
	if err != nil {
		return nil, errors.Wrap(err, "new request")
	}
	req.Header.Set(c.prefix+"Access-Key", c.key)
	req.Header.Set(c.prefix+"Access-Timestamp", strconv.FormatInt(ts, 10))
	req.Header.Set(c.prefix+"Access-Signature", signature)
	req.Header.Set("Content-Type", "application/json")
	return req, nil
}

func (c *Client) observeAttempt(endpoint string, err error, d time.Duration) {
	if c.observer == nil {
		return
	}
	c.observer.ObserveAttempt(routeLabel(endpoint), outcome(err), d)
}

func outcome(err error) string {
	if err == nil {
		return "ok"
	}
	var (
		transport *TransportError
		limited   *RateLimitedError
		auth      *AuthError
		status    *HTTPStatusError
		parse     *ParseError
	)
	switch {
	case errors.As(err, &auth):
		return "auth"
	case errors.As(err, &limited):
		return "rate_limited"
	case errors.As(err, &status):
		return "status"
	case errors.As(err, &parse):
		return "parse"
	case errors.As(err, &transport):
		return "transport"
	}
	return "other"
}

// routeLabel drops the query string so metric labels stay bounded.
func routeLabel(endpoint string) string {
	route, _, _ := strings.Cut(endpoint, "?")
	return route
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
