package exchangeapi

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"
)

// RateLimitState is the last request budget reported by the exchange.
// -1 means the value has not been observed yet.
type RateLimitState struct {
	Remaining int64 `json:"remaining"`
	ResetAtMs int64 `json:"reset_at_ms"`
}

// Known reports whether both fields have been observed.
func (s RateLimitState) Known() bool {
	return s.Remaining != -1 && s.ResetAtMs != -1
}

// ResetAt returns ResetAtMs as a UTC time.
func (s RateLimitState) ResetAt() time.Time {
	return time.UnixMilli(s.ResetAtMs).UTC()
}

// RateLimiter tracks the remaining request budget. Every response updates it,
// whichever endpoint produced it; the last writer wins.
// Safe for concurrent use.
type RateLimiter struct {
	mu    sync.Mutex
	state RateLimitState
	now   func() time.Time
}

// NewRateLimiter returns a limiter with an unknown budget.
func NewRateLimiter() *RateLimiter {
	return &RateLimiter{
		state: RateLimitState{Remaining: -1, ResetAtMs: -1},
		now:   time.Now,
	}
}

// Update overwrites both fields.
func (r *RateLimiter) Update(remaining, resetAtMs int64) {
	r.mu.Lock()
	r.state = RateLimitState{Remaining: remaining, ResetAtMs: resetAtMs}
	r.mu.Unlock()
}

// Snapshot returns a copy of the current state.
func (r *RateLimiter) Snapshot() RateLimitState {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// UpdateFromHeader applies the rate-limit headers of a response.
// A missing or malformed header leaves the corresponding field untouched.
// Returns true if anything was applied.
func (r *RateLimiter) UpdateFromHeader(h http.Header, prefix string) bool {
	remaining, okRemaining := parseHeaderInt(h, prefix+"Ratelimit-Remaining")
	resetAt, okReset := parseHeaderInt(h, prefix+"Ratelimit-Resetat")
	if !okRemaining && !okReset {
		return false
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if okRemaining {
		r.state.Remaining = remaining
	}
	if okReset {
		r.state.ResetAtMs = resetAt
	}
	return true
}

// Wait blocks until the reset time when the remaining budget is at or below
// floor. A floor < 0 or an unknown budget never blocks.
func (r *RateLimiter) Wait(ctx context.Context, floor int64) error {
	if floor < 0 {
		return nil
	}
	s := r.Snapshot()
	if !s.Known() || s.Remaining > floor {
		return nil
	}
	d := s.ResetAt().Sub(r.now())
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

func parseHeaderInt(h http.Header, key string) (int64, bool) {
	// http.Header.Get canonicalizes the key, so lookups are case-insensitive.
	v := strings.TrimSpace(h.Get(key))
	if v == "" {
		return 0, false
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return 0, false
	}
	return n, true
}
