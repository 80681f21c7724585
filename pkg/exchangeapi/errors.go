package exchangeapi

import (
	"fmt"

	"github.com/pkg/errors"
)

// ErrRetriesExhausted is matched (errors.Is) by the error returned when every
// attempt failed with a retryable error. Callers treat it as "no data this cycle".
var ErrRetriesExhausted = errors.New("retries exhausted")

// TransportError wraps connection, DNS and TLS failures. Retryable.
type TransportError struct {
	Err error
}

func (e *TransportError) Error() string { return "transport: " + e.Err.Error() }
func (e *TransportError) Unwrap() error { return e.Err }

// RateLimitedError is an HTTP 429. Retryable.
type RateLimitedError struct {
	Body string
}

func (e *RateLimitedError) Error() string { return "rate limited (429): " + truncate(e.Body) }

// AuthError is an HTTP 401/403. Fatal: the credentials are rejected and
// retrying cannot help.
type AuthError struct {
	StatusCode int
	Body       string
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("authentication rejected (%d): %s", e.StatusCode, truncate(e.Body))
}

// HTTPStatusError is any other non-2xx response. Retryable.
type HTTPStatusError struct {
	StatusCode int
	Body       string
}

func (e *HTTPStatusError) Error() string {
	return fmt.Sprintf("http status %d: %s", e.StatusCode, truncate(e.Body))
}

// ParseError is a 2xx response whose body is not valid JSON or not of the
// shape the endpoint returns. Retryable.
type ParseError struct {
	Err  error
	Body string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse response: %v: %s", e.Err, truncate(e.Body))
}
func (e *ParseError) Unwrap() error { return e.Err }

// ExhaustedError carries the last failure after all attempts were used.
type ExhaustedError struct {
	Attempts int
	Last     error
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("%s after %d attempts: %v", ErrRetriesExhausted, e.Attempts, e.Last)
}

func (e *ExhaustedError) Is(target error) bool { return target == ErrRetriesExhausted }
func (e *ExhaustedError) Unwrap() error        { return e.Last }

// IsFatal reports whether err contains an AuthError.
func IsFatal(err error) bool {
	var auth *AuthError
	return errors.As(err, &auth)
}

// Retryable reports whether a single attempt's error should be retried.
func Retryable(err error) bool {
	if err == nil || IsFatal(err) {
		return false
	}
	var (
		transport *TransportError
		limited   *RateLimitedError
		status    *HTTPStatusError
		parse     *ParseError
	)
	return errors.As(err, &transport) || errors.As(err, &limited) ||
		errors.As(err, &status) || errors.As(err, &parse)
}

func truncate(s string) string {
	const max = 256
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}
