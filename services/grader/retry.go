package grader

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// RetryConfig holds retry configuration for failed upstream calls
type RetryConfig struct {
	MaxAttempts int           // total attempts including the first (default: 3)
	Base        time.Duration // first backoff (default: 1s)
	Factor      float64       // backoff multiplier (default: 2)
	Jitter      float64       // +/- fraction applied to each backoff (default: 0.2)
	MaxBackoff  time.Duration // cap (default: 30s)
}

// DefaultRetryConfig returns the default retry configuration
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts: 3,
		Base:        time.Second,
		Factor:      2,
		Jitter:      0.2,
		MaxBackoff:  30 * time.Second,
	}
}

// StatusError is a non-2xx response from an upstream API
type StatusError struct {
	Provider   string
	StatusCode int
	Body       string
	RetryAfter time.Duration
}

func (e *StatusError) Error() string {
	body := e.Body
	if len(body) > 300 {
		body = body[:300] + "..."
	}
	return fmt.Sprintf("%s API error (status %d): %s", e.Provider, e.StatusCode, body)
}

// IsRetryableStatusCode checks if an HTTP status code should trigger a retry.
// Retryable codes: 408 (Timeout), 429 (Rate Limit), 5xx (Server errors)
func IsRetryableStatusCode(statusCode int) bool {
	return statusCode == http.StatusRequestTimeout || statusCode == http.StatusTooManyRequests || statusCode >= 500
}

// IsRetryable classifies transport failures, timeouts and retryable statuses
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		return IsRetryableStatusCode(statusErr.StatusCode)
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	var coded interface{ HTTPStatus() int }
	if errors.As(err, &coded) {
		return IsRetryableStatusCode(coded.HTTPStatus())
	}
	return false
}

// ParseRetryAfter extracts the retry-after header value from a response.
// Returns 0 if the header is not present or cannot be parsed.
func ParseRetryAfter(resp *http.Response) time.Duration {
	if resp == nil {
		return 0
	}
	retryAfter := resp.Header.Get("Retry-After")
	if retryAfter == "" {
		return 0
	}
	if seconds, err := strconv.Atoi(retryAfter); err == nil {
		return time.Duration(seconds) * time.Second
	}
	if t, err := http.ParseTime(retryAfter); err == nil {
		if d := time.Until(t); d > 0 {
			return d
		}
	}
	return 0
}

// backoff computes the delay before retry number attempt (1-based)
type backoff struct {
	cfg RetryConfig
	mu  sync.Mutex
	rnd *rand.Rand
}

func newBackoff(cfg RetryConfig, seed int64) *backoff {
	return &backoff{cfg: cfg, rnd: rand.New(rand.NewSource(seed))}
}

// CalculateBackoff returns Base * Factor^(attempt-1) with jitter, capped at MaxBackoff
func (b *backoff) CalculateBackoff(attempt int) time.Duration {
	d := float64(b.cfg.Base)
	for i := 1; i < attempt; i++ {
		d *= b.cfg.Factor
	}
	if b.cfg.Jitter > 0 {
		b.mu.Lock()
		d *= 1 + b.cfg.Jitter*(2*b.rnd.Float64()-1)
		b.mu.Unlock()
	}
	if b.cfg.MaxBackoff > 0 && time.Duration(d) > b.cfg.MaxBackoff {
		return b.cfg.MaxBackoff
	}
	return time.Duration(d)
}

// do runs fn until it succeeds, fails permanently, or attempts run out
func (b *backoff) do(ctx context.Context, op string, fn func(context.Context) error) error {
	attempts := b.cfg.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}

	var err error
	for attempt := 1; attempt <= attempts; attempt++ {
		err = fn(ctx)
		if err == nil || !IsRetryable(err) || attempt == attempts {
			return err
		}

		wait := b.CalculateBackoff(attempt)
		var statusErr *StatusError
		if errors.As(err, &statusErr) && statusErr.RetryAfter > wait {
			wait = statusErr.RetryAfter
		}
		log.Warn().Err(err).Str("op", op).Int("attempt", attempt).Dur("backoff", wait).Msg("grader call failed, retrying")

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
	return err
}
