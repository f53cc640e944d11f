package services

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/desertthunder/musiclink/internal/shared"
)

const (
	defaultMaxAttempts       = 3
	defaultBaseBackoff       = time.Second
	defaultRetryAfterSeconds = time.Second
	defaultRetryTimeout      = time.Minute
)

// RetryPolicy bounds how long a provider call may keep retrying.
//
// A 429 waits for the provider's Retry-After (DefaultRetryAfter when absent). A 5xx or transport failure waits
// BaseBackoff * 2^attempt. Any other non-2xx status fails immediately. Timeout caps the whole call, waits included.
type RetryPolicy struct {
	MaxAttempts       int
	BaseBackoff       time.Duration
	DefaultRetryAfter time.Duration
	Timeout           time.Duration

	// Sleep waits between attempts; tests replace it to observe waits without sleeping.
	Sleep func(ctx context.Context, d time.Duration) error
}

// DefaultRetryPolicy allows three attempts with a one second base backoff.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts:       defaultMaxAttempts,
		BaseBackoff:       defaultBaseBackoff,
		DefaultRetryAfter: defaultRetryAfterSeconds,
		Timeout:           defaultRetryTimeout,
		Sleep:             sleepWithContext,
	}
}

// RetryPolicyFromConfig builds a policy from the [retry] config section.
func RetryPolicyFromConfig(cfg shared.RetryConfig) RetryPolicy {
	return RetryPolicy{
		MaxAttempts:       cfg.MaxAttempts,
		BaseBackoff:       cfg.BaseBackoff,
		DefaultRetryAfter: cfg.DefaultRetryAfter,
		Timeout:           cfg.Timeout,
	}.withDefaults()
}

func (p RetryPolicy) withDefaults() RetryPolicy {
	d := DefaultRetryPolicy()
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = d.MaxAttempts
	}
	if p.BaseBackoff <= 0 {
		p.BaseBackoff = d.BaseBackoff
	}
	if p.DefaultRetryAfter <= 0 {
		p.DefaultRetryAfter = d.DefaultRetryAfter
	}
	if p.Sleep == nil {
		p.Sleep = d.Sleep
	}
	return p
}

// backoff returns the wait before retrying after the zero-indexed attempt.
func (p RetryPolicy) backoff(attempt int) time.Duration {
	return p.BaseBackoff * time.Duration(1<<attempt)
}

// retryable reports whether a response status is worth another attempt.
func retryable(status int) bool {
	return status == http.StatusTooManyRequests || status >= http.StatusInternalServerError
}

// parseRetryAfter reads a Retry-After header given as delta-seconds or an HTTP date.
//
// It returns false when the header is absent or malformed.
func parseRetryAfter(h http.Header, now time.Time) (time.Duration, bool) {
	raw := strings.TrimSpace(h.Get("Retry-After"))
	if raw == "" {
		return 0, false
	}

	if seconds, err := strconv.Atoi(raw); err == nil && seconds >= 0 {
		return time.Duration(seconds) * time.Second, true
	}

	if when, err := http.ParseTime(raw); err == nil {
		return max(0, when.Sub(now)), true
	}

	return 0, false
}

func sleepWithContext(ctx context.Context, delay time.Duration) error {
	if delay <= 0 {
		return nil
	}

	timer := time.NewTimer(delay)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return fmt.Errorf("request canceled: %w", ctx.Err())
	case <-timer.C:
		return nil
	}
}
