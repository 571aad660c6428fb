package unifiedllm

import (
	"context"
	"errors"
	"log/slog"
	"math"
	"math/rand"
	"time"
)

// RetryPolicy retries transient provider errors with exponential backoff.
// Delays are in seconds.
type RetryPolicy struct {
	MaxRetries        int // attempts after the first
	BaseDelay         float64
	MaxDelay          float64
	BackoffMultiplier float64
	Jitter            bool
	OnRetry           func(err error, attempt int, delay time.Duration)
}

// DefaultRetryPolicy retries twice, starting at one second.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxRetries:        2,
		BaseDelay:         1.0,
		MaxDelay:          60.0,
		BackoffMultiplier: 2.0,
		Jitter:            true,
	}
}

// NoRetry returns a policy that never retries.
func NoRetry() RetryPolicy {
	return RetryPolicy{}
}

// WithLogger returns a copy of p that logs each retry before any existing
// OnRetry hook runs.
func (p RetryPolicy) WithLogger(logger *slog.Logger) RetryPolicy {
	if logger == nil {
		return p
	}
	next := p.OnRetry
	p.OnRetry = func(err error, attempt int, delay time.Duration) {
		logger.Warn("retrying llm request", "attempt", attempt, "delay", delay, "error", err)
		if next != nil {
			next(err, attempt, delay)
		}
	}
	return p
}

// Delay is the backoff before retry number attempt+1, with up to 50%
// jitter either way when enabled.
func (p RetryPolicy) Delay(attempt int) time.Duration {
	secs := math.Min(p.BaseDelay*math.Pow(p.BackoffMultiplier, float64(attempt)), p.MaxDelay)
	if p.Jitter {
		secs *= 0.5 + rand.Float64()
	}
	return time.Duration(secs * float64(time.Second))
}

// wait returns how long to wait before retrying err. A Retry-After beyond
// MaxDelay means the error should surface now.
func (p RetryPolicy) wait(err error, attempt int) (time.Duration, bool) {
	var rl *RateLimitError
	if errors.As(err, &rl) && rl.RetryAfter != nil {
		after := time.Duration(*rl.RetryAfter * float64(time.Second))
		if after > time.Duration(p.MaxDelay*float64(time.Second)) {
			return 0, false
		}
		return after, true
	}
	return p.Delay(attempt), true
}

// Retry calls fn until it succeeds, fails with an error IsRetryable
// rejects, or MaxRetries retries have been spent.
func Retry[T any](ctx context.Context, policy RetryPolicy, fn func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	for attempt := 0; ; attempt++ {
		result, err := fn(ctx)
		if err == nil {
			return result, nil
		}
		if attempt >= policy.MaxRetries || !IsRetryable(err) {
			return zero, err
		}
		delay, ok := policy.wait(err, attempt)
		if !ok {
			return zero, err
		}
		if policy.OnRetry != nil {
			policy.OnRetry(err, attempt+1, delay)
		}

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return zero, &AbortError{SDKError: SDKError{Message: "request cancelled during retry", Cause: ctx.Err()}}
		case <-timer.C:
		}
	}
}
