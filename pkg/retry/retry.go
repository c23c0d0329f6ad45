package retry

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"time"
)

// Policy defines how transient failures are retried.
type Policy struct {
	MaxRetries     int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	BackoffFactor  float64
	Jitter         bool
}

// DefaultPolicy returns the policy used for most network calls.
func DefaultPolicy() Policy {
	return Policy{
		MaxRetries:     3,
		InitialBackoff: 2 * time.Second,
		MaxBackoff:     30 * time.Second,
		BackoffFactor:  2.0,
		Jitter:         true,
	}
}

// TransientError wraps an error to indicate the operation may be retried.
type TransientError struct {
	Err        error
	RetryAfter time.Duration
}

func (e *TransientError) Error() string {
	if e.RetryAfter > 0 {
		return fmt.Sprintf("%v (retry after %v)", e.Err, e.RetryAfter)
	}
	return e.Err.Error()
}

func (e *TransientError) Unwrap() error {
	return e.Err
}

// IsTransient checks if an error should trigger a retry.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}

	var te *TransientError
	return errors.As(err, &te)
}

// Transient marks an error as retryable.
func Transient(err error) error {
	return &TransientError{Err: err}
}

// TransientAfter marks an error as retryable with an explicit delay hint
// (e.g. from a Retry-After header).
func TransientAfter(err error, delay time.Duration) error {
	return &TransientError{Err: err, RetryAfter: delay}
}

// Do executes op with exponential backoff. Non-transient errors abort
// immediately; the label names the operation in the final error.
func Do(ctx context.Context, policy Policy, label string, op func() error) error {
	var lastErr error

	for attempt := 0; attempt <= policy.MaxRetries; attempt++ {
		err := op()
		if err == nil {
			return nil
		}

		lastErr = err

		if !IsTransient(err) {
			return err
		}

		if attempt == policy.MaxRetries {
			break
		}

		backoff := backoffFor(policy, attempt)

		var te *TransientError
		if errors.As(err, &te) && te.RetryAfter > 0 {
			backoff = te.RetryAfter
		}

		select {
		case <-ctx.Done():
			return fmt.Errorf("%s: retry cancelled: %w", label, ctx.Err())
		case <-time.After(backoff):
		}
	}

	return fmt.Errorf("%s: max retries exceeded (%d): %w", label, policy.MaxRetries, lastErr)
}

func backoffFor(policy Policy, attempt int) time.Duration {
	backoff := float64(policy.InitialBackoff) * math.Pow(policy.BackoffFactor, float64(attempt))

	if backoff > float64(policy.MaxBackoff) {
		backoff = float64(policy.MaxBackoff)
	}

	duration := time.Duration(backoff)

	if policy.Jitter {
		jitter := time.Duration(float64(duration) * 0.1 * (2*rand.Float64() - 1))
		duration += jitter
	}

	return duration
}
