package llm

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v5"
)

// RetryPolicy configures exponential backoff bounded by total elapsed time.
type RetryPolicy struct {
	InitialInterval     time.Duration
	MaxInterval         time.Duration
	MaxElapsed          time.Duration
	Multiplier          float64
	RandomizationFactor float64
	OnRetry             func(err error, delay time.Duration)
}

// DefaultRetryPolicy starts at 500ms, caps each wait at 4s and gives up
// after 30s overall.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		InitialInterval:     500 * time.Millisecond,
		MaxInterval:         4 * time.Second,
		MaxElapsed:          30 * time.Second,
		Multiplier:          1.5,
		RandomizationFactor: 0.5,
	}
}

func (p RetryPolicy) backOff() *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = p.InitialInterval
	b.MaxInterval = p.MaxInterval
	if p.Multiplier > 0 {
		b.Multiplier = p.Multiplier
	}
	b.RandomizationFactor = p.RandomizationFactor
	return b
}

// Retry calls fn until it succeeds, fails permanently or the elapsed-time
// budget runs out. Only errors accepted by IsRetryable are retried; the
// last error is returned on exhaustion.
func Retry[T any](ctx context.Context, policy RetryPolicy, fn func(ctx context.Context) (T, error)) (T, error) {
	op := func() (T, error) {
		v, err := fn(ctx)
		if err != nil && !IsRetryable(err) {
			return v, backoff.Permanent(err)
		}
		return v, err
	}

	opts := []backoff.RetryOption{
		backoff.WithBackOff(policy.backOff()),
		backoff.WithMaxElapsedTime(policy.MaxElapsed),
	}
	if policy.OnRetry != nil {
		opts = append(opts, backoff.WithNotify(policy.OnRetry))
	}

	result, err := backoff.Retry(ctx, op, opts...)
	if err != nil && ctx.Err() != nil {
		var zero T
		return zero, &AbortError{SDKError: SDKError{Message: "request cancelled", Cause: err}}
	}
	return result, err
}
