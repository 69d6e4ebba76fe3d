package llm

import (
	"context"
	"errors"
	"testing"
	"time"
)

func fastPolicy() RetryPolicy {
	return RetryPolicy{
		InitialInterval: time.Millisecond,
		MaxInterval:     2 * time.Millisecond,
		MaxElapsed:      5 * time.Second,
		Multiplier:      1.5,
	}
}

func serverError(msg string) error {
	return &ServerError{ProviderError: ProviderError{SDKError: SDKError{Message: msg}, StatusCode: 503, Retryable: true}}
}

func TestDefaultRetryPolicy(t *testing.T) {
	p := DefaultRetryPolicy()
	if p.InitialInterval != 500*time.Millisecond || p.MaxInterval != 4*time.Second || p.MaxElapsed != 30*time.Second {
		t.Errorf("unexpected default policy: %+v", p)
	}
}

func TestRetrySuccess(t *testing.T) {
	callCount := 0
	result, err := Retry(context.Background(), fastPolicy(), func(ctx context.Context) (string, error) {
		callCount++
		if callCount < 3 {
			return "", serverError("server error")
		}
		return "success", nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result != "success" {
		t.Errorf("expected success, got %q", result)
	}
	if callCount != 3 {
		t.Errorf("expected 3 calls, got %d", callCount)
	}
}

func TestRetryStopsOnPermanentError(t *testing.T) {
	callCount := 0
	_, err := Retry(context.Background(), fastPolicy(), func(ctx context.Context) (string, error) {
		callCount++
		return "", ErrorFromStatusCode(401, "bad key", "test")
	})
	var auth *AuthenticationError
	if !errors.As(err, &auth) {
		t.Fatalf("expected AuthenticationError, got %T: %v", err, err)
	}
	if callCount != 1 {
		t.Errorf("permanent error retried: %d calls", callCount)
	}
}

func TestRetryBudgetSurfacesLastError(t *testing.T) {
	policy := RetryPolicy{
		InitialInterval: 5 * time.Millisecond,
		MaxInterval:     5 * time.Millisecond,
		MaxElapsed:      40 * time.Millisecond,
		Multiplier:      1,
	}

	callCount := 0
	_, err := Retry(context.Background(), policy, func(ctx context.Context) (string, error) {
		callCount++
		return "", serverError("attempt")
	})
	var server *ServerError
	if !errors.As(err, &server) {
		t.Fatalf("expected ServerError after budget, got %T: %v", err, err)
	}
	if callCount < 2 {
		t.Errorf("expected several attempts within the budget, got %d", callCount)
	}
}

func TestRetryOnRetryCallback(t *testing.T) {
	policy := fastPolicy()
	var notified int
	policy.OnRetry = func(err error, delay time.Duration) {
		notified++
	}

	callCount := 0
	_, _ = Retry(context.Background(), policy, func(ctx context.Context) (int, error) {
		callCount++
		if callCount < 3 {
			return 0, &RateLimitError{ProviderError: ProviderError{Retryable: true, StatusCode: 429}}
		}
		return 1, nil
	})
	if notified != 2 {
		t.Errorf("expected 2 retry notifications, got %d", notified)
	}
}

func TestRetryCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	policy := RetryPolicy{InitialInterval: time.Second, MaxInterval: time.Second, MaxElapsed: time.Minute}

	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	_, err := Retry(ctx, policy, func(ctx context.Context) (string, error) {
		return "", serverError("down")
	})
	var abort *AbortError
	if !errors.As(err, &abort) {
		t.Fatalf("expected AbortError, got %T: %v", err, err)
	}
}
