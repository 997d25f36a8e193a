// Copyright Amazon.com, Inc. or its affiliates. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

package resilience

import (
	"context"
	"errors"
	"testing"
	"time"
)

// fastRetry keeps backoff delays negligible so tests stay quick.
func fastRetry(maxRetries int) RetryConfig {
	return RetryConfig{
		MaxRetries:      maxRetries,
		InitialInterval: time.Millisecond,
		MaxInterval:     5 * time.Millisecond,
		Multiplier:      2.0,
	}
}

func TestRetryWithBackoffSucceedsFirstTry(t *testing.T) {
	calls := 0
	err := RetryWithBackoff(context.Background(), fastRetry(3), func(ctx context.Context) error {
		calls++
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if calls != 1 {
		t.Errorf("expected a single call, got %d", calls)
	}
}

func TestRetryWithBackoffRetriesRateLimit(t *testing.T) {
	calls := 0
	err := RetryWithBackoff(context.Background(), fastRetry(3), func(ctx context.Context) error {
		calls++
		if calls < 3 {
			return NewTransientError("rate limit from provider", nil)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("expected recovery, got %v", err)
	}
	if calls != 3 {
		t.Errorf("expected 3 calls, got %d", calls)
	}
}

func TestRetryWithBackoffStopsOnPermanentError(t *testing.T) {
	calls := 0
	badKey := NewPermanentError("unauthorized: bad API key", nil)
	err := RetryWithBackoff(context.Background(), fastRetry(5), func(ctx context.Context) error {
		calls++
		return badKey
	})
	if !errors.Is(err, badKey) {
		t.Fatalf("expected the permanent error back, got %v", err)
	}
	if calls != 1 {
		t.Errorf("permanent errors must not be retried, got %d calls", calls)
	}
}

func TestRetryWithBackoffExhaustsBudget(t *testing.T) {
	calls := 0
	err := RetryWithBackoff(context.Background(), fastRetry(2), func(ctx context.Context) error {
		calls++
		return NewTransientError("provider still overloaded", nil)
	})
	if err == nil {
		t.Fatal("expected the last error after exhaustion")
	}
	if calls != 3 {
		t.Errorf("expected initial call plus 2 retries, got %d calls", calls)
	}
}

func TestRetryWithBackoffHonorsContextCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cfg := fastRetry(5)
	cfg.InitialInterval = 50 * time.Millisecond

	err := RetryWithBackoff(ctx, cfg, func(ctx context.Context) error {
		cancel()
		return NewTransientError("timeout talking to provider", nil)
	})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled during backoff, got %v", err)
	}
}

func TestRetryWithBackoffRespectsElapsedTimeBudget(t *testing.T) {
	cfg := fastRetry(5)
	cfg.InitialInterval = 50 * time.Millisecond
	cfg.MaxInterval = time.Second
	cfg.MaxElapsedTime = 10 * time.Millisecond

	calls := 0
	err := RetryWithBackoff(context.Background(), cfg, func(ctx context.Context) error {
		calls++
		return NewTransientError("slow provider", nil)
	})
	if err == nil {
		t.Fatal("expected the last error once the time budget is spent")
	}
	if calls != 1 {
		t.Errorf("a delay past the budget should stop retrying, got %d calls", calls)
	}
}

func TestRetryWithBackoffOnRetryCallback(t *testing.T) {
	var attempts []int
	cfg := fastRetry(3)
	cfg.OnRetry = func(attempt int, err error) {
		attempts = append(attempts, attempt)
		if err == nil {
			t.Error("callback should receive the previous error")
		}
	}

	calls := 0
	_ = RetryWithBackoff(context.Background(), cfg, func(ctx context.Context) error {
		calls++
		if calls < 3 {
			return NewTransientError("transient", nil)
		}
		return nil
	})
	if len(attempts) != 2 || attempts[0] != 1 || attempts[1] != 2 {
		t.Errorf("expected callbacks for attempts 1 and 2, got %v", attempts)
	}
}

func TestRetryWithResultReturnsValue(t *testing.T) {
	calls := 0
	got, err := RetryWithResult(context.Background(), fastRetry(2), func(ctx context.Context) (string, error) {
		calls++
		if calls == 1 {
			return "", NewTransientError("first segment attempt failed", nil)
		}
		return "draft", nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "draft" {
		t.Errorf("got %q", got)
	}
}

func TestIsRetryable(t *testing.T) {
	if IsRetryable(nil) {
		t.Error("nil error must not be retryable")
	}
	if !IsRetryable(NewTransientError("503 from provider", nil)) {
		t.Error("transient errors are retryable")
	}
	if IsRetryable(NewPermanentError("malformed response", nil)) {
		t.Error("permanent errors are not retryable")
	}
}

func TestErrorTypeString(t *testing.T) {
	cases := map[ErrorType]string{
		ErrorTypeTransient: "Transient",
		ErrorTypePermanent: "Permanent",
		ErrorTypeRateLimit: "RateLimit",
		ErrorType(99):      "ErrorType(99)",
	}
	for et, want := range cases {
		if got := et.String(); got != want {
			t.Errorf("%d.String() = %q, want %q", int(et), got, want)
		}
	}
}
