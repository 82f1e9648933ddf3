package adsb

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"
)

func fastRetry(max int) RetryConfig {
	return RetryConfig{
		MaxRetries:        max,
		InitialDelay:      5 * time.Millisecond,
		MaxDelay:          20 * time.Millisecond,
		Multiplier:        2.0,
		RespectRetryAfter: true,
	}
}

// TestRetryWithBackoff tests basic retry logic.
func TestRetryWithBackoff(t *testing.T) {
	t.Run("Success on first attempt", func(t *testing.T) {
		attempts := 0
		err := RetryWithBackoff(context.Background(), fastRetry(3), func() error {
			attempts++
			return nil
		})
		if err != nil {
			t.Errorf("Expected no error, got: %v", err)
		}
		if attempts != 1 {
			t.Errorf("Expected 1 attempt, got %d", attempts)
		}
	})

	t.Run("Success after retries", func(t *testing.T) {
		attempts := 0
		err := RetryWithBackoff(context.Background(), fastRetry(3), func() error {
			attempts++
			if attempts < 3 {
				return errors.New("temporary error")
			}
			return nil
		})
		if err != nil {
			t.Errorf("Expected no error, got: %v", err)
		}
		if attempts != 3 {
			t.Errorf("Expected 3 attempts, got %d", attempts)
		}
	})

	t.Run("Max retries exceeded keeps last error", func(t *testing.T) {
		want := errors.New("upstream unavailable")
		attempts := 0
		err := RetryWithBackoff(context.Background(), fastRetry(2), func() error {
			attempts++
			return want
		})
		if !errors.Is(err, want) {
			t.Errorf("Expected wrapped upstream error, got: %v", err)
		}
		if attempts != 3 {
			t.Errorf("Expected 3 attempts (initial + 2 retries), got %d", attempts)
		}
	})

	t.Run("Zero retries", func(t *testing.T) {
		attempts := 0
		_ = RetryWithBackoff(context.Background(), fastRetry(0), func() error {
			attempts++
			return errors.New("error")
		})
		if attempts != 1 {
			t.Errorf("Expected 1 attempt, got %d", attempts)
		}
	})

	t.Run("Context cancellation", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		attempts := 0
		err := RetryWithBackoff(ctx, DefaultRetryConfig(), func() error {
			attempts++
			return errors.New("error")
		})
		if !errors.Is(err, context.Canceled) {
			t.Errorf("Expected context.Canceled error, got: %v", err)
		}
		if attempts != 1 {
			t.Errorf("Expected 1 attempt, got %d", attempts)
		}
	})
}

// TestPermanentError tests that permanent failures are not retried.
func TestPermanentError(t *testing.T) {
	attempts := 0
	_, err := RetryWithBackoffResult(context.Background(), fastRetry(5), func() (*RawTrace, error) {
		attempts++
		return nil, Permanent(ErrTraceNotFound)
	})
	if attempts != 1 {
		t.Errorf("Expected 1 attempt, got %d", attempts)
	}
	if !errors.Is(err, ErrTraceNotFound) {
		t.Errorf("Expected ErrTraceNotFound, got: %v", err)
	}
	var perm *PermanentError
	if errors.As(err, &perm) {
		t.Error("Expected permanent wrapper to be removed")
	}
	if Permanent(nil) != nil {
		t.Error("Expected Permanent(nil) to be nil")
	}
}

// TestRetryAfter tests that a rate limit Retry-After delay overrides backoff.
func TestRetryAfter(t *testing.T) {
	cfg := fastRetry(1)
	cfg.MaxDelay = 0

	attempts := 0
	start := time.Now()
	result, err := RetryWithBackoffResult(context.Background(), cfg, func() (string, error) {
		attempts++
		if attempts == 1 {
			return "", &RateLimitError{StatusCode: 429, RetryAfter: 60 * time.Millisecond, Message: "Rate limit exceeded"}
		}
		return "ok", nil
	})
	elapsed := time.Since(start)

	if err != nil || result != "ok" {
		t.Fatalf("Expected ok, got %q, %v", result, err)
	}
	if elapsed < 50*time.Millisecond {
		t.Errorf("Expected Retry-After delay to be honoured, took %v", elapsed)
	}
}

// TestBackoff tests the exponential delay schedule and its cap.
func TestBackoff(t *testing.T) {
	cfg := RetryConfig{InitialDelay: 10 * time.Millisecond, MaxDelay: 50 * time.Millisecond, Multiplier: 2}
	want := []time.Duration{10, 20, 40, 50, 50}
	for i, w := range want {
		if got := backoff(cfg, i); got != w*time.Millisecond {
			t.Errorf("backoff(%d): expected %v, got %v", i, w*time.Millisecond, got)
		}
	}
}

// TestParseRetryAfter tests Retry-After header formats.
func TestParseRetryAfter(t *testing.T) {
	h := http.Header{}
	if d := parseRetryAfter(h); d != 0 {
		t.Errorf("Expected 0 without header, got %v", d)
	}

	h.Set("Retry-After", "7")
	if d := parseRetryAfter(h); d != 7*time.Second {
		t.Errorf("Expected 7s, got %v", d)
	}

	h.Set("Retry-After", time.Now().Add(time.Hour).UTC().Format(http.TimeFormat))
	if d := parseRetryAfter(h); d < 59*time.Minute || d > time.Hour {
		t.Errorf("Expected about 1h, got %v", d)
	}

	h.Set("Retry-After", "soon")
	if d := parseRetryAfter(h); d != 0 {
		t.Errorf("Expected 0 for invalid value, got %v", d)
	}
}

// TestExtractRateLimitHeaders tests both header spellings.
func TestExtractRateLimitHeaders(t *testing.T) {
	h := http.Header{}
	h.Set("X-Rate-Limit-Limit", "100")
	h.Set("X-RateLimit-Remaining", "3")
	h.Set("X-Rate-Limit-Reset", "1700000000")

	rlh := extractRateLimitHeaders(h)
	if rlh.Limit != 100 || rlh.Remaining != 3 {
		t.Errorf("Expected 100/3, got %d/%d", rlh.Limit, rlh.Remaining)
	}
	if rlh.Reset.Unix() != 1700000000 {
		t.Errorf("Expected reset 1700000000, got %d", rlh.Reset.Unix())
	}

	empty := extractRateLimitHeaders(http.Header{})
	if empty.Limit != -1 || empty.Remaining != -1 || !empty.Reset.IsZero() {
		t.Errorf("Expected unset headers, got %+v", empty)
	}
}
