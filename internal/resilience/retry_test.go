package resilience

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"
)

func fastRetryConfig() RetryConfig {
	return RetryConfig{MaxRetries: 3, BaseDelay: time.Millisecond, MaxDelay: 5 * time.Millisecond}
}

func TestExecutorRetriesUntilSuccess(t *testing.T) {
	exec := NewExecutor[string](fastRetryConfig(), nil)

	attempts := 0
	result, err := exec.Execute(context.Background(), func() (string, error) {
		attempts++
		if attempts < 3 {
			return "", errors.New("transient")
		}
		return "ok", nil
	})
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	if result != "ok" || attempts != 3 {
		t.Errorf("result = %q after %d attempts", result, attempts)
	}
}

func TestExecutorExhaustsRetries(t *testing.T) {
	exec := NewExecutor[int](fastRetryConfig(), nil)

	attempts := 0
	_, err := exec.Execute(context.Background(), func() (int, error) {
		attempts++
		return 0, errors.New("permanent")
	})
	if err == nil {
		t.Fatal("expected error after exhausting retries")
	}
	if attempts != 4 { // initial attempt plus three retries
		t.Errorf("attempts = %d, want 4", attempts)
	}
}

func TestExecutorHonorsContext(t *testing.T) {
	exec := NewExecutor[int](RetryConfig{MaxRetries: 10, BaseDelay: 50 * time.Millisecond, MaxDelay: time.Second}, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := exec.Execute(ctx, func() (int, error) {
		return 0, errors.New("down")
	})
	if err == nil {
		t.Fatal("expected error when context expires mid-retry")
	}
}

func TestRetryableStatus(t *testing.T) {
	cases := map[int]bool{
		http.StatusOK:                  false,
		http.StatusBadRequest:          false,
		http.StatusUnauthorized:        false,
		http.StatusTooManyRequests:     true,
		http.StatusInternalServerError: true,
		http.StatusBadGateway:          true,
		529:                            true,
	}
	for status, want := range cases {
		if got := RetryableStatus(status); got != want {
			t.Errorf("RetryableStatus(%d) = %v, want %v", status, got, want)
		}
	}
}
