// Package resilience wraps backend calls with retry and circuit-breaker
// policies.
package resilience

import (
	"context"
	"net/http"
	"time"

	"github.com/failsafe-go/failsafe-go"
	"github.com/failsafe-go/failsafe-go/retrypolicy"
	"github.com/sony/gobreaker"
)

// RetryConfig tunes the retry policy for backend requests.
type RetryConfig struct {
	MaxRetries  int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	JitterDelay time.Duration

	// RetryIf decides whether a failed attempt is retried. Nil retries
	// every error.
	RetryIf func(error) bool
}

// DefaultRetryConfig matches typical gateway behavior: a few attempts
// with exponential backoff and jitter.
var DefaultRetryConfig = RetryConfig{
	MaxRetries:  2,
	BaseDelay:   500 * time.Millisecond,
	MaxDelay:    10 * time.Second,
	JitterDelay: 250 * time.Millisecond,
}

// RetryableStatus reports whether a backend HTTP status is worth
// retrying. Client errors other than 429 are not.
func RetryableStatus(status int) bool {
	return status == http.StatusTooManyRequests || status >= 500
}

// BreakerConfig tunes the circuit breaker guarding the backend.
type BreakerConfig struct {
	Name             string
	MaxRequests      uint32
	Interval         time.Duration
	Timeout          time.Duration
	FailureThreshold uint32
	FailureRatio     float64
	MinRequests      uint32
}

// DefaultBreakerConfig returns breaker settings sized for a single
// backend host.
func DefaultBreakerConfig(name string) BreakerConfig {
	return BreakerConfig{
		Name:             name,
		MaxRequests:      3,
		Interval:         10 * time.Second,
		Timeout:          30 * time.Second,
		FailureThreshold: 5,
		FailureRatio:     0.5,
		MinRequests:      10,
	}
}

// Executor combines a retry policy with an optional circuit breaker.
// The breaker sits outside the retries, so one exhausted request counts
// as one failure.
type Executor[R any] struct {
	executor failsafe.Executor[R]
	breaker  *gobreaker.CircuitBreaker
}

// NewExecutor builds an executor from the given policies. A nil breaker
// config disables the breaker.
func NewExecutor[R any](retry RetryConfig, breaker *BreakerConfig) *Executor[R] {
	builder := retrypolicy.NewBuilder[R]().
		WithMaxRetries(retry.MaxRetries).
		WithBackoff(retry.BaseDelay, retry.MaxDelay)
	if retry.JitterDelay > 0 {
		builder = builder.WithJitter(retry.JitterDelay)
	}
	if retry.RetryIf != nil {
		builder = builder.HandleIf(func(_ R, err error) bool {
			return err != nil && retry.RetryIf(err)
		})
	}

	e := &Executor[R]{executor: failsafe.With(builder.Build())}
	if breaker != nil {
		e.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:        breaker.Name,
			MaxRequests: breaker.MaxRequests,
			Interval:    breaker.Interval,
			Timeout:     breaker.Timeout,
			ReadyToTrip: readyToTrip(*breaker),
		})
	}
	return e
}

func readyToTrip(cfg BreakerConfig) func(gobreaker.Counts) bool {
	return func(counts gobreaker.Counts) bool {
		if counts.Requests < cfg.MinRequests {
			return false
		}
		if counts.ConsecutiveFailures >= cfg.FailureThreshold {
			return true
		}
		ratio := float64(counts.TotalFailures) / float64(counts.Requests)
		return ratio >= cfg.FailureRatio
	}
}

// Execute runs fn under the configured policies, honoring ctx between
// attempts.
func (e *Executor[R]) Execute(ctx context.Context, fn func() (R, error)) (R, error) {
	if e.breaker == nil {
		return e.executor.WithContext(ctx).Get(fn)
	}
	result, err := e.breaker.Execute(func() (any, error) {
		return e.executor.WithContext(ctx).Get(fn)
	})
	if err != nil {
		var zero R
		return zero, err
	}
	return result.(R), nil
}

// BreakerState returns the breaker state, or closed when no breaker is
// configured.
func (e *Executor[R]) BreakerState() gobreaker.State {
	if e.breaker == nil {
		return gobreaker.StateClosed
	}
	return e.breaker.State()
}
