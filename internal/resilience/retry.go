// Package resilience wraps the retry policy and circuit breakers the
// dispatcher runs upstream calls through.
package resilience

import (
	"context"
	"time"

	"github.com/failsafe-go/failsafe-go"
	"github.com/failsafe-go/failsafe-go/retrypolicy"
	"github.com/sony/gobreaker"
)

// RetryConfig bounds the per-request credential retry loop.
type RetryConfig struct {
	MaxRetries  int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	JitterDelay time.Duration
	// ShouldRetry decides whether an attempt error is worth another
	// credential. nil retries every error.
	ShouldRetry func(err error) bool
}

// DefaultRetryConfig matches the dispatcher defaults: 3 attempts, 500 ms
// base backoff capped at 30 s.
var DefaultRetryConfig = RetryConfig{
	MaxRetries:  3,
	BaseDelay:   500 * time.Millisecond,
	MaxDelay:    30 * time.Second,
	JitterDelay: 250 * time.Millisecond,
}

// NewRetryPolicy builds a failsafe retry policy from cfg.
func NewRetryPolicy[R any](cfg RetryConfig) retrypolicy.RetryPolicy[R] {
	builder := retrypolicy.NewBuilder[R]().
		WithMaxRetries(cfg.MaxRetries).
		WithBackoff(cfg.BaseDelay, cfg.MaxDelay)
	if cfg.JitterDelay > 0 {
		builder = builder.WithJitter(cfg.JitterDelay)
	}
	if cfg.ShouldRetry != nil {
		builder = builder.HandleIf(func(_ R, err error) bool {
			return err != nil && cfg.ShouldRetry(err)
		})
	}
	return builder.Build()
}

// Executor runs a function under the retry policy.
type Executor[R any] struct {
	executor failsafe.Executor[R]
}

// NewExecutor builds an executor from cfg.
func NewExecutor[R any](cfg RetryConfig) *Executor[R] {
	return &Executor[R]{executor: failsafe.With(NewRetryPolicy[R](cfg))}
}

// Execute runs fn with retries, stopping early when ctx is cancelled.
func (e *Executor[R]) Execute(ctx context.Context, fn func() (R, error)) (R, error) {
	return e.executor.WithContext(ctx).Get(fn)
}

// BreakerConfig tunes a per-provider circuit breaker.
type BreakerConfig struct {
	Name             string
	MaxRequests      uint32
	Interval         time.Duration
	Timeout          time.Duration
	FailureThreshold uint32
	FailureRatio     float64
	MinRequests      uint32
	IsSuccessful     func(err error) bool
}

// DefaultBreakerConfig returns the standard breaker tuning for a provider.
func DefaultBreakerConfig(name string, isSuccessful func(err error) bool) BreakerConfig {
	if isSuccessful == nil {
		isSuccessful = func(err error) bool { return err == nil }
	}
	return BreakerConfig{
		Name:             name,
		MaxRequests:      3,
		Interval:         10 * time.Second,
		Timeout:          30 * time.Second,
		FailureThreshold: 5,
		FailureRatio:     0.5,
		MinRequests:      10,
		IsSuccessful:     isSuccessful,
	}
}

func settings(cfg BreakerConfig) gobreaker.Settings {
	return gobreaker.Settings{
		Name:        cfg.Name,
		MaxRequests: cfg.MaxRequests,
		Interval:    cfg.Interval,
		Timeout:     cfg.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < cfg.MinRequests {
				return false
			}
			if counts.ConsecutiveFailures >= cfg.FailureThreshold {
				return true
			}
			return float64(counts.TotalFailures)/float64(counts.Requests) >= cfg.FailureRatio
		},
		IsSuccessful: cfg.IsSuccessful,
	}
}

// StreamingBreaker is a two-step breaker for streamed responses: Allow
// gates the call, and the returned done callback reports the outcome once
// the stream has fully drained.
type StreamingBreaker struct {
	cb *gobreaker.TwoStepCircuitBreaker
}

// NewStreamingBreaker builds a two-step breaker from cfg.
func NewStreamingBreaker(cfg BreakerConfig) *StreamingBreaker {
	return &StreamingBreaker{cb: gobreaker.NewTwoStepCircuitBreaker(settings(cfg))}
}

// Allow reports whether the breaker permits a request. The done callback
// must be called exactly once with the final outcome.
func (s *StreamingBreaker) Allow() (done func(success bool), err error) {
	return s.cb.Allow()
}

// State returns the breaker state.
func (s *StreamingBreaker) State() gobreaker.State { return s.cb.State() }

// IsOpen reports whether Allow would be refused.
func IsOpen(err error) bool {
	return err == gobreaker.ErrOpenState || err == gobreaker.ErrTooManyRequests
}
