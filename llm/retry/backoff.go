// Package retry provides the exponential-backoff execution policy applied to
// model and tool invocations.
package retry

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"time"

	"go.uber.org/zap"

	"github.com/agentscope-ai/agentscope-go/types"
)

// ExecutionConfig is the per-call retry/backoff/timeout policy. The zero
// value is normalized to the defaults by NewRetryer.
type ExecutionConfig struct {
	MaxRetries   int           `json:"max_retries" yaml:"max_retries"`     // attempts beyond the first, 0 = no retry
	InitialDelay time.Duration `json:"initial_delay" yaml:"initial_delay"` // first backoff delay
	MaxDelay     time.Duration `json:"max_delay" yaml:"max_delay"`         // backoff ceiling
	Multiplier   float64       `json:"multiplier" yaml:"multiplier"`       // exponential factor
	Jitter       bool          `json:"jitter" yaml:"jitter"`               // randomize delays ±25%
	Timeout      time.Duration `json:"timeout" yaml:"timeout"`             // per-attempt timeout, 0 = none

	// RetryableOnly restricts retries to errors marked retryable via
	// types.IsRetryable. When false every error is retried.
	RetryableOnly bool `json:"retryable_only" yaml:"retryable_only"`

	// OnRetry is invoked before each retry sleep.
	OnRetry func(attempt int, err error, delay time.Duration) `json:"-" yaml:"-"`
}

// DefaultExecutionConfig returns the policy used when none is supplied:
// three retries with jittered exponential backoff, retryable errors only.
func DefaultExecutionConfig() ExecutionConfig {
	return ExecutionConfig{
		MaxRetries:    3,
		InitialDelay:  time.Second,
		MaxDelay:      30 * time.Second,
		Multiplier:    2.0,
		Jitter:        true,
		RetryableOnly: true,
	}
}

// Retryer executes functions under an ExecutionConfig.
type Retryer interface {
	Do(ctx context.Context, fn func(ctx context.Context) error) error
}

type backoffRetryer struct {
	cfg    ExecutionConfig
	logger *zap.Logger
}

// NewRetryer creates a backoff retryer. Zero-valued config fields are filled
// with the defaults.
func NewRetryer(cfg ExecutionConfig, logger *zap.Logger) Retryer {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	if cfg.InitialDelay <= 0 {
		cfg.InitialDelay = time.Second
	}
	if cfg.MaxDelay <= 0 {
		cfg.MaxDelay = 30 * time.Second
	}
	if cfg.Multiplier < 1.0 {
		cfg.Multiplier = 2.0
	}
	return &backoffRetryer{cfg: cfg, logger: logger}
}

func (r *backoffRetryer) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	var lastErr error

	for attempt := 0; attempt <= r.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			delay := r.delay(attempt)
			r.logger.Debug("retrying",
				zap.Int("attempt", attempt),
				zap.Int("max_retries", r.cfg.MaxRetries),
				zap.Duration("delay", delay),
				zap.Error(lastErr))
			if r.cfg.OnRetry != nil {
				r.cfg.OnRetry(attempt, lastErr, delay)
			}
			select {
			case <-ctx.Done():
				return fmt.Errorf("retry cancelled: %w", ctx.Err())
			case <-time.After(delay):
			}
		}

		lastErr = r.attempt(ctx, fn)
		if lastErr == nil {
			if attempt > 0 {
				r.logger.Info("retry succeeded", zap.Int("attempt", attempt))
			}
			return nil
		}

		if r.cfg.RetryableOnly && !types.IsRetryable(lastErr) {
			r.logger.Debug("error not retryable", zap.Error(lastErr))
			return lastErr
		}
	}

	r.logger.Warn("retries exhausted",
		zap.Int("attempts", r.cfg.MaxRetries+1),
		zap.Error(lastErr))
	return fmt.Errorf("failed after %d attempts: %w", r.cfg.MaxRetries+1, lastErr)
}

func (r *backoffRetryer) attempt(ctx context.Context, fn func(ctx context.Context) error) error {
	if r.cfg.Timeout <= 0 {
		return fn(ctx)
	}
	attemptCtx, cancel := context.WithTimeout(ctx, r.cfg.Timeout)
	defer cancel()
	return fn(attemptCtx)
}

// delay computes the backoff for the given attempt: initial * multiplier^(n-1),
// capped at MaxDelay, with optional ±25% jitter to avoid thundering herds.
func (r *backoffRetryer) delay(attempt int) time.Duration {
	d := float64(r.cfg.InitialDelay) * math.Pow(r.cfg.Multiplier, float64(attempt-1))
	if d > float64(r.cfg.MaxDelay) {
		d = float64(r.cfg.MaxDelay)
	}
	if r.cfg.Jitter {
		jitter := d * 0.25
		d += (rand.Float64()*2 - 1) * jitter
	}
	if d < float64(r.cfg.InitialDelay) {
		d = float64(r.cfg.InitialDelay)
	}
	return time.Duration(d)
}

// DoWithResult runs fn under the retryer and returns its typed result.
func DoWithResult[T any](r Retryer, ctx context.Context, fn func(ctx context.Context) (T, error)) (T, error) {
	var out T
	err := r.Do(ctx, func(ctx context.Context) error {
		v, err := fn(ctx)
		if err != nil {
			return err
		}
		out = v
		return nil
	})
	if err != nil {
		var zero T
		return zero, err
	}
	return out, nil
}
