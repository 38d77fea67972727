// Package retry provides exponential backoff retry for provider calls.
package retry

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/amul-dhungel/Deepwork/types"
	"go.uber.org/zap"
)

// Policy defines the retry behavior for a provider call.
type Policy struct {
	// MaxRetries is the number of attempts after the first (0 disables retry).
	MaxRetries int
	// InitialDelay is the delay before the first retry.
	InitialDelay time.Duration
	// MaxDelay caps the computed delay.
	MaxDelay time.Duration
	// Multiplier grows the delay between attempts; each successive delay is
	// the previous one times this factor.
	Multiplier float64
	// Sleep is overridable for tests; defaults to a context-aware wait.
	Sleep func(ctx context.Context, d time.Duration) error
}

// DefaultPolicy matches the primary (Gemini) adapter contract: up to 3
// retries with a doubling delay.
func DefaultPolicy() *Policy {
	return &Policy{
		MaxRetries:   3,
		InitialDelay: 1 * time.Second,
		MaxDelay:     30 * time.Second,
		Multiplier:   2.0,
	}
}

// Retryer executes a function, retrying retryable failures per policy.
type Retryer struct {
	policy *Policy
	logger *zap.Logger
}

// New creates a Retryer. A nil policy uses DefaultPolicy.
func New(policy *Policy, logger *zap.Logger) *Retryer {
	if policy == nil {
		policy = DefaultPolicy()
	}
	if policy.MaxRetries < 0 {
		policy.MaxRetries = 0
	}
	if policy.InitialDelay <= 0 {
		policy.InitialDelay = 1 * time.Second
	}
	if policy.MaxDelay <= 0 {
		policy.MaxDelay = 30 * time.Second
	}
	if policy.Multiplier < 1.0 {
		policy.Multiplier = 2.0
	}
	if policy.Sleep == nil {
		policy.Sleep = sleepCtx
	}
	return &Retryer{policy: policy, logger: logger}
}

// Do executes fn until it succeeds, returns a non-retryable error, or the
// attempt budget is exhausted. Only errors marked retryable by the adapter
// (types.IsRetryable) trigger another attempt; client errors surface on the
// first failure.
func (r *Retryer) Do(ctx context.Context, fn func() (any, error)) (any, error) {
	var lastErr error

	for attempt := 0; attempt <= r.policy.MaxRetries; attempt++ {
		if attempt > 0 {
			delay := r.delay(attempt)
			r.logger.Debug("retrying provider call",
				zap.Int("attempt", attempt),
				zap.Int("max_retries", r.policy.MaxRetries),
				zap.Duration("delay", delay),
				zap.Error(lastErr),
			)
			if err := r.policy.Sleep(ctx, delay); err != nil {
				return nil, fmt.Errorf("retry canceled: %w", err)
			}
		}

		result, err := fn()
		if err == nil {
			if attempt > 0 {
				r.logger.Info("retry succeeded", zap.Int("attempt", attempt))
			}
			return result, nil
		}
		lastErr = err

		if !types.IsRetryable(err) {
			return nil, err
		}
	}

	r.logger.Warn("retry budget exhausted",
		zap.Int("attempts", r.policy.MaxRetries+1),
		zap.Error(lastErr),
	)
	return nil, lastErr
}

// delay computes the backoff for the given attempt: initial * multiplier^(attempt-1),
// capped at MaxDelay.
func (r *Retryer) delay(attempt int) time.Duration {
	d := float64(r.policy.InitialDelay) * math.Pow(r.policy.Multiplier, float64(attempt-1))
	if d > float64(r.policy.MaxDelay) {
		d = float64(r.policy.MaxDelay)
	}
	return time.Duration(d)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(d):
		return nil
	}
}
