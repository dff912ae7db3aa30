// Copyright 2024 Interview Questions Project
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package resilience provides the retry loop, circuit breaker and error
// formatting shared by question generation and the HTTP API.
package resilience

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"go.uber.org/zap"
)

const (
	// DefaultMaxAttempts is the default attempt budget of a RetryPolicy
	DefaultMaxAttempts = 5
	// DefaultMultiplier is the default exponential backoff multiplier
	DefaultMultiplier = 2.0
	// JitterModulus is used for random jitter calculation
	JitterModulus = 1000
)

// RetryPolicy describes how many times an operation runs and how long to
// wait between runs.
type RetryPolicy struct {
	MaxAttempts int
	// Backoff returns the delay after a failed attempt (1-based). Nil or a
	// non-positive delay retries immediately.
	Backoff func(attempt int, err error) time.Duration
	// Retryable reports whether err allows another attempt. Nil retries
	// every error except context cancellation.
	Retryable func(error) bool
}

// AttemptFunc is one attempt of a retried operation
type AttemptFunc func(ctx context.Context, attempt int) error

// ExhaustedError is returned by Retry when every attempt failed
type ExhaustedError struct {
	Attempts int
	Last     error
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("operation failed after %d attempts: %v", e.Attempts, e.Last)
}

// Unwrap returns the error of the final attempt
func (e *ExhaustedError) Unwrap() error {
	return e.Last
}

// DefaultRetryable retries everything except context cancellation
func DefaultRetryable(err error) bool {
	if err == nil {
		return false
	}
	return !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded)
}

// ConstantBackoff waits d after every failure
func ConstantBackoff(d time.Duration) func(int, error) time.Duration {
	return func(int, error) time.Duration { return d }
}

// ExponentialBackoff doubles base per attempt up to maxDelay, with +/-10% jitter
func ExponentialBackoff(base, maxDelay time.Duration, jitter bool) func(int, error) time.Duration {
	return func(attempt int, _ error) time.Duration {
		delay := time.Duration(float64(base) * math.Pow(DefaultMultiplier, float64(attempt-1)))
		if maxDelay > 0 && delay > maxDelay {
			delay = maxDelay
		}
		if jitter {
			delay += time.Duration(float64(delay) * 0.1 * (2*float64(time.Now().UnixNano()%JitterModulus)/JitterModulus - 1))
		}
		return delay
	}
}

// Retry runs fn until it succeeds, returns a non-retryable error, or the
// attempt budget is spent. Cancellation of ctx returns ctx.Err().
func Retry(ctx context.Context, logger *zap.Logger, policy RetryPolicy, fn AttemptFunc) error {
	if logger == nil {
		logger = zap.NewNop()
	}
	maxAttempts := policy.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxAttempts
	}
	retryable := policy.Retryable
	if retryable == nil {
		retryable = DefaultRetryable
	}

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		err := fn(ctx, attempt)
		if err == nil {
			if attempt > 1 {
				logger.Info("Operation succeeded after retry",
					zap.Int("attempt", attempt),
					zap.Int("max_attempts", maxAttempts))
			}
			return nil
		}
		lastErr = err

		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if !retryable(err) {
			logger.Debug("Error is not retryable, stopping attempts",
				zap.Error(err),
				zap.Int("attempt", attempt))
			return err
		}
		if attempt == maxAttempts {
			break
		}

		var delay time.Duration
		if policy.Backoff != nil {
			delay = policy.Backoff(attempt, err)
		}
		logger.Debug("Retrying",
			zap.Error(err),
			zap.Int("attempt", attempt),
			zap.Duration("delay", delay))

		if delay > 0 {
			timer := time.NewTimer(delay)
			select {
			case <-ctx.Done():
				timer.Stop()
				return ctx.Err()
			case <-timer.C:
			}
		}
	}

	logger.Warn("All retry attempts exhausted",
		zap.Error(lastErr),
		zap.Int("attempts", maxAttempts))

	return &ExhaustedError{Attempts: maxAttempts, Last: lastErr}
}
