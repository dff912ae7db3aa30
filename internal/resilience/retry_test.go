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

package resilience

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func TestRetrySucceedsFirstAttempt(t *testing.T) {
	calls := 0
	err := Retry(context.Background(), zaptest.NewLogger(t), RetryPolicy{MaxAttempts: 3}, func(_ context.Context, attempt int) error {
		calls++
		assert.Equal(t, 1, attempt)
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 1, calls)
}

func TestRetrySucceedsAfterFailures(t *testing.T) {
	var attempts []int
	err := Retry(context.Background(), nil, RetryPolicy{MaxAttempts: 5}, func(_ context.Context, attempt int) error {
		attempts = append(attempts, attempt)
		if attempt < 3 {
			return errors.New("temporary")
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, []int{1, 2, 3}, attempts)
}

func TestRetryExhaustsBudget(t *testing.T) {
	persistent := errors.New("persistent")
	calls := 0
	err := Retry(context.Background(), nil, RetryPolicy{MaxAttempts: 4}, func(context.Context, int) error {
		calls++
		return persistent
	})

	var exhausted *ExhaustedError
	require.ErrorAs(t, err, &exhausted)
	assert.Equal(t, 4, exhausted.Attempts)
	assert.ErrorIs(t, err, persistent)
	assert.Equal(t, 4, calls)
}

func TestRetryDefaultBudget(t *testing.T) {
	calls := 0
	_ = Retry(context.Background(), nil, RetryPolicy{}, func(context.Context, int) error {
		calls++
		return errors.New("fail")
	})

	assert.Equal(t, DefaultMaxAttempts, calls)
}

func TestRetryNonRetryable(t *testing.T) {
	fatal := errors.New("fatal")
	calls := 0
	err := Retry(context.Background(), nil, RetryPolicy{
		MaxAttempts: 5,
		Retryable:   func(err error) bool { return !errors.Is(err, fatal) },
	}, func(context.Context, int) error {
		calls++
		return fatal
	})

	assert.Equal(t, fatal, err)
	assert.Equal(t, 1, calls)
}

func TestRetryBackoffSelective(t *testing.T) {
	slow := errors.New("slow")
	var delays []int
	start := time.Now()
	err := Retry(context.Background(), nil, RetryPolicy{
		MaxAttempts: 3,
		Backoff: func(attempt int, err error) time.Duration {
			delays = append(delays, attempt)
			if errors.Is(err, slow) {
				return 20 * time.Millisecond
			}
			return 0
		},
	}, func(_ context.Context, attempt int) error {
		if attempt == 1 {
			return slow
		}
		return errors.New("fast")
	})

	require.Error(t, err)
	assert.Equal(t, []int{1, 2}, delays, "no backoff after the final attempt")
	assert.GreaterOrEqual(t, time.Since(start), 20*time.Millisecond)
}

func TestRetryCancelledDuringBackoff(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	calls := 0
	err := Retry(ctx, nil, RetryPolicy{
		MaxAttempts: 5,
		Backoff:     ConstantBackoff(time.Second),
	}, func(context.Context, int) error {
		calls++
		return errors.New("fail")
	})

	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, calls)
}

func TestRetryCancelledBeforeStart(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	calls := 0
	err := Retry(ctx, nil, RetryPolicy{MaxAttempts: 3}, func(context.Context, int) error {
		calls++
		return nil
	})

	assert.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, calls)
}

func TestDefaultRetryable(t *testing.T) {
	assert.False(t, DefaultRetryable(nil))
	assert.False(t, DefaultRetryable(context.Canceled))
	assert.False(t, DefaultRetryable(context.DeadlineExceeded))
	assert.True(t, DefaultRetryable(errors.New("boom")))
}

func TestExponentialBackoff(t *testing.T) {
	backoff := ExponentialBackoff(100*time.Millisecond, 300*time.Millisecond, false)

	assert.Equal(t, 100*time.Millisecond, backoff(1, nil))
	assert.Equal(t, 200*time.Millisecond, backoff(2, nil))
	assert.Equal(t, 300*time.Millisecond, backoff(3, nil))

	jittered := ExponentialBackoff(100*time.Millisecond, 0, true)(1, nil)
	assert.InDelta(t, float64(100*time.Millisecond), float64(jittered), float64(10*time.Millisecond))
}
