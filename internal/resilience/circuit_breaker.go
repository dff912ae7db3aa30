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
	"sync"
	"time"

	"go.uber.org/zap"
)

// CircuitState represents the state of a circuit breaker
type CircuitState int

const (
	// CircuitClosed lets every call through
	CircuitClosed CircuitState = iota
	// CircuitOpen rejects calls until the reset timeout elapses
	CircuitOpen
	// CircuitHalfOpen lets a single probe call through
	CircuitHalfOpen
)

// String returns the string representation of the circuit state
func (s CircuitState) String() string {
	switch s {
	case CircuitClosed:
		return "closed"
	case CircuitOpen:
		return "open"
	case CircuitHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// ErrCircuitBreakerOpen is returned when the circuit breaker is open
var ErrCircuitBreakerOpen = errors.New("circuit breaker is open")

// CircuitBreakerConfig holds configuration for circuit breaker behavior
type CircuitBreakerConfig struct {
	Name         string
	MaxFailures  int
	ResetTimeout time.Duration
	// IsFailure decides which errors count against the breaker.
	// Nil counts every non-nil error except caller cancellation.
	IsFailure     func(error) bool
	OnStateChange func(name string, from, to CircuitState)
}

// DefaultCircuitBreakerConfig returns the provider breaker defaults
func DefaultCircuitBreakerConfig(name string) CircuitBreakerConfig {
	return CircuitBreakerConfig{
		Name:         name,
		MaxFailures:  5,
		ResetTimeout: 30 * time.Second,
	}
}

func defaultIsFailure(err error) bool {
	return err != nil && !errors.Is(err, context.Canceled)
}

// CircuitBreakerStats is a snapshot of breaker counters
type CircuitBreakerStats struct {
	Name                string       `json:"name"`
	State               CircuitState `json:"state"`
	ConsecutiveFailures int          `json:"consecutive_failures"`
	TotalFailures       int          `json:"total_failures"`
	TotalSuccesses      int          `json:"total_successes"`
	Rejected            int          `json:"rejected"`
	LastFailureTime     time.Time    `json:"last_failure_time"`
	StateChanged        time.Time    `json:"state_changed"`
}

// CircuitBreaker fails fast after MaxFailures consecutive failures
type CircuitBreaker struct {
	config CircuitBreakerConfig
	logger *zap.Logger
	now    func() time.Time

	mu            sync.Mutex
	state         CircuitState
	probeInFlight bool
	stats         CircuitBreakerStats
}

// NewCircuitBreaker creates a new circuit breaker with the given configuration
func NewCircuitBreaker(config CircuitBreakerConfig, logger *zap.Logger) *CircuitBreaker {
	if logger == nil {
		logger = zap.NewNop()
	}
	if config.MaxFailures <= 0 {
		config.MaxFailures = 5
	}
	if config.IsFailure == nil {
		config.IsFailure = defaultIsFailure
	}

	cb := &CircuitBreaker{
		config: config,
		logger: logger,
		now:    time.Now,
		state:  CircuitClosed,
	}
	cb.stats.Name = config.Name
	cb.stats.StateChanged = cb.now()

	return cb
}

// Execute runs fn unless the breaker is open
func (cb *CircuitBreaker) Execute(ctx context.Context, fn func(context.Context) error) error {
	if cb == nil {
		return fn(ctx)
	}
	if !cb.allow() {
		return ErrCircuitBreakerOpen
	}

	err := fn(ctx)
	cb.record(err)
	return err
}

func (cb *CircuitBreaker) allow() bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case CircuitClosed:
		return true
	case CircuitOpen:
		if cb.now().Sub(cb.stats.StateChanged) < cb.config.ResetTimeout {
			cb.stats.Rejected++
			return false
		}
		cb.setState(CircuitHalfOpen)
		cb.probeInFlight = true
		return true
	default:
		if cb.probeInFlight {
			cb.stats.Rejected++
			return false
		}
		cb.probeInFlight = true
		return true
	}
}

func (cb *CircuitBreaker) record(err error) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if cb.state == CircuitHalfOpen {
		cb.probeInFlight = false
	}

	if !cb.config.IsFailure(err) {
		if err == nil {
			cb.stats.TotalSuccesses++
		}
		cb.stats.ConsecutiveFailures = 0
		if cb.state == CircuitHalfOpen {
			cb.setState(CircuitClosed)
		}
		return
	}

	cb.stats.ConsecutiveFailures++
	cb.stats.TotalFailures++
	cb.stats.LastFailureTime = cb.now()

	switch {
	case cb.state == CircuitHalfOpen:
		cb.setState(CircuitOpen)
	case cb.state == CircuitClosed && cb.stats.ConsecutiveFailures >= cb.config.MaxFailures:
		cb.setState(CircuitOpen)
	}
}

// setState must be called with mu held
func (cb *CircuitBreaker) setState(next CircuitState) {
	prev := cb.state
	cb.state = next
	cb.stats.StateChanged = cb.now()

	cb.logger.Info("Circuit breaker state changed",
		zap.String("name", cb.config.Name),
		zap.String("from", prev.String()),
		zap.String("to", next.String()),
		zap.Int("consecutive_failures", cb.stats.ConsecutiveFailures))

	if cb.config.OnStateChange != nil {
		go cb.config.OnStateChange(cb.config.Name, prev, next)
	}
}

// State returns the current state of the circuit breaker
func (cb *CircuitBreaker) State() CircuitState {
	if cb == nil {
		return CircuitClosed
	}
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

// Stats returns a snapshot of the breaker counters
func (cb *CircuitBreaker) Stats() CircuitBreakerStats {
	if cb == nil {
		return CircuitBreakerStats{Name: "unknown"}
	}
	cb.mu.Lock()
	defer cb.mu.Unlock()
	s := cb.stats
	s.State = cb.state
	return s
}

// Reset closes the breaker and clears the failure streak
func (cb *CircuitBreaker) Reset() {
	if cb == nil {
		return
	}
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.stats.ConsecutiveFailures = 0
	cb.probeInFlight = false
	if cb.state != CircuitClosed {
		cb.setState(CircuitClosed)
	}
}
