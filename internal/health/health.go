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

// Package health reports the status of the session store and the
// completion providers.
package health

import (
	"context"
	"net/http"
	"runtime"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const (
	// StatusHealthy represents healthy status
	StatusHealthy = "healthy"
	// StatusUnhealthy represents unhealthy status
	StatusUnhealthy = "unhealthy"
	// StatusDegraded represents degraded status
	StatusDegraded = "degraded"
	// DefaultTimeout is the default timeout for health checks
	DefaultTimeout = 5 * time.Second
)

// CheckResult represents the result of a health check
type CheckResult struct {
	Status    string                 `json:"status"`
	Latency   time.Duration          `json:"latency"`
	Error     string                 `json:"error,omitempty"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
}

// Response is the body of GET /health
type Response struct {
	Status       string                 `json:"status"`
	Service      string                 `json:"service"`
	Version      string                 `json:"version"`
	Uptime       string                 `json:"uptime"`
	Dependencies map[string]CheckResult `json:"dependencies"`
	Metadata     map[string]interface{} `json:"metadata"`
	Timestamp    time.Time              `json:"timestamp"`
}

// Checker interface for health checks
type Checker interface {
	Check(ctx context.Context) CheckResult
}

// CheckerFunc is a function adapter for the Checker interface
type CheckerFunc func(ctx context.Context) CheckResult

// Check implements the Checker interface
func (f CheckerFunc) Check(ctx context.Context) CheckResult {
	return f(ctx)
}

// Manager runs the registered checks
type Manager struct {
	serviceName string
	version     string
	startTime   time.Time
	timeout     time.Duration
	logger      *zap.Logger

	mu       sync.RWMutex
	checkers map[string]Checker
}

// NewManager creates a new health check manager
func NewManager(serviceName, version string, logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{
		serviceName: serviceName,
		version:     version,
		startTime:   time.Now(),
		timeout:     DefaultTimeout,
		logger:      logger,
		checkers:    make(map[string]Checker),
	}
}

// SetTimeout sets the timeout for health checks
func (m *Manager) SetTimeout(timeout time.Duration) {
	m.timeout = timeout
}

// AddChecker registers a named check
func (m *Manager) AddChecker(name string, checker Checker) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.checkers[name] = checker
}

// Check runs every check. Any unhealthy dependency makes the service
// unhealthy; degraded dependencies degrade it.
func (m *Manager) Check(ctx context.Context) Response {
	ctx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()

	m.mu.RLock()
	defer m.mu.RUnlock()

	dependencies := make(map[string]CheckResult, len(m.checkers))
	overall := StatusHealthy

	for name, checker := range m.checkers {
		start := time.Now()
		result := checker.Check(ctx)
		result.Latency = time.Since(start)
		result.Timestamp = time.Now().UTC()
		dependencies[name] = result

		switch result.Status {
		case StatusUnhealthy:
			overall = StatusUnhealthy
		case StatusDegraded:
			if overall != StatusUnhealthy {
				overall = StatusDegraded
			}
		}
	}

	return Response{
		Status:       overall,
		Service:      m.serviceName,
		Version:      m.version,
		Uptime:       time.Since(m.startTime).Round(time.Second).String(),
		Dependencies: dependencies,
		Metadata: map[string]interface{}{
			"go_version": runtime.Version(),
			"goroutines": runtime.NumGoroutine(),
		},
		Timestamp: time.Now().UTC(),
	}
}

// Handler serves the health report; unhealthy maps to 503
func (m *Manager) Handler() gin.HandlerFunc {
	return func(c *gin.Context) {
		result := m.Check(c.Request.Context())

		status := http.StatusOK
		if result.Status == StatusUnhealthy {
			status = http.StatusServiceUnavailable
			m.logger.Warn("Health check failed", zap.Any("dependencies", result.Dependencies))
		}

		c.JSON(status, result)
	}
}

// PingChecker reports unhealthy when ping fails
func PingChecker(name string, ping func(ctx context.Context) error) Checker {
	return CheckerFunc(func(ctx context.Context) CheckResult {
		if err := ping(ctx); err != nil {
			return CheckResult{
				Status: StatusUnhealthy,
				Error:  name + " ping failed: " + err.Error(),
			}
		}
		return CheckResult{
			Status:   StatusHealthy,
			Metadata: map[string]interface{}{"backend": name},
		}
	})
}

// ProviderChecker reports on a completion provider. An unconfigured provider
// is unhealthy when required and degraded otherwise; an open circuit is
// degraded.
func ProviderChecker(model string, configured, required bool, circuitState func() string) Checker {
	return CheckerFunc(func(_ context.Context) CheckResult {
		if !configured {
			status := StatusDegraded
			if required {
				status = StatusUnhealthy
			}
			return CheckResult{Status: status, Error: "provider not configured"}
		}

		result := CheckResult{
			Status:   StatusHealthy,
			Metadata: map[string]interface{}{"model": model},
		}
		if circuitState != nil {
			state := circuitState()
			result.Metadata["circuit"] = state
			if state != "closed" {
				result.Status = StatusDegraded
			}
		}
		return result
	})
}
