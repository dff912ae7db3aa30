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

package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func okPing(context.Context) error   { return nil }
func failPing(context.Context) error { return errors.New("connection refused") }

func TestManagerCheck(t *testing.T) {
	tests := []struct {
		name     string
		checkers map[string]Checker
		want     string
	}{
		{
			name:     "no checks",
			checkers: map[string]Checker{},
			want:     StatusHealthy,
		},
		{
			name: "all healthy",
			checkers: map[string]Checker{
				"store":   PingChecker("sqlite", okPing),
				"primary": ProviderChecker("gpt-4o-mini", true, true, func() string { return "closed" }),
			},
			want: StatusHealthy,
		},
		{
			name: "fallback missing degrades",
			checkers: map[string]Checker{
				"store":    PingChecker("memory", okPing),
				"fallback": ProviderChecker("", false, false, nil),
			},
			want: StatusDegraded,
		},
		{
			name: "open circuit degrades",
			checkers: map[string]Checker{
				"primary": ProviderChecker("gpt-4o-mini", true, true, func() string { return "open" }),
			},
			want: StatusDegraded,
		},
		{
			name: "store down is unhealthy",
			checkers: map[string]Checker{
				"store":    PingChecker("redis", failPing),
				"fallback": ProviderChecker("", false, false, nil),
			},
			want: StatusUnhealthy,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := NewManager("questiongen", "test", zaptest.NewLogger(t))
			for name, c := range tt.checkers {
				m.AddChecker(name, c)
			}

			result := m.Check(context.Background())

			assert.Equal(t, tt.want, result.Status)
			assert.Len(t, result.Dependencies, len(tt.checkers))
			assert.Equal(t, "questiongen", result.Service)
		})
	}
}

func TestPingCheckerError(t *testing.T) {
	result := PingChecker("redis", failPing).Check(context.Background())

	assert.Equal(t, StatusUnhealthy, result.Status)
	assert.Contains(t, result.Error, "connection refused")
}

func TestHandler(t *testing.T) {
	gin.SetMode(gin.TestMode)

	tests := []struct {
		name   string
		ping   func(context.Context) error
		status int
	}{
		{"healthy", okPing, http.StatusOK},
		{"unhealthy", failPing, http.StatusServiceUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := NewManager("questiongen", "test", zaptest.NewLogger(t))
			m.AddChecker("store", PingChecker("sqlite", tt.ping))

			router := gin.New()
			router.GET("/health", m.Handler())

			w := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodGet, "/health", nil)
			router.ServeHTTP(w, req)

			assert.Equal(t, tt.status, w.Code)

			var body Response
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
			assert.Contains(t, body.Dependencies, "store")
		})
	}
}
