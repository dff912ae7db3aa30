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

// Package metrics exposes Prometheus collectors for question generation.
package metrics

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "questiongen"

var (
	providerRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "provider_request_duration_seconds",
			Help:      "Completion request duration in seconds by provider",
			Buckets:   prometheus.ExponentialBuckets(0.1, 2, 10), // 0.1s to ~100s
		},
		[]string{"provider", "status"}, // status: "success", "transport_error", "upstream_error", "canceled"
	)

	rateLimiterWaitDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "rate_limiter_wait_duration_seconds",
			Help:      "Client-side rate limiter wait in seconds by provider",
			Buckets:   prometheus.ExponentialBuckets(0.001, 2, 15), // 1ms to ~32s
		},
		[]string{"provider"},
	)

	fallbackActivations = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fallback_activations_total",
			Help:      "Attempts where the primary provider failed and the fallback was called",
		},
	)

	candidatesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "candidates_total",
			Help:      "Question candidates by outcome",
		},
		[]string{"result"}, // "accepted", "duplicate", "empty", "surplus"
	)

	generationAttempts = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "generation_attempts",
			Help:      "Attempts used per generation call",
			Buckets:   prometheus.LinearBuckets(1, 1, 10),
		},
	)

	generationTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "generation_total",
			Help:      "Generation calls by outcome",
		},
		[]string{"status"}, // "succeeded", "exhausted", "invalid", "canceled"
	)
)

// Collector records generation metrics. A nil Collector records nothing.
type Collector struct{}

// NewCollector creates a new metrics collector
func NewCollector() *Collector {
	return &Collector{}
}

// RecordProviderRequest records one completion request
func (c *Collector) RecordProviderRequest(provider, status string, duration time.Duration) {
	if c == nil {
		return
	}
	providerRequestDuration.WithLabelValues(provider, status).Observe(duration.Seconds())
}

// RecordRateLimiterWait records rate limiter wait time
func (c *Collector) RecordRateLimiterWait(provider string, duration time.Duration) {
	if c == nil {
		return
	}
	rateLimiterWaitDuration.WithLabelValues(provider).Observe(duration.Seconds())
}

// IncrementFallback counts a fallback activation
func (c *Collector) IncrementFallback() {
	if c == nil {
		return
	}
	fallbackActivations.Inc()
}

// AddCandidates counts candidates with the given outcome
func (c *Collector) AddCandidates(result string, n int) {
	if c == nil || n <= 0 {
		return
	}
	candidatesTotal.WithLabelValues(result).Add(float64(n))
}

// RecordGeneration records the outcome of a generation call
func (c *Collector) RecordGeneration(status string, attempts int) {
	if c == nil {
		return
	}
	generationTotal.WithLabelValues(status).Inc()
	if attempts > 0 {
		generationAttempts.Observe(float64(attempts))
	}
}

// Handler serves the default Prometheus registry
func Handler() gin.HandlerFunc {
	return gin.WrapH(promhttp.Handler())
}
