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

package provider

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/sashabaranov/go-openai"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/your-org/interview-questions/internal/metrics"
	"github.com/your-org/interview-questions/internal/resilience"
)

const (
	// DefaultModel is used when no model is configured
	DefaultModel = "gpt-4o-mini"
	// DefaultTimeout bounds a single completion request
	DefaultTimeout = 30 * time.Second
	// DefaultTemperature favours varied questions
	DefaultTemperature = 0.9
	// DefaultTopP is the nucleus sampling cutoff
	DefaultTopP = 0.95
	// DefaultMaxTokens caps the completion length
	DefaultMaxTokens = 2000
	// DefaultFrequencyPenalty discourages repeated phrasing
	DefaultFrequencyPenalty = 0.6
	// DefaultPresencePenalty discourages repeated topics
	DefaultPresencePenalty = 0.6
)

// Config describes one OpenAI-compatible endpoint.
//
// Zero sampling values (Temperature, TopP, FrequencyPenalty,
// PresencePenalty) mean "use the default". The chat completion request
// omits zero values on the wire, so an explicit 0 cannot be sent.
type Config struct {
	Name             string
	APIKey           string
	Endpoint         string
	Model            string
	Timeout          time.Duration
	Temperature      float32
	TopP             float32
	MaxTokens        int
	FrequencyPenalty float32
	PresencePenalty  float32
	// RateLimitPerMinute enables a client-side limiter when positive
	RateLimitPerMinute int
	// BreakerFailures opens the circuit after this many consecutive
	// failures. Zero disables the breaker.
	BreakerFailures int
	BreakerReset    time.Duration
	HTTPClient      *http.Client
}

// withDefaults fills in zero values
func (c Config) withDefaults() Config {
	if c.Name == "" {
		c.Name = "primary"
	}
	if c.Model == "" {
		c.Model = DefaultModel
	}
	if c.Timeout <= 0 {
		c.Timeout = DefaultTimeout
	}
	if c.Temperature == 0 {
		c.Temperature = DefaultTemperature
	}
	if c.TopP == 0 {
		c.TopP = DefaultTopP
	}
	if c.MaxTokens <= 0 {
		c.MaxTokens = DefaultMaxTokens
	}
	if c.FrequencyPenalty == 0 {
		c.FrequencyPenalty = DefaultFrequencyPenalty
	}
	if c.PresencePenalty == 0 {
		c.PresencePenalty = DefaultPresencePenalty
	}
	if c.BreakerReset <= 0 {
		c.BreakerReset = 30 * time.Second
	}
	return c
}

// OpenAIClient is a Completer backed by go-openai
type OpenAIClient struct {
	client  *openai.Client
	config  Config
	limiter *rate.Limiter
	breaker *resilience.CircuitBreaker
	metrics *metrics.Collector
	logger  *zap.Logger
}

// NewOpenAIClient creates a client for the endpoint in cfg
func NewOpenAIClient(cfg Config, collector *metrics.Collector, logger *zap.Logger) (*OpenAIClient, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, errors.New("API key is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	cfg = cfg.withDefaults()

	clientConfig := openai.DefaultConfig(cfg.APIKey)
	if cfg.Endpoint != "" {
		clientConfig.BaseURL = strings.TrimRight(cfg.Endpoint, "/")
	}
	if cfg.HTTPClient != nil {
		clientConfig.HTTPClient = cfg.HTTPClient
	}

	c := &OpenAIClient{
		client:  openai.NewClientWithConfig(clientConfig),
		config:  cfg,
		metrics: collector,
		logger:  logger.With(zap.String("provider", cfg.Name)),
	}

	if cfg.RateLimitPerMinute > 0 {
		rps := float64(cfg.RateLimitPerMinute) / 60.0
		burst := max(1, cfg.RateLimitPerMinute/10)
		c.limiter = rate.NewLimiter(rate.Limit(rps), burst)
	}

	if cfg.BreakerFailures > 0 {
		breakerConfig := resilience.DefaultCircuitBreakerConfig(cfg.Name)
		breakerConfig.MaxFailures = cfg.BreakerFailures
		breakerConfig.ResetTimeout = cfg.BreakerReset
		c.breaker = resilience.NewCircuitBreaker(breakerConfig, c.logger)
	}

	c.logger.Info("Completion provider initialized",
		zap.String("model", cfg.Model),
		zap.String("endpoint", clientConfig.BaseURL),
		zap.Duration("timeout", cfg.Timeout),
		zap.Int("rate_limit_per_minute", cfg.RateLimitPerMinute))

	return c, nil
}

// Name returns the provider name used in logs and errors
func (c *OpenAIClient) Name() string {
	return c.config.Name
}

// Model returns the configured model
func (c *OpenAIClient) Model() string {
	return c.config.Model
}

// CircuitState returns the breaker state, "closed" when no breaker is set
func (c *OpenAIClient) CircuitState() string {
	return c.breaker.State().String()
}

// Complete sends prompt as a single user message and returns the content of
// the first choice. The response text is not interpreted.
func (c *OpenAIClient) Complete(ctx context.Context, prompt string) (string, error) {
	if c.limiter != nil {
		waitStart := time.Now()
		if err := c.limiter.Wait(ctx); err != nil {
			if ctx.Err() != nil {
				return "", ctx.Err()
			}
			return "", &TransportError{Provider: c.config.Name, Err: fmt.Errorf("rate limiter: %w", err)}
		}
		c.metrics.RecordRateLimiterWait(c.config.Name, time.Since(waitStart))
	}

	var content string
	err := c.breaker.Execute(ctx, func(ctx context.Context) error {
		var err error
		content, err = c.complete(ctx, prompt)
		return err
	})
	if errors.Is(err, resilience.ErrCircuitBreakerOpen) {
		return "", &TransportError{Provider: c.config.Name, Err: err}
	}
	return content, err
}

func (c *OpenAIClient) complete(ctx context.Context, prompt string) (string, error) {
	callCtx, cancel := context.WithTimeout(ctx, c.config.Timeout)
	defer cancel()

	req := openai.ChatCompletionRequest{
		Model: c.config.Model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
		Temperature:      c.config.Temperature,
		TopP:             c.config.TopP,
		MaxTokens:        c.config.MaxTokens,
		FrequencyPenalty: c.config.FrequencyPenalty,
		PresencePenalty:  c.config.PresencePenalty,
	}

	start := time.Now()
	resp, err := c.client.CreateChatCompletion(callCtx, req)
	duration := time.Since(start)

	if err != nil {
		classified := c.classify(ctx, err)
		c.metrics.RecordProviderRequest(c.config.Name, statusLabel(classified), duration)
		c.logger.Warn("Completion request failed",
			zap.Error(classified),
			zap.Duration("duration", duration))
		return "", classified
	}

	if len(resp.Choices) == 0 || strings.TrimSpace(resp.Choices[0].Message.Content) == "" {
		err := &UpstreamError{Provider: c.config.Name, Message: "empty completion"}
		c.metrics.RecordProviderRequest(c.config.Name, statusLabel(err), duration)
		c.logger.Warn("Completion returned no content", zap.Duration("duration", duration))
		return "", err
	}

	c.metrics.RecordProviderRequest(c.config.Name, "success", duration)
	c.logger.Debug("Completion received",
		zap.Duration("duration", duration),
		zap.Int("total_tokens", resp.Usage.TotalTokens))

	return resp.Choices[0].Message.Content, nil
}

// classify maps a go-openai error onto TransportError or UpstreamError.
// Cancellation of the caller's context is returned as is.
func (c *OpenAIClient) classify(parent context.Context, err error) error {
	if parent.Err() != nil {
		return parent.Err()
	}

	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return &UpstreamError{
			Provider:   c.config.Name,
			StatusCode: apiErr.HTTPStatusCode,
			Message:    apiErr.Message,
		}
	}

	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		msg := http.StatusText(reqErr.HTTPStatusCode)
		if reqErr.Err != nil {
			msg = reqErr.Err.Error()
		}
		return &UpstreamError{
			Provider:   c.config.Name,
			StatusCode: reqErr.HTTPStatusCode,
			Message:    msg,
		}
	}

	var syntaxErr *json.SyntaxError
	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &syntaxErr) || errors.As(err, &typeErr) {
		return &UpstreamError{
			Provider: c.config.Name,
			Message:  "malformed response body: " + err.Error(),
		}
	}

	return &TransportError{Provider: c.config.Name, Err: err}
}

func statusLabel(err error) string {
	switch {
	case err == nil:
		return "success"
	case errors.Is(err, context.Canceled):
		return "canceled"
	case IsUpstream(err):
		return "upstream_error"
	default:
		return "transport_error"
	}
}
