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

// Package generator produces interview questions that are unique against a
// session's and a user's question history.
package generator

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/your-org/interview-questions/internal/extract"
	"github.com/your-org/interview-questions/internal/fingerprint"
	"github.com/your-org/interview-questions/internal/history"
	"github.com/your-org/interview-questions/internal/metrics"
	"github.com/your-org/interview-questions/internal/provider"
	"github.com/your-org/interview-questions/internal/resilience"
)

const (
	// DefaultMaxAttempts is the attempt budget per generation call
	DefaultMaxAttempts = 5
	// DefaultMaxCount is the largest count a request may ask for; higher
	// configured values are capped to it
	DefaultMaxCount = 20
	// DefaultTransportBackoff is the pause after a transport failure
	DefaultTransportBackoff = 2 * time.Second
	// DefaultRecentExamples is the number of known questions put in the prompt
	DefaultRecentExamples = 10
)

// State is the lifecycle of one generation call
type State int

// Generation states, logged as the call progresses
const (
	StateIdle State = iota
	StateAttempting
	StateSucceeded
	StateExhausted
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateAttempting:
		return "attempting"
	case StateSucceeded:
		return "succeeded"
	case StateExhausted:
		return "exhausted"
	default:
		return "unknown"
	}
}

// Config tunes the engine
type Config struct {
	MaxAttempts      int
	MaxCount         int
	TransportBackoff time.Duration
	RecentExamples   int
	// Timeout bounds a whole generation call when positive
	Timeout time.Duration
}

func (c Config) withDefaults() Config {
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = DefaultMaxAttempts
	}
	// MaxCount may lower the request ceiling but never raise it
	if c.MaxCount <= 0 || c.MaxCount > DefaultMaxCount {
		c.MaxCount = DefaultMaxCount
	}
	if c.TransportBackoff < 0 {
		c.TransportBackoff = 0
	} else if c.TransportBackoff == 0 {
		c.TransportBackoff = DefaultTransportBackoff
	}
	if c.RecentExamples <= 0 {
		c.RecentExamples = DefaultRecentExamples
	}
	return c
}

// Request asks for Count questions on Topic. SessionID and UserID select
// the history to deduplicate against. MaxAttempts <= 0 uses the engine default.
type Request struct {
	Topic       string
	Count       int
	SessionID   string
	UserID      string
	MaxAttempts int
}

// Question is one generated question
type Question struct {
	Question string `json:"question"`
}

// Option configures optional engine collaborators
type Option func(*Engine)

// WithMetrics records generation metrics on c
func WithMetrics(c *metrics.Collector) Option {
	return func(e *Engine) {
		e.metrics = c
	}
}

// Engine generates unique questions. It is safe for concurrent use.
type Engine struct {
	cfg      Config
	primary  provider.Completer
	fallback provider.Completer
	gatherer *history.Gatherer
	metrics  *metrics.Collector
	logger   *zap.Logger
}

// NewEngine creates an engine. fallback may be nil; when primary is nil the
// fallback is used alone.
func NewEngine(cfg Config, primary, fallback provider.Completer, gatherer *history.Gatherer, logger *zap.Logger, opts ...Option) (*Engine, error) {
	if primary == nil && fallback == nil {
		return nil, &ConfigError{Message: "no completion provider configured"}
	}
	if primary == nil {
		primary, fallback = fallback, nil
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if gatherer == nil {
		gatherer = history.NewGatherer(nil, 0, logger)
	}

	e := &Engine{
		cfg:      cfg.withDefaults(),
		primary:  primary,
		fallback: fallback,
		gatherer: gatherer,
		logger:   logger,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// Validate checks a request the way GenerateUniqueQuestions does
func (e *Engine) Validate(req Request) error {
	if strings.TrimSpace(req.Topic) == "" {
		return &ValidationError{Field: "topic", Message: "must not be empty"}
	}
	if req.Count > e.cfg.MaxCount {
		return &ValidationError{Field: "count", Message: "must be at most " + strconv.Itoa(e.cfg.MaxCount)}
	}
	return nil
}

// run holds the state of one generation call
type run struct {
	req      Request
	seen     fingerprint.Set
	history  []string
	accepted []Question
	lastErr  error
	attempts int
}

// GenerateUniqueQuestions returns exactly req.Count questions whose
// fingerprints differ from each other and from the gathered history, or an
// error. A non-positive count returns an empty result without calling any
// provider.
func (e *Engine) GenerateUniqueQuestions(ctx context.Context, req Request) ([]Question, error) {
	if req.Count <= 0 {
		return []Question{}, nil
	}
	if err := e.Validate(req); err != nil {
		e.metrics.RecordGeneration("invalid", 0)
		return nil, err
	}

	if e.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.cfg.Timeout)
		defer cancel()
	}

	maxAttempts := req.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = e.cfg.MaxAttempts
	}

	logger := e.logger.With(
		zap.String("topic", req.Topic),
		zap.Int("requested", req.Count),
		zap.String("session_id", req.SessionID),
		zap.String("user_id", req.UserID))
	logger.Debug("Generation state", zap.Stringer("state", StateIdle))

	h := e.gatherer.Gather(ctx, req.SessionID, req.UserID)
	r := &run{
		req:     req,
		seen:    h.Fingerprints,
		history: h.Recent,
	}

	logger.Info("Generation state",
		zap.Stringer("state", StateAttempting),
		zap.Int("history_size", h.Len()),
		zap.Int("max_attempts", maxAttempts))

	// Provider timeouts wrap context.DeadlineExceeded but still allow another
	// attempt; cancellation of ctx itself is handled by Retry.
	policy := resilience.RetryPolicy{
		MaxAttempts: maxAttempts,
		Retryable:   func(error) bool { return true },
		Backoff: func(_ int, err error) time.Duration {
			var perr *ProviderError
			if errors.As(err, &perr) && perr.HasTransport() {
				return e.cfg.TransportBackoff
			}
			return 0
		},
	}

	err := resilience.Retry(ctx, logger, policy, func(ctx context.Context, attempt int) error {
		r.attempts = attempt
		return e.attempt(ctx, logger.With(zap.Int("attempt", attempt)), r)
	})

	switch {
	case err == nil:
		logger.Info("Generation state",
			zap.Stringer("state", StateSucceeded),
			zap.Int("accepted", len(r.accepted)),
			zap.Int("attempts", r.attempts))
		e.metrics.RecordGeneration("succeeded", r.attempts)
		return r.accepted[:req.Count], nil

	case ctx.Err() != nil:
		logger.Warn("Generation aborted", zap.Error(ctx.Err()), zap.Int("accepted", len(r.accepted)))
		e.metrics.RecordGeneration("canceled", r.attempts)
		return nil, ctx.Err()

	default:
		exhausted := &ExhaustionError{
			Obtained:  len(r.accepted),
			Requested: req.Count,
			Attempts:  r.attempts,
			Last:      r.lastErr,
		}
		logger.Warn("Generation state",
			zap.Stringer("state", StateExhausted),
			zap.Int("accepted", len(r.accepted)),
			zap.Error(exhausted))
		e.metrics.RecordGeneration("exhausted", r.attempts)
		return nil, exhausted
	}
}

// attempt runs one prompt-call-parse-accept cycle
func (e *Engine) attempt(ctx context.Context, logger *zap.Logger, r *run) error {
	remaining := r.req.Count - len(r.accepted)
	prompt := BuildPrompt(r.req.Topic, remaining, r.recent(e.cfg.RecentExamples))

	raw, err := e.complete(ctx, logger, prompt)
	if err != nil {
		var perr *ProviderError
		if errors.As(err, &perr) {
			r.lastErr = perr
		}
		return err
	}
	r.lastErr = nil

	texts, strategy := extract.Candidates(extract.ExtractJSON(raw))

	var accepted, duplicates, empty, surplus int
	for _, text := range texts {
		if len(r.accepted) == r.req.Count {
			surplus++
			continue
		}
		c := fingerprint.NewCandidate(text)
		if c.Normalized == "" {
			empty++
			continue
		}
		if !r.seen.Add(c.Fingerprint) {
			duplicates++
			logger.Debug("Rejected duplicate question",
				zap.String("fingerprint", fingerprint.Format(c.Fingerprint)),
				zap.String("question", c.Text))
			continue
		}
		r.accepted = append(r.accepted, Question{Question: strings.TrimSpace(c.Text)})
		accepted++
	}

	e.metrics.AddCandidates("accepted", accepted)
	e.metrics.AddCandidates("duplicate", duplicates)
	e.metrics.AddCandidates("empty", empty)
	e.metrics.AddCandidates("surplus", surplus)

	logger.Info("Attempt completed",
		zap.String("strategy", strategy),
		zap.Int("candidates", len(texts)),
		zap.Int("new", accepted),
		zap.Int("duplicates", duplicates),
		zap.Int("accepted", len(r.accepted)))

	if len(r.accepted) < r.req.Count {
		return errIncomplete
	}
	return nil
}

// complete calls the primary provider and falls back on any failure
func (e *Engine) complete(ctx context.Context, logger *zap.Logger, prompt string) (string, error) {
	raw, primaryErr := e.primary.Complete(ctx, prompt)
	if primaryErr == nil {
		return raw, nil
	}
	if ctx.Err() != nil {
		return "", ctx.Err()
	}
	if e.fallback == nil {
		logger.Warn("Primary provider failed",
			zap.String("provider", e.primary.Name()),
			zap.Error(primaryErr))
		return "", &ProviderError{Primary: primaryErr}
	}

	logger.Warn("Primary provider failed, trying fallback",
		zap.String("provider", e.primary.Name()),
		zap.String("fallback", e.fallback.Name()),
		zap.Error(primaryErr))
	e.metrics.IncrementFallback()

	raw, fallbackErr := e.fallback.Complete(ctx, prompt)
	if fallbackErr == nil {
		return raw, nil
	}
	if ctx.Err() != nil {
		return "", ctx.Err()
	}

	logger.Warn("Fallback provider failed",
		zap.String("provider", e.fallback.Name()),
		zap.Error(fallbackErr))
	return "", &ProviderError{Primary: primaryErr, Fallback: fallbackErr}
}

// recent returns up to n known questions: the most recent history first,
// then questions accepted in this call, newest first, in the slots history
// leaves free.
func (r *run) recent(n int) []string {
	out := make([]string, 0, n)
	for _, q := range r.history {
		if len(out) == n {
			break
		}
		out = append(out, q)
	}
	for i := len(r.accepted) - 1; i >= 0 && len(out) < n; i-- {
		out = append(out, r.accepted[i].Question)
	}
	return out
}
