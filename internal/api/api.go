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

// Package api exposes question generation and session history over HTTP.
package api

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/your-org/interview-questions/internal/generator"
	"github.com/your-org/interview-questions/internal/resilience"
	"github.com/your-org/interview-questions/internal/store"
)

const (
	// RequestIDHeader carries the request ID in and out
	RequestIDHeader = "X-Request-ID"
	requestIDKey    = "request_id"
)

// Generator is the question generation dependency
type Generator interface {
	GenerateUniqueQuestions(ctx context.Context, req generator.Request) ([]generator.Question, error)
}

// Handler serves the HTTP API
type Handler struct {
	generator Generator
	store     store.SessionStore
	errors    *resilience.ErrorHandler
	logger    *zap.Logger
}

// NewHandler creates a new API handler. s may be nil, in which case the
// session endpoints and recording are unavailable.
func NewHandler(g Generator, s store.SessionStore, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		generator: g,
		store:     s,
		errors:    resilience.NewErrorHandler(logger),
		logger:    logger,
	}
}

// RegisterRoutes registers the API routes with the Gin router
func (h *Handler) RegisterRoutes(router *gin.Engine) {
	api := router.Group("/api/v1")
	{
		api.POST("/questions/generate", h.generateQuestions)
		api.POST("/sessions", h.createSession)
		api.GET("/sessions/:id", h.getSession)
		api.POST("/sessions/:id/questions", h.appendQuestions)
	}
}

// GenerateRequest is the body of POST /api/v1/questions/generate
type GenerateRequest struct {
	Topic       string `json:"topic"`
	Count       int    `json:"count"`
	SessionID   string `json:"session_id,omitempty"`
	UserID      string `json:"user_id,omitempty"`
	MaxAttempts int    `json:"max_attempts,omitempty"`
	// Record appends the generated questions to the session
	Record bool `json:"record,omitempty"`
}

// GenerateResponse is returned on successful generation
type GenerateResponse struct {
	Questions []generator.Question `json:"questions"`
	Metadata  GenerateMetadata     `json:"metadata"`
}

// GenerateMetadata describes a generation call
type GenerateMetadata struct {
	RequestID  string `json:"request_id"`
	Topic      string `json:"topic"`
	Requested  int    `json:"requested"`
	Returned   int    `json:"returned"`
	SessionID  string `json:"session_id,omitempty"`
	Recorded   bool   `json:"recorded"`
	DurationMS int64  `json:"duration_ms"`
}

// CreateSessionRequest is the body of POST /api/v1/sessions
type CreateSessionRequest struct {
	UserID    string   `json:"user_id" binding:"required"`
	Topic     string   `json:"topic"`
	Questions []string `json:"questions"`
}

// AppendQuestionsRequest is the body of POST /api/v1/sessions/:id/questions
type AppendQuestionsRequest struct {
	Questions []string `json:"questions" binding:"required"`
}

// generateQuestions handles POST /api/v1/questions/generate
func (h *Handler) generateQuestions(c *gin.Context) {
	start := time.Now()
	requestID := RequestID(c)

	var req GenerateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.errors.WriteErrorResponse(c, resilience.NewBadRequestError("Invalid request format: "+err.Error(), err), requestID)
		return
	}

	questions, err := h.generator.GenerateUniqueQuestions(c.Request.Context(), generator.Request{
		Topic:       req.Topic,
		Count:       req.Count,
		SessionID:   req.SessionID,
		UserID:      req.UserID,
		MaxAttempts: req.MaxAttempts,
	})
	if err != nil {
		h.writeError(c, err, requestID)
		return
	}

	meta := GenerateMetadata{
		RequestID: requestID,
		Topic:     req.Topic,
		Requested: req.Count,
		Returned:  len(questions),
		SessionID: req.SessionID,
	}

	if req.Record && len(questions) > 0 && h.store != nil {
		sessionID, err := h.record(c.Request.Context(), req, questions)
		if err != nil {
			h.errors.LogError(err, "recording generated questions",
				zap.String("request_id", requestID),
				zap.String("session_id", req.SessionID))
		} else {
			meta.SessionID = sessionID
			meta.Recorded = true
		}
	}

	meta.DurationMS = time.Since(start).Milliseconds()
	c.JSON(http.StatusOK, GenerateResponse{Questions: questions, Metadata: meta})
}

// record appends questions to the request's session, creating the session
// when it does not exist yet
func (h *Handler) record(ctx context.Context, req GenerateRequest, questions []generator.Question) (string, error) {
	texts := make([]string, len(questions))
	for i, q := range questions {
		texts[i] = q.Question
	}

	if req.SessionID != "" {
		err := h.store.AppendQuestions(ctx, req.SessionID, texts)
		if err == nil {
			return req.SessionID, nil
		}
		if !errors.Is(err, store.ErrSessionNotFound) {
			return "", err
		}
	}

	session := store.NewSession(req.UserID, req.Topic, texts)
	if req.SessionID != "" {
		session.ID = req.SessionID
	}
	if err := h.store.SaveSession(ctx, session); err != nil {
		return "", err
	}
	return session.ID, nil
}

// createSession handles POST /api/v1/sessions
func (h *Handler) createSession(c *gin.Context) {
	requestID := RequestID(c)
	if !h.requireStore(c, requestID) {
		return
	}

	var req CreateSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.errors.WriteErrorResponse(c, resilience.NewBadRequestError("Invalid request format: "+err.Error(), err), requestID)
		return
	}

	session := store.NewSession(strings.TrimSpace(req.UserID), req.Topic, req.Questions)
	if err := h.store.SaveSession(c.Request.Context(), session); err != nil {
		h.writeError(c, err, requestID)
		return
	}

	h.logger.Info("Session created",
		zap.String("session_id", session.ID),
		zap.String("user_id", session.UserID),
		zap.String("request_id", requestID))

	c.JSON(http.StatusCreated, session)
}

// getSession handles GET /api/v1/sessions/:id
func (h *Handler) getSession(c *gin.Context) {
	requestID := RequestID(c)
	if !h.requireStore(c, requestID) {
		return
	}

	session, err := h.store.GetSession(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.writeError(c, err, requestID)
		return
	}

	c.JSON(http.StatusOK, session)
}

// appendQuestions handles POST /api/v1/sessions/:id/questions
func (h *Handler) appendQuestions(c *gin.Context) {
	requestID := RequestID(c)
	if !h.requireStore(c, requestID) {
		return
	}

	var req AppendQuestionsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.errors.WriteErrorResponse(c, resilience.NewBadRequestError("Invalid request format: "+err.Error(), err), requestID)
		return
	}

	if err := h.store.AppendQuestions(c.Request.Context(), c.Param("id"), req.Questions); err != nil {
		h.writeError(c, err, requestID)
		return
	}

	c.Status(http.StatusNoContent)
}

func (h *Handler) requireStore(c *gin.Context, requestID string) bool {
	if h.store != nil {
		return true
	}
	h.errors.WriteErrorResponse(c, resilience.NewConfigurationError("Session store is not configured", nil), requestID)
	return false
}

// writeError maps domain errors onto HTTP responses
func (h *Handler) writeError(c *gin.Context, err error, requestID string) {
	h.errors.WriteErrorResponse(c, toServiceError(err), requestID)
}

func toServiceError(err error) error {
	var (
		validationErr *generator.ValidationError
		configErr     *generator.ConfigError
		exhaustionErr *generator.ExhaustionError
		providerErr   *generator.ProviderError
	)

	switch {
	case errors.As(err, &validationErr):
		return resilience.NewBadRequestError(validationErr.Error(), err)
	case errors.As(err, &configErr):
		return resilience.NewConfigurationError(configErr.Error(), err)
	case errors.As(err, &exhaustionErr):
		return resilience.NewGenerationError(exhaustionErr.Error(), err)
	case errors.As(err, &providerErr):
		return resilience.NewGenerationError(providerErr.Error(), err)
	case errors.Is(err, store.ErrSessionNotFound):
		return resilience.NewNotFoundError("Session not found", err)
	default:
		return err
	}
}

// RequestID returns the request ID assigned by RequestIDMiddleware
func RequestID(c *gin.Context) string {
	if id := c.GetString(requestIDKey); id != "" {
		return id
	}
	return c.GetHeader(RequestIDHeader)
}

// RequestIDMiddleware propagates X-Request-ID or assigns a new UUID
func RequestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := strings.TrimSpace(c.GetHeader(RequestIDHeader))
		if id == "" {
			id = uuid.NewString()
		}
		c.Set(requestIDKey, id)
		c.Header(RequestIDHeader, id)
		c.Next()
	}
}

// LoggingMiddleware logs each request with zap
func LoggingMiddleware(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		logger.Info("HTTP request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("duration", time.Since(start)),
			zap.String("request_id", RequestID(c)))
	}
}
