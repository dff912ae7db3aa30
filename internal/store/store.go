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

// Package store persists interview sessions and the questions asked in them.
// It is the history source for question deduplication and supports
// in-memory, SQLite and Redis backends.
package store

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ErrSessionNotFound is returned when a session ID is unknown to the store
var ErrSessionNotFound = errors.New("session not found")

// Type represents the storage backend for sessions
type Type string

const (
	// MemoryType keeps sessions in process memory
	MemoryType Type = "memory"
	// SQLiteType stores sessions in a SQLite database
	SQLiteType Type = "sqlite"
	// RedisType stores sessions in Redis
	RedisType Type = "redis"
)

const (
	// DefaultMaxSessions bounds the in-memory backend
	DefaultMaxSessions = 10000
	// DefaultRedisPrefix namespaces Redis keys
	DefaultRedisPrefix = "questiongen:"
)

// Config holds session store configuration
type Config struct {
	Type        Type
	SQLitePath  string
	RedisURL    string
	RedisPrefix string
	MaxSessions int
}

// Session is a persisted interview session and the questions asked in it,
// in the order they were asked.
type Session struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	Topic     string    `json:"topic"`
	Questions []string  `json:"questions"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// SessionStore is the session-history collaborator. Implementations must be
// safe for concurrent use.
type SessionStore interface {
	// FindSessionQuestions returns the questions of one session in asked order
	FindSessionQuestions(ctx context.Context, sessionID string) ([]string, error)
	// FindRecentUserSessionsQuestions returns questions from the user's
	// newest sessions, at most limit sessions, most recently asked first
	FindRecentUserSessionsQuestions(ctx context.Context, userID string, limit int) ([]string, error)
	// SaveSession creates or replaces a session
	SaveSession(ctx context.Context, session *Session) error
	// AppendQuestions adds questions to the end of an existing session
	AppendQuestions(ctx context.Context, sessionID string, questions []string) error
	// GetSession returns a copy of a session
	GetSession(ctx context.Context, sessionID string) (*Session, error)
	// Ping checks the backend is reachable
	Ping(ctx context.Context) error
	// Close releases the backend
	Close() error
}

// New creates the store selected by cfg.Type
func New(cfg Config, logger *zap.Logger) (SessionStore, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	switch cfg.Type {
	case MemoryType, "":
		maxSessions := cfg.MaxSessions
		if maxSessions <= 0 {
			maxSessions = DefaultMaxSessions
		}
		return NewMemoryStore(maxSessions), nil
	case SQLiteType:
		s, err := NewSQLiteStore(cfg.SQLitePath)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize SQLite store: %w", err)
		}
		return s, nil
	case RedisType:
		s, err := NewRedisStore(cfg.RedisURL, cfg.RedisPrefix, logger)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize Redis store: %w", err)
		}
		return s, nil
	default:
		return nil, fmt.Errorf("unsupported store type: %s", cfg.Type)
	}
}

// NewSession builds a session with a fresh ID and timestamps
func NewSession(userID, topic string, questions []string) *Session {
	now := time.Now().UTC()
	return &Session{
		ID:        NewSessionID(),
		UserID:    userID,
		Topic:     topic,
		Questions: cleanQuestions(questions),
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// NewSessionID generates a unique session identifier
func NewSessionID() string {
	return "session_" + uuid.NewString()
}

// ValidateSession checks the fields every backend requires
func ValidateSession(session *Session) error {
	if session == nil {
		return errors.New("session is nil")
	}
	if strings.TrimSpace(session.ID) == "" {
		return errors.New("session ID is required")
	}
	return nil
}

func copySession(s *Session) *Session {
	c := *s
	c.Questions = make([]string, len(s.Questions))
	copy(c.Questions, s.Questions)
	return &c
}

// cleanQuestions drops blank entries and trims the rest
func cleanQuestions(questions []string) []string {
	cleaned := make([]string, 0, len(questions))
	for _, q := range questions {
		if q = strings.TrimSpace(q); q != "" {
			cleaned = append(cleaned, q)
		}
	}
	return cleaned
}

// flattenRecent orders sessions newest first, keeps at most limit of them and
// returns their questions most recently asked first.
func flattenRecent(sessions []*Session, limit int) []string {
	sort.SliceStable(sessions, func(i, j int) bool {
		return sessions[i].CreatedAt.After(sessions[j].CreatedAt)
	})
	if limit > 0 && len(sessions) > limit {
		sessions = sessions[:limit]
	}

	var questions []string
	for _, s := range sessions {
		for i := len(s.Questions) - 1; i >= 0; i-- {
			questions = append(questions, s.Questions[i])
		}
	}
	return questions
}
