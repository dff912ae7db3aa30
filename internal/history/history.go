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

// Package history gathers previously asked questions for a session and a
// user so that generation can avoid repeating them.
package history

import (
	"context"
	"errors"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/your-org/interview-questions/internal/fingerprint"
	"github.com/your-org/interview-questions/internal/store"
)

// DefaultUserHistoryLimit is the number of recent user sessions consulted
const DefaultUserHistoryLimit = 200

// History is the set of fingerprints already asked plus their texts, most
// recently asked first: the session's own questions, then the user's.
type History struct {
	Fingerprints fingerprint.Set
	Recent       []string
}

// Len returns the number of distinct historical questions
func (h History) Len() int {
	return h.Fingerprints.Len()
}

// Gatherer reads question history from a session store
type Gatherer struct {
	store     store.SessionStore
	userLimit int
	logger    *zap.Logger
}

// NewGatherer creates a gatherer. A nil store yields empty history.
func NewGatherer(s store.SessionStore, userLimit int, logger *zap.Logger) *Gatherer {
	if logger == nil {
		logger = zap.NewNop()
	}
	if userLimit <= 0 {
		userLimit = DefaultUserHistoryLimit
	}
	return &Gatherer{
		store:     s,
		userLimit: userLimit,
		logger:    logger,
	}
}

// Gather collects the questions of sessionID and of userID's recent sessions.
// Lookup failures are logged and the failing source is skipped.
func (g *Gatherer) Gather(ctx context.Context, sessionID, userID string) History {
	h := History{Fingerprints: fingerprint.NewSet()}
	if g == nil || g.store == nil {
		return h
	}

	var sessionQuestions, userQuestions []string

	// Lookups run concurrently; failures only drop their own source
	var group errgroup.Group
	if sessionID != "" {
		group.Go(func() error {
			questions, err := g.store.FindSessionQuestions(ctx, sessionID)
			if errors.Is(err, store.ErrSessionNotFound) {
				g.logger.Debug("Session has no history yet", zap.String("session_id", sessionID))
				return nil
			}
			if err != nil {
				g.logger.Warn("Failed to load session history, continuing without it",
					zap.String("session_id", sessionID),
					zap.Error(err))
				return nil
			}
			// Newest session questions first
			for i, j := 0, len(questions)-1; i < j; i, j = i+1, j-1 {
				questions[i], questions[j] = questions[j], questions[i]
			}
			sessionQuestions = questions
			return nil
		})
	}
	if userID != "" {
		group.Go(func() error {
			questions, err := g.store.FindRecentUserSessionsQuestions(ctx, userID, g.userLimit)
			if err != nil {
				g.logger.Warn("Failed to load user history, continuing without it",
					zap.String("user_id", userID),
					zap.Error(err))
				return nil
			}
			userQuestions = questions
			return nil
		})
	}
	_ = group.Wait()

	h.add(sessionQuestions)
	h.add(userQuestions)

	g.logger.Debug("Gathered question history",
		zap.String("session_id", sessionID),
		zap.String("user_id", userID),
		zap.Int("known_questions", h.Len()))

	return h
}

func (h *History) add(questions []string) {
	for _, q := range questions {
		c := fingerprint.NewCandidate(q)
		if c.Normalized == "" {
			continue
		}
		if h.Fingerprints.Add(c.Fingerprint) {
			h.Recent = append(h.Recent, q)
		}
	}
}
