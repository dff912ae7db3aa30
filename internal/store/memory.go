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

package store

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// MemoryStore provides in-memory session storage with eviction of the least
// recently updated session once maxSessions is reached.
type MemoryStore struct {
	sessions    map[string]*Session
	userIndex   map[string][]string // Maps user ID to session IDs
	maxSessions int
	mutex       sync.RWMutex
}

// NewMemoryStore creates a new in-memory session store
func NewMemoryStore(maxSessions int) *MemoryStore {
	return &MemoryStore{
		sessions:    make(map[string]*Session),
		userIndex:   make(map[string][]string),
		maxSessions: maxSessions,
	}
}

// FindSessionQuestions returns the questions of one session in asked order
func (m *MemoryStore) FindSessionQuestions(_ context.Context, sessionID string) ([]string, error) {
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	session, exists := m.sessions[sessionID]
	if !exists {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, sessionID)
	}

	questions := make([]string, len(session.Questions))
	copy(questions, session.Questions)
	return questions, nil
}

// FindRecentUserSessionsQuestions returns questions from the user's newest sessions
func (m *MemoryStore) FindRecentUserSessionsQuestions(_ context.Context, userID string, limit int) ([]string, error) {
	m.mutex.RLock()
	sessions := make([]*Session, 0, len(m.userIndex[userID]))
	for _, sessionID := range m.userIndex[userID] {
		if session, exists := m.sessions[sessionID]; exists {
			sessions = append(sessions, copySession(session))
		}
	}
	m.mutex.RUnlock()

	return flattenRecent(sessions, limit), nil
}

// SaveSession creates or replaces a session
func (m *MemoryStore) SaveSession(_ context.Context, session *Session) error {
	if err := ValidateSession(session); err != nil {
		return err
	}

	m.mutex.Lock()
	defer m.mutex.Unlock()

	if _, exists := m.sessions[session.ID]; !exists && m.maxSessions > 0 && len(m.sessions) >= m.maxSessions {
		m.evictOldestSession()
	}

	stored := copySession(session)
	if stored.CreatedAt.IsZero() {
		stored.CreatedAt = time.Now().UTC()
	}
	if stored.UpdatedAt.IsZero() {
		stored.UpdatedAt = stored.CreatedAt
	}

	if previous, exists := m.sessions[session.ID]; exists && previous.UserID != stored.UserID {
		m.removeFromUserIndex(previous.UserID, session.ID)
	}

	m.sessions[session.ID] = stored
	m.updateUserIndex(stored.UserID, stored.ID)

	return nil
}

// AppendQuestions adds questions to the end of an existing session
func (m *MemoryStore) AppendQuestions(_ context.Context, sessionID string, questions []string) error {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	session, exists := m.sessions[sessionID]
	if !exists {
		return fmt.Errorf("%w: %s", ErrSessionNotFound, sessionID)
	}

	session.Questions = append(session.Questions, cleanQuestions(questions)...)
	session.UpdatedAt = time.Now().UTC()

	return nil
}

// GetSession returns a copy of a session
func (m *MemoryStore) GetSession(_ context.Context, sessionID string) (*Session, error) {
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	session, exists := m.sessions[sessionID]
	if !exists {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, sessionID)
	}

	return copySession(session), nil
}

// Ping always succeeds for the in-memory backend
func (m *MemoryStore) Ping(_ context.Context) error {
	return nil
}

// Close clears all data
func (m *MemoryStore) Close() error {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	m.sessions = make(map[string]*Session)
	m.userIndex = make(map[string][]string)

	return nil
}

// Len returns the number of stored sessions
func (m *MemoryStore) Len() int {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	return len(m.sessions)
}

// updateUserIndex updates the user index with a new session
func (m *MemoryStore) updateUserIndex(userID, sessionID string) {
	if userID == "" {
		return
	}

	for _, id := range m.userIndex[userID] {
		if id == sessionID {
			return
		}
	}
	m.userIndex[userID] = append(m.userIndex[userID], sessionID)
}

// removeFromUserIndex removes a session from the user index
func (m *MemoryStore) removeFromUserIndex(userID, sessionID string) {
	sessionIDs, exists := m.userIndex[userID]
	if !exists {
		return
	}

	var remaining []string
	for _, id := range sessionIDs {
		if id != sessionID {
			remaining = append(remaining, id)
		}
	}

	if len(remaining) == 0 {
		delete(m.userIndex, userID)
	} else {
		m.userIndex[userID] = remaining
	}
}

// evictOldestSession removes the least recently updated session
func (m *MemoryStore) evictOldestSession() {
	var oldestID string
	var oldestTime time.Time

	for id, session := range m.sessions {
		if oldestID == "" || session.UpdatedAt.Before(oldestTime) {
			oldestID = id
			oldestTime = session.UpdatedAt
		}
	}

	if oldestID != "" {
		m.removeFromUserIndex(m.sessions[oldestID].UserID, oldestID)
		delete(m.sessions, oldestID)
	}
}
