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
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3" // SQLite driver
)

// SQLiteStore persists sessions in a SQLite database
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (or creates) the database at dbPath
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	if dbPath == "" {
		return nil, errors.New("database path is required")
	}

	db, err := sql.Open("sqlite3", dbPath+sqliteDSNOptions(dbPath))
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// A single connection keeps ":memory:" databases shared across queries
	if dbPath == ":memory:" {
		db.SetMaxOpenConns(1)
	}

	store := &SQLiteStore{db: db}

	if err := store.initSchema(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return store, nil
}

func sqliteDSNOptions(dbPath string) string {
	if dbPath == ":memory:" {
		return ""
	}
	return "?_foreign_keys=on&_busy_timeout=5000"
}

// initSchema creates the session tables if they don't exist
func (s *SQLiteStore) initSchema() error {
	query := `
		CREATE TABLE IF NOT EXISTS sessions (
			id TEXT PRIMARY KEY,
			user_id TEXT NOT NULL DEFAULT '',
			topic TEXT NOT NULL DEFAULT '',
			created_at DATETIME NOT NULL,
			updated_at DATETIME NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_sessions_user_created ON sessions(user_id, created_at);
		CREATE TABLE IF NOT EXISTS session_questions (
			session_id TEXT NOT NULL REFERENCES sessions(id) ON DELETE CASCADE,
			position INTEGER NOT NULL,
			question TEXT NOT NULL,
			PRIMARY KEY (session_id, position)
		);
	`

	_, err := s.db.Exec(query)
	return err
}

// Close closes the database connection
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Ping checks the database connection
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// FindSessionQuestions returns the questions of one session in asked order
func (s *SQLiteStore) FindSessionQuestions(ctx context.Context, sessionID string) ([]string, error) {
	exists, err := s.sessionExists(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, sessionID)
	}

	rows, err := s.db.QueryContext(ctx,
		"SELECT question FROM session_questions WHERE session_id = ? ORDER BY position ASC", sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to query session questions: %w", err)
	}
	defer rows.Close()

	return scanQuestions(rows)
}

// FindRecentUserSessionsQuestions returns questions from the user's newest sessions
func (s *SQLiteStore) FindRecentUserSessionsQuestions(ctx context.Context, userID string, limit int) ([]string, error) {
	if limit <= 0 {
		limit = -1 // SQLite: no limit
	}

	query := `
		SELECT q.question
		FROM session_questions q
		JOIN (
			SELECT id, created_at FROM sessions
			WHERE user_id = ?
			ORDER BY created_at DESC, id DESC
			LIMIT ?
		) recent ON recent.id = q.session_id
		ORDER BY recent.created_at DESC, recent.id DESC, q.position DESC
	`

	rows, err := s.db.QueryContext(ctx, query, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query user session questions: %w", err)
	}
	defer rows.Close()

	return scanQuestions(rows)
}

// SaveSession creates or replaces a session and its questions
func (s *SQLiteStore) SaveSession(ctx context.Context, session *Session) error {
	if err := ValidateSession(session); err != nil {
		return err
	}

	createdAt := session.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}
	updatedAt := session.UpdatedAt
	if updatedAt.IsZero() {
		updatedAt = createdAt
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO sessions (id, user_id, topic, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			user_id = excluded.user_id,
			topic = excluded.topic,
			created_at = excluded.created_at,
			updated_at = excluded.updated_at
	`, session.ID, session.UserID, session.Topic, createdAt.UTC(), updatedAt.UTC())
	if err != nil {
		return fmt.Errorf("failed to upsert session: %w", err)
	}

	if _, err := tx.ExecContext(ctx, "DELETE FROM session_questions WHERE session_id = ?", session.ID); err != nil {
		return fmt.Errorf("failed to clear session questions: %w", err)
	}

	if err := insertQuestions(ctx, tx, session.ID, 0, cleanQuestions(session.Questions)); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit session: %w", err)
	}

	return nil
}

// AppendQuestions adds questions to the end of an existing session
func (s *SQLiteStore) AppendQuestions(ctx context.Context, sessionID string, questions []string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	result, err := tx.ExecContext(ctx, "UPDATE sessions SET updated_at = ? WHERE id = ?", time.Now().UTC(), sessionID)
	if err != nil {
		return fmt.Errorf("failed to touch session: %w", err)
	}
	if affected, err := result.RowsAffected(); err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	} else if affected == 0 {
		return fmt.Errorf("%w: %s", ErrSessionNotFound, sessionID)
	}

	var next int
	row := tx.QueryRowContext(ctx,
		"SELECT COALESCE(MAX(position) + 1, 0) FROM session_questions WHERE session_id = ?", sessionID)
	if err := row.Scan(&next); err != nil {
		return fmt.Errorf("failed to read next question position: %w", err)
	}

	if err := insertQuestions(ctx, tx, sessionID, next, cleanQuestions(questions)); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit questions: %w", err)
	}

	return nil
}

// GetSession returns a session with its questions
func (s *SQLiteStore) GetSession(ctx context.Context, sessionID string) (*Session, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT id, user_id, topic, created_at, updated_at FROM sessions WHERE id = ?", sessionID)

	var session Session
	err := row.Scan(&session.ID, &session.UserID, &session.Topic, &session.CreatedAt, &session.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, sessionID)
		}
		return nil, fmt.Errorf("failed to scan session: %w", err)
	}

	questions, err := s.FindSessionQuestions(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	session.Questions = questions

	return &session, nil
}

func (s *SQLiteStore) sessionExists(ctx context.Context, sessionID string) (bool, error) {
	var count int
	row := s.db.QueryRowContext(ctx, "SELECT COUNT(1) FROM sessions WHERE id = ?", sessionID)
	if err := row.Scan(&count); err != nil {
		return false, fmt.Errorf("failed to check session existence: %w", err)
	}
	return count > 0, nil
}

func insertQuestions(ctx context.Context, tx *sql.Tx, sessionID string, start int, questions []string) error {
	if len(questions) == 0 {
		return nil
	}

	stmt, err := tx.PrepareContext(ctx,
		"INSERT INTO session_questions (session_id, position, question) VALUES (?, ?, ?)")
	if err != nil {
		return fmt.Errorf("failed to prepare question insert: %w", err)
	}
	defer stmt.Close()

	for i, question := range questions {
		if _, err := stmt.ExecContext(ctx, sessionID, start+i, question); err != nil {
			return fmt.Errorf("failed to insert question: %w", err)
		}
	}

	return nil
}

func scanQuestions(rows *sql.Rows) ([]string, error) {
	questions := []string{}
	for rows.Next() {
		var question string
		if err := rows.Scan(&question); err != nil {
			return nil, fmt.Errorf("failed to scan question: %w", err)
		}
		questions = append(questions, question)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating question rows: %w", err)
	}

	return questions, nil
}
