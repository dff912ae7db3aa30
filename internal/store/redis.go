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
	"encoding/json"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// ErrKeyNotFound is returned by RedisClient.Get for a missing key
var ErrKeyNotFound = errors.New("redis key not found")

// RedisClient defines the Redis operations the store needs.
// This allows for easy testing and different Redis client implementations
type RedisClient interface {
	Get(ctx context.Context, key string) (string, error)
	Exists(ctx context.Context, keys ...string) (int64, error)
	LRange(ctx context.Context, key string, start, stop int64) ([]string, error)
	ZRevRange(ctx context.Context, key string, start, stop int64) ([]string, error)
	// TxPipelined runs the writes queued by fn in one MULTI/EXEC transaction
	TxPipelined(ctx context.Context, fn func(pipe RedisPipe)) error
	Ping(ctx context.Context) error
	Close() error
}

// RedisPipe queues writes for RedisClient.TxPipelined
type RedisPipe interface {
	Set(key string, value interface{}, expiration time.Duration)
	Del(keys ...string)
	RPush(key string, values ...interface{})
	ZAdd(key string, score float64, member string)
	ZRem(key string, members ...string)
}

// RedisStore keeps session metadata as JSON, questions as a list and a
// per-user sorted set of session IDs scored by creation time.
type RedisStore struct {
	client RedisClient
	logger *zap.Logger
	prefix string
}

// sessionMeta is the JSON document stored under the session key
type sessionMeta struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	Topic     string    `json:"topic"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// NewRedisStore connects to the Redis server at redisURL
func NewRedisStore(redisURL, prefix string, logger *zap.Logger) (*RedisStore, error) {
	if redisURL == "" {
		return nil, errors.New("redis URL is required")
	}

	opts, err := goredis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis URL: %w", err)
	}
	if opts.DialTimeout == 0 {
		opts.DialTimeout = 5 * time.Second
	}

	client := &goRedisClient{rdb: goredis.NewClient(opts)}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	return NewRedisStoreWithClient(client, prefix, logger), nil
}

// NewRedisStoreWithClient builds a store over an existing client
func NewRedisStoreWithClient(client RedisClient, prefix string, logger *zap.Logger) *RedisStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	if prefix == "" {
		prefix = DefaultRedisPrefix
	}
	return &RedisStore{
		client: client,
		logger: logger,
		prefix: prefix,
	}
}

// FindSessionQuestions returns the questions of one session in asked order
func (r *RedisStore) FindSessionQuestions(ctx context.Context, sessionID string) ([]string, error) {
	count, err := r.client.Exists(ctx, r.sessionKey(sessionID))
	if err != nil {
		return nil, fmt.Errorf("failed to check session existence: %w", err)
	}
	if count == 0 {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, sessionID)
	}

	questions, err := r.client.LRange(ctx, r.questionsKey(sessionID), 0, -1)
	if err != nil {
		return nil, fmt.Errorf("failed to read session questions from Redis: %w", err)
	}
	return questions, nil
}

// FindRecentUserSessionsQuestions returns questions from the user's newest sessions
func (r *RedisStore) FindRecentUserSessionsQuestions(ctx context.Context, userID string, limit int) ([]string, error) {
	stop := int64(-1)
	if limit > 0 {
		stop = int64(limit - 1)
	}

	sessionIDs, err := r.client.ZRevRange(ctx, r.userIndexKey(userID), 0, stop)
	if err != nil {
		return nil, fmt.Errorf("failed to read user session index: %w", err)
	}

	var questions []string
	for _, sessionID := range sessionIDs {
		sessionQuestions, err := r.client.LRange(ctx, r.questionsKey(sessionID), 0, -1)
		if err != nil {
			// Log error but continue with other sessions
			r.logger.Warn("Failed to read questions for indexed session",
				zap.String("session_id", sessionID), zap.Error(err))
			continue
		}
		for i := len(sessionQuestions) - 1; i >= 0; i-- {
			questions = append(questions, sessionQuestions[i])
		}
	}

	return questions, nil
}

// SaveSession creates or replaces a session. A session moved to another
// user is removed from the previous user's index.
func (r *RedisStore) SaveSession(ctx context.Context, session *Session) error {
	if err := ValidateSession(session); err != nil {
		return err
	}

	previous, err := r.getMeta(ctx, session.ID)
	if err != nil && !errors.Is(err, ErrSessionNotFound) {
		return err
	}

	meta := sessionMeta{
		ID:        session.ID,
		UserID:    session.UserID,
		Topic:     session.Topic,
		CreatedAt: session.CreatedAt,
		UpdatedAt: session.UpdatedAt,
	}
	if meta.CreatedAt.IsZero() {
		meta.CreatedAt = time.Now().UTC()
	}
	if meta.UpdatedAt.IsZero() {
		meta.UpdatedAt = meta.CreatedAt
	}

	data, err := json.Marshal(meta)
	if err != nil {
		return fmt.Errorf("failed to marshal session: %w", err)
	}
	questions := questionValues(session.Questions)

	err = r.client.TxPipelined(ctx, func(pipe RedisPipe) {
		pipe.Set(r.sessionKey(meta.ID), data, 0)
		pipe.Del(r.questionsKey(meta.ID))
		if len(questions) > 0 {
			pipe.RPush(r.questionsKey(meta.ID), questions...)
		}
		if previous != nil && previous.UserID != "" && previous.UserID != meta.UserID {
			pipe.ZRem(r.userIndexKey(previous.UserID), meta.ID)
		}
		if meta.UserID != "" {
			pipe.ZAdd(r.userIndexKey(meta.UserID), float64(meta.CreatedAt.UnixNano()), meta.ID)
		}
	})
	if err != nil {
		return fmt.Errorf("failed to save session in Redis: %w", err)
	}

	return nil
}

// AppendQuestions adds questions to the end of an existing session
func (r *RedisStore) AppendQuestions(ctx context.Context, sessionID string, questions []string) error {
	meta, err := r.getMeta(ctx, sessionID)
	if err != nil {
		return err
	}

	values := questionValues(questions)
	if len(values) == 0 {
		return nil
	}

	meta.UpdatedAt = time.Now().UTC()
	data, err := json.Marshal(meta)
	if err != nil {
		return fmt.Errorf("failed to marshal session: %w", err)
	}

	err = r.client.TxPipelined(ctx, func(pipe RedisPipe) {
		pipe.RPush(r.questionsKey(sessionID), values...)
		pipe.Set(r.sessionKey(sessionID), data, 0)
	})
	if err != nil {
		return fmt.Errorf("failed to append session questions in Redis: %w", err)
	}

	return nil
}

// GetSession returns a session with its questions
func (r *RedisStore) GetSession(ctx context.Context, sessionID string) (*Session, error) {
	meta, err := r.getMeta(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	questions, err := r.client.LRange(ctx, r.questionsKey(sessionID), 0, -1)
	if err != nil {
		return nil, fmt.Errorf("failed to read session questions from Redis: %w", err)
	}

	return &Session{
		ID:        meta.ID,
		UserID:    meta.UserID,
		Topic:     meta.Topic,
		Questions: questions,
		CreatedAt: meta.CreatedAt,
		UpdatedAt: meta.UpdatedAt,
	}, nil
}

// Ping checks the Redis connection
func (r *RedisStore) Ping(ctx context.Context) error {
	return r.client.Ping(ctx)
}

// Close closes the Redis connection
func (r *RedisStore) Close() error {
	return r.client.Close()
}

func (r *RedisStore) getMeta(ctx context.Context, sessionID string) (*sessionMeta, error) {
	data, err := r.client.Get(ctx, r.sessionKey(sessionID))
	if err != nil {
		if errors.Is(err, ErrKeyNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, sessionID)
		}
		return nil, fmt.Errorf("failed to get session from Redis: %w", err)
	}

	var meta sessionMeta
	if err := json.Unmarshal([]byte(data), &meta); err != nil {
		return nil, fmt.Errorf("failed to unmarshal session: %w", err)
	}
	return &meta, nil
}

// questionValues cleans questions into RPush arguments
func questionValues(questions []string) []interface{} {
	cleaned := cleanQuestions(questions)
	values := make([]interface{}, len(cleaned))
	for i, q := range cleaned {
		values[i] = q
	}
	return values
}

// sessionKey returns the Redis key for a session
func (r *RedisStore) sessionKey(sessionID string) string {
	return fmt.Sprintf("%ssession:%s", r.prefix, sessionID)
}

// questionsKey returns the Redis key for a session's question list
func (r *RedisStore) questionsKey(sessionID string) string {
	return fmt.Sprintf("%ssession:%s:questions", r.prefix, sessionID)
}

// userIndexKey returns the Redis key for a user's session index
func (r *RedisStore) userIndexKey(userID string) string {
	return fmt.Sprintf("%suser_index:%s", r.prefix, userID)
}

// goRedisClient adapts go-redis to RedisClient
type goRedisClient struct {
	rdb *goredis.Client
}

func (c *goRedisClient) Get(ctx context.Context, key string) (string, error) {
	value, err := c.rdb.Get(ctx, key).Result()
	if errors.Is(err, goredis.Nil) {
		return "", ErrKeyNotFound
	}
	return value, err
}

func (c *goRedisClient) Exists(ctx context.Context, keys ...string) (int64, error) {
	return c.rdb.Exists(ctx, keys...).Result()
}

func (c *goRedisClient) LRange(ctx context.Context, key string, start, stop int64) ([]string, error) {
	return c.rdb.LRange(ctx, key, start, stop).Result()
}

func (c *goRedisClient) ZRevRange(ctx context.Context, key string, start, stop int64) ([]string, error) {
	return c.rdb.ZRevRange(ctx, key, start, stop).Result()
}

func (c *goRedisClient) TxPipelined(ctx context.Context, fn func(pipe RedisPipe)) error {
	_, err := c.rdb.TxPipelined(ctx, func(p goredis.Pipeliner) error {
		fn(&goRedisPipe{ctx: ctx, p: p})
		return nil
	})
	return err
}

func (c *goRedisClient) Ping(ctx context.Context) error {
	return c.rdb.Ping(ctx).Err()
}

func (c *goRedisClient) Close() error {
	return c.rdb.Close()
}

// goRedisPipe queues commands on a go-redis transaction pipeline
type goRedisPipe struct {
	ctx context.Context
	p   goredis.Pipeliner
}

func (g *goRedisPipe) Set(key string, value interface{}, expiration time.Duration) {
	g.p.Set(g.ctx, key, value, expiration)
}

func (g *goRedisPipe) Del(keys ...string) {
	g.p.Del(g.ctx, keys...)
}

func (g *goRedisPipe) RPush(key string, values ...interface{}) {
	g.p.RPush(g.ctx, key, values...)
}

func (g *goRedisPipe) ZAdd(key string, score float64, member string) {
	g.p.ZAdd(g.ctx, key, goredis.Z{Score: score, Member: member})
}

func (g *goRedisPipe) ZRem(key string, members ...string) {
	args := make([]interface{}, len(members))
	for i, m := range members {
		args[i] = m
	}
	g.p.ZRem(g.ctx, key, args...)
}
