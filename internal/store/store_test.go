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
	"errors"
	"fmt"
	"path/filepath"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

// fakeRedisClient is an in-memory RedisClient
type fakeRedisClient struct {
	mu      sync.Mutex
	strings map[string]string
	lists   map[string][]string
	zsets   map[string]map[string]float64
	pingErr error
	closed  bool
	txCount int
}

func newFakeRedisClient() *fakeRedisClient {
	return &fakeRedisClient{
		strings: make(map[string]string),
		lists:   make(map[string][]string),
		zsets:   make(map[string]map[string]float64),
	}
}

func (f *fakeRedisClient) Get(_ context.Context, key string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	v, ok := f.strings[key]
	if !ok {
		return "", ErrKeyNotFound
	}
	return v, nil
}

func (f *fakeRedisClient) Exists(_ context.Context, keys ...string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var n int64
	for _, k := range keys {
		if _, ok := f.strings[k]; ok {
			n++
		}
	}
	return n, nil
}

func (f *fakeRedisClient) LRange(_ context.Context, key string, start, stop int64) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	list := f.lists[key]
	return sliceRange(list, start, stop), nil
}

// TxPipelined applies the queued writes under one lock, like MULTI/EXEC
func (f *fakeRedisClient) TxPipelined(_ context.Context, fn func(pipe RedisPipe)) error {
	pipe := &fakeRedisPipe{}
	fn(pipe)

	f.mu.Lock()
	defer f.mu.Unlock()
	f.txCount++
	for _, op := range pipe.ops {
		op(f)
	}
	return nil
}

// fakeRedisPipe records writes until the transaction is applied
type fakeRedisPipe struct {
	ops []func(f *fakeRedisClient)
}

func (p *fakeRedisPipe) Set(key string, value interface{}, _ time.Duration) {
	p.ops = append(p.ops, func(f *fakeRedisClient) {
		switch v := value.(type) {
		case []byte:
			f.strings[key] = string(v)
		case string:
			f.strings[key] = v
		default:
			f.strings[key] = fmt.Sprint(v)
		}
	})
}

func (p *fakeRedisPipe) Del(keys ...string) {
	p.ops = append(p.ops, func(f *fakeRedisClient) {
		for _, k := range keys {
			delete(f.strings, k)
			delete(f.lists, k)
			delete(f.zsets, k)
		}
	})
}

func (p *fakeRedisPipe) RPush(key string, values ...interface{}) {
	p.ops = append(p.ops, func(f *fakeRedisClient) {
		for _, v := range values {
			f.lists[key] = append(f.lists[key], fmt.Sprint(v))
		}
	})
}

func (p *fakeRedisPipe) ZAdd(key string, score float64, member string) {
	p.ops = append(p.ops, func(f *fakeRedisClient) {
		if f.zsets[key] == nil {
			f.zsets[key] = make(map[string]float64)
		}
		f.zsets[key][member] = score
	})
}

func (p *fakeRedisPipe) ZRem(key string, members ...string) {
	p.ops = append(p.ops, func(f *fakeRedisClient) {
		for _, m := range members {
			delete(f.zsets[key], m)
		}
	})
}

func (f *fakeRedisClient) ZRevRange(_ context.Context, key string, start, stop int64) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	members := make([]string, 0, len(f.zsets[key]))
	for m := range f.zsets[key] {
		members = append(members, m)
	}
	scores := f.zsets[key]
	sort.Slice(members, func(i, j int) bool {
		if scores[members[i]] == scores[members[j]] {
			return members[i] > members[j]
		}
		return scores[members[i]] > scores[members[j]]
	})
	return sliceRange(members, start, stop), nil
}

func (f *fakeRedisClient) Ping(_ context.Context) error {
	return f.pingErr
}

func (f *fakeRedisClient) Close() error {
	f.closed = true
	return nil
}

func sliceRange(items []string, start, stop int64) []string {
	n := int64(len(items))
	if stop < 0 || stop >= n {
		stop = n - 1
	}
	if start >= n || start > stop {
		return []string{}
	}
	out := make([]string, stop-start+1)
	copy(out, items[start:stop+1])
	return out
}

// backends returns a fresh instance of every store implementation
func backends(t *testing.T) map[string]SessionStore {
	t.Helper()

	memSQLite, err := NewSQLiteStore(":memory:")
	require.NoError(t, err)

	fileSQLite, err := NewSQLiteStore(filepath.Join(t.TempDir(), "sessions.db"))
	require.NoError(t, err)

	stores := map[string]SessionStore{
		"memory":        NewMemoryStore(100),
		"sqlite-memory": memSQLite,
		"sqlite-file":   fileSQLite,
		"redis":         NewRedisStoreWithClient(newFakeRedisClient(), "", zaptest.NewLogger(t)),
	}

	t.Cleanup(func() {
		for _, s := range stores {
			_ = s.Close()
		}
	})

	return stores
}

func TestSessionStoreContract(t *testing.T) {
	ctx := context.Background()
	base := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			older := &Session{
				ID:        "session-old",
				UserID:    "user-1",
				Topic:     "javascript",
				Questions: []string{"What is a closure?", "What is hoisting?"},
				CreatedAt: base,
			}
			newer := &Session{
				ID:        "session-new",
				UserID:    "user-1",
				Topic:     "javascript",
				Questions: []string{"What is a promise?"},
				CreatedAt: base.Add(time.Hour),
			}
			other := &Session{
				ID:        "session-other",
				UserID:    "user-2",
				Topic:     "go",
				Questions: []string{"What is a goroutine?"},
				CreatedAt: base.Add(2 * time.Hour),
			}

			for _, session := range []*Session{older, newer, other} {
				require.NoError(t, s.SaveSession(ctx, session))
			}

			questions, err := s.FindSessionQuestions(ctx, "session-old")
			require.NoError(t, err)
			assert.Equal(t, []string{"What is a closure?", "What is hoisting?"}, questions)

			recent, err := s.FindRecentUserSessionsQuestions(ctx, "user-1", 200)
			require.NoError(t, err)
			assert.Equal(t, []string{"What is a promise?", "What is hoisting?", "What is a closure?"}, recent)

			limited, err := s.FindRecentUserSessionsQuestions(ctx, "user-1", 1)
			require.NoError(t, err)
			assert.Equal(t, []string{"What is a promise?"}, limited)

			none, err := s.FindRecentUserSessionsQuestions(ctx, "nobody", 10)
			require.NoError(t, err)
			assert.Empty(t, none)

			require.NoError(t, s.AppendQuestions(ctx, "session-new", []string{"What is the event loop?", "  "}))
			questions, err = s.FindSessionQuestions(ctx, "session-new")
			require.NoError(t, err)
			assert.Equal(t, []string{"What is a promise?", "What is the event loop?"}, questions)

			got, err := s.GetSession(ctx, "session-new")
			require.NoError(t, err)
			assert.Equal(t, "user-1", got.UserID)
			assert.Equal(t, "javascript", got.Topic)
			assert.Equal(t, []string{"What is a promise?", "What is the event loop?"}, got.Questions)
			assert.True(t, got.CreatedAt.Equal(newer.CreatedAt), "created_at should round-trip")

			// Replacing a session replaces its questions
			replaced := *older
			replaced.Questions = []string{"What is currying?"}
			require.NoError(t, s.SaveSession(ctx, &replaced))
			questions, err = s.FindSessionQuestions(ctx, "session-old")
			require.NoError(t, err)
			assert.Equal(t, []string{"What is currying?"}, questions)

			// Moving a session to another user drops it from the old user's history
			moved := replaced
			moved.UserID = "user-2"
			require.NoError(t, s.SaveSession(ctx, &moved))

			recent, err = s.FindRecentUserSessionsQuestions(ctx, "user-1", 200)
			require.NoError(t, err)
			assert.NotContains(t, recent, "What is currying?")
			assert.Equal(t, []string{"What is the event loop?", "What is a promise?"}, recent)

			recent, err = s.FindRecentUserSessionsQuestions(ctx, "user-2", 200)
			require.NoError(t, err)
			assert.Equal(t, []string{"What is a goroutine?", "What is currying?"}, recent)

			assert.NoError(t, s.Ping(ctx))
		})
	}
}

func TestSessionStoreNotFound(t *testing.T) {
	ctx := context.Background()

	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			_, err := s.FindSessionQuestions(ctx, "missing")
			assert.True(t, errors.Is(err, ErrSessionNotFound), "got %v", err)

			_, err = s.GetSession(ctx, "missing")
			assert.True(t, errors.Is(err, ErrSessionNotFound), "got %v", err)

			err = s.AppendQuestions(ctx, "missing", []string{"Q?"})
			assert.True(t, errors.Is(err, ErrSessionNotFound), "got %v", err)

			assert.Error(t, s.SaveSession(ctx, &Session{}))
			assert.Error(t, s.SaveSession(ctx, nil))
		})
	}
}

func TestMemoryStoreEviction(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore(2)
	base := time.Now().UTC()

	for i, id := range []string{"a", "b", "c"} {
		require.NoError(t, s.SaveSession(ctx, &Session{
			ID:        id,
			UserID:    "user",
			Questions: []string{"Q" + id},
			CreatedAt: base.Add(time.Duration(i) * time.Second),
		}))
	}

	assert.Equal(t, 2, s.Len())
	_, err := s.GetSession(ctx, "a")
	assert.True(t, errors.Is(err, ErrSessionNotFound), "oldest session should be evicted")

	recent, err := s.FindRecentUserSessionsQuestions(ctx, "user", 10)
	require.NoError(t, err)
	assert.Equal(t, []string{"Qc", "Qb"}, recent)
}

func TestMemoryStoreReturnsCopies(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore(10)
	require.NoError(t, s.SaveSession(ctx, &Session{ID: "s", Questions: []string{"Q1"}}))

	got, err := s.GetSession(ctx, "s")
	require.NoError(t, err)
	got.Questions[0] = "mutated"

	questions, err := s.FindSessionQuestions(ctx, "s")
	require.NoError(t, err)
	assert.Equal(t, []string{"Q1"}, questions)
}

func TestMemoryStoreConcurrentReads(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore(100)
	require.NoError(t, s.SaveSession(ctx, NewSession("user", "go", []string{"Q1", "Q2"})))

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			questions, err := s.FindRecentUserSessionsQuestions(ctx, "user", 5)
			assert.NoError(t, err)
			assert.Len(t, questions, 2)
		}()
	}
	wg.Wait()
}

func TestNewStore(t *testing.T) {
	logger := zaptest.NewLogger(t)

	s, err := New(Config{Type: MemoryType}, logger)
	require.NoError(t, err)
	assert.IsType(t, &MemoryStore{}, s)

	s, err = New(Config{Type: SQLiteType, SQLitePath: ":memory:"}, logger)
	require.NoError(t, err)
	assert.IsType(t, &SQLiteStore{}, s)
	_ = s.Close()

	_, err = New(Config{Type: SQLiteType}, logger)
	assert.Error(t, err)

	_, err = New(Config{Type: RedisType}, logger)
	assert.Error(t, err)

	_, err = New(Config{Type: RedisType, RedisURL: "not a url"}, logger)
	assert.Error(t, err)

	_, err = New(Config{Type: "mongo"}, logger)
	assert.Error(t, err)
}

func TestNewSession(t *testing.T) {
	s := NewSession("user", "system design", []string{" Q1 ", "", "Q2"})

	assert.Contains(t, s.ID, "session_")
	assert.Equal(t, []string{"Q1", "Q2"}, s.Questions)
	assert.False(t, s.CreatedAt.IsZero())
	assert.NotEqual(t, s.ID, NewSession("user", "", nil).ID)
}

func TestRedisStoreKeys(t *testing.T) {
	client := newFakeRedisClient()
	s := NewRedisStoreWithClient(client, "test:", nil)
	ctx := context.Background()

	require.NoError(t, s.SaveSession(ctx, &Session{ID: "s1", UserID: "u1", Questions: []string{"Q"}}))

	_, ok := client.strings["test:session:s1"]
	assert.True(t, ok)
	assert.Equal(t, []string{"Q"}, client.lists["test:session:s1:questions"])
	assert.Contains(t, client.zsets["test:user_index:u1"], "s1")

	require.NoError(t, s.Close())
	assert.True(t, client.closed)
}

func TestRedisStoreWritesAreTransactional(t *testing.T) {
	client := newFakeRedisClient()
	s := NewRedisStoreWithClient(client, "test:", nil)
	ctx := context.Background()

	require.NoError(t, s.SaveSession(ctx, &Session{ID: "s1", UserID: "u1", Questions: []string{"Q1"}}))
	assert.Equal(t, 1, client.txCount)

	require.NoError(t, s.AppendQuestions(ctx, "s1", []string{"Q2"}))
	assert.Equal(t, 2, client.txCount)
	assert.Equal(t, []string{"Q1", "Q2"}, client.lists["test:session:s1:questions"])

	require.NoError(t, s.SaveSession(ctx, &Session{ID: "s1", UserID: "u2", Questions: []string{"Q3"}}))
	assert.Equal(t, 3, client.txCount)
	assert.NotContains(t, client.zsets["test:user_index:u1"], "s1")
	assert.Contains(t, client.zsets["test:user_index:u2"], "s1")
	assert.Equal(t, []string{"Q3"}, client.lists["test:session:s1:questions"])

	// Blank-only appends write nothing
	require.NoError(t, s.AppendQuestions(ctx, "s1", []string{"  "}))
	assert.Equal(t, 3, client.txCount)
}

func TestRedisStorePingError(t *testing.T) {
	client := newFakeRedisClient()
	client.pingErr = errors.New("connection refused")
	s := NewRedisStoreWithClient(client, "", nil)

	assert.Error(t, s.Ping(context.Background()))
}
