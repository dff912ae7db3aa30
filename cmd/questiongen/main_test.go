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

package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest"

	"github.com/your-org/interview-questions/internal/config"
	"github.com/your-org/interview-questions/internal/health"
)

func chatResponse(content string) string {
	body, _ := json.Marshal(map[string]interface{}{
		"id":      "chatcmpl-test",
		"object":  "chat.completion",
		"created": 1700000000,
		"model":   "gpt-4o-mini",
		"choices": []map[string]interface{}{
			{
				"index":         0,
				"message":       map[string]string{"role": "assistant", "content": content},
				"finish_reason": "stop",
			},
		},
	})
	return string(body)
}

func mockProvider(t *testing.T, content string) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(chatResponse(content)))
	}))
	t.Cleanup(server.Close)
	return server
}

func clearProviderEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"CONFIG_PATH", "OPENAI_API_KEY", "OPENAI_ENDPOINT", "OPENAI_MODEL",
		"FALLBACK_API_KEY", "FALLBACK_ENDPOINT", "FALLBACK_MODEL",
		"STORE_TYPE", "SQLITE_PATH", "REDIS_URL", "LOG_LEVEL", "LOG_FORMAT", "LOG_OUTPUT",
	} {
		t.Setenv(key, "")
	}
}

func writeConfig(t *testing.T, endpoint string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := fmt.Sprintf(`primary:
  apikey: test-key
  endpoint: %s/v1
  timeout: 5s
generation:
  max_attempts: 2
  transport_backoff: 1ms
store:
  type: memory
logging:
  level: error
  format: text
`, endpoint)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestGenerateCommand(t *testing.T) {
	clearProviderEnv(t)
	server := mockProvider(t, `{"questions":[{"question":"What is a slice?"},{"question":"What is a map?"}]}`)
	path := writeConfig(t, server.URL)

	var out bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"generate", "--config", path, "--topic", "Go basics", "--count", "2"})
	require.NoError(t, cmd.Execute())

	var result struct {
		Questions []struct {
			Question string `json:"question"`
		} `json:"questions"`
	}
	require.NoError(t, json.Unmarshal(out.Bytes(), &result))
	require.Len(t, result.Questions, 2)
	assert.Equal(t, "What is a slice?", result.Questions[0].Question)
	assert.Equal(t, "What is a map?", result.Questions[1].Question)
}

func TestGenerateCommandRequiresTopic(t *testing.T) {
	clearProviderEnv(t)
	cmd := newRootCmd()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"generate", "--count", "2"})
	assert.Error(t, cmd.Execute())
}

func TestGenerateCommandExhaustion(t *testing.T) {
	clearProviderEnv(t)
	server := mockProvider(t, `{"questions":[{"question":"Always the same?"}]}`)
	path := writeConfig(t, server.URL)

	cmd := newRootCmd()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"generate", "--config", path, "--topic", "Go", "--count", "3"})

	err := cmd.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "generated only 1 of 3 unique questions")
}

func TestInitializeDependencies(t *testing.T) {
	clearProviderEnv(t)
	server := mockProvider(t, `{"questions":[]}`)
	cfg, err := config.Load(writeConfig(t, server.URL))
	require.NoError(t, err)

	deps, err := initializeDependencies(cfg, zaptest.NewLogger(t))
	require.NoError(t, err)
	defer deps.Close()

	assert.NotNil(t, deps.Primary)
	assert.Nil(t, deps.Fallback)
	assert.NotNil(t, deps.Engine)

	resp := deps.Health.Check(context.Background())
	assert.Equal(t, health.StatusDegraded, resp.Status, "missing fallback degrades health")
	assert.Equal(t, health.StatusHealthy, resp.Dependencies["store"].Status)
	assert.Equal(t, health.StatusHealthy, resp.Dependencies["primary"].Status)
}

func TestRouterEndpoints(t *testing.T) {
	clearProviderEnv(t)
	server := mockProvider(t, `{"questions":[{"question":"What is an interface?"}]}`)
	cfg, err := config.Load(writeConfig(t, server.URL))
	require.NoError(t, err)

	logger := zaptest.NewLogger(t)
	deps, err := initializeDependencies(cfg, logger)
	require.NoError(t, err)
	defer deps.Close()

	gin.SetMode(gin.TestMode)
	router := newRouter(deps, config.ServerConfig{CORSOrigins: []string{"http://localhost:3000"}}, logger)

	t.Run("health", func(t *testing.T) {
		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
		assert.Equal(t, http.StatusOK, w.Code)
	})

	t.Run("metrics", func(t *testing.T) {
		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
		assert.Equal(t, http.StatusOK, w.Code)
		assert.Contains(t, w.Body.String(), "questiongen_")
	})

	t.Run("cors preflight", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodOptions, "/api/v1/questions/generate", nil)
		req.Header.Set("Origin", "http://localhost:3000")
		req.Header.Set("Access-Control-Request-Method", http.MethodPost)
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusNoContent, w.Code)
		assert.Equal(t, "http://localhost:3000", w.Header().Get("Access-Control-Allow-Origin"))
	})

	t.Run("generate", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/questions/generate",
			strings.NewReader(`{"topic":"Go","count":1}`))
		req.Header.Set("Content-Type", "application/json")
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
		assert.Contains(t, w.Body.String(), "What is an interface?")
		assert.NotEmpty(t, w.Header().Get("X-Request-ID"))
	})
}

func TestInitializeLogger(t *testing.T) {
	tests := []struct {
		level string
		want  zapcore.Level
	}{
		{"debug", zapcore.DebugLevel},
		{"WARN", zapcore.WarnLevel},
		{"error", zapcore.ErrorLevel},
		{"bogus", zapcore.InfoLevel},
	}

	for _, tt := range tests {
		t.Run(tt.level, func(t *testing.T) {
			cfg := &config.Config{Logging: config.LoggingConfig{Level: tt.level, Format: "json", Output: "stderr"}}
			logger, level, err := initializeLogger(cfg)
			require.NoError(t, err)
			require.NotNil(t, logger)
			assert.Equal(t, tt.want, level.Level())

			level.SetLevel(zapcore.ErrorLevel)
			assert.False(t, logger.Core().Enabled(zapcore.InfoLevel))
		})
	}
}

func TestProviderConfig(t *testing.T) {
	got := providerConfig("primary", config.ProviderConfig{
		APIKey:           "key",
		Endpoint:         "http://localhost/v1",
		Model:            "gpt-4o-mini",
		Timeout:          3 * time.Second,
		Temperature:      0.9,
		TopP:             0.95,
		MaxTokens:        2000,
		FrequencyPenalty: 0.6,
		PresencePenalty:  0.6,
		BreakerFailures:  4,
	})

	assert.Equal(t, "primary", got.Name)
	assert.InDelta(t, 0.9, got.Temperature, 1e-6)
	assert.InDelta(t, 0.95, got.TopP, 1e-6)
	assert.InDelta(t, 0.6, got.FrequencyPenalty, 1e-6)
	assert.Equal(t, 2000, got.MaxTokens)
	assert.Equal(t, 4, got.BreakerFailures)
	assert.Equal(t, 3*time.Second, got.Timeout)
}

func TestGinMode(t *testing.T) {
	assert.Equal(t, gin.DebugMode, ginMode("debug"))
	assert.Equal(t, gin.TestMode, ginMode("test"))
	assert.Equal(t, gin.ReleaseMode, ginMode(""))
	assert.Equal(t, gin.ReleaseMode, ginMode("production"))
}
