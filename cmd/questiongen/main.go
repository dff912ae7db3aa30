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

// Package main provides the questiongen command: an HTTP service and a
// one-shot CLI that generate unique interview questions for a topic.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/sync/errgroup"

	"github.com/your-org/interview-questions/internal/api"
	"github.com/your-org/interview-questions/internal/config"
	"github.com/your-org/interview-questions/internal/generator"
	"github.com/your-org/interview-questions/internal/health"
	"github.com/your-org/interview-questions/internal/history"
	"github.com/your-org/interview-questions/internal/metrics"
	"github.com/your-org/interview-questions/internal/provider"
	"github.com/your-org/interview-questions/internal/store"
)

const (
	serviceName    = "questiongen"
	serviceVersion = "1.0.0"
	// HealthCheckTimeout bounds each dependency check
	HealthCheckTimeout = 5 * time.Second
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var configPath string

	rootCmd := &cobra.Command{
		Use:          serviceName,
		Short:        "Generate unique interview questions with an LLM",
		SilenceUsage: true,
	}
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to config file")

	rootCmd.AddCommand(newServeCmd(&configPath), newGenerateCmd(&configPath))
	return rootCmd
}

func newServeCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(*configPath)
			if err != nil {
				return fmt.Errorf("failed to load configuration: %w", err)
			}

			logger, level, err := initializeLogger(cfg)
			if err != nil {
				return fmt.Errorf("failed to initialize logger: %w", err)
			}
			defer func() { _ = logger.Sync() }()

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			return serve(ctx, cfg, *configPath, logger, level)
		},
	}
}

func newGenerateCmd(configPath *string) *cobra.Command {
	var (
		topic       string
		count       int
		sessionID   string
		userID      string
		maxAttempts int
	)

	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Generate questions once and print them as JSON",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(*configPath)
			if err != nil {
				return fmt.Errorf("failed to load configuration: %w", err)
			}

			// Keep stdout for the JSON result
			cfg.Logging.Output = "stderr"
			logger, _, err := initializeLogger(cfg)
			if err != nil {
				return fmt.Errorf("failed to initialize logger: %w", err)
			}
			defer func() { _ = logger.Sync() }()

			deps, err := initializeDependencies(cfg, logger)
			if err != nil {
				return err
			}
			defer deps.Close()

			questions, err := deps.Engine.GenerateUniqueQuestions(cmd.Context(), generator.Request{
				Topic:       topic,
				Count:       count,
				SessionID:   sessionID,
				UserID:      userID,
				MaxAttempts: maxAttempts,
			})
			if err != nil {
				return err
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(map[string]interface{}{"questions": questions})
		},
	}

	cmd.Flags().StringVar(&topic, "topic", "", "interview topic")
	cmd.Flags().IntVar(&count, "count", 5, "number of questions")
	cmd.Flags().StringVar(&sessionID, "session", "", "session whose questions must not repeat")
	cmd.Flags().StringVar(&userID, "user", "", "user whose recent questions must not repeat")
	cmd.Flags().IntVar(&maxAttempts, "max-attempts", 0, "override the attempt budget")
	_ = cmd.MarkFlagRequired("topic")

	return cmd
}

// serve runs the HTTP server until ctx is cancelled
func serve(ctx context.Context, cfg *config.Config, configPath string, logger *zap.Logger, level zap.AtomicLevel) error {
	masked := cfg.MaskSensitiveValues()
	logger.Info("Configuration loaded successfully",
		zap.String("service", serviceName),
		zap.String("primary_endpoint", masked.Primary.Endpoint),
		zap.String("primary_model", masked.Primary.Model),
		zap.String("primary_api_key", masked.Primary.APIKey),
		zap.Bool("fallback_configured", cfg.Fallback.Configured()),
		zap.String("store_type", cfg.Store.Type),
		zap.Int("max_attempts", cfg.Generation.MaxAttempts),
	)

	deps, err := initializeDependencies(cfg, logger)
	if err != nil {
		return err
	}
	defer deps.Close()

	if err := config.WatchConfig(configPath, logger, func(updated *config.Config) {
		next, err := zapcore.ParseLevel(updated.Logging.Level)
		if err != nil {
			logger.Warn("Ignoring invalid log level", zap.String("level", updated.Logging.Level))
			return
		}
		level.SetLevel(next)
		logger.Info("Log level updated", zap.String("level", next.String()))
	}); err != nil {
		logger.Debug("Config watching disabled", zap.Error(err))
	}

	gin.SetMode(ginMode(cfg.Server.Mode))
	router := newRouter(deps, cfg.Server, logger)

	srv := &http.Server{
		Addr:              ":" + strconv.Itoa(cfg.Server.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		logger.Info("Starting questiongen service", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	})
	group.Go(func() error {
		<-groupCtx.Done()
		logger.Info("Shutting down questiongen service")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
		return nil
	})

	return group.Wait()
}

func newRouter(deps *dependencies, server config.ServerConfig, logger *zap.Logger) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery(), api.RequestIDMiddleware(), api.LoggingMiddleware(logger))

	if len(server.CORSOrigins) > 0 {
		router.Use(cors.New(cors.Config{
			AllowOrigins:  server.CORSOrigins,
			AllowMethods:  []string{http.MethodGet, http.MethodPost, http.MethodOptions},
			AllowHeaders:  []string{"Content-Type", api.RequestIDHeader},
			ExposeHeaders: []string{api.RequestIDHeader},
			MaxAge:        12 * time.Hour,
		}))
	}

	router.GET("/health", deps.Health.Handler())
	router.GET("/metrics", metrics.Handler())

	api.NewHandler(deps.Engine, deps.Store, logger).RegisterRoutes(router)
	return router
}

func ginMode(mode string) string {
	switch mode {
	case gin.DebugMode, gin.TestMode:
		return mode
	default:
		return gin.ReleaseMode
	}
}

// dependencies holds the wired service components
type dependencies struct {
	Store    store.SessionStore
	Primary  *provider.OpenAIClient
	Fallback *provider.OpenAIClient
	Engine   *generator.Engine
	Health   *health.Manager
	logger   *zap.Logger
}

// Close releases the session store
func (d *dependencies) Close() {
	if d.Store == nil {
		return
	}
	if err := d.Store.Close(); err != nil {
		d.logger.Warn("Failed to close session store", zap.Error(err))
	}
}

// initializeDependencies builds the store, providers and engine from cfg
func initializeDependencies(cfg *config.Config, logger *zap.Logger) (*dependencies, error) {
	logger.Info("Initializing service dependencies")

	sessions, err := store.New(store.Config{
		Type:        store.Type(cfg.Store.Type),
		SQLitePath:  cfg.Store.SQLitePath,
		RedisURL:    cfg.Store.RedisURL,
		RedisPrefix: cfg.Store.RedisPrefix,
		MaxSessions: cfg.Store.MaxSessions,
	}, logger)
	if err != nil {
		return nil, err
	}

	deps := &dependencies{Store: sessions, logger: logger}
	collector := metrics.NewCollector()

	if cfg.Primary.Configured() {
		deps.Primary, err = provider.NewOpenAIClient(providerConfig("primary", cfg.Primary), collector, logger)
		if err != nil {
			deps.Close()
			return nil, fmt.Errorf("failed to initialize primary provider: %w", err)
		}
	}
	if cfg.Fallback.Configured() {
		deps.Fallback, err = provider.NewOpenAIClient(providerConfig("fallback", cfg.Fallback), collector, logger)
		if err != nil {
			deps.Close()
			return nil, fmt.Errorf("failed to initialize fallback provider: %w", err)
		}
	}

	// Typed nil pointers must not reach the engine as non-nil interfaces
	var primary, fallback provider.Completer
	if deps.Primary != nil {
		primary = deps.Primary
	}
	if deps.Fallback != nil {
		fallback = deps.Fallback
	}

	gatherer := history.NewGatherer(sessions, cfg.Generation.UserHistoryLimit, logger)
	deps.Engine, err = generator.NewEngine(generator.Config{
		MaxAttempts:      cfg.Generation.MaxAttempts,
		MaxCount:         cfg.Generation.MaxCount,
		TransportBackoff: cfg.Generation.TransportBackoff,
		RecentExamples:   cfg.Generation.RecentExamples,
		Timeout:          cfg.Generation.Timeout,
	}, primary, fallback, gatherer, logger, generator.WithMetrics(collector))
	if err != nil {
		deps.Close()
		return nil, err
	}

	deps.Health = health.NewManager(serviceName, serviceVersion, logger)
	deps.Health.SetTimeout(HealthCheckTimeout)
	deps.Health.AddChecker("store", health.PingChecker("store", sessions.Ping))
	deps.Health.AddChecker("primary", providerChecker(cfg.Primary, deps.Primary, !cfg.Fallback.Configured()))
	deps.Health.AddChecker("fallback", providerChecker(cfg.Fallback, deps.Fallback, false))

	return deps, nil
}

func providerChecker(cfg config.ProviderConfig, client *provider.OpenAIClient, required bool) health.Checker {
	state := func() string { return "closed" }
	if client != nil {
		state = client.CircuitState
	}
	return health.ProviderChecker(cfg.Model, client != nil, required, state)
}

func providerConfig(name string, p config.ProviderConfig) provider.Config {
	return provider.Config{
		Name:               name,
		APIKey:             p.APIKey,
		Endpoint:           p.Endpoint,
		Model:              p.Model,
		Timeout:            p.Timeout,
		Temperature:        float32(p.Temperature),
		TopP:               float32(p.TopP),
		MaxTokens:          p.MaxTokens,
		FrequencyPenalty:   float32(p.FrequencyPenalty),
		PresencePenalty:    float32(p.PresencePenalty),
		RateLimitPerMinute: p.RateLimitPerMinute,
		BreakerFailures:    p.BreakerFailures,
		BreakerReset:       p.BreakerReset,
	}
}

// initializeLogger creates a logger based on configuration settings. The
// returned level can be changed at runtime.
func initializeLogger(cfg *config.Config) (*zap.Logger, zap.AtomicLevel, error) {
	var zapConfig zap.Config

	if cfg.Logging.Format == "json" {
		zapConfig = zap.NewProductionConfig()
	} else {
		zapConfig = zap.NewDevelopmentConfig()
	}

	level, err := zapcore.ParseLevel(strings.ToLower(cfg.Logging.Level))
	if err != nil {
		level = zapcore.InfoLevel
	}
	zapConfig.Level = zap.NewAtomicLevelAt(level)

	switch cfg.Logging.Output {
	case "file":
		zapConfig.OutputPaths = []string{serviceName + ".log"}
		zapConfig.ErrorOutputPaths = []string{serviceName + ".log"}
	case "stderr":
		zapConfig.OutputPaths = []string{"stderr"}
		zapConfig.ErrorOutputPaths = []string{"stderr"}
	default:
		zapConfig.OutputPaths = []string{"stdout"}
		zapConfig.ErrorOutputPaths = []string{"stderr"}
	}

	logger, err := zapConfig.Build()
	if err != nil {
		return nil, zap.AtomicLevel{}, err
	}
	return logger, zapConfig.Level, nil
}
