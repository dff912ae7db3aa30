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

// Package config loads service configuration from YAML files and the
// environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

var (
	// ErrMissingRequiredField is returned when a required configuration field is missing
	ErrMissingRequiredField = errors.New("missing required configuration field")
	// ErrInvalidConfigValue is returned when a configuration value is invalid
	ErrInvalidConfigValue = errors.New("invalid configuration value")
)

// EnvPrefix prefixes environment overrides, e.g. QUESTIONGEN_GENERATION_MAX_ATTEMPTS
const EnvPrefix = "QUESTIONGEN"

// MaxQuestionCount is the highest generation.max_count accepted
const MaxQuestionCount = 20

// Config represents the complete application configuration
type Config struct {
	Primary    ProviderConfig   `mapstructure:"primary"`
	Fallback   ProviderConfig   `mapstructure:"fallback"`
	Generation GenerationConfig `mapstructure:"generation"`
	Store      StoreConfig      `mapstructure:"store"`
	Server     ServerConfig     `mapstructure:"server"`
	Logging    LoggingConfig    `mapstructure:"logging"`
}

// ProviderConfig describes one OpenAI-compatible completion endpoint
type ProviderConfig struct {
	APIKey             string        `mapstructure:"apikey"`
	Endpoint           string        `mapstructure:"endpoint"`
	Model              string        `mapstructure:"model"`
	Timeout            time.Duration `mapstructure:"timeout"`
	Temperature        float64       `mapstructure:"temperature"`
	TopP               float64       `mapstructure:"top_p"`
	MaxTokens          int           `mapstructure:"max_tokens"`
	FrequencyPenalty   float64       `mapstructure:"frequency_penalty"`
	PresencePenalty    float64       `mapstructure:"presence_penalty"`
	RateLimitPerMinute int           `mapstructure:"rate_limit_per_minute"`
	BreakerFailures    int           `mapstructure:"breaker_failures"`
	BreakerReset       time.Duration `mapstructure:"breaker_reset"`
}

// Configured reports whether the provider has credentials
func (p ProviderConfig) Configured() bool {
	return strings.TrimSpace(p.APIKey) != ""
}

// GenerationConfig tunes the question generation loop
type GenerationConfig struct {
	MaxAttempts      int           `mapstructure:"max_attempts"`
	MaxCount         int           `mapstructure:"max_count"`
	TransportBackoff time.Duration `mapstructure:"transport_backoff"`
	RecentExamples   int           `mapstructure:"recent_examples"`
	UserHistoryLimit int           `mapstructure:"user_history_limit"`
	Timeout          time.Duration `mapstructure:"timeout"`
}

// StoreConfig selects the session store backend
type StoreConfig struct {
	Type        string `mapstructure:"type"`
	SQLitePath  string `mapstructure:"sqlite_path"`
	RedisURL    string `mapstructure:"redis_url"`
	RedisPrefix string `mapstructure:"redis_prefix"`
	MaxSessions int    `mapstructure:"max_sessions"`
}

// ServerConfig contains HTTP server settings
type ServerConfig struct {
	Port            int           `mapstructure:"port"`
	Mode            string        `mapstructure:"mode"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	// CORSOrigins enables CORS for the listed origins when non-empty
	CORSOrigins []string `mapstructure:"cors_origins"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	Output string `mapstructure:"output"`
}

// ValidationError represents a configuration validation error
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("configuration validation failed for field '%s': %s", e.Field, e.Message)
}

// LoadOptions contains options for configuration loading
type LoadOptions struct {
	ConfigPath       string
	ValidateRequired bool
}

// Load loads configuration from file and environment variables.
// Environment variables take precedence over config file values.
func Load(configPath string) (*Config, error) {
	return LoadWithOptions(LoadOptions{
		ConfigPath:       configPath,
		ValidateRequired: true,
	})
}

// LoadWithOptions loads configuration with additional options
func LoadWithOptions(opts LoadOptions) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	found, err := setConfigFile(v, opts.ConfigPath)
	if err != nil {
		return nil, fmt.Errorf("failed to set config file: %w", err)
	}

	// Enable environment variable overrides
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if found {
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	setEnvironmentMappings(v)

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if opts.ValidateRequired {
		if err := validateConfig(&config); err != nil {
			return nil, err
		}
	}

	return &config, nil
}

// setDefaults sets default configuration values
func setDefaults(v *viper.Viper) {
	for _, p := range []string{"primary", "fallback"} {
		v.SetDefault(p+".apikey", "")
		v.SetDefault(p+".model", "gpt-4o-mini")
		v.SetDefault(p+".timeout", 30*time.Second)
		v.SetDefault(p+".temperature", 0.9)
		v.SetDefault(p+".top_p", 0.95)
		v.SetDefault(p+".max_tokens", 2000)
		v.SetDefault(p+".frequency_penalty", 0.6)
		v.SetDefault(p+".presence_penalty", 0.6)
		v.SetDefault(p+".rate_limit_per_minute", 0)
		v.SetDefault(p+".breaker_failures", 5)
		v.SetDefault(p+".breaker_reset", 30*time.Second)
	}
	v.SetDefault("primary.endpoint", "https://api.openai.com/v1")
	v.SetDefault("fallback.endpoint", "")

	// Generation defaults
	v.SetDefault("generation.max_attempts", 5)
	v.SetDefault("generation.max_count", 20)
	v.SetDefault("generation.transport_backoff", 2*time.Second)
	v.SetDefault("generation.recent_examples", 10)
	v.SetDefault("generation.user_history_limit", 200)
	v.SetDefault("generation.timeout", time.Duration(0))

	// Store defaults
	v.SetDefault("store.type", "memory")
	v.SetDefault("store.sqlite_path", "./sessions.db")
	v.SetDefault("store.redis_url", "")
	v.SetDefault("store.redis_prefix", "questiongen:")
	v.SetDefault("store.max_sessions", 10000)

	// Server defaults
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.mode", "release")
	v.SetDefault("server.shutdown_timeout", 10*time.Second)
	v.SetDefault("server.cors_origins", []string{})

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.output", "stdout")
}

// setConfigFile points viper at the config file and reports whether one
// exists. Running without a file is allowed.
func setConfigFile(v *viper.Viper, configPath string) (bool, error) {
	if envPath := os.Getenv("CONFIG_PATH"); envPath != "" {
		if _, err := os.Stat(envPath); err != nil {
			return false, fmt.Errorf("config file specified by CONFIG_PATH does not exist: %s", envPath)
		}
		v.SetConfigFile(envPath)
		return true, nil
	}

	if configPath != "" {
		if _, err := os.Stat(configPath); err != nil {
			return false, fmt.Errorf("config file does not exist: %s", configPath)
		}
		v.SetConfigFile(configPath)
		return true, nil
	}

	for _, path := range []string{"./configs/config.yaml", "./config.yaml"} {
		if _, err := os.Stat(path); err == nil {
			v.SetConfigFile(path)
			return true, nil
		}
	}

	return false, nil
}

// setEnvironmentMappings sets explicit environment variable mappings
func setEnvironmentMappings(v *viper.Viper) {
	envMappings := map[string]string{
		"OPENAI_API_KEY":    "primary.apikey",
		"OPENAI_ENDPOINT":   "primary.endpoint",
		"OPENAI_MODEL":      "primary.model",
		"FALLBACK_API_KEY":  "fallback.apikey",
		"FALLBACK_ENDPOINT": "fallback.endpoint",
		"FALLBACK_MODEL":    "fallback.model",
		"STORE_TYPE":        "store.type",
		"SQLITE_PATH":       "store.sqlite_path",
		"REDIS_URL":         "store.redis_url",
		"PORT":              "server.port",
		"LOG_LEVEL":         "logging.level",
		"LOG_FORMAT":        "logging.format",
		"LOG_OUTPUT":        "logging.output",
	}

	for envVar, configKey := range envMappings {
		if value := os.Getenv(envVar); value != "" {
			v.Set(configKey, value)
		}
	}
}

// validateConfig collects every invalid field into one error
func validateConfig(config *Config) error {
	var errs []ValidationError

	if !config.Primary.Configured() && !config.Fallback.Configured() {
		errs = append(errs, ValidationError{
			Field:   "primary.apikey",
			Message: "an API key is required for the primary or fallback provider. Set via config file, OPENAI_API_KEY or FALLBACK_API_KEY",
		})
	}

	for name, p := range map[string]ProviderConfig{"primary": config.Primary, "fallback": config.Fallback} {
		if !p.Configured() {
			continue
		}
		if p.Endpoint == "" && name == "fallback" {
			errs = append(errs, ValidationError{
				Field:   "fallback.endpoint",
				Message: "fallback endpoint is required when a fallback API key is set",
			})
		}
		if p.Timeout <= 0 {
			errs = append(errs, ValidationError{Field: name + ".timeout", Message: "must be positive"})
		}
		if p.Temperature < 0 || p.Temperature > 2 {
			errs = append(errs, ValidationError{Field: name + ".temperature", Message: "must be between 0 and 2"})
		}
		if p.TopP < 0 || p.TopP > 1 {
			errs = append(errs, ValidationError{Field: name + ".top_p", Message: "must be between 0 and 1"})
		}
		if p.MaxTokens <= 0 {
			errs = append(errs, ValidationError{Field: name + ".max_tokens", Message: "must be positive"})
		}
		if p.RateLimitPerMinute < 0 {
			errs = append(errs, ValidationError{Field: name + ".rate_limit_per_minute", Message: "must not be negative"})
		}
	}

	if config.Generation.MaxAttempts <= 0 {
		errs = append(errs, ValidationError{Field: "generation.max_attempts", Message: "must be positive"})
	}
	if config.Generation.MaxCount <= 0 || config.Generation.MaxCount > MaxQuestionCount {
		errs = append(errs, ValidationError{
			Field:   "generation.max_count",
			Message: fmt.Sprintf("must be between 1 and %d", MaxQuestionCount),
		})
	}
	if config.Generation.TransportBackoff < 0 {
		errs = append(errs, ValidationError{Field: "generation.transport_backoff", Message: "must not be negative"})
	}

	switch config.Store.Type {
	case "memory":
	case "sqlite":
		if config.Store.SQLitePath == "" {
			errs = append(errs, ValidationError{Field: "store.sqlite_path", Message: "required for the sqlite store"})
		}
	case "redis":
		if config.Store.RedisURL == "" {
			errs = append(errs, ValidationError{
				Field:   "store.redis_url",
				Message: "required for the redis store. Set via config file or REDIS_URL environment variable",
			})
		}
	default:
		errs = append(errs, ValidationError{
			Field:   "store.type",
			Message: fmt.Sprintf("must be one of memory, sqlite, redis, got '%s'", config.Store.Type),
		})
	}

	if config.Server.Port <= 0 || config.Server.Port > 65535 {
		errs = append(errs, ValidationError{Field: "server.port", Message: "must be between 1 and 65535"})
	}

	validLevels := []string{"debug", "info", "warn", "error"}
	if !contains(validLevels, strings.ToLower(config.Logging.Level)) {
		errs = append(errs, ValidationError{
			Field:   "logging.level",
			Message: fmt.Sprintf("must be one of %v", validLevels),
		})
	}
	validFormats := []string{"json", "text"}
	if !contains(validFormats, config.Logging.Format) {
		errs = append(errs, ValidationError{
			Field:   "logging.format",
			Message: fmt.Sprintf("must be one of %v", validFormats),
		})
	}

	if len(errs) > 0 {
		messages := make([]string, 0, len(errs))
		for _, err := range errs {
			messages = append(messages, err.Error())
		}
		return fmt.Errorf("%w:\n%s", ErrInvalidConfigValue, strings.Join(messages, "\n"))
	}

	return nil
}

// MaskSensitiveValues returns a copy of the config with sensitive values masked
func (c *Config) MaskSensitiveValues() *Config {
	masked := *c

	if masked.Primary.APIKey != "" {
		masked.Primary.APIKey = maskValue(masked.Primary.APIKey)
	}
	if masked.Fallback.APIKey != "" {
		masked.Fallback.APIKey = maskValue(masked.Fallback.APIKey)
	}
	if masked.Store.RedisURL != "" {
		masked.Store.RedisURL = maskValue(masked.Store.RedisURL)
	}

	return &masked
}

// maskValue masks sensitive values, showing only the first 8 characters
func maskValue(value string) string {
	if len(value) <= 8 {
		return strings.Repeat("*", len(value))
	}
	return value[:8] + strings.Repeat("*", len(value)-8)
}

// contains checks if a slice contains a specific string
func contains(slice []string, item string) bool {
	for _, s := range slice {
		if s == item {
			return true
		}
	}
	return false
}

// WatchConfig reloads the config file on change and passes valid reloads
// to callback. It fails when no config file is in use.
func WatchConfig(configPath string, logger *zap.Logger, callback func(*Config)) error {
	if logger == nil {
		logger = zap.NewNop()
	}

	v := viper.New()
	found, err := setConfigFile(v, configPath)
	if err != nil {
		return err
	}
	if !found {
		return fmt.Errorf("%w: no config file to watch", ErrMissingRequiredField)
	}

	v.OnConfigChange(func(e fsnotify.Event) {
		logger.Info("Config file changed", zap.String("file", e.Name), zap.String("op", e.Op.String()))

		config, err := Load(configPath)
		if err != nil {
			logger.Warn("Failed to reload config, keeping previous", zap.Error(err))
			return
		}
		callback(config)
	})
	v.WatchConfig()

	return nil
}
