// Package config provides centralized configuration management for the
// forecast dashboard components. It handles configuration loading from
// multiple sources (files, environment variables), validation, and provides
// typed configuration structures for the pipeline, cache, server, and demo
// subsystems.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"log/slog"
)

// AppConfig represents the complete application configuration
type AppConfig struct {
	// Application metadata
	AppName    string `json:"app_name" env:"APP_NAME"`
	Version    string `json:"version" env:"VERSION"`
	ConfigPath string `json:"-" env:"CONFIG_PATH"`

	// Source configuration
	Source SourceConfig `json:"source"`

	// Pipeline configuration
	Pipeline PipelineConfig `json:"pipeline"`

	// Cache configuration
	Cache CacheConfig `json:"cache"`

	// Server configuration
	Server ServerConfig `json:"server"`

	// Demo data configuration
	Demo DemoConfig `json:"demo"`

	// Logging configuration
	Logging LoggingConfig `json:"logging"`
}

// SourceConfig configures where forecast data is loaded from
type SourceConfig struct {
	Path           string            `json:"path" env:"SOURCE_PATH"`                       // Local CSV file path
	URL            string            `json:"url" env:"SOURCE_URL"`                         // Remote CSV endpoint
	UploadMaxBytes int64             `json:"upload_max_bytes" env:"UPLOAD_MAX_BYTES"`      // Maximum accepted upload size
	HTTPTimeout    string            `json:"http_timeout" env:"SOURCE_HTTP_TIMEOUT"`       // HTTP request timeout
	RateLimit      int               `json:"rate_limit" env:"SOURCE_RATE_LIMIT"`           // Requests per minute for remote fetches
	RetryPolicy    RetryPolicyConfig `json:"retry_policy"`                                 // Retry configuration for remote fetches
}

// PipelineConfig configures the normalization pipeline
type PipelineConfig struct {
	DateColumn  string `json:"date_column" env:"PIPELINE_DATE_COLUMN"`   // Explicit date column, empty for auto-detect
	ValueColumn string `json:"value_column" env:"PIPELINE_VALUE_COLUMN"` // Explicit value column, empty for auto-detect
	SampleSize  int    `json:"sample_size" env:"PIPELINE_SAMPLE_SIZE"`   // Cells sampled per column during classification
}

// CacheConfig configures the pipeline result cache
type CacheConfig struct {
	Enabled       bool   `json:"enabled" env:"CACHE_ENABLED"`               // Enable result caching
	Backend       string `json:"backend" env:"CACHE_BACKEND"`               // "memory", "redis"
	TTL           string `json:"ttl" env:"CACHE_TTL"`                       // Entry time to live
	RedisAddr     string `json:"redis_addr" env:"CACHE_REDIS_ADDR"`         // Redis host:port
	RedisPassword string `json:"redis_password" env:"CACHE_REDIS_PASSWORD"` // Redis auth password
	RedisDB       int    `json:"redis_db" env:"CACHE_REDIS_DB"`             // Redis database number
}

// ServerConfig configures the dashboard HTTP server
type ServerConfig struct {
	Addr            string `json:"addr" env:"SERVER_ADDR"`                         // Listen address
	ReadTimeout     string `json:"read_timeout" env:"SERVER_READ_TIMEOUT"`         // Request read timeout
	WriteTimeout    string `json:"write_timeout" env:"SERVER_WRITE_TIMEOUT"`       // Response write timeout
	ShutdownTimeout string `json:"shutdown_timeout" env:"SERVER_SHUTDOWN_TIMEOUT"` // Graceful shutdown timeout
}

// DemoConfig configures generated demonstration data
type DemoConfig struct {
	Enabled  bool  `json:"enabled" env:"DEMO_ENABLED"`   // Fall back to demo data when no source resolves
	Days     int   `json:"days" env:"DEMO_DAYS"`         // Length of the generated forecast series
	Seed     int64 `json:"seed" env:"DEMO_SEED"`         // Seed for deterministic generation
	Patients int   `json:"patients" env:"DEMO_PATIENTS"` // Number of generated patient records
}

// LoggingConfig configures structured logging
type LoggingConfig struct {
	Level         string            `json:"level" env:"LOG_LEVEL"`             // Log level: debug, info, warn, error
	Format        string            `json:"format" env:"LOG_FORMAT"`           // Log format: json, text
	Output        string            `json:"output" env:"LOG_OUTPUT"`           // Output: stdout, stderr, file
	FilePath      string            `json:"file_path" env:"LOG_FILE_PATH"`     // Log file path
	MaxSize       int               `json:"max_size" env:"LOG_MAX_SIZE"`       // Maximum log file size in MB
	MaxBackups    int               `json:"max_backups" env:"LOG_MAX_BACKUPS"` // Maximum log file backups
	MaxAge        int               `json:"max_age" env:"LOG_MAX_AGE"`         // Maximum log file age in days
	Compress      bool              `json:"compress" env:"LOG_COMPRESS"`       // Compress old log files
	ContextFields map[string]string `json:"context_fields"`                    // Additional context fields
}

// RetryPolicyConfig configures retry behavior for remote fetches
type RetryPolicyConfig struct {
	MaxAttempts  int    `json:"max_attempts"`  // Maximum retry attempts
	InitialDelay string `json:"initial_delay"` // Initial delay between retries
	MaxDelay     string `json:"max_delay"`     // Maximum delay between retries
}

// Manager handles configuration loading and validation
type Manager struct {
	config     *AppConfig
	configPath string
	logger     *slog.Logger
}

// NewManager creates a new configuration manager
func NewManager(configPath string, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}

	return &Manager{
		configPath: configPath,
		logger:     logger,
	}
}

// Load loads configuration from multiple sources with priority order:
// 1. Environment variables (highest priority)
// 2. Configuration file
// 3. Default values (lowest priority)
func (m *Manager) Load() (*AppConfig, error) {
	config := DefaultConfig()

	if m.configPath != "" {
		if err := m.loadFromFile(config); err != nil {
			return nil, fmt.Errorf("failed to load config from file: %w", err)
		}
	}

	m.loadFromEnv(config)

	if err := m.validateConfig(config); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	m.config = config
	m.logger.Info("configuration loaded successfully",
		"config_path", m.configPath,
		"cache_backend", config.Cache.Backend,
		"server_addr", config.Server.Addr,
		"log_level", config.Logging.Level)

	return config, nil
}

// loadFromFile loads configuration from a JSON file
func (m *Manager) loadFromFile(config *AppConfig) error {
	if _, err := os.Stat(m.configPath); os.IsNotExist(err) {
		m.logger.Debug("config file does not exist, using defaults", "path", m.configPath)
		return nil
	}

	data, err := os.ReadFile(m.configPath)
	if err != nil {
		return fmt.Errorf("failed to read config file %s: %w", m.configPath, err)
	}

	if err := json.Unmarshal(data, config); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", m.configPath, err)
	}

	m.logger.Debug("loaded configuration from file", "path", m.configPath)
	return nil
}

// loadFromEnv loads configuration from environment variables
func (m *Manager) loadFromEnv(config *AppConfig) {
	if val := os.Getenv("APP_NAME"); val != "" {
		config.AppName = val
	}
	if val := os.Getenv("VERSION"); val != "" {
		config.Version = val
	}

	// Source config
	if val := os.Getenv("SOURCE_PATH"); val != "" {
		config.Source.Path = val
	}
	if val := os.Getenv("SOURCE_URL"); val != "" {
		config.Source.URL = val
	}
	if val := os.Getenv("UPLOAD_MAX_BYTES"); val != "" {
		if maxBytes, err := strconv.ParseInt(val, 10, 64); err == nil {
			config.Source.UploadMaxBytes = maxBytes
		}
	}
	if val := os.Getenv("SOURCE_HTTP_TIMEOUT"); val != "" {
		config.Source.HTTPTimeout = val
	}
	if val := os.Getenv("SOURCE_RATE_LIMIT"); val != "" {
		if rateLimit, err := strconv.Atoi(val); err == nil {
			config.Source.RateLimit = rateLimit
		}
	}

	// Pipeline config
	if val := os.Getenv("PIPELINE_DATE_COLUMN"); val != "" {
		config.Pipeline.DateColumn = val
	}
	if val := os.Getenv("PIPELINE_VALUE_COLUMN"); val != "" {
		config.Pipeline.ValueColumn = val
	}
	if val := os.Getenv("PIPELINE_SAMPLE_SIZE"); val != "" {
		if sampleSize, err := strconv.Atoi(val); err == nil {
			config.Pipeline.SampleSize = sampleSize
		}
	}

	// Cache config
	if val := os.Getenv("CACHE_ENABLED"); val != "" {
		config.Cache.Enabled = val == "true"
	}
	if val := os.Getenv("CACHE_BACKEND"); val != "" {
		config.Cache.Backend = val
	}
	if val := os.Getenv("CACHE_TTL"); val != "" {
		config.Cache.TTL = val
	}
	if val := os.Getenv("CACHE_REDIS_ADDR"); val != "" {
		config.Cache.RedisAddr = val
	}
	if val := os.Getenv("CACHE_REDIS_PASSWORD"); val != "" {
		config.Cache.RedisPassword = val
	}
	if val := os.Getenv("CACHE_REDIS_DB"); val != "" {
		if db, err := strconv.Atoi(val); err == nil {
			config.Cache.RedisDB = db
		}
	}

	// Server config
	if val := os.Getenv("SERVER_ADDR"); val != "" {
		config.Server.Addr = val
	}
	if val := os.Getenv("SERVER_READ_TIMEOUT"); val != "" {
		config.Server.ReadTimeout = val
	}
	if val := os.Getenv("SERVER_WRITE_TIMEOUT"); val != "" {
		config.Server.WriteTimeout = val
	}

	// Demo config
	if val := os.Getenv("DEMO_ENABLED"); val != "" {
		config.Demo.Enabled = val == "true"
	}
	if val := os.Getenv("DEMO_DAYS"); val != "" {
		if days, err := strconv.Atoi(val); err == nil {
			config.Demo.Days = days
		}
	}
	if val := os.Getenv("DEMO_SEED"); val != "" {
		if seed, err := strconv.ParseInt(val, 10, 64); err == nil {
			config.Demo.Seed = seed
		}
	}
	if val := os.Getenv("DEMO_PATIENTS"); val != "" {
		if patients, err := strconv.Atoi(val); err == nil {
			config.Demo.Patients = patients
		}
	}

	// Logging config
	if val := os.Getenv("LOG_LEVEL"); val != "" {
		config.Logging.Level = val
	}
	if val := os.Getenv("LOG_FORMAT"); val != "" {
		config.Logging.Format = val
	}
	if val := os.Getenv("LOG_OUTPUT"); val != "" {
		config.Logging.Output = val
	}
	if val := os.Getenv("LOG_FILE_PATH"); val != "" {
		config.Logging.FilePath = val
	}

	m.logger.Debug("loaded configuration from environment variables")
}

// validateConfig validates the configuration for consistency and required fields
func (m *Manager) validateConfig(config *AppConfig) error {
	var errors []string

	// Validate source configuration
	if config.Source.Path != "" && config.Source.URL != "" {
		errors = append(errors, "source.path and source.url are mutually exclusive")
	}
	if config.Source.UploadMaxBytes <= 0 {
		errors = append(errors, "source.upload_max_bytes must be greater than 0")
	}
	if _, err := time.ParseDuration(config.Source.HTTPTimeout); err != nil {
		errors = append(errors, fmt.Sprintf("source.http_timeout is not a valid duration: %v", err))
	}
	if config.Source.RateLimit <= 0 {
		errors = append(errors, "source.rate_limit must be greater than 0")
	}

	// Validate pipeline configuration
	if config.Pipeline.SampleSize <= 0 {
		errors = append(errors, "pipeline.sample_size must be greater than 0")
	}

	// Validate cache configuration
	if config.Cache.Enabled {
		validBackends := map[string]bool{"memory": true, "redis": true}
		if !validBackends[config.Cache.Backend] {
			errors = append(errors, "cache.backend must be one of: memory, redis")
		}
		if _, err := time.ParseDuration(config.Cache.TTL); err != nil {
			errors = append(errors, fmt.Sprintf("cache.ttl is not a valid duration: %v", err))
		}
		if config.Cache.Backend == "redis" && config.Cache.RedisAddr == "" {
			errors = append(errors, "cache.redis_addr is required for the redis backend")
		}
	}

	// Validate server configuration
	if config.Server.Addr == "" {
		errors = append(errors, "server.addr is required")
	}
	for name, value := range map[string]string{
		"server.read_timeout":     config.Server.ReadTimeout,
		"server.write_timeout":    config.Server.WriteTimeout,
		"server.shutdown_timeout": config.Server.ShutdownTimeout,
	} {
		if _, err := time.ParseDuration(value); err != nil {
			errors = append(errors, fmt.Sprintf("%s is not a valid duration: %v", name, err))
		}
	}

	// Validate demo configuration
	if config.Demo.Enabled {
		if config.Demo.Days <= 0 {
			errors = append(errors, "demo.days must be greater than 0")
		}
		if config.Demo.Patients < 0 {
			errors = append(errors, "demo.patients must not be negative")
		}
	}

	// Validate logging configuration
	validLogLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLogLevels[config.Logging.Level] {
		errors = append(errors, "logging.level must be one of: debug, info, warn, error")
	}

	validLogFormats := map[string]bool{"json": true, "text": true}
	if !validLogFormats[config.Logging.Format] {
		errors = append(errors, "logging.format must be one of: json, text")
	}

	if len(errors) > 0 {
		return fmt.Errorf("configuration validation errors:\n- %s", strings.Join(errors, "\n- "))
	}

	return nil
}

// Get returns the current configuration
func (m *Manager) Get() *AppConfig {
	return m.config
}

// Save saves the current configuration to the config file
func (m *Manager) Save() error {
	if m.configPath == "" {
		return fmt.Errorf("no config path specified")
	}

	if err := os.MkdirAll(filepath.Dir(m.configPath), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := json.MarshalIndent(m.config, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal configuration: %w", err)
	}

	if err := os.WriteFile(m.configPath, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	m.logger.Info("configuration saved", "path", m.configPath)
	return nil
}

// DefaultConfig returns a configuration with sensible defaults
func DefaultConfig() *AppConfig {
	return &AppConfig{
		AppName: "forecast-dashboard",
		Version: "1.0.0",
		Source: SourceConfig{
			UploadMaxBytes: 16 << 20, // 16MB
			HTTPTimeout:    "30s",
			RateLimit:      30,
			RetryPolicy: RetryPolicyConfig{
				MaxAttempts:  3,
				InitialDelay: "500ms",
				MaxDelay:     "10s",
			},
		},
		Pipeline: PipelineConfig{
			SampleSize: 50,
		},
		Cache: CacheConfig{
			Enabled: true,
			Backend: "memory",
			TTL:     "5m",
			RedisDB: 0,
		},
		Server: ServerConfig{
			Addr:            ":8080",
			ReadTimeout:     "15s",
			WriteTimeout:    "30s",
			ShutdownTimeout: "10s",
		},
		Demo: DemoConfig{
			Enabled:  true,
			Days:     30,
			Seed:     42,
			Patients: 25,
		},
		Logging: LoggingConfig{
			Level:      "info",
			Format:     "json",
			Output:     "stdout",
			FilePath:   "",
			MaxSize:    100, // 100MB
			MaxBackups: 5,
			MaxAge:     30, // 30 days
			Compress:   true,
			ContextFields: map[string]string{
				"service": "forecast-dashboard",
				"version": "1.0.0",
			},
		},
	}
}

// HTTPTimeoutDuration returns the parsed source HTTP timeout
func (c *AppConfig) HTTPTimeoutDuration() time.Duration {
	d, err := time.ParseDuration(c.Source.HTTPTimeout)
	if err != nil {
		return 30 * time.Second
	}
	return d
}

// CacheTTLDuration returns the parsed cache entry time to live
func (c *AppConfig) CacheTTLDuration() time.Duration {
	d, err := time.ParseDuration(c.Cache.TTL)
	if err != nil {
		return 5 * time.Minute
	}
	return d
}

// String returns a string representation of the configuration (excluding sensitive data)
func (c *AppConfig) String() string {
	sanitized := *c
	if sanitized.Cache.RedisPassword != "" {
		sanitized.Cache.RedisPassword = "[REDACTED]"
	}

	data, _ := json.MarshalIndent(&sanitized, "", "  ")
	return string(data)
}
