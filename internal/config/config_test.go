package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"log/slog"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	config := DefaultConfig()

	assert.Equal(t, "forecast-dashboard", config.AppName)
	assert.Equal(t, "1.0.0", config.Version)
	assert.Equal(t, int64(16<<20), config.Source.UploadMaxBytes)
	assert.Equal(t, 50, config.Pipeline.SampleSize)
	assert.True(t, config.Cache.Enabled)
	assert.Equal(t, "memory", config.Cache.Backend)
	assert.Equal(t, "5m", config.Cache.TTL)
	assert.Equal(t, ":8080", config.Server.Addr)
	assert.True(t, config.Demo.Enabled)
	assert.Equal(t, int64(42), config.Demo.Seed)
	assert.Equal(t, "info", config.Logging.Level)
}

func TestConfigValidation(t *testing.T) {
	logger := slog.Default()
	m := NewManager("", logger)

	t.Run("valid config passes validation", func(t *testing.T) {
		config := DefaultConfig()
		err := m.validateConfig(config)
		assert.NoError(t, err)
	})

	t.Run("path and url are mutually exclusive", func(t *testing.T) {
		config := DefaultConfig()
		config.Source.Path = "data.csv"
		config.Source.URL = "https://example.com/data.csv"
		err := m.validateConfig(config)
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "source.path and source.url are mutually exclusive")
	})

	t.Run("invalid upload limit fails", func(t *testing.T) {
		config := DefaultConfig()
		config.Source.UploadMaxBytes = 0
		err := m.validateConfig(config)
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "source.upload_max_bytes must be greater than 0")
	})

	t.Run("invalid http timeout fails", func(t *testing.T) {
		config := DefaultConfig()
		config.Source.HTTPTimeout = "not-a-duration"
		err := m.validateConfig(config)
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "source.http_timeout is not a valid duration")
	})

	t.Run("invalid sample size fails", func(t *testing.T) {
		config := DefaultConfig()
		config.Pipeline.SampleSize = 0
		err := m.validateConfig(config)
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "pipeline.sample_size must be greater than 0")
	})

	t.Run("invalid cache backend fails", func(t *testing.T) {
		config := DefaultConfig()
		config.Cache.Backend = "disk"
		err := m.validateConfig(config)
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "cache.backend must be one of")
	})

	t.Run("redis backend requires address", func(t *testing.T) {
		config := DefaultConfig()
		config.Cache.Backend = "redis"
		err := m.validateConfig(config)
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "cache.redis_addr is required")
	})

	t.Run("disabled cache skips backend validation", func(t *testing.T) {
		config := DefaultConfig()
		config.Cache.Enabled = false
		config.Cache.Backend = "disk"
		err := m.validateConfig(config)
		assert.NoError(t, err)
	})

	t.Run("missing server addr fails", func(t *testing.T) {
		config := DefaultConfig()
		config.Server.Addr = ""
		err := m.validateConfig(config)
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "server.addr is required")
	})

	t.Run("demo validation when enabled", func(t *testing.T) {
		config := DefaultConfig()
		config.Demo.Days = 0
		err := m.validateConfig(config)
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "demo.days must be greater than 0")
	})

	t.Run("invalid log level fails", func(t *testing.T) {
		config := DefaultConfig()
		config.Logging.Level = "invalid"
		err := m.validateConfig(config)
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "logging.level must be one of")
	})

	t.Run("invalid log format fails", func(t *testing.T) {
		config := DefaultConfig()
		config.Logging.Format = "invalid"
		err := m.validateConfig(config)
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "logging.format must be one of")
	})
}

func TestLoadConfigFromFile(t *testing.T) {
	tempDir := t.TempDir()
	configPath := filepath.Join(tempDir, "test_config.json")

	testConfig := DefaultConfig()
	testConfig.AppName = "test-app"
	testConfig.Version = "2.0.0"
	testConfig.Source.Path = "forecasts.csv"
	testConfig.Cache.TTL = "90s"
	testConfig.Logging.Level = "debug"
	testConfig.Logging.Format = "text"

	configData, err := json.MarshalIndent(testConfig, "", "  ")
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(configPath, configData, 0644))

	logger := slog.Default()
	m := NewManager(configPath, logger)

	t.Run("loads config from file", func(t *testing.T) {
		loadedConfig, err := m.Load()
		require.NoError(t, err)

		assert.Equal(t, "test-app", loadedConfig.AppName)
		assert.Equal(t, "2.0.0", loadedConfig.Version)
		assert.Equal(t, "forecasts.csv", loadedConfig.Source.Path)
		assert.Equal(t, "90s", loadedConfig.Cache.TTL)
		assert.Equal(t, "debug", loadedConfig.Logging.Level)
		assert.Equal(t, "text", loadedConfig.Logging.Format)
	})

	t.Run("handles invalid json file", func(t *testing.T) {
		invalidPath := filepath.Join(tempDir, "invalid.json")
		require.NoError(t, os.WriteFile(invalidPath, []byte("invalid json"), 0644))

		m := NewManager(invalidPath, logger)
		_, err := m.Load()
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "failed to parse config file")
	})

	t.Run("handles non-existent file gracefully", func(t *testing.T) {
		nonExistentPath := filepath.Join(tempDir, "does_not_exist.json")
		m := NewManager(nonExistentPath, logger)

		config, err := m.Load()
		assert.NoError(t, err)
		assert.NotNil(t, config)
		assert.Equal(t, "forecast-dashboard", config.AppName)
	})
}

func TestLoadConfigFromEnvironment(t *testing.T) {
	logger := slog.Default()
	m := NewManager("", logger)

	envVars := map[string]string{
		"APP_NAME":              "env-test-app",
		"VERSION":               "3.0.0",
		"SOURCE_URL":            "https://example.com/forecasts.csv",
		"UPLOAD_MAX_BYTES":      "1048576",
		"SOURCE_RATE_LIMIT":     "60",
		"PIPELINE_DATE_COLUMN":  "Period",
		"PIPELINE_VALUE_COLUMN": "Forecast_Cases",
		"PIPELINE_SAMPLE_SIZE":  "100",
		"CACHE_ENABLED":         "true",
		"CACHE_BACKEND":         "redis",
		"CACHE_TTL":             "2m",
		"CACHE_REDIS_ADDR":      "localhost:6379",
		"CACHE_REDIS_DB":        "3",
		"SERVER_ADDR":           ":9000",
		"DEMO_ENABLED":          "false",
		"DEMO_SEED":             "7",
		"LOG_LEVEL":             "error",
		"LOG_FORMAT":            "json",
	}
	for key, value := range envVars {
		t.Setenv(key, value)
	}

	t.Run("loads config from environment", func(t *testing.T) {
		config := DefaultConfig()
		m.loadFromEnv(config)

		assert.Equal(t, "env-test-app", config.AppName)
		assert.Equal(t, "3.0.0", config.Version)
		assert.Equal(t, "https://example.com/forecasts.csv", config.Source.URL)
		assert.Equal(t, int64(1048576), config.Source.UploadMaxBytes)
		assert.Equal(t, 60, config.Source.RateLimit)
		assert.Equal(t, "Period", config.Pipeline.DateColumn)
		assert.Equal(t, "Forecast_Cases", config.Pipeline.ValueColumn)
		assert.Equal(t, 100, config.Pipeline.SampleSize)
		assert.Equal(t, "redis", config.Cache.Backend)
		assert.Equal(t, "2m", config.Cache.TTL)
		assert.Equal(t, "localhost:6379", config.Cache.RedisAddr)
		assert.Equal(t, 3, config.Cache.RedisDB)
		assert.Equal(t, ":9000", config.Server.Addr)
		assert.False(t, config.Demo.Enabled)
		assert.Equal(t, int64(7), config.Demo.Seed)
		assert.Equal(t, "error", config.Logging.Level)
		assert.Equal(t, "json", config.Logging.Format)
	})

	t.Run("handles invalid numeric values", func(t *testing.T) {
		t.Setenv("PIPELINE_SAMPLE_SIZE", "not-a-number")

		config := DefaultConfig()
		originalSampleSize := config.Pipeline.SampleSize

		m.loadFromEnv(config)
		assert.Equal(t, originalSampleSize, config.Pipeline.SampleSize)
	})
}

func TestSaveConfig(t *testing.T) {
	tempDir := t.TempDir()
	configPath := filepath.Join(tempDir, "save_test.json")

	logger := slog.Default()
	m := NewManager(configPath, logger)
	m.config = DefaultConfig()
	m.config.AppName = "saved-config-test"
	m.config.Version = "4.0.0"

	t.Run("saves config to file", func(t *testing.T) {
		err := m.Save()
		require.NoError(t, err)

		data, err := os.ReadFile(configPath)
		require.NoError(t, err)

		var savedConfig AppConfig
		err = json.Unmarshal(data, &savedConfig)
		require.NoError(t, err)

		assert.Equal(t, "saved-config-test", savedConfig.AppName)
		assert.Equal(t, "4.0.0", savedConfig.Version)
	})

	t.Run("creates directory if not exists", func(t *testing.T) {
		nestedPath := filepath.Join(tempDir, "nested", "dir", "config.json")
		m := NewManager(nestedPath, logger)
		m.config = DefaultConfig()

		err := m.Save()
		assert.NoError(t, err)
		assert.FileExists(t, nestedPath)
	})

	t.Run("fails when no config path specified", func(t *testing.T) {
		m := NewManager("", logger)
		m.config = DefaultConfig()

		err := m.Save()
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "no config path specified")
	})
}

func TestDurationAccessors(t *testing.T) {
	config := DefaultConfig()
	assert.Equal(t, 30*time.Second, config.HTTPTimeoutDuration())
	assert.Equal(t, 5*time.Minute, config.CacheTTLDuration())

	config.Source.HTTPTimeout = "garbage"
	config.Cache.TTL = "garbage"
	assert.Equal(t, 30*time.Second, config.HTTPTimeoutDuration())
	assert.Equal(t, 5*time.Minute, config.CacheTTLDuration())
}

func TestConfigString(t *testing.T) {
	config := DefaultConfig()
	config.Cache.RedisPassword = "secret-value"

	configStr := config.String()

	assert.Contains(t, configStr, "forecast-dashboard")
	assert.Contains(t, configStr, "memory")

	assert.Contains(t, configStr, "[REDACTED]")
	assert.NotContains(t, configStr, "secret-value")
}

func TestCompleteConfigFlow(t *testing.T) {
	tempDir := t.TempDir()
	configPath := filepath.Join(tempDir, "complete_test.json")

	initialConfig := DefaultConfig()
	initialConfig.AppName = "flow-test"
	initialConfig.Source.Path = "file-source.csv"
	initialConfig.Cache.TTL = "1m"

	configData, err := json.MarshalIndent(initialConfig, "", "  ")
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(configPath, configData, 0644))

	t.Setenv("CACHE_TTL", "10m")
	t.Setenv("LOG_LEVEL", "debug")

	logger := slog.Default()
	m := NewManager(configPath, logger)

	t.Run("complete load flow with precedence", func(t *testing.T) {
		config, err := m.Load()
		require.NoError(t, err)

		// Values from file
		assert.Equal(t, "flow-test", config.AppName)
		assert.Equal(t, "file-source.csv", config.Source.Path)

		// Values overridden by environment
		assert.Equal(t, "10m", config.Cache.TTL)
		assert.Equal(t, "debug", config.Logging.Level)

		// Default values for unspecified fields
		assert.Equal(t, ":8080", config.Server.Addr)
	})
}
