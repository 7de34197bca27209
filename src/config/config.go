package config

import (
	"fmt"
	"os"

	"regatta-live/src/helpers"
	"regatta-live/src/models"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

// Defaults applied when the YAML file leaves a tracking or replay value unset.
const (
	DefaultStaleAfterMs     int64   = 120_000
	DefaultIdleEvictSeconds         = 900
	DefaultSubscriberBuffer         = 256
	DefaultTrackQueueSize           = 1024
	DefaultMaxWindowMinutes         = 360
	DefaultReplayHz         float64 = 1
	DefaultRetentionDays            = 30
)

// -----------------------------------------------------------------------------

// Config wraps models.MConfig and provides business logic methods
type Config struct {
	*models.MConfig
}

// -----------------------------------------------------------------------------

// NewConfig creates a new MConfig instance from YAML file
func NewConfig(configPath string) (*Config, error) {
	// 1. Read the YAML file content
	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file '%s': %w", configPath, err)
	}

	return Parse(data)
}

// -----------------------------------------------------------------------------

// Parse builds a validated Config from YAML bytes plus TRACKER_* environment overrides.
func Parse(data []byte) (*Config, error) {
	// 1. Unmarshal data into the models struct
	var modelConfig models.MConfig
	if err := yaml.Unmarshal(data, &modelConfig); err != nil {
		return nil, fmt.Errorf("failed to parse config from YAML: %w", err)
	}

	// 2. Environment wins over the file
	if err := env.Parse(&modelConfig); err != nil {
		return nil, fmt.Errorf("failed to parse config from environment: %w", err)
	}

	config := &Config{MConfig: &modelConfig}
	config.ApplyDefaults()

	// 3. Validate the loaded configuration
	if err := config.Validate(); err != nil {
		return nil, helpers.NewConfiguration("config validation failed: %v", err)
	}

	return config, nil
}

// -----------------------------------------------------------------------------

// ApplyDefaults fills zero values that have a sensible default.
func (c *Config) ApplyDefaults() {
	if c.LogLevel == "" {
		c.LogLevel = "INFO"
	}
	if c.Storage.DBType == "" {
		c.Storage.DBType = "sqlite"
	}
	if c.Storage.RetentionDays == 0 {
		c.Storage.RetentionDays = DefaultRetentionDays
	}
	if c.Tracking.StaleAfterMs == 0 {
		c.Tracking.StaleAfterMs = DefaultStaleAfterMs
	}
	if c.Tracking.IdleEvictSeconds == 0 {
		c.Tracking.IdleEvictSeconds = DefaultIdleEvictSeconds
	}
	if c.Tracking.SubscriberBuffer == 0 {
		c.Tracking.SubscriberBuffer = DefaultSubscriberBuffer
	}
	if c.Tracking.TrackQueueSize == 0 {
		c.Tracking.TrackQueueSize = DefaultTrackQueueSize
	}
	if c.Replay.MaxWindowMinutes == 0 {
		c.Replay.MaxWindowMinutes = DefaultMaxWindowMinutes
	}
	if c.Replay.DefaultHz == 0 {
		c.Replay.DefaultHz = DefaultReplayHz
	}
}

// -----------------------------------------------------------------------------

// Validate performs basic configuration validation
func (c *Config) Validate() error {
	if c.Name == "" {
		return fmt.Errorf("application name cannot be empty")
	}

	// Validate Server configuration
	if c.Host == "" {
		return fmt.Errorf("server host cannot be empty")
	}
	if c.Port <= 1024 || c.Port > 65535 {
		return fmt.Errorf("invalid server port number: %d (must be between 1025 and 65535)", c.Port)
	}
	if c.GrpcPort != 0 && (c.GrpcPort <= 1024 || c.GrpcPort > 65535) {
		return fmt.Errorf("invalid grpc port number: %d (must be between 1025 and 65535)", c.GrpcPort)
	}

	// Validate Storage configuration
	switch c.Storage.DBType {
	case "sqlite", "badger":
		if c.Storage.DBPath == "" {
			return fmt.Errorf("database path cannot be empty for %s", c.Storage.DBType)
		}
	case "postgres":
		if c.Storage.DBConnectionString == "" {
			return fmt.Errorf("database connection string cannot be empty for postgres")
		}
	case "memory":
	default:
		return fmt.Errorf("unsupported database type: %s", c.Storage.DBType)
	}
	if c.Storage.RetentionDays < 0 {
		return fmt.Errorf("retention days cannot be negative")
	}

	// Validate Tracking configuration
	if c.Tracking.StaleAfterMs < 0 {
		return fmt.Errorf("stale_after_ms cannot be negative")
	}
	if c.Tracking.IdleEvictSeconds < 0 {
		return fmt.Errorf("idle_evict_seconds cannot be negative")
	}
	if c.Tracking.SubscriberBuffer <= 0 {
		return fmt.Errorf("subscriber buffer must be greater than 0")
	}
	if c.Tracking.TrackQueueSize <= 0 {
		return fmt.Errorf("track queue size must be greater than 0")
	}

	// Validate Replay configuration
	if c.Replay.MaxWindowMinutes <= 0 {
		return fmt.Errorf("replay max window must be greater than 0")
	}
	if c.Replay.DefaultHz < 0.1 || c.Replay.DefaultHz > 10 {
		return fmt.Errorf("replay default hz must be within [0.1, 10], got %v", c.Replay.DefaultHz)
	}

	// Validate Ingest configuration
	if c.Ingest.RatePerSecond < 0 {
		return fmt.Errorf("ingest rate cannot be negative")
	}
	if c.Ingest.RatePerSecond > 0 && c.Ingest.Burst <= 0 {
		return fmt.Errorf("ingest burst must be greater than 0 when a rate is set")
	}

	return nil
}

// -----------------------------------------------------------------------------

// Save persists the current configuration to the specified YAML file path
func (c *Config) Save(configPath string) error {
	// 1. Marshal the struct to YAML
	data, err := yaml.Marshal(c.MConfig)
	if err != nil {
		return fmt.Errorf("failed to marshal config to YAML: %w", err)
	}

	// 2. Write to file (0644 permissions)
	if err := os.WriteFile(configPath, data, 0644); err != nil {
		return fmt.Errorf("failed to write config to file '%s': %w", configPath, err)
	}

	return nil
}
