package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// LoadOptions represents options for loading configuration
type LoadOptions struct {
	Path string
}

// Load loads configuration from various sources
func Load(opts ...LoadOptions) (*Config, error) {
	cfg := Default()

	var options LoadOptions
	if len(opts) > 0 {
		options = opts[0]
	}

	if options.Path != "" {
		if err := loadFromFile(cfg, options.Path); err != nil {
			return nil, err
		}
	}

	loadFromEnv(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// loadFromFile loads configuration from a file
func loadFromFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	ext := strings.ToLower(filepath.Ext(path))
	switch ext {
	case ".json":
		if err := json.Unmarshal(data, cfg); err != nil {
			return fmt.Errorf("failed to parse JSON config: %w", err)
		}
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return fmt.Errorf("failed to parse YAML config: %w", err)
		}
	default:
		return fmt.Errorf("unsupported config file format: %s", ext)
	}

	return nil
}

// loadFromEnv loads configuration from environment variables
func loadFromEnv(cfg *Config) {
	if host := os.Getenv("STREAMHUB_SERVER_HOST"); host != "" {
		cfg.Server.Host = host
	}
	if port := os.Getenv("STREAMHUB_SERVER_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			cfg.Server.Port = p
		}
	}

	if level := os.Getenv("STREAMHUB_LOG_LEVEL"); level != "" {
		cfg.Logging.Level = level
	}
	if format := os.Getenv("STREAMHUB_LOG_FORMAT"); format != "" {
		cfg.Logging.Format = format
	}

	if compression := os.Getenv("STREAMHUB_COMPRESSION"); compression != "" {
		cfg.Streaming.Compression = compression
	}
	if encryption := os.Getenv("STREAMHUB_ENCRYPTION"); encryption != "" {
		cfg.Streaming.Encryption = encryption
	}
	// Keys never live in the config file when set through the environment.
	if key := os.Getenv("STREAMHUB_ENCRYPTION_KEY"); key != "" {
		cfg.Streaming.EncryptionKey = key
	}
	if interval := os.Getenv("STREAMHUB_STATS_INTERVAL"); interval != "" {
		if d, err := time.ParseDuration(interval); err == nil {
			cfg.Streaming.StatsInterval = d
		}
	}

	if iceServers := os.Getenv("STREAMHUB_ICE_SERVERS"); iceServers != "" {
		urls := strings.Split(iceServers, ",")
		if len(urls) > 0 {
			cfg.WebRTC.ICEServers = []ICEServer{
				{URLs: urls},
			}
		}
	}
}

func itoa(i int) string {
	return strconv.Itoa(i)
}

// ConfigError represents a configuration error
type ConfigError struct {
	Field   string
	Message string
}

// NewConfigError creates a new configuration error
func NewConfigError(field, message string) *ConfigError {
	return &ConfigError{
		Field:   field,
		Message: message,
	}
}

// Error implements the error interface
func (e *ConfigError) Error() string {
	return fmt.Sprintf("config error in field '%s': %s", e.Field, e.Message)
}
