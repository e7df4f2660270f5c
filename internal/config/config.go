package config

import (
	"time"

	"github.com/HMasataka/streamhub/internal/logging"
)

// Config represents the application configuration
type Config struct {
	Server    ServerConfig    `json:"server" yaml:"server"`
	Streaming StreamingConfig `json:"streaming" yaml:"streaming"`
	RateLimit RateLimitConfig `json:"rate_limit" yaml:"rate_limit"`
	WebRTC    WebRTCConfig    `json:"webrtc" yaml:"webrtc"`
	Logging   logging.Config  `json:"logging" yaml:"logging"`
}

// ServerConfig represents server configuration
type ServerConfig struct {
	Host         string        `json:"host" yaml:"host"`
	Port         int           `json:"port" yaml:"port"`
	ReadTimeout  time.Duration `json:"read_timeout" yaml:"read_timeout"`
	WriteTimeout time.Duration `json:"write_timeout" yaml:"write_timeout"`
	IdleTimeout  time.Duration `json:"idle_timeout" yaml:"idle_timeout"`
}

// StreamingConfig holds broker and pipeline settings
type StreamingConfig struct {
	// DeliveryBuffer is the per-subscriber mailbox size.
	DeliveryBuffer int `json:"delivery_buffer" yaml:"delivery_buffer"`
	// MaxQueueLength caps retained messages per stream, 0 disables the cap.
	MaxQueueLength int `json:"max_queue_length" yaml:"max_queue_length"`

	Compression   string `json:"compression" yaml:"compression"`
	Encryption    string `json:"encryption" yaml:"encryption"`
	EncryptionKey string `json:"encryption_key,omitempty" yaml:"encryption_key,omitempty"`

	StatsInterval      time.Duration `json:"stats_interval" yaml:"stats_interval"`
	PermissionCacheTTL time.Duration `json:"permission_cache_ttl" yaml:"permission_cache_ttl"`
}

// RateLimitConfig limits HTTP requests per remote address
type RateLimitConfig struct {
	Limit float64 `json:"limit" yaml:"limit"`
	Burst int     `json:"burst" yaml:"burst"`
}

// WebRTCConfig represents WebRTC configuration
type WebRTCConfig struct {
	Enabled    bool        `json:"enabled" yaml:"enabled"`
	ICEServers []ICEServer `json:"ice_servers" yaml:"ice_servers"`
}

// ICEServer represents an ICE server configuration
type ICEServer struct {
	URLs       []string `json:"urls" yaml:"urls"`
	Username   string   `json:"username,omitempty" yaml:"username,omitempty"`
	Credential string   `json:"credential,omitempty" yaml:"credential,omitempty"`
}

const (
	CompressionNone = "none"
	CompressionZstd = "zstd"

	EncryptionNone              = "none"
	EncryptionXChaCha20Poly1305 = "xchacha20poly1305"
)

// Default returns the default configuration
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host:         "localhost",
			Port:         3000,
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 30 * time.Second,
			IdleTimeout:  120 * time.Second,
		},
		Streaming: StreamingConfig{
			DeliveryBuffer:     256,
			MaxQueueLength:     0,
			Compression:        CompressionNone,
			Encryption:         EncryptionNone,
			StatsInterval:      10 * time.Second,
			PermissionCacheTTL: time.Minute,
		},
		RateLimit: RateLimitConfig{
			Limit: 100,
			Burst: 200,
		},
		WebRTC: WebRTCConfig{
			Enabled: true,
			ICEServers: []ICEServer{
				{
					URLs: []string{"stun:stun.l.google.com:19302"},
				},
			},
		},
		Logging: logging.Config{
			Level:  "info",
			Format: "json",
		},
	}
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return NewConfigError("server.port", "invalid port number")
	}

	if c.Server.ReadTimeout < 0 {
		return NewConfigError("server.read_timeout", "timeout cannot be negative")
	}

	if c.Server.WriteTimeout < 0 {
		return NewConfigError("server.write_timeout", "timeout cannot be negative")
	}

	if c.Streaming.DeliveryBuffer <= 0 {
		return NewConfigError("streaming.delivery_buffer", "must be positive")
	}

	if c.Streaming.MaxQueueLength < 0 {
		return NewConfigError("streaming.max_queue_length", "cannot be negative")
	}

	switch c.Streaming.Compression {
	case CompressionNone, CompressionZstd:
	default:
		return NewConfigError("streaming.compression", "unsupported compression: "+c.Streaming.Compression)
	}

	switch c.Streaming.Encryption {
	case EncryptionNone:
	case EncryptionXChaCha20Poly1305:
		if c.Streaming.EncryptionKey == "" {
			return NewConfigError("streaming.encryption_key", "key is required when encryption is enabled")
		}
	default:
		return NewConfigError("streaming.encryption", "unsupported encryption: "+c.Streaming.Encryption)
	}

	if c.Streaming.StatsInterval < time.Second {
		return NewConfigError("streaming.stats_interval", "must be at least one second")
	}

	if c.RateLimit.Limit < 0 || c.RateLimit.Burst < 0 {
		return NewConfigError("rate_limit", "limit and burst cannot be negative")
	}

	if c.WebRTC.Enabled && len(c.WebRTC.ICEServers) == 0 {
		return NewConfigError("webrtc.ice_servers", "at least one ICE server is required")
	}

	return nil
}

// Addr returns the listen address
func (s ServerConfig) Addr() string {
	return s.Host + ":" + itoa(s.Port)
}
