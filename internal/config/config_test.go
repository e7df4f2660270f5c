package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, CompressionNone, cfg.Streaming.Compression)
	assert.Equal(t, EncryptionNone, cfg.Streaming.Encryption)
	assert.Zero(t, cfg.Streaming.MaxQueueLength)
	assert.Equal(t, "localhost:3000", cfg.Server.Addr())
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		field  string
	}{
		{"bad port", func(c *Config) { c.Server.Port = 0 }, "server.port"},
		{"negative read timeout", func(c *Config) { c.Server.ReadTimeout = -time.Second }, "server.read_timeout"},
		{"zero delivery buffer", func(c *Config) { c.Streaming.DeliveryBuffer = 0 }, "streaming.delivery_buffer"},
		{"negative queue length", func(c *Config) { c.Streaming.MaxQueueLength = -1 }, "streaming.max_queue_length"},
		{"unknown compression", func(c *Config) { c.Streaming.Compression = "lz4" }, "streaming.compression"},
		{"missing key", func(c *Config) { c.Streaming.Encryption = EncryptionXChaCha20Poly1305 }, "streaming.encryption_key"},
		{"unknown encryption", func(c *Config) { c.Streaming.Encryption = "rot13" }, "streaming.encryption"},
		{"stats interval too small", func(c *Config) { c.Streaming.StatsInterval = time.Millisecond }, "streaming.stats_interval"},
		{"negative rate limit", func(c *Config) { c.RateLimit.Limit = -1 }, "rate_limit"},
		{"no ice servers", func(c *Config) { c.WebRTC.ICEServers = nil }, "webrtc.ice_servers"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)

			err := cfg.Validate()
			require.Error(t, err)

			var cfgErr *ConfigError
			require.ErrorAs(t, err, &cfgErr)
			assert.Equal(t, tt.field, cfgErr.Field)
		})
	}
}

func TestLoadYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "streamhub.yaml")
	content := `
server:
  host: 0.0.0.0
  port: 8080
streaming:
  delivery_buffer: 64
  max_queue_length: 500
  compression: zstd
  stats_interval: 5s
logging:
  level: debug
  format: text
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	cfg, err := Load(LoadOptions{Path: path})
	require.NoError(t, err)

	assert.Equal(t, "0.0.0.0", cfg.Server.Host)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, 64, cfg.Streaming.DeliveryBuffer)
	assert.Equal(t, 500, cfg.Streaming.MaxQueueLength)
	assert.Equal(t, CompressionZstd, cfg.Streaming.Compression)
	assert.Equal(t, 5*time.Second, cfg.Streaming.StatsInterval)
	assert.Equal(t, "debug", cfg.Logging.Level)
	// untouched fields keep their defaults
	assert.Equal(t, 30*time.Second, cfg.Server.ReadTimeout)
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("STREAMHUB_SERVER_PORT", "9090")
	t.Setenv("STREAMHUB_LOG_FORMAT", "pretty")
	t.Setenv("STREAMHUB_ENCRYPTION", EncryptionXChaCha20Poly1305)
	t.Setenv("STREAMHUB_ENCRYPTION_KEY", "00112233445566778899aabbccddeeff00112233445566778899aabbccddeeff")
	t.Setenv("STREAMHUB_ICE_SERVERS", "stun:a.example:3478,stun:b.example:3478")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, "pretty", cfg.Logging.Format)
	assert.Equal(t, EncryptionXChaCha20Poly1305, cfg.Streaming.Encryption)
	require.Len(t, cfg.WebRTC.ICEServers, 1)
	assert.Equal(t, []string{"stun:a.example:3478", "stun:b.example:3478"}, cfg.WebRTC.ICEServers[0].URLs)
}

func TestLoadUnsupportedFormat(t *testing.T) {
	path := filepath.Join(t.TempDir(), "streamhub.toml")
	require.NoError(t, os.WriteFile(path, []byte("x = 1"), 0o600))

	_, err := Load(LoadOptions{Path: path})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported config file format")
}
