package server

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Tyrowin/roomchat/internal/chat"
)

func TestNewConfig(t *testing.T) {
	config := NewConfig()
	require.NotNil(t, config)

	assert.Equal(t, ":8080", config.Port)
	assert.Equal(t, []string{"http://localhost:8080"}, config.AllowedOrigins)
	assert.Equal(t, int64(4096), config.MaxMessageSize)
	assert.Equal(t, 256, config.SendBufferSize)
	assert.Equal(t, RateLimitConfig{Burst: 5, RefillInterval: time.Second}, config.RateLimit)
	assert.Equal(t, chat.DefaultSettings(), config.Chat)
}

func TestNewConfigFromEnv(t *testing.T) {
	t.Setenv("PORT", "3000")
	t.Setenv("ALLOWED_ORIGINS", "http://a.example, *")
	t.Setenv("MAX_MESSAGE_SIZE", "1024")
	t.Setenv("RATE_LIMIT_BURST", "9")
	t.Setenv("RATE_LIMIT_REFILL_INTERVAL", "3")
	t.Setenv("SEND_BUFFER_SIZE", "32")
	t.Setenv("SHUTDOWN_TIMEOUT", "1500ms")
	t.Setenv("GLOBAL_ROOM", "lobby")
	t.Setenv("MESSAGE_LOG_SCOPE", "room")
	t.Setenv("DUPLICATE_IDENTITY_POLICY", "Reject")
	t.Setenv("LOG_LEVEL", "DEBUG")
	t.Setenv("LOG_FORMAT", "json")

	config := NewConfigFromEnv()

	assert.Equal(t, ":3000", config.Port)
	assert.Equal(t, []string{"http://a.example", "*"}, config.AllowedOrigins)
	assert.Equal(t, int64(1024), config.MaxMessageSize)
	assert.Equal(t, RateLimitConfig{Burst: 9, RefillInterval: 3 * time.Second}, config.RateLimit)
	assert.Equal(t, 32, config.SendBufferSize)
	assert.Equal(t, 1500*time.Millisecond, config.ShutdownTimeout)
	assert.Equal(t, chat.Settings{
		GlobalRoom:      "lobby",
		LogScope:        chat.LogScopeRoom,
		DuplicatePolicy: chat.DuplicateReject,
	}, config.Chat)
	assert.Equal(t, "debug", config.LogLevel)
	assert.Equal(t, "json", config.LogFormat)
}

func TestNewConfigFromEnvInvalidValuesFallBack(t *testing.T) {
	t.Setenv("MAX_MESSAGE_SIZE", "-1")
	t.Setenv("RATE_LIMIT_BURST", "lots")
	t.Setenv("RATE_LIMIT_REFILL_INTERVAL", "0")
	t.Setenv("MESSAGE_LOG_SCOPE", "galaxy")
	t.Setenv("DUPLICATE_IDENTITY_POLICY", "sometimes")

	config := NewConfigFromEnv()
	defaults := NewConfig()

	assert.Equal(t, defaults.MaxMessageSize, config.MaxMessageSize)
	assert.Equal(t, defaults.RateLimit, config.RateLimit)
	assert.Equal(t, defaults.Chat, config.Chat)
}

func TestServerPortOverridesPort(t *testing.T) {
	t.Setenv("PORT", "3000")
	t.Setenv("SERVER_PORT", "127.0.0.1:9000")

	assert.Equal(t, "127.0.0.1:9000", NewConfigFromEnv().Port)
}

func TestConfigSanitized(t *testing.T) {
	cfg := Config{Chat: chat.Settings{LogScope: "nope"}}.sanitized()

	assert.Equal(t, ":8080", cfg.Port)
	assert.Equal(t, int64(4096), cfg.MaxMessageSize)
	assert.Equal(t, 256, cfg.SendBufferSize)
	assert.Equal(t, 5, cfg.RateLimit.Burst)
	assert.Equal(t, chat.DefaultSettings(), cfg.Chat)
}

func TestLoadEnvFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "test.env")
	require.NoError(t, os.WriteFile(path, []byte("GLOBAL_ROOM=from-file\n"), 0o600))
	t.Setenv("GLOBAL_ROOM", "")
	require.NoError(t, os.Unsetenv("GLOBAL_ROOM"))

	require.NoError(t, LoadEnvFile(path))
	assert.Equal(t, "from-file", NewConfigFromEnv().Chat.GlobalRoom)

	assert.NoError(t, LoadEnvFile(filepath.Join(dir, "missing.env")), "a missing file is not an error")
}
