package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_DefaultsAndDerivedSocketURL(t *testing.T) {
	t.Setenv("SUPPORT_API_URL", "https://support.example.com/")
	t.Setenv("ECOMMERCE_API_URL", "https://shop.example.com//")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "https://support.example.com", cfg.API.BaseURL)
	assert.Equal(t, "https://shop.example.com", cfg.Commerce.BaseURL)
	assert.Equal(t, "wss://support.example.com", cfg.Socket.URL)
	assert.Equal(t, 10*time.Second, cfg.Socket.ConnectTimeout)
	assert.Equal(t, 5, cfg.Socket.ReconnectAttempts)
	assert.Equal(t, 2*time.Second, cfg.Socket.ReconnectDelay)
	assert.Equal(t, "agent-console.db", cfg.Session.DBPath)
	assert.True(t, cfg.IsDevelopment())
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("SUPPORT_API_URL", "http://localhost:3000")
	t.Setenv("SOCKET_URL", "ws://gateway.local:4000/")
	t.Setenv("SOCKET_RECONNECT_ATTEMPTS", "2")
	t.Setenv("SOCKET_RECONNECT_DELAY", "500ms")
	t.Setenv("STATUS_ALLOWED_ORIGINS", "http://localhost:5173, ,http://127.0.0.1:5173")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "ws://gateway.local:4000", cfg.Socket.URL)
	assert.Equal(t, 2, cfg.Socket.ReconnectAttempts)
	assert.Equal(t, 500*time.Millisecond, cfg.Socket.ReconnectDelay)
	assert.Equal(t, []string{"http://localhost:5173", "http://127.0.0.1:5173"}, cfg.Status.AllowedOrigins)
}

func TestLoad_MissingAPIURL(t *testing.T) {
	t.Setenv("SUPPORT_API_URL", "")
	t.Setenv("SOCKET_URL", "")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "SUPPORT_API_URL is required")
	assert.Contains(t, err.Error(), "SOCKET_URL is required")
}

func TestValidate_CollectsAllErrors(t *testing.T) {
	cfg := &Config{
		API:    APIConfig{BaseURL: "ftp://nope", RateLimitRPS: 0},
		Socket: SocketConfig{URL: "http://not-ws", ConnectTimeout: 0, ReconnectAttempts: -1, PingInterval: time.Minute, PongWait: time.Second},
	}

	err := cfg.Validate()
	require.Error(t, err)
	for _, want := range []string{
		"SUPPORT_API_URL must be an http(s) URL",
		"SOCKET_URL must be a ws(s) URL",
		"SESSION_DB_PATH cannot be empty",
		"SOCKET_CONNECT_TIMEOUT must be greater than 0",
		"SOCKET_RECONNECT_ATTEMPTS cannot be negative",
		"SOCKET_PING_INTERVAL must be less than SOCKET_PONG_WAIT",
		"HTTP_RATE_LIMIT_RPS must be greater than 0",
	} {
		assert.Contains(t, err.Error(), want)
	}
}

func TestSocketURLFromAPI(t *testing.T) {
	assert.Equal(t, "ws://localhost:3000", SocketURLFromAPI("http://localhost:3000"))
	assert.Equal(t, "wss://api.example.com", SocketURLFromAPI("https://api.example.com"))
	assert.Equal(t, "", SocketURLFromAPI(""))
}

func TestString_RedactsQuery(t *testing.T) {
	cfg := &Config{Socket: SocketConfig{URL: "wss://gw.example.com?token=secret"}}
	assert.NotContains(t, cfg.String(), "secret")
}
