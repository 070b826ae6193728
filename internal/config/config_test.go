package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(t.TempDir())
	require.NoError(t, err)

	assert.Equal(t, "http://localhost:8080", cfg.API.BaseURL)
	assert.Equal(t, "file", cfg.Cache.Driver)
	assert.Equal(t, "/topic/public", cfg.Chat.Destinations.Broadcast)
	assert.Equal(t, "/user/%s/queue/private", cfg.Chat.Destinations.Private)
	assert.Equal(t, 5, cfg.Chat.Backoff.MaxAttempts)
	assert.Equal(t, time.Second, cfg.Chat.Backoff.Base)
	assert.Equal(t, 30*time.Second, cfg.Chat.LivenessInterval)
	assert.Equal(t, 100*time.Millisecond, cfg.Chat.ReceiptEcho)
	assert.Equal(t, 5*time.Second, cfg.Chat.DelayedAfter)
	assert.Equal(t, 3*time.Second, cfg.Chat.RefreshAfter)
	assert.Equal(t, 30*time.Minute, cfg.Chat.RetransmitWindow)
	assert.True(t, cfg.Chat.AnnounceJoin)
	assert.Equal(t, "sqlite", cfg.Database.Driver)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, 24*time.Hour, cfg.JWT.AccessDuration)
}

func TestLoadFileAndEnv(t *testing.T) {
	dir := t.TempDir()
	yaml := `
api:
  base_url: http://finance.internal:9000
cache:
  driver: redis
  redis:
    address: cache:6379
chat:
  delayed_after: 2s
  backoff:
    max_attempts: 9
log:
  level: debug
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0o644))
	t.Setenv("FIN_CHAT_URL", "wss://finance.internal/ws")
	t.Setenv("PORT", "9999")

	cfg, err := Load(dir)
	require.NoError(t, err)

	assert.Equal(t, "http://finance.internal:9000", cfg.API.BaseURL)
	assert.Equal(t, "redis", cfg.Cache.Driver)
	assert.Equal(t, "cache:6379", cfg.Cache.Redis.Address)
	assert.Equal(t, 2*time.Second, cfg.Chat.DelayedAfter)
	assert.Equal(t, 9, cfg.Chat.Backoff.MaxAttempts)
	assert.Equal(t, "wss://finance.internal/ws", cfg.Chat.URL)
	assert.Equal(t, 9999, cfg.Server.Port)
	assert.Equal(t, "debug", cfg.Log.Level)
}

func TestLoadExplicitFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "finctl.yml")
	require.NoError(t, os.WriteFile(path, []byte("server:\n  port: 7070\n"), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 7070, cfg.Server.Port)
}

func TestLoadMalformedFile(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte("api: [unterminated"), 0o644))

	_, err := Load(dir)
	assert.Error(t, err)
}
