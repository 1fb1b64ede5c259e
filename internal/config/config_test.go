package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func clearEnv(t *testing.T) {
	for _, k := range []string{"PORT", "REDIS_URL", "REDIS_ADDR", "GEMINI_API_KEY", "GCP_PROJECT_ID", "GCP_REGION", "LOG_LEVEL"} {
		t.Setenv(k, "")
	}
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	clearEnv(t)
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, ":8080", cfg.Addr())
	assert.Equal(t, "localhost:6379", cfg.Redis.Address)
	assert.Equal(t, "waifu100", cfg.Redis.KeyPrefix)
	assert.Equal(t, 50, cfg.Feed.Size)
	assert.Equal(t, "gemini-2.5-flash", cfg.Gemini.Model)
	assert.False(t, cfg.AnalysisEnabled())
}

func TestLoadFile(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
server:
  host: 127.0.0.1
  port: 9000
  session_ttl: 30m
redis:
  address: redis:6379
  db: 2
feed:
  size: 20
  cache_ttl: 1m
log:
  level: debug
  development: true
`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1:9000", cfg.Addr())
	assert.Equal(t, 30*time.Minute, cfg.Server.SessionTTL)
	assert.Equal(t, 2, cfg.Redis.DB)
	assert.Equal(t, 20, cfg.Feed.Size)
	assert.Equal(t, time.Minute, cfg.Feed.CacheTTL)
	assert.True(t, cfg.Log.Development)
	assert.Equal(t, 5, cfg.Limits.SharePerMinute)
}

func TestEnvOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("PORT", "3000")
	t.Setenv("REDIS_URL", "redis://:pw@cache:6379/1")
	t.Setenv("GEMINI_API_KEY", "key")
	t.Setenv("LOG_LEVEL", "warn")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 3000, cfg.Server.Port)
	assert.Equal(t, "redis://:pw@cache:6379/1", cfg.Redis.URL)
	assert.Empty(t, cfg.Redis.Address)
	assert.Equal(t, "warn", cfg.Log.Level)
	assert.True(t, cfg.AnalysisEnabled())
}

func TestInvalidInput(t *testing.T) {
	clearEnv(t)
	t.Setenv("PORT", "eighty")
	_, err := Load("")
	assert.Error(t, err)

	clearEnv(t)
	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server: ["), 0o644))
	_, err = Load(path)
	assert.Error(t, err)
}
