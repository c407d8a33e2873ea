package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadDefaultsWithoutFile(t *testing.T) {
	t.Setenv("DATABASE_URL", "")
	t.Setenv("DB_NAME", "reelboard_test")

	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)
	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, StoreMemory, cfg.Store.Driver)
	assert.Equal(t, PublisherLog, cfg.Activity.Publisher)
	assert.Equal(t, 10*time.Second, cfg.Store.WriteTimeout)
	assert.Contains(t, cfg.Postgres.URL, "/reelboard_test?")
	assert.Equal(t, 30*time.Second, cfg.Redis.PollInterval)
}

func TestLoadFileThenEnv(t *testing.T) {
	path := writeFile(t, `
port: "9090"
log_level: debug
store:
  driver: redis
  key: board/test
  write_timeout: 3s
redis:
  addr: redis:6379
  db: 2
  poll_interval: 5s
postgres:
  url: postgres://file
  poll_interval: 1m
activity:
  publisher: nats
`)
	t.Setenv("REDIS_ADDR", "cache:6380")
	t.Setenv("PG_POLL_INTERVAL", "45s")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "9090", cfg.Port)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, StoreRedis, cfg.Store.Driver)
	assert.Equal(t, "board/test", cfg.Store.Key)
	assert.Equal(t, 3*time.Second, cfg.Store.WriteTimeout)
	assert.Equal(t, "cache:6380", cfg.Redis.Addr)
	assert.Equal(t, 2, cfg.Redis.DB)
	assert.Equal(t, 5*time.Second, cfg.Redis.PollInterval)
	assert.Equal(t, "postgres://file", cfg.Postgres.URL)
	assert.Equal(t, 45*time.Second, cfg.Postgres.PollInterval)
	assert.Equal(t, PublisherNATS, cfg.Activity.Publisher)
}

func TestLoadRejectsBadSettings(t *testing.T) {
	tests := []struct {
		name string
		file string
		env  map[string]string
	}{
		{name: "unknown store", env: map[string]string{"REELBOARD_STORE": "etcd"}},
		{name: "unknown publisher", env: map[string]string{"ACTIVITY_PUBLISHER": "kafka"}},
		{name: "bad redis db", env: map[string]string{"REDIS_DB": "two"}},
		{name: "bad duration", env: map[string]string{"REELBOARD_WRITE_TIMEOUT": "soon"}},
		{name: "zero timeout", file: "store:\n  write_timeout: 0s\n"},
		{name: "zero redis poll", file: "redis:\n  poll_interval: 0s\n"},
		{name: "bad redis poll", env: map[string]string{"REDIS_POLL_INTERVAL": "often"}},
		{name: "malformed yaml", file: "store: [\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			path := ""
			if tt.file != "" {
				path = writeFile(t, tt.file)
			}
			_, err := Load(path)
			assert.Error(t, err)
		})
	}
}
