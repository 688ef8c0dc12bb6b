package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeYAML(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.Addr)
	assert.Equal(t, "/api", cfg.API.Prefix)
	assert.Equal(t, BackendLocal, cfg.Downloads.Backend)
	assert.Equal(t, 60*time.Second, cfg.Downloads.TTL)
	assert.Equal(t, 120*time.Second, cfg.Downloads.MaxAge)
	assert.Equal(t, 5, cfg.Scratch.Attempts)
	assert.Equal(t, 2*time.Second, cfg.Scratch.Backoff)
	assert.Equal(t, BackendFile, cfg.Jobs.Backend)
	assert.Equal(t, slog.LevelInfo, cfg.Log.SlogLevel())
}

func TestLoad_YAMLThenEnv(t *testing.T) {
	path := writeYAML(t, `
addr: ":9000"
shutdown_timeout: 3s
log:
  level: debug
api:
  hidden_prefixes: ["/api/internal"]
downloads:
  dir: /srv/public
  ttl: 30s
jobs:
  backend: redis
redis:
  addr: localhost:6379
postgres:
  dsn: postgres://localhost/crudkit
  auto_migrate: true
`)

	t.Setenv("CRUDKIT_ADDR", ":9100")
	t.Setenv("CRUDKIT_DOWNLOADS_TTL", "45s")
	t.Setenv("CRUDKIT_API_HIDDEN_PREFIXES", "/api/a,/api/b")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, ":9100", cfg.Addr)
	assert.Equal(t, 3*time.Second, cfg.ShutdownTimeout)
	assert.Equal(t, slog.LevelDebug, cfg.Log.SlogLevel())
	assert.Equal(t, []string{"/api/a", "/api/b"}, cfg.API.Hidden)
	assert.Equal(t, "/srv/public", cfg.Downloads.Dir)
	assert.Equal(t, 45*time.Second, cfg.Downloads.TTL)
	assert.Equal(t, BackendRedis, cfg.Jobs.Backend)
	assert.Equal(t, "postgres://localhost/crudkit", cfg.Postgres.DSN)
	assert.True(t, cfg.Postgres.AutoMigrate)
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name string
		yaml string
		want string
	}{
		{"unknown downloads backend", "downloads:\n  backend: ftp\n", "downloads.backend"},
		{"minio without bucket", "downloads:\n  backend: minio\nminio:\n  endpoint: localhost:9000\n", "minio.bucket"},
		{"redis jobs without addr", "jobs:\n  backend: redis\n", "redis.addr"},
		{"unknown jobs backend", "jobs:\n  backend: s3\n", "jobs.backend"},
		{"max age below ttl", "downloads:\n  ttl: 10m\n  max_age: 1m\n", "max_age"},
		{"broken yaml", "addr: [", "unmarshal"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeYAML(t, tt.yaml))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}

	t.Run("missing file", func(t *testing.T) {
		_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
		assert.Error(t, err)
	})
}
