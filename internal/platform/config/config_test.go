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
	t.Setenv(ConfigFileEnv, "")
	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
	assert.Equal(t, BackendMemory, cfg.Store.Backend)
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv(ConfigFileEnv, "")
	t.Setenv("RECONCILER_ADDR", ":9090")
	t.Setenv("STORE_BACKEND", "postgres")
	t.Setenv("DATABASE_URL", "postgres://u:p@localhost/db")
	t.Setenv("DATABASE_DRIVER", "pgx")
	t.Setenv("REDIS_URL", "redis://localhost:6379/0")
	t.Setenv("VIEW_CACHE_TTL", "90s")
	t.Setenv("KAFKA_BROKERS", "k1:9092, k2:9092,")
	t.Setenv("TX_TIMEOUT", "2s")
	t.Setenv("LOCK_MAX_ATTEMPTS", "8")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, ":9090", cfg.Addr)
	assert.Equal(t, BackendPostgres, cfg.Store.Backend)
	assert.Equal(t, "pgx", cfg.Store.Driver)
	assert.Equal(t, 90*time.Second, cfg.Redis.ViewTTL)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.Kafka.Brokers)
	assert.Equal(t, 2*time.Second, cfg.Store.TxTimeout)
	assert.Equal(t, 8, cfg.Reconcile.MaxAttempts)
}

func TestLoadFileThenEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "reconciler.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
addr: ":7070"
log:
  format: text
store:
  backend: sqlite
  sqlite_path: /var/lib/reconciler/contacts.db
  tx_timeout: 3s
kafka:
  brokers: [broker:9092]
`), 0o600))
	t.Setenv(ConfigFileEnv, path)
	t.Setenv("RECONCILER_ADDR", ":6060")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, ":6060", cfg.Addr, "environment wins over the file")
	assert.Equal(t, "text", cfg.Log.Format)
	assert.Equal(t, BackendSQLite, cfg.Store.Backend)
	assert.Equal(t, "/var/lib/reconciler/contacts.db", cfg.Store.SQLitePath)
	assert.Equal(t, 3*time.Second, cfg.Store.TxTimeout)
	assert.Equal(t, []string{"broker:9092"}, cfg.Kafka.Brokers)
	assert.Equal(t, 5*time.Minute, cfg.Redis.ViewTTL, "unset keys keep their defaults")
}

func TestLoadErrors(t *testing.T) {
	t.Run("missing file", func(t *testing.T) {
		t.Setenv(ConfigFileEnv, filepath.Join(t.TempDir(), "absent.yaml"))
		_, err := Load()
		assert.Error(t, err)
	})

	t.Run("malformed duration", func(t *testing.T) {
		t.Setenv(ConfigFileEnv, "")
		t.Setenv("TX_TIMEOUT", "soon")
		_, err := Load()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "TX_TIMEOUT")
	})
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{name: "defaults", mutate: func(c *Config) {}},
		{
			name:    "postgres without url",
			mutate:  func(c *Config) { c.Store.Backend = BackendPostgres },
			wantErr: "DATABASE_URL is required",
		},
		{
			name: "unknown driver",
			mutate: func(c *Config) {
				c.Store.Backend = BackendPostgres
				c.Store.DatabaseURL = "postgres://localhost/db"
				c.Store.Driver = "mysql"
			},
			wantErr: "unsupported DATABASE_DRIVER",
		},
		{
			name:    "sqlite without path",
			mutate:  func(c *Config) { c.Store.Backend = BackendSQLite; c.Store.SQLitePath = "" },
			wantErr: "SQLITE_PATH is required",
		},
		{
			name:    "unknown backend",
			mutate:  func(c *Config) { c.Store.Backend = "mongo" },
			wantErr: "unknown STORE_BACKEND",
		},
		{
			name:    "unknown log format",
			mutate:  func(c *Config) { c.Log.Format = "xml" },
			wantErr: "unknown LOG_FORMAT",
		},
		{
			name:    "zero attempts",
			mutate:  func(c *Config) { c.Reconcile.MaxAttempts = 0 },
			wantErr: "LOCK_MAX_ATTEMPTS",
		},
		{
			name: "cache without ttl",
			mutate: func(c *Config) {
				c.Redis.URL = "redis://localhost:6379"
				c.Redis.ViewTTL = 0
			},
			wantErr: "VIEW_CACHE_TTL",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}
