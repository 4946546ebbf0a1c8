package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaultsWithoutFile(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)

	assert.Equal(t, BackendMemory, cfg.Ledger.Backend)
	assert.Equal(t, "caresync_orders", cfg.Ledger.OrdersKey)
	assert.Equal(t, "caresync_order_counter", cfg.Ledger.CounterKey)
	assert.Equal(t, "caresync_orders_sync", cfg.Ledger.Channel)
	assert.Equal(t, "last-writer-wins", cfg.Ledger.ConflictPolicy)
	assert.Equal(t, 5*time.Second, cfg.Ledger.RequestTimeout)
	assert.Equal(t, 5*time.Second, cfg.Etcd.DialTimeout)
	assert.True(t, cfg.Ledger.StorageEvents)
	assert.Equal(t, []string{"stdout"}, cfg.Log.OutputPaths)
}

func TestLoadFileAndEnvOverride(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	yaml := `
ledger:
  backend: redis
  broadcast: redis
  refresh_interval: 30s
redis:
  addr: redis:6379
gateway:
  port: 9090
`
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0o600))
	t.Setenv("CARESYNC_LEDGER_CONFLICT_POLICY", "versioned")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, BackendRedis, cfg.Ledger.Backend)
	assert.Equal(t, BackendRedis, cfg.Ledger.Broadcast)
	assert.Equal(t, 30*time.Second, cfg.Ledger.RefreshInterval)
	assert.Equal(t, "redis:6379", cfg.Redis.Addr)
	assert.Equal(t, 9090, cfg.Gateway.Port)
	assert.Equal(t, "versioned", cfg.Ledger.ConflictPolicy)
}

func TestLoadRejectsUnknownBackend(t *testing.T) {
	t.Setenv("CARESYNC_LEDGER_BACKEND", "floppy")

	_, err := Load("")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "floppy")
}

func TestLocation(t *testing.T) {
	lc := LedgerConfig{Timezone: "Asia/Kolkata"}
	assert.Equal(t, "Asia/Kolkata", lc.Location().String())

	lc.Timezone = "Not/AZone"
	assert.Equal(t, time.UTC, lc.Location())
}

func TestMySQLDSN(t *testing.T) {
	c := MySQLConfig{Username: "u", Password: "p", Host: "db", Port: 3306, Database: "caresync"}
	assert.Equal(t, "u:p@tcp(db:3306)/caresync?charset=utf8mb4&parseTime=True&loc=Local", c.DSN())
}

func TestValidateConflictPolicy(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	for _, policy := range []string{"", "last-writer-wins", "versioned"} {
		cfg.Ledger.ConflictPolicy = policy
		assert.NoError(t, cfg.Validate(), "policy %q", policy)
	}

	cfg.Ledger.ConflictPolicy = "first-writer-wins"
	assert.Error(t, cfg.Validate())
}
