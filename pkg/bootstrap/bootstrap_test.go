package bootstrap

import (
	"context"
	"testing"
	"time"

	"github.com/Vinayak0987/CareSync-sub001/pkg/config"
	"github.com/Vinayak0987/CareSync-sub001/pkg/ledger"
	"github.com/Vinayak0987/CareSync-sub001/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func memoryConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg, err := config.Load("")
	require.NoError(t, err)
	return cfg
}

func TestInitMemory(t *testing.T) {
	cfg := memoryConfig(t)
	rt, cleanup, err := Init(context.Background(), cfg, zap.NewNop())
	require.NoError(t, err)
	defer cleanup()

	assert.NotEmpty(t, rt.Origin)
	assert.Nil(t, rt.Etcd)
	assert.Nil(t, rt.Auditor)
	assert.Equal(t, "caresync_orders", rt.Store.Keys().Orders)

	opts, err := rt.LedgerOptions()
	require.NoError(t, err)
	assert.Equal(t, ledger.PolicyLastWriterWins, opts.Policy)
	assert.Equal(t, "Asia/Kolkata", opts.Location.String())
	assert.Nil(t, opts.Auditor)
	assert.Equal(t, models.SeedOrders(), opts.Defaults)

	l, err := ledger.New(opts)
	require.NoError(t, err)
	defer l.Close()

	orders, err := l.Orders()
	require.NoError(t, err)
	assert.Len(t, orders, 3)
	assert.Equal(t, rt.Origin, l.Origin())
}

func TestLedgerOptionsWithoutSeed(t *testing.T) {
	cfg := memoryConfig(t)
	cfg.Ledger.Seed = false
	cfg.Ledger.ConflictPolicy = "versioned"
	cfg.Ledger.RequestTimeout = time.Second

	rt, cleanup, err := Init(context.Background(), cfg, zap.NewNop())
	require.NoError(t, err)
	defer cleanup()

	opts, err := rt.LedgerOptions()
	require.NoError(t, err)
	assert.Empty(t, opts.Defaults)
	assert.Equal(t, ledger.PolicyVersioned, opts.Policy)
	assert.Equal(t, time.Second, opts.RequestTimeout)
}

func TestInitRejectsUnknownBackend(t *testing.T) {
	cfg := memoryConfig(t)
	cfg.Ledger.Backend = "sqlite"
	_, _, err := Init(context.Background(), cfg, zap.NewNop())
	assert.Error(t, err)
}
