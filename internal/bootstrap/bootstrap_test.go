package bootstrap

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fleet-telemetry/internal/config"
	mdredis "fleet-telemetry/internal/masterdata/infrastructure/redis"
)

func TestOpenMemoryStores(t *testing.T) {
	ctx := context.Background()
	cfg := &config.Config{Storage: config.StorageConfig{Driver: config.StorageMemory}}
	stores, err := OpenStores(ctx, cfg, nil)
	require.NoError(t, err)
	defer stores.Close()

	require.NoError(t, stores.CreateFactory(ctx, "factory-a", "Plant A"))
	ok, err := stores.Factories.Exists(ctx, "factory-a")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.NoError(t, stores.Ping(ctx))

	svcs, err := NewServices(stores, nil, nil)
	require.NoError(t, err)
	assert.NotNil(t, svcs.Alerts)
	assert.NotNil(t, svcs.Insights)
}

func TestOpenStoresWithRedisCache(t *testing.T) {
	mr := miniredis.RunT(t)
	ctx := context.Background()
	cfg := &config.Config{
		Storage: config.StorageConfig{Driver: config.StorageMemory},
		Redis:   config.RedisConfig{Addr: mr.Addr()},
	}
	stores, err := OpenStores(ctx, cfg, nil)
	require.NoError(t, err)
	defer stores.Close()

	_, cached := stores.Devices.(*mdredis.CachedDeviceRepository)
	assert.True(t, cached)
	assert.NoError(t, stores.Ping(ctx))
}

func TestOpenStoresRejectsUnknownDriver(t *testing.T) {
	_, err := OpenStores(context.Background(), &config.Config{Storage: config.StorageConfig{Driver: "sqlite"}}, nil)
	assert.Error(t, err)
}
