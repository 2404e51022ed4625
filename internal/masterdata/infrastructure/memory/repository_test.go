package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	masterdata "fleet-telemetry/internal/masterdata/domain"
)

func TestRegistry_TouchLastSeenNeverMovesBack(t *testing.T) {
	ctx := context.Background()
	reg := NewRegistry()
	require.NoError(t, reg.Create(ctx, &masterdata.Device{ID: "d1", ExternalID: "esp-1", FactoryID: "f1"}))

	later := time.Date(2026, 4, 1, 12, 0, 0, 0, time.UTC)
	earlier := later.Add(-time.Hour)

	require.NoError(t, reg.TouchLastSeen(ctx, "d1", later))
	require.NoError(t, reg.TouchLastSeen(ctx, "d1", earlier))

	device, err := reg.Get(ctx, "d1")
	require.NoError(t, err)
	require.NotNil(t, device.LastSeen)
	assert.True(t, later.Equal(*device.LastSeen))

	assert.ErrorIs(t, reg.TouchLastSeen(ctx, "missing", later), masterdata.ErrDeviceNotFound)
}

func TestRegistry_CreateRejectsDuplicateExternalID(t *testing.T) {
	ctx := context.Background()
	reg := NewRegistry()
	require.NoError(t, reg.Create(ctx, &masterdata.Device{ID: "d1", ExternalID: "esp-1", FactoryID: "f1"}))
	err := reg.Create(ctx, &masterdata.Device{ID: "d2", ExternalID: "esp-1", FactoryID: "f2"})
	assert.ErrorIs(t, err, masterdata.ErrDeviceExists)
}

func TestRegistry_Counts(t *testing.T) {
	ctx := context.Background()
	reg := NewRegistry()
	now := time.Date(2026, 4, 1, 12, 0, 0, 0, time.UTC)
	fresh := now.Add(-time.Minute)
	stale := now.Add(-time.Hour)

	require.NoError(t, reg.Create(ctx, &masterdata.Device{ID: "d1", ExternalID: "e1", FactoryID: "f1", LastSeen: &fresh}))
	require.NoError(t, reg.Create(ctx, &masterdata.Device{ID: "d2", ExternalID: "e2", FactoryID: "f1", LastSeen: &stale}))
	require.NoError(t, reg.Create(ctx, &masterdata.Device{ID: "d3", ExternalID: "e3", FactoryID: "f2", LastSeen: &fresh}))

	total, err := reg.CountByFactory(ctx, "f1")
	require.NoError(t, err)
	assert.Equal(t, 2, total)

	active, err := reg.CountActiveSince(ctx, "f1", now.Add(-5*time.Minute))
	require.NoError(t, err)
	assert.Equal(t, 1, active)

	all, err := reg.List(ctx, "")
	require.NoError(t, err)
	assert.Len(t, all, 3)

	f2, err := reg.List(ctx, "f2")
	require.NoError(t, err)
	require.Len(t, f2, 1)
	assert.Equal(t, "d3", f2[0].ID)
}
